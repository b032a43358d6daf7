// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package operation

import (
	"testing"

	"github.com/GoogleCloudPlatform/controlaggregator/metricvalue"
	sc "google.golang.org/api/servicecontrol/v1"
)

func int64v(n int64) *int64 { return &n }

func TestAddWidensTimeWindowAndAppendsLogEntries(t *testing.T) {
	first := &sc.Operation{
		StartTime:  "2017-01-01T00:00:00Z",
		EndTime:    "2017-01-01T00:00:05Z",
		LogEntries: []*sc.LogEntry{{Name: "request-log"}},
	}
	agg := New(first, nil)

	second := &sc.Operation{
		StartTime:  "2017-01-01T00:00:03Z",
		EndTime:    "2017-01-01T00:00:10Z",
		LogEntries: []*sc.LogEntry{{Name: "response-log"}},
	}
	if err := agg.Add(second); err != nil {
		t.Fatal(err)
	}

	got := agg.AsOperation()
	if got.StartTime != "2017-01-01T00:00:00Z" || got.EndTime != "2017-01-01T00:00:10Z" {
		t.Fatalf("window not widened: start=%s end=%s", got.StartTime, got.EndTime)
	}
	if len(got.LogEntries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(got.LogEntries))
	}
}

func TestAddMergesMatchingLabelsAsDelta(t *testing.T) {
	first := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "us"}, Int64Value: int64v(1)},
				},
			},
		},
	}
	agg := New(first, map[string]metricvalue.Kind{"library.googleapis.com/requests": metricvalue.KindDelta})

	second := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "us"}, Int64Value: int64v(2)},
				},
			},
		},
	}
	if err := agg.Add(second); err != nil {
		t.Fatal(err)
	}

	got := agg.AsOperation()
	if len(got.MetricValueSets) != 1 || len(got.MetricValueSets[0].MetricValues) != 1 {
		t.Fatalf("expected values with matching labels to merge into one, got %+v", got.MetricValueSets)
	}
	if *got.MetricValueSets[0].MetricValues[0].Int64Value != 3 {
		t.Fatalf("Int64Value = %d, want 3", *got.MetricValueSets[0].MetricValues[0].Int64Value)
	}
}

func TestAddAppendsValuesWithDifferentLabels(t *testing.T) {
	first := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "us"}, Int64Value: int64v(1)},
				},
			},
		},
	}
	agg := New(first, map[string]metricvalue.Kind{"library.googleapis.com/requests": metricvalue.KindDelta})

	second := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "eu"}, Int64Value: int64v(5)},
				},
			},
		},
	}
	if err := agg.Add(second); err != nil {
		t.Fatal(err)
	}

	got := agg.AsOperation()
	if len(got.MetricValueSets[0].MetricValues) != 2 {
		t.Fatalf("expected values with distinct labels to be kept separate, got %+v", got.MetricValueSets[0].MetricValues)
	}
}

func TestAddSumsByDefaultWhenKindsOmitsTheMetric(t *testing.T) {
	first := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "us"}, Int64Value: int64v(1)},
				},
			},
		},
	}
	agg := New(first, nil)

	second := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{
				MetricName: "library.googleapis.com/requests",
				MetricValues: []*sc.MetricValue{
					{Labels: map[string]string{"region": "us"}, Int64Value: int64v(2)},
				},
			},
		},
	}
	if err := agg.Add(second); err != nil {
		t.Fatal(err)
	}

	got := agg.AsOperation().MetricValueSets[0].MetricValues[0]
	if *got.Int64Value != 3 {
		t.Fatalf("Int64Value = %d, want 3 (default kind should be DELTA, not GAUGE keep-latest)", *got.Int64Value)
	}
}

func TestAddAppendsUnseenMetricNameWholesale(t *testing.T) {
	first := &sc.Operation{}
	agg := New(first, nil)

	second := &sc.Operation{
		MetricValueSets: []*sc.MetricValueSet{
			{MetricName: "library.googleapis.com/errors", MetricValues: []*sc.MetricValue{{Int64Value: int64v(1)}}},
		},
	}
	if err := agg.Add(second); err != nil {
		t.Fatal(err)
	}
	if len(agg.AsOperation().MetricValueSets) != 1 {
		t.Fatalf("expected the new metric-value set to be appended")
	}
}
