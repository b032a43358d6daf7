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

package quota

import (
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	sc "google.golang.org/api/servicecontrol/v1"
)

func req() *sc.AllocateQuotaRequest {
	return &sc.AllocateQuotaRequest{
		ServiceName: "library.googleapis.com",
		AllocateOperation: &sc.QuotaOperation{
			MethodName: "library.googleapis.com.Read",
			ConsumerId: "project:my-project",
		},
	}
}

func TestAllocateMissThenHitAfterAddResponse(t *testing.T) {
	mc := clock.NewMockClock()
	agg := New("library.googleapis.com", DefaultOptions(), mc)

	r := req()
	resp, err := agg.Allocate(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected a cache miss for an unseen request")
	}

	want := &sc.AllocateQuotaResponse{}
	if err := agg.AddResponse(r, want); err != nil {
		t.Fatal(err)
	}

	got, err := agg.Allocate(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("expected the cached response to be served")
	}
}

func TestAllocateSignalsRefreshOnceStale(t *testing.T) {
	mc := clock.NewMockClock()
	opts := Options{NumEntries: 10, FlushInterval: 100 * time.Millisecond, Expiration: time.Second}
	agg := New("library.googleapis.com", opts, mc)

	r := req()
	agg.AddResponse(r, &sc.AllocateQuotaResponse{})

	mc.SetNow(mc.Now().Add(200 * time.Millisecond))
	resp, err := agg.Allocate(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected nil to signal the caller should refresh once stale")
	}
}

func TestAllocateRejectsServiceNameMismatch(t *testing.T) {
	agg := New("library.googleapis.com", DefaultOptions(), clock.NewMockClock())
	r := req()
	r.ServiceName = "other.googleapis.com"
	if _, err := agg.Allocate(r); err != ErrServiceNameMismatch {
		t.Fatalf("expected ErrServiceNameMismatch, got %v", err)
	}
}

func TestSignIgnoresQuotaMetrics(t *testing.T) {
	a := &sc.QuotaOperation{MethodName: "m", ConsumerId: "c", QuotaMetrics: []*sc.MetricValueSet{{MetricName: "x"}}}
	b := &sc.QuotaOperation{MethodName: "m", ConsumerId: "c"}
	sa, err := Sign(a)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := Sign(b)
	if err != nil {
		t.Fatal(err)
	}
	if sa != sb {
		t.Fatalf("expected signature to be blind to quota_metrics")
	}
}
