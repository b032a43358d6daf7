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

// Package metricvalue merges pairs of MetricValue, dispatching on the
// MetricKind that governs how a metric's samples combine: GAUGE and
// CUMULATIVE values keep whichever observation ends later, DELTA values
// sum (or, for distributions, merge their histograms).
package metricvalue

import (
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/controlaggregator/distribution"
	sc "google.golang.org/api/servicecontrol/v1"
)

// Kind mirrors the MetricKind enum carried by a service's metric
// descriptors (google.api.MetricDescriptor.MetricKind). The aggregator
// doesn't have descriptors available at merge time, so callers supply it
// out of band, as the kinds map passed to check.New, report.New, and
// client.New.
type Kind string

const (
	KindUnspecified Kind = "METRIC_KIND_UNSPECIFIED"
	KindDelta       Kind = "DELTA"
	KindGauge       Kind = "GAUGE"
	KindCumulative  Kind = "CUMULATIVE"
)

// ErrIncompatibleValues is returned when prior and latest carry different
// oneof variants, or neither carries a recognized one.
var ErrIncompatibleValues = errors.New("metricvalue: incompatible or unrecognized metric value types")

// ErrUnmergeable is returned by Merge when kind is DELTA and the value type
// has no sum operation defined (bool_value, string_value).
var ErrUnmergeable = errors.New("metricvalue: metric type cannot be merged as a delta")

// Merge combines prior into latest according to kind and returns the
// resulting value. For GAUGE and CUMULATIVE metrics this is whichever of
// the two has the later end_time; for DELTA metrics, prior and latest are
// summed (bucket-merged, for distributions) and latest's start/end time is
// widened to cover both.
func Merge(kind Kind, prior, latest *sc.MetricValue) (*sc.MetricValue, error) {
	priorVariant, err := detect(prior)
	if err != nil {
		return nil, err
	}
	latestVariant, err := detect(latest)
	if err != nil {
		return nil, err
	}
	if priorVariant != latestVariant {
		return nil, ErrIncompatibleValues
	}

	if kind == KindDelta {
		return mergeDelta(priorVariant, prior, latest)
	}
	return mergeGaugeOrCumulative(prior, latest), nil
}

func mergeGaugeOrCumulative(prior, latest *sc.MetricValue) *sc.MetricValue {
	if latest.EndTime >= prior.EndTime {
		return latest
	}
	return prior
}

func mergeDelta(variant string, prior, latest *sc.MetricValue) (*sc.MetricValue, error) {
	widenDeltaTimestamps(prior, latest)
	switch variant {
	case "int64_value":
		sum := *prior.Int64Value + *latest.Int64Value
		latest.Int64Value = &sum
	case "double_value":
		sum := *prior.DoubleValue + *latest.DoubleValue
		latest.DoubleValue = &sum
	case "distribution_value":
		if err := distribution.Merge(prior.DistributionValue, latest.DistributionValue); err != nil {
			return nil, fmt.Errorf("metricvalue: %w", err)
		}
	default:
		return nil, ErrUnmergeable
	}
	return latest, nil
}

func widenDeltaTimestamps(prior, latest *sc.MetricValue) {
	if prior.StartTime != "" && (latest.StartTime == "" || prior.StartTime < latest.StartTime) {
		latest.StartTime = prior.StartTime
	}
	if prior.EndTime != "" && (latest.EndTime == "" || prior.EndTime > latest.EndTime) {
		latest.EndTime = prior.EndTime
	}
}

// detect identifies which oneof-style variant mv carries. It returns an
// error if none is set, since a MetricValue without a value can't be
// merged or compared.
func detect(mv *sc.MetricValue) (string, error) {
	switch {
	case mv.Int64Value != nil:
		return "int64_value", nil
	case mv.DoubleValue != nil:
		return "double_value", nil
	case mv.DistributionValue != nil:
		return "distribution_value", nil
	case mv.StringValue != nil:
		return "string_value", nil
	case mv.BoolValue != nil:
		return "bool_value", nil
	default:
		return "", ErrIncompatibleValues
	}
}
