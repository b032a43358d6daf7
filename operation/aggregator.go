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

// Package operation merges repeated observations of the same logical
// Operation (same signature) into one. It widens the time window, appends
// log entries, and merges metric values set by set, value by value,
// dispatching to package metricvalue for the actual value combination.
package operation

import (
	"fmt"

	"github.com/GoogleCloudPlatform/controlaggregator/metricvalue"
	sc "google.golang.org/api/servicecontrol/v1"
)

// Aggregator accumulates successive Operations that share a cache
// signature into a single merged Operation.
type Aggregator struct {
	kinds map[string]metricvalue.Kind
	op    *sc.Operation
}

// New starts a new Aggregator from op. kinds maps metric name to the
// MetricKind that governs how its values merge; a metric absent from kinds
// is treated as DELTA, matching the convention used when no descriptor is
// available.
func New(op *sc.Operation, kinds map[string]metricvalue.Kind) *Aggregator {
	return &Aggregator{kinds: kinds, op: op}
}

// Add merges latest into the aggregator's running Operation.
func (a *Aggregator) Add(latest *sc.Operation) error {
	a.op.LogEntries = append(a.op.LogEntries, latest.LogEntries...)
	widenTimestamps(a.op, latest)

	merged, err := mergeValueSets(a.kinds, a.op.MetricValueSets, latest.MetricValueSets)
	if err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	a.op.MetricValueSets = merged
	return nil
}

// AsOperation returns the current merged result. The returned value
// aliases the Aggregator's internal state and must not be mutated by the
// caller.
func (a *Aggregator) AsOperation() *sc.Operation {
	return a.op
}

func widenTimestamps(into, from *sc.Operation) {
	if from.StartTime != "" && (into.StartTime == "" || from.StartTime < into.StartTime) {
		into.StartTime = from.StartTime
	}
	if from.EndTime != "" && (into.EndTime == "" || from.EndTime > into.EndTime) {
		into.EndTime = from.EndTime
	}
}

// mergeValueSets merges latest's metric-value sets into prior's. A set
// with a metric name not already present in prior is appended wholesale;
// otherwise each of its values is merged by matching label set, falling
// back to appending a value whose labels don't match any existing one.
func mergeValueSets(kinds map[string]metricvalue.Kind, prior, latest []*sc.MetricValueSet) ([]*sc.MetricValueSet, error) {
	byName := make(map[string]*sc.MetricValueSet, len(prior))
	var order []string
	for _, vs := range prior {
		byName[vs.MetricName] = vs
		order = append(order, vs.MetricName)
	}

	for _, vs := range latest {
		existing, ok := byName[vs.MetricName]
		if !ok {
			byName[vs.MetricName] = vs
			order = append(order, vs.MetricName)
			continue
		}
		kind, ok := kinds[vs.MetricName]
		if !ok {
			kind = metricvalue.KindDelta
		}
		for _, mv := range vs.MetricValues {
			if err := mergeValueIntoSet(kind, existing, mv); err != nil {
				return nil, err
			}
		}
	}

	result := make([]*sc.MetricValueSet, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result, nil
}

func mergeValueIntoSet(kind metricvalue.Kind, set *sc.MetricValueSet, latest *sc.MetricValue) error {
	for i, existing := range set.MetricValues {
		if labelsEqual(existing.Labels, latest.Labels) {
			merged, err := metricvalue.Merge(kind, existing, latest)
			if err != nil {
				return err
			}
			set.MetricValues[i] = merged
			return nil
		}
	}
	set.MetricValues = append(set.MetricValues, latest)
	return nil
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
