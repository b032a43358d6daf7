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

// Package report caches and aggregates ReportRequests. Each operation in
// an incoming request is merged, by signature, into a running
// operation.Aggregator; the merged operations are only sent on to the
// server when Flush is called.
package report

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/cache"
	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	"github.com/GoogleCloudPlatform/controlaggregator/metricvalue"
	"github.com/GoogleCloudPlatform/controlaggregator/operation"
	"github.com/GoogleCloudPlatform/controlaggregator/signing"
	sc "google.golang.org/api/servicecontrol/v1"
)

const importanceLow = "LOW"

// MaxOperationCount is the maximum number of operations Flush will pack
// into a single ReportRequest; larger flushes are split across several.
const MaxOperationCount = 1000

// Default tuning values, matching the reference implementation's
// ReportOptions defaults.
const (
	DefaultNumEntries    = 200
	DefaultFlushInterval = time.Second
)

// Options configures a report Aggregator's caching behavior.
type Options struct {
	NumEntries    int
	FlushInterval time.Duration
}

// DefaultOptions returns the reference tuning values for the Report cache.
func DefaultOptions() Options {
	return Options{NumEntries: DefaultNumEntries, FlushInterval: DefaultFlushInterval}
}

// ErrServiceNameMismatch is returned when a request names a service other
// than the one this Aggregator was built for.
var ErrServiceNameMismatch = errors.New("report: request service_name does not match aggregator")

// Aggregator caches and merges ReportRequests bound for a single service.
type Aggregator struct {
	serviceName string
	options     Options
	kinds       map[string]metricvalue.Kind
	clock       clock.Clock
	cache       *cache.Cache
}

// New builds a report Aggregator for serviceName. If opts.NumEntries <= 0,
// caching is disabled and Report always returns (false, nil), signaling
// the caller to send every request.
func New(serviceName string, opts Options, kinds map[string]metricvalue.Kind, c clock.Clock) *Aggregator {
	return &Aggregator{
		serviceName: serviceName,
		options:     opts,
		kinds:       kinds,
		clock:       c,
		cache: cache.New(cache.Options{
			NumEntries:    opts.NumEntries,
			FlushInterval: opts.FlushInterval,
		}, c),
	}
}

// ServiceName returns the service this aggregator was built for.
func (a *Aggregator) ServiceName() string { return a.serviceName }

// FlushInterval is the period the driver should call Flush at, or zero if
// caching is disabled.
func (a *Aggregator) FlushInterval() time.Duration {
	if a.cache == nil {
		return 0
	}
	return a.options.FlushInterval
}

// Report adds req's operations to the cache, merging each into any
// existing entry with the same signature. It returns true if req was
// cached (the caller need not send anything now) or false if the caller
// must send req to the server itself -- either because caching is
// disabled or because req carries a high-importance operation.
//
// If a single request names the same operation signature more than once,
// only the last of those operations is kept, matching the reference
// implementation's dict-keyed grouping.
func (a *Aggregator) Report(req *sc.ReportRequest) (bool, error) {
	if a.cache == nil {
		return false, nil
	}
	if req.ServiceName != a.serviceName {
		return false, ErrServiceNameMismatch
	}
	if anyImportant(req.Operations) {
		return false, nil
	}

	byKey := make(map[string]*sc.Operation, len(req.Operations))
	var order []string
	for _, op := range req.Operations {
		sig, err := signing.Report(op)
		if err != nil {
			return false, err
		}
		key := sigKey(sig)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = op
	}

	a.cache.Lock()
	defer a.cache.Unlock()

	for _, key := range order {
		op := byKey[key]
		v, ok := a.cache.Get(key)
		if !ok {
			a.cache.Set(key, operation.New(cloneOperation(op), a.kinds))
			continue
		}
		agg := v.(*operation.Aggregator)
		if err := agg.Add(op); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Flush returns the ReportRequests for operations that have fallen out of
// the cache since the last call, batched at MaxOperationCount operations
// per request. The driver should call this every FlushInterval.
func (a *Aggregator) Flush() []*sc.ReportRequest {
	if a.cache == nil {
		return nil
	}
	a.cache.Lock()
	defer a.cache.Unlock()

	a.cache.Sweep()
	drained := a.cache.Drain()
	ops := make([]*sc.Operation, 0, len(drained))
	for _, v := range drained {
		ops = append(ops, v.(*operation.Aggregator).AsOperation())
	}
	return batch(a.serviceName, ops)
}

// Clear returns the merged operations for every entry still live in the
// cache and empties it, discarding (without returning) anything already
// sitting in the out-queue.
func (a *Aggregator) Clear() []*sc.Operation {
	if a.cache == nil {
		return nil
	}
	a.cache.Lock()
	defer a.cache.Unlock()

	values := a.cache.Values()
	ops := make([]*sc.Operation, 0, len(values))
	for _, v := range values {
		ops = append(ops, v.(*operation.Aggregator).AsOperation())
	}
	a.cache.Clear()
	a.cache.Drain()
	return ops
}

func batch(serviceName string, ops []*sc.Operation) []*sc.ReportRequest {
	if len(ops) == 0 {
		return nil
	}
	var reqs []*sc.ReportRequest
	for i := 0; i < len(ops); i += MaxOperationCount {
		end := i + MaxOperationCount
		if end > len(ops) {
			end = len(ops)
		}
		reqs = append(reqs, &sc.ReportRequest{ServiceName: serviceName, Operations: ops[i:end]})
	}
	return reqs
}

// anyImportant reports whether any operation in ops is above LOW
// importance (an unset importance is the wire default, LOW). Spec: a
// request containing even one high-importance operation bypasses the cache
// entirely and is sent immediately, so that operation's policy effect isn't
// delayed behind the next flush.
func anyImportant(ops []*sc.Operation) bool {
	for _, op := range ops {
		if op.Importance != "" && op.Importance != importanceLow {
			return true
		}
	}
	return false
}

func sigKey(sig signing.Signature) string {
	return hex.EncodeToString(sig[:])
}

func cloneOperation(op *sc.Operation) *sc.Operation {
	clone := *op
	clone.MetricValueSets = append([]*sc.MetricValueSet(nil), op.MetricValueSets...)
	clone.LogEntries = append([]*sc.LogEntry(nil), op.LogEntries...)
	return &clone
}
