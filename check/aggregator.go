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

// Package check caches and aggregates CheckRequests.
//
// Check determines whether a CheckRequest can be answered from the cache
// without a round trip. A cache hit whose response carries errors is
// assumed to apply to the new request too, so it's returned as-is -- but
// once the entry goes stale, the next Check triggers a refresh while
// continuing to serve the stale (denying) response to callers in the
// meantime. A cache hit with no errors merges the new request's operation
// into the cached entry and is refreshed the same way once stale.
package check

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/cache"
	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	"github.com/GoogleCloudPlatform/controlaggregator/metricvalue"
	"github.com/GoogleCloudPlatform/controlaggregator/operation"
	"github.com/GoogleCloudPlatform/controlaggregator/signing"
	"github.com/golang/glog"
	sc "google.golang.org/api/servicecontrol/v1"
)

const importanceLow = "LOW"

// Default tuning values, matching the reference implementation's
// CheckOptions defaults.
const (
	DefaultNumEntries    = 200
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultExpiration    = time.Second
)

// Options configures a check Aggregator's caching behavior.
type Options struct {
	NumEntries    int
	FlushInterval time.Duration
	Expiration    time.Duration
}

// DefaultOptions returns the reference tuning values for the Check cache.
func DefaultOptions() Options {
	return Options{
		NumEntries:    DefaultNumEntries,
		FlushInterval: DefaultFlushInterval,
		Expiration:    DefaultExpiration,
	}
}

// normalized forces Expiration to be strictly greater than FlushInterval,
// since an expiration that isn't longer than the flush interval would
// evict entries before there was any chance to aggregate into them.
func (o Options) normalized() Options {
	if o.Expiration <= o.FlushInterval {
		o.Expiration = o.FlushInterval + time.Millisecond
	}
	return o
}

// ErrServiceNameMismatch is returned when a request names a service other
// than the one this Aggregator was built for.
var ErrServiceNameMismatch = errors.New("check: request service_name does not match aggregator")

// ErrNoOperation is returned when a CheckRequest has no operation set.
var ErrNoOperation = errors.New("check: request has no operation")

// Aggregator caches and merges CheckRequests bound for a single service.
type Aggregator struct {
	serviceName string
	options     Options
	kinds       map[string]metricvalue.Kind
	clock       clock.Clock
	cache       *cache.Cache
}

type cachedItem struct {
	response      *sc.CheckResponse
	lastCheckTime time.Time
	isFlushing    bool
	aggregator    *operation.Aggregator
}

// New builds a check Aggregator for serviceName. kinds maps metric name to
// MetricKind for merging operations aggregated while a cached response is
// reused. If opts.NumEntries <= 0, caching is disabled and Check always
// returns (nil, nil), signaling the caller to send every request.
func New(serviceName string, opts Options, kinds map[string]metricvalue.Kind, c clock.Clock) *Aggregator {
	opts = opts.normalized()
	return &Aggregator{
		serviceName: serviceName,
		options:     opts,
		kinds:       kinds,
		clock:       c,
		cache: cache.New(cache.Options{
			NumEntries:    opts.NumEntries,
			FlushInterval: opts.FlushInterval,
			Expiration:    opts.Expiration,
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
	return a.options.Expiration
}

// Check looks for a cached response to req. It returns (nil, nil) when the
// caller should send req to the server itself -- either because caching is
// disabled, req is high-importance, or there is no cache entry yet.
func (a *Aggregator) Check(req *sc.CheckRequest) (*sc.CheckResponse, error) {
	if a.cache == nil {
		return nil, nil
	}
	if req.ServiceName != a.serviceName {
		return nil, ErrServiceNameMismatch
	}
	op := req.Operation
	if op == nil {
		return nil, ErrNoOperation
	}
	// An unset importance is the wire default, LOW.
	if op.Importance != "" && op.Importance != importanceLow {
		return nil, nil
	}

	sig, err := signing.Check(op)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	key := sigKey(sig)

	a.cache.Lock()
	defer a.cache.Unlock()

	v, ok := a.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return a.handleCachedResponse(req, v.(*cachedItem))
}

func (a *Aggregator) handleCachedResponse(req *sc.CheckRequest, item *cachedItem) (*sc.CheckResponse, error) {
	now := a.clock.Now()
	if len(item.response.CheckErrors) > 0 {
		if a.isCurrent(item, now) {
			return item.response, nil
		}
		item.lastCheckTime = now
		return nil, nil
	}

	if item.aggregator == nil {
		item.aggregator = operation.New(cloneOperation(req.Operation), a.kinds)
	} else if err := item.aggregator.Add(req.Operation); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	if a.isCurrent(item, now) {
		return item.response, nil
	}

	if item.isFlushing {
		glog.Warningf("check: last refresh for a cached entry did not complete before it went stale again")
	}
	item.isFlushing = true
	item.lastCheckTime = now
	return nil, nil
}

func (a *Aggregator) isCurrent(item *cachedItem, now time.Time) bool {
	return now.Sub(item.lastCheckTime) < a.options.FlushInterval
}

// AddResponse records resp as the cached answer for req's operation,
// creating a new cache entry or refreshing an existing one.
func (a *Aggregator) AddResponse(req *sc.CheckRequest, resp *sc.CheckResponse) error {
	if a.cache == nil {
		return nil
	}
	sig, err := signing.Check(req.Operation)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	key := sigKey(sig)

	a.cache.Lock()
	defer a.cache.Unlock()

	now := a.clock.Now()
	v, ok := a.cache.Get(key)
	if !ok {
		a.cache.Set(key, &cachedItem{response: resp, lastCheckTime: now})
		return nil
	}
	item := v.(*cachedItem)
	item.lastCheckTime = now
	item.response = resp
	item.isFlushing = false
	a.cache.Set(key, item)
	return nil
}

// Flush returns the CheckRequests for entries that have fallen out of the
// cache (by expiry or by eviction) and have pending merged operations to
// report. The driver should call this every FlushInterval.
func (a *Aggregator) Flush() []*sc.CheckRequest {
	if a.cache == nil {
		return nil
	}
	a.cache.Lock()
	defer a.cache.Unlock()

	a.cache.Sweep()
	drained := a.cache.Drain()
	var reqs []*sc.CheckRequest
	for _, v := range drained {
		item := v.(*cachedItem)
		if item.aggregator == nil {
			continue
		}
		reqs = append(reqs, &sc.CheckRequest{Operation: item.aggregator.AsOperation()})
	}
	return reqs
}

// Clear empties the cache, discarding any pending merged operations.
func (a *Aggregator) Clear() {
	if a.cache == nil {
		return
	}
	a.cache.Lock()
	defer a.cache.Unlock()
	a.cache.Clear()
	a.cache.Drain()
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
