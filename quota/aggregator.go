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

// Package quota caches AllocateQuotaResponses, refreshing them on the same
// schedule as package check's CheckResponses: a cached allocation is
// served as-is until it goes stale, at which point the next call signals
// the caller to refresh while continuing to serve the last-known decision
// in the meantime.
//
// Unlike package check, quota allocations aren't merged across calls --
// each AllocateQuotaRequest names its own cost, so there's nothing
// equivalent to the Check or Report operation aggregator here. A request
// that reuses the signature of a live cache entry simply refreshes it.
package quota

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/cache"
	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	sc "google.golang.org/api/servicecontrol/v1"
)

// Default tuning values, matching the reference implementation's
// QuotaOptions defaults.
const (
	DefaultNumEntries    = 1000
	DefaultFlushInterval = time.Second
	DefaultExpiration    = time.Minute
)

// Options configures a quota Aggregator's caching behavior.
type Options struct {
	NumEntries    int
	FlushInterval time.Duration
	Expiration    time.Duration
}

// DefaultOptions returns the reference tuning values for the Quota cache.
func DefaultOptions() Options {
	return Options{NumEntries: DefaultNumEntries, FlushInterval: DefaultFlushInterval, Expiration: DefaultExpiration}
}

func (o Options) normalized() Options {
	if o.Expiration <= o.FlushInterval {
		o.Expiration = o.FlushInterval + time.Millisecond
	}
	return o
}

// ErrServiceNameMismatch is returned when a request names a service other
// than the one this Aggregator was built for.
var ErrServiceNameMismatch = errors.New("quota: request service_name does not match aggregator")

// ErrNoOperation is returned when an AllocateQuotaRequest has no
// allocate_operation set.
var ErrNoOperation = errors.New("quota: request has no allocate_operation")

// Aggregator caches AllocateQuotaResponses for a single service.
type Aggregator struct {
	serviceName string
	options     Options
	clock       clock.Clock
	cache       *cache.Cache
}

type cachedItem struct {
	response      *sc.AllocateQuotaResponse
	lastCheckTime time.Time
	isFlushing    bool
	// quotaScale mirrors CachedItem.quota_scale from the Check cache. It's
	// not read anywhere yet -- quota scaling based on sampled allocations
	// isn't implemented -- but the field exists so that behavior can be
	// added without changing the cache entry's shape.
	quotaScale int
}

// New builds a quota Aggregator for serviceName. If opts.NumEntries <= 0,
// caching is disabled and Allocate always returns (nil, nil), signaling
// the caller to send every request.
func New(serviceName string, opts Options, c clock.Clock) *Aggregator {
	opts = opts.normalized()
	return &Aggregator{
		serviceName: serviceName,
		options:     opts,
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

// FlushInterval returns the cache's expiration, or zero if caching is
// disabled, mirroring check.Aggregator.FlushInterval. The quota Aggregator
// has no Flush method, so nothing is scheduled on this period.
func (a *Aggregator) FlushInterval() time.Duration {
	if a.cache == nil {
		return 0
	}
	return a.options.Expiration
}

// Allocate looks for a cached response to req. It returns (nil, nil) when
// the caller should send req to the server itself.
func (a *Aggregator) Allocate(req *sc.AllocateQuotaRequest) (*sc.AllocateQuotaResponse, error) {
	if a.cache == nil {
		return nil, nil
	}
	if req.ServiceName != a.serviceName {
		return nil, ErrServiceNameMismatch
	}
	qop := req.AllocateOperation
	if qop == nil {
		return nil, ErrNoOperation
	}

	sig, err := Sign(qop)
	if err != nil {
		return nil, err
	}
	key := sigKey(sig)

	a.cache.Lock()
	defer a.cache.Unlock()

	v, ok := a.cache.Get(key)
	if !ok {
		return nil, nil
	}
	item := v.(*cachedItem)
	now := a.clock.Now()
	if a.isCurrent(item, now) {
		return item.response, nil
	}
	if item.isFlushing {
		item.isFlushing = false // no refresh round-trip to wait for; just re-arm
	}
	item.lastCheckTime = now
	return nil, nil
}

func (a *Aggregator) isCurrent(item *cachedItem, now time.Time) bool {
	return now.Sub(item.lastCheckTime) < a.options.FlushInterval
}

// AddResponse records resp as the cached answer for req's allocate
// operation.
func (a *Aggregator) AddResponse(req *sc.AllocateQuotaRequest, resp *sc.AllocateQuotaResponse) error {
	if a.cache == nil {
		return nil
	}
	sig, err := Sign(req.AllocateOperation)
	if err != nil {
		return err
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

// Clear empties the cache.
func (a *Aggregator) Clear() {
	if a.cache == nil {
		return
	}
	a.cache.Lock()
	defer a.cache.Unlock()
	a.cache.Clear()
	a.cache.Drain()
}

func sigKey(sig [16]byte) string {
	return hex.EncodeToString(sig[:])
}
