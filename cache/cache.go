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

// Package cache implements the bounded, evicting cache shared by the Check,
// Quota, and Report aggregators. Depending on Options it runs in one of two
// modes: a TTL cache, where entries expire after a fixed duration, or an LRU
// cache, where the least-recently-used entry is evicted once the cache is
// full. Either way, whatever falls out of the cache by expiry or by LRU
// eviction lands in an out-queue that the caller drains; values removed by
// Clear are returned to its caller instead.
//
// A Cache exposes Lock/Unlock rather than locking itself around each
// method, so that a caller can run a whole read-modify-write sequence (the
// "refresh or serve" decisions in package check and package quota) inside
// one critical section, the way the reference implementation's
// LockedObject gives callers a single lock to hold across a multi-step
// operation.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
)

// Options configures the eviction policy of a Cache.
type Options struct {
	// NumEntries is the maximum number of entries the cache holds. A value
	// <= 0 means caching is disabled entirely; New returns nil in that case.
	NumEntries int
	// FlushInterval, when > 0, selects TTL mode: entries are evicted
	// FlushInterval (or Expiration, if larger) after being set.
	// FlushInterval == 0 selects LRU mode: entries are evicted only when
	// the cache is over capacity, oldest-accessed first.
	FlushInterval time.Duration
	// Expiration, if larger than FlushInterval, is used as the TTL instead
	// of FlushInterval. Ignored in LRU mode.
	Expiration time.Duration
}

func (o Options) ttl() time.Duration {
	if o.Expiration > o.FlushInterval {
		return o.Expiration
	}
	return o.FlushInterval
}

// Cache is a bounded map with TTL-or-LRU eviction and an out-queue of
// evicted values. The zero value is not usable; construct with New.
type Cache struct {
	mu sync.Mutex

	clock      clock.Clock
	maxEntries int
	ttl        time.Duration // zero means LRU mode

	items map[string]*list.Element
	order *list.List // front = oldest (ttl mode) / least-recently-used (lru mode)
	out   []interface{}
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// New returns a Cache configured by o, or nil if o.NumEntries <= 0 --
// callers must treat a nil *Cache as "caching is disabled" and bypass it.
func New(o Options, c clock.Clock) *Cache {
	if o.NumEntries <= 0 {
		return nil
	}
	return &Cache{
		clock:      c,
		maxEntries: o.NumEntries,
		ttl:        o.ttl(),
		items:      make(map[string]*list.Element, o.NumEntries),
		order:      list.New(),
	}
}

// Lock acquires the cache's lock. Every method below assumes the caller
// holds it.
func (c *Cache) Lock() { c.mu.Lock() }

// Unlock releases the cache's lock.
func (c *Cache) Unlock() { c.mu.Unlock() }

// Get returns the value stored under key, first sweeping any entries that
// have expired (in TTL mode) into the out-queue. In LRU mode, a successful
// Get marks key as most-recently-used.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.sweep()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.ttl == 0 {
		c.order.MoveToBack(el)
	}
	return el.Value.(*entry).value, true
}

// Set stores value under key, evicting the oldest entry into the out-queue
// if the cache is at capacity. If key is already present, its value and
// (in TTL mode) expiry are refreshed and it is moved to the back of the
// eviction order.
func (c *Cache) Set(key string, value interface{}) {
	c.sweep()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		if c.ttl > 0 {
			e.expiresAt = c.clock.Now().Add(c.ttl)
		}
		c.order.MoveToBack(el)
		return
	}

	if len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	e := &entry{key: key, value: value}
	if c.ttl > 0 {
		e.expiresAt = c.clock.Now().Add(c.ttl)
	}
	el := c.order.PushBack(e)
	c.items[key] = el
}

// Delete removes key from the cache without adding it to the out-queue.
func (c *Cache) Delete(key string) {
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of live entries, after sweeping expired ones.
func (c *Cache) Len() int {
	c.sweep()
	return len(c.items)
}

// Values returns every live value in the cache, after sweeping expired
// ones, in eviction order (oldest/least-recently-used first).
func (c *Cache) Values() []interface{} {
	c.sweep()
	values := make([]interface{}, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		values = append(values, el.Value.(*entry).value)
	}
	return values
}

// Clear first sweeps expired entries (TTL mode) into the out-queue, then
// removes every remaining entry and returns their values. It does not
// drain the out-queue; call Drain separately if its contents should also
// be collected.
func (c *Cache) Clear() []interface{} {
	values := c.Values()
	c.items = make(map[string]*list.Element, c.maxEntries)
	c.order = list.New()
	return values
}

// Drain empties and returns the out-queue of values evicted since the last
// call to Drain. It does not itself check for newly expired entries --
// call Sweep first if the cache hasn't been touched by Get/Set recently.
func (c *Cache) Drain() []interface{} {
	out := c.out
	c.out = nil
	return out
}

// Sweep moves any now-expired entries (TTL mode only) into the out-queue.
// It's a no-op in LRU mode, where entries are only evicted on overflow.
func (c *Cache) Sweep() {
	c.sweep()
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.items, e.key)
	c.out = append(c.out, e.value)
}

// sweep evicts expired entries into the out-queue. A no-op in LRU mode.
// Entries are appended to order in expiry order, so it is enough to pop
// from the front until a live entry is found.
func (c *Cache) sweep() {
	if c.ttl == 0 {
		return
	}
	now := c.clock.Now()
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*entry)
		if now.Before(e.expiresAt) {
			return
		}
		c.order.Remove(front)
		delete(c.items, e.key)
		c.out = append(c.out, e.value)
	}
}
