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

// Package scheduler drives the periodic flush of a check, quota, or report
// Aggregator. It runs in one of two modes: Start spawns a goroutine that
// calls the flush function on a timer, the way the reference pipeline's
// aggregator actor loop fires on its own channel-select timer; Pump does
// the same work without a background goroutine, for embedders that want
// to stay single-threaded and instead call Pump from their own request
// path whenever it's convenient to check whether a flush is due.
package scheduler

import (
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
)

// Scheduler calls a flush function no more often than every interval.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	flush    func()

	mu       sync.Mutex
	lastRun  time.Time
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// New builds a Scheduler that calls flush roughly every interval. Nothing
// runs until Start or Pump is called.
func New(interval time.Duration, flush func(), c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:    c,
		interval: interval,
		flush:    flush,
		lastRun:  c.Now(),
	}
}

// Start spawns a goroutine that calls the flush function every interval,
// until Stop is called. Each flush is due one interval after the previous
// one (or after New, for the first). Start is a no-op if the scheduler is
// already running or interval <= 0.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.interval <= 0 {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
}

// Stop signals the background goroutine to exit and waits for it. Stop is
// idempotent: calling it on a scheduler that was never started, or was
// already stopped, is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		next := s.lastRun.Add(s.interval)
		s.mu.Unlock()
		timer := s.clock.NewTimerAt(next)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.GetC():
			s.flush()
			s.mu.Lock()
			s.lastRun = s.clock.Now()
			s.mu.Unlock()
		}
	}
}

// Pump runs the flush function if at least interval has elapsed since the
// last flush (whether that flush happened via Start's goroutine or a
// previous Pump call), and reports whether it did. It's meant for
// embedders that drive the aggregator from their own single-threaded
// request loop instead of running a background goroutine; such callers
// should not also call Start.
func (s *Scheduler) Pump() bool {
	s.mu.Lock()
	now := s.clock.Now()
	if now.Sub(s.lastRun) < s.interval {
		s.mu.Unlock()
		return false
	}
	s.lastRun = now
	s.mu.Unlock()

	s.flush()
	return true
}
