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

// Package stats records the outcome of the client's calls to the service
// control transport, both direct sends and flushes of cached aggregator
// state.
package stats

import "time"

// Kind identifies which cache a flush outcome belongs to.
type Kind int

const (
	KindCheck Kind = iota
	KindQuota
	KindReport
)

func (k Kind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindQuota:
		return "quota"
	case KindReport:
		return "report"
	default:
		return "unknown"
	}
}

// A Recorder records the result of transport calls so that callers can
// observe the aggregator's health without inspecting the transport
// directly.
//
// Recorder expects the following flow: the client (see package client)
// calls Record once per outbound transport call it makes, whether sending
// a request directly or draining a cache's out-queue, passing the error
// returned by the transport, if any; it also calls Record with the error
// when an aggregator rejects a request before any transport call.
type Recorder interface {
	Record(kind Kind, err error)
	Snapshot() Snapshot
}

// KindStats holds the counters tracked for a single Kind.
type KindStats struct {
	Flushes     int64
	Failures    int64
	LastSuccess time.Time
}

// Snapshot is a point-in-time copy of a Recorder's counters.
type Snapshot struct {
	PerKind map[Kind]KindStats
}

type noopRecorder struct{}

// NewNoopRecorder returns a Recorder that discards everything it's given.
func NewNoopRecorder() Recorder { return noopRecorder{} }

func (noopRecorder) Record(Kind, error) {}
func (noopRecorder) Snapshot() Snapshot { return Snapshot{} }
