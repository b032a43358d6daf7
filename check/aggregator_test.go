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

package check

import (
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	sc "google.golang.org/api/servicecontrol/v1"
)

func req() *sc.CheckRequest {
	return &sc.CheckRequest{
		ServiceName: "library.googleapis.com",
		Operation: &sc.Operation{
			OperationName: "library.googleapis.com.Read",
			ConsumerId:    "project:my-project",
		},
	}
}

func TestCheckMissThenHitAfterAddResponse(t *testing.T) {
	mc := clock.NewMockClock()
	agg := New("library.googleapis.com", DefaultOptions(), nil, mc)

	r := req()
	resp, err := agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected a cache miss for an unseen request")
	}

	want := &sc.CheckResponse{}
	if err := agg.AddResponse(r, want); err != nil {
		t.Fatal(err)
	}

	got, err := agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("expected the cached response to be served")
	}
}

func TestCheckBypassesCacheForHighImportance(t *testing.T) {
	mc := clock.NewMockClock()
	agg := New("library.googleapis.com", DefaultOptions(), nil, mc)

	r := req()
	r.Operation.Importance = "HIGH"
	resp, err := agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected high-importance requests to bypass the cache")
	}
}

func TestCheckServesDenyingResponseWhileRefreshIsInFlight(t *testing.T) {
	mc := clock.NewMockClock()
	opts := Options{NumEntries: 10, FlushInterval: 100 * time.Millisecond, Expiration: time.Second}
	agg := New("library.googleapis.com", opts, nil, mc)

	r := req()
	deny := &sc.CheckResponse{CheckErrors: []*sc.CheckError{{Code: "RESOURCE_EXHAUSTED"}}}
	if err := agg.AddResponse(r, deny); err != nil {
		t.Fatal(err)
	}

	// Still current: served from cache, no refresh requested.
	resp, err := agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != deny {
		t.Fatalf("expected cached deny response")
	}

	// Advance past flush_interval: entry goes stale, a refresh is signaled.
	mc.SetNow(mc.Now().Add(200 * time.Millisecond))
	resp, err = agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Fatalf("expected nil to signal caller should refresh")
	}

	// Subsequent checks keep serving the stale deny response until refreshed.
	resp, err = agg.Check(r)
	if err != nil {
		t.Fatal(err)
	}
	if resp != deny {
		t.Fatalf("expected the stale deny response to keep being served")
	}
}

func TestCheckRejectsServiceNameMismatch(t *testing.T) {
	agg := New("library.googleapis.com", DefaultOptions(), nil, clock.NewMockClock())
	r := req()
	r.ServiceName = "other.googleapis.com"
	if _, err := agg.Check(r); err != ErrServiceNameMismatch {
		t.Fatalf("expected ErrServiceNameMismatch, got %v", err)
	}
}

func TestFlushReturnsRequestsForExpiredEntriesWithPendingMerges(t *testing.T) {
	mc := clock.NewMockClock()
	opts := Options{NumEntries: 10, FlushInterval: 100 * time.Millisecond, Expiration: time.Second}
	agg := New("library.googleapis.com", opts, nil, mc)

	r := req()
	ok := &sc.CheckResponse{}
	if err := agg.AddResponse(r, ok); err != nil {
		t.Fatal(err)
	}
	// Merge a second observation in while the entry is still current.
	if _, err := agg.Check(r); err != nil {
		t.Fatal(err)
	}

	mc.SetNow(mc.Now().Add(2 * time.Second)) // past expiration
	reqs := agg.Flush()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 flushed request, got %d", len(reqs))
	}
}

func TestClearDropsPendingState(t *testing.T) {
	mc := clock.NewMockClock()
	agg := New("library.googleapis.com", DefaultOptions(), nil, mc)
	r := req()
	agg.AddResponse(r, &sc.CheckResponse{})
	agg.Clear()
	if reqs := agg.Flush(); len(reqs) != 0 {
		t.Fatalf("expected no pending flush after Clear, got %d", len(reqs))
	}
}
