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

package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
)

func TestBasicRecordsSuccessAndFailure(t *testing.T) {
	mc := clock.NewMockClock()
	b := newBasic(mc)

	mc.SetNow(time.Unix(1000, 0))
	b.Record(KindCheck, nil)

	snap := b.Snapshot()
	ks := snap.PerKind[KindCheck]
	if ks.Flushes != 1 || ks.Failures != 0 {
		t.Fatalf("unexpected stats after success: %+v", ks)
	}
	if want, got := time.Unix(1000, 0), ks.LastSuccess; want != got {
		t.Fatalf("LastSuccess: want=%v, got=%v", want, got)
	}

	mc.SetNow(time.Unix(1100, 0))
	b.Record(KindCheck, errors.New("transport down"))

	snap = b.Snapshot()
	ks = snap.PerKind[KindCheck]
	if ks.Flushes != 2 || ks.Failures != 1 {
		t.Fatalf("unexpected stats after failure: %+v", ks)
	}
	// LastSuccess does not advance on failure.
	if want, got := time.Unix(1000, 0), ks.LastSuccess; want != got {
		t.Fatalf("LastSuccess after failure: want=%v, got=%v", want, got)
	}

	// Kinds are tracked independently.
	b.Record(KindReport, nil)
	snap = b.Snapshot()
	if snap.PerKind[KindReport].Flushes != 1 {
		t.Fatalf("expected report kind to be tracked independently: %+v", snap.PerKind)
	}
	if snap.PerKind[KindCheck].Flushes != 2 {
		t.Fatalf("recording a different kind should not affect check stats: %+v", snap.PerKind)
	}
}
