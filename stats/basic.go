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
	"sync"

	"github.com/GoogleCloudPlatform/controlaggregator/clock"
)

// Basic is an in-memory Recorder. All counters reset when the process
// restarts; nothing here persists across restarts.
type Basic struct {
	clock clock.Clock
	mutex sync.Mutex
	kinds map[Kind]KindStats
}

// NewBasic creates a Basic recorder using the real wall clock.
func NewBasic() *Basic {
	return newBasic(clock.NewRealClock())
}

func newBasic(c clock.Clock) *Basic {
	return &Basic{clock: c, kinds: make(map[Kind]KindStats)}
}

func (b *Basic) Record(kind Kind, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	ks := b.kinds[kind]
	ks.Flushes++
	if err != nil {
		ks.Failures++
	} else {
		ks.LastSuccess = b.clock.Now()
	}
	b.kinds[kind] = ks
}

func (b *Basic) Snapshot() Snapshot {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	cp := make(map[Kind]KindStats, len(b.kinds))
	for k, v := range b.kinds {
		cp[k] = v
	}
	return Snapshot{PerKind: cp}
}
