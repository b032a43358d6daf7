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

package quota

import (
	"crypto/md5"
	"errors"
	"sort"

	sc "google.golang.org/api/servicecontrol/v1"
)

// ErrNotInitialized is returned when a QuotaOperation is missing the
// fields a signature requires.
var ErrNotInitialized = errors.New("quota: operation must have method_name and consumer_id set")

// Sign computes the signature used to key the quota cache, following the
// same convention as package signing's Check: it hashes identity (method
// name, consumer, labels) but never the requested quota amounts, so that
// repeated allocations for the same caller/method/labels combination
// share one cache entry regardless of how much quota each one asks for.
func Sign(qop *sc.QuotaOperation) ([16]byte, error) {
	if qop == nil || qop.MethodName == "" || qop.ConsumerId == "" {
		return [16]byte{}, ErrNotInitialized
	}
	h := md5.New()
	h.Write([]byte(qop.MethodName))
	h.Write([]byte{0x00})
	h.Write([]byte(qop.ConsumerId))
	if len(qop.Labels) > 0 {
		keys := make([]string, 0, len(qop.Labels))
		for k := range qop.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{0x00})
			h.Write([]byte(qop.Labels[k]))
			h.Write([]byte{0x00})
		}
	}
	var sig [16]byte
	copy(sig[:], h.Sum(nil))
	return sig, nil
}
