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

// Package signing computes deterministic fingerprints of an Operation used
// to key the Check and Report caches. Two Operations with equal signatures
// are eligible for aggregation; the signature deliberately ignores whatever
// it doesn't need for identity so that unrelated observations of the same
// logical call collapse into one cache entry.
package signing

import (
	"crypto/md5"
	"errors"
	"hash"
	"sort"

	sc "google.golang.org/api/servicecontrol/v1"
)

// ErrNotInitialized is returned when an Operation is missing the fields a
// signature requires.
var ErrNotInitialized = errors.New("signing: operation must have operation_name and consumer_id set")

// Signature is a 128-bit fingerprint suitable for use as a map key.
type Signature [md5.Size]byte

// Check computes the signature used to key the Check cache. It hashes
// operation identity (name, consumer, labels) and, for each metric-value
// set, the metric name and each value's labels -- but never the value
// itself, since Check aggregation must key purely on "who is calling which
// method with which labels", independent of arrival time or observed value.
func Check(op *sc.Operation) (Signature, error) {
	if op == nil || op.OperationName == "" || op.ConsumerId == "" {
		return Signature{}, ErrNotInitialized
	}
	h := md5.New()
	h.Write([]byte(op.OperationName))
	h.Write(sep)
	h.Write([]byte(op.ConsumerId))
	writeLabels(h, op.UserLabels)
	for _, vs := range op.MetricValueSets {
		h.Write(sep)
		h.Write([]byte(vs.MetricName))
		for _, mv := range vs.MetricValues {
			writeLabels(h, mv.Labels)
		}
	}
	h.Write(sep)
	return toSignature(h), nil
}

// Report computes the signature used to key the Report cache. Unlike
// Check, it orders consumer before operation name (mirroring the reference
// implementation) but the ordering has no observable effect -- signatures
// are opaque keys, never compared field-by-field.
func Report(op *sc.Operation) (Signature, error) {
	if op == nil || op.OperationName == "" || op.ConsumerId == "" {
		return Signature{}, ErrNotInitialized
	}
	h := md5.New()
	h.Write([]byte(op.ConsumerId))
	h.Write(sep)
	h.Write([]byte(op.OperationName))
	writeLabels(h, op.UserLabels)
	return toSignature(h), nil
}

var sep = []byte{0x00}

// writeLabels feeds a label map to h as sorted (key, 0x00, value, 0x00)
// pairs, so that two maps with the same contents hash identically
// regardless of range order.
func writeLabels(h hash.Hash, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(sep)
		h.Write([]byte(labels[k]))
		h.Write(sep)
	}
}

func toSignature(h hash.Hash) Signature {
	var sig Signature
	copy(sig[:], h.Sum(nil))
	return sig
}
