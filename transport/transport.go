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

// Package transport declares the collaborator the façade client sends
// cache misses and flushed batches to. It's deliberately minimal: three
// RPCs, no retry or backoff policy baked in, so that a caller can plug in
// whatever sender they like -- the reference transport in package
// googlesc, a test double, or something wrapping a retry policy of the
// caller's own.
package transport

import (
	"context"

	sc "google.golang.org/api/servicecontrol/v1"
)

// Transport sends the three service-control RPCs a Client needs.
type Transport interface {
	Check(ctx context.Context, req *sc.CheckRequest) (*sc.CheckResponse, error)
	AllocateQuota(ctx context.Context, req *sc.AllocateQuotaRequest) (*sc.AllocateQuotaResponse, error)
	Report(ctx context.Context, req *sc.ReportRequest) (*sc.ReportResponse, error)
}

// TransientClassifier is implemented by a Transport that can tell the
// caller whether a failed RPC is worth retrying.
type TransientClassifier interface {
	IsTransient(err error) bool
}

// IsTransient reports whether err is worth retrying, consulting t's own
// classification if it implements TransientClassifier and otherwise
// assuming non-nil errors are transient -- the same conservative default
// the reference transport uses for errors it doesn't recognize.
func IsTransient(t Transport, err error) bool {
	if err == nil {
		return false
	}
	if tc, ok := t.(TransientClassifier); ok {
		return tc.IsTransient(err)
	}
	return true
}
