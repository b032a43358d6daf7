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

package transport

import (
	"context"
	"errors"
	"testing"

	sc "google.golang.org/api/servicecontrol/v1"
)

type plainTransport struct{}

func (plainTransport) Check(context.Context, *sc.CheckRequest) (*sc.CheckResponse, error) {
	return nil, nil
}
func (plainTransport) AllocateQuota(context.Context, *sc.AllocateQuotaRequest) (*sc.AllocateQuotaResponse, error) {
	return nil, nil
}
func (plainTransport) Report(context.Context, *sc.ReportRequest) (*sc.ReportResponse, error) {
	return nil, nil
}

type classifyingTransport struct {
	plainTransport
	transient bool
}

func (c classifyingTransport) IsTransient(error) bool { return c.transient }

func TestIsTransientDefaultsToTrueWithoutClassifier(t *testing.T) {
	if IsTransient(plainTransport{}, nil) {
		t.Fatalf("expected nil error to be non-transient")
	}
	if !IsTransient(plainTransport{}, errors.New("boom")) {
		t.Fatalf("expected a transport without a classifier to default to transient=true")
	}
}

func TestIsTransientConsultsClassifier(t *testing.T) {
	if IsTransient(classifyingTransport{transient: false}, errors.New("boom")) {
		t.Fatalf("expected the transport's own classification to be used")
	}
	if !IsTransient(classifyingTransport{transient: true}, errors.New("boom")) {
		t.Fatalf("expected the transport's own classification to be used")
	}
}
