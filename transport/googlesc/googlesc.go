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

// Package googlesc implements transport.Transport against the real
// Google Service Control API, using an OAuth2 JWT service account for
// authentication.
package googlesc

import (
	"context"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	sc "google.golang.org/api/servicecontrol/v1"
)

const defaultTimeout = 60 * time.Second

// Transport sends Check, AllocateQuota, and Report RPCs to the real
// servicecontrol.googleapis.com endpoint.
type Transport struct {
	serviceName string
	service     *sc.Service
}

// New builds a Transport authenticated with the service account key in
// jsonKey, for the named service.
func New(serviceName string, jsonKey []byte) (*Transport, error) {
	config, err := google.JWTConfigFromJSON(jsonKey, sc.ServicecontrolScope)
	if err != nil {
		return nil, err
	}
	client := config.Client(context.Background())
	client.Timeout = defaultTimeout
	service, err := sc.New(client)
	if err != nil {
		return nil, err
	}
	return NewFromService(serviceName, service), nil
}

// NewFromService builds a Transport around an already-constructed
// servicecontrol Service, for callers that need their own client
// configuration (proxies, custom timeouts, test doubles with an injected
// HTTP round-tripper).
func NewFromService(serviceName string, service *sc.Service) *Transport {
	return &Transport{serviceName: serviceName, service: service}
}

// Check sends req.
func (t *Transport) Check(ctx context.Context, req *sc.CheckRequest) (*sc.CheckResponse, error) {
	call := t.service.Services.Check(t.serviceName, req)
	return call.Context(ctx).Do()
}

// AllocateQuota sends req.
func (t *Transport) AllocateQuota(ctx context.Context, req *sc.AllocateQuotaRequest) (*sc.AllocateQuotaResponse, error) {
	call := t.service.Services.AllocateQuota(t.serviceName, req)
	return call.Context(ctx).Do()
}

// Report sends req. A "not modified" response (the server telling us
// nothing in the batch needed recording) is treated as success rather
// than an error, matching the reference endpoint's handling of Report.
func (t *Transport) Report(ctx context.Context, req *sc.ReportRequest) (*sc.ReportResponse, error) {
	call := t.service.Services.Report(t.serviceName, req)
	resp, err := call.Context(ctx).Do()
	if err != nil && googleapi.IsNotModified(err) {
		return resp, nil
	}
	return resp, err
}

// IsTransient reports whether err is a 5xx response or a non-HTTP
// transport-level error (timeouts, connection failures) -- anything
// short of a definitive 4xx rejection is worth retrying.
func (t *Transport) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	ae, ok := err.(*googleapi.Error)
	if !ok {
		return true
	}
	return ae.Code >= 500 && ae.Code < 600
}
