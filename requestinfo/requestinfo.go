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

// Package requestinfo builds CheckRequests and ReportRequests from a flat
// struct of individual call details, rather than requiring callers to
// construct servicecontrol.Operation values by hand. It mirrors the
// convenience of the reference implementation's check_request.Info and
// report_request.Info, without the label/metric descriptor registries
// those used to decide which labels a given service config wants -- this
// package sets a handful of fixed labels (caller IP, referer, and user
// agent on a CheckRequest when given; platform and service agent on a
// ReportRequest) and otherwise leaves labeling to the caller via the
// Labels field.
package requestinfo

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"google.golang.org/api/googleapi"
	sc "google.golang.org/api/servicecontrol/v1"
)

const (
	labelCallerIP     = "servicecontrol.googleapis.com/caller_ip"
	labelUserAgent    = "servicecontrol.googleapis.com/user_agent"
	labelReferer      = "servicecontrol.googleapis.com/referer"
	labelPlatform     = "servicecontrol.googleapis.com/platform"
	labelServiceAgent = "servicecontrol.googleapis.com/service_agent"
)

// Info holds the fields common to both a CheckRequest and a ReportRequest
// operation. Zero values are simply omitted from the request built, except
// that a zero StartTime or EndTime defaults to the build time and an empty
// OperationID is replaced with a generated one.
type Info struct {
	ServiceName   string
	OperationID   string // auto-generated with a uuid if left empty
	OperationName string
	APIKey        string
	ConsumerID    string // e.g. "project:my-project" or "api_key:abc123"
	Importance    string // "" (LOW) or "HIGH"
	Labels        map[string]string
	StartTime     time.Time
	EndTime       time.Time
}

func (i Info) operationID() string {
	if i.OperationID != "" {
		return i.OperationID
	}
	return uuid.New().String()
}

func (i Info) baseOperation(now time.Time) *sc.Operation {
	start, end := i.StartTime, i.EndTime
	if start.IsZero() {
		start = now
	}
	if end.IsZero() {
		end = now
	}
	labels := make(map[string]string, len(i.Labels))
	for k, v := range i.Labels {
		labels[k] = v
	}
	return &sc.Operation{
		OperationId:   i.operationID(),
		OperationName: i.OperationName,
		ConsumerId:    i.ConsumerID,
		Importance:    i.Importance,
		UserLabels:    labels,
		StartTime:     start.UTC().Format(time.RFC3339Nano),
		EndTime:       end.UTC().Format(time.RFC3339Nano),
	}
}

// CheckInfo extends Info with the fields check_request.Info adds: the
// caller's IP address and the HTTP referer header, both of which ESP
// forces into labels on a CheckRequest.
type CheckInfo struct {
	Info
	ClientIP  string
	Referer   string
	UserAgent string
}

// AsCheckRequest builds a CheckRequest from i, at time now.
func (i CheckInfo) AsCheckRequest(now time.Time) *sc.CheckRequest {
	op := i.baseOperation(now)
	if i.ClientIP != "" {
		op.UserLabels[labelCallerIP] = i.ClientIP
	}
	if i.Referer != "" {
		op.UserLabels[labelReferer] = i.Referer
	}
	if i.UserAgent != "" {
		op.UserLabels[labelUserAgent] = i.UserAgent
	}
	return &sc.CheckRequest{
		ServiceName: i.ServiceName,
		Operation:   op,
	}
}

// ReportInfo extends Info with the fields report_request.Info adds: the
// outcome of the call being reported.
type ReportInfo struct {
	Info
	APIMethod    string
	Platform     string
	ResponseCode int64
	RequestSize  int64
	ResponseSize int64
	Latency      time.Duration
	LogMessage   string
}

// AsReportRequest builds a ReportRequest with a single Operation from i,
// at time now. A LogEntry named logName is attached when logName is
// non-empty, carrying the same response-code/latency/size details the
// reference implementation's _as_log_entry copies onto every report log.
func (i ReportInfo) AsReportRequest(logName string, now time.Time) *sc.ReportRequest {
	op := i.baseOperation(now)
	if i.Platform != "" {
		op.UserLabels[labelPlatform] = i.Platform
	}
	op.UserLabels[labelServiceAgent] = "requestinfo"

	if logName != "" {
		op.LogEntries = []*sc.LogEntry{i.logEntry(logName, now)}
	}
	return &sc.ReportRequest{
		ServiceName: i.ServiceName,
		Operations:  []*sc.Operation{op},
	}
}

func (i ReportInfo) logEntry(name string, now time.Time) *sc.LogEntry {
	payload := map[string]interface{}{
		"http_response_code": i.ResponseCode,
		"timestamp":          now.Unix(),
	}
	severity := "INFO"
	if i.ResponseCode >= 400 {
		severity = "ERROR"
	}
	if i.RequestSize > 0 {
		payload["request_size"] = i.RequestSize
	}
	if i.ResponseSize > 0 {
		payload["response_size"] = i.ResponseSize
	}
	if i.Latency > 0 {
		payload["request_latency_in_ms"] = float64(i.Latency.Microseconds()) / 1000.0
	}
	if i.APIMethod != "" {
		payload["api_method"] = i.APIMethod
	}
	if i.LogMessage != "" {
		payload["log_message"] = i.LogMessage
	}

	raw, _ := json.Marshal(payload)
	return &sc.LogEntry{
		Name:          name,
		Severity:      severity,
		Timestamp:     now.UTC().Format(time.RFC3339Nano),
		StructPayload: googleapi.RawMessage(raw),
	}
}
