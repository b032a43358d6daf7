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

// Package client is the façade over the Check, Quota, and Report
// aggregators: the one type most callers construct and hold onto. It
// wires each aggregator to a scheduler that periodically flushes pending
// merged requests to a transport.Transport, tracking flush outcomes with
// a stats.Recorder the way app.App tracks its closers.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/GoogleCloudPlatform/controlaggregator/check"
	"github.com/GoogleCloudPlatform/controlaggregator/clock"
	"github.com/GoogleCloudPlatform/controlaggregator/metricvalue"
	"github.com/GoogleCloudPlatform/controlaggregator/options"
	"github.com/GoogleCloudPlatform/controlaggregator/quota"
	"github.com/GoogleCloudPlatform/controlaggregator/report"
	"github.com/GoogleCloudPlatform/controlaggregator/scheduler"
	"github.com/GoogleCloudPlatform/controlaggregator/stats"
	"github.com/GoogleCloudPlatform/controlaggregator/transport"
	"github.com/golang/glog"

	sc "google.golang.org/api/servicecontrol/v1"
)

type runState int32

const (
	stateInit runState = iota
	stateRunning
	stateStopped
)

// ErrStopped is returned by any method called after Stop.
var ErrStopped = errors.New("client: already stopped")

// Client is the aggregating façade in front of a transport.Transport. Its
// zero value is not usable; build one with New.
type Client struct {
	serviceName string
	transport   transport.Transport
	clock       clock.Clock
	recorder    stats.Recorder

	check  *check.Aggregator
	quota  *quota.Aggregator
	report *report.Aggregator

	schedulers []*scheduler.Scheduler

	mu    sync.Mutex
	state runState
}

// New builds a Client for serviceName. kinds maps metric name to the
// MetricKind governing how its values merge in the Check and Report
// caches. Nothing runs until Start is called or until the first Check,
// AllocateQuota, or Report call starts the client.
func New(serviceName string, t transport.Transport, opts options.Options, kinds map[string]metricvalue.Kind, c clock.Clock, recorder stats.Recorder) *Client {
	if recorder == nil {
		recorder = stats.NewNoopRecorder()
	}
	return &Client{
		serviceName: serviceName,
		transport:   t,
		clock:       c,
		recorder:    recorder,
		check:       check.New(serviceName, opts.Check, kinds, c),
		quota:       quota.New(serviceName, opts.Quota, c),
		report:      report.New(serviceName, opts.Report, kinds, c),
	}
}

// Start transitions the client from INIT to RUNNING and starts its
// background flush schedulers. Calling Start again while already running,
// or after Stop, is a no-op. Callers don't have to call Start explicitly:
// Check, AllocateQuota, and Report trigger the same transition lazily on
// first use.
func (cl *Client) Start() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.startLocked()
}

// startLocked transitions INIT to RUNNING. Caller holds cl.mu.
func (cl *Client) startLocked() {
	if cl.state != stateInit {
		return
	}
	cl.state = stateRunning

	if iv := cl.check.FlushInterval(); iv > 0 {
		s := scheduler.New(iv, cl.flushCheck, cl.clock)
		s.Start()
		cl.schedulers = append(cl.schedulers, s)
	}
	if iv := cl.report.FlushInterval(); iv > 0 {
		s := scheduler.New(iv, cl.flushReportTick, cl.clock)
		s.Start()
		cl.schedulers = append(cl.schedulers, s)
	}
}

// Stop transitions the client to STOPPED, stops its schedulers, flushes
// the check and report out-queues, sends every report operation still
// cached, and then clears all three caches; merged check operations still
// resident in the check cache are discarded. It's idempotent: calling it
// more than once, or before Start, is safe.
func (cl *Client) Stop() {
	cl.mu.Lock()
	if cl.state == stateStopped {
		cl.mu.Unlock()
		return
	}
	cl.state = stateStopped
	schedulers := cl.schedulers
	cl.schedulers = nil
	cl.mu.Unlock()

	for _, s := range schedulers {
		s.Stop()
	}
	cl.flushCheck()
	cl.flushReportTick()

	ops := cl.report.Clear()
	for i := 0; i < len(ops); i += report.MaxOperationCount {
		end := i + report.MaxOperationCount
		if end > len(ops) {
			end = len(ops)
		}
		req := &sc.ReportRequest{ServiceName: cl.serviceName, Operations: ops[i:end]}
		_, err := cl.transport.Report(context.Background(), req)
		cl.recorder.Record(stats.KindReport, err)
		if err != nil {
			glog.Warningf("client: sending remaining report operations failed: %v", err)
		}
	}
	cl.check.Clear()
	cl.quota.Clear()
}

// Check answers a CheckRequest, serving a cached response when possible
// and otherwise sending req through the transport and caching its answer.
func (cl *Client) Check(ctx context.Context, req *sc.CheckRequest) (*sc.CheckResponse, error) {
	if err := cl.requireRunning(); err != nil {
		return nil, err
	}
	cached, err := cl.check.Check(req)
	if err != nil {
		cl.recorder.Record(stats.KindCheck, err)
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	resp, err := cl.transport.Check(ctx, req)
	cl.recorder.Record(stats.KindCheck, err)
	if err != nil {
		return nil, err
	}
	if err := cl.check.AddResponse(req, resp); err != nil {
		glog.Warningf("client: could not cache check response: %v", err)
	}
	return resp, nil
}

// AllocateQuota answers an AllocateQuotaRequest, serving a cached response
// when possible and otherwise sending req through the transport.
func (cl *Client) AllocateQuota(ctx context.Context, req *sc.AllocateQuotaRequest) (*sc.AllocateQuotaResponse, error) {
	if err := cl.requireRunning(); err != nil {
		return nil, err
	}
	cached, err := cl.quota.Allocate(req)
	if err != nil {
		cl.recorder.Record(stats.KindQuota, err)
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	resp, err := cl.transport.AllocateQuota(ctx, req)
	cl.recorder.Record(stats.KindQuota, err)
	if err != nil {
		return nil, err
	}
	if err := cl.quota.AddResponse(req, resp); err != nil {
		glog.Warningf("client: could not cache quota response: %v", err)
	}
	return resp, nil
}

// Report caches and merges req's operations. When caching absorbs the
// request, Report returns immediately with a synthetic success response;
// otherwise it sends req through the transport.
func (cl *Client) Report(ctx context.Context, req *sc.ReportRequest) (*sc.ReportResponse, error) {
	if err := cl.requireRunning(); err != nil {
		return nil, err
	}
	cached, err := cl.report.Report(req)
	if err != nil {
		cl.recorder.Record(stats.KindReport, err)
		return nil, err
	}
	if cached {
		return &sc.ReportResponse{}, nil
	}
	resp, err := cl.transport.Report(ctx, req)
	cl.recorder.Record(stats.KindReport, err)
	return resp, err
}

// requireRunning lazily transitions INIT to RUNNING (spec §4.I: any of
// Check/AllocateQuota/Report starts the client if it hasn't been started
// yet) and rejects calls made after Stop.
func (cl *Client) requireRunning() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	switch cl.state {
	case stateInit:
		cl.startLocked()
		return nil
	case stateStopped:
		return ErrStopped
	default:
		return nil
	}
}

func (cl *Client) flushCheck() {
	for _, req := range cl.check.Flush() {
		resp, err := cl.transport.Check(context.Background(), req)
		cl.recorder.Record(stats.KindCheck, err)
		if err != nil {
			glog.Warningf("client: flushing a cached check request failed: %v", err)
			continue
		}
		if err := cl.check.AddResponse(req, resp); err != nil {
			glog.Warningf("client: could not re-cache flushed check response: %v", err)
		}
	}
}

func (cl *Client) flushReport() error {
	var result *multierror.Error
	for _, req := range cl.report.Flush() {
		_, err := cl.transport.Report(context.Background(), req)
		cl.recorder.Record(stats.KindReport, err)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// flushReportTick adapts flushReport to the scheduler's func() signature,
// logging rather than dropping whatever multierror it returns.
func (cl *Client) flushReportTick() {
	if err := cl.flushReport(); err != nil {
		glog.Warningf("client: flushing cached report requests failed: %v", err)
	}
}
