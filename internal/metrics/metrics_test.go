// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "discovery_runs"))

	RecordDBQuery("SELECT", "discovery_runs", 5*time.Millisecond, nil)
	RecordDBQuery("SELECT", "discovery_runs", 5*time.Millisecond, errors.New("connection refused"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "discovery_runs"))
	if after-before != 1 {
		t.Errorf("error counter delta = %f, want 1", after-before)
	}
}

func TestRecordDiscoveryRun(t *testing.T) {
	counter := DiscoveryRuns.WithLabelValues("movie", "completed")
	before := testutil.ToFloat64(counter)

	RecordDiscoveryRun("movie", "completed", 2*time.Second)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("run counter delta = %f, want 1", got)
	}
}

func TestRecordSourceRequest(t *testing.T) {
	counter := SourceRequests.WithLabelValues("tmdb", "rate_limited")
	before := testutil.ToFloat64(counter)

	RecordSourceRequest("tmdb", "rate_limited", time.Second)
	RecordSourceRequest("tmdb", "rate_limited", time.Second)

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("source counter delta = %f, want 2", got)
	}
}

func TestRecordStage(t *testing.T) {
	RecordStage("fetched", 120)
	if n := testutil.CollectAndCount(DiscoveryStageCandidates); n == 0 {
		t.Error("stage histogram collected no series")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	counter := HTTPRequests.WithLabelValues("GET", "/healthz", "200")
	before := testutil.ToFloat64(counter)

	RecordHTTPRequest("GET", "/healthz", "200", time.Millisecond)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("http counter delta = %f, want 1", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(HTTPActiveRequests) - before; got != 1 {
		t.Errorf("active delta after start = %f, want 1", got)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(HTTPActiveRequests) - before; got != 0 {
		t.Errorf("active delta after end = %f, want 0", got)
	}
}
