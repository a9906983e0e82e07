// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/discover"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type runStub struct {
	runs    []discover.DiscoveryRun
	lastQ   database.RunQuery
	listErr error
}

func (s *runStub) GetRun(_ context.Context, id string) (*discover.DiscoveryRun, error) {
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, database.ErrNotFound)
}

func (s *runStub) ListRuns(_ context.Context, q database.RunQuery) ([]discover.DiscoveryRun, error) {
	s.lastQ = q
	return s.runs, s.listErr
}

type triggerStub struct{ calls int }

func (t *triggerStub) Trigger() bool {
	t.calls++
	return t.calls == 1
}

func newTestRouter(db Pinger, runs RunReader, trig Trigger) http.Handler {
	return NewRouter(NewHandler(db, runs, trig, zerolog.Nop()))
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, target, err)
		}
	}
	return rec, resp
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		pinger Pinger
		want   int
	}{
		{name: "live", path: "/healthz", pinger: pingStub{err: errors.New("down")}, want: http.StatusOK},
		{name: "ready", path: "/readyz", pinger: pingStub{}, want: http.StatusOK},
		{name: "not ready", path: "/readyz", pinger: pingStub{err: errors.New("down")}, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, newTestRouter(tt.pinger, &runStub{}, nil), http.MethodGet, tt.path)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
			wantStatus := "success"
			if tt.want != http.StatusOK {
				wantStatus = "error"
			}
			if resp.Status != wantStatus {
				t.Errorf("envelope status = %q, want %q", resp.Status, wantStatus)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(pingStub{}, &runStub{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

func TestListRuns(t *testing.T) {
	runs := &runStub{runs: []discover.DiscoveryRun{
		{ID: "r1", UserID: 7, MediaType: discover.MediaTypeMovie, Status: discover.RunStatusCompleted, StartedAt: time.Now()},
	}}
	router := newTestRouter(pingStub{}, runs, nil)

	rec, resp := do(t, router, http.MethodGet, "/api/v1/runs?user_id=7&media_type=tv&status=completed&limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp.Metadata.Count == nil || *resp.Metadata.Count != 1 {
		t.Errorf("count = %v, want 1", resp.Metadata.Count)
	}
	want := database.RunQuery{UserID: 7, MediaType: discover.MediaTypeSeries, Status: discover.RunStatusCompleted, Limit: 10}
	if runs.lastQ != want {
		t.Errorf("query = %+v, want %+v", runs.lastQ, want)
	}
}

func TestListRunsValidation(t *testing.T) {
	tests := []string{
		"/api/v1/runs?user_id=abc",
		"/api/v1/runs?user_id=-1",
		"/api/v1/runs?media_type=music",
		"/api/v1/runs?status=pending",
		"/api/v1/runs?limit=x",
		"/api/v1/runs?limit=1000",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			rec, resp := do(t, newTestRouter(pingStub{}, &runStub{}, nil), http.MethodGet, target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestListRunsStoreError(t *testing.T) {
	rec, _ := do(t, newTestRouter(pingStub{}, &runStub{listErr: errors.New("boom")}, nil), http.MethodGet, "/api/v1/runs")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	runs := &runStub{runs: []discover.DiscoveryRun{{ID: "r1", Status: discover.RunStatusRunning}}}
	router := newTestRouter(pingStub{}, runs, nil)

	if rec, _ := do(t, router, http.MethodGet, "/api/v1/runs/r1"); rec.Code != http.StatusOK {
		t.Errorf("existing run status = %d", rec.Code)
	}
	rec, resp := do(t, router, http.MethodGet, "/api/v1/runs/missing")
	if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("missing run = %d %+v", rec.Code, resp.Error)
	}
}

func TestTriggerDiscovery(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec, _ := do(t, newTestRouter(pingStub{}, &runStub{}, nil), http.MethodPost, "/api/v1/discovery/run")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("queues once", func(t *testing.T) {
		trig := &triggerStub{}
		router := newTestRouter(pingStub{}, &runStub{}, trig)
		for i, want := range []bool{true, false} {
			rec, resp := do(t, router, http.MethodPost, "/api/v1/discovery/run")
			if rec.Code != http.StatusAccepted {
				t.Fatalf("call %d status = %d", i, rec.Code)
			}
			data, ok := resp.Data.(map[string]interface{})
			if !ok || data["queued"] != want {
				t.Errorf("call %d data = %v, want queued=%v", i, resp.Data, want)
			}
		}
	})
}

func TestRouterFallbacks(t *testing.T) {
	router := newTestRouter(pingStub{}, &runStub{}, nil)
	if rec, _ := do(t, router, http.MethodGet, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if rec, _ := do(t, router, http.MethodDelete, "/healthz"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method = %d", rec.Code)
	}
}
