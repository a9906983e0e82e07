// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/middleware"
	"github.com/tomtom215/marquee/internal/validation"
)

// readyTimeout bounds the database ping of the readiness probe.
const readyTimeout = 2 * time.Second

// Pinger reports whether the store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunReader reads discovery run records.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*discover.DiscoveryRun, error)
	ListRuns(ctx context.Context, q database.RunQuery) ([]discover.DiscoveryRun, error)
}

// Trigger queues an immediate batch run. It reports false when one is
// already queued.
type Trigger interface {
	Trigger() bool
}

// Handler serves the ops routes.
type Handler struct {
	db        Pinger
	runs      RunReader
	trigger   Trigger
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandler creates a Handler. trigger may be nil when scheduled discovery
// is disabled.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewHandler(db Pinger, runs RunReader, trigger Trigger, logger zerolog.Logger) *Handler {
	return &Handler{
		db:        db,
		runs:      runs,
		trigger:   trigger,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
}

// HealthLive answers while the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, nil)
}

// HealthReady answers 200 only when the database responds.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		l := h.requestLogger(r)
		l.Warn().Err(err).Msg("readiness check failed")
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"ready": true}, nil)
}

// ListRuns returns recent runs filtered by query parameters.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseRunQuery(r)
	if apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &APIResponse{
			Status:   "error",
			Metadata: Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), q)
	if err != nil {
		l := h.requestLogger(r)
		l.Error().Err(err).Msg("failed to list runs")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list runs", nil)
		return
	}
	if runs == nil {
		runs = []discover.DiscoveryRun{}
	}
	count := len(runs)
	respondData(w, http.StatusOK, runs, &count)
}

// GetRun returns one run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "run not found", nil)
		return
	}
	if err != nil {
		l := h.requestLogger(r)
		l.Error().Err(err).Str("run_id", id).Msg("failed to get run")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to get run", nil)
		return
	}
	respondData(w, http.StatusOK, run, nil)
}

// TriggerDiscovery queues a batch run.
func (h *Handler) TriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		respondError(w, http.StatusServiceUnavailable, "DISCOVERY_DISABLED", "scheduled discovery is disabled", nil)
		return
	}
	queued := h.trigger.Trigger()
	l := h.requestLogger(r)
	l.Info().Bool("queued", queued).Msg("discovery batch requested")
	respondData(w, http.StatusAccepted, map[string]interface{}{"queued": queued}, nil)
}

// requestLogger tags the handler logger with the request ID.
func (h *Handler) requestLogger(r *http.Request) zerolog.Logger {
	return h.logger.With().Str("request_id", middleware.GetRequestID(r.Context())).Logger()
}

func parseRunQuery(r *http.Request) (database.RunQuery, *APIError) {
	values := r.URL.Query()
	var q database.RunQuery

	if s := values.Get("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return q, &APIError{Code: "VALIDATION_ERROR", Message: "user_id must be a positive integer"}
		}
		q.UserID = id
	}
	if s := values.Get("media_type"); s != "" {
		mt, err := discover.ParseMediaType(s)
		if err != nil {
			return q, &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
		}
		q.MediaType = mt
	}
	if s := values.Get("status"); s != "" {
		switch st := discover.RunStatus(s); st {
		case discover.RunStatusRunning, discover.RunStatusCompleted, discover.RunStatusFailed:
			q.Status = st
		default:
			return q, &APIError{Code: "VALIDATION_ERROR", Message: "status must be running, completed or failed"}
		}
	}
	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, &APIError{Code: "VALIDATION_ERROR", Message: "limit must be an integer"}
		}
		q.Limit = n
	}

	if err := validation.ValidateStruct(&q); err != nil {
		return q, &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	return q, nil
}
