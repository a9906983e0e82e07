// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metrics holds the Prometheus instrumentation of the discovery
// pipeline, its source clients and supporting stores.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Discovery Run Metrics
	DiscoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "Total number of discovery runs by final status",
		},
		[]string{"media_type", "status"}, // status: "completed", "failed"
	)

	DiscoveryRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_run_duration_seconds",
			Help:    "Duration of single-user discovery runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"media_type"},
	)

	DiscoveryStageCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_stage_candidates",
			Help:    "Number of candidates leaving each pipeline stage",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"stage"}, // "fetched", "filtered", "scored", "stored"
	)

	DiscoveryBatchUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_batch_units_total",
			Help: "User/media type units processed by batch runs",
		},
		[]string{"result"}, // "success", "failure"
	)

	DiscoveryPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discovery_pool_candidates",
			Help: "Current number of unique candidates in the global pool",
		},
		[]string{"media_type"},
	)

	// Source Client Metrics
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_requests_total",
			Help: "Total number of requests to external recommendation sources",
		},
		[]string{"source", "status"}, // status: "success", "error", "rate_limited", "circuit_open"
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_request_duration_seconds",
			Help:    "Duration of requests to external sources, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_rate_limited_total",
			Help: "Total number of HTTP 429 responses from external sources",
		},
		[]string{"source"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Enrichment Metrics
	EnrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_total",
			Help: "Candidates processed by the enrichment gate",
		},
		[]string{"result"}, // "enriched", "failed", "skipped"
	)

	DetailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detail_cache_hits_total",
			Help: "Total number of enrichment detail cache hits",
		},
	)

	DetailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detail_cache_misses_total",
			Help: "Total number of enrichment detail cache misses",
		},
	)

	// Ops HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of requests served by the ops listener",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of ops listener requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Requests currently in flight on the ops listener",
		},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_events_published_total",
			Help: "Discovery events published to the message bus",
		},
		[]string{"topic", "status"},
	)
)

// RecordDBQuery records the duration and outcome of a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordDiscoveryRun records a finished single-user run.
func RecordDiscoveryRun(mediaType, status string, duration time.Duration) {
	DiscoveryRuns.WithLabelValues(mediaType, status).Inc()
	DiscoveryRunDuration.WithLabelValues(mediaType).Observe(duration.Seconds())
}

// RecordStage records the candidate count leaving a pipeline stage.
func RecordStage(stage string, count int) {
	DiscoveryStageCandidates.WithLabelValues(stage).Observe(float64(count))
}

// RecordSourceRequest records one logical source request.
func RecordSourceRequest(source, status string, duration time.Duration) {
	SourceRequests.WithLabelValues(source, status).Inc()
	SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordHTTPRequest records a request served by the ops listener.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		HTTPActiveRequests.Inc()
		return
	}
	HTTPActiveRequests.Dec()
}
