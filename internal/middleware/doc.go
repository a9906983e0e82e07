// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package middleware holds the HTTP middleware of the ops listener: request
// IDs that seed the logging correlation ID, and Prometheus instrumentation
// labelled by chi route pattern.
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID, middleware.PrometheusMetrics)
package middleware
