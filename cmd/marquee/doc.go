// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Command marquee runs the media discovery pipeline: it refreshes a shared
// pool of candidate titles from TMDB (and optionally Trakt), then builds a
// filtered, scored and diversified candidate list for every enabled user.
//
// # Startup
//
//  1. Configuration: struct defaults, config.yaml, environment (koanf v2)
//  2. Logging: zerolog, optionally console formatted
//  3. Database: DuckDB store of users, history, pool and results
//  4. Sources: TMDB lists and recommendations, Trakt when enabled
//  5. Detail cache: badger read-through cache in front of TMDB details
//  6. Event bus: watermill over gochannel or NATS
//  7. Supervisor: discovery scheduler and ops HTTP listener under suture
//
// # Configuration
//
// The minimum is a TMDB key:
//
//	export TMDB_API_KEY=...
//	export DUCKDB_PATH=/data/marquee.duckdb
//	./marquee
//
// Useful extras: DISCOVERY_RUN_ON_STARTUP=true, TRAKT_ENABLED=true with
// TRAKT_CLIENT_ID, EVENTS_BACKEND=nats with NATS_URL, LOG_FORMAT=console.
//
// # Signals
//
// SIGINT and SIGTERM cancel the supervisor tree. Running batches stop
// between users, the HTTP listener drains for HTTP_SHUTDOWN_TIMEOUT, then
// the detail cache and database are closed.
package main
