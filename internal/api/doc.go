// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api serves the operational HTTP surface of marquee.

Routes:

	GET  /healthz                 liveness, always 200 while the process runs
	GET  /readyz                  readiness, 503 when DuckDB does not answer
	GET  /metrics                 Prometheus exposition
	GET  /api/v1/runs             recent discovery runs (user_id, media_type, status, limit)
	GET  /api/v1/runs/{id}        one discovery run
	POST /api/v1/discovery/run    queue an immediate batch run

Every response except /metrics uses the APIResponse envelope. The listener is
meant for operators and scrapers; it carries no authentication.
*/
package api
