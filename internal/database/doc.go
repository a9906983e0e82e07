// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package database is the DuckDB store behind the discovery pipeline.

It persists run records and ranked candidates, the shared global pool, and
exposes the read-only inputs the pipeline consumes: library and watch
history ID sets, recently watched seeds, taste profiles and content
embeddings. Embeddings and other list fields are stored as JSON text; the
pipeline treats embeddings as opaque vectors.

Tables:
  - discovery_runs: one row per (user, media type, invocation)
  - discovery_candidates: the latest ranked result per user and media type
  - discovery_pool: global candidates keyed by (media_type, external_id)
  - library_items, watch_history: owned and watched titles per user
  - content_embeddings, user_taste_profiles: externally computed taste inputs
  - discovery_users: users enabled for batch runs with optional overrides

Usage:

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
	    return err
	}
	defer db.Close()

	page, err := db.ListCandidates(ctx, database.CandidateQuery{
	    UserID:    42,
	    MediaType: discover.MediaTypeMovie,
	    Page:      1,
	    PageSize:  20,
	})
*/
package database
