// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// candidateColumns is shared by the pool and candidate tables.
const candidateColumns = `
	external_id BIGINT NOT NULL,
	cross_ref_id TEXT,
	media_type TEXT NOT NULL,
	title TEXT NOT NULL,
	original_title TEXT,
	original_language TEXT,
	release_year INTEGER,
	overview TEXT,
	genres TEXT,
	genre_ids TEXT,
	poster_path TEXT,
	backdrop_path TEXT,
	popularity DOUBLE,
	vote_average DOUBLE,
	vote_count INTEGER,
	providers TEXT,
	source TEXT NOT NULL,
	source_score DOUBLE,
	source_media_id BIGINT`

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS discovery_runs (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			status TEXT NOT NULL,
			candidates_fetched INTEGER DEFAULT 0,
			candidates_filtered INTEGER DEFAULT 0,
			candidates_scored INTEGER DEFAULT 0,
			candidates_stored INTEGER DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			duration_ms BIGINT DEFAULT 0,
			error_message TEXT
		)`,

		// No unique key: a user's previous result is deleted and rewritten in
		// one transaction, which DuckDB rejects under a primary key.
		`CREATE TABLE IF NOT EXISTS discovery_candidates (
			run_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			result_rank INTEGER NOT NULL,` + candidateColumns + `,
			similarity_score DOUBLE,
			novelty_score DOUBLE,
			rating_score DOUBLE,
			recency_score DOUBLE,
			final_score DOUBLE,
			score_breakdown TEXT,
			is_enriched BOOLEAN DEFAULT false,
			cast_members TEXT,
			directors TEXT,
			runtime_minutes INTEGER,
			tagline TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS discovery_pool (` + candidateColumns + `,
			fetched_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (media_type, external_id)
		)`,

		`CREATE TABLE IF NOT EXISTS library_items (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			external_id BIGINT,
			trakt_id BIGINT,
			title TEXT NOT NULL,
			added_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS watch_history (
			user_id BIGINT NOT NULL,
			media_item_id BIGINT,
			media_type TEXT NOT NULL,
			external_id BIGINT,
			trakt_id BIGINT,
			title TEXT,
			watched_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS content_embeddings (
			media_type TEXT NOT NULL,
			external_id BIGINT NOT NULL,
			embedding TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (media_type, external_id)
		)`,

		`CREATE TABLE IF NOT EXISTS user_taste_profiles (
			user_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			embedding TEXT,
			genre_counts TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, media_type)
		)`,

		`CREATE TABLE IF NOT EXISTS discovery_users (
			user_id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			enabled BOOLEAN DEFAULT true,
			media_types TEXT,
			weights TEXT,
			trakt_token TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_user ON discovery_runs(user_id, media_type, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_user ON discovery_candidates(user_id, media_type)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON watch_history(user_id, media_type)`,
		`CREATE INDEX IF NOT EXISTS idx_library_user ON library_items(user_id, media_type)`,
	}
}
