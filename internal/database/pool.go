// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/pool"
)

var _ pool.Store = (*DB)(nil)

// UpsertPoolCandidates writes the global pool of one media type. On conflict
// the descriptive and popularity fields refresh while source and created_at
// keep their first values.
func (db *DB) UpsertPoolCandidates(ctx context.Context, mediaType discover.MediaType, candidates []discover.PoolCandidate) (err error) {
	start := time.Now()
	defer func() { observe("upsert", "discovery_pool", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO discovery_pool (`+rawColumnNames+`, fetched_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (media_type, external_id) DO UPDATE SET
		title = excluded.title,
		overview = COALESCE(excluded.overview, overview),
		genres = COALESCE(excluded.genres, genres),
		genre_ids = COALESCE(excluded.genre_ids, genre_ids),
		poster_path = COALESCE(excluded.poster_path, poster_path),
		backdrop_path = COALESCE(excluded.backdrop_path, backdrop_path),
		popularity = excluded.popularity,
		vote_average = excluded.vote_average,
		vote_count = excluded.vote_count,
		fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare pool upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range candidates {
		c := &candidates[i]
		if c.MediaType == "" {
			c.MediaType = mediaType
		}
		args, argErr := rawArgs(&c.RawCandidate)
		if argErr != nil {
			return argErr
		}
		args = append(args, c.FetchedAt, c.CreatedAt)
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert pool candidate %d: %w", c.ExternalID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pool: %w", err)
	}
	return nil
}

// GetPoolCandidates returns the pool of one media type by descending popularity.
func (db *DB) GetPoolCandidates(ctx context.Context, mediaType discover.MediaType) ([]discover.PoolCandidate, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT `+rawColumnNames+`, fetched_at, created_at
	FROM discovery_pool WHERE media_type = ?
	ORDER BY popularity DESC, external_id`, string(mediaType))
	if err != nil {
		observe("select", "discovery_pool", start, err)
		return nil, fmt.Errorf("failed to query pool: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []discover.PoolCandidate
	for rows.Next() {
		var (
			raw rawScan
			pc  discover.PoolCandidate
		)
		if err := rows.Scan(append(raw.dest(), &pc.FetchedAt, &pc.CreatedAt)...); err != nil {
			return nil, fmt.Errorf("failed to scan pool candidate: %w", err)
		}
		if pc.RawCandidate, err = raw.candidate(); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	err = rows.Err()
	observe("select", "discovery_pool", start, err)
	return out, err
}
