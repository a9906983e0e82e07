// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/discover"
)

const runColumns = `id, user_id, media_type, status,
	candidates_fetched, candidates_filtered, candidates_scored, candidates_stored,
	started_at, finished_at, duration_ms, error_message`

// CreateRun inserts a running record. An empty ID is assigned a UUID and a
// zero StartedAt is set to now.
func (db *DB) CreateRun(ctx context.Context, run *discover.DiscoveryRun) error {
	start := time.Now()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = discover.RunStatusRunning
	}

	_, err := db.conn.ExecContext(ctx, `INSERT INTO discovery_runs (
		id, user_id, media_type, status, started_at
	) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.UserID, string(run.MediaType), string(run.Status), run.StartedAt)
	observe("insert", "discovery_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to create discovery run: %w", err)
	}
	return nil
}

// UpdateRunCounts stores the stage counters of a running run.
func (db *DB) UpdateRunCounts(ctx context.Context, runID string, counts discover.RunCounts) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `UPDATE discovery_runs SET
		candidates_fetched = ?, candidates_filtered = ?, candidates_scored = ?, candidates_stored = ?
	WHERE id = ? AND status = ?`,
		counts.Fetched, counts.Filtered, counts.Scored, counts.Stored,
		runID, string(discover.RunStatusRunning))
	observe("update", "discovery_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to update run counts: %w", err)
	}
	return db.checkRunUpdated(ctx, res, runID)
}

// CompleteRun persists a run finalized as completed.
func (db *DB) CompleteRun(ctx context.Context, run *discover.DiscoveryRun) error {
	if run.Status != discover.RunStatusCompleted {
		return fmt.Errorf("complete run %s: status is %q", run.ID, run.Status)
	}
	return db.finishRun(ctx, run)
}

// FailRun persists a run finalized as failed.
func (db *DB) FailRun(ctx context.Context, run *discover.DiscoveryRun) error {
	if run.Status != discover.RunStatusFailed {
		return fmt.Errorf("fail run %s: status is %q", run.ID, run.Status)
	}
	return db.finishRun(ctx, run)
}

// finishRun writes the terminal state. Only running rows are updated so a
// run is finalized exactly once.
func (db *DB) finishRun(ctx context.Context, run *discover.DiscoveryRun) error {
	start := time.Now()

	var (
		errMsg     sql.NullString
		finishedAt sql.NullTime
	)
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	res, err := db.conn.ExecContext(ctx, `UPDATE discovery_runs SET
		status = ?,
		candidates_fetched = ?, candidates_filtered = ?, candidates_scored = ?, candidates_stored = ?,
		finished_at = ?, duration_ms = ?, error_message = ?
	WHERE id = ? AND status = ?`,
		string(run.Status),
		run.Counts.Fetched, run.Counts.Filtered, run.Counts.Scored, run.Counts.Stored,
		finishedAt, run.DurationMS, errMsg,
		run.ID, string(discover.RunStatusRunning))
	observe("update", "discovery_runs", start, err)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return db.checkRunUpdated(ctx, res, run.ID)
}

// checkRunUpdated distinguishes a missing run from one already finalized
// when an update touched no rows.
func (db *DB) checkRunUpdated(ctx context.Context, res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is %s", discover.ErrRunFinalized, runID, run.Status)
}

// GetRun returns one run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*discover.DiscoveryRun, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM discovery_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "discovery_runs", start, nil)
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	observe("select", "discovery_runs", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RunQuery filters ListRuns. Zero values do not filter.
type RunQuery struct {
	UserID    int64
	MediaType discover.MediaType
	Status    discover.RunStatus
	Limit     int `validate:"omitempty,min=1,max=500"`
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(ctx context.Context, q RunQuery) ([]discover.DiscoveryRun, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.MediaType != "" {
		where = append(where, "media_type = ?")
		args = append(args, string(q.MediaType))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM discovery_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		observe("select", "discovery_runs", start, err)
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []discover.DiscoveryRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	err = rows.Err()
	observe("select", "discovery_runs", start, err)
	return runs, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*discover.DiscoveryRun, error) {
	var (
		run        discover.DiscoveryRun
		mediaType  string
		status     string
		finishedAt sql.NullTime
		errMsg     sql.NullString
	)
	err := row.Scan(&run.ID, &run.UserID, &mediaType, &status,
		&run.Counts.Fetched, &run.Counts.Filtered, &run.Counts.Scored, &run.Counts.Stored,
		&run.StartedAt, &finishedAt, &run.DurationMS, &errMsg)
	if err != nil {
		return nil, err
	}
	run.MediaType = discover.MediaType(mediaType)
	run.Status = discover.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}
