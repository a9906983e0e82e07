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

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/discover"
)

// LibraryExternalIDs returns the external ids of titles the user owns.
func (db *DB) LibraryExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error) {
	return db.idSet(ctx, "library_items", `SELECT DISTINCT external_id FROM library_items
	WHERE user_id = ? AND media_type = ? AND external_id IS NOT NULL`, userID, mediaType)
}

// WatchedExternalIDs returns the external ids of titles the user watched.
func (db *DB) WatchedExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error) {
	return db.idSet(ctx, "watch_history", `SELECT DISTINCT external_id FROM watch_history
	WHERE user_id = ? AND media_type = ? AND external_id IS NOT NULL`, userID, mediaType)
}

func (db *DB) idSet(ctx context.Context, table, query string, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, userID, string(mediaType))
	if err != nil {
		observe("select", table, start, err)
		return nil, fmt.Errorf("failed to query %s ids: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		ids[id] = struct{}{}
	}
	err = rows.Err()
	observe("select", table, start, err)
	return ids, err
}

// RecentlyWatched returns the user's most recently watched distinct titles
// that have an external id, newest first.
func (db *DB) RecentlyWatched(ctx context.Context, userID int64, mediaType discover.MediaType, limit int) ([]discover.WatchSeed, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT
		external_id,
		COALESCE(MAX(media_item_id), 0),
		COALESCE(ANY_VALUE(title), ''),
		COALESCE(MAX(trakt_id), 0),
		MAX(watched_at) AS last_watched
	FROM watch_history
	WHERE user_id = ? AND media_type = ? AND external_id IS NOT NULL AND external_id > 0
	GROUP BY external_id
	ORDER BY last_watched DESC, external_id
	LIMIT ?`, userID, string(mediaType), limit)
	if err != nil {
		observe("select", "watch_history", start, err)
		return nil, fmt.Errorf("failed to query recent watches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var seeds []discover.WatchSeed
	for rows.Next() {
		var (
			s    discover.WatchSeed
			last time.Time
		)
		if err := rows.Scan(&s.ExternalID, &s.MediaID, &s.Title, &s.TraktID, &last); err != nil {
			return nil, fmt.Errorf("failed to scan watch seed: %w", err)
		}
		seeds = append(seeds, s)
	}
	err = rows.Err()
	observe("select", "watch_history", start, err)
	return seeds, err
}

// GetUserTaste returns the stored taste profile. A user without a profile
// gets an empty signal.
func (db *DB) GetUserTaste(ctx context.Context, userID int64, mediaType discover.MediaType) (*discover.TasteSignal, error) {
	start := time.Now()
	var embedding, genreCounts sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT embedding, genre_counts FROM user_taste_profiles
	WHERE user_id = ? AND media_type = ?`, userID, string(mediaType)).Scan(&embedding, &genreCounts)
	if errors.Is(err, sql.ErrNoRows) {
		observe("select", "user_taste_profiles", start, nil)
		return &discover.TasteSignal{}, nil
	}
	observe("select", "user_taste_profiles", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get taste profile: %w", err)
	}

	signal := &discover.TasteSignal{}
	if err := parseJSONField(embedding, "embedding", &signal.Embedding); err != nil {
		return nil, err
	}
	if err := parseJSONField(genreCounts, "genre_counts", &signal.GenreCounts); err != nil {
		return nil, err
	}
	return signal, nil
}

// GetContentEmbeddings returns the embeddings of the given titles. Titles
// without a stored embedding are absent from the result.
func (db *DB) GetContentEmbeddings(ctx context.Context, mediaType discover.MediaType, externalIDs []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(externalIDs)), ", ")
	args := make([]interface{}, 0, len(externalIDs)+1)
	args = append(args, string(mediaType))
	for _, id := range externalIDs {
		args = append(args, id)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT external_id, embedding FROM content_embeddings
	WHERE media_type = ? AND external_id IN (`+placeholders+`)`, args...)
	if err != nil {
		observe("select", "content_embeddings", start, err)
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   int64
			data string
			vec  []float32
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			return nil, fmt.Errorf("failed to parse embedding %d: %w", id, err)
		}
		out[id] = vec
	}
	err = rows.Err()
	observe("select", "content_embeddings", start, err)
	return out, err
}

// LibraryItem is an owned title.
type LibraryItem struct {
	ID         int64
	UserID     int64
	MediaType  discover.MediaType
	ExternalID int64
	TraktID    int64
	Title      string
	AddedAt    time.Time
}

// AddLibraryItem inserts or replaces a library item.
func (db *DB) AddLibraryItem(ctx context.Context, item *LibraryItem) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO library_items (
		id, user_id, media_type, external_id, trakt_id, title, added_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, string(item.MediaType), item.ExternalID, item.TraktID, item.Title, item.AddedAt)
	observe("upsert", "library_items", start, err)
	if err != nil {
		return fmt.Errorf("failed to add library item: %w", err)
	}
	return nil
}

// WatchEvent is one watch history row.
type WatchEvent struct {
	UserID      int64
	MediaItemID int64
	MediaType   discover.MediaType
	ExternalID  int64
	TraktID     int64
	Title       string
	WatchedAt   time.Time
}

// RecordWatch appends a watch history row.
func (db *DB) RecordWatch(ctx context.Context, w *WatchEvent) error {
	if w.WatchedAt.IsZero() {
		w.WatchedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO watch_history (
		user_id, media_item_id, media_type, external_id, trakt_id, title, watched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.UserID, w.MediaItemID, string(w.MediaType), w.ExternalID, w.TraktID, w.Title, w.WatchedAt)
	observe("insert", "watch_history", start, err)
	if err != nil {
		return fmt.Errorf("failed to record watch: %w", err)
	}
	return nil
}

// UpsertContentEmbedding stores the embedding of one title.
func (db *DB) UpsertContentEmbedding(ctx context.Context, mediaType discover.MediaType, externalID int64, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO content_embeddings (
		media_type, external_id, embedding, updated_at
	) VALUES (?, ?, ?, ?)`, string(mediaType), externalID, string(data), time.Now().UTC())
	observe("upsert", "content_embeddings", start, err)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// UpsertTasteProfile stores the taste signal of a user.
func (db *DB) UpsertTasteProfile(ctx context.Context, userID int64, mediaType discover.MediaType, signal *discover.TasteSignal) error {
	embedding, err := marshalJSON(signal.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	var genreCounts interface{}
	if len(signal.GenreCounts) > 0 {
		data, err := json.Marshal(signal.GenreCounts)
		if err != nil {
			return fmt.Errorf("marshal genre counts: %w", err)
		}
		genreCounts = string(data)
	}

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO user_taste_profiles (
		user_id, media_type, embedding, genre_counts, updated_at
	) VALUES (?, ?, ?, ?, ?)`, userID, string(mediaType), embedding, genreCounts, time.Now().UTC())
	observe("upsert", "user_taste_profiles", start, err)
	if err != nil {
		return fmt.Errorf("failed to store taste profile: %w", err)
	}
	return nil
}
