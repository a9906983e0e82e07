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

// UpsertUser enables a user for discovery, storing optional media type
// restrictions, weight overrides and a Trakt token.
func (db *DB) UpsertUser(ctx context.Context, user *discover.User, enabled bool, traktToken string) error {
	var mediaTypes interface{}
	if len(user.MediaTypes) > 0 {
		parts := make([]string, len(user.MediaTypes))
		for i, m := range user.MediaTypes {
			parts[i] = string(m)
		}
		mediaTypes = strings.Join(parts, ",")
	}
	var weights interface{}
	if user.Weights != nil {
		data, err := json.Marshal(user.Weights)
		if err != nil {
			return fmt.Errorf("marshal weights: %w", err)
		}
		weights = string(data)
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO discovery_users (
		user_id, username, enabled, media_types, weights, trakt_token
	) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, enabled, mediaTypes, weights, nullableString(traktToken))
	observe("upsert", "discovery_users", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// ListEnabledUsers returns users enabled for batch discovery ordered by id.
func (db *DB) ListEnabledUsers(ctx context.Context) ([]discover.User, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT user_id, username, media_types, weights
	FROM discovery_users WHERE enabled ORDER BY user_id`)
	if err != nil {
		observe("select", "discovery_users", start, err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []discover.User
	for rows.Next() {
		var (
			u          discover.User
			mediaTypes sql.NullString
			weights    sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &mediaTypes, &weights); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if mediaTypes.Valid && mediaTypes.String != "" {
			for _, part := range strings.Split(mediaTypes.String, ",") {
				m, err := discover.ParseMediaType(part)
				if err != nil {
					db.logger.Warn().Int64("user_id", u.ID).Str("media_type", part).Msg("Ignoring unknown media type")
					continue
				}
				u.MediaTypes = append(u.MediaTypes, m)
			}
		}
		if weights.Valid && weights.String != "" {
			u.Weights = &discover.Weights{}
			if err := parseJSONField(weights, "weights", u.Weights); err != nil {
				return nil, err
			}
		}
		users = append(users, u)
	}
	err = rows.Err()
	observe("select", "discovery_users", start, err)
	return users, err
}

// TraktToken returns the user's Trakt access token, "" when not linked.
func (db *DB) TraktToken(ctx context.Context, userID int64) (string, error) {
	var token sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT trakt_token FROM discovery_users WHERE user_id = ?`, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get trakt token: %w", err)
	}
	return token.String, nil
}
