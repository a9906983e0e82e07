// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// nullableString returns nil for an empty string so the column stays NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalJSON encodes v as JSON text, NULL for empty slices and maps.
func marshalJSON[T any](v []T) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// parseJSONField unmarshals a nullable JSON column into dst.
func parseJSONField(field sql.NullString, fieldName string, dst interface{}) error {
	if !field.Valid || field.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(field.String), dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", fieldName, err)
	}
	return nil
}

// encodeGenreIDs stores ids as ",12,18," so a single id can be matched
// with LIKE '%,12,%'.
func encodeGenreIDs(ids []int) interface{} {
	if len(ids) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteByte(',')
	for _, id := range ids {
		b.WriteString(strconv.Itoa(id))
		b.WriteByte(',')
	}
	return b.String()
}

func decodeGenreIDs(field sql.NullString) []int {
	if !field.Valid {
		return nil
	}
	parts := strings.Split(strings.Trim(field.String, ","), ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.Atoi(p); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
