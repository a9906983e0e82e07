// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

// HistoryStore answers which titles a user already has.
type HistoryStore interface {
	LibraryExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error)
	WatchedExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error)
}

// Filter drops candidates the user owns or has watched.
type Filter struct {
	store  HistoryStore
	logger zerolog.Logger
}

// NewFilter creates a Filter.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewFilter(store HistoryStore, logger zerolog.Logger) *Filter {
	return &Filter{
		store:  store,
		logger: logger.With().Str("component", "filter").Logger(),
	}
}

// Apply returns candidates whose external id is in neither the library nor
// the watch history, in input order. A storage error is returned as is; the
// run cannot proceed without knowing what the user already has.
func (f *Filter) Apply(ctx context.Context, userID int64, mediaType discover.MediaType, candidates []discover.RawCandidate) ([]discover.RawCandidate, error) {
	library, err := f.store.LibraryExternalIDs(ctx, userID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("load library ids: %w", err)
	}
	watched, err := f.store.WatchedExternalIDs(ctx, userID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("load watched ids: %w", err)
	}

	out := make([]discover.RawCandidate, 0, len(candidates))
	for i := range candidates {
		id := candidates[i].ExternalID
		if _, owned := library[id]; owned {
			continue
		}
		if _, seen := watched[id]; seen {
			continue
		}
		out = append(out, candidates[i])
	}

	f.logger.Debug().
		Int64("user_id", userID).
		Str("media_type", mediaType.String()).
		Int("in", len(candidates)).
		Int("out", len(out)).
		Int("library", len(library)).
		Int("watched", len(watched)).
		Msg("filtered known titles")

	return out, nil
}

// exclude drops candidates whose external id is in ids, keeping order.
func exclude(candidates []discover.RawCandidate, ids map[int64]struct{}) []discover.RawCandidate {
	if len(ids) == 0 {
		return candidates
	}
	out := make([]discover.RawCandidate, 0, len(candidates))
	for i := range candidates {
		if _, ok := ids[candidates[i].ExternalID]; !ok {
			out = append(out, candidates[i])
		}
	}
	return out
}
