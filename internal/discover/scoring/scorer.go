// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package scoring computes the multi-factor score of discovery candidates.
//
// Each candidate receives four sub-scores in [0,1]:
//
//   - similarity: cosine between the user's taste embedding and the title's
//     content embedding, mapped from [-1,1] to [0,1]
//   - novelty: how rarely the user watches the title's genres
//   - rating: vote average normalized over the batch being scored
//   - recency: exponential decay by release year
//
// The final score is the weighted sum using the effective weights of the run.
// Missing signals (no embedding, no history, unknown year) score 0.5.
//
// The rating range is the min and max vote average of the candidates scored
// in one call, not of the whole catalog. The same title can therefore get a
// different rating score in another run or in Expand.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

// TasteStore supplies the read-only taste inputs of scoring.
type TasteStore interface {
	// GetUserTaste returns the taste signal of a user. A user with no
	// history returns an empty signal, not an error.
	GetUserTaste(ctx context.Context, userID int64, mediaType discover.MediaType) (*discover.TasteSignal, error)

	// GetContentEmbeddings returns embeddings keyed by external id. Titles
	// without an embedding are absent from the map.
	GetContentEmbeddings(ctx context.Context, mediaType discover.MediaType, externalIDs []int64) (map[int64][]float32, error)
}

// Scorer scores and orders candidates for one user.
type Scorer struct {
	store  TasteStore
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// NewScorer creates a Scorer backed by store.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewScorer(store TasteStore, logger zerolog.Logger, opts ...Option) *Scorer {
	s := &Scorer{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "scorer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes sub-scores and final scores for candidates and returns them
// sorted by final score descending. Ties keep input order.
func (s *Scorer) Score(ctx context.Context, userID int64, mediaType discover.MediaType,
	candidates []discover.RawCandidate, cfg *discover.Config) ([]discover.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return []discover.ScoredCandidate{}, nil
	}

	taste, err := s.store.GetUserTaste(ctx, userID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("get user taste: %w", err)
	}
	if taste == nil {
		taste = &discover.TasteSignal{}
	}

	var embeddings map[int64][]float32
	if len(taste.Embedding) > 0 {
		ids := make([]int64, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ExternalID
		}
		embeddings, err = s.store.GetContentEmbeddings(ctx, mediaType, ids)
		if err != nil {
			return nil, fmt.Errorf("get content embeddings: %w", err)
		}
	}

	genreCounts := NormalizeGenreCounts(taste.GenreCounts)
	genreTotal := taste.TotalGenreCount()
	ratings := NewRatingRange(candidates)
	now := s.now()

	scored := make([]discover.ScoredCandidate, len(candidates))
	for i := range candidates {
		c := candidates[i]
		sub := SubScores{
			Similarity: Neutral,
			Novelty:    NoveltyScore(c.Genres, genreCounts, genreTotal),
			Rating:     ratings.Score(c.VoteAverage),
			Recency:    RecencyScore(c.ReleaseYear, now, cfg.RecencyHalfLifeYears),
		}
		if emb, ok := embeddings[c.ExternalID]; ok {
			sub.Similarity = SimilarityScore(taste.Embedding, emb)
		}

		final, breakdown := Combine(sub, cfg.Weights)
		scored[i] = discover.ScoredCandidate{
			RawCandidate:   c,
			Similarity:     sub.Similarity,
			Novelty:        sub.Novelty,
			Rating:         sub.Rating,
			Recency:        sub.Recency,
			FinalScore:     final,
			ScoreBreakdown: breakdown,
		}
	}

	SortByFinalScore(scored)

	s.logger.Debug().
		Int64("user_id", userID).
		Str("media_type", mediaType.String()).
		Int("candidates", len(scored)).
		Bool("has_embedding", len(taste.Embedding) > 0).
		Int("embeddings", len(embeddings)).
		Int("history_genres", genreTotal).
		Msg("scoring complete")

	return scored, nil
}

// SortByFinalScore orders candidates by final score descending. The sort is
// stable so equal scores keep their relative order.
func SortByFinalScore(candidates []discover.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}
