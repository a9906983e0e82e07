// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package pool acquires raw candidates from external sources.
//
// Global sources (trending, popular, discover) are user-independent; their
// merged and deduplicated output is written once per batch cycle into the
// shared pool. Personalized sources are queried per user and take precedence
// over pool entries for the same title.
package pool

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

// GlobalSource returns user-independent candidates.
type GlobalSource interface {
	Name() string
	FetchGlobal(ctx context.Context, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error)
}

// PersonalSource returns candidates derived from one user's history.
type PersonalSource interface {
	Name() string
	FetchPersonalized(ctx context.Context, userID int64, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error)
}

// GlobalResult is the outcome of a global fetch.
type GlobalResult struct {
	Candidates []discover.RawCandidate

	// TotalFetched counts items returned by all sources before any filtering.
	TotalFetched int

	// BelowThreshold counts items dropped by the vote thresholds.
	BelowThreshold int

	// UniqueCount is len(Candidates) after external id dedup.
	UniqueCount int

	// FailedSources names the sources that returned an error.
	FailedSources []string
}

// PersonalResult is the outcome of a personalized fetch.
type PersonalResult struct {
	Candidates    []discover.RawCandidate
	TotalFetched  int
	FailedSources []string
}

// Manager fans out to candidate sources and owns the pool cache.
type Manager struct {
	global   []GlobalSource
	personal []PersonalSource
	cache    *Cache
	logger   zerolog.Logger
}

// NewManager creates a Manager. cache may be nil when no pool is kept.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewManager(global []GlobalSource, personal []PersonalSource, cache *Cache, logger zerolog.Logger) *Manager {
	return &Manager{
		global:   global,
		personal: personal,
		cache:    cache,
		logger:   logger.With().Str("component", "pool").Logger(),
	}
}

// Cache returns the pool cache, possibly nil.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// FetchGlobal queries every global source, applies the vote thresholds and
// deduplicates by external id, keeping the most popular copy. A failing
// source contributes nothing; only context cancellation aborts the fetch.
func (m *Manager) FetchGlobal(ctx context.Context, mediaType discover.MediaType, cfg *discover.Config) (*GlobalResult, error) {
	res := &GlobalResult{}
	var all []discover.RawCandidate

	for _, src := range m.global {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := src.FetchGlobal(ctx, mediaType, cfg.MaxCandidatesPerSource)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.FailedSources = append(res.FailedSources, src.Name())
			m.logger.Warn().Err(err).
				Str("source", src.Name()).
				Str("media_type", mediaType.String()).
				Msg("global source failed, continuing without it")
			continue
		}
		if len(items) > cfg.MaxCandidatesPerSource {
			items = items[:cfg.MaxCandidatesPerSource]
		}
		res.TotalFetched += len(items)

		for i := range items {
			if items[i].VoteCount < cfg.MinVoteCount || items[i].VoteAverage < cfg.MinVoteAverage {
				res.BelowThreshold++
				continue
			}
			items[i].MediaType = mediaType
			all = append(all, items[i])
		}

		m.logger.Debug().
			Str("source", src.Name()).
			Str("media_type", mediaType.String()).
			Int("items", len(items)).
			Msg("global source fetched")
	}

	res.Candidates = DedupByPopularity(all)
	res.UniqueCount = len(res.Candidates)

	m.logger.Info().
		Str("media_type", mediaType.String()).
		Int("total_fetched", res.TotalFetched).
		Int("below_threshold", res.BelowThreshold).
		Int("unique", res.UniqueCount).
		Strs("failed_sources", res.FailedSources).
		Msg("global candidates fetched")

	return res, nil
}

// FetchPersonalized queries every personalized source for one user.
func (m *Manager) FetchPersonalized(ctx context.Context, userID int64, mediaType discover.MediaType, cfg *discover.Config) (*PersonalResult, error) {
	res := &PersonalResult{}
	var all []discover.RawCandidate

	for _, src := range m.personal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := src.FetchPersonalized(ctx, userID, mediaType, cfg.MaxCandidatesPerSource)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.FailedSources = append(res.FailedSources, src.Name())
			m.logger.Warn().Err(err).
				Str("source", src.Name()).
				Int64("user_id", userID).
				Msg("personalized source failed, continuing without it")
			continue
		}
		if len(items) > cfg.MaxCandidatesPerSource {
			items = items[:cfg.MaxCandidatesPerSource]
		}
		res.TotalFetched += len(items)
		for i := range items {
			items[i].MediaType = mediaType
		}
		all = append(all, items...)
	}

	res.Candidates = DedupBySourceScore(all)
	return res, nil
}

// Merge combines personalized candidates with pool candidates. Personalized
// entries win on external id collision and keep their provenance; pool
// entries fill the remaining volume in pool order.
func Merge(personalized, pool []discover.RawCandidate) []discover.RawCandidate {
	out := make([]discover.RawCandidate, 0, len(personalized)+len(pool))
	seen := make(map[int64]struct{}, len(personalized)+len(pool))

	for i := range personalized {
		if _, ok := seen[personalized[i].ExternalID]; ok {
			continue
		}
		seen[personalized[i].ExternalID] = struct{}{}
		out = append(out, personalized[i])
	}
	for i := range pool {
		if _, ok := seen[pool[i].ExternalID]; ok {
			continue
		}
		seen[pool[i].ExternalID] = struct{}{}
		out = append(out, pool[i])
	}
	return out
}

// DedupByPopularity keeps one candidate per external id: the one with the
// highest popularity, then vote count. Output follows first appearance.
func DedupByPopularity(candidates []discover.RawCandidate) []discover.RawCandidate {
	return dedup(candidates, func(current, challenger *discover.RawCandidate) bool {
		if challenger.Popularity != current.Popularity {
			return challenger.Popularity > current.Popularity
		}
		return challenger.VoteCount > current.VoteCount
	})
}

// DedupBySourceScore keeps the candidate with the highest source score.
func DedupBySourceScore(candidates []discover.RawCandidate) []discover.RawCandidate {
	return dedup(candidates, func(current, challenger *discover.RawCandidate) bool {
		return challenger.SourceScore > current.SourceScore
	})
}

func dedup(candidates []discover.RawCandidate, better func(current, challenger *discover.RawCandidate) bool) []discover.RawCandidate {
	out := make([]discover.RawCandidate, 0, len(candidates))
	index := make(map[int64]int, len(candidates))

	for i := range candidates {
		c := candidates[i]
		if pos, ok := index[c.ExternalID]; ok {
			if better(&out[pos], &c) {
				out[pos] = c
			}
			continue
		}
		index[c.ExternalID] = len(out)
		out = append(out, c)
	}
	return out
}
