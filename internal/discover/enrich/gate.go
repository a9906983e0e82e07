// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package enrich fetches full metadata for the head of a ranked candidate
// list. The tail keeps the cheap fields returned by list endpoints.
package enrich

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/scoring"
	"github.com/tomtom215/marquee/internal/metrics"
)

// DetailFetcher loads the full metadata of one title.
type DetailFetcher interface {
	Details(ctx context.Context, mediaType discover.MediaType, externalID int64) (*discover.Details, error)
}

// Gate enriches the first maxEnriched candidates of a ranked list.
type Gate struct {
	fetcher DetailFetcher
	logger  zerolog.Logger
}

// NewGate creates an enrichment gate.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewGate(fetcher DetailFetcher, logger zerolog.Logger) *Gate {
	return &Gate{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "enrich").Logger(),
	}
}

// Result summarizes one gate pass.
type Result struct {
	Enriched int
	Failed   int
	Skipped  int
}

// Apply enriches ranked[:maxEnriched] in place and marks the rest as not
// enriched. A failed fetch leaves the candidate with its cheap fields. Scores
// are never recomputed; the list is stable-sorted by final score afterwards,
// which keeps the order of an already ranked input.
func (g *Gate) Apply(ctx context.Context, mediaType discover.MediaType, ranked []discover.ScoredCandidate, maxEnriched int) Result {
	var res Result
	head := min(max(maxEnriched, 0), len(ranked))

	for i := range ranked {
		c := &ranked[i]
		c.IsEnriched = false
		if i >= head {
			res.Skipped++
			continue
		}

		details, err := g.fetcher.Details(ctx, mediaType, c.ExternalID)
		if err != nil || details == nil {
			res.Failed++
			g.logger.Warn().
				Err(err).
				Int64("external_id", c.ExternalID).
				Str("title", c.Title).
				Msg("enrichment failed, keeping cheap fields")
			continue
		}
		Merge(c, details)
		res.Enriched++
	}

	scoring.SortByFinalScore(ranked)

	metrics.EnrichmentTotal.WithLabelValues("enriched").Add(float64(res.Enriched))
	metrics.EnrichmentTotal.WithLabelValues("failed").Add(float64(res.Failed))
	metrics.EnrichmentTotal.WithLabelValues("skipped").Add(float64(res.Skipped))

	g.logger.Debug().
		Str("media_type", mediaType.String()).
		Int("enriched", res.Enriched).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("enrichment complete")

	return res
}

// Merge copies detail fields onto c. Poster, backdrop, overview, language
// and cross reference id only fill values the list endpoint left empty.
func Merge(c *discover.ScoredCandidate, d *discover.Details) {
	c.Cast = d.Cast
	c.Directors = d.Directors
	c.RuntimeMinutes = d.RuntimeMinutes
	c.Tagline = d.Tagline

	if c.PosterPath == "" {
		c.PosterPath = d.PosterPath
	}
	if c.BackdropPath == "" {
		c.BackdropPath = d.BackdropPath
	}
	if c.Overview == "" {
		c.Overview = d.Overview
	}
	if c.OriginalLanguage == "" {
		c.OriginalLanguage = d.OriginalLanguage
	}
	if c.CrossRefID == "" {
		c.CrossRefID = d.CrossRefID
	}
	c.IsEnriched = true
}
