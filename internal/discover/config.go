// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package discover

import (
	"fmt"

	"github.com/tomtom215/marquee/internal/validation"
)

// Score factor names used in ScoreBreakdown.
const (
	FactorSimilarity = "similarity"
	FactorNovelty    = "novelty"
	FactorRating     = "rating"
	FactorRecency    = "recency"
	FactorDiversity  = "diversity"
)

// Weights controls how sub-scores combine into the final score.
// Weights are non-negative and are not required to sum to 1.
type Weights struct {
	Similarity float64 `koanf:"similarity" json:"similarity" validate:"gte=0"`
	Novelty    float64 `koanf:"novelty" json:"novelty" validate:"gte=0"`
	Rating     float64 `koanf:"rating" json:"rating" validate:"gte=0"`
	Recency    float64 `koanf:"recency" json:"recency" validate:"gte=0"`
}

// Sum returns the total of all weights.
//
//nolint:gocritic // Weights is small, value receiver is intentional
func (w Weights) Sum() float64 {
	return w.Similarity + w.Novelty + w.Rating + w.Recency
}

// Normalize returns weights scaled to sum to 1.0.
// If all weights are zero, equal weights are returned.
//
//nolint:gocritic // Weights is small, value receiver is intentional
func (w Weights) Normalize() Weights {
	sum := w.Sum()
	if sum == 0 {
		return Weights{Similarity: 0.25, Novelty: 0.25, Rating: 0.25, Recency: 0.25}
	}
	return Weights{
		Similarity: w.Similarity / sum,
		Novelty:    w.Novelty / sum,
		Rating:     w.Rating / sum,
		Recency:    w.Recency / sum,
	}
}

// ToMap returns weights as a map keyed by factor name.
//
//nolint:gocritic // Weights is small, value receiver is intentional
func (w Weights) ToMap() map[string]float64 {
	return map[string]float64{
		FactorSimilarity: w.Similarity,
		FactorNovelty:    w.Novelty,
		FactorRating:     w.Rating,
		FactorRecency:    w.Recency,
	}
}

// Config holds the tuning parameters of a discovery run.
type Config struct {
	// MaxCandidatesPerSource bounds how many results each source may return.
	MaxCandidatesPerSource int `koanf:"max_candidates_per_source" validate:"min=1,max=1000"`

	// MaxTotalCandidates is the number of titles kept after diversity selection.
	MaxTotalCandidates int `koanf:"max_total_candidates" validate:"min=1"`

	// MaxEnrichedCandidates is how many of the head get full details.
	MaxEnrichedCandidates int `koanf:"max_enriched_candidates" validate:"min=0,ltefield=MaxTotalCandidates"`

	// TargetDisplayCount is the page size used by expand requests.
	TargetDisplayCount int `koanf:"target_display_count" validate:"min=1"`

	// MinVoteCount and MinVoteAverage drop obscure or poorly rated titles
	// from global sources.
	MinVoteCount   int     `koanf:"min_vote_count" validate:"min=0"`
	MinVoteAverage float64 `koanf:"min_vote_average" validate:"gte=0,lte=10"`

	// Weights are the admin-configured scoring weights.
	Weights Weights `koanf:"weights"`

	// DiversityWeight blends the diversity boost into the final score, 0 disables.
	DiversityWeight float64 `koanf:"diversity_weight" validate:"gte=0,lte=1"`

	// GenreDiversityShare splits the boost between genre and provider novelty.
	GenreDiversityShare float64 `koanf:"genre_diversity_share" validate:"gte=0,lte=1"`

	// RecencyHalfLifeYears is the age at which the recency score halves.
	RecencyHalfLifeYears float64 `koanf:"recency_half_life_years" validate:"gt=0"`

	// TrendingWindow is the trending time window: day or week.
	TrendingWindow string `koanf:"trending_window" validate:"oneof=day week"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidatesPerSource: 100,
		MaxTotalCandidates:     200,
		MaxEnrichedCandidates:  50,
		TargetDisplayCount:     20,
		MinVoteCount:           20,
		MinVoteAverage:         0,
		Weights: Weights{
			Similarity: 0.4,
			Novelty:    0.2,
			Rating:     0.3,
			Recency:    0.1,
		},
		DiversityWeight:      0.3,
		GenreDiversityShare:  0.7,
		RecencyHalfLifeYears: 5,
		TrendingWindow:       "week",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}
	if c.Weights.Sum() <= 0 {
		return fmt.Errorf("discovery config: weights must not all be zero")
	}
	return nil
}

// WithUserWeights returns a copy of c whose weights are the user's override,
// normalized to sum to 1. A nil override leaves the admin weights untouched.
func (c Config) WithUserWeights(override *Weights) Config { //nolint:gocritic // copy is the point
	if override == nil {
		return c
	}
	c.Weights = override.Normalize()
	return c
}
