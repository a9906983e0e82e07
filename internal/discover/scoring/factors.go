// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/tomtom215/marquee/internal/discover"
)

// Neutral is the sub-score used when a factor has no signal.
const Neutral = 0.5

// CosineSimilarity returns the cosine of the angle between a and b.
// ok is false when the vectors differ in length or either has zero norm.
func CosineSimilarity(a, b []float32) (cos float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	cos = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Guard against rounding pushing the value just outside [-1, 1].
	return math.Max(-1, math.Min(1, cos)), true
}

// SimilarityScore maps the cosine between the taste and content embeddings
// onto [0,1]. Missing or unusable vectors score Neutral.
func SimilarityScore(taste, content []float32) float64 {
	cos, ok := CosineSimilarity(taste, content)
	if !ok {
		return Neutral
	}
	return (cos + 1) / 2
}

// NoveltyScore is the mean over the candidate's genres of 1 - count/total.
// Genres the user watches often score low.
func NoveltyScore(genres []string, counts map[string]int, total int) float64 {
	if total <= 0 || len(genres) == 0 {
		return Neutral
	}

	var sum float64
	for _, g := range genres {
		share := float64(counts[normalizeGenre(g)]) / float64(total)
		sum += 1 - math.Min(share, 1)
	}
	return sum / float64(len(genres))
}

// RatingRange normalizes vote averages over one scoring batch.
type RatingRange struct {
	Min, Max float64
}

// NewRatingRange computes the min and max vote average of candidates. Only
// the given batch contributes to the range.
func NewRatingRange(candidates []discover.RawCandidate) RatingRange {
	if len(candidates) == 0 {
		return RatingRange{}
	}
	r := RatingRange{Min: candidates[0].VoteAverage, Max: candidates[0].VoteAverage}
	for i := 1; i < len(candidates); i++ {
		v := candidates[i].VoteAverage
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r
}

// Score returns (vote - min) / (max - min), or Neutral for a degenerate range.
func (r RatingRange) Score(vote float64) float64 {
	span := r.Max - r.Min
	if span <= 0 {
		return Neutral
	}
	return math.Max(0, math.Min(1, (vote-r.Min)/span))
}

// RecencyScore decays with age: 1 for the current year, 0.5 after one
// half-life. Unknown years score Neutral; future years are clamped to age 0.
func RecencyScore(year int, now time.Time, halfLifeYears float64) float64 {
	if year <= 0 || halfLifeYears <= 0 {
		return Neutral
	}
	age := float64(now.Year() - year)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age/halfLifeYears)
}

// SubScores holds the four per-candidate factors.
type SubScores struct {
	Similarity float64
	Novelty    float64
	Rating     float64
	Recency    float64
}

// Combine returns the weighted sum of the sub-scores and the per-factor
// contributions. It is deterministic for identical inputs.
func Combine(s SubScores, w discover.Weights) (float64, map[string]float64) {
	breakdown := map[string]float64{
		discover.FactorSimilarity: s.Similarity * w.Similarity,
		discover.FactorNovelty:    s.Novelty * w.Novelty,
		discover.FactorRating:     s.Rating * w.Rating,
		discover.FactorRecency:    s.Recency * w.Recency,
	}
	final := breakdown[discover.FactorSimilarity] +
		breakdown[discover.FactorNovelty] +
		breakdown[discover.FactorRating] +
		breakdown[discover.FactorRecency]
	return final, breakdown
}

func normalizeGenre(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

// NormalizeGenreCounts lower-cases genre keys, merging duplicates.
func NormalizeGenreCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for g, n := range counts {
		out[normalizeGenre(g)] += n
	}
	return out
}
