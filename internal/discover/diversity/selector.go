// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package diversity selects the final ranked subset of scored candidates
// while penalizing redundant genres and providers.
//
// Selection is greedy. On every iteration each remaining candidate receives
// a boost from how novel its genres and provider are relative to what has
// already been selected, and its score is blended in place:
//
//	final = final*(1-w) + boost*w
//
// The remaining candidates are then re-sorted and the best is taken. The
// loop is O(n^2), which is fine for the few hundred candidates of a run.
//
// Blending can leave a later pick above an earlier one, so the selection is
// returned stable-sorted by final score. Rank order is settled here; later
// stages keep it.
package diversity

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

// neutralNovelty applies when a candidate carries no genre or provider data.
const neutralNovelty = 0.5

// Selector performs diversity-aware greedy selection.
type Selector struct {
	weight     float64
	genreShare float64
	logger     zerolog.Logger
}

// NewSelector creates a Selector from the run configuration.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSelector(cfg *discover.Config, logger zerolog.Logger) *Selector {
	return &Selector{
		weight:     clamp01(cfg.DiversityWeight),
		genreShare: clamp01(cfg.GenreDiversityShare),
		logger:     logger.With().Str("component", "diversity").Logger(),
	}
}

// Select returns up to target candidates ordered by final score, ties in
// selection order. The input slice is not modified. Each selected candidate records its cumulative diversity
// adjustment under the "diversity" breakdown key.
func (s *Selector) Select(candidates []discover.ScoredCandidate, target int) []discover.ScoredCandidate {
	if target <= 0 || len(candidates) == 0 {
		return []discover.ScoredCandidate{}
	}

	// Arena: candidates stay in place, remaining holds indices into it.
	arena := make([]discover.ScoredCandidate, len(candidates))
	copy(arena, candidates)
	base := make([]float64, len(arena))
	remaining := make([]int, len(arena))
	for i := range arena {
		base[i] = arena[i].FinalScore
		remaining[i] = i
	}

	byScore := func(i, j int) bool {
		return arena[remaining[i]].FinalScore > arena[remaining[j]].FinalScore
	}
	sort.SliceStable(remaining, byScore)

	selected := make([]discover.ScoredCandidate, 0, min(target, len(arena)))
	genreCounts := make(map[string]int)
	providerCounts := make(map[string]int)
	seenTitles := make(map[string]struct{})
	duplicates := 0

	for len(selected) < target && len(remaining) > 0 {
		if s.weight > 0 {
			for _, idx := range remaining {
				c := &arena[idx]
				boost := s.boost(c, genreCounts, providerCounts)
				c.FinalScore = c.FinalScore*(1-s.weight) + boost*s.weight
			}
			sort.SliceStable(remaining, byScore)
		}

		idx := remaining[0]
		remaining = remaining[1:]
		c := &arena[idx]

		key := TitleYearKey(&c.RawCandidate)
		if _, dup := seenTitles[key]; dup {
			duplicates++
			continue
		}
		seenTitles[key] = struct{}{}

		c.ScoreBreakdown = maps.Clone(c.ScoreBreakdown)
		if c.ScoreBreakdown == nil {
			c.ScoreBreakdown = make(map[string]float64, 1)
		}
		c.ScoreBreakdown[discover.FactorDiversity] = c.FinalScore - base[idx]

		for _, g := range c.Genres {
			genreCounts[normalize(g)]++
		}
		providerCounts[providerOf(c)]++

		selected = append(selected, *c)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].FinalScore > selected[j].FinalScore
	})

	s.logger.Debug().
		Int("input", len(candidates)).
		Int("target", target).
		Int("selected", len(selected)).
		Int("title_duplicates", duplicates).
		Float64("weight", s.weight).
		Msg("diversity selection complete")

	return selected
}

// boost combines genre novelty and provider novelty relative to the
// current selection.
func (s *Selector) boost(c *discover.ScoredCandidate, genreCounts, providerCounts map[string]int) float64 {
	return s.genreShare*GenreNovelty(c.Genres, genreCounts) +
		(1-s.genreShare)*ProviderNovelty(providerOf(c), providerCounts)
}

// GenreNovelty is the fraction of genres not yet present in the selection.
func GenreNovelty(genres []string, selected map[string]int) float64 {
	if len(genres) == 0 {
		return neutralNovelty
	}
	unseen := 0
	for _, g := range genres {
		if selected[normalize(g)] == 0 {
			unseen++
		}
	}
	return float64(unseen) / float64(len(genres))
}

// ProviderNovelty decays as 1/(1+n) with the number of selected titles from
// the same provider.
func ProviderNovelty(provider string, selected map[string]int) float64 {
	if provider == "" {
		return neutralNovelty
	}
	return 1 / float64(1+selected[provider])
}

// TitleYearKey is the secondary dedup key. Titles differing only in case,
// spacing or punctuation collide; untitled candidates fall back to their id.
func TitleYearKey(c *discover.RawCandidate) string {
	title := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, c.Title)
	if title == "" {
		return fmt.Sprintf("#%d", c.ExternalID)
	}
	return fmt.Sprintf("%s|%d", title, c.ReleaseYear)
}

func providerOf(c *discover.ScoredCandidate) string {
	if p := c.ProviderKey(); p != "" {
		return p
	}
	return c.Source
}

func normalize(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
