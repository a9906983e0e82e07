// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package diversity

import (
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

func candidate(id int64, title string, year int, score float64, source string, genres ...string) discover.ScoredCandidate {
	return discover.ScoredCandidate{
		RawCandidate: discover.RawCandidate{
			ExternalID:  id,
			Title:       title,
			ReleaseYear: year,
			Source:      source,
			Genres:      genres,
		},
		FinalScore:     score,
		ScoreBreakdown: map[string]float64{discover.FactorRating: score},
	}
}

func newSelector(weight float64) *Selector {
	cfg := discover.DefaultConfig()
	cfg.DiversityWeight = weight
	return NewSelector(&cfg, zerolog.Nop())
}

func TestSelectTarget(t *testing.T) {
	input := []discover.ScoredCandidate{
		candidate(1, "A", 2020, 0.9, "s", "drama"),
		candidate(2, "B", 2020, 0.8, "s", "comedy"),
		candidate(3, "C", 2020, 0.7, "s", "horror"),
	}

	tests := []struct {
		name   string
		target int
		want   int
	}{
		{name: "fewer than available", target: 2, want: 2},
		{name: "exhausts remaining", target: 10, want: 3},
		{name: "zero target", target: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newSelector(0.3).Select(input, tt.target)
			if len(got) != tt.want {
				t.Errorf("len(result) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSelectZeroWeightKeepsOrder(t *testing.T) {
	input := []discover.ScoredCandidate{
		candidate(1, "A", 2020, 0.5, "s", "drama"),
		candidate(2, "B", 2020, 0.9, "s", "drama"),
		candidate(3, "C", 2020, 0.7, "s", "drama"),
	}
	got := newSelector(0).Select(input, 3)

	wantOrder := []int64{2, 3, 1}
	for i, id := range wantOrder {
		if got[i].ExternalID != id {
			t.Errorf("result[%d] = %d, want %d", i, got[i].ExternalID, id)
		}
		if got[i].ScoreBreakdown[discover.FactorDiversity] != 0 {
			t.Errorf("result[%d] diversity = %f, want 0", i, got[i].ScoreBreakdown[discover.FactorDiversity])
		}
	}
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	input := []discover.ScoredCandidate{
		candidate(1, "A", 2020, 0.9, "s", "drama"),
		candidate(2, "B", 2020, 0.8, "s", "drama"),
	}
	_ = newSelector(1).Select(input, 2)

	if input[0].FinalScore != 0.9 || input[1].FinalScore != 0.8 {
		t.Errorf("input scores mutated: %f %f", input[0].FinalScore, input[1].FinalScore)
	}
	if _, ok := input[0].ScoreBreakdown[discover.FactorDiversity]; ok {
		t.Error("input breakdown map mutated")
	}
}

func TestSelectPrefersNewGenre(t *testing.T) {
	input := []discover.ScoredCandidate{
		candidate(1, "Drama One", 2020, 0.90, "s1", "drama"),
		candidate(2, "Drama Two", 2020, 0.85, "s2", "drama"),
		candidate(3, "Comedy One", 2020, 0.80, "s3", "comedy"),
	}
	got := newSelector(0.5).Select(input, 2)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	picked := map[int64]bool{got[0].ExternalID: true, got[1].ExternalID: true}
	if !picked[1] || !picked[3] {
		t.Errorf("picked %v, want 1 and the unseen genre (3)", picked)
	}
}

// A later pick whose boost stays at 1 ends above an earlier pick whose
// boost has decayed; the result is still ordered by final score.
func TestSelectOrdersByFinalScore(t *testing.T) {
	cfg := discover.DefaultConfig()
	cfg.DiversityWeight = 0.5
	cfg.GenreDiversityShare = 1
	input := []discover.ScoredCandidate{
		candidate(1, "A", 2020, 0.50, "s", "g1"),
		candidate(2, "B", 2020, 0.49, "s", "g2"),
	}

	got := NewSelector(&cfg, zerolog.Nop()).Select(input, 2)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ExternalID != 2 || got[1].ExternalID != 1 {
		t.Errorf("order = %d,%d; want 2,1", got[0].ExternalID, got[1].ExternalID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].FinalScore > got[i-1].FinalScore {
			t.Errorf("rank %d score %f above rank %d score %f", i, got[i].FinalScore, i-1, got[i-1].FinalScore)
		}
	}
}

func TestSelectTitleYearDedup(t *testing.T) {
	input := []discover.ScoredCandidate{
		candidate(1, "The Thing", 1982, 0.9, "tmdb_trending", "horror"),
		candidate(2, "the thing!", 1982, 0.8, "trakt_trending", "horror"),
		candidate(3, "The Thing", 2011, 0.7, "tmdb_popular", "horror"),
		candidate(4, "", 0, 0.6, "tmdb_popular"),
		candidate(5, "", 0, 0.5, "tmdb_popular"),
	}
	got := newSelector(0.3).Select(input, 10)

	seen := make(map[string]bool)
	for _, c := range got {
		key := TitleYearKey(&c.RawCandidate)
		if seen[key] {
			t.Errorf("duplicate title/year key %q selected", key)
		}
		seen[key] = true
	}
	if len(got) != 4 {
		t.Errorf("len(result) = %d, want 4 (one re-release dropped)", len(got))
	}
}

// All candidates share one genre. With weight 1 the blended score of later
// picks is driven by the boost alone, so the diversity adjustment relative to
// an unweighted baseline strictly increases from the second to the third pick.
func TestSelectSameGenreScenario(t *testing.T) {
	var input []discover.ScoredCandidate
	for i := 0; i < 5; i++ {
		input = append(input, candidate(int64(i+1), fmt.Sprintf("Title %d", i), 2020,
			0.9-float64(i)*0.1, fmt.Sprintf("source-%d", i), "drama"))
	}

	baseline := newSelector(0).Select(input, 3)
	diverse := newSelector(1).Select(input, 3)

	if len(baseline) != 3 || len(diverse) != 3 {
		t.Fatalf("len = %d/%d, want 3", len(baseline), len(diverse))
	}

	contribution := make([]float64, 3)
	for i := range diverse {
		if diverse[i].ExternalID != baseline[i].ExternalID {
			t.Errorf("pick %d = %d, baseline %d", i, diverse[i].ExternalID, baseline[i].ExternalID)
		}
		contribution[i] = diverse[i].FinalScore - baseline[i].FinalScore
		if got := diverse[i].ScoreBreakdown[discover.FactorDiversity]; math.Abs(got-contribution[i]) > 1e-9 {
			t.Errorf("pick %d breakdown = %f, want %f", i, got, contribution[i])
		}
	}
	if !(contribution[2] > contribution[1]) {
		t.Errorf("contribution pick3 (%f) not greater than pick2 (%f)", contribution[2], contribution[1])
	}
}

func TestNovelty(t *testing.T) {
	selected := map[string]int{"drama": 2}
	if got := GenreNovelty([]string{"Drama", "Comedy"}, selected); got != 0.5 {
		t.Errorf("GenreNovelty() = %f, want 0.5", got)
	}
	if got := GenreNovelty(nil, selected); got != neutralNovelty {
		t.Errorf("GenreNovelty(nil) = %f, want %f", got, neutralNovelty)
	}

	providers := map[string]int{"HBO": 3}
	if got := ProviderNovelty("HBO", providers); got != 0.25 {
		t.Errorf("ProviderNovelty(HBO) = %f, want 0.25", got)
	}
	if got := ProviderNovelty("AMC", providers); got != 1 {
		t.Errorf("ProviderNovelty(AMC) = %f, want 1", got)
	}
}
