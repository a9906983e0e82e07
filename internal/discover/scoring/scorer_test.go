// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package scoring

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
)

type fakeTasteStore struct {
	taste      *discover.TasteSignal
	embeddings map[int64][]float32
	tasteErr   error
}

func (f *fakeTasteStore) GetUserTaste(_ context.Context, _ int64, _ discover.MediaType) (*discover.TasteSignal, error) {
	return f.taste, f.tasteErr
}

func (f *fakeTasteStore) GetContentEmbeddings(_ context.Context, _ discover.MediaType, ids []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32)
	for _, id := range ids {
		if e, ok := f.embeddings[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestScorer(store TasteStore) *Scorer {
	return NewScorer(store, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
}

func TestSimilarityScore(t *testing.T) {
	tests := []struct {
		name         string
		taste, other []float32
		want         float64
	}{
		{name: "identical", taste: []float32{1, 0}, other: []float32{2, 0}, want: 1},
		{name: "opposite", taste: []float32{1, 0}, other: []float32{-1, 0}, want: 0},
		{name: "orthogonal", taste: []float32{1, 0}, other: []float32{0, 1}, want: 0.5},
		{name: "no taste", taste: nil, other: []float32{1, 0}, want: Neutral},
		{name: "dimension mismatch", taste: []float32{1, 0, 0}, other: []float32{1, 0}, want: Neutral},
		{name: "zero vector", taste: []float32{0, 0}, other: []float32{1, 0}, want: Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimilarityScore(tt.taste, tt.other)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SimilarityScore() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNoveltyScore(t *testing.T) {
	counts := map[string]int{"drama": 6, "comedy": 4}

	tests := []struct {
		name   string
		genres []string
		counts map[string]int
		total  int
		want   float64
	}{
		{name: "heavily watched genre", genres: []string{"Drama"}, counts: counts, total: 10, want: 0.4},
		{name: "unseen genre", genres: []string{"Horror"}, counts: counts, total: 10, want: 1},
		{name: "mean across genres", genres: []string{"drama", "horror"}, counts: counts, total: 10, want: 0.7},
		{name: "no history", genres: []string{"drama"}, counts: nil, total: 0, want: Neutral},
		{name: "no genres", genres: nil, counts: counts, total: 10, want: Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NoveltyScore(tt.genres, tt.counts, tt.total)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NoveltyScore() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecencyScore(t *testing.T) {
	tests := []struct {
		name string
		year int
		want float64
	}{
		{name: "this year", year: 2026, want: 1},
		{name: "one half-life", year: 2021, want: 0.5},
		{name: "two half-lives", year: 2016, want: 0.25},
		{name: "future clamps", year: 2030, want: 1},
		{name: "unknown year", year: 0, want: Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecencyScore(tt.year, fixedNow, 5)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RecencyScore(%d) = %f, want %f", tt.year, got, tt.want)
			}
		})
	}
}

func TestRatingRange(t *testing.T) {
	r := NewRatingRange([]discover.RawCandidate{{VoteAverage: 6}, {VoteAverage: 8}, {VoteAverage: 7}})
	if got := r.Score(8); got != 1 {
		t.Errorf("Score(max) = %f, want 1", got)
	}
	if got := r.Score(6); got != 0 {
		t.Errorf("Score(min) = %f, want 0", got)
	}
	if got := r.Score(7); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Score(mid) = %f, want 0.5", got)
	}

	flat := NewRatingRange([]discover.RawCandidate{{VoteAverage: 7}, {VoteAverage: 7}})
	if got := flat.Score(7); got != Neutral {
		t.Errorf("degenerate Score() = %f, want %f", got, Neutral)
	}

	// The range follows the batch: 7 is the top of a lower batch.
	lower := NewRatingRange([]discover.RawCandidate{{VoteAverage: 5}, {VoteAverage: 7}})
	if got := lower.Score(7); got != 1 {
		t.Errorf("Score(7) over [5,7] = %f, want 1", got)
	}
}

func TestScoreRangesAndOrder(t *testing.T) {
	store := &fakeTasteStore{
		taste: &discover.TasteSignal{
			Embedding:   []float32{1, 0, 0},
			GenreCounts: map[string]int{"Drama": 8, "Comedy": 2},
		},
		embeddings: map[int64][]float32{
			1: {1, 0, 0},
			2: {-1, 0, 0},
			3: {0, 1, 0},
		},
	}
	candidates := []discover.RawCandidate{
		{ExternalID: 1, Title: "Close", Genres: []string{"Drama"}, VoteAverage: 7, ReleaseYear: 2024},
		{ExternalID: 2, Title: "Far", Genres: []string{"Comedy"}, VoteAverage: 9, ReleaseYear: 1990},
		{ExternalID: 3, Title: "Mid", Genres: []string{"Horror"}, VoteAverage: 5, ReleaseYear: 2010},
		{ExternalID: 4, Title: "NoEmbedding", VoteAverage: 6},
	}
	cfg := discover.DefaultConfig()

	s := newTestScorer(store)
	got, err := s.Score(context.Background(), 1, discover.MediaTypeMovie, candidates, &cfg)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(got) != len(candidates) {
		t.Fatalf("len(result) = %d, want %d", len(got), len(candidates))
	}

	for i, c := range got {
		for name, v := range map[string]float64{
			"similarity": c.Similarity, "novelty": c.Novelty, "rating": c.Rating, "recency": c.Recency,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s %s = %f, want in [0,1]", c.Title, name, v)
			}
		}
		if i > 0 && got[i-1].FinalScore < c.FinalScore {
			t.Errorf("result not sorted at %d: %f < %f", i, got[i-1].FinalScore, c.FinalScore)
		}
	}

	byID := make(map[int64]discover.ScoredCandidate)
	for _, c := range got {
		byID[c.ExternalID] = c
	}
	if byID[4].Similarity != Neutral {
		t.Errorf("missing embedding similarity = %f, want %f", byID[4].Similarity, Neutral)
	}
	if byID[1].Similarity != 1 || byID[2].Similarity != 0 {
		t.Errorf("similarity close=%f far=%f, want 1 and 0", byID[1].Similarity, byID[2].Similarity)
	}
	if byID[2].Rating != 1 || byID[3].Rating != 0 {
		t.Errorf("rating max=%f min=%f, want 1 and 0", byID[2].Rating, byID[3].Rating)
	}
}

func TestScoreDeterministic(t *testing.T) {
	store := &fakeTasteStore{taste: &discover.TasteSignal{GenreCounts: map[string]int{"drama": 1}}}
	candidates := []discover.RawCandidate{
		{ExternalID: 1, Genres: []string{"drama"}, VoteAverage: 7, ReleaseYear: 2020},
		{ExternalID: 2, Genres: []string{"comedy"}, VoteAverage: 7, ReleaseYear: 2020},
		{ExternalID: 3, Genres: []string{"comedy"}, VoteAverage: 7, ReleaseYear: 2020},
	}
	cfg := discover.DefaultConfig()
	s := newTestScorer(store)

	first, err := s.Score(context.Background(), 1, discover.MediaTypeSeries, candidates, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Score(context.Background(), 1, discover.MediaTypeSeries, candidates, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}
	// Ties keep input order.
	if first[0].ExternalID != 2 || first[1].ExternalID != 3 {
		t.Errorf("tie order = [%d %d], want [2 3]", first[0].ExternalID, first[1].ExternalID)
	}
}

func TestScoreColdStart(t *testing.T) {
	store := &fakeTasteStore{taste: &discover.TasteSignal{}}
	candidates := []discover.RawCandidate{
		{ExternalID: 1, Genres: []string{"drama"}, VoteAverage: 8, ReleaseYear: 2026},
		{ExternalID: 2, Genres: []string{"comedy"}, VoteAverage: 6, ReleaseYear: 2026},
	}
	cfg := discover.DefaultConfig()

	got, err := newTestScorer(store).Score(context.Background(), 1, discover.MediaTypeMovie, candidates, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.Similarity != Neutral || c.Novelty != Neutral {
			t.Errorf("cold start %d: similarity=%f novelty=%f, want neutral", c.ExternalID, c.Similarity, c.Novelty)
		}
	}
	if got[0].ExternalID != 1 {
		t.Errorf("top = %d, want the better-rated title", got[0].ExternalID)
	}
}

func TestScoreStoreError(t *testing.T) {
	store := &fakeTasteStore{tasteErr: errors.New("db down")}
	cfg := discover.DefaultConfig()
	_, err := newTestScorer(store).Score(context.Background(), 1, discover.MediaTypeMovie,
		[]discover.RawCandidate{{ExternalID: 1}}, &cfg)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCombine(t *testing.T) {
	w := discover.Weights{Similarity: 0.5, Novelty: 0.25, Rating: 0.25}
	final, breakdown := Combine(SubScores{Similarity: 1, Novelty: 0.4, Rating: 0.8, Recency: 1}, w)
	if math.Abs(final-0.8) > 1e-9 {
		t.Errorf("final = %f, want 0.8", final)
	}
	if breakdown[discover.FactorRecency] != 0 {
		t.Errorf("zero-weight recency contributed %f", breakdown[discover.FactorRecency])
	}
}
