// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/diversity"
)

type fakeFetcher struct {
	calls  []int64
	failOn map[int64]bool
}

func (f *fakeFetcher) Details(_ context.Context, _ discover.MediaType, id int64) (*discover.Details, error) {
	f.calls = append(f.calls, id)
	if f.failOn[id] {
		return nil, errors.New("upstream 500")
	}
	return &discover.Details{
		Cast:           []string{"Actor"},
		Directors:      []string{"Director"},
		RuntimeMinutes: 120,
		Tagline:        "tagline",
		PosterPath:     "/full.jpg",
		Overview:       "full overview",
	}, nil
}

func rankedList(n int) []discover.ScoredCandidate {
	out := make([]discover.ScoredCandidate, n)
	for i := range out {
		out[i] = discover.ScoredCandidate{
			RawCandidate: discover.RawCandidate{ExternalID: int64(i + 1), Title: "t"},
			FinalScore:   1 - float64(i)/float64(n),
		}
	}
	return out
}

func TestApplyEnrichesHeadOnly(t *testing.T) {
	fetcher := &fakeFetcher{}
	ranked := rankedList(50)
	before := make([]int64, len(ranked))
	scores := make([]float64, len(ranked))
	for i := range ranked {
		before[i] = ranked[i].ExternalID
		scores[i] = ranked[i].FinalScore
	}

	res := NewGate(fetcher, zerolog.Nop()).Apply(context.Background(), discover.MediaTypeMovie, ranked, 10)

	if res.Enriched != 10 || res.Skipped != 40 {
		t.Errorf("result = %+v, want 10 enriched, 40 skipped", res)
	}
	if len(fetcher.calls) != 10 {
		t.Errorf("fetcher calls = %d, want 10", len(fetcher.calls))
	}

	enriched := 0
	for i := range ranked {
		if ranked[i].IsEnriched {
			enriched++
			if i >= 10 {
				t.Errorf("candidate at rank %d enriched", i)
			}
		}
		if ranked[i].ExternalID != before[i] {
			t.Errorf("rank %d = %d, want %d", i, ranked[i].ExternalID, before[i])
		}
		if ranked[i].FinalScore != scores[i] {
			t.Errorf("rank %d score changed: %f -> %f", i, scores[i], ranked[i].FinalScore)
		}
	}
	if enriched != 10 {
		t.Errorf("enriched count = %d, want 10", enriched)
	}
}

func TestApplyKeepsFailedCandidates(t *testing.T) {
	fetcher := &fakeFetcher{failOn: map[int64]bool{2: true}}
	ranked := rankedList(3)
	ranked[1].Overview = "cheap overview"

	res := NewGate(fetcher, zerolog.Nop()).Apply(context.Background(), discover.MediaTypeSeries, ranked, 3)

	if len(ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(ranked))
	}
	if res.Failed != 1 || res.Enriched != 2 {
		t.Errorf("result = %+v, want 2 enriched 1 failed", res)
	}
	if ranked[1].IsEnriched || ranked[1].Overview != "cheap overview" {
		t.Errorf("failed candidate = %+v, want unenriched with cheap fields", ranked[1])
	}
}

func TestMergeKeepsExistingArtwork(t *testing.T) {
	c := &discover.ScoredCandidate{RawCandidate: discover.RawCandidate{PosterPath: "/cheap.jpg"}}
	Merge(c, &discover.Details{PosterPath: "/full.jpg", BackdropPath: "/bd.jpg", RuntimeMinutes: 95})

	if c.PosterPath != "/cheap.jpg" {
		t.Errorf("PosterPath = %q, want cheap value kept", c.PosterPath)
	}
	if c.BackdropPath != "/bd.jpg" {
		t.Errorf("BackdropPath = %q, want filled", c.BackdropPath)
	}
	if !c.IsEnriched || c.RuntimeMinutes != 95 {
		t.Errorf("candidate = %+v, want enriched with runtime", c)
	}
}

func TestApplyZeroLimit(t *testing.T) {
	fetcher := &fakeFetcher{}
	ranked := rankedList(5)
	ranked[0].IsEnriched = true

	NewGate(fetcher, zerolog.Nop()).Apply(context.Background(), discover.MediaTypeMovie, ranked, 0)

	if len(fetcher.calls) != 0 {
		t.Errorf("fetcher called %d times, want 0", len(fetcher.calls))
	}
	for i := range ranked {
		if ranked[i].IsEnriched {
			t.Errorf("rank %d enriched with zero limit", i)
		}
	}
}

func TestApplyKeepsSelectionOrder(t *testing.T) {
	cfg := discover.DefaultConfig()
	cfg.DiversityWeight = 0.5
	cfg.GenreDiversityShare = 1
	input := []discover.ScoredCandidate{
		{RawCandidate: discover.RawCandidate{ExternalID: 1, Title: "A", Genres: []string{"g1"}}, FinalScore: 0.50},
		{RawCandidate: discover.RawCandidate{ExternalID: 2, Title: "B", Genres: []string{"g2"}}, FinalScore: 0.49},
		{RawCandidate: discover.RawCandidate{ExternalID: 3, Title: "C", Genres: []string{"g1"}}, FinalScore: 0.48},
	}
	selected := diversity.NewSelector(&cfg, zerolog.Nop()).Select(input, 3)
	before := make([]int64, len(selected))
	for i := range selected {
		before[i] = selected[i].ExternalID
	}

	NewGate(&fakeFetcher{}, zerolog.Nop()).Apply(context.Background(), discover.MediaTypeMovie, selected, 1)

	for i := range selected {
		if selected[i].ExternalID != before[i] {
			t.Errorf("rank %d = %d, want %d", i, selected[i].ExternalID, before[i])
		}
		if want := i == 0; selected[i].IsEnriched != want {
			t.Errorf("rank %d enriched = %v, want %v", i, selected[i].IsEnriched, want)
		}
	}
}
