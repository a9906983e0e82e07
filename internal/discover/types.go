// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package discover

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors shared across the pipeline packages.
var (
	// ErrInvalidMediaType is returned when a media type string is not recognized.
	ErrInvalidMediaType = errors.New("invalid media type")

	// ErrRunFinalized is returned when a terminal run is transitioned again.
	ErrRunFinalized = errors.New("discovery run already finalized")

	// ErrCountsNotMonotonic is returned when stage counters grow between stages.
	ErrCountsNotMonotonic = errors.New("stage counts must not increase between stages")
)

// MediaType distinguishes movies from series.
type MediaType string

const (
	// MediaTypeMovie is a feature film.
	MediaTypeMovie MediaType = "movie"
	// MediaTypeSeries is a television series.
	MediaTypeSeries MediaType = "series"
)

// AllMediaTypes lists the media types a batch run iterates over, in order.
var AllMediaTypes = []MediaType{MediaTypeMovie, MediaTypeSeries}

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	return m == MediaTypeMovie || m == MediaTypeSeries
}

// String returns the canonical name.
func (m MediaType) String() string {
	return string(m)
}

// ParseMediaType accepts the canonical names plus the aliases used by
// external providers ("tv", "show", "movies").
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return MediaTypeMovie, nil
	case "series", "tv", "show", "shows":
		return MediaTypeSeries, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, s)
	}
}

// Key identifies a title uniquely within one media type.
type Key struct {
	MediaType  MediaType
	ExternalID int64
}

// RawCandidate is an unscored title as returned by an external source.
type RawCandidate struct {
	// ExternalID is the primary external identifier (TMDB id).
	ExternalID int64 `json:"external_id"`

	// CrossRefID is the secondary identifier (IMDb id), possibly empty.
	CrossRefID string `json:"cross_ref_id,omitempty"`

	// MediaType is movie or series.
	MediaType MediaType `json:"media_type"`

	// Title is the localized display title.
	Title string `json:"title"`

	// OriginalTitle is the title in the original language.
	OriginalTitle string `json:"original_title,omitempty"`

	// OriginalLanguage is the ISO 639-1 code of the original language.
	OriginalLanguage string `json:"original_language,omitempty"`

	// ReleaseYear is the first release/air year, 0 when unknown.
	ReleaseYear int `json:"release_year,omitempty"`

	Overview string `json:"overview,omitempty"`

	// Genres holds genre names; GenreIDs the matching provider ids.
	Genres   []string `json:"genres,omitempty"`
	GenreIDs []int    `json:"genre_ids,omitempty"`

	PosterPath   string `json:"poster_path,omitempty"`
	BackdropPath string `json:"backdrop_path,omitempty"`

	// Popularity and vote statistics as reported by the source.
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`

	// Providers groups studios or networks attached to the title.
	Providers []string `json:"providers,omitempty"`

	// Source is the provenance tag, e.g. "tmdb_trending" or "trakt_recommended".
	Source string `json:"source"`

	// SourceScore is a personalized relevance hint from the source (0 if none).
	SourceScore float64 `json:"source_score,omitempty"`

	// SourceMediaID is the library item that led a personalized source here.
	SourceMediaID int64 `json:"source_media_id,omitempty"`
}

// Key returns the identity of the candidate.
func (c *RawCandidate) Key() Key {
	return Key{MediaType: c.MediaType, ExternalID: c.ExternalID}
}

// ProviderKey returns the first provider name, or "" when none is known.
func (c *RawCandidate) ProviderKey() string {
	if len(c.Providers) == 0 {
		return ""
	}
	return c.Providers[0]
}

// Details carries the fields filled only by full enrichment.
type Details struct {
	Cast             []string `json:"cast,omitempty"`
	Directors        []string `json:"directors,omitempty"`
	RuntimeMinutes   int      `json:"runtime_minutes,omitempty"`
	Tagline          string   `json:"tagline,omitempty"`
	PosterPath       string   `json:"poster_path,omitempty"`
	BackdropPath     string   `json:"backdrop_path,omitempty"`
	Overview         string   `json:"overview,omitempty"`
	OriginalLanguage string   `json:"original_language,omitempty"`
	CrossRefID       string   `json:"cross_ref_id,omitempty"`
}

// ScoredCandidate is a RawCandidate after scoring, with optional enrichment.
type ScoredCandidate struct {
	RawCandidate

	// Sub-scores, each in [0,1].
	Similarity float64 `json:"similarity_score"`
	Novelty    float64 `json:"novelty_score"`
	Rating     float64 `json:"rating_score"`
	Recency    float64 `json:"recency_score"`

	// FinalScore is the weighted combination, adjusted by diversity selection.
	FinalScore float64 `json:"final_score"`

	// ScoreBreakdown holds weighted contributions keyed by factor name.
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`

	// IsEnriched is true only when full details were fetched.
	IsEnriched bool `json:"is_enriched"`

	Cast           []string `json:"cast,omitempty"`
	Directors      []string `json:"directors,omitempty"`
	RuntimeMinutes int      `json:"runtime_minutes,omitempty"`
	Tagline        string   `json:"tagline,omitempty"`
}

// PoolCandidate is a RawCandidate in the shared global pool.
type PoolCandidate struct {
	RawCandidate

	// FetchedAt is refreshed on every upsert.
	FetchedAt time.Time `json:"fetched_at"`

	// CreatedAt is set on first insert and never changed.
	CreatedAt time.Time `json:"created_at"`
}

// RunStatus is the lifecycle state of a discovery run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunCounts are the per-stage candidate counters of a run.
type RunCounts struct {
	Fetched  int `json:"candidates_fetched"`
	Filtered int `json:"candidates_filtered"`
	Scored   int `json:"candidates_scored"`
	Stored   int `json:"candidates_stored"`
}

// Check verifies stored <= scored <= filtered <= fetched. Stages that have
// not run yet report zero, which always satisfies the order.
func (c RunCounts) Check() error {
	stages := []struct {
		name  string
		value int
	}{
		{"fetched", c.Fetched},
		{"filtered", c.Filtered},
		{"scored", c.Scored},
		{"stored", c.Stored},
	}
	for i := 1; i < len(stages); i++ {
		if stages[i].value > stages[i-1].value {
			return fmt.Errorf("%w: %s=%d > %s=%d", ErrCountsNotMonotonic,
				stages[i].name, stages[i].value, stages[i-1].name, stages[i-1].value)
		}
	}
	return nil
}

// DiscoveryRun is the audit record of one pipeline execution.
type DiscoveryRun struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	MediaType  MediaType  `json:"media_type"`
	Status     RunStatus  `json:"status"`
	Counts     RunCounts  `json:"counts"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// Finish moves a running run to a terminal status. A failed run carries
// the error message.
func (r *DiscoveryRun) Finish(status RunStatus, at time.Time, runErr error) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s is %s", ErrRunFinalized, r.ID, r.Status)
	}
	if !status.IsTerminal() {
		return fmt.Errorf("cannot finish run with non-terminal status %q", status)
	}
	r.Status = status
	r.FinishedAt = &at
	r.DurationMS = at.Sub(r.StartedAt).Milliseconds()
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return nil
}

// User is a library user that discovery runs are generated for.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`

	// MediaTypes restricts the batch to these types; empty means all.
	MediaTypes []MediaType `json:"media_types,omitempty"`

	// Weights overrides the admin scoring weights when set.
	Weights *Weights `json:"weights,omitempty"`
}

// WantsMediaType reports whether the batch should generate m for the user.
func (u *User) WantsMediaType(m MediaType) bool {
	if len(u.MediaTypes) == 0 {
		return true
	}
	for _, t := range u.MediaTypes {
		if t == m {
			return true
		}
	}
	return false
}

// WatchSeed is a recently watched library title used to seed personalized
// source queries.
type WatchSeed struct {
	// MediaID is the library item id.
	MediaID int64

	// ExternalID is the TMDB id of the library item.
	ExternalID int64

	Title string

	// TraktID is the Trakt id when known, 0 otherwise.
	TraktID int64
}

// TasteSignal is the read-only taste input of a user for one media type.
type TasteSignal struct {
	// Embedding is the user's taste vector, nil when none has been learned.
	Embedding []float32

	// GenreCounts maps genre name to the number of watched titles in it.
	GenreCounts map[string]int
}

// TotalGenreCount sums all genre counts.
func (t *TasteSignal) TotalGenreCount() int {
	total := 0
	for _, n := range t.GenreCounts {
		total += n
	}
	return total
}
