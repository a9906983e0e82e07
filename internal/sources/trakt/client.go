// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package trakt adapts the Trakt v2 API into discovery candidates: a global
// trending source and a personalized recommendations source for users who
// linked their Trakt account.
//
// Trakt titles carry a TMDB id which becomes the candidate ExternalID, so
// they merge with TMDB candidates by key. Titles without a TMDB id are
// skipped.
package trakt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/pool"
	"github.com/tomtom215/marquee/internal/sources/apiclient"
)

// DefaultBaseURL is the public Trakt API endpoint.
const DefaultBaseURL = "https://api.trakt.tv"

// apiVersion is sent in the trakt-api-version header.
const apiVersion = "2"

// Provenance tags of Trakt candidates.
const (
	SourceTrending    = "trakt_trending"
	SourceRecommended = "trakt_recommended"
)

// maxLimit is the largest page Trakt accepts.
const maxLimit = 100

type ids struct {
	Trakt int64  `json:"trakt"`
	Slug  string `json:"slug"`
	IMDB  string `json:"imdb"`
	TMDB  int64  `json:"tmdb"`
}

type title struct {
	Title    string   `json:"title"`
	Year     int      `json:"year"`
	IDs      ids      `json:"ids"`
	Overview string   `json:"overview"`
	Rating   float64  `json:"rating"`
	Votes    int      `json:"votes"`
	Language string   `json:"language"`
	Genres   []string `json:"genres"`
	Network  string   `json:"network"`
}

type trendingItem struct {
	Watchers int    `json:"watchers"`
	Movie    *title `json:"movie"`
	Show     *title `json:"show"`
}

// Config configures a Client.
type Config struct {
	ClientID   string
	BaseURL    string
	Tier       apiclient.Tier
	Timeout    time.Duration
	MaxRetries int
}

// Client calls Trakt through the shared rate-limited transport.
type Client struct {
	api    *apiclient.Client
	logger zerolog.Logger
}

// Option adjusts the transport configuration before the client is built.
type Option func(*apiclient.Config)

// New creates a Trakt client.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errors.New("trakt client id required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiCfg := apiclient.Config{
		Name:       "trakt",
		BaseURL:    baseURL,
		Timeout:    cfg.Timeout,
		Tier:       cfg.Tier,
		MaxRetries: cfg.MaxRetries,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"trakt-api-key":     clientID,
			"trakt-api-version": apiVersion,
		},
	}
	for _, opt := range opts {
		opt(&apiCfg)
	}

	return &Client{
		api:    apiclient.New(apiCfg, logger),
		logger: logger.With().Str("component", "trakt").Logger(),
	}, nil
}

func pathType(mediaType discover.MediaType) string {
	if mediaType == discover.MediaTypeSeries {
		return "shows"
	}
	return "movies"
}

func limitParams(limit int) url.Values {
	params := url.Values{}
	params.Set("extended", "full")
	params.Set("limit", strconv.Itoa(min(max(limit, 1), maxLimit)))
	return params
}

// toCandidate converts a Trakt title. ok is false without a TMDB id.
func toCandidate(t *title, mediaType discover.MediaType, source string) (discover.RawCandidate, bool) {
	if t == nil || t.IDs.TMDB == 0 {
		return discover.RawCandidate{}, false
	}
	c := discover.RawCandidate{
		ExternalID:       t.IDs.TMDB,
		CrossRefID:       t.IDs.IMDB,
		MediaType:        mediaType,
		Title:            t.Title,
		ReleaseYear:      t.Year,
		Overview:         t.Overview,
		OriginalLanguage: t.Language,
		Genres:           normalizeGenres(t.Genres),
		VoteAverage:      t.Rating,
		VoteCount:        t.Votes,
		Source:           source,
	}
	if t.Network != "" {
		c.Providers = []string{t.Network}
	}
	return c, true
}

// normalizeGenres turns Trakt slugs ("science-fiction") into display names.
func normalizeGenres(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		words := strings.Split(s, "-")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		out = append(out, strings.Join(words, " "))
	}
	return out
}

// TrendingSource is the global Trakt trending list.
type TrendingSource struct {
	client *Client
}

var _ pool.GlobalSource = (*TrendingSource)(nil)

// TrendingSource returns the global trending source.
func (c *Client) TrendingSource() *TrendingSource {
	return &TrendingSource{client: c}
}

// Name returns the provenance tag.
func (s *TrendingSource) Name() string {
	return SourceTrending
}

// FetchGlobal returns trending titles. Watcher counts become Popularity.
func (s *TrendingSource) FetchGlobal(ctx context.Context, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error) {
	var items []trendingItem
	path := "/" + pathType(mediaType) + "/trending"
	if err := s.client.api.GetJSON(ctx, path, limitParams(limit), &items); err != nil {
		if errors.Is(err, apiclient.ErrRateLimited) {
			s.client.logger.Warn().Msg("rate limit budget exhausted, returning no data")
			return nil, nil
		}
		return nil, fmt.Errorf("trakt %s: %w", path, err)
	}

	out := make([]discover.RawCandidate, 0, len(items))
	for i := range items {
		t := items[i].Movie
		if mediaType == discover.MediaTypeSeries {
			t = items[i].Show
		}
		c, ok := toCandidate(t, mediaType, SourceTrending)
		if !ok {
			continue
		}
		c.Popularity = float64(items[i].Watchers)
		out = append(out, c)
	}
	return out, nil
}

// TokenProvider returns a user's Trakt OAuth access token, "" when the
// user has not linked an account.
type TokenProvider interface {
	TraktToken(ctx context.Context, userID int64) (string, error)
}

// RecommendationsSource serves Trakt's per-user recommendations.
type RecommendationsSource struct {
	client *Client
	tokens TokenProvider
}

var _ pool.PersonalSource = (*RecommendationsSource)(nil)

// RecommendationsSource returns the personalized source.
func (c *Client) RecommendationsSource(tokens TokenProvider) *RecommendationsSource {
	return &RecommendationsSource{client: c, tokens: tokens}
}

// Name returns the provenance tag.
func (s *RecommendationsSource) Name() string {
	return SourceRecommended
}

// FetchPersonalized returns the user's recommendations; none when the user
// has no linked account. SourceScore decreases linearly with rank.
func (s *RecommendationsSource) FetchPersonalized(ctx context.Context, userID int64, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error) {
	token, err := s.tokens.TraktToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load trakt token: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	var items []title
	path := "/recommendations/" + pathType(mediaType)
	params := limitParams(limit)
	params.Set("ignore_collected", "true")
	headers := map[string]string{"Authorization": "Bearer " + token}
	if err := s.client.api.GetJSONWithHeaders(ctx, path, params, headers, &items); err != nil {
		if errors.Is(err, apiclient.ErrRateLimited) {
			s.client.logger.Warn().Int64("user_id", userID).Msg("rate limit budget exhausted, returning no data")
			return nil, nil
		}
		return nil, fmt.Errorf("trakt %s: %w", path, err)
	}

	out := make([]discover.RawCandidate, 0, len(items))
	for i := range items {
		c, ok := toCandidate(&items[i], mediaType, SourceRecommended)
		if !ok {
			continue
		}
		c.SourceScore = 1 - float64(i)/float64(len(items))
		out = append(out, c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
