// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package tmdb adapts The Movie Database v3 API into discovery candidates.
//
// It provides global sources (trending, popular, top rated, discover), a
// personalized source seeded by the user's recently watched titles, and the
// detail fetcher used by the enrichment gate.
package tmdb

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
	"github.com/tomtom215/marquee/internal/sources/apiclient"
)

// DefaultBaseURL is the public TMDB v3 endpoint.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// pageSize is the fixed number of results per TMDB list page.
const pageSize = 20

// maxPages is the highest page TMDB serves for list endpoints.
const maxPages = 500

// listItem is one entry of a TMDB paginated list.
type listItem struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	OriginalTitle    string  `json:"original_title"`
	OriginalName     string  `json:"original_name"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	GenreIDs         []int   `json:"genre_ids"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
}

// listResponse models the TMDB paginated list response.
type listResponse struct {
	Page         int        `json:"page"`
	Results      []listItem `json:"results"`
	TotalPages   int        `json:"total_pages"`
	TotalResults int        `json:"total_results"`
}

// Config configures a Client.
type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
	Tier     apiclient.Tier
	Timeout  time.Duration

	// MaxRetries bounds retries after HTTP 429.
	MaxRetries int
}

// Client calls TMDB through the shared rate-limited transport.
type Client struct {
	api      *apiclient.Client
	apiKey   string
	language string
	region   string
	logger   zerolog.Logger
}

// Option adjusts the transport configuration before the client is built.
type Option func(*apiclient.Config)

// New creates a TMDB client.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiCfg := apiclient.Config{
		Name:       "tmdb",
		BaseURL:    baseURL,
		Timeout:    cfg.Timeout,
		Tier:       cfg.Tier,
		MaxRetries: cfg.MaxRetries,
	}
	for _, opt := range opts {
		opt(&apiCfg)
	}

	return &Client{
		api:      apiclient.New(apiCfg, logger),
		apiKey:   apiKey,
		language: strings.TrimSpace(cfg.Language),
		region:   strings.TrimSpace(cfg.Region),
		logger:   logger.With().Str("component", "tmdb").Logger(),
	}, nil
}

// pathType maps a media type onto the TMDB path segment.
func pathType(mediaType discover.MediaType) string {
	if mediaType == discover.MediaTypeSeries {
		return "tv"
	}
	return "movie"
}

func (c *Client) params() url.Values {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	return params
}

// fetchList pages through a list endpoint until limit items are collected or
// the last page is reached. A failure after the first page returns what was
// collected so far.
func (c *Client) fetchList(ctx context.Context, path string, extra url.Values, limit int) ([]listItem, error) {
	var items []listItem
	pages := min((limit+pageSize-1)/pageSize, maxPages)

	for page := 1; page <= pages; page++ {
		params := c.params()
		for k, v := range extra {
			params[k] = v
		}
		params.Set("page", strconv.Itoa(page))

		var resp listResponse
		if err := c.api.GetJSON(ctx, path, params, &resp); err != nil {
			if page > 1 && ctx.Err() == nil {
				c.logger.Warn().Err(err).Str("path", path).Int("page", page).Msg("stopping pagination early")
				break
			}
			return nil, fmt.Errorf("tmdb %s: %w", path, err)
		}
		items = append(items, resp.Results...)
		if resp.TotalPages > 0 && page >= resp.TotalPages {
			break
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// toCandidate converts a list item into a raw candidate.
func toCandidate(item *listItem, mediaType discover.MediaType, source string) discover.RawCandidate {
	title, original, date := item.Title, item.OriginalTitle, item.ReleaseDate
	if mediaType == discover.MediaTypeSeries {
		title, original, date = item.Name, item.OriginalName, item.FirstAirDate
	}
	if title == "" {
		title = firstNonEmpty(item.Title, item.Name)
	}

	return discover.RawCandidate{
		ExternalID:       item.ID,
		MediaType:        mediaType,
		Title:            title,
		OriginalTitle:    original,
		OriginalLanguage: item.OriginalLanguage,
		ReleaseYear:      parseYear(date),
		Overview:         item.Overview,
		Genres:           GenreNames(mediaType, item.GenreIDs),
		GenreIDs:         item.GenreIDs,
		PosterPath:       item.PosterPath,
		BackdropPath:     item.BackdropPath,
		Popularity:       item.Popularity,
		VoteAverage:      item.VoteAverage,
		VoteCount:        item.VoteCount,
		Source:           source,
	}
}

// parseYear extracts the year of a TMDB "YYYY-MM-DD" date, 0 if absent.
func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
