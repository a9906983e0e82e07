// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/pool"
	"github.com/tomtom215/marquee/internal/sources/apiclient"
)

// Provenance tags of TMDB candidates.
const (
	SourceTrending    = "tmdb_trending"
	SourcePopular     = "tmdb_popular"
	SourceTopRated    = "tmdb_top_rated"
	SourceDiscover    = "tmdb_discover"
	SourceRecommended = "tmdb_recommended"
)

// ListSource is a global source backed by one TMDB list endpoint.
type ListSource struct {
	client *Client
	name   string
	path   func(discover.MediaType) string
	params func(discover.MediaType) url.Values
}

var _ pool.GlobalSource = (*ListSource)(nil)

// Name returns the provenance tag.
func (s *ListSource) Name() string {
	return s.name
}

// FetchGlobal returns up to limit candidates. Exhausting the 429 retry budget
// yields no data rather than an error.
func (s *ListSource) FetchGlobal(ctx context.Context, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error) {
	var extra url.Values
	if s.params != nil {
		extra = s.params(mediaType)
	}

	items, err := s.client.fetchList(ctx, s.path(mediaType), extra, limit)
	if err != nil {
		if errors.Is(err, apiclient.ErrRateLimited) {
			s.client.logger.Warn().Str("source", s.name).Msg("rate limit budget exhausted, returning no data")
			return nil, nil
		}
		return nil, err
	}

	out := make([]discover.RawCandidate, len(items))
	for i := range items {
		out[i] = toCandidate(&items[i], mediaType, s.name)
	}
	return out, nil
}

// TrendingSource lists trending titles for window "day" or "week".
func (c *Client) TrendingSource(window string) *ListSource {
	if window != "day" {
		window = "week"
	}
	return &ListSource{
		client: c,
		name:   SourceTrending,
		path: func(m discover.MediaType) string {
			return fmt.Sprintf("/trending/%s/%s", pathType(m), window)
		},
	}
}

// PopularSource lists currently popular titles.
func (c *Client) PopularSource() *ListSource {
	return &ListSource{
		client: c,
		name:   SourcePopular,
		path:   func(m discover.MediaType) string { return "/" + pathType(m) + "/popular" },
		params: c.regionParams,
	}
}

// TopRatedSource lists the highest rated titles.
func (c *Client) TopRatedSource() *ListSource {
	return &ListSource{
		client: c,
		name:   SourceTopRated,
		path:   func(m discover.MediaType) string { return "/" + pathType(m) + "/top_rated" },
		params: c.regionParams,
	}
}

// DiscoverSource lists well-reviewed titles with at least minVotes votes.
func (c *Client) DiscoverSource(minVotes int) *ListSource {
	return &ListSource{
		client: c,
		name:   SourceDiscover,
		path:   func(m discover.MediaType) string { return "/discover/" + pathType(m) },
		params: func(m discover.MediaType) url.Values {
			params := c.regionParams(m)
			params.Set("sort_by", "vote_average.desc")
			params.Set("vote_count.gte", strconv.Itoa(minVotes))
			params.Set("include_adult", "false")
			return params
		},
	}
}

func (c *Client) regionParams(m discover.MediaType) url.Values {
	params := url.Values{}
	if c.region != "" && m == discover.MediaTypeMovie {
		params.Set("region", c.region)
	}
	return params
}

// SeedProvider returns the recently watched titles of a user.
type SeedProvider interface {
	RecentlyWatched(ctx context.Context, userID int64, mediaType discover.MediaType, limit int) ([]discover.WatchSeed, error)
}

// RecommendationsSource queries TMDB recommendations for each recently
// watched title of the user.
type RecommendationsSource struct {
	client    *Client
	seeds     SeedProvider
	seedLimit int
}

var _ pool.PersonalSource = (*RecommendationsSource)(nil)

// RecommendationsSource creates the personalized TMDB source. seedLimit
// bounds how many watched titles are used as seeds.
func (c *Client) RecommendationsSource(seeds SeedProvider, seedLimit int) *RecommendationsSource {
	if seedLimit <= 0 {
		seedLimit = 10
	}
	return &RecommendationsSource{client: c, seeds: seeds, seedLimit: seedLimit}
}

// Name returns the provenance tag.
func (s *RecommendationsSource) Name() string {
	return SourceRecommended
}

// FetchPersonalized returns recommendations for the user's recent titles.
// SourceScore favors recent seeds and high positions: 1/(1+seedRank)
// scaled by (1 - position/len).
func (s *RecommendationsSource) FetchPersonalized(ctx context.Context, userID int64, mediaType discover.MediaType, limit int) ([]discover.RawCandidate, error) {
	seeds, err := s.seeds.RecentlyWatched(ctx, userID, mediaType, s.seedLimit)
	if err != nil {
		return nil, fmt.Errorf("load watch seeds: %w", err)
	}

	var out []discover.RawCandidate
	for rank, seed := range seeds {
		if len(out) >= limit {
			break
		}
		if seed.ExternalID == 0 {
			continue
		}

		path := fmt.Sprintf("/%s/%d/recommendations", pathType(mediaType), seed.ExternalID)
		items, err := s.client.fetchList(ctx, path, nil, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, apiclient.ErrRateLimited) {
				s.client.logger.Warn().Int64("user_id", userID).Msg("rate limit budget exhausted, stopping seed expansion")
				break
			}
			s.client.logger.Debug().Err(err).Int64("seed", seed.ExternalID).Msg("recommendations for seed failed")
			continue
		}

		seedWeight := 1 / float64(1+rank)
		for i := range items {
			c := toCandidate(&items[i], mediaType, SourceRecommended)
			c.SourceScore = seedWeight * (1 - float64(i)/float64(len(items)))
			c.SourceMediaID = seed.MediaID
			out = append(out, c)
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
