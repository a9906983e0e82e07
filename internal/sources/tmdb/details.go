// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package tmdb

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/enrich"
)

// maxCast bounds the number of cast names kept per title.
const maxCast = 10

type credit struct {
	Name  string `json:"name"`
	Job   string `json:"job"`
	Order int    `json:"order"`
}

type detailResponse struct {
	ID               int64    `json:"id"`
	ImdbID           string   `json:"imdb_id"`
	Tagline          string   `json:"tagline"`
	Overview         string   `json:"overview"`
	OriginalLanguage string   `json:"original_language"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	Runtime          int      `json:"runtime"`
	EpisodeRunTime   []int    `json:"episode_run_time"`
	CreatedBy        []credit `json:"created_by"`
	Credits          struct {
		Cast []credit `json:"cast"`
		Crew []credit `json:"crew"`
	} `json:"credits"`
	ExternalIDs struct {
		ImdbID string `json:"imdb_id"`
	} `json:"external_ids"`
}

var _ enrich.DetailFetcher = (*Client)(nil)

// Details fetches the full record of one title with credits appended.
func (c *Client) Details(ctx context.Context, mediaType discover.MediaType, externalID int64) (*discover.Details, error) {
	params := c.params()
	params.Set("append_to_response", "credits,external_ids")

	var resp detailResponse
	path := fmt.Sprintf("/%s/%d", pathType(mediaType), externalID)
	if err := c.api.GetJSON(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("tmdb details %s: %w", path, err)
	}

	d := &discover.Details{
		Tagline:          resp.Tagline,
		Overview:         resp.Overview,
		OriginalLanguage: resp.OriginalLanguage,
		PosterPath:       resp.PosterPath,
		BackdropPath:     resp.BackdropPath,
		RuntimeMinutes:   resp.Runtime,
		CrossRefID:       firstNonEmpty(resp.ImdbID, resp.ExternalIDs.ImdbID),
	}
	if d.RuntimeMinutes == 0 && len(resp.EpisodeRunTime) > 0 {
		d.RuntimeMinutes = resp.EpisodeRunTime[0]
	}

	for _, member := range resp.Credits.Cast {
		if len(d.Cast) == maxCast {
			break
		}
		d.Cast = append(d.Cast, member.Name)
	}

	if mediaType == discover.MediaTypeSeries {
		for _, creator := range resp.CreatedBy {
			d.Directors = append(d.Directors, creator.Name)
		}
	}
	for _, member := range resp.Credits.Crew {
		if member.Job == "Director" {
			d.Directors = append(d.Directors, member.Name)
		}
	}

	return d, nil
}
