// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/validation"
)

// rawColumnNames lists candidateColumns in declaration order.
const rawColumnNames = `external_id, cross_ref_id, media_type, title, original_title, original_language,
	release_year, overview, genres, genre_ids, poster_path, backdrop_path,
	popularity, vote_average, vote_count, providers, source, source_score, source_media_id`

// rawArgs returns the query arguments for rawColumnNames.
func rawArgs(c *discover.RawCandidate) ([]interface{}, error) {
	genres, err := marshalJSON(c.Genres)
	if err != nil {
		return nil, fmt.Errorf("marshal genres: %w", err)
	}
	providers, err := marshalJSON(c.Providers)
	if err != nil {
		return nil, fmt.Errorf("marshal providers: %w", err)
	}
	return []interface{}{
		c.ExternalID, nullableString(c.CrossRefID), string(c.MediaType), c.Title,
		nullableString(c.OriginalTitle), nullableString(c.OriginalLanguage),
		c.ReleaseYear, nullableString(c.Overview), genres, encodeGenreIDs(c.GenreIDs),
		nullableString(c.PosterPath), nullableString(c.BackdropPath),
		c.Popularity, c.VoteAverage, c.VoteCount, providers, c.Source, c.SourceScore, c.SourceMediaID,
	}, nil
}

// rawScan holds nullable scan targets for rawColumnNames.
type rawScan struct {
	c                discover.RawCandidate
	mediaType        string
	crossRef         sql.NullString
	originalTitle    sql.NullString
	originalLanguage sql.NullString
	releaseYear      sql.NullInt64
	overview         sql.NullString
	genres           sql.NullString
	genreIDs         sql.NullString
	posterPath       sql.NullString
	backdropPath     sql.NullString
	popularity       sql.NullFloat64
	voteAverage      sql.NullFloat64
	voteCount        sql.NullInt64
	providers        sql.NullString
	sourceScore      sql.NullFloat64
	sourceMediaID    sql.NullInt64
}

func (r *rawScan) dest() []interface{} {
	return []interface{}{
		&r.c.ExternalID, &r.crossRef, &r.mediaType, &r.c.Title, &r.originalTitle, &r.originalLanguage,
		&r.releaseYear, &r.overview, &r.genres, &r.genreIDs, &r.posterPath, &r.backdropPath,
		&r.popularity, &r.voteAverage, &r.voteCount, &r.providers, &r.c.Source, &r.sourceScore, &r.sourceMediaID,
	}
}

func (r *rawScan) candidate() (discover.RawCandidate, error) {
	c := r.c
	c.MediaType = discover.MediaType(r.mediaType)
	c.CrossRefID = r.crossRef.String
	c.OriginalTitle = r.originalTitle.String
	c.OriginalLanguage = r.originalLanguage.String
	c.ReleaseYear = int(r.releaseYear.Int64)
	c.Overview = r.overview.String
	c.GenreIDs = decodeGenreIDs(r.genreIDs)
	c.PosterPath = r.posterPath.String
	c.BackdropPath = r.backdropPath.String
	c.Popularity = r.popularity.Float64
	c.VoteAverage = r.voteAverage.Float64
	c.VoteCount = int(r.voteCount.Int64)
	c.SourceScore = r.sourceScore.Float64
	c.SourceMediaID = r.sourceMediaID.Int64
	if err := parseJSONField(r.genres, "genres", &c.Genres); err != nil {
		return c, err
	}
	if err := parseJSONField(r.providers, "providers", &c.Providers); err != nil {
		return c, err
	}
	return c, nil
}

// ReplaceCandidates swaps the stored result of the run's user and media type
// for candidates, in rank order, inside one transaction.
func (db *DB) ReplaceCandidates(ctx context.Context, run *discover.DiscoveryRun, candidates []discover.ScoredCandidate) (err error) {
	start := time.Now()
	defer func() { observe("replace", "discovery_candidates", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM discovery_candidates WHERE user_id = ? AND media_type = ?`,
		run.UserID, string(run.MediaType)); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO discovery_candidates (
		run_id, user_id, result_rank, `+rawColumnNames+`,
		similarity_score, novelty_score, rating_score, recency_score, final_score, score_breakdown,
		is_enriched, cast_members, directors, runtime_minutes, tagline, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for i := range candidates {
		c := &candidates[i]
		raw, rawErr := rawArgs(&c.RawCandidate)
		if rawErr != nil {
			return rawErr
		}
		breakdown, mErr := json.Marshal(c.ScoreBreakdown)
		if mErr != nil {
			return fmt.Errorf("marshal score breakdown: %w", mErr)
		}
		cast, mErr := marshalJSON(c.Cast)
		if mErr != nil {
			return fmt.Errorf("marshal cast: %w", mErr)
		}
		directors, mErr := marshalJSON(c.Directors)
		if mErr != nil {
			return fmt.Errorf("marshal directors: %w", mErr)
		}

		args := make([]interface{}, 0, 34)
		args = append(args, run.ID, run.UserID, i+1)
		args = append(args, raw...)
		args = append(args, c.Similarity, c.Novelty, c.Rating, c.Recency, c.FinalScore, string(breakdown),
			c.IsEnriched, cast, directors, c.RuntimeMinutes, nullableString(c.Tagline), now)

		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert candidate %d: %w", c.ExternalID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidates: %w", err)
	}
	return nil
}

// CandidateQuery filters the stored result of one user. GenreIDs match any
// of the given ids.
type CandidateQuery struct {
	UserID        int64              `validate:"required,gt=0"`
	MediaType     discover.MediaType `validate:"required,mediatype"`
	Languages     []string           `validate:"omitempty,max=20,dive,langcode"`
	GenreIDs      []int              `validate:"omitempty,max=20,dive,gt=0"`
	YearFrom      int                `validate:"omitempty,min=1870,max=2200"`
	YearTo        int                `validate:"omitempty,min=1870,max=2200,gtefield=YearFrom"`
	MinSimilarity float64            `validate:"omitempty,gte=0,lte=1"`
	Page          int                `validate:"omitempty,min=1"`
	PageSize      int                `validate:"omitempty,min=1,max=100"`
}

// CandidatePage is one page of stored candidates in rank order.
type CandidatePage struct {
	Candidates []discover.ScoredCandidate `json:"candidates"`
	Total      int                        `json:"total"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
}

// ListCandidates returns a page of the user's latest stored result.
func (db *DB) ListCandidates(ctx context.Context, q CandidateQuery) (*CandidatePage, error) {
	if err := validation.ValidateStruct(&q); err != nil {
		return nil, err
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}

	where := []string{"user_id = ?", "media_type = ?"}
	args := []interface{}{q.UserID, string(q.MediaType)}

	if len(q.Languages) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Languages)), ", ")
		where = append(where, "original_language IN ("+placeholders+")")
		for _, lang := range q.Languages {
			args = append(args, lang)
		}
	}
	if len(q.GenreIDs) > 0 {
		clauses := make([]string, len(q.GenreIDs))
		for i, id := range q.GenreIDs {
			clauses[i] = "genre_ids LIKE ?"
			args = append(args, fmt.Sprintf("%%,%d,%%", id))
		}
		where = append(where, "("+strings.Join(clauses, " OR ")+")")
	}
	if q.YearFrom > 0 {
		where = append(where, "release_year >= ?")
		args = append(args, q.YearFrom)
	}
	if q.YearTo > 0 {
		where = append(where, "release_year <= ?")
		args = append(args, q.YearTo)
	}
	if q.MinSimilarity > 0 {
		where = append(where, "similarity_score >= ?")
		args = append(args, q.MinSimilarity)
	}
	whereSQL := strings.Join(where, " AND ")

	start := time.Now()
	page := &CandidatePage{Page: q.Page, PageSize: q.PageSize}
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM discovery_candidates WHERE `+whereSQL, args...).
		Scan(&page.Total); err != nil {
		observe("select", "discovery_candidates", start, err)
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := db.conn.QueryContext(ctx, `SELECT `+rawColumnNames+`,
		similarity_score, novelty_score, rating_score, recency_score, final_score, score_breakdown,
		is_enriched, cast_members, directors, runtime_minutes, tagline
	FROM discovery_candidates WHERE `+whereSQL+`
	ORDER BY result_rank LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		observe("select", "discovery_candidates", start, err)
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page.Candidates = make([]discover.ScoredCandidate, 0, q.PageSize)
	for rows.Next() {
		c, err := scanScored(rows)
		if err != nil {
			return nil, err
		}
		page.Candidates = append(page.Candidates, c)
	}
	err = rows.Err()
	observe("select", "discovery_candidates", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}
	return page, nil
}

func scanScored(rows *sql.Rows) (discover.ScoredCandidate, error) {
	var (
		raw       rawScan
		sc        discover.ScoredCandidate
		breakdown sql.NullString
		cast      sql.NullString
		directors sql.NullString
		runtime   sql.NullInt64
		tagline   sql.NullString
	)
	dest := append(raw.dest(),
		&sc.Similarity, &sc.Novelty, &sc.Rating, &sc.Recency, &sc.FinalScore, &breakdown,
		&sc.IsEnriched, &cast, &directors, &runtime, &tagline)
	if err := rows.Scan(dest...); err != nil {
		return sc, fmt.Errorf("failed to scan candidate: %w", err)
	}

	var err error
	if sc.RawCandidate, err = raw.candidate(); err != nil {
		return sc, err
	}
	if err := parseJSONField(breakdown, "score_breakdown", &sc.ScoreBreakdown); err != nil {
		return sc, err
	}
	if err := parseJSONField(cast, "cast_members", &sc.Cast); err != nil {
		return sc, err
	}
	if err := parseJSONField(directors, "directors", &sc.Directors); err != nil {
		return sc, err
	}
	sc.RuntimeMinutes = int(runtime.Int64)
	sc.Tagline = tagline.String
	return sc, nil
}

// StoredExternalIDs returns the external ids in the user's stored result.
func (db *DB) StoredExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error) {
	return db.idSet(ctx, "discovery_candidates", `SELECT DISTINCT external_id FROM discovery_candidates
	WHERE user_id = ? AND media_type = ?`, userID, mediaType)
}
