// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/diversity"
	"github.com/tomtom215/marquee/internal/discover/enrich"
	"github.com/tomtom215/marquee/internal/discover/pool"
	"github.com/tomtom215/marquee/internal/discover/scoring"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Stage names used for counters, metrics and events.
const (
	StageFetch  = "fetch"
	StageFilter = "filter"
	StageScore  = "score"
	StageStore  = "store"
)

// RunStore persists run bookkeeping.
type RunStore interface {
	CreateRun(ctx context.Context, run *discover.DiscoveryRun) error
	UpdateRunCounts(ctx context.Context, runID string, counts discover.RunCounts) error
	CompleteRun(ctx context.Context, run *discover.DiscoveryRun) error
	FailRun(ctx context.Context, run *discover.DiscoveryRun) error
}

// ResultStore persists the ranked result of a user.
type ResultStore interface {
	ReplaceCandidates(ctx context.Context, run *discover.DiscoveryRun, candidates []discover.ScoredCandidate) error
	StoredExternalIDs(ctx context.Context, userID int64, mediaType discover.MediaType) (map[int64]struct{}, error)
}

// UserStore lists the users of batch runs.
type UserStore interface {
	ListEnabledUsers(ctx context.Context) ([]discover.User, error)
}

// Deps wires an Orchestrator. Events and Now are optional.
type Deps struct {
	Pool    *pool.Manager
	Filter  *Filter
	Scorer  *scoring.Scorer
	Gate    *enrich.Gate
	Runs    RunStore
	Results ResultStore
	Users   UserStore
	Events  events.Publisher
	Config  discover.Config
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Options adjusts a single call.
type Options struct {
	// Weights overrides the admin weights for this user. They are
	// normalized before use.
	Weights *discover.Weights

	// Progress is called after every unit of a batch.
	Progress func(Progress)
}

// Progress reports batch advancement.
type Progress struct {
	Processed int
	Total     int
	Failed    int
	UserID    int64
	MediaType discover.MediaType
	Err       error
}

// Result is the outcome of one user run.
type Result struct {
	Run        *discover.DiscoveryRun
	Candidates []discover.ScoredCandidate
	Enrichment enrich.Result
}

// BatchResult summarizes GenerateForAllUsers.
type BatchResult struct {
	Users     int
	Runs      int
	Completed int
	Failed    int
	PoolSizes map[discover.MediaType]int
	Duration  time.Duration
}

// batchPool holds the global candidates fetched in the first phase of a
// batch, keyed by media type. A present key is authoritative, even when empty.
type batchPool map[discover.MediaType][]discover.RawCandidate

// Orchestrator sequences the pipeline stages for users and batches.
type Orchestrator struct {
	pool    *pool.Manager
	filter  *Filter
	scorer  *scoring.Scorer
	gate    *enrich.Gate
	runs    RunStore
	results ResultStore
	users   UserStore
	events  events.Publisher
	cfg     discover.Config
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator { //nolint:gocritic // Deps is built once at startup
	o := &Orchestrator{
		pool:    deps.Pool,
		filter:  deps.Filter,
		scorer:  deps.Scorer,
		gate:    deps.Gate,
		runs:    deps.Runs,
		results: deps.Results,
		users:   deps.Users,
		events:  deps.Events,
		cfg:     deps.Config,
		now:     deps.Now,
		logger:  deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Config returns the admin defaults.
func (o *Orchestrator) Config() discover.Config {
	return o.cfg
}

// GenerateForUser runs the full pipeline for one user and media type.
//
// The run record exists before any fetch and its counters are written after
// every stage. A failure marks the run failed with its message and is
// returned to the caller.
func (o *Orchestrator) GenerateForUser(ctx context.Context, userID int64, mediaType discover.MediaType, opts Options) (*Result, error) {
	return o.generate(ctx, userID, mediaType, opts, nil)
}

func (o *Orchestrator) generate(ctx context.Context, userID int64, mediaType discover.MediaType, opts Options, batch batchPool) (*Result, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("%w: %q", discover.ErrInvalidMediaType, mediaType)
	}
	cfg := o.cfg.WithUserWeights(opts.Weights)

	run := &discover.DiscoveryRun{
		UserID:    userID,
		MediaType: mediaType,
		StartedAt: o.now().UTC(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ctx = logging.ContextWithLogger(logging.ContextWithRunID(ctx, run.ID), o.logger)
	logging.Ctx(ctx).Info().
		Int64("user_id", userID).
		Str("media_type", mediaType.String()).
		Msg("discovery run started")
	o.publish(ctx, events.RunEvent(events.TypeRunStarted, run, ""))

	candidates, enrichment, err := o.execute(ctx, run, &cfg, batch)
	if err != nil {
		o.fail(ctx, run, err)
		return nil, fmt.Errorf("discovery run %s: %w", run.ID, err)
	}

	// run stays running until the completion is persisted.
	done := *run
	if err := done.Finish(discover.RunStatusCompleted, o.now().UTC(), nil); err != nil {
		return nil, err
	}
	if err := o.runs.CompleteRun(ctx, &done); err != nil {
		err = fmt.Errorf("complete run: %w", err)
		o.fail(ctx, run, err)
		return nil, fmt.Errorf("discovery run %s: %w", run.ID, err)
	}
	*run = done
	metrics.RecordDiscoveryRun(mediaType.String(), string(run.Status), time.Duration(run.DurationMS)*time.Millisecond)
	o.publish(ctx, events.RunEvent(events.TypeRunCompleted, run, ""))

	logging.Ctx(ctx).Info().
		Int64("user_id", userID).
		Str("media_type", mediaType.String()).
		Int("fetched", run.Counts.Fetched).
		Int("filtered", run.Counts.Filtered).
		Int("scored", run.Counts.Scored).
		Int("stored", run.Counts.Stored).
		Int("enriched", enrichment.Enriched).
		Int64("duration_ms", run.DurationMS).
		Msg("discovery run completed")

	return &Result{Run: run, Candidates: candidates, Enrichment: enrichment}, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *discover.DiscoveryRun, cfg *discover.Config, batch batchPool) ([]discover.ScoredCandidate, enrich.Result, error) {
	var none enrich.Result

	merged, err := o.acquire(ctx, run.UserID, run.MediaType, cfg, batch)
	if err != nil {
		return nil, none, err
	}
	run.Counts.Fetched = len(merged)
	if err := o.advance(ctx, run, StageFetch, len(merged)); err != nil {
		return nil, none, err
	}

	filtered, err := o.filter.Apply(ctx, run.UserID, run.MediaType, merged)
	if err != nil {
		return nil, none, err
	}
	run.Counts.Filtered = len(filtered)
	if err := o.advance(ctx, run, StageFilter, len(filtered)); err != nil {
		return nil, none, err
	}

	scored, err := o.scorer.Score(ctx, run.UserID, run.MediaType, filtered, cfg)
	if err != nil {
		return nil, none, err
	}
	run.Counts.Scored = len(scored)
	if err := o.advance(ctx, run, StageScore, len(scored)); err != nil {
		return nil, none, err
	}

	selected := diversity.NewSelector(cfg, o.logger).Select(scored, cfg.MaxTotalCandidates)

	var enrichment enrich.Result
	if o.gate != nil {
		enrichment = o.gate.Apply(ctx, run.MediaType, selected, cfg.MaxEnrichedCandidates)
	}

	if err := o.results.ReplaceCandidates(ctx, run, selected); err != nil {
		return nil, none, err
	}
	run.Counts.Stored = len(selected)
	if err := o.advance(ctx, run, StageStore, len(selected)); err != nil {
		return nil, none, err
	}

	return selected, enrichment, nil
}

// acquire merges personalized candidates with global ones. Global
// candidates come from the batch when it has the media type, then from a
// fresh pool, and only then from a live fetch of the global sources.
func (o *Orchestrator) acquire(ctx context.Context, userID int64, mediaType discover.MediaType, cfg *discover.Config, batch batchPool) ([]discover.RawCandidate, error) {
	personal, err := o.pool.FetchPersonalized(ctx, userID, mediaType, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch personalized candidates: %w", err)
	}

	global, ok := batch[mediaType]
	if !ok {
		if cache := o.pool.Cache(); cache != nil {
			global, err = cache.GetRaw(ctx, mediaType)
			if err != nil {
				return nil, fmt.Errorf("read pool: %w", err)
			}
		}
		if len(global) == 0 {
			res, err := o.pool.FetchGlobal(ctx, mediaType, cfg)
			if err != nil {
				return nil, fmt.Errorf("fetch global candidates: %w", err)
			}
			global = res.Candidates
		}
	}

	return pool.Merge(personal.Candidates, global), nil
}

// advance verifies and persists the counters after a stage.
func (o *Orchestrator) advance(ctx context.Context, run *discover.DiscoveryRun, stage string, count int) error {
	if err := run.Counts.Check(); err != nil {
		return err
	}
	if err := o.runs.UpdateRunCounts(ctx, run.ID, run.Counts); err != nil {
		return fmt.Errorf("update run counts after %s: %w", stage, err)
	}
	metrics.RecordStage(stage, count)
	o.publish(ctx, events.RunEvent(events.TypeStageDone, run, stage))
	return nil
}

// fail finalizes run as failed. The record is written even when ctx is
// already canceled.
func (o *Orchestrator) fail(ctx context.Context, run *discover.DiscoveryRun, runErr error) {
	if err := run.Finish(discover.RunStatusFailed, o.now().UTC(), runErr); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("cannot finalize failed run")
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := o.runs.FailRun(writeCtx, run); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to persist run failure")
	}
	metrics.RecordDiscoveryRun(run.MediaType.String(), string(run.Status), time.Duration(run.DurationMS)*time.Millisecond)
	o.publish(writeCtx, events.RunEvent(events.TypeRunFailed, run, ""))

	logging.Ctx(ctx).Error().
		Err(runErr).
		Int64("user_id", run.UserID).
		Str("media_type", run.MediaType.String()).
		Int64("duration_ms", run.DurationMS).
		Msg("discovery run failed")
}

func (o *Orchestrator) publish(ctx context.Context, event *events.Event) {
	if err := o.events.Publish(ctx, event); err != nil && !errors.Is(err, events.ErrClosed) {
		logging.Ctx(ctx).Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish discovery event")
	}
}

// GenerateForAllUsers refreshes the global pool once per media type, then
// runs every enabled user and wanted media type one after another. A failed
// unit is counted and the batch continues; cancellation stops the batch
// between units. Units use the global candidates of the first phase, so an
// empty pool or a failed upsert never causes per-user global fetches.
func (o *Orchestrator) GenerateForAllUsers(ctx context.Context, opts Options) (*BatchResult, error) {
	start := o.now()
	ctx = logging.ContextWithLogger(logging.ContextWithNewCorrelationID(ctx), o.logger)
	res := &BatchResult{PoolSizes: make(map[discover.MediaType]int, len(discover.AllMediaTypes))}
	batch := make(batchPool, len(discover.AllMediaTypes))

	// Phase 1: global pool
	for _, mediaType := range discover.AllMediaTypes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		global, err := o.pool.FetchGlobal(ctx, mediaType, &o.cfg)
		if err != nil {
			return res, fmt.Errorf("fetch global pool %s: %w", mediaType, err)
		}
		res.PoolSizes[mediaType] = global.UniqueCount
		batch[mediaType] = global.Candidates

		if cache := o.pool.Cache(); cache != nil {
			if err := cache.Upsert(ctx, mediaType, global.Candidates); err != nil {
				// Units still use the in-memory candidates.
				logging.Ctx(ctx).Error().Err(err).Str("media_type", mediaType.String()).Msg("failed to store global pool")
			}
		}
	}

	// Phase 2: users
	users, err := o.users.ListEnabledUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	res.Users = len(users)

	type unit struct {
		user      *discover.User
		mediaType discover.MediaType
	}
	var units []unit
	for i := range users {
		for _, mediaType := range discover.AllMediaTypes {
			if users[i].WantsMediaType(mediaType) {
				units = append(units, unit{user: &users[i], mediaType: mediaType})
			}
		}
	}

	logging.Ctx(ctx).Info().
		Int("users", len(users)).
		Int("units", len(units)).
		Interface("pool_sizes", res.PoolSizes).
		Msg("batch discovery started")

	for i, u := range units {
		if err := ctx.Err(); err != nil {
			res.Duration = o.now().Sub(start)
			return res, err
		}

		_, runErr := o.generate(ctx, u.user.ID, u.mediaType, Options{Weights: u.user.Weights}, batch)
		res.Runs++
		if runErr != nil {
			res.Failed++
			metrics.DiscoveryBatchUsers.WithLabelValues("failure").Inc()
		} else {
			res.Completed++
			metrics.DiscoveryBatchUsers.WithLabelValues("success").Inc()
		}

		o.publish(ctx, events.BatchEvent(i+1, len(units)))
		if opts.Progress != nil {
			opts.Progress(Progress{
				Processed: i + 1,
				Total:     len(units),
				Failed:    res.Failed,
				UserID:    u.user.ID,
				MediaType: u.mediaType,
				Err:       runErr,
			})
		}
	}

	res.Duration = o.now().Sub(start)
	logging.Ctx(ctx).Info().
		Int("runs", res.Runs).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("batch discovery finished")

	return res, nil
}

// Expand returns additional candidates beyond the stored result: live
// personalized candidates, filtered, minus the stored ids, scored and cut to
// TargetDisplayCount. Neither the pool nor the global sources are consulted
// and nothing is persisted.
func (o *Orchestrator) Expand(ctx context.Context, userID int64, mediaType discover.MediaType, opts Options) ([]discover.ScoredCandidate, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("%w: %q", discover.ErrInvalidMediaType, mediaType)
	}
	cfg := o.cfg.WithUserWeights(opts.Weights)

	personal, err := o.pool.FetchPersonalized(ctx, userID, mediaType, &cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch personalized candidates: %w", err)
	}
	merged := personal.Candidates
	filtered, err := o.filter.Apply(ctx, userID, mediaType, merged)
	if err != nil {
		return nil, err
	}
	stored, err := o.results.StoredExternalIDs(ctx, userID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("load stored ids: %w", err)
	}
	fresh := exclude(filtered, stored)

	scored, err := o.scorer.Score(ctx, userID, mediaType, fresh, &cfg)
	if err != nil {
		return nil, err
	}
	if len(scored) > cfg.TargetDisplayCount {
		scored = scored[:cfg.TargetDisplayCount]
	}

	o.logger.Debug().
		Int64("user_id", userID).
		Str("media_type", mediaType.String()).
		Int("candidates", len(merged)).
		Int("excluded_stored", len(filtered)-len(fresh)).
		Int("returned", len(scored)).
		Msg("expanded discovery result")

	return scored, nil
}
