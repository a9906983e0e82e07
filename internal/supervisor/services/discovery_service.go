// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover/pipeline"
)

// BatchRunner runs discovery for every enabled user.
type BatchRunner interface {
	GenerateForAllUsers(ctx context.Context, opts pipeline.Options) (*pipeline.BatchResult, error)
}

// DiscoveryServiceConfig schedules batch runs.
type DiscoveryServiceConfig struct {
	// Interval between scheduled batches. Default: 24h
	Interval time.Duration

	// RunOnStartup starts a batch as soon as the service starts.
	RunOnStartup bool

	// Timeout bounds a single batch. Default: the interval
	Timeout time.Duration
}

// DiscoveryService runs discovery batches on a ticker and on demand.
type DiscoveryService struct {
	runner  BatchRunner
	config  DiscoveryServiceConfig
	trigger chan struct{}
	logger  zerolog.Logger
	name    string
}

// NewDiscoveryService creates the scheduler.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewDiscoveryService(runner BatchRunner, cfg DiscoveryServiceConfig, logger zerolog.Logger) *DiscoveryService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &DiscoveryService{
		runner:  runner,
		config:  cfg,
		trigger: make(chan struct{}, 1),
		logger:  logger.With().Str("service", "discovery").Logger(),
		name:    "discovery-scheduler",
	}
}

// Trigger queues an immediate batch. It returns false when a request is
// already pending; requests arriving during a batch run once it finishes.
func (s *DiscoveryService) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Serve implements suture.Service. Batch failures are logged and retried on
// the next tick without restarting the service.
func (s *DiscoveryService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("discovery scheduler starting")

	if s.config.RunOnStartup {
		s.runBatch(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("discovery scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runBatch(ctx, "schedule")
		case <-s.trigger:
			s.runBatch(ctx, "manual")
		}
	}
}

func (s *DiscoveryService) runBatch(ctx context.Context, reason string) {
	batchCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logger.Info().Str("reason", reason).Msg("discovery batch starting")
	res, err := s.runner.GenerateForAllUsers(batchCtx, pipeline.Options{
		Progress: func(p pipeline.Progress) {
			ev := s.logger.Debug()
			if p.Err != nil {
				ev = s.logger.Warn().Err(p.Err)
			}
			ev.Int64("user_id", p.UserID).
				Str("media_type", p.MediaType.String()).
				Int("processed", p.Processed).
				Int("total", p.Total).
				Msg("discovery batch progress")
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("reason", reason).Msg("discovery batch failed")
		return
	}

	s.logger.Info().
		Str("reason", reason).
		Int("users", res.Users).
		Int("runs", res.Runs).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("discovery batch complete")
}

// String names the service in suture events.
func (s *DiscoveryService) String() string {
	return s.name
}
