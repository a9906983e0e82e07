// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/detailcache"
	"github.com/tomtom215/marquee/internal/discover/enrich"
	"github.com/tomtom215/marquee/internal/discover/pipeline"
	"github.com/tomtom215/marquee/internal/discover/pool"
	"github.com/tomtom215/marquee/internal/discover/scoring"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/sources/apiclient"
	"github.com/tomtom215/marquee/internal/sources/tmdb"
	"github.com/tomtom215/marquee/internal/sources/trakt"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("marquee stopped with error")
	}
	logging.Info().Msg("marquee stopped")
}

func run(cfg *config.Config) error {
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("trakt_enabled", cfg.Trakt.Enabled).
		Bool("detail_cache_enabled", cfg.Cache.Enabled).
		Str("events_backend", cfg.Events.Backend).
		Msg("Starting marquee")

	db, err := database.New(&cfg.Database, logging.WithComponent("database"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	tmdbClient, err := tmdb.New(tmdb.Config{
		APIKey:     cfg.TMDB.APIKey,
		BaseURL:    cfg.TMDB.BaseURL,
		Language:   cfg.TMDB.Language,
		Region:     cfg.TMDB.Region,
		Tier:       apiclient.Tier(cfg.TMDB.Tier),
		Timeout:    cfg.TMDB.Timeout,
		MaxRetries: cfg.TMDB.MaxRetries,
	}, logging.Logger())
	if err != nil {
		return fmt.Errorf("create tmdb client: %w", err)
	}

	global, personal, err := buildSources(cfg, tmdbClient, db)
	if err != nil {
		return err
	}

	var details enrich.DetailFetcher = tmdbClient
	if cfg.Cache.Enabled {
		cache, err := detailcache.Open(detailcache.Config{
			Path: cfg.Cache.Path,
			TTL:  cfg.Cache.TTL,
		}, tmdbClient, logging.Logger())
		if err != nil {
			return fmt.Errorf("open detail cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing detail cache")
			}
		}()
		details = cache
	}

	bus, err := events.NewBus(events.Config{
		Backend:       cfg.Events.Backend,
		NATSURL:       cfg.Events.NATSURL,
		MaxReconnects: cfg.Events.MaxReconnects,
		ReconnectWait: cfg.Events.ReconnectWait,
	}, watermill.NewSlogLogger(logging.NewComponentSlogLogger("events")))
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	logger := logging.Logger()
	poolCache := pool.NewCache(db, cfg.Discovery.Interval, logger)
	orchestrator := pipeline.New(pipeline.Deps{
		Pool:    pool.NewManager(global, personal, poolCache, logger),
		Filter:  pipeline.NewFilter(db, logger),
		Scorer:  scoring.NewScorer(db, logger),
		Gate:    enrich.NewGate(details, logger),
		Runs:    db,
		Results: db,
		Users:   db,
		Events:  bus,
		Config:  cfg.Discovery.Pipeline,
		Logger:  logger,
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewEventBusService(bus, logger))

	var trigger api.Trigger
	if cfg.Discovery.Enabled {
		scheduler := services.NewDiscoveryService(orchestrator, services.DiscoveryServiceConfig{
			Interval:     cfg.Discovery.Interval,
			RunOnStartup: cfg.Discovery.RunOnStartup,
		}, logger)
		tree.AddPipelineService(scheduler)
		trigger = scheduler
	} else {
		logging.Info().Msg("Scheduled discovery disabled")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(api.NewHandler(db, db, trigger, logger)),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	err = tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

// buildSources assembles the global and personalized discovery sources.
func buildSources(cfg *config.Config, client *tmdb.Client, db *database.DB) ([]pool.GlobalSource, []pool.PersonalSource, error) {
	pcfg := cfg.Discovery.Pipeline
	global := []pool.GlobalSource{
		client.TrendingSource(pcfg.TrendingWindow),
		client.PopularSource(),
		client.TopRatedSource(),
		client.DiscoverSource(pcfg.MinVoteCount),
	}
	personal := []pool.PersonalSource{
		client.RecommendationsSource(db, cfg.TMDB.RecommendationSeeds),
	}

	if !cfg.Trakt.Enabled {
		return global, personal, nil
	}

	traktClient, err := trakt.New(trakt.Config{
		ClientID:   cfg.Trakt.ClientID,
		BaseURL:    cfg.Trakt.BaseURL,
		Tier:       apiclient.Tier(cfg.Trakt.Tier),
		Timeout:    cfg.Trakt.Timeout,
		MaxRetries: cfg.Trakt.MaxRetries,
	}, logging.Logger())
	if err != nil {
		return nil, nil, fmt.Errorf("create trakt client: %w", err)
	}
	global = append(global, traktClient.TrendingSource())
	personal = append(personal, traktClient.RecommendationsSource(db))
	return global, personal, nil
}
