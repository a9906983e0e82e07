// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"strings"
	"time"
)

var validTiers = map[string]bool{"free": true, "standard": true, "premium": true}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateTrakt(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}
	if c.TMDB.BaseURL != "" {
		if err := validateAPIBaseURL(c.TMDB.BaseURL, "TMDB_BASE_URL"); err != nil {
			return err
		}
	}
	if !validTiers[c.TMDB.Tier] {
		return fmt.Errorf("TMDB_TIER must be free, standard or premium, got %q", c.TMDB.Tier)
	}
	if c.TMDB.Timeout <= 0 {
		return fmt.Errorf("TMDB_TIMEOUT must be positive")
	}
	if c.TMDB.MaxRetries < 0 {
		return fmt.Errorf("TMDB_MAX_RETRIES must be >= 0, got %d", c.TMDB.MaxRetries)
	}
	if c.TMDB.RecommendationSeeds < 1 {
		return fmt.Errorf("TMDB_RECOMMENDATION_SEEDS must be at least 1, got %d", c.TMDB.RecommendationSeeds)
	}
	return nil
}

func (c *Config) validateTrakt() error {
	if !c.Trakt.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Trakt.ClientID) == "" {
		return fmt.Errorf("TRAKT_CLIENT_ID is required when TRAKT_ENABLED=true")
	}
	if c.Trakt.BaseURL != "" {
		if err := validateHTTPURL(c.Trakt.BaseURL, "TRAKT_BASE_URL"); err != nil {
			return err
		}
	}
	if !validTiers[c.Trakt.Tier] {
		return fmt.Errorf("TRAKT_TIER must be free, standard or premium, got %q", c.Trakt.Tier)
	}
	if c.Trakt.Timeout <= 0 {
		return fmt.Errorf("TRAKT_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if c.Discovery.Enabled && c.Discovery.Interval < time.Minute {
		return fmt.Errorf("DISCOVERY_INTERVAL must be at least 1m, got %s", c.Discovery.Interval)
	}
	if err := c.Discovery.Pipeline.Validate(); err != nil {
		return fmt.Errorf("discovery pipeline: %w", err)
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("DETAIL_CACHE_PATH is required when the detail cache is enabled")
	}
	if c.Cache.TTL < time.Minute {
		return fmt.Errorf("DETAIL_CACHE_TTL must be at least 1m, got %s", c.Cache.TTL)
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "", "memory":
		return nil
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
		}
		if err := validateNATSURL(c.Events.NATSURL); err != nil {
			return fmt.Errorf("NATS_URL: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("EVENTS_BACKEND must be memory or nats, got %q", c.Events.Backend)
	}
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
