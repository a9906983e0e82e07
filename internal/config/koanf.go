// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/marquee/internal/discover"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/marquee.duckdb",
			MaxMemory: "1GB",
		},
		TMDB: TMDBConfig{
			Language:            "en-US",
			Tier:                "free",
			Timeout:             10 * time.Second,
			MaxRetries:          3,
			RecommendationSeeds: 10,
		},
		Trakt: TraktConfig{
			Enabled:    false, // Optional second provider
			Tier:       "free",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Discovery: DiscoveryConfig{
			Enabled:      true,
			Interval:     24 * time.Hour,
			RunOnStartup: false,
			Pipeline:     discover.DefaultConfig(),
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "/data/detailcache",
			TTL:     7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Backend:       "memory",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Database mappings
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// TMDB mappings
	"tmdb_api_key":              "tmdb.api_key",
	"tmdb_base_url":             "tmdb.base_url",
	"tmdb_language":             "tmdb.language",
	"tmdb_region":               "tmdb.region",
	"tmdb_tier":                 "tmdb.tier",
	"tmdb_timeout":              "tmdb.timeout",
	"tmdb_max_retries":          "tmdb.max_retries",
	"tmdb_recommendation_seeds": "tmdb.recommendation_seeds",

	// Trakt mappings
	"trakt_enabled":     "trakt.enabled",
	"trakt_client_id":   "trakt.client_id",
	"trakt_base_url":    "trakt.base_url",
	"trakt_tier":        "trakt.tier",
	"trakt_timeout":     "trakt.timeout",
	"trakt_max_retries": "trakt.max_retries",

	// Discovery schedule mappings
	"discovery_enabled":        "discovery.enabled",
	"discovery_interval":       "discovery.interval",
	"discovery_run_on_startup": "discovery.run_on_startup",

	// Discovery pipeline mappings
	"discovery_max_candidates_per_source": "discovery.pipeline.max_candidates_per_source",
	"discovery_max_total_candidates":      "discovery.pipeline.max_total_candidates",
	"discovery_max_enriched_candidates":   "discovery.pipeline.max_enriched_candidates",
	"discovery_target_display_count":      "discovery.pipeline.target_display_count",
	"discovery_min_vote_count":            "discovery.pipeline.min_vote_count",
	"discovery_min_vote_average":          "discovery.pipeline.min_vote_average",
	"discovery_weight_similarity":         "discovery.pipeline.weights.similarity",
	"discovery_weight_novelty":            "discovery.pipeline.weights.novelty",
	"discovery_weight_rating":             "discovery.pipeline.weights.rating",
	"discovery_weight_recency":            "discovery.pipeline.weights.recency",
	"discovery_diversity_weight":          "discovery.pipeline.diversity_weight",
	"discovery_genre_diversity_share":     "discovery.pipeline.genre_diversity_share",
	"discovery_recency_half_life_years":   "discovery.pipeline.recency_half_life_years",
	"discovery_trending_window":           "discovery.pipeline.trending_window",

	// Detail cache mappings
	"detail_cache_enabled": "cache.enabled",
	"detail_cache_path":    "cache.path",
	"detail_cache_ttl":     "cache.ttl",

	// Event bus mappings
	"events_backend":      "events.backend",
	"nats_url":            "events.nats_url",
	"nats_max_reconnects": "events.max_reconnects",
	"nats_reconnect_wait": "events.reconnect_wait",

	// Server mappings
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - TMDB_API_KEY -> tmdb.api_key
//   - DUCKDB_PATH -> database.path
//   - DISCOVERY_WEIGHT_NOVELTY -> discovery.pipeline.weights.novelty
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
