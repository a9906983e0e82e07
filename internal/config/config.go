// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"time"

	"github.com/tomtom215/marquee/internal/discover"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	TMDB      TMDBConfig      `koanf:"tmdb"`
	Trakt     TraktConfig     `koanf:"trakt"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Cache     CacheConfig     `koanf:"cache"`
	Events    EventsConfig    `koanf:"events"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // Number of DuckDB threads (0 = use NumCPU)
}

// TMDBConfig holds The Movie Database API settings.
type TMDBConfig struct {
	// APIKey is the v3 API key. Required.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the public endpoint (mainly for testing).
	BaseURL string `koanf:"base_url"`

	// Language and Region localize titles and regional lists, e.g. "en-US" and "US".
	Language string `koanf:"language"`
	Region   string `koanf:"region"`

	// Tier selects the minimum request interval: free, standard or premium.
	Tier string `koanf:"tier"`

	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`

	// RecommendationSeeds is how many recently watched titles seed
	// personalized recommendations.
	RecommendationSeeds int `koanf:"recommendation_seeds"`
}

// TraktConfig holds Trakt API settings. Trakt is optional.
type TraktConfig struct {
	Enabled    bool          `koanf:"enabled"`
	ClientID   string        `koanf:"client_id"`
	BaseURL    string        `koanf:"base_url"`
	Tier       string        `koanf:"tier"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// DiscoveryConfig holds the batch schedule and pipeline defaults.
type DiscoveryConfig struct {
	// Enabled runs the periodic batch. Single-user runs work either way.
	Enabled bool `koanf:"enabled"`

	// Interval between batch runs. Also the maximum pool age.
	Interval time.Duration `koanf:"interval"`

	// RunOnStartup triggers a batch immediately after start.
	RunOnStartup bool `koanf:"run_on_startup"`

	// Pipeline holds the admin defaults of every run.
	Pipeline discover.Config `koanf:"pipeline"`
}

// CacheConfig holds the enrichment detail cache settings
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl"`
}

// EventsConfig selects the progress event backend
type EventsConfig struct {
	// Backend is "memory" (in-process) or "nats".
	Backend       string        `koanf:"backend"`
	NATSURL       string        `koanf:"nats_url"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// ServerConfig holds the operations HTTP listener settings (/metrics, /healthz)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Load loads configuration with Koanf (defaults, optional YAML file, then
// environment variables).
func Load() (*Config, error) {
	return LoadWithKoanf()
}
