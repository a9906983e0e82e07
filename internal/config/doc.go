// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package config loads Marquee configuration from layered sources using Koanf v2.

Sources, lowest priority first:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, then ./config.yaml, ./config.yml,
    /etc/marquee/config.yaml, /etc/marquee/config.yml
 3. Environment variables

Only environment variables listed in the mapping table are read, so unrelated
variables never leak into the configuration. Common ones:

	TMDB_API_KEY                   tmdb.api_key (required)
	TRAKT_ENABLED, TRAKT_CLIENT_ID trakt.enabled, trakt.client_id
	DUCKDB_PATH                    database.path
	DISCOVERY_INTERVAL             discovery.interval
	DISCOVERY_WEIGHT_NOVELTY       discovery.pipeline.weights.novelty
	EVENTS_BACKEND, NATS_URL       events.backend, events.nats_url
	LOG_LEVEL, LOG_FORMAT          logging.level, logging.format

A YAML file mirrors the koanf keys:

	tmdb:
	  api_key: "..."
	  region: US
	discovery:
	  interval: 12h
	  pipeline:
	    max_total_candidates: 300
	    weights:
	      similarity: 0.5
	      novelty: 0.2
	      rating: 0.2
	      recency: 0.1

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal().Err(err).Msg("Failed to load configuration")
	}
*/
package config
