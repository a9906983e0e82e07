// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package discover defines the shared types and tuning configuration of the
// discovery pipeline.
//
// # Architecture
//
// A discovery run turns external recommendation sources into a ranked,
// per-user list of titles the user does not already own or has not watched:
//
//   - pool: global candidates shared by all users, plus personalized sources
//   - pipeline: library/watch filter and the run orchestrator
//   - scoring: similarity, novelty, rating and recency sub-scores
//   - diversity: greedy genre/provider-aware selection
//   - enrich: full metadata for the head of the ranked list only
//
// # Usage
//
//	cfg := discover.DefaultConfig()
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	effective := cfg.WithUserWeights(user.Weights)
//
// # Determinism
//
// Given identical candidates, taste signals, configuration and clock, a run
// produces identical scores and ordering. All sorts in the pipeline are stable.
package discover
