// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package services adapts marquee components to suture.Service: the ops
// HTTP listener, the scheduled discovery batch and the event bus lifecycle.
// Each wrapper returns ctx.Err() on orderly shutdown and a wrapped error when
// the component fails, so suture restarts it with backoff.
package services
