// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package logging provides the zerolog-based structured logging of Marquee.
//
// Components receive a zerolog.Logger and add a "component" field. The
// global logger configured by Init backs the package-level helpers and the
// slog adapter used by the supervisor and the event bus.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("media_type", "movie").Msg("batch started")
//
// # Context Fields
//
// A batch carries a correlation ID and each discovery run its run ID. Ctx
// adds both to every line:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	ctx = logging.ContextWithRunID(ctx, run.ID)
//	logging.Ctx(ctx).Info().Msg("stage completed")
//
// # Configuration
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never written.
package logging
