// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package logging provides the zerolog-based structured logging layer for Slopeone.
//
// A single global logger is configured once at startup from the logging section
// of the configuration and is then shared by the CLI, the training engine and the
// supervisor tree. Components that need their own fields derive a child logger:
//
//	builderLog := logging.WithComponent("builder")
//	builderLog.Info().Int("partitions", 4).Msg("Training started")
//
// # Configuration
//
//	logging.Init(logging.Config{
//	    Level:  "debug",   // trace, debug, info, warn, error, fatal
//	    Format: "console", // json or console
//	    Caller: true,
//	})
//
// Environment variables (mapped by internal/config):
//
//	LOG_LEVEL   - minimum level (default: info)
//	LOG_FORMAT  - json or console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Context
//
// Training runs and prediction requests carry identifiers in their context so
// every log line written on their behalf can be correlated:
//
//	ctx = logging.ContextWithRunID(ctx, runID)
//	logging.Ctx(ctx).Info().Msg("Shard written")
//	// {"level":"info","run_id":"...","message":"Shard written"}
//
// # Suture Integration
//
// NewSlogLogger returns an slog.Logger backed by the global zerolog logger, used
// with sutureslog for supervisor event hooks.
package logging
