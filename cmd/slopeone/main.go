// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package main is the slopeone command.
//
// Slopeone trains a Slope One item-to-item model from a rating history and
// predicts how a user would rate the items they have not rated yet.
//
// # Commands
//
//	slopeone [-config path] train
//	slopeone [-config path] predict -user 42 [-k 10] [-all] [-format csv|json] [-out file]
//	slopeone [-config path] import -csv ratings.csv [-target duckdb|mongo]
//	slopeone [-config path] serve
//
// train reads the full history from ratings.source, computes the model with
// training.workers partitions in parallel and commits it to model.store.
// predict serves the active committed run and ranks one user's unrated items.
// import bulk loads a userId,movieId,rating CSV into DuckDB or MongoDB.
// serve keeps a model loaded, retrains every server.train_interval and
// exposes /healthz, /readyz, /status and /metrics on server.addr.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (SLOPEONE_WORKERS, SLOPEONE_MODEL_STORE, REDIS_ADDR, ...)
//   - Config file (-config, CONFIG_PATH, ./slopeone.yaml or /etc/slopeone/config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. A training run that is
// interrupted aborts its staged shards, so the previously committed model
// stays active.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/logging"
)

const usage = `usage: slopeone [-config path] <command> [flags]

commands:
  train     train a model from the rating history and commit it
  predict   rank predicted ratings for one user
  import    load a ratings CSV into DuckDB or MongoDB
  serve     run the retraining loop with health and metrics endpoints
`

// command runs one subcommand with its own arguments.
type command func(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error

var commands = map[string]command{
	"train":   runTrain,
	"predict": runPredict,
	"import":  runImport,
	"serve":   runServe,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses global flags, loads configuration and dispatches. It returns
// the process exit code: 0 on success, 1 on failure, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("slopeone", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "config file (default: $CONFIG_PATH or ./slopeone.yaml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "slopeone: unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "slopeone: %v\n", err)
		return 1
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: stderr,
	})

	if err := cmd(ctx, cfg, fs.Args()[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "slopeone %s: %v\n", name, err)
			return 2
		}
		logging.Error().Err(err).Str("command", name).Msg("command failed")
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// usageError reports bad subcommand flags.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// parseFlags parses a subcommand's flags, mapping parse failures to usageError.
func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %v", fs.Args())
	}
	return nil
}
