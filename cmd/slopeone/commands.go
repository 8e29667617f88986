// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/database"
	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/ratings"
	"github.com/tomtom215/slopeone/internal/supervisor"
	"github.com/tomtom215/slopeone/internal/supervisor/services"
)

// trainSummary is printed by `slopeone train`.
type trainSummary struct {
	RunID      string  `json:"run_id"`
	Items      int     `json:"items"`
	Users      int     `json:"users"`
	Ratings    int     `json:"ratings"`
	Partitions int     `json:"partitions"`
	Cells      int     `json:"cells"`
	Seconds    float64 `json:"duration_seconds"`
}

func runTrain(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "override training.workers")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *workers < 0 {
		return usagef("-workers must not be negative")
	}
	if *workers > 0 {
		cfg.Training.Workers = *workers
	}

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	engine, err := newEngine(cfg, c)
	if err != nil {
		return err
	}
	res, err := engine.Train(logging.ContextWithNewCorrelationID(ctx))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(trainSummary{
		RunID:      res.RunID,
		Items:      res.Stats.Items,
		Users:      res.Stats.Users,
		Ratings:    res.Stats.Ratings,
		Partitions: res.Stats.Partitions,
		Cells:      res.Stats.Cells,
		Seconds:    res.Stats.Duration.Seconds(),
	})
}

func runPredict(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	userID := fs.Int("user", -1, "user id (required)")
	k := fs.Int("k", 0, "number of items; 0 uses prediction.default_k")
	all := fs.Bool("all", false, "every unrated item, unranked by k")
	format := fs.String("format", "csv", "output format: csv or json")
	out := fs.String("out", "", "output file (default stdout)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *userID < 0 {
		return usagef("-user is required")
	}
	if *k < 0 {
		return usagef("-k must not be negative")
	}
	outFormat, err := parseOutputFormat(*format)
	if err != nil {
		return err
	}

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	engine, err := newEngine(cfg, c)
	if err != nil {
		return err
	}
	if err := reloadOrExplain(ctx, engine); err != nil {
		return err
	}

	ctx = logging.ContextWithNewCorrelationID(ctx)
	var resp *predictResult
	if *all {
		preds, err := engine.PredictAll(ctx, *userID)
		if err != nil {
			return err
		}
		resp = &predictResult{UserID: *userID, Items: preds}
		if m := engine.ActiveRun(); m != nil {
			resp.RunID = m.RunID
		}
	} else {
		r, err := engine.Recommend(ctx, *userID, *k)
		if err != nil {
			return err
		}
		resp = &predictResult{UserID: r.UserID, RunID: r.Metadata.RunID, Items: r.Items}
	}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logging.Warn().Err(cerr).Str("path", *out).Msg("error closing output file")
			}
		}()
		w = f
	}
	return writePredictions(w, outFormat, resp)
}

func runImport(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "userId,movieId,rating file (required)")
	defaultTarget := config.SourceDuckDB
	if cfg.Ratings.Source == config.SourceMongo {
		defaultTarget = config.SourceMongo
	}
	target := fs.String("target", defaultTarget, "duckdb or mongo")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *csvPath == "" {
		return usagef("-csv is required")
	}

	src, err := ratings.LoadCSV(*csvPath)
	if err != nil {
		return err
	}

	start := time.Now()
	var imported int
	switch *target {
	case config.SourceDuckDB:
		db, err := database.New(&cfg.DuckDB, cfg.Model.RetainRuns)
		if err != nil {
			return err
		}
		defer closeWithLog("duckdb", db.Close)
		if imported, err = db.ImportRatings(ctx, src); err != nil {
			return err
		}
	case config.SourceMongo:
		mongoSrc, err := ratings.NewMongoSource(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer closeWithLog("mongo", func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return mongoSrc.Close(closeCtx)
		})
		if err := mongoSrc.EnsureIndexes(ctx); err != nil {
			return err
		}
		if imported, err = mongoSrc.ImportRatings(ctx, src); err != nil {
			return err
		}
	default:
		return usagef("unknown -target %q (want duckdb or mongo)", *target)
	}

	_, err = fmt.Fprintf(stdout, "imported %d ratings into %s in %s\n", imported, *target, time.Since(start).Round(time.Millisecond))
	return err
}

func runServe(ctx context.Context, cfg *config.Config, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	engine, err := newEngine(cfg, c)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	tree.AddModelService(services.NewRecommendService(engine, services.RecommendServiceConfig{
		TrainOnStartup: cfg.Server.TrainOnStartup,
		TrainInterval:  cfg.Server.TrainInterval,
		ReloadInterval: cfg.Server.ReloadInterval,
	}, logging.WithComponent("recommend-service")))

	server := services.NewHTTPServer(cfg.Server.Addr, services.NewRouter(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("ratings_source", cfg.Ratings.Source).
		Str("model_store", cfg.Model.Store).
		Str("serving", cfg.Prediction.Serving).
		Msg("starting supervisor tree")

	err = tree.Serve(ctx)

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("stopped gracefully")
	return nil
}

func closeWithLog(name string, fn func() error) {
	if err := fn(); err != nil {
		logging.Warn().Err(err).Str("backend", name).Msg("error closing backend")
	}
}
