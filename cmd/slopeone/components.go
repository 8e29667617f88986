// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/database"
	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/ratings"
	"github.com/tomtom215/slopeone/internal/recommend"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
	"github.com/tomtom215/slopeone/internal/recommend/storage"
)

// components are the backends a command runs against. close releases them
// in reverse order of opening.
type components struct {
	db      *database.DB
	mongo   *ratings.MongoSource
	source  slopeone.RatingSource
	store   slopeone.ModelStore
	closers []func() error
}

func (c *components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("error closing backend")
		}
	}
	c.closers = nil
}

// duckDB opens the shared DuckDB handle on first use.
func (c *components) duckDB(cfg *config.Config) (*database.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := database.New(&cfg.DuckDB, cfg.Model.RetainRuns)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.onClose(db.Close)
	return db, nil
}

// openComponents opens what cfg.Ratings.Source and cfg.Model.Store name.
// DuckDB is opened once when both use it.
func openComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	if err := c.openSource(ctx, cfg); err != nil {
		c.close()
		return nil, err
	}
	if err := c.openStore(ctx, cfg); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (c *components) openSource(ctx context.Context, cfg *config.Config) error {
	switch cfg.Ratings.Source {
	case config.SourceCSV:
		src, err := ratings.LoadCSV(cfg.Ratings.CSVPath)
		if err != nil {
			return err
		}
		c.source = src
	case config.SourceDuckDB:
		db, err := c.duckDB(cfg)
		if err != nil {
			return err
		}
		c.source = db
	case config.SourceMongo:
		src, err := c.mongoSource(ctx, cfg)
		if err != nil {
			return err
		}
		c.source = src
	default:
		return &slopeone.ConfigurationError{Field: "ratings.source", Reason: fmt.Sprintf("unknown source %q", cfg.Ratings.Source)}
	}
	return nil
}

func (c *components) mongoSource(ctx context.Context, cfg *config.Config) (*ratings.MongoSource, error) {
	if c.mongo != nil {
		return c.mongo, nil
	}
	src, err := ratings.NewMongoSource(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	c.mongo = src
	c.onClose(func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return src.Close(closeCtx)
	})
	return src, nil
}

func (c *components) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Model.Store {
	case config.StoreFile:
		store, err := storage.NewFileStore(cfg.Model.Path, storage.FileOptions{
			Format:     storage.Format(cfg.Model.Format),
			RetainRuns: cfg.Model.RetainRuns,
		})
		if err != nil {
			return err
		}
		c.store = store
	case config.StoreDuckDB:
		db, err := c.duckDB(cfg)
		if err != nil {
			return err
		}
		c.store = db
	case config.StoreBadger:
		store, err := storage.OpenBadger(storage.BadgerOptions{
			Path:       cfg.Badger.Path,
			RetainRuns: cfg.Model.RetainRuns,
		})
		if err != nil {
			return err
		}
		c.store = store
		c.onClose(store.Close)
	case config.StoreRedis:
		store, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			RetainRuns: cfg.Model.RetainRuns,
		})
		if err != nil {
			return err
		}
		c.store = store
		c.onClose(store.Close)
	default:
		return &slopeone.ConfigurationError{Field: "model.store", Reason: fmt.Sprintf("unknown store %q", cfg.Model.Store)}
	}
	return nil
}

// newEngine builds the engine over c. Lazy serving gets a circuit breaker
// around store lookups when breaker.enabled is set.
func newEngine(cfg *config.Config, c *components) (*recommend.Engine, error) {
	engineCfg, err := recommend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	var opts []recommend.Option
	if engineCfg.Serving == recommend.ServeLazy && cfg.Breaker.Enabled {
		breakerCfg := storage.BreakerConfig{
			Name:         "model-" + cfg.Model.Store,
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
		}
		opts = append(opts, recommend.WithLookupWrapper(func(m slopeone.CorrelationModel) slopeone.CorrelationModel {
			return storage.NewBreakerModel(m, breakerCfg)
		}))
	}

	logger := logging.WithComponent("engine")
	return recommend.NewEngine(engineCfg, c.source, c.store, logger, opts...)
}

// reloadOrExplain serves the active run, turning ErrNoModel into advice.
func reloadOrExplain(ctx context.Context, engine *recommend.Engine) error {
	err := engine.Reload(ctx)
	if errors.Is(err, slopeone.ErrNoModel) {
		return fmt.Errorf("%w: run `slopeone train` first", err)
	}
	return err
}
