// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package config

import (
	"fmt"

	"github.com/tomtom215/slopeone/internal/validation"
)

// Validate checks tag rules and then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if c.Training.Timeout <= 0 {
		return fmt.Errorf("training.timeout must be positive, got %v", c.Training.Timeout)
	}

	if err := c.validateRatings(); err != nil {
		return err
	}
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateRatings() error {
	switch c.Ratings.Source {
	case SourceCSV:
		if c.Ratings.CSVPath == "" {
			return fmt.Errorf("ratings.csv_path is required when ratings.source=csv")
		}
	case SourceMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return fmt.Errorf("mongo.uri, mongo.database and mongo.collection are required when ratings.source=mongo")
		}
	}
	if c.UsesDuckDB() && c.DuckDB.Path == "" {
		return fmt.Errorf("duckdb.path is required when DuckDB is a rating source or model store")
	}
	return nil
}

func (c *Config) validateModel() error {
	switch c.Model.Store {
	case StoreFile:
		if c.Model.Path == "" {
			return fmt.Errorf("model.path is required when model.store=file")
		}
		if c.Prediction.Serving == ServingLazy {
			return fmt.Errorf("prediction.serving=lazy needs a store with point lookups (duckdb, badger or redis), got %s", c.Model.Store)
		}
	case StoreBadger:
		if c.Badger.Path == "" {
			return fmt.Errorf("badger.path is required when model.store=badger")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when model.store=redis")
		}
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if !c.Breaker.Enabled {
		return nil
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("breaker.timeout must be positive, got %v", c.Breaker.Timeout)
	}
	if c.Breaker.MinRequests == 0 {
		return fmt.Errorf("breaker.min_requests must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.TrainInterval <= 0 {
		return fmt.Errorf("server.train_interval must be positive, got %v", c.Server.TrainInterval)
	}
	if c.Server.ReloadInterval < 0 {
		return fmt.Errorf("server.reload_interval must not be negative, got %v", c.Server.ReloadInterval)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	return nil
}
