// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package recommend

import (
	"fmt"
	"time"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Training configures the model builder.
	Training TrainingConfig `json:"training"`

	// MissingPairPolicy decides how lookups of unknown items are treated.
	MissingPairPolicy slopeone.LookupPolicy `json:"missing_pair_policy"`

	// DefaultK is used when a request passes k = 0. 0 here returns every candidate.
	DefaultK int `json:"default_k"`

	// TopK decides what happens when k exceeds the candidate count.
	TopK TopKPolicy `json:"top_k"`

	// Serving selects dense or lazy model serving.
	Serving ServingMode `json:"serving"`

	// Cache contains response caching parameters.
	Cache CacheConfig `json:"cache"`
}

// TrainingConfig contains training parameters.
type TrainingConfig struct {
	// Workers is the number of partitions trained in parallel.
	Workers int `json:"workers"`

	// Timeout bounds one training run.
	Timeout time.Duration `json:"timeout"`

	// MaxItems caps the item universe. 0 disables the cap.
	MaxItems int `json:"max_items"`

	// LoadWorkers is the shard read parallelism of Reload. 0 uses Workers.
	LoadWorkers int `json:"load_workers"`
}

// CacheConfig contains response caching parameters.
type CacheConfig struct {
	// Enabled turns on response caching.
	Enabled bool `json:"enabled"`

	// TTL is how long cached responses are valid.
	TTL time.Duration `json:"ttl"`

	// MaxEntries is the maximum number of cached responses.
	MaxEntries int `json:"max_entries"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Training: TrainingConfig{
			Workers:  4,
			Timeout:  30 * time.Minute,
			MaxItems: 20000,
		},
		MissingPairPolicy: slopeone.FailOnMissing,
		DefaultK:          10,
		TopK:              TopKStrict,
		Serving:           ServeDense,
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
	}
}

// FromAppConfig derives the engine configuration from the application
// configuration.
func FromAppConfig(app *config.Config) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Training.Workers = app.Training.Workers
	cfg.Training.Timeout = app.Training.Timeout
	cfg.Training.MaxItems = app.Training.MaxItems
	cfg.DefaultK = app.Prediction.DefaultK
	cfg.Cache = CacheConfig{
		Enabled:    app.Cache.Enabled,
		TTL:        app.Cache.TTL,
		MaxEntries: app.Cache.MaxEntries,
	}

	policy, err := slopeone.ParseLookupPolicy(app.Prediction.MissingPairPolicy)
	if err != nil {
		return nil, err
	}
	cfg.MissingPairPolicy = policy

	if cfg.TopK, err = ParseTopKPolicy(app.Prediction.TopKPolicy); err != nil {
		return nil, err
	}
	if cfg.Serving, err = ParseServingMode(app.Prediction.Serving); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Training.Workers < 1 {
		return fmt.Errorf("training.workers must be positive, got %d", c.Training.Workers)
	}
	if c.Training.Timeout < 0 {
		return fmt.Errorf("training.timeout must be non-negative, got %v", c.Training.Timeout)
	}
	if c.Training.MaxItems < 0 {
		return fmt.Errorf("training.max_items must be non-negative, got %d", c.Training.MaxItems)
	}
	if c.Training.LoadWorkers < 0 {
		return fmt.Errorf("training.load_workers must be non-negative, got %d", c.Training.LoadWorkers)
	}
	if c.DefaultK < 0 {
		return fmt.Errorf("default_k must be non-negative, got %d", c.DefaultK)
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
		}
		if c.Cache.MaxEntries < 1 {
			return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	// All nested structs hold only value types
	clone := *c
	return &clone
}

// builderConfig maps the training section onto the builder.
func (c *Config) builderConfig() slopeone.BuilderConfig {
	return slopeone.BuilderConfig{
		Workers:  c.Training.Workers,
		Timeout:  c.Training.Timeout,
		MaxItems: c.Training.MaxItems,
		Assemble: c.Serving == ServeDense,
	}
}

func (c *Config) loadWorkers() int {
	if c.Training.LoadWorkers > 0 {
		return c.Training.LoadWorkers
	}
	return c.Training.Workers
}
