// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package config

import "time"

// Rating source backends.
const (
	SourceCSV    = "csv"
	SourceDuckDB = "duckdb"
	SourceMongo  = "mongo"
)

// Model store backends.
const (
	StoreFile   = "file"
	StoreDuckDB = "duckdb"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Serving modes for the correlation model.
const (
	ServingDense = "dense"
	ServingLazy  = "lazy"
)

// Config is the complete Slopeone configuration.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Training   TrainingConfig   `koanf:"training"`
	Prediction PredictionConfig `koanf:"prediction"`
	Ratings    RatingsConfig    `koanf:"ratings"`
	Model      ModelConfig      `koanf:"model"`
	DuckDB     DuckDBConfig     `koanf:"duckdb"`
	Badger     BadgerConfig     `koanf:"badger"`
	Redis      RedisConfig      `koanf:"redis"`
	Mongo      MongoConfig      `koanf:"mongo"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Cache      CacheConfig      `koanf:"cache"`
	Server     ServerConfig     `koanf:"server"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// TrainingConfig configures the model builder.
type TrainingConfig struct {
	// Workers is the number of row partitions computed in parallel.
	// Default: 4
	Workers int `koanf:"workers" validate:"min=1"`

	// Timeout bounds a whole training run, join included.
	// Default: 30m
	Timeout time.Duration `koanf:"timeout"`

	// MaxItems caps the item universe a run will accept. The dense matrix
	// holds MaxItems^2 float64 values, so this is the memory guard.
	// 0 disables the cap.
	// Default: 20000
	MaxItems int `koanf:"max_items" validate:"min=0"`
}

// PredictionConfig configures the predictor and top-K selection.
type PredictionConfig struct {
	// MissingPairPolicy decides what a lookup of an unknown item returns:
	// "fail" surfaces a ModelLookupError, "zero" treats the difference as 0.
	// Default: fail
	MissingPairPolicy string `koanf:"missing_pair_policy" validate:"oneof=fail zero"`

	// DefaultK is used when a request does not name a count. 0 returns every candidate.
	// Default: 10
	DefaultK int `koanf:"default_k" validate:"min=0"`

	// TopKPolicy is "strict" (error when k exceeds candidates) or "truncate".
	// Default: strict
	TopKPolicy string `koanf:"top_k_policy" validate:"oneof=strict truncate"`

	// Serving is "dense" (load the whole matrix) or "lazy" (point lookups
	// against the model store).
	// Default: dense
	Serving string `koanf:"serving" validate:"oneof=dense lazy"`
}

// RatingsConfig selects where the rating history is read from.
type RatingsConfig struct {
	// Source is csv, duckdb or mongo.
	// Default: duckdb
	Source string `koanf:"source" validate:"oneof=csv duckdb mongo"`

	// CSVPath is a userId,movieId,rating file with a header row.
	CSVPath string `koanf:"csv_path"`
}

// ModelConfig selects where trained models are persisted.
type ModelConfig struct {
	// Store is file, duckdb, badger or redis.
	// Default: file
	Store string `koanf:"store" validate:"oneof=file duckdb badger redis"`

	// Path is the run directory for the file store.
	// Default: /data/slopeone/models
	Path string `koanf:"path"`

	// Format is the file store shard encoding: csv or msgpack.
	// Default: csv
	Format string `koanf:"format" validate:"oneof=csv msgpack"`

	// RetainRuns is how many committed runs are kept.
	// Default: 3
	RetainRuns int `koanf:"retain_runs" validate:"min=1"`
}

// DuckDBConfig configures the embedded DuckDB database.
type DuckDBConfig struct {
	// Path is the database file.
	// Default: /data/slopeone/slopeone.duckdb
	Path string `koanf:"path"`

	// Threads is DuckDB's worker thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`

	// MaxMemory is DuckDB's memory limit, for example "2GB".
	// Default: 1GB
	MaxMemory string `koanf:"max_memory"`
}

// BadgerConfig configures the Badger model store.
type BadgerConfig struct {
	// Path is the Badger data directory.
	// Default: /data/slopeone/badger
	Path string `koanf:"path"`
}

// RedisConfig configures the Redis model store.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db" validate:"min=0"`
	KeyPrefix string `koanf:"key_prefix"`
}

// MongoConfig configures the MongoDB rating source.
type MongoConfig struct {
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
}

// BreakerConfig configures the circuit breaker around lazy model lookups.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxRequests allowed through while half-open.
	// Default: 3
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval is the closed-state window after which counts reset.
	// Default: 1m
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open.
	// Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// FailureRatio trips the breaker once MinRequests have been seen.
	// Default: 0.6
	FailureRatio float64 `koanf:"failure_ratio" validate:"gte=0,lte=1"`

	// MinRequests is the sample size before FailureRatio applies.
	// Default: 10
	MinRequests uint32 `koanf:"min_requests"`
}

// CacheConfig configures the per-user response cache in front of the predictor.
type CacheConfig struct {
	Enabled bool `koanf:"enabled"`

	// TTL bounds how long a response is reused within one run.
	// Default: 5m
	TTL time.Duration `koanf:"ttl"`

	// Default: 10000
	MaxEntries int `koanf:"max_entries"`
}

// ServerConfig configures the long-running serve command.
type ServerConfig struct {
	// Addr is the listen address for health and metrics.
	// Default: :9090
	Addr string `koanf:"addr"`

	// TrainInterval is how often the model is retrained.
	// Default: 24h
	TrainInterval time.Duration `koanf:"train_interval"`

	// TrainOnStartup trains once as soon as the service starts.
	TrainOnStartup bool `koanf:"train_on_startup"`

	// ReloadInterval polls the model store for runs committed by another
	// process, such as a cron-driven `slopeone train`. 0 disables polling.
	ReloadInterval time.Duration `koanf:"reload_interval"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// defaultConfig returns the defaults layered first by the loader.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Training: TrainingConfig{
			Workers:  4,
			Timeout:  30 * time.Minute,
			MaxItems: 20000,
		},
		Prediction: PredictionConfig{
			MissingPairPolicy: "fail",
			DefaultK:          10,
			TopKPolicy:        "strict",
			Serving:           ServingDense,
		},
		Ratings: RatingsConfig{
			Source: SourceDuckDB,
		},
		Model: ModelConfig{
			Store:      StoreFile,
			Path:       "/data/slopeone/models",
			Format:     "csv",
			RetainRuns: 3,
		},
		DuckDB: DuckDBConfig{
			Path:      "/data/slopeone/slopeone.duckdb",
			MaxMemory: "1GB",
		},
		Badger: BadgerConfig{
			Path: "/data/slopeone/badger",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "slopeone",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "slopeone",
			Collection: "ratings",
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  10,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
		Server: ServerConfig{
			Addr:            ":9090",
			TrainInterval:   24 * time.Hour,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	return defaultConfig()
}

// UsesDuckDB reports whether either the rating source or the model store is DuckDB.
func (c *Config) UsesDuckDB() bool {
	return c.Ratings.Source == SourceDuckDB || c.Model.Store == StoreDuckDB
}
