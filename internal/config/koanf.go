// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"slopeone.yaml",
	"slopeone.yml",
	"/etc/slopeone/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads configuration from defaults, the discovered config file and the environment.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to config keys.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"slopeone_workers":   "training.workers",
	"slopeone_timeout":   "training.timeout",
	"slopeone_max_items": "training.max_items",

	"slopeone_missing_pair_policy": "prediction.missing_pair_policy",
	"slopeone_default_k":           "prediction.default_k",
	"slopeone_top_k_policy":        "prediction.top_k_policy",
	"slopeone_serving":             "prediction.serving",

	"slopeone_ratings_source": "ratings.source",
	"slopeone_ratings_csv":    "ratings.csv_path",

	"slopeone_model_store":       "model.store",
	"slopeone_model_path":        "model.path",
	"slopeone_model_format":      "model.format",
	"slopeone_model_retain_runs": "model.retain_runs",

	"duckdb_path":       "duckdb.path",
	"duckdb_threads":    "duckdb.threads",
	"duckdb_max_memory": "duckdb.max_memory",

	"badger_path": "badger.path",

	"redis_addr":       "redis.addr",
	"redis_password":   "redis.password",
	"redis_db":         "redis.db",
	"redis_key_prefix": "redis.key_prefix",

	"mongo_uri":        "mongo.uri",
	"mongo_database":   "mongo.database",
	"mongo_collection": "mongo.collection",

	"breaker_enabled":       "breaker.enabled",
	"breaker_timeout":       "breaker.timeout",
	"breaker_failure_ratio": "breaker.failure_ratio",

	"slopeone_cache_enabled": "cache.enabled",
	"slopeone_cache_ttl":     "cache.ttl",

	"slopeone_http_addr":        "server.addr",
	"slopeone_train_interval":   "server.train_interval",
	"slopeone_train_on_startup": "server.train_on_startup",
	"slopeone_reload_interval":  "server.reload_interval",
}

// envTransformFunc maps an environment variable to its config key.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
