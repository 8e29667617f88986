// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package recommend

import (
	"testing"
	"time"

	"github.com/tomtom215/slopeone/internal/config"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "zero workers", modify: func(c *Config) { c.Training.Workers = 0 }, wantErr: true},
		{name: "negative timeout", modify: func(c *Config) { c.Training.Timeout = -time.Second }, wantErr: true},
		{name: "negative max items", modify: func(c *Config) { c.Training.MaxItems = -1 }, wantErr: true},
		{name: "negative load workers", modify: func(c *Config) { c.Training.LoadWorkers = -1 }, wantErr: true},
		{name: "negative default k", modify: func(c *Config) { c.DefaultK = -1 }, wantErr: true},
		{name: "zero default k", modify: func(c *Config) { c.DefaultK = 0 }},
		{name: "cache without ttl", modify: func(c *Config) { c.Cache.TTL = 0 }, wantErr: true},
		{name: "disabled cache without ttl", modify: func(c *Config) { c.Cache.Enabled = false; c.Cache.TTL = 0 }},
		{name: "cache without entries", modify: func(c *Config) { c.Cache.MaxEntries = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	t.Parallel()

	app := config.Default()
	app.Training.Workers = 8
	app.Training.MaxItems = 500
	app.Prediction.MissingPairPolicy = "zero"
	app.Prediction.TopKPolicy = "truncate"
	app.Prediction.Serving = "lazy"
	app.Prediction.DefaultK = 25
	app.Cache.Enabled = false

	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Training.Workers != 8 || cfg.Training.MaxItems != 500 || cfg.DefaultK != 25 {
		t.Errorf("training/default k not mapped: %+v", cfg)
	}
	if cfg.MissingPairPolicy != slopeone.ZeroOnMissing || cfg.TopK != TopKTruncate || cfg.Serving != ServeLazy {
		t.Errorf("policies not mapped: %+v", cfg)
	}
	if cfg.Cache.Enabled {
		t.Error("cache.enabled not mapped")
	}
	if bc := cfg.builderConfig(); bc.Assemble {
		t.Error("lazy serving should not assemble the dense matrix")
	}
	if cfg.loadWorkers() != 8 {
		t.Errorf("loadWorkers() = %d, want workers", cfg.loadWorkers())
	}

	app.Prediction.Serving = "sideways"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("FromAppConfig() accepted an unknown serving mode")
	}
}

func TestConfigClone(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.DefaultK = 99
	if cfg.DefaultK == 99 {
		t.Error("Clone() shares state with the original")
	}
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()

	topK := map[string]TopKPolicy{"": TopKStrict, "strict": TopKStrict, "TRUNCATE": TopKTruncate}
	for in, want := range topK {
		if got, err := ParseTopKPolicy(in); err != nil || got != want {
			t.Errorf("ParseTopKPolicy(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseTopKPolicy("loose"); err == nil {
		t.Error("ParseTopKPolicy(loose) accepted")
	}

	serving := map[string]ServingMode{"": ServeDense, "dense": ServeDense, " lazy ": ServeLazy}
	for in, want := range serving {
		if got, err := ParseServingMode(in); err != nil || got != want {
			t.Errorf("ParseServingMode(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseServingMode("sparse"); err == nil {
		t.Error("ParseServingMode(sparse) accepted")
	}
	if TopKTruncate.String() != "truncate" || ServeLazy.String() != "lazy" {
		t.Error("String() does not round-trip")
	}
}
