// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package config loads Slopeone configuration with Koanf.
//
// Values are layered, later layers overriding earlier ones:
//
//  1. Struct defaults (defaultConfig)
//  2. YAML file: CONFIG_PATH, or the first of DefaultConfigPaths that exists
//  3. Environment variables mapped through envTransformFunc
//
// The result is validated with go-playground/validator tags first and then with
// the cross-field rules in Validate (backend-specific required settings).
//
// Example slopeone.yaml:
//
//	training:
//	  workers: 8
//	  timeout: 45m
//	prediction:
//	  missing_pair_policy: fail
//	  serving: dense
//	ratings:
//	  source: duckdb
//	model:
//	  store: file
//	  path: /data/slopeone/models
//	  format: msgpack
//	duckdb:
//	  path: /data/slopeone/ratings.duckdb
package config
