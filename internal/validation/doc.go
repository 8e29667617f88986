// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. Field names in error
// messages are taken from the koanf tags, so a failure on the training worker
// count reads "training.workers must be at least 1" and matches the key a user
// would put in slopeone.yaml.
//
//	type TrainingConfig struct {
//	    Workers int `koanf:"workers" validate:"min=1"`
//	}
//
//	if err := validation.ValidateStruct(cfg); err != nil {
//	    return fmt.Errorf("configuration validation failed: %w", err)
//	}
package validation
