// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package metrics exposes Prometheus instrumentation for training, prediction
// and model storage. All collectors are registered on the default registry via
// promauto and are served by the serve command at /metrics.
package metrics
