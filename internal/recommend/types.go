// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package recommend

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// TopKPolicy decides what happens when a request asks for more predictions
// than there are candidates.
type TopKPolicy int

const (
	// TopKStrict fails with RequestedCountExceedsAvailableError.
	TopKStrict TopKPolicy = iota
	// TopKTruncate returns every candidate.
	TopKTruncate
)

// String returns the configuration name of the policy.
func (p TopKPolicy) String() string {
	if p == TopKTruncate {
		return "truncate"
	}
	return "strict"
}

// ParseTopKPolicy parses "strict" or "truncate". Empty means strict.
func ParseTopKPolicy(s string) (TopKPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return TopKStrict, nil
	case "truncate":
		return TopKTruncate, nil
	default:
		return TopKStrict, fmt.Errorf("unknown top-k policy %q", s)
	}
}

// ServingMode selects how the served model answers lookups.
type ServingMode int

const (
	// ServeDense holds the whole matrix in memory.
	ServeDense ServingMode = iota
	// ServeLazy answers each lookup with a point query against the store.
	ServeLazy
)

// String returns the configuration name of the mode.
func (m ServingMode) String() string {
	if m == ServeLazy {
		return "lazy"
	}
	return "dense"
}

// ParseServingMode parses "dense" or "lazy". Empty means dense.
func ParseServingMode(s string) (ServingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dense":
		return ServeDense, nil
	case "lazy":
		return ServeLazy, nil
	default:
		return ServeDense, fmt.Errorf("unknown serving mode %q", s)
	}
}

// Response is the result of a Recommend call.
type Response struct {
	// UserID is the user the predictions are for.
	UserID int `json:"user_id"`

	// Items are the predictions, best first.
	Items slopeone.Predictions `json:"items"`

	// TotalCandidates is the number of items that were scored.
	TotalCandidates int `json:"total_candidates"`

	// Metadata describes how the response was produced.
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata contains information about how a response was produced.
type ResponseMetadata struct {
	RunID        string    `json:"run_id"`
	ModelVersion int       `json:"model_version"`
	Serving      string    `json:"serving"`
	LatencyMS    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	LoadedAt     time.Time `json:"loaded_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// TrainingStatus describes the state of model training.
type TrainingStatus struct {
	// IsTraining indicates if training is currently in progress.
	IsTraining bool `json:"is_training"`

	// LastRunID is the run produced by the last successful training.
	LastRunID string `json:"last_run_id,omitempty"`

	// LastTrainedAt is when the last successful training completed.
	LastTrainedAt time.Time `json:"last_trained_at"`

	// LastTrainingDurationMS is how long the last training took.
	LastTrainingDurationMS int64 `json:"last_training_duration_ms"`

	// LastError is the error from the last failed training, if any.
	LastError string `json:"last_error,omitempty"`

	// RatingCount is the number of ratings used in the last training.
	RatingCount int `json:"rating_count"`

	// ItemCount is the universe size of the last training.
	ItemCount int `json:"item_count"`

	// UserCount is the number of users in the last training.
	UserCount int `json:"user_count"`

	// ModelVersion increments on every model swap.
	ModelVersion int `json:"model_version"`
}

// Metrics contains engine counters.
type Metrics struct {
	RequestCount int64 `json:"request_count"`
	CacheHits    int64 `json:"cache_hits"`
	CacheMisses  int64 `json:"cache_misses"`
	ErrorCount   int64 `json:"error_count"`
}
