// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"errors"
	"fmt"
)

var (
	// ErrNoModel is returned by readers when no committed run exists.
	ErrNoModel = errors.New("slopeone: no committed model")

	// ErrPartitionInvariant reports partitions that leave gaps, overlap,
	// or write outside their own rows.
	ErrPartitionInvariant = errors.New("slopeone: partition invariant violated")

	// ErrIncompleteRun is returned when a committed run is missing a cell.
	ErrIncompleteRun = errors.New("slopeone: committed run is incomplete")
)

// ConfigurationError reports invalid settings or an invalid input set.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("slopeone: invalid %s: %s", e.Field, e.Reason)
}

// TrainingFailure aborts a whole training run. Partition identifies the
// worker that failed first.
type TrainingFailure struct {
	RunID     string
	Partition Partition
	Err       error
}

func (e *TrainingFailure) Error() string {
	return fmt.Sprintf("slopeone: training run %s failed in partition %d [%d,%d): %v",
		e.RunID, e.Partition.Index, e.Partition.Start, e.Partition.End, e.Err)
}

func (e *TrainingFailure) Unwrap() error {
	return e.Err
}

// ModelLookupError reports a lookup of an item outside the trained universe.
type ModelLookupError struct {
	ItemI   int
	ItemJ   int
	Missing int
}

func (e *ModelLookupError) Error() string {
	return fmt.Sprintf("slopeone: item %d is not in the trained universe (lookup %d,%d)",
		e.Missing, e.ItemI, e.ItemJ)
}

// InsufficientDataError is returned when predicting for a user with no ratings.
type InsufficientDataError struct {
	UserID int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("slopeone: user %d has no ratings to predict from", e.UserID)
}

// NonFinitePredictionError is returned when a prediction evaluates to NaN or
// an infinity, which only a corrupt model or rating can produce.
type NonFinitePredictionError struct {
	UserID int
	ItemID int
}

func (e *NonFinitePredictionError) Error() string {
	return fmt.Sprintf("slopeone: prediction of item %d for user %d is not finite", e.ItemID, e.UserID)
}

// RequestedCountExceedsAvailableError is returned by TopX when k is larger
// than the number of predictions.
type RequestedCountExceedsAvailableError struct {
	Requested int
	Available int
}

func (e *RequestedCountExceedsAvailableError) Error() string {
	return fmt.Sprintf("slopeone: requested top %d but only %d predictions are available",
		e.Requested, e.Available)
}
