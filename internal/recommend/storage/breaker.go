// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package storage

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/metrics"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// BreakerConfig configures a BreakerModel.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string
	// MaxRequests is how many trial requests pass in the half-open state.
	MaxRequests uint32
	// Interval is the closed-state window after which counts reset.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// FailureRatio trips the breaker once at least MinRequests were seen.
	FailureRatio float64
	MinRequests  uint32
}

// BreakerModel guards a remote CorrelationModel with a circuit breaker.
type BreakerModel struct {
	model slopeone.CorrelationModel
	cb    *gobreaker.CircuitBreaker[float64]
}

var _ slopeone.CorrelationModel = (*BreakerModel)(nil)

// NewBreakerModel wraps model. Zero config fields fall back to gobreaker's
// defaults, except the trip condition which needs MinRequests and FailureRatio.
func NewBreakerModel(model slopeone.CorrelationModel, cfg BreakerConfig) *BreakerModel {
	name := cfg.Name
	if name == "" {
		name = "model"
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), stateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Model circuit breaker state changed")
		},
		IsSuccessful: isBackendHealthy,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &BreakerModel{
		model: model,
		cb:    gobreaker.NewCircuitBreaker[float64](settings),
	}
}

// Lookup forwards to the wrapped model unless the breaker is open, in which
// case it fails immediately with gobreaker.ErrOpenState.
func (b *BreakerModel) Lookup(ctx context.Context, itemI, itemJ int) (float64, error) {
	return b.cb.Execute(func() (float64, error) {
		return b.model.Lookup(ctx, itemI, itemJ)
	})
}

// State returns the current breaker state.
func (b *BreakerModel) State() gobreaker.State {
	return b.cb.State()
}

// isBackendHealthy reports whether err says nothing about the backend's
// health: unknown items and caller cancellation do not count as failures.
func isBackendHealthy(err error) bool {
	if err == nil {
		return true
	}
	var lookupErr *slopeone.ModelLookupError
	if errors.As(err, &lookupErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
