// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// RecommendEngine is the part of recommend.Engine the service drives.
type RecommendEngine interface {
	// Train builds, commits and serves a new model.
	Train(ctx context.Context) (*slopeone.TrainResult, error)

	// Reload serves the store's active committed run.
	Reload(ctx context.Context) error
}

// RecommendServiceConfig holds configuration for the recommendation service.
type RecommendServiceConfig struct {
	// TrainOnStartup triggers training when the service starts.
	TrainOnStartup bool

	// TrainInterval is how often to retrain.
	// Default: 24h
	TrainInterval time.Duration

	// ReloadInterval is how often to pick up runs committed elsewhere.
	// 0 disables it.
	ReloadInterval time.Duration

	// TrainTimeout bounds one training cycle. 0 leaves it to the engine.
	TrainTimeout time.Duration
}

// RecommendService wraps the engine for suture supervision.
type RecommendService struct {
	engine RecommendEngine
	config RecommendServiceConfig
	logger zerolog.Logger
	name   string
}

// NewRecommendService creates a new recommendation service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRecommendService(engine RecommendEngine, cfg RecommendServiceConfig, logger zerolog.Logger) *RecommendService {
	if cfg.TrainInterval <= 0 {
		cfg.TrainInterval = 24 * time.Hour
	}
	return &RecommendService{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("service", "recommend").Logger(),
		name:   "recommend-service",
	}
}

// Serve implements suture.Service.
func (s *RecommendService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("train_interval", s.config.TrainInterval).
		Dur("reload_interval", s.config.ReloadInterval).
		Msg("recommendation service starting")

	// A restart after a crash lands here too, so the last committed run is
	// served again before anything else happens.
	s.reload(ctx)

	if s.config.TrainOnStartup {
		if err := s.train(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("initial training failed (will retry on schedule)")
		}
	}

	trainTicker := time.NewTicker(s.config.TrainInterval)
	defer trainTicker.Stop()

	var reloadC <-chan time.Time
	if s.config.ReloadInterval > 0 {
		reloadTicker := time.NewTicker(s.config.ReloadInterval)
		defer reloadTicker.Stop()
		reloadC = reloadTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("recommendation service shutting down")
			return ctx.Err()

		case <-trainTicker.C:
			s.logger.Debug().Msg("scheduled training triggered")
			if err := s.train(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled training failed")
			}

		case <-reloadC:
			s.reload(ctx)
		}
	}
}

func (s *RecommendService) reload(ctx context.Context) {
	err := s.engine.Reload(ctx)
	switch {
	case err == nil:
	case errors.Is(err, slopeone.ErrNoModel):
		s.logger.Info().Msg("no committed model yet")
	case ctx.Err() != nil:
	default:
		s.logger.Warn().Err(err).Msg("model reload failed")
	}
}

// train runs one training cycle under its own run-scoped context.
func (s *RecommendService) train(ctx context.Context) error {
	if s.config.TrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TrainTimeout)
		defer cancel()
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)

	start := time.Now()
	res, err := s.engine.Train(ctx)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("run_id", res.RunID).
		Int("items", res.Stats.Items).
		Dur("duration", time.Since(start)).
		Msg("scheduled model ready")
	return nil
}

// String returns the service name for logging.
func (s *RecommendService) String() string {
	return s.name
}
