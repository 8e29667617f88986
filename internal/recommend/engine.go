// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/slopeone/internal/cache"
	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/metrics"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// ErrTrainingInProgress is returned by Train when another run holds the lock.
var ErrTrainingInProgress = errors.New("recommend: training already in progress")

// servedModel is one immutable generation of the model being served.
type servedModel struct {
	manifest  *slopeone.Manifest
	index     *slopeone.ItemIndex
	predictor *slopeone.Predictor
	version   int
	loadedAt  time.Time
}

// Engine trains Slope One models into a store and serves predictions from
// the active one. Recommend is safe for concurrent use; Train and Reload
// serialize and swap the served model atomically, so in-flight requests
// finish on the generation they started with.
type Engine struct {
	config *Config
	logger zerolog.Logger

	ratings slopeone.RatingSource
	store   slopeone.ModelStore
	wrap    func(slopeone.CorrelationModel) slopeone.CorrelationModel

	served  atomic.Pointer[servedModel]
	version atomic.Int32

	// Training state
	trainMu  sync.Mutex
	statusMu sync.RWMutex
	status   TrainingStatus

	requestCount atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	errorCount   atomic.Int64

	// cache is nil when response caching is disabled.
	cache *cache.LRU[cacheKey, *Response]
}

// cacheKey identifies a cached response. The run id keeps a response from
// outliving the model that produced it.
type cacheKey struct {
	userID int
	k      int
	strict bool
	runID  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLookupWrapper wraps every lazily served model, for example in a
// circuit breaker. It has no effect on dense serving.
func WithLookupWrapper(wrap func(slopeone.CorrelationModel) slopeone.CorrelationModel) Option {
	return func(e *Engine) {
		e.wrap = wrap
	}
}

// NewEngine creates a new recommendation engine. Lazy serving requires a
// store that implements slopeone.CellFetcher.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, ratings slopeone.RatingSource, store slopeone.ModelStore, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if ratings == nil {
		return nil, &slopeone.ConfigurationError{Field: "ratings", Reason: "a rating source is required"}
	}
	if store == nil {
		return nil, &slopeone.ConfigurationError{Field: "store", Reason: "a model store is required"}
	}
	if _, ok := store.(slopeone.CellFetcher); cfg.Serving == ServeLazy && !ok {
		return nil, &slopeone.ConfigurationError{
			Field:  "serving",
			Reason: fmt.Sprintf("lazy serving needs a store with point lookups, %T has none", store),
		}
	}

	e := &Engine{
		config:  cfg,
		logger:  logger.With().Str("component", "recommend").Logger(),
		ratings: ratings,
		store:   store,
	}
	if cfg.Cache.Enabled {
		e.cache = cache.NewLRU[cacheKey, *Response](cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Train builds a model from the full rating history, commits it to the
// store and starts serving it. It returns ErrTrainingInProgress immediately
// if another training holds the lock.
func (e *Engine) Train(ctx context.Context) (*slopeone.TrainResult, error) {
	if !e.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	start := time.Now()
	e.updateStatus(func(s *TrainingStatus) {
		s.IsTraining = true
		s.LastError = ""
	})
	e.logger.Info().Msg("starting model training")

	res, err := e.train(ctx)
	if err != nil {
		e.updateStatus(func(s *TrainingStatus) {
			s.IsTraining = false
			s.LastError = err.Error()
			s.LastTrainingDurationMS = time.Since(start).Milliseconds()
		})
		return nil, err
	}

	version := e.version.Load()
	e.updateStatus(func(s *TrainingStatus) {
		s.IsTraining = false
		s.LastRunID = res.RunID
		s.LastTrainedAt = time.Now()
		s.LastTrainingDurationMS = time.Since(start).Milliseconds()
		s.RatingCount = res.Stats.Ratings
		s.ItemCount = res.Stats.Items
		s.UserCount = res.Stats.Users
		s.ModelVersion = int(version)
	})

	e.logger.Info().
		Str("run_id", res.RunID).
		Int32("version", version).
		Dur("duration", time.Since(start)).
		Msg("model training complete")
	return res, nil
}

func (e *Engine) train(ctx context.Context) (*slopeone.TrainResult, error) {
	universe, profiles, err := slopeone.CollectProfiles(ctx, e.ratings)
	if err != nil {
		return nil, err
	}

	builder, err := slopeone.NewBuilder(e.config.builderConfig(), e.store, e.logger)
	if err != nil {
		return nil, err
	}
	res, err := builder.Train(ctx, universe, profiles)
	if err != nil {
		return nil, err
	}

	var model slopeone.CorrelationModel
	if e.config.Serving == ServeDense {
		model = res.Model
	} else if model, err = e.lazyModel(res.Manifest); err != nil {
		return nil, err
	}
	if err := e.swap(res.Manifest, model); err != nil {
		return nil, err
	}
	return res, nil
}

// Reload serves the store's active committed run. It returns
// slopeone.ErrNoModel when nothing was ever committed.
func (e *Engine) Reload(ctx context.Context) error {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	var (
		manifest *slopeone.Manifest
		model    slopeone.CorrelationModel
		err      error
	)
	if e.config.Serving == ServeDense {
		var dense *slopeone.DenseModel
		dense, manifest, err = slopeone.LoadDense(ctx, e.store, e.config.loadWorkers())
		model = dense
	} else {
		manifest, err = e.store.ActiveManifest(ctx)
		if err == nil {
			model, err = e.lazyModel(manifest)
		}
	}
	if err != nil {
		return err
	}

	if cur := e.served.Load(); cur != nil && cur.manifest.RunID == manifest.RunID {
		e.logger.Debug().Str("run_id", manifest.RunID).Msg("active run already served")
		return nil
	}
	if err := e.swap(manifest, model); err != nil {
		return err
	}
	e.logger.Info().Str("run_id", manifest.RunID).Str("serving", e.config.Serving.String()).Msg("model reloaded")
	return nil
}

func (e *Engine) lazyModel(m *slopeone.Manifest) (slopeone.CorrelationModel, error) {
	fetcher, ok := e.store.(slopeone.CellFetcher)
	if !ok {
		return nil, &slopeone.ConfigurationError{Field: "serving", Reason: "store has no point lookups"}
	}
	lazy, err := slopeone.NewLazyModel(m, fetcher)
	if err != nil {
		return nil, err
	}
	if e.wrap != nil {
		return e.wrap(lazy), nil
	}
	return lazy, nil
}

// swap installs a new model generation and drops cached responses.
func (e *Engine) swap(m *slopeone.Manifest, model slopeone.CorrelationModel) error {
	predictor, err := slopeone.NewPredictor(model, slopeone.PredictorConfig{Policy: e.config.MissingPairPolicy})
	if err != nil {
		return err
	}
	next := &servedModel{
		manifest:  m,
		index:     slopeone.NewItemIndex(m.Items),
		predictor: predictor,
		version:   int(e.version.Add(1)),
		loadedAt:  time.Now(),
	}
	e.served.Store(next)
	e.clearCache()
	metrics.RecordModelServed(len(m.Items))
	return nil
}

// Recommend predicts ratings for the items userID has not rated and returns
// the best k. Under TopKStrict an explicit k above the candidate count fails
// with *slopeone.RequestedCountExceedsAvailableError. k = 0 uses
// Config.DefaultK, which always truncates; a DefaultK of 0 returns every
// candidate.
func (e *Engine) Recommend(ctx context.Context, userID, k int) (*Response, error) {
	start := time.Now()
	e.requestCount.Add(1)

	if k < 0 {
		return nil, e.fail(&slopeone.ConfigurationError{Field: "k", Reason: fmt.Sprintf("must be non-negative, got %d", k)})
	}
	strict := e.config.TopK == TopKStrict
	if k == 0 {
		k = e.config.DefaultK
		strict = false
	}

	served := e.served.Load()
	if served == nil {
		return nil, e.fail(slopeone.ErrNoModel)
	}
	logger := logging.Ctx(ctx).With().Int("user_id", userID).Int("k", k).Logger()

	key := cacheKey{userID: userID, k: k, strict: strict, runID: served.manifest.RunID}
	if resp := e.checkCache(key); resp != nil {
		e.cacheHits.Add(1)
		resp.Metadata.CacheHit = true
		resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
		logger.Debug().Msg("cache hit")
		return resp, nil
	}
	e.cacheMisses.Add(1)

	ranked, err := e.predict(ctx, served, userID)
	if err != nil {
		return nil, e.fail(err)
	}

	items := ranked
	if k > 0 {
		if strict {
			if items, err = ranked.TopX(k); err != nil {
				return nil, e.fail(err)
			}
		} else {
			items = ranked.Head(k)
		}
	}

	resp := &Response{
		UserID:          userID,
		Items:           items,
		TotalCandidates: len(ranked),
		Metadata: ResponseMetadata{
			RunID:        served.manifest.RunID,
			ModelVersion: served.version,
			Serving:      e.config.Serving.String(),
			LatencyMS:    time.Since(start).Milliseconds(),
			LoadedAt:     served.loadedAt,
			Timestamp:    time.Now(),
		},
	}
	e.storeCache(key, resp)
	metrics.RecordPrediction(len(ranked), time.Since(start))

	logger.Debug().
		Int("candidates", len(ranked)).
		Int("returned", len(items)).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")
	return resp, nil
}

// PredictAll returns every unrated item of userID ranked by predicted rating.
func (e *Engine) PredictAll(ctx context.Context, userID int) (slopeone.Predictions, error) {
	start := time.Now()
	e.requestCount.Add(1)

	served := e.served.Load()
	if served == nil {
		return nil, e.fail(slopeone.ErrNoModel)
	}
	ranked, err := e.predict(ctx, served, userID)
	if err != nil {
		return nil, e.fail(err)
	}
	metrics.RecordPrediction(len(ranked), time.Since(start))
	return ranked, nil
}

// predict scores the user's unrated items that the served run knows about.
// Items first rated after the run was trained are skipped on both sides: as
// candidates and as entries of the profile the predictions are averaged over.
func (e *Engine) predict(ctx context.Context, served *servedModel, userID int) (slopeone.Predictions, error) {
	profile, err := e.ratings.UserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile of user %d: %w", userID, err)
	}
	unrated, err := e.ratings.UnratedItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load unrated items of user %d: %w", userID, err)
	}

	known, skippedRated, err := knownProfile(served.index, profile, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]int, 0, len(unrated))
	for _, item := range unrated {
		if served.index.Contains(item) {
			candidates = append(candidates, item)
		}
	}
	if skipped := len(unrated) - len(candidates); skipped > 0 || skippedRated > 0 {
		logging.Ctx(ctx).Debug().
			Int("user_id", userID).
			Int("skipped_candidates", skipped).
			Int("skipped_rated", skippedRated).
			Str("run_id", served.manifest.RunID).
			Msg("items unknown to the served run were skipped")
	}

	return served.predictor.Predict(ctx, known, candidates)
}

// knownProfile drops the ratings of items outside index. It fails with
// *slopeone.InsufficientDataError when none remain.
func knownProfile(index *slopeone.ItemIndex, profile *slopeone.UserProfile, userID int) (*slopeone.UserProfile, int, error) {
	if profile == nil || profile.Len() == 0 {
		return nil, 0, &slopeone.InsufficientDataError{UserID: userID}
	}

	entries := profile.Entries()
	skipped := 0
	for _, en := range entries {
		if !index.Contains(en.ItemID) {
			skipped++
		}
	}
	if skipped == 0 {
		return profile, 0, nil
	}
	if skipped == len(entries) {
		return nil, skipped, &slopeone.InsufficientDataError{UserID: userID}
	}

	known := slopeone.NewUserProfile(profile.UserID)
	for _, en := range entries {
		if !index.Contains(en.ItemID) {
			continue
		}
		if err := known.Append(en.ItemID, en.Rating); err != nil {
			return nil, skipped, err
		}
	}
	return known, skipped, nil
}

// fail counts a failed request and returns err unchanged.
func (e *Engine) fail(err error) error {
	e.errorCount.Add(1)
	metrics.RecordPredictionError(errorKind(err))
	return err
}

// errorKind classifies an error for the prediction error metric.
func errorKind(err error) string {
	var (
		insufficient *slopeone.InsufficientDataError
		lookup       *slopeone.ModelLookupError
		count        *slopeone.RequestedCountExceedsAvailableError
		cfgErr       *slopeone.ConfigurationError
		nonFinite    *slopeone.NonFinitePredictionError
	)
	switch {
	case errors.Is(err, slopeone.ErrNoModel):
		return "no_model"
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &lookup):
		return "lookup"
	case errors.As(err, &count):
		return "count_exceeds_available"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &nonFinite):
		return "non_finite"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "backend"
	}
}

// Ready reports whether a model is being served.
func (e *Engine) Ready() bool {
	return e.served.Load() != nil
}

// ActiveRun returns the manifest of the served run, or nil.
func (e *Engine) ActiveRun() *slopeone.Manifest {
	if s := e.served.Load(); s != nil {
		return s.manifest
	}
	return nil
}

// GetStatus returns the current training status.
func (e *Engine) GetStatus() TrainingStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	return e.status
}

func (e *Engine) updateStatus(fn func(*TrainingStatus)) {
	e.statusMu.Lock()
	fn(&e.status)
	e.statusMu.Unlock()
}

// GetMetrics returns the current engine counters.
func (e *Engine) GetMetrics() Metrics {
	return Metrics{
		RequestCount: e.requestCount.Load(),
		CacheHits:    e.cacheHits.Load(),
		CacheMisses:  e.cacheMisses.Load(),
		ErrorCount:   e.errorCount.Load(),
	}
}

// GetConfig returns a copy of the current configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Clone()
}

// checkCache returns a copy of a live cached response, or nil.
func (e *Engine) checkCache(key cacheKey) *Response {
	if e.cache == nil {
		return nil
	}
	resp, ok := e.cache.Get(key)
	if !ok {
		return nil
	}
	return copyResponse(resp)
}

// copyResponse copies a response so callers cannot modify the cached one.
func copyResponse(resp *Response) *Response {
	items := make(slopeone.Predictions, len(resp.Items))
	copy(items, resp.Items)

	return &Response{
		UserID:          resp.UserID,
		Items:           items,
		TotalCandidates: resp.TotalCandidates,
		Metadata:        resp.Metadata,
	}
}

// storeCache stores a copy of resp in the cache.
func (e *Engine) storeCache(key cacheKey, resp *Response) {
	if e.cache == nil {
		return
	}
	e.cache.Add(key, copyResponse(resp))
}

// clearCache removes all cached entries.
func (e *Engine) clearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}
