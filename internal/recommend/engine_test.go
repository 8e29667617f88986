// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/slopeone/internal/ratings"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// historyRatings gives these differences:
//
//	M[10][20]=0.5  M[10][30]=3  M[10][40]=-1.5
//	M[20][30]=-1   M[20][40]=-2.5  M[30][40]=0.5
func historyRatings() []slopeone.Rating {
	return []slopeone.Rating{
		{UserID: 1, ItemID: 10, Value: 5}, {UserID: 1, ItemID: 20, Value: 3}, {UserID: 1, ItemID: 30, Value: 2},
		{UserID: 2, ItemID: 10, Value: 3}, {UserID: 2, ItemID: 20, Value: 4},
		{UserID: 3, ItemID: 20, Value: 2}, {UserID: 3, ItemID: 30, Value: 5}, {UserID: 3, ItemID: 40, Value: 4.5},
		{UserID: 4, ItemID: 10, Value: 1}, {UserID: 4, ItemID: 40, Value: 2.5},
	}
}

func memorySource(t *testing.T, rs []slopeone.Rating) *ratings.MemorySource {
	t.Helper()
	src, err := ratings.NewMemorySource(rs)
	if err != nil {
		t.Fatalf("NewMemorySource() error = %v", err)
	}
	return src
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Training.Workers = 2
	cfg.Training.Timeout = time.Minute
	return cfg
}

func newTestEngine(t *testing.T, cfg *Config, src slopeone.RatingSource, store slopeone.ModelStore, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, src, store, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func trainedEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	e := newTestEngine(t, cfg, memorySource(t, historyRatings()), slopeone.NewMemoryStore())
	if _, err := e.Train(context.Background()); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return e
}

func assertPredictions(t *testing.T, got slopeone.Predictions, want ...slopeone.Prediction) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("predictions = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("prediction[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	src := memorySource(t, historyRatings())
	store := slopeone.NewMemoryStore()

	bad := testConfig()
	bad.Training.Workers = 0
	if _, err := NewEngine(bad, src, store, zerolog.Nop()); err == nil {
		t.Error("NewEngine() accepted zero workers")
	}

	var cfgErr *slopeone.ConfigurationError
	if _, err := NewEngine(testConfig(), nil, store, zerolog.Nop()); !errors.As(err, &cfgErr) {
		t.Errorf("NewEngine(nil source) error = %v, want ConfigurationError", err)
	}
	if _, err := NewEngine(testConfig(), src, nil, zerolog.Nop()); !errors.As(err, &cfgErr) {
		t.Errorf("NewEngine(nil store) error = %v, want ConfigurationError", err)
	}

	lazy := testConfig()
	lazy.Serving = ServeLazy
	if _, err := NewEngine(lazy, src, writeOnlyStore{store}, zerolog.Nop()); !errors.As(err, &cfgErr) {
		t.Errorf("NewEngine(lazy, no point lookups) error = %v, want ConfigurationError", err)
	}
}

// writeOnlyStore hides the CellFetcher of the wrapped store.
type writeOnlyStore struct {
	slopeone.ModelStore
}

func TestEngineRecommend(t *testing.T) {
	t.Parallel()

	for _, mode := range []ServingMode{ServeDense, ServeLazy} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Serving = mode
			e := trainedEngine(t, cfg)
			ctx := context.Background()

			resp, err := e.Recommend(ctx, 2, 2)
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			assertPredictions(t, resp.Items,
				slopeone.Prediction{ItemID: 30, Rating: 4.5},
				slopeone.Prediction{ItemID: 40, Rating: 1.5})
			if resp.TotalCandidates != 2 || resp.Metadata.Serving != mode.String() {
				t.Errorf("metadata = %+v, total %d", resp.Metadata, resp.TotalCandidates)
			}

			all, err := e.PredictAll(ctx, 4)
			if err != nil {
				t.Fatalf("PredictAll() error = %v", err)
			}
			assertPredictions(t, all,
				slopeone.Prediction{ItemID: 20, Rating: 3.25},
				slopeone.Prediction{ItemID: 30, Rating: 3})
		})
	}
}

func TestEngineTopKPolicies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	strict := trainedEngine(t, testConfig())
	var exceeds *slopeone.RequestedCountExceedsAvailableError
	if _, err := strict.Recommend(ctx, 2, 3); !errors.As(err, &exceeds) {
		t.Fatalf("Recommend(k=3) error = %v, want RequestedCountExceedsAvailableError", err)
	}
	if exceeds.Requested != 3 || exceeds.Available != 2 {
		t.Errorf("error = %+v", exceeds)
	}

	resp, err := strict.Recommend(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Recommend(k=1) error = %v", err)
	}
	assertPredictions(t, resp.Items, slopeone.Prediction{ItemID: 30, Rating: 4.5})

	// The default count truncates even under the strict policy.
	resp, err = strict.Recommend(ctx, 2, 0)
	if err != nil || len(resp.Items) != 2 {
		t.Errorf("Recommend(k=0) = %v, %v, want both candidates", resp, err)
	}

	var cfgErr *slopeone.ConfigurationError
	if _, err := strict.Recommend(ctx, 2, -1); !errors.As(err, &cfgErr) {
		t.Errorf("Recommend(k=-1) error = %v, want ConfigurationError", err)
	}

	cfg := testConfig()
	cfg.TopK = TopKTruncate
	truncating := trainedEngine(t, cfg)
	resp, err = truncating.Recommend(ctx, 2, 3)
	if err != nil || len(resp.Items) != 2 {
		t.Errorf("truncating Recommend(k=3) = %v, %v, want both candidates", resp, err)
	}
}

func TestEngineErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t, testConfig(), memorySource(t, historyRatings()), slopeone.NewMemoryStore())

	if e.Ready() {
		t.Error("Ready() = true before any model")
	}
	if _, err := e.Recommend(ctx, 2, 1); !errors.Is(err, slopeone.ErrNoModel) {
		t.Errorf("Recommend() before training error = %v, want ErrNoModel", err)
	}
	if err := e.Reload(ctx); !errors.Is(err, slopeone.ErrNoModel) {
		t.Errorf("Reload() on empty store error = %v, want ErrNoModel", err)
	}

	if _, err := e.Train(ctx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	var insufficient *slopeone.InsufficientDataError
	if _, err := e.Recommend(ctx, 99, 1); !errors.As(err, &insufficient) || insufficient.UserID != 99 {
		t.Errorf("Recommend(unknown user) error = %v, want InsufficientDataError for 99", err)
	}
	if m := e.GetMetrics(); m.ErrorCount != 2 || m.RequestCount != 2 {
		t.Errorf("metrics = %+v, want 2 errors over 2 requests", m)
	}
}

func TestEngineReloadSharesStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := slopeone.NewMemoryStore()
	trainer := newTestEngine(t, testConfig(), memorySource(t, historyRatings()), store)
	res, err := trainer.Train(ctx)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	// The server's history has a new item the run has never seen.
	grown := append(historyRatings(), slopeone.Rating{UserID: 5, ItemID: 50, Value: 3})
	server := newTestEngine(t, testConfig(), memorySource(t, grown), store)
	if err := server.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := server.ActiveRun(); got == nil || got.RunID != res.RunID {
		t.Fatalf("ActiveRun() = %v, want %s", got, res.RunID)
	}
	if err := server.Reload(ctx); err != nil {
		t.Errorf("second Reload() error = %v", err)
	}

	resp, err := server.Recommend(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	assertPredictions(t, resp.Items,
		slopeone.Prediction{ItemID: 30, Rating: 4.5},
		slopeone.Prediction{ItemID: 40, Rating: 1.5})
	if resp.Metadata.ModelVersion != 1 {
		t.Errorf("ModelVersion = %d, want 1 after an idempotent reload", resp.Metadata.ModelVersion)
	}
}

func TestEngineSkipsItemsUnknownToServedRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := slopeone.NewMemoryStore()
	trainer := newTestEngine(t, testConfig(), memorySource(t, historyRatings()), store)
	if _, err := trainer.Train(ctx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	// After training, user 2 rates item 50 and user 6 rates only item 60.
	// Neither item is in the served run.
	grown := append(historyRatings(),
		slopeone.Rating{UserID: 2, ItemID: 50, Value: 5},
		slopeone.Rating{UserID: 6, ItemID: 60, Value: 4},
	)
	server := newTestEngine(t, testConfig(), memorySource(t, grown), store)
	if err := server.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	t.Run("new rating and new candidate", func(t *testing.T) {
		got, err := server.PredictAll(ctx, 2)
		if err != nil {
			t.Fatalf("PredictAll() error = %v", err)
		}
		assertPredictions(t, got,
			slopeone.Prediction{ItemID: 30, Rating: 4.5},
			slopeone.Prediction{ItemID: 40, Rating: 1.5})

		resp, err := server.Recommend(ctx, 2, 2)
		if err != nil {
			t.Fatalf("Recommend() error = %v", err)
		}
		assertPredictions(t, resp.Items, got...)
	})

	t.Run("only new ratings", func(t *testing.T) {
		var insufficient *slopeone.InsufficientDataError
		_, err := server.PredictAll(ctx, 6)
		if !errors.As(err, &insufficient) || insufficient.UserID != 6 {
			t.Errorf("PredictAll() error = %v, want *InsufficientDataError for user 6", err)
		}
	})
}

func TestEngineCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := trainedEngine(t, testConfig())

	first, err := e.Recommend(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if first.Metadata.CacheHit {
		t.Error("first response was a cache hit")
	}
	first.Items[0].Rating = -1 // must not leak into the cache

	second, err := e.Recommend(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !second.Metadata.CacheHit || second.Items[0].Rating != 4.5 {
		t.Errorf("second response = %+v, want unmodified cache hit", second)
	}

	// Retraining serves a new run and drops the cache.
	if _, err := e.Train(ctx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	third, _ := e.Recommend(ctx, 2, 2)
	if third.Metadata.CacheHit || third.Metadata.RunID == second.Metadata.RunID {
		t.Errorf("response after retrain = %+v, want fresh run", third.Metadata)
	}

	if m := e.GetMetrics(); m.CacheHits != 1 || m.CacheMisses != 2 {
		t.Errorf("metrics = %+v, want 1 hit and 2 misses", m)
	}
}

// blockingSource parks EachRating until release is closed.
type blockingSource struct {
	*ratings.MemorySource
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) EachRating(ctx context.Context, fn func(slopeone.Rating) error) error {
	close(b.entered)
	<-b.release
	return b.MemorySource.EachRating(ctx, fn)
}

func TestEngineTrainingInProgress(t *testing.T) {
	t.Parallel()

	src := &blockingSource{
		MemorySource: memorySource(t, historyRatings()),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	e := newTestEngine(t, testConfig(), src, slopeone.NewMemoryStore())

	done := make(chan error, 1)
	go func() {
		_, err := e.Train(context.Background())
		done <- err
	}()
	<-src.entered

	if !e.GetStatus().IsTraining {
		t.Error("GetStatus().IsTraining = false during training")
	}
	if _, err := e.Train(context.Background()); !errors.Is(err, ErrTrainingInProgress) {
		t.Errorf("concurrent Train() error = %v, want ErrTrainingInProgress", err)
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	status := e.GetStatus()
	if status.IsTraining || status.ItemCount != 4 || status.UserCount != 4 || status.RatingCount != 10 || status.ModelVersion != 1 {
		t.Errorf("status after training = %+v", status)
	}
}

func TestEngineTrainingFailureKeepsServedModel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Training.MaxItems = 4
	store := slopeone.NewMemoryStore()
	e := newTestEngine(t, cfg, memorySource(t, historyRatings()), store)
	res, err := e.Train(ctx)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	grown := append(historyRatings(), slopeone.Rating{UserID: 5, ItemID: 50, Value: 3})
	e.ratings = memorySource(t, grown)
	var cfgErr *slopeone.ConfigurationError
	if _, err := e.Train(ctx); !errors.As(err, &cfgErr) {
		t.Fatalf("Train() over max_items error = %v, want ConfigurationError", err)
	}
	if got := e.ActiveRun(); got == nil || got.RunID != res.RunID {
		t.Errorf("served run = %v, want %s kept after failure", got, res.RunID)
	}
	if e.GetStatus().LastError == "" {
		t.Error("LastError not recorded")
	}
}

// countingModel counts lookups passing through a wrapper.
type countingModel struct {
	slopeone.CorrelationModel
	calls *atomic.Int64
}

func (c countingModel) Lookup(ctx context.Context, i, j int) (float64, error) {
	c.calls.Add(1)
	return c.CorrelationModel.Lookup(ctx, i, j)
}

func TestEngineLookupWrapper(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cfg := testConfig()
	cfg.Serving = ServeLazy
	cfg.Cache.Enabled = false
	wrap := WithLookupWrapper(func(m slopeone.CorrelationModel) slopeone.CorrelationModel {
		return countingModel{CorrelationModel: m, calls: &calls}
	})
	e := newTestEngine(t, cfg, memorySource(t, historyRatings()), slopeone.NewMemoryStore(), wrap)
	if _, err := e.Train(context.Background()); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if _, err := e.Recommend(context.Background(), 2, 2); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	// two rated items times two candidates
	if got := calls.Load(); got != 4 {
		t.Errorf("wrapped lookups = %d, want 4", got)
	}
}

func TestEngineConcurrentRecommendDuringRetrain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Cache.Enabled = false
	e := trainedEngine(t, cfg)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				resp, err := e.Recommend(ctx, 2, 2)
				if err != nil {
					t.Errorf("Recommend() error = %v", err)
					return
				}
				if resp.Items[0].ItemID != 30 {
					t.Errorf("top item = %d, want 30", resp.Items[0].ItemID)
					return
				}
			}
		}()
	}

	for i := 0; i < 3; i++ {
		if _, err := e.Train(ctx); err != nil {
			t.Errorf("Train() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{slopeone.ErrNoModel, "no_model"},
		{&slopeone.InsufficientDataError{UserID: 1}, "insufficient_data"},
		{&slopeone.ModelLookupError{ItemI: 1, ItemJ: 2, Missing: 2}, "lookup"},
		{&slopeone.RequestedCountExceedsAvailableError{Requested: 3, Available: 1}, "count_exceeds_available"},
		{&slopeone.ConfigurationError{Field: "k"}, "configuration"},
		{&slopeone.NonFinitePredictionError{UserID: 1, ItemID: 2}, "non_finite"},
		{context.Canceled, "canceled"},
		{errors.New("connection reset"), "backend"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
