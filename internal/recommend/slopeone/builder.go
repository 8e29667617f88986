// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/metrics"
)

// abortTimeout bounds the cleanup of a failed run's staged shards.
const abortTimeout = 30 * time.Second

// ctxCheckRows is how many rows a worker computes between cancellation checks.
const ctxCheckRows = 32

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// Workers is the number of row partitions, one goroutine each. Must be >= 1.
	Workers int

	// Timeout bounds a whole run including the join. 0 disables it.
	Timeout time.Duration

	// MaxItems rejects universes larger than this before allocating
	// the O(N^2) matrix. 0 disables the check.
	MaxItems int

	// Assemble keeps the full matrix in memory and returns it as a DenseModel.
	// Without it the rows only go to the ShardWriter.
	Assemble bool
}

// TrainStats summarizes a training run.
type TrainStats struct {
	Items      int
	Users      int
	Ratings    int
	Partitions int
	Cells      int
	Duration   time.Duration
}

// TrainResult is the outcome of a successful run.
type TrainResult struct {
	RunID    string
	Manifest *Manifest
	// Model is nil unless BuilderConfig.Assemble is set.
	Model *DenseModel
	Stats TrainStats
}

// Builder trains Slope One models.
//
// Cost is O(N^2 · A) where N is the universe size and A the average number of
// co-rated items per user pair, bounded by the average profile length. Rows are
// split evenly across workers, so wall time falls roughly with Workers until
// the machine's cores are saturated.
type Builder struct {
	cfg    BuilderConfig
	sink   ShardWriter
	logger zerolog.Logger
}

// NewBuilder validates cfg. sink may be nil only when cfg.Assemble is set.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBuilder(cfg BuilderConfig, sink ShardWriter, logger zerolog.Logger) (*Builder, error) {
	if cfg.Workers <= 0 {
		return nil, &ConfigurationError{
			Field:  "workers",
			Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Workers),
		}
	}
	if cfg.Timeout < 0 {
		return nil, &ConfigurationError{Field: "timeout", Reason: fmt.Sprintf("must not be negative, got %v", cfg.Timeout)}
	}
	if cfg.MaxItems < 0 {
		return nil, &ConfigurationError{Field: "max_items", Reason: fmt.Sprintf("must not be negative, got %d", cfg.MaxItems)}
	}
	if sink == nil && !cfg.Assemble {
		return nil, &ConfigurationError{Field: "sink", Reason: "a shard writer is required when the model is not assembled"}
	}

	return &Builder{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With().Str("component", "builder").Logger(),
	}, nil
}

// userRatings is one user's ratings translated to matrix indexes.
type userRatings struct {
	idx    []int
	rating []float64
}

// coRater is a user who rated a given item, with that rating.
type coRater struct {
	user   int
	rating float64
}

// trainingSet is the read-only input shared by all workers.
type trainingSet struct {
	index *ItemIndex
	users []userRatings
	// raters[i] lists the users who rated item i, in ascending user id order.
	raters  [][]coRater
	ratings int
}

// prepare indexes the profiles. Users are ordered by id so every cell sums its
// terms in the same order on every run.
func prepare(index *ItemIndex, profiles map[int]*UserProfile) (*trainingSet, error) {
	userIDs := make([]int, 0, len(profiles))
	for id, p := range profiles {
		if p != nil && p.Len() > 0 {
			userIDs = append(userIDs, id)
		}
	}
	sort.Ints(userIDs)

	ts := &trainingSet{
		index:  index,
		users:  make([]userRatings, len(userIDs)),
		raters: make([][]coRater, index.Len()),
	}

	for u, id := range userIDs {
		p := profiles[id]
		ur := userRatings{
			idx:    make([]int, 0, p.Len()),
			rating: make([]float64, 0, p.Len()),
		}
		for _, e := range p.entries {
			i, ok := index.Index(e.ItemID)
			if !ok {
				return nil, &ConfigurationError{
					Field:  "profiles",
					Reason: fmt.Sprintf("user %d rated item %d which is not in the item universe", id, e.ItemID),
				}
			}
			ur.idx = append(ur.idx, i)
			ur.rating = append(ur.rating, e.Rating)
			ts.raters[i] = append(ts.raters[i], coRater{user: u, rating: e.Rating})
		}
		ts.ratings += p.Len()
		ts.users[u] = ur
	}
	return ts, nil
}

// computeRow fills row with M[i][*]. sum and count are scratch buffers of
// length N owned by the calling worker.
func (ts *trainingSet) computeRow(i int, row, sum []float64, count []int) {
	for j := range sum {
		sum[j] = 0
		count[j] = 0
	}

	for _, cr := range ts.raters[i] {
		ur := ts.users[cr.user]
		for k, j := range ur.idx {
			if j == i {
				continue
			}
			sum[j] += cr.rating - ur.rating[k]
			count[j]++
		}
	}

	for j := range row {
		if count[j] == 0 {
			row[j] = 0
			continue
		}
		row[j] = sum[j] / float64(count[j])
	}
}

// Train computes the model for universe from profiles.
//
// Every item rated in profiles must appear in universe. Each partition's rows
// are written to the sink as one shard. The run is committed only after every
// worker succeeds; on any failure or timeout the run is aborted and a
// *TrainingFailure naming the first failed partition is returned.
func (b *Builder) Train(ctx context.Context, universe []int, profiles map[int]*UserProfile) (*TrainResult, error) {
	started := time.Now()

	index := NewItemIndex(universe)
	n := index.Len()
	if n == 0 {
		return nil, &ConfigurationError{Field: "universe", Reason: "no items to train on"}
	}
	if b.cfg.MaxItems > 0 && n > b.cfg.MaxItems {
		return nil, &ConfigurationError{
			Field:  "max_items",
			Reason: fmt.Sprintf("universe has %d items, limit is %d (dense matrix needs %d cells)", n, b.cfg.MaxItems, n*n),
		}
	}

	ts, err := prepare(index, profiles)
	if err != nil {
		return nil, err
	}

	parts, err := Partitions(n, b.cfg.Workers)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := b.logger.With().Str("run_id", runID).Logger()

	manifest := &Manifest{
		RunID:      runID,
		CreatedAt:  started.UTC(),
		Status:     RunPending,
		Items:      index.Items(),
		Partitions: parts,
	}

	log.Info().
		Int("items", n).
		Int("users", len(ts.users)).
		Int("ratings", ts.ratings).
		Int("partitions", len(parts)).
		Msg("Training started")

	if b.sink != nil {
		if err := b.sink.BeginRun(ctx, manifest); err != nil {
			metrics.RecordTrainingRun("failure", time.Since(started))
			return nil, fmt.Errorf("begin run %s: %w", runID, err)
		}
	}

	var model *DenseModel
	if b.cfg.Assemble {
		model = NewDenseModel(index)
	}

	runCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(runCtx)
	for _, p := range parts {
		g.Go(func() error {
			if err := b.runPartition(gctx, runID, p, ts, model); err != nil {
				return &TrainingFailure{RunID: runID, Partition: p, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result := "failure"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.RecordTrainingRun(result, time.Since(started))
		b.abort(ctx, runID, log)
		log.Error().Err(err).Msg("Training failed")
		return nil, err
	}

	if b.sink != nil {
		if err := b.sink.CommitRun(ctx, runID); err != nil {
			metrics.RecordTrainingRun("failure", time.Since(started))
			b.abort(ctx, runID, log)
			return nil, fmt.Errorf("commit run %s: %w", runID, err)
		}
	}
	manifest.Status = RunCommitted
	manifest.CommittedAt = time.Now().UTC()

	stats := TrainStats{
		Items:      n,
		Users:      len(ts.users),
		Ratings:    ts.ratings,
		Partitions: len(parts),
		Cells:      n * (n - 1),
		Duration:   time.Since(started),
	}
	metrics.RecordTrainingRun("success", stats.Duration)

	log.Info().
		Int("cells", stats.Cells).
		Dur("duration", stats.Duration).
		Msg("Training completed")

	return &TrainResult{
		RunID:    runID,
		Manifest: manifest,
		Model:    model,
		Stats:    stats,
	}, nil
}

// runPartition computes rows [p.Start, p.End) and hands them to the sink.
// When model is set the rows are written straight into its backing storage;
// no other worker touches them.
func (b *Builder) runPartition(ctx context.Context, runID string, p Partition, ts *trainingSet, model *DenseModel) error {
	started := time.Now()
	n := ts.index.Len()

	if p.Start < 0 || p.End > n || p.Start > p.End {
		return fmt.Errorf("%w: partition %s outside [0,%d)", ErrPartitionInvariant, p, n)
	}

	rows := make([][]float64, p.Len())
	sum := make([]float64, n)
	count := make([]int, n)

	for k := range rows {
		if k%ctxCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		i := p.Start + k
		if model != nil {
			rows[k] = model.rawRow(i)
		} else {
			rows[k] = make([]float64, n)
		}
		ts.computeRow(i, rows[k], sum, count)
	}

	shard := &Shard{
		RunID:     runID,
		Partition: p,
		Items:     ts.index.ids,
		Rows:      rows,
	}
	if b.sink != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.sink.WriteShard(ctx, shard); err != nil {
			return fmt.Errorf("write shard: %w", err)
		}
	}

	metrics.RecordPartition(p.Index, shard.CellCount(), time.Since(started))
	b.logger.Debug().
		Str("run_id", runID).
		Str("partition", p.String()).
		Dur("duration", time.Since(started)).
		Msg("Partition completed")
	return nil
}

// abort discards a failed run's shards. It runs even if ctx is already done.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (b *Builder) abort(ctx context.Context, runID string, log zerolog.Logger) {
	if b.sink == nil {
		return
	}
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	if err := b.sink.AbortRun(abortCtx, runID); err != nil {
		log.Warn().Err(err).Msg("Failed to discard shards of aborted run")
	}
}
