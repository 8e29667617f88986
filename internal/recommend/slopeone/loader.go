// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// LoadDense reads the active committed run from r into a DenseModel.
//
// Shards are read concurrently, at most workers at a time (0 means one
// goroutine per shard). Each shard writes only the rows of its own partition;
// a cell outside them is reported as ErrPartitionInvariant.
func LoadDense(ctx context.Context, r ShardReader, workers int) (*DenseModel, *Manifest, error) {
	m, err := r.ActiveManifest(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}

	index := NewItemIndex(m.Items)
	model := NewDenseModel(index)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, p := range m.Partitions {
		g.Go(func() error {
			err := r.ReadShard(gctx, m.RunID, p, func(c Cell) error {
				return placeCell(model, p, c)
			})
			if err != nil {
				return fmt.Errorf("load shard %s of run %s: %w", p, m.RunID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return model, m, nil
}

func placeCell(model *DenseModel, p Partition, c Cell) error {
	i, ok := model.index.Index(c.ItemI)
	if !ok {
		return fmt.Errorf("cell (%d,%d): row item not in run universe", c.ItemI, c.ItemJ)
	}
	j, ok := model.index.Index(c.ItemJ)
	if !ok {
		return fmt.Errorf("cell (%d,%d): column item not in run universe", c.ItemI, c.ItemJ)
	}
	if !p.Contains(i) {
		return fmt.Errorf("%w: shard %s holds row %d", ErrPartitionInvariant, p, i)
	}
	if i == j {
		return fmt.Errorf("cell (%d,%d): diagonal cells are never stored", c.ItemI, c.ItemJ)
	}
	model.m.Set(i, j, c.Difference)
	return nil
}
