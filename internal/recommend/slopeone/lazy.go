// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"fmt"
)

// CellFetcher is implemented by stores that can answer a single-cell query.
type CellFetcher interface {
	// FetchCell returns the stored difference for (itemI, itemJ) in runID.
	// found is false when the store holds no such cell.
	FetchCell(ctx context.Context, runID string, itemI, itemJ int) (diff float64, found bool, err error)
}

// LazyModel answers lookups with point queries against a store instead of
// holding the matrix in memory. Only the universe is kept locally.
type LazyModel struct {
	runID   string
	index   *ItemIndex
	fetcher CellFetcher
}

// NewLazyModel binds fetcher to a committed run.
func NewLazyModel(m *Manifest, fetcher CellFetcher) (*LazyModel, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &LazyModel{
		runID:   m.RunID,
		index:   NewItemIndex(m.Items),
		fetcher: fetcher,
	}, nil
}

// RunID returns the run the model reads from.
func (l *LazyModel) RunID() string {
	return l.runID
}

// Len returns the universe size.
func (l *LazyModel) Len() int {
	return l.index.Len()
}

// Lookup implements CorrelationModel.
func (l *LazyModel) Lookup(ctx context.Context, itemI, itemJ int) (float64, error) {
	if !l.index.Contains(itemI) {
		return 0, &ModelLookupError{ItemI: itemI, ItemJ: itemJ, Missing: itemI}
	}
	if !l.index.Contains(itemJ) {
		return 0, &ModelLookupError{ItemI: itemI, ItemJ: itemJ, Missing: itemJ}
	}
	if itemI == itemJ {
		return 0, nil
	}

	diff, found, err := l.fetcher.FetchCell(ctx, l.runID, itemI, itemJ)
	if err != nil {
		return 0, fmt.Errorf("lookup (%d,%d): %w", itemI, itemJ, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: run %s has no cell (%d,%d)", ErrIncompleteRun, l.runID, itemI, itemJ)
	}
	return diff, nil
}
