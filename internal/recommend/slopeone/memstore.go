// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process ModelStore. It keeps shards as written and is
// used for single-process pipelines and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*memoryRun
	active string
}

type memoryRun struct {
	manifest Manifest
	cells    map[[2]int]float64
	shards   map[int]bool
}

var (
	_ ModelStore  = (*MemoryStore)(nil)
	_ CellFetcher = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memoryRun)}
}

// BeginRun implements ShardWriter.
func (s *MemoryStore) BeginRun(_ context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[m.RunID]; exists {
		return fmt.Errorf("memory store: run %s already exists", m.RunID)
	}
	run := &memoryRun{
		manifest: *m,
		cells:    make(map[[2]int]float64),
		shards:   make(map[int]bool),
	}
	run.manifest.Status = RunPending
	s.runs[m.RunID] = run
	return nil
}

// WriteShard implements ShardWriter.
func (s *MemoryStore) WriteShard(_ context.Context, sh *Shard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[sh.RunID]
	if !ok || run.manifest.Status != RunPending {
		return fmt.Errorf("memory store: run %s is not pending", sh.RunID)
	}
	if err := sh.Cells(func(c Cell) error {
		run.cells[[2]int{c.ItemI, c.ItemJ}] = c.Difference
		return nil
	}); err != nil {
		return err
	}
	run.shards[sh.Partition.Index] = true
	return nil
}

// CommitRun implements ShardWriter.
func (s *MemoryStore) CommitRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.manifest.Status != RunPending {
		return fmt.Errorf("memory store: run %s is not pending", runID)
	}
	if len(run.shards) != len(run.manifest.Partitions) {
		return fmt.Errorf("memory store: run %s has %d of %d shards", runID, len(run.shards), len(run.manifest.Partitions))
	}
	run.manifest.Status = RunCommitted
	run.manifest.CommittedAt = time.Now().UTC()
	s.active = runID
	return nil
}

// AbortRun implements ShardWriter.
func (s *MemoryStore) AbortRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run, ok := s.runs[runID]; ok && run.manifest.Status == RunPending {
		delete(s.runs, runID)
	}
	return nil
}

// ActiveManifest implements ShardReader.
func (s *MemoryStore) ActiveManifest(_ context.Context) (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[s.active]
	if !ok {
		return nil, ErrNoModel
	}
	m := run.manifest
	return &m, nil
}

// ReadShard implements ShardReader.
func (s *MemoryStore) ReadShard(ctx context.Context, runID string, p Partition, fn func(Cell) error) error {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("memory store: unknown run %s", runID)
	}

	items := run.manifest.Items
	for i := p.Start; i < p.End; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := range items {
			if i == j {
				continue
			}
			s.mu.RLock()
			diff, found := run.cells[[2]int{items[i], items[j]}]
			s.mu.RUnlock()
			if !found {
				continue
			}
			if err := fn(Cell{ItemI: items[i], ItemJ: items[j], Difference: diff}); err != nil {
				return err
			}
		}
	}
	return nil
}

// FetchCell implements CellFetcher.
func (s *MemoryStore) FetchCell(_ context.Context, runID string, itemI, itemJ int) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return 0, false, fmt.Errorf("memory store: unknown run %s", runID)
	}
	diff, found := run.cells[[2]int{itemI, itemJ}]
	return diff, found, nil
}

// Runs returns the ids of all runs currently held, pending ones included.
func (s *MemoryStore) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	return ids
}
