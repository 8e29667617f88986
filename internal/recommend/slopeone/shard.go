// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"fmt"
	"time"
)

// Cell is one persisted matrix entry.
type Cell struct {
	ItemI      int     `msgpack:"i"`
	ItemJ      int     `msgpack:"j"`
	Difference float64 `msgpack:"d"`
}

// Shard is the slab of rows produced by one partition's worker.
type Shard struct {
	RunID     string
	Partition Partition
	// Items is the full sorted universe. Rows[k] holds the differences from
	// Items[Partition.Start+k] to every item in Items.
	Items []int
	Rows  [][]float64
}

// CellCount returns the number of off-diagonal cells in the shard.
func (s *Shard) CellCount() int {
	if len(s.Items) == 0 {
		return 0
	}
	return s.Partition.Len() * (len(s.Items) - 1)
}

// Cells calls fn for every off-diagonal cell, row by row.
func (s *Shard) Cells(fn func(Cell) error) error {
	for k, row := range s.Rows {
		i := s.Partition.Start + k
		itemI := s.Items[i]
		for j, diff := range row {
			if j == i {
				continue
			}
			if err := fn(Cell{ItemI: itemI, ItemJ: s.Items[j], Difference: diff}); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunStatus is the lifecycle state of a training run in a store.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCommitted RunStatus = "committed"
)

// Manifest describes one training run. Only a committed manifest is served.
type Manifest struct {
	RunID       string      `json:"run_id"`
	CreatedAt   time.Time   `json:"created_at"`
	CommittedAt time.Time   `json:"committed_at,omitempty"`
	Status      RunStatus   `json:"status"`
	Items       []int       `json:"items"`
	Partitions  []Partition `json:"partitions"`
}

// Validate checks a manifest is committed, has a sorted unique universe,
// and partitions that cover it exactly.
func (m *Manifest) Validate() error {
	if m.Status != RunCommitted {
		return fmt.Errorf("slopeone: run %s is %s, not committed", m.RunID, m.Status)
	}
	for i := 1; i < len(m.Items); i++ {
		if m.Items[i] <= m.Items[i-1] {
			return fmt.Errorf("slopeone: run %s universe is not sorted and unique at position %d", m.RunID, i)
		}
	}
	return VerifyCoverage(m.Partitions, len(m.Items))
}

// ShardWriter persists the shards of a run. BeginRun registers a pending run,
// WriteShard is called once per partition (possibly concurrently), and
// CommitRun makes the run the active one. AbortRun discards a pending run.
type ShardWriter interface {
	BeginRun(ctx context.Context, m *Manifest) error
	WriteShard(ctx context.Context, s *Shard) error
	CommitRun(ctx context.Context, runID string) error
	AbortRun(ctx context.Context, runID string) error
}

// ShardReader reads back the active committed run.
type ShardReader interface {
	// ActiveManifest returns the active committed run or ErrNoModel.
	ActiveManifest(ctx context.Context) (*Manifest, error)
	// ReadShard streams every cell of one partition of runID.
	ReadShard(ctx context.Context, runID string, p Partition, fn func(Cell) error) error
}

// ModelStore is a persistence backend for trained models.
type ModelStore interface {
	ShardWriter
	ShardReader
}
