// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// trainInto trains the test history into db and returns the assembled model.
func trainInto(t *testing.T, db *DB, workers int) *slopeone.TrainResult {
	t.Helper()

	universe, profiles, err := slopeone.CollectProfiles(context.Background(), testHistory(t))
	if err != nil {
		t.Fatalf("CollectProfiles() error = %v", err)
	}
	b, err := slopeone.NewBuilder(slopeone.BuilderConfig{Workers: workers, Timeout: time.Minute, Assemble: true}, db, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	res, err := b.Train(context.Background(), universe, profiles)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return res
}

func TestModelStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t, 2)
	ctx := context.Background()

	if _, err := db.ActiveManifest(ctx); !errors.Is(err, slopeone.ErrNoModel) {
		t.Fatalf("ActiveManifest() on empty store error = %v, want ErrNoModel", err)
	}

	res := trainInto(t, db, 3)

	loaded, m, err := slopeone.LoadDense(ctx, db, 2)
	if err != nil {
		t.Fatalf("LoadDense() error = %v", err)
	}
	if m.RunID != res.RunID || m.Status != slopeone.RunCommitted {
		t.Errorf("active manifest = %s/%s, want committed %s", m.RunID, m.Status, res.RunID)
	}
	if len(m.Partitions) != 3 || len(m.Items) != 4 {
		t.Errorf("manifest has %d partitions and %d items, want 3 and 4", len(m.Partitions), len(m.Items))
	}
	if !loaded.Equal(res.Model) {
		t.Error("loaded model differs from trained model")
	}
}

func TestModelStoreLazyLookup(t *testing.T) {
	db := setupTestDB(t, 1)
	ctx := context.Background()
	res := trainInto(t, db, 2)

	m, err := db.ActiveManifest(ctx)
	if err != nil {
		t.Fatalf("ActiveManifest() error = %v", err)
	}
	lazy, err := slopeone.NewLazyModel(m, db)
	if err != nil {
		t.Fatalf("NewLazyModel() error = %v", err)
	}

	for _, i := range m.Items {
		for _, j := range m.Items {
			want, _ := res.Model.Lookup(ctx, i, j)
			got, err := lazy.Lookup(ctx, i, j)
			if err != nil {
				t.Fatalf("Lookup(%d,%d) error = %v", i, j, err)
			}
			if got != want {
				t.Errorf("Lookup(%d,%d) = %v, want %v", i, j, got, want)
			}
		}
	}

	if _, found, err := db.FetchCell(ctx, res.RunID, 10, 99); err != nil || found {
		t.Errorf("FetchCell(missing) = found %v, err %v", found, err)
	}
}

func TestModelStoreRetention(t *testing.T) {
	db := setupTestDB(t, 1)
	ctx := context.Background()

	first := trainInto(t, db, 2)
	time.Sleep(2 * time.Millisecond)
	second := trainInto(t, db, 2)

	runs, err := db.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != second.RunID {
		t.Errorf("Runs() = %d runs, want only %s", len(runs), second.RunID)
	}
	if _, found, _ := db.FetchCell(ctx, first.RunID, 10, 20); found {
		t.Error("cells of pruned run are still readable")
	}
}

func TestModelStorePendingAndAbort(t *testing.T) {
	db := setupTestDB(t, 1)
	ctx := context.Background()
	committed := trainInto(t, db, 1)

	m := &slopeone.Manifest{
		RunID:      "run-p",
		CreatedAt:  time.Now(),
		Status:     slopeone.RunPending,
		Items:      []int{1, 2},
		Partitions: []slopeone.Partition{{Index: 0, Start: 0, End: 1}, {Index: 1, Start: 1, End: 2}},
	}
	if err := db.BeginRun(ctx, m); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if err := db.BeginRun(ctx, m); err == nil {
		t.Error("BeginRun() accepted a duplicate run id")
	}

	shard := &slopeone.Shard{RunID: "run-p", Partition: m.Partitions[0], Items: m.Items, Rows: [][]float64{{0, 1.5}}}
	if err := db.WriteShard(ctx, shard); err != nil {
		t.Fatalf("WriteShard() error = %v", err)
	}
	bad := &slopeone.Shard{RunID: "run-p", Partition: slopeone.Partition{Index: 1, Start: 0, End: 2}, Items: m.Items}
	if err := db.WriteShard(ctx, bad); !errors.Is(err, slopeone.ErrPartitionInvariant) {
		t.Errorf("WriteShard(mismatched rows) error = %v, want ErrPartitionInvariant", err)
	}
	if err := db.CommitRun(ctx, "run-p"); !errors.Is(err, slopeone.ErrIncompleteRun) {
		t.Errorf("CommitRun() with a missing shard error = %v, want ErrIncompleteRun", err)
	}

	active, err := db.ActiveManifest(ctx)
	if err != nil || active.RunID != committed.RunID {
		t.Fatalf("ActiveManifest() = %v, %v, want %s while run-p is pending", active, err, committed.RunID)
	}

	if err := db.AbortRun(ctx, "run-p"); err != nil {
		t.Fatalf("AbortRun() error = %v", err)
	}
	if _, found, _ := db.FetchCell(ctx, "run-p", 1, 2); found {
		t.Error("cells of aborted run are still readable")
	}
	if err := db.AbortRun(ctx, "never-started"); err != nil {
		t.Errorf("AbortRun(unknown) error = %v", err)
	}
	if err := db.AbortRun(ctx, committed.RunID); err == nil {
		t.Error("AbortRun() removed a committed run")
	}
}
