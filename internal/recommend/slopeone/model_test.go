// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDenseModelLookupUnknown(t *testing.T) {
	t.Parallel()

	res := trainDense(t, scenarioRatings(), 1)
	ctx := context.Background()

	tests := []struct {
		name        string
		i, j        int
		wantMissing int
	}{
		{name: "unknown row", i: 7, j: 1, wantMissing: 7},
		{name: "unknown column", i: 1, j: 8, wantMissing: 8},
	}
	for _, tt := range tests {
		_, err := res.Model.Lookup(ctx, tt.i, tt.j)
		var lookupErr *ModelLookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("%s: Lookup() error = %v, want *ModelLookupError", tt.name, err)
		}
		if lookupErr.Missing != tt.wantMissing {
			t.Errorf("%s: Missing = %d, want %d", tt.name, lookupErr.Missing, tt.wantMissing)
		}
	}

	if _, ok := res.Model.Row(1); !ok {
		t.Error("Row(1) not found")
	}
	if _, ok := res.Model.Row(3); ok {
		t.Error("Row(3) found for an unknown item")
	}
}

func TestDenseModelCells(t *testing.T) {
	t.Parallel()

	res := trainDense(t, scenarioRatings(), 2)
	ctx := context.Background()
	n := res.Model.Len()

	if got := res.Model.Items(); len(got) != n {
		t.Fatalf("Items() = %v, want %d ids", got, n)
	}

	count := 0
	err := res.Model.Cells(func(c Cell) error {
		count++
		if c.ItemI == c.ItemJ {
			t.Errorf("Cells() yielded diagonal cell %+v", c)
		}
		want, err := res.Model.Lookup(ctx, c.ItemI, c.ItemJ)
		if err != nil || want != c.Difference {
			t.Errorf("cell %+v disagrees with Lookup() = %v, %v", c, want, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if count != n*(n-1) {
		t.Errorf("Cells() yielded %d cells, want %d", count, n*(n-1))
	}

	stop := errors.New("stop")
	calls := 0
	if err := res.Model.Cells(func(Cell) error { calls++; return stop }); !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Cells() = %v after %d calls, want stop after 1", err, calls)
	}

	empty := NewDenseModel(NewItemIndex(nil))
	if err := empty.Cells(func(Cell) error { return stop }); err != nil {
		t.Errorf("empty Cells() error = %v", err)
	}
}

type erroringModel struct{ err error }

func (m erroringModel) Lookup(context.Context, int, int) (float64, error) {
	return 0, m.err
}

func TestWithPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	missing := erroringModel{err: &ModelLookupError{ItemI: 1, ItemJ: 2, Missing: 2}}
	backend := erroringModel{err: errors.New("connection reset")}

	if _, err := WithPolicy(missing, FailOnMissing).Lookup(ctx, 1, 2); err == nil {
		t.Error("FailOnMissing swallowed a ModelLookupError")
	}
	if v, err := WithPolicy(missing, ZeroOnMissing).Lookup(ctx, 1, 2); err != nil || v != 0 {
		t.Errorf("ZeroOnMissing Lookup() = %v, %v, want 0, nil", v, err)
	}
	if _, err := WithPolicy(backend, ZeroOnMissing).Lookup(ctx, 1, 2); err == nil {
		t.Error("ZeroOnMissing swallowed a backend error")
	}

	// re-wrapping replaces the policy instead of stacking
	wrapped := WithPolicy(WithPolicy(missing, ZeroOnMissing), FailOnMissing)
	if _, err := wrapped.Lookup(ctx, 1, 2); err == nil {
		t.Error("outer FailOnMissing did not take effect")
	}
}

func TestParseLookupPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    LookupPolicy
		wantErr bool
	}{
		{in: "", want: FailOnMissing},
		{in: "fail", want: FailOnMissing},
		{in: "ZERO", want: ZeroOnMissing},
		{in: "ignore", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLookupPolicy(tt.in)
		if tt.wantErr {
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("ParseLookupPolicy(%q) error = %v, want *ConfigurationError", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseLookupPolicy(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestLazyModel(t *testing.T) {
	t.Parallel()

	ratings := randomRatings(17, 30, 10, 0.5)
	universe, profiles, _ := GroupByUser(ratings)
	store := NewMemoryStore()
	b, _ := NewBuilder(BuilderConfig{Workers: 3, Timeout: time.Minute, Assemble: true}, store, zerolog.Nop())
	res, err := b.Train(context.Background(), universe, profiles)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	m, _ := store.ActiveManifest(context.Background())
	lazy, err := NewLazyModel(m, store)
	if err != nil {
		t.Fatalf("NewLazyModel() error = %v", err)
	}
	if lazy.RunID() != res.RunID || lazy.Len() != res.Model.Len() {
		t.Errorf("lazy model bound to %s/%d, want %s/%d", lazy.RunID(), lazy.Len(), res.RunID, res.Model.Len())
	}

	ctx := context.Background()
	for _, i := range universe {
		for _, j := range universe {
			want, _ := res.Model.Lookup(ctx, i, j)
			got, err := lazy.Lookup(ctx, i, j)
			if err != nil {
				t.Fatalf("lazy Lookup(%d,%d) error = %v", i, j, err)
			}
			if got != want {
				t.Errorf("lazy Lookup(%d,%d) = %v, dense = %v", i, j, got, want)
			}
		}
	}

	var lookupErr *ModelLookupError
	if _, err := lazy.Lookup(ctx, universe[0], -1); !errors.As(err, &lookupErr) {
		t.Errorf("lazy Lookup(unknown) error = %v, want *ModelLookupError", err)
	}

	pending := *m
	pending.Status = RunPending
	if _, err := NewLazyModel(&pending, store); err == nil {
		t.Error("NewLazyModel() accepted an uncommitted run")
	}
}

// shardFeed is a ShardReader serving hand-built cells.
type shardFeed struct {
	manifest *Manifest
	cells    map[int][]Cell
}

func (f *shardFeed) ActiveManifest(context.Context) (*Manifest, error) {
	if f.manifest == nil {
		return nil, ErrNoModel
	}
	return f.manifest, nil
}

func (f *shardFeed) ReadShard(_ context.Context, _ string, p Partition, fn func(Cell) error) error {
	for _, c := range f.cells[p.Index] {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func TestLoadDenseValidation(t *testing.T) {
	t.Parallel()

	committed := func(parts ...Partition) *Manifest {
		return &Manifest{RunID: "r1", Status: RunCommitted, Items: []int{1, 2, 3}, Partitions: parts}
	}
	twoParts := []Partition{{Index: 0, Start: 0, End: 2}, {Index: 1, Start: 2, End: 3}}

	tests := []struct {
		name    string
		feed    *shardFeed
		wantIs  error
		wantErr bool
	}{
		{
			name:   "no model",
			feed:   &shardFeed{},
			wantIs: ErrNoModel,
		},
		{
			name: "cell in another partition's rows",
			feed: &shardFeed{
				manifest: committed(twoParts...),
				cells:    map[int][]Cell{1: {{ItemI: 1, ItemJ: 2, Difference: 0.5}}},
			},
			wantIs: ErrPartitionInvariant,
		},
		{
			name:   "partitions with a gap",
			feed:   &shardFeed{manifest: committed(Partition{Index: 0, Start: 0, End: 1}, Partition{Index: 1, Start: 2, End: 3})},
			wantIs: ErrPartitionInvariant,
		},
		{
			name: "unknown item",
			feed: &shardFeed{
				manifest: committed(twoParts...),
				cells:    map[int][]Cell{0: {{ItemI: 1, ItemJ: 9, Difference: 1}}},
			},
			wantErr: true,
		},
		{
			name: "diagonal cell",
			feed: &shardFeed{
				manifest: committed(twoParts...),
				cells:    map[int][]Cell{0: {{ItemI: 2, ItemJ: 2, Difference: 1}}},
			},
			wantErr: true,
		},
		{
			name:    "pending run",
			feed:    &shardFeed{manifest: &Manifest{RunID: "r2", Status: RunPending, Items: []int{1}, Partitions: []Partition{{Index: 0, Start: 0, End: 1}}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := LoadDense(context.Background(), tt.feed, 2)
			if err == nil {
				t.Fatal("LoadDense() error = nil, want error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("LoadDense() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestLoadDensePlacesCells(t *testing.T) {
	t.Parallel()

	feed := &shardFeed{
		manifest: &Manifest{
			RunID:      "r1",
			Status:     RunCommitted,
			Items:      []int{1, 2, 3},
			Partitions: []Partition{{Index: 0, Start: 0, End: 2}, {Index: 1, Start: 2, End: 3}},
		},
		cells: map[int][]Cell{
			0: {{ItemI: 1, ItemJ: 3, Difference: 1.5}, {ItemI: 2, ItemJ: 1, Difference: -2}},
			1: {{ItemI: 3, ItemJ: 1, Difference: -1.5}},
		},
	}

	model, m, err := LoadDense(context.Background(), feed, 0)
	if err != nil {
		t.Fatalf("LoadDense() error = %v", err)
	}
	if m.RunID != "r1" {
		t.Errorf("RunID = %s", m.RunID)
	}

	ctx := context.Background()
	for _, tt := range []struct {
		i, j int
		want float64
	}{{1, 3, 1.5}, {2, 1, -2}, {3, 1, -1.5}, {1, 2, 0}, {2, 2, 0}} {
		if got, _ := model.Lookup(ctx, tt.i, tt.j); got != tt.want {
			t.Errorf("M[%d][%d] = %v, want %v", tt.i, tt.j, got, tt.want)
		}
	}
}
