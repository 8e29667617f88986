// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"errors"
	"testing"
)

func TestPartitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		n, t      int
		wantSizes []int
	}{
		{name: "10 items over 4 workers", n: 10, t: 4, wantSizes: []int{3, 3, 2, 2}},
		{name: "even split", n: 9, t: 3, wantSizes: []int{3, 3, 3}},
		{name: "single worker", n: 5, t: 1, wantSizes: []int{5}},
		{name: "more workers than rows", n: 3, t: 5, wantSizes: []int{1, 1, 1, 0, 0}},
		{name: "no rows", n: 0, t: 2, wantSizes: []int{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parts, err := Partitions(tt.n, tt.t)
			if err != nil {
				t.Fatalf("Partitions(%d, %d) error = %v", tt.n, tt.t, err)
			}
			if len(parts) != len(tt.wantSizes) {
				t.Fatalf("len(parts) = %d, want %d", len(parts), len(tt.wantSizes))
			}

			covered := make([]int, tt.n)
			for i, p := range parts {
				if p.Index != i {
					t.Errorf("parts[%d].Index = %d", i, p.Index)
				}
				if p.Len() != tt.wantSizes[i] {
					t.Errorf("parts[%d].Len() = %d, want %d", i, p.Len(), tt.wantSizes[i])
				}
				for r := p.Start; r < p.End; r++ {
					covered[r]++
				}
			}
			for r, c := range covered {
				if c != 1 {
					t.Errorf("row %d covered %d times, want 1", r, c)
				}
			}
		})
	}
}

func TestPartitionsRejectsNonPositiveWorkers(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{0, -1, -8} {
		_, err := Partitions(10, workers)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Partitions(10, %d) error = %v, want *ConfigurationError", workers, err)
		}
		if cfgErr.Field != "workers" {
			t.Errorf("Field = %q, want workers", cfgErr.Field)
		}
	}
}

func TestVerifyCoverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parts   []Partition
		n       int
		wantErr bool
	}{
		{
			name:  "exact",
			parts: []Partition{{0, 0, 3}, {1, 3, 5}},
			n:     5,
		},
		{
			name:    "gap",
			parts:   []Partition{{0, 0, 2}, {1, 3, 5}},
			n:       5,
			wantErr: true,
		},
		{
			name:    "overlap",
			parts:   []Partition{{0, 0, 3}, {1, 2, 5}},
			n:       5,
			wantErr: true,
		},
		{
			name:    "short",
			parts:   []Partition{{0, 0, 2}, {1, 2, 4}},
			n:       5,
			wantErr: true,
		},
		{
			name:    "out of order index",
			parts:   []Partition{{1, 0, 2}, {0, 2, 5}},
			n:       5,
			wantErr: true,
		},
		{
			name:    "inverted range",
			parts:   []Partition{{0, 0, 3}, {1, 3, 2}},
			n:       2,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := VerifyCoverage(tt.parts, tt.n)
			if tt.wantErr {
				if !errors.Is(err, ErrPartitionInvariant) {
					t.Errorf("VerifyCoverage() error = %v, want ErrPartitionInvariant", err)
				}
				return
			}
			if err != nil {
				t.Errorf("VerifyCoverage() error = %v", err)
			}
		})
	}
}
