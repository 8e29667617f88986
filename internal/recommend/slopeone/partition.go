// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import "fmt"

// Partition is the half-open row range [Start, End) owned by one worker.
type Partition struct {
	Index int `json:"index" msgpack:"index"`
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// Len returns the number of rows in the partition.
func (p Partition) Len() int {
	return p.End - p.Start
}

// Contains reports whether row falls inside the partition.
func (p Partition) Contains(row int) bool {
	return row >= p.Start && row < p.End
}

func (p Partition) String() string {
	return fmt.Sprintf("%d[%d,%d)", p.Index, p.Start, p.End)
}

// Partitions splits n rows into t contiguous ranges whose sizes differ by at
// most one. The first n%t partitions take one extra row, so 10 rows over 4
// workers gives sizes 3,3,2,2. With t > n the trailing partitions are empty.
func Partitions(n, t int) ([]Partition, error) {
	if t <= 0 {
		return nil, &ConfigurationError{
			Field:  "workers",
			Reason: fmt.Sprintf("must be at least 1, got %d", t),
		}
	}
	if n < 0 {
		return nil, &ConfigurationError{
			Field:  "items",
			Reason: fmt.Sprintf("row count must not be negative, got %d", n),
		}
	}

	base, extra := n/t, n%t
	parts := make([]Partition, t)
	start := 0
	for i := range parts {
		size := base
		if i < extra {
			size++
		}
		parts[i] = Partition{Index: i, Start: start, End: start + size}
		start += size
	}

	if err := VerifyCoverage(parts, n); err != nil {
		return nil, err
	}
	return parts, nil
}

// VerifyCoverage checks that parts are numbered in order and cover [0, n)
// exactly once with no gap or overlap.
func VerifyCoverage(parts []Partition, n int) error {
	next := 0
	for i, p := range parts {
		if p.Index != i {
			return fmt.Errorf("%w: partition at position %d has index %d", ErrPartitionInvariant, i, p.Index)
		}
		if p.Start != next || p.End < p.Start {
			return fmt.Errorf("%w: partition %s does not start at row %d", ErrPartitionInvariant, p, next)
		}
		next = p.End
	}
	if next != n {
		return fmt.Errorf("%w: partitions cover %d rows, want %d", ErrPartitionInvariant, next, n)
	}
	return nil
}
