// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"slices"
	"testing"
)

func TestNewItemIndex(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		want []int
	}{
		{name: "empty", ids: nil, want: []int{}},
		{name: "sorted", ids: []int{1, 2, 3}, want: []int{1, 2, 3}},
		{name: "unsorted with duplicates", ids: []int{30, 10, 30, 20, 10, 10}, want: []int{10, 20, 30}},
		{name: "negative ids", ids: []int{5, -1, 0}, want: []int{-1, 0, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := slices.Clone(tt.ids)
			x := NewItemIndex(tt.ids)

			if got := x.Items(); !slices.Equal(got, tt.want) {
				t.Fatalf("Items() = %v, want %v", got, tt.want)
			}
			if x.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", x.Len(), len(tt.want))
			}
			for i, id := range tt.want {
				idx, ok := x.Index(id)
				if !ok || idx != i {
					t.Errorf("Index(%d) = %d, %v; want %d, true", id, idx, ok, i)
				}
				if x.ItemAt(i) != id {
					t.Errorf("ItemAt(%d) = %d, want %d", i, x.ItemAt(i), id)
				}
			}
			if !slices.Equal(tt.ids, input) {
				t.Errorf("NewItemIndex modified its input: %v", tt.ids)
			}
		})
	}
}

func TestItemIndexUnknown(t *testing.T) {
	x := NewItemIndex([]int{10, 20})

	if _, ok := x.Index(15); ok {
		t.Error("Index(15) found an id outside the universe")
	}
	if x.Contains(15) || !x.Contains(20) {
		t.Error("Contains() disagrees with the universe {10, 20}")
	}

	items := x.Items()
	items[0] = 99
	if x.ItemAt(0) != 10 {
		t.Error("Items() exposed internal storage")
	}
}
