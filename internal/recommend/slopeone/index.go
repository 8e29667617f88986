// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import "sort"

// ItemIndex is the bijection between item ids and matrix indexes.
// Index order is ascending item id.
type ItemIndex struct {
	ids []int
	pos map[int]int
}

// NewItemIndex sorts and de-duplicates ids.
func NewItemIndex(ids []int) *ItemIndex {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)

	uniq := sorted[:0]
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		uniq = append(uniq, id)
	}

	pos := make(map[int]int, len(uniq))
	for i, id := range uniq {
		pos[id] = i
	}
	return &ItemIndex{ids: uniq, pos: pos}
}

// Len returns the universe size N.
func (x *ItemIndex) Len() int {
	return len(x.ids)
}

// Index returns the matrix index of itemID.
func (x *ItemIndex) Index(itemID int) (int, bool) {
	i, ok := x.pos[itemID]
	return i, ok
}

// Contains reports whether itemID is in the universe.
func (x *ItemIndex) Contains(itemID int) bool {
	_, ok := x.pos[itemID]
	return ok
}

// ItemAt returns the item id at matrix index i.
func (x *ItemIndex) ItemAt(i int) int {
	return x.ids[i]
}

// Items returns a copy of the sorted universe.
func (x *ItemIndex) Items() []int {
	out := make([]int, len(x.ids))
	copy(out, x.ids)
	return out
}
