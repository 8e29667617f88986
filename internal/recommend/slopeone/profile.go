// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package slopeone

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Rating is one (user, item, rating) record from the rating history.
type Rating struct {
	UserID int     `json:"user_id" bson:"user_id"`
	ItemID int     `json:"item_id" bson:"item_id"`
	Value  float64 `json:"rating" bson:"rating"`
}

// Entry is one rated item inside a UserProfile.
type Entry struct {
	ItemID int
	Rating float64
}

// UserProfile holds one user's ratings in insertion order.
// Item ids are unique within a profile.
type UserProfile struct {
	UserID  int
	entries []Entry
	index   map[int]int
}

// NewUserProfile returns an empty profile for userID.
func NewUserProfile(userID int) *UserProfile {
	return &UserProfile{
		UserID: userID,
		index:  make(map[int]int),
	}
}

// Append adds a rating. A second rating for the same item or a non-finite
// rating is rejected.
func (p *UserProfile) Append(itemID int, rating float64) error {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return &ConfigurationError{
			Field:  "rating",
			Reason: fmt.Sprintf("user %d item %d has non-finite rating %v", p.UserID, itemID, rating),
		}
	}
	if _, dup := p.index[itemID]; dup {
		return &ConfigurationError{
			Field:  "rating",
			Reason: fmt.Sprintf("user %d rated item %d more than once", p.UserID, itemID),
		}
	}
	p.index[itemID] = len(p.entries)
	p.entries = append(p.entries, Entry{ItemID: itemID, Rating: rating})
	return nil
}

// Rating returns the user's rating for itemID.
func (p *UserProfile) Rating(itemID int) (float64, bool) {
	i, ok := p.index[itemID]
	if !ok {
		return 0, false
	}
	return p.entries[i].Rating, true
}

// Has reports whether the user rated itemID.
func (p *UserProfile) Has(itemID int) bool {
	_, ok := p.index[itemID]
	return ok
}

// Len returns the number of rated items.
func (p *UserProfile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns a copy of the ratings in insertion order.
func (p *UserProfile) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Items returns the rated item ids in insertion order.
func (p *UserProfile) Items() []int {
	out := make([]int, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.ItemID
	}
	return out
}

// RatingSource supplies the rating history and per-user views of it.
type RatingSource interface {
	// EachRating streams every rating in the history. Order is unspecified.
	EachRating(ctx context.Context, fn func(Rating) error) error

	// UserProfile returns the ratings of one user. A user without ratings
	// yields an empty profile, not an error.
	UserProfile(ctx context.Context, userID int) (*UserProfile, error)

	// UnratedItems returns the items in the history the user has not rated.
	UnratedItems(ctx context.Context, userID int) ([]int, error)
}

// profileCollector groups streamed ratings by user.
type profileCollector struct {
	items    map[int]struct{}
	profiles map[int]*UserProfile
}

func newProfileCollector() *profileCollector {
	return &profileCollector{
		items:    make(map[int]struct{}),
		profiles: make(map[int]*UserProfile),
	}
}

func (c *profileCollector) add(r Rating) error {
	p := c.profiles[r.UserID]
	if p == nil {
		p = NewUserProfile(r.UserID)
		c.profiles[r.UserID] = p
	}
	if err := p.Append(r.ItemID, r.Value); err != nil {
		return err
	}
	c.items[r.ItemID] = struct{}{}
	return nil
}

func (c *profileCollector) universe() []int {
	ids := make([]int, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GroupByUser builds the sorted item universe and one profile per user.
func GroupByUser(ratings []Rating) ([]int, map[int]*UserProfile, error) {
	c := newProfileCollector()
	for _, r := range ratings {
		if err := c.add(r); err != nil {
			return nil, nil, err
		}
	}
	return c.universe(), c.profiles, nil
}

// CollectProfiles is GroupByUser over a streaming source.
func CollectProfiles(ctx context.Context, src RatingSource) ([]int, map[int]*UserProfile, error) {
	c := newProfileCollector()
	if err := src.EachRating(ctx, c.add); err != nil {
		return nil, nil, fmt.Errorf("collect profiles: %w", err)
	}
	return c.universe(), c.profiles, nil
}
