// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package ratings

import (
	"context"

	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// MemorySource serves a fixed rating history from memory.
type MemorySource struct {
	ratings  []slopeone.Rating
	universe []int
	profiles map[int]*slopeone.UserProfile
}

var _ slopeone.RatingSource = (*MemorySource)(nil)

// NewMemorySource validates ratings and indexes them by user. Duplicate
// (user, item) pairs and non-finite ratings are rejected.
func NewMemorySource(ratings []slopeone.Rating) (*MemorySource, error) {
	universe, profiles, err := slopeone.GroupByUser(ratings)
	if err != nil {
		return nil, err
	}
	return &MemorySource{
		ratings:  ratings,
		universe: universe,
		profiles: profiles,
	}, nil
}

// Len returns the number of ratings.
func (s *MemorySource) Len() int {
	return len(s.ratings)
}

// EachRating implements slopeone.RatingSource.
func (s *MemorySource) EachRating(ctx context.Context, fn func(slopeone.Rating) error) error {
	for i, r := range s.ratings {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// UserProfile implements slopeone.RatingSource.
func (s *MemorySource) UserProfile(_ context.Context, userID int) (*slopeone.UserProfile, error) {
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return slopeone.NewUserProfile(userID), nil
}

// UnratedItems implements slopeone.RatingSource.
func (s *MemorySource) UnratedItems(_ context.Context, userID int) ([]int, error) {
	p := s.profiles[userID]
	out := make([]int, 0, len(s.universe))
	for _, item := range s.universe {
		if p != nil && p.Has(item) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
