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

// Prediction is an estimated rating for one item.
type Prediction struct {
	ItemID int     `json:"item_id"`
	Rating float64 `json:"predicted_rating"`
}

// Predictions are ordered by descending Rating, ties by ascending ItemID.
type Predictions []Prediction

// TopX returns the first k predictions. A k larger than the number of
// predictions is a *RequestedCountExceedsAvailableError.
func (ps Predictions) TopX(k int) (Predictions, error) {
	if k < 0 {
		return nil, &ConfigurationError{Field: "k", Reason: fmt.Sprintf("must not be negative, got %d", k)}
	}
	if k > len(ps) {
		return nil, &RequestedCountExceedsAvailableError{Requested: k, Available: len(ps)}
	}
	return ps[:k:k], nil
}

// Head returns the first min(k, len) predictions.
func (ps Predictions) Head(k int) Predictions {
	if k < 0 {
		k = 0
	}
	if k > len(ps) {
		k = len(ps)
	}
	return ps[:k:k]
}

// PredictorConfig configures a Predictor.
type PredictorConfig struct {
	// Policy decides how lookups of unknown items are treated.
	Policy LookupPolicy
}

// Predictor turns a user's profile into ranked predictions. It holds no state
// between calls and is safe for concurrent use.
type Predictor struct {
	model CorrelationModel
}

// NewPredictor wraps model with cfg.Policy.
func NewPredictor(model CorrelationModel, cfg PredictorConfig) (*Predictor, error) {
	if model == nil {
		return nil, &ConfigurationError{Field: "model", Reason: "a correlation model is required"}
	}
	return &Predictor{model: WithPolicy(model, cfg.Policy)}, nil
}

// Predict estimates a rating for every candidate and returns them ranked.
//
// For candidate c the prediction is the mean of rating(r) + M[r][c] over every
// item r in the profile. Candidates must be unique and not already rated.
func (p *Predictor) Predict(ctx context.Context, profile *UserProfile, candidates []int) (Predictions, error) {
	if profile.Len() == 0 {
		userID := 0
		if profile != nil {
			userID = profile.UserID
		}
		return nil, &InsufficientDataError{UserID: userID}
	}

	seen := make(map[int]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			return nil, &ConfigurationError{Field: "candidates", Reason: fmt.Sprintf("item %d listed twice", c)}
		}
		if profile.Has(c) {
			return nil, &ConfigurationError{
				Field:  "candidates",
				Reason: fmt.Sprintf("user %d already rated item %d", profile.UserID, c),
			}
		}
		seen[c] = struct{}{}
	}

	out := make(Predictions, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rating, err := p.predictOne(ctx, profile, c)
		if err != nil {
			return nil, err
		}
		out = append(out, Prediction{ItemID: c, Rating: rating})
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Rating != out[b].Rating {
			return out[a].Rating > out[b].Rating
		}
		return out[a].ItemID < out[b].ItemID
	})
	return out, nil
}

func (p *Predictor) predictOne(ctx context.Context, profile *UserProfile, c int) (float64, error) {
	var sum float64
	for _, e := range profile.entries {
		diff, err := p.model.Lookup(ctx, e.ItemID, c)
		if err != nil {
			return 0, err
		}
		sum += e.Rating + diff
	}

	rating := sum / float64(len(profile.entries))
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, &NonFinitePredictionError{UserID: profile.UserID, ItemID: c}
	}
	return rating, nil
}
