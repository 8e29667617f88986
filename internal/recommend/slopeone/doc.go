// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package slopeone implements Slope One training and prediction.
//
// Training derives an N×N matrix M over the sorted item universe where
// M[i][j] is the mean, over users who rated both i and j, of r_i - r_j.
// Pairs nobody rated together stay 0 and the diagonal is always 0. Prediction
// for a user and a candidate item c averages r + M[r][c] over the items r the
// user rated, then ranks candidates.
//
// # Architecture
//
//	RatingSource ──▶ UserProfile ──▶ Builder (T workers) ──▶ ShardWriter
//	                                     │                       │
//	                                     ▼                       ▼
//	                                DenseModel ◀── LoadDense ◀── ShardReader
//	                                     │
//	                                     ▼
//	                          WithPolicy ──▶ Predictor ──▶ Predictions.TopX
//
// The builder splits the N matrix rows into T contiguous partitions and runs one
// worker per partition. Each worker owns its rows exclusively, so the shared
// dense matrix needs no locking and the result does not depend on scheduling.
// Each worker hands its rows to a ShardWriter as one shard; the run becomes
// visible to readers only when every shard is written and the run is committed.
//
// # Usage
//
//	universe, profiles, err := slopeone.CollectProfiles(ctx, source)
//	builder, err := slopeone.NewBuilder(slopeone.BuilderConfig{
//	    Workers:  8,
//	    Timeout:  30 * time.Minute,
//	    Assemble: true,
//	}, store, logger)
//	result, err := builder.Train(ctx, universe, profiles)
//
//	predictor, err := slopeone.NewPredictor(result.Model, slopeone.PredictorConfig{
//	    Policy: slopeone.FailOnMissing,
//	})
//	ranked, err := predictor.Predict(ctx, profile, candidates)
//	top, err := ranked.TopX(10)
//
// # Lookup Policy
//
// A lookup involving an item outside the trained universe returns a
// *ModelLookupError. WithPolicy is the single place that decides whether that
// error is surfaced (FailOnMissing, the default) or replaced by a zero
// difference (ZeroOnMissing). The Predictor always looks up through it.
//
// # Thread Safety
//
// A trained DenseModel is never mutated and may be shared by any number of
// concurrent Predictors. Builder.Train may be called concurrently; each call
// owns its own matrix.
package slopeone
