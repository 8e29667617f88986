// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package recommend orchestrates Slope One training and serving.
//
// # Architecture
//
// The Engine ties three collaborators together:
//
//   - A rating source (slopeone.RatingSource): CSV, DuckDB or MongoDB
//   - A model store (slopeone.ModelStore): file, DuckDB, Badger or Redis
//   - The slopeone package: the parallel builder and the predictor
//
// Train streams the rating history, builds a model with one worker per
// partition, commits it to the store and swaps it in. Reload serves the
// store's active run, which is how a separate serving process picks up a
// model trained elsewhere.
//
// # Serving
//
// Dense serving keeps the N×N matrix in memory. Lazy serving keeps only the
// item universe and answers each lookup with a point query against the store;
// WithLookupWrapper lets callers put a circuit breaker in front of it.
//
// Candidates are the user's unrated items that the served run knows. Items
// first rated after the run was trained are skipped until the next training.
//
// Responses are cached in an LRU keyed by user, k and run id. Serving a new
// run clears it.
//
// # Usage
//
//	cfg, err := recommend.FromAppConfig(appCfg)
//	engine, err := recommend.NewEngine(cfg, db, store, logger)
//
//	if _, err := engine.Train(ctx); err != nil {
//	    return err
//	}
//	resp, err := engine.Recommend(ctx, userID, 10)
//
// # Thread Safety
//
// The engine is safe for concurrent use. Train and Reload are serialized
// and replace the served model with an atomic pointer swap, so a request
// always completes against the model generation it started with.
package recommend
