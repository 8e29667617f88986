// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package storage provides persistence backends for trained Slope One models.
//
// Every backend implements slopeone.ModelStore. A training run is staged as
// pending by BeginRun, receives one shard per partition through WriteShard and
// becomes visible to readers only when CommitRun succeeds. AbortRun removes
// whatever a failed run staged. Committed runs beyond the retention limit are
// pruned on commit; the active run is never pruned.
//
// # Backends
//
// FileStore keeps each run in its own directory:
//
//	/data/slopeone/models/
//	  CURRENT                         <- id of the active run
//	  8d0c.../
//	    manifest.json                 <- manifest plus shard checksums
//	    model-0-of-4.csv
//	    model-1-of-4.csv
//	    ...
//
// Shards are CSV with the header item_i,item_j,avg_difference, or MessagePack
// when FormatMsgpack is selected. Each shard's SHA-256 is recorded at commit
// and verified when the shard is read back.
//
// BadgerStore and RedisStore keep individual cells addressable, so besides
// bulk loading they implement slopeone.CellFetcher and can back a
// slopeone.LazyModel that never materializes the full matrix.
//
// # Circuit Breaking
//
// Lazy models issue one backend read per (rated, candidate) pair. BreakerModel
// wraps such a model in a gobreaker circuit breaker so a failing backend is
// shed quickly instead of stalling every prediction:
//
//	lazy, _ := slopeone.NewLazyModel(manifest, redisStore)
//	model := storage.NewBreakerModel(lazy, storage.BreakerConfig{Name: "redis"})
//
// Unknown item errors are answers, not backend faults, and never trip the breaker.
package storage
