// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

// Package database provides the DuckDB-backed rating history and model store.
//
// # Overview
//
// A single embedded DuckDB file serves two roles:
//
//   - Rating source: the ratings table holds (user_id, item_id, rating)
//     triples. DB implements slopeone.RatingSource, so the builder can stream
//     the history and the predictor can fetch a user's profile and the items
//     they have not rated yet.
//   - Model store: model_runs, model_items, model_partitions and model_cells
//     hold trained runs. DB implements slopeone.ModelStore and
//     slopeone.CellFetcher, so a model can be bulk loaded into memory or
//     served lazily with one indexed point query per lookup.
//
// # Architecture
//
//   - database.go: Connection lifecycle (open, initialize, checkpoint, close)
//   - database_connection.go: Pool configuration and error classification
//   - database_schema.go: Table creation and indexes
//   - migrations.go: Versioned schema migrations
//   - database_utils.go: Context helpers and prepared statement cache
//   - ratings.go: Rating history access and bulk import
//   - models.go: Model run persistence
//
// # Bulk Writes
//
// Model shards are written with the DuckDB appender, which bypasses SQL
// parsing. Rating imports run in one transaction with a prepared
// INSERT OR REPLACE, so re-importing a file updates ratings in place:
//
//	n, err := db.ImportRatings(ctx, src)
//
// # Database Technology
//
// DuckDB is an embedded OLAP database accessed through the CGO driver
// github.com/duckdb/duckdb-go/v2. Use ":memory:" as the path for tests.
//
// # Thread Safety
//
// DB is safe for concurrent use. Shards of one run may be written from
// several goroutines at once.
package database
