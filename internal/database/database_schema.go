// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
database_schema.go - Database Schema Management

Tables:
  - ratings: One row per (user, item) rating; the training history
  - model_runs: One row per training run with its lifecycle status
  - model_items: The sorted item universe of each run, by matrix position
  - model_partitions: Row ranges of each run and the cell count once written
  - model_cells: Every off-diagonal average difference of each run

A run is served only once its model_runs row is committed. The active run is
the committed run with the latest committed_at.

Index Strategy:
  - ratings(item_id) for the unrated-items anti-join
  - model_cells(run_id, item_i, item_j) for lazy point lookups
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// getTableCreationQueries returns the CREATE TABLE statements
func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ratings (
			user_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL,
			rating DOUBLE NOT NULL,
			PRIMARY KEY (user_id, item_id)
		);`,
		`CREATE TABLE IF NOT EXISTS model_runs (
			run_id VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			committed_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS model_items (
			run_id VARCHAR NOT NULL,
			position BIGINT NOT NULL,
			item_id BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS model_partitions (
			run_id VARCHAR NOT NULL,
			partition_index BIGINT NOT NULL,
			start_idx BIGINT NOT NULL,
			end_idx BIGINT NOT NULL,
			cells BIGINT
		);`,
		`CREATE TABLE IF NOT EXISTS model_cells (
			run_id VARCHAR NOT NULL,
			partition_index BIGINT NOT NULL,
			item_i BIGINT NOT NULL,
			item_j BIGINT NOT NULL,
			avg_difference DOUBLE NOT NULL
		);`,
	}
}

// createIndexes creates all database indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

// getIndexQueries returns index creation SQL statements
func (db *DB) getIndexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_ratings_item ON ratings(item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_model_cells_lookup ON model_cells(run_id, item_i, item_j);`,
	}
}
