// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// EachRating streams every stored rating.
func (db *DB) EachRating(ctx context.Context, fn func(slopeone.Rating) error) (err error) {
	defer observe("each_rating", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `SELECT user_id, item_id, rating FROM ratings`)
	if err != nil {
		return fmt.Errorf("failed to query ratings: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var userID, itemID int64
		var value float64
		if err := rows.Scan(&userID, &itemID, &value); err != nil {
			return fmt.Errorf("failed to scan rating: %w", err)
		}
		if err := fn(slopeone.Rating{UserID: int(userID), ItemID: int(itemID), Value: value}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UserProfile returns the ratings of userID ordered by item id. A user with
// no ratings gets an empty profile.
func (db *DB) UserProfile(ctx context.Context, userID int) (*slopeone.UserProfile, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, rating FROM ratings WHERE user_id = ? ORDER BY item_id`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query profile of user %d: %w", userID, err)
	}
	defer closeWithLog(rows, "rows")

	profile := slopeone.NewUserProfile(userID)
	for rows.Next() {
		var itemID int64
		var value float64
		if err := rows.Scan(&itemID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		if err := profile.Append(int(itemID), value); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profile, nil
}

// UnratedItems returns, ascending, every item in the history userID has not rated.
func (db *DB) UnratedItems(ctx context.Context, userID int) ([]int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT item_id FROM ratings
		WHERE item_id NOT IN (SELECT item_id FROM ratings WHERE user_id = ?)
		ORDER BY item_id`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to query unrated items of user %d: %w", userID, err)
	}
	defer closeWithLog(rows, "rows")

	var items []int
	for rows.Next() {
		var itemID int64
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, int(itemID))
	}
	return items, rows.Err()
}

// RatingCount returns the number of stored ratings.
func (db *DB) RatingCount(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ratings: %w", err)
	}
	return n, nil
}

// ImportRatings copies every rating of src into the ratings table in one
// transaction. An existing (user, item) rating is replaced.
func (db *DB) ImportRatings(ctx context.Context, src slopeone.RatingSource) (imported int, err error) {
	defer observe("import_ratings", time.Now(), &err)

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		imported = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO ratings (user_id, item_id, rating) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare rating insert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		return src.EachRating(ctx, func(r slopeone.Rating) error {
			if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
				return &slopeone.ConfigurationError{
					Field:  "rating",
					Reason: fmt.Sprintf("user %d item %d has non-finite rating %v", r.UserID, r.ItemID, r.Value),
				}
			}
			if _, err := stmt.ExecContext(ctx, int64(r.UserID), int64(r.ItemID), r.Value); err != nil {
				return fmt.Errorf("failed to insert rating (%d, %d): %w", r.UserID, r.ItemID, err)
			}
			imported++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	logging.Info().Int("ratings", imported).Msg("Imported ratings")
	return imported, nil
}
