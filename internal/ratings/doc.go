// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
Package ratings provides rating history sources for training and prediction.

Every source implements slopeone.RatingSource:

  - MemorySource: an in-memory history, validated on construction
  - CSV (LoadCSV, ReadCSV): MovieLens-style userId,movieId,rating[,timestamp]
    files, parsed into a MemorySource
  - MongoSource: documents {user_id, item_id, rating} in a MongoDB collection

The DuckDB ratings table in internal/database is the fourth source and the
usual target of an import.

Example:

	src, err := ratings.LoadCSV("ratings.csv")
	if err != nil {
		return err
	}
	universe, profiles, err := slopeone.CollectProfiles(ctx, src)
*/
package ratings
