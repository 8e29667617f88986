// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
Package cache provides a thread-safe in-memory LRU cache with TTL support.

The recommendation engine uses it to keep recent per-user responses so
repeated requests against the same committed run skip the prediction pass.

# Usage Example

	c := cache.NewLRU[string, *Response](1000, 5*time.Minute)
	c.Add("user:42", resp)

	if resp, ok := c.Get("user:42"); ok {
	    // served from cache
	}

	// A new model generation invalidates everything.
	c.Clear()

# Expiration

Entries expire ttl after their last Add. Expired entries are dropped on Get,
before an insert into a full cache, and by CleanupExpired. Len counts
expired entries that have not been dropped yet.

# Thread Safety

All methods are safe for concurrent use. Get takes the write lock because
it reorders the access list.
*/
package cache
