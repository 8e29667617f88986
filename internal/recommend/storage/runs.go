// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/slopeone/internal/metrics"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// validRunID rejects ids that could escape the store directory.
func validRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		return &slopeone.ConfigurationError{Field: "run_id", Reason: fmt.Sprintf("invalid run id %q", runID)}
	}
	return nil
}

// expiredRuns returns the committed runs to delete so that at most retain
// remain. runs must be sorted newest first. The active run is always kept and
// counts against retain.
func expiredRuns(runs []slopeone.Manifest, active string, retain int) []slopeone.Manifest {
	budget := retain
	for _, m := range runs {
		if m.RunID == active {
			budget--
			break
		}
	}

	var expired []slopeone.Manifest
	for _, m := range runs {
		if m.RunID == active {
			continue
		}
		if budget > 0 {
			budget--
			continue
		}
		expired = append(expired, m)
	}
	return expired
}

func sortNewestFirst(runs []slopeone.Manifest) {
	sort.Slice(runs, func(a, b int) bool {
		if !runs[a].CommittedAt.Equal(runs[b].CommittedAt) {
			return runs[a].CommittedAt.After(runs[b].CommittedAt)
		}
		return runs[a].RunID > runs[b].RunID
	})
}

// observe records a store operation's latency and outcome.
func observe(backend, op string, started time.Time, err *error) {
	metrics.RecordStoreOperation(backend, op, time.Since(started), *err)
}
