// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package ratings

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// ParseError reports a malformed line of a ratings file.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ratings: line %d: %s", e.Line, e.Reason)
}

// LoadCSV reads a ratings file from disk.
func LoadCSV(path string) (*MemorySource, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("ratings: open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to close ratings file")
		}
	}()

	src, err := ReadCSV(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	logging.Info().Str("path", path).Int("ratings", src.Len()).Msg("Loaded ratings file")
	return src, nil
}

// ReadCSV parses userId,movieId,rating[,timestamp] records. A first row whose
// user column is not an integer is taken as the header and skipped. Extra
// columns are ignored.
func ReadCSV(r io.Reader) (*MemorySource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	var out []slopeone.Rating
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ratings: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rating, err := parseRecord(rec)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		out = append(out, rating)
	}

	src, err := NewMemorySource(out)
	if err != nil {
		return nil, fmt.Errorf("ratings: %w", err)
	}
	return src, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	return err != nil
}

func parseRecord(rec []string) (slopeone.Rating, error) {
	if len(rec) < 3 {
		return slopeone.Rating{}, fmt.Errorf("expected at least 3 fields, got %d", len(rec))
	}
	user, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return slopeone.Rating{}, fmt.Errorf("user id %q: %w", rec[0], err)
	}
	item, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return slopeone.Rating{}, fmt.Errorf("item id %q: %w", rec[1], err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return slopeone.Rating{}, fmt.Errorf("rating %q: %w", rec[2], err)
	}
	return slopeone.Rating{UserID: user, ItemID: item, Value: value}, nil
}
