// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package main

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

type outputFormat string

const (
	outputCSV  outputFormat = "csv"
	outputJSON outputFormat = "json"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch outputFormat(s) {
	case outputCSV, outputJSON:
		return outputFormat(s), nil
	default:
		return "", usagef("unknown -format %q (want csv or json)", s)
	}
}

// predictResult is what `slopeone predict` writes.
type predictResult struct {
	UserID int                  `json:"user_id"`
	RunID  string               `json:"run_id"`
	Items  slopeone.Predictions `json:"items"`
}

// writePredictions writes res as CSV (item_id,predicted_rating with a
// header row) or as indented JSON.
func writePredictions(w io.Writer, format outputFormat, res *predictResult) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"item_id", "predicted_rating"}); err != nil {
		return err
	}
	for _, p := range res.Items {
		rec := []string{strconv.Itoa(p.ItemID), strconv.FormatFloat(p.Rating, 'f', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
