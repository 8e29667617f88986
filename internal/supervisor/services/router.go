// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package services

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/middleware"
	"github.com/tomtom215/slopeone/internal/recommend"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// EngineProbe is what the router asks the engine.
type EngineProbe interface {
	Ready() bool
	ActiveRun() *slopeone.Manifest
	GetStatus() recommend.TrainingStatus
}

type healthResponse struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime_seconds"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Ready       bool       `json:"ready"`
	RunID       string     `json:"run_id,omitempty"`
	Items       int        `json:"items,omitempty"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
}

// NewRouter builds the serve command's HTTP surface:
//
//	GET /healthz  process is up
//	GET /readyz   a committed model is being served (503 otherwise)
//	GET /status   training status of the engine
//	GET /metrics  Prometheus exposition
func NewRouter(engine EngineProbe) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Uptime:    time.Since(started).Seconds(),
			Timestamp: time.Now().UTC(),
		})
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{Ready: false})
			return
		}
		resp := readyResponse{Ready: true}
		if m := engine.ActiveRun(); m != nil {
			resp.RunID = m.RunID
			resp.Items = len(m.Items)
			if !m.CommittedAt.IsZero() {
				at := m.CommittedAt
				resp.CommittedAt = &at
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, engine.GetStatus())
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}
