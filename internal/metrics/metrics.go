// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training Metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_training_runs_total",
			Help: "Total number of training runs by result",
		},
		[]string{"result"}, // "success", "failure", "timeout"
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slopeone_training_duration_seconds",
			Help:    "Wall-clock duration of complete training runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
		},
	)

	PartitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slopeone_partition_duration_seconds",
			Help:    "Duration of a single worker's row range, including shard persistence",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"partition"},
	)

	CellsComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slopeone_cells_computed_total",
			Help: "Total off-diagonal matrix cells finalized by training workers",
		},
	)

	ModelItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slopeone_model_items",
			Help: "Item universe size of the model currently served",
		},
	)

	// Prediction Metrics
	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slopeone_prediction_duration_seconds",
			Help:    "Duration of predicting and ranking candidates for one user",
			Buckets: prometheus.DefBuckets,
		},
	)

	PredictionsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slopeone_predictions_total",
			Help: "Total predictions produced",
		},
	)

	PredictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_prediction_errors_total",
			Help: "Prediction requests that failed, by error kind",
		},
		[]string{"kind"}, // "insufficient_data", "lookup", "count_exceeded", "config", "other"
	)

	LookupMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_lookup_misses_total",
			Help: "Model lookups of ids outside the trained universe, by policy outcome",
		},
		[]string{"policy"}, // "fail", "zero"
	)

	// Model Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slopeone_store_operation_duration_seconds",
			Help:    "Duration of model store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_store_operation_errors_total",
			Help: "Failed model store operations",
		},
		[]string{"backend", "operation"},
	)

	// HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_http_requests_total",
			Help: "HTTP requests served by the serve command",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slopeone_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slopeone_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slopeone_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordTrainingRun records the outcome of one training run.
func RecordTrainingRun(result string, duration time.Duration) {
	TrainingRuns.WithLabelValues(result).Inc()
	TrainingDuration.Observe(duration.Seconds())
}

// RecordPartition records one worker's row range.
func RecordPartition(partition, cells int, duration time.Duration) {
	PartitionDuration.WithLabelValues(strconv.Itoa(partition)).Observe(duration.Seconds())
	CellsComputed.Add(float64(cells))
}

// RecordModelServed records the universe size of the model now being served.
func RecordModelServed(items int) {
	ModelItems.Set(float64(items))
}

// RecordPrediction records a successful prediction request.
func RecordPrediction(count int, duration time.Duration) {
	PredictionDuration.Observe(duration.Seconds())
	PredictionsGenerated.Add(float64(count))
}

// RecordPredictionError records a failed prediction request.
func RecordPredictionError(kind string) {
	PredictionErrors.WithLabelValues(kind).Inc()
}

// RecordLookupMiss records a lookup of an unknown item under the given policy.
func RecordLookupMiss(policy string) {
	LookupMisses.WithLabelValues(policy).Inc()
}

// RecordStoreOperation records a model store operation.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordBreakerTransition records a circuit breaker moving between states.
func RecordBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordHTTPRequest records one served HTTP request. route is the router
// pattern, not the raw path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
