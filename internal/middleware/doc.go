// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
Package middleware provides the HTTP middleware of the serve command's
router, in chi's func(http.Handler) http.Handler shape.

  - RequestID: X-Request-ID propagation; the id doubles as the logging
    correlation id
  - PrometheusMetrics: request count and latency labeled by chi route pattern,
    so path parameters do not explode label cardinality

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
