// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
Package services adapts slopeone components to suture.Service.

RecommendService owns the model lifecycle of a serving process. It reloads
the last committed run from the model store on start, optionally trains
once, and retrains on a fixed interval. A failed training run is logged and
retried on the next tick; the engine keeps serving the previous model.

HTTPServerService turns the blocking ListenAndServe of *http.Server into a
context-aware Serve with graceful shutdown. NewRouter builds the chi router
it serves: liveness, readiness against the engine and Prometheus metrics.
*/
package services
