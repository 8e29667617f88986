// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

/*
Package supervisor runs the long-lived parts of `slopeone serve` under a
suture v4 supervisor tree.

# Layout

	RootSupervisor ("slopeone")
	├── ModelSupervisor ("model-layer")
	│   └── RecommendService (reload, train on startup, periodic retrain)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (/healthz, /readyz, /metrics)

The layers restart independently. A training loop that keeps failing backs
off inside the model layer while the API layer keeps answering probes, and
the engine keeps serving the last committed model.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddModelService(services.NewRecommendService(engine, svcCfg, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)

# Failure Handling

Each supervisor keeps a failure counter that decays over FailureDecay
seconds. Once it passes FailureThreshold, restarts wait FailureBackoff.
Services return ctx.Err() on shutdown and any other error to request a
restart.

Supervisor events are logged through sutureslog, bridged onto the global
zerolog logger by logging.NewSlogLogger.

# Not Supervised

DuckDB, Badger and the Redis client are libraries owned by the command that
opened them. They are closed after the tree returns.
*/
package supervisor
