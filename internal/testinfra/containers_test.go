// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

//go:build integration

package testinfra

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestRedisContainer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redis, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to create Redis container: %v", err)
	}
	defer CleanupContainer(t, ctx, redis.Container)

	conn, err := net.DialTimeout("tcp", redis.Addr, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to Redis at %s: %v", redis.Addr, err)
	}
	_ = conn.Close()
}
