// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

const backendRedis = "redis"

// rowsPerPipeline bounds how many row hashes one pipeline round trip carries.
const rowsPerPipeline = 64

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key. Defaults to "slopeone".
	KeyPrefix string
	// RetainRuns is how many committed runs to keep. Values below 1 keep one.
	RetainRuns int
}

// RedisStore keeps one hash per matrix row:
//
//	<prefix>:active                 -> run id
//	<prefix>:run:<id>:manifest      -> JSON manifest
//	<prefix>:run:<id>:shards        -> hash partition index -> cell count
//	<prefix>:<id>:row:<i>           -> hash j -> difference
type RedisStore struct {
	client *redis.Client
	prefix string
	retain int
}

var (
	_ slopeone.ModelStore  = (*RedisStore)(nil)
	_ slopeone.CellFetcher = (*RedisStore)(nil)
)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "slopeone"
	}
	retain := opts.RetainRuns
	if retain < 1 {
		retain = 1
	}
	logging.Info().Str("addr", client.Options().Addr).Str("prefix", prefix).Msg("Redis model store ready")
	return &RedisStore{client: client, prefix: prefix, retain: retain}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) activeKey() string {
	return s.prefix + ":active"
}

func (s *RedisStore) manifestKey(runID string) string {
	return s.prefix + ":run:" + runID + ":manifest"
}

func (s *RedisStore) shardsKey(runID string) string {
	return s.prefix + ":run:" + runID + ":shards"
}

func (s *RedisStore) rowKey(runID string, itemI int) string {
	return s.prefix + ":" + runID + ":row:" + strconv.Itoa(itemI)
}

// BeginRun stores a pending manifest. It fails if the run id is taken.
func (s *RedisStore) BeginRun(ctx context.Context, m *slopeone.Manifest) (err error) {
	defer observe(backendRedis, "begin_run", time.Now(), &err)

	if err := validRunID(m.RunID); err != nil {
		return err
	}
	pending := *m
	pending.Status = slopeone.RunPending
	data, err := json.Marshal(&pending)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.manifestKey(m.RunID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis store: run %s already exists", m.RunID)
	}
	return nil
}

// WriteShard writes the shard's rows as hashes, pipelined.
func (s *RedisStore) WriteShard(ctx context.Context, sh *slopeone.Shard) (err error) {
	defer observe(backendRedis, "write_shard", time.Now(), &err)

	m, err := s.manifest(ctx, sh.RunID)
	if err != nil {
		return err
	}
	if m.Status != slopeone.RunPending {
		return fmt.Errorf("redis store: run %s is not pending", sh.RunID)
	}

	pipe := s.client.Pipeline()
	for k, row := range sh.Rows {
		i := sh.Partition.Start + k
		fields := make(map[string]interface{}, len(row))
		for j, diff := range row {
			if j == i {
				continue
			}
			fields[strconv.Itoa(sh.Items[j])] = strconv.FormatFloat(diff, 'g', -1, 64)
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, s.rowKey(sh.RunID, sh.Items[i]), fields)
		}
		if (k+1)%rowsPerPipeline == 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("write shard %s: %w", sh.Partition, err)
			}
		}
	}
	pipe.HSet(ctx, s.shardsKey(sh.RunID), strconv.Itoa(sh.Partition.Index), sh.CellCount())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write shard %s: %w", sh.Partition, err)
	}
	return nil
}

// CommitRun marks the run committed and active, then prunes old runs.
func (s *RedisStore) CommitRun(ctx context.Context, runID string) (err error) {
	defer observe(backendRedis, "commit_run", time.Now(), &err)

	m, err := s.manifest(ctx, runID)
	if err != nil {
		return err
	}
	if m.Status != slopeone.RunPending {
		return fmt.Errorf("redis store: run %s is not pending", runID)
	}
	shards, err := s.client.HLen(ctx, s.shardsKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("count shards: %w", err)
	}
	if int(shards) != len(m.Partitions) {
		return fmt.Errorf("redis store: run %s has %d of %d shards", runID, shards, len(m.Partitions))
	}

	m.Status = slopeone.RunCommitted
	m.CommittedAt = time.Now().UTC()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.manifestKey(runID), data, 0)
		pipe.Set(ctx, s.activeKey(), runID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit run %s: %w", runID, err)
	}

	s.prune(ctx, runID)
	return nil
}

// AbortRun deletes every key of a pending run.
func (s *RedisStore) AbortRun(ctx context.Context, runID string) (err error) {
	defer observe(backendRedis, "abort_run", time.Now(), &err)

	if err := validRunID(runID); err != nil {
		return err
	}
	m, err := s.manifest(ctx, runID)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.Status == slopeone.RunCommitted {
		return fmt.Errorf("redis store: run %s is committed", runID)
	}
	return s.deleteRun(ctx, m)
}

// ActiveManifest returns the run named by the active key.
func (s *RedisStore) ActiveManifest(ctx context.Context) (*slopeone.Manifest, error) {
	runID, err := s.client.Get(ctx, s.activeKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, slopeone.ErrNoModel
	}
	if err != nil {
		return nil, fmt.Errorf("read active run: %w", err)
	}
	m, err := s.manifest(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read manifest of run %s: %w", runID, err)
	}
	if m.Status != slopeone.RunCommitted {
		return nil, fmt.Errorf("redis store: active run %s is not committed", runID)
	}
	return m, nil
}

// ReadShard streams rows [p.Start, p.End) of runID.
func (s *RedisStore) ReadShard(ctx context.Context, runID string, p slopeone.Partition, fn func(slopeone.Cell) error) (err error) {
	defer observe(backendRedis, "read_shard", time.Now(), &err)

	m, err := s.manifest(ctx, runID)
	if err != nil {
		return err
	}
	if p.Start < 0 || p.End > len(m.Items) {
		return fmt.Errorf("%w: partition %s outside run %s", slopeone.ErrPartitionInvariant, p, runID)
	}

	for start := p.Start; start < p.End; start += rowsPerPipeline {
		end := min(start+rowsPerPipeline, p.End)

		pipe := s.client.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, 0, end-start)
		for i := start; i < end; i++ {
			cmds = append(cmds, pipe.HGetAll(ctx, s.rowKey(runID, m.Items[i])))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("read rows %d-%d: %w", start, end, err)
		}

		for k, cmd := range cmds {
			itemI := m.Items[start+k]
			for field, value := range cmd.Val() {
				itemJ, err := strconv.Atoi(field)
				if err != nil {
					return fmt.Errorf("row %d: malformed field %q", itemI, field)
				}
				diff, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return fmt.Errorf("row %d: cell %d: %w", itemI, itemJ, err)
				}
				if err := fn(slopeone.Cell{ItemI: itemI, ItemJ: itemJ, Difference: diff}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FetchCell is a single HGET.
func (s *RedisStore) FetchCell(ctx context.Context, runID string, itemI, itemJ int) (diff float64, found bool, err error) {
	defer observe(backendRedis, "fetch_cell", time.Now(), &err)

	diff, err = s.client.HGet(ctx, s.rowKey(runID, itemI), strconv.Itoa(itemJ)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return diff, true, nil
}

// Runs lists committed runs, newest first.
func (s *RedisStore) Runs(ctx context.Context) ([]slopeone.Manifest, error) {
	var runs []slopeone.Manifest
	iter := s.client.Scan(ctx, 0, s.prefix+":run:*:manifest", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var m slopeone.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			logging.Warn().Err(err).Str("key", iter.Val()).Msg("Failed to decode run manifest")
			continue
		}
		if m.Status == slopeone.RunCommitted {
			runs = append(runs, m)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan manifests: %w", err)
	}
	sortNewestFirst(runs)
	return runs, nil
}

func (s *RedisStore) prune(ctx context.Context, active string) {
	runs, err := s.Runs(ctx)
	if err != nil {
		logging.Warn().Err(err).Str("backend", backendRedis).Msg("Failed to list runs for pruning")
		return
	}
	for _, m := range expiredRuns(runs, active, s.retain) {
		if err := s.deleteRun(ctx, &m); err != nil {
			logging.Warn().Err(err).Str("run_id", m.RunID).Msg("Failed to prune model run")
		}
	}
}

// deleteRun removes the run's row hashes first and its manifest last, so a
// half-deleted run is still found and retried by the next prune or abort.
func (s *RedisStore) deleteRun(ctx context.Context, m *slopeone.Manifest) error {
	keys := make([]string, 0, rowsPerPipeline)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		err := s.client.Del(ctx, keys...).Err()
		keys = keys[:0]
		return err
	}
	for _, item := range m.Items {
		keys = append(keys, s.rowKey(m.RunID, item))
		if len(keys) == cap(keys) {
			if err := flush(); err != nil {
				return fmt.Errorf("delete run %s: %w", m.RunID, err)
			}
		}
	}
	keys = append(keys, s.shardsKey(m.RunID))
	if err := flush(); err != nil {
		return fmt.Errorf("delete run %s: %w", m.RunID, err)
	}
	if err := s.client.Del(ctx, s.manifestKey(m.RunID)).Err(); err != nil {
		return fmt.Errorf("delete run %s: %w", m.RunID, err)
	}
	return nil
}

func (s *RedisStore) manifest(ctx context.Context, runID string) (*slopeone.Manifest, error) {
	data, err := s.client.Get(ctx, s.manifestKey(runID)).Bytes()
	if err != nil {
		return nil, err
	}
	var m slopeone.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest of run %s: %w", runID, err)
	}
	return &m, nil
}
