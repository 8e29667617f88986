// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

const backendBadger = "badger"

// Key layout:
//
//	active                    -> run id
//	run/<id>/manifest         -> JSON manifest
//	run/<id>/shard/<index>    -> cell count of a written shard
//	cell/<id>/<i>/<j>         -> big-endian float64 bits
const (
	badgerActiveKey = "active"
	badgerRunPrefix = "run/"
	badgerCellRoot  = "cell/"
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory. Used by tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// RetainRuns is how many committed runs to keep. Values below 1 keep one.
	RetainRuns int
}

// BadgerStore persists runs in an embedded BadgerDB with one key per cell.
type BadgerStore struct {
	db     *badger.DB
	retain int
}

var (
	_ slopeone.ModelStore  = (*BadgerStore)(nil)
	_ slopeone.CellFetcher = (*BadgerStore)(nil)
)

// OpenBadger opens (or creates) a BadgerStore.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, &slopeone.ConfigurationError{Field: "badger.path", Reason: "is required"}
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.SyncWrites = opts.SyncWrites

	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	retain := opts.RetainRuns
	if retain < 1 {
		retain = 1
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("Badger model store opened")
	return &BadgerStore{db: db, retain: retain}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func manifestKey(runID string) []byte {
	return []byte(badgerRunPrefix + runID + "/manifest")
}

func shardMarkerPrefix(runID string) []byte {
	return []byte(badgerRunPrefix + runID + "/shard/")
}

func cellRowPrefix(runID string, itemI int) []byte {
	return []byte(badgerCellRoot + runID + "/" + strconv.Itoa(itemI) + "/")
}

func cellKey(runID string, itemI, itemJ int) []byte {
	return []byte(badgerCellRoot + runID + "/" + strconv.Itoa(itemI) + "/" + strconv.Itoa(itemJ))
}

func encodeDiff(d float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(d))
	return buf[:]
}

func decodeDiff(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("cell value has %d bytes, want 8", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// BeginRun stores a pending manifest.
func (s *BadgerStore) BeginRun(_ context.Context, m *slopeone.Manifest) (err error) {
	defer observe(backendBadger, "begin_run", time.Now(), &err)

	if err := validRunID(m.RunID); err != nil {
		return err
	}
	pending := *m
	pending.Status = slopeone.RunPending
	data, err := json.Marshal(&pending)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(manifestKey(m.RunID)); err == nil {
			return fmt.Errorf("badger store: run %s already exists", m.RunID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(manifestKey(m.RunID), data)
	})
}

// WriteShard writes every cell of the shard through a write batch, then
// records the shard as complete.
func (s *BadgerStore) WriteShard(ctx context.Context, sh *slopeone.Shard) (err error) {
	defer observe(backendBadger, "write_shard", time.Now(), &err)

	m, err := s.manifest(sh.RunID)
	if err != nil {
		return err
	}
	if m.Status != slopeone.RunPending {
		return fmt.Errorf("badger store: run %s is not pending", sh.RunID)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	n := 0
	err = sh.Cells(func(c slopeone.Cell) error {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return wb.Set(cellKey(sh.RunID, c.ItemI, c.ItemJ), encodeDiff(c.Difference))
	})
	if err != nil {
		return fmt.Errorf("write shard %s: %w", sh.Partition, err)
	}
	marker := append(shardMarkerPrefix(sh.RunID), strconv.Itoa(sh.Partition.Index)...)
	if err := wb.Set(marker, []byte(strconv.Itoa(sh.CellCount()))); err != nil {
		return fmt.Errorf("write shard marker: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush shard %s: %w", sh.Partition, err)
	}
	return nil
}

// CommitRun marks the run committed and active, then prunes old runs.
func (s *BadgerStore) CommitRun(_ context.Context, runID string) (err error) {
	defer observe(backendBadger, "commit_run", time.Now(), &err)

	err = s.db.Update(func(txn *badger.Txn) error {
		m, err := getManifest(txn, runID)
		if err != nil {
			return err
		}
		if m.Status != slopeone.RunPending {
			return fmt.Errorf("badger store: run %s is not pending", runID)
		}

		shards := 0
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		prefix := shardMarkerPrefix(runID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			shards++
		}
		it.Close()
		if shards != len(m.Partitions) {
			return fmt.Errorf("badger store: run %s has %d of %d shards", runID, shards, len(m.Partitions))
		}

		m.Status = slopeone.RunCommitted
		m.CommittedAt = time.Now().UTC()
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := txn.Set(manifestKey(runID), data); err != nil {
			return err
		}
		return txn.Set([]byte(badgerActiveKey), []byte(runID))
	})
	if err != nil {
		return err
	}

	s.prune(runID)
	return nil
}

// AbortRun drops every key of a pending run.
func (s *BadgerStore) AbortRun(_ context.Context, runID string) (err error) {
	defer observe(backendBadger, "abort_run", time.Now(), &err)

	if err := validRunID(runID); err != nil {
		return err
	}
	m, err := s.manifest(runID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return s.dropRun(runID)
	}
	if err != nil {
		return err
	}
	if m.Status == slopeone.RunCommitted {
		return fmt.Errorf("badger store: run %s is committed", runID)
	}
	return s.dropRun(runID)
}

// ActiveManifest returns the run named by the active key.
func (s *BadgerStore) ActiveManifest(_ context.Context) (*slopeone.Manifest, error) {
	var m *slopeone.Manifest
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerActiveKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return slopeone.ErrNoModel
		}
		if err != nil {
			return err
		}
		runID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		m, err = getManifest(txn, string(runID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if m.Status != slopeone.RunCommitted {
		return nil, fmt.Errorf("badger store: active run %s is not committed", m.RunID)
	}
	return m, nil
}

// ReadShard streams the cells of rows [p.Start, p.End) of runID.
func (s *BadgerStore) ReadShard(ctx context.Context, runID string, p slopeone.Partition, fn func(slopeone.Cell) error) (err error) {
	defer observe(backendBadger, "read_shard", time.Now(), &err)

	return s.db.View(func(txn *badger.Txn) error {
		m, err := getManifest(txn, runID)
		if err != nil {
			return err
		}
		if p.Start < 0 || p.End > len(m.Items) {
			return fmt.Errorf("%w: partition %s outside run %s", slopeone.ErrPartitionInvariant, p, runID)
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for i := p.Start; i < p.End; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			itemI := m.Items[i]
			prefix := cellRowPrefix(runID, itemI)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				itemJ, err := strconv.Atoi(string(item.Key()[len(prefix):]))
				if err != nil {
					return fmt.Errorf("malformed cell key %q", item.Key())
				}
				var diff float64
				if err := item.Value(func(val []byte) error {
					diff, err = decodeDiff(val)
					return err
				}); err != nil {
					return err
				}
				if err := fn(slopeone.Cell{ItemI: itemI, ItemJ: itemJ, Difference: diff}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// FetchCell is a point read of one cell.
func (s *BadgerStore) FetchCell(_ context.Context, runID string, itemI, itemJ int) (diff float64, found bool, err error) {
	defer observe(backendBadger, "fetch_cell", time.Now(), &err)

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cellKey(runID, itemI, itemJ))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			diff, err = decodeDiff(val)
			return err
		})
	})
	return diff, found, err
}

// Runs lists committed runs, newest first.
func (s *BadgerStore) Runs(_ context.Context) ([]slopeone.Manifest, error) {
	var runs []slopeone.Manifest
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerRunPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), "/manifest") {
				continue
			}
			var m slopeone.Manifest
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Failed to decode run manifest")
				continue
			}
			if m.Status == slopeone.RunCommitted {
				runs = append(runs, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(runs)
	return runs, nil
}

func (s *BadgerStore) prune(active string) {
	runs, err := s.Runs(context.Background())
	if err != nil {
		logging.Warn().Err(err).Str("backend", backendBadger).Msg("Failed to list runs for pruning")
		return
	}
	for _, m := range expiredRuns(runs, active, s.retain) {
		if err := s.dropRun(m.RunID); err != nil {
			logging.Warn().Err(err).Str("run_id", m.RunID).Msg("Failed to prune model run")
		}
	}
}

func (s *BadgerStore) dropRun(runID string) error {
	err := s.db.DropPrefix(
		[]byte(badgerCellRoot+runID+"/"),
		[]byte(badgerRunPrefix+runID+"/"),
	)
	if err != nil {
		return fmt.Errorf("drop run %s: %w", runID, err)
	}
	return nil
}

func (s *BadgerStore) manifest(runID string) (*slopeone.Manifest, error) {
	var m *slopeone.Manifest
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = getManifest(txn, runID)
		return err
	})
	return m, err
}

func getManifest(txn *badger.Txn, runID string) (*slopeone.Manifest, error) {
	item, err := txn.Get(manifestKey(runID))
	if err != nil {
		return nil, err
	}
	var m slopeone.Manifest
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	}); err != nil {
		return nil, fmt.Errorf("decode manifest of run %s: %w", runID, err)
	}
	return &m, nil
}
