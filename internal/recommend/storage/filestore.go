// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

// Format is the on-disk encoding of FileStore shards.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatMsgpack Format = "msgpack"
)

const (
	manifestFile = "manifest.json"
	currentFile  = "CURRENT"
	backendFile  = "file"
)

// csvHeader is the first record of every CSV shard.
var csvHeader = []string{"item_i", "item_j", "avg_difference"}

// FileOptions configures a FileStore.
type FileOptions struct {
	// Format selects the shard encoding. Defaults to FormatCSV.
	Format Format
	// RetainRuns is how many committed runs to keep. Values below 1 keep one.
	RetainRuns int
}

// shardRecord is what the manifest file remembers about one written shard.
type shardRecord struct {
	File     string `json:"file"`
	Cells    int    `json:"cells"`
	Checksum string `json:"sha256"`
}

// runFile is the content of <run>/manifest.json.
type runFile struct {
	Manifest slopeone.Manifest   `json:"manifest"`
	Format   Format              `json:"format"`
	Shards   map[int]shardRecord `json:"shards,omitempty"`
}

// FileStore persists runs as a directory of shard files per run.
type FileStore struct {
	dir    string
	format Format
	retain int

	mu      sync.Mutex
	pending map[string]*runFile
}

var _ slopeone.ModelStore = (*FileStore)(nil)

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string, opts FileOptions) (*FileStore, error) {
	format := opts.Format
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatMsgpack {
		return nil, &slopeone.ConfigurationError{Field: "model.format", Reason: fmt.Sprintf("unknown shard format %q", format)}
	}
	retain := opts.RetainRuns
	if retain < 1 {
		retain = 1
	}

	if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &FileStore{
		dir:     dir,
		format:  format,
		retain:  retain,
		pending: make(map[string]*runFile),
	}, nil
}

// BeginRun creates the run directory with a pending manifest.
func (s *FileStore) BeginRun(_ context.Context, m *slopeone.Manifest) (err error) {
	defer observe(backendFile, "begin_run", time.Now(), &err)

	if err := validRunID(m.RunID); err != nil {
		return err
	}
	runDir := s.runDir(m.RunID)
	if err := os.Mkdir(runDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return fmt.Errorf("create run directory: %w", err)
	}

	rf := &runFile{Manifest: *m, Format: s.format, Shards: make(map[int]shardRecord)}
	rf.Manifest.Status = slopeone.RunPending
	if err := s.writeRunFile(rf); err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[m.RunID] = rf
	s.mu.Unlock()
	return nil
}

// WriteShard writes one partition's shard. Shards of one run may be written
// concurrently.
func (s *FileStore) WriteShard(ctx context.Context, sh *slopeone.Shard) (err error) {
	defer observe(backendFile, "write_shard", time.Now(), &err)

	s.mu.Lock()
	rf, ok := s.pending[sh.RunID]
	var total int
	if ok {
		total = len(rf.Manifest.Partitions)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("file store: run %s is not pending", sh.RunID)
	}

	name := shardName(sh.Partition, total, s.format)
	path := filepath.Join(s.runDir(sh.RunID), name)
	sum := sha256.New()

	err = writeFileAtomic(path, func(w io.Writer) error {
		w = io.MultiWriter(w, sum)
		if s.format == FormatMsgpack {
			return encodeMsgpackShard(ctx, w, sh)
		}
		return encodeCSVShard(ctx, w, sh)
	})
	if err != nil {
		return fmt.Errorf("write shard %s: %w", sh.Partition, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rf, ok = s.pending[sh.RunID]
	if !ok {
		return fmt.Errorf("file store: run %s was aborted while writing shard %s", sh.RunID, sh.Partition)
	}
	rf.Shards[sh.Partition.Index] = shardRecord{
		File:     name,
		Cells:    sh.CellCount(),
		Checksum: hex.EncodeToString(sum.Sum(nil)),
	}
	return nil
}

// CommitRun marks the run committed, points CURRENT at it and prunes old runs.
func (s *FileStore) CommitRun(_ context.Context, runID string) (err error) {
	defer observe(backendFile, "commit_run", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	rf, ok := s.pending[runID]
	if !ok {
		return fmt.Errorf("file store: run %s is not pending", runID)
	}
	if got, want := len(rf.Shards), len(rf.Manifest.Partitions); got != want {
		return fmt.Errorf("file store: run %s has %d of %d shards", runID, got, want)
	}

	rf.Manifest.Status = slopeone.RunCommitted
	rf.Manifest.CommittedAt = time.Now().UTC()
	if err := s.writeRunFile(rf); err != nil {
		return err
	}
	err = writeFileAtomic(filepath.Join(s.dir, currentFile), func(w io.Writer) error {
		_, err := io.WriteString(w, runID+"\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", currentFile, err)
	}
	delete(s.pending, runID)

	s.prune(runID)
	return nil
}

// AbortRun removes a pending run's directory. Unknown runs are ignored.
func (s *FileStore) AbortRun(_ context.Context, runID string) (err error) {
	defer observe(backendFile, "abort_run", time.Now(), &err)

	if err := validRunID(runID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pending, runID)
	s.mu.Unlock()

	rf, err := s.readRunFile(runID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && rf.Manifest.Status == slopeone.RunCommitted {
		return fmt.Errorf("file store: run %s is committed", runID)
	}
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		return fmt.Errorf("remove run %s: %w", runID, err)
	}
	return nil
}

// ActiveManifest returns the run named by CURRENT.
func (s *FileStore) ActiveManifest(_ context.Context) (*slopeone.Manifest, error) {
	runID, err := s.currentRun()
	if err != nil {
		return nil, err
	}
	rf, err := s.readRunFile(runID)
	if err != nil {
		return nil, fmt.Errorf("read manifest of run %s: %w", runID, err)
	}
	if rf.Manifest.Status != slopeone.RunCommitted {
		return nil, fmt.Errorf("file store: %s points at uncommitted run %s", currentFile, runID)
	}
	m := rf.Manifest
	return &m, nil
}

// ReadShard streams one shard and verifies its checksum at the end.
func (s *FileStore) ReadShard(ctx context.Context, runID string, p slopeone.Partition, fn func(slopeone.Cell) error) (err error) {
	defer observe(backendFile, "read_shard", time.Now(), &err)

	if err := validRunID(runID); err != nil {
		return err
	}
	rf, err := s.readRunFile(runID)
	if err != nil {
		return fmt.Errorf("read manifest of run %s: %w", runID, err)
	}
	rec, ok := rf.Shards[p.Index]
	if !ok {
		return fmt.Errorf("%w: run %s has no shard %d", slopeone.ErrIncompleteRun, runID, p.Index)
	}

	f, err := os.Open(filepath.Join(s.runDir(runID), rec.File)) //nolint:gosec // path is built from a validated run id
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	sum := sha256.New()
	r := io.TeeReader(bufio.NewReader(f), sum)

	cells := 0
	count := func(c slopeone.Cell) error {
		cells++
		return fn(c)
	}
	if rf.Format == FormatMsgpack {
		err = decodeMsgpackShard(ctx, r, count)
	} else {
		err = decodeCSVShard(ctx, r, count)
	}
	if err != nil {
		return fmt.Errorf("decode shard %s: %w", rec.File, err)
	}
	// drain anything the decoder did not consume so the checksum covers the file
	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("read shard %s: %w", rec.File, err)
	}

	if got := hex.EncodeToString(sum.Sum(nil)); got != rec.Checksum {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", rec.File, rec.Checksum, got)
	}
	if cells != rec.Cells {
		return fmt.Errorf("%w: shard %s has %d cells, manifest says %d", slopeone.ErrIncompleteRun, rec.File, cells, rec.Cells)
	}
	return nil
}

// Runs lists committed runs, newest first.
func (s *FileStore) Runs(_ context.Context) ([]slopeone.Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var runs []slopeone.Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rf, err := s.readRunFile(entry.Name())
		if err != nil {
			continue
		}
		if rf.Manifest.Status == slopeone.RunCommitted {
			runs = append(runs, rf.Manifest)
		}
	}
	sortNewestFirst(runs)
	return runs, nil
}

// prune removes committed runs beyond the retention limit. Failures are
// logged; the commit already succeeded. Caller holds s.mu.
func (s *FileStore) prune(active string) {
	runs, err := s.Runs(context.Background())
	if err != nil {
		logging.Warn().Err(err).Str("backend", backendFile).Msg("Failed to list runs for pruning")
		return
	}
	for _, m := range expiredRuns(runs, active, s.retain) {
		if err := os.RemoveAll(s.runDir(m.RunID)); err != nil {
			logging.Warn().Err(err).Str("run_id", m.RunID).Msg("Failed to prune model run")
			continue
		}
		logging.Debug().Str("run_id", m.RunID).Str("backend", backendFile).Msg("Pruned model run")
	}
}

func (s *FileStore) currentRun() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile)) //nolint:gosec // fixed file name
	if errors.Is(err, fs.ErrNotExist) {
		return "", slopeone.ErrNoModel
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", currentFile, err)
	}
	runID := strings.TrimSpace(string(data))
	if err := validRunID(runID); err != nil {
		return "", fmt.Errorf("%s: %w", currentFile, err)
	}
	return runID, nil
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.dir, runID)
}

func (s *FileStore) writeRunFile(rf *runFile) error {
	path := filepath.Join(s.runDir(rf.Manifest.RunID), manifestFile)
	err := writeFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rf)
	})
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *FileStore) readRunFile(runID string) (*runFile, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), manifestFile)) //nolint:gosec // path is built from a validated run id
	if err != nil {
		return nil, err
	}
	var rf runFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &rf, nil
}

// shardName returns model-<i>-of-<T>.<ext> where T is the run's partition count.
func shardName(p slopeone.Partition, total int, format Format) string {
	return fmt.Sprintf("model-%d-of-%d.%s", p.Index, total, format)
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()           //nolint:errcheck // already failing
			_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeCSVShard(ctx context.Context, w io.Writer, sh *slopeone.Shard) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	record := make([]string, 3)
	n := 0
	err := sh.Cells(func(c slopeone.Cell) error {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		record[0] = strconv.Itoa(c.ItemI)
		record[1] = strconv.Itoa(c.ItemJ)
		record[2] = strconv.FormatFloat(c.Difference, 'g', -1, 64)
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func decodeCSVShard(ctx context.Context, r io.Reader, fn func(slopeone.Cell) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return fmt.Errorf("unexpected header column %d: %q", i, header[i])
		}
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var c slopeone.Cell
		if c.ItemI, err = strconv.Atoi(record[0]); err != nil {
			return fmt.Errorf("line %d: item_i: %w", line, err)
		}
		if c.ItemJ, err = strconv.Atoi(record[1]); err != nil {
			return fmt.Errorf("line %d: item_j: %w", line, err)
		}
		if c.Difference, err = strconv.ParseFloat(record[2], 64); err != nil {
			return fmt.Errorf("line %d: avg_difference: %w", line, err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

// msgpackShardHeader precedes the cell stream of a MessagePack shard.
type msgpackShardHeader struct {
	RunID     string             `msgpack:"run_id"`
	Partition slopeone.Partition `msgpack:"partition"`
	Cells     int                `msgpack:"cells"`
}

func encodeMsgpackShard(ctx context.Context, w io.Writer, sh *slopeone.Shard) error {
	enc := msgpack.NewEncoder(w)
	hdr := msgpackShardHeader{RunID: sh.RunID, Partition: sh.Partition, Cells: sh.CellCount()}
	if err := enc.Encode(&hdr); err != nil {
		return err
	}
	n := 0
	return sh.Cells(func(c slopeone.Cell) error {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return enc.Encode(&c)
	})
}

func decodeMsgpackShard(ctx context.Context, r io.Reader, fn func(slopeone.Cell) error) error {
	dec := msgpack.NewDecoder(r)
	var hdr msgpackShardHeader
	if err := dec.Decode(&hdr); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	for n := 0; n < hdr.Cells; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var c slopeone.Cell
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("cell %d: %w", n, err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}
