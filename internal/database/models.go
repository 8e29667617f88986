// Slopeone - Collaborative Filtering Rating Prediction Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slopeone

package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/slopeone/internal/logging"
	"github.com/tomtom215/slopeone/internal/metrics"
	"github.com/tomtom215/slopeone/internal/recommend/slopeone"
)

const backendName = "duckdb"

// observe records a model store operation's latency and outcome.
func observe(op string, started time.Time, err *error) {
	metrics.RecordStoreOperation(backendName, op, time.Since(started), *err)
}

// withTx runs fn in a transaction, retrying on write conflicts.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnConflict(func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("Failed to rollback transaction")
			}
		}()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// BeginRun registers a pending run with its universe and partitions.
func (db *DB) BeginRun(ctx context.Context, m *slopeone.Manifest) (err error) {
	defer observe("begin_run", time.Now(), &err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_runs WHERE run_id = ?`, m.RunID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check run %s: %w", m.RunID, err)
		}
		if exists > 0 {
			return fmt.Errorf("run %s already exists", m.RunID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_runs (run_id, status, created_at) VALUES (?, ?, ?)`,
			m.RunID, string(slopeone.RunPending), m.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", m.RunID, err)
		}

		itemStmt, err := tx.PrepareContext(ctx, `INSERT INTO model_items (run_id, position, item_id) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare item insert: %w", err)
		}
		defer closeWithLog(itemStmt, "prepared statement")
		for pos, item := range m.Items {
			if _, err := itemStmt.ExecContext(ctx, m.RunID, int64(pos), int64(item)); err != nil {
				return fmt.Errorf("failed to insert item %d: %w", item, err)
			}
		}

		for _, p := range m.Partitions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO model_partitions (run_id, partition_index, start_idx, end_idx) VALUES (?, ?, ?, ?)`,
				m.RunID, int64(p.Index), int64(p.Start), int64(p.End)); err != nil {
				return fmt.Errorf("failed to insert partition %s: %w", p, err)
			}
		}
		return nil
	})
}

// WriteShard bulk-loads the cells of one partition through the DuckDB
// appender and then records the partition's cell count. Rewriting a
// partition replaces its cells.
func (db *DB) WriteShard(ctx context.Context, s *slopeone.Shard) (err error) {
	defer observe("write_shard", time.Now(), &err)

	var status string
	var start, end int64
	err = db.conn.QueryRowContext(ctx, `
		SELECT r.status, p.start_idx, p.end_idx
		FROM model_runs r JOIN model_partitions p ON p.run_id = r.run_id
		WHERE r.run_id = ? AND p.partition_index = ?`,
		s.RunID, int64(s.Partition.Index)).Scan(&status, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s has no partition %d", s.RunID, s.Partition.Index)
	}
	if err != nil {
		return fmt.Errorf("failed to look up partition: %w", err)
	}
	if status != string(slopeone.RunPending) {
		return fmt.Errorf("run %s is %s, not pending", s.RunID, status)
	}
	if int(start) != s.Partition.Start || int(end) != s.Partition.End {
		return fmt.Errorf("%w: shard %s does not match registered rows [%d,%d)",
			slopeone.ErrPartitionInvariant, s.Partition, start, end)
	}

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM model_cells WHERE run_id = ? AND partition_index = ?`,
		s.RunID, int64(s.Partition.Index)); err != nil {
		return fmt.Errorf("failed to clear partition %s: %w", s.Partition, err)
	}

	if err := db.appendCells(ctx, s); err != nil {
		return err
	}

	return retryOnConflict(func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE model_partitions SET cells = ? WHERE run_id = ? AND partition_index = ?`,
			int64(s.CellCount()), s.RunID, int64(s.Partition.Index))
		return err
	})
}

// appendCells streams a shard into model_cells on a dedicated connection.
func (db *DB) appendCells(ctx context.Context, s *slopeone.Shard) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer closeWithLog(conn, "connection")

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dc, "", "model_cells")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}

		partition := int64(s.Partition.Index)
		err = s.Cells(func(c slopeone.Cell) error {
			return appender.AppendRow(s.RunID, partition, int64(c.ItemI), int64(c.ItemJ), c.Difference)
		})
		if err != nil {
			closeQuietly(appender)
			return fmt.Errorf("failed to append shard %s: %w", s.Partition, err)
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("failed to flush shard %s: %w", s.Partition, err)
		}
		return nil
	})
}

// CommitRun marks a fully written run committed, which makes it active, and
// prunes committed runs beyond the retention count.
func (db *DB) CommitRun(ctx context.Context, runID string) (err error) {
	defer observe("commit_run", time.Now(), &err)

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM model_runs WHERE run_id = ?`, runID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %s was never started", runID)
		}
		if err != nil {
			return fmt.Errorf("failed to read run %s: %w", runID, err)
		}
		if status != string(slopeone.RunPending) {
			return fmt.Errorf("run %s is %s, not pending", runID, status)
		}

		var missing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM model_partitions WHERE run_id = ? AND cells IS NULL`, runID).Scan(&missing); err != nil {
			return fmt.Errorf("failed to count shards: %w", err)
		}
		if missing > 0 {
			return fmt.Errorf("%w: run %s is missing %d shards", slopeone.ErrIncompleteRun, runID, missing)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE model_runs SET status = ?, committed_at = ? WHERE run_id = ?`,
			string(slopeone.RunCommitted), time.Now().UTC(), runID)
		return err
	})
	if err != nil {
		return err
	}

	if err := db.pruneRuns(ctx); err != nil {
		logging.Warn().Err(err).Str("run_id", runID).Msg("Failed to prune old model runs")
	}
	return nil
}

// AbortRun deletes a pending run. Unknown runs are ignored; committed runs
// are refused.
func (db *DB) AbortRun(ctx context.Context, runID string) (err error) {
	defer observe("abort_run", time.Now(), &err)

	var status string
	err = db.conn.QueryRowContext(ctx, `SELECT status FROM model_runs WHERE run_id = ?`, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if status == string(slopeone.RunCommitted) {
		return fmt.Errorf("run %s is committed and cannot be aborted", runID)
	}
	return db.deleteRun(ctx, runID)
}

func (db *DB) deleteRun(ctx context.Context, runID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM model_cells WHERE run_id = ?`,
			`DELETE FROM model_partitions WHERE run_id = ?`,
			`DELETE FROM model_items WHERE run_id = ?`,
			`DELETE FROM model_runs WHERE run_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, runID); err != nil {
				return fmt.Errorf("failed to delete run %s: %w", runID, err)
			}
		}
		return nil
	})
}

// pruneRuns deletes committed runs older than the newest db.retain.
func (db *DB) pruneRuns(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id FROM model_runs
		WHERE status = ?
		ORDER BY committed_at DESC, run_id DESC
		OFFSET ?`, string(slopeone.RunCommitted), int64(db.retain))
	if err != nil {
		return fmt.Errorf("failed to list expired runs: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			closeWithLog(rows, "rows")
			return fmt.Errorf("failed to scan run id: %w", err)
		}
		expired = append(expired, id)
	}
	closeWithLog(rows, "rows")
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range expired {
		if err := db.deleteRun(ctx, id); err != nil {
			return err
		}
		logging.Debug().Str("run_id", id).Msg("Pruned model run")
	}
	return nil
}

// ActiveManifest returns the most recently committed run.
func (db *DB) ActiveManifest(ctx context.Context) (m *slopeone.Manifest, err error) {
	defer observe("active_manifest", time.Now(), &err)

	var runID string
	err = db.conn.QueryRowContext(ctx, `
		SELECT run_id FROM model_runs
		WHERE status = ?
		ORDER BY committed_at DESC, run_id DESC
		LIMIT 1`, string(slopeone.RunCommitted)).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, slopeone.ErrNoModel
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active run: %w", err)
	}
	return db.manifest(ctx, runID)
}

// Runs returns every committed run, newest first.
func (db *DB) Runs(ctx context.Context) ([]slopeone.Manifest, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id FROM model_runs WHERE status = ?
		ORDER BY committed_at DESC, run_id DESC`, string(slopeone.RunCommitted))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			closeWithLog(rows, "rows")
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	closeWithLog(rows, "rows")
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]slopeone.Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := db.manifest(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (db *DB) manifest(ctx context.Context, runID string) (*slopeone.Manifest, error) {
	m := &slopeone.Manifest{RunID: runID}

	var status string
	var committedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT status, created_at, committed_at FROM model_runs WHERE run_id = ?`, runID).
		Scan(&status, &m.CreatedAt, &committedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	m.Status = slopeone.RunStatus(status)
	if committedAt.Valid {
		m.CommittedAt = committedAt.Time
	}

	itemRows, err := db.conn.QueryContext(ctx,
		`SELECT item_id FROM model_items WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe of run %s: %w", runID, err)
	}
	defer closeWithLog(itemRows, "rows")
	for itemRows.Next() {
		var item int64
		if err := itemRows.Scan(&item); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		m.Items = append(m.Items, int(item))
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	partRows, err := db.conn.QueryContext(ctx,
		`SELECT partition_index, start_idx, end_idx FROM model_partitions WHERE run_id = ? ORDER BY partition_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions of run %s: %w", runID, err)
	}
	defer closeWithLog(partRows, "rows")
	for partRows.Next() {
		var idx, start, end int64
		if err := partRows.Scan(&idx, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		m.Partitions = append(m.Partitions, slopeone.Partition{Index: int(idx), Start: int(start), End: int(end)})
	}
	return m, partRows.Err()
}

// ReadShard streams the cells of one partition of runID and checks the
// count against what the writer recorded.
func (db *DB) ReadShard(ctx context.Context, runID string, p slopeone.Partition, fn func(slopeone.Cell) error) (err error) {
	defer observe("read_shard", time.Now(), &err)

	var want sql.NullInt64
	err = db.conn.QueryRowContext(ctx,
		`SELECT cells FROM model_partitions WHERE run_id = ? AND partition_index = ?`,
		runID, int64(p.Index)).Scan(&want)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !want.Valid) {
		return fmt.Errorf("%w: run %s has no shard %s", slopeone.ErrIncompleteRun, runID, p)
	}
	if err != nil {
		return fmt.Errorf("failed to read shard marker: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT item_i, item_j, avg_difference FROM model_cells
		WHERE run_id = ? AND partition_index = ?
		ORDER BY item_i, item_j`, runID, int64(p.Index))
	if err != nil {
		return fmt.Errorf("failed to query shard %s: %w", p, err)
	}
	defer closeWithLog(rows, "rows")

	var n int64
	for rows.Next() {
		var i, j int64
		var diff float64
		if err := rows.Scan(&i, &j, &diff); err != nil {
			return fmt.Errorf("failed to scan cell: %w", err)
		}
		if err := fn(slopeone.Cell{ItemI: int(i), ItemJ: int(j), Difference: diff}); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n != want.Int64 {
		return fmt.Errorf("%w: shard %s of run %s has %d cells, expected %d",
			slopeone.ErrIncompleteRun, p, runID, n, want.Int64)
	}
	return nil
}

const fetchCellQuery = `SELECT avg_difference FROM model_cells WHERE run_id = ? AND item_i = ? AND item_j = ?`

// FetchCell answers a single lazy model lookup.
func (db *DB) FetchCell(ctx context.Context, runID string, itemI, itemJ int) (diff float64, found bool, err error) {
	defer observe("fetch_cell", time.Now(), &err)

	stmt, err := db.prepared(ctx, fetchCellQuery)
	if err != nil {
		return 0, false, err
	}
	err = stmt.QueryRowContext(ctx, runID, int64(itemI), int64(itemJ)).Scan(&diff)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch cell (%d, %d): %w", itemI, itemJ, err)
	}
	return diff, true, nil
}
