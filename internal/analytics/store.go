// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package analytics is the DuckDB store that metrics snapshots are restored
// into. Each CSV row is stored in long format, one row per cell, so snapshots
// with arbitrary headers share a single table.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver registration
	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/restore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metric_batches (
	batch_id     TEXT PRIMARY KEY,
	source_file  TEXT NOT NULL,
	columns      TEXT NOT NULL, -- JSON array
	row_count    BIGINT NOT NULL,
	ingested_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metric_cells (
	batch_id      TEXT NOT NULL,
	source_file   TEXT NOT NULL,
	row_index     BIGINT NOT NULL,
	column_name   TEXT NOT NULL,
	value         TEXT,
	numeric_value DOUBLE,
	ingested_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metric_cells_batch ON metric_cells(batch_id)`,
}

// Options configures the DuckDB connection.
type Options struct {
	// Path is the database file. Empty or ":memory:" opens an in-memory database.
	Path      string
	MaxMemory string
	Threads   int
}

// Batch summarizes one ingested snapshot.
type Batch struct {
	ID         string    `json:"id"`
	SourceFile string    `json:"sourceFile"`
	Columns    []string  `json:"columns"`
	Rows       int64     `json:"rows"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// Store ingests metrics snapshots into DuckDB.
type Store struct {
	conn      *sql.DB
	publisher events.Publisher
}

// Open opens the database and creates the schema. publisher may be nil.
func Open(opts Options, publisher events.Publisher) (*Store, error) {
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := opts.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, maxMemory)
	if path != ":memory:" {
		connStr += "&access_mode=read_write"
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to create analytics schema: %w", err)
		}
	}

	logging.Info().
		Str("path", path).
		Int("threads", threads).
		Str("max_memory", maxMemory).
		Msg("Analytics store opened")

	return &Store{conn: conn, publisher: publisher}, nil
}

// Ingest stores every row of batch in one transaction. Nothing is stored if
// any row fails to read or insert.
func (s *Store) Ingest(ctx context.Context, batch restore.MetricsBatch, next restore.RowFunc) (rows int64, err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Msg("Transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_cells
		(batch_id, source_file, row_index, column_name, value, numeric_value, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // closed with the transaction

	now := time.Now().UTC()
	for {
		record, readErr := next()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("row %d: %w", rows+1, readErr)
		}

		for i, column := range batch.Columns {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			if _, err = stmt.ExecContext(ctx,
				batch.ID, batch.Source, rows, column, cell, numericValue(cell), now,
			); err != nil {
				return 0, fmt.Errorf("insert row %d column %q: %w", rows+1, column, err)
			}
		}
		rows++
	}

	columns, err := json.Marshal(batch.Columns)
	if err != nil {
		return 0, fmt.Errorf("encode columns: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO metric_batches (batch_id, source_file, columns, row_count, ingested_at) VALUES (?, ?, ?, ?, ?)`,
		batch.ID, batch.Source, string(columns), rows, now,
	); err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.publisher != nil {
		payload := events.MetricsIngestedPayload{
			BatchID: batch.ID,
			Source:  batch.Source,
			Columns: batch.Columns,
			Rows:    rows,
		}
		if pubErr := s.publisher.Publish(ctx, events.TopicMetricsIngested, payload); pubErr != nil {
			logging.Ctx(ctx).Warn().Err(pubErr).Msg("Failed to publish metrics.ingested")
		}
	}
	return rows, nil
}

// Batches lists ingested snapshots, newest first.
func (s *Store) Batches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT batch_id, source_file, columns, row_count, ingested_at
		FROM metric_batches ORDER BY ingested_at DESC, batch_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	batches := []Batch{}
	for rows.Next() {
		var b Batch
		var columns string
		if err := rows.Scan(&b.ID, &b.SourceFile, &columns, &b.Rows, &b.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(columns), &b.Columns); err != nil {
			return nil, fmt.Errorf("failed to decode columns of %s: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// CellCount returns the number of stored cells for a batch.
func (s *Store) CellCount(ctx context.Context, batchID string) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metric_cells WHERE batch_id = ?`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cells: %w", err)
	}
	return n, nil
}

// ColumnSum sums the numeric values of one column in a batch. Non-numeric
// cells are ignored.
func (s *Store) ColumnSum(ctx context.Context, batchID, column string) (float64, error) {
	var sum sql.NullFloat64
	err := s.conn.QueryRowContext(ctx,
		`SELECT SUM(numeric_value) FROM metric_cells WHERE batch_id = ? AND column_name = ?`,
		batchID, column).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum column: %w", err)
	}
	return sum.Float64, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func numericValue(cell string) interface{} {
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return nil
	}
	return f
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close analytics database")
	}
}
