// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/backhaul/internal/logging"
)

// MetricsBatch identifies one CSV snapshot being ingested.
type MetricsBatch struct {
	ID      string
	Source  string
	Columns []string
}

// RowFunc returns the next CSV row, or io.EOF when the snapshot is exhausted.
type RowFunc func() ([]string, error)

// MetricsSink stores rows of a metrics snapshot. Implementations ingest the
// whole batch atomically and return the number of rows stored.
type MetricsSink interface {
	Ingest(ctx context.Context, batch MetricsBatch, next RowFunc) (int64, error)
}

// MetricsRestorer ingests CSV snapshots into the analytics store.
type MetricsRestorer struct {
	sink MetricsSink
}

// NewMetricsRestorer creates a metrics restorer.
func NewMetricsRestorer(sink MetricsSink) *MetricsRestorer {
	return &MetricsRestorer{sink: sink}
}

// Restore streams the CSV at path into the sink.
func (r *MetricsRestorer) Restore(ctx context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is a staged or extracted artifact
	if err != nil {
		return fmt.Errorf("open metrics snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	reader, columns, err := NewMetricsReader(f)
	if err != nil {
		return err
	}

	batch := MetricsBatch{
		ID:      uuid.NewString(),
		Source:  filepath.Base(path),
		Columns: columns,
	}

	rows, err := r.sink.Ingest(ctx, batch, func() ([]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse metrics snapshot: %w", err)
		}
		return record, err
	})
	if err != nil {
		return fmt.Errorf("ingest metrics: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("snapshot", batch.Source).
		Str("batch_id", batch.ID).
		Int("columns", len(columns)).
		Int64("rows", rows).
		Msg("Metrics snapshot ingested")
	return nil
}

// NewMetricsReader reads and validates the header row. The returned reader
// enforces the header's column count on every data row.
func NewMetricsReader(r io.Reader) (*csv.Reader, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("metrics snapshot is empty: header row required")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse metrics header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, nil, fmt.Errorf("metrics header column %d is empty", i+1)
		}
		if _, dup := seen[h]; dup {
			return nil, nil, fmt.Errorf("metrics header repeats column %q", h)
		}
		seen[h] = struct{}{}
		columns[i] = h
	}

	reader.FieldsPerRecord = len(columns)
	return reader, columns, nil
}
