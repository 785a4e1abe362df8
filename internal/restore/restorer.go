// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"context"
	"fmt"
)

// Restorer applies one artifact file to its subsystem.
type Restorer interface {
	Restore(ctx context.Context, path string) error
}

// RestorerFunc adapts a function to the Restorer interface.
type RestorerFunc func(ctx context.Context, path string) error

// Restore calls f(ctx, path).
func (f RestorerFunc) Restore(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Restorers holds the strategy for each single-file kind.
type Restorers struct {
	Database Restorer
	Settings Restorer
	Metrics  Restorer
}

// For returns the restorer for kind.
func (r Restorers) For(kind Kind) (Restorer, error) {
	var restorer Restorer
	switch kind {
	case KindDatabase:
		restorer = r.Database
	case KindSettings:
		restorer = r.Settings
	case KindMetrics:
		restorer = r.Metrics
	default:
		return nil, fmt.Errorf("%w for kind %q", ErrNoRestorer, kind)
	}
	if restorer == nil {
		return nil, fmt.Errorf("%w for kind %q", ErrNoRestorer, kind)
	}
	return restorer, nil
}

// run restores path with the restorer for kind and wraps any failure in a
// *RestoreError naming the subsystem and bundle member.
func (r Restorers) run(ctx context.Context, kind Kind, path, member string) error {
	restorer, err := r.For(kind)
	if err != nil {
		return &RestoreError{Subsystem: kind, Member: member, Cause: err}
	}
	if err := restorer.Restore(ctx, path); err != nil {
		return &RestoreError{Subsystem: kind, Member: member, Cause: err}
	}
	return nil
}
