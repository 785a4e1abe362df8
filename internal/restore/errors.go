// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat indicates the filename suffix is not a recognized backup kind.
	ErrUnsupportedFormat = errors.New("unsupported backup format")

	// ErrStagingUnavailable indicates the staging directory could not be created or written.
	ErrStagingUnavailable = errors.New("staging directory unavailable")

	// ErrRestoreFailed is matched by every *RestoreError.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrInvalidFilename indicates an upload name that cannot be staged safely.
	ErrInvalidFilename = errors.New("invalid backup filename")

	// ErrArtifactNotFound indicates no staged artifact matches the requested name.
	ErrArtifactNotFound = errors.New("staged artifact not found")

	// ErrUnsafeArchive indicates a bundle entry that escapes the scratch directory
	// or exceeds the extraction limits.
	ErrUnsafeArchive = errors.New("unsafe archive")

	// ErrUnrecognizedMember indicates a bundle member rejected by a strict policy.
	ErrUnrecognizedMember = errors.New("unrecognized bundle member")

	// ErrNoRestorer indicates no restorer is configured for a kind.
	ErrNoRestorer = errors.New("no restorer configured")
)

// RestoreError reports which subsystem failed and why.
// errors.Is(err, ErrRestoreFailed) holds for every RestoreError.
type RestoreError struct {
	// Subsystem is the kind whose restorer failed. KindFull denotes a
	// bundle-level failure (extraction or policy).
	Subsystem Kind

	// Member is the bundle member being restored, empty for single artifacts.
	Member string

	// Cause is the underlying error.
	Cause error
}

func (e *RestoreError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("restore failed: %s subsystem, member %s: %v", e.Subsystem, e.Member, e.Cause)
	}
	return fmt.Sprintf("restore failed: %s subsystem: %v", e.Subsystem, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RestoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrRestoreFailed.
func (e *RestoreError) Is(target error) bool {
	return target == ErrRestoreFailed
}
