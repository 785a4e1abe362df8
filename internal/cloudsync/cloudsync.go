// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package cloudsync mirrors backup artifacts to a folder in a remote object
// store. Every operation is scoped to one configured folder.
//
// The remote is the source of truth: nothing is cached between calls, and
// remote errors are returned as-is (wrapped with the operation name) with no
// retry. Deduplication in SyncBackupToDrive is by exact file name only; two
// artifacts with the same content under different names are both uploaded.
//
// When the backend cannot be built (sync disabled, missing credentials) the
// factory returns a Disabled client whose every operation fails with
// ErrClientNotInitialized, so callers depend on the CloudSync interface and
// never on a nil check.
package cloudsync

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/backhaul/internal/restore"
)

var (
	// ErrClientNotInitialized is returned by every operation of a client
	// whose backend could not be initialized.
	ErrClientNotInitialized = errors.New("cloud sync client not initialized")

	// ErrUploadFailed wraps transport and API failures during upload.
	ErrUploadFailed = errors.New("cloud upload failed")

	// ErrTransferStalled is returned when an upload or download moves no
	// bytes for the per-call timeout.
	ErrTransferStalled = errors.New("cloud transfer stalled")

	// ErrInvalidRemoteID is returned for ids outside the configured folder.
	ErrInvalidRemoteID = errors.New("invalid remote file id")
)

// BackupMimeTypes are the MIME types GetBackupFiles treats as backups
// regardless of file name.
var BackupMimeTypes = []string{
	"application/gzip",
	"application/x-gzip",
	"application/x-tar",
	"application/sql",
}

// RemoteFile describes one file in the remote folder.
type RemoteFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Quota reports remote storage usage. Limit is zero when the remote has no limit.
type Quota struct {
	Limit int64 `json:"limit"`
	Usage int64 `json:"usage"`
}

// CloudSync is the folder-scoped cloud client.
type CloudSync interface {
	IsInitialized() bool
	Provider() string
	Upload(ctx context.Context, localPath, name, mimeType string) (string, error)
	Download(ctx context.Context, id, localPath string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]RemoteFile, error)
	SearchByName(ctx context.Context, query string) ([]RemoteFile, error)
	SyncBackupToDrive(ctx context.Context, localPath, name string) (string, error)
	GetBackupFiles(ctx context.Context) ([]RemoteFile, error)
	Quota(ctx context.Context) (*Quota, error)
}

// Backend is a remote object store bound to one folder.
type Backend interface {
	// Name identifies the provider ("drive", "s3").
	Name() string

	// Create stores body as a new file and returns its id.
	Create(ctx context.Context, name, mimeType string, body io.Reader, size int64) (string, error)

	// Open returns the content of a file. The caller closes the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	Delete(ctx context.Context, id string) error

	// List returns every file in the folder, in any order.
	List(ctx context.Context) ([]RemoteFile, error)

	// Search returns folder files whose name contains query.
	Search(ctx context.Context, query string) ([]RemoteFile, error)

	Quota(ctx context.Context) (*Quota, error)
}

// MimeTypeFor returns the MIME type uploaded for name.
func MimeTypeFor(name string) string {
	if kind, err := restore.Classify(name); err == nil {
		return kind.ContentType()
	}
	return "application/octet-stream"
}

// IsBackupFile reports whether f counts as a backup artifact.
func IsBackupFile(f RemoteFile) bool {
	if strings.Contains(f.Name, "backup") {
		return true
	}
	for _, mt := range BackupMimeTypes {
		if f.MimeType == mt {
			return true
		}
	}
	return false
}
