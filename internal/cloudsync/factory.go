// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
)

// Provider names.
const (
	ProviderDrive = "drive"
	ProviderS3    = "s3"
)

// Config selects and authenticates a backend.
type Config struct {
	Enabled  bool
	Provider string
	FolderID string

	// CredentialsFile falls back to GOOGLE_APPLICATION_CREDENTIALS for Drive.
	CredentialsFile string

	S3 S3Options

	MaxConcurrent int
	Timeout       time.Duration
}

// New builds the configured client. It never fails the caller: when the
// backend cannot be built it returns Disabled together with the reason,
// which callers should log.
func New(ctx context.Context, cfg Config, publisher events.Publisher) (CloudSync, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return Disabled{Reason: err}, err
	}

	logging.Info().
		Str("provider", backend.Name()).
		Str("folder_id", cfg.FolderID).
		Int("max_concurrent", cfg.MaxConcurrent).
		Dur("timeout", cfg.Timeout).
		Msg("Cloud sync initialized")

	return NewClient(backend, ClientOptions{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout,
		Publisher:     publisher,
	}), nil
}

func newBackend(ctx context.Context, cfg Config) (backend Backend, err error) {
	if !cfg.Enabled {
		return nil, errors.New("cloud sync is disabled")
	}
	if cfg.FolderID == "" {
		return nil, errors.New("cloud folder id is not configured")
	}

	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("cloud backend initialization panicked: %v", r)
		}
	}()

	switch cfg.Provider {
	case ProviderDrive, "":
		creds := cfg.CredentialsFile
		if creds == "" {
			creds = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		}
		if creds == "" {
			return nil, errors.New("drive credentials file is not configured")
		}
		if _, statErr := os.Stat(creds); statErr != nil {
			return nil, fmt.Errorf("drive credentials file: %w", statErr)
		}
		return NewDriveBackend(ctx, cfg.FolderID, DriveCredentialsFile(creds))
	case ProviderS3:
		opts := cfg.S3
		if opts.CredentialsFile == "" {
			opts.CredentialsFile = cfg.CredentialsFile
		}
		return NewS3Backend(ctx, cfg.FolderID, opts)
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", cfg.Provider)
	}
}

// Swappable is a CloudSync whose implementation can be replaced at runtime,
// for example after the backup settings change the folder.
type Swappable struct {
	mu      sync.RWMutex
	current CloudSync
}

var _ CloudSync = (*Swappable)(nil)

// NewSwappable starts with initial, or Disabled when nil.
func NewSwappable(initial CloudSync) *Swappable {
	if initial == nil {
		initial = Disabled{}
	}
	return &Swappable{current: initial}
}

// Swap replaces the implementation.
func (s *Swappable) Swap(next CloudSync) {
	if next == nil {
		next = Disabled{}
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}

// Current returns the active implementation.
func (s *Swappable) Current() CloudSync {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsInitialized implements CloudSync.
func (s *Swappable) IsInitialized() bool { return s.Current().IsInitialized() }

// Provider implements CloudSync.
func (s *Swappable) Provider() string { return s.Current().Provider() }

// Upload implements CloudSync.
func (s *Swappable) Upload(ctx context.Context, localPath, name, mimeType string) (string, error) {
	return s.Current().Upload(ctx, localPath, name, mimeType)
}

// Download implements CloudSync.
func (s *Swappable) Download(ctx context.Context, id, localPath string) error {
	return s.Current().Download(ctx, id, localPath)
}

// Delete implements CloudSync.
func (s *Swappable) Delete(ctx context.Context, id string) error {
	return s.Current().Delete(ctx, id)
}

// List implements CloudSync.
func (s *Swappable) List(ctx context.Context) ([]RemoteFile, error) {
	return s.Current().List(ctx)
}

// SearchByName implements CloudSync.
func (s *Swappable) SearchByName(ctx context.Context, query string) ([]RemoteFile, error) {
	return s.Current().SearchByName(ctx, query)
}

// SyncBackupToDrive implements CloudSync.
func (s *Swappable) SyncBackupToDrive(ctx context.Context, localPath, name string) (string, error) {
	return s.Current().SyncBackupToDrive(ctx, localPath, name)
}

// GetBackupFiles implements CloudSync.
func (s *Swappable) GetBackupFiles(ctx context.Context) ([]RemoteFile, error) {
	return s.Current().GetBackupFiles(ctx)
}

// Quota implements CloudSync.
func (s *Swappable) Quota(ctx context.Context) (*Quota, error) {
	return s.Current().Quota(ctx)
}
