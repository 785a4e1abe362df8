// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
)

// Store reads and writes the settings document.
type Store struct {
	path      string
	publisher events.Publisher

	// updateMu serializes Update end to end, so listeners observe updates
	// in the order they were written.
	updateMu sync.Mutex

	mu        sync.RWMutex
	current   Settings
	listeners []func(Settings)
}

// Open loads the document at path. A missing file yields Defaults(); a
// malformed or invalid file is an error. publisher may be nil.
func Open(path string, publisher events.Publisher) (*Store, error) {
	if path == "" {
		return nil, errors.New("backup settings path is required")
	}
	s := &Store{path: path, publisher: publisher}

	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = settings
	return s, nil
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Info().Str("path", s.path).Msg("No backup settings file, using defaults")
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read backup settings: %w", err)
	}

	// Fields absent from the file keep their defaults.
	settings := Defaults()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse backup settings %s: %w", s.path, err)
	}
	if err := Validate(settings); err != nil {
		return Settings{}, fmt.Errorf("backup settings %s: %w", s.path, err)
	}
	return settings, nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to run after each successful Update. fn runs while
// the update is still in progress and must not call Update.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update validates next and persists it. Nothing is written when validation
// fails. Concurrent updates are applied, and their listeners run, one at a time.
func (s *Store) Update(ctx context.Context, next Settings) (Settings, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if err := Validate(next); err != nil {
		return Settings{}, err
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return Settings{}, fmt.Errorf("encode backup settings: %w", err)
	}

	s.mu.Lock()
	if err := writeAtomic(s.path, data); err != nil {
		s.mu.Unlock()
		return Settings{}, fmt.Errorf("write backup settings: %w", err)
	}
	s.current = next
	listeners := append([]func(Settings){}, s.listeners...)
	s.mu.Unlock()

	logging.Ctx(ctx).Info().
		Bool("cloud_sync", next.CloudSync.Enabled).
		Int("retention_days", next.RetentionDays).
		Msg("Backup settings updated")

	for _, fn := range listeners {
		fn(next)
	}

	if s.publisher != nil {
		payload := events.BackupSettingsUpdatedPayload{
			CloudSyncEnabled: next.CloudSync.Enabled,
			FolderID:         next.CloudSync.FolderID,
		}
		if err := s.publisher.Publish(ctx, events.TopicBackupSettingsUpdated, payload); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish backup.settings.updated")
		}
	}
	return next, nil
}

// writeAtomic replaces path with data via a synced temp file and rename.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".backup-settings-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(0o600); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
