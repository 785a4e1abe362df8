// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package backup persists the operator-editable backup settings document.
//
// # Overview
//
// The settings live in a single JSON file at a fixed path
// (backup.settings_path). A missing file yields Defaults(). Every update is
// validated before anything is written, and the write replaces the file
// atomically (temp file + rename) under a mutex.
//
// # Validation Rules
//
//	cloud_sync.folder_id           required when cloud_sync.enabled
//	notifications.email.recipient  required when notifications.email.enabled
//	retention_days                 1..365
//	compression_level              1..9
//	max_concurrent                 1..5
//	timeout_seconds                5..120
//
// Rejected updates return a *ValidationError; errors.Is(err, ErrValidation)
// holds and the file is left untouched.
//
// # Consumers
//
// The cloud sync client takes its folder, concurrency and timeout from these
// settings, and the restore orchestrator consults cloud_sync.mirror_restored
// before mirroring a restored artifact. Listeners registered with OnChange
// run after each successful update, and a backup.settings.updated event is
// published on the bus.
//
// # Usage
//
//	store, err := backup.Open(cfg.Backup.SettingsPath, bus)
//	if err != nil {
//		return err
//	}
//	store.OnChange(func(s backup.Settings) { rebuildCloudClient(s) })
//
//	next := store.Get()
//	next.RetentionDays = 30
//	if _, err := store.Update(ctx, next); errors.Is(err, backup.ErrValidation) {
//		// report field errors
//	}
package backup
