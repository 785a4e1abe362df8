// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package events carries restore and sync lifecycle events.
//
// Events are published on an in-process Watermill GoChannel bus. Consumers
// in the same process (the websocket hub) subscribe to the bus directly.
// When a NATS URL is configured, every event is also forwarded to
// "<prefix>.<topic>" on NATS through a circuit breaker so that an outage of
// the broker never blocks a restore.
//
// Every message payload is a JSON Envelope whose Payload holds one of the
// typed payloads declared in this file.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Topics.
const (
	TopicRestoreCompleted      = "restore.completed"
	TopicRestoreFailed         = "restore.failed"
	TopicSettingsApplied       = "settings.applied"
	TopicMetricsIngested       = "metrics.ingested"
	TopicCloudSynced           = "cloud.synced"
	TopicBackupSettingsUpdated = "backup.settings.updated"
)

// AllTopics lists every topic published by the service.
var AllTopics = []string{
	TopicRestoreCompleted,
	TopicRestoreFailed,
	TopicSettingsApplied,
	TopicMetricsIngested,
	TopicCloudSynced,
	TopicBackupSettingsUpdated,
}

// Publisher publishes a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Envelope is the wire format of every event.
type Envelope struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// RestorePayload accompanies restore.completed and restore.failed.
type RestorePayload struct {
	RestoreID    string `json:"restoreId"`
	FileName     string `json:"fileName"`
	Kind         string `json:"kind"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Error        string `json:"error,omitempty"`
	Subsystem    string `json:"subsystem,omitempty"`
	Member       string `json:"member,omitempty"`
	Processed    int    `json:"processed"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	NotAttempted int    `json:"notAttempted"`
	DurationMS   int64  `json:"durationMs"`
	RemoteID     string `json:"remoteId,omitempty"`
}

// SettingsAppliedPayload accompanies settings.applied.
type SettingsAppliedPayload struct {
	Source string   `json:"source"`
	Keys   []string `json:"keys"`
}

// MetricsIngestedPayload accompanies metrics.ingested.
type MetricsIngestedPayload struct {
	BatchID string   `json:"batchId"`
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
	Rows    int64    `json:"rows"`
}

// CloudSyncedPayload accompanies cloud.synced.
type CloudSyncedPayload struct {
	Name         string `json:"name"`
	RemoteID     string `json:"remoteId"`
	Deduplicated bool   `json:"deduplicated"`
}

// BackupSettingsUpdatedPayload accompanies backup.settings.updated.
type BackupSettingsUpdatedPayload struct {
	CloudSyncEnabled bool   `json:"cloudSyncEnabled"`
	FolderID         string `json:"folderId,omitempty"`
}

// DecodeEnvelope parses a message payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
