// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/backhaul/internal/analytics"
	"github.com/tomtom215/backhaul/internal/auth"
	"github.com/tomtom215/backhaul/internal/backup"
	"github.com/tomtom215/backhaul/internal/cloudsync"
	"github.com/tomtom215/backhaul/internal/config"
	"github.com/tomtom215/backhaul/internal/configstore"
	"github.com/tomtom215/backhaul/internal/restore"
	"github.com/tomtom215/backhaul/internal/websocket"
)

// SettingsStore reads and replaces the backup settings document.
type SettingsStore interface {
	Get() backup.Settings
	Update(ctx context.Context, next backup.Settings) (backup.Settings, error)
}

// RuntimeSettings lists restored runtime settings.
type RuntimeSettings interface {
	All(prefix string) ([]configstore.Entry, error)
}

// AnalyticsReader lists ingested metrics snapshots.
type AnalyticsReader interface {
	Batches(ctx context.Context, limit int) ([]analytics.Batch, error)
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators of a Handler. Runtime, Analytics, Hub,
// JWT and Credentials are optional.
type Dependencies struct {
	Config       *config.Config
	Orchestrator *restore.Orchestrator
	Settings     SettingsStore
	Cloud        cloudsync.CloudSync
	Runtime      RuntimeSettings
	Analytics    AnalyticsReader
	Hub          *websocket.Hub
	JWT          *auth.JWTManager
	Credentials  *auth.CredentialChecker
}

// Handler serves the HTTP API.
type Handler struct {
	cfg          *config.Config
	orchestrator *restore.Orchestrator
	stager       *restore.Stager
	settings     SettingsStore
	cloud        cloudsync.CloudSync
	runtime      RuntimeSettings
	analytics    AnalyticsReader
	hub          *websocket.Hub
	jwt          *auth.JWTManager
	credentials  *auth.CredentialChecker
	startTime    time.Time
}

// NewHandler validates deps and creates a Handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("api: config is required")
	case deps.Orchestrator == nil:
		return nil, errors.New("api: restore orchestrator is required")
	case deps.Settings == nil:
		return nil, errors.New("api: backup settings store is required")
	}

	cloud := deps.Cloud
	if cloud == nil {
		cloud = cloudsync.Disabled{}
	}

	return &Handler{
		cfg:          deps.Config,
		orchestrator: deps.Orchestrator,
		stager:       deps.Orchestrator.Stager(),
		settings:     deps.Settings,
		cloud:        cloud,
		runtime:      deps.Runtime,
		analytics:    deps.Analytics,
		hub:          deps.Hub,
		jwt:          deps.JWT,
		credentials:  deps.Credentials,
		startTime:    time.Now(),
	}, nil
}
