// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package main is the entry point for the Backhaul server.
//
// Backhaul accepts backup artifacts over HTTP, stages them on disk and
// restores them into their subsystems: SQL dumps into the relational
// database, JSON settings snapshots into the runtime config store (BadgerDB)
// and CSV metrics snapshots into the analytics store (DuckDB). Full bundles
// (.tar.gz) are unpacked and their members dispatched the same way.
// Restored artifacts can be mirrored to a Google Drive folder or an S3
// prefix.
//
// # Startup Order
//
//  1. Configuration (koanf: defaults, YAML file, environment)
//  2. Event bus, optionally forwarding to NATS
//  3. Runtime config store and analytics store
//  4. Backup settings document and cloud sync client
//  5. Restorers and the restore orchestrator
//  6. Authentication and authorization (when JWT_SECRET is set)
//  7. Supervisor tree: staging sweeper, websocket hub, event bridge, HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
// server gracefully (server.shutdown_timeout) and then the remaining
// services, after which the stores are closed.
//
// # Example
//
//	export STAGING_DIR=/var/lib/backhaul/staging
//	export DB_ENGINE=postgres DB_HOST=db DB_NAME=app DB_USER=app DB_PASSWORD=secret
//	export JWT_SECRET=$(openssl rand -base64 48)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD_HASH='$2a$12$...'
//	./backhaul
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/backhaul/internal/api"
	"github.com/tomtom215/backhaul/internal/config"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/restore"
	"github.com/tomtom215/backhaul/internal/supervisor"
	"github.com/tomtom215/backhaul/internal/supervisor/services"
	"github.com/tomtom215/backhaul/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Backhaul stopped with an error")
	}
}

//nolint:gocyclo // sequential setup steps
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("staging_dir", cfg.Restore.StagingDir).
		Str("db_engine", cfg.Database.Engine).
		Bool("cloud_enabled", cfg.Cloud.Enabled).
		Bool("auth_enabled", cfg.Security.AuthEnabled()).
		Msg("Starting Backhaul")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := initEvents(cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("event bus", bus.Close)

	stores, err := initStores(cfg, bus)
	if err != nil {
		return err
	}
	defer stores.Close()

	backupSettings, cloud, err := initCloud(ctx, cfg, bus)
	if err != nil {
		return err
	}

	restorers, err := initRestorers(cfg, stores)
	if err != nil {
		return err
	}

	policy, err := restore.ParseBundlePolicy(cfg.Restore.UnrecognizedMembers, cfg.Restore.MemberFailure)
	if err != nil {
		return err
	}

	stager := restore.NewStager(cfg.Restore.StagingDir)
	if err := stager.EnsureDir(); err != nil {
		// Uploads report STAGING_UNAVAILABLE until the directory can be created.
		logging.Warn().Err(err).Str("dir", stager.Dir()).Msg("Staging directory unavailable at startup")
	}

	orchestrator := restore.NewOrchestrator(stager, restore.Options{
		Restorers: restorers,
		Policy:    policy,
		Limits: restore.ExtractLimits{
			MaxEntrySize:  cfg.Restore.MaxEntrySize,
			MaxBundleSize: cfg.Restore.MaxBundleSize,
		},
		CleanupOnSuccess: cfg.Restore.CleanupOnSuccess,
		Mirror:           cloud,
		MirrorEnabled: func() bool {
			return cfg.Restore.MirrorToCloud && backupSettings.Get().MirrorEnabled()
		},
		Publisher: bus,
	})
	logging.Info().Str("policy", policy.String()).Msg("Restore orchestrator ready")

	security, err := initSecurity(cfg)
	if err != nil {
		return err
	}

	hub := websocket.NewHub()

	handler, err := api.NewHandler(api.Dependencies{
		Config:       cfg,
		Orchestrator: orchestrator,
		Settings:     backupSettings,
		Cloud:        cloud,
		Runtime:      stores.config,
		Analytics:    stores.analytics,
		Hub:          hub,
		JWT:          security.jwt,
		Credentials:  security.credentials,
	})
	if err != nil {
		return err
	}
	router := api.NewRouter(handler, security.authn, security.authz)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewStagingSweeperService(stager, cfg.Restore.SweepInterval, cfg.Restore.StaleAfter))
	tree.AddMessagingService(hub)
	tree.AddMessagingService(websocket.NewBridge(bus, hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	stop()

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Backhaul stopped gracefully")
	return nil
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("Close failed")
	}
}
