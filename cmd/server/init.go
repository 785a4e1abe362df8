// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/backhaul/internal/analytics"
	"github.com/tomtom215/backhaul/internal/auth"
	"github.com/tomtom215/backhaul/internal/authz"
	"github.com/tomtom215/backhaul/internal/backup"
	"github.com/tomtom215/backhaul/internal/cloudsync"
	"github.com/tomtom215/backhaul/internal/config"
	"github.com/tomtom215/backhaul/internal/configstore"
	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/restore"
)

// initEvents creates the in-process bus and, when events.nats_url is set,
// attaches the NATS forwarder. A NATS connection failure is not fatal.
func initEvents(cfg *config.Config) (*events.Bus, error) {
	bus := events.NewBus(cfg.Events.BufferSize, logging.NewWatermillLogger())

	if cfg.Events.NATSURL == "" {
		logging.Info().Msg("NATS forwarding disabled (events.nats_url not set)")
		return bus, nil
	}

	forwarder, err := events.NewNATSForwarder(events.ForwarderConfig{
		URL:              cfg.Events.NATSURL,
		SubjectPrefix:    cfg.Events.SubjectPrefix,
		FailureThreshold: cfg.Events.BreakerFailureThreshold,
		Timeout:          cfg.Events.BreakerTimeout,
	}, logging.NewWatermillLogger())
	if err != nil {
		logging.Warn().Err(err).Str("url", cfg.Events.NATSURL).Msg("NATS forwarder unavailable, events stay in-process")
		return bus, nil
	}
	bus.SetForwarder(forwarder)
	logging.Info().Str("url", cfg.Events.NATSURL).Str("prefix", cfg.Events.SubjectPrefix).Msg("NATS forwarding enabled")
	return bus, nil
}

// storeSet holds the restore target stores.
type storeSet struct {
	config    *configstore.Store
	analytics *analytics.Store
}

// Close closes every open store.
func (s *storeSet) Close() {
	if s.analytics != nil {
		closeQuietly("analytics store", s.analytics.Close)
	}
	if s.config != nil {
		closeQuietly("config store", s.config.Close)
	}
}

func initStores(cfg *config.Config, pub events.Publisher) (*storeSet, error) {
	stores := &storeSet{}

	cs, err := configstore.Open(configstore.Options{
		Path:     cfg.ConfigStore.Path,
		InMemory: cfg.ConfigStore.InMemory,
	}, pub)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	stores.config = cs

	as, err := analytics.Open(analytics.Options{
		Path:      cfg.Analytics.Path,
		MaxMemory: cfg.Analytics.MaxMemory,
		Threads:   cfg.Analytics.Threads,
	}, pub)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("open analytics store: %w", err)
	}
	stores.analytics = as

	logging.Info().
		Str("config_store", cfg.ConfigStore.Path).
		Bool("config_store_in_memory", cfg.ConfigStore.InMemory).
		Str("analytics", cfg.Analytics.Path).
		Msg("Restore target stores opened")
	return stores, nil
}

// cloudConfig merges process configuration with the backup settings
// document. Either side may enable sync; the document's folder wins over
// cloud.folder_id, and concurrency and timeout always come from the document.
func cloudConfig(cfg *config.Config, s backup.Settings) cloudsync.Config {
	folder := cfg.Cloud.FolderID
	if s.CloudSync.FolderID != "" {
		folder = s.CloudSync.FolderID
	}
	return cloudsync.Config{
		Enabled:         cfg.Cloud.Enabled || s.CloudSync.Enabled,
		Provider:        cfg.Cloud.Provider,
		FolderID:        folder,
		CredentialsFile: cfg.Cloud.CredentialsFile,
		S3: cloudsync.S3Options{
			Bucket:          cfg.Cloud.S3.Bucket,
			Region:          cfg.Cloud.S3.Region,
			Endpoint:        cfg.Cloud.S3.Endpoint,
			UsePathStyle:    cfg.Cloud.S3.UsePathStyle,
			AccessKey:       cfg.Cloud.S3.AccessKey,
			SecretKey:       cfg.Cloud.S3.SecretKey,
			CredentialsFile: cfg.Cloud.CredentialsFile,
		},
		MaxConcurrent: s.MaxConcurrent,
		Timeout:       s.Timeout(),
	}
}

// initCloud opens the backup settings document and builds the cloud client
// from it. The client is rebuilt whenever the document changes.
func initCloud(ctx context.Context, cfg *config.Config, pub events.Publisher) (*backup.Store, *cloudsync.Swappable, error) {
	settings, err := backup.Open(cfg.Backup.SettingsPath, pub)
	if err != nil {
		return nil, nil, fmt.Errorf("open backup settings: %w", err)
	}

	build := func(s backup.Settings) cloudsync.CloudSync {
		client, err := cloudsync.New(ctx, cloudConfig(cfg, s), pub)
		if err != nil {
			logging.Warn().Err(err).Str("provider", cfg.Cloud.Provider).Msg("Cloud sync not initialized")
		}
		return client
	}

	cloud := cloudsync.NewSwappable(build(settings.Get()))
	settings.OnChange(func(s backup.Settings) {
		cloud.Swap(build(s))
		logging.Info().Bool("initialized", cloud.IsInitialized()).Msg("Cloud sync client rebuilt from backup settings")
	})
	return settings, cloud, nil
}

func initRestorers(cfg *config.Config, stores *storeSet) (restore.Restorers, error) {
	db, err := restore.NewDatabaseRestorer(restore.DatabaseOptions{
		Engine:     cfg.Database.Engine,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		Name:       cfg.Database.Name,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		BinaryPath: cfg.Database.BinaryPath,
		Timeout:    cfg.Database.Timeout,
	}, nil)
	if err != nil {
		return restore.Restorers{}, fmt.Errorf("database restorer: %w", err)
	}

	return restore.Restorers{
		Database: db,
		Settings: restore.NewSettingsRestorer(stores.config),
		Metrics:  restore.NewMetricsRestorer(stores.analytics),
	}, nil
}

// securityComponents are nil when authentication is disabled.
type securityComponents struct {
	jwt         *auth.JWTManager
	credentials *auth.CredentialChecker
	authn       *auth.Middleware
	authz       *authz.Middleware
}

func initSecurity(cfg *config.Config) (*securityComponents, error) {
	sec := &securityComponents{}
	if !cfg.Security.AuthEnabled() {
		logging.Warn().Msg("Authentication is DISABLED (JWT_SECRET not set); every API route is open")
		return sec, nil
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}
	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{PolicyPath: cfg.Security.PolicyPath})
	if err != nil {
		return nil, fmt.Errorf("authorization policy: %w", err)
	}

	sec.jwt = jwtManager
	sec.authn = auth.NewMiddleware(jwtManager)
	sec.authz = authz.NewMiddleware(enforcer)

	if cfg.Security.AdminUsername != "" {
		creds, err := auth.NewCredentialChecker(cfg.Security.AdminUsername, cfg.Security.AdminPasswordHash)
		if err != nil {
			return nil, fmt.Errorf("admin credentials: %w", err)
		}
		sec.credentials = creds
	} else {
		logging.Warn().Msg("ADMIN_USERNAME not set; tokens cannot be issued through the API")
	}

	logging.Info().
		Dur("token_ttl", jwtManager.TTL()).
		Bool("custom_policy", cfg.Security.PolicyPath != "").
		Msg("JWT authentication and role authorization enabled")
	return sec, nil
}
