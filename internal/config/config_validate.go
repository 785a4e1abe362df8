// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package config

import (
	"fmt"
	"strings"
)

// minJWTSecretLength is the minimum accepted HMAC secret length.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateRestore(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStores(); err != nil {
		return err
	}
	if err := c.validateCloud(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got: %d", c.Server.MaxUploadBytes)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got: %s", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled; got: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
}

func (c *Config) validateRestore() error {
	if strings.TrimSpace(c.Restore.StagingDir) == "" {
		return fmt.Errorf("STAGING_DIR is required")
	}
	if c.Restore.MaxEntrySize <= 0 || c.Restore.MaxBundleSize <= 0 {
		return fmt.Errorf("restore.max_entry_size and restore.max_bundle_size must be positive")
	}
	if c.Restore.MaxEntrySize > c.Restore.MaxBundleSize {
		return fmt.Errorf("restore.max_entry_size (%d) cannot exceed restore.max_bundle_size (%d)",
			c.Restore.MaxEntrySize, c.Restore.MaxBundleSize)
	}
	if c.Restore.SweepInterval < 0 || c.Restore.StaleAfter < 0 {
		return fmt.Errorf("restore.sweep_interval and restore.stale_after cannot be negative")
	}

	switch c.Restore.UnrecognizedMembers {
	case "skip", "fail":
	default:
		return fmt.Errorf("BUNDLE_UNRECOGNIZED must be skip or fail, got: %s", c.Restore.UnrecognizedMembers)
	}

	switch c.Restore.MemberFailure {
	case "abort", "continue":
		return nil
	default:
		return fmt.Errorf("BUNDLE_MEMBER_FAILURE must be abort or continue, got: %s", c.Restore.MemberFailure)
	}
}

func (c *Config) validateDatabase() error {
	switch c.Database.Engine {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("DB_ENGINE must be mysql or postgres, got: %s", c.Database.Engine)
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 0 and 65535, got: %d", c.Database.Port)
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("DB_RESTORE_TIMEOUT must be positive, got: %s", c.Database.Timeout)
	}
	return nil
}

func (c *Config) validateStores() error {
	if !c.ConfigStore.InMemory && c.ConfigStore.Path == "" {
		return fmt.Errorf("CONFIG_STORE_PATH is required unless config_store.in_memory is set")
	}
	if c.Analytics.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Backup.SettingsPath == "" {
		return fmt.Errorf("BACKUP_SETTINGS_PATH is required")
	}
	return nil
}

func (c *Config) validateCloud() error {
	if !c.Cloud.Enabled {
		return nil
	}

	switch c.Cloud.Provider {
	case "drive":
		return nil
	case "s3":
		if c.Cloud.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when CLOUD_PROVIDER=s3")
		}
		if (c.Cloud.S3.AccessKey == "") != (c.Cloud.S3.SecretKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
		return nil
	default:
		return fmt.Errorf("CLOUD_PROVIDER must be drive or s3, got: %s", c.Cloud.Provider)
	}
}

func (c *Config) validateSecurity() error {
	s := &c.Security

	if s.AuthEnabled() && len(s.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if s.AdminUsername != "" && s.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required when ADMIN_USERNAME is set")
	}
	if s.AuthEnabled() && s.TokenTTL <= 0 {
		return fmt.Errorf("security.token_ttl must be positive, got: %s", s.TokenTTL)
	}
	if s.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS cannot be negative, got: %d", s.RateLimitRequests)
	}
	if s.RateLimitRequests > 0 && s.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}
