// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package config loads process configuration for Backhaul.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file (CONFIG_PATH or the DefaultConfigPaths search list), then
// environment variables. Environment variables are accepted in two forms:
// the legacy flat names (DB_HOST, STAGING_DIR, JWT_SECRET, ...) and the
// structured BACKHAUL_ prefix where a double underscore separates levels
// (BACKHAUL_CLOUD__S3__BUCKET -> cloud.s3.bucket).
//
// Operator-editable backup settings (retention, cloud folder, notification
// recipient) are not part of this package; they live in a JSON document
// managed by internal/backup.
package config

import "time"

// Config holds all process configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Restore     RestoreConfig     `koanf:"restore"`
	Database    DatabaseConfig    `koanf:"database"`
	ConfigStore ConfigStoreConfig `koanf:"config_store"`
	Analytics   AnalyticsConfig   `koanf:"analytics"`
	Backup      BackupConfig      `koanf:"backup"`
	Cloud       CloudConfig       `koanf:"cloud"`
	Events      EventsConfig      `koanf:"events"`
	Security    SecurityConfig    `koanf:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes caps the multipart body accepted by the upload endpoint.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RestoreConfig controls staging and bundle handling.
type RestoreConfig struct {
	// StagingDir receives every uploaded artifact before it is restored.
	StagingDir string `koanf:"staging_dir"`

	// CleanupOnSuccess removes the staged artifact after a successful restore.
	// Failed artifacts are always kept for inspection.
	CleanupOnSuccess bool `koanf:"cleanup_on_success"`

	// MirrorToCloud pushes successfully restored artifacts to the cloud folder
	// when cloud sync is available.
	MirrorToCloud bool `koanf:"mirror_to_cloud"`

	// MaxEntrySize and MaxBundleSize bound extraction of full bundles.
	MaxEntrySize  int64 `koanf:"max_entry_size"`
	MaxBundleSize int64 `koanf:"max_bundle_size"`

	// UnrecognizedMembers is "skip" or "fail".
	UnrecognizedMembers string `koanf:"unrecognized_members"`

	// MemberFailure is "abort" or "continue".
	MemberFailure string `koanf:"member_failure"`

	// SweepInterval and StaleAfter drive removal of upload temp files and
	// scratch directories orphaned by a crash.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	StaleAfter    time.Duration `koanf:"stale_after"`
}

// DatabaseConfig describes the relational engine that SQL dumps are replayed into.
type DatabaseConfig struct {
	// Engine is "mysql" or "postgres".
	Engine   string `koanf:"engine"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// BinaryPath overrides the client binary (mysql or psql) looked up on PATH.
	BinaryPath string `koanf:"binary_path"`

	// Timeout bounds a single dump replay.
	Timeout time.Duration `koanf:"timeout"`
}

// ConfigStoreConfig locates the runtime settings store that settings snapshots are applied to.
type ConfigStoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// AnalyticsConfig locates the DuckDB database that metrics snapshots are ingested into.
type AnalyticsConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// BackupConfig locates the operator-editable backup settings document.
type BackupConfig struct {
	SettingsPath string `koanf:"settings_path"`
}

// CloudConfig selects and authenticates the remote folder backend.
type CloudConfig struct {
	Enabled bool `koanf:"enabled"`

	// Provider is "drive" or "s3".
	Provider string `koanf:"provider"`

	// FolderID is the default remote folder; the backup settings document may override it.
	FolderID string `koanf:"folder_id"`

	// CredentialsFile is the service credential file (Drive service account JSON
	// or an AWS shared credentials file).
	CredentialsFile string `koanf:"credentials_file"`

	S3 S3Config `koanf:"s3"`
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

// EventsConfig configures the in-process event bus and optional NATS forwarding.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel buffer of the in-process bus.
	BufferSize int64 `koanf:"buffer_size"`

	// NATSURL enables forwarding of every event to NATS when set.
	NATSURL string `koanf:"nats_url"`

	// SubjectPrefix is prepended to topics when forwarding to NATS.
	SubjectPrefix string `koanf:"subject_prefix"`

	// BreakerFailureThreshold consecutive failures open the forwarding circuit.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
}

// SecurityConfig holds authentication, CORS and rate limiting settings.
type SecurityConfig struct {
	// JWTSecret enables bearer authentication on the API when set.
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`

	// AdminUsername and AdminPasswordHash (bcrypt) allow issuing admin tokens.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// PolicyPath replaces the built-in role policy with a casbin CSV file.
	PolicyPath string `koanf:"policy_path"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// AuthEnabled reports whether bearer authentication is active.
func (s *SecurityConfig) AuthEnabled() bool {
	return s.JWTSecret != ""
}
