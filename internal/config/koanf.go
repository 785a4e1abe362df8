// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/backhaul/config.yaml",
	"/etc/backhaul/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// structuredEnvPrefix marks environment variables that map directly onto config keys.
const structuredEnvPrefix = "backhaul_"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			ReadTimeout:     2 * time.Minute,
			WriteTimeout:    30 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  500 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Restore: RestoreConfig{
			StagingDir:          "./data/staging",
			MaxEntrySize:        1 << 30,
			MaxBundleSize:       4 << 30,
			UnrecognizedMembers: "skip",
			MemberFailure:       "abort",
			SweepInterval:       time.Hour,
			StaleAfter:          6 * time.Hour,
		},
		Database: DatabaseConfig{
			Engine:   "mysql",
			Host:     "localhost",
			Port:     0, // engine default
			Name:     "app",
			User:     "root",
			Password: "",
			Timeout:  30 * time.Minute,
		},
		ConfigStore: ConfigStoreConfig{
			Path: "./data/configstore",
		},
		Analytics: AnalyticsConfig{
			Path:      "./data/analytics.duckdb",
			MaxMemory: "1GB",
		},
		Backup: BackupConfig{
			SettingsPath: "./data/backup-settings.json",
		},
		Cloud: CloudConfig{
			Enabled:  false,
			Provider: "drive",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Events: EventsConfig{
			BufferSize:              256,
			SubjectPrefix:           "backhaul",
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL:          12 * time.Hour,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 30,
			RateLimitWindow:   time.Minute,
		},
	}
}

// Load builds the configuration from defaults, config file and environment.
//
// Precedence (highest wins): environment, config file, defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are keys that accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnvMappings maps flat environment variable names onto config keys.
var legacyEnvMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"max_upload_bytes": "server.max_upload_bytes",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"staging_dir":             "restore.staging_dir",
	"restore_cleanup":         "restore.cleanup_on_success",
	"restore_mirror_to_cloud": "restore.mirror_to_cloud",
	"bundle_unrecognized":     "restore.unrecognized_members",
	"bundle_member_failure":   "restore.member_failure",
	"staging_sweep_interval":  "restore.sweep_interval",
	"staging_stale_after":     "restore.stale_after",

	"db_engine":          "database.engine",
	"db_host":            "database.host",
	"db_port":            "database.port",
	"db_name":            "database.name",
	"db_user":            "database.user",
	"db_password":        "database.password",
	"db_client_path":     "database.binary_path",
	"db_restore_timeout": "database.timeout",

	"config_store_path":    "config_store.path",
	"duckdb_path":          "analytics.path",
	"duckdb_max_memory":    "analytics.max_memory",
	"backup_settings_path": "backup.settings_path",

	"cloud_sync_enabled":             "cloud.enabled",
	"cloud_provider":                 "cloud.provider",
	"drive_folder_id":                "cloud.folder_id",
	"google_application_credentials": "cloud.credentials_file",
	"s3_bucket":                      "cloud.s3.bucket",
	"s3_region":                      "cloud.s3.region",
	"s3_endpoint":                    "cloud.s3.endpoint",
	"s3_access_key":                  "cloud.s3.access_key",
	"s3_secret_key":                  "cloud.s3.secret_key",

	"nats_url": "events.nats_url",

	"jwt_secret":          "security.jwt_secret",
	"admin_username":      "security.admin_username",
	"admin_password_hash": "security.admin_password_hash",
	"authz_policy_path":   "security.policy_path",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
}

// envTransformFunc maps an environment variable name to a config key.
// Returning "" tells koanf to skip the variable.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	if strings.HasPrefix(key, structuredEnvPrefix) {
		return strings.ReplaceAll(strings.TrimPrefix(key, structuredEnvPrefix), "__", ".")
	}

	if mapped, ok := legacyEnvMappings[key]; ok {
		return mapped
	}

	return ""
}
