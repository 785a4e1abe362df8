// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package backup

import (
	"errors"
	"time"

	"github.com/tomtom215/backhaul/internal/validation"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("invalid backup settings")

// Settings is the backup settings document.
type Settings struct {
	// Schedule is informational for the external backup creator.
	Schedule string `json:"schedule" validate:"omitempty,oneof=hourly daily weekly monthly"`

	RetentionDays    int `json:"retention_days" validate:"min=1,max=365"`
	CompressionLevel int `json:"compression_level" validate:"min=1,max=9"`

	// MaxConcurrent bounds in-flight cloud calls.
	MaxConcurrent int `json:"max_concurrent" validate:"min=1,max=5"`

	// TimeoutSeconds bounds each cloud metadata call, and how long an upload
	// or download may stall without moving bytes.
	TimeoutSeconds int `json:"timeout_seconds" validate:"min=5,max=120"`

	CloudSync     CloudSyncSettings    `json:"cloud_sync"`
	Notifications NotificationSettings `json:"notifications"`
}

// CloudSyncSettings controls mirroring to the remote folder.
type CloudSyncSettings struct {
	Enabled  bool   `json:"enabled"`
	FolderID string `json:"folder_id" validate:"required_if=Enabled true"`

	// MirrorRestored pushes successfully restored artifacts to the folder.
	MirrorRestored bool `json:"mirror_restored"`
}

// NotificationSettings groups notification channels.
type NotificationSettings struct {
	Email EmailNotification `json:"email"`
}

// EmailNotification configures email reports.
type EmailNotification struct {
	Enabled   bool   `json:"enabled"`
	Recipient string `json:"recipient" validate:"required_if=Enabled true,omitempty,email"`
	OnSuccess bool   `json:"on_success"`
	OnFailure bool   `json:"on_failure"`
}

// Defaults returns the settings used when no document exists.
func Defaults() Settings {
	return Settings{
		Schedule:         "daily",
		RetentionDays:    30,
		CompressionLevel: 6,
		MaxConcurrent:    2,
		TimeoutSeconds:   30,
		CloudSync: CloudSyncSettings{
			Enabled:        false,
			MirrorRestored: true,
		},
		Notifications: NotificationSettings{
			Email: EmailNotification{OnFailure: true},
		},
	}
}

// Timeout returns TimeoutSeconds as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// MirrorEnabled reports whether restored artifacts should be mirrored.
func (s Settings) MirrorEnabled() bool {
	return s.CloudSync.Enabled && s.CloudSync.MirrorRestored
}

// ValidationError lists the rejected fields of a settings update.
type ValidationError struct {
	Result *validation.RequestValidationError
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Result.Error()
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HasField reports whether field (json path, e.g. "cloud_sync.folder_id") was rejected.
func (e *ValidationError) HasField(field string) bool {
	return e.Result.HasField(field)
}

// Validate checks s against the settings rules.
func Validate(s Settings) error {
	if result := validation.ValidateStruct(s); result != nil {
		return &ValidationError{Result: result}
	}
	return nil
}
