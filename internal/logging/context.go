// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	restoreIDKey contextKey = "restore_id"
)

// GenerateRequestID creates a new request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a new context carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRestoreID returns a new context carrying the ID of the restore
// run, so every log line emitted while restoring one artifact can be joined.
func ContextWithRestoreID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, restoreIDKey, id)
}

// RestoreIDFromContext returns the restore ID, or "" if none is set.
func RestoreIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(restoreIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with the request and restore IDs from ctx attached.
//
//	logging.Ctx(ctx).Info().Str("member", name).Msg("Bundle member restored")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := With()

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}
	if restoreID := RestoreIDFromContext(ctx); restoreID != "" {
		logCtx = logCtx.Str("restore_id", restoreID)
	}

	logger := logCtx.Logger()
	return &logger
}
