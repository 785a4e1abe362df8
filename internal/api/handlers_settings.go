// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tomtom215/backhaul/internal/backup"
)

const (
	defaultBatchLimit = 50
	maxBatchLimit     = 500
)

// GetBackupSettings returns the current backup settings document.
func (h *Handler) GetBackupSettings(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, h.settings.Get())
}

// UpdateBackupSettings replaces the backup settings document. Fields absent
// from the body keep their current values. Nothing is written when
// validation fails.
func (h *Handler) UpdateBackupSettings(w http.ResponseWriter, r *http.Request) {
	next := h.settings.Get()
	if err := decodeJSONBody(w, r, &next); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid JSON body", err)
		return
	}

	saved, err := h.settings.Update(r.Context(), next)
	if err != nil {
		var ve *backup.ValidationError
		if errors.As(err, &ve) {
			apiErr := ve.Result.ToAPIError()
			respondAPIError(w, r, http.StatusBadRequest, &APIError{
				Code:    CodeValidationError,
				Message: apiErr.Message,
				Details: apiErr.Details,
			}, err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to save backup settings", err)
		return
	}
	respondSuccess(w, r, saved)
}

// GetRuntimeSettings lists restored runtime settings, optionally filtered by
// the "prefix" query parameter.
func (h *Handler) GetRuntimeSettings(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "Runtime settings store not configured", nil)
		return
	}
	entries, err := h.runtime.All(r.URL.Query().Get("prefix"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to read runtime settings", err)
		return
	}
	respondSuccess(w, r, entries)
}

// ListMetricsBatches lists ingested metrics snapshots, newest first.
func (h *Handler) ListMetricsBatches(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "Analytics store not configured", nil)
		return
	}

	limit := defaultBatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBatchLimit {
			respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 500", err)
			return
		}
		limit = n
	}

	batches, err := h.analytics.Batches(r.Context(), limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to list metrics batches", err)
		return
	}
	respondSuccess(w, r, batches)
}
