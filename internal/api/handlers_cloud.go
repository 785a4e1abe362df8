// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/backhaul/internal/cloudsync"
	"github.com/tomtom215/backhaul/internal/restore"
)

// CloudStatus reports whether cloud sync is usable.
type CloudStatus struct {
	Initialized bool   `json:"initialized"`
	Provider    string `json:"provider"`
}

// SyncResult is returned by the sync and pull endpoints.
type SyncResult struct {
	Name     string       `json:"name"`
	RemoteID string       `json:"remoteId"`
	Kind     restore.Kind `json:"kind,omitempty"`
}

// requireCloud answers 503 and returns false when the client is not initialized.
func (h *Handler) requireCloud(w http.ResponseWriter, r *http.Request) bool {
	if h.cloud.IsInitialized() {
		return true
	}
	respondError(w, r, http.StatusServiceUnavailable, CodeCloudDisabled, "Cloud sync is not initialized", nil)
	return false
}

// respondCloudError maps a cloud client error to a response.
func respondCloudError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case cloudsync.IsNotInitialized(err):
		respondError(w, r, http.StatusServiceUnavailable, CodeCloudDisabled, "Cloud sync is not initialized", err)
	case errors.Is(err, cloudsync.ErrInvalidRemoteID):
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid remote file id", err)
	default:
		respondError(w, r, http.StatusBadGateway, CodeCloudError, "Cloud "+op+" failed", err)
	}
}

// remoteIDParam returns the remote id from the trailing wildcard. S3 ids
// contain slashes, sent either raw or as %2F.
func remoteIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		// chi routed on the escaped path, so the value is still escaped.
		unescaped, err := url.PathUnescape(id)
		if err != nil {
			return "", err
		}
		id = unescaped
	}
	if id == "" {
		return "", errors.New("remote file id is required")
	}
	return id, nil
}

// CloudStatusHandler reports the client state. It answers even when cloud sync is disabled.
func (h *Handler) CloudStatusHandler(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, CloudStatus{
		Initialized: h.cloud.IsInitialized(),
		Provider:    h.cloud.Provider(),
	})
}

// CloudListFiles lists every file in the folder, newest first.
func (h *Handler) CloudListFiles(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	files, err := h.cloud.List(r.Context())
	if err != nil {
		respondCloudError(w, r, "list", err)
		return
	}
	respondSuccess(w, r, files)
}

// CloudListBackups lists the backup artifacts in the folder.
func (h *Handler) CloudListBackups(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	files, err := h.cloud.GetBackupFiles(r.Context())
	if err != nil {
		respondCloudError(w, r, "list", err)
		return
	}
	respondSuccess(w, r, files)
}

// CloudSearch finds folder files whose name contains q (case-sensitive).
func (h *Handler) CloudSearch(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Query parameter q is required", nil)
		return
	}
	files, err := h.cloud.SearchByName(r.Context(), q)
	if err != nil {
		respondCloudError(w, r, "search", err)
		return
	}
	respondSuccess(w, r, files)
}

// CloudQuota reports remote storage usage.
func (h *Handler) CloudQuota(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	q, err := h.cloud.Quota(r.Context())
	if err != nil {
		respondCloudError(w, r, "quota", err)
		return
	}
	respondSuccess(w, r, q)
}

// CloudSync pushes a staged artifact to the folder. An artifact already
// present under the same name is not uploaded again.
func (h *Handler) CloudSync(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	name := chi.URLParam(r, "file")
	path, err := h.stager.Path(name)
	switch {
	case errors.Is(err, restore.ErrInvalidFilename):
		respondError(w, r, http.StatusBadRequest, CodeInvalidFilename, "Invalid file name", err)
		return
	case errors.Is(err, restore.ErrArtifactNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Staged file not found", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to resolve staged file", err)
		return
	}

	id, err := h.cloud.SyncBackupToDrive(r.Context(), path, name)
	if err != nil {
		respondCloudError(w, r, "sync", err)
		return
	}
	kind, _ := restore.Classify(name)
	respondSuccess(w, r, SyncResult{Name: name, RemoteID: id, Kind: kind})
}

// CloudPull downloads a remote file into the staging directory under its
// remote name. The name comes from the "name" query parameter or a folder
// listing. Existing staged files are never overwritten.
func (h *Handler) CloudPull(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	id, err := remoteIDParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid remote file id", err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		files, err := h.cloud.List(r.Context())
		if err != nil {
			respondCloudError(w, r, "list", err)
			return
		}
		for _, f := range files {
			if f.ID == id {
				name = f.Name
				break
			}
		}
		if name == "" {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "Remote file not found", nil)
			return
		}
	}

	name, err = restore.SanitizeFilename(name)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidFilename, "Invalid file name", err)
		return
	}
	kind, err := restore.Classify(name)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeUnsupportedFormat, "Remote file is not a backup artifact", err)
		return
	}
	if err := h.stager.EnsureDir(); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeStagingUnavailable, "Staging directory unavailable", err)
		return
	}

	dest := filepath.Join(h.stager.Dir(), name)
	if _, err := os.Stat(dest); err == nil {
		respondError(w, r, http.StatusConflict, CodeConflict, "A staged file with this name already exists", nil)
		return
	}

	if err := h.cloud.Download(r.Context(), id, dest); err != nil {
		respondCloudError(w, r, "download", err)
		return
	}
	respondSuccess(w, r, SyncResult{Name: name, RemoteID: id, Kind: kind})
}

// CloudDelete removes a file from the folder.
func (h *Handler) CloudDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireCloud(w, r) {
		return
	}
	id, err := remoteIDParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid remote file id", err)
		return
	}
	if err := h.cloud.Delete(r.Context(), id); err != nil {
		respondCloudError(w, r, "delete", err)
		return
	}
	respondSuccess(w, r, map[string]string{"id": id})
}
