// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/backhaul/internal/restore"
)

// uploadFieldNames are the accepted form field names for the artifact.
var uploadFieldNames = map[string]bool{"backup": true, "file": true}

var errNoFilePart = errors.New("no file part in multipart body")

// uploadFailure is the body of a failed restore: the outcome plus an error code.
type uploadFailure struct {
	*restore.RestoreOutcome
	Error *APIError `json:"error"`
}

// trackingReader remembers the first read error so client-side upload
// failures can be told apart from staging failures.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// nextFilePart returns the first part that carries a file under an accepted field name.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if uploadFieldNames[part.FormName()] && part.FileName() != "" {
			return part, nil
		}
		part.Close() //nolint:errcheck // skipping unrelated field
	}
}

// UploadBackup streams one artifact into staging and restores it.
//
// The artifact is never buffered in memory: the multipart part is copied
// straight into the staging temp file.
func (h *Handler) UploadBackup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Request must be multipart/form-data", err)
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		h.respondUploadReadError(w, r, err)
		return
	}
	defer part.Close() //nolint:errcheck // request body is closed by net/http

	body := &trackingReader{r: part}
	outcome, err := h.orchestrator.Restore(r.Context(), body, part.FileName())
	if err != nil && body.err != nil {
		h.respondUploadReadError(w, r, body.err)
		return
	}

	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, outcome)
	case errors.Is(err, restore.ErrInvalidFilename):
		respondError(w, r, http.StatusBadRequest, CodeInvalidFilename, "Invalid backup filename", err)
	case errors.Is(err, restore.ErrUnsupportedFormat):
		respondError(w, r, http.StatusBadRequest, CodeUnsupportedFormat,
			fmt.Sprintf("Unsupported backup format (expected %s, %s, %s or %s)",
				restore.SuffixFull, restore.SuffixDatabase, restore.SuffixSettings, restore.SuffixMetrics), err)
	case errors.Is(err, restore.ErrStagingUnavailable):
		respondError(w, r, http.StatusInternalServerError, CodeStagingUnavailable, "Staging directory unavailable", err)
	case errors.Is(err, restore.ErrRestoreFailed) && outcome != nil:
		respondJSON(w, http.StatusInternalServerError, &uploadFailure{
			RestoreOutcome: outcome,
			Error:          &APIError{Code: CodeRestoreFailed, Message: err.Error()},
		})
	default:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Restore failed", err)
	}
}

func (h *Handler) respondUploadReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		respondError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
			fmt.Sprintf("Upload exceeds %d bytes", maxErr.Limit), err)
	case errors.Is(err, errNoFilePart):
		respondError(w, r, http.StatusBadRequest, CodeNoFile, `No file uploaded in field "backup" or "file"`, err)
	default:
		respondError(w, r, http.StatusBadRequest, "INVALID_UPLOAD", "Upload could not be read", err)
	}
}

// ListBackups lists the staged artifacts, newest first.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	files, err := h.stager.List()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeStagingUnavailable, "Failed to list staged backups", err)
		return
	}
	respondSuccess(w, r, files)
}

// DownloadBackup streams the staged artifact for a base id. Suffixes are
// probed in order .tar.gz, .sql, .json, .csv and the first match wins.
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, kind, err := h.stager.Lookup(id)
	switch {
	case errors.Is(err, restore.ErrInvalidFilename):
		respondError(w, r, http.StatusBadRequest, CodeInvalidFilename, "Invalid backup id", err)
		return
	case errors.Is(err, restore.ErrArtifactNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Backup not found", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to look up backup", err)
		return
	}

	f, err := os.Open(path) //nolint:gosec // path resolved inside the staging directory
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Backup not found", err)
		return
	}
	defer f.Close() //nolint:errcheck // read-only file

	info, err := f.Stat()
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "Failed to read backup", err)
		return
	}

	name := id + kind.Suffix()
	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("Content-Disposition", contentDisposition(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// contentDisposition formats an attachment header. Names outside the token
// charset are encoded per RFC 2231 so clients decode them verbatim.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
