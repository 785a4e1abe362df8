// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/backup"
	"github.com/tomtom215/backhaul/internal/cloudsync"
	"github.com/tomtom215/backhaul/internal/config"
	"github.com/tomtom215/backhaul/internal/restore"
)

// recordingRestorer remembers the paths it was asked to restore.
type recordingRestorer struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingRestorer) Restore(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

func (r *recordingRestorer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

// fakeCloud is an in-memory CloudSync.
type fakeCloud struct {
	mu       sync.Mutex
	files    map[string]cloudsync.RemoteFile
	content  map[string][]byte
	nextID   int
	uploads  int
	err      error
	disabled bool
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{files: map[string]cloudsync.RemoteFile{}, content: map[string][]byte{}}
}

func (f *fakeCloud) IsInitialized() bool { return !f.disabled }
func (f *fakeCloud) Provider() string    { return "fake" }

func (f *fakeCloud) add(name string, body []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "remote-" + strconv.Itoa(f.nextID)
	f.files[id] = cloudsync.RemoteFile{ID: id, Name: name, Size: int64(len(body)), ModifiedTime: time.Now()}
	f.content[id] = body
	return id
}

// addWithID stores a file under a caller-chosen id, e.g. an S3 key.
func (f *fakeCloud) addWithID(id, name string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = cloudsync.RemoteFile{ID: id, Name: name, Size: int64(len(body)), ModifiedTime: time.Now()}
	f.content[id] = body
}

func (f *fakeCloud) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[id]
	return ok
}

func (f *fakeCloud) Upload(_ context.Context, localPath, name, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	return f.add(name, body), nil
}

func (f *fakeCloud) Download(_ context.Context, id, localPath string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	body, ok := f.content[id]
	f.mu.Unlock()
	if !ok {
		return errors.New("not found")
	}
	return os.WriteFile(localPath, body, 0o600)
}

func (f *fakeCloud) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return cloudsync.ErrInvalidRemoteID
	}
	delete(f.files, id)
	delete(f.content, id)
	return nil
}

func (f *fakeCloud) List(context.Context) ([]cloudsync.RemoteFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cloudsync.RemoteFile, 0, len(f.files))
	for _, rf := range f.files {
		out = append(out, rf)
	}
	return out, nil
}

func (f *fakeCloud) SearchByName(ctx context.Context, q string) ([]cloudsync.RemoteFile, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []cloudsync.RemoteFile
	for _, rf := range all {
		if strings.Contains(rf.Name, q) {
			out = append(out, rf)
		}
	}
	return out, nil
}

func (f *fakeCloud) SyncBackupToDrive(ctx context.Context, localPath, name string) (string, error) {
	existing, err := f.SearchByName(ctx, name)
	if err != nil {
		return "", err
	}
	for _, rf := range existing {
		if rf.Name == name {
			return rf.ID, nil
		}
	}
	return f.Upload(ctx, localPath, name, "")
}

func (f *fakeCloud) GetBackupFiles(ctx context.Context) ([]cloudsync.RemoteFile, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []cloudsync.RemoteFile
	for _, rf := range all {
		if cloudsync.IsBackupFile(rf) {
			out = append(out, rf)
		}
	}
	return out, nil
}

func (f *fakeCloud) Quota(context.Context) (*cloudsync.Quota, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &cloudsync.Quota{Limit: 1000, Usage: 10}, nil
}

// fixture bundles a handler with its collaborators.
type fixture struct {
	handler    *Handler
	cfg        *config.Config
	stagingDir string
	database   *recordingRestorer
	settings   *recordingRestorer
	metrics    *recordingRestorer
	store      *backup.Store
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 1 << 20},
		Restore: config.RestoreConfig{
			StagingDir: filepath.Join(t.TempDir(), "staging"),
		},
		Security: config.SecurityConfig{
			CORSOrigins: []string{"https://app.example"},
		},
	}
}

// newFixture builds a handler over a temp staging directory. cloud may be nil.
func newFixture(t *testing.T, cloud cloudsync.CloudSync) *fixture {
	t.Helper()
	cfg := testConfig(t)

	f := &fixture{
		cfg:        cfg,
		stagingDir: cfg.Restore.StagingDir,
		database:   &recordingRestorer{},
		settings:   &recordingRestorer{},
		metrics:    &recordingRestorer{},
	}

	store, err := backup.Open(filepath.Join(t.TempDir(), "backup-settings.json"), nil)
	if err != nil {
		t.Fatalf("backup.Open() error = %v", err)
	}
	f.store = store

	orch := restore.NewOrchestrator(restore.NewStager(f.stagingDir), restore.Options{
		Restorers: restore.Restorers{Database: f.database, Settings: f.settings, Metrics: f.metrics},
	})

	h, err := NewHandler(Dependencies{
		Config:       cfg,
		Orchestrator: orch,
		Settings:     store,
		Cloud:        cloud,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	f.handler = h
	return f
}

func (f *fixture) router() http.Handler {
	return NewRouter(f.handler, nil, nil).Setup()
}

// stage writes name into the staging directory.
func (f *fixture) stage(t *testing.T, name, body string) {
	t.Helper()
	if err := os.MkdirAll(f.stagingDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.stagingDir, name), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

// multipartBody builds a form with one file part.
func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, rec)
	if resp.Error == nil {
		t.Fatalf("response has no error: %s", rec.Body.String())
	}
	return resp.Error.Code
}
