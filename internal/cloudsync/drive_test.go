// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package cloudsync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
)

// fakeDrive serves the subset of the Drive v3 REST API used by DriveBackend.
type fakeDrive struct {
	mu       sync.Mutex
	queries  []string
	orderBys []string
	uploads  int
	deleted  []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/upload/drive/v3/files"):
		_, _ = io.Copy(io.Discard, r.Body)
		f.uploads++
		_, _ = io.WriteString(w, `{"id":"uploaded-1"}`)

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.orderBys = append(f.orderBys, r.URL.Query().Get("orderBy"))
		_, _ = io.WriteString(w, `{"files":[
			{"id":"f2","name":"site_backup_2.tar.gz","size":"20","mimeType":"application/gzip","createdTime":"2024-05-02T10:00:00.000Z","modifiedTime":"2024-05-02T10:00:00.000Z"},
			{"id":"f1","name":"site_backup_1.tar.gz","size":"10","mimeType":"application/gzip","createdTime":"2024-05-01T10:00:00.000Z","modifiedTime":"2024-05-01T11:00:00.000Z"}
		]}`)

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files/f1") && r.URL.Query().Get("alt") == "media":
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = io.WriteString(w, "archive-bytes")

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/files/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/files/"))
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/about"):
		_, _ = io.WriteString(w, `{"storageQuota":{"limit":"1000","usage":"250"}}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
	}
}

func newTestDrive(t *testing.T) (*DriveBackend, *fakeDrive) {
	t.Helper()
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewDriveBackend(context.Background(), "folder'1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewDriveBackend() error = %v", err)
	}
	return b, fake
}

func TestDriveBackend_ListScopesFolder(t *testing.T) {
	b, fake := newTestDrive(t)

	files, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].ID != "f2" || files[0].Size != 20 || files[0].CreatedTime.IsZero() {
		t.Errorf("first file = %+v", files[0])
	}

	if want := `'folder\'1' in parents and trashed = false`; fake.queries[0] != want {
		t.Errorf("q = %q, want %q", fake.queries[0], want)
	}
	if fake.orderBys[0] != "createdTime desc" {
		t.Errorf("orderBy = %q", fake.orderBys[0])
	}
}

func TestDriveBackend_Search(t *testing.T) {
	b, fake := newTestDrive(t)

	if _, err := b.Search(context.Background(), "site_backup"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(fake.queries[0], " and name contains 'site_backup'") {
		t.Errorf("q = %q", fake.queries[0])
	}
}

func TestDriveBackend_ThroughClient(t *testing.T) {
	b, fake := newTestDrive(t)
	client := NewClient(b, ClientOptions{})
	ctx := context.Background()

	// Exact name already present: no upload.
	path := writeTempFile(t, "site_backup_1.tar.gz", "x")
	id, err := client.SyncBackupToDrive(ctx, path, "site_backup_1.tar.gz")
	if err != nil {
		t.Fatalf("SyncBackupToDrive() error = %v", err)
	}
	if id != "f1" || fake.uploads != 0 {
		t.Errorf("id = %s uploads = %d, want f1 and no upload", id, fake.uploads)
	}

	id, err = client.SyncBackupToDrive(ctx, path, "site_backup_3.tar.gz")
	if err != nil {
		t.Fatalf("SyncBackupToDrive(new) error = %v", err)
	}
	if id != "uploaded-1" || fake.uploads != 1 {
		t.Errorf("id = %s uploads = %d", id, fake.uploads)
	}

	dest := filepath.Join(t.TempDir(), "restored.tar.gz")
	if err := client.Download(ctx, "f1", dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "archive-bytes" {
		t.Errorf("downloaded %q", data)
	}

	if err := client.Download(ctx, "missing", dest+".2"); err == nil {
		t.Error("expected error for missing file")
	}

	if err := client.Delete(ctx, "f2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "f2" {
		t.Errorf("deleted = %v", fake.deleted)
	}

	q, err := client.Quota(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != 1000 || q.Usage != 250 {
		t.Errorf("quota = %+v", q)
	}
}

func TestEscapeDriveQuery(t *testing.T) {
	if got := escapeDriveQuery(`a'b\c`); got != `a\'b\\c` {
		t.Errorf("escapeDriveQuery = %q", got)
	}
}
