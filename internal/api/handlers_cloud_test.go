// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/cloudsync"
)

var cloudRoutes = []struct {
	method string
	path   string
}{
	{http.MethodGet, "/api/v1/cloud/files"},
	{http.MethodGet, "/api/v1/cloud/backups"},
	{http.MethodGet, "/api/v1/cloud/search?q=backup"},
	{http.MethodGet, "/api/v1/cloud/quota"},
	{http.MethodPost, "/api/v1/cloud/sync/a.sql"},
	{http.MethodPost, "/api/v1/cloud/pull/remote-1?name=a.sql"},
	{http.MethodDelete, "/api/v1/cloud/files/remote-1"},
}

func TestCloudRoutes_DisabledClient(t *testing.T) {
	t.Parallel()

	for name, cloud := range map[string]cloudsync.CloudSync{
		"nil":      nil,
		"disabled": cloudsync.Disabled{Reason: errors.New("no credentials")},
		"swapped":  cloudsync.NewSwappable(cloudsync.Disabled{}),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, cloud)
			f.stage(t, "a.sql", "x")
			router := f.router()

			for _, rt := range cloudRoutes {
				rec := serve(router, httptest.NewRequest(rt.method, rt.path, nil))
				if rec.Code != http.StatusServiceUnavailable {
					t.Errorf("%s %s = %d, want 503", rt.method, rt.path, rec.Code)
					continue
				}
				if code := errorCode(t, rec); code != CodeCloudDisabled {
					t.Errorf("%s %s code = %s", rt.method, rt.path, code)
				}
			}

			rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cloud/status", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status endpoint = %d", rec.Code)
			}
			var resp struct {
				Data CloudStatus `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Data.Initialized {
				t.Error("status reports initialized for a disabled client")
			}
		})
	}
}

func TestCloudSync_Deduplicates(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	f := newFixture(t, cloud)
	f.stage(t, "imported_backup_x_db.sql", "SELECT 1;")
	router := f.router()

	var ids []string
	for i := 0; i < 2; i++ {
		rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/sync/imported_backup_x_db.sql", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("sync %d = %d, body = %s", i, rec.Code, rec.Body.String())
		}
		var resp struct {
			Data SyncResult `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.Data.RemoteID)
	}

	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("remote ids = %v, want the same id twice", ids)
	}
	if cloud.uploads != 1 {
		t.Errorf("uploads = %d, want 1", cloud.uploads)
	}
}

func TestCloudSync_MissingStagedFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t, newFakeCloud())

	rec := serve(f.router(), httptest.NewRequest(http.MethodPost, "/api/v1/cloud/sync/nope.sql", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCloudPull(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	id := cloud.add("nightly_backup.sql", []byte("SELECT 2;"))
	textID := cloud.add("readme.txt", []byte("hi"))
	f := newFixture(t, cloud)
	router := f.router()

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/pull/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pull = %d, body = %s", rec.Code, rec.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(f.stagingDir, "nightly_backup.sql"))
	if err != nil || string(data) != "SELECT 2;" {
		t.Errorf("pulled content = %q, %v", data, err)
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/pull/"+id, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second pull = %d, want 409", rec.Code)
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/pull/"+textID, nil))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != CodeUnsupportedFormat {
		t.Errorf("pull of non-backup = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/pull/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("pull of unknown id = %d, want 404", rec.Code)
	}
}

func TestCloudRoutes_KeyStyleIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{"raw slash", "backups/nightly_backup.sql"},
		{"escaped slash", "backups%2Fnightly_backup.sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cloud := newFakeCloud()
			cloud.addWithID("backups/nightly_backup.sql", "nightly_backup.sql", []byte("SELECT 3;"))
			f := newFixture(t, cloud)
			router := f.router()

			rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/cloud/pull/"+tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("pull = %d, body = %s", rec.Code, rec.Body.String())
			}
			data, err := os.ReadFile(filepath.Join(f.stagingDir, "nightly_backup.sql"))
			if err != nil || string(data) != "SELECT 3;" {
				t.Errorf("pulled content = %q, %v", data, err)
			}

			rec = serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/cloud/files/"+tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("delete = %d, body = %s", rec.Code, rec.Body.String())
			}
			if cloud.has("backups/nightly_backup.sql") {
				t.Error("remote file still present after delete")
			}
		})
	}
}

func TestCloudDelete_BadEscape(t *testing.T) {
	t.Parallel()
	f := newFixture(t, newFakeCloud())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cloud/files/x", nil)
	req.URL.RawPath = "/api/v1/cloud/files/%zz"
	req.URL.Path = "/api/v1/cloud/files/%zz"
	rec := serve(f.router(), req)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != CodeInvalidRequest {
		t.Errorf("delete = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCloudReadRoutes(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	cloud.add("db_backup.sql", []byte("x"))
	cloud.add("Backup_upper.sql", []byte("x"))
	cloud.add("notes.txt", []byte("x"))
	f := newFixture(t, cloud)
	router := f.router()

	count := func(path string) int {
		t.Helper()
		rec := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, body = %s", path, rec.Code, rec.Body.String())
		}
		var resp struct {
			Data []cloudsync.RemoteFile `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return len(resp.Data)
	}

	if n := count("/api/v1/cloud/files"); n != 3 {
		t.Errorf("files = %d, want 3", n)
	}
	if n := count("/api/v1/cloud/backups"); n != 1 {
		t.Errorf("backups = %d, want 1", n)
	}
	if n := count("/api/v1/cloud/search?q=backup"); n != 1 {
		t.Errorf("search is case-sensitive, got %d matches", n)
	}

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cloud/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", rec.Code)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cloud/quota", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("quota = %d", rec.Code)
	}
}

func TestCloudErrors(t *testing.T) {
	t.Parallel()

	cloud := newFakeCloud()
	f := newFixture(t, cloud)
	router := f.router()

	rec := serve(router, httptest.NewRequest(http.MethodDelete, "/api/v1/cloud/files/unknown", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete unknown id = %d, want 400", rec.Code)
	}

	cloud.err = errors.New("googleapi: Error 500")
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cloud/files", nil))
	if rec.Code != http.StatusBadGateway || errorCode(t, rec) != CodeCloudError {
		t.Errorf("remote failure = %d, body = %s", rec.Code, rec.Body.String())
	}
}
