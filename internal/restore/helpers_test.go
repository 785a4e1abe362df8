// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

// tarEntry describes one entry written by writeBundle.
type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

// writeBundle writes a gzip-compressed tar containing entries to dir/name.
func writeBundle(t *testing.T, dir, name string, entries ...tarEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o600,
			Typeflag: typeflag,
			Linkname: e.linkname,
		}
		if typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if typeflag == tar.TypeDir {
			hdr.Mode = 0o750
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body %s: %v", e.name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

// member is shorthand for a regular tar entry.
func member(name, body string) tarEntry {
	return tarEntry{name: name, body: body}
}

// mockRestorer counts calls and records the member names it saw.
type mockRestorer struct {
	calls atomic.Int32
	err   error

	mu      sync.Mutex
	members []string
	bodies  []string
}

func (m *mockRestorer) Restore(_ context.Context, path string) error {
	m.calls.Add(1)

	body, readErr := os.ReadFile(path)

	m.mu.Lock()
	m.members = append(m.members, filepath.Base(path))
	if readErr == nil {
		m.bodies = append(m.bodies, string(body))
	}
	m.mu.Unlock()

	return m.err
}

func (m *mockRestorer) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members...)
}

// mockSet bundles one mock per kind.
type mockSet struct {
	db       *mockRestorer
	settings *mockRestorer
	metrics  *mockRestorer
}

func newMockSet() *mockSet {
	return &mockSet{db: &mockRestorer{}, settings: &mockRestorer{}, metrics: &mockRestorer{}}
}

func (s *mockSet) restorers() Restorers {
	return Restorers{Database: s.db, Settings: s.settings, Metrics: s.metrics}
}

var errBoom = errors.New("boom")

// assertNoScratch fails if the scratch directory for stagedPath exists.
func assertNoScratch(t *testing.T, stagedPath string) {
	t.Helper()
	if _, err := os.Stat(ScratchDir(stagedPath)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("scratch directory %s should be removed, stat err = %v", ScratchDir(stagedPath), err)
	}
}
