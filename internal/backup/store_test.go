// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/backhaul/internal/events"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-settings.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Get() != Defaults() {
		t.Errorf("Get() = %+v, want defaults", s.Get())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the file")
	}
}

func TestOpen_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-settings.json")
	if err := os.WriteFile(path, []byte(`{"retention_days": 90}`), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Get()
	if got.RetentionDays != 90 || got.CompressionLevel != Defaults().CompressionLevel {
		t.Errorf("Get() = %+v", got)
	}
}

func TestOpen_RejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"malformed": `{"retention_days":`,
		"invalid":   `{"retention_days": 0}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.json")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Open(path, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStore_UpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "backup-settings.json")
	pub := &capturePublisher{}
	s, err := Open(path, pub)
	if err != nil {
		t.Fatal(err)
	}

	var seen []Settings
	s.OnChange(func(next Settings) { seen = append(seen, next) })

	next := s.Get()
	next.CloudSync.Enabled = true
	next.CloudSync.FolderID = "folder-1"
	next.MaxConcurrent = 5
	if _, err := s.Update(context.Background(), next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Get() != next {
		t.Errorf("reopened = %+v, want %+v", reopened.Get(), next)
	}

	if len(seen) != 1 || seen[0].CloudSync.FolderID != "folder-1" {
		t.Errorf("listeners saw %+v", seen)
	}
	if len(pub.topics) != 1 || pub.topics[0] != events.TopicBackupSettingsUpdated {
		t.Errorf("published %v", pub.topics)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestStore_UpdateRejectsWithoutWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-settings.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := s.Get()

	bad := before
	bad.TimeoutSeconds = 121
	if _, err := s.Update(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected update must not write the file")
	}
	if s.Get() != before {
		t.Error("rejected update must not change current settings")
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-settings.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(days int) {
			defer wg.Done()
			next := Defaults()
			next.RetentionDays = days
			if _, err := s.Update(context.Background(), next); err != nil {
				t.Errorf("Update(%d) error = %v", days, err)
			}
		}(i)
	}
	wg.Wait()

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("file corrupted by concurrent updates: %v", err)
	}
	if reopened.Get() != s.Get() {
		t.Errorf("file %+v does not match memory %+v", reopened.Get(), s.Get())
	}
}

func TestStore_ListenersSeeUpdatesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-settings.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		mu       sync.Mutex
		last     Settings
	)
	s.OnChange(func(next Settings) {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		// Widen the window between persisting and notifying.
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = next
		mu.Unlock()
		inFlight.Add(-1)
	})

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(days int) {
			defer wg.Done()
			next := Defaults()
			next.RetentionDays = days
			if _, err := s.Update(context.Background(), next); err != nil {
				t.Errorf("Update(%d) error = %v", days, err)
			}
		}(i)
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("listeners ran concurrently")
	}
	mu.Lock()
	defer mu.Unlock()
	if last != s.Get() {
		t.Errorf("last listener saw %+v, current is %+v", last, s.Get())
	}
}
