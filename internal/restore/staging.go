// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package restore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StagedPrefix starts every staged artifact name.
const StagedPrefix = "imported_backup_"

// stagedTimeLayout is ISO 8601 UTC with millisecond precision, with ':' and
// '.' replaced by '-'.
const stagedTimeLayout = "2006-01-02T15-04-05-000Z"

// Stager owns the staging directory.
type Stager struct {
	dir string
	now func() time.Time
}

// NewStager creates a stager rooted at dir. The directory is created lazily.
func NewStager(dir string) *Stager {
	return &Stager{dir: dir, now: time.Now}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// EnsureDir creates the staging directory if needed.
func (s *Stager) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrStagingUnavailable, err)
	}
	return nil
}

// SanitizeFilename reduces an uploaded name to its base name.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := filepath.Base(name)
	if name == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: contains NUL byte", ErrInvalidFilename)
	}
	return base, nil
}

// StagedName builds the unique staging name for an original filename:
// imported_backup_<timestamp>_<random>_<original>.
func (s *Stager) StagedName(original string) string {
	ts := s.now().UTC().Format(stagedTimeLayout)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return StagedPrefix + ts + "_" + random + "_" + original
}

// Write stores r under name atomically: a temp file in the staging directory
// is written, synced, closed and renamed into place. It returns the final path
// and the number of bytes written.
func (s *Stager) Write(name string, r io.Reader) (string, int64, error) {
	if err := s.EnsureDir(); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrStagingUnavailable, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()        //nolint:errcheck // best effort cleanup on error
		os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		return "", n, fmt.Errorf("write staged artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        //nolint:errcheck // best effort cleanup on error
		os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		return "", n, fmt.Errorf("%w: sync: %w", ErrStagingUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		return "", n, fmt.Errorf("%w: close: %w", ErrStagingUnavailable, err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		return "", n, fmt.Errorf("%w: rename: %w", ErrStagingUnavailable, err)
	}
	return final, n, nil
}

// validID rejects identifiers that could leave the staging directory.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, id)
	}
	return nil
}

// Lookup finds the staged artifact for a base identifier, probing suffixes in
// ProbeOrder. The first existing regular file wins.
func (s *Stager) Lookup(id string) (path string, kind Kind, err error) {
	if err := validID(id); err != nil {
		return "", "", err
	}
	for _, k := range ProbeOrder {
		candidate := filepath.Join(s.dir, id+k.Suffix())
		info, statErr := os.Stat(candidate)
		if statErr == nil && info.Mode().IsRegular() {
			return candidate, k, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
}

// Path resolves a full staged file name (with suffix) inside the staging directory.
func (s *Stager) Path(name string) (string, error) {
	if err := validID(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, name)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	return p, nil
}

// StagedFile describes one artifact in the staging directory.
type StagedFile struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// List returns the classifiable artifacts in the staging directory, newest first.
// Temp files and scratch directories are excluded.
func (s *Stager) List() ([]StagedFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []StagedFile{}, nil
		}
		return nil, err
	}

	files := make([]StagedFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		kind, err := Classify(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, StagedFile{Name: e.Name(), Kind: kind, Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Remove deletes a staged file.
func (s *Stager) Remove(path string) error {
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return fmt.Errorf("%w: %s is outside the staging directory", ErrInvalidFilename, path)
	}
	return os.Remove(path)
}

// SweepStale removes upload temp files and bundle scratch directories last
// modified before olderThan ago. These are left behind only when the process
// dies mid-restore. It returns the number of entries removed.
func (s *Stager) SweepStale(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		leftover := (!e.IsDir() && strings.HasPrefix(name, ".upload-")) ||
			(e.IsDir() && strings.HasSuffix(name, ScratchSuffix))
		if !leftover {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
