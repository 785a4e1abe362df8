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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Default extraction limits.
const (
	DefaultMaxEntrySize  int64 = 1 << 30
	DefaultMaxBundleSize int64 = 4 << 30
)

// ExtractLimits bounds bundle extraction to prevent decompression bombs.
type ExtractLimits struct {
	MaxEntrySize  int64
	MaxBundleSize int64
}

func (l ExtractLimits) withDefaults() ExtractLimits {
	if l.MaxEntrySize <= 0 {
		l.MaxEntrySize = DefaultMaxEntrySize
	}
	if l.MaxBundleSize <= 0 {
		l.MaxBundleSize = DefaultMaxBundleSize
	}
	return l
}

// openArchiveReader opens a gzip-compressed tar file.
// The caller closes the returned closers with closeAll.
//
//nolint:gosec // G304: archivePath is a staged artifact
func openArchiveReader(archivePath string) (*tar.Reader, []io.Closer, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open bundle: %w", err)
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close() //nolint:errcheck // best effort cleanup on error
		return nil, nil, fmt.Errorf("read gzip header: %w", err)
	}

	return tar.NewReader(gz), []io.Closer{file, gz}, nil
}

// closeAll closes all closers in reverse order.
func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close() //nolint:errcheck // best effort cleanup
	}
}

// extractArchive unpacks archivePath into destDir. Only regular files and
// directories are materialized; links and devices are skipped.
//
//nolint:gosec // G305: entry paths are validated by destPathFor
func extractArchive(ctx context.Context, archivePath, destDir string, limits ExtractLimits) error {
	limits = limits.withDefaults()

	tr, closers, err := openArchiveReader(archivePath)
	if err != nil {
		return err
	}
	defer closeAll(closers)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, header.Name)
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			dir, err := destPathFor(destDir, header.Name)
			if err != nil {
				return err
			}
			if dir == filepath.Clean(destDir) {
				// "./" root entry written by tar -C dir .
				continue
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}

		case tar.TypeReg:
			if header.Size > limits.MaxEntrySize {
				return fmt.Errorf("%w: entry %s is %d bytes (max %d)",
					ErrUnsafeArchive, header.Name, header.Size, limits.MaxEntrySize)
			}
			total += header.Size
			if total > limits.MaxBundleSize {
				return fmt.Errorf("%w: bundle exceeds %d bytes", ErrUnsafeArchive, limits.MaxBundleSize)
			}

			dest, err := destPathFor(destDir, header.Name)
			if err != nil {
				return err
			}
			if dest == filepath.Clean(destDir) {
				return fmt.Errorf("%w: file entry names the scratch directory: %s", ErrUnsafeArchive, header.Name)
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
				return fmt.Errorf("create directory for %s: %w", header.Name, err)
			}
			if err := extractFile(tr, dest, header.Size); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}

		default:
			// symlinks, hard links, devices and fifos
			continue
		}
	}
}

// destPathFor resolves an entry name inside destDir, rejecting traversal.
// The root entry ("." or "./") resolves to destDir itself.
func destPathFor(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute path %s", ErrUnsafeArchive, name)
	}

	root := filepath.Clean(destDir)
	dest := filepath.Join(destDir, name)
	if dest == root {
		return dest, nil
	}
	if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path escapes scratch directory: %s", ErrUnsafeArchive, name)
	}
	return dest, nil
}

// extractFile copies exactly size bytes from r to dest.
//
//nolint:gosec // G304: dest is validated by destPathFor
func extractFile(r io.Reader, dest string, size int64) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, io.LimitReader(r, size))
	closeErr := out.Close()

	if err == nil && n != size {
		err = fmt.Errorf("short entry: got %d of %d bytes", n, size)
	}
	if err != nil {
		os.Remove(dest) //nolint:errcheck // best effort cleanup on error
		return err
	}
	if closeErr != nil {
		os.Remove(dest) //nolint:errcheck // best effort cleanup on error
		return closeErr
	}
	return nil
}

// topLevelFiles lists the regular files directly inside dir, in name order.
func topLevelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
