// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
	"github.com/tomtom215/backhaul/internal/metrics"
)

const (
	// DefaultMaxConcurrent bounds in-flight remote calls per client.
	DefaultMaxConcurrent = 2

	// DefaultTimeout bounds each metadata call, and how long an upload or
	// download may go without moving any bytes.
	DefaultTimeout = 30 * time.Second
)

// ClientOptions tunes a Client.
type ClientOptions struct {
	MaxConcurrent int
	Timeout       time.Duration

	// Publisher receives cloud.synced events. Optional.
	Publisher events.Publisher
}

// Client implements CloudSync over a Backend.
type Client struct {
	backend   Backend
	sem       *semaphore.Weighted
	timeout   time.Duration
	publisher events.Publisher
}

var _ CloudSync = (*Client)(nil)

// NewClient wraps backend.
func NewClient(backend Backend, opts ClientOptions) *Client {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		backend:   backend,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout:   opts.Timeout,
		publisher: opts.Publisher,
	}
}

// IsInitialized always reports true for a Client.
func (c *Client) IsInitialized() bool { return true }

// Provider returns the backend name.
func (c *Client) Provider() string { return c.backend.Name() }

// call runs a metadata operation (list, search, delete, quota) bounded by
// the per-call timeout.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return c.run(ctx, op, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(callCtx)
	})
}

// transfer runs an operation that moves a file body. It has no overall
// deadline: it ends when ctx does, or with ErrTransferStalled once no bytes
// have moved for the per-call timeout. fn must route the body through the
// watch's Reader.
func (c *Client) transfer(ctx context.Context, op string, fn func(ctx context.Context, watch *stallWatch) error) error {
	return c.run(ctx, op, func(ctx context.Context) error {
		watchCtx, watch, stop := watchStall(ctx, c.timeout)
		defer stop()

		err := fn(watchCtx, watch)
		if err != nil && ctx.Err() == nil && errors.Is(context.Cause(watchCtx), ErrTransferStalled) {
			return fmt.Errorf("%w: no progress for %s: %w", ErrTransferStalled, c.timeout, err)
		}
		return err
	})
}

// run holds a concurrency slot for fn and records the outcome.
func (c *Client) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		metrics.RecordCloudOperation(op, time.Since(start), err)
		return fmt.Errorf("cloud %s: %w", op, err)
	}
	defer c.sem.Release(1)

	err := fn(ctx)
	metrics.RecordCloudOperation(op, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("op", op).Str("provider", c.backend.Name()).Msg("Cloud operation failed")
	}
	return err
}

// Upload stores the file at localPath as name. An empty mimeType is derived
// from the name.
func (c *Client) Upload(ctx context.Context, localPath, name, mimeType string) (string, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	if mimeType == "" {
		mimeType = MimeTypeFor(name)
	}

	var id string
	err := c.transfer(ctx, "upload", func(ctx context.Context, watch *stallWatch) error {
		f, err := os.Open(localPath) //nolint:gosec // G304: caller-provided artifact path
		if err != nil {
			return fmt.Errorf("open %s: %w", filepath.Base(localPath), err)
		}
		defer f.Close() //nolint:errcheck // read-only file

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", filepath.Base(localPath), err)
		}

		id, err = c.backend.Create(ctx, name, mimeType, watch.Reader(f), info.Size())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logging.Ctx(ctx).Info().
		Str("provider", c.backend.Name()).
		Str("name", name).
		Str("remote_id", id).
		Msg("Uploaded artifact to cloud")
	return id, nil
}

// Download writes file id to localPath. The call succeeds only once the
// whole body has been copied and the file synced; otherwise no file is left
// at localPath.
func (c *Client) Download(ctx context.Context, id, localPath string) error {
	return c.transfer(ctx, "download", func(ctx context.Context, watch *stallWatch) error {
		body, err := c.backend.Open(ctx, id)
		if err != nil {
			return fmt.Errorf("cloud download %s: %w", id, err)
		}
		defer body.Close() //nolint:errcheck // response body

		if err := writeFileAtomic(localPath, watch.Reader(body)); err != nil {
			return fmt.Errorf("cloud download %s: %w", id, err)
		}
		return nil
	})
}

// writeFileAtomic copies r to a temp file next to path and renames it into place.
func writeFileAtomic(path string, r io.Reader) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Delete removes file id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, "delete", func(ctx context.Context) error {
		if err := c.backend.Delete(ctx, id); err != nil {
			return fmt.Errorf("cloud delete %s: %w", id, err)
		}
		return nil
	})
}

// List returns the folder contents, newest first.
func (c *Client) List(ctx context.Context) ([]RemoteFile, error) {
	var files []RemoteFile
	err := c.call(ctx, "list", func(ctx context.Context) error {
		var err error
		files, err = c.backend.List(ctx)
		if err != nil {
			return fmt.Errorf("cloud list: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(files)
	return files, nil
}

// SearchByName returns folder files whose name contains query, newest first.
func (c *Client) SearchByName(ctx context.Context, query string) ([]RemoteFile, error) {
	var files []RemoteFile
	err := c.call(ctx, "search", func(ctx context.Context) error {
		var err error
		files, err = c.backend.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("cloud search: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Backends may match case-insensitively.
	matched := files[:0]
	for _, f := range files {
		if strings.Contains(f.Name, query) {
			matched = append(matched, f)
		}
	}
	sortNewestFirst(matched)
	return matched, nil
}

// SyncBackupToDrive uploads localPath as name unless a file with exactly
// that name already exists in the folder, in which case the existing id is
// returned and nothing is uploaded.
func (c *Client) SyncBackupToDrive(ctx context.Context, localPath, name string) (string, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}

	existing, err := c.SearchByName(ctx, name)
	if err != nil {
		return "", err
	}
	for _, f := range existing {
		if f.Name == name {
			metrics.RecordCloudDedupHit()
			logging.Ctx(ctx).Info().
				Str("name", name).
				Str("remote_id", f.ID).
				Msg("Artifact already present in cloud folder, skipping upload")
			c.publishSynced(ctx, name, f.ID, true)
			return f.ID, nil
		}
	}

	id, err := c.Upload(ctx, localPath, name, "")
	if err != nil {
		return "", err
	}
	c.publishSynced(ctx, name, id, false)
	return id, nil
}

func (c *Client) publishSynced(ctx context.Context, name, id string, dedup bool) {
	if c.publisher == nil {
		return
	}
	payload := events.CloudSyncedPayload{Name: name, RemoteID: id, Deduplicated: dedup}
	if err := c.publisher.Publish(ctx, events.TopicCloudSynced, payload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish cloud.synced")
	}
}

// GetBackupFiles lists the folder and keeps backup artifacts.
func (c *Client) GetBackupFiles(ctx context.Context) ([]RemoteFile, error) {
	files, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	backups := make([]RemoteFile, 0, len(files))
	for _, f := range files {
		if IsBackupFile(f) {
			backups = append(backups, f)
		}
	}
	return backups, nil
}

// Quota returns remote storage usage.
func (c *Client) Quota(ctx context.Context) (*Quota, error) {
	var q *Quota
	err := c.call(ctx, "quota", func(ctx context.Context) error {
		var err error
		q, err = c.backend.Quota(ctx)
		if err != nil {
			return fmt.Errorf("cloud quota: %w", err)
		}
		return nil
	})
	return q, err
}

func sortNewestFirst(files []RemoteFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].CreatedTime.Equal(files[j].CreatedTime) {
			return files[i].CreatedTime.After(files[j].CreatedTime)
		}
		return files[i].Name < files[j].Name
	})
}

// Disabled is the CloudSync used when no backend is available.
type Disabled struct {
	// Reason is why initialization failed, if it did.
	Reason error
}

var _ CloudSync = Disabled{}

// IsInitialized reports false.
func (Disabled) IsInitialized() bool { return false }

// Provider returns "disabled".
func (Disabled) Provider() string { return "disabled" }

// Upload fails with ErrClientNotInitialized.
func (Disabled) Upload(context.Context, string, string, string) (string, error) {
	return "", ErrClientNotInitialized
}

// Download fails with ErrClientNotInitialized.
func (Disabled) Download(context.Context, string, string) error {
	return ErrClientNotInitialized
}

// Delete fails with ErrClientNotInitialized.
func (Disabled) Delete(context.Context, string) error {
	return ErrClientNotInitialized
}

// List fails with ErrClientNotInitialized.
func (Disabled) List(context.Context) ([]RemoteFile, error) {
	return nil, ErrClientNotInitialized
}

// SearchByName fails with ErrClientNotInitialized.
func (Disabled) SearchByName(context.Context, string) ([]RemoteFile, error) {
	return nil, ErrClientNotInitialized
}

// SyncBackupToDrive fails with ErrClientNotInitialized.
func (Disabled) SyncBackupToDrive(context.Context, string, string) (string, error) {
	return "", ErrClientNotInitialized
}

// GetBackupFiles fails with ErrClientNotInitialized.
func (Disabled) GetBackupFiles(context.Context) ([]RemoteFile, error) {
	return nil, ErrClientNotInitialized
}

// Quota fails with ErrClientNotInitialized.
func (Disabled) Quota(context.Context) (*Quota, error) {
	return nil, ErrClientNotInitialized
}

// IsNotInitialized reports whether err means cloud sync is unavailable.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrClientNotInitialized)
}
