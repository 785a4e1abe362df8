// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

package cloudsync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFileFields = "id, name, size, mimeType, createdTime, modifiedTime"

// DriveBackend stores files in one Google Drive folder.
type DriveBackend struct {
	svc      *drive.Service
	folderID string
}

var _ Backend = (*DriveBackend)(nil)

// DriveCredentialsFile authenticates with a service account key file.
func DriveCredentialsFile(path string) option.ClientOption {
	return option.WithCredentialsFile(path)
}

// NewDriveBackend connects to Drive. opts carry credentials, or an endpoint
// and HTTP client in tests.
func NewDriveBackend(ctx context.Context, folderID string, opts ...option.ClientOption) (*DriveBackend, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveScope)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveBackend{svc: svc, folderID: folderID}, nil
}

// Name implements Backend.
func (b *DriveBackend) Name() string { return ProviderDrive }

// Create implements Backend.
func (b *DriveBackend) Create(ctx context.Context, name, mimeType string, body io.Reader, _ int64) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{b.folderID},
	}
	f, err := b.svc.Files.Create(meta).
		Media(body, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

// Open implements Backend.
func (b *DriveBackend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := b.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete implements Backend.
func (b *DriveBackend) Delete(ctx context.Context, id string) error {
	return b.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
}

// List implements Backend.
func (b *DriveBackend) List(ctx context.Context) ([]RemoteFile, error) {
	return b.query(ctx, b.folderQuery())
}

// Search implements Backend. Drive matches name substrings case-insensitively.
func (b *DriveBackend) Search(ctx context.Context, query string) ([]RemoteFile, error) {
	return b.query(ctx, b.folderQuery()+" and name contains '"+escapeDriveQuery(query)+"'")
}

func (b *DriveBackend) folderQuery() string {
	return "'" + escapeDriveQuery(b.folderID) + "' in parents and trashed = false"
}

func (b *DriveBackend) query(ctx context.Context, q string) ([]RemoteFile, error) {
	files := []RemoteFile{}
	err := b.svc.Files.List().
		Q(q).
		OrderBy("createdTime desc").
		Fields(googleapi.Field("nextPageToken, files(" + driveFileFields + ")")).
		PageSize(100).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, fromDriveFile(f))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Quota implements Backend.
func (b *DriveBackend) Quota(ctx context.Context) (*Quota, error) {
	about, err := b.svc.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if about.StorageQuota == nil {
		return &Quota{}, nil
	}
	return &Quota{Limit: about.StorageQuota.Limit, Usage: about.StorageQuota.Usage}, nil
}

func fromDriveFile(f *drive.File) RemoteFile {
	return RemoteFile{
		ID:           f.Id,
		Name:         f.Name,
		Size:         f.Size,
		MimeType:     f.MimeType,
		CreatedTime:  parseDriveTime(f.CreatedTime),
		ModifiedTime: parseDriveTime(f.ModifiedTime),
	}
}

func parseDriveTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// escapeDriveQuery escapes a literal for a single-quoted Drive query string.
func escapeDriveQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
