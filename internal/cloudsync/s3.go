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
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3-compatible backend.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool

	// AccessKey and SecretKey select static credentials. Otherwise the
	// shared credentials file (or the default chain) is used.
	AccessKey       string
	SecretKey       string
	CredentialsFile string

	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// S3Backend stores files under a key prefix in one bucket. The prefix plays
// the role of the folder and the object key is the remote id.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend builds an S3 client for the folder (key prefix) folderID.
func NewS3Backend(ctx context.Context, folderID string, opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	switch {
	case opts.AccessKey != "" && opts.SecretKey != "":
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	case opts.CredentialsFile != "":
		loadOpts = append(loadOpts, config.WithSharedCredentialsFiles([]string{opts.CredentialsFile}))
	}
	if opts.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.UsePathStyle {
			o.UsePathStyle = true
		}
		// S3-compatible stores often reject the default trailing checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &S3Backend{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(folderID, "/"),
	}, nil
}

// Name implements Backend.
func (b *S3Backend) Name() string { return ProviderS3 }

func (b *S3Backend) keyFor(name string) string {
	return b.prefix + "/" + path.Base(name)
}

// checkKey rejects ids outside the folder.
func (b *S3Backend) checkKey(id string) error {
	rest, ok := strings.CutPrefix(id, b.prefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return fmt.Errorf("%w: %s", ErrInvalidRemoteID, id)
	}
	return nil
}

// Create implements Backend.
func (b *S3Backend) Create(ctx context.Context, name, mimeType string, body io.Reader, size int64) (string, error) {
	key := b.keyFor(name)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mimeType),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Open implements Backend.
func (b *S3Backend) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := b.checkKey(id); err != nil {
		return nil, err
	}
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete implements Backend.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	if err := b.checkKey(id); err != nil {
		return err
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	return err
}

// List implements Backend. Only direct children of the prefix are listed.
func (b *S3Backend) List(ctx context.Context) ([]RemoteFile, error) {
	files := []RemoteFile{}

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(b.prefix + "/"),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, b.prefix+"/")
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			modified := aws.ToTime(obj.LastModified)
			files = append(files, RemoteFile{
				ID:           key,
				Name:         name,
				Size:         aws.ToInt64(obj.Size),
				MimeType:     MimeTypeFor(name),
				CreatedTime:  modified,
				ModifiedTime: modified,
			})
		}
	}
	return files, nil
}

// Search implements Backend. S3 has no name search, so the folder listing is filtered.
func (b *S3Backend) Search(ctx context.Context, query string) ([]RemoteFile, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]RemoteFile, 0, len(all))
	for _, f := range all {
		if strings.Contains(f.Name, query) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// Quota implements Backend. Buckets have no limit, so usage is the folder size.
func (b *S3Backend) Quota(ctx context.Context) (*Quota, error) {
	files, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	q := &Quota{}
	for _, f := range files {
		q.Usage += f.Size
	}
	return q, nil
}
