package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Writer stores blobs at a resolved location.
type Writer interface {
	Write(ctx context.Context, loc ObjectLocation, contentType string, data []byte) error
	// Check verifies the backend is reachable for prefix without writing.
	Check(ctx context.Context, prefix string) error
}

// GCSWriter writes objects to Google Cloud Storage. ObjectLocation.Bucket selects the bucket.
type GCSWriter struct {
	client *storage.Client
}

func NewGCSWriter(client *storage.Client) *GCSWriter {
	if client == nil {
		panic("gcs writer requires client")
	}
	return &GCSWriter{client: client}
}

func (w *GCSWriter) Write(ctx context.Context, loc ObjectLocation, contentType string, data []byte) error {
	obj := w.client.Bucket(loc.Bucket).Object(loc.FullPath)
	ow := obj.NewWriter(ctx)
	ow.ContentType = contentType
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return fmt.Errorf("write object %s: %w", loc.FullPath, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", loc.FullPath, err)
	}
	return nil
}

// Check lists at most one object under the bucket/prefix; an empty prefix is fine.
func (w *GCSWriter) Check(ctx context.Context, bucketAndPrefix string) error {
	bucket, prefix, _ := strings.Cut(bucketAndPrefix, "/")
	if bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	bkt := w.client.Bucket(bucket)
	if _, err := bkt.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket attrs: %w", err)
	}

	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list prefix: %w", err)
	}
	return nil
}

// LocalWriter writes objects under BasePath/<bucket>/<path>. Meant for local development.
type LocalWriter struct {
	BasePath string
}

func NewLocalWriter(basePath string) *LocalWriter {
	if basePath == "" {
		panic("local writer requires basePath")
	}
	return &LocalWriter{BasePath: basePath}
}

func (w *LocalWriter) Write(ctx context.Context, loc ObjectLocation, contentType string, data []byte) error {
	full := filepath.Join(w.BasePath, loc.Bucket, filepath.FromSlash(loc.FullPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// Check ensures the directory exists; safe and idempotent for local dev.
func (w *LocalWriter) Check(ctx context.Context, prefix string) error {
	if err := os.MkdirAll(filepath.Join(w.BasePath, filepath.FromSlash(prefix)), 0o755); err != nil {
		return fmt.Errorf("create prefix path: %w", err)
	}
	return nil
}

var (
	_ Writer = (*GCSWriter)(nil)
	_ Writer = (*LocalWriter)(nil)
)
