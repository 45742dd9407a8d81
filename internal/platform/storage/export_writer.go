package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type objectWriter interface {
	io.Writer
	Close() error
}

type openFunc func(ctx context.Context, bucket, object, contentType string) objectWriter

// ExportWriter uploads generated export files to Cloud Storage.
type ExportWriter struct {
	open openFunc
}

// NewExportWriter constructs an ExportWriter backed by the provided Cloud Storage client.
func NewExportWriter(client *gcs.Client) (*ExportWriter, error) {
	if client == nil {
		return nil, errors.New("storage export writer: client is required")
	}
	return &ExportWriter{
		open: func(ctx context.Context, bucket, object, contentType string) objectWriter {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = contentType
			w.CacheControl = "private, no-store"
			return w
		},
	}, nil
}

// Upload writes data to bucket/object and returns the gs:// URI of the stored object.
func (w *ExportWriter) Upload(ctx context.Context, bucket, object, contentType string, data []byte) (string, error) {
	if w == nil || w.open == nil {
		return "", errors.New("storage export writer: not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return "", errors.New("storage export writer: bucket and object must be provided")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	writer := w.open(ctx, bucket, object, contentType)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage export writer: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage export writer: finalize %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
