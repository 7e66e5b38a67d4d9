// Package gcs archives uploaded spreadsheets to a Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

const (
	uploadPrefix   = "uploads"
	defaultTimeout = 2 * time.Minute
)

type writerFunc func(ctx context.Context, bucket, object string) io.WriteCloser

// Archive stores spreadsheet bytes under uploads/<checksum>/<filename>.
type Archive struct {
	client    *storage.Client
	bucket    string
	newWriter writerFunc
}

// NewArchive creates an Archive for bucket.
// It assumes Application Default Credentials are configured.
func NewArchive(ctx context.Context, bucket string) (*Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewArchive: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewArchive: create storage client: %w", err)
	}
	a := &Archive{client: client, bucket: bucket}
	a.newWriter = func(ctx context.Context, bucket, object string) io.WriteCloser {
		return client.Bucket(bucket).Object(object).NewWriter(ctx)
	}
	return a, nil
}

// Close closes the storage client.
func (a *Archive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Archive uploads data and returns its gs:// URI.
func (a *Archive) Archive(ctx context.Context, checksum, filename string, data []byte) (string, error) {
	object := ObjectName(checksum, filename)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	w := a.newWriter(ctx, a.bucket, object)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize upload: %w", err)
	}

	uri := URI(a.bucket, object)
	log := logger.FromContext(ctx)
	log.Info().
		Str("uri", uri).
		Int("size_bytes", len(data)).
		Msg("Archived spreadsheet")
	return uri, nil
}

// ObjectName is the object path for an upload. Only the base name of
// filename is kept; an empty one becomes "upload".
func ObjectName(checksum, filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join(uploadPrefix, checksum, name)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}
