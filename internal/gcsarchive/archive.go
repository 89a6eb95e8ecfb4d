// Package gcsarchive stores run summaries in a GCS bucket so past runs can
// be compared after the fact.
package gcsarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver persists a rendered run summary. An interface so the engine can
// run without a bucket (and tests without a network).
type Archiver interface {
	ArchiveSummary(ctx context.Context, runID string, summary []byte) (string, error)
}

// GCSArchiver writes summaries under prefix/<date>/<run-id>.txt.
type GCSArchiver struct {
	bucket string
	prefix string
}

// NewGCSArchiver creates an archiver targeting the given bucket and prefix.
// Assumes Application Default Credentials are configured.
func NewGCSArchiver(bucket, prefix string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket, prefix: prefix}
}

// ObjectName builds the object path for a run's summary.
func (a *GCSArchiver) ObjectName(runID string, now time.Time) string {
	return path.Join(a.prefix, now.UTC().Format("2006-01-02"), runID+".txt")
}

// ArchiveSummary uploads the summary bytes and returns the gs:// URI.
func (a *GCSArchiver) ArchiveSummary(ctx context.Context, runID string, summary []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("ArchiveSummary: create storage client: %w", err)
	}
	defer client.Close()

	objectName := a.ObjectName(runID, time.Now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(summary)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchiveSummary: copy summary to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchiveSummary: finalize upload: %w", err)
	}

	return "gs://" + a.bucket + "/" + objectName, nil
}
