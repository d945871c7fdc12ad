package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"segmentation_backend/internal/adapters/storage"
)

// ReportArchive uploads finished batch reports as JSON objects.
type ReportArchive struct {
	store  storage.StorageService
	bucket string
	prefix string
}

// NewReportArchive creates an archive writing to bucket under prefix.
func NewReportArchive(store storage.StorageService, bucket, prefix string) *ReportArchive {
	return &ReportArchive{store: store, bucket: bucket, prefix: prefix}
}

// Store uploads the report and returns its object key. The key is derived
// from the run id, so storing the same report twice overwrites one object.
func (a *ReportArchive) Store(ctx context.Context, report Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sync report: %w", err)
	}

	key := archiveKey(a.prefix, report)
	if err := a.store.UploadObject(ctx, a.bucket, key, "application/json", bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return key, nil
}

// DownloadURL returns a presigned link to an archived report.
func (a *ReportArchive) DownloadURL(ctx context.Context, key string) (*storage.PresignedURL, error) {
	return a.store.GenerateDownloadURL(ctx, a.bucket, key)
}
