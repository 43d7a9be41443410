// Package storage is the thin gateway to the blob store. It issues
// time-limited upload/download credentials and performs batch deletes
package storage

import (
	"context"
	"time"

	"bitrel/media-api/internal/model"
)

type UploadCredential struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"storageKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DownloadCredential struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Gateway interface {
	// IssueUploadCredential validates the candidate against the kind
	// policy and returns a presigned PUT for a fresh storage key
	IssueUploadCredential(ctx context.Context, aggregateID string, kind model.MediaKind, fileName, mimeType string, size int64) (*UploadCredential, error)

	// IssueDownloadCredential returns a presigned GET for a key
	IssueDownloadCredential(ctx context.Context, key string) (*DownloadCredential, error)

	// Delete removes keys best-effort, partitioning the outcome.
	// Individual key failures never surface as an error
	Delete(ctx context.Context, keys []string) (deleted, failed []string)
}
