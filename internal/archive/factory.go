package archive

import (
	"context"
	"fmt"
)

// Config carries the backend-specific settings read from the Settings
// table (storage.backend plus its per-backend keys). Only the fields the
// selected backend needs must be populated.
type Config struct {
	Backend string // "local" | "s3" | "azure" | "gcs"

	LocalDir string

	S3Bucket string
	S3Region string

	AzureAccount   string
	AzureAccessKey string
	AzureContainer string

	GCSBucket string
}

// NewBackend builds the Backend named by cfg.Backend, the same
// switch-on-a-string shape as the teacher's NewStorageService factory,
// but completing every branch instead of erroring out of AWS/Azure/GCP.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./data/archive"
		}
		return NewLocalBackend(dir), nil
	case "s3":
		return NewS3Backend(ctx, cfg.S3Bucket, cfg.S3Region)
	case "azure":
		return NewAzureBackend(cfg.AzureAccount, cfg.AzureAccessKey, cfg.AzureContainer)
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("archive: unknown storage backend %q", cfg.Backend)
	}
}
