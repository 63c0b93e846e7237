package storage

import (
	"context"
	"fmt"

	"patchdb/internal/config"
)

// New builds the Store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			PresignExpiry:   cfg.PresignExpiry(),
		})
	case "gcs":
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			PresignExpiry:   cfg.PresignExpiry(),
		})
	case "memory", "":
		return NewMemoryStore("", cfg.PresignExpiry()), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
