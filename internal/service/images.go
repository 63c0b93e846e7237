package service

import (
	"context"

	"patchdb/internal/middleware"
	"patchdb/internal/storage"
)

// presignedURL returns a download URL for key, or "" when signing fails.
// A missing image never fails the surrounding read.
func presignedURL(ctx context.Context, store storage.Store, key string) string {
	if store == nil || key == "" {
		return ""
	}
	u, err := store.PresignDownload(ctx, key)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to presign image URL", "key", key, "error", err)
		return ""
	}
	return u.URL
}
