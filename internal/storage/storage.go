// Package storage wraps the object store that holds patch and collection photos.
// Clients upload bytes directly through pre-signed URLs; the server only
// signs URLs, probes for existence and streams objects to the similarity service.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// DefaultPresignExpiry is the lifetime of pre-signed URLs unless configured otherwise.
const DefaultPresignExpiry = 4 * time.Hour

// PresignedURL is a time-limited URL granting one HTTP method on one object.
type PresignedURL struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Key       string            `json:"key"`
	FileID    string            `json:"fileId,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Store is the object-store gateway.
type Store interface {
	// PresignUpload returns a URL the client can PUT the object to.
	PresignUpload(ctx context.Context, key, contentType string) (*PresignedURL, error)
	// PresignDownload returns a URL the client can GET the object from.
	PresignDownload(ctx context.Context, key string) (*PresignedURL, error)
	// Exists probes for the object without downloading it.
	Exists(ctx context.Context, key string) (bool, error)
	// Download streams the object. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Upload writes the object from the server side.
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// UserFileKey is the key of a file a user uploaded.
func UserFileKey(userID uuid.UUID, fileID string) string {
	return fmt.Sprintf("%s/%s", userID, fileID)
}

// PatchFileKey is the key of a canonical patch image.
func PatchFileKey(fileID string) string {
	return "patches/" + fileID
}

// ReadAll downloads an object fully into memory, bounded by limit bytes.
func ReadAll(ctx context.Context, s Store, key string, limit int64) ([]byte, error) {
	rc, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("object %q exceeds %d bytes", key, limit)
	}
	return data, nil
}
