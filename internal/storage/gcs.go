package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"patchdb/internal/observability"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // optional, falls back to application default credentials
	PresignExpiry   time.Duration
}

// GCSStore stores objects in a GCS bucket and signs V4 URLs.
type GCSStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	expiry time.Duration
}

// NewGCSStore builds a GCSStore from cfg.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &GCSStore{client: client, bucket: client.Bucket(cfg.Bucket), expiry: expiry}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) sign(key, method, contentType string) (*PresignedURL, error) {
	expires := time.Now().Add(s.expiry)
	url, err := s.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:      gcs.SigningSchemeV4,
		Method:      method,
		ContentType: contentType,
		Expires:     expires,
	})
	s.observe("sign_"+method, err)
	if err != nil {
		return nil, fmt.Errorf("sign %s %q: %w", method, key, err)
	}
	out := &PresignedURL{URL: url, Method: method, Key: key, ExpiresAt: expires}
	if contentType != "" {
		out.Headers = map[string]string{"Content-Type": contentType}
	}
	return out, nil
}

func (s *GCSStore) PresignUpload(_ context.Context, key, contentType string) (*PresignedURL, error) {
	return s.sign(key, http.MethodPut, contentType)
}

func (s *GCSStore) PresignDownload(_ context.Context, key string) (*PresignedURL, error) {
	return s.sign(key, http.MethodGet, "")
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "gcs", "Attrs")
	defer span.End()

	_, err := s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		s.observe("attrs", nil)
		return false, nil
	}
	s.observe("attrs", err)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("attrs %q: %w", key, err)
	}
	return true, nil
}

func (s *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "gcs", "NewReader")
	defer span.End()

	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		s.observe("read", nil)
		return nil, ErrNotFound
	}
	s.observe("read", err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return r, nil
}

func (s *GCSStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.bucket.Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		s.observe("write", err)
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		s.observe("write", err)
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.observe("write", nil)
	return nil
}

func (s *GCSStore) observe(operation string, err error) {
	observability.StorageRequests.WithLabelValues("gcs", operation, observability.Outcome(err)).Inc()
}
