package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. It backs development setups and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
	expiry  time.Duration
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore returns an empty MemoryStore whose URLs are rooted at baseURL.
func NewMemoryStore(baseURL string, expiry time.Duration) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://patchdb"
	}
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &MemoryStore{objects: make(map[string]memoryObject), baseURL: baseURL, expiry: expiry}
}

func (s *MemoryStore) url(key, method string, expires time.Time) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", fmt.Sprint(expires.Unix()))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, key, q.Encode())
}

func (s *MemoryStore) PresignUpload(_ context.Context, key, contentType string) (*PresignedURL, error) {
	expires := time.Now().Add(s.expiry)
	out := &PresignedURL{URL: s.url(key, http.MethodPut, expires), Method: http.MethodPut, Key: key, ExpiresAt: expires}
	if contentType != "" {
		out.Headers = map[string]string{"Content-Type": contentType}
	}
	return out, nil
}

func (s *MemoryStore) PresignDownload(_ context.Context, key string) (*PresignedURL, error) {
	expires := time.Now().Add(s.expiry)
	return &PresignedURL{URL: s.url(key, http.MethodGet, expires), Method: http.MethodGet, Key: key, ExpiresAt: expires}, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) Upload(_ context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	s.Put(key, data, contentType)
	return nil
}

// Put stores data under key.
func (s *MemoryStore) Put(key string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
