package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"patchdb/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("4f9c2a9e-54b3-4a7c-9c58-0c3f2b43b1aa")
	assert.Equal(t, "4f9c2a9e-54b3-4a7c-9c58-0c3f2b43b1aa/photo.jpg", UserFileKey(id, "photo.jpg"))
	assert.Equal(t, "patches/abc.png", PatchFileKey("abc.png"))
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("", time.Minute)

	ok, err := s.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Download(ctx, "a/b")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upload(ctx, "a/b", strings.NewReader("hello"), "text/plain"))
	ok, err = s.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := ReadAll(ctx, s, "a/b", 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Presign(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("memory://bucket", time.Hour)

	up, err := s.PresignUpload(ctx, "u/f", "image/png")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, up.Method)
	assert.True(t, strings.HasPrefix(up.URL, "memory://bucket/u/f?"))
	assert.Equal(t, "image/png", up.Headers["Content-Type"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), up.ExpiresAt, 5*time.Second)

	down, err := s.PresignDownload(ctx, "u/f")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, down.Method)
	assert.Nil(t, down.Headers)
}

func TestReadAll_Limit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("", 0)
	s.Put("big", bytes.Repeat([]byte{1}, 32), "")

	_, err := ReadAll(ctx, s, "big", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	data, err := ReadAll(ctx, s, "big", 32)
	require.NoError(t, err)
	assert.Len(t, data, 32)
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(&types.NotFound{}))
	assert.True(t, isS3NotFound(&types.NoSuchKey{}))
	assert.True(t, isS3NotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isS3NotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isS3NotFound(errors.New("boom")))
}

func TestFlattenHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Host", "bucket.s3.amazonaws.com")
	h.Set("Content-Type", "image/jpeg")
	out := flattenHeader(h)
	assert.Equal(t, map[string]string{"Content-Type": "image/jpeg"}, out)
	assert.Nil(t, flattenHeader(nil))
}

func TestNew_SelectsDriver(t *testing.T) {
	s, err := New(context.Background(), &config.Config{StorageDriver: "memory", PresignExpiryMinutes: 10})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(context.Background(), &config.Config{StorageDriver: "ftp"})
	assert.Error(t, err)
}
