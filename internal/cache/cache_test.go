package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPatch struct {
	Number uint   `json:"number"`
	Name   string `json:"name"`
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedPatch) func() error {
		return func() error {
			calls++
			*dest = cachedPatch{Number: 7, Name: "KTH Datateknik"}
			return nil
		}
	}

	var first cachedPatch
	require.NoError(t, Aside(ctx, PatchKey(7), &first, PatchTTL, fetch(&first)))
	assert.Equal(t, "KTH Datateknik", first.Name)
	assert.True(t, mr.Exists("patch:7"))

	var second cachedPatch
	require.NoError(t, Aside(ctx, PatchKey(7), &second, PatchTTL, fetch(&second)))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	InvalidatePatch(ctx, 7)
	assert.False(t, mr.Exists("patch:7"))
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := setupRedis(t)
	var dest cachedPatch
	err := Aside(context.Background(), PatchKey(9), &dest, PatchTTL, func() error {
		return errors.New("not found")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("patch:9"))
}

func TestAside_WithoutClient(t *testing.T) {
	SetClient(nil)
	var dest cachedPatch
	calls := 0
	for i := 0; i < 2; i++ {
		require.NoError(t, Aside(context.Background(), PatchKey(1), &dest, PatchTTL, func() error {
			calls++
			return nil
		}))
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidateUser(t *testing.T) {
	mr := setupRedis(t)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, mr.Set(UserKey(a), "{}"))
	require.NoError(t, mr.Set(UserKey(b), "{}"))

	InvalidateUser(context.Background(), a, b)
	assert.False(t, mr.Exists(UserKey(a)))
	assert.False(t, mr.Exists(UserKey(b)))
}

func TestFlags(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, SetFlag(ctx, RevokedTokenKey("jti-1"), time.Minute))
	ok, err := HasFlag(ctx, RevokedTokenKey("jti-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = HasFlag(ctx, RevokedTokenKey("jti-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseOptions(t *testing.T) {
	_, err := ParseOptions("  ")
	assert.ErrorIs(t, err, ErrNotConfigured)

	opts, err := ParseOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = ParseOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = ParseOptions("redis://cache:6379/not-a-db")
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), addr)
	assert.Error(t, err)
}
