package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetThenGet(t *testing.T) {
	mc := NewMemoryCache(&Config{MaxKeys: 10, TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "progress:batch-1", 42, time.Minute))

	got, err := mc.Get(ctx, "progress:batch-1")
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestMemoryCache_MissReturnsErrCacheMiss(t *testing.T) {
	mc := NewMemoryCache(nil)
	_, err := mc.Get(context.Background(), "never-set")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_ExpiredEntryIsAMiss(t *testing.T) {
	mc := NewMemoryCache(nil)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "key", "value", time.Nanosecond))
	time.Sleep(time.Millisecond)

	_, err := mc.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	mc := NewMemoryCache(nil)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, mc.Delete(ctx, "key"))

	_, err := mc.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Exists(t *testing.T) {
	mc := NewMemoryCache(nil)
	ctx := context.Background()

	ok, err := mc.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Set(ctx, "key", "value", time.Minute))
	ok, err = mc.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_GetMultiSetMulti(t *testing.T) {
	mc := NewMemoryCache(nil)
	ctx := context.Background()

	items := map[string]interface{}{"a": 1, "b": 2, "c": 3}
	require.NoError(t, mc.SetMulti(ctx, items, time.Minute))

	got, err := mc.GetMulti(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, 2, got["b"])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestMemoryCache_Clear(t *testing.T) {
	mc := NewMemoryCache(nil)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, mc.Clear(ctx))

	ok, err := mc.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKey_JoinsPrefixAndID(t *testing.T) {
	assert.Equal(t, "progress:batch-1", CacheKey("progress", "batch-1"))
}

func TestCacheKeys_MapsOverIDs(t *testing.T) {
	got := CacheKeys("progress", []string{"a", "b"})
	assert.Equal(t, []string{"progress:a", "progress:b"}, got)
}

func TestNewCache_MemoryType(t *testing.T) {
	c, err := NewCache(&Config{Type: "memory"}, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
}

func TestNewCache_UnknownTypeErrors(t *testing.T) {
	_, err := NewCache(&Config{Type: "bogus"}, "")
	require.Error(t, err)
}
