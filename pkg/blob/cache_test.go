package blob

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flaskion/flaskion-client/pkg/cache"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestManager_Acquire_ServedFromCache(t *testing.T) {
	cm := cache.NewManager(setupTestRedis(t), time.Hour)
	m, api := newFakeBackend(t, WithCache(cm, "user"))
	img := api.AddImage("generated", "2025-01-01", []byte("cached-bytes"))
	ctx := context.Background()

	first, err := m.Acquire(ctx, img.Path)
	require.NoError(t, err)
	second, err := m.Acquire(ctx, img.Path)
	require.NoError(t, err)

	assert.Equal(t, 1, api.Hits(img.Path), "second acquisition should not reach the server")
	assert.NotEqual(t, first.LocalURL, second.LocalURL)

	data, _, ok := m.Resolve(second.LocalURL)
	require.True(t, ok)
	assert.Equal(t, "cached-bytes", string(data))
}

func TestManager_Acquire_RevalidatesStaleEntry(t *testing.T) {
	redisClient := setupTestRedis(t)
	cm := cache.NewManager(redisClient, time.Hour)
	m, api := newFakeBackend(t, WithCache(cm, "user"))
	img := api.AddImage("generated", "2025-01-01", []byte("stale-bytes"))
	ctx := context.Background()

	_, err := m.Acquire(ctx, img.Path)
	require.NoError(t, err)

	key := cache.CacheKey{Path: img.Path, Scope: "user"}
	entry, _, err := cm.Lookup(ctx, key)
	require.NoError(t, err)
	entry.Expires = time.Now().Add(-time.Minute)
	require.NoError(t, cm.Set(ctx, key, entry))

	h, err := m.Acquire(ctx, img.Path)
	require.NoError(t, err)

	assert.Equal(t, 2, api.Hits(img.Path))
	assert.Equal(t, 1, api.ConditionalCount())
	data, _, _ := m.Resolve(h.LocalURL)
	assert.Equal(t, "stale-bytes", string(data))

	_, fresh, err := cm.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, fresh, "304 should refresh the entry")
}
