package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behaviour every TokenStore shares.
func storeContract(t *testing.T, store TokenStore) {
	t.Helper()
	ctx := context.Background()

	token, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)

	assert.ErrorIs(t, store.Set(ctx, ""), ErrEmptyToken)

	require.NoError(t, store.Set(ctx, "first"))
	require.NoError(t, store.Set(ctx, "second"))

	token, ok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", token)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing an empty store is not an error")

	_, ok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	storeContract(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "token.yaml")))
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	store := NewFileStore(path)

	require.NoError(t, store.Set(context.Background(), "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "access_token: secret")
	assert.Contains(t, string(data), "token_type: Bearer")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access_token: [unterminated"), 0o600))

	_, _, err := NewFileStore(path).Get(context.Background())
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	t.Cleanup(func() {
		client.Del(context.Background(), "flaskion:test:token")
		client.Close()
	})
	return client
}

func TestRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	storeContract(t, NewRedisStore(client, "flaskion:test:token", 0))
}

func TestNewRedisStore_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewRedisStore(client, "", 0)
	assert.Equal(t, DefaultRedisKey, store.key)

	assert.Panics(t, func() { NewRedisStore(nil, "", 0) })
}
