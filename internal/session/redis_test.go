package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, 15*time.Minute), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "s1", KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "s1", KeyCart, `{"lines":{}}`))
	require.NoError(t, store.Set(ctx, "s1", KeyCartTotal, "0"))

	value, ok, err := store.Get(ctx, "s1", KeyCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"lines":{}}`, value)

	require.NoError(t, store.Delete(ctx, "s1", KeyCart))
	_, ok, err = store.Get(ctx, "s1", KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)

	// The other key is untouched by a single-key delete.
	_, ok, err = store.Get(ctx, "s1", KeyCartTotal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreSessionsAreIsolated(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", KeyOrderID, "42"))

	_, ok, err := store.Get(ctx, "s2", KeyOrderID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", KeyCart, "{}"))

	mr.FastForward(16 * time.Minute)

	_, ok, err := store.Get(ctx, "s1", KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreDestroy(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", KeyCart, "{}"))
	require.NoError(t, store.Set(ctx, "s1", KeyOrderID, "7"))
	require.NoError(t, store.Destroy(ctx, "s1"))

	_, ok, err := store.Get(ctx, "s1", KeyOrderID)
	require.NoError(t, err)
	assert.False(t, ok)
}
