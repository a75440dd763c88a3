package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/shoppingcart/internal/repository"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("SHOPCART_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOPCART_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := NewCache(newTestClient(t))
	key := repository.CacheKeys.RoleByName("test-" + time.Now().Format("150405.000000"))
	t.Cleanup(func() { c.Delete(context.Background(), key) })

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, []byte("admin"), time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "admin", string(got))

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestCache_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewCache(client)

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, repository.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Set(context.Background(), "k", []byte("v"), 0), repository.ErrCacheUnavailable)
}
