package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/cache"
)

func TestCache_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()

	c, client := connect(t)

	_, err := c.Get(ctx, "a")
	require.Equal(t, cache.ErrMiss, err)

	require.NoError(t, c.Set(ctx, "a", []byte("hello")))

	value, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), value)

	ttl, err := client.TTL(ctx, c.prefix+"a").Result()
	require.NoError(t, err)
	require.True(t, ttl > 0 && ttl <= time.Minute)

	require.NoError(t, c.Invalidate(ctx, "a"))
	require.NoError(t, c.Invalidate(ctx, "a"))

	_, err = c.Get(ctx, "a")
	require.Equal(t, cache.ErrMiss, err)
}

func TestCache_Failures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	c := NewCache(client, "", 0)
	require.Equal(t, DefaultPrefix, c.prefix)
	require.Equal(t, DefaultTTL, c.ttl)

	_, err := c.Get(ctx, "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to get 'a': ")

	err = c.Set(ctx, "a", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to set 'a': ")

	err = c.Invalidate(ctx, "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to delete 'a': ")

	_, _, err = Connect(ctx, Config{})
	require.EqualError(t, err, "missing redis address")

	_, _, err = Connect(ctx, Config{Addr: "127.0.0.1:0"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to reach redis at '127.0.0.1:0': ")
}

// connect returns a cache on the server of VAULT_TEST_REDIS, or of the
// default local address, and skips the test when none answers.
func connect(t *testing.T) (*Cache, *redis.Client) {
	addr := os.Getenv("VAULT_TEST_REDIS")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	c, client, err := Connect(context.Background(), Config{
		Addr:   addr,
		DB:     3,
		Prefix: "vault:test:",
		TTL:    time.Minute,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}

	t.Cleanup(func() { client.Close() })

	return c, client
}
