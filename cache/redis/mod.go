// Package redis implements a cache shared by several clients on a Redis
// server. The entries expire after a fixed lifetime.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.dedis.ch/vault/cache"
	"golang.org/x/xerrors"
)

const (
	// DefaultPrefix is the prefix of every key written by the cache.
	DefaultPrefix = "vault:cache:"

	// DefaultTTL is the lifetime of an entry.
	DefaultTTL = time.Hour
)

// Config is the configuration of the connection to the server.
type Config struct {
	Addr     string        `yaml:"addr" env:"VAULT_REDIS_ADDR"`
	Password string        `yaml:"password" env:"VAULT_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"VAULT_REDIS_DB"`
	Prefix   string        `yaml:"prefix" env:"VAULT_REDIS_PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"VAULT_REDIS_TTL"`
}

// Cache is a cache on a Redis server.
//
// - implements cache.Cache
type Cache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewCache returns a cache that uses the client. Empty prefix and lifetime
// are replaced by the defaults.
func NewCache(client redis.Cmdable, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Connect opens a client to the server of the configuration and checks that
// it answers.
func Connect(ctx context.Context, cfg Config) (*Cache, *redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, xerrors.New("missing redis address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, nil, xerrors.Errorf("failed to reach redis at '%s': %v", cfg.Addr, err)
	}

	return NewCache(client, cfg.Prefix, cfg.TTL), client, nil
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrMiss
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to get '%s': %v", key, err)
	}

	return value, nil
}

// Set implements cache.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
	if err != nil {
		return xerrors.Errorf("failed to set '%s': %v", key, err)
	}

	return nil
}

// Invalidate implements cache.Cache.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	err := c.client.Del(ctx, c.prefix+key).Err()
	if err != nil {
		return xerrors.Errorf("failed to delete '%s': %v", key, err)
	}

	return nil
}
