// Package memory implements an in-process cache bounded by the total size of
// its entries.
package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.dedis.ch/vault/cache"
	"golang.org/x/xerrors"
)

// DefaultMaxSize is the default total size in bytes of the entries.
const DefaultMaxSize = 256 * 1024 * 1024

// Cache is a cache in memory.
//
// - implements cache.Cache
type Cache struct {
	store *ristretto.Cache
	ttl   time.Duration
}

// Option is the type of option to set some fields of a cache.
type Option func(*config)

type config struct {
	maxSize int64
	ttl     time.Duration
}

// WithMaxSize sets the total size in bytes of the entries.
func WithMaxSize(size int64) Option {
	return func(c *config) {
		c.maxSize = size
	}
}

// WithTTL sets the lifetime of the entries. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// NewCache returns a new empty cache.
func NewCache(opts ...Option) (*Cache, error) {
	cfg := config{maxSize: DefaultMaxSize}

	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		// Ten times the expected number of entries of about 1 KiB.
		NumCounters: cfg.maxSize / 100,
		MaxCost:     cfg.maxSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create cache: %v", err)
	}

	c := &Cache{
		store: store,
		ttl:   cfg.ttl,
	}

	return c, nil
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := c.store.Get(key)
	if !found {
		return nil, cache.ErrMiss
	}

	return append([]byte{}, value.([]byte)...), nil
}

// Set implements cache.Cache. The entry may be refused when the cache is
// under pressure, which is not an error.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	value = append([]byte{}, value...)

	c.store.SetWithTTL(key, value, int64(len(value)), c.ttl)
	c.store.Wait()

	return nil
}

// Invalidate implements cache.Cache.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.store.Del(key)

	return nil
}

// Close stops the background routines of the cache.
func (c *Cache) Close() {
	c.store.Close()
}
