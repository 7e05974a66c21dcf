// Package cache defines the memoization layer of the decrypted content of a
// feed. It is only a convenience: an entry can disappear at any time, and a
// miss simply means the content is fetched and decrypted again.
//
// Documentation Last Review: 11.08.2026
//
package cache

import (
	"context"

	"golang.org/x/xerrors"
)

// ErrMiss is returned when the key is not in the cache.
var ErrMiss = xerrors.New("cache miss")

// Cache is a key-value store of opaque entries.
type Cache interface {
	// Get returns the value of the key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value under the key, replacing any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Invalidate removes the key. It is not an error if the key is absent.
	Invalidate(ctx context.Context, key string) error
}
