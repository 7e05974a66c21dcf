// Package kv defines the abstraction for a key/value database.
//
// The package also implements a default database implementation that is using
// bbolt as the engine (https://github.com/etcd-io/bbolt). It backs the local
// ledger and the blob node of the development network.
//
// Documentation Last Review: 03.06.2026
//
package kv

import "go.dedis.ch/vault/core/store"

// Bucket is a named set of keys. The ledger keeps one bucket per kind of
// record (objects, dynamic fields, balances) and the blob node one for the
// blobs and one for their metadata.
type Bucket interface {
	// Get returns the value of the key, or nil when it is unknown.
	Get(key []byte) []byte

	Set(key, value []byte) error

	Delete(key []byte) error

	// ForEach calls fn for every pair until it returns an error.
	ForEach(func(k, v []byte) error) error

	// Scan calls fn for every key starting with the prefix, in key order,
	// until it returns an error. It lists the dynamic fields of an object.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// ReadableTx allows one to perform read-only atomic operations on the database.
type ReadableTx interface {
	// GetBucket returns the bucket of the given name if it exists, otherwise it
	// returns nil.
	GetBucket(name []byte) Bucket
}

// WritableTx allows one to perform atomic operations on the database.
type WritableTx interface {
	store.Transaction

	ReadableTx

	// GetBucketOrCreate returns the bucket of the given name if it exists, or
	// it creates it.
	GetBucketOrCreate(name []byte) (Bucket, error)
}

// DB is the key/value database behind the local ledger and the blob node.
// The calls of a ledger transaction are executed in a single Update, so that
// they all commit or none does.
type DB interface {
	View(fn func(ReadableTx) error) error

	// Update runs fn in a writable transaction that is discarded when fn
	// returns an error.
	Update(fn func(WritableTx) error) error

	Close() error
}
