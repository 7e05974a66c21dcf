// Package store defines the primitives shared by the storage layers of the
// vault components.
//
// Documentation Last Review: 03.06.2026
//
package store

// Transaction is implemented by the writable transactions of a store.
type Transaction interface {
	// OnCommit registers fn to run once the transaction is committed. The blob
	// node uses it to tell a new blob from one already stored.
	OnCommit(fn func())
}
