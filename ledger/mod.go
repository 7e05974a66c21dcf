// Package ledger defines the narrow view of the ledger that the vault needs:
// reading objects, listing owned objects and dynamic fields, reading the
// shared clock and submitting transactions made of module calls.
//
// Documentation Last Review: 02.09.2026
//
package ledger

import (
	"context"

	"golang.org/x/xerrors"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = xerrors.New("object not found")

// Reader provides the read-only accessors of the ledger.
type Reader interface {
	// GetObject returns the object with the given identifier.
	GetObject(ctx context.Context, id ID) (Object, error)

	// GetOwnedObjects returns the objects owned by the address. When the
	// struct type is not empty, only the objects of that type are returned.
	GetOwnedObjects(ctx context.Context, owner ID, structType string) ([]Object, error)

	// GetDynamicFields returns the dynamic fields attached to the parent in
	// insertion order.
	GetDynamicFields(ctx context.Context, parent ID) ([]DynamicField, error)

	// ReadClock returns the timestamp in milliseconds of the shared clock
	// object.
	ReadClock(ctx context.Context) (uint64, error)
}

// DryRunner evaluates a transaction kind without committing it.
type DryRunner interface {
	// DryRun executes the calls as if they were sent by the sender. It
	// returns an error if one of the calls aborts.
	DryRun(ctx context.Context, sender ID, kind []byte) error
}

// Client is the complete ledger client.
type Client interface {
	Reader
	DryRunner

	// Execute submits a signed transaction and returns its receipt. A
	// transaction that aborts is not an error: the receipt reports the failure.
	Execute(ctx context.Context, tx SignedTransaction) (Receipt, error)
}

// Status is the execution status of a transaction.
type Status string

const (
	// StatusSuccess means every call of the transaction has been applied.
	StatusSuccess Status = "success"
	// StatusFailure means the transaction aborted and nothing was applied.
	StatusFailure Status = "failure"
)

// ObjectRef is a reference to an object created by a transaction.
type ObjectRef struct {
	ID    ID     `json:"id"`
	Type  string `json:"type"`
	Owner ID     `json:"owner"`
}

// Receipt is the result of a transaction execution.
type Receipt struct {
	Digest  string      `json:"digest"`
	Status  Status      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Created []ObjectRef `json:"created,omitempty"`
}

// Success returns true if the transaction has been applied.
func (r Receipt) Success() bool {
	return r.Status == StatusSuccess
}

// CreatedOf returns the first created object whose type has the given suffix.
func (r Receipt) CreatedOf(suffix string) (ID, bool) {
	for _, ref := range r.Created {
		if HasTypeSuffix(ref.Type, suffix) {
			return ref.ID, true
		}
	}

	return ID{}, false
}
