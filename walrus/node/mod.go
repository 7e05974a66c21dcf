// Package node implements a local blob node that serves both the publisher
// and the aggregator API of the blob network. It is used by the development
// network and the tests. Blobs are content addressed and kept by a pluggable
// store.
//
// Documentation Last Review: 24.08.2026
//
package node

import (
	"context"
	"encoding/base64"
	"encoding/hex"

	"go.dedis.ch/vault/crypto"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by a store when the blob does not exist.
var ErrNotFound = xerrors.New("blob not found")

// Record is the certification record of a stored blob.
type Record struct {
	BlobID   string `json:"blobId"`
	ObjectID string `json:"objectId"`
	TxDigest string `json:"txDigest"`
	EndEpoch uint64 `json:"endEpoch"`
	Size     int    `json:"size"`
}

// Store is the persistent storage of the blobs.
type Store interface {
	// Put stores the blob and its record if the blob is unknown. It returns
	// the record that is stored and true only if the blob was created.
	Put(ctx context.Context, record Record, data []byte) (Record, bool, error)

	// Get returns the content of the blob, or ErrNotFound.
	Get(ctx context.Context, blobID string) ([]byte, error)
}

// BlobID returns the content address of the data.
func BlobID(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(crypto.Hash256(data))
}

func newRecord(data []byte, endEpoch uint64) Record {
	id := BlobID(data)

	return Record{
		BlobID:   id,
		ObjectID: "0x" + hex.EncodeToString(crypto.Hash256([]byte("blob object"), []byte(id))),
		TxDigest: hex.EncodeToString(crypto.Hash256([]byte("certificate"), []byte(id))),
		EndEpoch: endEpoch,
		Size:     len(data),
	}
}
