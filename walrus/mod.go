// Package walrus implements the client of the blob store where the encrypted
// content is kept. Blobs are uploaded once to the publisher of a backend
// chosen by the caller, and downloaded from the aggregator of a randomly
// selected backend.
//
// Documentation Last Review: 19.10.2026
//
package walrus

import (
	"golang.org/x/xerrors"
)

// ErrNoBlobs is returned when none of the requested blobs could be retrieved.
var ErrNoBlobs = xerrors.New("cannot retrieve files from this storage node, " +
	"please try again and a randomly selected aggregator will be used")

// Backend is a storage service of the blob network.
type Backend struct {
	Name          string `yaml:"name"`
	PublisherURL  string `yaml:"publisher"`
	AggregatorURL string `yaml:"aggregator"`
}

// Receipt is the answer of a publisher to an upload. It is either a
// NewlyCreated or an AlreadyCertified receipt.
type Receipt interface {
	// GetBlobID returns the identifier of the blob.
	GetBlobID() string

	// GetEndEpoch returns the epoch until which the blob is stored.
	GetEndEpoch() uint64

	isReceipt()
}

// NewlyCreated is the receipt of a blob stored for the first time.
//
// - implements walrus.Receipt
type NewlyCreated struct {
	BlobID   string
	ObjectID string
	EndEpoch uint64
}

// GetBlobID implements walrus.Receipt.
func (r NewlyCreated) GetBlobID() string {
	return r.BlobID
}

// GetEndEpoch implements walrus.Receipt.
func (r NewlyCreated) GetEndEpoch() uint64 {
	return r.EndEpoch
}

func (NewlyCreated) isReceipt() {}

// AlreadyCertified is the receipt of a blob whose content was already stored
// and certified.
//
// - implements walrus.Receipt
type AlreadyCertified struct {
	BlobID   string
	TxDigest string
	EndEpoch uint64
}

// GetBlobID implements walrus.Receipt.
func (r AlreadyCertified) GetBlobID() string {
	return r.BlobID
}

// GetEndEpoch implements walrus.Receipt.
func (r AlreadyCertified) GetEndEpoch() uint64 {
	return r.EndEpoch
}

func (AlreadyCertified) isReceipt() {}

// Blob is a downloaded blob.
type Blob struct {
	ID   string
	Data []byte
}

// FetchResult is the outcome of a concurrent download. The blobs are listed
// in the order the downloads completed.
type FetchResult struct {
	Blobs   []Blob
	Missing int
}

// StoreResponse is the JSON answer of a publisher. Exactly one of the two
// fields is set.
type StoreResponse struct {
	NewlyCreated     *NewlyCreatedJSON     `json:"newlyCreated,omitempty"`
	AlreadyCertified *AlreadyCertifiedJSON `json:"alreadyCertified,omitempty"`
}

// NewlyCreatedJSON is the JSON form of a newly created blob.
type NewlyCreatedJSON struct {
	BlobObject BlobObjectJSON `json:"blobObject"`
}

// BlobObjectJSON is the JSON form of the ledger object of a blob.
type BlobObjectJSON struct {
	ID      string      `json:"id"`
	BlobID  string      `json:"blobId"`
	Storage StorageJSON `json:"storage"`
}

// StorageJSON is the JSON form of the storage reservation of a blob.
type StorageJSON struct {
	EndEpoch uint64 `json:"endEpoch"`
}

// AlreadyCertifiedJSON is the JSON form of an already certified blob.
type AlreadyCertifiedJSON struct {
	BlobID   string    `json:"blobId"`
	Event    EventJSON `json:"event"`
	EndEpoch uint64    `json:"endEpoch"`
}

// EventJSON is the JSON form of the certification event of a blob.
type EventJSON struct {
	TxDigest string `json:"txDigest"`
}

// Receipt returns the receipt of the response.
func (r StoreResponse) Receipt() (Receipt, error) {
	switch {
	case r.NewlyCreated != nil && r.AlreadyCertified == nil:
		obj := r.NewlyCreated.BlobObject
		if obj.BlobID == "" {
			return nil, xerrors.New("missing blob id")
		}

		return NewlyCreated{
			BlobID:   obj.BlobID,
			ObjectID: obj.ID,
			EndEpoch: obj.Storage.EndEpoch,
		}, nil
	case r.AlreadyCertified != nil && r.NewlyCreated == nil:
		cert := r.AlreadyCertified
		if cert.BlobID == "" {
			return nil, xerrors.New("missing blob id")
		}

		return AlreadyCertified{
			BlobID:   cert.BlobID,
			TxDigest: cert.Event.TxDigest,
			EndEpoch: cert.EndEpoch,
		}, nil
	default:
		return nil, xerrors.New("unknown response shape")
	}
}
