package node

import (
	"context"
	"encoding/json"

	"go.dedis.ch/vault/core/store/kv"
	"golang.org/x/xerrors"
)

var (
	blobBucket   = []byte("walrus:blobs")
	recordBucket = []byte("walrus:records")
)

// KVStore is a store of blobs on top of a key/value database.
//
// - implements node.Store
type KVStore struct {
	db kv.DB
}

// NewKVStore returns a store using the database.
func NewKVStore(db kv.DB) KVStore {
	return KVStore{db: db}
}

// Put implements node.Store. The existence check and the write happen in the
// same transaction.
func (s KVStore) Put(ctx context.Context, record Record, data []byte) (Record, bool, error) {
	created := false

	err := s.db.Update(func(tx kv.WritableTx) error {
		records, err := tx.GetBucketOrCreate(recordBucket)
		if err != nil {
			return xerrors.Errorf("bucket: %v", err)
		}

		existing := records.Get([]byte(record.BlobID))
		if existing != nil {
			return json.Unmarshal(existing, &record)
		}

		blobs, err := tx.GetBucketOrCreate(blobBucket)
		if err != nil {
			return xerrors.Errorf("bucket: %v", err)
		}

		raw, err := json.Marshal(record)
		if err != nil {
			return xerrors.Errorf("failed to encode record: %v", err)
		}

		err = records.Set([]byte(record.BlobID), raw)
		if err != nil {
			return xerrors.Errorf("failed to write record: %v", err)
		}

		err = blobs.Set([]byte(record.BlobID), data)
		if err != nil {
			return xerrors.Errorf("failed to write blob: %v", err)
		}

		tx.OnCommit(func() {
			created = true
		})

		return nil
	})

	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to put blob: %v", err)
	}

	return record, created, nil
}

// Get implements node.Store.
func (s KVStore) Get(ctx context.Context, blobID string) ([]byte, error) {
	var data []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(blobBucket)
		if bucket == nil {
			return nil
		}

		data = bucket.Get([]byte(blobID))

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to read blob: %v", err)
	}

	if data == nil {
		return nil, xerrors.Errorf("blob '%s': %w", blobID, ErrNotFound)
	}

	return data, nil
}
