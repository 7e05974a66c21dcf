package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	committed := false

	err = db.Update(func(tx WritableTx) error {
		tx.OnCommit(func() { committed = true })

		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		return b.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)
	require.True(t, committed)

	err = db.View(func(tx ReadableTx) error {
		b := tx.GetBucket([]byte("bucket"))
		require.NotNil(t, b)
		require.Equal(t, []byte("pong"), b.Get([]byte("ping")))

		require.Nil(t, tx.GetBucket([]byte{0xaa}))

		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx WritableTx) error {
		_, err := tx.GetBucketOrCreate(nil)
		return err
	})
	require.EqualError(t, err, "failed to create bucket: bucket name required")
}

func TestBoltDB_UpdateRollback(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	committed := false

	err = db.Update(func(tx WritableTx) error {
		tx.OnCommit(func() { committed = true })

		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")
	require.False(t, committed)

	err = db.View(func(tx ReadableTx) error {
		require.Nil(t, tx.GetBucket([]byte("bucket")))
		return nil
	})
	require.NoError(t, err)
}

func TestBoltBucket_Get_Set_Delete(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	err = db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		value := b.Get([]byte("ping"))
		require.Equal(t, []byte("pong"), value)

		value = b.Get([]byte("pong"))
		require.Nil(t, value)

		require.NoError(t, b.Delete([]byte("ping")))

		value = b.Get([]byte("ping"))
		require.Nil(t, value)

		return nil
	})

	require.NoError(t, err)
}

func TestBoltBucket_ForEach(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	err = db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte{2}, []byte{2}))
		require.NoError(t, b.Set([]byte{1}, []byte{1}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))

		var i byte = 0
		return b.ForEach(func(k, v []byte) error {
			require.Equal(t, []byte{i}, k)
			require.Equal(t, []byte{i}, v)
			i++
			return nil
		})
	})
	require.NoError(t, err)
}

func TestBoltBucket_Scan(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	err = db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte{7}, []byte{7}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))

		var i byte = 0
		b.Scan(nil, func(k, v []byte) error {
			require.Equal(t, []byte{i}, k)
			require.Equal(t, []byte{i}, v)
			i += 7
			return nil
		})
		require.Equal(t, byte(14), i)

		err = b.Scan([]byte{1}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.NoError(t, err)

		err = b.Scan([]byte{}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.EqualError(t, err, "callback failed: oops")

		return nil
	})
	require.NoError(t, err)
}
