package seal

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/ledger"
)

func TestEncryptedObject_MarshalAndParse(t *testing.T) {
	obj := EncryptedObject{
		Version:    Version,
		PackageID:  ledger.MustParseID("0x1"),
		ID:         []byte{1, 2, 3},
		Services:   []ledger.ID{ledger.MustParseID("0xa"), ledger.MustParseID("0xb")},
		Threshold:  2,
		U:          []byte{4, 5},
		Shares:     [][]byte{{6}, {7}},
		Nonce:      []byte{8},
		Ciphertext: []byte{9, 10},
	}

	data, err := obj.MarshalBinary()
	require.NoError(t, err)

	res, err := ParseEncryptedObject(data)
	require.NoError(t, err)
	require.Equal(t, obj, res)
	require.Equal(t, append(obj.PackageID.Bytes(), 1, 2, 3), res.FullID())

	_, err = ParseEncryptedObject(nil)
	require.EqualError(t, err, "failed to read version: EOF")

	_, err = ParseEncryptedObject([]byte{1})
	require.EqualError(t, err, "unsupported version 1")

	_, err = ParseEncryptedObject(data[:10])
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read package: ")

	_, err = ParseEncryptedObject(append(data, 0))
	require.EqualError(t, err, "1 trailing bytes")

	_, err = ParseEncryptedObject(data[:len(data)-1])
	require.EqualError(t, err, "failed to read ciphertext: invalid length 2")
}

func TestEncryptedObject_InvalidHeader(t *testing.T) {
	obj := EncryptedObject{}

	_, err := obj.MarshalBinary()
	require.EqualError(t, err, "invalid number of services 0")

	obj.Services = []ledger.ID{{}}
	_, err = obj.MarshalBinary()
	require.EqualError(t, err, "0 shares for 1 services")

	obj.Shares = [][]byte{{}}
	obj.Threshold = 2

	data, err := obj.MarshalBinary()
	require.NoError(t, err)

	_, err = ParseEncryptedObject(data)
	require.EqualError(t, err, "invalid threshold 2 of 1")
}
