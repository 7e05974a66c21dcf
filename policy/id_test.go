package policy

import (
	"encoding/hex"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/ledger"
)

func TestBuildID(t *testing.T) {
	policyID := ledger.MustParseID("0xabc")
	nonce := []byte{1, 2, 3, 4, 5}

	id := BuildID(policyID, nonce)
	require.Len(t, id, ledger.IDSize+NonceSize)
	require.Equal(t, policyID[:], id[:ledger.IDSize])
	require.Equal(t, nonce, id[ledger.IDSize:])

	require.Equal(t, id, BuildID(policyID, nonce))
	require.Equal(t, hex.EncodeToString(id), BuildIDHex(policyID, nonce))
}

func TestBuildID_Injective(t *testing.T) {
	f := func(policyID [32]byte, a, b [NonceSize]byte) bool {
		idA := BuildID(policyID, a[:])
		idB := BuildID(policyID, b[:])

		return (a == b) == (string(idA) == string(idB))
	}

	err := quick.Check(f, nil)
	require.NoError(t, err)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	require.Len(t, a, NonceSize)

	b, err := NewNonce()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSplitID(t *testing.T) {
	policyID := ledger.MustParseID("0x123")
	id := BuildID(policyID, []byte("nonce"))

	p, nonce, err := SplitID(id)
	require.NoError(t, err)
	require.Equal(t, policyID, p)
	require.Equal(t, []byte("nonce"), nonce)

	require.True(t, HasPrefix(policyID, id))
	require.False(t, HasPrefix(ledger.MustParseID("0x124"), id))

	_, _, err = SplitID(policyID[:])
	require.EqualError(t, err, "identifier too short: 32 <= 32")
}
