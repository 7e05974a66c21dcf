package seal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractKey_Verify(t *testing.T) {
	master, pubkey := NewMasterKey()
	identity := []byte("identity")

	usk := ExtractKey(master, identity)
	require.NoError(t, VerifyKey(pubkey, identity, usk))

	err := VerifyKey(pubkey, []byte("other"), usk)
	require.EqualError(t, err, "pairing check failed")

	_, other := NewMasterKey()
	err = VerifyKey(other, identity, usk)
	require.EqualError(t, err, "pairing check failed")
}

func TestEncryptKey(t *testing.T) {
	master, _ := NewMasterKey()
	usk := ExtractKey(master, []byte("identity"))

	key := newElGamalKey()

	pub, err := key.public.MarshalBinary()
	require.NoError(t, err)

	verif, err := key.verif.MarshalBinary()
	require.NoError(t, err)

	c1, c2, err := EncryptKey(usk, pub, verif)
	require.NoError(t, err)

	res, err := key.decrypt(c1, c2)
	require.NoError(t, err)
	require.True(t, usk.Equal(res))

	other, err := newElGamalKey().verif.MarshalBinary()
	require.NoError(t, err)

	_, _, err = EncryptKey(usk, pub, other)
	require.EqualError(t, err, "encryption key does not match verification key")

	_, _, err = EncryptKey(usk, []byte{1}, verif)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid encryption key: ")

	_, err = key.decrypt([]byte{1}, c2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid c1: ")
}

func TestKDF(t *testing.T) {
	a, err := kdf([]byte("secret"), infoDEM)
	require.NoError(t, err)
	require.Len(t, a, KeySize)

	b, err := kdf([]byte("secret"), infoShare)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.Equal(t, []byte{0, 3}, xor([]byte{1, 2}, []byte{1, 1}))
}
