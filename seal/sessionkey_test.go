package seal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/ledger"
)

var testPackage = ledger.MustParseID("0xc0ffee")

func TestSessionKey_New(t *testing.T) {
	_, err := NewSessionKey(ledger.ID{}, testPackage, 0, time.Now())
	require.EqualError(t, err, "invalid ttl 0, must be between 1 and 30")

	_, err = NewSessionKey(ledger.ID{}, testPackage, 31, time.Now())
	require.EqualError(t, err, "invalid ttl 31, must be between 1 and 30")
}

func TestSessionKey_PersonalMessage(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	sk, err := NewSessionKey(ledger.ID{}, testPackage, 10, created)
	require.NoError(t, err)

	msg := string(sk.PersonalMessage())
	require.True(t, strings.HasPrefix(msg, "Accessing keys of package "+testPackage.String()+
		" for 10 mins from 2024-03-01 12:30:00 UTC, session key "))
	require.True(t, created.Equal(sk.CreationTime()))
}

func TestSessionKey_Sign(t *testing.T) {
	user := ed25519.NewSigner()
	now := time.Now()

	sk, err := NewSessionKey(user.Address(), testPackage, 10, now)
	require.NoError(t, err)
	require.False(t, sk.IsSigned())
	require.Equal(t, user.Address(), sk.Address())
	require.Equal(t, testPackage, sk.PackageID())

	_, err = sk.Certificate()
	require.EqualError(t, err, "session key is not signed")

	signPersonalMessage(t, user, sk)
	require.True(t, sk.IsSigned())

	cert, err := sk.Certificate()
	require.NoError(t, err)
	require.NoError(t, cert.Verify(testPackage, now))

	err = cert.Verify(ledger.MustParseID("0x1"), now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid user signature: ")

	err = cert.Verify(testPackage, now.Add(10*time.Minute))
	require.EqualError(t, err, "certificate expired")

	other := ed25519.NewSigner()

	sig, err := other.SignPersonalMessage(sk.PersonalMessage())
	require.NoError(t, err)

	buffer, err := sig.MarshalBinary()
	require.NoError(t, err)

	err = sk.SetPersonalMessageSignature(buffer)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid personal message signature: ")
}

func TestSessionKey_IsExpired(t *testing.T) {
	now := time.Now()

	sk, err := NewSessionKey(ledger.ID{}, testPackage, 10, now)
	require.NoError(t, err)

	require.False(t, sk.IsExpired(now))
	require.False(t, sk.IsExpired(now.Add(10*time.Minute-time.Millisecond)))
	require.True(t, sk.IsExpired(now.Add(10*time.Minute)))
}

func TestSessionKey_SignRequest(t *testing.T) {
	user := ed25519.NewSigner()

	sk, err := NewSessionKey(user.Address(), testPackage, 10, time.Now())
	require.NoError(t, err)

	signPersonalMessage(t, user, sk)

	cert, err := sk.Certificate()
	require.NoError(t, err)

	req := &FetchKeyRequest{
		PTB:                []byte("ptb"),
		EncKey:             []byte("enc"),
		EncVerificationKey: []byte("verif"),
		Certificate:        cert,
	}

	req.RequestSignature, err = sk.SignRequest(req.PTB, req.EncKey, req.EncVerificationKey)
	require.NoError(t, err)
	require.NoError(t, cert.VerifyRequest(req))

	req.PTB = []byte("other")
	err = cert.VerifyRequest(req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid request signature: ")

	cert.SessionVK = []byte{1}
	err = cert.VerifyRequest(req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid session key: ")
}

// -----------------------------------------------------------------------------
// Utility functions

func signPersonalMessage(t *testing.T, user ed25519.Signer, sk *SessionKey) {
	sig, err := user.SignPersonalMessage(sk.PersonalMessage())
	require.NoError(t, err)

	buffer, err := sig.MarshalBinary()
	require.NoError(t, err)

	require.NoError(t, sk.SetPersonalMessageSignature(buffer))
}
