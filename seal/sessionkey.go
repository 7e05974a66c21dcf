package seal

import (
	"encoding/base64"
	"fmt"
	"time"

	"go.dedis.ch/vault/crypto"
	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

const (
	// MinTTL is the shortest lifetime of a session key in minutes.
	MinTTL = 1
	// MaxTTL is the longest lifetime of a session key in minutes.
	MaxTTL = 30
)

// SessionKey is a short-lived key that the user authorizes once by signing a
// personal message, and that signs every key request of the session. It is
// bound to one address and one package.
type SessionKey struct {
	address      ledger.ID
	packageID    ledger.ID
	creationTime uint64
	ttlMin       uint16
	signer       ed25519.Signer
	signature    []byte
}

// NewSessionKey returns a new unsigned session key.
func NewSessionKey(address, packageID ledger.ID, ttlMin uint16, now time.Time) (*SessionKey, error) {
	if ttlMin < MinTTL || ttlMin > MaxTTL {
		return nil, xerrors.Errorf("invalid ttl %d, must be between %d and %d",
			ttlMin, MinTTL, MaxTTL)
	}

	sk := &SessionKey{
		address:      address,
		packageID:    packageID,
		creationTime: uint64(now.UnixMilli()),
		ttlMin:       ttlMin,
		signer:       ed25519.NewSigner(),
	}

	return sk, nil
}

// Address returns the address of the user the session key belongs to.
func (sk *SessionKey) Address() ledger.ID {
	return sk.address
}

// PackageID returns the package the session key is restricted to.
func (sk *SessionKey) PackageID() ledger.ID {
	return sk.packageID
}

// CreationTime returns when the key has been created.
func (sk *SessionKey) CreationTime() time.Time {
	return time.UnixMilli(int64(sk.creationTime))
}

// IsExpired returns true if the lifetime of the key has elapsed.
func (sk *SessionKey) IsExpired(now time.Time) bool {
	return isExpired(sk.creationTime, sk.ttlMin, now)
}

// IsSigned returns true once the user has signed the personal message.
func (sk *SessionKey) IsSigned() bool {
	return sk.signature != nil
}

// PersonalMessage returns the message the user must sign to authorize the
// session key.
func (sk *SessionKey) PersonalMessage() []byte {
	vk, _ := sk.signer.GetPublicKey().MarshalBinary()

	return personalMessage(sk.packageID, sk.ttlMin, sk.creationTime, vk)
}

// SetPersonalMessageSignature verifies and attaches the signature of the
// personal message by the user.
func (sk *SessionKey) SetPersonalMessageSignature(signature []byte) error {
	err := ed25519.VerifyPersonalMessage(sk.address, sk.PersonalMessage(), signature)
	if err != nil {
		return xerrors.Errorf("invalid personal message signature: %v", err)
	}

	sk.signature = append([]byte{}, signature...)

	return nil
}

// Certificate returns the certificate that the key servers use to check that
// the user authorized the session key.
func (sk *SessionKey) Certificate() (Certificate, error) {
	if !sk.IsSigned() {
		return Certificate{}, xerrors.New("session key is not signed")
	}

	vk, err := sk.signer.GetPublicKey().MarshalBinary()
	if err != nil {
		return Certificate{}, xerrors.Errorf("failed to marshal session key: %v", err)
	}

	cert := Certificate{
		User:         sk.address,
		SessionVK:    vk,
		CreationTime: sk.creationTime,
		TTLMin:       sk.ttlMin,
		Signature:    sk.signature,
	}

	return cert, nil
}

// SignRequest signs a key request with the session key.
func (sk *SessionKey) SignRequest(ptb, encKey, encVerificationKey []byte) ([]byte, error) {
	sig, err := sk.signer.Sign(requestDigest(ptb, encKey, encVerificationKey))
	if err != nil {
		return nil, xerrors.Errorf("failed to sign request: %v", err)
	}

	return sig, nil
}

// Verify checks that the certificate was signed by its user for the package
// and that it has not expired.
func (cert Certificate) Verify(packageID ledger.ID, now time.Time) error {
	if isExpired(cert.CreationTime, cert.TTLMin, now) {
		return xerrors.New("certificate expired")
	}

	if cert.TTLMin < MinTTL || cert.TTLMin > MaxTTL {
		return xerrors.Errorf("invalid ttl %d", cert.TTLMin)
	}

	msg := personalMessage(packageID, cert.TTLMin, cert.CreationTime, cert.SessionVK)

	err := ed25519.VerifyPersonalMessage(cert.User, msg, cert.Signature)
	if err != nil {
		return xerrors.Errorf("invalid user signature: %v", err)
	}

	return nil
}

// VerifyRequest checks that the request has been signed by the session key of
// the certificate.
func (cert Certificate) VerifyRequest(req *FetchKeyRequest) error {
	vk, err := ed25519.NewPublicKey(cert.SessionVK)
	if err != nil {
		return xerrors.Errorf("invalid session key: %v", err)
	}

	digest := requestDigest(req.PTB, req.EncKey, req.EncVerificationKey)

	err = vk.Verify(digest, req.RequestSignature)
	if err != nil {
		return xerrors.Errorf("invalid request signature: %v", err)
	}

	return nil
}

func isExpired(creation uint64, ttlMin uint16, now time.Time) bool {
	expiry := creation + uint64(ttlMin)*uint64(time.Minute/time.Millisecond)

	return uint64(now.UnixMilli()) >= expiry
}

func personalMessage(pkg ledger.ID, ttlMin uint16, creation uint64, vk []byte) []byte {
	created := time.UnixMilli(int64(creation)).UTC().Format("2006-01-02 15:04:05 UTC")

	msg := fmt.Sprintf("Accessing keys of package %s for %d mins from %s, session key %s",
		pkg, ttlMin, created, base64.StdEncoding.EncodeToString(vk))

	return []byte(msg)
}

func requestDigest(ptb, encKey, encVerificationKey []byte) []byte {
	return crypto.Hash256(ptb, encKey, encVerificationKey)
}
