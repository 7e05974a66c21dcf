// Package ed25519 implements the wallet signatures for the Edwards 25519
// elliptic curve.
//
// The signatures are created using the Schnorr algorithm. A wallet signature
// is serialized as the scheme flag, followed by the 64 bytes of the signature
// and the 32 bytes of the public key, so that a verifier can recover the
// address of the signer from the signature alone.
//
// Related Papers:
//
// Efficient Identification and Signatures for Smart Cards (1989)
// https://link.springer.com/chapter/10.1007/0-387-34805-0_22
//
// Documentation Last Review: 28.05.2026
//
package ed25519

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/vault/crypto"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

const (
	// Algorithm is the name of the curve used for the schnorr signature.
	Algorithm = "CURVE-ED25519"

	// Flag is the scheme byte prefixed to a serialized signature and hashed
	// with the public key to derive an address.
	Flag byte = 0x00

	// PublicKeySize is the size in bytes of a marshaled public key.
	PublicKeySize = 32

	// RawSignatureSize is the size in bytes of a schnorr signature.
	RawSignatureSize = 64

	// SignatureSize is the size in bytes of a serialized wallet signature.
	SignatureSize = 1 + RawSignatureSize + PublicKeySize
)

var suite = suites.MustFind("Ed25519")

// PublicKey is the public key adapter to the Kyber Ed25519 public key.
type PublicKey struct {
	point kyber.Point
}

// NewPublicKey returns a new public key from the data.
func NewPublicKey(data []byte) (PublicKey, error) {
	point := suite.Point()
	err := point.UnmarshalBinary(data)
	if err != nil {
		return PublicKey{}, xerrors.Errorf("couldn't unmarshal point: %v", err)
	}

	pk := PublicKey{
		point: point,
	}

	return pk, nil
}

// NewPublicKeyFromPoint creates a new public key from an existing point.
func NewPublicKeyFromPoint(point kyber.Point) PublicKey {
	return PublicKey{
		point: point,
	}
}

// MarshalBinary implements encoding.BinaryMarshaler. It produces a slice of
// bytes representing the public key.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return pk.point.MarshalBinary()
}

// GetPoint returns the kyber.point.
func (pk PublicKey) GetPoint() kyber.Point {
	return pk.point
}

// Address returns the ledger address controlled by the public key, which is
// the blake2b-256 digest of the scheme flag followed by the key.
func (pk PublicKey) Address() ledger.ID {
	buffer, err := pk.MarshalBinary()
	if err != nil {
		return ledger.ID{}
	}

	addr, _ := ledger.IDFromBytes(crypto.Hash256([]byte{Flag}, buffer))

	return addr
}

// Verify returns nil if the raw schnorr signature matches the message for this
// public key.
func (pk PublicKey) Verify(msg, sig []byte) error {
	err := schnorr.Verify(suite, pk.point, msg, sig)
	if err != nil {
		return xerrors.Errorf("schnorr verify failed: %v", err)
	}

	return nil
}

// Equal returns true if the other public key is the same.
func (pk PublicKey) Equal(other interface{}) bool {
	pubkey, ok := other.(PublicKey)
	if !ok {
		return false
	}

	return pubkey.point.Equal(pk.point)
}

// MarshalText implements encoding.TextMarshaler. It returns a text
// representation of the public key.
func (pk PublicKey) MarshalText() ([]byte, error) {
	buffer, err := pk.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return []byte(base64.StdEncoding.EncodeToString(buffer)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It expects the standard
// base64 encoding of the point.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	buffer, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return xerrors.Errorf("invalid base64: %v", err)
	}

	res, err := NewPublicKey(buffer)
	if err != nil {
		return err
	}

	*pk = res

	return nil
}

// String implements fmt.Stringer. It returns a string representation of the
// point.
func (pk PublicKey) String() string {
	buffer, err := pk.MarshalText()
	if err != nil {
		return "ed25519:malformed_point"
	}

	return string(buffer)
}

// Signature is a serialized wallet signature.
type Signature struct {
	data   []byte
	pubkey PublicKey
}

// ParseSignature returns the signature from its serialized form.
func ParseSignature(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return Signature{}, xerrors.Errorf("invalid signature length %d != %d",
			len(data), SignatureSize)
	}

	if data[0] != Flag {
		return Signature{}, xerrors.Errorf("unsupported signature scheme %#x", data[0])
	}

	pubkey, err := NewPublicKey(data[1+RawSignatureSize:])
	if err != nil {
		return Signature{}, xerrors.Errorf("invalid public key: %v", err)
	}

	sig := Signature{
		data:   append([]byte{}, data[1:1+RawSignatureSize]...),
		pubkey: pubkey,
	}

	return sig, nil
}

// ParseSignatureBase64 returns the signature from the standard base64 encoding
// of its serialized form.
func ParseSignatureBase64(text string) (Signature, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return Signature{}, xerrors.Errorf("invalid base64: %v", err)
	}

	return ParseSignature(data)
}

// GetPublicKey returns the public key embedded in the signature.
func (sig Signature) GetPublicKey() PublicKey {
	return sig.pubkey
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the flag, the
// schnorr signature and the public key.
func (sig Signature) MarshalBinary() ([]byte, error) {
	pubkey, err := sig.pubkey.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal public key: %v", err)
	}

	buffer := make([]byte, 0, SignatureSize)
	buffer = append(buffer, Flag)
	buffer = append(buffer, sig.data...)
	buffer = append(buffer, pubkey...)

	return buffer, nil
}

// String implements fmt.Stringer. It returns the standard base64 encoding of
// the serialized signature.
func (sig Signature) String() string {
	buffer, err := sig.MarshalBinary()
	if err != nil {
		return "ed25519:malformed_signature"
	}

	return base64.StdEncoding.EncodeToString(buffer)
}

// Equal returns true if both signatures are the same.
func (sig Signature) Equal(other Signature) bool {
	return bytes.Equal(sig.data, other.data) && sig.pubkey.Equal(other.pubkey)
}

// Verify checks that the signature was produced for the digest of the message
// under the intent, and by a key controlling the address.
func (sig Signature) Verify(addr ledger.ID, intent crypto.Intent, msg []byte) error {
	if sig.pubkey.point == nil {
		return xerrors.New("missing public key")
	}

	if sig.pubkey.Address() != addr {
		return xerrors.Errorf("signer %v does not match address %v",
			sig.pubkey.Address(), addr)
	}

	err := sig.pubkey.Verify(crypto.Digest(intent, msg), sig.data)
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	return nil
}

// VerifyPersonalMessage verifies the serialized signature of a personal
// message for the address.
func VerifyPersonalMessage(addr ledger.ID, msg, signature []byte) error {
	sig, err := ParseSignature(signature)
	if err != nil {
		return xerrors.Errorf("failed to parse signature: %v", err)
	}

	return sig.Verify(addr, crypto.IntentPersonalMessage, msg)
}

// VerifyTransaction verifies the serialized signature of transaction bytes for
// the address.
func VerifyTransaction(addr ledger.ID, txBytes, signature []byte) error {
	sig, err := ParseSignature(signature)
	if err != nil {
		return xerrors.Errorf("failed to parse signature: %v", err)
	}

	return sig.Verify(addr, crypto.IntentTransaction, txBytes)
}

// Signer implements a signer that is creating Schnorr signatures using the
// private key of the Ed25519 elliptic curve.
type Signer struct {
	keyPair *key.Pair
}

// NewSigner returns a new random schnorr signer.
func NewSigner() Signer {
	kp := key.NewKeyPair(suite)
	return Signer{
		keyPair: kp,
	}
}

// NewSignerFromBytes returns the signer of the marshaled private key.
func NewSignerFromBytes(data []byte) (Signer, error) {
	scalar := suite.Scalar()

	err := scalar.UnmarshalBinary(data)
	if err != nil {
		return Signer{}, xerrors.Errorf("couldn't unmarshal scalar: %v", err)
	}

	kp := &key.Pair{
		Private: scalar,
		Public:  suite.Point().Mul(scalar, nil),
	}

	return Signer{keyPair: kp}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the private
// key.
func (s Signer) MarshalBinary() ([]byte, error) {
	return s.keyPair.Private.MarshalBinary()
}

// GetPublicKey returns the public key of the signer that can be used to verify
// signatures.
func (s Signer) GetPublicKey() PublicKey {
	return PublicKey{point: s.keyPair.Public}
}

// GetPrivateKey returns the signer's private key.
func (s Signer) GetPrivateKey() kyber.Scalar {
	return s.keyPair.Private
}

// Address returns the ledger address of the signer.
func (s Signer) Address() ledger.ID {
	return s.GetPublicKey().Address()
}

// Sign signs the message in parameter and returns the raw schnorr signature,
// or an error if it cannot sign.
func (s Signer) Sign(msg []byte) ([]byte, error) {
	sig, err := schnorr.Sign(suite, s.keyPair.Private, msg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't make schnorr signature: %v", err)
	}

	return sig, nil
}

// SignIntent signs the digest of the message under the intent and returns the
// wallet signature.
func (s Signer) SignIntent(intent crypto.Intent, msg []byte) (Signature, error) {
	raw, err := s.Sign(crypto.Digest(intent, msg))
	if err != nil {
		return Signature{}, err
	}

	return Signature{data: raw, pubkey: s.GetPublicKey()}, nil
}

// SignPersonalMessage signs a message presented to the user.
func (s Signer) SignPersonalMessage(msg []byte) (Signature, error) {
	return s.SignIntent(crypto.IntentPersonalMessage, msg)
}

// SignTransaction signs transaction bytes.
func (s Signer) SignTransaction(txBytes []byte) (Signature, error) {
	return s.SignIntent(crypto.IntentTransaction, txBytes)
}

// Generator creates new private keys for the key loader.
//
// - implements loader.Generator
type Generator struct{}

// Generate implements loader.Generator. It returns a marshaled private key.
func (Generator) Generate() ([]byte, error) {
	data, err := NewSigner().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signer: %v", err)
	}

	return data, nil
}

// String implements fmt.Stringer. It prints the address of the signer.
func (s Signer) String() string {
	return fmt.Sprintf("ed25519:%v", s.Address())
}
