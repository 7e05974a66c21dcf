package seal

import (
	"hash"
	"io"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/xerrors"
)

// KeySize is the size of the symmetric keys and of the share masks.
const KeySize = 32

var (
	suite = bn256.NewSuite()

	infoShare = []byte("vault-seal-share")
	infoDEM   = []byte("vault-seal-dem")
)

type hashablePoint interface {
	Hash([]byte) kyber.Point
}

// Suite returns the pairing suite of the key servers.
func Suite() *bn256.Suite {
	return suite
}

// NewMasterKey returns a random master key and its public key in G2.
func NewMasterKey() (kyber.Scalar, kyber.Point) {
	s := suite.G2().Scalar().Pick(random.New())

	return s, suite.G2().Point().Mul(s, nil)
}

// hashIdentity maps the identity to a point of G1.
func hashIdentity(identity []byte) kyber.Point {
	point := suite.G1().Point().(hashablePoint)

	return point.Hash(identity)
}

// ExtractKey returns the user secret key of the identity for the master key.
func ExtractKey(master kyber.Scalar, identity []byte) kyber.Point {
	return suite.G1().Point().Mul(master, hashIdentity(identity))
}

// VerifyKey checks that the user secret key of the identity has been extracted
// with the master key of the public key.
func VerifyKey(pubkey kyber.Point, identity []byte, usk kyber.Point) error {
	left := suite.Pair(usk, suite.G2().Point().Base())
	right := suite.Pair(hashIdentity(identity), pubkey)

	if !left.Equal(right) {
		return xerrors.New("pairing check failed")
	}

	return nil
}

func newKDFHash() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

func kdf(secret, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)

	_, err := io.ReadFull(hkdf.New(newKDFHash, secret, nil, info), key)
	if err != nil {
		return nil, xerrors.Errorf("kdf failed: %v", err)
	}

	return key, nil
}

// shareMask derives the mask of the share of the key server at the given
// position from the pairing value.
func shareMask(gt kyber.Point, service ledger.ID, index int) ([]byte, error) {
	buffer, err := gt.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal pairing: %v", err)
	}

	info := append(append([]byte{}, infoShare...), byte(index))
	info = append(info, service[:]...)

	return kdf(buffer, info)
}

func xor(a, b []byte) []byte {
	res := make([]byte, len(a))
	for i := range a {
		res[i] = a[i] ^ b[i]
	}

	return res
}

// elGamalKey is the ephemeral key under which the key servers encrypt the
// user secret keys they return.
type elGamalKey struct {
	secret kyber.Scalar
	public kyber.Point
	verif  kyber.Point
}

func newElGamalKey() elGamalKey {
	secret := suite.G1().Scalar().Pick(random.New())

	return elGamalKey{
		secret: secret,
		public: suite.G1().Point().Mul(secret, nil),
		verif:  suite.G2().Point().Mul(secret, nil),
	}
}

func (k elGamalKey) decrypt(c1, c2 []byte) (kyber.Point, error) {
	p1 := suite.G1().Point()

	err := p1.UnmarshalBinary(c1)
	if err != nil {
		return nil, xerrors.Errorf("invalid c1: %v", err)
	}

	p2 := suite.G1().Point()

	err = p2.UnmarshalBinary(c2)
	if err != nil {
		return nil, xerrors.Errorf("invalid c2: %v", err)
	}

	shared := suite.G1().Point().Mul(k.secret, p1)

	return suite.G1().Point().Sub(p2, shared), nil
}

// EncryptKey encrypts the user secret key under the ElGamal public key of the
// requester. The verification key must be the same secret in G2.
func EncryptKey(usk kyber.Point, encKey, encVerificationKey []byte) ([]byte, []byte, error) {
	pub := suite.G1().Point()

	err := pub.UnmarshalBinary(encKey)
	if err != nil {
		return nil, nil, xerrors.Errorf("invalid encryption key: %v", err)
	}

	verif := suite.G2().Point()

	err = verif.UnmarshalBinary(encVerificationKey)
	if err != nil {
		return nil, nil, xerrors.Errorf("invalid verification key: %v", err)
	}

	left := suite.Pair(pub, suite.G2().Point().Base())
	right := suite.Pair(suite.G1().Point().Base(), verif)

	if !left.Equal(right) {
		return nil, nil, xerrors.New("encryption key does not match verification key")
	}

	r := suite.G1().Scalar().Pick(random.New())

	c1, err := suite.G1().Point().Mul(r, nil).MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to marshal c1: %v", err)
	}

	masked := suite.G1().Point().Add(usk, suite.G1().Point().Mul(r, pub))

	c2, err := masked.MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to marshal c2: %v", err)
	}

	return c1, c2, nil
}
