package policy

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"

	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// NonceSize is the number of random bytes appended to the policy identifier.
const NonceSize = 5

// BuildID returns the content identifier of the nonce under the policy, which
// is the simple concatenation of both. Nothing prevents two uploads from
// using the same nonce: freshness is the responsibility of the caller.
func BuildID(policyID ledger.ID, nonce []byte) []byte {
	id := make([]byte, 0, ledger.IDSize+len(nonce))
	id = append(id, policyID[:]...)
	id = append(id, nonce...)

	return id
}

// BuildIDHex returns the hexadecimal form of the content identifier.
func BuildIDHex(policyID ledger.ID, nonce []byte) string {
	return hex.EncodeToString(BuildID(policyID, nonce))
}

// NewNonce returns a fresh random nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)

	_, err := rand.Read(nonce)
	if err != nil {
		return nil, xerrors.Errorf("failed to read random nonce: %v", err)
	}

	return nonce, nil
}

// SplitID returns the policy identifier and the nonce of a content
// identifier.
func SplitID(id []byte) (ledger.ID, []byte, error) {
	if len(id) <= ledger.IDSize {
		return ledger.ID{}, nil, xerrors.Errorf("identifier too short: %d <= %d",
			len(id), ledger.IDSize)
	}

	policyID, err := ledger.IDFromBytes(id[:ledger.IDSize])
	if err != nil {
		return ledger.ID{}, nil, err
	}

	return policyID, append([]byte{}, id[ledger.IDSize:]...), nil
}

// HasPrefix returns true if the content identifier belongs to the policy.
func HasPrefix(policyID ledger.ID, id []byte) bool {
	return bytes.HasPrefix(id, policyID[:])
}
