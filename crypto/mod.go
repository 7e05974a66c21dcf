// Package crypto defines the message digests signed by wallets. A signature
// always covers the blake2b-256 hash of an intent prefix followed by the
// message, so that a personal message can never be replayed as a transaction.
//
// Documentation Last Review: 28.05.2026
//
package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// Intent is the scope prefixed to a message before signing it.
type Intent [3]byte

var (
	// IntentTransaction scopes a signature to a transaction.
	IntentTransaction = Intent{0, 0, 0}
	// IntentPersonalMessage scopes a signature to an arbitrary message shown
	// to the user.
	IntentPersonalMessage = Intent{3, 0, 0}
)

// Digest returns the blake2b-256 digest of the message under the intent.
func Digest(intent Intent, msg []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(intent[:])
	h.Write(msg)

	return h.Sum(nil)
}

// Hash256 returns the blake2b-256 digest of the concatenation of the buffers.
func Hash256(bufs ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	for _, buf := range bufs {
		h.Write(buf)
	}

	return h.Sum(nil)
}
