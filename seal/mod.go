// Package seal implements the threshold encryption of the vault content.
//
// Every key server owns an identity-based master key. Content is encrypted
// under the identity made of the policy package and the content identifier so
// that its symmetric key can only be recovered with the user secret keys of at
// least a threshold of key servers. A key server releases the user secret key
// of an identity only after the ledger approved the read-only transaction the
// user presents, and only to the holder of a session key signed by the user.
//
// Documentation Last Review: 19.10.2026
//
package seal

import (
	"context"

	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// ErrNoAccess is returned when the key servers refuse to release the keys
// because the ledger does not approve the access.
var ErrNoAccess = xerrors.New("no access to decryption keys")

// KeyServer is the connection to a key server.
type KeyServer interface {
	// FetchKey asks the key server for the user secret keys of the
	// identifiers approved by the transaction of the request.
	FetchKey(ctx context.Context, req *FetchKeyRequest) (*FetchKeyResponse, error)
}

// Certificate proves that a session key has been authorized by the user for
// a limited time.
type Certificate struct {
	User         ledger.ID `json:"user"`
	SessionVK    []byte    `json:"session_vk"`
	CreationTime uint64    `json:"creation_time"`
	TTLMin       uint16    `json:"ttl_min"`
	Signature    []byte    `json:"signature"`
}

// FetchKeyRequest is the message sent to a key server. The response is
// encrypted under the ephemeral encryption key so that only the requester can
// use it.
type FetchKeyRequest struct {
	PTB                []byte      `json:"ptb"`
	EncKey             []byte      `json:"enc_key"`
	EncVerificationKey []byte      `json:"enc_verification_key"`
	RequestSignature   []byte      `json:"request_signature"`
	Certificate        Certificate `json:"certificate"`
}

// DecryptionKey is the encrypted user secret key of an identifier.
type DecryptionKey struct {
	ID []byte `json:"id"`
	C1 []byte `json:"c1"`
	C2 []byte `json:"c2"`
}

// FetchKeyResponse is the message returned by a key server.
type FetchKeyResponse struct {
	Keys []DecryptionKey `json:"decryption_keys"`
}

// ServiceInfo describes a key server.
type ServiceInfo struct {
	ObjectID  ledger.ID `json:"service_id"`
	PublicKey []byte    `json:"pk"`
}
