// Package wallet defines the signing surface of a user: signing the personal
// messages that activate session keys, and signing then submitting the
// transactions that write to the ledger.
//
// Documentation Last Review: 17.07.2026
//
package wallet

import (
	"context"

	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// ErrDeclined is returned when the user refuses to sign.
var ErrDeclined = xerrors.New("user declined to sign")

// Wallet is the signing surface of a user.
type Wallet interface {
	// Address returns the address of the connected account.
	Address() ledger.ID

	// SignPersonalMessage returns the serialized signature of the message.
	SignPersonalMessage(ctx context.Context, msg []byte) ([]byte, error)

	// SignAndExecuteTransaction sets the sender of the transaction, signs it
	// and submits it to the ledger.
	SignAndExecuteTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.Receipt, error)
}
