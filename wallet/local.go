package wallet

import (
	"context"

	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/crypto/loader"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// Prompt is called before every signature with a description of what is about
// to be signed. Returning false declines the signature.
type Prompt func(description string) bool

// Local is a wallet holding its private key in memory and submitting the
// transactions to a ledger client.
//
// - implements wallet.Wallet
type Local struct {
	signer ed25519.Signer
	client ledger.Client
	prompt Prompt
}

// Option is the type of option to configure a local wallet.
type Option func(*Local)

// WithPrompt sets the confirmation asked before every signature.
func WithPrompt(p Prompt) Option {
	return func(w *Local) {
		w.prompt = p
	}
}

// NewLocal returns a wallet of the signer that submits to the ledger client.
func NewLocal(signer ed25519.Signer, client ledger.Client, opts ...Option) *Local {
	w := &Local{
		signer: signer,
		client: client,
		prompt: func(string) bool { return true },
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Load returns the wallet of the key stored by the loader, or of a new key
// when none exists yet.
func Load(l loader.Loader, client ledger.Client, opts ...Option) (*Local, error) {
	data, err := l.LoadOrCreate(ed25519.Generator{})
	if err != nil {
		return nil, xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	return NewLocal(signer, client, opts...), nil
}

// Address implements wallet.Wallet. It returns the address of the key.
func (w *Local) Address() ledger.ID {
	return w.signer.Address()
}

// Signer returns the key of the wallet.
func (w *Local) Signer() ed25519.Signer {
	return w.signer
}

// SignPersonalMessage implements wallet.Wallet. It signs the message once the
// user agreed.
func (w *Local) SignPersonalMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if !w.prompt(string(msg)) {
		return nil, ErrDeclined
	}

	sig, err := w.signer.SignPersonalMessage(msg)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	data, err := sig.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signature: %v", err)
	}

	return data, nil
}

// SignAndExecuteTransaction implements wallet.Wallet. It builds the
// transaction with the wallet as the sender, signs it and submits it.
func (w *Local) SignAndExecuteTransaction(ctx context.Context,
	tx *ledger.Transaction) (ledger.Receipt, error) {

	tx.SetSender(w.Address())

	txBytes, err := tx.Build(false)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to build transaction: %v", err)
	}

	if !w.prompt(string(txBytes)) {
		return ledger.Receipt{}, ErrDeclined
	}

	sig, err := w.signer.SignTransaction(txBytes)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to sign: %v", err)
	}

	sigBytes, err := sig.MarshalBinary()
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to marshal signature: %v", err)
	}

	signed := ledger.SignedTransaction{
		TxBytes:   txBytes,
		Signature: sigBytes,
	}

	receipt, err := w.client.Execute(ctx, signed)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to execute: %v", err)
	}

	return receipt, nil
}
