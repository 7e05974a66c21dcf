// Package publish implements the write path of the vault: a payload is
// validated, wrapped in its envelope, encrypted under a fresh identifier of
// the policy, stored on a blob backend and finally registered on the ledger
// under the policy.
//
// The upload and the registration can be done in two steps with Stage and
// Register, so that the creator can look at the stored blob before paying for
// the transaction.
//
// Documentation Last Review: 06.10.2026
//
package publish

import (
	"context"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/content"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"go.dedis.ch/vault/registrar"
	"go.dedis.ch/vault/seal"
	"go.dedis.ch/vault/walrus"
	"golang.org/x/xerrors"
)

const (
	// DefaultEpochs is the number of storage epochs bought for a blob.
	DefaultEpochs = 1

	// DefaultThreshold is the number of key servers needed to decrypt.
	DefaultThreshold = 2
)

// Encrypter encrypts data for an identity.
type Encrypter interface {
	Encrypt(ctx context.Context, req seal.EncryptRequest) ([]byte, error)
}

// Storage stores blobs on a backend chosen by name.
type Storage interface {
	Backend(name string) (walrus.Backend, error)
	Store(ctx context.Context, data []byte, backend walrus.Backend, epochs int) (walrus.Receipt, error)
}

// Registry associates blobs with policies on the ledger.
type Registry interface {
	Register(ctx context.Context, pub registrar.Publication) (ledger.Receipt, error)
}

// Upload is a payload to publish under a policy.
type Upload struct {
	PolicyID ledger.ID
	CapID    ledger.ID
	Kind     policy.Kind
	Backend  string
	Payload  content.Payload
}

// Staged is an upload stored on a backend but not yet registered.
type Staged struct {
	Upload  Upload
	ID      []byte
	Receipt walrus.Receipt
}

// Published is a registered upload.
type Published struct {
	Staged
	Tx ledger.Receipt
}

// Publisher runs the write path.
type Publisher struct {
	enc       Encrypter
	storage   Storage
	registry  Registry
	pkg       ledger.ID
	threshold int
	epochs    int
	rules     content.Policy
	nonce     func() ([]byte, error)
	logger    zerolog.Logger
}

// Option is the type of option to set some fields of a publisher.
type Option func(*Publisher)

// WithThreshold sets the number of key servers needed to decrypt.
func WithThreshold(threshold int) Option {
	return func(p *Publisher) {
		p.threshold = threshold
	}
}

// WithEpochs sets the number of storage epochs bought for each blob.
func WithEpochs(epochs int) Option {
	return func(p *Publisher) {
		p.epochs = epochs
	}
}

// WithRules sets the rules a payload must follow. Media files are accepted by
// default.
func WithRules(rules content.Policy) Option {
	return func(p *Publisher) {
		p.rules = rules
	}
}

// NewPublisher returns a publisher for the package.
func NewPublisher(enc Encrypter, storage Storage, registry Registry, pkg ledger.ID,
	opts ...Option) *Publisher {

	p := &Publisher{
		enc:       enc,
		storage:   storage,
		registry:  registry,
		pkg:       pkg,
		threshold: DefaultThreshold,
		epochs:    DefaultEpochs,
		rules:     content.MediaPolicy,
		nonce:     policy.NewNonce,
		logger:    vault.Logger.With().Str("role", "publisher").Logger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish stores and registers the upload.
func (p *Publisher) Publish(ctx context.Context, up Upload) (Published, error) {
	staged, err := p.Stage(ctx, up)
	if err != nil {
		return Published{}, err
	}

	return p.Register(ctx, staged)
}

// Stage validates, encrypts and stores the upload. A payload refused by the
// rules is rejected before any network call.
func (p *Publisher) Stage(ctx context.Context, up Upload) (Staged, error) {
	err := content.Validate(up.Payload, p.rules)
	if err != nil {
		return Staged{}, xerrors.Errorf("invalid payload: %w", err)
	}

	backend, err := p.storage.Backend(up.Backend)
	if err != nil {
		return Staged{}, xerrors.Errorf("failed to select backend: %v", err)
	}

	nonce, err := p.nonce()
	if err != nil {
		return Staged{}, xerrors.Errorf("failed to generate nonce: %v", err)
	}

	id := policy.BuildID(up.PolicyID, nonce)

	envelope, err := content.Serialize(up.Payload)
	if err != nil {
		return Staged{}, xerrors.Errorf("failed to serialize payload: %v", err)
	}

	ciphertext, err := p.enc.Encrypt(ctx, seal.EncryptRequest{
		PackageID: p.pkg,
		ID:        id,
		Threshold: p.threshold,
		Data:      envelope,
	})
	if err != nil {
		return Staged{}, xerrors.Errorf("failed to encrypt: %v", err)
	}

	receipt, err := p.storage.Store(ctx, ciphertext, backend, p.epochs)
	if err != nil {
		return Staged{}, xerrors.Errorf("failed to store blob on '%s': %v", backend.Name, err)
	}

	p.logger.Info().
		Str("blob", receipt.GetBlobID()).
		Str("backend", backend.Name).
		Uint64("end epoch", receipt.GetEndEpoch()).
		Msg("blob stored")

	return Staged{Upload: up, ID: id, Receipt: receipt}, nil
}

// Register records the staged blob under its policy.
func (p *Publisher) Register(ctx context.Context, staged Staged) (Published, error) {
	if staged.Receipt == nil {
		return Published{}, xerrors.New("upload is not staged")
	}

	tx, err := p.registry.Register(ctx, registrar.Publication{
		Kind:     staged.Upload.Kind,
		PolicyID: staged.Upload.PolicyID,
		CapID:    staged.Upload.CapID,
		BlobID:   staged.Receipt.GetBlobID(),
	})
	if err != nil {
		return Published{Staged: staged}, xerrors.Errorf("failed to register: %w", err)
	}

	return Published{Staged: staged, Tx: tx}, nil
}
