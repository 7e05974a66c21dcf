// Package registrar writes the policy objects of a creator on the ledger, and
// records the blobs published under them. Every operation is a single
// transaction signed by the wallet of the creator. Nothing is retried.
//
// Documentation Last Review: 24.08.2026
//
package registrar

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"go.dedis.ch/vault/wallet"
	"golang.org/x/xerrors"
)

// GasBudget is the gas budget of every transaction.
const GasBudget = 10_000_000

// ErrRejected is returned when the ledger refused a transaction.
var ErrRejected = xerrors.New("transaction rejected by the ledger")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Publication is the association of a blob with the policy it is encrypted
// under.
type Publication struct {
	Kind     policy.Kind
	PolicyID ledger.ID
	CapID    ledger.ID
	BlobID   string
}

// Created is the pair of objects created with a new policy.
type Created struct {
	PolicyID ledger.ID
	CapID    ledger.ID
	Digest   string
}

// Registrar submits the policy transactions of a wallet.
type Registrar struct {
	wallet wallet.Wallet
	pkg    ledger.ID
	logger zerolog.Logger
}

// NewRegistrar returns a registrar for the package of the policy modules.
func NewRegistrar(w wallet.Wallet, pkg ledger.ID) *Registrar {
	return &Registrar{
		wallet: w,
		pkg:    pkg,
		logger: vault.Logger.With().Str("role", "registrar").Logger(),
	}
}

// ParseAddress parses a complete 0x-prefixed address of 64 hexadecimal
// characters.
func ParseAddress(text string) (ledger.ID, error) {
	text = strings.TrimSpace(text)

	if !addressPattern.MatchString(text) {
		return ledger.ID{}, xerrors.Errorf("invalid address '%s'", text)
	}

	return ledger.ParseID(text)
}

// Register records the blob under the policy. The capability must be owned
// by the wallet.
func (r *Registrar) Register(ctx context.Context, pub Publication) (ledger.Receipt, error) {
	if pub.BlobID == "" {
		return ledger.Receipt{}, xerrors.New("missing blob id")
	}

	tx := r.newTransaction()
	tx.MoveCall(ledger.Target(r.pkg, pub.Kind.Module(), "publish"),
		ledger.ObjectArg(pub.PolicyID),
		ledger.ObjectArg(pub.CapID),
		ledger.PureString(pub.BlobID),
	)

	receipt, err := r.submit(ctx, tx)
	if err != nil {
		return receipt, xerrors.Errorf("failed to register blob: %w", err)
	}

	r.logger.Info().
		Str("blob", pub.BlobID).
		Stringer("policy", pub.PolicyID).
		Str("digest", receipt.Digest).
		Msg("blob registered")

	return receipt, nil
}

// CreateAllowlist creates an empty allowlist with the name.
func (r *Registrar) CreateAllowlist(ctx context.Context, name string) (Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Created{}, xerrors.New("missing allowlist name")
	}

	tx := r.newTransaction()
	tx.MoveCall(ledger.Target(r.pkg, policy.KindAllowlist.Module(), "create_allowlist_entry"),
		ledger.PureString(name))

	receipt, err := r.submit(ctx, tx)
	if err != nil {
		return Created{}, xerrors.Errorf("failed to create allowlist: %w", err)
	}

	return created(receipt, policy.KindAllowlist, policy.NameAllowlist)
}

// AddMember adds the address to the allowlist.
func (r *Registrar) AddMember(ctx context.Context, allowlistID, capID ledger.ID, address string) error {
	return r.member(ctx, "add", allowlistID, capID, address)
}

// RemoveMember removes the address from the allowlist.
func (r *Registrar) RemoveMember(ctx context.Context, allowlistID, capID ledger.ID, address string) error {
	return r.member(ctx, "remove", allowlistID, capID, address)
}

func (r *Registrar) member(ctx context.Context, fn string, allowlistID, capID ledger.ID, address string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}

	tx := r.newTransaction()
	tx.MoveCall(ledger.Target(r.pkg, policy.KindAllowlist.Module(), fn),
		ledger.ObjectArg(allowlistID),
		ledger.ObjectArg(capID),
		ledger.PureAddress(addr),
	)

	_, err = r.submit(ctx, tx)
	if err != nil {
		return xerrors.Errorf("failed to %s member: %w", fn, err)
	}

	return nil
}

// CreateService creates a subscription service that sells an access of ttl
// milliseconds for the fee.
func (r *Registrar) CreateService(ctx context.Context, fee, ttl uint64, name string) (Created, error) {
	name = strings.TrimSpace(name)

	switch {
	case fee == 0:
		return Created{}, xerrors.New("fee must be positive")
	case ttl == 0:
		return Created{}, xerrors.New("ttl must be positive")
	case name == "":
		return Created{}, xerrors.New("missing service name")
	}

	tx := r.newTransaction()
	tx.MoveCall(ledger.Target(r.pkg, policy.KindSubscription.Module(), "create_service_entry"),
		ledger.PureU64(fee),
		ledger.PureU64(ttl),
		ledger.PureString(name),
	)

	receipt, err := r.submit(ctx, tx)
	if err != nil {
		return Created{}, xerrors.Errorf("failed to create service: %w", err)
	}

	return created(receipt, policy.KindSubscription, policy.NameService)
}

// Subscribe pays the fee of the service and sends the new subscription to
// the wallet. It returns the identifier of the subscription.
func (r *Registrar) Subscribe(ctx context.Context, serviceID ledger.ID, fee uint64) (ledger.ID, error) {
	module := policy.KindSubscription.Module()

	tx := r.newTransaction()
	sub := tx.MoveCall(ledger.Target(r.pkg, module, "subscribe"),
		ledger.CoinArg(fee),
		ledger.ObjectArg(serviceID),
		ledger.ObjectArg(ledger.ClockID),
	)
	tx.MoveCall(ledger.Target(r.pkg, module, "transfer"), sub, ledger.PureAddress(r.wallet.Address()))

	receipt, err := r.submit(ctx, tx)
	if err != nil {
		return ledger.ID{}, xerrors.Errorf("failed to subscribe: %w", err)
	}

	id, found := receipt.CreatedOf(module + "::" + policy.NameSubscription)
	if !found {
		return ledger.ID{}, xerrors.New("no subscription in the receipt")
	}

	return id, nil
}

func (r *Registrar) newTransaction() *ledger.Transaction {
	tx := ledger.NewTransaction()
	tx.SetGasBudget(GasBudget)

	return tx
}

func (r *Registrar) submit(ctx context.Context, tx *ledger.Transaction) (ledger.Receipt, error) {
	receipt, err := r.wallet.SignAndExecuteTransaction(ctx, tx)
	if err != nil {
		return receipt, err
	}

	if !receipt.Success() {
		return receipt, xerrors.Errorf("%s: %w", receipt.Error, ErrRejected)
	}

	return receipt, nil
}

func created(receipt ledger.Receipt, kind policy.Kind, name string) (Created, error) {
	policyID, found := receipt.CreatedOf(kind.Module() + "::" + name)
	if !found {
		return Created{}, xerrors.Errorf("no %s in the receipt", name)
	}

	capID, found := receipt.CreatedOf(kind.Module() + "::" + policy.NameCap)
	if !found {
		return Created{}, xerrors.New("no capability in the receipt")
	}

	c := Created{
		PolicyID: policyID,
		CapID:    capID,
		Digest:   receipt.Digest,
	}

	return c, nil
}
