// Package memchain implements a single-node ledger for the development network
// and the tests. Objects, dynamic fields and balances are persisted in a
// key/value database, and the policy modules are implemented natively in Go.
//
// A transaction is executed in a single database transaction so that either
// every call is applied or none. A call that aborts does not fail the
// execution: the receipt reports the failure.
//
// Documentation Last Review: 19.10.2026
//
package memchain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/crypto"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"golang.org/x/xerrors"
)

var (
	objectBucket  = []byte("memchain:objects")
	fieldBucket   = []byte("memchain:fields")
	balanceBucket = []byte("memchain:balances")
	txBucket      = []byte("memchain:txs")
)

// ClockType is the type of the shared clock object.
const ClockType = "0x2::clock::Clock"

// Module is the interface to implement to register a native module.
type Module interface {
	// Call executes the function of the module with the arguments. It returns
	// the identifier of the object produced by the call, if any.
	Call(ctx *Context, function string, args []ledger.Argument) (ledger.ID, error)
}

// Chain is a local ledger.
//
// - implements ledger.Client
type Chain struct {
	db      kv.DB
	pkg     ledger.ID
	modules map[string]Module
	now     func() time.Time
	logger  zerolog.Logger
}

// Option is the type of option to configure a chain.
type Option func(*Chain)

// WithPackage sets the identifier of the package of the policy modules.
func WithPackage(pkg ledger.ID) Option {
	return func(c *Chain) {
		c.pkg = pkg
	}
}

// WithClock sets the source of time of the clock object.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

// DefaultPackage returns the package identifier used when none is given.
func DefaultPackage() ledger.ID {
	id, _ := ledger.IDFromBytes(crypto.Hash256([]byte("vault package")))
	return id
}

// New returns a chain persisted in the database with the allowlist and the
// subscription modules registered.
func New(db kv.DB, opts ...Option) *Chain {
	c := &Chain{
		db:      db,
		pkg:     DefaultPackage(),
		modules: make(map[string]Module),
		now:     time.Now,
		logger:  vault.Logger.With().Str("role", "memchain").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Set(policy.KindAllowlist.Module(), allowlistModule{pkg: c.pkg})
	c.Set(policy.KindSubscription.Module(), subscriptionModule{pkg: c.pkg})

	return c
}

// Set registers the module under the name. It panics if the name is taken.
func (c *Chain) Set(name string, module Module) {
	_, found := c.modules[name]
	if found {
		panic(xerrors.Errorf("module '%s' already registered", name))
	}

	c.modules[name] = module
}

// Package returns the identifier of the package of the modules.
func (c *Chain) Package() ledger.ID {
	return c.pkg
}

// GetObject implements ledger.Reader.
func (c *Chain) GetObject(ctx context.Context, id ledger.ID) (ledger.Object, error) {
	if id == ledger.ClockID {
		return clockObject(c.timestamp()), nil
	}

	var obj ledger.Object

	err := c.db.View(func(tx kv.ReadableTx) error {
		var err error
		obj, err = readObject(tx, id)
		return err
	})

	if err != nil {
		return ledger.Object{}, err
	}

	return obj, nil
}

// GetOwnedObjects implements ledger.Reader. Objects are listed in identifier
// order.
func (c *Chain) GetOwnedObjects(ctx context.Context, owner ledger.ID,
	structType string) ([]ledger.Object, error) {

	var res []ledger.Object

	err := c.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(objectBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var obj ledger.Object

			err := json.Unmarshal(v, &obj)
			if err != nil {
				return xerrors.Errorf("failed to decode object: %v", err)
			}

			if obj.IsOwnedBy(owner) && (structType == "" || obj.Type == structType) {
				res = append(res, obj)
			}

			return nil
		})
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to list objects: %v", err)
	}

	return res, nil
}

// GetDynamicFields implements ledger.Reader.
func (c *Chain) GetDynamicFields(ctx context.Context, parent ledger.ID) ([]ledger.DynamicField, error) {
	var res []ledger.DynamicField

	err := c.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(fieldBucket)
		if bucket == nil {
			return nil
		}

		return bucket.Scan(parent[:], func(k, v []byte) error {
			res = append(res, ledger.DynamicField{Parent: parent, Name: string(v)})
			return nil
		})
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to list fields: %v", err)
	}

	return res, nil
}

// ReadClock implements ledger.Reader.
func (c *Chain) ReadClock(ctx context.Context) (uint64, error) {
	return c.timestamp(), nil
}

// Mint credits the address with the amount. It is the faucet of the
// development network.
func (c *Chain) Mint(addr ledger.ID, amount uint64) error {
	err := c.db.Update(func(tx kv.WritableTx) error {
		return credit(tx, addr, amount)
	})

	if err != nil {
		return xerrors.Errorf("failed to mint: %v", err)
	}

	c.logger.Info().Stringer("address", addr).Uint64("amount", amount).Msg("minted")

	return nil
}

// Balance returns the balance of the address.
func (c *Chain) Balance(addr ledger.ID) (uint64, error) {
	var balance uint64

	err := c.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(balanceBucket)
		if bucket != nil {
			balance = decodeU64(bucket.Get(addr[:]))
		}

		return nil
	})

	if err != nil {
		return 0, xerrors.Errorf("failed to read balance: %v", err)
	}

	return balance, nil
}

func (c *Chain) timestamp() uint64 {
	return uint64(c.now().UnixMilli())
}

func clockObject(now uint64) ledger.Object {
	fields, _ := json.Marshal(struct {
		TimestampMs uint64 `json:"timestamp_ms"`
	}{TimestampMs: now})

	return ledger.Object{
		ID:      ledger.ClockID,
		Type:    ClockType,
		Shared:  true,
		Version: now,
		Fields:  fields,
	}
}

func readObject(tx kv.ReadableTx, id ledger.ID) (ledger.Object, error) {
	bucket := tx.GetBucket(objectBucket)

	var raw []byte
	if bucket != nil {
		raw = bucket.Get(id[:])
	}

	if raw == nil {
		return ledger.Object{}, xerrors.Errorf("object %v: %w", id, ledger.ErrNotFound)
	}

	var obj ledger.Object

	err := json.Unmarshal(raw, &obj)
	if err != nil {
		return ledger.Object{}, xerrors.Errorf("failed to decode object: %v", err)
	}

	return obj, nil
}

func writeObject(tx kv.WritableTx, obj ledger.Object) error {
	bucket, err := tx.GetBucketOrCreate(objectBucket)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return xerrors.Errorf("failed to encode object: %v", err)
	}

	return bucket.Set(obj.ID[:], raw)
}

func credit(tx kv.WritableTx, addr ledger.ID, amount uint64) error {
	bucket, err := tx.GetBucketOrCreate(balanceBucket)
	if err != nil {
		return err
	}

	balance := decodeU64(bucket.Get(addr[:]))
	if balance+amount < balance {
		return xerrors.New("balance overflow")
	}

	return bucket.Set(addr[:], encodeU64(balance+amount))
}

func debit(tx kv.WritableTx, addr ledger.ID, amount uint64) error {
	bucket, err := tx.GetBucketOrCreate(balanceBucket)
	if err != nil {
		return err
	}

	balance := decodeU64(bucket.Get(addr[:]))
	if balance < amount {
		return xerrors.Errorf("insufficient balance: %d < %d", balance, amount)
	}

	return bucket.Set(addr[:], encodeU64(balance-amount))
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)

	return buf
}

func decodeU64(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(buf)
}
