package memchain

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/crypto"
	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

var errDryRun = xerrors.New("dry run")

// abortError is returned by the execution of the calls when a module refused
// the transaction, as opposed to a failure of the database.
type abortError struct {
	err error
}

func (e abortError) Error() string {
	return e.err.Error()
}

// Execute implements ledger.Client. It verifies the signature of the sender
// and applies the calls atomically.
func (c *Chain) Execute(ctx context.Context, signed ledger.SignedTransaction) (ledger.Receipt, error) {
	td, err := ledger.ParseTransaction(signed.TxBytes)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("invalid transaction: %v", err)
	}

	if td.Sender == nil {
		return ledger.Receipt{}, xerrors.New("transaction has no sender")
	}

	err = ed25519.VerifyTransaction(*td.Sender, signed.TxBytes, signed.Signature)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("invalid signature: %v", err)
	}

	digest := crypto.Hash256(signed.TxBytes, signed.Signature)

	receipt := ledger.Receipt{
		Digest: hex.EncodeToString(digest),
		Status: ledger.StatusSuccess,
	}

	err = c.db.Update(func(tx kv.WritableTx) error {
		txs, err := tx.GetBucketOrCreate(txBucket)
		if err != nil {
			return err
		}

		if txs.Get(digest) != nil {
			return abortError{err: xerrors.New("transaction already executed")}
		}

		exec := c.newContext(tx, *td.Sender, digest)

		err = exec.run(td.Calls)
		if err != nil {
			return err
		}

		receipt.Created = exec.created

		return txs.Set(digest, []byte{1})
	})

	var abort abortError
	if xerrors.As(err, &abort) {
		c.logger.Info().
			Str("digest", receipt.Digest).
			Err(abort.err).
			Msg("transaction aborted")

		receipt.Status = ledger.StatusFailure
		receipt.Error = abort.Error()
		receipt.Created = nil

		return receipt, nil
	}

	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to execute: %v", err)
	}

	c.logger.Info().
		Str("digest", receipt.Digest).
		Stringer("sender", td.Sender).
		Int("calls", len(td.Calls)).
		Int("created", len(receipt.Created)).
		Msg("transaction executed")

	return receipt, nil
}

// DryRun implements ledger.DryRunner. The calls are executed as if they were
// sent by the sender and then rolled back.
func (c *Chain) DryRun(ctx context.Context, sender ledger.ID, kind []byte) error {
	td, err := ledger.ParseTransaction(kind)
	if err != nil {
		return xerrors.Errorf("invalid transaction: %v", err)
	}

	err = c.db.Update(func(tx kv.WritableTx) error {
		exec := c.newContext(tx, sender, crypto.Hash256(kind, sender[:]))

		err := exec.run(td.Calls)
		if err != nil {
			return err
		}

		return errDryRun
	})

	if xerrors.Is(err, errDryRun) {
		return nil
	}

	return xerrors.Errorf("dry run failed: %v", err)
}

// Context is the state of the execution of a transaction that the modules
// operate on.
type Context struct {
	chain   *Chain
	tx      kv.WritableTx
	sender  ledger.ID
	digest  []byte
	now     uint64
	counter uint64
	results []ledger.ID
	created []ledger.ObjectRef
}

func (c *Chain) newContext(tx kv.WritableTx, sender ledger.ID, digest []byte) *Context {
	return &Context{
		chain:  c,
		tx:     tx,
		sender: sender,
		digest: digest,
		now:    c.timestamp(),
	}
}

func (ctx *Context) run(calls []ledger.MoveCall) error {
	for i, call := range calls {
		pkg, module, function, err := ledger.ParseTarget(call.Target)
		if err != nil {
			return abortError{err: xerrors.Errorf("call %d: %v", i, err)}
		}

		if pkg != ctx.chain.pkg {
			return abortError{err: xerrors.Errorf("call %d: unknown package %v", i, pkg)}
		}

		mod := ctx.chain.modules[module]
		if mod == nil {
			return abortError{err: xerrors.Errorf("call %d: unknown module '%s'", i, module)}
		}

		result, err := mod.Call(ctx, function, call.Arguments)
		if err != nil {
			var abort abortError
			if xerrors.As(err, &abort) {
				return abortError{err: xerrors.Errorf("call %d (%s): %v", i, call.Target, abort.err)}
			}

			return xerrors.Errorf("call %d (%s): %v", i, call.Target, err)
		}

		ctx.results = append(ctx.results, result)
	}

	return nil
}

// Sender returns the address of the sender of the transaction.
func (ctx *Context) Sender() ledger.ID {
	return ctx.sender
}

// Abort returns the error of a call refused by a module.
func Abort(format string, args ...interface{}) error {
	return abortError{err: xerrors.Errorf(format, args...)}
}

// Object resolves an object argument, or the result of a previous call. An
// owned object must belong to the sender.
func (ctx *Context) Object(arg ledger.Argument) (ledger.Object, error) {
	var id ledger.ID

	switch arg.Kind {
	case ledger.ArgObject:
		if arg.Object == nil {
			return ledger.Object{}, Abort("missing object reference")
		}

		id = *arg.Object
	case ledger.ArgResult:
		if arg.Index < 0 || arg.Index >= len(ctx.results) || ctx.results[arg.Index].IsZero() {
			return ledger.Object{}, Abort("invalid result reference %d", arg.Index)
		}

		id = ctx.results[arg.Index]
	default:
		return ledger.Object{}, Abort("expected an object but got %s", arg.Kind)
	}

	if id == ledger.ClockID {
		return clockObject(ctx.now), nil
	}

	obj, err := readObject(ctx.tx, id)
	if xerrors.Is(err, ledger.ErrNotFound) {
		return ledger.Object{}, Abort("object %v does not exist", id)
	}

	if err != nil {
		return ledger.Object{}, err
	}

	if !obj.Shared && obj.Owner != ctx.sender {
		return ledger.Object{}, Abort("object %v is not owned by the sender", id)
	}

	return obj, nil
}

// Clock returns the timestamp of the clock argument.
func (ctx *Context) Clock(arg ledger.Argument) (uint64, error) {
	if arg.Kind != ledger.ArgObject || arg.Object == nil || *arg.Object != ledger.ClockID {
		return 0, Abort("expected the clock object")
	}

	return ctx.now, nil
}

// Create creates an object of the module. The object is shared when the
// owner is nil.
func (ctx *Context) Create(module, name string, owner *ledger.ID, fields interface{}) (ledger.ID, error) {
	ctx.counter++

	id, err := ledger.IDFromBytes(crypto.Hash256(ctx.digest, encodeU64(ctx.counter)))
	if err != nil {
		return ledger.ID{}, err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return ledger.ID{}, xerrors.Errorf("failed to encode fields: %v", err)
	}

	obj := ledger.Object{
		ID:      id,
		Type:    ledger.StructType(ctx.chain.pkg, module, name),
		Shared:  owner == nil,
		Version: 1,
		Fields:  raw,
	}

	if owner != nil {
		obj.Owner = *owner
	}

	err = writeObject(ctx.tx, obj)
	if err != nil {
		return ledger.ID{}, xerrors.Errorf("failed to write object: %v", err)
	}

	ctx.created = append(ctx.created, ledger.ObjectRef{
		ID:    id,
		Type:  obj.Type,
		Owner: obj.Owner,
	})

	return id, nil
}

// Save writes the new fields of the object and bumps its version.
func (ctx *Context) Save(obj ledger.Object, fields interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return xerrors.Errorf("failed to encode fields: %v", err)
	}

	obj.Fields = raw
	obj.Version++

	return writeObject(ctx.tx, obj)
}

// Transfer changes the owner of an owned object.
func (ctx *Context) Transfer(obj ledger.Object, recipient ledger.ID) error {
	if obj.Shared {
		return Abort("shared object %v cannot be transferred", obj.ID)
	}

	obj.Owner = recipient
	obj.Version++

	for i, ref := range ctx.created {
		if ref.ID == obj.ID {
			ctx.created[i].Owner = recipient
		}
	}

	return writeObject(ctx.tx, obj)
}

// AddField attaches a dynamic field of the name to the parent. A name can
// only be used once per parent.
func (ctx *Context) AddField(parent ledger.ID, name string) error {
	bucket, err := ctx.tx.GetBucketOrCreate(fieldBucket)
	if err != nil {
		return err
	}

	count := uint64(0)
	duplicate := false

	err = bucket.Scan(parent[:], func(k, v []byte) error {
		count++
		if string(v) == name {
			duplicate = true
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to scan fields: %v", err)
	}

	if duplicate {
		return Abort("field '%s' already exists", name)
	}

	key := append(append([]byte{}, parent[:]...), encodeU64(count)...)

	return bucket.Set(key, []byte(name))
}

// Withdraw debits the sender of the amount of the coin argument.
func (ctx *Context) Withdraw(arg ledger.Argument) (uint64, error) {
	if arg.Kind != ledger.ArgCoin {
		return 0, Abort("expected a coin but got %s", arg.Kind)
	}

	err := debit(ctx.tx, ctx.sender, arg.Amount)
	if err != nil {
		return 0, Abort("failed to withdraw: %v", err)
	}

	return arg.Amount, nil
}

// Credit adds the amount to the balance of the address.
func (ctx *Context) Credit(addr ledger.ID, amount uint64) error {
	return credit(ctx.tx, addr, amount)
}
