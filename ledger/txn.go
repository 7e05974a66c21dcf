package ledger

import (
	"encoding/binary"
	"encoding/json"

	"golang.org/x/xerrors"
)

// ArgKind tells how an argument must be resolved by the ledger.
type ArgKind string

const (
	// ArgPure is an argument passed by value.
	ArgPure ArgKind = "pure"
	// ArgObject is a reference to an existing object.
	ArgObject ArgKind = "object"
	// ArgCoin is an amount withdrawn from the sender's balance.
	ArgCoin ArgKind = "coin"
	// ArgResult is the object returned by a previous call of the same
	// transaction.
	ArgResult ArgKind = "result"
)

// Argument is an input of a module call.
type Argument struct {
	Kind   ArgKind `json:"kind"`
	Pure   []byte  `json:"pure,omitempty"`
	Object *ID     `json:"object,omitempty"`
	Amount uint64  `json:"amount,omitempty"`
	Index  int     `json:"index,omitempty"`
}

// Pure returns an argument passed by value.
func Pure(value []byte) Argument {
	return Argument{Kind: ArgPure, Pure: append([]byte{}, value...)}
}

// PureString returns a string argument.
func PureString(value string) Argument {
	return Pure([]byte(value))
}

// PureU64 returns an unsigned integer argument encoded in little-endian.
func PureU64(value uint64) Argument {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)

	return Pure(buf)
}

// PureAddress returns an address argument.
func PureAddress(addr ID) Argument {
	return Pure(addr[:])
}

// ObjectArg returns a reference to an object.
func ObjectArg(id ID) Argument {
	return Argument{Kind: ArgObject, Object: &id}
}

// CoinArg returns a payment of the given amount from the sender.
func CoinArg(amount uint64) Argument {
	return Argument{Kind: ArgCoin, Amount: amount}
}

// AsU64 decodes a pure unsigned integer.
func (a Argument) AsU64() (uint64, error) {
	if a.Kind != ArgPure || len(a.Pure) != 8 {
		return 0, xerrors.Errorf("expected a pure u64 but got %s of %d bytes", a.Kind, len(a.Pure))
	}

	return binary.LittleEndian.Uint64(a.Pure), nil
}

// AsAddress decodes a pure address.
func (a Argument) AsAddress() (ID, error) {
	if a.Kind != ArgPure {
		return ID{}, xerrors.Errorf("expected a pure address but got %s", a.Kind)
	}

	return IDFromBytes(a.Pure)
}

// MoveCall is a call to a module function.
type MoveCall struct {
	Target    string     `json:"target"`
	Arguments []Argument `json:"arguments"`
}

// TransactionData is the serialized form of a transaction. The sender and the
// gas budget are absent when only the kind is built.
type TransactionData struct {
	Sender    *ID        `json:"sender,omitempty"`
	GasBudget uint64     `json:"gasBudget,omitempty"`
	Calls     []MoveCall `json:"calls"`
}

// ParseTransaction decodes a transaction built by Transaction.Build.
func ParseTransaction(data []byte) (TransactionData, error) {
	var td TransactionData

	err := json.Unmarshal(data, &td)
	if err != nil {
		return td, xerrors.Errorf("failed to decode transaction: %v", err)
	}

	if len(td.Calls) == 0 {
		return td, xerrors.New("transaction has no call")
	}

	return td, nil
}

// SignedTransaction is a transaction with the signature of its sender.
type SignedTransaction struct {
	TxBytes   []byte `json:"txBytes"`
	Signature []byte `json:"signature"`
}

// Transaction is a builder of module calls executed atomically.
type Transaction struct {
	sender    *ID
	gasBudget uint64
	calls     []MoveCall
}

// NewTransaction returns an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// SetSender sets the address that signs the transaction.
func (tx *Transaction) SetSender(addr ID) {
	tx.sender = &addr
}

// SetGasBudget sets the maximum gas the transaction can use.
func (tx *Transaction) SetGasBudget(budget uint64) {
	tx.gasBudget = budget
}

// MoveCall appends a call and returns an argument referencing its result.
func (tx *Transaction) MoveCall(target string, args ...Argument) Argument {
	tx.calls = append(tx.calls, MoveCall{
		Target:    target,
		Arguments: args,
	})

	return Argument{Kind: ArgResult, Index: len(tx.calls) - 1}
}

// Calls returns the calls appended so far.
func (tx *Transaction) Calls() []MoveCall {
	return append([]MoveCall{}, tx.calls...)
}

// Build serializes the transaction. When onlyKind is true, the sender and gas
// are left out which is the form expected by the key servers.
func (tx *Transaction) Build(onlyKind bool) ([]byte, error) {
	if len(tx.calls) == 0 {
		return nil, xerrors.New("transaction has no call")
	}

	td := TransactionData{Calls: tx.calls}

	if !onlyKind {
		if tx.sender == nil {
			return nil, xerrors.New("sender is not set")
		}

		td.Sender = tx.sender
		td.GasBudget = tx.gasBudget
	}

	data, err := json.Marshal(td)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode transaction: %v", err)
	}

	return data, nil
}
