package fake

import (
	"context"

	"go.dedis.ch/vault/ledger"
)

// Ledger is a fake implementation of a ledger client. The objects are served
// from memory and the submitted transactions are recorded.
//
// - implements ledger.Client
type Ledger struct {
	Objects  map[ledger.ID]ledger.Object
	Owned    map[ledger.ID][]ledger.Object
	Fields   map[ledger.ID][]ledger.DynamicField
	Clock    uint64
	Receipt  ledger.Receipt
	Calls    *Call
	Err      error
	ErrDry   error
	ErrClock error
}

// NewLedger returns an empty fake ledger that records its calls.
func NewLedger() *Ledger {
	return &Ledger{
		Objects: make(map[ledger.ID]ledger.Object),
		Owned:   make(map[ledger.ID][]ledger.Object),
		Fields:  make(map[ledger.ID][]ledger.DynamicField),
		Receipt: ledger.Receipt{Digest: "fake", Status: ledger.StatusSuccess},
		Calls:   NewCall(),
	}
}

// NewBadLedger returns a fake ledger that fails every request.
func NewBadLedger() *Ledger {
	l := NewLedger()
	l.Err = fakeErr
	l.ErrDry = fakeErr
	l.ErrClock = fakeErr

	return l
}

// GetObject implements ledger.Reader.
func (l *Ledger) GetObject(ctx context.Context, id ledger.ID) (ledger.Object, error) {
	l.Calls.Add("GetObject", id)

	if l.Err != nil {
		return ledger.Object{}, l.Err
	}

	obj, found := l.Objects[id]
	if !found {
		return ledger.Object{}, ledger.ErrNotFound
	}

	return obj, nil
}

// GetOwnedObjects implements ledger.Reader.
func (l *Ledger) GetOwnedObjects(ctx context.Context, owner ledger.ID,
	structType string) ([]ledger.Object, error) {

	l.Calls.Add("GetOwnedObjects", owner, structType)

	if l.Err != nil {
		return nil, l.Err
	}

	var res []ledger.Object
	for _, obj := range l.Owned[owner] {
		if structType == "" || obj.Type == structType {
			res = append(res, obj)
		}
	}

	return res, nil
}

// GetDynamicFields implements ledger.Reader.
func (l *Ledger) GetDynamicFields(ctx context.Context, parent ledger.ID) ([]ledger.DynamicField, error) {
	l.Calls.Add("GetDynamicFields", parent)

	return l.Fields[parent], l.Err
}

// ReadClock implements ledger.Reader.
func (l *Ledger) ReadClock(ctx context.Context) (uint64, error) {
	l.Calls.Add("ReadClock")

	return l.Clock, l.ErrClock
}

// DryRun implements ledger.DryRunner.
func (l *Ledger) DryRun(ctx context.Context, sender ledger.ID, kind []byte) error {
	l.Calls.Add("DryRun", sender, kind)

	return l.ErrDry
}

// Execute implements ledger.Client.
func (l *Ledger) Execute(ctx context.Context, tx ledger.SignedTransaction) (ledger.Receipt, error) {
	l.Calls.Add("Execute", tx)

	return l.Receipt, l.Err
}
