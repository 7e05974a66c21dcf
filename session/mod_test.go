package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/wallet"
	"golang.org/x/xerrors"
)

var testPkg = ledger.ID{0xc0}

func TestState_String(t *testing.T) {
	require.Equal(t, "absent", StateAbsent.String())
	require.Equal(t, "pending", StatePending.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "expired", StateExpired.String())
	require.Equal(t, "unknown", State(42).String())
}

func TestManager_Acquire(t *testing.T) {
	w := newFakeWallet()
	now := time.UnixMilli(1_700_000_000_000)

	m := NewManager(w, testPkg, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.Equal(t, StateAbsent, m.State(w.Address()))

	sk, err := m.Acquire(ctx, w.Address())
	require.NoError(t, err)
	require.True(t, sk.IsSigned())
	require.Equal(t, testPkg, sk.PackageID())
	require.Equal(t, 1, w.calls.Len())
	require.Equal(t, StateActive, m.State(w.Address()))

	// The active key is reused.
	again, err := m.Acquire(ctx, w.Address())
	require.NoError(t, err)
	require.Same(t, sk, again)
	require.Equal(t, 1, w.calls.Len())

	// A new key is signed once the previous one expired.
	now = now.Add(DefaultTTL * time.Minute)
	require.Equal(t, StateExpired, m.State(w.Address()))

	renewed, err := m.Acquire(ctx, w.Address())
	require.NoError(t, err)
	require.NotSame(t, sk, renewed)
	require.Equal(t, 2, w.calls.Len())

	m.Reset()
	require.Equal(t, StateAbsent, m.State(w.Address()))
}

func TestManager_AccountSwitch(t *testing.T) {
	w := newFakeWallet()
	m := NewManager(w, testPkg)

	first := w.Address()

	_, err := m.Acquire(context.Background(), first)
	require.NoError(t, err)

	w.switchAccount()
	require.Equal(t, StateAbsent, m.State(w.Address()))

	_, err = m.Acquire(context.Background(), first)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wallet is connected to")

	sk, err := m.Acquire(context.Background(), w.Address())
	require.NoError(t, err)
	require.Equal(t, w.Address(), sk.Address())
	require.Equal(t, 2, w.calls.Len())
}

func TestManager_Declined(t *testing.T) {
	w := newFakeWallet()
	m := NewManager(w, testPkg)

	sk, err := m.Acquire(context.Background(), w.Address())
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }

	w.err = wallet.ErrDeclined

	_, err = m.Acquire(context.Background(), w.Address())
	require.True(t, xerrors.Is(err, ErrDeclined))

	// The previous key is left untouched.
	m.Lock()
	require.Same(t, sk, m.current)
	m.Unlock()

	w.err = fake.GetError()

	_, err = m.Acquire(context.Background(), w.Address())
	require.EqualError(t, err, fake.Err("failed to sign session key"))
	require.False(t, xerrors.Is(err, ErrDeclined))

	w.err = nil
	w.garbage = true

	_, err = m.Acquire(context.Background(), w.Address())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to activate session key: ")

	m = NewManager(w, testPkg, WithTTL(0))

	_, err = m.Acquire(context.Background(), w.Address())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create session key: ")
}

func TestManager_Pending(t *testing.T) {
	w := newFakeWallet()
	w.block = make(chan struct{})

	m := NewManager(w, testPkg)

	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()

			_, err := m.Acquire(context.Background(), w.Address())
			require.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		return m.State(w.Address()) == StatePending
	}, time.Second, time.Millisecond)

	close(w.block)
	wg.Wait()

	require.Equal(t, StateActive, m.State(w.Address()))
	require.Equal(t, 1, w.calls.Len())
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeWallet struct {
	sync.Mutex
	signer  ed25519.Signer
	calls   *fake.Call
	err     error
	garbage bool
	block   chan struct{}
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		signer: ed25519.NewSigner(),
		calls:  fake.NewCall(),
	}
}

func (w *fakeWallet) switchAccount() {
	w.Lock()
	w.signer = ed25519.NewSigner()
	w.Unlock()
}

func (w *fakeWallet) Address() ledger.ID {
	w.Lock()
	defer w.Unlock()

	return w.signer.Address()
}

func (w *fakeWallet) SignPersonalMessage(ctx context.Context, msg []byte) ([]byte, error) {
	w.calls.Add("SignPersonalMessage", msg)

	if w.block != nil {
		<-w.block
	}

	if w.err != nil {
		return nil, w.err
	}

	if w.garbage {
		return []byte("garbage"), nil
	}

	w.Lock()
	defer w.Unlock()

	sig, err := w.signer.SignPersonalMessage(msg)
	if err != nil {
		return nil, err
	}

	return sig.MarshalBinary()
}

func (w *fakeWallet) SignAndExecuteTransaction(ctx context.Context,
	tx *ledger.Transaction) (ledger.Receipt, error) {

	return ledger.Receipt{}, fake.GetError()
}
