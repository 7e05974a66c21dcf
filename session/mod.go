// Package session manages the session key of a viewer. A session key is
// authorized once by a signature of the wallet, and then signs every key
// request until it expires. It is only kept in memory.
//
// The lifecycle of the key is Absent, Pending while the wallet is asked to
// sign, Active once signed, and Expired when its lifetime elapsed. A new
// signature is asked only when no active key is bound to the viewer.
//
// Documentation Last Review: 30.09.2026
//
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/seal"
	"go.dedis.ch/vault/wallet"
	"golang.org/x/xerrors"
)

// DefaultTTL is the lifetime in minutes of a session key.
const DefaultTTL = 10

// ErrDeclined is returned when the wallet did not sign the session key.
var ErrDeclined = xerrors.New("session key signature declined")

// State is the state of the session key of a viewer.
type State int

const (
	// StateAbsent means no key exists for the viewer.
	StateAbsent State = iota
	// StatePending means the wallet is being asked to sign a new key.
	StatePending
	// StateActive means a signed key can be used.
	StateActive
	// StateExpired means the key of the viewer can no longer be used.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Manager hands out the session key of the wallet.
type Manager struct {
	sync.Mutex

	// acquiring serializes the acquisitions so that concurrent callers share
	// one signature prompt.
	acquiring sync.Mutex

	wallet  wallet.Wallet
	pkg     ledger.ID
	ttl     uint16
	now     func() time.Time
	current *seal.SessionKey
	pending bool
	logger  zerolog.Logger
}

// Option is the type of option to configure a manager.
type Option func(*Manager)

// WithTTL sets the lifetime in minutes of the new keys.
func WithTTL(ttl uint16) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock sets the source of time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a manager of the session keys of the wallet for the
// package.
func NewManager(w wallet.Wallet, pkg ledger.ID, opts ...Option) *Manager {
	m := &Manager{
		wallet: w,
		pkg:    pkg,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: vault.Logger.With().Str("role", "session").Logger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the state of the session key of the viewer.
func (m *Manager) State(viewer ledger.ID) State {
	m.Lock()
	defer m.Unlock()

	switch {
	case m.pending && m.wallet.Address() == viewer:
		return StatePending
	case m.current == nil || m.current.Address() != viewer:
		return StateAbsent
	case m.current.IsExpired(m.now()):
		return StateExpired
	default:
		return StateActive
	}
}

// Acquire returns a usable session key of the viewer. The active key is
// reused when it is bound to the viewer and not expired, otherwise a new key
// is signed by the wallet. A failed signature leaves the current key as is.
func (m *Manager) Acquire(ctx context.Context, viewer ledger.ID) (*seal.SessionKey, error) {
	if m.wallet.Address() != viewer {
		return nil, xerrors.Errorf("wallet is connected to %v and not to %v",
			m.wallet.Address(), viewer)
	}

	m.acquiring.Lock()
	defer m.acquiring.Unlock()

	sk := m.usable(viewer)
	if sk != nil {
		return sk, nil
	}

	m.setPending(true)
	defer m.setPending(false)

	sk, err := seal.NewSessionKey(viewer, m.pkg, m.ttl, m.now())
	if err != nil {
		return nil, xerrors.Errorf("failed to create session key: %v", err)
	}

	sig, err := m.wallet.SignPersonalMessage(ctx, sk.PersonalMessage())
	if xerrors.Is(err, wallet.ErrDeclined) {
		return nil, xerrors.Errorf("%v: %w", err, ErrDeclined)
	}

	if err != nil {
		return nil, xerrors.Errorf("failed to sign session key: %v", err)
	}

	err = sk.SetPersonalMessageSignature(sig)
	if err != nil {
		return nil, xerrors.Errorf("failed to activate session key: %v", err)
	}

	m.Lock()
	m.current = sk
	m.Unlock()

	m.logger.Info().
		Stringer("address", viewer).
		Uint16("ttl", m.ttl).
		Msg("session key activated")

	return sk, nil
}

// Reset forgets the current session key.
func (m *Manager) Reset() {
	m.Lock()
	m.current = nil
	m.Unlock()
}

func (m *Manager) usable(viewer ledger.ID) *seal.SessionKey {
	m.Lock()
	defer m.Unlock()

	sk := m.current
	if sk == nil || sk.Address() != viewer || sk.PackageID() != m.pkg || sk.IsExpired(m.now()) {
		return nil
	}

	return sk
}

func (m *Manager) setPending(pending bool) {
	m.Lock()
	m.pending = pending
	m.Unlock()
}
