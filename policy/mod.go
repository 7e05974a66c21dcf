// Package policy defines the access policies that gate the content of the
// vault, and the content identifiers encrypted under them.
//
// A policy is either an allowlist of addresses or a subscription service that
// sells time-bounded access for a fee. A content identifier is the policy
// object identifier followed by a random nonce. The ledger only approves a
// key request for an identifier when the policy identifier is a prefix of it.
//
// Documentation Last Review: 19.10.2026
//
package policy

import (
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

// Kind is the type of access rule enforced by a policy.
type Kind string

const (
	// KindAllowlist grants access to a fixed set of addresses.
	KindAllowlist Kind = "allowlist"
	// KindSubscription grants access to the holders of a valid subscription.
	KindSubscription Kind = "subscription"
)

// Module returns the name of the ledger module implementing the policy.
func (k Kind) Module() string {
	return string(k)
}

// ParseKind returns the kind of the given module name.
func ParseKind(module string) (Kind, error) {
	switch Kind(module) {
	case KindAllowlist, KindSubscription:
		return Kind(module), nil
	default:
		return "", xerrors.Errorf("unknown policy module '%s'", module)
	}
}

// MoveCallConstructor appends to the transaction the call that asks the
// ledger to approve access to the content identifier. It is the seam that
// keeps the read path agnostic of the kind of policy.
type MoveCallConstructor func(tx *ledger.Transaction, id []byte)
