// Package access decides whether a viewer can read the content of a policy.
//
// Every decision computed here is advisory. It only drives what the client
// shows and whether it bothers asking for keys: the key servers re-validate
// each request against the ledger and are the only enforcement point.
//
// Documentation Last Review: 19.10.2026
//
package access

import (
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
)

// Decision is the advisory outcome of an access check.
type Decision struct {
	Authorized bool

	// Proof is the subscription that grants the access to a subscription
	// service. It is nil for an allowlist.
	Proof *policy.Subscription
}

// Resolve decides if the viewer can read the content of the policy at the
// ledger time now. An allowlist requires the viewer to be a member. A
// service requires one of the subscriptions to be for the service and not
// expired; the first one that matches is the proof. Nothing is ever bought
// on behalf of the viewer.
func Resolve(viewer ledger.ID, p policy.Policy, subs []policy.Subscription, now uint64) Decision {
	switch p.Kind {
	case policy.KindAllowlist:
		return Decision{Authorized: p.HasMember(viewer)}
	case policy.KindSubscription:
		for _, sub := range subs {
			if sub.ServiceID == p.ID && sub.Owner == viewer && sub.ValidAt(p.TTL, now) {
				proof := sub
				return Decision{Authorized: true, Proof: &proof}
			}
		}
	}

	return Decision{}
}
