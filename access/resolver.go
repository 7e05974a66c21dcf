package access

import (
	"context"

	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"golang.org/x/xerrors"
)

// Resolver reads the state needed by a decision from the ledger.
type Resolver struct {
	ledger ledger.Reader
	pkg    ledger.ID
}

// NewResolver returns a resolver for the package of the policy modules.
func NewResolver(l ledger.Reader, pkg ledger.ID) *Resolver {
	return &Resolver{
		ledger: l,
		pkg:    pkg,
	}
}

// Package returns the package of the policy modules.
func (r *Resolver) Package() ledger.ID {
	return r.pkg
}

// Policy reads the policy object.
func (r *Resolver) Policy(ctx context.Context, id ledger.ID) (policy.Policy, error) {
	obj, err := r.ledger.GetObject(ctx, id)
	if err != nil {
		return policy.Policy{}, xerrors.Errorf("failed to read policy: %w", err)
	}

	p, err := policy.FromObject(obj)
	if err != nil {
		return policy.Policy{}, xerrors.Errorf("invalid policy: %v", err)
	}

	return p, nil
}

// Subscriptions returns the subscriptions owned by the viewer. Objects that
// cannot be decoded are skipped.
func (r *Resolver) Subscriptions(ctx context.Context, viewer ledger.ID) ([]policy.Subscription, error) {
	objs, err := r.ledger.GetOwnedObjects(ctx, viewer,
		ledger.StructType(r.pkg, policy.KindSubscription.Module(), policy.NameSubscription))
	if err != nil {
		return nil, xerrors.Errorf("failed to read subscriptions: %v", err)
	}

	subs := make([]policy.Subscription, 0, len(objs))

	for _, obj := range objs {
		sub, err := policy.SubscriptionFromObject(obj)
		if err != nil {
			continue
		}

		subs = append(subs, sub)
	}

	return subs, nil
}

// Resolve reads the policy and, for a service, the subscriptions of the
// viewer and the clock, then decides.
func (r *Resolver) Resolve(ctx context.Context, viewer, policyID ledger.ID) (policy.Policy, Decision, error) {
	p, err := r.Policy(ctx, policyID)
	if err != nil {
		return p, Decision{}, err
	}

	d, err := r.Decide(ctx, viewer, p)
	if err != nil {
		return p, Decision{}, err
	}

	return p, d, nil
}

// Decide decides for an already read policy.
func (r *Resolver) Decide(ctx context.Context, viewer ledger.ID, p policy.Policy) (Decision, error) {
	if p.Kind != policy.KindSubscription {
		return Resolve(viewer, p, nil, 0), nil
	}

	subs, err := r.Subscriptions(ctx, viewer)
	if err != nil {
		return Decision{}, err
	}

	now, err := r.ledger.ReadClock(ctx)
	if err != nil {
		return Decision{}, xerrors.Errorf("failed to read clock: %v", err)
	}

	return Resolve(viewer, p, subs, now), nil
}

// FindCapability returns the capability the owner holds over the policy, if
// any.
func (r *Resolver) FindCapability(ctx context.Context, owner ledger.ID,
	p policy.Policy) (policy.Cap, bool, error) {

	objs, err := r.ledger.GetOwnedObjects(ctx, owner,
		ledger.StructType(r.pkg, p.Kind.Module(), policy.NameCap))
	if err != nil {
		return policy.Cap{}, false, xerrors.Errorf("failed to read capabilities: %v", err)
	}

	for _, obj := range objs {
		c, err := policy.CapFromObject(obj)
		if err == nil && c.PolicyID == p.ID {
			return c, true, nil
		}
	}

	return policy.Cap{}, false, nil
}

// Owned is a policy and the capability its administrator holds over it.
type Owned struct {
	Policy     policy.Policy
	Capability policy.Cap
}

// OwnedPolicies returns the policies of the kind the owner administrates, in
// the order of the capabilities. Capabilities that cannot be decoded are
// skipped.
func (r *Resolver) OwnedPolicies(ctx context.Context, owner ledger.ID, kind policy.Kind) ([]Owned, error) {
	objs, err := r.ledger.GetOwnedObjects(ctx, owner,
		ledger.StructType(r.pkg, kind.Module(), policy.NameCap))
	if err != nil {
		return nil, xerrors.Errorf("failed to read capabilities: %v", err)
	}

	owned := make([]Owned, 0, len(objs))

	for _, obj := range objs {
		c, err := policy.CapFromObject(obj)
		if err != nil || c.Kind != kind {
			continue
		}

		p, err := r.Policy(ctx, c.PolicyID)
		if err != nil {
			return nil, xerrors.Errorf("capability %v: %v", c.ID, err)
		}

		owned = append(owned, Owned{Policy: p, Capability: c})
	}

	return owned, nil
}

// Subscribed is an active subscription and the service it gives access to.
type Subscribed struct {
	Subscription policy.Subscription
	Service      policy.Policy
}

// ActiveSubscriptions returns the subscriptions of the viewer that have not
// expired at the time of the ledger clock.
func (r *Resolver) ActiveSubscriptions(ctx context.Context, viewer ledger.ID) ([]Subscribed, error) {
	subs, err := r.Subscriptions(ctx, viewer)
	if err != nil {
		return nil, err
	}

	if len(subs) == 0 {
		return nil, nil
	}

	now, err := r.ledger.ReadClock(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to read clock: %v", err)
	}

	var active []Subscribed

	for _, sub := range subs {
		service, err := r.Policy(ctx, sub.ServiceID)
		if err != nil {
			return nil, xerrors.Errorf("subscription %v: %v", sub.ID, err)
		}

		if service.Kind == policy.KindSubscription && sub.ValidAt(service.TTL, now) {
			active = append(active, Subscribed{Subscription: sub, Service: service})
		}
	}

	return active, nil
}

// Approver returns the constructor of the approval calls that matches the
// policy and the decision.
func (r *Resolver) Approver(p policy.Policy, d Decision) (policy.MoveCallConstructor, error) {
	switch p.Kind {
	case policy.KindAllowlist:
		return policy.AllowlistApprover(r.pkg, p.ID), nil
	case policy.KindSubscription:
		if d.Proof == nil {
			return nil, xerrors.New("no subscription to prove the access")
		}

		return policy.SubscriptionApprover(r.pkg, p.ID, d.Proof.ID), nil
	default:
		return nil, xerrors.Errorf("unknown policy kind '%s'", p.Kind)
	}
}
