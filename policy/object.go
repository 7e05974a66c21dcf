package policy

import (
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

const (
	// NameAllowlist is the structure name of an allowlist policy.
	NameAllowlist = "Allowlist"
	// NameService is the structure name of a subscription service policy.
	NameService = "Service"
	// NameSubscription is the structure name of a subscription.
	NameSubscription = "Subscription"
	// NameCap is the structure name of a policy capability in both modules.
	NameCap = "Cap"
)

// AllowlistFields is the on-chain layout of an allowlist.
type AllowlistFields struct {
	Name string      `json:"name"`
	List []ledger.ID `json:"list"`
}

// ServiceFields is the on-chain layout of a subscription service.
type ServiceFields struct {
	Name  string    `json:"name"`
	Fee   uint64    `json:"fee"`
	TTL   uint64    `json:"ttl"`
	Owner ledger.ID `json:"owner"`
}

// SubscriptionFields is the on-chain layout of a subscription.
type SubscriptionFields struct {
	ServiceID ledger.ID `json:"service_id"`
	CreatedAt uint64    `json:"created_at"`
}

// CapFields is the on-chain layout of a capability. Only one of the two
// identifiers is set depending on the module that minted it.
type CapFields struct {
	AllowlistID ledger.ID `json:"allowlist_id"`
	ServiceID   ledger.ID `json:"service_id"`
}

// Policy is the decoded form of a policy object.
type Policy struct {
	Kind Kind
	ID   ledger.ID
	Name string

	// Members is the set of allowed addresses of an allowlist.
	Members []ledger.ID

	// Fee, TTL in milliseconds and Owner of a subscription service.
	Fee   uint64
	TTL   uint64
	Owner ledger.ID
}

// HasMember returns true if the address is part of the allowlist. It compares
// whole addresses.
func (p Policy) HasMember(addr ledger.ID) bool {
	for _, member := range p.Members {
		if member == addr {
			return true
		}
	}

	return false
}

// Subscription is the decoded form of a subscription object.
type Subscription struct {
	ID        ledger.ID
	Owner     ledger.ID
	ServiceID ledger.ID
	CreatedAt uint64
}

// ValidAt returns true if the subscription has not expired at the given
// ledger time for a service of the given time-to-live.
func (s Subscription) ValidAt(ttl, now uint64) bool {
	return Active(s.CreatedAt, ttl, now)
}

// Active returns true while less than ttl milliseconds elapsed since
// createdAt. Any time-to-live is accepted without overflow.
func Active(createdAt, ttl, now uint64) bool {
	return now < createdAt || now-createdAt < ttl
}

// Cap is the decoded form of a capability over a policy.
type Cap struct {
	ID       ledger.ID
	Kind     Kind
	Owner    ledger.ID
	PolicyID ledger.ID
}

// FromObject decodes a policy from its ledger object.
func FromObject(obj ledger.Object) (Policy, error) {
	switch {
	case ledger.HasTypeSuffix(obj.Type, KindAllowlist.Module()+"::"+NameAllowlist):
		var fields AllowlistFields

		err := obj.DecodeFields(&fields)
		if err != nil {
			return Policy{}, xerrors.Errorf("failed to decode allowlist: %v", err)
		}

		p := Policy{
			Kind:    KindAllowlist,
			ID:      obj.ID,
			Name:    fields.Name,
			Members: fields.List,
		}

		return p, nil
	case ledger.HasTypeSuffix(obj.Type, KindSubscription.Module()+"::"+NameService):
		var fields ServiceFields

		err := obj.DecodeFields(&fields)
		if err != nil {
			return Policy{}, xerrors.Errorf("failed to decode service: %v", err)
		}

		p := Policy{
			Kind:  KindSubscription,
			ID:    obj.ID,
			Name:  fields.Name,
			Fee:   fields.Fee,
			TTL:   fields.TTL,
			Owner: fields.Owner,
		}

		return p, nil
	default:
		return Policy{}, xerrors.Errorf("object %v of type '%s' is not a policy",
			obj.ID, obj.Type)
	}
}

// SubscriptionFromObject decodes a subscription from its ledger object.
func SubscriptionFromObject(obj ledger.Object) (Subscription, error) {
	if !ledger.HasTypeSuffix(obj.Type, KindSubscription.Module()+"::"+NameSubscription) {
		return Subscription{}, xerrors.Errorf("object %v of type '%s' is not a subscription",
			obj.ID, obj.Type)
	}

	var fields SubscriptionFields

	err := obj.DecodeFields(&fields)
	if err != nil {
		return Subscription{}, xerrors.Errorf("failed to decode subscription: %v", err)
	}

	sub := Subscription{
		ID:        obj.ID,
		Owner:     obj.Owner,
		ServiceID: fields.ServiceID,
		CreatedAt: fields.CreatedAt,
	}

	return sub, nil
}

// CapFromObject decodes a capability from its ledger object.
func CapFromObject(obj ledger.Object) (Cap, error) {
	var kind Kind

	switch {
	case ledger.HasTypeSuffix(obj.Type, KindAllowlist.Module()+"::"+NameCap):
		kind = KindAllowlist
	case ledger.HasTypeSuffix(obj.Type, KindSubscription.Module()+"::"+NameCap):
		kind = KindSubscription
	default:
		return Cap{}, xerrors.Errorf("object %v of type '%s' is not a capability",
			obj.ID, obj.Type)
	}

	var fields CapFields

	err := obj.DecodeFields(&fields)
	if err != nil {
		return Cap{}, xerrors.Errorf("failed to decode capability: %v", err)
	}

	c := Cap{
		ID:       obj.ID,
		Kind:     kind,
		Owner:    obj.Owner,
		PolicyID: fields.AllowlistID,
	}

	if kind == KindSubscription {
		c.PolicyID = fields.ServiceID
	}

	return c, nil
}
