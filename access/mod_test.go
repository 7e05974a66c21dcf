package access

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
)

var testPkg = ledger.ID{0xc0}

func TestResolve_Allowlist(t *testing.T) {
	alice := ledger.ID{1}
	p := policy.Policy{Kind: policy.KindAllowlist, ID: ledger.ID{9}, Members: []ledger.ID{alice}}

	require.Equal(t, Decision{Authorized: true}, Resolve(alice, p, nil, 0))
	require.Equal(t, Decision{}, Resolve(ledger.ID{2}, p, nil, 0))

	// Members are compared as whole addresses.
	require.False(t, Resolve(ledger.ID{1, 1}, p, nil, 0).Authorized)
}

func TestResolve_Subscription(t *testing.T) {
	viewer := ledger.ID{1}
	p := policy.Policy{Kind: policy.KindSubscription, ID: ledger.ID{9}, TTL: 1000}

	subs := []policy.Subscription{
		{ID: ledger.ID{10}, Owner: viewer, ServiceID: ledger.ID{8}, CreatedAt: 5000},
		{ID: ledger.ID{11}, Owner: viewer, ServiceID: p.ID, CreatedAt: 1000},
		{ID: ledger.ID{12}, Owner: viewer, ServiceID: p.ID, CreatedAt: 4500},
		{ID: ledger.ID{13}, Owner: viewer, ServiceID: p.ID, CreatedAt: 4800},
	}

	d := Resolve(viewer, p, subs, 5000)
	require.True(t, d.Authorized)
	require.Equal(t, ledger.ID{12}, d.Proof.ID)

	// Expiry is strict.
	d = Resolve(viewer, p, subs[:3], 5500)
	require.False(t, d.Authorized)
	require.Nil(t, d.Proof)

	d = Resolve(viewer, p, subs[:3], 5499)
	require.True(t, d.Authorized)

	require.False(t, Resolve(ledger.ID{2}, p, subs, 5000).Authorized)
	require.False(t, Resolve(viewer, p, nil, 0).Authorized)

	require.False(t, Resolve(viewer, policy.Policy{Kind: "unknown"}, subs, 0).Authorized)
}

func TestResolver_Resolve(t *testing.T) {
	l := fake.NewLedger()
	viewer := ledger.ID{1}

	serviceID := ledger.ID{9}
	l.Objects[serviceID] = makeObject(t, serviceID, policy.KindSubscription, policy.NameService, ledger.ID{},
		policy.ServiceFields{Name: "news", Fee: 10, TTL: 1000, Owner: ledger.ID{3}})

	subType := ledger.StructType(testPkg, "subscription", "Subscription")
	l.Owned[viewer] = []ledger.Object{
		{ID: ledger.ID{20}, Type: subType, Owner: viewer, Fields: []byte("not json")},
		makeObject(t, ledger.ID{21}, policy.KindSubscription, policy.NameSubscription, viewer,
			policy.SubscriptionFields{ServiceID: serviceID, CreatedAt: 500}),
	}
	l.Clock = 1000

	r := NewResolver(l, testPkg)
	require.Equal(t, testPkg, r.Package())

	p, d, err := r.Resolve(context.Background(), viewer, serviceID)
	require.NoError(t, err)
	require.Equal(t, "news", p.Name)
	require.True(t, d.Authorized)
	require.Equal(t, ledger.ID{21}, d.Proof.ID)
	require.Equal(t, subType, l.Calls.Get(1, 2))

	fn, err := r.Approver(p, d)
	require.NoError(t, err)

	tx := ledger.NewTransaction()
	fn(tx, []byte{1})
	require.Equal(t, ledger.Target(testPkg, "subscription", policy.FnApprove), tx.Calls()[0].Target)
	require.Equal(t, ledger.ID{21}, *tx.Calls()[0].Arguments[1].Object)

	_, err = r.Approver(p, Decision{})
	require.EqualError(t, err, "no subscription to prove the access")

	_, err = r.Approver(policy.Policy{Kind: "x"}, d)
	require.EqualError(t, err, "unknown policy kind 'x'")

	l.Clock = 1500

	_, d, err = r.Resolve(context.Background(), viewer, serviceID)
	require.NoError(t, err)
	require.False(t, d.Authorized)

	_, _, err = r.Resolve(context.Background(), viewer, ledger.ID{7})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	l.ErrClock = fake.GetError()

	_, _, err = r.Resolve(context.Background(), viewer, serviceID)
	require.EqualError(t, err, fake.Err("failed to read clock"))
}

func TestResolver_Allowlist(t *testing.T) {
	l := fake.NewLedger()
	viewer := ledger.ID{1}
	listID := ledger.ID{9}

	l.Objects[listID] = makeObject(t, listID, policy.KindAllowlist, policy.NameAllowlist, ledger.ID{},
		policy.AllowlistFields{Name: "friends", List: []ledger.ID{viewer}})
	l.Objects[ledger.ID{8}] = ledger.Object{ID: ledger.ID{8}, Type: "0x2::coin::Coin"}

	r := NewResolver(l, testPkg)

	p, d, err := r.Resolve(context.Background(), viewer, listID)
	require.NoError(t, err)
	require.True(t, d.Authorized)
	require.Nil(t, d.Proof)

	// An allowlist needs neither subscriptions nor the clock.
	require.Equal(t, 1, l.Calls.Len())

	fn, err := r.Approver(p, d)
	require.NoError(t, err)

	tx := ledger.NewTransaction()
	fn(tx, []byte{1})
	require.Len(t, tx.Calls()[0].Arguments, 2)

	_, _, err = r.Resolve(context.Background(), viewer, ledger.ID{8})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid policy: ")
}

func TestResolver_FindCapability(t *testing.T) {
	l := fake.NewLedger()
	owner := ledger.ID{1}

	p := policy.Policy{Kind: policy.KindAllowlist, ID: ledger.ID{9}}

	l.Owned[owner] = []ledger.Object{
		makeObject(t, ledger.ID{30}, policy.KindAllowlist, policy.NameCap, owner,
			policy.CapFields{AllowlistID: ledger.ID{8}}),
		makeObject(t, ledger.ID{31}, policy.KindAllowlist, policy.NameCap, owner,
			policy.CapFields{AllowlistID: p.ID}),
	}

	r := NewResolver(l, testPkg)

	c, found, err := r.FindCapability(context.Background(), owner, p)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ledger.ID{31}, c.ID)

	_, found, err = r.FindCapability(context.Background(), ledger.ID{2}, p)
	require.NoError(t, err)
	require.False(t, found)

	l.Err = fake.GetError()

	_, _, err = r.FindCapability(context.Background(), owner, p)
	require.EqualError(t, err, fake.Err("failed to read capabilities"))

	_, err = r.Subscriptions(context.Background(), owner)
	require.EqualError(t, err, fake.Err("failed to read subscriptions"))
}

func TestResolver_OwnedPolicies(t *testing.T) {
	l := fake.NewLedger()
	owner := ledger.ID{1}

	l.Objects[ledger.ID{9}] = makeObject(t, ledger.ID{9}, policy.KindAllowlist, policy.NameAllowlist, ledger.ID{},
		policy.AllowlistFields{Name: "friends"})
	l.Objects[ledger.ID{8}] = makeObject(t, ledger.ID{8}, policy.KindSubscription, policy.NameService, ledger.ID{},
		policy.ServiceFields{Name: "news", Fee: 10, TTL: 1000, Owner: owner})

	l.Owned[owner] = []ledger.Object{
		makeObject(t, ledger.ID{30}, policy.KindAllowlist, policy.NameCap, owner,
			policy.CapFields{AllowlistID: ledger.ID{9}}),
		makeObject(t, ledger.ID{31}, policy.KindSubscription, policy.NameCap, owner,
			policy.CapFields{ServiceID: ledger.ID{8}}),
		{ID: ledger.ID{32}, Type: ledger.StructType(testPkg, "allowlist", policy.NameCap), Fields: []byte("not json")},
	}

	r := NewResolver(l, testPkg)

	owned, err := r.OwnedPolicies(context.Background(), owner, policy.KindAllowlist)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "friends", owned[0].Policy.Name)
	require.Equal(t, ledger.ID{30}, owned[0].Capability.ID)

	owned, err = r.OwnedPolicies(context.Background(), owner, policy.KindSubscription)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "news", owned[0].Policy.Name)
	require.Equal(t, ledger.ID{31}, owned[0].Capability.ID)

	owned, err = r.OwnedPolicies(context.Background(), ledger.ID{2}, policy.KindAllowlist)
	require.NoError(t, err)
	require.Empty(t, owned)

	// A capability over a policy that cannot be read.
	delete(l.Objects, ledger.ID{9})

	_, err = r.OwnedPolicies(context.Background(), owner, policy.KindAllowlist)
	require.Error(t, err)
	require.Contains(t, err.Error(), "capability "+ledger.ID{30}.String()+": failed to read policy: ")

	l.Err = fake.GetError()

	_, err = r.OwnedPolicies(context.Background(), owner, policy.KindAllowlist)
	require.EqualError(t, err, fake.Err("failed to read capabilities"))
}

func TestResolver_ActiveSubscriptions(t *testing.T) {
	l := fake.NewLedger()
	viewer := ledger.ID{1}

	l.Objects[ledger.ID{9}] = makeObject(t, ledger.ID{9}, policy.KindSubscription, policy.NameService, ledger.ID{},
		policy.ServiceFields{Name: "news", Fee: 10, TTL: 1000, Owner: ledger.ID{3}})
	l.Objects[ledger.ID{8}] = makeObject(t, ledger.ID{8}, policy.KindSubscription, policy.NameService, ledger.ID{},
		policy.ServiceFields{Name: "weekly", Fee: 5, TTL: 5000, Owner: ledger.ID{3}})

	l.Owned[viewer] = []ledger.Object{
		makeObject(t, ledger.ID{20}, policy.KindSubscription, policy.NameSubscription, viewer,
			policy.SubscriptionFields{ServiceID: ledger.ID{9}, CreatedAt: 500}),
		makeObject(t, ledger.ID{21}, policy.KindSubscription, policy.NameSubscription, viewer,
			policy.SubscriptionFields{ServiceID: ledger.ID{8}, CreatedAt: 500}),
	}
	l.Clock = 1000

	r := NewResolver(l, testPkg)

	active, err := r.ActiveSubscriptions(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, ledger.ID{20}, active[0].Subscription.ID)
	require.Equal(t, "news", active[0].Service.Name)
	require.Equal(t, "weekly", active[1].Service.Name)

	// The first subscription expires at 1500.
	l.Clock = 1500

	active, err = r.ActiveSubscriptions(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, ledger.ID{21}, active[0].Subscription.ID)

	active, err = r.ActiveSubscriptions(context.Background(), ledger.ID{2})
	require.NoError(t, err)
	require.Empty(t, active)

	l.ErrClock = fake.GetError()

	_, err = r.ActiveSubscriptions(context.Background(), viewer)
	require.EqualError(t, err, fake.Err("failed to read clock"))

	l.ErrClock = nil
	delete(l.Objects, ledger.ID{8})

	_, err = r.ActiveSubscriptions(context.Background(), viewer)
	require.Error(t, err)
	require.Contains(t, err.Error(), "subscription "+ledger.ID{21}.String()+": failed to read policy: ")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeObject(t *testing.T, id ledger.ID, kind policy.Kind, name string,
	owner ledger.ID, fields interface{}) ledger.Object {

	raw, err := json.Marshal(fields)
	require.NoError(t, err)

	return ledger.Object{
		ID:     id,
		Type:   ledger.StructType(testPkg, kind.Module(), name),
		Owner:  owner,
		Shared: owner.IsZero(),
		Fields: raw,
	}
}
