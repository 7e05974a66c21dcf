package policy

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/ledger"
)

var testPkg = ledger.MustParseID("0xbeef")

func TestFromObject_Allowlist(t *testing.T) {
	alice := ledger.MustParseID("0xa")

	obj := makeObject(t, ledger.MustParseID("0x1"), NameAllowlist, KindAllowlist,
		AllowlistFields{Name: "friends", List: []ledger.ID{alice}})

	p, err := FromObject(obj)
	require.NoError(t, err)
	require.Equal(t, KindAllowlist, p.Kind)
	require.Equal(t, "friends", p.Name)
	require.True(t, p.HasMember(alice))
	require.False(t, p.HasMember(ledger.MustParseID("0xa0")))
}

func TestFromObject_Service(t *testing.T) {
	owner := ledger.MustParseID("0xc")

	obj := makeObject(t, ledger.MustParseID("0x2"), NameService, KindSubscription,
		ServiceFields{Name: "gold", Fee: 10, TTL: 60000, Owner: owner})

	p, err := FromObject(obj)
	require.NoError(t, err)
	require.Equal(t, KindSubscription, p.Kind)
	require.Equal(t, uint64(10), p.Fee)
	require.Equal(t, uint64(60000), p.TTL)
	require.Equal(t, owner, p.Owner)
}

func TestFromObject_Unknown(t *testing.T) {
	obj := ledger.Object{
		ID:   ledger.MustParseID("0x3"),
		Type: ledger.StructType(testPkg, "coin", "Coin"),
	}

	_, err := FromObject(obj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is not a policy")

	obj.Type = ledger.StructType(testPkg, "allowlist", NameAllowlist)
	obj.Fields = json.RawMessage(`[]`)
	_, err = FromObject(obj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode allowlist: ")
}

func TestSubscriptionFromObject(t *testing.T) {
	service := ledger.MustParseID("0x2")

	obj := makeObject(t, ledger.MustParseID("0x4"), NameSubscription, KindSubscription,
		SubscriptionFields{ServiceID: service, CreatedAt: 1000})
	obj.Owner = ledger.MustParseID("0xd")

	sub, err := SubscriptionFromObject(obj)
	require.NoError(t, err)
	require.Equal(t, service, sub.ServiceID)
	require.Equal(t, obj.Owner, sub.Owner)

	// The subscription expires once the time-to-live has elapsed.
	require.True(t, sub.ValidAt(60000, 1000+59999))
	require.False(t, sub.ValidAt(60000, 1000+60000))
	require.False(t, sub.ValidAt(60000, 1000+60001))

	// A time-to-live close to the maximum never wraps around.
	require.True(t, sub.ValidAt(math.MaxUint64, 1000+60001))
	require.True(t, sub.ValidAt(math.MaxUint64-500, math.MaxUint64))
	require.False(t, sub.ValidAt(math.MaxUint64-1000, math.MaxUint64))
	require.True(t, sub.ValidAt(60000, 999))

	obj.Type = ledger.StructType(testPkg, "subscription", NameService)
	_, err = SubscriptionFromObject(obj)
	require.Error(t, err)
}

func TestCapFromObject(t *testing.T) {
	allowlist := ledger.MustParseID("0x1")

	obj := makeObject(t, ledger.MustParseID("0x5"), NameCap, KindAllowlist,
		CapFields{AllowlistID: allowlist})

	c, err := CapFromObject(obj)
	require.NoError(t, err)
	require.Equal(t, KindAllowlist, c.Kind)
	require.Equal(t, allowlist, c.PolicyID)

	service := ledger.MustParseID("0x2")

	obj = makeObject(t, ledger.MustParseID("0x6"), NameCap, KindSubscription,
		CapFields{ServiceID: service})

	c, err = CapFromObject(obj)
	require.NoError(t, err)
	require.Equal(t, KindSubscription, c.Kind)
	require.Equal(t, service, c.PolicyID)

	obj.Type = "0x1::other::Cap"
	_, err = CapFromObject(obj)
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("allowlist")
	require.NoError(t, err)
	require.Equal(t, KindAllowlist, kind)
	require.Equal(t, "allowlist", kind.Module())

	_, err = ParseKind("unknown")
	require.EqualError(t, err, "unknown policy module 'unknown'")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeObject(t *testing.T, id ledger.ID, name string, kind Kind, fields interface{}) ledger.Object {
	data, err := json.Marshal(fields)
	require.NoError(t, err)

	return ledger.Object{
		ID:     id,
		Type:   ledger.StructType(testPkg, kind.Module(), name),
		Fields: data,
	}
}
