package memchain

import (
	"encoding/json"

	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
)

func expectArgs(args []ledger.Argument, n int) error {
	if len(args) != n {
		return Abort("expected %d arguments but got %d", n, len(args))
	}

	return nil
}

// loadTyped resolves the object argument and decodes its fields after
// checking its type.
func loadTyped(ctx *Context, arg ledger.Argument, structType string, fields interface{}) (ledger.Object, error) {
	obj, err := ctx.Object(arg)
	if err != nil {
		return ledger.Object{}, err
	}

	if obj.Type != structType {
		return ledger.Object{}, Abort("object %v of type '%s' is not a '%s'", obj.ID, obj.Type, structType)
	}

	err = json.Unmarshal(obj.Fields, fields)
	if err != nil {
		return ledger.Object{}, Abort("malformed object %v: %v", obj.ID, err)
	}

	return obj, nil
}

// checkCap verifies that the argument is a capability of the module over the
// policy.
func checkCap(ctx *Context, pkg ledger.ID, kind policy.Kind, arg ledger.Argument, policyID ledger.ID) error {
	var fields policy.CapFields

	_, err := loadTyped(ctx, arg, ledger.StructType(pkg, kind.Module(), policy.NameCap), &fields)
	if err != nil {
		return err
	}

	target := fields.AllowlistID
	if kind == policy.KindSubscription {
		target = fields.ServiceID
	}

	if target != policyID {
		return Abort("invalid capability")
	}

	return nil
}
