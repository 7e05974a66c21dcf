package memchain

import (
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
)

// allowlistModule grants access to the content of an allowlist to its
// members.
//
// - implements memchain.Module
type allowlistModule struct {
	pkg ledger.ID
}

// Call implements memchain.Module.
func (m allowlistModule) Call(ctx *Context, function string, args []ledger.Argument) (ledger.ID, error) {
	switch function {
	case "create_allowlist_entry":
		return m.create(ctx, args)
	case "add":
		return ledger.ID{}, m.add(ctx, args)
	case "remove":
		return ledger.ID{}, m.remove(ctx, args)
	case "publish":
		return ledger.ID{}, m.publish(ctx, args)
	case policy.FnApprove:
		return ledger.ID{}, m.approve(ctx, args)
	default:
		return ledger.ID{}, Abort("unknown function '%s'", function)
	}
}

// create expects (name) and shares a new empty allowlist. The capability is
// sent to the sender.
func (m allowlistModule) create(ctx *Context, args []ledger.Argument) (ledger.ID, error) {
	err := expectArgs(args, 1)
	if err != nil {
		return ledger.ID{}, err
	}

	fields := policy.AllowlistFields{
		Name: string(args[0].Pure),
		List: []ledger.ID{},
	}

	module := policy.KindAllowlist.Module()

	id, err := ctx.Create(module, policy.NameAllowlist, nil, fields)
	if err != nil {
		return ledger.ID{}, err
	}

	sender := ctx.Sender()

	_, err = ctx.Create(module, policy.NameCap, &sender, policy.CapFields{AllowlistID: id})
	if err != nil {
		return ledger.ID{}, err
	}

	return id, nil
}

// add expects (allowlist, cap, account).
func (m allowlistModule) add(ctx *Context, args []ledger.Argument) error {
	obj, fields, err := m.administer(ctx, args, 3)
	if err != nil {
		return err
	}

	account, err := args[2].AsAddress()
	if err != nil {
		return Abort("invalid account: %v", err)
	}

	for _, member := range fields.List {
		if member == account {
			return Abort("duplicate member %v", account)
		}
	}

	fields.List = append(fields.List, account)

	return ctx.Save(obj, fields)
}

// remove expects (allowlist, cap, account). Removing an unknown account is a
// no-op.
func (m allowlistModule) remove(ctx *Context, args []ledger.Argument) error {
	obj, fields, err := m.administer(ctx, args, 3)
	if err != nil {
		return err
	}

	account, err := args[2].AsAddress()
	if err != nil {
		return Abort("invalid account: %v", err)
	}

	list := make([]ledger.ID, 0, len(fields.List))
	for _, member := range fields.List {
		if member != account {
			list = append(list, member)
		}
	}

	fields.List = list

	return ctx.Save(obj, fields)
}

// publish expects (allowlist, cap, blob id) and attaches the blob to the
// allowlist.
func (m allowlistModule) publish(ctx *Context, args []ledger.Argument) error {
	obj, _, err := m.administer(ctx, args, 3)
	if err != nil {
		return err
	}

	blobID := string(args[2].Pure)
	if blobID == "" {
		return Abort("empty blob id")
	}

	return ctx.AddField(obj.ID, blobID)
}

// approve expects (id, allowlist). The identifier must be prefixed by the
// allowlist identifier and the sender must be a member.
func (m allowlistModule) approve(ctx *Context, args []ledger.Argument) error {
	err := expectArgs(args, 2)
	if err != nil {
		return err
	}

	obj, fields, err := m.load(ctx, args[1])
	if err != nil {
		return err
	}

	if !policy.HasPrefix(obj.ID, args[0].Pure) {
		return Abort("identifier is not in the namespace of %v", obj.ID)
	}

	for _, member := range fields.List {
		if member == ctx.Sender() {
			return nil
		}
	}

	return Abort("%v is not a member of the allowlist", ctx.Sender())
}

// administer expects the allowlist and its capability as the first two
// arguments.
func (m allowlistModule) administer(ctx *Context, args []ledger.Argument,
	n int) (ledger.Object, policy.AllowlistFields, error) {

	err := expectArgs(args, n)
	if err != nil {
		return ledger.Object{}, policy.AllowlistFields{}, err
	}

	obj, fields, err := m.load(ctx, args[0])
	if err != nil {
		return obj, fields, err
	}

	err = checkCap(ctx, m.pkg, policy.KindAllowlist, args[1], obj.ID)
	if err != nil {
		return obj, fields, err
	}

	return obj, fields, nil
}

func (m allowlistModule) load(ctx *Context, arg ledger.Argument) (ledger.Object, policy.AllowlistFields, error) {
	var fields policy.AllowlistFields

	obj, err := loadTyped(ctx, arg, ledger.StructType(m.pkg, policy.KindAllowlist.Module(),
		policy.NameAllowlist), &fields)

	return obj, fields, err
}
