package memchain

import (
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
)

// subscriptionModule sells a time-bounded access to the content of a service.
//
// - implements memchain.Module
type subscriptionModule struct {
	pkg ledger.ID
}

// Call implements memchain.Module.
func (m subscriptionModule) Call(ctx *Context, function string, args []ledger.Argument) (ledger.ID, error) {
	switch function {
	case "create_service_entry":
		return m.create(ctx, args)
	case "subscribe":
		return m.subscribe(ctx, args)
	case "transfer":
		return ledger.ID{}, m.transfer(ctx, args)
	case "publish":
		return ledger.ID{}, m.publish(ctx, args)
	case policy.FnApprove:
		return ledger.ID{}, m.approve(ctx, args)
	default:
		return ledger.ID{}, Abort("unknown function '%s'", function)
	}
}

// create expects (fee, ttl, name) and shares a new service owned by the
// sender. The capability is sent to the sender.
func (m subscriptionModule) create(ctx *Context, args []ledger.Argument) (ledger.ID, error) {
	err := expectArgs(args, 3)
	if err != nil {
		return ledger.ID{}, err
	}

	fee, err := args[0].AsU64()
	if err != nil {
		return ledger.ID{}, Abort("invalid fee: %v", err)
	}

	ttl, err := args[1].AsU64()
	if err != nil {
		return ledger.ID{}, Abort("invalid ttl: %v", err)
	}

	sender := ctx.Sender()

	fields := policy.ServiceFields{
		Name:  string(args[2].Pure),
		Fee:   fee,
		TTL:   ttl,
		Owner: sender,
	}

	module := policy.KindSubscription.Module()

	id, err := ctx.Create(module, policy.NameService, nil, fields)
	if err != nil {
		return ledger.ID{}, err
	}

	_, err = ctx.Create(module, policy.NameCap, &sender, policy.CapFields{ServiceID: id})
	if err != nil {
		return ledger.ID{}, err
	}

	return id, nil
}

// subscribe expects (coin, service, clock). The coin must be worth exactly the
// fee, which is paid to the owner of the service. The subscription is sent to
// the sender.
func (m subscriptionModule) subscribe(ctx *Context, args []ledger.Argument) (ledger.ID, error) {
	err := expectArgs(args, 3)
	if err != nil {
		return ledger.ID{}, err
	}

	service, fields, err := m.load(ctx, args[1])
	if err != nil {
		return ledger.ID{}, err
	}

	if args[0].Kind == ledger.ArgCoin && args[0].Amount != fields.Fee {
		return ledger.ID{}, Abort("incorrect fee: %d != %d", args[0].Amount, fields.Fee)
	}

	now, err := ctx.Clock(args[2])
	if err != nil {
		return ledger.ID{}, err
	}

	paid, err := ctx.Withdraw(args[0])
	if err != nil {
		return ledger.ID{}, err
	}

	err = ctx.Credit(fields.Owner, paid)
	if err != nil {
		return ledger.ID{}, err
	}

	sender := ctx.Sender()

	sub := policy.SubscriptionFields{
		ServiceID: service.ID,
		CreatedAt: now,
	}

	return ctx.Create(policy.KindSubscription.Module(), policy.NameSubscription, &sender, sub)
}

// transfer expects (subscription, recipient).
func (m subscriptionModule) transfer(ctx *Context, args []ledger.Argument) error {
	err := expectArgs(args, 2)
	if err != nil {
		return err
	}

	var fields policy.SubscriptionFields

	obj, err := loadTyped(ctx, args[0], ledger.StructType(m.pkg, policy.KindSubscription.Module(),
		policy.NameSubscription), &fields)
	if err != nil {
		return err
	}

	recipient, err := args[1].AsAddress()
	if err != nil {
		return Abort("invalid recipient: %v", err)
	}

	return ctx.Transfer(obj, recipient)
}

// publish expects (service, cap, blob id) and attaches the blob to the
// service.
func (m subscriptionModule) publish(ctx *Context, args []ledger.Argument) error {
	err := expectArgs(args, 3)
	if err != nil {
		return err
	}

	service, _, err := m.load(ctx, args[0])
	if err != nil {
		return err
	}

	err = checkCap(ctx, m.pkg, policy.KindSubscription, args[1], service.ID)
	if err != nil {
		return err
	}

	blobID := string(args[2].Pure)
	if blobID == "" {
		return Abort("empty blob id")
	}

	return ctx.AddField(service.ID, blobID)
}

// approve expects (id, subscription, service, clock). The subscription must
// be for the service and not expired, and the identifier must be prefixed by
// the service identifier.
func (m subscriptionModule) approve(ctx *Context, args []ledger.Argument) error {
	err := expectArgs(args, 4)
	if err != nil {
		return err
	}

	var sub policy.SubscriptionFields

	_, err = loadTyped(ctx, args[1], ledger.StructType(m.pkg, policy.KindSubscription.Module(),
		policy.NameSubscription), &sub)
	if err != nil {
		return err
	}

	service, fields, err := m.load(ctx, args[2])
	if err != nil {
		return err
	}

	now, err := ctx.Clock(args[3])
	if err != nil {
		return err
	}

	if sub.ServiceID != service.ID {
		return Abort("subscription is for another service")
	}

	if !policy.Active(sub.CreatedAt, fields.TTL, now) {
		return Abort("subscription expired")
	}

	if !policy.HasPrefix(service.ID, args[0].Pure) {
		return Abort("identifier is not in the namespace of %v", service.ID)
	}

	return nil
}

func (m subscriptionModule) load(ctx *Context, arg ledger.Argument) (ledger.Object, policy.ServiceFields, error) {
	var fields policy.ServiceFields

	obj, err := loadTyped(ctx, arg, ledger.StructType(m.pkg, policy.KindSubscription.Module(),
		policy.NameService), &fields)

	return obj, fields, err
}
