package main

import (
	"context"
	"fmt"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/client"
	"go.dedis.ch/vault/policy"
	"golang.org/x/xerrors"
)

const (
	idFlag      = "id"
	capFlag     = "cap"
	addressFlag = "address"
	nameFlag    = "name"
)

// allowlistCommands defines the commands that administrate allowlists.
//
// - implements cli.Initializer
type allowlistCommands struct {
	*action
}

// SetCommands implements cli.Initializer.
func (c allowlistCommands) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("allowlist")
	cmd.SetDescription("manage the allowlists")

	sub := cmd.SetSubCommand("create")
	sub.SetDescription("create an empty allowlist")
	sub.SetFlags(cli.StringFlag{Name: nameFlag, Usage: "name of the allowlist", Required: true})
	sub.SetAction(c.createAction)

	member := []cli.Flag{
		cli.StringFlag{Name: idFlag, Usage: "identifier of the allowlist", Required: true},
		cli.StringFlag{Name: addressFlag, Usage: "address of the member", Required: true},
		cli.StringFlag{Name: capFlag, Usage: "capability over the allowlist, found in the wallet when empty"},
	}

	sub = cmd.SetSubCommand("add")
	sub.SetDescription("add a member to the allowlist")
	sub.SetFlags(member...)
	sub.SetAction(c.memberAction(true))

	sub = cmd.SetSubCommand("remove")
	sub.SetDescription("remove a member from the allowlist")
	sub.SetFlags(member...)
	sub.SetAction(c.memberAction(false))

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("print the allowlist as seen by the wallet")
	sub.SetFlags(cli.StringFlag{Name: idFlag, Usage: "identifier of the allowlist", Required: true})
	sub.SetAction(c.showAction)

	sub = cmd.SetSubCommand("list")
	sub.SetDescription("print the allowlists the wallet administrates")
	sub.SetAction(c.listAction)
}

func (c allowlistCommands) createAction(flags cli.Flags) error {
	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	created, err := v.Registrar.CreateAllowlist(ctx, flags.String(nameFlag))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "allowlist: %v\ncapability: %v\n", created.PolicyID, created.CapID)

	return nil
}

func (c allowlistCommands) memberAction(add bool) cli.Action {
	return func(flags cli.Flags) error {
		ctx := context.Background()

		v, err := c.vault(ctx, flags)
		if err != nil {
			return err
		}

		defer v.Close()

		p, err := c.typedPolicy(ctx, v, flags.String(idFlag), policy.KindAllowlist)
		if err != nil {
			return err
		}

		capID, err := c.capability(ctx, v, p, flags.String(capFlag))
		if err != nil {
			return err
		}

		address := flags.String(addressFlag)

		if add {
			err = v.Registrar.AddMember(ctx, p.ID, capID, address)
		} else {
			err = v.Registrar.RemoveMember(ctx, p.ID, capID, address)
		}

		if err != nil {
			return err
		}

		verb := "added to"
		if !add {
			verb = "removed from"
		}

		fmt.Fprintf(c.printer, "%s %s %s\n", address, verb, p.Name)

		return nil
	}
}

func (c allowlistCommands) showAction(flags cli.Flags) error {
	return c.show(flags, policy.KindAllowlist)
}

func (c allowlistCommands) listAction(flags cli.Flags) error {
	return c.list(flags, policy.KindAllowlist)
}

// serviceCommands defines the commands of the subscription services.
//
// - implements cli.Initializer
type serviceCommands struct {
	*action
}

// SetCommands implements cli.Initializer.
func (c serviceCommands) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("service")
	cmd.SetDescription("manage the subscription services")

	sub := cmd.SetSubCommand("create")
	sub.SetDescription("create a subscription service")
	sub.SetFlags(
		cli.StringFlag{Name: nameFlag, Usage: "name of the service", Required: true},
		cli.IntFlag{Name: "fee", Usage: "price of a subscription", Required: true},
		cli.DurationFlag{Name: "ttl", Usage: "duration of a subscription", Required: true},
	)
	sub.SetAction(c.createAction)

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("print the service as seen by the wallet")
	sub.SetFlags(cli.StringFlag{Name: idFlag, Usage: "identifier of the service", Required: true})
	sub.SetAction(c.showAction)

	sub = cmd.SetSubCommand("list")
	sub.SetDescription("print the services the wallet administrates")
	sub.SetAction(c.listAction)

	cmd = builder.SetCommand("subscribe")
	cmd.SetDescription("pay the fee of a service to read its content")
	cmd.SetFlags(cli.StringFlag{Name: "service", Usage: "identifier of the service", Required: true})
	cmd.SetAction(c.subscribeAction)

	cmd = builder.SetCommand("subscriptions")
	cmd.SetDescription("print the active subscriptions of the wallet")
	cmd.SetAction(c.subscriptionsAction)
}

func (c serviceCommands) createAction(flags cli.Flags) error {
	fee := flags.Int("fee")
	if fee <= 0 {
		return xerrors.Errorf("invalid fee %d", fee)
	}

	ttl := flags.Duration("ttl").Milliseconds()
	if ttl <= 0 {
		return xerrors.Errorf("invalid ttl %v", flags.Duration("ttl"))
	}

	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	created, err := v.Registrar.CreateService(ctx, uint64(fee), uint64(ttl), flags.String(nameFlag))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "service: %v\ncapability: %v\n", created.PolicyID, created.CapID)

	return nil
}

func (c serviceCommands) showAction(flags cli.Flags) error {
	return c.show(flags, policy.KindSubscription)
}

func (c serviceCommands) listAction(flags cli.Flags) error {
	return c.list(flags, policy.KindSubscription)
}

func (c serviceCommands) subscriptionsAction(flags cli.Flags) error {
	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	active, err := v.Feeds.Resolver().ActiveSubscriptions(ctx, v.Address())
	if err != nil {
		return xerrors.Errorf("failed to read subscriptions: %v", err)
	}

	for _, s := range active {
		fmt.Fprintf(c.printer, "%v\t%s\tsubscription %v\tcreated %d\tttl %dms\n",
			s.Service.ID, s.Service.Name, s.Subscription.ID, s.Subscription.CreatedAt, s.Service.TTL)
	}

	return nil
}

func (c serviceCommands) subscribeAction(flags cli.Flags) error {
	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	p, err := c.typedPolicy(ctx, v, flags.String("service"), policy.KindSubscription)
	if err != nil {
		return err
	}

	id, err := v.Registrar.Subscribe(ctx, p.ID, p.Fee)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "subscription: %v\n", id)

	return nil
}

// show prints the feed of the policy for the wallet.
func (a *action) show(flags cli.Flags, kind policy.Kind) error {
	ctx := context.Background()

	v, err := a.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	p, err := a.typedPolicy(ctx, v, flags.String(idFlag), kind)
	if err != nil {
		return err
	}

	f, err := v.Feeds.Load(ctx, p.ID, v.Address())
	if err != nil {
		return xerrors.Errorf("failed to load feed: %v", err)
	}

	a.printFeed(f)

	return nil
}

// list prints the policies of the kind the wallet administrates.
func (a *action) list(flags cli.Flags, kind policy.Kind) error {
	ctx := context.Background()

	v, err := a.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	owned, err := v.Feeds.Resolver().OwnedPolicies(ctx, v.Address(), kind)
	if err != nil {
		return xerrors.Errorf("failed to read policies: %v", err)
	}

	for _, o := range owned {
		p := o.Policy

		switch kind {
		case policy.KindAllowlist:
			fmt.Fprintf(a.printer, "%v\t%s\t%d members\tcapability %v\n",
				p.ID, p.Name, len(p.Members), o.Capability.ID)
		default:
			fmt.Fprintf(a.printer, "%v\t%s\tfee %d\tttl %dms\tcapability %v\n",
				p.ID, p.Name, p.Fee, p.TTL, o.Capability.ID)
		}
	}

	return nil
}

// typedPolicy reads the policy and checks its kind.
func (a *action) typedPolicy(ctx context.Context, v *client.Vault, text string,
	kind policy.Kind) (policy.Policy, error) {

	p, err := a.policy(ctx, v, text)
	if err != nil {
		return p, err
	}

	if p.Kind != kind {
		return p, xerrors.Errorf("%v is not a %s", p.ID, kind.Module())
	}

	return p, nil
}
