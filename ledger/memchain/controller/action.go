package controller

import (
	"fmt"

	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/ledger/memchain"
	"golang.org/x/xerrors"
)

// fundAction credits an address.
//
// - implements node.ActionTemplate
type fundAction struct{}

// Execute implements node.ActionTemplate.
func (fundAction) Execute(ctx node.Context) error {
	chain, err := node.Resolve[*memchain.Chain](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve chain: %v", err)
	}

	addr, err := ledger.ParseID(ctx.Flags.String("address"))
	if err != nil {
		return xerrors.Errorf("invalid address: %v", err)
	}

	amount := ctx.Flags.Int("amount")
	if amount <= 0 {
		return xerrors.Errorf("invalid amount %d", amount)
	}

	err = chain.Mint(addr, uint64(amount))
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "credited %d to %v\n", amount, addr)

	return nil
}

// balanceAction prints the balance of an address.
//
// - implements node.ActionTemplate
type balanceAction struct{}

// Execute implements node.ActionTemplate.
func (balanceAction) Execute(ctx node.Context) error {
	chain, err := node.Resolve[*memchain.Chain](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve chain: %v", err)
	}

	addr, err := ledger.ParseID(ctx.Flags.String("address"))
	if err != nil {
		return xerrors.Errorf("invalid address: %v", err)
	}

	balance, err := chain.Balance(addr)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "%d\n", balance)

	return nil
}

// packageAction prints the package of the modules.
//
// - implements node.ActionTemplate
type packageAction struct{}

// Execute implements node.ActionTemplate.
func (packageAction) Execute(ctx node.Context) error {
	chain, err := node.Resolve[*memchain.Chain](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve chain: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%v\n", chain.Package())

	return nil
}
