package main

import (
	"context"
	"fmt"
	"os"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/crypto/ed25519"
	"go.dedis.ch/vault/crypto/loader"
	"golang.org/x/xerrors"
)

const keyFlag = "key"

// walletCommands defines the commands that manage the key of the wallet.
//
// - implements cli.Initializer
type walletCommands struct {
	*action
}

// SetCommands implements cli.Initializer.
func (c walletCommands) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("wallet")
	cmd.SetDescription("manage the wallet")

	sub := cmd.SetSubCommand("new")
	sub.SetDescription("create a new key and print its address")
	sub.SetFlags(
		cli.PathFlag{Name: keyFlag, Usage: "file of the new key", Required: true},
		cli.BoolFlag{Name: "force", Usage: "overwrite an existing key"},
	)
	sub.SetAction(c.newAction)

	sub = cmd.SetSubCommand("address")
	sub.SetDescription("print the address of a key")
	sub.SetFlags(cli.PathFlag{Name: keyFlag, Usage: "file of the key", Required: true})
	sub.SetAction(c.addressAction)

	sub = cmd.SetSubCommand("balance")
	sub.SetDescription("print the balance of the wallet of the configuration")
	sub.SetAction(c.balanceAction)
}

func (c walletCommands) newAction(flags cli.Flags) error {
	path := flags.Path(keyFlag)

	_, err := os.Stat(path)
	if err == nil {
		if !flags.Bool("force") {
			return xerrors.Errorf("key file '%s' already exists, use --force "+
				"to overwrite it", path)
		}

		err = os.Remove(path)
		if err != nil {
			return xerrors.Errorf("failed to remove key: %v", err)
		}
	}

	return c.printAddress(path)
}

func (c walletCommands) addressAction(flags cli.Flags) error {
	path := flags.Path(keyFlag)

	_, err := os.Stat(path)
	if err != nil {
		return xerrors.Errorf("failed to read key: %v", err)
	}

	return c.printAddress(path)
}

func (c walletCommands) printAddress(path string) error {
	data, err := loader.NewFileLoader(path).LoadOrCreate(ed25519.Generator{})
	if err != nil {
		return xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	fmt.Fprintln(c.printer, signer.Address())

	return nil
}

func (c walletCommands) balanceAction(flags cli.Flags) error {
	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	balance, err := v.Ledger.Balance(ctx, v.Address())
	if err != nil {
		return xerrors.Errorf("failed to read balance: %v", err)
	}

	fmt.Fprintf(c.printer, "%d\n", balance)

	return nil
}
