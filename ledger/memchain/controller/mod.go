// Package controller implements the initializer of the local ledger of a
// development node. The ledger is served under /ledger and the commands give
// access to the faucet.
package controller

import (
	"path/filepath"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/ledger/ledgerhttp"
	"go.dedis.ch/vault/ledger/memchain"
	"go.dedis.ch/vault/proxy"
	"golang.org/x/xerrors"
)

const (
	// Prefix is the path under which the ledger is served.
	Prefix = "/ledger"

	dbName = "ledger.db"

	// DefaultAmount is the amount credited by the faucet.
	DefaultAmount = 1_000_000_000
)

var newDB = kv.New

// NewController returns the initializer of the local ledger.
func NewController() node.Initializer {
	return &controller{}
}

// controller creates the chain on the database of the node folder.
//
// - implements node.Initializer
type controller struct {
	db kv.DB
}

// SetCommands implements node.Initializer.
func (c *controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("ledger")
	cmd.SetDescription("manage the local ledger")

	sub := cmd.SetSubCommand("fund")
	sub.SetDescription("credit an address from the faucet")
	sub.SetFlags(
		cli.StringFlag{Name: "address", Usage: "address to credit", Required: true},
		cli.IntFlag{Name: "amount", Usage: "amount to credit", Value: DefaultAmount},
	)
	sub.SetAction(builder.MakeAction(fundAction{}))

	sub = cmd.SetSubCommand("balance")
	sub.SetDescription("print the balance of an address")
	sub.SetFlags(cli.StringFlag{Name: "address", Usage: "address to read", Required: true})
	sub.SetAction(builder.MakeAction(balanceAction{}))

	sub = cmd.SetSubCommand("package")
	sub.SetDescription("print the package of the policy modules")
	sub.SetAction(builder.MakeAction(packageAction{}))
}

// OnStart implements node.Initializer. It opens the database, injects the
// chain and mounts its handler on the proxy.
func (c *controller) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := node.Resolve[*config.Devnet](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve config: %v", err)
	}

	srv, err := node.Resolve[proxy.Proxy](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	db, err := newDB(filepath.Join(cfg.Data, dbName))
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	c.db = db

	chain := memchain.New(db)

	inj.Inject(chain)
	srv.Mount(Prefix, ledgerhttp.NewHandler(chain))

	return nil
}

// OnStop implements node.Initializer. It closes the database.
func (c *controller) OnStop(node.Injector) error {
	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close database: %v", err)
	}

	c.db = nil

	return nil
}
