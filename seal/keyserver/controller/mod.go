// Package controller implements the initializer of the key servers of a
// development node. Each key server keeps its master key in the node folder
// and is served under /keyserver/<index>.
package controller

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/crypto/loader"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/proxy"
	"go.dedis.ch/vault/seal/keyserver"
	"golang.org/x/xerrors"
)

// Services is the list of key servers of the node.
type Services []*keyserver.Service

// Prefix returns the path under which the key server of the index is served.
func Prefix(index int) string {
	return fmt.Sprintf("/keyserver/%d", index)
}

// NewController returns the initializer of the key servers.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer that starts the key servers of the configuration.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer.
func (minimal) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("keyserver")
	cmd.SetDescription("inspect the key servers")

	sub := cmd.SetSubCommand("list")
	sub.SetDescription("print the identifier and the public key of each key server")
	sub.SetAction(builder.MakeAction(listAction{}))
}

// OnStart implements node.Initializer. It loads or creates the master keys,
// injects the services and mounts their handlers on the proxy.
func (minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := node.Resolve[*config.Devnet](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve config: %v", err)
	}

	srv, err := node.Resolve[proxy.Proxy](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	dryRunner, err := node.Resolve[ledger.DryRunner](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	services := make(Services, cfg.KeyServers)

	for i := range services {
		path := filepath.Join(cfg.Data, fmt.Sprintf("keyserver%d.key", i))

		master, err := keyserver.LoadMasterKey(loader.NewFileLoader(path))
		if err != nil {
			return xerrors.Errorf("key server %d: %v", i, err)
		}

		services[i] = keyserver.NewService(master, dryRunner)

		srv.Mount(Prefix(i), keyserver.NewHandler(services[i]))
	}

	inj.Inject(services)

	return nil
}

// OnStop implements node.Initializer.
func (minimal) OnStop(node.Injector) error {
	return nil
}

// listAction prints the key servers.
//
// - implements node.ActionTemplate
type listAction struct{}

// Execute implements node.ActionTemplate.
func (listAction) Execute(ctx node.Context) error {
	services, err := node.Resolve[Services](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve key servers: %v", err)
	}

	for i, s := range services {
		pubkey, err := s.PublicKey().MarshalBinary()
		if err != nil {
			return xerrors.Errorf("failed to marshal public key: %v", err)
		}

		fmt.Fprintf(ctx.Out, "%s\t%v\t%s\n", Prefix(i), s.ObjectID(), hex.EncodeToString(pubkey))
	}

	return nil
}
