package main

import (
	"fmt"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/ledger/memchain"
	ledger "go.dedis.ch/vault/ledger/memchain/controller"
	"go.dedis.ch/vault/proxy"
	keyserver "go.dedis.ch/vault/seal/keyserver/controller"
	"go.dedis.ch/vault/walrus"
	blob "go.dedis.ch/vault/walrus/node/controller"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	devnetFlag = "devnet"
	outFlag    = "out"
	walletFlag = "wallet"

	backendName = "devnet"
)

func newSettings() node.Initializer {
	return settings{}
}

// settings loads the configuration of the network before the other
// components start, and exports the configuration of the clients.
//
// - implements node.Initializer
type settings struct{}

// SetCommands implements node.Initializer.
func (settings) SetCommands(builder node.Builder) {
	builder.SetStartFlags(cli.PathFlag{
		Name:  devnetFlag,
		Usage: "path to the configuration file of the network",
		Env:   "VAULT_DEVNET",
	})

	cmd := builder.SetCommand("devnet")
	cmd.SetDescription("inspect the development network")

	sub := cmd.SetSubCommand("config")
	sub.SetDescription("export the configuration of the client commands")
	sub.SetFlags(
		cli.PathFlag{Name: outFlag, Usage: "file to write, prints to the output when empty"},
		cli.PathFlag{Name: walletFlag, Usage: "key file of the wallet of the client"},
	)
	sub.SetAction(builder.MakeAction(configAction{}))
}

// OnStart implements node.Initializer. It injects the configuration of the
// network.
func (settings) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := config.LoadDevnet(flags.Path(devnetFlag), flags.Path(node.ConfigFlag))
	if err != nil {
		return xerrors.Errorf("failed to load configuration: %v", err)
	}

	inj.Inject(&cfg)

	return nil
}

// OnStop implements node.Initializer.
func (settings) OnStop(node.Injector) error {
	return nil
}

// configAction writes the configuration of a client of the network.
//
// - implements node.ActionTemplate
type configAction struct{}

// Execute implements node.ActionTemplate.
func (configAction) Execute(ctx node.Context) error {
	srv, err := node.Resolve[proxy.Proxy](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	chain, err := node.Resolve[*memchain.Chain](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve chain: %v", err)
	}

	services, err := node.Resolve[keyserver.Services](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve key servers: %v", err)
	}

	cfg := clientConfig("http://"+srv.GetAddr().String(), chain, len(services))
	cfg.Wallet = ctx.Flags.Path(walletFlag)

	out := ctx.Flags.Path(outFlag)
	if out == "" {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return xerrors.Errorf("failed to encode: %v", err)
		}

		_, err = ctx.Out.Write(data)
		return err
	}

	err = config.Save(out, cfg)
	if err != nil {
		return xerrors.Errorf("failed to save: %v", err)
	}

	fmt.Fprintf(ctx.Out, "configuration written to %s\n", out)

	return nil
}

func clientConfig(base string, chain *memchain.Chain, n int) config.Client {
	cfg := config.Client{
		Ledger:     base + ledger.Prefix,
		Package:    chain.Package().String(),
		KeyServers: make([]string, n),
		Threshold:  min(config.DefaultThreshold, n),
		Backends: []walrus.Backend{{
			Name:          backendName,
			PublisherURL:  base + blob.PublisherPrefix,
			AggregatorURL: base + blob.AggregatorPrefix,
		}},
		Storage: config.Storage{Epochs: 1},
		Cache:   config.Cache{Kind: "memory"},
	}

	for i := range cfg.KeyServers {
		cfg.KeyServers[i] = base + keyserver.Prefix(i)
	}

	return cfg
}
