// Package main implements a development network of the vault that runs in a
// single process: a local ledger, a set of key servers and a blob node, all
// behind one HTTP server.
//
// Unix example:
//
//  # Start the network in the background.
//  devnet --config /tmp/devnet start --listen 127.0.0.1:7070 &
//
//  # Export the configuration of the client commands.
//  devnet --config /tmp/devnet devnet config --out ~/.vault/client.yaml
//
//  # Credit the address of a wallet.
//  devnet --config /tmp/devnet ledger fund --address 0x...
//
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/vault/cli/node"
	ledger "go.dedis.ch/vault/ledger/memchain/controller"
	proxy "go.dedis.ch/vault/proxy/http/controller"
	keyserver "go.dedis.ch/vault/seal/keyserver/controller"
	blob "go.dedis.ch/vault/walrus/node/controller"
)

type appConfig struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, appConfig{Writer: os.Stdout})
}

func runWithCfg(args []string, cfg appConfig) error {
	builder := node.NewBuilderWithCfg(
		"devnet",
		cfg.Channel,
		cfg.Writer,
		newSettings(),
		proxy.NewController(),
		ledger.NewController(),
		keyserver.NewController(),
		blob.NewController(),
	)

	app := builder.Build()

	return app.Run(args)
}
