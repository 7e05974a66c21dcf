// Package main implements the command line client of the vault. It publishes
// encrypted content under allowlists and subscription services, and decrypts
// the content the wallet is allowed to read.
//
//  vault wallet new --key ~/.vault/wallet.key
//  vault --config ~/.vault/client.yaml allowlist create --name friends
//  vault allowlist add --id 0x... --address 0x...
//  vault publish --policy 0x... --file picture.png
//  vault view --policy 0x... --out ./pictures
//
// The configuration is read from the file of the --config flag, and the
// VAULT_* environment variables override its values.
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/ucli"
)

const (
	configFlag  = "config"
	confirmFlag = "confirm"
)

var (
	printer io.Writer = os.Stderr
	exit              = os.Exit
)

func main() {
	err := run(os.Args, newAction(os.Stdout, os.Stdin))
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		exit(1)
	}
}

func run(args []string, a *action) error {
	builder := ucli.NewBuilder("vault", nil,
		cli.PathFlag{
			Name:  configFlag,
			Usage: "path to the configuration file of the client",
			Env:   "VAULT_CONFIG",
		},
		cli.BoolFlag{
			Name:  confirmFlag,
			Usage: "ask before every signature of the wallet",
		},
	)

	builder.SetUsage("publish and read gated content")

	inits := []cli.Initializer{
		walletCommands{action: a},
		allowlistCommands{action: a},
		serviceCommands{action: a},
		contentCommands{action: a},
	}

	for _, init := range inits {
		init.SetCommands(builder)
	}

	return builder.Build().Run(args)
}
