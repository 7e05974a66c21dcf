// Package controller implements the initializer of the HTTP server of a
// development node. The server is started first so that the other components
// can mount their handlers on it.
package controller

import (
	"fmt"
	"time"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/proxy"
	"go.dedis.ch/vault/proxy/http"
	"golang.org/x/xerrors"
)

const (
	listenFlag = "listen"

	startTimeout = 10 * time.Second
)

var proxyFac = func(cfg config.Devnet) proxy.Proxy {
	return http.NewHTTP(cfg.Listen, http.WithMaxConns(cfg.MaxConns))
}

// NewController returns the initializer of the HTTP server.
func NewController() node.Initializer {
	return minimal{}
}

// minimal is an initializer that starts the HTTP server and offers a command
// to print its address.
//
// - implements node.Initializer
type minimal struct{}

// SetCommands implements node.Initializer.
func (minimal) SetCommands(builder node.Builder) {
	builder.SetStartFlags(cli.StringFlag{
		Name:  listenFlag,
		Usage: "address of the HTTP server, overrides the configuration",
	})

	cmd := builder.SetCommand("proxy")
	sub := cmd.SetSubCommand("addr")
	sub.SetDescription("print the address of the HTTP server")
	sub.SetAction(builder.MakeAction(addrAction{}))
}

// OnStart implements node.Initializer. It starts the server and injects it
// once it accepts connections.
func (minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := node.Resolve[*config.Devnet](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve config: %v", err)
	}

	listen := cfg.Listen

	if flags.String(listenFlag) != "" {
		listen = flags.String(listenFlag)
	}

	srv := proxyFac(config.Devnet{Listen: listen, MaxConns: cfg.MaxConns})

	errs := make(chan error, 1)

	go func() {
		errs <- srv.Listen()
	}()

	timeout := time.After(startTimeout)

	for srv.GetAddr() == nil {
		select {
		case err := <-errs:
			return xerrors.Errorf("failed to start proxy server: %v", err)
		case <-timeout:
			srv.Stop()
			return xerrors.New("proxy server did not start in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	inj.Inject(srv)

	return nil
}

// OnStop implements node.Initializer. It stops the HTTP server.
func (minimal) OnStop(inj node.Injector) error {
	srv, err := node.Resolve[proxy.Proxy](inj)
	if err == nil {
		srv.Stop()
	}

	return nil
}

// addrAction prints the address of the server.
//
// - implements node.ActionTemplate
type addrAction struct{}

// Execute implements node.ActionTemplate.
func (addrAction) Execute(ctx node.Context) error {
	srv, err := node.Resolve[proxy.Proxy](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	fmt.Fprintf(ctx.Out, "http://%s\n", srv.GetAddr())

	return nil
}
