// Package node defines the Builder type, which builds a CLI application to
// control a development node.
//
// The application has a start command by default that runs the components of
// the initializers until the process is interrupted. The other commands are
// actions sent through a UNIX socket to the running node, where they are
// executed with the dependencies the components injected. See the example.
//
// Documentation Last Review: 09.06.2026
//
package node

import (
	"context"
	"io"

	"go.dedis.ch/vault/cli"
)

// Builder is given to the initializers so that the ledger, the key servers and
// the blob node each declare their commands and the flags of start.
type Builder interface {
	SetCommand(name string) cli.CommandBuilder

	// SetStartFlags adds flags to the start command, like the address the
	// proxy listens on.
	SetStartFlags(...cli.Flag)

	// MakeAction returns a CLI action that forwards the flags to the daemon,
	// where the template is executed.
	MakeAction(ActionTemplate) cli.Action
}

// ActionTemplate is an action executed by the daemon on behalf of the CLI.
type ActionTemplate interface {
	Execute(Context) error
}

// Context is given to an action executed by the daemon. Out is forwarded to
// the CLI that sent the command, and Ctx is canceled when the daemon stops.
type Context struct {
	Ctx      context.Context
	Injector Injector
	Flags    cli.Flags
	Out      io.Writer
}

// Injector holds the components started by the initializers, for example the
// local ledger, so that the actions can reach them.
type Injector interface {
	// Resolve assigns to the pointer the first dependency of a compatible
	// type.
	Resolve(interface{}) error

	Inject(interface{})
}

// Initializer is implemented by the controller of each devnet component.
// OnStart is called in the order of the initializers, and OnStop in the
// reverse order.
type Initializer interface {
	SetCommands(Builder)

	OnStart(cli.Flags, Injector) error

	OnStop(Injector) error
}

// Client sends a command to the running daemon.
type Client interface {
	Send([]byte) error
}

// Daemon listens on the UNIX socket of the devnet for the commands.
type Daemon interface {
	Listen() error
	Close() error
}

// DaemonFactory creates the daemon and its clients from the --config folder.
type DaemonFactory interface {
	ClientFromContext(cli.Flags) (Client, error)
	DaemonFromContext(cli.Flags) (Daemon, error)
}
