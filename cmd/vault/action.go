package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/client"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/feed"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"golang.org/x/xerrors"
)

// action defines what the commands share to reach the network. Defining the
// functions here helps in testing the commands.
type action struct {
	printer io.Writer
	input   *bufio.Reader

	open     func(ctx context.Context, cfg config.Client, opts ...client.Option) (*client.Vault, error)
	readFile func(name string) ([]byte, error)
	notify   func(ctx context.Context) (context.Context, context.CancelFunc)
}

func newAction(out io.Writer, in io.Reader) *action {
	return &action{
		printer:  out,
		input:    bufio.NewReader(in),
		open:     client.New,
		readFile: os.ReadFile,
		notify: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		},
	}
}

// vault opens the client of the configuration of the flags.
func (a *action) vault(ctx context.Context, flags cli.Flags) (*client.Vault, error) {
	cfg, err := config.LoadClient(flags.Path(configFlag))
	if err != nil {
		return nil, xerrors.Errorf("failed to load configuration: %v", err)
	}

	var opts []client.Option
	if flags.Bool(confirmFlag) {
		opts = append(opts, client.WithPrompt(a.prompt))
	}

	v, err := a.open(ctx, cfg, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to open vault: %v", err)
	}

	return v, nil
}

// prompt asks the user to confirm a signature on the input.
func (a *action) prompt(description string) bool {
	fmt.Fprintf(a.printer, "%s, sign? [y/N] ", description)

	line, err := a.input.ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// capability returns the capability given by the flag, or the one the wallet
// holds over the policy.
func (a *action) capability(ctx context.Context, v *client.Vault, p policy.Policy,
	text string) (ledger.ID, error) {

	if text != "" {
		id, err := ledger.ParseID(text)
		if err != nil {
			return ledger.ID{}, xerrors.Errorf("invalid capability: %v", err)
		}

		return id, nil
	}

	c, found, err := v.Feeds.Resolver().FindCapability(ctx, v.Address(), p)
	if err != nil {
		return ledger.ID{}, err
	}

	if !found {
		return ledger.ID{}, xerrors.Errorf("wallet %v has no capability over %v", v.Address(), p.ID)
	}

	return c.ID, nil
}

// policy reads the policy of the identifier.
func (a *action) policy(ctx context.Context, v *client.Vault, text string) (policy.Policy, error) {
	id, err := ledger.ParseID(text)
	if err != nil {
		return policy.Policy{}, xerrors.Errorf("invalid policy: %v", err)
	}

	p, err := v.Feeds.Resolver().Policy(ctx, id)
	if err != nil {
		return policy.Policy{}, xerrors.Errorf("failed to read policy: %v", err)
	}

	return p, nil
}

func (a *action) printFeed(f feed.Feed) {
	fmt.Fprintf(a.printer, "name: %s\n", f.Policy.Name)
	fmt.Fprintf(a.printer, "kind: %s\n", f.Policy.Kind.Module())

	switch f.Policy.Kind {
	case policy.KindAllowlist:
		fmt.Fprintf(a.printer, "members: %d\n", len(f.Policy.Members))
		for _, member := range f.Policy.Members {
			fmt.Fprintf(a.printer, "  %v\n", member)
		}
	case policy.KindSubscription:
		fmt.Fprintf(a.printer, "fee: %d\n", f.Policy.Fee)
		fmt.Fprintf(a.printer, "ttl: %dms\n", f.Policy.TTL)
	}

	fmt.Fprintf(a.printer, "blobs: %d\n", len(f.BlobIDs))
	for _, id := range f.BlobIDs {
		fmt.Fprintf(a.printer, "  %s\n", id)
	}

	access := "denied"
	if f.Decision.Authorized {
		access = "granted"
	}

	fmt.Fprintf(a.printer, "access: %s\n", access)

	if f.Capability != nil {
		fmt.Fprintf(a.printer, "capability: %v\n", f.Capability.ID)
	}
}
