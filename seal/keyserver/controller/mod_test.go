package controller

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/proxy"
)

func TestMinimal_SetCommands(t *testing.T) {
	builder := node.NewBuilder("devnet")

	NewController().SetCommands(builder)

	app := builder.Build().(*urfave.App)
	require.Equal(t, "keyserver", app.Commands[0].Name)
	require.Equal(t, "list", app.Commands[0].Subcommands[0].Name)
}

func TestMinimal_OnStart(t *testing.T) {
	dir := t.TempDir()
	srv := fake.NewProxy()

	inj := node.NewInjector()
	inj.Inject(&config.Devnet{Data: dir, KeyServers: 3})
	inj.Inject(proxy.Proxy(srv))
	inj.Inject(ledger.DryRunner(fake.NewLedger()))

	c := NewController()

	err := c.OnStart(node.FlagSet{}, inj)
	require.NoError(t, err)
	require.Len(t, srv.Mounts, 3)
	require.Contains(t, srv.Mounts, "/keyserver/2")

	services, err := node.Resolve[Services](inj)
	require.NoError(t, err)
	require.Len(t, services, 3)
	require.NotEqual(t, services[0].ObjectID(), services[1].ObjectID())

	// The master keys are kept in the folder.
	again := node.NewInjector()
	again.Inject(&config.Devnet{Data: dir, KeyServers: 3})
	again.Inject(proxy.Proxy(fake.NewProxy()))
	again.Inject(ledger.DryRunner(fake.NewLedger()))

	require.NoError(t, c.OnStart(node.FlagSet{}, again))

	restarted, err := node.Resolve[Services](again)
	require.NoError(t, err)

	for i := range services {
		require.Equal(t, services[i].ObjectID(), restarted[i].ObjectID())
	}

	out := new(bytes.Buffer)

	err = listAction{}.Execute(node.Context{Ctx: context.Background(), Injector: inj, Out: out})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[1], "/keyserver/1\t"+services[1].ObjectID().String()))

	require.NoError(t, c.OnStop(inj))
}

func TestMinimal_StartFailures(t *testing.T) {
	c := NewController()

	inj := node.NewInjector()
	require.Regexp(t, "^failed to resolve config: ", c.OnStart(node.FlagSet{}, inj).Error())

	inj.Inject(&config.Devnet{Data: "/dev/null/vault", KeyServers: 1})
	require.Regexp(t, "^failed to resolve proxy: ", c.OnStart(node.FlagSet{}, inj).Error())

	inj.Inject(proxy.Proxy(fake.NewProxy()))
	require.Regexp(t, "^failed to resolve ledger: ", c.OnStart(node.FlagSet{}, inj).Error())

	inj.Inject(ledger.DryRunner(fake.NewLedger()))
	require.Regexp(t, "^key server 0: failed to load master key: ", c.OnStart(node.FlagSet{}, inj).Error())

	err := listAction{}.Execute(node.Context{Injector: node.NewInjector()})
	require.Regexp(t, "^failed to resolve key servers: ", err.Error())
}
