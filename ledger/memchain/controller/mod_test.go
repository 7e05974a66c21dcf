package controller

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/ledger/memchain"
	"go.dedis.ch/vault/proxy"
)

func TestController_SetCommands(t *testing.T) {
	builder := node.NewBuilder("devnet")

	NewController().SetCommands(builder)

	app := builder.Build().(*urfave.App)
	require.Equal(t, "ledger", app.Commands[0].Name)
	require.Len(t, app.Commands[0].Subcommands, 3)
}

func TestController_Lifecycle(t *testing.T) {
	inj, srv := makeInjector(t)

	c := NewController()

	err := c.OnStart(node.FlagSet{}, inj)
	require.NoError(t, err)
	require.Contains(t, srv.Mounts, Prefix)

	chain, err := node.Resolve[*memchain.Chain](inj)
	require.NoError(t, err)

	_, err = chain.ReadClock(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.OnStop(inj))
	require.NoError(t, c.OnStop(inj))
}

func TestController_StartFailures(t *testing.T) {
	c := NewController()

	err := c.OnStart(node.FlagSet{}, node.NewInjector())
	require.EqualError(t, err,
		"failed to resolve config: injector: couldn't find dependency for '*config.Devnet'")

	inj := node.NewInjector()
	inj.Inject(&config.Devnet{Data: t.TempDir()})

	err = c.OnStart(node.FlagSet{}, inj)
	require.EqualError(t, err,
		"failed to resolve proxy: injector: couldn't find dependency for 'proxy.Proxy'")

	inj, _ = makeInjector(t)

	newDB = func(string) (kv.DB, error) { return nil, fake.GetError() }
	defer func() { newDB = kv.New }()

	err = c.OnStart(node.FlagSet{}, inj)
	require.EqualError(t, err, fake.Err("failed to open database"))
}

func TestActions(t *testing.T) {
	inj, _ := makeInjector(t)

	c := NewController()
	require.NoError(t, c.OnStart(node.FlagSet{}, inj))

	defer c.OnStop(inj)

	out := new(bytes.Buffer)
	ctx := node.Context{
		Ctx:      context.Background(),
		Injector: inj,
		Flags:    node.FlagSet{"address": "0xa1", "amount": 10.0},
		Out:      out,
	}

	require.NoError(t, fundAction{}.Execute(ctx))
	require.Equal(t, "credited 10 to "+ledger.MustParseID("0xa1").String()+"\n", out.String())

	out.Reset()
	require.NoError(t, balanceAction{}.Execute(ctx))
	require.Equal(t, "10\n", out.String())

	out.Reset()
	require.NoError(t, packageAction{}.Execute(ctx))
	require.Equal(t, memchain.DefaultPackage().String()+"\n", out.String())

	ctx.Flags = node.FlagSet{"address": "0xa1"}
	require.EqualError(t, fundAction{}.Execute(ctx), "invalid amount 0")

	ctx.Flags = node.FlagSet{"address": "zz", "amount": 1}
	require.Regexp(t, "^invalid address: ", fundAction{}.Execute(ctx).Error())
	require.Regexp(t, "^invalid address: ", balanceAction{}.Execute(ctx).Error())

	ctx.Injector = node.NewInjector()
	require.Regexp(t, "^failed to resolve chain: ", fundAction{}.Execute(ctx).Error())
	require.Regexp(t, "^failed to resolve chain: ", balanceAction{}.Execute(ctx).Error())
	require.Regexp(t, "^failed to resolve chain: ", packageAction{}.Execute(ctx).Error())
}

// -----------------------------------------------------------------------------
// Utility functions

func makeInjector(t *testing.T) (node.Injector, *fake.Proxy) {
	srv := fake.NewProxy()

	inj := node.NewInjector()
	inj.Inject(&config.Devnet{Data: t.TempDir()})
	inj.Inject(proxy.Proxy(srv))

	return inj, srv
}
