// Package controller implements the initializer of the blob node of a
// development node. Blobs are kept in the node folder, or in an S3 bucket
// when one is configured. The publisher is served under /publisher1 and the
// aggregator under /aggregator1.
package controller

import (
	"context"
	"fmt"
	"path/filepath"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/proxy"
	blob "go.dedis.ch/vault/walrus/node"
	"golang.org/x/xerrors"
)

const (
	// PublisherPrefix is the path under which the publisher is served.
	PublisherPrefix = "/publisher1"

	// AggregatorPrefix is the path under which the aggregator is served.
	AggregatorPrefix = "/aggregator1"

	dbName = "blobs.db"
)

var (
	newDB       = kv.New
	newS3Client = func(ctx context.Context, cfg blob.S3Config) (blob.S3API, error) {
		return blob.NewS3Client(ctx, cfg)
	}
)

// NewController returns the initializer of the blob node.
func NewController() node.Initializer {
	return &controller{}
}

// controller creates the blob node on the store of the configuration.
//
// - implements node.Initializer
type controller struct {
	db kv.DB
}

// SetCommands implements node.Initializer.
func (c *controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("blob")
	cmd.SetDescription("inspect the blobs of the node")

	sub := cmd.SetSubCommand("stat")
	sub.SetDescription("print the size of a blob")
	sub.SetFlags(cli.StringFlag{Name: "id", Usage: "identifier of the blob", Required: true})
	sub.SetAction(builder.MakeAction(statAction{}))
}

// OnStart implements node.Initializer.
func (c *controller) OnStart(flags cli.Flags, inj node.Injector) error {
	cfg, err := node.Resolve[*config.Devnet](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve config: %v", err)
	}

	srv, err := node.Resolve[proxy.Proxy](inj)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	var store blob.Store

	if cfg.S3.Bucket != "" {
		client, err := newS3Client(context.Background(), cfg.S3)
		if err != nil {
			return xerrors.Errorf("failed to create s3 client: %v", err)
		}

		store = blob.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix)
	} else {
		db, err := newDB(filepath.Join(cfg.Data, dbName))
		if err != nil {
			return xerrors.Errorf("failed to open database: %v", err)
		}

		c.db = db
		store = blob.NewKVStore(db)
	}

	var opts []blob.Option
	if cfg.MaxEpochs > 0 {
		opts = append(opts, blob.WithMaxEpochs(cfg.MaxEpochs))
	}

	n := blob.NewNode(store, opts...)

	inj.Inject(store)
	inj.Inject(n)

	srv.Mount(PublisherPrefix, n.Publisher())
	srv.Mount(AggregatorPrefix, n.Aggregator())

	return nil
}

// OnStop implements node.Initializer. It closes the database, if any.
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

// statAction prints the size of a blob.
//
// - implements node.ActionTemplate
type statAction struct{}

// Execute implements node.ActionTemplate.
func (statAction) Execute(ctx node.Context) error {
	store, err := node.Resolve[blob.Store](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("failed to resolve store: %v", err)
	}

	id := ctx.Flags.String("id")

	data, err := store.Get(ctx.Ctx, id)
	if err != nil {
		return xerrors.Errorf("failed to read blob '%s': %v", id, err)
	}

	fmt.Fprintf(ctx.Out, "%s\t%d bytes\n", id, len(data))

	return nil
}
