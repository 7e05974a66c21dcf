package controller

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/cli/node"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/internal/testing/fake"
	"go.dedis.ch/vault/proxy"
	blob "go.dedis.ch/vault/walrus/node"
)

func TestController_KV(t *testing.T) {
	srv := fake.NewProxy()
	inj := makeInjector(t, config.Devnet{Data: t.TempDir(), MaxEpochs: 5}, srv)

	c := NewController()

	err := c.OnStart(node.FlagSet{}, inj)
	require.NoError(t, err)
	require.Contains(t, srv.Mounts, PublisherPrefix)
	require.Contains(t, srv.Mounts, AggregatorPrefix)

	store, err := node.Resolve[blob.Store](inj)
	require.NoError(t, err)
	require.IsType(t, blob.KVStore{}, store)

	_, err = node.Resolve[*blob.Node](inj)
	require.NoError(t, err)

	data := []byte("ciphertext")
	id := blob.BlobID(data)

	_, _, err = store.Put(context.Background(), blob.Record{BlobID: id, Size: len(data)}, data)
	require.NoError(t, err)

	out := new(bytes.Buffer)
	ctx := node.Context{
		Ctx:      context.Background(),
		Injector: inj,
		Flags:    node.FlagSet{"id": id},
		Out:      out,
	}

	require.NoError(t, statAction{}.Execute(ctx))
	require.Equal(t, id+"\t10 bytes\n", out.String())

	ctx.Flags = node.FlagSet{"id": "unknown"}
	require.EqualError(t, statAction{}.Execute(ctx), "failed to read blob 'unknown': blob 'unknown': blob not found")

	require.NoError(t, c.OnStop(inj))
	require.NoError(t, c.OnStop(inj))
}

func TestController_S3(t *testing.T) {
	cfg := config.Devnet{Data: t.TempDir()}
	cfg.S3 = blob.S3Config{Bucket: "blobs", Prefix: "devnet/"}

	inj := makeInjector(t, cfg, fake.NewProxy())

	newS3Client = func(ctx context.Context, cfg blob.S3Config) (blob.S3API, error) {
		return badS3{}, nil
	}
	defer func() { newS3Client = defaultS3Client }()

	c := NewController()
	require.NoError(t, c.OnStart(node.FlagSet{}, inj))

	store, err := node.Resolve[blob.Store](inj)
	require.NoError(t, err)
	require.IsType(t, blob.S3Store{}, store)

	newS3Client = func(ctx context.Context, cfg blob.S3Config) (blob.S3API, error) {
		return nil, fake.GetError()
	}

	err = c.OnStart(node.FlagSet{}, inj)
	require.EqualError(t, err, fake.Err("failed to create s3 client"))
}

func TestController_StartFailures(t *testing.T) {
	c := NewController()

	inj := node.NewInjector()
	require.Regexp(t, "^failed to resolve config: ", c.OnStart(node.FlagSet{}, inj).Error())

	inj.Inject(&config.Devnet{Data: t.TempDir()})
	require.Regexp(t, "^failed to resolve proxy: ", c.OnStart(node.FlagSet{}, inj).Error())

	inj.Inject(proxy.Proxy(fake.NewProxy()))

	newDB = func(string) (kv.DB, error) { return nil, fake.GetError() }
	defer func() { newDB = kv.New }()

	require.EqualError(t, c.OnStart(node.FlagSet{}, inj), fake.Err("failed to open database"))

	err := statAction{}.Execute(node.Context{Injector: node.NewInjector()})
	require.Regexp(t, "^failed to resolve store: ", err.Error())
}

// -----------------------------------------------------------------------------
// Utility functions

var defaultS3Client = newS3Client

func makeInjector(t *testing.T, cfg config.Devnet, srv proxy.Proxy) node.Injector {
	inj := node.NewInjector()
	inj.Inject(&cfg)
	inj.Inject(srv)

	return inj
}

type badS3 struct{}

func (badS3) PutObject(ctx context.Context, in *s3.PutObjectInput,
	optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {

	return nil, fake.GetError()
}

func (badS3) GetObject(ctx context.Context, in *s3.GetObjectInput,
	optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {

	return nil, fake.GetError()
}
