// Package client assembles the components of the vault for a user from the
// client configuration: the wallet, the key servers, the blob backends and the
// ledger. The read and the write paths share the same instances so that a
// session key signed while viewing is reused by the next view.
//
// Documentation Last Review: 19.10.2026
//
package client

import (
	"context"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/cache"
	"go.dedis.ch/vault/cache/memory"
	"go.dedis.ch/vault/cache/redis"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/crypto/loader"
	"go.dedis.ch/vault/feed"
	"go.dedis.ch/vault/fetch"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/ledger/ledgerhttp"
	"go.dedis.ch/vault/publish"
	"go.dedis.ch/vault/registrar"
	"go.dedis.ch/vault/seal"
	"go.dedis.ch/vault/seal/keyserver"
	"go.dedis.ch/vault/session"
	"go.dedis.ch/vault/walrus"
	"go.dedis.ch/vault/wallet"
	"golang.org/x/xerrors"
)

// Vault holds the components of a user.
type Vault struct {
	Package   ledger.ID
	Ledger    *ledgerhttp.Client
	Wallet    *wallet.Local
	Seal      *seal.Client
	Storage   *walrus.Client
	Registrar *registrar.Registrar
	Publisher *publish.Publisher
	Sessions  *session.Manager
	Feeds     *feed.Loader
	Viewer    *feed.Viewer

	cache  cache.Cache
	memory *memory.Cache
	redis  *goredis.Client
	logger zerolog.Logger
}

// Option is the type of option to set some fields of the vault.
type Option func(*options)

type options struct {
	client *http.Client
	prompt wallet.Prompt
}

// WithHTTPClient sets the HTTP client used to reach the ledger, the key
// servers and the blob backends.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithPrompt sets the confirmation asked before the wallet signs.
func WithPrompt(p wallet.Prompt) Option {
	return func(o *options) {
		o.prompt = p
	}
}

// New returns the vault of the configuration. The key servers are contacted
// to learn their public keys.
func New(ctx context.Context, cfg config.Client, opts ...Option) (*Vault, error) {
	o := options{client: http.DefaultClient}

	for _, opt := range opts {
		opt(&o)
	}

	err := cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %v", err)
	}

	if cfg.Wallet == "" {
		return nil, xerrors.New("missing wallet key file")
	}

	pkg, err := cfg.PackageID()
	if err != nil {
		return nil, xerrors.Errorf("invalid package: %v", err)
	}

	v := &Vault{
		Package: pkg,
		Ledger:  ledgerhttp.NewClient(cfg.Ledger, o.client),
		logger:  vault.Logger.With().Str("role", "client").Logger(),
	}

	var walletOpts []wallet.Option
	if o.prompt != nil {
		walletOpts = append(walletOpts, wallet.WithPrompt(o.prompt))
	}

	v.Wallet, err = wallet.Load(loader.NewFileLoader(cfg.Wallet), v.Ledger, walletOpts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load wallet: %v", err)
	}

	servers, err := keyserver.Connect(ctx, cfg.KeyServers, o.client)
	if err != nil {
		return nil, xerrors.Errorf("failed to connect key servers: %v", err)
	}

	v.Seal, err = seal.NewClient(servers)
	if err != nil {
		return nil, xerrors.Errorf("failed to create seal client: %v", err)
	}

	v.Storage, err = walrus.NewClient(cfg.Backends,
		walrus.WithHTTPClient(o.client),
		walrus.WithTimeout(cfg.Storage.Timeout),
		walrus.WithFallback(cfg.Storage.Fallback),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create storage client: %v", err)
	}

	err = v.openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	v.Registrar = registrar.NewRegistrar(v.Wallet, pkg)

	v.Publisher = publish.NewPublisher(v.Seal, v.Storage, v.Registrar, pkg,
		publish.WithThreshold(cfg.Threshold),
		publish.WithEpochs(cfg.Storage.Epochs),
	)

	v.Sessions = session.NewManager(v.Wallet, pkg, session.WithTTL(cfg.Session.TTL))

	v.Feeds = feed.NewLoader(v.Ledger, pkg)

	var viewerOpts []feed.ViewerOption
	if v.cache != nil {
		viewerOpts = append(viewerOpts, feed.WithCache(v.cache))
	}

	orchestrator := fetch.NewOrchestrator(v.Storage, v.Seal, v.Sessions)
	v.Viewer = feed.NewViewer(v.Feeds.Resolver(), orchestrator, viewerOpts...)

	v.logger.Debug().
		Stringer("address", v.Wallet.Address()).
		Int("key servers", v.Seal.Len()).
		Int("backends", len(cfg.Backends)).
		Msg("vault ready")

	return v, nil
}

// Address returns the address of the wallet.
func (v *Vault) Address() ledger.ID {
	return v.Wallet.Address()
}

// Close releases the cache of the vault.
func (v *Vault) Close() error {
	if v.memory != nil {
		v.memory.Close()
	}

	if v.redis != nil {
		err := v.redis.Close()
		if err != nil {
			return xerrors.Errorf("failed to close redis: %v", err)
		}
	}

	return nil
}

func (v *Vault) openCache(ctx context.Context, cfg config.Cache) error {
	switch cfg.Kind {
	case "memory":
		var opts []memory.Option
		if cfg.MaxSize > 0 {
			opts = append(opts, memory.WithMaxSize(cfg.MaxSize))
		}

		c, err := memory.NewCache(append(opts, memory.WithTTL(cfg.TTL))...)
		if err != nil {
			return xerrors.Errorf("failed to open cache: %v", err)
		}

		v.memory = c
		v.cache = c
	case "redis":
		if cfg.Redis.TTL == 0 {
			cfg.Redis.TTL = cfg.TTL
		}

		c, conn, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return xerrors.Errorf("failed to open cache: %v", err)
		}

		v.redis = conn
		v.cache = c
	}

	return nil
}
