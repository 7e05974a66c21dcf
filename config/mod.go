// Package config loads the configuration files of the client and of the
// development network. A file is read first, then the environment variables
// prefixed by VAULT_ override the values they set, and finally the defaults
// are applied to what is still missing.
//
// Documentation Last Review: 02.09.2026
//
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"go.dedis.ch/vault/cache/redis"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/session"
	"go.dedis.ch/vault/walrus"
	"go.dedis.ch/vault/walrus/node"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultThreshold is the number of key servers needed to decrypt.
	DefaultThreshold = 2

	// DefaultListen is the address of the development network.
	DefaultListen = "127.0.0.1:7070"

	// DefaultKeyServers is the number of key servers of the development
	// network.
	DefaultKeyServers = 3
)

// Client is the configuration of the commands of a user.
type Client struct {
	Ledger     string           `yaml:"ledger" env:"VAULT_LEDGER"`
	Package    string           `yaml:"package" env:"VAULT_PACKAGE"`
	Wallet     string           `yaml:"wallet" env:"VAULT_WALLET"`
	KeyServers []string         `yaml:"key_servers" env:"VAULT_KEY_SERVERS"`
	Threshold  int              `yaml:"threshold" env:"VAULT_THRESHOLD"`
	Backends   []walrus.Backend `yaml:"backends"`
	Storage    Storage          `yaml:"storage"`
	Session    Session          `yaml:"session"`
	Cache      Cache            `yaml:"cache"`
}

// Storage is the configuration of the blob storage client.
type Storage struct {
	Epochs   int           `yaml:"epochs" env:"VAULT_STORAGE_EPOCHS"`
	Timeout  time.Duration `yaml:"timeout" env:"VAULT_STORAGE_TIMEOUT"`
	Fallback int           `yaml:"fallback" env:"VAULT_STORAGE_FALLBACK"`
}

// Session is the configuration of the session keys.
type Session struct {
	// TTL is the lifetime of a session key in minutes.
	TTL uint16 `yaml:"ttl" env:"VAULT_SESSION_TTL"`
}

// Cache is the configuration of the cache of decrypted content. The kind is
// either empty, "memory" or "redis".
type Cache struct {
	Kind    string        `yaml:"kind" env:"VAULT_CACHE"`
	MaxSize int64         `yaml:"max_size" env:"VAULT_CACHE_MAX_SIZE"`
	TTL     time.Duration `yaml:"ttl" env:"VAULT_CACHE_TTL"`
	Redis   redis.Config  `yaml:"redis"`
}

// Devnet is the configuration of the development network.
type Devnet struct {
	Listen     string        `yaml:"listen" env:"VAULT_LISTEN"`
	Data       string        `yaml:"data" env:"VAULT_DATA"`
	KeyServers int           `yaml:"key_servers" env:"VAULT_DEVNET_KEY_SERVERS"`
	MaxConns   int           `yaml:"max_conns" env:"VAULT_MAX_CONNS"`
	MaxEpochs  uint64        `yaml:"max_epochs" env:"VAULT_MAX_EPOCHS"`
	S3         node.S3Config `yaml:"s3"`
}

// LoadClient returns the configuration of the file, if any, with the
// environment overrides.
func LoadClient(path string) (Client, error) {
	var cfg Client

	err := load(path, &cfg)
	if err != nil {
		return cfg, err
	}

	cfg.applyDefaults()

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}

// LoadDevnet returns the configuration of the development network. The data
// folder defaults to the given one.
func LoadDevnet(path, data string) (Devnet, error) {
	var cfg Devnet

	err := load(path, &cfg)
	if err != nil {
		return cfg, err
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	if cfg.KeyServers <= 0 {
		cfg.KeyServers = DefaultKeyServers
	}

	if cfg.Data == "" {
		cfg.Data = data
	}

	if cfg.Data == "" {
		return cfg, xerrors.New("invalid configuration: missing data folder")
	}

	return cfg, nil
}

// Save writes the configuration to the file, readable only by its owner.
func Save(path string, cfg interface{}) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return xerrors.Errorf("failed to create folder: %v", err)
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", path, err)
	}

	return nil
}

// PackageID returns the package of the policy modules.
func (c Client) PackageID() (ledger.ID, error) {
	return ledger.ParseID(c.Package)
}

// Validate returns an error if a mandatory value is missing or if the values
// are inconsistent.
func (c Client) Validate() error {
	if c.Ledger == "" {
		return xerrors.New("missing ledger address")
	}

	_, err := c.PackageID()
	if err != nil {
		return xerrors.Errorf("invalid package: %v", err)
	}

	if len(c.KeyServers) == 0 {
		return xerrors.New("missing key servers")
	}

	if c.Threshold <= 0 || c.Threshold > len(c.KeyServers) {
		return xerrors.Errorf("invalid threshold %d for %d key servers",
			c.Threshold, len(c.KeyServers))
	}

	if len(c.Backends) == 0 {
		return xerrors.New("missing storage backends")
	}

	switch c.Cache.Kind {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return xerrors.New("missing redis address")
		}
	default:
		return xerrors.Errorf("unknown cache '%s'", c.Cache.Kind)
	}

	return nil
}

func (c *Client) applyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = min(DefaultThreshold, len(c.KeyServers))
	}

	if c.Storage.Epochs <= 0 {
		c.Storage.Epochs = 1
	}

	if c.Storage.Timeout <= 0 {
		c.Storage.Timeout = walrus.DefaultTimeout
	}

	if c.Session.TTL == 0 {
		c.Session.TTL = session.DefaultTTL
	}
}

func load(path string, target interface{}) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return xerrors.Errorf("failed to read config: %v", err)
		}

		err = yaml.UnmarshalStrict(data, target)
		if err != nil {
			return xerrors.Errorf("failed to decode config: %v", err)
		}
	}

	err := envdecode.Decode(target)
	if err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return xerrors.Errorf("failed to read environment: %v", err)
	}

	return nil
}
