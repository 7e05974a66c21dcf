// Package devnet serves a ledger, key servers and a blob node on a test HTTP
// server, laid out like the development network, and counts the requests
// that reach the key servers and the publisher.
package devnet

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/config"
	"go.dedis.ch/vault/core/store/kv"
	"go.dedis.ch/vault/ledger/ledgerhttp"
	"go.dedis.ch/vault/ledger/memchain"
	"go.dedis.ch/vault/seal"
	"go.dedis.ch/vault/seal/keyserver"
	"go.dedis.ch/vault/walrus"
	"go.dedis.ch/vault/walrus/node"
)

// T0 is the time of the ledger when the network starts, in milliseconds.
const T0 = int64(1_700_000_000_000)

// BackendName is the name of the blob backend in the client configurations.
const BackendName = "devnet"

// Devnet is a running test network.
type Devnet struct {
	Server *httptest.Server
	Chain  *memchain.Chain

	// Now is the time of the ledger in milliseconds.
	Now *atomic.Int64

	// KeyRequests counts the key requests accepted by the key servers.
	KeyRequests *atomic.Int32

	// Uploads counts the requests to the publisher.
	Uploads *atomic.Int32

	// Down makes the key server of the index refuse every key request.
	Down []*atomic.Bool

	keyServers []string
	dir        string
}

// Start serves a network of n key servers until the end of the test.
func Start(t *testing.T, n int) *Devnet {
	dir := t.TempDir()

	db, err := kv.New(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs, err := kv.New(filepath.Join(dir, "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { blobs.Close() })

	d := &Devnet{
		Now:         &atomic.Int64{},
		KeyRequests: &atomic.Int32{},
		Uploads:     &atomic.Int32{},
		dir:         dir,
	}

	d.Now.Store(T0)

	d.Chain = memchain.New(db, memchain.WithClock(func() time.Time {
		return time.UnixMilli(d.Now.Load())
	}))

	mux := http.NewServeMux()
	mount(mux, "/ledger", ledgerhttp.NewHandler(d.Chain))

	for i := 0; i < n; i++ {
		master, _ := seal.NewMasterKey()
		down := &atomic.Bool{}
		handler := keyserver.NewHandler(keyserver.NewService(master, d.Chain))

		prefix := fmt.Sprintf("/keyserver/%d", i)
		mount(mux, prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				if down.Load() {
					http.Error(w, "unavailable", http.StatusServiceUnavailable)
					return
				}

				d.KeyRequests.Add(1)
			}

			handler.ServeHTTP(w, r)
		}))

		d.Down = append(d.Down, down)
		d.keyServers = append(d.keyServers, prefix)
	}

	blobNode := node.NewNode(node.NewKVStore(blobs))
	publisher := blobNode.Publisher()

	mount(mux, "/publisher1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Uploads.Add(1)
		publisher.ServeHTTP(w, r)
	}))
	mount(mux, "/aggregator1", blobNode.Aggregator())

	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Server.Close)

	return d
}

// Config returns the configuration of a client of the user. The clients of a
// same user share the wallet.
func (d *Devnet) Config(user string) config.Client {
	servers := make([]string, len(d.keyServers))
	for i, prefix := range d.keyServers {
		servers[i] = d.Server.URL + prefix
	}

	return config.Client{
		Ledger:     d.Server.URL + "/ledger",
		Package:    d.Chain.Package().String(),
		Wallet:     filepath.Join(d.dir, user+".key"),
		KeyServers: servers,
		Threshold:  min(config.DefaultThreshold, len(servers)),
		Backends: []walrus.Backend{{
			Name:          BackendName,
			PublisherURL:  d.Server.URL + "/publisher1",
			AggregatorURL: d.Server.URL + "/aggregator1",
		}},
		Storage: config.Storage{Epochs: 1, Timeout: 5 * time.Second},
		Session: config.Session{TTL: 10},
		Cache:   config.Cache{Kind: "memory", MaxSize: 1 << 24},
	}
}

func mount(mux *http.ServeMux, prefix string, h http.Handler) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, h))
}
