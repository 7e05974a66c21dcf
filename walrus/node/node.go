package node

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/internal/httpjson"
	"go.dedis.ch/vault/walrus"
	"golang.org/x/xerrors"
)

const (
	// DefaultMaxSize is the largest blob accepted by default.
	DefaultMaxSize = 10 * 1024 * 1024

	// DefaultMaxEpochs is the largest storage duration accepted by default.
	DefaultMaxEpochs = 200
)

// Node is a blob node serving the publisher and the aggregator endpoints.
type Node struct {
	store     Store
	epoch     func() uint64
	maxSize   int64
	maxEpochs uint64
	logger    zerolog.Logger
}

// Option is the type of option to configure a node.
type Option func(*Node)

// WithEpoch sets the function that returns the current epoch.
func WithEpoch(fn func() uint64) Option {
	return func(n *Node) {
		n.epoch = fn
	}
}

// WithMaxSize sets the largest blob accepted.
func WithMaxSize(size int64) Option {
	return func(n *Node) {
		n.maxSize = size
	}
}

// WithMaxEpochs sets the longest storage duration accepted.
func WithMaxEpochs(epochs uint64) Option {
	return func(n *Node) {
		n.maxEpochs = epochs
	}
}

// NewNode returns a node using the store.
func NewNode(store Store, opts ...Option) *Node {
	n := &Node{
		store:     store,
		epoch:     func() uint64 { return 1 },
		maxSize:   DefaultMaxSize,
		maxEpochs: DefaultMaxEpochs,
		logger:    vault.Logger.With().Str("role", "blob node").Logger(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Publisher returns the handler of the upload endpoint.
func (n *Node) Publisher() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/blobs", n.handlePut)

	return mux
}

// Aggregator returns the handler of the download endpoint.
func (n *Node) Aggregator() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/blobs/{id}", n.handleGet)

	return mux
}

// Handler returns a handler serving both endpoints.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/blobs", n.handlePut)
	mux.HandleFunc("GET /v1/blobs/{id}", n.handleGet)

	return mux
}

func (n *Node) handlePut(w http.ResponseWriter, r *http.Request) {
	epochs, err := strconv.ParseUint(r.URL.Query().Get("epochs"), 10, 64)
	if err != nil || epochs == 0 || epochs > n.maxEpochs {
		http.Error(w, fmt.Sprintf("invalid epochs, expected 1 to %d", n.maxEpochs),
			http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, n.maxSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if xerrors.As(err, &maxErr) {
			http.Error(w, "blob too large", http.StatusRequestEntityTooLarge)
			return
		}

		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if len(data) == 0 {
		http.Error(w, "empty blob", http.StatusBadRequest)
		return
	}

	record, created, err := n.store.Put(r.Context(), newRecord(data, n.epoch()+epochs), data)
	if err != nil {
		n.logger.Err(err).Msg("failed to store blob")
		http.Error(w, "failed to store blob", http.StatusInternalServerError)
		return
	}

	n.logger.Info().
		Str("blob", record.BlobID).
		Bool("created", created).
		Int("size", len(data)).
		Msg("blob stored")

	httpjson.Write(w, http.StatusOK, toResponse(record, created))
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	data, err := n.store.Get(r.Context(), id)
	if xerrors.Is(err, ErrNotFound) {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}

	if err != nil {
		n.logger.Err(err).Str("blob", id).Msg("failed to read blob")
		http.Error(w, "failed to read blob", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func toResponse(record Record, created bool) walrus.StoreResponse {
	if created {
		return walrus.StoreResponse{
			NewlyCreated: &walrus.NewlyCreatedJSON{
				BlobObject: walrus.BlobObjectJSON{
					ID:      record.ObjectID,
					BlobID:  record.BlobID,
					Storage: walrus.StorageJSON{EndEpoch: record.EndEpoch},
				},
			},
		}
	}

	return walrus.StoreResponse{
		AlreadyCertified: &walrus.AlreadyCertifiedJSON{
			BlobID:   record.BlobID,
			Event:    walrus.EventJSON{TxDigest: record.TxDigest},
			EndEpoch: record.EndEpoch,
		},
	}
}
