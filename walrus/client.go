package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/internal/httpjson"
	"golang.org/x/xerrors"
)

const (
	// DefaultTimeout is the bound of a single download.
	DefaultTimeout = 30 * time.Second

	errorBodyLimit = 100
)

var (
	promStores = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_walrus_stores_total",
		Help: "total number of blob uploads by outcome",
	}, []string{"outcome"})

	promFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_walrus_fetches_total",
		Help: "total number of blob downloads by outcome",
	}, []string{"outcome"})
)

func init() {
	vault.PromCollectors = append(vault.PromCollectors, promStores, promFetches)
}

// Client is the client of the blob network.
type Client struct {
	backends []Backend
	client   *http.Client
	timeout  time.Duration
	fallback int
	pick     func(n int) int
	logger   zerolog.Logger
}

// Option is the type of option to configure a client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for the requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the bound of a single download.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithFallback sets the number of other aggregators a failed download is
// retried on. It is zero by default.
func WithFallback(n int) Option {
	return func(c *Client) {
		c.fallback = n
	}
}

// WithPicker sets the function that selects an aggregator among n.
func WithPicker(pick func(n int) int) Option {
	return func(c *Client) {
		c.pick = pick
	}
}

// NewClient returns a client of the backends.
func NewClient(backends []Backend, opts ...Option) (*Client, error) {
	if len(backends) == 0 {
		return nil, xerrors.New("no backend")
	}

	c := &Client{
		backends: backends,
		client:   http.DefaultClient,
		timeout:  DefaultTimeout,
		pick:     rand.IntN,
		logger:   vault.Logger.With().Str("role", "walrus client").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Backends returns the known backends.
func (c *Client) Backends() []Backend {
	return append([]Backend{}, c.backends...)
}

// Backend returns the backend of the given name.
func (c *Client) Backend(name string) (Backend, error) {
	for _, backend := range c.backends {
		if backend.Name == name {
			return backend, nil
		}
	}

	return Backend{}, xerrors.Errorf("unknown backend '%s'", name)
}

// Store uploads the data to the publisher of the backend for the given number
// of epochs. The upload is not retried on another backend.
func (c *Client) Store(ctx context.Context, data []byte, backend Backend, epochs int) (Receipt, error) {
	receipt, err := c.store(ctx, data, backend, epochs)
	if err != nil {
		promStores.WithLabelValues("error").Inc()
		return nil, err
	}

	promStores.WithLabelValues("success").Inc()

	c.logger.Info().
		Str("backend", backend.Name).
		Str("blob", receipt.GetBlobID()).
		Str("receipt", fmt.Sprintf("%T", receipt)).
		Msg("blob stored")

	return receipt, nil
}

func (c *Client) store(ctx context.Context, data []byte, backend Backend, epochs int) (Receipt, error) {
	if epochs <= 0 {
		return nil, xerrors.Errorf("invalid number of epochs %d", epochs)
	}

	if backend.PublisherURL == "" {
		return nil, xerrors.Errorf("backend '%s' has no publisher", backend.Name)
	}

	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", strings.TrimSuffix(backend.PublisherURL, "/"), epochs)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to store blob: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("failed to store blob: %v", httpjson.ReadError(resp, errorBodyLimit))
	}

	var sr StoreResponse

	err = json.NewDecoder(resp.Body).Decode(&sr)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode response: %v", err)
	}

	receipt, err := sr.Receipt()
	if err != nil {
		return nil, xerrors.Errorf("invalid response: %v", err)
	}

	return receipt, nil
}

// Fetch downloads a single blob from a random aggregator.
func (c *Client) Fetch(ctx context.Context, blobID string) ([]byte, error) {
	return c.fetchWithFallback(ctx, blobID)
}

// FetchMany downloads the blobs concurrently. A blob that fails or times out
// is counted as missing. It returns ErrNoBlobs only when every download
// failed.
func (c *Client) FetchMany(ctx context.Context, blobIDs []string) (FetchResult, error) {
	if len(blobIDs) == 0 {
		return FetchResult{}, nil
	}

	results := make(chan Blob, len(blobIDs))

	for _, id := range blobIDs {
		go func(id string) {
			data, err := c.fetchWithFallback(ctx, id)
			if err != nil {
				c.logger.Warn().Err(err).Str("blob", id).Msg("blob download failed")
				results <- Blob{ID: id}
				return
			}

			results <- Blob{ID: id, Data: data}
		}(id)
	}

	var res FetchResult

	for range blobIDs {
		blob := <-results
		if blob.Data == nil {
			res.Missing++
			continue
		}

		res.Blobs = append(res.Blobs, blob)
	}

	if len(res.Blobs) == 0 {
		return res, ErrNoBlobs
	}

	return res, nil
}

func (c *Client) fetchWithFallback(ctx context.Context, blobID string) ([]byte, error) {
	aggregators := c.aggregators()
	if len(aggregators) == 0 {
		return nil, xerrors.New("no aggregator")
	}

	var lastErr error

	for attempt := 0; attempt <= c.fallback && len(aggregators) > 0; attempt++ {
		i := c.pick(len(aggregators))
		aggregator := aggregators[i]

		aggregators = append(aggregators[:i:i], aggregators[i+1:]...)

		data, err := c.fetch(ctx, aggregator, blobID)
		if err == nil {
			promFetches.WithLabelValues("success").Inc()
			return data, nil
		}

		promFetches.WithLabelValues("error").Inc()
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, aggregator, blobID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Blob identifiers are read from the ledger and must stay one segment.
	target := fmt.Sprintf("%s/v1/blobs/%s", strings.TrimSuffix(aggregator, "/"), url.PathEscape(blobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch from '%s': %v", aggregator, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("failed to fetch from '%s': %v", aggregator,
			httpjson.ReadError(resp, errorBodyLimit))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read blob: %v", err)
	}

	return data, nil
}

func (c *Client) aggregators() []string {
	var res []string
	for _, backend := range c.backends {
		if backend.AggregatorURL != "" {
			res = append(res, backend.AggregatorURL)
		}
	}

	return res
}
