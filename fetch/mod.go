// Package fetch implements the read path of the vault: it downloads a set of
// encrypted blobs, retrieves the keys of their identifiers from the key
// servers by batches, and decrypts them locally.
//
// Downloads are concurrent and a failed blob is only counted as missing. Key
// retrieval on the other hand is all or nothing: a batch that is refused
// aborts the whole run, and keys retrieved for the previous batches are not
// used to return a partial result.
//
// The results are returned in the order the downloads completed, which is not
// the order of the requested identifiers.
//
// Documentation Last Review: 19.10.2026
//
package fetch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/content"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"go.dedis.ch/vault/seal"
	"go.dedis.ch/vault/walrus"
	"golang.org/x/xerrors"
)

// MaxBatchSize is the maximum number of identifiers for which keys are
// requested at once.
const MaxBatchSize = 10

// ErrTryAgain is returned when the keys could not be retrieved or the content
// could not be decrypted for another reason than a denied access.
var ErrTryAgain = xerrors.New("unable to decrypt files, try again")

var promRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "vault_fetch_runs_total",
	Help: "total number of fetch and decrypt runs by outcome",
}, []string{"outcome"})

func init() {
	vault.PromCollectors = append(vault.PromCollectors, promRuns)
}

// Downloader downloads blobs from the storage network.
type Downloader interface {
	FetchMany(ctx context.Context, blobIDs []string) (walrus.FetchResult, error)
}

// Decrypter retrieves the keys of identifiers and decrypts encrypted objects.
type Decrypter interface {
	FetchKeys(ctx context.Context, req seal.FetchKeysRequest) error
	Decrypt(ctx context.Context, req seal.DecryptRequest) ([]byte, error)
}

// KeySource provides the session key of a viewer, asking the wallet to sign
// a new one when necessary.
type KeySource interface {
	Acquire(ctx context.Context, viewer ledger.ID) (*seal.SessionKey, error)
}

// Request is the input of a run.
type Request struct {
	Viewer  ledger.ID
	BlobIDs []string

	// Approve appends the approval call of an identifier to the transaction
	// presented to the key servers.
	Approve policy.MoveCallConstructor
}

// Item is a decrypted blob.
type Item struct {
	BlobID  string
	Payload content.Payload
}

// Result is the output of a run. Missing counts the blobs that could not be
// downloaded or that are not encrypted objects.
type Result struct {
	Items   []Item
	Missing int
}

// Orchestrator runs the fetch and decrypt pipeline.
type Orchestrator struct {
	blobs     Downloader
	keys      Decrypter
	sessions  KeySource
	batchSize int
	logger    zerolog.Logger
}

// Option is the type of option to set some fields of an orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the number of identifiers per key request. Values above
// MaxBatchSize are ignored.
func WithBatchSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 && size <= MaxBatchSize {
			o.batchSize = size
		}
	}
}

// NewOrchestrator returns a new orchestrator.
func NewOrchestrator(blobs Downloader, keys Decrypter, sessions KeySource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		blobs:     blobs,
		keys:      keys,
		sessions:  sessions,
		batchSize: MaxBatchSize,
		logger:    vault.Logger.With().Str("role", "fetch").Logger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// sealed is a downloaded blob with its parsed encrypted object. The object is
// never separated from the data it was parsed from.
type sealed struct {
	blobID string
	data   []byte
	obj    seal.EncryptedObject
}

// Run downloads and decrypts the blobs of the request. It fails only when
// no blob could be downloaded, or when any key request or decryption fails.
// The wallet is asked at most once to sign a session key.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.BlobIDs) == 0 {
		return Result{}, nil
	}

	if req.Approve == nil {
		return Result{}, xerrors.New("missing approval constructor")
	}

	downloads, err := o.blobs.FetchMany(ctx, req.BlobIDs)
	if err != nil {
		promRuns.WithLabelValues("no_blobs").Inc()
		return Result{Missing: downloads.Missing}, xerrors.Errorf("failed to download: %w", err)
	}

	res := Result{Missing: downloads.Missing}

	items := make([]sealed, 0, len(downloads.Blobs))
	for _, blob := range downloads.Blobs {
		obj, err := seal.ParseEncryptedObject(blob.Data)
		if err != nil {
			o.logger.Warn().Err(err).Str("blob", blob.ID).Msg("blob is not an encrypted object")
			res.Missing++
			continue
		}

		items = append(items, sealed{blobID: blob.ID, data: blob.Data, obj: obj})
	}

	if len(items) == 0 {
		promRuns.WithLabelValues("no_blobs").Inc()
		return res, ErrTryAgain
	}

	sk, err := o.sessions.Acquire(ctx, req.Viewer)
	if err != nil {
		promRuns.WithLabelValues("session").Inc()
		return res, xerrors.Errorf("failed to acquire session key: %w", err)
	}

	for start := 0; start < len(items); start += o.batchSize {
		end := min(start+o.batchSize, len(items))

		err = o.fetchKeys(ctx, items[start:end], sk, req.Approve)
		if err != nil {
			o.logger.Warn().Err(err).Int("batch", start/o.batchSize).Msg("key request failed")
			return res, o.fail(err)
		}
	}

	res.Items = make([]Item, 0, len(items))

	for _, item := range items {
		plaintext, err := o.keys.Decrypt(ctx, seal.DecryptRequest{
			Data:       item.data,
			SessionKey: sk,
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("blob", item.blobID).Msg("decryption failed")
			return Result{Missing: res.Missing}, o.fail(err)
		}

		res.Items = append(res.Items, Item{
			BlobID:  item.blobID,
			Payload: content.Parse(plaintext),
		})
	}

	promRuns.WithLabelValues("success").Inc()

	o.logger.Debug().
		Int("decrypted", len(res.Items)).
		Int("missing", res.Missing).
		Msg("fetch done")

	return res, nil
}

// fetchKeys requests the keys of a batch with a single transaction that
// approves every identifier of the batch. Keys known from a previous run are
// never reused.
func (o *Orchestrator) fetchKeys(ctx context.Context, batch []sealed,
	sk *seal.SessionKey, approve policy.MoveCallConstructor) error {

	tx := ledger.NewTransaction()
	ids := make([][]byte, len(batch))
	threshold := 0

	for i, item := range batch {
		ids[i] = item.obj.ID
		approve(tx, item.obj.ID)

		if int(item.obj.Threshold) > threshold {
			threshold = int(item.obj.Threshold)
		}
	}

	txBytes, err := tx.Build(true)
	if err != nil {
		return xerrors.Errorf("failed to build approval: %v", err)
	}

	return o.keys.FetchKeys(ctx, seal.FetchKeysRequest{
		IDs:        ids,
		TxBytes:    txBytes,
		SessionKey: sk,
		Threshold:  threshold,
		Fresh:      true,
	})
}

// fail returns the user facing error of a failed key request or decryption.
func (o *Orchestrator) fail(err error) error {
	if xerrors.Is(err, seal.ErrNoAccess) {
		promRuns.WithLabelValues("no_access").Inc()
		return seal.ErrNoAccess
	}

	promRuns.WithLabelValues("error").Inc()

	return ErrTryAgain
}
