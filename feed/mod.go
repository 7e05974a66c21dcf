// Package feed gathers what a viewer needs to browse the content of a
// policy: the policy itself, the blobs published under it, whether the viewer
// should be able to read them and whether the viewer administrates it.
//
// Viewing a feed refuses early when the advisory decision is negative, so
// that no session key is signed and no key server is contacted for content
// the viewer cannot read. A positive decision is not trusted either: the key
// servers check every request against the ledger.
//
// Documentation Last Review: 06.10.2026
//
package feed

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/access"
	"go.dedis.ch/vault/cache"
	"go.dedis.ch/vault/content"
	"go.dedis.ch/vault/fetch"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/policy"
	"golang.org/x/xerrors"
)

var (
	// ErrNotAuthorized is returned when the viewer is not on the allowlist.
	ErrNotAuthorized = xerrors.New("you are not on the allowlist of this content")

	// ErrSubscriptionRequired is returned when the viewer has no valid
	// subscription to the service.
	ErrSubscriptionRequired = xerrors.New("an active subscription is required to view this content")
)

// Feed is the snapshot of a policy for a viewer.
type Feed struct {
	Viewer   ledger.ID
	Policy   policy.Policy
	BlobIDs  []string
	Decision access.Decision

	// Capability is set when the viewer administrates the policy.
	Capability *policy.Cap
}

// Loader reads feeds from the ledger.
type Loader struct {
	resolver *access.Resolver
	ledger   ledger.Reader
}

// NewLoader returns a loader for the policies of the package.
func NewLoader(l ledger.Reader, pkg ledger.ID) *Loader {
	return &Loader{
		resolver: access.NewResolver(l, pkg),
		ledger:   l,
	}
}

// Resolver returns the access resolver of the loader.
func (l *Loader) Resolver() *access.Resolver {
	return l.resolver
}

// Load returns the feed of the policy for the viewer.
func (l *Loader) Load(ctx context.Context, policyID, viewer ledger.ID) (Feed, error) {
	p, d, err := l.resolver.Resolve(ctx, viewer, policyID)
	if err != nil {
		return Feed{}, xerrors.Errorf("failed to resolve access: %w", err)
	}

	fields, err := l.ledger.GetDynamicFields(ctx, policyID)
	if err != nil {
		return Feed{}, xerrors.Errorf("failed to read blobs: %v", err)
	}

	f := Feed{
		Viewer:   viewer,
		Policy:   p,
		BlobIDs:  make([]string, len(fields)),
		Decision: d,
	}

	for i, field := range fields {
		f.BlobIDs[i] = field.Name
	}

	capability, found, err := l.resolver.FindCapability(ctx, viewer, p)
	if err != nil {
		return Feed{}, err
	}

	if found {
		f.Capability = &capability
	}

	return f, nil
}

// Runner runs the fetch and decrypt pipeline.
type Runner interface {
	Run(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// Viewer decrypts the content of feeds.
type Viewer struct {
	resolver *access.Resolver
	runner   Runner
	cache    cache.Cache
	logger   zerolog.Logger
}

// ViewerOption is the type of option to set some fields of a viewer.
type ViewerOption func(*Viewer)

// WithCache sets the cache of the decrypted content.
func WithCache(c cache.Cache) ViewerOption {
	return func(v *Viewer) {
		v.cache = c
	}
}

// NewViewer returns a viewer that builds the approvals with the resolver and
// decrypts with the runner.
func NewViewer(resolver *access.Resolver, runner Runner, opts ...ViewerOption) *Viewer {
	v := &Viewer{
		resolver: resolver,
		runner:   runner,
		logger:   vault.Logger.With().Str("role", "viewer").Logger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// View decrypts the content of the feed. It fails without contacting anyone
// when the decision of the feed is negative.
func (v *Viewer) View(ctx context.Context, f Feed) (fetch.Result, error) {
	key := cacheKey(f)

	if !f.Decision.Authorized {
		v.invalidate(ctx, key)

		if f.Policy.Kind == policy.KindSubscription {
			return fetch.Result{}, ErrSubscriptionRequired
		}

		return fetch.Result{}, ErrNotAuthorized
	}

	if len(f.BlobIDs) == 0 {
		return fetch.Result{}, nil
	}

	res, found := v.lookup(ctx, key, f.BlobIDs)
	if found {
		return res, nil
	}

	approve, err := v.resolver.Approver(f.Policy, f.Decision)
	if err != nil {
		return fetch.Result{}, xerrors.Errorf("failed to build approval: %v", err)
	}

	res, err = v.runner.Run(ctx, fetch.Request{
		Viewer:  f.Viewer,
		BlobIDs: f.BlobIDs,
		Approve: approve,
	})
	if err != nil {
		return res, err
	}

	if res.Missing == 0 {
		v.store(ctx, key, f.BlobIDs, res)
	}

	return res, nil
}

type entry struct {
	BlobIDs []string    `json:"blobs"`
	Items   []entryItem `json:"items"`
}

type entryItem struct {
	BlobID string `json:"blob"`
	Type   string `json:"type"`
	Data   []byte `json:"data"`
}

func cacheKey(f Feed) string {
	return "feed:" + f.Policy.ID.String() + ":" + f.Viewer.String()
}

// lookup returns the cached result of the feed when it was computed for the
// same set of blobs.
func (v *Viewer) lookup(ctx context.Context, key string, blobIDs []string) (fetch.Result, bool) {
	if v.cache == nil {
		return fetch.Result{}, false
	}

	data, err := v.cache.Get(ctx, key)
	if err != nil {
		if !xerrors.Is(err, cache.ErrMiss) {
			v.logger.Warn().Err(err).Msg("cache lookup failed")
		}

		return fetch.Result{}, false
	}

	var e entry

	err = json.Unmarshal(data, &e)
	if err != nil || !sameSet(e.BlobIDs, blobIDs) {
		return fetch.Result{}, false
	}

	res := fetch.Result{Items: make([]fetch.Item, len(e.Items))}
	for i, item := range e.Items {
		res.Items[i] = fetch.Item{
			BlobID:  item.BlobID,
			Payload: content.Payload{Type: item.Type, Data: item.Data},
		}
	}

	return res, true
}

func (v *Viewer) store(ctx context.Context, key string, blobIDs []string, res fetch.Result) {
	if v.cache == nil {
		return
	}

	e := entry{
		BlobIDs: blobIDs,
		Items:   make([]entryItem, len(res.Items)),
	}

	for i, item := range res.Items {
		e.Items[i] = entryItem{
			BlobID: item.BlobID,
			Type:   item.Payload.Type,
			Data:   item.Payload.Data,
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to encode cache entry")
		return
	}

	err = v.cache.Set(ctx, key, data)
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to store cache entry")
	}
}

func (v *Viewer) invalidate(ctx context.Context, key string) {
	if v.cache == nil {
		return
	}

	err := v.cache.Invalidate(ctx, key)
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to invalidate cache entry")
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	a = append([]string{}, a...)
	b = append([]string{}, b...)

	sort.Strings(a)
	sort.Strings(b)

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
