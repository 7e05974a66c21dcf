// Package watch keeps a feed fresh by polling the ledger. Observers are only
// notified when the feed changed since the last notification, for instance
// when a blob is published, a member is added or a subscription expires.
//
// Documentation Last Review: 19.10.2026
//
package watch

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/core"
	"go.dedis.ch/vault/feed"
	"go.dedis.ch/vault/ledger"
)

// DefaultInterval is the time between two polls.
const DefaultInterval = 3 * time.Second

// Source loads the feed of a policy for a viewer.
type Source interface {
	Load(ctx context.Context, policyID, viewer ledger.ID) (feed.Feed, error)
}

// Watcher polls the feed of a policy.
//
// - implements core.Observable
type Watcher struct {
	*core.Watcher[feed.Feed]

	source   Source
	policyID ledger.ID
	viewer   ledger.ID
	interval time.Duration
	logger   zerolog.Logger
}

// Option is the type of option to set some fields of a watcher.
type Option func(*Watcher)

// WithInterval sets the time between two polls.
func WithInterval(interval time.Duration) Option {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// NewWatcher returns a watcher of the feed of the policy for the viewer.
func NewWatcher(source Source, policyID, viewer ledger.ID, opts ...Option) *Watcher {
	w := &Watcher{
		Watcher:  core.NewWatcher[feed.Feed](),
		source:   source,
		policyID: policyID,
		viewer:   viewer,
		interval: DefaultInterval,
		logger: vault.Logger.With().
			Str("role", "watch").
			Stringer("policy", policyID).
			Logger(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run polls the feed until the context is done. The first successful poll is
// always notified. A failed poll is logged and the previous feed is kept.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last *feed.Feed

	for {
		f, err := w.source.Load(ctx, w.policyID, w.viewer)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.logger.Warn().Err(err).Msg("poll failed")
		} else if last == nil || changed(*last, f) {
			last = &f

			w.logger.Debug().
				Int("blobs", len(f.BlobIDs)).
				Bool("authorized", f.Decision.Authorized).
				Msg("feed changed")

			w.Notify(f)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// changed returns true when the content, the policy or the access of the
// feed differ. The order of the blobs and of the members is ignored.
func changed(prev, next feed.Feed) bool {
	if prev.Viewer != next.Viewer {
		return true
	}

	p, n := prev.Policy, next.Policy
	if p.Kind != n.Kind || p.ID != n.ID || p.Name != n.Name ||
		p.Fee != n.Fee || p.TTL != n.TTL || p.Owner != n.Owner {
		return true
	}

	if !slices.Equal(sortedIDs(p.Members), sortedIDs(n.Members)) {
		return true
	}

	if !slices.Equal(sortedBlobs(prev.BlobIDs), sortedBlobs(next.BlobIDs)) {
		return true
	}

	if prev.Decision.Authorized != next.Decision.Authorized {
		return true
	}

	if proofID(prev) != proofID(next) {
		return true
	}

	return capabilityID(prev) != capabilityID(next)
}

func sortedBlobs(ids []string) []string {
	ids = slices.Clone(ids)
	slices.Sort(ids)

	return ids
}

func sortedIDs(ids []ledger.ID) []ledger.ID {
	ids = slices.Clone(ids)
	slices.SortFunc(ids, func(a, b ledger.ID) int {
		return bytes.Compare(a[:], b[:])
	})

	return ids
}

func proofID(f feed.Feed) ledger.ID {
	if f.Decision.Proof == nil {
		return ledger.ID{}
	}

	return f.Decision.Proof.ID
}

func capabilityID(f feed.Feed) ledger.ID {
	if f.Capability == nil {
		return ledger.ID{}
	}

	return f.Capability.ID
}
