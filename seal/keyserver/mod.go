// Package keyserver implements a key server of the threshold encryption. It
// releases the user secret key of an identity only if the ledger approves the
// read-only transaction presented by the user, and only to the session key
// the user has signed.
//
// Documentation Last Review: 15.09.2026
//
package keyserver

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/crypto"
	"go.dedis.ch/vault/crypto/loader"
	"go.dedis.ch/vault/ledger"
	"go.dedis.ch/vault/seal"
	"golang.org/x/xerrors"
)

// ErrInvalidRequest is returned when the request is malformed.
var ErrInvalidRequest = xerrors.New("invalid request")

var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "vault_keyserver_requests_total",
	Help: "total number of key requests received by outcome",
}, []string{"outcome"})

func init() {
	vault.PromCollectors = append(vault.PromCollectors, promRequests)
}

// Service is a key server.
//
// - implements seal.KeyServer
type Service struct {
	objectID ledger.ID
	master   kyber.Scalar
	pubkey   kyber.Point
	ledger   ledger.DryRunner
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService returns a key server of the master key that asks the ledger to
// approve the requests.
func NewService(master kyber.Scalar, l ledger.DryRunner) *Service {
	pubkey := seal.Suite().G2().Point().Mul(master, nil)
	objectID := ObjectIDOf(pubkey)

	return &Service{
		objectID: objectID,
		master:   master,
		pubkey:   pubkey,
		ledger:   l,
		logger: vault.Logger.With().
			Str("role", "key server").
			Stringer("service", objectID).Logger(),
		now: time.Now,
	}
}

// ObjectIDOf returns the identifier of the key server of the public key.
func ObjectIDOf(pubkey kyber.Point) ledger.ID {
	buffer, _ := pubkey.MarshalBinary()

	id, _ := ledger.IDFromBytes(crypto.Hash256([]byte("key server"), buffer))

	return id
}

// LoadMasterKey returns the master key stored by the loader, or a new one.
func LoadMasterKey(l loader.Loader) (kyber.Scalar, error) {
	gen := loader.GeneratorFunc(func() ([]byte, error) {
		master, _ := seal.NewMasterKey()
		return master.MarshalBinary()
	})

	data, err := l.LoadOrCreate(gen)
	if err != nil {
		return nil, xerrors.Errorf("failed to load master key: %v", err)
	}

	master := seal.Suite().G2().Scalar()

	err = master.UnmarshalBinary(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal master key: %v", err)
	}

	return master, nil
}

// ObjectID returns the identifier of the key server.
func (s *Service) ObjectID() ledger.ID {
	return s.objectID
}

// PublicKey returns the public key of the key server.
func (s *Service) PublicKey() kyber.Point {
	return s.pubkey
}

// Info returns the description of the key server.
func (s *Service) Info() (seal.ServiceInfo, error) {
	buffer, err := s.pubkey.MarshalBinary()
	if err != nil {
		return seal.ServiceInfo{}, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	return seal.ServiceInfo{ObjectID: s.objectID, PublicKey: buffer}, nil
}

// AsServer returns the key server as seen by a client in the same process.
func (s *Service) AsServer() seal.Server {
	return seal.Server{ObjectID: s.objectID, PublicKey: s.pubkey, Conn: s}
}

// FetchKey implements seal.KeyServer. It validates the request and returns
// the encrypted user secret keys of every identifier approved by the
// transaction.
func (s *Service) FetchKey(ctx context.Context, req *seal.FetchKeyRequest) (*seal.FetchKeyResponse, error) {
	pkg, ids, err := s.validate(ctx, req)
	if err != nil {
		if xerrors.Is(err, seal.ErrNoAccess) {
			promRequests.WithLabelValues("denied").Inc()
		} else {
			promRequests.WithLabelValues("invalid").Inc()
		}

		s.logger.Info().Err(err).Stringer("user", req.Certificate.User).Msg("request refused")

		return nil, err
	}

	resp := &seal.FetchKeyResponse{}

	for _, id := range ids {
		identity := append(pkg.Bytes(), id...)
		usk := seal.ExtractKey(s.master, identity)

		c1, c2, err := seal.EncryptKey(usk, req.EncKey, req.EncVerificationKey)
		if err != nil {
			promRequests.WithLabelValues("invalid").Inc()
			return nil, xerrors.Errorf("failed to encrypt key: %v: %w", err, ErrInvalidRequest)
		}

		resp.Keys = append(resp.Keys, seal.DecryptionKey{ID: id, C1: c1, C2: c2})
	}

	promRequests.WithLabelValues("success").Inc()

	s.logger.Debug().
		Stringer("user", req.Certificate.User).
		Int("keys", len(resp.Keys)).
		Msg("keys released")

	return resp, nil
}

// validate returns the package and the identifiers of the request once the
// ledger approved the transaction for the user of the certificate.
func (s *Service) validate(ctx context.Context, req *seal.FetchKeyRequest) (ledger.ID, [][]byte, error) {
	pkg, ids, err := parseApproval(req.PTB)
	if err != nil {
		return pkg, nil, xerrors.Errorf("invalid transaction (%v): %w", err, ErrInvalidRequest)
	}

	err = req.Certificate.Verify(pkg, s.now())
	if err != nil {
		return pkg, nil, xerrors.Errorf("invalid certificate (%v): %w", err, seal.ErrNoAccess)
	}

	err = req.Certificate.VerifyRequest(req)
	if err != nil {
		return pkg, nil, xerrors.Errorf("invalid request (%v): %w", err, seal.ErrNoAccess)
	}

	err = s.ledger.DryRun(ctx, req.Certificate.User, req.PTB)
	if err != nil {
		return pkg, nil, xerrors.Errorf("ledger did not approve (%v): %w", err, seal.ErrNoAccess)
	}

	return pkg, ids, nil
}

// parseApproval checks that the transaction only calls the approval functions
// of a single package, and returns the identifiers they are called with.
func parseApproval(ptb []byte) (ledger.ID, [][]byte, error) {
	td, err := ledger.ParseTransaction(ptb)
	if err != nil {
		return ledger.ID{}, nil, err
	}

	if td.Sender != nil {
		return ledger.ID{}, nil, xerrors.New("expected a transaction kind")
	}

	var pkg ledger.ID
	var ids [][]byte
	seen := make(map[string]struct{})

	for i, call := range td.Calls {
		callPkg, _, fn, err := ledger.ParseTarget(call.Target)
		if err != nil {
			return ledger.ID{}, nil, err
		}

		if i == 0 {
			pkg = callPkg
		} else if callPkg != pkg {
			return ledger.ID{}, nil, xerrors.Errorf("call %d is for package %v instead of %v",
				i, callPkg, pkg)
		}

		if !strings.HasPrefix(fn, "seal_approve") {
			return ledger.ID{}, nil, xerrors.Errorf("call %d to '%s' is not an approval", i, fn)
		}

		if len(call.Arguments) == 0 || call.Arguments[0].Kind != ledger.ArgPure ||
			len(call.Arguments[0].Pure) == 0 {
			return ledger.ID{}, nil, xerrors.Errorf("call %d has no identifier", i)
		}

		id := call.Arguments[0].Pure

		_, found := seen[string(id)]
		if !found {
			seen[string(id)] = struct{}{}
			ids = append(ids, id)
		}
	}

	return pkg, ids, nil
}
