package ledgerhttp

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.dedis.ch/vault"
	"go.dedis.ch/vault/internal/httpjson"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

type server struct {
	ledger ledger.Client
	logger zerolog.Logger
}

// NewHandler returns the HTTP surface of the ledger.
func NewHandler(l ledger.Client) http.Handler {
	s := server{
		ledger: l,
		logger: vault.Logger.With().Str("role", "ledger http").Logger(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/objects/{id}", s.getObject)
	mux.HandleFunc("GET /v1/objects/{id}/fields", s.getFields)
	mux.HandleFunc("GET /v1/owners/{owner}/objects", s.getOwned)
	mux.HandleFunc("GET /v1/clock", s.getClock)
	mux.HandleFunc("POST /v1/dry_run", s.dryRun)
	mux.HandleFunc("POST /v1/execute", s.execute)

	pkg, ok := l.(Packager)
	if ok {
		mux.HandleFunc("GET /v1/package", func(w http.ResponseWriter, r *http.Request) {
			httpjson.Write(w, http.StatusOK, PackageResponse{Package: pkg.Package()})
		})
	}

	faucet, ok := l.(Faucet)
	if ok {
		mux.HandleFunc("POST /v1/faucet", s.mint(faucet))
		mux.HandleFunc("GET /v1/balances/{address}", s.balance(faucet))
	}

	return mux
}

func (s server) getObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	obj, err := s.ledger.GetObject(r.Context(), id)
	if xerrors.Is(err, ledger.ErrNotFound) {
		httpjson.WriteError(w, http.StatusNotFound, errNotFound, err)
		return
	}

	if err != nil {
		s.internal(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, obj)
}

func (s server) getFields(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	fields, err := s.ledger.GetDynamicFields(r.Context(), id)
	if err != nil {
		s.internal(w, err)
		return
	}

	if fields == nil {
		fields = []ledger.DynamicField{}
	}

	httpjson.Write(w, http.StatusOK, fields)
}

func (s server) getOwned(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathID(w, r, "owner")
	if !ok {
		return
	}

	objs, err := s.ledger.GetOwnedObjects(r.Context(), owner, r.URL.Query().Get("type"))
	if err != nil {
		s.internal(w, err)
		return
	}

	if objs == nil {
		objs = []ledger.Object{}
	}

	httpjson.Write(w, http.StatusOK, objs)
}

func (s server) getClock(w http.ResponseWriter, r *http.Request) {
	now, err := s.ledger.ReadClock(r.Context())
	if err != nil {
		s.internal(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, ClockResponse{TimestampMs: now})
}

func (s server) dryRun(w http.ResponseWriter, r *http.Request) {
	var req DryRunRequest

	err := httpjson.Decode(w, r, &req)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, errInvalid, err)
		return
	}

	err = s.ledger.DryRun(r.Context(), req.Sender, req.Kind)
	if err != nil {
		httpjson.WriteError(w, http.StatusConflict, errAborted, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s server) execute(w http.ResponseWriter, r *http.Request) {
	var req ledger.SignedTransaction

	err := httpjson.Decode(w, r, &req)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, errInvalid, err)
		return
	}

	receipt, err := s.ledger.Execute(r.Context(), req)
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, errInvalid, err)
		return
	}

	httpjson.Write(w, http.StatusOK, receipt)
}

func (s server) mint(faucet Faucet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MintRequest

		err := httpjson.Decode(w, r, &req)
		if err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, errInvalid, err)
			return
		}

		err = faucet.Mint(req.Address, req.Amount)
		if err != nil {
			s.internal(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s server) balance(faucet Faucet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := pathID(w, r, "address")
		if !ok {
			return
		}

		balance, err := faucet.Balance(addr)
		if err != nil {
			s.internal(w, err)
			return
		}

		httpjson.Write(w, http.StatusOK, BalanceResponse{Address: addr, Balance: balance})
	}
}

func (s server) internal(w http.ResponseWriter, err error) {
	s.logger.Err(err).Msg("request failed")
	httpjson.WriteError(w, http.StatusInternalServerError, errInternal, err)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (ledger.ID, bool) {
	id, err := ledger.ParseID(r.PathValue(name))
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, errInvalid, err)
		return ledger.ID{}, false
	}

	return id, true
}
