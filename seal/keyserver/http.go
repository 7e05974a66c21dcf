package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.dedis.ch/vault/internal/httpjson"
	"go.dedis.ch/vault/seal"
	"golang.org/x/xerrors"
)

const (
	pathService  = "/v1/service"
	pathFetchKey = "/v1/fetch_key"

	errNoAccess       = "NoAccess"
	errInvalidRequest = "InvalidRequest"
	errInternal       = "Internal"
)

// NewHandler returns the HTTP surface of the key server.
func NewHandler(s *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+pathService, func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Info()
		if err != nil {
			httpjson.WriteError(w, http.StatusInternalServerError, errInternal, err)
			return
		}

		httpjson.Write(w, http.StatusOK, info)
	})

	mux.HandleFunc("POST "+pathFetchKey, func(w http.ResponseWriter, r *http.Request) {
		var req seal.FetchKeyRequest

		err := httpjson.Decode(w, r, &req)
		if err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, errInvalidRequest, err)
			return
		}

		resp, err := s.FetchKey(r.Context(), &req)
		switch {
		case err == nil:
			httpjson.Write(w, http.StatusOK, resp)
		case xerrors.Is(err, seal.ErrNoAccess):
			httpjson.WriteError(w, http.StatusForbidden, errNoAccess, err)
		case xerrors.Is(err, ErrInvalidRequest):
			httpjson.WriteError(w, http.StatusBadRequest, errInvalidRequest, err)
		default:
			httpjson.WriteError(w, http.StatusInternalServerError, errInternal, err)
		}
	})

	return mux
}

// Client is the connection to a key server over HTTP.
//
// - implements seal.KeyServer
type Client struct {
	url    string
	client *http.Client
}

// NewClient returns a client of the key server at the base URL.
func NewClient(url string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		client: client,
	}
}

// Service returns the description of the key server.
func (c *Client) Service(ctx context.Context) (seal.ServiceInfo, error) {
	var info seal.ServiceInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+pathService, nil)
	if err != nil {
		return info, xerrors.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return info, xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, xerrors.Errorf("unexpected answer: %v", httpjson.ReadError(resp, 100))
	}

	err = json.NewDecoder(resp.Body).Decode(&info)
	if err != nil {
		return info, xerrors.Errorf("failed to decode service: %v", err)
	}

	return info, nil
}

// FetchKey implements seal.KeyServer. A refusal of the key server is returned
// as seal.ErrNoAccess.
func (c *Client) FetchKey(ctx context.Context, fkr *seal.FetchKeyRequest) (*seal.FetchKeyResponse, error) {
	body, err := json.Marshal(fkr)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+pathFetchKey,
		bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		msg, _ := httpjson.ReadErrorBody(resp)
		return nil, xerrors.Errorf("%s: %w", msg.Message, seal.ErrNoAccess)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("unexpected answer: %v", httpjson.ReadError(resp, 100))
	}

	var fkResp seal.FetchKeyResponse

	err = json.NewDecoder(resp.Body).Decode(&fkResp)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode response: %v", err)
	}

	return &fkResp, nil
}

// Connect returns the key servers at the URLs as seen by a client.
func Connect(ctx context.Context, urls []string, client *http.Client) ([]seal.Server, error) {
	servers := make([]seal.Server, len(urls))

	for i, url := range urls {
		conn := NewClient(url, client)

		info, err := conn.Service(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to reach key server '%s': %v", url, err)
		}

		pubkey := seal.Suite().G2().Point()

		err = pubkey.UnmarshalBinary(info.PublicKey)
		if err != nil {
			return nil, xerrors.Errorf("invalid public key of '%s': %v", url, err)
		}

		if ObjectIDOf(pubkey) != info.ObjectID {
			return nil, xerrors.Errorf("key server '%s' announces a foreign identifier", url)
		}

		servers[i] = seal.Server{
			ObjectID:  info.ObjectID,
			PublicKey: pubkey,
			Conn:      conn,
		}
	}

	return servers, nil
}
