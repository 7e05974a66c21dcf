package ledgerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.dedis.ch/vault/internal/httpjson"
	"go.dedis.ch/vault/ledger"
	"golang.org/x/xerrors"
)

const errorLimit = 512

// Client is a ledger client over HTTP.
//
// - implements ledger.Client
type Client struct {
	url    string
	client *http.Client
}

// NewClient returns a client of the ledger at the base URL.
func NewClient(url string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		url:    strings.TrimSuffix(url, "/"),
		client: client,
	}
}

// GetObject implements ledger.Reader.
func (c *Client) GetObject(ctx context.Context, id ledger.ID) (ledger.Object, error) {
	var obj ledger.Object

	err := c.do(ctx, http.MethodGet, "/v1/objects/"+id.String(), nil, &obj)
	if err != nil {
		return ledger.Object{}, xerrors.Errorf("failed to get object: %w", err)
	}

	return obj, nil
}

// GetOwnedObjects implements ledger.Reader.
func (c *Client) GetOwnedObjects(ctx context.Context, owner ledger.ID,
	structType string) ([]ledger.Object, error) {

	path := "/v1/owners/" + owner.String() + "/objects"
	if structType != "" {
		path += "?type=" + url.QueryEscape(structType)
	}

	var objs []ledger.Object

	err := c.do(ctx, http.MethodGet, path, nil, &objs)
	if err != nil {
		return nil, xerrors.Errorf("failed to get owned objects: %v", err)
	}

	return objs, nil
}

// GetDynamicFields implements ledger.Reader.
func (c *Client) GetDynamicFields(ctx context.Context, parent ledger.ID) ([]ledger.DynamicField, error) {
	var fields []ledger.DynamicField

	err := c.do(ctx, http.MethodGet, "/v1/objects/"+parent.String()+"/fields", nil, &fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to get fields: %v", err)
	}

	return fields, nil
}

// ReadClock implements ledger.Reader.
func (c *Client) ReadClock(ctx context.Context) (uint64, error) {
	var resp ClockResponse

	err := c.do(ctx, http.MethodGet, "/v1/clock", nil, &resp)
	if err != nil {
		return 0, xerrors.Errorf("failed to read clock: %v", err)
	}

	return resp.TimestampMs, nil
}

// DryRun implements ledger.DryRunner.
func (c *Client) DryRun(ctx context.Context, sender ledger.ID, kind []byte) error {
	err := c.do(ctx, http.MethodPost, "/v1/dry_run", DryRunRequest{Sender: sender, Kind: kind}, nil)
	if err != nil {
		return xerrors.Errorf("dry run: %v", err)
	}

	return nil
}

// Execute implements ledger.Client.
func (c *Client) Execute(ctx context.Context, tx ledger.SignedTransaction) (ledger.Receipt, error) {
	var receipt ledger.Receipt

	err := c.do(ctx, http.MethodPost, "/v1/execute", tx, &receipt)
	if err != nil {
		return ledger.Receipt{}, xerrors.Errorf("failed to execute: %v", err)
	}

	return receipt, nil
}

// Package returns the package of the policy modules.
func (c *Client) Package(ctx context.Context) (ledger.ID, error) {
	var resp PackageResponse

	err := c.do(ctx, http.MethodGet, "/v1/package", nil, &resp)
	if err != nil {
		return ledger.ID{}, xerrors.Errorf("failed to get package: %v", err)
	}

	return resp.Package, nil
}

// Mint asks the faucet to credit the address.
func (c *Client) Mint(ctx context.Context, addr ledger.ID, amount uint64) error {
	err := c.do(ctx, http.MethodPost, "/v1/faucet", MintRequest{Address: addr, Amount: amount}, nil)
	if err != nil {
		return xerrors.Errorf("failed to mint: %v", err)
	}

	return nil
}

// Balance returns the balance of the address.
func (c *Client) Balance(ctx context.Context, addr ledger.ID) (uint64, error) {
	var resp BalanceResponse

	err := c.do(ctx, http.MethodGet, "/v1/balances/"+addr.String(), nil, &resp)
	if err != nil {
		return 0, xerrors.Errorf("failed to get balance: %v", err)
	}

	return resp.Balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return xerrors.Errorf("failed to encode request: %v", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ledger.ErrNotFound
	case resp.StatusCode >= 300:
		errBody, ok := httpjson.ReadErrorBody(resp)
		if ok {
			return xerrors.Errorf("%s: %s", errBody.Error, errBody.Message)
		}

		return httpjson.StatusError{Code: resp.StatusCode}
	case out == nil:
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return xerrors.Errorf("failed to decode response: %v", err)
	}

	return nil
}
