// Package ledgerhttp exposes a ledger over a JSON HTTP API, and implements the
// matching client. The faucet endpoints are only served when the ledger
// supports minting.
//
// Documentation Last Review: 15.09.2026
//
package ledgerhttp

import (
	"go.dedis.ch/vault/ledger"
)

const (
	errNotFound = "NotFound"
	errInvalid  = "InvalidRequest"
	errAborted  = "Aborted"
	errInternal = "Internal"
)

// Faucet is implemented by the development ledgers that can create coins.
type Faucet interface {
	Mint(addr ledger.ID, amount uint64) error
	Balance(addr ledger.ID) (uint64, error)
}

// Packager is implemented by the ledgers that know the package of the policy
// modules.
type Packager interface {
	Package() ledger.ID
}

// DryRunRequest is the body of a dry run.
type DryRunRequest struct {
	Sender ledger.ID `json:"sender"`
	Kind   []byte    `json:"kind"`
}

// MintRequest is the body of a faucet request.
type MintRequest struct {
	Address ledger.ID `json:"address"`
	Amount  uint64    `json:"amount"`
}

// BalanceResponse is the balance of an address.
type BalanceResponse struct {
	Address ledger.ID `json:"address"`
	Balance uint64    `json:"balance"`
}

// ClockResponse is the timestamp of the clock object.
type ClockResponse struct {
	TimestampMs uint64 `json:"timestamp_ms"`
}

// PackageResponse is the package of the policy modules.
type PackageResponse struct {
	Package ledger.ID `json:"package"`
}

var _ ledger.Client = (*Client)(nil)
