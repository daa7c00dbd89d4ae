// Package backend provides block-explorer API clients for fetching chain
// data and broadcasting transactions. This package never sees private keys -
// all signing happens behind the device package.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/7flash/chainabstractionlayer/internal/chain"
)

// Common errors.
var (
	ErrNotConnected    = errors.New("backend not connected")
	ErrTxNotFound      = errors.New("transaction not found")
	ErrAddressNotFound = errors.New("address not found")
	ErrRateLimited     = errors.New("rate limited")
)

// BroadcastError is returned when a node rejects a transaction. Permanent
// rejections (malformed transaction, failed script) will never succeed on
// retry; transient ones (fee too low, mempool conflict) may.
type BroadcastError struct {
	Reason    string
	Permanent bool
}

func (e *BroadcastError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("broadcast rejected (%s): %s", kind, e.Reason)
}

// permanentRejections are node rejection fragments that indicate the
// transaction itself is invalid.
var permanentRejections = []string{
	"bad-txns",
	"mandatory-script-verify-flag",
	"non-mandatory-script-verify-flag",
	"dust",
	"scriptsig",
	"decode failed",
	"TX decode failed",
	"non-final",
}

// classifyBroadcast turns a node rejection message into a BroadcastError.
func classifyBroadcast(reason string) *BroadcastError {
	lower := strings.ToLower(reason)
	for _, frag := range permanentRejections {
		if strings.Contains(lower, strings.ToLower(frag)) {
			return &BroadcastError{Reason: reason, Permanent: true}
		}
	}
	return &BroadcastError{Reason: reason}
}

// Type represents the backend type.
type Type string

const (
	TypeMempool   Type = "mempool"   // mempool.space API
	TypeEsplora   Type = "esplora"   // blockstream.info API
	TypeBlockbook Type = "blockbook" // Trezor Blockbook
)

// UTXO is an unspent transaction output as reported by a backend.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"value"` // smallest unit
	Confirmations int64  `json:"confirmations"`
	BlockHeight   int64  `json:"block_height,omitempty"`
}

// TxInput is a transaction input.
type TxInput struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ScriptSig string `json:"scriptsig,omitempty"` // hex
	Sequence  uint32 `json:"sequence"`
}

// TxOutput is a transaction output.
type TxOutput struct {
	ScriptPubKey string `json:"scriptpubkey"` // hex
	Value        uint64 `json:"value"`
}

// Transaction is a chain transaction.
type Transaction struct {
	TxID          string     `json:"txid"`
	Version       int32      `json:"version"`
	LockTime      uint32     `json:"locktime"`
	Hex           string     `json:"hex,omitempty"`
	Confirmed     bool       `json:"confirmed"`
	BlockHeight   int64      `json:"block_height,omitempty"`
	Confirmations int64      `json:"confirmations"`
	Inputs        []TxInput  `json:"vin"`
	Outputs       []TxOutput `json:"vout"`
}

// AddressInfo contains address activity summary.
type AddressInfo struct {
	Address string `json:"address"`
	TxCount int64  `json:"tx_count"`
	Balance uint64 `json:"balance"`
}

// FeeEstimate contains fee estimation for different confirmation targets,
// in smallest unit per byte.
type FeeEstimate struct {
	FastestFee uint64 `json:"fastest_fee"`
	HourFee    uint64 `json:"hour_fee"`
	EconomyFee uint64 `json:"economy_fee"`
	MinimumFee uint64 `json:"minimum_fee"`
}

// Backend is the node-query interface. All methods are read-only except
// BroadcastTransaction.
type Backend interface {
	// Type returns the backend type (mempool, esplora, blockbook).
	Type() Type

	// Connect establishes/tests the connection.
	Connect(ctx context.Context) error

	// Close closes the connection.
	Close() error

	// Address operations
	GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error)
	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetAddressTxs(ctx context.Context, address string) ([]Transaction, error)

	// Transaction operations
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetRawTransaction(ctx context.Context, txID string) (string, error)
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)

	// Chain state
	GetBlockHeight(ctx context.Context) (int64, error)
	GetFeeEstimates(ctx context.Context) (*FeeEstimate, error)
}

// Config contains backend configuration.
type Config struct {
	Type       Type   `yaml:"type"`
	MainnetURL string `yaml:"mainnet"`
	TestnetURL string `yaml:"testnet"`
	Timeout    int    `yaml:"timeout,omitempty"` // seconds, default 30
}

// DefaultConfigs returns default backend configurations for the supported
// chains.
func DefaultConfigs() map[string]*Config {
	return map[string]*Config{
		"BTC": {
			Type:       TypeMempool,
			MainnetURL: "https://mempool.space/api",
			TestnetURL: "https://mempool.space/testnet/api",
		},
		"LTC": {
			Type:       TypeMempool,
			MainnetURL: "https://litecoinspace.org/api",
			TestnetURL: "https://litecoinspace.org/testnet/api",
		},
		"DOGE": {
			Type:       TypeBlockbook,
			MainnetURL: "https://doge1.trezor.io/api/v2",
			TestnetURL: "https://doge1.trezor.io/api/v2", // no public testnet instance
		},
	}
}

// NewFromConfig builds a backend for a chain symbol and network.
func NewFromConfig(cfg *Config, network chain.Network) (Backend, error) {
	url := cfg.MainnetURL
	if network == chain.Testnet {
		url = cfg.TestnetURL
	}
	if url == "" {
		return nil, fmt.Errorf("no %s URL configured", network)
	}

	switch cfg.Type {
	case TypeMempool:
		return NewMempoolBackend(url), nil
	case TypeEsplora:
		return NewEsploraBackend(url), nil
	case TypeBlockbook:
		return NewBlockbookBackend(url), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}
