// Package chain defines network parameters for the supported UTXO chains.
// All chain-specific constants are hardcoded here - no external configuration
// needed.
package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// AddressType represents the address encoding format.
type AddressType string

const (
	AddressP2PKH AddressType = "p2pkh" // Legacy pay-to-pubkey-hash (1...)
	AddressP2SH  AddressType = "p2sh"  // Pay-to-script-hash (3...)
)

// Params contains all parameters for one chain/network pair.
type Params struct {
	// Identity
	Symbol   string // BTC, LTC, DOGE
	Name     string // Bitcoin, Litecoin, ...
	Decimals uint8  // 8 for all supported chains

	// BIP44 derivation
	CoinType       uint32 // BIP44 coin type (0=BTC, 2=LTC, 3=DOGE; 1 on testnets)
	DefaultPurpose uint32 // 44 (legacy P2PKH, the swap script type)

	// Address version bytes
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	WIF              byte

	// BIP32 HD key magic bytes (xpub/xprv serialization)
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// Fee model byte sizes for a legacy spend of this chain's default
	// script type.
	BytesPerInput  uint64
	BytesPerOutput uint64
	TxOverhead     uint64

	// Block explorer base URL, for operator-facing links in logs and CLI
	// output.
	ExplorerURL string
}

// DerivationPath returns the BIP44 path purpose'/coin'/account'/change/index.
func (p *Params) DerivationPath(account, change, index uint32) string {
	return fmt.Sprintf("%d'/%d'/%d'/%d/%d",
		p.DefaultPurpose, p.CoinType, account, change, index)
}

// AddressTypeOf classifies an address version byte against these params.
// Returns false for any version byte that is neither the pubkey-hash nor the
// script-hash version of this network.
func (p *Params) AddressTypeOf(version byte) (AddressType, bool) {
	switch version {
	case p.PubKeyHashAddrID:
		return AddressP2PKH, true
	case p.ScriptHashAddrID:
		return AddressP2SH, true
	default:
		return "", false
	}
}

// ChainCfg converts these params to btcd chaincfg.Params for use with
// btcutil address codecs and txscript.
func (p *Params) ChainCfg() *chaincfg.Params {
	return &chaincfg.Params{
		Name:             p.Name,
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.WIF,
		HDPrivateKeyID:   p.HDPrivateKeyID,
		HDPublicKeyID:    p.HDPublicKeyID,
	}
}

// ExplorerTxURL returns the explorer link for a transaction id, or the bare
// id when no explorer is configured.
func (p *Params) ExplorerTxURL(txID string) string {
	if p.ExplorerURL == "" {
		return txID
	}
	return p.ExplorerURL + "/tx/" + txID
}

// Registry holds all chain parameters indexed by symbol and network.
var registry = make(map[string]map[Network]*Params)

// Register adds chain params to the registry.
func Register(symbol string, network Network, params *Params) {
	if registry[symbol] == nil {
		registry[symbol] = make(map[Network]*Params)
	}
	registry[symbol][network] = params
}

// Get returns chain params for a symbol and network.
func Get(symbol string, network Network) (*Params, bool) {
	nets, ok := registry[symbol]
	if !ok {
		return nil, false
	}
	params, ok := nets[network]
	return params, ok
}

// List returns all registered chain symbols.
func List() []string {
	symbols := make([]string, 0, len(registry))
	for symbol := range registry {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// IsSupported returns true if the chain is registered.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}
