package wallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/internal/device"
	"github.com/7flash/chainabstractionlayer/pkg/helpers"
	"github.com/7flash/chainabstractionlayer/pkg/logging"
)

// ErrNoUnusedAddress is returned when the bounded derivation scan finds no
// unused address.
var ErrNoUnusedAddress = errors.New("no unused address found within scan limit")

// DefaultGapLimit is the BIP44 address gap: the scan stops after this many
// consecutive addresses with no history.
const DefaultGapLimit = 20

// Provider is the wallet capability provider. Addresses come from a BIP44
// external chain (change=0) under one account; every private-key operation
// goes through the signing device.
type Provider struct {
	dev     device.Device
	params  *chain.Params
	account uint32
	gap     uint32

	client *client.Client
	logger *logging.Logger

	mu        sync.Mutex
	addrCache map[uint32]client.Address
}

// Option configures a Provider.
type Option func(*Provider)

// WithAccount selects the BIP44 account (default 0).
func WithAccount(account uint32) Option {
	return func(p *Provider) { p.account = account }
}

// WithGapLimit overrides the address scan bound.
func WithGapLimit(gap uint32) Option {
	return func(p *Provider) {
		if gap > 0 {
			p.gap = gap
		}
	}
}

// NewProvider creates a wallet provider over a signing device.
func NewProvider(dev device.Device, params *chain.Params, opts ...Option) *Provider {
	p := &Provider{
		dev:       dev,
		params:    params,
		gap:       DefaultGapLimit,
		logger:    logging.GetDefault().Component("wallet"),
		addrCache: make(map[uint32]client.Address),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind stores the owning client.
func (p *Provider) Bind(c *client.Client) { p.client = c }

// Methods registers the wallet methods.
func (p *Provider) Methods() map[string]client.Handler {
	return map[string]client.Handler{
		client.MethodGetUnusedAddress: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetUnusedAddress(ctx)
		},
		client.MethodGetUsedAddresses: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetUsedAddresses(ctx)
		},
		client.MethodGenerateSecret: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GenerateSecret(ctx, args[0].(string))
		},
		client.MethodSendToAddress: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.SendToAddress(ctx, args[0].(string), args[1].(uint64))
		},
		client.MethodSignSwapInput: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			sig, _, err := p.SignSwapInput(ctx, args[0].([]byte), args[1].(int), args[2].([]byte), args[3].(client.Address))
			return sig, err
		},
		client.MethodCreateSignedTransaction: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.CreateSignedTransaction(ctx, args[0].(string), args[1].(uint64))
		},
	}
}

// query resolves the node-query capability, never to this provider.
func (p *Provider) query(method string) (client.ChainQuery, error) {
	prov, err := p.client.ResolveFrom(method, p)
	if err != nil {
		return nil, err
	}
	q, ok := prov.(client.ChainQuery)
	if !ok {
		return nil, client.ErrMethodNotImplemented
	}
	return q, nil
}

// addressAt derives (and caches) the external address at index.
func (p *Provider) addressAt(ctx context.Context, index uint32) (client.Address, error) {
	p.mu.Lock()
	if addr, ok := p.addrCache[index]; ok {
		p.mu.Unlock()
		return addr, nil
	}
	p.mu.Unlock()

	path := p.params.DerivationPath(p.account, 0, index)
	wpk, err := p.dev.GetWalletPublicKey(ctx, path)
	if err != nil {
		return client.Address{}, err
	}

	addr := client.Address{Value: wpk.Address, DerivationPath: path}
	p.mu.Lock()
	p.addrCache[index] = addr
	p.mu.Unlock()
	return addr, nil
}

// GetUnusedAddress scans derivation indices ascending and returns the first
// address with no transaction history. The scan is bounded by the gap limit.
func (p *Provider) GetUnusedAddress(ctx context.Context) (client.Address, error) {
	q, err := p.query(client.MethodIsAddressUsed)
	if err != nil {
		return client.Address{}, err
	}

	for index := uint32(0); index < p.gap; index++ {
		addr, err := p.addressAt(ctx, index)
		if err != nil {
			return client.Address{}, err
		}

		used, err := q.IsAddressUsed(ctx, addr.Value)
		if err != nil {
			return client.Address{}, err
		}
		if !used {
			return addr, nil
		}
	}

	return client.Address{}, ErrNoUnusedAddress
}

// GetUsedAddresses returns every address with history, scanning until the
// gap limit's worth of consecutive unused addresses.
func (p *Provider) GetUsedAddresses(ctx context.Context) ([]client.Address, error) {
	q, err := p.query(client.MethodIsAddressUsed)
	if err != nil {
		return nil, err
	}

	var (
		used []client.Address
		gap  uint32
	)
	for index := uint32(0); gap < p.gap; index++ {
		addr, err := p.addressAt(ctx, index)
		if err != nil {
			return nil, err
		}

		isUsed, err := q.IsAddressUsed(ctx, addr.Value)
		if err != nil {
			return nil, err
		}
		if isUsed {
			used = append(used, addr)
			gap = 0
		} else {
			gap++
		}
	}
	return used, nil
}

// GenerateSecret derives a 32-byte swap secret from a caller-chosen seed
// message. The device signs the message deterministically, so the same seed
// always yields the same secret for this wallet, and nothing but the seed
// needs to be remembered to recover it.
func (p *Provider) GenerateSecret(ctx context.Context, seed string) ([]byte, error) {
	path := p.params.DerivationPath(p.account, 0, 0)
	sig, err := p.dev.SignMessage(ctx, path, []byte(seed))
	if err != nil {
		return nil, err
	}

	secret := sha256.Sum256(sig)
	return secret[:], nil
}

// SendToAddress builds, signs and broadcasts a payment, returning the
// transaction id.
func (p *Provider) SendToAddress(ctx context.Context, address string, value uint64) (string, error) {
	rawHex, err := p.CreateSignedTransaction(ctx, address, value)
	if err != nil {
		return "", err
	}

	q, err := p.query(client.MethodBroadcastTransaction)
	if err != nil {
		return "", err
	}

	txID, err := q.BroadcastTransaction(ctx, rawHex)
	if err != nil {
		return "", err
	}

	p.logger.Info("sent",
		"to", address,
		"value", helpers.FormatAmount(value, p.params.Decimals),
		"txid", p.params.ExplorerTxURL(txID))
	return txID, nil
}

// CreateSignedTransaction builds and signs a payment without broadcasting,
// returning the raw transaction hex.
func (p *Provider) CreateSignedTransaction(ctx context.Context, address string, value uint64) (string, error) {
	q, err := p.query(client.MethodGetFeePerByte)
	if err != nil {
		return "", err
	}

	feePerByte, err := q.GetFeePerByte(ctx)
	if err != nil {
		return "", err
	}

	sel, err := p.selectFunds(ctx, q, value, feePerByte)
	if err != nil {
		return "", err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range sel.utxos {
		txHash, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return "", fmt.Errorf("invalid txid %s: %w", u.TxHash, err)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(txHash, u.OutputIndex), nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2 // Enable RBF
		tx.AddTxIn(txIn)
	}

	destScript, err := p.AddressScript(address)
	if err != nil {
		return "", fmt.Errorf("invalid destination address: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(int64(value), destScript))

	if sel.change > 0 {
		changeAddr, err := p.GetUnusedAddress(ctx)
		if err != nil {
			return "", err
		}
		changeScript, err := p.AddressScript(changeAddr.Value)
		if err != nil {
			return "", fmt.Errorf("invalid change address: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(sel.change), changeScript))
	}

	if err := p.signInputs(ctx, tx, sel.utxos); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize: %w", err)
	}

	p.logger.Debug("transaction built",
		"inputs", len(sel.utxos), "fee", sel.fee, "change", sel.change)
	return hex.EncodeToString(buf.Bytes()), nil
}

// selectFunds runs coin selection over this wallet's derivation tree.
func (p *Provider) selectFunds(ctx context.Context, q client.ChainQuery, target, feePerByte uint64) (*selection, error) {
	fetch := func(ctx context.Context, index uint32) (addressFunds, error) {
		addr, err := p.addressAt(ctx, index)
		if err != nil {
			return addressFunds{}, err
		}

		used, err := q.IsAddressUsed(ctx, addr.Value)
		if err != nil {
			return addressFunds{}, err
		}
		if !used {
			return addressFunds{}, nil
		}

		utxos, err := q.GetUnspentTransactions(ctx, addr.Value)
		if err != nil {
			return addressFunds{}, err
		}
		for i := range utxos {
			utxos[i].DerivationPath = addr.DerivationPath
		}
		return addressFunds{utxos: utxos, used: true}, nil
	}

	return selectUTXOs(ctx, fetch, p.params, target, feePerByte, p.gap)
}

// signInputs signs every input of tx through the device and assembles the
// P2PKH signature scripts.
func (p *Provider) signInputs(ctx context.Context, tx *wire.MsgTx, utxos []client.UTXO) error {
	specs := make([]device.InputSignSpec, len(utxos))
	for i, u := range utxos {
		prevScript, err := p.AddressScript(u.Address)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		specs[i] = device.InputSignSpec{Path: u.DerivationPath, Script: prevScript}
	}

	signed, err := p.dev.SignTransaction(ctx, &device.SplitTransaction{Tx: tx}, specs)
	if err != nil {
		return err
	}

	for i, s := range signed {
		sigScript, err := txscript.NewScriptBuilder().
			AddData(s.Signature).
			AddData(s.PublicKey).
			Script()
		if err != nil {
			return err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	return nil
}

// SignSwapInput signs one input of a serialized transaction that spends an
// output locked by redeemScript, with the key behind addr. Legacy P2SH
// sighash uses the redeem script in place of the scriptPubKey. Returns the
// signature (with sighash byte) and the compressed public key; sigScript
// assembly stays with the caller, who knows the branch being taken.
func (p *Provider) SignSwapInput(ctx context.Context, rawTx []byte, index int, redeemScript []byte, addr client.Address) ([]byte, []byte, error) {
	if addr.DerivationPath == "" {
		// Address came from outside (CLI, counterparty message): find it
		// in our derivation tree.
		resolved, err := p.resolveOwnedAddress(ctx, addr.Value)
		if err != nil {
			return nil, nil, err
		}
		addr = resolved
	}

	split, err := p.dev.SplitTransaction(rawTx)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(split.Tx.TxIn) {
		return nil, nil, fmt.Errorf("input index %d out of range", index)
	}

	specs := make([]device.InputSignSpec, len(split.Tx.TxIn))
	specs[index] = device.InputSignSpec{Path: addr.DerivationPath, Script: redeemScript}

	signed, err := p.dev.SignTransaction(ctx, split, specs)
	if err != nil {
		return nil, nil, err
	}

	return signed[index].Signature, signed[index].PublicKey, nil
}

// resolveOwnedAddress scans the derivation tree for an address value,
// bounded by the gap limit.
func (p *Provider) resolveOwnedAddress(ctx context.Context, value string) (client.Address, error) {
	for index := uint32(0); index < p.gap; index++ {
		addr, err := p.addressAt(ctx, index)
		if err != nil {
			return client.Address{}, err
		}
		if addr.Value == value {
			return addr, nil
		}
	}
	return client.Address{}, fmt.Errorf("address %s is not owned by this wallet", value)
}

// AddressScript decodes an address against this chain's parameters and
// returns its output script.
func (p *Provider) AddressScript(address string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, p.params.ChainCfg())
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(decoded)
}

var (
	_ client.Provider = (*Provider)(nil)
	_ client.Wallet   = (*Provider)(nil)
)
