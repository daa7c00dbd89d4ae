package swap

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/internal/wallet"
	"github.com/7flash/chainabstractionlayer/pkg/logging"
)

// Lifecycle precondition errors. Both are detected locally, before any
// broadcast attempt.
var (
	// ErrSecretMismatch is returned by ClaimSwap when the supplied secret
	// does not hash to the script's bound secret hash.
	ErrSecretMismatch = errors.New("secret does not match swap secret hash")

	// ErrSwapNotExpired is returned by RefundSwap before the expiration
	// time has passed.
	ErrSwapNotExpired = errors.New("swap is not expired yet")

	// ErrFundingOutputNotFound is returned when the referenced initiation
	// transaction has no output paying the expected swap address.
	ErrFundingOutputNotFound = errors.New("funding output not found in initiation transaction")
)

// Provider implements the swap lifecycle on top of the wallet and node-query
// capabilities. It holds no state between operations: every call re-derives
// the script from the given parameters and re-reads the chain.
type Provider struct {
	params *chain.Params
	client *client.Client
	logger *logging.Logger

	// now is the clock for the refund precondition.
	now func() time.Time
}

// NewProvider creates a swap provider for one chain.
func NewProvider(params *chain.Params) *Provider {
	return &Provider{
		params: params,
		logger: logging.GetDefault().Component("swap"),
		now:    time.Now,
	}
}

// Bind stores the owning client.
func (p *Provider) Bind(c *client.Client) { p.client = c }

// Methods registers the swap lifecycle methods.
func (p *Provider) Methods() map[string]client.Handler {
	return map[string]client.Handler{
		client.MethodCreateSwapScript: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			script, _, err := p.CreateSwapScript(args[0].(client.SwapParams))
			return script, err
		},
		client.MethodInitiateSwap: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.InitiateSwap(ctx, args[0].(uint64), args[1].(client.SwapParams))
		},
		client.MethodFindInitiateSwapTransaction: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.FindInitiateSwapTransaction(ctx, args[0].(uint64), args[1].(client.SwapParams))
		},
		client.MethodVerifyInitiateSwapTransaction: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.VerifyInitiateSwapTransaction(ctx, args[0].(string), args[1].(uint64), args[2].(client.SwapParams))
		},
		client.MethodClaimSwap: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.ClaimSwap(ctx, args[0].(string), args[1].(client.SwapParams), args[2].([]byte))
		},
		client.MethodFindClaimSwapTransaction: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			tx, _, err := p.FindClaimSwapTransaction(ctx, args[0].(string), args[1].(client.SwapParams))
			return tx, err
		},
		client.MethodRefundSwap: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.RefundSwap(ctx, args[0].(string), args[1].(client.SwapParams))
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

// wallet resolves the wallet capability, never to this provider.
func (p *Provider) wallet(method string) (client.Wallet, error) {
	prov, err := p.client.ResolveFrom(method, p)
	if err != nil {
		return nil, err
	}
	w, ok := prov.(client.Wallet)
	if !ok {
		return nil, client.ErrMethodNotImplemented
	}
	return w, nil
}

// CreateSwapScript builds the redeem script and its P2SH address. Pure:
// identical params always produce identical bytes.
func (p *Provider) CreateSwapScript(params client.SwapParams) ([]byte, client.Address, error) {
	script, err := BuildSwapScriptForParams(params, p.params)
	if err != nil {
		return nil, client.Address{}, err
	}
	addr, err := DeriveSwapAddress(script, p.params)
	if err != nil {
		return nil, client.Address{}, err
	}
	return script, addr, nil
}

// InitiateSwap funds the swap address with value, returning the funding
// transaction id.
func (p *Provider) InitiateSwap(ctx context.Context, value uint64, params client.SwapParams) (string, error) {
	_, addr, err := p.CreateSwapScript(params)
	if err != nil {
		return "", err
	}

	w, err := p.wallet(client.MethodSendToAddress)
	if err != nil {
		return "", err
	}

	attempt := uuid.NewString()
	p.logger.Info("initiating swap",
		"attempt", attempt, "address", addr.Value, "value", value,
		"expiration", params.Expiration)

	txID, err := w.SendToAddress(ctx, addr.Value, value)
	if err != nil {
		return "", err
	}

	p.logger.Info("swap initiated", "attempt", attempt, "txid", p.params.ExplorerTxURL(txID))
	return txID, nil
}

// FindInitiateSwapTransaction scans the swap address for a transaction
// paying exactly value to the expected script. Not finding one is a nil
// result, not an error; callers poll.
func (p *Provider) FindInitiateSwapTransaction(ctx context.Context, value uint64, params client.SwapParams) (*client.Transaction, error) {
	script, addr, err := p.CreateSwapScript(params)
	if err != nil {
		return nil, err
	}
	expected := SwapOutputScript(script)

	q, err := p.query(client.MethodGetAddressTransactions)
	if err != nil {
		return nil, err
	}

	txs, err := q.GetAddressTransactions(ctx, addr.Value)
	if err != nil {
		return nil, err
	}

	for i := range txs {
		if fundingOutput(&txs[i], expected, value) >= 0 {
			return &txs[i], nil
		}
	}
	return nil, nil
}

// VerifyInitiateSwapTransaction fetches txID and checks that some output
// pays exactly value to the script recomputed from params. Mismatches are a
// false result; only a failed fetch is an error.
func (p *Provider) VerifyInitiateSwapTransaction(ctx context.Context, txID string, value uint64, params client.SwapParams) (bool, error) {
	script, _, err := p.CreateSwapScript(params)
	if err != nil {
		return false, err
	}

	q, err := p.query(client.MethodGetTransactionByHash)
	if err != nil {
		return false, err
	}

	tx, err := q.GetTransactionByHash(ctx, txID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch initiation transaction %s: %w", txID, err)
	}

	return fundingOutput(tx, SwapOutputScript(script), value) >= 0, nil
}

// ClaimSwap spends the funding output through the claim branch, revealing
// the secret on-chain. The secret is checked against the script's bound hash
// before anything touches the network.
func (p *Provider) ClaimSwap(ctx context.Context, initiationTxID string, params client.SwapParams, secret []byte) (string, error) {
	if !VerifySecret(secret, params.SecretHash) {
		return "", ErrSecretMismatch
	}

	txID, err := p.spendSwap(ctx, initiationTxID, params, secret)
	if err != nil {
		return "", err
	}

	p.logger.Info("swap claimed", "initiation", initiationTxID, "txid", p.params.ExplorerTxURL(txID))
	return txID, nil
}

// RefundSwap spends the funding output through the refund branch. Callable
// only once the absolute lock time has passed.
func (p *Provider) RefundSwap(ctx context.Context, initiationTxID string, params client.SwapParams) (string, error) {
	if p.now().Unix() < params.Expiration {
		return "", fmt.Errorf("%w: expires at %d", ErrSwapNotExpired, params.Expiration)
	}

	txID, err := p.spendSwap(ctx, initiationTxID, params, nil)
	if err != nil {
		return "", err
	}

	p.logger.Info("swap refunded", "initiation", initiationTxID, "txid", p.params.ExplorerTxURL(txID))
	return txID, nil
}

// FindClaimSwapTransaction scans for a spend of the funding output and
// extracts the revealed secret from its signature script. Returns nils when
// no spend is visible yet.
func (p *Provider) FindClaimSwapTransaction(ctx context.Context, initiationTxID string, params client.SwapParams) (*client.Transaction, []byte, error) {
	script, addr, err := p.CreateSwapScript(params)
	if err != nil {
		return nil, nil, err
	}

	q, err := p.query(client.MethodGetTransactionByHash)
	if err != nil {
		return nil, nil, err
	}

	fundingTx, err := q.GetTransactionByHash(ctx, initiationTxID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch initiation transaction %s: %w", initiationTxID, err)
	}

	vout := fundingOutput(fundingTx, SwapOutputScript(script), 0)
	if vout < 0 {
		return nil, nil, ErrFundingOutputNotFound
	}

	txs, err := q.GetAddressTransactions(ctx, addr.Value)
	if err != nil {
		return nil, nil, err
	}

	for i := range txs {
		for _, in := range txs[i].Inputs {
			if in.TxHash != initiationTxID || in.OutputIndex != uint32(vout) {
				continue
			}
			secret, ok := ExtractSecret(in.ScriptSig, params.SecretHash)
			if !ok {
				// Spend without a preimage is the refund branch.
				continue
			}
			return &txs[i], secret, nil
		}
	}
	return nil, nil, nil
}

// spendSwap builds, signs and broadcasts a transaction spending the funding
// output. A non-nil secret takes the claim branch to the recipient address;
// nil takes the refund branch to the refund address after the lock time.
func (p *Provider) spendSwap(ctx context.Context, initiationTxID string, params client.SwapParams, secret []byte) (string, error) {
	script, _, err := p.CreateSwapScript(params)
	if err != nil {
		return "", err
	}

	q, err := p.query(client.MethodGetTransactionByHash)
	if err != nil {
		return "", err
	}

	fundingTx, err := q.GetTransactionByHash(ctx, initiationTxID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch initiation transaction %s: %w", initiationTxID, err)
	}

	vout := fundingOutput(fundingTx, SwapOutputScript(script), 0)
	if vout < 0 {
		return "", ErrFundingOutputNotFound
	}
	fundingValue := fundingTx.Outputs[vout].Value

	claim := secret != nil
	dest := params.RefundAddress
	if claim {
		dest = params.RecipientAddress
	}

	feePerByte, err := q.GetFeePerByte(ctx)
	if err != nil {
		return "", err
	}
	fee := wallet.CalculateFee(p.params, 1, 1, feePerByte)
	if fundingValue <= fee {
		return "", fmt.Errorf("funding value %d does not cover fee %d", fundingValue, fee)
	}

	rawTx, err := p.buildSpendTx(initiationTxID, uint32(vout), fundingValue-fee, dest.Value, params, claim)
	if err != nil {
		return "", err
	}

	w, err := p.wallet(client.MethodSignSwapInput)
	if err != nil {
		return "", err
	}
	sig, pubKey, err := w.SignSwapInput(ctx, rawTx, 0, script, dest)
	if err != nil {
		return "", err
	}

	var sigScript []byte
	if claim {
		sigScript, err = ClaimSigScript(sig, pubKey, secret, script)
	} else {
		sigScript, err = RefundSigScript(sig, pubKey, script)
	}
	if err != nil {
		return "", err
	}

	signedTx, err := attachSigScript(rawTx, 0, sigScript)
	if err != nil {
		return "", err
	}

	return q.BroadcastTransaction(ctx, hex.EncodeToString(signedTx))
}

// buildSpendTx assembles the unsigned spend of one funding output. Refunds
// carry the expiration as lock time with a non-final sequence so the CLTV
// check can pass.
func (p *Provider) buildSpendTx(fundingTxID string, vout uint32, value uint64, destAddress string, params client.SwapParams, claim bool) ([]byte, error) {
	fundingHash, err := chainhash.NewHashFromStr(fundingTxID)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid transaction id %q: %v", fundingTxID, err)}
	}

	destPKH, err := PubKeyHash(destAddress, p.params)
	if err != nil {
		return nil, err
	}
	destScript, err := p2pkhScript(destPKH)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	txIn := wire.NewTxIn(wire.NewOutPoint(fundingHash, vout), nil, nil)
	if !claim {
		txIn.Sequence = 0
	}
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(int64(value), destScript))
	if !claim {
		tx.LockTime = uint32(params.Expiration)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// attachSigScript sets the signature script of input index and reserializes.
func attachSigScript(rawTx []byte, index int, sigScript []byte) ([]byte, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, err
	}
	tx.TxIn[index].SignatureScript = sigScript

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fundingOutput returns the index of the output paying the expected script,
// or -1. A zero value matches any amount.
func fundingOutput(tx *client.Transaction, expectedScript []byte, value uint64) int {
	for i, out := range tx.Outputs {
		if value != 0 && out.Value != value {
			continue
		}
		if bytes.Equal(out.Script, expectedScript) {
			return i
		}
	}
	return -1
}

var (
	_ client.Provider = (*Provider)(nil)
	_ client.Swap     = (*Provider)(nil)
)
