package backend

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/pkg/logging"
)

// QueryProvider exposes a Backend as the client's node-query capability. It
// translates explorer wire formats into the client data model; callers never
// see backend types.
type QueryProvider struct {
	backend Backend
	client  *client.Client
	logger  *logging.Logger

	// feePerByte, when non-zero, overrides backend fee estimation.
	feePerByte uint64
}

// NewQueryProvider wraps a backend. A non-zero feePerByte pins the fee rate
// instead of asking the backend.
func NewQueryProvider(b Backend, feePerByte uint64) *QueryProvider {
	return &QueryProvider{
		backend:    b,
		feePerByte: feePerByte,
		logger:     logging.GetDefault().Component("query"),
	}
}

// Bind stores the owning client.
func (p *QueryProvider) Bind(c *client.Client) { p.client = c }

// Methods registers the node-query methods.
func (p *QueryProvider) Methods() map[string]client.Handler {
	return map[string]client.Handler{
		client.MethodGetUnspentTransactions: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetUnspentTransactions(ctx, args[0].(string))
		},
		client.MethodGetTransactionHex: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetTransactionHex(ctx, args[0].(string))
		},
		client.MethodGetTransactionByHash: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetTransactionByHash(ctx, args[0].(string))
		},
		client.MethodGetAddressTransactions: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetAddressTransactions(ctx, args[0].(string))
		},
		client.MethodIsAddressUsed: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.IsAddressUsed(ctx, args[0].(string))
		},
		client.MethodBroadcastTransaction: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.BroadcastTransaction(ctx, args[0].(string))
		},
		client.MethodGetBlockHeight: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetBlockHeight(ctx)
		},
		client.MethodGetFeePerByte: func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return p.GetFeePerByte(ctx)
		},
	}
}

// GetUnspentTransactions returns the unspent outputs of an address.
func (p *QueryProvider) GetUnspentTransactions(ctx context.Context, address string) ([]client.UTXO, error) {
	raw, err := p.backend.GetAddressUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}

	utxos := make([]client.UTXO, len(raw))
	for i, u := range raw {
		utxos[i] = client.UTXO{
			TxHash:      u.TxID,
			OutputIndex: u.Vout,
			Value:       u.Amount,
			Address:     address,
		}
	}
	return utxos, nil
}

// GetTransactionHex returns the raw hex of a transaction.
func (p *QueryProvider) GetTransactionHex(ctx context.Context, txHash string) (string, error) {
	return p.backend.GetRawTransaction(ctx, txHash)
}

// GetTransactionByHash returns a decoded transaction, raw bytes included.
func (p *QueryProvider) GetTransactionByHash(ctx context.Context, txHash string) (*client.Transaction, error) {
	tx, err := p.backend.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}

	out := convertTx(tx)
	if out.Raw == nil {
		rawHex, err := p.backend.GetRawTransaction(ctx, txHash)
		if err == nil {
			out.Raw, _ = hex.DecodeString(rawHex)
		}
	}
	return out, nil
}

// GetAddressTransactions returns transactions involving an address, newest
// first, unconfirmed included.
func (p *QueryProvider) GetAddressTransactions(ctx context.Context, address string) ([]client.Transaction, error) {
	raw, err := p.backend.GetAddressTxs(ctx, address)
	if err != nil {
		return nil, err
	}

	txs := make([]client.Transaction, len(raw))
	for i := range raw {
		txs[i] = *convertTx(&raw[i])
	}
	return txs, nil
}

// IsAddressUsed reports whether an address has any transaction history,
// confirmed or not. An unknown address is unused, not an error.
func (p *QueryProvider) IsAddressUsed(ctx context.Context, address string) (bool, error) {
	info, err := p.backend.GetAddressInfo(ctx, address)
	if err != nil {
		if err == ErrAddressNotFound {
			return false, nil
		}
		return false, err
	}
	return info.TxCount > 0, nil
}

// BroadcastTransaction submits a raw transaction, returning its hash.
// Rejections surface as *BroadcastError.
func (p *QueryProvider) BroadcastTransaction(ctx context.Context, rawHex string) (string, error) {
	txID, err := p.backend.BroadcastTransaction(ctx, rawHex)
	if err != nil {
		p.logger.Warn("broadcast failed", "err", err)
		return "", err
	}
	p.logger.Info("transaction broadcast", "txid", txID)
	return txID, nil
}

// GetBlockHeight returns the current chain tip height.
func (p *QueryProvider) GetBlockHeight(ctx context.Context) (int64, error) {
	return p.backend.GetBlockHeight(ctx)
}

// GetFeePerByte returns the fee rate in smallest unit per byte. A configured
// override wins; otherwise the backend's one-hour estimate is used.
func (p *QueryProvider) GetFeePerByte(ctx context.Context) (uint64, error) {
	if p.feePerByte > 0 {
		return p.feePerByte, nil
	}

	est, err := p.backend.GetFeeEstimates(ctx)
	if err != nil {
		return 0, fmt.Errorf("fee estimation: %w", err)
	}
	if est.HourFee > 0 {
		return est.HourFee, nil
	}
	if est.FastestFee > 0 {
		return est.FastestFee, nil
	}
	return 1, nil
}

// convertTx maps a backend transaction into the client data model.
func convertTx(tx *Transaction) *client.Transaction {
	out := &client.Transaction{
		ID:       tx.TxID,
		LockTime: tx.LockTime,
		Inputs:   make([]client.TxInput, len(tx.Inputs)),
		Outputs:  make([]client.TxOutput, len(tx.Outputs)),
	}
	if tx.Hex != "" {
		out.Raw, _ = hex.DecodeString(tx.Hex)
	}
	for i, in := range tx.Inputs {
		scriptSig, _ := hex.DecodeString(in.ScriptSig)
		out.Inputs[i] = client.TxInput{
			TxHash:      in.TxID,
			OutputIndex: in.Vout,
			ScriptSig:   scriptSig,
			Sequence:    in.Sequence,
		}
	}
	for i, o := range tx.Outputs {
		script, _ := hex.DecodeString(o.ScriptPubKey)
		out.Outputs[i] = client.TxOutput{
			Value:  o.Value,
			Script: script,
		}
	}
	return out
}

var (
	_ client.Provider   = (*QueryProvider)(nil)
	_ client.ChainQuery = (*QueryProvider)(nil)
)
