package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// BlockbookBackend implements Backend using Trezor's Blockbook API.
// API docs: https://github.com/trezor/blockbook/blob/master/docs/api.md
type BlockbookBackend struct {
	baseURL    string
	httpClient *http.Client
	mu         sync.RWMutex
	connected  bool
}

// NewBlockbookBackend creates a new Blockbook backend.
// baseURL should be like "https://btc1.trezor.io/api/v2" or "https://doge1.trezor.io/api/v2"
func NewBlockbookBackend(baseURL string) *BlockbookBackend {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &BlockbookBackend{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns TypeBlockbook.
func (b *BlockbookBackend) Type() Type {
	return TypeBlockbook
}

// Connect tests the connection to the API.
func (b *BlockbookBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Test with status endpoint
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL, nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrNotConnected, resp.StatusCode)
	}

	b.connected = true
	return nil
}

// Close closes the connection.
func (b *BlockbookBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

// IsConnected returns true if connected.
func (b *BlockbookBackend) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// GetAddressInfo returns address balance and tx count.
func (b *BlockbookBackend) GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	var result struct {
		Address        string `json:"address"`
		Balance        string `json:"balance"`
		TxCount        int64  `json:"txs"`
		UnconfirmedTxs int64  `json:"unconfirmedTxs"`
	}

	if err := b.get(ctx, "/address/"+address, &result); err != nil {
		return nil, err
	}

	return &AddressInfo{
		Address: result.Address,
		TxCount: result.TxCount + result.UnconfirmedTxs,
		Balance: parseAmount(result.Balance),
	}, nil
}

// GetAddressUTXOs returns unspent outputs for an address.
func (b *BlockbookBackend) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var result []struct {
		TxID          string `json:"txid"`
		Vout          uint32 `json:"vout"`
		Value         string `json:"value"`
		Height        int64  `json:"height"`
		Confirmations int64  `json:"confirmations"`
	}

	if err := b.get(ctx, "/utxo/"+address, &result); err != nil {
		return nil, err
	}

	utxos := make([]UTXO, len(result))
	for i, u := range result {
		utxos[i] = UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        parseAmount(u.Value),
			BlockHeight:   u.Height,
			Confirmations: u.Confirmations,
		}
	}

	return utxos, nil
}

// GetAddressTxs returns transactions for an address.
func (b *BlockbookBackend) GetAddressTxs(ctx context.Context, address string) ([]Transaction, error) {
	var result struct {
		Transactions []blockbookTx `json:"transactions"`
	}

	if err := b.get(ctx, "/address/"+address+"?details=txs", &result); err != nil {
		return nil, err
	}

	return b.convertTxs(result.Transactions), nil
}

// GetTransaction returns a transaction by ID.
func (b *BlockbookBackend) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	var result blockbookTx

	if err := b.get(ctx, "/tx/"+txID, &result); err != nil {
		return nil, err
	}

	txs := b.convertTxs([]blockbookTx{result})
	if len(txs) == 0 {
		return nil, ErrTxNotFound
	}

	return &txs[0], nil
}

// GetRawTransaction returns raw transaction hex.
func (b *BlockbookBackend) GetRawTransaction(ctx context.Context, txID string) (string, error) {
	var result struct {
		Hex string `json:"hex"`
	}

	if err := b.get(ctx, "/tx/"+txID, &result); err != nil {
		return "", err
	}
	if result.Hex == "" {
		return "", ErrTxNotFound
	}

	return result.Hex, nil
}

// BroadcastTransaction broadcasts a raw transaction.
func (b *BlockbookBackend) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	// Blockbook uses GET with hex in URL for broadcast
	var result struct {
		Result string `json:"result"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := b.get(ctx, "/sendtx/"+rawTxHex, &result); err != nil {
		return "", classifyBroadcast(err.Error())
	}
	if result.Error.Message != "" {
		return "", classifyBroadcast(result.Error.Message)
	}

	return result.Result, nil
}

// GetBlockHeight returns the current block height.
func (b *BlockbookBackend) GetBlockHeight(ctx context.Context) (int64, error) {
	var result struct {
		Blockbook struct {
			BestHeight int64 `json:"bestHeight"`
		} `json:"blockbook"`
	}

	if err := b.get(ctx, "", &result); err != nil {
		return 0, err
	}

	return result.Blockbook.BestHeight, nil
}

// GetFeeEstimates returns fee estimates.
func (b *BlockbookBackend) GetFeeEstimates(ctx context.Context) (*FeeEstimate, error) {
	var result struct {
		Result string `json:"result"`
	}

	estimates := &FeeEstimate{MinimumFee: 1}

	// Blockbook uses /estimatefee/{blocks} and returns coin/kB, we need sat/vB

	if err := b.get(ctx, "/estimatefee/1", &result); err == nil {
		estimates.FastestFee = coinKBToSatVB(result.Result)
	}

	if err := b.get(ctx, "/estimatefee/6", &result); err == nil {
		estimates.HourFee = coinKBToSatVB(result.Result)
	}

	if err := b.get(ctx, "/estimatefee/144", &result); err == nil {
		estimates.EconomyFee = coinKBToSatVB(result.Result)
	}

	return estimates, nil
}

// get performs a GET request and decodes JSON response.
func (b *BlockbookBackend) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAddressNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// blockbookTx is Blockbook's transaction format. Amounts come back as
// strings in the smallest unit.
type blockbookTx struct {
	TxID          string `json:"txid"`
	Version       int32  `json:"version"`
	LockTime      uint32 `json:"lockTime"`
	Hex           string `json:"hex"`
	BlockHeight   int64  `json:"blockHeight"`
	Confirmations int64  `json:"confirmations"`
	Vin           []struct {
		TxID     string `json:"txid"`
		Vout     uint32 `json:"vout"`
		Sequence uint32 `json:"sequence"`
		Hex      string `json:"hex"`
	} `json:"vin"`
	Vout []struct {
		Value string `json:"value"`
		N     uint32 `json:"n"`
		Hex   string `json:"hex"`
	} `json:"vout"`
}

// convertTxs converts Blockbook transactions to our format.
func (b *BlockbookBackend) convertTxs(bbTxs []blockbookTx) []Transaction {
	txs := make([]Transaction, len(bbTxs))
	for i, bt := range bbTxs {
		tx := Transaction{
			TxID:          bt.TxID,
			Version:       bt.Version,
			LockTime:      bt.LockTime,
			Hex:           bt.Hex,
			BlockHeight:   bt.BlockHeight,
			Confirmations: bt.Confirmations,
			Confirmed:     bt.Confirmations > 0,
			Inputs:        make([]TxInput, len(bt.Vin)),
			Outputs:       make([]TxOutput, len(bt.Vout)),
		}

		for j, vin := range bt.Vin {
			tx.Inputs[j] = TxInput{
				TxID:      vin.TxID,
				Vout:      vin.Vout,
				ScriptSig: vin.Hex,
				Sequence:  vin.Sequence,
			}
		}

		for j, vout := range bt.Vout {
			tx.Outputs[j] = TxOutput{
				ScriptPubKey: vout.Hex,
				Value:        parseAmount(vout.Value),
			}
		}

		txs[i] = tx
	}
	return txs
}

// parseAmount parses a string amount to uint64 (smallest unit).
func parseAmount(s string) uint64 {
	var amount uint64
	fmt.Sscanf(s, "%d", &amount)
	return amount
}

// coinKBToSatVB converts coin/kB to smallest-unit/vB.
func coinKBToSatVB(s string) uint64 {
	var coinPerKB float64
	fmt.Sscanf(s, "%f", &coinPerKB)
	if coinPerKB <= 0 {
		return 1
	}
	return uint64(coinPerKB * 1e8 / 1000)
}

// Ensure BlockbookBackend implements Backend
var _ Backend = (*BlockbookBackend)(nil)
