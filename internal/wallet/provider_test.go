package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/internal/device"
)

// fakeQuery is a canned chain-query provider: per-address usage flags and
// UTXOs, plus a record of broadcast transactions.
type fakeQuery struct {
	feePerByte uint64
	used       map[string]bool
	utxos      map[string][]client.UTXO
	broadcasts []string
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{
		feePerByte: 3,
		used:       make(map[string]bool),
		utxos:      make(map[string][]client.UTXO),
	}
}

func (f *fakeQuery) Bind(*client.Client) {}

func (f *fakeQuery) Methods() map[string]client.Handler {
	names := []string{
		client.MethodGetUnspentTransactions,
		client.MethodGetTransactionHex,
		client.MethodGetTransactionByHash,
		client.MethodGetAddressTransactions,
		client.MethodIsAddressUsed,
		client.MethodBroadcastTransaction,
		client.MethodGetBlockHeight,
		client.MethodGetFeePerByte,
	}
	m := make(map[string]client.Handler, len(names))
	for _, name := range names {
		m[name] = func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return nil, errors.New("typed interface expected")
		}
	}
	return m
}

func (f *fakeQuery) GetUnspentTransactions(ctx context.Context, address string) ([]client.UTXO, error) {
	return f.utxos[address], nil
}

func (f *fakeQuery) GetTransactionHex(ctx context.Context, txHash string) (string, error) {
	return "", errors.New("not found")
}

func (f *fakeQuery) GetTransactionByHash(ctx context.Context, txHash string) (*client.Transaction, error) {
	return nil, errors.New("not found")
}

func (f *fakeQuery) GetAddressTransactions(ctx context.Context, address string) ([]client.Transaction, error) {
	return nil, nil
}

func (f *fakeQuery) IsAddressUsed(ctx context.Context, address string) (bool, error) {
	return f.used[address], nil
}

func (f *fakeQuery) BroadcastTransaction(ctx context.Context, rawHex string) (string, error) {
	f.broadcasts = append(f.broadcasts, rawHex)
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", err
	}
	msg := wire.NewMsgTx(wire.TxVersion)
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	return msg.TxHash().String(), nil
}

func (f *fakeQuery) GetBlockHeight(ctx context.Context) (int64, error) { return 800000, nil }

func (f *fakeQuery) GetFeePerByte(ctx context.Context) (uint64, error) { return f.feePerByte, nil }

var (
	_ client.Provider   = (*fakeQuery)(nil)
	_ client.ChainQuery = (*fakeQuery)(nil)
)

type walletHarness struct {
	query    *fakeQuery
	provider *Provider
	dev      *device.LocalDevice
	params   *chain.Params
}

func newWalletHarness(t *testing.T, opts ...Option) *walletHarness {
	t.Helper()

	params, ok := chain.Get("BTC", chain.Mainnet)
	if !ok {
		t.Fatal("BTC mainnet not registered")
	}
	dev, err := device.NewLocalDeviceFromSeed(bytes.Repeat([]byte{0x21}, 64), params)
	if err != nil {
		t.Fatalf("NewLocalDeviceFromSeed: %v", err)
	}

	fake := newFakeQuery()
	wp := NewProvider(dev, params, opts...)

	c := client.New()
	if err := c.AddProvider(fake); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	if err := c.AddProvider(wp); err != nil {
		t.Fatalf("AddProvider: %v", err)
	}

	return &walletHarness{query: fake, provider: wp, dev: dev, params: params}
}

// addressAt derives the external address at index straight from the device.
func (h *walletHarness) addressAt(t *testing.T, index uint32) string {
	t.Helper()
	wpk, err := h.dev.GetWalletPublicKey(context.Background(), h.params.DerivationPath(0, 0, index))
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}
	return wpk.Address
}

func TestGetUnusedAddress(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	// Fresh wallet: index 0 is the first unused address.
	addr, err := h.provider.GetUnusedAddress(ctx)
	if err != nil {
		t.Fatalf("GetUnusedAddress: %v", err)
	}
	if addr.Value != h.addressAt(t, 0) {
		t.Errorf("got %s, want index 0 address", addr.Value)
	}
	if addr.DerivationPath != h.params.DerivationPath(0, 0, 0) {
		t.Errorf("derivation path %q", addr.DerivationPath)
	}

	// Mark the first two used: the scan moves to index 2.
	h.query.used[h.addressAt(t, 0)] = true
	h.query.used[h.addressAt(t, 1)] = true

	addr, err = h.provider.GetUnusedAddress(ctx)
	if err != nil {
		t.Fatalf("GetUnusedAddress: %v", err)
	}
	if addr.Value != h.addressAt(t, 2) {
		t.Errorf("got %s, want index 2 address", addr.Value)
	}
}

func TestGetUnusedAddressExhausted(t *testing.T) {
	h := newWalletHarness(t, WithGapLimit(3))
	ctx := context.Background()

	for i := uint32(0); i < 3; i++ {
		h.query.used[h.addressAt(t, i)] = true
	}

	_, err := h.provider.GetUnusedAddress(ctx)
	if !errors.Is(err, ErrNoUnusedAddress) {
		t.Errorf("expected ErrNoUnusedAddress, got %v", err)
	}
}

func TestGetUsedAddresses(t *testing.T) {
	h := newWalletHarness(t, WithGapLimit(5))
	ctx := context.Background()

	// Usage with a hole at index 1; the hole does not end the scan.
	h.query.used[h.addressAt(t, 0)] = true
	h.query.used[h.addressAt(t, 2)] = true

	used, err := h.provider.GetUsedAddresses(ctx)
	if err != nil {
		t.Fatalf("GetUsedAddresses: %v", err)
	}
	if len(used) != 2 {
		t.Fatalf("got %d used addresses, want 2", len(used))
	}
	if used[0].Value != h.addressAt(t, 0) || used[1].Value != h.addressAt(t, 2) {
		t.Error("used addresses not in derivation order")
	}
}

func TestGenerateSecretDeterministic(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	s1, err := h.provider.GenerateSecret(ctx, "swap with alice #1")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(s1) != client.SecretSize {
		t.Fatalf("secret length %d", len(s1))
	}

	s2, err := h.provider.GenerateSecret(ctx, "swap with alice #1")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("same seed produced different secrets")
	}

	s3, err := h.provider.GenerateSecret(ctx, "swap with alice #2")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if bytes.Equal(s1, s3) {
		t.Error("different seeds produced the same secret")
	}
}

func TestCreateSignedTransaction(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	funded := h.addressAt(t, 0)
	h.query.used[funded] = true
	h.query.utxos[funded] = []client.UTXO{{
		TxHash:      strings.Repeat("ab", 32),
		OutputIndex: 1,
		Value:       100000,
		Address:     funded,
	}}

	dest := h.addressAt(t, 5)
	rawHex, err := h.provider.CreateSignedTransaction(ctx, dest, 30000)
	if err != nil {
		t.Fatalf("CreateSignedTransaction: %v", err)
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		t.Fatalf("output is not hex: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("output does not decode: %v", err)
	}

	if len(tx.TxIn) != 1 {
		t.Fatalf("%d inputs, want 1", len(tx.TxIn))
	}
	if tx.TxIn[0].Sequence != wire.MaxTxInSequenceNum-2 {
		t.Errorf("sequence %#x, want RBF-enabled", tx.TxIn[0].Sequence)
	}
	if len(tx.TxIn[0].SignatureScript) == 0 {
		t.Error("input not signed")
	}

	// Destination plus change: 100000 in, 30000 out, fee 678 at 3 sat/vB.
	if len(tx.TxOut) != 2 {
		t.Fatalf("%d outputs, want 2", len(tx.TxOut))
	}
	if tx.TxOut[0].Value != 30000 {
		t.Errorf("destination value %d", tx.TxOut[0].Value)
	}
	wantChange := int64(100000 - 30000 - CalculateFee(h.params, 1, 2, 3))
	if tx.TxOut[1].Value != wantChange {
		t.Errorf("change value %d, want %d", tx.TxOut[1].Value, wantChange)
	}

	// Nothing was broadcast: that is SendToAddress's job.
	if len(h.query.broadcasts) != 0 {
		t.Error("CreateSignedTransaction should not broadcast")
	}
}

func TestSendToAddressBroadcasts(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	funded := h.addressAt(t, 0)
	h.query.used[funded] = true
	h.query.utxos[funded] = []client.UTXO{{
		TxHash:      strings.Repeat("cd", 32),
		OutputIndex: 0,
		Value:       50000,
		Address:     funded,
	}}

	txID, err := h.provider.SendToAddress(ctx, h.addressAt(t, 3), 20000)
	if err != nil {
		t.Fatalf("SendToAddress: %v", err)
	}
	if txID == "" {
		t.Fatal("empty txid")
	}
	if len(h.query.broadcasts) != 1 {
		t.Fatalf("%d broadcasts, want 1", len(h.query.broadcasts))
	}
}

func TestSendToAddressInsufficientFunds(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	funded := h.addressAt(t, 0)
	h.query.used[funded] = true
	h.query.utxos[funded] = []client.UTXO{{
		TxHash:      strings.Repeat("ef", 32),
		OutputIndex: 0,
		Value:       1000,
		Address:     funded,
	}}

	_, err := h.provider.SendToAddress(ctx, h.addressAt(t, 3), 20000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(h.query.broadcasts) != 0 {
		t.Error("failed selection must not broadcast")
	}
}

func TestSignSwapInputUnownedAddress(t *testing.T) {
	h := newWalletHarness(t)
	ctx := context.Background()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// A mainnet address that is not in this wallet's derivation tree.
	foreign := client.Address{Value: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"}
	_, _, err := h.provider.SignSwapInput(ctx, buf.Bytes(), 0, []byte{0x51}, foreign)
	if err == nil || !strings.Contains(err.Error(), "not owned") {
		t.Errorf("expected not-owned error, got %v", err)
	}

	// Owned address without a derivation path resolves through the scan.
	owned := client.Address{Value: h.addressAt(t, 2)}
	sig, pubKey, err := h.provider.SignSwapInput(ctx, buf.Bytes(), 0, []byte{0x51}, owned)
	if err != nil {
		t.Fatalf("SignSwapInput: %v", err)
	}
	if len(sig) == 0 || len(pubKey) != 33 {
		t.Errorf("sig/pubkey shape: %d/%d bytes", len(sig), len(pubKey))
	}

	if _, _, err := h.provider.SignSwapInput(ctx, buf.Bytes(), 5, []byte{0x51}, owned); err == nil {
		t.Error("expected error for out-of-range input index")
	}
}
