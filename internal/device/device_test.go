package device

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/7flash/chainabstractionlayer/internal/chain"
)

// testSeed is a fixed 64-byte seed so derived keys are stable across runs.
var testSeed = bytes.Repeat([]byte{0x42}, 64)

func newTestDevice(t *testing.T) *LocalDevice {
	t.Helper()
	params, ok := chain.Get("BTC", chain.Mainnet)
	if !ok {
		t.Fatal("BTC mainnet not registered")
	}
	dev, err := NewLocalDeviceFromSeed(testSeed, params)
	if err != nil {
		t.Fatalf("NewLocalDeviceFromSeed: %v", err)
	}
	return dev
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    []uint32
		wantErr bool
	}{
		{path: "44'/0'/0'/0/5", want: []uint32{
			hardenedOffset + 44, hardenedOffset, hardenedOffset, 0, 5,
		}},
		{path: "m/44'/0'/0'/0/0", want: []uint32{
			hardenedOffset + 44, hardenedOffset, hardenedOffset, 0, 0,
		}},
		{path: "44h/2h/0h/0/1", want: []uint32{
			hardenedOffset + 44, hardenedOffset + 2, hardenedOffset, 0, 1,
		}},
		{path: "0/1/2", want: []uint32{0, 1, 2}},
		{path: "", wantErr: true},
		{path: "44'/x/0", wantErr: true},
		{path: "44'//0", wantErr: true},
		{path: "2147483648/0", wantErr: true}, // index already has the hardened bit
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d components, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("component %d: got %#x, want %#x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetWalletPublicKey(t *testing.T) {
	dev := newTestDevice(t)
	ctx := context.Background()

	first, err := dev.GetWalletPublicKey(ctx, "44'/0'/0'/0/0")
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}
	if len(first.PublicKey) != 33 {
		t.Errorf("public key length %d, want 33 (compressed)", len(first.PublicKey))
	}
	if !strings.HasPrefix(first.Address, "1") {
		t.Errorf("mainnet P2PKH address %q does not start with 1", first.Address)
	}

	again, err := dev.GetWalletPublicKey(ctx, "44'/0'/0'/0/0")
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}
	if !bytes.Equal(first.PublicKey, again.PublicKey) || first.Address != again.Address {
		t.Error("same path produced different key material")
	}

	other, err := dev.GetWalletPublicKey(ctx, "44'/0'/0'/0/1")
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}
	if bytes.Equal(first.PublicKey, other.PublicKey) {
		t.Error("distinct paths produced the same key")
	}

	if _, err := dev.GetWalletPublicKey(ctx, "not/a/path"); err == nil {
		t.Error("expected error for malformed path")
	}
}

func TestSignMessageDeterministic(t *testing.T) {
	dev := newTestDevice(t)
	ctx := context.Background()
	msg := []byte("swap secret seed")

	sig1, err := dev.SignMessage(ctx, "44'/0'/0'/0/0", msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	sig2, err := dev.SignMessage(ctx, "44'/0'/0'/0/0", msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Error("repeated signing of the same message differs")
	}

	sig3, err := dev.SignMessage(ctx, "44'/0'/0'/0/0", []byte("other message"))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if bytes.Equal(sig1, sig3) {
		t.Error("different messages produced identical signatures")
	}

	// Signature verifies against the advertised public key over the
	// magic-prefixed digest.
	wpk, err := dev.GetWalletPublicKey(ctx, "44'/0'/0'/0/0")
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig1)
	if err != nil {
		t.Fatalf("ParseDERSignature: %v", err)
	}
	pubKey, err := btcec.ParsePubKey(wpk.PublicKey)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if !parsed.Verify(messageDigest(msg), pubKey) {
		t.Error("signature does not verify against the device public key")
	}
}

func TestSplitAndSerializeOutputs(t *testing.T) {
	dev := newTestDevice(t)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(10000, []byte{txscript.OP_DUP, txscript.OP_HASH160}))
	tx.AddTxOut(wire.NewTxOut(4000, []byte{txscript.OP_HASH160}))

	var raw bytes.Buffer
	if err := tx.Serialize(&raw); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	split, err := dev.SplitTransaction(raw.Bytes())
	if err != nil {
		t.Fatalf("SplitTransaction: %v", err)
	}
	if split.TxID() != tx.TxHash().String() {
		t.Errorf("TxID mismatch: %s != %s", split.TxID(), tx.TxHash())
	}
	if len(split.Tx.TxOut) != 2 {
		t.Fatalf("parsed %d outputs, want 2", len(split.Tx.TxOut))
	}

	serialized, err := dev.SerializeTransactionOutputs(split)
	if err != nil {
		t.Fatalf("SerializeTransactionOutputs: %v", err)
	}
	// Count varint, then each output's 8-byte value in wire order.
	if serialized[0] != 2 {
		t.Errorf("output count byte %d, want 2", serialized[0])
	}
	if got := hex.EncodeToString(serialized[1:9]); got != "1027000000000000" {
		t.Errorf("first output value bytes %s", got)
	}

	if _, err := dev.SplitTransaction([]byte{0xde, 0xad}); err == nil {
		t.Error("expected error for undecodable transaction")
	}
}

func TestSignTransaction(t *testing.T) {
	dev := newTestDevice(t)
	ctx := context.Background()

	wpk, err := dev.GetWalletPublicKey(ctx, "44'/0'/0'/0/0")
	if err != nil {
		t.Fatalf("GetWalletPublicKey: %v", err)
	}

	prevScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(bytes.Repeat([]byte{0x11}, 20)).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 1}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(9000, prevScript))

	split := &SplitTransaction{Tx: tx}
	specs := []InputSignSpec{
		{Path: "44'/0'/0'/0/0", Script: prevScript},
		{}, // counterparty input, skipped
	}

	signed, err := dev.SignTransaction(ctx, split, specs)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if len(signed) != 2 {
		t.Fatalf("got %d signed inputs, want 2", len(signed))
	}

	if len(signed[0].Signature) == 0 {
		t.Fatal("owned input not signed")
	}
	if signed[0].Signature[len(signed[0].Signature)-1] != byte(txscript.SigHashAll) {
		t.Error("signature missing SIGHASH_ALL suffix")
	}
	if !bytes.Equal(signed[0].PublicKey, wpk.PublicKey) {
		t.Error("signature public key differs from wallet public key")
	}
	if signed[1].Signature != nil || signed[1].PublicKey != nil {
		t.Error("pathless input should be left unsigned")
	}

	// Verify against the sighash the network nodes would compute.
	sigHash, err := txscript.CalcSignatureHash(prevScript, txscript.SigHashAll, tx, 0)
	if err != nil {
		t.Fatalf("CalcSignatureHash: %v", err)
	}
	parsed, err := ecdsa.ParseDERSignature(signed[0].Signature[:len(signed[0].Signature)-1])
	if err != nil {
		t.Fatalf("ParseDERSignature: %v", err)
	}
	pubKey, err := btcec.ParsePubKey(signed[0].PublicKey)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if !parsed.Verify(sigHash, pubKey) {
		t.Error("transaction signature does not verify")
	}

	// Spec count must match input count.
	if _, err := dev.SignTransaction(ctx, split, specs[:1]); err == nil {
		t.Error("expected error for spec/input count mismatch")
	}
}

func TestNewLocalDeviceMnemonic(t *testing.T) {
	params, _ := chain.Get("BTC", chain.Mainnet)

	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	if got := len(strings.Fields(mnemonic)); got != 24 {
		t.Errorf("mnemonic has %d words, want 24", got)
	}

	if _, err := NewLocalDevice(mnemonic, "", params); err != nil {
		t.Errorf("NewLocalDevice with generated mnemonic: %v", err)
	}
	if _, err := NewLocalDevice("definitely not a mnemonic", "", params); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}
