package device

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tyler-smith/go-bip39"

	"github.com/7flash/chainabstractionlayer/internal/chain"
)

// messageMagic is the Bitcoin signed-message prefix. Signing over the
// prefixed digest keeps message signatures distinct from transaction
// signatures.
const messageMagic = "\x18Bitcoin Signed Message:\n"

// LocalDevice is a software Device backed by a BIP39 seed. It mirrors the
// command surface of a hardware signer so the wallet code is identical
// either way; only construction differs.
type LocalDevice struct {
	mu        sync.Mutex
	masterKey *hdkeychain.ExtendedKey
	params    *chain.Params
}

// NewLocalDevice creates a software signing device from a mnemonic. The
// passphrase may be empty.
func NewLocalDevice(mnemonic, passphrase string, params *chain.Params) (*LocalDevice, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewLocalDeviceFromSeed(seed, params)
}

// NewLocalDeviceFromSeed creates a software signing device from a raw seed.
func NewLocalDeviceFromSeed(seed []byte, params *chain.Params) (*LocalDevice, error) {
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &LocalDevice{
		masterKey: masterKey,
		params:    params,
	}, nil
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256) // 256 bits = 24 words
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}

// derive walks the path from the master key. Caller holds d.mu.
func (d *LocalDevice) derive(path string) (*hdkeychain.ExtendedKey, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	key := d.masterKey
	for _, idx := range indices {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", path, err)
		}
	}
	return key, nil
}

// GetWalletPublicKey returns the public key and P2PKH address at path.
func (d *LocalDevice) GetWalletPublicKey(ctx context.Context, path string) (*WalletPublicKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key, err := d.derive(path)
	if err != nil {
		return nil, &CommunicationError{Op: "getWalletPublicKey", Err: err}
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, &CommunicationError{Op: "getWalletPublicKey", Err: err}
	}

	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, d.params.ChainCfg())
	if err != nil {
		return nil, &CommunicationError{Op: "getWalletPublicKey", Err: err}
	}

	return &WalletPublicKey{
		PublicKey: pubKey.SerializeCompressed(),
		Address:   addr.EncodeAddress(),
	}, nil
}

// SignMessage signs message with the key at path using the signed-message
// convention. RFC6979 nonces make the signature deterministic.
func (d *LocalDevice) SignMessage(ctx context.Context, path string, message []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	privKey, err := d.privateKey(path)
	if err != nil {
		return nil, &CommunicationError{Op: "signMessage", Err: err}
	}

	digest := messageDigest(message)
	sig := ecdsa.Sign(privKey, digest)
	return sig.Serialize(), nil
}

// SplitTransaction parses raw transaction bytes.
func (d *LocalDevice) SplitTransaction(rawTx []byte) (*SplitTransaction, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return &SplitTransaction{Tx: tx}, nil
}

// SerializeTransactionOutputs serializes the outputs section of a split
// transaction.
func (d *LocalDevice) SerializeTransactionOutputs(tx *SplitTransaction) ([]byte, error) {
	return serializeOutputs(tx.Tx)
}

// SignTransaction signs the given inputs with SIGHASH_ALL, returning one
// signature per spec in order. The transaction itself is not modified;
// script assembly is the caller's job.
func (d *LocalDevice) SignTransaction(ctx context.Context, tx *SplitTransaction, inputs []InputSignSpec) ([]SignedInput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(inputs) != len(tx.Tx.TxIn) {
		return nil, fmt.Errorf("have %d inputs, got %d sign specs", len(tx.Tx.TxIn), len(inputs))
	}

	signed := make([]SignedInput, len(inputs))
	for i, spec := range inputs {
		if spec.Path == "" {
			// Not ours to sign (e.g. counterparty input).
			continue
		}

		privKey, err := d.privateKey(spec.Path)
		if err != nil {
			return nil, &CommunicationError{Op: "signTransaction", Err: err}
		}

		sigHash, err := txscript.CalcSignatureHash(spec.Script, txscript.SigHashAll, tx.Tx, i)
		if err != nil {
			return nil, fmt.Errorf("sighash for input %d: %w", i, err)
		}

		sig := ecdsa.Sign(privKey, sigHash)
		signed[i] = SignedInput{
			Signature: append(sig.Serialize(), byte(txscript.SigHashAll)),
			PublicKey: privKey.PubKey().SerializeCompressed(),
		}
	}

	return signed, nil
}

// privateKey derives the private key at path. Caller holds d.mu.
func (d *LocalDevice) privateKey(path string) (*btcec.PrivateKey, error) {
	key, err := d.derive(path)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}

// messageDigest computes the double-SHA256 of the magic-prefixed message.
func messageDigest(message []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(messageMagic)
	wire.WriteVarInt(&buf, 0, uint64(len(message)))
	buf.Write(message)
	digest := chainhash.DoubleHashB(buf.Bytes())
	return digest
}

var _ Device = (*LocalDevice)(nil)
