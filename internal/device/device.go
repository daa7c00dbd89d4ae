// Package device defines the signing-device boundary. Private keys live
// behind the Device interface; the rest of the codebase sees only public
// keys, addresses and signatures.
package device

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/wire"
)

// CommunicationError wraps a failed device exchange. The device session is
// considered dead after one; callers should reconnect before retrying.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("device: %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// WalletPublicKey is a device response to a public key request.
type WalletPublicKey struct {
	PublicKey []byte // compressed SEC1
	Address   string // P2PKH encoding on the device's network
}

// SplitTransaction is a transaction parsed into the device's internal
// representation. Devices operate on structured transactions, not raw bytes.
type SplitTransaction struct {
	Tx *wire.MsgTx
}

// TxID returns the transaction id of the parsed transaction.
func (s *SplitTransaction) TxID() string {
	return s.Tx.TxHash().String()
}

// InputSignSpec describes one input the device should sign. Script is the
// scriptPubKey being spent for P2PKH inputs, or the redeem script for P2SH
// inputs; legacy sighash treats both the same way.
type InputSignSpec struct {
	Path   string // BIP44 derivation path of the signing key
	Script []byte
}

// SignedInput is a device signature over one input.
type SignedInput struct {
	Signature []byte // DER with sighash byte appended
	PublicKey []byte // compressed SEC1
}

// Device is a transaction-signing device. Implementations must serialize
// access internally: hardware sessions are exclusive and command order
// matters.
type Device interface {
	// GetWalletPublicKey returns the public key and address at path.
	GetWalletPublicKey(ctx context.Context, path string) (*WalletPublicKey, error)

	// SignMessage signs an arbitrary message with the key at path using
	// the Bitcoin signed-message convention. The signature is
	// deterministic for a given key and message.
	SignMessage(ctx context.Context, path string, message []byte) ([]byte, error)

	// SplitTransaction parses raw transaction bytes into the device
	// representation.
	SplitTransaction(rawTx []byte) (*SplitTransaction, error)

	// SerializeTransactionOutputs serializes the outputs section of a
	// split transaction (count + outputs) for device confirmation.
	SerializeTransactionOutputs(tx *SplitTransaction) ([]byte, error)

	// SignTransaction signs the given inputs of an unsigned transaction.
	// One SignedInput is returned per spec, in order.
	SignTransaction(ctx context.Context, tx *SplitTransaction, inputs []InputSignSpec) ([]SignedInput, error)
}

// ParsePath parses a BIP44 derivation path like "44'/0'/0'/0/5" into child
// indices, with the hardened bit set for apostrophe-suffixed components.
// A leading "m/" is accepted and ignored.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimPrefix(path, "m/")
	if path == "" {
		return nil, fmt.Errorf("empty derivation path")
	}

	parts := strings.Split(path, "/")
	out := make([]uint32, len(parts))
	for i, part := range parts {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= hardenedOffset {
			return nil, fmt.Errorf("invalid path component %q", parts[i])
		}
		idx := uint32(n)
		if hardened {
			idx += hardenedOffset
		}
		out[i] = idx
	}
	return out, nil
}

const hardenedOffset = 0x80000000

// serializeOutputs writes the varint output count followed by each output in
// wire format.
func serializeOutputs(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(tx.TxOut))); err != nil {
		return nil, err
	}
	for _, out := range tx.TxOut {
		if err := wire.WriteTxOut(&buf, 0, tx.Version, out); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
