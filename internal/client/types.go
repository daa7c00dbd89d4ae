package client

import (
	"crypto/sha256"
	"encoding/hex"
)

// Address is a chain address, optionally annotated with the derivation path
// that produced it. The path is set only for addresses owned by the local
// key hierarchy; addresses belonging to a counterparty carry none.
type Address struct {
	Value          string
	DerivationPath string
}

// String returns the encoded address.
func (a Address) String() string { return a.Value }

// SecretHashSize is the byte length of a swap secret hash (SHA256 digest).
const SecretHashSize = 32

// SecretSize is the byte length of a swap secret preimage.
const SecretSize = 32

// SwapParams are the immutable parameters of one swap attempt. Expiration is
// an absolute unix timestamp after which the refund branch of the swap
// script becomes spendable.
type SwapParams struct {
	RecipientAddress Address
	RefundAddress    Address
	SecretHash       [SecretHashSize]byte
	Expiration       int64
}

// HashSecret returns the SHA256 digest binding a secret to the claim branch.
func HashSecret(secret []byte) [SecretHashSize]byte {
	return sha256.Sum256(secret)
}

// UTXO is an unspent transaction output owned by the local wallet. UTXOs are
// read from the query provider on demand and never cached.
type UTXO struct {
	TxHash         string
	OutputIndex    uint32
	Value          uint64
	Address        string
	DerivationPath string
}

// TxInput is an input of an observed transaction.
type TxInput struct {
	TxHash      string
	OutputIndex uint32
	ScriptSig   []byte
	Sequence    uint32
}

// TxOutput is an output of an observed transaction.
type TxOutput struct {
	Value  uint64
	Script []byte
}

// Transaction is a chain transaction as observed through a query provider.
type Transaction struct {
	ID       string
	Raw      []byte
	LockTime uint32
	Inputs   []TxInput
	Outputs  []TxOutput
}

// RawHex returns the raw transaction bytes as hex.
func (t *Transaction) RawHex() string { return hex.EncodeToString(t.Raw) }
