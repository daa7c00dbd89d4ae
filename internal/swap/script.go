// Package swap implements the HTLC script engine and the swap lifecycle
// provider built on it.
//
// The locking script is a two-branch redeem condition: the claim branch
// releases funds to the recipient against the secret preimage, the refund
// branch releases them back to the initiator after an absolute time lock.
// Swaps use legacy P2SH so the same script works on every supported chain.
package swap

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/pkg/helpers"
)

// ConfigurationError reports an invalid address, network, or script
// parameter. Detected before any chain interaction.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// BuildSwapScript builds the HTLC redeem script.
//
// Script structure:
//
//	OP_IF
//	    OP_SIZE 32 OP_EQUALVERIFY
//	    OP_SHA256 <secret_hash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <recipient_pubkey_hash>
//	OP_ELSE
//	    <expiration> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <refund_pubkey_hash>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
//
// Claim path (OP_IF branch): secret preimage + recipient signature, any time.
// Refund path (OP_ELSE branch): refund signature after the absolute lock
// time. The trailing OP_EQUALVERIFY OP_CHECKSIG is shared by both branches.
//
// Output is byte-exact for identical inputs: the script builder uses minimal
// pushes and the expiration is encoded as a canonical script number.
func BuildSwapScript(recipientPKH, refundPKH []byte, secretHash [client.SecretHashSize]byte, expiration int64) ([]byte, error) {
	if len(recipientPKH) != 20 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("recipient pubkey hash must be 20 bytes, got %d", len(recipientPKH))}
	}
	if len(refundPKH) != 20 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("refund pubkey hash must be 20 bytes, got %d", len(refundPKH))}
	}
	if expiration <= 0 {
		return nil, &ConfigurationError{Reason: "expiration must be positive"}
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(client.SecretSize)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(recipientPKH)

	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(expiration)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(refundPKH)

	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// BuildSwapScriptForParams builds the redeem script from swap parameters,
// decoding both addresses against the chain's version bytes.
func BuildSwapScriptForParams(params client.SwapParams, chainParams *chain.Params) ([]byte, error) {
	recipientPKH, err := PubKeyHash(params.RecipientAddress.Value, chainParams)
	if err != nil {
		return nil, err
	}
	refundPKH, err := PubKeyHash(params.RefundAddress.Value, chainParams)
	if err != nil {
		return nil, err
	}
	return BuildSwapScript(recipientPKH, refundPKH, params.SecretHash, params.Expiration)
}

// PubKeyHash decodes a P2PKH address and returns its 20-byte hash. Any other
// address type, or a version byte from another network, is a
// ConfigurationError rather than a silent default.
func PubKeyHash(address string, chainParams *chain.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, chainParams.ChainCfg())
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid address %q: %v", address, err)}
	}

	pkh, ok := decoded.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("address %q is not pay-to-pubkey-hash", address)}
	}
	return pkh.Hash160()[:], nil
}

// DeriveSwapAddress returns the P2SH address locking to script: version byte
// + hash160(script), base58check encoded per the network's rules.
func DeriveSwapAddress(script []byte, chainParams *chain.Params) (client.Address, error) {
	addr, err := btcutil.NewAddressScriptHash(script, chainParams.ChainCfg())
	if err != nil {
		return client.Address{}, &ConfigurationError{Reason: fmt.Sprintf("failed to derive swap address: %v", err)}
	}
	return client.Address{Value: addr.EncodeAddress()}, nil
}

// SwapOutputScript returns the P2SH scriptPubKey paying to script:
// OP_HASH160 <hash160(script)> OP_EQUAL.
func SwapOutputScript(script []byte) []byte {
	scriptHash := btcutil.Hash160(script)
	out, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(scriptHash).
		AddOp(txscript.OP_EQUAL).
		Script()
	return out
}

// MatchSwapOutput recomputes the expected P2SH output script from params and
// compares byte-for-byte. A mismatch is a negative result, never an error;
// only unbuildable params fail.
func MatchSwapOutput(outputScript []byte, params client.SwapParams, chainParams *chain.Params) (bool, error) {
	script, err := BuildSwapScriptForParams(params, chainParams)
	if err != nil {
		return false, err
	}
	return helpers.BytesEqual(outputScript, SwapOutputScript(script)), nil
}

// p2pkhScript returns the standard pay-to-pubkey-hash output script:
// OP_DUP OP_HASH160 <pkh> OP_EQUALVERIFY OP_CHECKSIG.
func p2pkhScript(pkh []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pkh).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// ClaimSigScript assembles the signature script spending the claim branch:
// <sig> <pubkey> <secret> OP_TRUE <redeem script>.
func ClaimSigScript(sig, pubKey, secret, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddData(secret).
		AddInt64(1).
		AddData(redeemScript).
		Script()
}

// RefundSigScript assembles the signature script spending the refund branch:
// <sig> <pubkey> OP_FALSE <redeem script>.
func RefundSigScript(sig, pubKey, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddInt64(0).
		AddData(redeemScript).
		Script()
}

// ExtractSecret scans a signature script for a data push whose SHA256 digest
// equals secretHash. Returns the preimage, or false when the script reveals
// no matching push.
func ExtractSecret(sigScript []byte, secretHash [client.SecretHashSize]byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, sigScript)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) != client.SecretSize {
			continue
		}
		if sha256.Sum256(data) == secretHash {
			return data, true
		}
	}
	return nil, false
}

// GenerateSecret generates a cryptographically secure 32-byte secret and
// returns both the secret and its SHA256 digest.
func GenerateSecret() (secret []byte, hash [client.SecretHashSize]byte, err error) {
	secret, err = helpers.GenerateSecureRandom(client.SecretSize)
	if err != nil {
		return nil, hash, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, sha256.Sum256(secret), nil
}

// VerifySecret checks a preimage against the expected digest in constant
// time.
func VerifySecret(secret []byte, expectedHash [client.SecretHashSize]byte) bool {
	if len(secret) != client.SecretSize {
		return false
	}
	actual := sha256.Sum256(secret)
	return helpers.ConstantTimeCompare(actual[:], expectedHash[:])
}
