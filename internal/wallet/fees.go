// Package wallet implements the key-owning capability provider: address
// discovery over a BIP44 derivation tree, coin selection, and transaction
// assembly, with all signing delegated to a device.
package wallet

import (
	"github.com/7flash/chainabstractionlayer/internal/chain"
)

// DustThreshold is the smallest change output worth creating. Anything below
// is absorbed into the fee.
const DustThreshold = 546

// CalculateFee returns the fee for a transaction shape under the linear size
// model: (inputs*bytesPerInput + outputs*bytesPerOutput + overhead) *
// feePerByte. Non-decreasing in every argument.
func CalculateFee(params *chain.Params, numInputs, numOutputs, feePerByte uint64) uint64 {
	size := numInputs*params.BytesPerInput + numOutputs*params.BytesPerOutput + params.TxOverhead
	return size * feePerByte
}
