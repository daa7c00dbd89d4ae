package wallet

import (
	"context"
	"errors"

	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
)

// ErrInsufficientFunds is returned when the scanned addresses cannot cover
// the target amount plus the fee induced by the selected set.
var ErrInsufficientFunds = errors.New("insufficient funds")

// addressFunds is one derivation index's worth of spendable outputs. used
// reports whether the address has any transaction history; the scan stops
// after gapLimit consecutive unused addresses.
type addressFunds struct {
	utxos []client.UTXO
	used  bool
}

// fundsFetcher returns the funds at one derivation index.
type fundsFetcher func(ctx context.Context, index uint32) (addressFunds, error)

// selection is a successful coin-selection result. Change of zero means no
// change output: the surplus was below dust and went to the fee.
type selection struct {
	utxos  []client.UTXO
	fee    uint64
	change uint64
}

// selectUTXOs accumulates UTXOs address by address, in ascending derivation
// order, until the collected value covers target plus the fee for the exact
// set chosen. The fee is first computed for a single output; once that is
// covered the cost is recomputed with a change output added, and collection
// continues until the two-output cost is covered too (or the surplus is dust,
// in which case no change output is used).
//
// The scan is bounded by gapLimit consecutive unused addresses; running out
// of funds inside that bound fails with ErrInsufficientFunds, never a partial
// set. Given a fixed UTXO universe the result is deterministic.
func selectUTXOs(ctx context.Context, fetch fundsFetcher, params *chain.Params, target, feePerByte uint64, gapLimit uint32) (*selection, error) {
	var (
		selected []client.UTXO
		sum      uint64
		gap      uint32
	)

	for index := uint32(0); gap < gapLimit; index++ {
		funds, err := fetch(ctx, index)
		if err != nil {
			return nil, err
		}

		if funds.used {
			gap = 0
		} else {
			gap++
		}

		for _, u := range funds.utxos {
			selected = append(selected, u)
			sum += u.Value

			n := uint64(len(selected))
			feeNoChange := CalculateFee(params, n, 1, feePerByte)
			if sum < target+feeNoChange {
				continue
			}

			// Target covered without change; see if the surplus is
			// worth a change output.
			feeWithChange := CalculateFee(params, n, 2, feePerByte)
			if sum >= target+feeWithChange {
				change := sum - target - feeWithChange
				if change <= DustThreshold {
					return &selection{utxos: selected, fee: sum - target}, nil
				}
				return &selection{utxos: selected, fee: feeWithChange, change: change}, nil
			}

			// Surplus over the no-change fee is too small to pay for
			// the change output itself: spend it as fee.
			return &selection{utxos: selected, fee: sum - target}, nil
		}
	}

	return nil, ErrInsufficientFunds
}
