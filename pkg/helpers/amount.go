package helpers

import (
	"fmt"
	"strings"
)

// FormatAmount renders an integer amount in the smallest unit as a decimal
// string with the given number of decimals, trimming trailing zeros.
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}
	div := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		div *= 10
	}
	whole := amount / div
	frac := amount % div

	s := fmt.Sprintf("%d.%0*d", whole, decimals, frac)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ParseAmount converts a decimal string to an integer amount in the smallest
// unit. Fails on more fractional digits than the chain supports.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	parts := strings.SplitN(s, ".", 2)

	var whole, frac uint64
	if parts[0] != "" {
		if _, err := fmt.Sscanf(parts[0], "%d", &whole); err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}

	mult := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		mult *= 10
	}

	if len(parts) == 2 {
		fracStr := parts[1]
		if uint8(len(fracStr)) > decimals {
			return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
		}
		for uint8(len(fracStr)) < decimals {
			fracStr += "0"
		}
		if _, err := fmt.Sscanf(fracStr, "%d", &frac); err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}

	return whole*mult + frac, nil
}
