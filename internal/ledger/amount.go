package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is an unsigned fixed-point quantity expressed in the pool's smallest unit.
// Share counts use the same representation.
type Amount = uint256.Int

const bpsDenominator = 10_000

// NewAmount returns v as an Amount.
func NewAmount(v uint64) Amount {
	return *uint256.NewInt(v)
}

// ParseAmount parses a base-10 unsigned integer string.
func ParseAmount(input string) (Amount, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(input)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return *v, nil
}

func addAmount(a, b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.AddOverflow(&a, &b); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

func subAmount(a, b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.SubOverflow(&a, &b); underflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// mulDiv computes floor(a*b/d) with a 512-bit intermediate product.
func mulDiv(a, b, d Amount) (Amount, error) {
	if d.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	var out Amount
	if _, overflow := out.MulDivOverflow(&a, &b, &d); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// FeeFor returns floor(amount * bps / 10000).
func FeeFor(amount Amount, bps uint64) (Amount, error) {
	return mulDiv(amount, NewAmount(bps), NewAmount(bpsDenominator))
}

func less(a, b Amount) bool {
	return a.Lt(&b)
}
