// Package fee implements the protocol fee policy: 0.5% of the payment
// amount, capped at 5 whole token units. The cap is applied in raw token
// units with no price conversion; no oracle is consulted anywhere in the
// service, so a "5 USDC" cap and a "5 ETH" cap are both literally 5 units.
package fee

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// rate is the protocol fee rate, 0.5%.
	rate = decimal.New(5, -3)

	// capUnits is the maximum fee in whole token units.
	capUnits = decimal.NewFromInt(5)
)

// Compute returns the protocol fee for a human-readable decimal amount,
// expressed in base units: min(amount * 0.5%, 5), truncated at the
// currency's decimal precision. The fee is charged in addition to the
// payment amount, never deducted from it.
func Compute(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative, got %q", amount)
	}

	f := d.Mul(rate)
	if f.GreaterThan(capUnits) {
		f = capUnits
	}

	return f.Truncate(decimals).Shift(decimals).BigInt(), nil
}
