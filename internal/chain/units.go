package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Gwei is one gigawei in wei.
const Gwei = 1_000_000_000

// FromWei converts a raw on-chain amount to a human value using the token's
// decimals. Precision loss only happens at the final float conversion.
func FromWei(v *big.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}

// ToWei converts a human amount to the raw on-chain representation,
// truncating any precision below one wei.
func ToWei(v float64, decimals int32) *big.Int {
	return decimal.NewFromFloat(v).Shift(decimals).Truncate(0).BigInt()
}

// GweiToWei converts a gas price in gwei (fractional allowed) to wei.
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(9).Truncate(0).BigInt()
}

// ApplyFactor multiplies v by factor using fixed-point arithmetic, rounding
// down. Used for gas bumps where float rounding on large wei values would
// drift.
func ApplyFactor(v *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(factor)).Truncate(0).BigInt()
}

// PortionPct returns v * pct / 100 rounded down.
func PortionPct(v *big.Int, pct float64) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Truncate(0).BigInt()
}
