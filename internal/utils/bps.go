package utils

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

const basisPoints = 10_000

// ValidateBps rejects values above 100%.
func ValidateBps(bps uint64) error {
	if bps > basisPoints {
		return fmt.Errorf("basis points %d exceed %d", bps, basisPoints)
	}
	return nil
}

// MulBps returns amount * bps / 10000, rounded down.
func MulBps(amount sdkmath.Int, bps uint64) sdkmath.Int {
	if amount.IsNil() || bps == 0 {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewIntFromUint64(bps)).Quo(sdkmath.NewInt(basisPoints))
}

// MinAfterSlippage returns the lowest acceptable output for an expected amount
// under a slippage tolerance: expected * (10000 - bps) / 10000.
func MinAfterSlippage(expected sdkmath.Int, bps uint64) sdkmath.Int {
	if expected.IsNil() {
		return sdkmath.ZeroInt()
	}
	if bps >= basisPoints {
		return sdkmath.ZeroInt()
	}
	return expected.Mul(sdkmath.NewIntFromUint64(basisPoints - bps)).Quo(sdkmath.NewInt(basisPoints))
}

// MulRatio returns amount * num / den, rounded down. A zero denominator yields zero.
func MulRatio(amount sdkmath.Int, num, den uint64) sdkmath.Int {
	if den == 0 || amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewIntFromUint64(num)).Quo(sdkmath.NewIntFromUint64(den))
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// MulDiv returns a * b / c rounded down. A zero c yields zero.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	if c.IsNil() || c.IsZero() || a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.Mul(b).Quo(c)
}

// MulDivUp returns a * b / c rounded up. A zero c yields zero.
func MulDivUp(a, b, c sdkmath.Int) sdkmath.Int {
	if c.IsNil() || c.IsZero() || a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.Mul(b).Add(c).SubRaw(1).Quo(c)
}
