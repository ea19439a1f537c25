/*
Conversions between human-readable token amounts and the integer base units
the ledger stores, using SDK math for precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// MaxPrecision is the largest number of decimals a token may declare.
const MaxPrecision = 18

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

func validatePrecision(precision int) error {
	if precision < 0 || precision > MaxPrecision {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, MaxPrecision)
	}
	return nil
}

// scale returns 10^precision as a decimal.
func scale(precision int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromInt(sdkmath.NewIntWithDecimal(1, precision))
}

// SDKIntToFloat64 converts base units to a float for display.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if err := validatePrecision(precision); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	resultFloat, err := sdkmath.LegacyNewDecFromInt(amount).Quo(scale(precision)).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}
	return resultFloat, nil
}

// Float64ToSDKInt converts a whole-token amount such as 0.9 into base units.
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if err := validatePrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Go through the string form so 0.9 does not become 0.899999...
	amountStr := fmt.Sprintf("%.*f", precision, amount)
	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return decAmount.Mul(scale(precision)).TruncateInt(), nil
}

// ParseUnits converts a decimal string such as "1.5" into base units without
// passing through float64.
func ParseUnits(amount string, precision int) (sdkmath.Int, error) {
	if err := validatePrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	dec, err := sdkmath.LegacyNewDecFromStr(amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if dec.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return dec.Mul(scale(precision)).TruncateInt(), nil
}
