package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToSDKInt(t *testing.T) {
	got, err := Float64ToSDKInt(0.9, 18)
	require.NoError(t, err)
	assert.Equal(t, "900000000000000000", got.String())

	_, err = Float64ToSDKInt(-1, 18)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = Float64ToSDKInt(1, 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestSDKIntToFloat64(t *testing.T) {
	got, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 1e-9)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestParseUnits(t *testing.T) {
	got, err := ParseUnits("0.11", 18)
	require.NoError(t, err)
	assert.Equal(t, "110000000000000000", got.String())

	_, err = ParseUnits("abc", 18)
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestBpsMath(t *testing.T) {
	amount := sdkmath.NewInt(1_000_000)

	assert.Equal(t, sdkmath.NewInt(100_000), MulBps(amount, 1_000))
	assert.True(t, MulBps(amount, 0).IsZero())
	assert.Equal(t, sdkmath.NewInt(990_000), MinAfterSlippage(amount, 100))
	assert.True(t, MinAfterSlippage(amount, 10_000).IsZero())
	assert.Equal(t, sdkmath.NewInt(333_333), MulRatio(amount, 1, 3))
	assert.True(t, MulRatio(amount, 1, 0).IsZero())
	assert.Equal(t, sdkmath.NewInt(333_333), MulDiv(amount, sdkmath.NewInt(1), sdkmath.NewInt(3)))
	assert.Equal(t, sdkmath.NewInt(333_334), MulDivUp(amount, sdkmath.NewInt(1), sdkmath.NewInt(3)))
	assert.Equal(t, sdkmath.NewInt(500_000), MulDivUp(amount, sdkmath.NewInt(1), sdkmath.NewInt(2)))
	assert.True(t, MulDiv(amount, amount, sdkmath.ZeroInt()).IsZero())

	require.NoError(t, ValidateBps(10_000))
	assert.Error(t, ValidateBps(10_001))
}
