/*

Token table of the simulated deployment.

Addresses are derived from the symbol so they stay stable across restarts
and match what a persisted store recorded. Prices are quoted in the base
asset and seed the simulated swap market.

*/

package config

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/utils"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// BaseAssetSymbol is the asset depositors hold.
const BaseAssetSymbol = "USDC"

// TokenInfo describes one simulated token.
type TokenInfo struct {
	Symbol   string
	Decimals int
	Price    string // in base asset per whole token
}

// Address returns the token handle.
func (t TokenInfo) Address() common.Address {
	return types.DeriveAddress("token:" + t.Symbol)
}

// RateTo returns how many base units of quote one base unit of t buys.
func (t TokenInfo) RateTo(quote TokenInfo) (sdkmath.LegacyDec, error) {
	price, err := sdkmath.LegacyNewDecFromStr(t.Price)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("invalid price of %s: %w", t.Symbol, err)
	}
	quotePrice, err := sdkmath.LegacyNewDecFromStr(quote.Price)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("invalid price of %s: %w", quote.Symbol, err)
	}
	if !quotePrice.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("price of %s must be positive", quote.Symbol)
	}
	scaled := price.Quo(quotePrice).
		MulInt(sdkmath.NewIntWithDecimal(1, quote.Decimals)).
		QuoInt(sdkmath.NewIntWithDecimal(1, t.Decimals))
	return scaled, nil
}

// Units converts a whole-token amount such as "1.5" to base units of t.
func (t TokenInfo) Units(amount string) (sdkmath.Int, error) {
	return utils.ParseUnits(amount, t.Decimals)
}

var (
	SimulationTokens = map[string]TokenInfo{
		"USDC":  {Symbol: "USDC", Decimals: 6, Price: "1"},
		"SUSD":  {Symbol: "SUSD", Decimals: 6, Price: "1"},
		"CRV":   {Symbol: "CRV", Decimals: 18, Price: "0.45"},
		"CVX":   {Symbol: "CVX", Decimals: 18, Price: "2.6"},
		"COMP":  {Symbol: "COMP", Decimals: 18, Price: "48"},
		"3POOL": {Symbol: "3POOL", Decimals: 6, Price: "1"},
	}
)

// Token looks a symbol up in SimulationTokens.
func Token(symbol string) (TokenInfo, error) {
	info, ok := SimulationTokens[symbol]
	if !ok {
		return TokenInfo{}, fmt.Errorf("unknown simulation token %q", symbol)
	}
	return info, nil
}
