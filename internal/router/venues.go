/*

Interfaces of the external liquidity venues the adapters drive. Pricing is
entirely the venue's concern: an adapter only asks "swap amount A along path
P and pay at least minOut to the recipient". Venues pull the input from the
`from` address, which is always the adapter holding the tokens.

*/

package router

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// UniswapV2Venue is a constant-product router.
type UniswapV2Venue interface {
	Address() common.Address
	GetAmountsOut(ctx context.Context, amountIn sdkmath.Int, path []common.Address) ([]sdkmath.Int, error)
	SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin sdkmath.Int,
		path []common.Address, to common.Address) ([]sdkmath.Int, error)
}

// ExactInputParams mirrors the concentrated-liquidity router's exactInput call.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         sdkmath.Int
	AmountOutMinimum sdkmath.Int
}

// UniswapV3Venue is a concentrated-liquidity router with a quoter.
type UniswapV3Venue interface {
	Address() common.Address
	QuoteExactInput(ctx context.Context, path []byte, amountIn sdkmath.Int) (sdkmath.Int, error)
	ExactInput(ctx context.Context, from common.Address, params ExactInputParams) (sdkmath.Int, error)
}

// CurvePool is a stableswap pool addressed by coin index.
type CurvePool interface {
	Address() common.Address
	Coins(ctx context.Context, i int) (common.Address, error)
	GetDy(ctx context.Context, i, j int, dx sdkmath.Int) (sdkmath.Int, error)
	Exchange(ctx context.Context, from common.Address, i, j int, dx, minDy sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
}

// SingleSwap is one swap against one weighted pool.
type SingleSwap struct {
	PoolID   common.Hash
	AssetIn  common.Address
	AssetOut common.Address
	Amount   sdkmath.Int
}

// BatchSwapStep is one hop of a batch swap. A zero Amount consumes the
// output of the previous step.
type BatchSwapStep struct {
	PoolID        common.Hash
	AssetInIndex  int
	AssetOutIndex int
	Amount        sdkmath.Int
}

// FundManagement names who pays and who receives.
type FundManagement struct {
	Sender    common.Address
	Recipient common.Address
}

// BalancerVault is the single entry point of a weighted-pool venue. Batch
// deltas are signed from the vault's point of view: positive amounts are paid
// into the vault, negative amounts out of it. limits bound each delta from
// above.
type BalancerVault interface {
	Address() common.Address
	QuerySwap(ctx context.Context, swap SingleSwap) (sdkmath.Int, error)
	Swap(ctx context.Context, swap SingleSwap, funds FundManagement, limit sdkmath.Int) (sdkmath.Int, error)
	QueryBatchSwap(ctx context.Context, steps []BatchSwapStep, assets []common.Address) ([]sdkmath.Int, error)
	BatchSwap(ctx context.Context, steps []BatchSwapStep, assets []common.Address, funds FundManagement,
		limits []sdkmath.Int) ([]sdkmath.Int, error)
}
