/*

Interfaces of the third-party yield protocols the strategy variants drive.
Each protocol pulls tokens from the `from` address passed to it and pays out
to that same address unless a receiver is named.

*/

package strategy

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// LiquidityPool turns the base asset into LP tokens whose redemption value
// grows with the pool's virtual price.
type LiquidityPool interface {
	Address() common.Address
	LPToken() common.Address
	CalcDeposit(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)
	CalcWithdraw(ctx context.Context, lpAmount sdkmath.Int) (sdkmath.Int, error)
	AddLiquidity(ctx context.Context, from common.Address, amount, minMint sdkmath.Int) (sdkmath.Int, error)
	RemoveLiquidity(ctx context.Context, from common.Address, lpAmount, minOut sdkmath.Int) (sdkmath.Int, error)
}

// Booster stakes LP tokens and streams reward tokens to stakers.
type Booster interface {
	Address() common.Address
	Stake(ctx context.Context, from common.Address, lpAmount sdkmath.Int) error
	Unstake(ctx context.Context, from common.Address, lpAmount sdkmath.Int) error
	Staked(ctx context.Context, account common.Address) sdkmath.Int
	Earned(ctx context.Context, account, rewardToken common.Address) sdkmath.Int
	GetReward(ctx context.Context, account common.Address) error
}

// MoneyMarket is a lending market for the base asset. Redemptions are
// bounded by the market's cash.
type MoneyMarket interface {
	Address() common.Address
	Underlying() common.Address
	IncentiveToken() common.Address
	Supply(ctx context.Context, from common.Address, amount sdkmath.Int) error
	RedeemUnderlying(ctx context.Context, from common.Address, amount sdkmath.Int) error
	BalanceOfUnderlying(ctx context.Context, account common.Address) sdkmath.Int
	Cash(ctx context.Context) sdkmath.Int
	PendingIncentives(ctx context.Context, account common.Address) sdkmath.Int
	ClaimIncentives(ctx context.Context, account common.Address) (sdkmath.Int, error)
}

// ShareVault is a tokenized vault over a synthetic asset. Yield accrues to
// the share price.
type ShareVault interface {
	Address() common.Address
	Asset() common.Address
	Deposit(ctx context.Context, from common.Address, assets sdkmath.Int) (sdkmath.Int, error)
	Redeem(ctx context.Context, from common.Address, shares sdkmath.Int) (sdkmath.Int, error)
	SharesOf(ctx context.Context, account common.Address) sdkmath.Int
	ConvertToAssets(ctx context.Context, shares sdkmath.Int) sdkmath.Int
	ConvertToShares(ctx context.Context, assets sdkmath.Int) sdkmath.Int
}
