package strategy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// StakingConfig configures a StakingDerivative.
type StakingConfig struct {
	Config
	Pool         LiquidityPool
	Booster      Booster
	RewardTokens []common.Address
}

// StakingDerivative provides base asset to a liquidity pool and stakes the
// LP tokens in a booster that pays one or more reward tokens.
type StakingDerivative struct {
	*Base
	pool    LiquidityPool
	booster Booster
}

// NewStakingDerivative creates the strategy. Reward tokens are registered in
// the given order; the first one is the primary reward.
func NewStakingDerivative(cfg StakingConfig) (*StakingDerivative, error) {
	if cfg.Pool == nil || cfg.Booster == nil {
		return nil, errors.New("staking strategy needs a pool and a booster")
	}
	b, err := newBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	s := &StakingDerivative{Base: b, pool: cfg.Pool, booster: cfg.Booster}
	b.pos = s
	for _, token := range cfg.RewardTokens {
		if token == (common.Address{}) || slices.Contains(b.state.rewardTokens, token) {
			return nil, fmt.Errorf("invalid or duplicate reward token %s", token.Hex())
		}
		b.state.rewardTokens = append(b.state.rewardTokens, token)
	}
	return s, nil
}

func (s *StakingDerivative) deploy(ctx context.Context, amount sdkmath.Int) error {
	expected, err := s.pool.CalcDeposit(ctx, amount)
	if err != nil {
		return err
	}
	minted, err := s.pool.AddLiquidity(ctx, s.address, amount, utils.MinAfterSlippage(expected, s.state.depositSlippageBps))
	if err != nil {
		return err
	}
	return s.booster.Stake(ctx, s.address, minted)
}

func (s *StakingDerivative) value(ctx context.Context) sdkmath.Int {
	staked := s.booster.Staked(ctx, s.address)
	if staked.IsZero() {
		return sdkmath.ZeroInt()
	}
	v, err := s.pool.CalcWithdraw(ctx, staked)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to value staked LP")
		return sdkmath.ZeroInt()
	}
	return v
}

func (s *StakingDerivative) liquidity(ctx context.Context) sdkmath.Int {
	return s.value(ctx)
}

func (s *StakingDerivative) free(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	staked := s.booster.Staked(ctx, s.address)
	lp := utils.MinInt(utils.MulDivUp(amount, staked, s.value(ctx)), staked)
	return s.unstake(ctx, lp)
}

func (s *StakingDerivative) freeAll(ctx context.Context) (sdkmath.Int, error) {
	return s.unstake(ctx, s.booster.Staked(ctx, s.address))
}

func (s *StakingDerivative) unstake(ctx context.Context, lp sdkmath.Int) (sdkmath.Int, error) {
	if lp.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.booster.Unstake(ctx, s.address, lp); err != nil {
		return sdkmath.ZeroInt(), err
	}
	expected, err := s.pool.CalcWithdraw(ctx, lp)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return s.pool.RemoveLiquidity(ctx, s.address, lp, utils.MinAfterSlippage(expected, s.state.withdrawSlippageBps))
}

func (s *StakingDerivative) claim(ctx context.Context) error {
	return s.booster.GetReward(ctx, s.address)
}

func (s *StakingDerivative) pending(ctx context.Context, token common.Address) sdkmath.Int {
	return s.booster.Earned(ctx, s.address, token)
}

func (s *StakingDerivative) realize(context.Context) error { return nil }
