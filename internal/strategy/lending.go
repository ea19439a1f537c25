package strategy

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// LendingConfig configures a LendingMarket strategy.
type LendingConfig struct {
	Config
	Market MoneyMarket
}

// LendingMarket supplies base asset to a money market. Interest accrues to
// the supplied balance; the market's incentive token is the reward. Only the
// market's cash can be withdrawn at any moment.
type LendingMarket struct {
	*Base
	market MoneyMarket
}

// NewLendingMarket creates the strategy with the market's incentive token as
// its primary reward.
func NewLendingMarket(cfg LendingConfig) (*LendingMarket, error) {
	if cfg.Market == nil {
		return nil, errors.New("lending strategy needs a money market")
	}
	if cfg.Market.Underlying() != cfg.Asset {
		return nil, fmt.Errorf("market underlying %s is not the strategy asset %s",
			cfg.Market.Underlying().Hex(), cfg.Asset.Hex())
	}
	b, err := newBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	s := &LendingMarket{Base: b, market: cfg.Market}
	b.pos = s
	if incentive := cfg.Market.IncentiveToken(); incentive != (common.Address{}) {
		b.state.rewardTokens = append(b.state.rewardTokens, incentive)
	}
	return s, nil
}

func (s *LendingMarket) deploy(ctx context.Context, amount sdkmath.Int) error {
	return s.market.Supply(ctx, s.address, amount)
}

func (s *LendingMarket) value(ctx context.Context) sdkmath.Int {
	return s.market.BalanceOfUnderlying(ctx, s.address)
}

func (s *LendingMarket) liquidity(ctx context.Context) sdkmath.Int {
	return utils.MinInt(s.value(ctx), s.market.Cash(ctx))
}

func (s *LendingMarket) free(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	amount = utils.MinInt(amount, s.liquidity(ctx))
	if amount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.market.RedeemUnderlying(ctx, s.address, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

// freeAll redeems as much as the market's cash allows.
func (s *LendingMarket) freeAll(ctx context.Context) (sdkmath.Int, error) {
	return s.free(ctx, s.value(ctx))
}

func (s *LendingMarket) claim(ctx context.Context) error {
	_, err := s.market.ClaimIncentives(ctx, s.address)
	return err
}

func (s *LendingMarket) pending(ctx context.Context, token common.Address) sdkmath.Int {
	if token != s.market.IncentiveToken() {
		return sdkmath.ZeroInt()
	}
	return s.market.PendingIncentives(ctx, s.address)
}

func (s *LendingMarket) realize(context.Context) error { return nil }
