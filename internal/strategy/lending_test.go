package strategy_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var moneyMarketAddr = common.HexToAddress("0x4003")

func newLending(t *testing.T, f *fixture) (*strategy.LendingMarket, *simulations.MoneyMarket) {
	t.Helper()
	mm := simulations.NewMoneyMarket(f.ledger, moneyMarketAddr, usdc, comp)
	s, err := strategy.NewLendingMarket(strategy.LendingConfig{Config: f.config("lending"), Market: mm})
	require.NoError(t, err)
	return s, mm
}

func TestLendingRejectsForeignMarket(t *testing.T) {
	f := newFixture(t)
	mm := simulations.NewMoneyMarket(f.ledger, moneyMarketAddr, susd, comp)
	_, err := strategy.NewLendingMarket(strategy.LendingConfig{Config: f.config("lending"), Market: mm})
	assert.Error(t, err)
}

func TestLendingLiquidityIsCashBound(t *testing.T) {
	f := newFixture(t)
	s, mm := newLending(t, f)
	assert.Equal(t, []common.Address{comp}, s.RewardTokens(f.ctx))

	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))
	assert.Equal(t, sdkmath.NewInt(1_000), s.MaxWithdraw(f.ctx))

	require.NoError(t, mm.Borrow(f.ctx, sdkmath.NewInt(900)))
	assert.Equal(t, sdkmath.NewInt(100), s.MaxWithdraw(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_000), s.TotalAssets(f.ctx, false))

	_, err := s.Withdraw(f.ctx, controllerAddr, sdkmath.NewInt(200))
	assert.ErrorIs(t, err, types.ErrExceedTotalDeposit)

	out, err := s.Withdraw(f.ctx, controllerAddr, sdkmath.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), out)
	assert.True(t, s.MaxWithdraw(f.ctx).IsZero())

	require.NoError(t, mm.Repay(f.ctx, sdkmath.NewInt(900)))
	assert.Equal(t, sdkmath.NewInt(900), s.MaxWithdraw(f.ctx))
}

func TestLendingInterestAndIncentives(t *testing.T) {
	f := newFixture(t)
	s, mm := newLending(t, f)
	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))

	require.NoError(t, mm.AccrueInterest(f.ctx, sdkmath.NewInt(100)))
	assert.Equal(t, sdkmath.NewInt(1_100), s.TotalAssets(f.ctx, false))

	require.NoError(t, mm.AccrueIncentives(f.ctx, strategyAddr, sdkmath.NewInt(4)))
	// no route yet, so the incentive is not valued
	assert.Equal(t, sdkmath.NewInt(1_100), s.TotalAssets(f.ctx, true))

	require.NoError(t, s.SetRewardRoute(f.ctx, owner, comp, f.routes[comp]))
	assert.Equal(t, sdkmath.NewInt(1_120), s.TotalAssets(f.ctx, true))

	proceeds, err := s.Harvest(f.ctx, controllerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(20), proceeds)
	assert.True(t, mm.PendingIncentives(f.ctx, strategyAddr).IsZero())
}

func TestLendingEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	s, _ := newLending(t, f)
	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))

	out, err := s.EmergencyWithdraw(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), out)
	assert.Equal(t, types.StatusDrained, s.Status(f.ctx))
	assert.True(t, s.TotalAssets(f.ctx, false).IsZero())
}
