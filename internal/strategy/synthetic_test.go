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

var syntheticVaultAddr = common.HexToAddress("0x4004")

func newSynthetic(t *testing.T, f *fixture) (*strategy.SyntheticAsset, *simulations.SyntheticVault) {
	t.Helper()
	vault := simulations.NewSyntheticVault(f.ledger, syntheticVaultAddr, susd)
	s, err := strategy.NewSyntheticAsset(strategy.SyntheticConfig{Config: f.config("synthetic"), Vault: vault})
	require.NoError(t, err)
	return s, vault
}

func TestSyntheticNeedsSwapPaths(t *testing.T) {
	f := newFixture(t)
	s, _ := newSynthetic(t, f)

	err := s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000))
	assert.ErrorIs(t, err, types.ErrPathNotFound)
	assert.Equal(t, sdkmath.NewInt(100_000), f.balance(usdc, controllerAddr))

	assert.ErrorIs(t, s.SetSwapPath(f.ctx, stranger, f.routes[usdc], f.routes[susd]), types.ErrUnauthorized)
	assert.ErrorIs(t, s.SetSwapPath(f.ctx, owner, f.routes[susd], f.routes[usdc]), types.ErrInvalidArgument)
	require.NoError(t, s.SetSwapPath(f.ctx, owner, f.routes[usdc], f.routes[susd]))
	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))
}

func TestSyntheticHarvestRealizesExcess(t *testing.T) {
	f := newFixture(t)
	s, vault := newSynthetic(t, f)
	require.NoError(t, s.SetSwapPath(f.ctx, owner, f.routes[usdc], f.routes[susd]))
	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))

	assert.Equal(t, sdkmath.NewInt(1_000), vault.SharesOf(f.ctx, strategyAddr))
	assert.Equal(t, sdkmath.NewInt(1_000), s.TotalAssets(f.ctx, false))

	proceeds, err := s.Harvest(f.ctx, controllerAddr, nil)
	require.NoError(t, err)
	assert.True(t, proceeds.IsZero())

	require.NoError(t, vault.AccrueYield(f.ctx, sdkmath.NewInt(100)))
	assert.Equal(t, sdkmath.NewInt(1_100), s.TotalAssets(f.ctx, false))

	before := f.balance(usdc, controllerAddr)
	proceeds, err = s.Harvest(f.ctx, controllerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), proceeds)
	assert.Equal(t, before.AddRaw(100), f.balance(usdc, controllerAddr))
	assert.Equal(t, sdkmath.NewInt(1_000), s.Principal(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_000), s.TotalAssets(f.ctx, false))
}

func TestSyntheticWithdrawAndDrain(t *testing.T) {
	f := newFixture(t)
	s, _ := newSynthetic(t, f)
	require.NoError(t, s.SetSwapPath(f.ctx, owner, f.routes[usdc], f.routes[susd]))
	require.NoError(t, s.Deposit(f.ctx, controllerAddr, sdkmath.NewInt(1_000)))

	out, err := s.Withdraw(f.ctx, controllerAddr, sdkmath.NewInt(250))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(250), out)
	assert.Equal(t, sdkmath.NewInt(750), s.Principal(f.ctx))

	f.market.SetExecutionSkew(sdkmath.LegacyMustNewDecFromStr("0.9"))
	_, err = s.Withdraw(f.ctx, controllerAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)
	f.market.SetExecutionSkew(sdkmath.LegacyOneDec())

	drained, err := s.EmergencyWithdraw(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(750), drained)
	assert.Equal(t, types.StatusDrained, s.Status(f.ctx))
}
