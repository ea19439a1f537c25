package simulations

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// SyntheticVault is a tokenized vault over a synthetic asset. Shares are the
// vault's own token; AccrueYield raises assets per share.
type SyntheticVault struct {
	ledger  *ledger.Ledger
	address common.Address
	asset   common.Address
	totals  map[string]sdkmath.Int
}

// NewSyntheticVault creates a vault over asset.
func NewSyntheticVault(l *ledger.Ledger, address, asset common.Address) *SyntheticVault {
	return &SyntheticVault{
		ledger:  l,
		address: address,
		asset:   asset,
		totals:  make(map[string]sdkmath.Int),
	}
}

func (v *SyntheticVault) Address() common.Address { return v.address }
func (v *SyntheticVault) Asset() common.Address   { return v.asset }

func (v *SyntheticVault) totalAssets(ctx context.Context) sdkmath.Int {
	return v.ledger.BalanceOf(ctx, v.asset, v.address)
}

func (v *SyntheticVault) ConvertToShares(ctx context.Context, assets sdkmath.Int) sdkmath.Int {
	var shares sdkmath.Int
	_ = v.ledger.View(ctx, func(ctx context.Context) error {
		supply := amountOf(v.totals, supplyKey)
		if supply.IsZero() {
			shares = assets
			return nil
		}
		shares = utils.MulDiv(assets, supply, v.totalAssets(ctx))
		return nil
	})
	return shares
}

func (v *SyntheticVault) ConvertToAssets(ctx context.Context, shares sdkmath.Int) sdkmath.Int {
	var assets sdkmath.Int
	_ = v.ledger.View(ctx, func(ctx context.Context) error {
		supply := amountOf(v.totals, supplyKey)
		if supply.IsZero() {
			assets = shares
			return nil
		}
		assets = utils.MulDiv(shares, v.totalAssets(ctx), supply)
		return nil
	})
	return assets
}

func (v *SyntheticVault) SharesOf(ctx context.Context, account common.Address) sdkmath.Int {
	return v.ledger.BalanceOf(ctx, v.address, account)
}

func (v *SyntheticVault) Deposit(ctx context.Context, from common.Address, assets sdkmath.Int) (sdkmath.Int, error) {
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("deposit must be positive"))
	}
	var shares sdkmath.Int
	err := v.ledger.Atomic(ctx, func(ctx context.Context) error {
		shares = v.ConvertToShares(ctx, assets)
		if err := v.ledger.Transfer(ctx, v.asset, from, v.address, assets); err != nil {
			return err
		}
		setAmount(ctx, v.ledger, v.totals, supplyKey, amountOf(v.totals, supplyKey).Add(shares))
		return v.ledger.Mint(ctx, v.address, from, shares)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (v *SyntheticVault) Redeem(ctx context.Context, from common.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("redeem must be positive"))
	}
	var assets sdkmath.Int
	err := v.ledger.Atomic(ctx, func(ctx context.Context) error {
		assets = v.ConvertToAssets(ctx, shares)
		if err := v.ledger.Burn(ctx, v.address, from, shares); err != nil {
			return err
		}
		setAmount(ctx, v.ledger, v.totals, supplyKey, amountOf(v.totals, supplyKey).Sub(shares))
		return v.ledger.Transfer(ctx, v.asset, v.address, from, assets)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

// AccrueYield adds amount of the asset to the vault.
func (v *SyntheticVault) AccrueYield(ctx context.Context, amount sdkmath.Int) error {
	return v.ledger.Mint(ctx, v.asset, v.address, amount)
}

var _ strategy.ShareVault = (*SyntheticVault)(nil)
