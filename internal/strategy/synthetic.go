package strategy

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// SyntheticConfig configures a SyntheticAsset strategy.
type SyntheticConfig struct {
	Config
	Vault ShareVault
}

// SyntheticAsset swaps base asset into a synthetic asset through the
// Exchange and stakes it in a share vault. Yield shows up as a rising share
// price; harvest sells the value above principal back into base asset.
type SyntheticAsset struct {
	*Base
	vault ShareVault
}

// NewSyntheticAsset creates the strategy. Deposits fail until SetSwapPath
// configures the base <-> synthetic routes.
func NewSyntheticAsset(cfg SyntheticConfig) (*SyntheticAsset, error) {
	if cfg.Vault == nil {
		return nil, errors.New("synthetic strategy needs a share vault")
	}
	if cfg.Vault.Asset() == cfg.Asset {
		return nil, errors.New("synthetic asset must differ from the base asset")
	}
	b, err := newBase(cfg.Config)
	if err != nil {
		return nil, err
	}
	s := &SyntheticAsset{Base: b, vault: cfg.Vault}
	b.pos = s
	return s, nil
}

// Synthetic returns the synthetic asset held in the vault.
func (s *SyntheticAsset) Synthetic() common.Address { return s.vault.Asset() }

// SetSwapPath sets the routes used to enter (base -> synthetic) and exit
// (synthetic -> base) the position.
func (s *SyntheticAsset) SetSwapPath(ctx context.Context, caller common.Address, deposit, withdraw types.Route) error {
	return s.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := s.OnlyOwner(caller); err != nil {
			return err
		}
		ex, err := s.swapper(ctx)
		if err != nil {
			return err
		}
		if err := s.checkRoute(ctx, ex, deposit, s.asset, s.Synthetic()); err != nil {
			return fmt.Errorf("deposit route: %w", err)
		}
		if err := s.checkRoute(ctx, ex, withdraw, s.Synthetic(), s.asset); err != nil {
			return fmt.Errorf("withdraw route: %w", err)
		}
		s.checkpoint(ctx)
		s.state.depositRoute = &deposit
		s.state.withdrawRoute = &withdraw
		s.persist(ctx)
		s.logger.Info().
			Str("deposit_router", deposit.Router.Hex()).
			Uint64("deposit_path", deposit.PathIndex).
			Str("withdraw_router", withdraw.Router.Hex()).
			Uint64("withdraw_path", withdraw.PathIndex).
			Msg("Synthetic swap paths set")
		return nil
	})
}

func (s *SyntheticAsset) routes() (deposit, withdraw types.Route, err error) {
	if s.state.depositRoute == nil || s.state.withdrawRoute == nil {
		return types.Route{}, types.Route{}, fmt.Errorf("%w: synthetic swap paths not configured", types.ErrPathNotFound)
	}
	return *s.state.depositRoute, *s.state.withdrawRoute, nil
}

func (s *SyntheticAsset) deploy(ctx context.Context, amount sdkmath.Int) error {
	deposit, _, err := s.routes()
	if err != nil {
		return err
	}
	ex, err := s.swapper(ctx)
	if err != nil {
		return err
	}
	synth, err := s.swap(ctx, ex, deposit, amount, s.state.depositSlippageBps)
	if err != nil {
		return err
	}
	_, err = s.vault.Deposit(ctx, s.address, synth)
	return err
}

// value quotes the vault position along the withdraw route.
func (s *SyntheticAsset) value(ctx context.Context) sdkmath.Int {
	synth := s.vault.ConvertToAssets(ctx, s.vault.SharesOf(ctx, s.address))
	if synth.IsZero() {
		return sdkmath.ZeroInt()
	}
	_, withdraw, err := s.routes()
	if err != nil {
		return sdkmath.ZeroInt()
	}
	ex, err := s.swapper(ctx)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	v, err := ex.Quote(ctx, withdraw.Router, withdraw.PathIndex, synth)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to quote synthetic position")
		return sdkmath.ZeroInt()
	}
	return v
}

func (s *SyntheticAsset) liquidity(ctx context.Context) sdkmath.Int {
	return s.value(ctx)
}

func (s *SyntheticAsset) free(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	shares := s.vault.SharesOf(ctx, s.address)
	return s.exit(ctx, utils.MinInt(utils.MulDivUp(amount, shares, s.value(ctx)), shares))
}

func (s *SyntheticAsset) freeAll(ctx context.Context) (sdkmath.Int, error) {
	return s.exit(ctx, s.vault.SharesOf(ctx, s.address))
}

// exit redeems shares and sells the synthetic asset for base asset.
func (s *SyntheticAsset) exit(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	_, withdraw, err := s.routes()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	ex, err := s.swapper(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	synth, err := s.vault.Redeem(ctx, s.address, shares)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if synth.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	return s.swap(ctx, ex, withdraw, synth, s.state.withdrawSlippageBps)
}

func (s *SyntheticAsset) claim(context.Context) error { return nil }

func (s *SyntheticAsset) pending(context.Context, common.Address) sdkmath.Int {
	return sdkmath.ZeroInt()
}

// realize sells the position value above principal.
func (s *SyntheticAsset) realize(ctx context.Context) error {
	excess := s.value(ctx).Sub(s.state.principal)
	if !excess.IsPositive() {
		return nil
	}
	freed, err := s.free(ctx, excess)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("excess", excess.String()).Str("freed", freed.String()).Msg("Realized synthetic yield")
	return nil
}
