package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/access"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var vaultLogger = logger.GetForComponent("vault")

// Config holds the Passthrough dependencies.
type Config struct {
	Ledger  *ledger.Ledger
	Address common.Address
	Owner   common.Address
	Asset   common.Address
}

func validateVaultConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Address == (common.Address{}) {
		return errors.New("vault address cannot be zero")
	}
	if cfg.Asset == (common.Address{}) {
		return errors.New("asset cannot be zero")
	}
	return nil
}

// Passthrough is a front-end without share accounting: it forwards user
// deposits and withdrawals to its Controller one to one.
type Passthrough struct {
	access.Ownable
	ledger     *ledger.Ledger
	address    common.Address
	asset      common.Address
	controller Controller
	guard      ledger.Guard
}

// New creates a Passthrough with no Controller bound.
func New(cfg Config) (*Passthrough, error) {
	if err := validateVaultConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}
	owner, err := access.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	return &Passthrough{Ownable: owner, ledger: cfg.Ledger, address: cfg.Address, asset: cfg.Asset}, nil
}

// Address returns the front-end handle the Controller accepts calls from.
func (p *Passthrough) Address() common.Address { return p.address }

// SetController binds c. It can be done once.
func (p *Passthrough) SetController(ctx context.Context, caller common.Address, c Controller) error {
	if c == nil {
		return errors.Join(types.ErrInvalidArgument, errors.New("controller cannot be nil"))
	}
	return p.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := p.OnlyOwner(caller); err != nil {
			return err
		}
		if p.controller != nil {
			return fmt.Errorf("%w: controller already bound", types.ErrAlreadyRegistered)
		}
		p.controller = c
		p.ledger.Record(ctx, func() { p.controller = nil })
		vaultLogger.Info().Msg("Controller bound")
		return nil
	})
}

func (p *Passthrough) bound(ctx context.Context) (Controller, error) {
	var c Controller
	_ = p.ledger.View(ctx, func(context.Context) error {
		c = p.controller
		return nil
	})
	if c == nil {
		return nil, errors.Join(types.ErrInvalidArgument, errors.New("controller not bound"))
	}
	return c, nil
}

// TotalAssets returns what the Controller reports.
func (p *Passthrough) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	c, err := p.bound(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return c.TotalAssets(ctx), nil
}

// Deposit moves amount of base asset from user into the Controller.
func (p *Passthrough) Deposit(ctx context.Context, user common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(types.ErrInvalidArgument, errors.New("deposit amount must be positive"))
	}
	err := p.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := p.guard.Enter()
		if err != nil {
			return err
		}
		defer release()
		c, err := p.bound(ctx)
		if err != nil {
			return err
		}
		if err := p.ledger.Transfer(ctx, p.asset, user, p.address, amount); err != nil {
			return err
		}
		return c.Deposit(ctx, p.address, amount)
	})
	if err != nil {
		return err
	}
	vaultLogger.Info().Str("user", user.Hex()).Str("amount", amount.String()).Msg("Deposit forwarded")
	return nil
}

// Withdraw has the Controller send amount of base asset to user and returns
// what was delivered.
func (p *Passthrough) Withdraw(ctx context.Context, user common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := p.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := p.guard.Enter()
		if err != nil {
			return err
		}
		defer release()
		c, err := p.bound(ctx)
		if err != nil {
			return err
		}
		out, err = c.Withdraw(ctx, p.address, amount, user)
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	vaultLogger.Info().Str("user", user.Hex()).Str("delivered", out.String()).Msg("Withdrawal forwarded")
	return out, nil
}
