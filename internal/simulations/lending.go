package simulations

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

const borrowedKey = "borrowed"

// MoneyMarket is a lending market. Supplier shares are held as the market's
// own token; their value is (cash + borrowed) / supply. Borrow removes cash,
// so redemptions can be liquidity bound.
type MoneyMarket struct {
	ledger     *ledger.Ledger
	address    common.Address
	underlying common.Address
	incentive  common.Address
	borrower   common.Address

	totals  map[string]sdkmath.Int
	pending map[common.Address]sdkmath.Int
}

// NewMoneyMarket creates a market for underlying paying incentive rewards.
func NewMoneyMarket(l *ledger.Ledger, address, underlying, incentive common.Address) *MoneyMarket {
	return &MoneyMarket{
		ledger:     l,
		address:    address,
		underlying: underlying,
		incentive:  incentive,
		borrower:   types.DeriveAddress("money-market-borrower:" + address.Hex()),
		totals:     make(map[string]sdkmath.Int),
		pending:    make(map[common.Address]sdkmath.Int),
	}
}

func (m *MoneyMarket) Address() common.Address        { return m.address }
func (m *MoneyMarket) Underlying() common.Address     { return m.underlying }
func (m *MoneyMarket) IncentiveToken() common.Address { return m.incentive }

func (m *MoneyMarket) totalUnderlying(ctx context.Context) sdkmath.Int {
	return m.ledger.BalanceOf(ctx, m.underlying, m.address).Add(amountOf(m.totals, borrowedKey))
}

func (m *MoneyMarket) Supply(ctx context.Context, from common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(types.ErrInvalidArgument, errors.New("supply amount must be positive"))
	}
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		supply := amountOf(m.totals, supplyKey)
		shares := amount
		if !supply.IsZero() {
			shares = utils.MulDiv(amount, supply, m.totalUnderlying(ctx))
		}
		if err := m.ledger.Transfer(ctx, m.underlying, from, m.address, amount); err != nil {
			return err
		}
		setAmount(ctx, m.ledger, m.totals, supplyKey, supply.Add(shares))
		return m.ledger.Mint(ctx, m.address, from, shares)
	})
}

func (m *MoneyMarket) RedeemUnderlying(ctx context.Context, from common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(types.ErrInvalidArgument, errors.New("redeem amount must be positive"))
	}
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		cash := m.Cash(ctx)
		if cash.LT(amount) {
			return fmt.Errorf("%w: market cash %s, redeem %s", types.ErrInsufficientBalance, cash, amount)
		}
		supply := amountOf(m.totals, supplyKey)
		shares := utils.MulDivUp(amount, supply, m.totalUnderlying(ctx))
		if err := m.ledger.Burn(ctx, m.address, from, shares); err != nil {
			return err
		}
		setAmount(ctx, m.ledger, m.totals, supplyKey, supply.Sub(shares))
		return m.ledger.Transfer(ctx, m.underlying, m.address, from, amount)
	})
}

func (m *MoneyMarket) BalanceOfUnderlying(ctx context.Context, account common.Address) sdkmath.Int {
	var out sdkmath.Int
	_ = m.ledger.View(ctx, func(ctx context.Context) error {
		supply := amountOf(m.totals, supplyKey)
		if supply.IsZero() {
			out = sdkmath.ZeroInt()
			return nil
		}
		out = utils.MulDiv(m.ledger.BalanceOf(ctx, m.address, account), m.totalUnderlying(ctx), supply)
		return nil
	})
	return out
}

func (m *MoneyMarket) Cash(ctx context.Context) sdkmath.Int {
	return m.ledger.BalanceOf(ctx, m.underlying, m.address)
}

func (m *MoneyMarket) PendingIncentives(ctx context.Context, account common.Address) sdkmath.Int {
	var out sdkmath.Int
	_ = m.ledger.View(ctx, func(context.Context) error {
		out = amountOf(m.pending, account)
		return nil
	})
	return out
}

func (m *MoneyMarket) ClaimIncentives(ctx context.Context, account common.Address) (sdkmath.Int, error) {
	var claimed sdkmath.Int
	err := m.ledger.Atomic(ctx, func(ctx context.Context) error {
		claimed = amountOf(m.pending, account)
		if claimed.IsZero() {
			return nil
		}
		setAmount(ctx, m.ledger, m.pending, account, sdkmath.ZeroInt())
		return m.ledger.Transfer(ctx, m.incentive, m.address, account, claimed)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return claimed, nil
}

// Borrow lends amount of cash out of the market.
func (m *MoneyMarket) Borrow(ctx context.Context, amount sdkmath.Int) error {
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := m.ledger.Transfer(ctx, m.underlying, m.address, m.borrower, amount); err != nil {
			return err
		}
		setAmount(ctx, m.ledger, m.totals, borrowedKey, amountOf(m.totals, borrowedKey).Add(amount))
		return nil
	})
}

// Repay returns up to amount of outstanding debt to the market's cash.
func (m *MoneyMarket) Repay(ctx context.Context, amount sdkmath.Int) error {
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		borrowed := amountOf(m.totals, borrowedKey)
		if amount.GT(borrowed) {
			amount = borrowed
		}
		if amount.IsZero() {
			return nil
		}
		if err := m.ledger.Mint(ctx, m.underlying, m.address, amount); err != nil {
			return err
		}
		setAmount(ctx, m.ledger, m.totals, borrowedKey, borrowed.Sub(amount))
		return nil
	})
}

// AccrueInterest grows outstanding debt, and with it every supplier's claim.
func (m *MoneyMarket) AccrueInterest(ctx context.Context, amount sdkmath.Int) error {
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		setAmount(ctx, m.ledger, m.totals, borrowedKey, amountOf(m.totals, borrowedKey).Add(amount))
		return nil
	})
}

// AccrueIncentives credits amount of the incentive token to account.
func (m *MoneyMarket) AccrueIncentives(ctx context.Context, account common.Address, amount sdkmath.Int) error {
	return m.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := m.ledger.Mint(ctx, m.incentive, m.address, amount); err != nil {
			return err
		}
		setAmount(ctx, m.ledger, m.pending, account, amountOf(m.pending, account).Add(amount))
		return nil
	})
}

var _ strategy.MoneyMarket = (*MoneyMarket)(nil)
