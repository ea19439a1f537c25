package controller

import (
	"context"
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/access"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// RegisterSubStrategy appends s to the registry with allocPoints weight and
// returns its index.
func (c *Controller) RegisterSubStrategy(ctx context.Context, caller common.Address, s Strategy, allocPoints uint64) (int, error) {
	if s == nil || s.Address() == (common.Address{}) {
		return 0, errors.Join(types.ErrInvalidArgument, errors.New("strategy cannot be nil or zero"))
	}
	var index int
	err := c.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		if _, ok := c.state.byAddress[s.Address()]; ok {
			return fmt.Errorf("%w: strategy %s", types.ErrAlreadyRegistered, s.Address().Hex())
		}
		if err := checkAllocTotal(c.state.totalAllocPoint, allocPoints); err != nil {
			return err
		}

		c.checkpoint(ctx)
		index = len(c.state.entries)
		entry := types.AllocationEntry{Index: index, Strategy: s.Address(), AllocPoint: allocPoints}
		c.state.entries = append(c.state.entries, entry)
		c.state.strategies = append(c.state.strategies, s)
		c.state.byAddress[s.Address()] = index
		c.state.totalAllocPoint += allocPoints
		c.persistEntry(ctx, entry)

		c.logger.Info().
			Int("index", index).
			Str("strategy", s.Address().Hex()).
			Str("name", s.Name()).
			Uint64("alloc_point", allocPoints).
			Uint64("total_alloc_point", c.state.totalAllocPoint).
			Msg("Sub-strategy registered")
		return nil
	})
	return index, err
}

// SetAllocPoint re-weights the strategy at index.
func (c *Controller) SetAllocPoint(ctx context.Context, caller common.Address, index int, allocPoints uint64) error {
	return c.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		if err := c.checkIndex(index); err != nil {
			return err
		}
		rest := c.state.totalAllocPoint - c.state.entries[index].AllocPoint
		if err := checkAllocTotal(rest, allocPoints); err != nil {
			return err
		}
		c.checkpoint(ctx)
		entry := &c.state.entries[index]
		c.state.totalAllocPoint = rest + allocPoints
		entry.AllocPoint = allocPoints
		c.persistEntry(ctx, *entry)

		c.logger.Info().
			Int("index", index).
			Uint64("alloc_point", allocPoints).
			Uint64("total_alloc_point", c.state.totalAllocPoint).
			Msg("Allocation updated")
		return nil
	})
}

// DeregisterSubStrategy tombstones the strategy at index. The strategy must
// hold no assets; indices of other strategies do not change.
func (c *Controller) DeregisterSubStrategy(ctx context.Context, caller common.Address, index int) error {
	return c.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		if err := c.checkIndex(index); err != nil {
			return err
		}
		if assets := c.state.strategies[index].TotalAssets(ctx, false); !assets.IsZero() {
			return errors.Join(types.ErrInvalidArgument,
				fmt.Errorf("strategy %d still holds %s", index, assets))
		}
		c.checkpoint(ctx)
		entry := &c.state.entries[index]
		c.state.totalAllocPoint -= entry.AllocPoint
		entry.Removed = true
		delete(c.state.byAddress, entry.Strategy)
		c.persistEntry(ctx, *entry)

		c.logger.Info().
			Int("index", index).
			Str("strategy", entry.Strategy.Hex()).
			Msg("Sub-strategy deregistered")
		return nil
	})
}

// checkAllocTotal rejects weights whose sum with total does not fit in a uint64.
func checkAllocTotal(total, allocPoints uint64) error {
	if allocPoints > math.MaxUint64-total {
		return errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("alloc points %d overflow total %d", allocPoints, total))
	}
	return nil
}

func (c *Controller) checkIndex(index int) error {
	if index < 0 || index >= len(c.state.entries) {
		return errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("strategy index %d out of range [0, %d)", index, len(c.state.entries)))
	}
	if c.state.entries[index].Removed {
		return errors.Join(types.ErrInvalidArgument, fmt.Errorf("strategy index %d was deregistered", index))
	}
	return nil
}

// TotalAllocPoint returns the sum of live allocation points.
func (c *Controller) TotalAllocPoint(ctx context.Context) uint64 {
	var total uint64
	_ = c.ledger.View(ctx, func(context.Context) error {
		total = c.state.totalAllocPoint
		return nil
	})
	return total
}

// SubStrategyLength returns the size of the index space, tombstones included.
func (c *Controller) SubStrategyLength(ctx context.Context) int {
	var n int
	_ = c.ledger.View(ctx, func(context.Context) error {
		n = len(c.state.entries)
		return nil
	})
	return n
}

// Entries returns a copy of the allocation registry.
func (c *Controller) Entries(ctx context.Context) []types.AllocationEntry {
	var out []types.AllocationEntry
	_ = c.ledger.View(ctx, func(context.Context) error {
		out = append(out, c.state.entries...)
		return nil
	})
	return out
}

// Strategy returns the live strategy at index.
func (c *Controller) Strategy(ctx context.Context, index int) (Strategy, error) {
	var s Strategy
	err := c.ledger.View(ctx, func(context.Context) error {
		if err := c.checkIndex(index); err != nil {
			return err
		}
		s = c.state.strategies[index]
		return nil
	})
	return s, err
}

// allocate splits amount of idle base asset across live strategies by
// allocation points. Rounding remainders and everything when no strategy
// carries weight stay idle.
func (c *Controller) allocate(ctx context.Context, amount sdkmath.Int) error {
	total := c.state.totalAllocPoint
	if total == 0 || !amount.IsPositive() {
		return nil
	}
	for i, entry := range c.state.entries {
		if entry.Removed || entry.AllocPoint == 0 {
			continue
		}
		share := utils.MulRatio(amount, entry.AllocPoint, total)
		if share.IsZero() {
			continue
		}
		if err := c.state.strategies[i].Deposit(ctx, c.address, share); err != nil {
			return fmt.Errorf("failed to deposit into strategy %d: %w", i, err)
		}
	}
	return nil
}

// Deposit pulls amount of base asset from the vault front-end and allocates
// it across strategies.
func (c *Controller) Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(types.ErrInvalidArgument, errors.New("deposit amount must be positive"))
	}
	err := c.guarded(ctx, func(ctx context.Context) error {
		if err := access.Only("vault", c.vault, caller); err != nil {
			return err
		}
		if err := c.ledger.Transfer(ctx, c.asset, caller, c.address, amount); err != nil {
			return err
		}
		if err := c.allocate(ctx, amount); err != nil {
			return err
		}
		c.record(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	c.observe(ctx)
	c.logger.Info().Str("amount", amount.String()).Msg("Deposit allocated")
	return nil
}

// Withdraw sends amount of base asset to receiver, drawing on idle funds
// first, then on strategies in proportion to what each can free, then
// topping up sequentially. It fails with ErrExceedTotalDeposit if amount is
// more than idle funds plus every strategy's MaxWithdraw. The delivered
// amount can fall short only by the strategies' withdraw slippage.
func (c *Controller) Withdraw(ctx context.Context, caller common.Address, amount sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("withdraw amount must be positive"))
	}
	if receiver == (common.Address{}) {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("receiver cannot be zero"))
	}

	delivered := sdkmath.ZeroInt()
	err := c.guarded(ctx, func(ctx context.Context) error {
		if err := access.Only("vault", c.vault, caller); err != nil {
			return err
		}

		idle := c.IdleAssets(ctx)
		limits := make([]sdkmath.Int, len(c.state.entries))
		withdrawable := sdkmath.ZeroInt()
		for i, entry := range c.state.entries {
			limits[i] = sdkmath.ZeroInt()
			if entry.Removed {
				continue
			}
			limits[i] = c.state.strategies[i].MaxWithdraw(ctx)
			withdrawable = withdrawable.Add(limits[i])
		}
		if available := idle.Add(withdrawable); amount.GT(available) {
			return fmt.Errorf("%w: requested %s, available %s", types.ErrExceedTotalDeposit, amount, available)
		}

		if need := amount.Sub(idle); need.IsPositive() {
			if err := c.drawProportional(ctx, need, limits, withdrawable); err != nil {
				return err
			}
			if err := c.drawSequential(ctx, amount); err != nil {
				return err
			}
		}

		delivered = utils.MinInt(amount, c.IdleAssets(ctx))
		if err := c.ledger.Transfer(ctx, c.asset, c.address, receiver, delivered); err != nil {
			return err
		}
		c.record(ctx)
		return nil
	})
	c.metrics.ObserveWithdraw(err)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	c.observe(ctx)
	c.logger.Info().
		Str("requested", amount.String()).
		Str("delivered", delivered.String()).
		Str("receiver", receiver.Hex()).
		Msg("Withdrawal delivered")
	return delivered, nil
}

// drawProportional asks each strategy for its share of need, weighted by what
// it could free when the withdrawal started. A share is capped by what the
// strategy can free now, since earlier draws may have drained a shared venue;
// drawSequential covers the difference.
func (c *Controller) drawProportional(ctx context.Context, need sdkmath.Int, limits []sdkmath.Int, withdrawable sdkmath.Int) error {
	for i, limit := range limits {
		if limit.IsZero() {
			continue
		}
		part := utils.MinInt(utils.MulDiv(need, limit, withdrawable), limit)
		part = utils.MinInt(part, c.state.strategies[i].MaxWithdraw(ctx))
		if part.IsZero() {
			continue
		}
		if _, err := c.state.strategies[i].Withdraw(ctx, c.address, part); err != nil {
			return fmt.Errorf("failed to withdraw from strategy %d: %w", i, err)
		}
	}
	return nil
}

// drawSequential covers what rounding and partial fills left uncovered, in
// registry order, up to what each strategy can still free.
func (c *Controller) drawSequential(ctx context.Context, amount sdkmath.Int) error {
	for i, entry := range c.state.entries {
		short := amount.Sub(c.IdleAssets(ctx))
		if !short.IsPositive() {
			return nil
		}
		if entry.Removed {
			continue
		}
		part := utils.MinInt(short, c.state.strategies[i].MaxWithdraw(ctx))
		if part.IsZero() {
			continue
		}
		if _, err := c.state.strategies[i].Withdraw(ctx, c.address, part); err != nil {
			return fmt.Errorf("failed to top up from strategy %d: %w", i, err)
		}
	}
	return nil
}

// observe publishes the managed asset gauges.
func (c *Controller) observe(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	summary := c.Summary(ctx)
	c.metrics.SetManagedAssets(summary.TotalAssets, summary.IdleAssets)
	for _, s := range summary.Strategies {
		c.metrics.SetStrategyAssets(s.Name, s.TotalAssets)
	}
}
