/*

Package controller is the orchestrator of the vault. It owns the allocation
registry, routes the front-end's deposits and withdrawals across the
registered strategies by allocation points, and runs batched harvests whose
proceeds pay the performance fee and are reinvested.

Every entry point is one ledger unit: either all of its effects (token
movements, registry changes, strategy calls, persisted records) happen or
none do.

*/

package controller

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/access"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Strategy is what the controller drives.
type Strategy interface {
	Address() common.Address
	Name() string
	Status(ctx context.Context) types.StrategyStatus
	Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int) error
	Withdraw(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error)
	MaxWithdraw(ctx context.Context) sdkmath.Int
	Harvest(ctx context.Context, caller common.Address, route *types.Route) (sdkmath.Int, error)
	TotalAssets(ctx context.Context, includePending bool) sdkmath.Int
}

// Config holds the Controller dependencies.
type Config struct {
	Ledger     *ledger.Ledger
	Address    common.Address
	Owner      common.Address
	Vault      common.Address // front-end allowed to deposit and withdraw
	Asset      common.Address // base asset
	Treasury   common.Address // performance fee receiver
	Exchange   types.Swapper  // optional until strategies need to swap
	Parameters types.Parameters
	Metrics    *metrics.Metrics // optional
}

func validateControllerConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	for name, addr := range map[string]common.Address{
		"controller": cfg.Address,
		"vault":      cfg.Vault,
		"asset":      cfg.Asset,
		"treasury":   cfg.Treasury,
	} {
		if addr == (common.Address{}) {
			return fmt.Errorf("%s address cannot be zero", name)
		}
	}
	if err := utils.ValidateBps(cfg.Parameters.MaxPerformanceFeeBps); err != nil {
		return fmt.Errorf("max performance fee: %w", err)
	}
	if cfg.Parameters.PerformanceFeeBps > cfg.Parameters.MaxPerformanceFeeBps {
		return fmt.Errorf("performance fee %d bps exceeds maximum %d bps",
			cfg.Parameters.PerformanceFeeBps, cfg.Parameters.MaxPerformanceFeeBps)
	}
	return nil
}

// controllerState is everything a unit may change. It is copied whole into
// the journal before a change.
type controllerState struct {
	entries           []types.AllocationEntry
	strategies        []Strategy // parallel to entries, nil for unrestored tombstones
	byAddress         map[common.Address]int
	totalAllocPoint   uint64
	exchange          types.Swapper
	performanceFeeBps uint64
	recordedTotal     sdkmath.Int
}

func (s controllerState) clone() controllerState {
	out := s
	out.entries = slices.Clone(s.entries)
	out.strategies = slices.Clone(s.strategies)
	out.byAddress = maps.Clone(s.byAddress)
	return out
}

// Controller allocates base asset across strategies and harvests them.
type Controller struct {
	access.Ownable
	ledger    *ledger.Ledger
	address   common.Address
	vault     common.Address
	asset     common.Address
	treasury  common.Address
	maxFeeBps uint64
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	state     controllerState
	guard     ledger.Guard
}

// New creates a Controller with an empty registry.
func New(cfg Config) (*Controller, error) {
	if err := validateControllerConfig(cfg); err != nil {
		return nil, fmt.Errorf("controller configuration validation failed: %w", err)
	}
	owner, err := access.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	return &Controller{
		Ownable:   owner,
		ledger:    cfg.Ledger,
		address:   cfg.Address,
		vault:     cfg.Vault,
		asset:     cfg.Asset,
		treasury:  cfg.Treasury,
		maxFeeBps: cfg.Parameters.MaxPerformanceFeeBps,
		metrics:   cfg.Metrics,
		logger:    logger.GetForComponent("controller"),
		state: controllerState{
			byAddress:         make(map[common.Address]int),
			exchange:          cfg.Exchange,
			performanceFeeBps: cfg.Parameters.PerformanceFeeBps,
			recordedTotal:     sdkmath.ZeroInt(),
		},
	}, nil
}

// Address returns the controller handle.
func (c *Controller) Address() common.Address { return c.address }

// Asset returns the base asset.
func (c *Controller) Asset() common.Address { return c.asset }

// Treasury returns the performance fee receiver.
func (c *Controller) Treasury() common.Address { return c.treasury }

// Vault returns the front-end handle.
func (c *Controller) Vault() common.Address { return c.vault }

func (c *Controller) checkpoint(ctx context.Context) {
	saved := c.state.clone()
	c.ledger.Record(ctx, func() { c.state = saved })
}

func (c *Controller) persistController(ctx context.Context) {
	rec := state.ControllerRecord{
		Address:           c.address,
		PerformanceFeeBps: c.state.performanceFeeBps,
		RecordedTotal:     c.state.recordedTotal,
	}
	if c.state.exchange != nil {
		rec.Exchange = c.state.exchange.Address()
	}
	c.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
		return tx.PutController(ctx, rec)
	})
}

func (c *Controller) persistEntry(ctx context.Context, entry types.AllocationEntry) {
	rec := state.AllocationRecord{Controller: c.address, AllocationEntry: entry}
	c.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
		return tx.PutAllocation(ctx, rec)
	})
}

// guarded runs fn as a unit behind the controller's reentrancy guard.
func (c *Controller) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := c.guard.Enter()
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx)
	})
}

// SetExchange rebinds the Exchange strategies fall back to.
func (c *Controller) SetExchange(ctx context.Context, caller common.Address, ex types.Swapper) error {
	if ex == nil || ex.Address() == (common.Address{}) {
		return errors.Join(types.ErrInvalidArgument, errors.New("exchange cannot be nil or zero"))
	}
	return c.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		c.checkpoint(ctx)
		c.state.exchange = ex
		c.persistController(ctx)
		c.logger.Info().Str("exchange", ex.Address().Hex()).Msg("Exchange set")
		return nil
	})
}

// Exchange returns the bound Exchange, or nil.
func (c *Controller) Exchange(ctx context.Context) types.Swapper {
	var ex types.Swapper
	_ = c.ledger.View(ctx, func(context.Context) error {
		ex = c.state.exchange
		return nil
	})
	return ex
}

// SetPerformanceFee sets the share of harvest proceeds paid to the treasury.
func (c *Controller) SetPerformanceFee(ctx context.Context, caller common.Address, bps uint64) error {
	if bps > c.maxFeeBps {
		return errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("performance fee %d bps exceeds maximum %d bps", bps, c.maxFeeBps))
	}
	return c.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		c.checkpoint(ctx)
		c.state.performanceFeeBps = bps
		c.persistController(ctx)
		c.logger.Info().Uint64("performance_fee_bps", bps).Msg("Performance fee set")
		return nil
	})
}

// PerformanceFee returns the current performance fee in basis points.
func (c *Controller) PerformanceFee(ctx context.Context) uint64 {
	var bps uint64
	_ = c.ledger.View(ctx, func(context.Context) error {
		bps = c.state.performanceFeeBps
		return nil
	})
	return bps
}

// RecordedTotal returns the managed value recorded by the last state change.
func (c *Controller) RecordedTotal(ctx context.Context) sdkmath.Int {
	var total sdkmath.Int
	_ = c.ledger.View(ctx, func(context.Context) error {
		total = c.state.recordedTotal
		return nil
	})
	return total
}

// IdleAssets returns the base asset held by the controller itself.
func (c *Controller) IdleAssets(ctx context.Context) sdkmath.Int {
	return c.ledger.BalanceOf(ctx, c.asset, c.address)
}

// TotalAssets returns idle base asset plus every live strategy's assets,
// pending rewards excluded.
func (c *Controller) TotalAssets(ctx context.Context) sdkmath.Int {
	var total sdkmath.Int
	_ = c.ledger.View(ctx, func(ctx context.Context) error {
		total = c.totalAssets(ctx)
		return nil
	})
	return total
}

func (c *Controller) totalAssets(ctx context.Context) sdkmath.Int {
	total := c.ledger.BalanceOf(ctx, c.asset, c.address)
	for i, entry := range c.state.entries {
		if entry.Removed {
			continue
		}
		total = total.Add(c.state.strategies[i].TotalAssets(ctx, false))
	}
	return total
}

// record refreshes the recorded total and queues the controller record.
func (c *Controller) record(ctx context.Context) {
	c.checkpoint(ctx)
	c.state.recordedTotal = c.totalAssets(ctx)
	c.persistController(ctx)
}

// Summary returns the read model of the controller and its strategies.
func (c *Controller) Summary(ctx context.Context) types.VaultSummary {
	var summary types.VaultSummary
	_ = c.ledger.View(ctx, func(ctx context.Context) error {
		summary = types.VaultSummary{
			Controller:        c.address,
			Asset:             c.asset,
			Treasury:          c.treasury,
			IdleAssets:        c.ledger.BalanceOf(ctx, c.asset, c.address),
			RecordedTotal:     c.state.recordedTotal,
			TotalAllocPoint:   c.state.totalAllocPoint,
			PerformanceFeeBps: c.state.performanceFeeBps,
			Strategies:        []types.StrategySummary{},
		}
		total := summary.IdleAssets
		for i, entry := range c.state.entries {
			if entry.Removed {
				continue
			}
			s := c.state.strategies[i]
			assets := s.TotalAssets(ctx, false)
			total = total.Add(assets)
			summary.Strategies = append(summary.Strategies, types.StrategySummary{
				Index:       entry.Index,
				Strategy:    entry.Strategy,
				Name:        s.Name(),
				Status:      s.Status(ctx),
				AllocPoint:  entry.AllocPoint,
				TotalAssets: assets,
			})
		}
		summary.TotalAssets = total
		return nil
	})
	return summary
}

// Restore reloads the controller settings and allocation registry. Every
// live persisted strategy must be supplied.
func (c *Controller) Restore(ctx context.Context, strategies ...Strategy) error {
	store := c.ledger.Store()
	rec, err := store.Controller(ctx, c.address)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("failed to load controller: %w", err)
	}
	found := err == nil
	allocations, err := store.Allocations(ctx, c.address)
	if err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}

	supplied := make(map[common.Address]Strategy, len(strategies))
	for _, s := range strategies {
		supplied[s.Address()] = s
	}

	return c.ledger.View(ctx, func(context.Context) error {
		if found {
			if rec.Exchange != (common.Address{}) && (c.state.exchange == nil || c.state.exchange.Address() != rec.Exchange) {
				return fmt.Errorf("persisted exchange %s was not supplied", rec.Exchange.Hex())
			}
			c.state.performanceFeeBps = rec.PerformanceFeeBps
			c.state.recordedTotal = rec.RecordedTotal
		}

		c.state.entries = c.state.entries[:0]
		c.state.strategies = c.state.strategies[:0]
		clear(c.state.byAddress)
		c.state.totalAllocPoint = 0
		for i, a := range allocations {
			if a.Index != i {
				return fmt.Errorf("persisted allocation index %d found at %d", a.Index, i)
			}
			s, ok := supplied[a.Strategy]
			if !ok && !a.Removed {
				return fmt.Errorf("persisted strategy %s was not supplied", a.Strategy.Hex())
			}
			c.state.entries = append(c.state.entries, a.AllocationEntry)
			c.state.strategies = append(c.state.strategies, s)
			if !a.Removed {
				c.state.byAddress[a.Strategy] = i
				c.state.totalAllocPoint += a.AllocPoint
			}
		}
		c.logger.Info().
			Int("entries", len(c.state.entries)).
			Uint64("total_alloc_point", c.state.totalAllocPoint).
			Msg("Restored controller state")
		return nil
	})
}
