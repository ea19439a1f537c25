/*

Package strategy implements the yield strategies the controller allocates to.

Every variant shares Base: the Uninitialized -> Active -> Drained lifecycle,
owner and controller capability checks, slippage settings, reward routing
through the Exchange and the durable strategy record. A variant only supplies
its position: how base asset is deployed into and freed from its protocol,
what the position is worth and which rewards it earns.

*/

package strategy

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
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ControllerRef is what a strategy needs to know about its controller.
type ControllerRef interface {
	Address() common.Address
	Exchange(ctx context.Context) types.Swapper
}

// Config holds what every strategy needs.
type Config struct {
	Ledger              *ledger.Ledger
	Name                string
	Address             common.Address
	Owner               common.Address
	Controller          ControllerRef
	Asset               common.Address // base asset
	Exchange            types.Swapper  // optional, defaults to the controller's
	DepositSlippageBps  uint64
	WithdrawSlippageBps uint64
}

func validateStrategyConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Name == "" {
		return errors.New("strategy name cannot be empty")
	}
	if cfg.Address == (common.Address{}) {
		return errors.New("strategy address cannot be zero")
	}
	if cfg.Controller == nil || cfg.Controller.Address() == (common.Address{}) {
		return errors.New("controller cannot be nil or zero")
	}
	if cfg.Asset == (common.Address{}) {
		return errors.New("asset cannot be zero")
	}
	if err := utils.ValidateBps(cfg.DepositSlippageBps); err != nil {
		return fmt.Errorf("deposit slippage: %w", err)
	}
	if err := utils.ValidateBps(cfg.WithdrawSlippageBps); err != nil {
		return fmt.Errorf("withdraw slippage: %w", err)
	}
	return nil
}

// position is the protocol-specific half of a strategy. All methods run
// inside a ledger unit or view.
type position interface {
	// deploy moves amount of base asset held by the strategy into the protocol.
	deploy(ctx context.Context, amount sdkmath.Int) error
	// free converts up to amount of position value back into base asset held
	// by the strategy and returns how much base asset it obtained.
	free(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)
	freeAll(ctx context.Context) (sdkmath.Int, error)
	// value is the position's worth in base asset.
	value(ctx context.Context) sdkmath.Int
	// liquidity is the part of value that can be freed right now.
	liquidity(ctx context.Context) sdkmath.Int
	claim(ctx context.Context) error
	pending(ctx context.Context, token common.Address) sdkmath.Int
	// realize turns yield that is not a reward token into base asset held by
	// the strategy.
	realize(ctx context.Context) error
}

// strategyState is everything a unit may change. It is copied whole into the
// journal before a change.
type strategyState struct {
	status              types.StrategyStatus
	principal           sdkmath.Int
	depositSlippageBps  uint64
	withdrawSlippageBps uint64
	rewardTokens        []common.Address
	rewardRoutes        map[common.Address]types.Route
	depositRoute        *types.Route
	withdrawRoute       *types.Route
	exchange            types.Swapper
}

func (s strategyState) clone() strategyState {
	out := s
	out.rewardTokens = slices.Clone(s.rewardTokens)
	out.rewardRoutes = maps.Clone(s.rewardRoutes)
	return out
}

// Base implements the lifecycle shared by every strategy.
type Base struct {
	access.Ownable
	ledger     *ledger.Ledger
	name       string
	address    common.Address
	asset      common.Address
	controller ControllerRef
	pos        position
	state      strategyState
	guard      ledger.Guard
	logger     zerolog.Logger
}

func newBase(cfg Config) (*Base, error) {
	if err := validateStrategyConfig(cfg); err != nil {
		return nil, fmt.Errorf("strategy configuration validation failed: %w", err)
	}
	owner, err := access.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	return &Base{
		Ownable:    owner,
		ledger:     cfg.Ledger,
		name:       cfg.Name,
		address:    cfg.Address,
		asset:      cfg.Asset,
		controller: cfg.Controller,
		state: strategyState{
			status:              types.StatusUninitialized,
			principal:           sdkmath.ZeroInt(),
			depositSlippageBps:  cfg.DepositSlippageBps,
			withdrawSlippageBps: cfg.WithdrawSlippageBps,
			rewardRoutes:        make(map[common.Address]types.Route),
			exchange:            cfg.Exchange,
		},
		logger: logger.GetForComponent("strategy").With().Str("strategy", cfg.Name).Logger(),
	}, nil
}

// Address returns the strategy handle.
func (b *Base) Address() common.Address { return b.address }

// Name returns the configured display name.
func (b *Base) Name() string { return b.name }

// Asset returns the base asset.
func (b *Base) Asset() common.Address { return b.asset }

// Status returns the lifecycle state.
func (b *Base) Status(ctx context.Context) types.StrategyStatus {
	var s types.StrategyStatus
	_ = b.ledger.View(ctx, func(context.Context) error {
		s = b.state.status
		return nil
	})
	return s
}

// Principal returns the base asset deposited and not yet withdrawn.
func (b *Base) Principal(ctx context.Context) sdkmath.Int {
	var p sdkmath.Int
	_ = b.ledger.View(ctx, func(context.Context) error {
		p = b.state.principal
		return nil
	})
	return p
}

// Slippage returns the deposit and withdraw tolerances in basis points.
func (b *Base) Slippage(ctx context.Context) (deposit, withdraw uint64) {
	_ = b.ledger.View(ctx, func(context.Context) error {
		deposit, withdraw = b.state.depositSlippageBps, b.state.withdrawSlippageBps
		return nil
	})
	return deposit, withdraw
}

// RewardTokens returns the reward tokens in harvest order.
func (b *Base) RewardTokens(ctx context.Context) []common.Address {
	var out []common.Address
	_ = b.ledger.View(ctx, func(context.Context) error {
		out = slices.Clone(b.state.rewardTokens)
		return nil
	})
	return out
}

// checkpoint journals the whole mutable state of b.
func (b *Base) checkpoint(ctx context.Context) {
	saved := b.state.clone()
	b.ledger.Record(ctx, func() { b.state = saved })
}

// persist queues the current state for the commit of the running unit.
func (b *Base) persist(ctx context.Context) {
	rec := state.StrategyRecord{
		Address:             b.address,
		Name:                b.name,
		Status:              b.state.status,
		Principal:           b.state.principal,
		DepositSlippageBps:  b.state.depositSlippageBps,
		WithdrawSlippageBps: b.state.withdrawSlippageBps,
		RewardTokens:        slices.Clone(b.state.rewardTokens),
		RewardRoutes:        maps.Clone(b.state.rewardRoutes),
		DepositRoute:        b.state.depositRoute,
		WithdrawRoute:       b.state.withdrawRoute,
	}
	b.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
		return tx.PutStrategy(ctx, rec)
	})
}

// guarded runs fn as a unit behind the strategy's reentrancy guard.
func (b *Base) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := b.guard.Enter()
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx)
	})
}

func (b *Base) onlyController(caller common.Address) error {
	return access.Only("controller", b.controller.Address(), caller)
}

func validatePositive(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(types.ErrInvalidArgument, errors.New("amount must be positive"))
	}
	return nil
}

// swapper returns the Exchange the strategy routes through.
func (b *Base) swapper(ctx context.Context) (types.Swapper, error) {
	if b.state.exchange != nil {
		return b.state.exchange, nil
	}
	if ex := b.controller.Exchange(ctx); ex != nil {
		return ex, nil
	}
	return nil, errors.Join(types.ErrInvalidArgument, errors.New("no exchange configured"))
}

// enter pulls amount of base asset from `from` and deploys it.
func (b *Base) enter(ctx context.Context, from common.Address, amount sdkmath.Int) error {
	if err := b.ledger.Transfer(ctx, b.asset, from, b.address, amount); err != nil {
		return err
	}
	if err := b.pos.deploy(ctx, amount); err != nil {
		return fmt.Errorf("failed to deploy %s: %w", amount, err)
	}
	b.checkpoint(ctx)
	b.state.principal = b.state.principal.Add(amount)
	b.state.status = types.StatusActive
	b.persist(ctx)
	return nil
}

// OwnerDeposit deploys amount of the owner's base asset directly.
func (b *Base) OwnerDeposit(ctx context.Context, caller common.Address, amount sdkmath.Int) error {
	if err := validatePositive(amount); err != nil {
		return err
	}
	err := b.guarded(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		return b.enter(ctx, caller, amount)
	})
	if err != nil {
		return err
	}
	b.logger.Info().Str("amount", amount.String()).Msg("Owner deposit deployed")
	return nil
}

// Deposit pulls amount of base asset from the controller and deploys it.
func (b *Base) Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int) error {
	if err := validatePositive(amount); err != nil {
		return err
	}
	return b.guarded(ctx, func(ctx context.Context) error {
		if err := b.onlyController(caller); err != nil {
			return err
		}
		if err := b.enter(ctx, caller, amount); err != nil {
			return err
		}
		b.logger.Debug().Str("amount", amount.String()).Msg("Controller deposit deployed")
		return nil
	})
}

// MaxWithdraw returns how much base asset Withdraw can free right now.
func (b *Base) MaxWithdraw(ctx context.Context) sdkmath.Int {
	var out sdkmath.Int
	_ = b.ledger.View(ctx, func(ctx context.Context) error {
		out = b.pos.liquidity(ctx)
		return nil
	})
	return out
}

// Withdraw frees amount of base asset and sends what it obtained to the
// controller. The result may fall short of amount by the withdraw slippage.
func (b *Base) Withdraw(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := validatePositive(amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := sdkmath.ZeroInt()
	err := b.guarded(ctx, func(ctx context.Context) error {
		if err := b.onlyController(caller); err != nil {
			return err
		}
		if available := b.pos.liquidity(ctx); amount.GT(available) {
			return fmt.Errorf("%w: requested %s, strategy can free %s", types.ErrExceedTotalDeposit, amount, available)
		}
		freed, err := b.pos.free(ctx, amount)
		if err != nil {
			return fmt.Errorf("failed to free %s: %w", amount, err)
		}
		if err := b.ledger.Transfer(ctx, b.asset, b.address, caller, freed); err != nil {
			return err
		}
		b.checkpoint(ctx)
		b.state.principal = b.state.principal.Sub(utils.MinInt(b.state.principal, amount))
		b.persist(ctx)
		out = freed
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.logger.Debug().Str("requested", amount.String()).Str("freed", out.String()).Msg("Withdrawal sent to controller")
	return out, nil
}

// Harvest claims rewards, converts every non-zero reward into base asset and
// sends all proceeds to the controller. A route, when given, replaces the
// configured route of the first reward token that is not the base asset. Harvesting with nothing to
// claim returns zero.
func (b *Base) Harvest(ctx context.Context, caller common.Address, route *types.Route) (sdkmath.Int, error) {
	proceeds := sdkmath.ZeroInt()
	err := b.guarded(ctx, func(ctx context.Context) error {
		if err := b.onlyController(caller); err != nil {
			return err
		}
		if err := b.pos.claim(ctx); err != nil {
			return fmt.Errorf("failed to claim rewards: %w", err)
		}
		if err := b.pos.realize(ctx); err != nil {
			return fmt.Errorf("failed to realize yield: %w", err)
		}

		primary, hasPrimary := b.primaryReward()
		if route != nil && !hasPrimary {
			return errors.Join(types.ErrInvalidArgument, errors.New("route given but no reward token needs a swap"))
		}

		for _, token := range b.state.rewardTokens {
			if token == b.asset {
				continue
			}
			amount := b.ledger.BalanceOf(ctx, token, b.address)
			if amount.IsZero() {
				continue
			}
			r, ok := b.state.rewardRoutes[token]
			if token == primary && route != nil {
				r, ok = *route, true
			}
			if !ok {
				return fmt.Errorf("%w: no route for reward token %s", types.ErrPathNotFound, token.Hex())
			}
			if _, err := b.swapReward(ctx, token, r, amount); err != nil {
				return err
			}
		}

		proceeds = b.ledger.BalanceOf(ctx, b.asset, b.address)
		if proceeds.IsZero() {
			return nil
		}
		return b.ledger.Transfer(ctx, b.asset, b.address, caller, proceeds)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.logger.Info().Str("proceeds", proceeds.String()).Msg("Harvest completed")
	return proceeds, nil
}

// primaryReward is the first reward token that has to be swapped.
func (b *Base) primaryReward() (common.Address, bool) {
	for _, token := range b.state.rewardTokens {
		if token != b.asset {
			return token, true
		}
	}
	return common.Address{}, false
}

// swapReward sells amount of token for base asset along r.
func (b *Base) swapReward(ctx context.Context, token common.Address, r types.Route, amount sdkmath.Int) (sdkmath.Int, error) {
	ex, err := b.swapper(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := b.checkRoute(ctx, ex, r, token, b.asset); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return b.swap(ctx, ex, r, amount, b.state.withdrawSlippageBps)
}

// swap executes r with minOut derived from the current quote.
func (b *Base) swap(ctx context.Context, ex types.Swapper, r types.Route, amount sdkmath.Int, slippageBps uint64) (sdkmath.Int, error) {
	quote, err := ex.Quote(ctx, r.Router, r.PathIndex, amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to quote route %s/%d: %w", r.Router.Hex(), r.PathIndex, err)
	}
	minOut := utils.MinAfterSlippage(quote, slippageBps)
	out, err := ex.Swap(ctx, b.address, r.Router, r.PathIndex, amount, minOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.logger.Debug().
		Str("router", r.Router.Hex()).
		Uint64("path", r.PathIndex).
		Str("amount_in", amount.String()).
		Str("amount_out", out.String()).
		Msg("Strategy swap executed")
	return out, nil
}

// checkRoute verifies that r converts tokenIn into tokenOut.
func (b *Base) checkRoute(ctx context.Context, ex types.Swapper, r types.Route, tokenIn, tokenOut common.Address) error {
	p, err := ex.Path(ctx, r.Router, r.PathIndex)
	if err != nil {
		return err
	}
	if p.TokenIn() != tokenIn || p.TokenOut() != tokenOut {
		return errors.Join(types.ErrInvalidArgument, fmt.Errorf("route %s/%d swaps %s -> %s, want %s -> %s",
			r.Router.Hex(), r.PathIndex, p.TokenIn().Hex(), p.TokenOut().Hex(), tokenIn.Hex(), tokenOut.Hex()))
	}
	return nil
}

// EmergencyWithdraw frees the whole position, sends it to the controller and
// marks the strategy Drained.
func (b *Base) EmergencyWithdraw(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	out := sdkmath.ZeroInt()
	err := b.guarded(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		if _, err := b.pos.freeAll(ctx); err != nil {
			return fmt.Errorf("failed to free position: %w", err)
		}
		out = b.ledger.BalanceOf(ctx, b.asset, b.address)
		if err := b.ledger.Transfer(ctx, b.asset, b.address, b.controller.Address(), out); err != nil {
			return err
		}
		if residual := b.pos.value(ctx); !residual.IsZero() {
			b.logger.Warn().Str("residual", residual.String()).Msg("Position not fully freed by emergency withdraw")
		}
		b.checkpoint(ctx)
		b.state.principal = sdkmath.ZeroInt()
		b.state.status = types.StatusDrained
		b.persist(ctx)
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.logger.Warn().Str("amount", out.String()).Msg("Emergency withdraw drained strategy")
	return out, nil
}

// TotalAssets returns the position value plus any base asset the strategy
// holds. With includePending it also counts claimable and unsold rewards:
// base-denominated rewards at face value, others at their quoted value
// along the configured route. Rewards without a route are not counted.
func (b *Base) TotalAssets(ctx context.Context, includePending bool) sdkmath.Int {
	total := sdkmath.ZeroInt()
	_ = b.ledger.View(ctx, func(ctx context.Context) error {
		total = b.pos.value(ctx).Add(b.ledger.BalanceOf(ctx, b.asset, b.address))
		if !includePending {
			return nil
		}
		for _, token := range b.state.rewardTokens {
			amount := b.pos.pending(ctx, token)
			if token != b.asset {
				amount = amount.Add(b.ledger.BalanceOf(ctx, token, b.address))
			}
			if amount.IsZero() {
				continue
			}
			if token == b.asset {
				total = total.Add(amount)
				continue
			}
			r, ok := b.state.rewardRoutes[token]
			if !ok {
				continue
			}
			ex, err := b.swapper(ctx)
			if err != nil {
				continue
			}
			quoted, err := ex.Quote(ctx, r.Router, r.PathIndex, amount)
			if err != nil {
				b.logger.Debug().Err(err).Str("token", token.Hex()).Msg("Pending reward could not be quoted")
				continue
			}
			total = total.Add(quoted)
		}
		return nil
	})
	return total
}

// SetDepositSlippage sets the tolerance applied when deploying.
func (b *Base) SetDepositSlippage(ctx context.Context, caller common.Address, bps uint64) error {
	return b.setSlippage(ctx, caller, bps, func(s *strategyState) { s.depositSlippageBps = bps })
}

// SetWithdrawSlippage sets the tolerance applied when freeing and when
// selling rewards.
func (b *Base) SetWithdrawSlippage(ctx context.Context, caller common.Address, bps uint64) error {
	return b.setSlippage(ctx, caller, bps, func(s *strategyState) { s.withdrawSlippageBps = bps })
}

func (b *Base) setSlippage(ctx context.Context, caller common.Address, bps uint64, apply func(*strategyState)) error {
	if err := utils.ValidateBps(bps); err != nil {
		return errors.Join(types.ErrInvalidArgument, err)
	}
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		b.checkpoint(ctx)
		apply(&b.state)
		b.persist(ctx)
		b.logger.Info().
			Uint64("deposit_slippage_bps", b.state.depositSlippageBps).
			Uint64("withdraw_slippage_bps", b.state.withdrawSlippageBps).
			Msg("Slippage updated")
		return nil
	})
}

// AddRewardToken appends token to the reward tokens sold on harvest.
func (b *Base) AddRewardToken(ctx context.Context, caller, token common.Address) error {
	if token == (common.Address{}) {
		return errors.Join(types.ErrInvalidArgument, errors.New("reward token cannot be zero"))
	}
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		return b.addRewardToken(ctx, token)
	})
}

func (b *Base) addRewardToken(ctx context.Context, token common.Address) error {
	if slices.Contains(b.state.rewardTokens, token) {
		return fmt.Errorf("%w: reward token %s", types.ErrAlreadyRegistered, token.Hex())
	}
	b.checkpoint(ctx)
	b.state.rewardTokens = append(b.state.rewardTokens, token)
	b.persist(ctx)
	b.logger.Info().Str("token", token.Hex()).Msg("Reward token added")
	return nil
}

// SetRewardRoute sets the route that sells token for base asset.
func (b *Base) SetRewardRoute(ctx context.Context, caller, token common.Address, r types.Route) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		if !slices.Contains(b.state.rewardTokens, token) {
			return errors.Join(types.ErrInvalidArgument, fmt.Errorf("%s is not a reward token", token.Hex()))
		}
		ex, err := b.swapper(ctx)
		if err != nil {
			return err
		}
		if err := b.checkRoute(ctx, ex, r, token, b.asset); err != nil {
			return err
		}
		b.checkpoint(ctx)
		b.state.rewardRoutes[token] = r
		b.persist(ctx)
		b.logger.Info().
			Str("token", token.Hex()).
			Str("router", r.Router.Hex()).
			Uint64("path", r.PathIndex).
			Msg("Reward route set")
		return nil
	})
}

// SetExchange points the strategy at ex. A nil ex falls back to the
// controller's Exchange. The binding lives in memory only and is not
// restored.
func (b *Base) SetExchange(ctx context.Context, caller common.Address, ex types.Swapper) error {
	return b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		b.checkpoint(ctx)
		b.state.exchange = ex

		event := b.logger.Info()
		if ex != nil {
			event = event.Str("exchange", ex.Address().Hex())
		} else {
			event = event.Str("exchange", "controller")
		}
		event.Msg("Exchange set")
		return nil
	})
}

// Restore reloads the persisted strategy state. A strategy that was never
// persisted keeps its configured defaults.
func (b *Base) Restore(ctx context.Context) error {
	rec, err := b.ledger.Store().Strategy(ctx, b.address)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load strategy %s: %w", b.name, err)
	}
	return b.ledger.View(ctx, func(context.Context) error {
		b.state.status = rec.Status
		b.state.principal = rec.Principal
		b.state.depositSlippageBps = rec.DepositSlippageBps
		b.state.withdrawSlippageBps = rec.WithdrawSlippageBps
		b.state.rewardTokens = slices.Clone(rec.RewardTokens)
		b.state.rewardRoutes = make(map[common.Address]types.Route, len(rec.RewardRoutes))
		maps.Copy(b.state.rewardRoutes, rec.RewardRoutes)
		b.state.depositRoute = rec.DepositRoute
		b.state.withdrawRoute = rec.WithdrawRoute
		b.logger.Info().
			Str("status", rec.Status.String()).
			Str("principal", rec.Principal.String()).
			Msg("Restored strategy state")
		return nil
	})
}
