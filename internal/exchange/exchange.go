/*

Package exchange is the single swap entry point of the vault. It keeps an
ordered list of router adapters and an allow list of callers (strategies)
and forwards each swap to the adapter that owns the requested path.

*/

package exchange

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/access"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Router is a venue adapter the Exchange can delegate to.
type Router interface {
	Address() common.Address
	Venue() types.Venue
	Path(ctx context.Context, index uint64) (types.SwapPath, error)
	PathCount(ctx context.Context) int
	Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error)
	Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
		recipient common.Address) (sdkmath.Int, error)
	Restore(ctx context.Context) error
}

// Config holds the Exchange dependencies.
type Config struct {
	Ledger  *ledger.Ledger
	Address common.Address
	Owner   common.Address
	Metrics *metrics.Metrics // optional
}

func validateExchangeConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Address == (common.Address{}) {
		return errors.New("exchange address cannot be zero")
	}
	return nil
}

type listing struct {
	router Router
	listed bool
}

// Exchange routes swaps for allow-listed callers through listed routers.
type Exchange struct {
	access.Ownable
	ledger  *ledger.Ledger
	address common.Address
	metrics *metrics.Metrics
	logger  zerolog.Logger

	routers     []listing
	byAddress   map[common.Address]int
	swapCallers map[common.Address]bool

	guard ledger.Guard
}

// New creates an Exchange with no routers and no swap callers.
func New(cfg Config) (*Exchange, error) {
	if err := validateExchangeConfig(cfg); err != nil {
		return nil, fmt.Errorf("exchange configuration validation failed: %w", err)
	}
	owner, err := access.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	return &Exchange{
		Ownable:     owner,
		ledger:      cfg.Ledger,
		address:     cfg.Address,
		metrics:     cfg.Metrics,
		logger:      logger.GetForComponent("exchange"),
		byAddress:   make(map[common.Address]int),
		swapCallers: make(map[common.Address]bool),
	}, nil
}

// Address returns the Exchange handle.
func (e *Exchange) Address() common.Address { return e.address }

// ListRouter appends r to the router list. A router that was unlisted is
// listed again at its original position.
func (e *Exchange) ListRouter(ctx context.Context, caller common.Address, r Router) error {
	if r == nil || r.Address() == (common.Address{}) {
		return errors.Join(types.ErrInvalidArgument, errors.New("router cannot be nil or zero"))
	}
	return e.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := e.OnlyOwner(caller); err != nil {
			return err
		}
		handle := r.Address()
		pos, known := e.byAddress[handle]
		if known && e.routers[pos].listed {
			return fmt.Errorf("%w: router %s", types.ErrAlreadyRegistered, handle.Hex())
		}

		if known {
			prev := e.routers[pos]
			e.routers[pos] = listing{router: r, listed: true}
			e.ledger.Record(ctx, func() { e.routers[pos] = prev })
		} else {
			pos = len(e.routers)
			e.routers = append(e.routers, listing{router: r, listed: true})
			e.byAddress[handle] = pos
			e.ledger.Record(ctx, func() {
				e.routers = e.routers[:pos]
				delete(e.byAddress, handle)
			})
		}
		e.persistListing(ctx, handle, pos, true)

		e.logger.Info().
			Str("router", handle.Hex()).
			Str("venue", string(r.Venue())).
			Int("position", pos).
			Msg("Router listed")
		return nil
	})
}

// UnlistRouter removes handle from the routable set. Its position is kept.
func (e *Exchange) UnlistRouter(ctx context.Context, caller, handle common.Address) error {
	return e.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := e.OnlyOwner(caller); err != nil {
			return err
		}
		pos, ok := e.byAddress[handle]
		if !ok || !e.routers[pos].listed {
			return fmt.Errorf("%w: %s", types.ErrUnlistedRouter, handle.Hex())
		}
		e.routers[pos].listed = false
		e.ledger.Record(ctx, func() { e.routers[pos].listed = true })
		e.persistListing(ctx, handle, pos, false)

		e.logger.Info().Str("router", handle.Hex()).Msg("Router unlisted")
		return nil
	})
}

func (e *Exchange) persistListing(ctx context.Context, handle common.Address, pos int, listed bool) {
	rec := state.RouterListingRecord{Exchange: e.address, Router: handle, Position: pos, Listed: listed}
	e.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
		return tx.PutRouterListing(ctx, rec)
	})
}

// SetSwapCaller grants or revokes target's permission to call Swap.
func (e *Exchange) SetSwapCaller(ctx context.Context, caller, target common.Address, allowed bool) error {
	if target == (common.Address{}) {
		return errors.Join(types.ErrInvalidArgument, errors.New("swap caller cannot be zero"))
	}
	return e.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := e.OnlyOwner(caller); err != nil {
			return err
		}
		prev, existed := e.swapCallers[target]
		if allowed {
			e.swapCallers[target] = true
		} else {
			delete(e.swapCallers, target)
		}
		e.ledger.Record(ctx, func() {
			if existed {
				e.swapCallers[target] = prev
			} else {
				delete(e.swapCallers, target)
			}
		})
		rec := state.SwapCallerRecord{Exchange: e.address, Caller: target, Allowed: allowed}
		e.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
			return tx.PutSwapCaller(ctx, rec)
		})

		e.logger.Info().Str("caller", target.Hex()).Bool("allowed", allowed).Msg("Swap caller updated")
		return nil
	})
}

// IsSwapCaller reports whether target may call Swap.
func (e *Exchange) IsSwapCaller(ctx context.Context, target common.Address) bool {
	var allowed bool
	_ = e.ledger.View(ctx, func(context.Context) error {
		allowed = e.swapCallers[target]
		return nil
	})
	return allowed
}

// Routers returns the listed routers in list order.
func (e *Exchange) Routers(ctx context.Context) []Router {
	var out []Router
	_ = e.ledger.View(ctx, func(context.Context) error {
		for _, l := range e.routers {
			if l.listed {
				out = append(out, l.router)
			}
		}
		return nil
	})
	return out
}

// Router returns the listed router behind handle.
func (e *Exchange) Router(ctx context.Context, handle common.Address) (Router, error) {
	var r Router
	err := e.ledger.View(ctx, func(context.Context) error {
		var err error
		r, err = e.listed(handle)
		return err
	})
	return r, err
}

func (e *Exchange) listed(handle common.Address) (Router, error) {
	pos, ok := e.byAddress[handle]
	if !ok || !e.routers[pos].listed {
		return nil, fmt.Errorf("%w: %s", types.ErrUnlistedRouter, handle.Hex())
	}
	return e.routers[pos].router, nil
}

// Path returns path pathIndex of a listed router.
func (e *Exchange) Path(ctx context.Context, router common.Address, pathIndex uint64) (types.SwapPath, error) {
	r, err := e.Router(ctx, router)
	if err != nil {
		return types.SwapPath{}, err
	}
	return r.Path(ctx, pathIndex)
}

// Quote returns the expected output of a swap without executing it.
func (e *Exchange) Quote(ctx context.Context, router common.Address, pathIndex uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	r, err := e.Router(ctx, router)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return r.Quote(ctx, pathIndex, amountIn)
}

// Swap converts amountIn of the path's input token held by caller and pays
// the output back to caller. The call fails unless caller receives at least
// minOut.
func (e *Exchange) Swap(ctx context.Context, caller, router common.Address, pathIndex uint64,
	amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	var (
		amountOut = sdkmath.ZeroInt()
		venue     string
	)
	err := e.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := e.guard.Enter()
		if err != nil {
			return err
		}
		defer release()

		r, err := e.listed(router)
		if err != nil {
			return err
		}
		venue = string(r.Venue())
		if !e.swapCallers[caller] {
			return fmt.Errorf("%w: %s is not an allowed swap caller", types.ErrUnauthorized, caller.Hex())
		}
		p, err := r.Path(ctx, pathIndex)
		if err != nil {
			return err
		}

		before := e.ledger.BalanceOf(ctx, p.TokenOut(), caller)
		if err := e.ledger.Transfer(ctx, p.TokenIn(), caller, r.Address(), amountIn); err != nil {
			return fmt.Errorf("failed to move swap input to router: %w", err)
		}
		if _, err := r.Swap(ctx, e.address, pathIndex, amountIn, minOut, caller); err != nil {
			return err
		}
		received := e.ledger.BalanceOf(ctx, p.TokenOut(), caller).Sub(before)
		if received.LT(minOut) {
			return fmt.Errorf("%w: caller received %s, minimum %s", types.ErrSlippageExceeded, received, minOut)
		}
		amountOut = received
		return nil
	})
	e.metrics.ObserveSwap(venue, err)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("caller", caller.Hex()).
			Str("router", router.Hex()).
			Uint64("path", pathIndex).
			Msg("Swap rejected")
		return sdkmath.ZeroInt(), err
	}

	e.logger.Info().
		Str("caller", caller.Hex()).
		Str("venue", venue).
		Uint64("path", pathIndex).
		Str("amount_in", amountIn.String()).
		Str("amount_out", amountOut.String()).
		Msg("Swap completed")
	return amountOut, nil
}

// Restore reloads the router list and swap callers. Every persisted router
// must be supplied; each one also restores its own paths.
func (e *Exchange) Restore(ctx context.Context, routers ...Router) error {
	listings, err := e.ledger.Store().RouterListings(ctx, e.address)
	if err != nil {
		return fmt.Errorf("failed to load router listings: %w", err)
	}
	callers, err := e.ledger.Store().SwapCallers(ctx, e.address)
	if err != nil {
		return fmt.Errorf("failed to load swap callers: %w", err)
	}

	byHandle := make(map[common.Address]Router, len(routers))
	for _, r := range routers {
		byHandle[r.Address()] = r
	}
	for _, rec := range listings {
		r, ok := byHandle[rec.Router]
		if !ok {
			return fmt.Errorf("persisted router %s was not supplied", rec.Router.Hex())
		}
		if err := r.Restore(ctx); err != nil {
			return err
		}
	}

	return e.ledger.View(ctx, func(context.Context) error {
		e.routers = e.routers[:0]
		clear(e.byAddress)
		clear(e.swapCallers)
		for i, rec := range listings {
			if rec.Position != i {
				return fmt.Errorf("persisted router position %d found at %d", rec.Position, i)
			}
			e.routers = append(e.routers, listing{router: byHandle[rec.Router], listed: rec.Listed})
			e.byAddress[rec.Router] = i
		}
		for _, rec := range callers {
			if rec.Allowed {
				e.swapCallers[rec.Caller] = true
			}
		}
		e.logger.Info().
			Int("routers", len(listings)).
			Int("swap_callers", len(e.swapCallers)).
			Msg("Restored exchange state")
		return nil
	})
}

var _ types.Swapper = (*Exchange)(nil)
