/*

Package router implements the venue adapters the Exchange delegates swaps to.

Every adapter owns a PathRegistry of routes for its venue family. Paths are
added by the adapter owner, looked up by their descriptor, and executed only
on behalf of the Exchange. Slippage is checked once, on the final output;
intermediate hops of a multi-hop path are never validated.

*/

package router

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/access"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Config holds what every adapter needs.
type Config struct {
	Ledger   *ledger.Ledger
	Address  common.Address // handle the adapter is listed under
	Owner    common.Address // may add paths
	Exchange common.Address // only caller allowed to execute swaps
}

func validateRouterConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Address == (common.Address{}) {
		return errors.New("router address cannot be zero")
	}
	if cfg.Exchange == (common.Address{}) {
		return errors.New("exchange address cannot be zero")
	}
	return nil
}

// execFunc performs the venue call for path p. The adapter already holds
// amountIn of p.TokenIn().
type execFunc func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error

// base carries the behaviour shared by all adapters.
type base struct {
	access.Ownable
	ledger   *ledger.Ledger
	address  common.Address
	exchange common.Address
	venue    types.Venue
	registry *PathRegistry
	guard    ledger.Guard
	logger   zerolog.Logger
}

func newBase(cfg Config, venue types.Venue) (*base, error) {
	if err := validateRouterConfig(cfg); err != nil {
		return nil, fmt.Errorf("%s router configuration validation failed: %w", venue, err)
	}
	owner, err := access.NewOwnable(cfg.Owner)
	if err != nil {
		return nil, err
	}
	return &base{
		Ownable:  owner,
		ledger:   cfg.Ledger,
		address:  cfg.Address,
		exchange: cfg.Exchange,
		venue:    venue,
		registry: newPathRegistry(),
		logger:   logger.GetForComponent("router").With().Str("venue", string(venue)).Logger(),
	}, nil
}

// Address returns the handle the adapter is listed under.
func (b *base) Address() common.Address { return b.address }

// Venue returns the venue family.
func (b *base) Venue() types.Venue { return b.venue }

// PathCount returns how many paths are registered.
func (b *base) PathCount(ctx context.Context) int {
	var n int
	_ = b.ledger.View(ctx, func(context.Context) error {
		n = b.registry.len()
		return nil
	})
	return n
}

// Path returns the path at index, or ErrInvalidPathIndex.
func (b *base) Path(ctx context.Context, index uint64) (types.SwapPath, error) {
	var p types.SwapPath
	err := b.ledger.View(ctx, func(context.Context) error {
		var err error
		p, err = b.registry.get(index)
		return err
	})
	return p, err
}

// Paths returns every registered path in index order.
func (b *base) Paths(ctx context.Context) []types.SwapPath {
	var paths []types.SwapPath
	_ = b.ledger.View(ctx, func(context.Context) error {
		paths = b.registry.all()
		return nil
	})
	return paths
}

// Restore reloads the registry from the ledger's store.
func (b *base) Restore(ctx context.Context) error {
	paths, err := b.ledger.Store().Paths(ctx, b.address)
	if err != nil {
		return fmt.Errorf("failed to load %s paths: %w", b.venue, err)
	}
	return b.ledger.View(ctx, func(context.Context) error {
		if err := b.registry.load(paths); err != nil {
			return err
		}
		b.logger.Info().Int("paths", len(paths)).Msg("Restored swap paths")
		return nil
	})
}

// addPath registers p (Key and Tokens populated) and returns its index. A
// path that is already present returns its existing index.
func (b *base) addPath(ctx context.Context, caller common.Address, p types.SwapPath) (uint64, error) {
	var index uint64
	err := b.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := b.OnlyOwner(caller); err != nil {
			return err
		}
		p.Venue = b.venue
		idx, created := b.registry.add(ctx, b.ledger, p)
		index = idx
		if !created {
			return nil
		}
		stored, _ := b.registry.get(idx)
		router := b.address
		b.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
			return tx.PutPath(ctx, state.PathRecord{Router: router, Path: stored})
		})
		b.logger.Info().
			Uint64("index", idx).
			Str("key", p.Key.Hex()).
			Str("token_in", p.TokenIn().Hex()).
			Str("token_out", p.TokenOut().Hex()).
			Msg("Registered swap path")
		return nil
	})
	return index, err
}

func (b *base) pathIndex(ctx context.Context, key common.Hash) (uint64, error) {
	var idx uint64
	err := b.ledger.View(ctx, func(context.Context) error {
		var err error
		idx, err = b.registry.indexOf(key)
		return err
	})
	return idx, err
}

// quote resolves the path and asks the venue through q.
func (b *base) quote(ctx context.Context, index uint64, amountIn sdkmath.Int,
	q func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error)) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("amount in must be positive"))
	}
	var out sdkmath.Int
	err := b.ledger.View(ctx, func(ctx context.Context) error {
		p, err := b.registry.get(index)
		if err != nil {
			return err
		}
		out, err = q(ctx, p)
		return err
	})
	return out, err
}

// swap runs the shared swap protocol around exec: caller and path checks,
// input custody check, and the end-to-end minOut check on what the recipient
// actually received.
func (b *base) swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address, exec execFunc) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("amount in must be positive"))
	}
	if minOut.IsNil() || minOut.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidArgument, errors.New("min out must be non-negative"))
	}

	amountOut := sdkmath.ZeroInt()
	err := b.ledger.Atomic(ctx, func(ctx context.Context) error {
		release, err := b.guard.Enter()
		if err != nil {
			return err
		}
		defer release()

		if err := access.Only("exchange", b.exchange, caller); err != nil {
			return err
		}
		p, err := b.registry.get(index)
		if err != nil {
			return err
		}
		held := b.ledger.BalanceOf(ctx, p.TokenIn(), b.address)
		if held.LT(amountIn) {
			return fmt.Errorf("%w: router holds %s of %s, swap needs %s",
				types.ErrInsufficientBalance, held, p.TokenIn().Hex(), amountIn)
		}

		before := b.ledger.BalanceOf(ctx, p.TokenOut(), recipient)
		if err := exec(ctx, p, amountIn, minOut, recipient); err != nil {
			return fmt.Errorf("%s swap on path %d failed: %w", b.venue, index, err)
		}
		received := b.ledger.BalanceOf(ctx, p.TokenOut(), recipient).Sub(before)
		if received.LT(minOut) {
			return fmt.Errorf("%w: received %s, minimum %s", types.ErrSlippageExceeded, received, minOut)
		}
		amountOut = received

		b.logger.Debug().
			Uint64("path", index).
			Str("amount_in", amountIn.String()).
			Str("amount_out", received.String()).
			Msg("Swap executed")
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amountOut, nil
}

func validateTokens(tokens []common.Address) error {
	if len(tokens) < 2 {
		return errors.Join(types.ErrInvalidArgument, errors.New("path needs at least two tokens"))
	}
	for i, t := range tokens {
		if t == (common.Address{}) {
			return errors.Join(types.ErrInvalidArgument, fmt.Errorf("token %d is the zero address", i))
		}
		if i > 0 && tokens[i-1] == t {
			return errors.Join(types.ErrInvalidArgument, fmt.Errorf("hop %d swaps a token into itself", i-1))
		}
	}
	return nil
}
