package router

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Curve routes single hops through stableswap pools. A path is a pool, the
// two coins and their indices inside the pool.
type Curve struct {
	*base
	pools map[common.Address]CurvePool
}

// NewCurve creates the adapter over the given pools.
func NewCurve(cfg Config, pools ...CurvePool) (*Curve, error) {
	b, err := newBase(cfg, types.VenueCurve)
	if err != nil {
		return nil, err
	}
	c := &Curve{base: b, pools: make(map[common.Address]CurvePool, len(pools))}
	for _, p := range pools {
		c.pools[p.Address()] = p
	}
	return c, nil
}

func curveKey(pool, tokenIn, tokenOut common.Address, i, j int) common.Hash {
	return pathKey(types.VenueCurve, addressBytes(pool, tokenIn, tokenOut), intBytes(i, j))
}

// AddPath registers the (pool, tokenIn, tokenOut, i, j) route. The coin
// indices must match what the pool reports.
func (c *Curve) AddPath(ctx context.Context, caller, pool, tokenIn, tokenOut common.Address, i, j int) (uint64, error) {
	cp, ok := c.pools[pool]
	if !ok {
		return 0, errors.Join(types.ErrInvalidArgument, fmt.Errorf("unknown curve pool %s", pool.Hex()))
	}
	if i < 0 || j < 0 || i == j {
		return 0, errors.Join(types.ErrInvalidArgument, fmt.Errorf("invalid coin indices (%d, %d)", i, j))
	}
	if err := validateTokens([]common.Address{tokenIn, tokenOut}); err != nil {
		return 0, err
	}
	for _, coin := range []struct {
		index int
		token common.Address
	}{{i, tokenIn}, {j, tokenOut}} {
		got, err := cp.Coins(ctx, coin.index)
		if err != nil {
			return 0, fmt.Errorf("failed to read coin %d of pool %s: %w", coin.index, pool.Hex(), err)
		}
		if got != coin.token {
			return 0, errors.Join(types.ErrInvalidArgument,
				fmt.Errorf("pool coin %d is %s, not %s", coin.index, got.Hex(), coin.token.Hex()))
		}
	}
	return c.addPath(ctx, caller, types.SwapPath{
		Key:         curveKey(pool, tokenIn, tokenOut, i, j),
		Target:      pool,
		Tokens:      []common.Address{tokenIn, tokenOut},
		CoinIndices: []int{i, j},
	})
}

// GetPathIndex returns the index of a registered path or ErrPathNotFound.
func (c *Curve) GetPathIndex(ctx context.Context, pool, tokenIn, tokenOut common.Address, i, j int) (uint64, error) {
	return c.pathIndex(ctx, curveKey(pool, tokenIn, tokenOut, i, j))
}

// Quote returns get_dy for amountIn along path index.
func (c *Curve) Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return c.quote(ctx, index, amountIn, func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error) {
		return c.pools[p.Target].GetDy(ctx, p.CoinIndices[0], p.CoinIndices[1], amountIn)
	})
}

// Swap executes path index for the Exchange.
func (c *Curve) Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address) (sdkmath.Int, error) {
	return c.swap(ctx, caller, index, amountIn, minOut, recipient,
		func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error {
			_, err := c.pools[p.Target].Exchange(ctx, c.address, p.CoinIndices[0], p.CoinIndices[1], amountIn, minOut, recipient)
			return err
		})
}
