package router

import (
	"context"
	"errors"
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// UniswapV2 routes through constant-product routers. A path is a venue
// router plus a token sequence.
type UniswapV2 struct {
	*base
	venues map[common.Address]UniswapV2Venue
}

// NewUniswapV2 creates the adapter over the given venue routers.
func NewUniswapV2(cfg Config, venues ...UniswapV2Venue) (*UniswapV2, error) {
	b, err := newBase(cfg, types.VenueUniswapV2)
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return nil, errors.New("uniswap v2 router needs at least one venue")
	}
	u := &UniswapV2{base: b, venues: make(map[common.Address]UniswapV2Venue, len(venues))}
	for _, v := range venues {
		u.venues[v.Address()] = v
	}
	return u, nil
}

func uniswapV2Key(venue common.Address, tokens []common.Address) common.Hash {
	return pathKey(types.VenueUniswapV2, venue.Bytes(), addressBytes(tokens...))
}

// AddPath registers tokens on venue and returns the path index.
func (u *UniswapV2) AddPath(ctx context.Context, caller, venue common.Address, tokens []common.Address) (uint64, error) {
	if _, ok := u.venues[venue]; !ok {
		return 0, errors.Join(types.ErrInvalidArgument, fmt.Errorf("unknown uniswap v2 venue %s", venue.Hex()))
	}
	if err := validateTokens(tokens); err != nil {
		return 0, err
	}
	return u.addPath(ctx, caller, types.SwapPath{
		Key:    uniswapV2Key(venue, tokens),
		Target: venue,
		Tokens: slices.Clone(tokens),
	})
}

// GetPathIndex returns the index of a registered path or ErrPathNotFound.
func (u *UniswapV2) GetPathIndex(ctx context.Context, venue common.Address, tokens []common.Address) (uint64, error) {
	return u.pathIndex(ctx, uniswapV2Key(venue, tokens))
}

// Quote returns the venue's expected output for amountIn along path index.
func (u *UniswapV2) Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return u.quote(ctx, index, amountIn, func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error) {
		amounts, err := u.venues[p.Target].GetAmountsOut(ctx, amountIn, p.Tokens)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return amounts[len(amounts)-1], nil
	})
}

// Swap executes path index for the Exchange.
func (u *UniswapV2) Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address) (sdkmath.Int, error) {
	return u.swap(ctx, caller, index, amountIn, minOut, recipient,
		func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error {
			_, err := u.venues[p.Target].SwapExactTokensForTokens(ctx, u.address, amountIn, minOut, p.Tokens, recipient)
			return err
		})
}
