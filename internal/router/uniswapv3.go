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

const (
	v3FeeSize = 3
	// MaxV3Fee is the largest fee tier that fits the packed 3-byte encoding.
	MaxV3Fee = 1<<24 - 1
)

// EncodeV3Path packs tokens and fee tiers as token(20) fee(3) token(20)...
func EncodeV3Path(tokens []common.Address, fees []uint32) ([]byte, error) {
	if err := validateTokens(tokens); err != nil {
		return nil, err
	}
	if len(fees) != len(tokens)-1 {
		return nil, errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("path of %d tokens needs %d fee tiers, got %d", len(tokens), len(tokens)-1, len(fees)))
	}
	out := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*v3FeeSize)
	for i, token := range tokens {
		out = append(out, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			if fee > MaxV3Fee {
				return nil, errors.Join(types.ErrInvalidArgument, fmt.Errorf("fee tier %d does not fit 24 bits", fee))
			}
			out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return out, nil
}

// DecodeV3Path is the inverse of EncodeV3Path.
func DecodeV3Path(path []byte) ([]common.Address, []uint32, error) {
	const hop = common.AddressLength + v3FeeSize
	if len(path) < common.AddressLength+hop || (len(path)-common.AddressLength)%hop != 0 {
		return nil, nil, errors.Join(types.ErrInvalidArgument, fmt.Errorf("malformed packed path of %d bytes", len(path)))
	}
	var (
		tokens []common.Address
		fees   []uint32
	)
	for offset := 0; ; offset += hop {
		tokens = append(tokens, common.BytesToAddress(path[offset:offset+common.AddressLength]))
		if offset+common.AddressLength == len(path) {
			break
		}
		f := path[offset+common.AddressLength : offset+hop]
		fees = append(fees, uint32(f[0])<<16|uint32(f[1])<<8|uint32(f[2]))
	}
	return tokens, fees, nil
}

// UniswapV3 routes through a concentrated-liquidity router. A path is a
// token sequence with one fee tier per hop.
type UniswapV3 struct {
	*base
	venue UniswapV3Venue
}

// NewUniswapV3 creates the adapter over venue.
func NewUniswapV3(cfg Config, venue UniswapV3Venue) (*UniswapV3, error) {
	b, err := newBase(cfg, types.VenueUniswapV3)
	if err != nil {
		return nil, err
	}
	if venue == nil {
		return nil, errors.New("uniswap v3 venue cannot be nil")
	}
	return &UniswapV3{base: b, venue: venue}, nil
}

// AddPath registers tokens/fees and returns the path index.
func (u *UniswapV3) AddPath(ctx context.Context, caller common.Address, tokens []common.Address, fees []uint32) (uint64, error) {
	packed, err := EncodeV3Path(tokens, fees)
	if err != nil {
		return 0, err
	}
	return u.addPath(ctx, caller, types.SwapPath{
		Key:    pathKey(types.VenueUniswapV3, packed),
		Target: u.venue.Address(),
		Tokens: slices.Clone(tokens),
		Fees:   slices.Clone(fees),
	})
}

// GetPathIndex returns the index of a registered path or ErrPathNotFound.
func (u *UniswapV3) GetPathIndex(ctx context.Context, tokens []common.Address, fees []uint32) (uint64, error) {
	packed, err := EncodeV3Path(tokens, fees)
	if err != nil {
		return 0, errors.Join(types.ErrPathNotFound, err)
	}
	return u.pathIndex(ctx, pathKey(types.VenueUniswapV3, packed))
}

// Quote returns the venue quoter's output for amountIn along path index.
func (u *UniswapV3) Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return u.quote(ctx, index, amountIn, func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error) {
		packed, err := EncodeV3Path(p.Tokens, p.Fees)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return u.venue.QuoteExactInput(ctx, packed, amountIn)
	})
}

// Swap executes path index for the Exchange.
func (u *UniswapV3) Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address) (sdkmath.Int, error) {
	return u.swap(ctx, caller, index, amountIn, minOut, recipient,
		func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error {
			packed, err := EncodeV3Path(p.Tokens, p.Fees)
			if err != nil {
				return err
			}
			_, err = u.venue.ExactInput(ctx, u.address, ExactInputParams{
				Path:             packed,
				Recipient:        recipient,
				AmountIn:         amountIn,
				AmountOutMinimum: minOut,
			})
			return err
		})
}
