/*

Swap routing types shared by the Exchange, the Router adapters and the
strategies that call into them.

*/

package types

import (
	"context"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Venue identifies the liquidity venue family a router adapter speaks to.
type Venue string

const (
	VenueUniswapV2     Venue = "uniswap_v2"
	VenueUniswapV3     Venue = "uniswap_v3"
	VenueCurve         Venue = "curve"
	VenueBalancer      Venue = "balancer_v2"
	VenueBalancerBatch Venue = "balancer_batch_v2"
)

// SwapPath is a registered route inside one router. Which optional fields are
// populated depends on Venue.
type SwapPath struct {
	Venue       Venue            `json:"venue"`
	Index       uint64           `json:"index"`
	Key         common.Hash      `json:"key"`
	Target      common.Address   `json:"target,omitempty"`       // uniswap v2 router or curve pool
	Tokens      []common.Address `json:"tokens"`                 // hop sequence, tokenIn first
	Pools       []common.Hash    `json:"pools,omitempty"`        // balancer pool ids, one per hop
	Fees        []uint32         `json:"fees,omitempty"`         // uniswap v3 fee tiers, one per hop
	CoinIndices []int            `json:"coin_indices,omitempty"` // curve (i, j)
}

// TokenIn returns the token the path consumes.
func (p SwapPath) TokenIn() common.Address {
	if len(p.Tokens) == 0 {
		return common.Address{}
	}
	return p.Tokens[0]
}

// TokenOut returns the token the path produces.
func (p SwapPath) TokenOut() common.Address {
	if len(p.Tokens) == 0 {
		return common.Address{}
	}
	return p.Tokens[len(p.Tokens)-1]
}

// Route selects a registered path on a listed router.
type Route struct {
	Router    common.Address `json:"router"`
	PathIndex uint64         `json:"path_index"`
}

// Swapper is the capability strategies hold to convert tokens. The Exchange
// implements it.
type Swapper interface {
	Address() common.Address
	Path(ctx context.Context, router common.Address, pathIndex uint64) (SwapPath, error)
	Quote(ctx context.Context, router common.Address, pathIndex uint64, amountIn math.Int) (math.Int, error)
	Swap(ctx context.Context, caller, router common.Address, pathIndex uint64, amountIn, minOut math.Int) (math.Int, error)
}
