package router

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Balancer routes single swaps through a weighted-pool vault. A path is a
// pool id and the asset pair.
type Balancer struct {
	*base
	vault BalancerVault
}

// NewBalancer creates the adapter over vault.
func NewBalancer(cfg Config, vault BalancerVault) (*Balancer, error) {
	b, err := newBase(cfg, types.VenueBalancer)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.New("balancer vault cannot be nil")
	}
	return &Balancer{base: b, vault: vault}, nil
}

func balancerKey(poolID common.Hash, assetIn, assetOut common.Address) common.Hash {
	return pathKey(types.VenueBalancer, poolID.Bytes(), addressBytes(assetIn, assetOut))
}

// AddPath registers a single-pool swap and returns the path index.
func (b *Balancer) AddPath(ctx context.Context, caller common.Address, poolID common.Hash, assetIn, assetOut common.Address) (uint64, error) {
	if poolID == (common.Hash{}) {
		return 0, errors.Join(types.ErrInvalidArgument, errors.New("pool id cannot be empty"))
	}
	if err := validateTokens([]common.Address{assetIn, assetOut}); err != nil {
		return 0, err
	}
	return b.addPath(ctx, caller, types.SwapPath{
		Key:    balancerKey(poolID, assetIn, assetOut),
		Target: b.vault.Address(),
		Tokens: []common.Address{assetIn, assetOut},
		Pools:  []common.Hash{poolID},
	})
}

// GetPathIndex returns the index of a registered path or ErrPathNotFound.
func (b *Balancer) GetPathIndex(ctx context.Context, poolID common.Hash, assetIn, assetOut common.Address) (uint64, error) {
	return b.pathIndex(ctx, balancerKey(poolID, assetIn, assetOut))
}

func singleSwap(p types.SwapPath, amountIn sdkmath.Int) SingleSwap {
	return SingleSwap{PoolID: p.Pools[0], AssetIn: p.TokenIn(), AssetOut: p.TokenOut(), Amount: amountIn}
}

// Quote queries the vault for amountIn along path index.
func (b *Balancer) Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return b.quote(ctx, index, amountIn, func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error) {
		return b.vault.QuerySwap(ctx, singleSwap(p, amountIn))
	})
}

// Swap executes path index for the Exchange.
func (b *Balancer) Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address) (sdkmath.Int, error) {
	return b.swap(ctx, caller, index, amountIn, minOut, recipient,
		func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error {
			_, err := b.vault.Swap(ctx, singleSwap(p, amountIn),
				FundManagement{Sender: b.address, Recipient: recipient}, minOut)
			return err
		})
}
