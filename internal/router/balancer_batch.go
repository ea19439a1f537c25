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

// BalancerBatch routes multi-hop swaps through a weighted-pool vault's batch
// entry point. A path is one pool id per hop plus the asset sequence.
type BalancerBatch struct {
	*base
	vault BalancerVault
}

// NewBalancerBatch creates the adapter over vault.
func NewBalancerBatch(cfg Config, vault BalancerVault) (*BalancerBatch, error) {
	b, err := newBase(cfg, types.VenueBalancerBatch)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.New("balancer vault cannot be nil")
	}
	return &BalancerBatch{base: b, vault: vault}, nil
}

func balancerBatchKey(poolIDs []common.Hash, assets []common.Address) common.Hash {
	return pathKey(types.VenueBalancerBatch, hashBytes(poolIDs...), addressBytes(assets...))
}

// AddPath registers the hop sequence and returns the path index.
func (b *BalancerBatch) AddPath(ctx context.Context, caller common.Address, poolIDs []common.Hash, assets []common.Address) (uint64, error) {
	if err := validateTokens(assets); err != nil {
		return 0, err
	}
	if len(poolIDs) != len(assets)-1 {
		return 0, errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("%d assets need %d pools, got %d", len(assets), len(assets)-1, len(poolIDs)))
	}
	for i, id := range poolIDs {
		if id == (common.Hash{}) {
			return 0, errors.Join(types.ErrInvalidArgument, fmt.Errorf("pool id %d is empty", i))
		}
	}
	return b.addPath(ctx, caller, types.SwapPath{
		Key:    balancerBatchKey(poolIDs, assets),
		Target: b.vault.Address(),
		Tokens: slices.Clone(assets),
		Pools:  slices.Clone(poolIDs),
	})
}

// GetPathIndex returns the index of a registered path or ErrPathNotFound.
func (b *BalancerBatch) GetPathIndex(ctx context.Context, poolIDs []common.Hash, assets []common.Address) (uint64, error) {
	return b.pathIndex(ctx, balancerBatchKey(poolIDs, assets))
}

// batchSteps chains the hops: the first step carries amountIn, later steps
// consume the previous output.
func batchSteps(p types.SwapPath, amountIn sdkmath.Int) []BatchSwapStep {
	steps := make([]BatchSwapStep, len(p.Pools))
	for i, id := range p.Pools {
		amount := sdkmath.ZeroInt()
		if i == 0 {
			amount = amountIn
		}
		steps[i] = BatchSwapStep{PoolID: id, AssetInIndex: i, AssetOutIndex: i + 1, Amount: amount}
	}
	return steps
}

// Quote queries the batch for amountIn along path index.
func (b *BalancerBatch) Quote(ctx context.Context, index uint64, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return b.quote(ctx, index, amountIn, func(ctx context.Context, p types.SwapPath) (sdkmath.Int, error) {
		deltas, err := b.vault.QueryBatchSwap(ctx, batchSteps(p, amountIn), p.Tokens)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return deltas[len(deltas)-1].Neg(), nil
	})
}

// Swap executes path index for the Exchange.
func (b *BalancerBatch) Swap(ctx context.Context, caller common.Address, index uint64, amountIn, minOut sdkmath.Int,
	recipient common.Address) (sdkmath.Int, error) {
	return b.swap(ctx, caller, index, amountIn, minOut, recipient,
		func(ctx context.Context, p types.SwapPath, amountIn, minOut sdkmath.Int, recipient common.Address) error {
			limits := make([]sdkmath.Int, len(p.Tokens))
			for i := range limits {
				limits[i] = sdkmath.ZeroInt()
			}
			limits[0] = amountIn
			limits[len(limits)-1] = minOut.Neg()
			_, err := b.vault.BatchSwap(ctx, batchSteps(p, amountIn), p.Tokens,
				FundManagement{Sender: b.address, Recipient: recipient}, limits)
			return err
		})
}
