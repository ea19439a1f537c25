package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// HarvestRequest is the array-parallel harvest call. PathIndices and
// RouterHandles are either both empty, in which case every strategy sells
// its rewards along its configured routes, or both as long as
// StrategyIndices, in which case element k is the route for strategy k.
type HarvestRequest struct {
	StrategyIndices []int
	PathIndices     []uint64
	RouterHandles   []common.Address
}

func (c *Controller) validateHarvest(req HarvestRequest) error {
	if len(req.StrategyIndices) == 0 {
		return errors.Join(types.ErrInvalidArgument, errors.New("no strategies to harvest"))
	}
	if len(req.PathIndices) != len(req.RouterHandles) {
		return errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("%d path indices for %d routers", len(req.PathIndices), len(req.RouterHandles)))
	}
	if len(req.PathIndices) != 0 && len(req.PathIndices) != len(req.StrategyIndices) {
		return errors.Join(types.ErrInvalidArgument,
			fmt.Errorf("%d routes for %d strategies", len(req.PathIndices), len(req.StrategyIndices)))
	}
	seen := make(map[int]struct{}, len(req.StrategyIndices))
	for _, idx := range req.StrategyIndices {
		if err := c.checkIndex(idx); err != nil {
			return err
		}
		if _, dup := seen[idx]; dup {
			return errors.Join(types.ErrInvalidArgument, fmt.Errorf("strategy index %d listed twice", idx))
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// Harvest harvests the given strategies as one atomic unit. The base asset
// they return pays the performance fee to the treasury; the rest is
// reinvested by allocation points. If any strategy fails nothing changes.
func (c *Controller) Harvest(ctx context.Context, caller common.Address, strategyIndices []int,
	pathIndices []uint64, routerHandles []common.Address) (types.HarvestReceipt, error) {
	return c.HarvestWith(ctx, caller, HarvestRequest{
		StrategyIndices: strategyIndices,
		PathIndices:     pathIndices,
		RouterHandles:   routerHandles,
	})
}

// HarvestWith is Harvest taking the arguments as a HarvestRequest.
func (c *Controller) HarvestWith(ctx context.Context, caller common.Address, req HarvestRequest) (types.HarvestReceipt, error) {
	started := time.Now()
	var receipt types.HarvestReceipt
	err := c.guarded(ctx, func(ctx context.Context) error {
		if err := c.OnlyOwner(caller); err != nil {
			return err
		}
		if err := c.validateHarvest(req); err != nil {
			return err
		}

		before := c.IdleAssets(ctx)
		perStrategy := make([]types.StrategyHarvest, 0, len(req.StrategyIndices))
		for k, idx := range req.StrategyIndices {
			var route *types.Route
			if len(req.PathIndices) != 0 {
				route = &types.Route{Router: req.RouterHandles[k], PathIndex: req.PathIndices[k]}
			}
			s := c.state.strategies[idx]
			got, err := s.Harvest(ctx, c.address, route)
			if err != nil {
				return fmt.Errorf("failed to harvest strategy %d (%s): %w", idx, s.Name(), err)
			}
			perStrategy = append(perStrategy, types.StrategyHarvest{
				Index:    idx,
				Strategy: s.Address(),
				Route:    route,
				Proceeds: got,
			})
		}

		proceeds := c.IdleAssets(ctx).Sub(before)
		fee := utils.MulBps(proceeds, c.state.performanceFeeBps)
		if fee.IsPositive() {
			if err := c.ledger.Transfer(ctx, c.asset, c.address, c.treasury, fee); err != nil {
				return fmt.Errorf("failed to pay performance fee: %w", err)
			}
		}
		net := proceeds.Sub(fee)
		if err := c.allocate(ctx, net); err != nil {
			return fmt.Errorf("failed to reinvest harvest: %w", err)
		}
		c.record(ctx)

		round, err := c.ledger.Store().CurrentHarvestRound(ctx)
		if err != nil {
			return fmt.Errorf("failed to read harvest round: %w", err)
		}
		receipt = types.HarvestReceipt{
			ID:               uuid.New().String(),
			Round:            round + 1,
			Timestamp:        time.Now().UTC(),
			Controller:       c.address,
			StrategyIndices:  append([]int(nil), req.StrategyIndices...),
			PerStrategy:      perStrategy,
			Proceeds:         proceeds,
			Fee:              fee,
			Net:              net,
			TotalAssetsAfter: c.state.recordedTotal,
		}
		stored := receipt
		c.ledger.Persist(ctx, func(ctx context.Context, tx state.Tx) error {
			return tx.PutHarvest(ctx, stored)
		})
		return nil
	})

	proceeds, fee := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	if err == nil {
		proceeds, fee = receipt.Proceeds, receipt.Fee
	}
	c.metrics.ObserveHarvest(started, proceeds, fee, err)
	if err != nil {
		c.logger.Error().Err(err).Ints("strategy_indices", req.StrategyIndices).Msg("Harvest failed, no state changed")
		return types.HarvestReceipt{}, err
	}

	c.observe(ctx)
	c.logger.Info().
		Str("harvest_id", receipt.ID).
		Int("round", receipt.Round).
		Ints("strategy_indices", receipt.StrategyIndices).
		Str("proceeds", receipt.Proceeds.String()).
		Str("fee", receipt.Fee.String()).
		Str("net", receipt.Net.String()).
		Str("total_assets", receipt.TotalAssetsAfter.String()).
		Msg("Harvest completed")
	return receipt, nil
}
