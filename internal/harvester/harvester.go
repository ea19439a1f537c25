package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNothingToHarvest is returned by RunCycle when no strategy is registered.
var ErrNothingToHarvest = errors.New("no live strategies to harvest")

// Controller is the part of the controller the harvester drives.
type Controller interface {
	Summary(ctx context.Context) types.VaultSummary
	Harvest(ctx context.Context, caller common.Address, strategyIndices []int,
		pathIndices []uint64, routerHandles []common.Address) (types.HarvestReceipt, error)
}

// Harvester runs batched harvests of every live strategy on a schedule.
type Harvester struct {
	logger     zerolog.Logger
	controller Controller
	store      state.Store
	caller     common.Address
	beforeRun  func(ctx context.Context, cycle int) error

	cycleCount int
}

// Config holds the configuration for creating a new Harvester.
type Config struct {
	Controller Controller
	Store      state.Store
	Caller     common.Address // must be the controller owner
	// BeforeCycle, if set, runs before each harvest. Simulation deployments
	// use it to accrue rewards.
	BeforeCycle func(ctx context.Context, cycle int) error
}

func validateHarvesterConfig(cfg Config) error {
	if cfg.Controller == nil {
		return fmt.Errorf("controller cannot be nil")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.Caller == (common.Address{}) {
		return fmt.Errorf("caller cannot be zero")
	}
	return nil
}

// New creates a Harvester.
func New(cfg Config) (*Harvester, error) {
	if err := validateHarvesterConfig(cfg); err != nil {
		return nil, fmt.Errorf("harvester configuration validation failed: %w", err)
	}
	h := &Harvester{
		logger:     logger.GetForComponent("harvester"),
		controller: cfg.Controller,
		store:      cfg.Store,
		caller:     cfg.Caller,
		beforeRun:  cfg.BeforeCycle,
	}
	h.logger.Info().Str("caller", h.caller.Hex()).Msg("Harvester created")
	return h, nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is
// cancelled.
func (h *Harvester) RunLoop(ctx context.Context, interval time.Duration) {
	h.logger.Info().Dur("interval", interval).Msg("Starting harvest loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("Harvest loop stopped due to context cancellation")
			return
		case <-ticker.C:
			h.runLogged(ctx)
		}
	}
}

func (h *Harvester) runLogged(ctx context.Context) {
	if _, err := h.RunCycle(ctx); err != nil && !errors.Is(err, ErrNothingToHarvest) {
		h.logger.Error().Err(err).Int("cycle", h.cycleCount).Msg("Harvest cycle failed")
	}
}

// Cycles returns how many cycles this Harvester has started.
func (h *Harvester) Cycles() int { return h.cycleCount }

// RunCycle harvests every live strategy in one batch.
func (h *Harvester) RunCycle(ctx context.Context) (types.HarvestReceipt, error) {
	started := time.Now()
	h.cycleCount++
	cycleLogger := h.logger.With().
		Str("cycle_id", uuid.New().String()).
		Int("cycle", h.cycleCount).
		Logger()

	round, err := h.store.CurrentHarvestRound(ctx)
	if err != nil {
		return types.HarvestReceipt{}, fmt.Errorf("failed to read harvest round: %w", err)
	}
	cycleLogger.Info().Int("last_round", round).Msg("--- Starting harvest cycle ---")

	if h.beforeRun != nil {
		if err := h.beforeRun(ctx, h.cycleCount); err != nil {
			return types.HarvestReceipt{}, fmt.Errorf("pre-cycle hook failed: %w", err)
		}
	}

	summary := h.controller.Summary(ctx)
	indices := make([]int, 0, len(summary.Strategies))
	for _, s := range summary.Strategies {
		indices = append(indices, s.Index)
	}
	if len(indices) == 0 {
		cycleLogger.Warn().Msg("No live strategies, skipping harvest")
		return types.HarvestReceipt{}, ErrNothingToHarvest
	}

	receipt, err := h.controller.Harvest(ctx, h.caller, indices, nil, nil)
	if err != nil {
		return types.HarvestReceipt{}, err
	}
	cycleLogger.Info().
		Str("harvest_id", receipt.ID).
		Int("round", receipt.Round).
		Str("proceeds", receipt.Proceeds.String()).
		Str("total_assets", receipt.TotalAssetsAfter.String()).
		Str("cycle_duration", time.Since(started).String()).
		Msg("Harvest cycle completed")
	return receipt, nil
}
