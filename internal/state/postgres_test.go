package state

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a throwaway PostgreSQL container and returns a store
// with the schema applied.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	path := types.SwapPath{
		Venue:       types.VenueCurve,
		Index:       0,
		Key:         common.HexToHash("0xbeef"),
		Target:      common.HexToAddress("0xc1"),
		Tokens:      []common.Address{tokenA, holderA},
		CoinIndices: []int{1, 0},
	}
	route := types.Route{Router: router, PathIndex: 0}
	receipt := types.HarvestReceipt{
		ID:               uuid.New().String(),
		Round:            4,
		Timestamp:        time.Now().UTC().Truncate(time.Second),
		Controller:       controller,
		StrategyIndices:  []int{0},
		PerStrategy:      []types.StrategyHarvest{{Index: 0, Strategy: strategyA, Proceeds: sdkmath.NewInt(7)}},
		Proceeds:         sdkmath.NewInt(7),
		Fee:              sdkmath.NewInt(1),
		Net:              sdkmath.NewInt(6),
		TotalAssetsAfter: sdkmath.NewInt(1_000_000),
	}

	err := store.Update(ctx, func(tx Tx) error {
		steps := []func() error{
			func() error {
				return tx.PutBalance(ctx, BalanceRecord{Token: tokenA, Holder: holderA, Amount: sdkmath.NewInt(42)})
			},
			func() error {
				return tx.PutAllocation(ctx, AllocationRecord{
					Controller:      controller,
					AllocationEntry: types.AllocationEntry{Index: 0, Strategy: strategyA, AllocPoint: 100},
				})
			},
			func() error {
				return tx.PutController(ctx, ControllerRecord{
					Address: controller, Exchange: router, PerformanceFeeBps: 1000, RecordedTotal: sdkmath.NewInt(9),
				})
			},
			func() error {
				return tx.PutRouterListing(ctx, RouterListingRecord{Exchange: controller, Router: router, Listed: true})
			},
			func() error {
				return tx.PutSwapCaller(ctx, SwapCallerRecord{Exchange: controller, Caller: strategyA, Allowed: true})
			},
			func() error { return tx.PutPath(ctx, PathRecord{Router: router, Path: path}) },
			func() error {
				return tx.PutStrategy(ctx, StrategyRecord{
					Address:             strategyA,
					Name:                "lending",
					Status:              types.StatusActive,
					Principal:           sdkmath.NewInt(100),
					DepositSlippageBps:  100,
					WithdrawSlippageBps: 50,
					RewardTokens:        []common.Address{tokenA},
					RewardRoutes:        map[common.Address]types.Route{tokenA: route},
					WithdrawRoute:       &route,
				})
			},
			func() error { return tx.PutHarvest(ctx, receipt) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	balances, err := store.Balances(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, sdkmath.NewInt(42), balances[0].Amount)

	allocs, err := store.Allocations(ctx, controller)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, strategyA, allocs[0].Strategy)

	ctrl, err := store.Controller(ctx, controller)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), ctrl.PerformanceFeeBps)

	paths, err := store.Paths(ctx, router)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, path, paths[0])

	rec, err := store.Strategy(ctx, strategyA)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, rec.Status)
	assert.Equal(t, route, rec.RewardRoutes[tokenA])
	require.NotNil(t, rec.WithdrawRoute)
	assert.Nil(t, rec.DepositRoute)

	harvests, err := store.RecentHarvests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, harvests, 1)
	assert.Equal(t, receipt.ID, harvests[0].ID)
	assert.Equal(t, sdkmath.NewInt(6), harvests[0].Net)

	round, err := store.CurrentHarvestRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, round)

	require.NoError(t, store.ResetHarvestRound(ctx, 1))
	round, err = store.CurrentHarvestRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
	assert.Error(t, store.ResetHarvestRound(ctx, -1))
}

func TestPostgresStore_FailedUpdateRollsBack(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.PutBalance(ctx, BalanceRecord{Token: tokenA, Holder: holderA, Amount: sdkmath.NewInt(1)}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	balances, err := store.Balances(ctx)
	require.NoError(t, err)
	assert.Empty(t, balances)

	_, err = store.Strategy(ctx, strategyA)
	assert.ErrorIs(t, err, ErrNotFound)
}
