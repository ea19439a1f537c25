/*

Persistence contract for everything the vault must remember between
operations: token balances, the allocation registry, router listings and
paths, strategy state and harvest receipts.

Writes are grouped into a single Update so the ledger can flush one atomic
operation as one store transaction.

*/

package state

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotFound       = errors.New("record not found")
	ErrNotInitialized = errors.New("store not initialized")
)

// BalanceRecord is one (token, holder) ledger balance.
type BalanceRecord struct {
	Token  common.Address `json:"token"`
	Holder common.Address `json:"holder"`
	Amount sdkmath.Int    `json:"amount"`
}

// AllocationRecord is a registry slot owned by a controller.
type AllocationRecord struct {
	Controller common.Address `json:"controller"`
	types.AllocationEntry
}

// ControllerRecord holds the controller's mutable settings.
type ControllerRecord struct {
	Address           common.Address `json:"address"`
	Exchange          common.Address `json:"exchange"`
	PerformanceFeeBps uint64         `json:"performance_fee_bps"`
	RecordedTotal     sdkmath.Int    `json:"recorded_total"`
}

// RouterListingRecord is one slot of an exchange's router list.
type RouterListingRecord struct {
	Exchange common.Address `json:"exchange"`
	Router   common.Address `json:"router"`
	Position int            `json:"position"`
	Listed   bool           `json:"listed"`
}

// SwapCallerRecord is one entry of an exchange's swap-caller allow list.
type SwapCallerRecord struct {
	Exchange common.Address `json:"exchange"`
	Caller   common.Address `json:"caller"`
	Allowed  bool           `json:"allowed"`
}

// PathRecord is a swap path registered on a router.
type PathRecord struct {
	Router common.Address `json:"router"`
	Path   types.SwapPath `json:"path"`
}

// StrategyRecord is the durable state of one strategy.
type StrategyRecord struct {
	Address             common.Address                 `json:"address"`
	Name                string                         `json:"name"`
	Status              types.StrategyStatus           `json:"status"`
	Principal           sdkmath.Int                    `json:"principal"`
	DepositSlippageBps  uint64                         `json:"deposit_slippage_bps"`
	WithdrawSlippageBps uint64                         `json:"withdraw_slippage_bps"`
	RewardTokens        []common.Address               `json:"reward_tokens"`
	RewardRoutes        map[common.Address]types.Route `json:"reward_routes"`
	DepositRoute        *types.Route                   `json:"deposit_route,omitempty"`
	WithdrawRoute       *types.Route                   `json:"withdraw_route,omitempty"`
}

// HarvestTotals aggregates every stored harvest receipt.
type HarvestTotals struct {
	Count     int         `json:"count"`
	LastRound int         `json:"last_round"`
	Proceeds  sdkmath.Int `json:"proceeds"`
	Fees      sdkmath.Int `json:"fees"`
}

// Tx receives the writes of one atomic operation.
type Tx interface {
	PutBalance(ctx context.Context, rec BalanceRecord) error
	PutAllocation(ctx context.Context, rec AllocationRecord) error
	PutController(ctx context.Context, rec ControllerRecord) error
	PutRouterListing(ctx context.Context, rec RouterListingRecord) error
	PutSwapCaller(ctx context.Context, rec SwapCallerRecord) error
	PutPath(ctx context.Context, rec PathRecord) error
	PutStrategy(ctx context.Context, rec StrategyRecord) error
	// PutHarvest stores the receipt and advances the round counter to its round.
	PutHarvest(ctx context.Context, receipt types.HarvestReceipt) error
}

// Store is the durable backing of the ledger and the components above it.
type Store interface {
	// Update runs fn in one transaction. If fn fails nothing is written.
	Update(ctx context.Context, fn func(Tx) error) error

	Balances(ctx context.Context) ([]BalanceRecord, error)
	Allocations(ctx context.Context, controller common.Address) ([]AllocationRecord, error)
	Controller(ctx context.Context, address common.Address) (ControllerRecord, error)
	RouterListings(ctx context.Context, exchange common.Address) ([]RouterListingRecord, error)
	SwapCallers(ctx context.Context, exchange common.Address) ([]SwapCallerRecord, error)
	Paths(ctx context.Context, router common.Address) ([]types.SwapPath, error)
	Strategy(ctx context.Context, address common.Address) (StrategyRecord, error)

	RecentHarvests(ctx context.Context, limit int) ([]types.HarvestReceipt, error)
	HarvestTotals(ctx context.Context) (HarvestTotals, error)
	CurrentHarvestRound(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
