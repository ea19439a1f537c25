package state

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// MemoryStore is an in-memory implementation of Store. Used when no database
// is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	balances    map[balanceKey]sdkmath.Int
	allocations map[common.Address]map[int]AllocationRecord
	controllers map[common.Address]ControllerRecord
	listings    map[common.Address]map[common.Address]RouterListingRecord
	swapCallers map[common.Address]map[common.Address]bool
	paths       map[common.Address]map[uint64]types.SwapPath
	strategies  map[common.Address]StrategyRecord
	harvests    []types.HarvestReceipt
	round       int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:    make(map[balanceKey]sdkmath.Int),
		allocations: make(map[common.Address]map[int]AllocationRecord),
		controllers: make(map[common.Address]ControllerRecord),
		listings:    make(map[common.Address]map[common.Address]RouterListingRecord),
		swapCallers: make(map[common.Address]map[common.Address]bool),
		paths:       make(map[common.Address]map[uint64]types.SwapPath),
		strategies:  make(map[common.Address]StrategyRecord),
	}
}

// memTx stages writes; they are applied only if the whole Update succeeds.
type memTx struct {
	ops []func(*MemoryStore)
}

func (t *memTx) stage(op func(*MemoryStore)) error {
	t.ops = append(t.ops, op)
	return nil
}

func (t *memTx) PutBalance(_ context.Context, rec BalanceRecord) error {
	return t.stage(func(s *MemoryStore) {
		s.balances[balanceKey{rec.Token, rec.Holder}] = rec.Amount
	})
}

func (t *memTx) PutAllocation(_ context.Context, rec AllocationRecord) error {
	return t.stage(func(s *MemoryStore) {
		if s.allocations[rec.Controller] == nil {
			s.allocations[rec.Controller] = make(map[int]AllocationRecord)
		}
		s.allocations[rec.Controller][rec.Index] = rec
	})
}

func (t *memTx) PutController(_ context.Context, rec ControllerRecord) error {
	return t.stage(func(s *MemoryStore) {
		s.controllers[rec.Address] = rec
	})
}

func (t *memTx) PutRouterListing(_ context.Context, rec RouterListingRecord) error {
	return t.stage(func(s *MemoryStore) {
		if s.listings[rec.Exchange] == nil {
			s.listings[rec.Exchange] = make(map[common.Address]RouterListingRecord)
		}
		s.listings[rec.Exchange][rec.Router] = rec
	})
}

func (t *memTx) PutSwapCaller(_ context.Context, rec SwapCallerRecord) error {
	return t.stage(func(s *MemoryStore) {
		if s.swapCallers[rec.Exchange] == nil {
			s.swapCallers[rec.Exchange] = make(map[common.Address]bool)
		}
		s.swapCallers[rec.Exchange][rec.Caller] = rec.Allowed
	})
}

func (t *memTx) PutPath(_ context.Context, rec PathRecord) error {
	path := copyPath(rec.Path)
	return t.stage(func(s *MemoryStore) {
		if s.paths[rec.Router] == nil {
			s.paths[rec.Router] = make(map[uint64]types.SwapPath)
		}
		s.paths[rec.Router][path.Index] = path
	})
}

func (t *memTx) PutStrategy(_ context.Context, rec StrategyRecord) error {
	rec = copyStrategy(rec)
	return t.stage(func(s *MemoryStore) {
		s.strategies[rec.Address] = rec
	})
}

func (t *memTx) PutHarvest(_ context.Context, receipt types.HarvestReceipt) error {
	receipt.StrategyIndices = slices.Clone(receipt.StrategyIndices)
	receipt.PerStrategy = slices.Clone(receipt.PerStrategy)
	return t.stage(func(s *MemoryStore) {
		s.harvests = append(s.harvests, receipt)
		if receipt.Round > s.round {
			s.round = receipt.Round
		}
	})
}

// Update stages fn's writes and applies them together.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range tx.ops {
		op(s)
	}
	return nil
}

// Balances returns every stored balance, including zero balances.
func (s *MemoryStore) Balances(_ context.Context) ([]BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]BalanceRecord, 0, len(s.balances))
	for k, v := range s.balances {
		result = append(result, BalanceRecord{Token: k.token, Holder: k.holder, Amount: v})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Token != result[j].Token {
			return result[i].Token.Cmp(result[j].Token) < 0
		}
		return result[i].Holder.Cmp(result[j].Holder) < 0
	})
	return result, nil
}

// Allocations returns a controller's registry ordered by index.
func (s *MemoryStore) Allocations(_ context.Context, controller common.Address) ([]AllocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.allocations[controller]))
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

// Controller returns ErrNotFound if the controller never persisted settings.
func (s *MemoryStore) Controller(_ context.Context, address common.Address) (ControllerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.controllers[address]
	if !ok {
		return ControllerRecord{}, ErrNotFound
	}
	return rec, nil
}

// RouterListings returns an exchange's router list ordered by position.
func (s *MemoryStore) RouterListings(_ context.Context, exchange common.Address) ([]RouterListingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Collect(maps.Values(s.listings[exchange]))
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

// SwapCallers returns the allow list entries of an exchange.
func (s *MemoryStore) SwapCallers(_ context.Context, exchange common.Address) ([]SwapCallerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SwapCallerRecord, 0, len(s.swapCallers[exchange]))
	for caller, allowed := range s.swapCallers[exchange] {
		result = append(result, SwapCallerRecord{Exchange: exchange, Caller: caller, Allowed: allowed})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Caller.Cmp(result[j].Caller) < 0 })
	return result, nil
}

// Paths returns a router's paths ordered by index.
func (s *MemoryStore) Paths(_ context.Context, router common.Address) ([]types.SwapPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.SwapPath, 0, len(s.paths[router]))
	for _, p := range s.paths[router] {
		result = append(result, copyPath(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

// Strategy returns ErrNotFound if the strategy never persisted state.
func (s *MemoryStore) Strategy(_ context.Context, address common.Address) (StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.strategies[address]
	if !ok {
		return StrategyRecord{}, ErrNotFound
	}
	return copyStrategy(rec), nil
}

// RecentHarvests returns up to limit receipts, newest first.
func (s *MemoryStore) RecentHarvests(_ context.Context, limit int) ([]types.HarvestReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.HarvestReceipt, 0, limit)
	for i := len(s.harvests) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.harvests[i])
	}
	return result, nil
}

// HarvestTotals sums every stored receipt.
func (s *MemoryStore) HarvestTotals(_ context.Context) (HarvestTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := HarvestTotals{Proceeds: sdkmath.ZeroInt(), Fees: sdkmath.ZeroInt(), LastRound: s.round}
	for _, r := range s.harvests {
		totals.Count++
		totals.Proceeds = totals.Proceeds.Add(r.Proceeds)
		totals.Fees = totals.Fees.Add(r.Fee)
	}
	return totals, nil
}

// CurrentHarvestRound returns the highest round stored so far.
func (s *MemoryStore) CurrentHarvestRound(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyPath(p types.SwapPath) types.SwapPath {
	p.Tokens = slices.Clone(p.Tokens)
	p.Pools = slices.Clone(p.Pools)
	p.Fees = slices.Clone(p.Fees)
	p.CoinIndices = slices.Clone(p.CoinIndices)
	return p
}

func copyStrategy(rec StrategyRecord) StrategyRecord {
	rec.RewardTokens = slices.Clone(rec.RewardTokens)
	rec.RewardRoutes = maps.Clone(rec.RewardRoutes)
	if rec.DepositRoute != nil {
		r := *rec.DepositRoute
		rec.DepositRoute = &r
	}
	if rec.WithdrawRoute != nil {
		r := *rec.WithdrawRoute
		rec.WithdrawRoute = &r
	}
	return rec
}
