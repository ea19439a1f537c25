package controller_test

import (
	"context"
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/controller"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x0a")
	stranger = common.HexToAddress("0x0b")
	vault    = common.HexToAddress("0xf0")
	treasury = common.HexToAddress("0x7e")
	receiver = common.HexToAddress("0x99")

	controllerAddr = common.HexToAddress("0xc0")
	exchangeAddr   = common.HexToAddress("0xe1")
	marketAddr     = common.HexToAddress("0x2001")
	v2Addr         = common.HexToAddress("0x3001")

	usdc = common.HexToAddress("0x1001")
	comp = common.HexToAddress("0x1004")

	strategyAddrs = []common.Address{common.HexToAddress("0x5a"), common.HexToAddress("0x5b")}
	lenderAddrs   = []common.Address{common.HexToAddress("0x4003"), common.HexToAddress("0x4004")}
)

type fixture struct {
	ctx        context.Context
	store      *state.MemoryStore
	ledger     *ledger.Ledger
	registry   *prometheus.Registry
	exchange   *exchange.Exchange
	controller *controller.Controller
	compRoute  types.Route
	lenders    []*simulations.MoneyMarket
	strategies []*strategy.LendingMarket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := state.NewMemoryStore()
	l, err := ledger.New(store)
	require.NoError(t, err)

	market := simulations.NewMarket(l, marketAddr)
	market.SetRate(comp, usdc, sdkmath.LegacyNewDec(5))
	require.NoError(t, l.Mint(ctx, usdc, marketAddr, sdkmath.NewInt(1_000_000)))
	require.NoError(t, l.Mint(ctx, usdc, vault, sdkmath.NewInt(100_000)))

	ex, err := exchange.New(exchange.Config{Ledger: l, Address: exchangeAddr, Owner: owner})
	require.NoError(t, err)
	v2, err := router.NewUniswapV2(router.Config{Ledger: l, Address: v2Addr, Owner: owner, Exchange: exchangeAddr}, market)
	require.NoError(t, err)
	require.NoError(t, ex.ListRouter(ctx, owner, v2))
	idx, err := v2.AddPath(ctx, owner, marketAddr, []common.Address{comp, usdc})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	c, err := controller.New(controller.Config{
		Ledger:   l,
		Address:  controllerAddr,
		Owner:    owner,
		Vault:    vault,
		Asset:    usdc,
		Treasury: treasury,
		Exchange: ex,
		Parameters: types.Parameters{
			PerformanceFeeBps:    1_000,
			MaxPerformanceFeeBps: 2_000,
		},
		Metrics: metrics.NewMetrics(reg, 0),
	})
	require.NoError(t, err)

	f := &fixture{
		ctx:        ctx,
		store:      store,
		ledger:     l,
		registry:   reg,
		exchange:   ex,
		controller: c,
		compRoute:  types.Route{Router: v2Addr, PathIndex: idx},
	}
	for i, addr := range strategyAddrs {
		mm := simulations.NewMoneyMarket(l, lenderAddrs[i], usdc, comp)
		s, err := strategy.NewLendingMarket(strategy.LendingConfig{
			Config: strategy.Config{
				Ledger:     l,
				Name:       []string{"lending-a", "lending-b"}[i],
				Address:    addr,
				Owner:      owner,
				Controller: c,
				Asset:      usdc,
			},
			Market: mm,
		})
		require.NoError(t, err)
		require.NoError(t, ex.SetSwapCaller(ctx, owner, addr, true))
		f.lenders = append(f.lenders, mm)
		f.strategies = append(f.strategies, s)
	}
	return f
}

func (f *fixture) register(t *testing.T, points ...uint64) {
	t.Helper()
	for i, p := range points {
		idx, err := f.controller.RegisterSubStrategy(f.ctx, owner, f.strategies[i], p)
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
}

func (f *fixture) balance(holder common.Address) sdkmath.Int {
	return f.ledger.BalanceOf(f.ctx, usdc, holder)
}

func TestNewValidatesConfig(t *testing.T) {
	f := newFixture(t)
	_, err := controller.New(controller.Config{Ledger: f.ledger, Address: controllerAddr, Owner: owner, Vault: vault, Asset: usdc})
	assert.ErrorContains(t, err, "treasury")

	_, err = controller.New(controller.Config{
		Ledger: f.ledger, Address: controllerAddr, Owner: owner, Vault: vault, Asset: usdc, Treasury: treasury,
		Parameters: types.Parameters{PerformanceFeeBps: 3_000, MaxPerformanceFeeBps: 2_000},
	})
	assert.ErrorContains(t, err, "exceeds maximum")
}

func TestRegisterSubStrategy(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100)
	assert.Equal(t, uint64(100), f.controller.TotalAllocPoint(f.ctx))
	assert.Equal(t, 1, f.controller.SubStrategyLength(f.ctx))

	_, err := f.controller.RegisterSubStrategy(f.ctx, owner, f.strategies[0], 50)
	assert.ErrorIs(t, err, types.ErrAlreadyRegistered)

	_, err = f.controller.RegisterSubStrategy(f.ctx, stranger, f.strategies[1], 50)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, uint64(100), f.controller.TotalAllocPoint(f.ctx))
	assert.Equal(t, 1, f.controller.SubStrategyLength(f.ctx))

	require.NoError(t, f.controller.SetAllocPoint(f.ctx, owner, 0, 40))
	assert.Equal(t, uint64(40), f.controller.TotalAllocPoint(f.ctx))
	assert.ErrorIs(t, f.controller.SetAllocPoint(f.ctx, owner, 3, 40), types.ErrInvalidArgument)
	assert.ErrorIs(t, f.controller.SetAllocPoint(f.ctx, stranger, 0, 10), types.ErrUnauthorized)
}

func TestDepositSplitsByAllocPoint(t *testing.T) {
	f := newFixture(t)
	f.register(t, 300, 100)

	err := f.controller.Deposit(f.ctx, stranger, sdkmath.NewInt(1_000))
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_001)))
	assert.Equal(t, sdkmath.NewInt(750), f.strategies[0].TotalAssets(f.ctx, false))
	assert.Equal(t, sdkmath.NewInt(250), f.strategies[1].TotalAssets(f.ctx, false))
	assert.Equal(t, sdkmath.NewInt(1), f.controller.IdleAssets(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_001), f.controller.TotalAssets(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_001), f.controller.RecordedTotal(f.ctx))

	summary := f.controller.Summary(f.ctx)
	require.Len(t, summary.Strategies, 2)
	assert.Equal(t, "lending-a", summary.Strategies[0].Name)
	assert.Equal(t, types.StatusActive, summary.Strategies[0].Status)
	assert.Equal(t, sdkmath.NewInt(1_001), summary.TotalAssets)
}

func TestWithdrawDrawsProportionally(t *testing.T) {
	f := newFixture(t)
	f.register(t, 300, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))

	out, err := f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(400), receiver)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(400), out)
	assert.Equal(t, sdkmath.NewInt(400), f.balance(receiver))
	assert.Equal(t, sdkmath.NewInt(450), f.strategies[0].TotalAssets(f.ctx, false))
	assert.Equal(t, sdkmath.NewInt(150), f.strategies[1].TotalAssets(f.ctx, false))

	_, err = f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(601), receiver)
	assert.ErrorIs(t, err, types.ErrExceedTotalDeposit)
	assert.Equal(t, sdkmath.NewInt(600), f.controller.TotalAssets(f.ctx))

	_, err = f.controller.Withdraw(f.ctx, stranger, sdkmath.NewInt(1), receiver)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	out, err = f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(600), receiver)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(600), out)
	assert.True(t, f.controller.TotalAssets(f.ctx).IsZero())

	// success and failure series
	n, err := testutil.GatherAndCount(f.registry, "yieldrouter_withdraw_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWithdrawIsBoundByLiquidity(t *testing.T) {
	f := newFixture(t)
	f.register(t, 300, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))
	require.NoError(t, f.lenders[0].Borrow(f.ctx, sdkmath.NewInt(700)))

	// 50 free in the first market, 250 in the second
	_, err := f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(301), receiver)
	assert.ErrorIs(t, err, types.ErrExceedTotalDeposit)

	out, err := f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(300), receiver)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(300), out)
	assert.True(t, f.strategies[0].MaxWithdraw(f.ctx).IsZero())
	assert.True(t, f.strategies[1].MaxWithdraw(f.ctx).IsZero())
}

func TestHarvestPaysFeeAndReinvests(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))
	for i, s := range f.strategies {
		require.NoError(t, s.SetRewardRoute(f.ctx, owner, comp, f.compRoute))
		require.NoError(t, f.lenders[i].AccrueIncentives(f.ctx, strategyAddrs[i], sdkmath.NewInt(int64(4-2*i))))
	}

	receipt, err := f.controller.Harvest(f.ctx, owner, []int{0, 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Round)
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, sdkmath.NewInt(30), receipt.Proceeds)
	assert.Equal(t, sdkmath.NewInt(3), receipt.Fee)
	assert.Equal(t, sdkmath.NewInt(27), receipt.Net)
	require.Len(t, receipt.PerStrategy, 2)
	assert.Equal(t, sdkmath.NewInt(20), receipt.PerStrategy[0].Proceeds)
	assert.Equal(t, sdkmath.NewInt(10), receipt.PerStrategy[1].Proceeds)

	assert.Equal(t, sdkmath.NewInt(3), f.balance(treasury))
	assert.Equal(t, sdkmath.NewInt(513), f.strategies[0].TotalAssets(f.ctx, false))
	assert.Equal(t, sdkmath.NewInt(513), f.strategies[1].TotalAssets(f.ctx, false))
	assert.Equal(t, sdkmath.NewInt(1), f.controller.IdleAssets(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_027), receipt.TotalAssetsAfter)
	assert.Equal(t, sdkmath.NewInt(1_027), f.controller.RecordedTotal(f.ctx))

	round, err := f.store.CurrentHarvestRound(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
	recent, err := f.store.RecentHarvests(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, receipt.ID, recent[0].ID)

	// nothing pending is a no-op harvest
	receipt, err = f.controller.Harvest(f.ctx, owner, []int{0, 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Round)
	assert.True(t, receipt.Proceeds.IsZero())
}

func TestHarvestWithExplicitRoutes(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))
	require.NoError(t, f.lenders[0].AccrueIncentives(f.ctx, strategyAddrs[0], sdkmath.NewInt(4)))

	// no route configured on the strategy, the call supplies it
	receipt, err := f.controller.Harvest(f.ctx, owner, []int{0}, []uint64{f.compRoute.PathIndex}, []common.Address{v2Addr})
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(20), receipt.Proceeds)
	require.NotNil(t, receipt.PerStrategy[0].Route)
	assert.Equal(t, f.compRoute, *receipt.PerStrategy[0].Route)
}

func TestHarvestIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))
	require.NoError(t, f.strategies[0].SetRewardRoute(f.ctx, owner, comp, f.compRoute))
	require.NoError(t, f.lenders[0].AccrueIncentives(f.ctx, strategyAddrs[0], sdkmath.NewInt(4)))
	// the second strategy has no route to sell its reward
	require.NoError(t, f.lenders[1].AccrueIncentives(f.ctx, strategyAddrs[1], sdkmath.NewInt(2)))

	_, err := f.controller.Harvest(f.ctx, owner, []int{0, 1}, nil, nil)
	assert.ErrorIs(t, err, types.ErrPathNotFound)

	assert.Equal(t, sdkmath.NewInt(4), f.lenders[0].PendingIncentives(f.ctx, strategyAddrs[0]))
	assert.True(t, f.balance(treasury).IsZero())
	assert.True(t, f.controller.IdleAssets(f.ctx).IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), f.controller.RecordedTotal(f.ctx))
	round, err := f.store.CurrentHarvestRound(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, round)
	n, err := testutil.GatherAndCount(f.registry, "yieldrouter_harvests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHarvestRollsBackOnSlippage(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))

	// the second strategy sells on a venue whose execution falls short of quotes
	skewedAddr := common.HexToAddress("0x2002")
	skewed := simulations.NewMarket(f.ledger, skewedAddr)
	skewed.SetRate(comp, usdc, sdkmath.LegacyNewDec(5))
	skewed.SetExecutionSkew(sdkmath.LegacyMustNewDecFromStr("0.5"))
	require.NoError(t, f.ledger.Mint(f.ctx, usdc, skewedAddr, sdkmath.NewInt(1_000_000)))
	v2b, err := router.NewUniswapV2(router.Config{
		Ledger: f.ledger, Address: common.HexToAddress("0x3002"), Owner: owner, Exchange: exchangeAddr,
	}, skewed)
	require.NoError(t, err)
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, v2b))
	idx, err := v2b.AddPath(f.ctx, owner, skewedAddr, []common.Address{comp, usdc})
	require.NoError(t, err)

	require.NoError(t, f.strategies[0].SetRewardRoute(f.ctx, owner, comp, f.compRoute))
	require.NoError(t, f.strategies[1].SetRewardRoute(f.ctx, owner, comp, types.Route{Router: v2b.Address(), PathIndex: idx}))
	require.NoError(t, f.lenders[0].AccrueIncentives(f.ctx, strategyAddrs[0], sdkmath.NewInt(4)))
	require.NoError(t, f.lenders[1].AccrueIncentives(f.ctx, strategyAddrs[1], sdkmath.NewInt(2)))
	marketUSDC := f.balance(marketAddr)

	_, err = f.controller.Harvest(f.ctx, owner, []int{0, 1}, nil, nil)
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)

	// the first strategy's swap is undone with the rest
	assert.Equal(t, marketUSDC, f.balance(marketAddr))
	assert.Equal(t, sdkmath.NewInt(4), f.lenders[0].PendingIncentives(f.ctx, strategyAddrs[0]))
	assert.Equal(t, sdkmath.NewInt(2), f.lenders[1].PendingIncentives(f.ctx, strategyAddrs[1]))
	assert.True(t, f.balance(treasury).IsZero())
	assert.True(t, f.controller.IdleAssets(f.ctx).IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), f.controller.RecordedTotal(f.ctx))
	round, err := f.store.CurrentHarvestRound(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, round)
}

func TestAllocPointOverflowIsRejected(t *testing.T) {
	f := newFixture(t)
	f.register(t, math.MaxUint64-9)

	_, err := f.controller.RegisterSubStrategy(f.ctx, owner, f.strategies[1], 20)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, uint64(math.MaxUint64-9), f.controller.TotalAllocPoint(f.ctx))
	assert.Equal(t, 1, f.controller.SubStrategyLength(f.ctx))

	idx, err := f.controller.RegisterSubStrategy(f.ctx, owner, f.strategies[1], 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), f.controller.TotalAllocPoint(f.ctx))

	assert.ErrorIs(t, f.controller.SetAllocPoint(f.ctx, owner, idx, 10), types.ErrInvalidArgument)
	assert.Equal(t, uint64(math.MaxUint64), f.controller.TotalAllocPoint(f.ctx))
	assert.Equal(t, uint64(9), f.controller.Entries(f.ctx)[idx].AllocPoint)

	// lowering one weight frees room for the other
	require.NoError(t, f.controller.SetAllocPoint(f.ctx, owner, 0, 100))
	require.NoError(t, f.controller.SetAllocPoint(f.ctx, owner, idx, 100))
	assert.Equal(t, uint64(200), f.controller.TotalAllocPoint(f.ctx))
}

func TestHarvestRejectsBadArguments(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, 100)

	tests := []struct {
		name    string
		caller  common.Address
		indices []int
		paths   []uint64
		routers []common.Address
		want    error
	}{
		{"stranger", stranger, []int{0}, nil, nil, types.ErrUnauthorized},
		{"no strategies", owner, nil, nil, nil, types.ErrInvalidArgument},
		{"paths without routers", owner, []int{0}, []uint64{0}, nil, types.ErrInvalidArgument},
		{"routes for fewer strategies", owner, []int{0, 1}, []uint64{0}, []common.Address{v2Addr}, types.ErrInvalidArgument},
		{"duplicate index", owner, []int{1, 1}, nil, nil, types.ErrInvalidArgument},
		{"index out of range", owner, []int{2}, nil, nil, types.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.controller.Harvest(f.ctx, tt.caller, tt.indices, tt.paths, tt.routers)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetPerformanceFee(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint64(1_000), f.controller.PerformanceFee(f.ctx))
	assert.ErrorIs(t, f.controller.SetPerformanceFee(f.ctx, owner, 2_001), types.ErrInvalidArgument)
	assert.ErrorIs(t, f.controller.SetPerformanceFee(f.ctx, stranger, 500), types.ErrUnauthorized)
	require.NoError(t, f.controller.SetPerformanceFee(f.ctx, owner, 0))
	assert.Zero(t, f.controller.PerformanceFee(f.ctx))

	f.register(t, 100)
	require.NoError(t, f.strategies[0].SetRewardRoute(f.ctx, owner, comp, f.compRoute))
	require.NoError(t, f.lenders[0].AccrueIncentives(f.ctx, strategyAddrs[0], sdkmath.NewInt(4)))
	receipt, err := f.controller.Harvest(f.ctx, owner, []int{0}, nil, nil)
	require.NoError(t, err)
	assert.True(t, receipt.Fee.IsZero())
	assert.True(t, f.balance(treasury).IsZero())
}

func TestDeregisterSubStrategy(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))

	assert.ErrorIs(t, f.controller.DeregisterSubStrategy(f.ctx, owner, 1), types.ErrInvalidArgument)

	drained, err := f.strategies[1].EmergencyWithdraw(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), drained)
	assert.Equal(t, sdkmath.NewInt(500), f.controller.IdleAssets(f.ctx))

	require.NoError(t, f.controller.DeregisterSubStrategy(f.ctx, owner, 1))
	assert.Equal(t, uint64(100), f.controller.TotalAllocPoint(f.ctx))
	assert.Equal(t, 2, f.controller.SubStrategyLength(f.ctx))
	_, err = f.controller.Strategy(f.ctx, 1)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, sdkmath.NewInt(1_000), f.controller.TotalAssets(f.ctx))

	// the freed index is never reused
	idx, err := f.controller.RegisterSubStrategy(f.ctx, owner, f.strategies[1], 100)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	f.register(t, 300, 100)
	require.NoError(t, f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(1_000)))
	require.NoError(t, f.controller.SetPerformanceFee(f.ctx, owner, 500))

	restored, err := controller.New(controller.Config{
		Ledger:     f.ledger,
		Address:    controllerAddr,
		Owner:      owner,
		Vault:      vault,
		Asset:      usdc,
		Treasury:   treasury,
		Exchange:   f.exchange,
		Parameters: types.Parameters{MaxPerformanceFeeBps: 2_000},
	})
	require.NoError(t, err)

	err = restored.Restore(f.ctx, f.strategies[0])
	assert.ErrorContains(t, err, "was not supplied")

	require.NoError(t, restored.Restore(f.ctx, f.strategies[0], f.strategies[1]))
	assert.Equal(t, uint64(400), restored.TotalAllocPoint(f.ctx))
	assert.Equal(t, 2, restored.SubStrategyLength(f.ctx))
	assert.Equal(t, uint64(500), restored.PerformanceFee(f.ctx))
	assert.Equal(t, sdkmath.NewInt(1_000), restored.RecordedTotal(f.ctx))
	assert.Equal(t, f.controller.Entries(f.ctx), restored.Entries(f.ctx))
}

// reentrant calls back into the controller while it is being driven.
type reentrant struct {
	controller *controller.Controller
	err        error
}

func (r *reentrant) Address() common.Address                       { return common.HexToAddress("0x5f") }
func (r *reentrant) Name() string                                  { return "reentrant" }
func (r *reentrant) Status(context.Context) types.StrategyStatus   { return types.StatusActive }
func (r *reentrant) MaxWithdraw(context.Context) sdkmath.Int       { return sdkmath.ZeroInt() }
func (r *reentrant) TotalAssets(context.Context, bool) sdkmath.Int { return sdkmath.ZeroInt() }

func (r *reentrant) Deposit(ctx context.Context, _ common.Address, _ sdkmath.Int) error {
	_, r.err = r.controller.Withdraw(ctx, vault, sdkmath.NewInt(1), receiver)
	return r.err
}

func (r *reentrant) Withdraw(context.Context, common.Address, sdkmath.Int) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

func (r *reentrant) Harvest(context.Context, common.Address, *types.Route) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

func TestReentrantCallIsRejected(t *testing.T) {
	f := newFixture(t)
	r := &reentrant{controller: f.controller}
	_, err := f.controller.RegisterSubStrategy(f.ctx, owner, r, 100)
	require.NoError(t, err)

	err = f.controller.Deposit(f.ctx, vault, sdkmath.NewInt(10))
	assert.ErrorIs(t, err, types.ErrReentrantCall)
	assert.ErrorIs(t, r.err, types.ErrReentrantCall)
	assert.Equal(t, sdkmath.NewInt(100_000), f.balance(vault))
}

// venueStrategy holds assets in a venue whose free liquidity may be shared
// with another strategy.
type venueStrategy struct {
	ledger  *ledger.Ledger
	address common.Address
	held    sdkmath.Int
	// liquidity bounds withdrawals when set; drains is reduced by every
	// withdrawal when set.
	liquidity *sdkmath.Int
	drains    *sdkmath.Int
}

func (v *venueStrategy) Address() common.Address                     { return v.address }
func (v *venueStrategy) Name() string                                { return v.address.Hex() }
func (v *venueStrategy) Status(context.Context) types.StrategyStatus { return types.StatusActive }
func (v *venueStrategy) TotalAssets(context.Context, bool) sdkmath.Int {
	return v.held
}

func (v *venueStrategy) MaxWithdraw(context.Context) sdkmath.Int {
	if v.liquidity == nil {
		return v.held
	}
	return sdkmath.MinInt(v.held, *v.liquidity)
}

func (v *venueStrategy) Deposit(context.Context, common.Address, sdkmath.Int) error { return nil }

func (v *venueStrategy) Withdraw(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.GT(v.MaxWithdraw(ctx)) {
		return sdkmath.ZeroInt(), types.ErrExceedTotalDeposit
	}
	held := v.held
	v.held = held.Sub(amount)
	v.ledger.Record(ctx, func() { v.held = held })
	if v.drains != nil {
		free := *v.drains
		*v.drains = sdkmath.MaxInt(free.Sub(amount), sdkmath.ZeroInt())
		v.ledger.Record(ctx, func() { *v.drains = free })
	}
	return amount, v.ledger.Transfer(ctx, usdc, v.address, caller, amount)
}

func (v *venueStrategy) Harvest(context.Context, common.Address, *types.Route) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

func TestWithdrawRechecksSharedLiquidity(t *testing.T) {
	f := newFixture(t)
	shared := sdkmath.NewInt(500)
	a := &venueStrategy{ledger: f.ledger, address: common.HexToAddress("0x5c"), held: sdkmath.NewInt(1_000), drains: &shared}
	b := &venueStrategy{ledger: f.ledger, address: common.HexToAddress("0x5d"), held: sdkmath.NewInt(400), liquidity: &shared}
	for _, s := range []*venueStrategy{a, b} {
		require.NoError(t, f.ledger.Mint(f.ctx, usdc, s.address, s.held))
		_, err := f.controller.RegisterSubStrategy(f.ctx, owner, s, 100)
		require.NoError(t, err)
	}

	// a's proportional share of 500 empties the venue b draws from, so a
	// tops up the 200 b can no longer free
	out, err := f.controller.Withdraw(f.ctx, vault, sdkmath.NewInt(700), receiver)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(700), out)
	assert.Equal(t, sdkmath.NewInt(300), a.held)
	assert.Equal(t, sdkmath.NewInt(400), b.held)
	assert.Equal(t, sdkmath.NewInt(700), f.balance(receiver))
}
