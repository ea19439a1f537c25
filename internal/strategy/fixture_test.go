package strategy_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	owner          = common.HexToAddress("0x0a")
	stranger       = common.HexToAddress("0x0b")
	controllerAddr = common.HexToAddress("0xc0")
	strategyAddr   = common.HexToAddress("0x5a")

	usdc = common.HexToAddress("0x1001")
	crv  = common.HexToAddress("0x1002")
	cvx  = common.HexToAddress("0x1003")
	comp = common.HexToAddress("0x1004")
	susd = common.HexToAddress("0x1005")
	lp   = common.HexToAddress("0x1006")

	exchangeAddr = common.HexToAddress("0xe1")
	marketAddr   = common.HexToAddress("0x2001")
	v2Addr       = common.HexToAddress("0x3001")
	balAddr      = common.HexToAddress("0x3002")
)

type controllerStub struct {
	address  common.Address
	exchange types.Swapper
}

func (c controllerStub) Address() common.Address                { return c.address }
func (c controllerStub) Exchange(context.Context) types.Swapper { return c.exchange }

type fixture struct {
	ctx      context.Context
	store    *state.MemoryStore
	ledger   *ledger.Ledger
	market   *simulations.Market
	exchange *exchange.Exchange
	// v2 path indices
	routes map[common.Address]types.Route
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := state.NewMemoryStore()
	l, err := ledger.New(store)
	require.NoError(t, err)

	market := simulations.NewMarket(l, marketAddr)
	market.SetRate(crv, usdc, sdkmath.LegacyNewDec(2))
	market.SetRate(cvx, usdc, sdkmath.LegacyNewDec(3))
	market.SetRate(comp, usdc, sdkmath.LegacyNewDec(5))
	market.SetRate(usdc, susd, sdkmath.LegacyOneDec())
	for _, token := range []common.Address{usdc, susd} {
		require.NoError(t, l.Mint(ctx, token, marketAddr, sdkmath.NewInt(1_000_000)))
	}
	require.NoError(t, l.Mint(ctx, usdc, controllerAddr, sdkmath.NewInt(100_000)))
	require.NoError(t, l.Mint(ctx, usdc, owner, sdkmath.NewInt(100_000)))

	ex, err := exchange.New(exchange.Config{Ledger: l, Address: exchangeAddr, Owner: owner})
	require.NoError(t, err)
	v2, err := router.NewUniswapV2(router.Config{Ledger: l, Address: v2Addr, Owner: owner, Exchange: exchangeAddr}, market)
	require.NoError(t, err)
	bal, err := router.NewBalancer(router.Config{Ledger: l, Address: balAddr, Owner: owner, Exchange: exchangeAddr}, market)
	require.NoError(t, err)
	require.NoError(t, ex.ListRouter(ctx, owner, v2))
	require.NoError(t, ex.ListRouter(ctx, owner, bal))
	require.NoError(t, ex.SetSwapCaller(ctx, owner, strategyAddr, true))

	f := &fixture{ctx: ctx, store: store, ledger: l, market: market, exchange: ex, routes: make(map[common.Address]types.Route)}
	for _, token := range []common.Address{crv, cvx, comp, susd} {
		idx, err := v2.AddPath(ctx, owner, marketAddr, []common.Address{token, usdc})
		require.NoError(t, err)
		f.routes[token] = types.Route{Router: v2Addr, PathIndex: idx}
	}
	idx, err := v2.AddPath(ctx, owner, marketAddr, []common.Address{usdc, susd})
	require.NoError(t, err)
	f.routes[usdc] = types.Route{Router: v2Addr, PathIndex: idx}

	_, err = bal.AddPath(ctx, owner, common.HexToHash("0xaa"), crv, usdc)
	require.NoError(t, err)
	return f
}

func (f *fixture) config(name string) strategy.Config {
	return strategy.Config{
		Ledger:              f.ledger,
		Name:                name,
		Address:             strategyAddr,
		Owner:               owner,
		Controller:          controllerStub{address: controllerAddr, exchange: f.exchange},
		Asset:               usdc,
		DepositSlippageBps:  50,
		WithdrawSlippageBps: 50,
	}
}

func (f *fixture) balance(token, holder common.Address) sdkmath.Int {
	return f.ledger.BalanceOf(f.ctx, token, holder)
}
