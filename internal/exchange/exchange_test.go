package exchange_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x0a")
	stranger = common.HexToAddress("0x0b")
	strategy = common.HexToAddress("0x5a")

	exchangeAddr = common.HexToAddress("0xe1")
	marketAddr   = common.HexToAddress("0x2001")
	v2Addr       = common.HexToAddress("0x3001")
	balAddr      = common.HexToAddress("0x3002")

	crv  = common.HexToAddress("0x1001")
	weth = common.HexToAddress("0x1002")
)

type fixture struct {
	ctx      context.Context
	store    *state.MemoryStore
	ledger   *ledger.Ledger
	market   *simulations.Market
	exchange *exchange.Exchange
	v2       *router.UniswapV2
	balancer *router.Balancer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := state.NewMemoryStore()
	l, err := ledger.New(store)
	require.NoError(t, err)

	market := simulations.NewMarket(l, marketAddr)
	market.SetRate(crv, weth, sdkmath.LegacyMustNewDecFromStr("0.5"))
	require.NoError(t, l.Mint(ctx, weth, marketAddr, sdkmath.NewInt(1_000_000)))
	require.NoError(t, l.Mint(ctx, crv, strategy, sdkmath.NewInt(1_000)))

	ex, err := exchange.New(exchange.Config{Ledger: l, Address: exchangeAddr, Owner: owner})
	require.NoError(t, err)

	v2, err := router.NewUniswapV2(router.Config{Ledger: l, Address: v2Addr, Owner: owner, Exchange: exchangeAddr}, market)
	require.NoError(t, err)
	_, err = v2.AddPath(ctx, owner, marketAddr, []common.Address{crv, weth})
	require.NoError(t, err)

	bal, err := router.NewBalancer(router.Config{Ledger: l, Address: balAddr, Owner: owner, Exchange: exchangeAddr}, market)
	require.NoError(t, err)
	_, err = bal.AddPath(ctx, owner, common.HexToHash("0xaa"), crv, weth)
	require.NoError(t, err)

	return &fixture{ctx: ctx, store: store, ledger: l, market: market, exchange: ex, v2: v2, balancer: bal}
}

func TestListRouter(t *testing.T) {
	f := newFixture(t)

	err := f.exchange.ListRouter(f.ctx, stranger, f.v2)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Empty(t, f.exchange.Routers(f.ctx))

	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.v2))
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.balancer))
	err = f.exchange.ListRouter(f.ctx, owner, f.v2)
	assert.ErrorIs(t, err, types.ErrAlreadyRegistered)

	routers := f.exchange.Routers(f.ctx)
	require.Len(t, routers, 2)
	assert.Equal(t, v2Addr, routers[0].Address())
	assert.Equal(t, balAddr, routers[1].Address())

	require.NoError(t, f.exchange.UnlistRouter(f.ctx, owner, v2Addr))
	assert.ErrorIs(t, f.exchange.UnlistRouter(f.ctx, owner, v2Addr), types.ErrUnlistedRouter)
	_, err = f.exchange.Router(f.ctx, v2Addr)
	assert.ErrorIs(t, err, types.ErrUnlistedRouter)

	// relisting keeps the original position
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.v2))
	listings, err := f.store.RouterListings(f.ctx, exchangeAddr)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, v2Addr, listings[0].Router)
	assert.True(t, listings[0].Listed)
}

func TestSetSwapCaller(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.exchange.SetSwapCaller(f.ctx, stranger, strategy, true), types.ErrUnauthorized)
	assert.False(t, f.exchange.IsSwapCaller(f.ctx, strategy))

	require.NoError(t, f.exchange.SetSwapCaller(f.ctx, owner, strategy, true))
	assert.True(t, f.exchange.IsSwapCaller(f.ctx, strategy))

	require.NoError(t, f.exchange.SetSwapCaller(f.ctx, owner, strategy, false))
	assert.False(t, f.exchange.IsSwapCaller(f.ctx, strategy))

	assert.ErrorIs(t, f.exchange.SetSwapCaller(f.ctx, owner, common.Address{}, true), types.ErrInvalidArgument)
}

func TestSwap(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.v2))

	_, err := f.exchange.Swap(f.ctx, strategy, balAddr, 0, sdkmath.NewInt(100), sdkmath.NewInt(50))
	assert.ErrorIs(t, err, types.ErrUnlistedRouter)

	_, err = f.exchange.Swap(f.ctx, strategy, v2Addr, 0, sdkmath.NewInt(100), sdkmath.NewInt(50))
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.exchange.SetSwapCaller(f.ctx, owner, strategy, true))

	_, err = f.exchange.Swap(f.ctx, strategy, v2Addr, 3, sdkmath.NewInt(100), sdkmath.NewInt(50))
	assert.ErrorIs(t, err, types.ErrInvalidPathIndex)

	_, err = f.exchange.Swap(f.ctx, strategy, v2Addr, 0, sdkmath.NewInt(100), sdkmath.NewInt(51))
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)
	assert.Equal(t, sdkmath.NewInt(1_000), f.ledger.BalanceOf(f.ctx, crv, strategy))
	assert.True(t, f.ledger.BalanceOf(f.ctx, crv, v2Addr).IsZero())

	quote, err := f.exchange.Quote(f.ctx, v2Addr, 0, sdkmath.NewInt(100))
	require.NoError(t, err)
	out, err := f.exchange.Swap(f.ctx, strategy, v2Addr, 0, sdkmath.NewInt(100), quote)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(50), out)
	assert.Equal(t, sdkmath.NewInt(900), f.ledger.BalanceOf(f.ctx, crv, strategy))
	assert.Equal(t, sdkmath.NewInt(50), f.ledger.BalanceOf(f.ctx, weth, strategy))
}

func TestSwapThroughEachListedRouter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.v2))
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.balancer))
	require.NoError(t, f.exchange.SetSwapCaller(f.ctx, owner, strategy, true))

	for _, r := range []common.Address{v2Addr, balAddr} {
		out, err := f.exchange.Swap(f.ctx, strategy, r, 0, sdkmath.NewInt(10), sdkmath.NewInt(5))
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(5), out)
	}
	assert.Equal(t, sdkmath.NewInt(10), f.ledger.BalanceOf(f.ctx, weth, strategy))
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.v2))
	require.NoError(t, f.exchange.ListRouter(f.ctx, owner, f.balancer))
	require.NoError(t, f.exchange.UnlistRouter(f.ctx, owner, balAddr))
	require.NoError(t, f.exchange.SetSwapCaller(f.ctx, owner, strategy, true))

	reloaded, err := exchange.New(exchange.Config{Ledger: f.ledger, Address: exchangeAddr, Owner: owner})
	require.NoError(t, err)

	err = reloaded.Restore(f.ctx, f.v2)
	assert.Error(t, err)

	require.NoError(t, reloaded.Restore(f.ctx, f.v2, f.balancer))
	routers := reloaded.Routers(f.ctx)
	require.Len(t, routers, 1)
	assert.Equal(t, v2Addr, routers[0].Address())
	assert.True(t, reloaded.IsSwapCaller(f.ctx, strategy))

	p, err := reloaded.Path(f.ctx, v2Addr, 0)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{crv, weth}, p.Tokens)
}
