/*

Simulated liquidity venues. A Market prices every hop from a configurable
rate table and settles through the ledger, so the router adapters can be
exercised end to end without a chain. One Market serves the constant-product,
concentrated-liquidity and weighted-pool venue shapes; CurvePool wraps it for
stableswap pools.

*/

package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

var swapLogger = logger.GetForComponent("swap_simulator")

// ErrNoLiquidity is returned for a pair without a configured rate.
var ErrNoLiquidity = errors.New("no liquidity for pair")

type pair struct {
	in  common.Address
	out common.Address
}

// Market is a rate-table venue holding its reserves in the ledger.
type Market struct {
	ledger  *ledger.Ledger
	address common.Address

	mu     sync.RWMutex
	rates  map[pair]sdkmath.LegacyDec
	feeBps uint64
	skew   sdkmath.LegacyDec
}

// NewMarket creates an empty market trading from address.
func NewMarket(l *ledger.Ledger, address common.Address) *Market {
	return &Market{
		ledger:  l,
		address: address,
		rates:   make(map[pair]sdkmath.LegacyDec),
		skew:    sdkmath.LegacyOneDec(),
	}
}

// Address returns the market's settlement address.
func (m *Market) Address() common.Address { return m.address }

// SetRate prices one unit of tokenIn at rate units of tokenOut, and the
// reverse direction at 1/rate.
func (m *Market) SetRate(tokenIn, tokenOut common.Address, rate sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[pair{tokenIn, tokenOut}] = rate
	if rate.IsPositive() {
		m.rates[pair{tokenOut, tokenIn}] = sdkmath.LegacyOneDec().Quo(rate)
	}
}

// SetFeeBps charges a swap fee on every hop.
func (m *Market) SetFeeBps(bps uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeBps = bps
}

// SetExecutionSkew scales executed outputs relative to quotes, simulating a
// price move between quote and execution. 1 means execution matches quotes.
func (m *Market) SetExecutionSkew(skew sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skew = skew
}

func (m *Market) quoteHop(in, out common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	rate, ok := m.rates[pair{in, out}]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s -> %s", ErrNoLiquidity, in.Hex(), out.Hex())
	}
	gross := sdkmath.LegacyNewDecFromInt(amount).Mul(rate).TruncateInt()
	return gross.Sub(utils.MulBps(gross, m.feeBps)), nil
}

// quotePath returns the amount after each hop, amountIn first.
func (m *Market) quotePath(tokens []common.Address, amountIn sdkmath.Int) ([]sdkmath.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	amounts := []sdkmath.Int{amountIn}
	for i := 1; i < len(tokens); i++ {
		out, err := m.quoteHop(tokens[i-1], tokens[i], amounts[i-1])
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, out)
	}
	return amounts, nil
}

func (m *Market) executed(quoted sdkmath.Int) sdkmath.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sdkmath.LegacyNewDecFromInt(quoted).Mul(m.skew).TruncateInt()
}

// execute settles a path: pulls amountIn from `from`, pays the output to `to`.
func (m *Market) execute(ctx context.Context, from common.Address, tokens []common.Address,
	amountIn, minOut sdkmath.Int, to common.Address) (sdkmath.Int, error) {
	amounts, err := m.quotePath(tokens, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := m.executed(amounts[len(amounts)-1])
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: market output %s below %s", types.ErrSlippageExceeded, out, minOut)
	}

	tokenIn, tokenOut := tokens[0], tokens[len(tokens)-1]
	err = m.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := m.ledger.Transfer(ctx, tokenIn, from, m.address, amountIn); err != nil {
			return err
		}
		return m.ledger.Transfer(ctx, tokenOut, m.address, to, out)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	swapLogger.Debug().
		Str("token_in", tokenIn.Hex()).
		Str("token_out", tokenOut.Hex()).
		Str("amount_in", amountIn.String()).
		Str("amount_out", out.String()).
		Msg("Simulated swap settled")
	return out, nil
}

// GetAmountsOut implements router.UniswapV2Venue.
func (m *Market) GetAmountsOut(_ context.Context, amountIn sdkmath.Int, path []common.Address) ([]sdkmath.Int, error) {
	return m.quotePath(path, amountIn)
}

// SwapExactTokensForTokens implements router.UniswapV2Venue.
func (m *Market) SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin sdkmath.Int,
	path []common.Address, to common.Address) ([]sdkmath.Int, error) {
	amounts, err := m.quotePath(path, amountIn)
	if err != nil {
		return nil, err
	}
	out, err := m.execute(ctx, from, path, amountIn, amountOutMin, to)
	if err != nil {
		return nil, err
	}
	amounts[len(amounts)-1] = out
	return amounts, nil
}

// QuoteExactInput implements router.UniswapV3Venue. Fee tiers are part of
// the route identity only; pricing uses the market rate table.
func (m *Market) QuoteExactInput(_ context.Context, path []byte, amountIn sdkmath.Int) (sdkmath.Int, error) {
	tokens, _, err := router.DecodeV3Path(path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amounts, err := m.quotePath(tokens, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amounts[len(amounts)-1], nil
}

// ExactInput implements router.UniswapV3Venue.
func (m *Market) ExactInput(ctx context.Context, from common.Address, params router.ExactInputParams) (sdkmath.Int, error) {
	tokens, _, err := router.DecodeV3Path(params.Path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return m.execute(ctx, from, tokens, params.AmountIn, params.AmountOutMinimum, params.Recipient)
}

// QuerySwap implements router.BalancerVault.
func (m *Market) QuerySwap(_ context.Context, swap router.SingleSwap) (sdkmath.Int, error) {
	amounts, err := m.quotePath([]common.Address{swap.AssetIn, swap.AssetOut}, swap.Amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amounts[1], nil
}

// Swap implements router.BalancerVault. limit is the minimum output.
func (m *Market) Swap(ctx context.Context, swap router.SingleSwap, funds router.FundManagement, limit sdkmath.Int) (sdkmath.Int, error) {
	return m.execute(ctx, funds.Sender, []common.Address{swap.AssetIn, swap.AssetOut}, swap.Amount, limit, funds.Recipient)
}

// batchDeltas walks the steps and returns the vault-side delta per asset.
func (m *Market) batchDeltas(steps []router.BatchSwapStep, assets []common.Address) ([]sdkmath.Int, error) {
	deltas := make([]sdkmath.Int, len(assets))
	for i := range deltas {
		deltas[i] = sdkmath.ZeroInt()
	}
	previous := sdkmath.ZeroInt()
	for n, step := range steps {
		if step.AssetInIndex < 0 || step.AssetInIndex >= len(assets) || step.AssetOutIndex < 0 || step.AssetOutIndex >= len(assets) {
			return nil, errors.Join(types.ErrInvalidArgument, fmt.Errorf("step %d references an unknown asset", n))
		}
		amountIn := step.Amount
		if amountIn.IsNil() || amountIn.IsZero() {
			amountIn = previous
		}
		amounts, err := m.quotePath([]common.Address{assets[step.AssetInIndex], assets[step.AssetOutIndex]}, amountIn)
		if err != nil {
			return nil, err
		}
		deltas[step.AssetInIndex] = deltas[step.AssetInIndex].Add(amountIn)
		deltas[step.AssetOutIndex] = deltas[step.AssetOutIndex].Sub(amounts[1])
		previous = amounts[1]
	}
	return deltas, nil
}

// QueryBatchSwap implements router.BalancerVault.
func (m *Market) QueryBatchSwap(_ context.Context, steps []router.BatchSwapStep, assets []common.Address) ([]sdkmath.Int, error) {
	return m.batchDeltas(steps, assets)
}

// BatchSwap implements router.BalancerVault.
func (m *Market) BatchSwap(ctx context.Context, steps []router.BatchSwapStep, assets []common.Address,
	funds router.FundManagement, limits []sdkmath.Int) ([]sdkmath.Int, error) {
	if len(limits) != len(assets) {
		return nil, errors.Join(types.ErrInvalidArgument, errors.New("one limit per asset required"))
	}
	deltas, err := m.batchDeltas(steps, assets)
	if err != nil {
		return nil, err
	}
	for i, d := range deltas {
		if d.IsNegative() {
			deltas[i] = m.executed(d.Neg()).Neg()
		}
		if deltas[i].GT(limits[i]) {
			return nil, fmt.Errorf("%w: asset %d delta %s exceeds limit %s", types.ErrSlippageExceeded, i, deltas[i], limits[i])
		}
	}

	err = m.ledger.Atomic(ctx, func(ctx context.Context) error {
		for i, d := range deltas {
			switch {
			case d.IsPositive():
				if err := m.ledger.Transfer(ctx, assets[i], funds.Sender, m.address, d); err != nil {
					return err
				}
			case d.IsNegative():
				if err := m.ledger.Transfer(ctx, assets[i], m.address, funds.Recipient, d.Neg()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

// CurvePool is a stableswap pool over a fixed coin list, priced by a Market.
type CurvePool struct {
	market  *Market
	address common.Address
	coins   []common.Address
}

// NewCurvePool creates a pool at address trading coins through market.
func NewCurvePool(market *Market, address common.Address, coins ...common.Address) *CurvePool {
	return &CurvePool{market: market, address: address, coins: coins}
}

// Address implements router.CurvePool.
func (p *CurvePool) Address() common.Address { return p.address }

// Coins implements router.CurvePool.
func (p *CurvePool) Coins(_ context.Context, i int) (common.Address, error) {
	if i < 0 || i >= len(p.coins) {
		return common.Address{}, errors.Join(types.ErrInvalidArgument, fmt.Errorf("coin index %d out of range", i))
	}
	return p.coins[i], nil
}

func (p *CurvePool) pair(i, j int) ([]common.Address, error) {
	if i < 0 || j < 0 || i >= len(p.coins) || j >= len(p.coins) || i == j {
		return nil, errors.Join(types.ErrInvalidArgument, fmt.Errorf("invalid coin pair (%d, %d)", i, j))
	}
	return []common.Address{p.coins[i], p.coins[j]}, nil
}

// GetDy implements router.CurvePool.
func (p *CurvePool) GetDy(_ context.Context, i, j int, dx sdkmath.Int) (sdkmath.Int, error) {
	tokens, err := p.pair(i, j)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amounts, err := p.market.quotePath(tokens, dx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amounts[1], nil
}

// Exchange implements router.CurvePool. Settlement uses the market's reserves.
func (p *CurvePool) Exchange(ctx context.Context, from common.Address, i, j int, dx, minDy sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	tokens, err := p.pair(i, j)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return p.market.execute(ctx, from, tokens, dx, minDy, receiver)
}

var (
	_ router.UniswapV2Venue = (*Market)(nil)
	_ router.UniswapV3Venue = (*Market)(nil)
	_ router.BalancerVault  = (*Market)(nil)
	_ router.CurvePool      = (*CurvePool)(nil)
)
