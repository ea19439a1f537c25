package main

import (
	"context"
	"fmt"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/controller"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/strategy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/elys-network/yieldrouter/internal/vault"
	"github.com/ethereum/go-ethereum/common"
)

var deployLogger = logger.GetForComponent("deploy")

const lpSymbol = "3POOL"

func handle(label string) common.Address {
	return types.DeriveAddress("yieldrouter:" + label)
}

// deployment is a complete vault wired to simulated venues and protocols.
type deployment struct {
	ledger     *ledger.Ledger
	exchange   *exchange.Exchange
	controller *controller.Controller
	vault      *vault.Passthrough
	depositor  common.Address

	tokens map[string]common.Address
	params config.SimulationParameters

	pool    *simulations.StakingPool
	booster *simulations.Booster
	lender  *simulations.MoneyMarket
	synth   *simulations.SyntheticVault

	staking   *strategy.StakingDerivative
	lending   *strategy.LendingMarket
	synthetic *strategy.SyntheticAsset
}

func (d *deployment) token(symbol string) common.Address { return d.tokens[symbol] }

// deploySimulation builds every component, lists the routers and their
// paths, registers the strategies and seeds the vault with a deposit.
func deploySimulation(ctx context.Context, store state.Store, m *metrics.Metrics, owner, treasury common.Address,
	params types.Parameters, sim config.SimulationParameters) (*deployment, error) {
	l, err := ledger.New(store)
	if err != nil {
		return nil, err
	}
	d := &deployment{ledger: l, tokens: make(map[string]common.Address), params: sim}
	for symbol, info := range config.SimulationTokens {
		d.tokens[symbol] = info.Address()
	}
	base, err := config.Token(config.BaseAssetSymbol)
	if err != nil {
		return nil, err
	}
	usdc, susd := d.token("USDC"), d.token("SUSD")

	// venues
	market := simulations.NewMarket(l, handle("market"))
	market.SetFeeBps(sim.VenueFeeBps)
	for symbol, info := range config.SimulationTokens {
		if symbol == lpSymbol {
			// only the staking pool mints its LP token
			continue
		}
		if symbol != config.BaseAssetSymbol {
			rate, err := info.RateTo(base)
			if err != nil {
				return nil, err
			}
			market.SetRate(info.Address(), base.Address(), rate)
		}
		liquidity, err := info.Units(sim.MarketLiquidity)
		if err != nil {
			return nil, err
		}
		if err := l.Mint(ctx, info.Address(), market.Address(), liquidity); err != nil {
			return nil, err
		}
	}
	curvePool := simulations.NewCurvePool(market, handle("curve-pool"), usdc, susd)

	d.exchange, err = exchange.New(exchange.Config{Ledger: l, Address: handle("exchange"), Owner: owner, Metrics: m})
	if err != nil {
		return nil, err
	}
	routes, err := d.listRouters(ctx, owner, market, curvePool)
	if err != nil {
		return nil, err
	}

	d.controller, err = controller.New(controller.Config{
		Ledger:     l,
		Address:    handle("controller"),
		Owner:      owner,
		Vault:      handle("vault"),
		Asset:      usdc,
		Treasury:   treasury,
		Exchange:   d.exchange,
		Parameters: params,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	// protocols and strategies
	strategyConfig := func(name string) strategy.Config {
		return strategy.Config{
			Ledger:              l,
			Name:                name,
			Address:             handle("strategy:" + name),
			Owner:               owner,
			Controller:          d.controller,
			Asset:               usdc,
			DepositSlippageBps:  params.DepositSlippageBps,
			WithdrawSlippageBps: params.WithdrawSlippageBps,
		}
	}

	d.pool = simulations.NewStakingPool(l, handle("staking-pool"), usdc, d.token(lpSymbol))
	d.booster = simulations.NewBooster(l, handle("booster"), d.token(lpSymbol), d.token("CRV"), d.token("CVX"))
	d.staking, err = strategy.NewStakingDerivative(strategy.StakingConfig{
		Config:       strategyConfig("staking"),
		Pool:         d.pool,
		Booster:      d.booster,
		RewardTokens: []common.Address{d.token("CRV"), d.token("CVX")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staking strategy: %w", err)
	}

	d.lender = simulations.NewMoneyMarket(l, handle("money-market"), usdc, d.token("COMP"))
	d.lending, err = strategy.NewLendingMarket(strategy.LendingConfig{Config: strategyConfig("lending"), Market: d.lender})
	if err != nil {
		return nil, fmt.Errorf("failed to create lending strategy: %w", err)
	}

	d.synth = simulations.NewSyntheticVault(l, handle("synthetic-vault"), susd)
	d.synthetic, err = strategy.NewSyntheticAsset(strategy.SyntheticConfig{Config: strategyConfig("synthetic"), Vault: d.synth})
	if err != nil {
		return nil, fmt.Errorf("failed to create synthetic strategy: %w", err)
	}

	if err := d.configureStrategies(ctx, owner, routes); err != nil {
		return nil, err
	}

	// front-end and seed deposit
	d.vault, err = vault.New(vault.Config{Ledger: l, Address: handle("vault"), Owner: owner, Asset: usdc})
	if err != nil {
		return nil, err
	}
	if err := d.vault.SetController(ctx, owner, d.controller); err != nil {
		return nil, err
	}
	d.depositor = handle("depositor")
	seed, err := base.Units(sim.SeedDeposit)
	if err != nil {
		return nil, err
	}
	if err := l.Mint(ctx, usdc, d.depositor, seed); err != nil {
		return nil, err
	}
	if err := d.vault.Deposit(ctx, d.depositor, seed); err != nil {
		return nil, fmt.Errorf("failed to seed the vault: %w", err)
	}

	deployLogger.Info().
		Str("controller", d.controller.Address().Hex()).
		Str("exchange", d.exchange.Address().Hex()).
		Str("seed_deposit", seed.String()).
		Int("routers", len(d.exchange.Routers(ctx))).
		Msg("Simulation deployment ready")
	return d, nil
}

// listRouters lists one adapter per venue shape and returns the route used
// for each token pair, keyed "IN->OUT".
func (d *deployment) listRouters(ctx context.Context, owner common.Address, market *simulations.Market,
	curvePool *simulations.CurvePool) (map[string]types.Route, error) {
	cfg := func(label string) router.Config {
		return router.Config{Ledger: d.ledger, Address: handle("router:" + label), Owner: owner, Exchange: d.exchange.Address()}
	}
	v2, err := router.NewUniswapV2(cfg("uniswap-v2"), market)
	if err != nil {
		return nil, err
	}
	v3, err := router.NewUniswapV3(cfg("uniswap-v3"), market)
	if err != nil {
		return nil, err
	}
	curve, err := router.NewCurve(cfg("curve"), curvePool)
	if err != nil {
		return nil, err
	}
	balancer, err := router.NewBalancer(cfg("balancer"), market)
	if err != nil {
		return nil, err
	}
	batch, err := router.NewBalancerBatch(cfg("balancer-batch"), market)
	if err != nil {
		return nil, err
	}
	for _, r := range []exchange.Router{v2, v3, curve, balancer, batch} {
		if err := d.exchange.ListRouter(ctx, owner, r); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", r.Venue(), err)
		}
	}

	usdc, susd := d.token("USDC"), d.token("SUSD")
	routes := make(map[string]types.Route)
	add := func(key string, r exchange.Router, idx uint64, err error) error {
		if err != nil {
			return fmt.Errorf("failed to add %s path on %s: %w", key, r.Venue(), err)
		}
		routes[key] = types.Route{Router: r.Address(), PathIndex: idx}
		return nil
	}

	idx, err := v2.AddPath(ctx, owner, market.Address(), []common.Address{d.token("CRV"), usdc})
	if err := add("CRV->USDC", v2, idx, err); err != nil {
		return nil, err
	}
	idx, err = v3.AddPath(ctx, owner, []common.Address{d.token("CVX"), usdc}, []uint32{3000})
	if err := add("CVX->USDC", v3, idx, err); err != nil {
		return nil, err
	}
	idx, err = balancer.AddPath(ctx, owner, handle("balancer-pool:COMP-USDC").Hash(), d.token("COMP"), usdc)
	if err := add("COMP->USDC", balancer, idx, err); err != nil {
		return nil, err
	}
	idx, err = curve.AddPath(ctx, owner, curvePool.Address(), usdc, susd, 0, 1)
	if err := add("USDC->SUSD", curve, idx, err); err != nil {
		return nil, err
	}
	idx, err = batch.AddPath(ctx, owner, []common.Hash{handle("balancer-pool:SUSD-USDC").Hash()}, []common.Address{susd, usdc})
	if err := add("SUSD->USDC", batch, idx, err); err != nil {
		return nil, err
	}
	return routes, nil
}

func (d *deployment) configureStrategies(ctx context.Context, owner common.Address, routes map[string]types.Route) error {
	for _, s := range []interface{ Address() common.Address }{d.staking, d.lending, d.synthetic} {
		if err := d.exchange.SetSwapCaller(ctx, owner, s.Address(), true); err != nil {
			return err
		}
	}
	for _, symbol := range []string{"CRV", "CVX"} {
		if err := d.staking.SetRewardRoute(ctx, owner, d.token(symbol), routes[symbol+"->USDC"]); err != nil {
			return fmt.Errorf("failed to set %s route: %w", symbol, err)
		}
	}
	if err := d.lending.SetRewardRoute(ctx, owner, d.token("COMP"), routes["COMP->USDC"]); err != nil {
		return fmt.Errorf("failed to set COMP route: %w", err)
	}
	if err := d.synthetic.SetSwapPath(ctx, owner, routes["USDC->SUSD"], routes["SUSD->USDC"]); err != nil {
		return fmt.Errorf("failed to set synthetic swap path: %w", err)
	}

	for _, reg := range []struct {
		s      controller.Strategy
		points uint64
	}{
		{d.staking, d.params.StakingAllocPoint},
		{d.lending, d.params.LendingAllocPoint},
		{d.synthetic, d.params.SyntheticAllocPoint},
	} {
		if _, err := d.controller.RegisterSubStrategy(ctx, owner, reg.s, reg.points); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.s.Name(), err)
		}
	}
	return nil
}

// accrue credits one cycle of rewards and yield to the simulated protocols.
func (d *deployment) accrue(ctx context.Context, cycle int) error {
	return d.ledger.Atomic(ctx, func(ctx context.Context) error {
		for symbol, amount := range d.params.RewardsPerCycle {
			info, err := config.Token(symbol)
			if err != nil {
				return err
			}
			units, err := info.Units(amount)
			if err != nil {
				return err
			}
			switch symbol {
			case "COMP":
				err = d.lender.AccrueIncentives(ctx, d.lending.Address(), units)
			default:
				err = d.booster.AccrueReward(ctx, d.staking.Address(), info.Address(), units)
			}
			if err != nil {
				return fmt.Errorf("failed to accrue %s: %w", symbol, err)
			}
		}

		bps := d.params.YieldPerCycleBps
		if y := utils.MulBps(d.ledger.BalanceOf(ctx, d.token("USDC"), d.pool.Address()), bps); y.IsPositive() {
			if err := d.pool.AccrueYield(ctx, y); err != nil {
				return err
			}
		}
		if y := utils.MulBps(d.lender.BalanceOfUnderlying(ctx, d.lending.Address()), bps); y.IsPositive() {
			if err := d.lender.AccrueInterest(ctx, y); err != nil {
				return err
			}
		}
		if y := utils.MulBps(d.ledger.BalanceOf(ctx, d.token("SUSD"), d.synth.Address()), bps); y.IsPositive() {
			if err := d.synth.AccrueYield(ctx, y); err != nil {
				return err
			}
		}
		deployLogger.Debug().Int("cycle", cycle).Msg("Accrued simulated rewards and yield")
		return nil
	})
}
