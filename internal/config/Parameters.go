/*

This file contains the default parameters of a deployment.

The fee and slippage values follow what yield aggregators commonly charge
and tolerate. The simulation values size a demo deployment whose numbers are
easy to follow in the logs and on the API.

*/

package config

import (
	"github.com/elys-network/yieldrouter/internal/types"
)

// DefaultParameters provides the economics a new controller and its
// strategies start with.
var DefaultParameters = types.Parameters{
	PerformanceFeeBps: 1_000, // 10% of harvest proceeds go to the treasury.
	// Rationale: The customary aggregator fee. It pays for harvest execution
	// without eating most of the yield.

	MaxPerformanceFeeBps: 2_000, // The owner can never raise the fee above 20%.
	// Rationale: Depositors need a hard bound they can rely on.

	DepositSlippageBps: 50, // Accept 0.5% less LP or shares than quoted when entering.
	// Rationale: Entry is split across pools on every deposit. A tight bound
	// keeps sandwich losses small while normal price movement still fits.

	WithdrawSlippageBps: 100, // Accept 1% less than quoted when exiting or selling rewards.
	// Rationale: Reward tokens trade in thinner markets than the base asset.
	// Failing a harvest over a sub-percent move costs more than the move.
}

// SimulationParameters sizes the simulated deployment.
type SimulationParameters struct {
	// SeedDeposit is deposited through the front-end at startup, in whole base units.
	SeedDeposit string
	// MarketLiquidity is minted to every simulated venue per token, in whole units.
	MarketLiquidity string

	StakingAllocPoint   uint64
	LendingAllocPoint   uint64
	SyntheticAllocPoint uint64

	// RewardsPerCycle maps a reward token symbol to what each strategy earning
	// it accrues before every harvest, in whole units.
	RewardsPerCycle map[string]string
	// YieldPerCycleBps is the base-asset yield every protocol accrues on its
	// holdings before every harvest.
	YieldPerCycleBps uint64
	// VenueFeeBps is charged by every simulated swap venue.
	VenueFeeBps uint64
}

// DefaultSimulationParameters is the demo deployment.
var DefaultSimulationParameters = SimulationParameters{
	SeedDeposit:     "1000000",
	MarketLiquidity: "100000000",

	StakingAllocPoint:   40, // The staking pool pays the most rewards.
	LendingAllocPoint:   35,
	SyntheticAllocPoint: 25, // Every entry and exit crosses a swap.

	RewardsPerCycle: map[string]string{
		"CRV":  "120",
		"CVX":  "15",
		"COMP": "0.8",
	},
	YieldPerCycleBps: 2,
	VenueFeeBps:      5,
}
