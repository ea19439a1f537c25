package types

// BasisPoints is the denominator for every bps-denominated setting.
const BasisPoints uint64 = 10_000

// Parameters holds the tunable economics of a deployment.
type Parameters struct {
	PerformanceFeeBps    uint64 `json:"performance_fee_bps"`     // share of harvest proceeds sent to the treasury
	MaxPerformanceFeeBps uint64 `json:"max_performance_fee_bps"` // upper bound accepted by SetPerformanceFee
	DepositSlippageBps   uint64 `json:"deposit_slippage_bps"`    // initial strategy deposit tolerance
	WithdrawSlippageBps  uint64 `json:"withdraw_slippage_bps"`   // initial strategy withdraw and harvest swap tolerance
}
