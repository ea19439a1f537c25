/*

This file derives the realized performance of the vault from its harvest
receipts.

Each receipt is one compounding period: its return is the net amount
reinvested over the assets that produced it. Returns are annualized over the
time the receipts span.

*/

package analyzer

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

// ErrInsufficientData indicates that fewer than two receipts were provided,
// so no time span exists to annualize over.
var ErrInsufficientData = errors.New("insufficient harvests to calculate performance")

const year = 365 * 24 * time.Hour

// Performance summarizes realized harvest returns.
type Performance struct {
	Harvests         int     `json:"harvests"`
	SpanHours        float64 `json:"span_hours"`
	PeriodReturnMean float64 `json:"period_return_mean"`
	RealizedAPR      float64 `json:"realized_apr"`
	// ReturnVolatility is the annualized standard deviation of period returns.
	ReturnVolatility float64 `json:"return_volatility"`
}

// CalculatePerformance computes Performance from receipts in any order.
// Receipts whose pre-harvest assets are not positive are skipped.
func CalculatePerformance(receipts []types.HarvestReceipt) (Performance, error) {
	n := len(receipts)
	if n < 2 {
		return Performance{}, ErrInsufficientData
	}

	sorted := make([]types.HarvestReceipt, n)
	copy(sorted, receipts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	span := sorted[n-1].Timestamp.Sub(sorted[0].Timestamp)
	if span <= 0 {
		return Performance{}, ErrInsufficientData
	}

	// The first receipt only opens the span, its period started before it.
	returns := make([]float64, 0, n-1)
	for _, r := range sorted[1:] {
		if r.Net.IsNil() || r.TotalAssetsAfter.IsNil() {
			continue
		}
		before := r.TotalAssetsAfter.Sub(r.Net)
		if !before.IsPositive() {
			continue
		}
		net, err := utils.SDKIntToFloat64(r.Net, 0)
		if err != nil {
			return Performance{}, err
		}
		assets, err := utils.SDKIntToFloat64(before, 0)
		if err != nil {
			return Performance{}, err
		}
		returns = append(returns, net/assets)
	}
	if len(returns) == 0 {
		return Performance{}, ErrInsufficientData
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sumSqDiff float64
	for _, r := range returns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(returns)))

	years := span.Hours() / year.Hours()
	periodsPerYear := float64(len(returns)) / years

	return Performance{
		Harvests:         n,
		SpanHours:        span.Hours(),
		PeriodReturnMean: mean,
		RealizedAPR:      sum / years,
		ReturnVolatility: stdDev * math.Sqrt(periodsPerYear),
	}, nil
}
