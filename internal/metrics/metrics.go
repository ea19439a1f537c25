/*

Prometheus collectors for the vault. A nil *Metrics is valid and records
nothing, so components built without metrics need no special casing.

*/

package metrics

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all the Prometheus metrics of one deployment.
type Metrics struct {
	precision int

	swapsTotal       *prometheus.CounterVec
	harvestsTotal    *prometheus.CounterVec
	harvestDuration  prometheus.Histogram
	harvestProceeds  prometheus.Counter
	performanceFees  prometheus.Counter
	managedAssets    prometheus.Gauge
	idleAssets       prometheus.Gauge
	strategyAssets   *prometheus.GaugeVec
	withdrawRequests *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. Amounts are reported in
// whole tokens of the base asset, which has the given precision.
func NewMetrics(reg prometheus.Registerer, precision int) *Metrics {
	m := &Metrics{
		precision: precision,
		swapsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldrouter_swaps_total",
			Help: "Swaps routed through the exchange, labeled by venue and result.",
		}, []string{"venue", "result"}),
		harvestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldrouter_harvests_total",
			Help: "Batched harvests, labeled by result.",
		}, []string{"result"}),
		harvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yieldrouter_harvest_duration_seconds",
			Help:    "Time taken by one batched harvest.",
			Buckets: prometheus.DefBuckets,
		}),
		harvestProceeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yieldrouter_harvest_proceeds_total",
			Help: "Base asset realized by harvests, before fees.",
		}),
		performanceFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yieldrouter_performance_fees_total",
			Help: "Base asset sent to the treasury.",
		}),
		managedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldrouter_managed_assets",
			Help: "Total assets managed by the controller.",
		}),
		idleAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yieldrouter_idle_assets",
			Help: "Base asset held by the controller outside any strategy.",
		}),
		strategyAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yieldrouter_strategy_assets",
			Help: "Assets reported by each strategy.",
		}, []string{"strategy"}),
		withdrawRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldrouter_withdraw_requests_total",
			Help: "Withdraw requests reaching the controller, labeled by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.swapsTotal,
		m.harvestsTotal,
		m.harvestDuration,
		m.harvestProceeds,
		m.performanceFees,
		m.managedAssets,
		m.idleAssets,
		m.strategyAssets,
		m.withdrawRequests,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

func (m *Metrics) tokens(amount sdkmath.Int) float64 {
	if amount.IsNil() {
		return 0
	}
	f, err := utils.SDKIntToFloat64(amount, m.precision)
	if err != nil {
		return 0
	}
	return f
}

func (m *Metrics) ObserveSwap(venue string, err error) {
	if m == nil {
		return
	}
	if venue == "" {
		venue = "unknown"
	}
	m.swapsTotal.WithLabelValues(venue, result(err)).Inc()
}

// ObserveHarvest records one harvest attempt. proceeds and fee are ignored
// for failed harvests.
func (m *Metrics) ObserveHarvest(started time.Time, proceeds, fee sdkmath.Int, err error) {
	if m == nil {
		return
	}
	m.harvestsTotal.WithLabelValues(result(err)).Inc()
	m.harvestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return
	}
	m.harvestProceeds.Add(m.tokens(proceeds))
	m.performanceFees.Add(m.tokens(fee))
}

func (m *Metrics) ObserveWithdraw(err error) {
	if m == nil {
		return
	}
	m.withdrawRequests.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SetManagedAssets(total, idle sdkmath.Int) {
	if m == nil {
		return
	}
	m.managedAssets.Set(m.tokens(total))
	m.idleAssets.Set(m.tokens(idle))
}

func (m *Metrics) SetStrategyAssets(strategy string, amount sdkmath.Int) {
	if m == nil {
		return
	}
	m.strategyAssets.WithLabelValues(strategy).Set(m.tokens(amount))
}
