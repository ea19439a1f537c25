package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/router"
	"github.com/elys-network/yieldrouter/internal/simulations"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0x0a")
	v2Addr = common.HexToAddress("0x3001")
	usdc   = common.HexToAddress("0x1001")
	crv    = common.HexToAddress("0x1002")
)

type fixedSummary types.VaultSummary

func (f fixedSummary) Summary(context.Context) types.VaultSummary { return types.VaultSummary(f) }

type downStore struct{ state.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, store state.Store) *WebServer {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.New(state.NewMemoryStore())
	require.NoError(t, err)
	market := simulations.NewMarket(l, common.HexToAddress("0x2001"))
	ex, err := exchange.New(exchange.Config{Ledger: l, Address: common.HexToAddress("0xe1"), Owner: owner})
	require.NoError(t, err)
	v2, err := router.NewUniswapV2(router.Config{Ledger: l, Address: v2Addr, Owner: owner, Exchange: ex.Address()}, market)
	require.NoError(t, err)
	require.NoError(t, ex.ListRouter(ctx, owner, v2))
	_, err = v2.AddPath(ctx, owner, market.Address(), []common.Address{crv, usdc})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, 6)
	m.ObserveSwap(string(types.VenueUniswapV2), nil)

	summary := fixedSummary{
		Asset:       usdc,
		TotalAssets: sdkmath.NewInt(1_000),
		IdleAssets:  sdkmath.NewInt(10),
		Strategies: []types.StrategySummary{
			{Index: 0, Name: "lending", Status: types.StatusActive, AllocPoint: 100, TotalAssets: sdkmath.NewInt(990)},
		},
	}
	ws, err := NewWebServer(Config{Store: store, Controller: summary, Exchange: ex, Gatherer: reg})
	require.NoError(t, err)
	return ws
}

func get(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]interface{}{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func putHarvest(t *testing.T, store state.Store, round int) {
	t.Helper()
	require.NoError(t, store.Update(context.Background(), func(tx state.Tx) error {
		return tx.PutHarvest(context.Background(), types.HarvestReceipt{
			ID:               fmt.Sprintf("harvest-%d", round),
			Round:            round,
			Timestamp:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(round) * time.Hour),
			Proceeds:         sdkmath.NewInt(30),
			Fee:              sdkmath.NewInt(3),
			Net:              sdkmath.NewInt(27),
			TotalAssetsAfter: sdkmath.NewInt(1_027),
		})
	}))
}

func TestNewWebServerValidatesConfig(t *testing.T) {
	_, err := NewWebServer(Config{})
	assert.ErrorContains(t, err, "store cannot be nil")
}

func TestHealth(t *testing.T) {
	ws := newTestServer(t, state.NewMemoryStore())
	for _, path := range []string{"/health", "/api/health"} {
		rec, body := get(t, ws, path)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", body["status"])
	}

	degraded := newTestServer(t, downStore{state.NewMemoryStore()})
	rec, body := get(t, degraded, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestVaultSummaryAndStrategies(t *testing.T) {
	store := state.NewMemoryStore()
	putHarvest(t, store, 1)
	ws := newTestServer(t, store)

	rec, body := get(t, ws, "/api/vault/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	vault := body["vault"].(map[string]interface{})
	assert.Equal(t, "1000", vault["total_assets"])
	harvests := body["harvests"].(map[string]interface{})
	assert.Equal(t, float64(1), harvests["count"])
	assert.NotContains(t, body, "performance")

	putHarvest(t, store, 2)
	_, body = get(t, ws, "/api/vault/summary")
	perf := body["performance"].(map[string]interface{})
	assert.Equal(t, float64(2), perf["harvests"])
	assert.InDelta(t, 1.0, perf["span_hours"], 1e-9)

	rec, body = get(t, ws, "/api/strategies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	first := body["strategies"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "active", first["status"])
}

func TestHarvests(t *testing.T) {
	store := state.NewMemoryStore()
	ws := newTestServer(t, store)

	rec, _ := get(t, ws, "/api/harvests/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	putHarvest(t, store, 1)
	putHarvest(t, store, 2)

	rec, body := get(t, ws, "/api/harvests?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, ws, "/api/harvests/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["round"])
}

func TestRouters(t *testing.T) {
	ws := newTestServer(t, state.NewMemoryStore())

	rec, body := get(t, ws, "/api/routers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, ws, "/api/routers/"+v2Addr.Hex()+"/paths")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(types.VenueUniswapV2), body["venue"])
	assert.Equal(t, float64(1), body["count"])

	rec, _ = get(t, ws, "/api/routers/not-an-address/paths")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, ws, "/api/routers/"+common.HexToAddress("0x99").Hex()+"/paths")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ws := newTestServer(t, state.NewMemoryStore())
	rec, _ := get(t, ws, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "yieldrouter_swaps_total")
}
