package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/yieldrouter/internal/analyzer"
	"github.com/elys-network/yieldrouter/internal/exchange"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

// performanceWindow bounds the receipts used for realized performance.
const performanceWindow = 500

// SummaryProvider is the read side of the controller.
type SummaryProvider interface {
	Summary(ctx context.Context) types.VaultSummary
}

// RouterLister is the read side of the exchange.
type RouterLister interface {
	Address() common.Address
	Routers(ctx context.Context) []exchange.Router
	Router(ctx context.Context, handle common.Address) (exchange.Router, error)
}

// Config holds the WebServer dependencies.
type Config struct {
	Port       string
	Store      state.Store
	Controller SummaryProvider
	Exchange   RouterLister
	Gatherer   prometheus.Gatherer // optional, /metrics is not served without it
}

func validateWebConfig(cfg Config) error {
	if cfg.Store == nil {
		return errors.New("store cannot be nil")
	}
	if cfg.Controller == nil {
		return errors.New("controller cannot be nil")
	}
	if cfg.Exchange == nil {
		return errors.New("exchange cannot be nil")
	}
	return nil
}

// WebServer serves the read-only vault API.
type WebServer struct {
	router     *mux.Router
	port       string
	store      state.Store
	controller SummaryProvider
	exchange   RouterLister
	started    time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if err := validateWebConfig(cfg); err != nil {
		return nil, fmt.Errorf("web server configuration validation failed: %w", err)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       cfg.Port,
		store:      cfg.Store,
		controller: cfg.Controller,
		exchange:   cfg.Exchange,
		started:    time.Now(),
	}
	server.setupRoutes(cfg.Gatherer)
	return server, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes(gatherer prometheus.Gatherer) {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if gatherer != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/harvests", ws.handleGetHarvests).Methods("GET")
	api.HandleFunc("/harvests/latest", ws.handleGetLatestHarvest).Methods("GET")
	api.HandleFunc("/routers", ws.handleGetRouters).Methods("GET")
	api.HandleFunc("/routers/{address}/paths", ws.handleGetRouterPaths).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		return server.Shutdown(shutdownCtx)
	}
}

// handleHealth reports store connectivity and the latest harvest.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := ws.store.Ping(r.Context()) == nil
	harvestInfo := map[string]interface{}{
		"last_round":        0,
		"last_harvest_time": nil,
	}
	if latest, err := ws.store.RecentHarvests(r.Context(), 1); err == nil && len(latest) > 0 {
		harvestInfo["last_round"] = latest[0].Round
		harvestInfo["last_harvest_time"] = latest[0].Timestamp
	}

	status, statusCode := "OK", http.StatusOK
	if !dbHealthy {
		status, statusCode = "DEGRADED", http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"harvest_info":     harvestInfo,
		},
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary := ws.controller.Summary(r.Context())
	totals, err := ws.store.HarvestTotals(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get harvest totals")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	response := map[string]interface{}{
		"vault":    summary,
		"harvests": totals,
	}

	receipts, err := ws.store.RecentHarvests(r.Context(), performanceWindow)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent harvests")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	if perf, err := analyzer.CalculatePerformance(receipts); err == nil {
		response["performance"] = perf
	} else if !errors.Is(err, analyzer.ErrInsufficientData) {
		webLogger.Warn().Err(err).Msg("Failed to calculate performance")
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies := ws.controller.Summary(r.Context()).Strategies
	response := map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetHarvests returns the most recent harvest receipts
func (ws *WebServer) handleGetHarvests(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	harvests, err := ws.store.RecentHarvests(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent harvests")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve harvests")
		return
	}

	response := map[string]interface{}{
		"harvests": harvests,
		"count":    len(harvests),
		"limit":    limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetLatestHarvest(w http.ResponseWriter, r *http.Request) {
	harvests, err := ws.store.RecentHarvests(r.Context(), 1)
	if err != nil || len(harvests) == 0 {
		webLogger.Debug().Err(err).Msg("No latest harvest")
		ws.writeErrorResponse(w, http.StatusNotFound, "No harvests found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, harvests[0])
}

type routerView struct {
	Address   common.Address `json:"address"`
	Venue     types.Venue    `json:"venue"`
	PathCount int            `json:"path_count"`
}

func (ws *WebServer) handleGetRouters(w http.ResponseWriter, r *http.Request) {
	routers := ws.exchange.Routers(r.Context())
	views := make([]routerView, 0, len(routers))
	for _, rt := range routers {
		views = append(views, routerView{Address: rt.Address(), Venue: rt.Venue(), PathCount: rt.PathCount(r.Context())})
	}
	response := map[string]interface{}{
		"exchange": ws.exchange.Address(),
		"routers":  views,
		"count":    len(views),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetRouterPaths(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addr) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid router address")
		return
	}
	rt, err := ws.exchange.Router(r.Context(), common.HexToAddress(addr))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Router not listed")
		return
	}

	count := rt.PathCount(r.Context())
	paths := make([]types.SwapPath, 0, count)
	for i := 0; i < count; i++ {
		p, err := rt.Path(r.Context(), uint64(i))
		if err != nil {
			webLogger.Error().Err(err).Str("router", addr).Int("index", i).Msg("Failed to read path")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve paths")
			return
		}
		paths = append(paths, p)
	}

	response := map[string]interface{}{
		"router": rt.Address(),
		"venue":  rt.Venue(),
		"paths":  paths,
		"count":  len(paths),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
