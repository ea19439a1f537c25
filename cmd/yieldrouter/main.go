package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/harvester"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/web"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// metricsPrecision reports amounts in whole base-asset tokens.
const metricsPrecision = 6

// main is the entry point for the yield router.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var extra []io.Writer
	if config.LogFile != "" {
		w, err := logger.FileWriter(config.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.LogFile).Msg("Failed to open log file")
		}
		extra = append(extra, w)
	}
	logger.Initialize(config.LogLevel, config.LogFormat, extra...)
	log.Info().Msg("Yield router starting...")

	// Safety switch: only simulated venues and protocols are wired.
	if config.Mode != config.ModeSimulation {
		log.Fatal().Str("mode", config.Mode).Msg("YR_MODE is not set to 'simulation'. Halting to prevent accidental execution.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Store ---
	var store state.Store
	if config.DBEnabled {
		pg, err := state.InitDB(config.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = pg
	} else {
		log.Warn().Msg("DB_HOST not set, state is kept in memory only")
		store = state.NewMemoryStore()
	}
	defer store.Close()

	// --- 3. Deployment ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry, metricsPrecision)

	d, err := deploySimulation(ctx, store, m, config.OwnerAddress, config.TreasuryAddress,
		config.DefaultParameters, config.DefaultSimulationParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to deploy simulation")
	}

	// --- 4. Web Server ---
	webServer, err := web.NewWebServer(web.Config{
		Port:       config.WebPort,
		Store:      store,
		Controller: d.controller,
		Exchange:   d.exchange,
		Gatherer:   registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting yield router API")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server stopped with error")
		}
	}()

	// --- 5. Harvest Loop ---
	h, err := harvester.New(harvester.Config{
		Controller:  d.controller,
		Store:       store,
		Caller:      config.OwnerAddress,
		BeforeCycle: d.accrue,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create harvester")
	}

	log.Info().Str("interval", config.HarvestInterval.String()).Msg("Starting harvest loop")
	h.RunLoop(ctx, config.HarvestInterval)

	log.Info().
		Int("cycles", h.Cycles()).
		Str("total_assets", d.controller.TotalAssets(context.Background()).String()).
		Msg("Yield router stopped")
}
