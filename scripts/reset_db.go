// reset_db drops and recreates the yield router schema. With -round it only
// rewinds the harvest round counter and leaves every table in place.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	round := flag.Int("round", -1, "rewind the harvest round counter to this value instead of dropping the schema")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file loaded, using process environment")
	}
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger.Initialize(level, os.Getenv("LOG_FORMAT"))

	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	if dbCfg.Host == "" {
		dbCfg.Host = "localhost"
	}

	store, err := state.InitDB(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Str("host", dbCfg.Host).Str("dbname", dbCfg.DBName).Msg("Cannot open yield router database")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *round >= 0 {
		if err := store.ResetHarvestRound(ctx, *round); err != nil {
			log.Fatal().Err(err).Msg("Failed to rewind harvest round")
		}
		log.Info().Int("round", *round).Msg("Harvest round rewound")
		return
	}

	log.Info().Str("dbname", dbCfg.DBName).Msg("Dropping yield router schema")
	if err := store.DropSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop schema")
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate schema")
	}
	log.Info().Msg("Schema recreated")
}
