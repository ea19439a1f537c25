package config

import (
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the read-only HTTP API.
	WebPort string

	// DBEnabled is true when DB_HOST is set. Without it state lives in memory
	// and is lost on exit.
	DBEnabled bool
	// DB holds the PostgreSQL connection settings.
	DB state.DBConfig
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	var err error
	DB, err = LoadDBConfig()
	if err != nil {
		return err
	}
	DBEnabled = DB.Host != ""

	log.Debug().
		Str("WebPort", WebPort).
		Bool("DBEnabled", DBEnabled).
		Str("DBHost", DB.Host).
		Str("DBName", DB.DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// LoadDBConfig reads the DB_* variables. Host is left empty when DB_HOST is
// unset.
func LoadDBConfig() (state.DBConfig, error) {
	port, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return state.DBConfig{}, err
	}
	return state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", ""),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "yieldrouter"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}, nil
}
