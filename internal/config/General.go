package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// ModeSimulation runs the vault against the simulated protocols.
const ModeSimulation = "simulation"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode must be ModeSimulation. Anything else halts the process.
	Mode string

	// LogLevel and LogFormat configure the global logger. LogFile, if set,
	// receives a copy of every line.
	LogLevel  string
	LogFormat string
	LogFile   string

	// OwnerAddress owns every component and is the harvest caller.
	OwnerAddress common.Address
	// TreasuryAddress receives performance fees.
	TreasuryAddress common.Address

	// HarvestInterval is the time between harvest cycles.
	HarvestInterval time.Duration
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("YR_MODE")
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	OwnerAddress, err = getEnvAsAddress("YR_OWNER", "0x00000000000000000000000000000000000000a1")
	if err != nil {
		return err
	}

	TreasuryAddress, err = getEnvAsAddress("YR_TREASURY", "0x00000000000000000000000000000000000000a2")
	if err != nil {
		return err
	}

	HarvestInterval, err = getEnvAsDuration("HARVEST_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("Owner", OwnerAddress.Hex()).
		Str("Treasury", TreasuryAddress.Hex()).
		Dur("HarvestInterval", HarvestInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an optional environment variable as an int.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an optional environment variable as a time.Duration.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsAddress retrieves an optional environment variable as a hex address.
func getEnvAsAddress(key, fallback string) (common.Address, error) {
	valueStr := getEnvOrDefault(key, fallback)
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	addr := common.HexToAddress(valueStr)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("environment variable " + key + " cannot be the zero address")
	}
	return addr, nil
}
