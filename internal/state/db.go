// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// InitDB opens and pings the connection pool described by cfg.
func InitDB(cfg DBConfig) (*PostgresStore, error) {
	return OpenDSN(cfg.DSN())
}

// OpenDSN opens a store from a raw connection string.
func OpenDSN(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return &PostgresStore{db: db}, nil
}

// DB exposes the pool for maintenance scripts.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	log.Info().Msg("Closing database connection...")
	return s.db.Close()
}

// Ping tests if the database connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// schemaSQL holds every table the store reads and writes. Amounts are stored
// as NUMERIC(78,0) so any uint256 value fits.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS balances (
		token CHAR(42) NOT NULL,
		holder CHAR(42) NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (token, holder)
	);

	CREATE TABLE IF NOT EXISTS controllers (
		address CHAR(42) PRIMARY KEY,
		exchange CHAR(42) NOT NULL,
		performance_fee_bps INTEGER NOT NULL,
		recorded_total NUMERIC(78, 0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS allocations (
		controller CHAR(42) NOT NULL,
		idx INTEGER NOT NULL,
		strategy CHAR(42) NOT NULL,
		alloc_point BIGINT NOT NULL,
		removed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (controller, idx)
	);

	CREATE TABLE IF NOT EXISTS router_listings (
		exchange CHAR(42) NOT NULL,
		router CHAR(42) NOT NULL,
		position INTEGER NOT NULL,
		listed BOOLEAN NOT NULL,
		PRIMARY KEY (exchange, router)
	);

	CREATE TABLE IF NOT EXISTS swap_callers (
		exchange CHAR(42) NOT NULL,
		caller CHAR(42) NOT NULL,
		allowed BOOLEAN NOT NULL,
		PRIMARY KEY (exchange, caller)
	);

	CREATE TABLE IF NOT EXISTS swap_paths (
		router CHAR(42) NOT NULL,
		path_index BIGINT NOT NULL,
		path_key CHAR(66) NOT NULL,
		venue VARCHAR(32) NOT NULL,
		descriptor JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (router, path_index),
		CONSTRAINT uq_swap_paths_key UNIQUE (router, path_key)
	);

	CREATE TABLE IF NOT EXISTS strategies (
		address CHAR(42) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		principal NUMERIC(78, 0) NOT NULL,
		deposit_slippage_bps INTEGER NOT NULL,
		withdraw_slippage_bps INTEGER NOT NULL,
		reward_tokens TEXT[] NOT NULL DEFAULT '{}',
		routes JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS harvest_receipts (
		receipt_id UUID PRIMARY KEY,
		round INTEGER NOT NULL,
		harvest_timestamp TIMESTAMPTZ NOT NULL,
		controller CHAR(42) NOT NULL,
		strategy_indices INTEGER[] NOT NULL,
		per_strategy JSONB NOT NULL,
		proceeds NUMERIC(78, 0) NOT NULL,
		fee NUMERIC(78, 0) NOT NULL,
		net NUMERIC(78, 0) NOT NULL,
		total_assets_after NUMERIC(78, 0) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_harvest_receipts_timestamp ON harvest_receipts(harvest_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_harvest_receipts_round ON harvest_receipts(round DESC);

	-- Harvest round counter for persistent global round tracking
	CREATE TABLE IF NOT EXISTS harvest_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_round INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO harvest_counter (id, current_round)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func (s *PostgresStore) DropSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	const dropSQL = `
		DROP TABLE IF EXISTS harvest_receipts CASCADE;
		DROP TABLE IF EXISTS harvest_counter CASCADE;
		DROP TABLE IF EXISTS strategies CASCADE;
		DROP TABLE IF EXISTS swap_paths CASCADE;
		DROP TABLE IF EXISTS swap_callers CASCADE;
		DROP TABLE IF EXISTS router_listings CASCADE;
		DROP TABLE IF EXISTS allocations CASCADE;
		DROP TABLE IF EXISTS controllers CASCADE;
		DROP TABLE IF EXISTS balances CASCADE;
	`
	if _, err := s.db.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}

// pgTx adapts *sql.Tx to Tx.
type pgTx struct {
	tx *sql.Tx
}

// Update runs fn inside one database transaction.
func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back store transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func parseAmount(column, raw string) (sdkmath.Int, error) {
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid %s value %q", column, raw)
	}
	return amount, nil
}
