package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

func (t *pgTx) PutBalance(ctx context.Context, rec BalanceRecord) error {
	const query = `
		INSERT INTO balances (token, holder, amount, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (token, holder) DO UPDATE SET amount = EXCLUDED.amount, updated_at = CURRENT_TIMESTAMP;`
	if _, err := t.tx.ExecContext(ctx, query, rec.Token.Hex(), rec.Holder.Hex(), rec.Amount.String()); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (t *pgTx) PutAllocation(ctx context.Context, rec AllocationRecord) error {
	const query = `
		INSERT INTO allocations (controller, idx, strategy, alloc_point, removed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (controller, idx) DO UPDATE
		SET strategy = EXCLUDED.strategy, alloc_point = EXCLUDED.alloc_point, removed = EXCLUDED.removed;`
	if _, err := t.tx.ExecContext(ctx, query,
		rec.Controller.Hex(), rec.Index, rec.Strategy.Hex(), int64(rec.AllocPoint), rec.Removed,
	); err != nil {
		return fmt.Errorf("failed to save allocation %d: %w", rec.Index, err)
	}
	return nil
}

func (t *pgTx) PutController(ctx context.Context, rec ControllerRecord) error {
	const query = `
		INSERT INTO controllers (address, exchange, performance_fee_bps, recorded_total, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (address) DO UPDATE
		SET exchange = EXCLUDED.exchange, performance_fee_bps = EXCLUDED.performance_fee_bps,
		    recorded_total = EXCLUDED.recorded_total, updated_at = CURRENT_TIMESTAMP;`
	total := "0"
	if !rec.RecordedTotal.IsNil() {
		total = rec.RecordedTotal.String()
	}
	if _, err := t.tx.ExecContext(ctx, query,
		rec.Address.Hex(), rec.Exchange.Hex(), int64(rec.PerformanceFeeBps), total,
	); err != nil {
		return fmt.Errorf("failed to save controller: %w", err)
	}
	return nil
}

func (t *pgTx) PutRouterListing(ctx context.Context, rec RouterListingRecord) error {
	const query = `
		INSERT INTO router_listings (exchange, router, position, listed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (exchange, router) DO UPDATE SET position = EXCLUDED.position, listed = EXCLUDED.listed;`
	if _, err := t.tx.ExecContext(ctx, query, rec.Exchange.Hex(), rec.Router.Hex(), rec.Position, rec.Listed); err != nil {
		return fmt.Errorf("failed to save router listing: %w", err)
	}
	return nil
}

func (t *pgTx) PutSwapCaller(ctx context.Context, rec SwapCallerRecord) error {
	const query = `
		INSERT INTO swap_callers (exchange, caller, allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (exchange, caller) DO UPDATE SET allowed = EXCLUDED.allowed;`
	if _, err := t.tx.ExecContext(ctx, query, rec.Exchange.Hex(), rec.Caller.Hex(), rec.Allowed); err != nil {
		return fmt.Errorf("failed to save swap caller: %w", err)
	}
	return nil
}

// PutPath only inserts: registered paths are immutable.
func (t *pgTx) PutPath(ctx context.Context, rec PathRecord) error {
	descriptor, err := json.Marshal(rec.Path)
	if err != nil {
		return fmt.Errorf("failed to marshal path descriptor: %w", err)
	}
	const query = `
		INSERT INTO swap_paths (router, path_index, path_key, venue, descriptor)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (router, path_index) DO NOTHING;`
	if _, err := t.tx.ExecContext(ctx, query,
		rec.Router.Hex(), int64(rec.Path.Index), rec.Path.Key.Hex(), string(rec.Path.Venue), descriptor,
	); err != nil {
		return fmt.Errorf("failed to save path %d: %w", rec.Path.Index, err)
	}
	return nil
}

// Balances returns every stored balance.
func (s *PostgresStore) Balances(ctx context.Context) ([]BalanceRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token, holder, amount::TEXT FROM balances ORDER BY token, holder;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var result []BalanceRecord
	for rows.Next() {
		var token, holder, raw string
		if err := rows.Scan(&token, &holder, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		amount, err := parseAmount("amount", raw)
		if err != nil {
			return nil, err
		}
		result = append(result, BalanceRecord{
			Token:  common.HexToAddress(token),
			Holder: common.HexToAddress(holder),
			Amount: amount,
		})
	}
	return result, rows.Err()
}

// Allocations returns a controller's registry ordered by index.
func (s *PostgresStore) Allocations(ctx context.Context, controller common.Address) ([]AllocationRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, strategy, alloc_point, removed FROM allocations
		WHERE controller = $1 ORDER BY idx;`, controller.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var result []AllocationRecord
	for rows.Next() {
		var (
			rec      AllocationRecord
			strategy string
			points   int64
		)
		if err := rows.Scan(&rec.Index, &strategy, &points, &rec.Removed); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		rec.Controller = controller
		rec.Strategy = common.HexToAddress(strategy)
		rec.AllocPoint = uint64(points)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Controller returns ErrNotFound if the controller never persisted settings.
func (s *PostgresStore) Controller(ctx context.Context, address common.Address) (ControllerRecord, error) {
	if s == nil || s.db == nil {
		return ControllerRecord{}, ErrNotInitialized
	}
	var (
		exchange, total string
		fee             int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT exchange, performance_fee_bps, recorded_total::TEXT FROM controllers WHERE address = $1;`,
		address.Hex()).Scan(&exchange, &fee, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return ControllerRecord{}, ErrNotFound
	}
	if err != nil {
		return ControllerRecord{}, fmt.Errorf("failed to query controller: %w", err)
	}
	recorded, err := parseAmount("recorded_total", total)
	if err != nil {
		return ControllerRecord{}, err
	}
	return ControllerRecord{
		Address:           address,
		Exchange:          common.HexToAddress(exchange),
		PerformanceFeeBps: uint64(fee),
		RecordedTotal:     recorded,
	}, nil
}

// RouterListings returns an exchange's router list ordered by position.
func (s *PostgresStore) RouterListings(ctx context.Context, exchange common.Address) ([]RouterListingRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT router, position, listed FROM router_listings
		WHERE exchange = $1 ORDER BY position;`, exchange.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query router listings: %w", err)
	}
	defer rows.Close()

	var result []RouterListingRecord
	for rows.Next() {
		var (
			rec    RouterListingRecord
			router string
		)
		if err := rows.Scan(&router, &rec.Position, &rec.Listed); err != nil {
			return nil, fmt.Errorf("failed to scan router listing: %w", err)
		}
		rec.Exchange = exchange
		rec.Router = common.HexToAddress(router)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SwapCallers returns the allow list entries of an exchange.
func (s *PostgresStore) SwapCallers(ctx context.Context, exchange common.Address) ([]SwapCallerRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT caller, allowed FROM swap_callers WHERE exchange = $1 ORDER BY caller;`, exchange.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query swap callers: %w", err)
	}
	defer rows.Close()

	var result []SwapCallerRecord
	for rows.Next() {
		var (
			rec    SwapCallerRecord
			caller string
		)
		if err := rows.Scan(&caller, &rec.Allowed); err != nil {
			return nil, fmt.Errorf("failed to scan swap caller: %w", err)
		}
		rec.Exchange = exchange
		rec.Caller = common.HexToAddress(caller)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Paths returns a router's paths ordered by index.
func (s *PostgresStore) Paths(ctx context.Context, router common.Address) ([]types.SwapPath, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT descriptor FROM swap_paths WHERE router = $1 ORDER BY path_index;`, router.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query swap paths: %w", err)
	}
	defer rows.Close()

	var result []types.SwapPath
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan swap path: %w", err)
		}
		var path types.SwapPath
		if err := json.Unmarshal(raw, &path); err != nil {
			return nil, fmt.Errorf("failed to unmarshal swap path: %w", err)
		}
		result = append(result, path)
	}
	return result, rows.Err()
}
