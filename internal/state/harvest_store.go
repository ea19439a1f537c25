/*

Harvest receipts and the persistent harvest round counter. The counter lives
in the database so round numbers continue across restarts.

*/

package state

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

func (t *pgTx) PutHarvest(ctx context.Context, receipt types.HarvestReceipt) error {
	perStrategyJSON, err := json.Marshal(receipt.PerStrategy)
	if err != nil {
		return fmt.Errorf("failed to marshal per_strategy: %w", err)
	}

	indices := make([]int64, len(receipt.StrategyIndices))
	for i, idx := range receipt.StrategyIndices {
		indices[i] = int64(idx)
	}

	query := `
		INSERT INTO harvest_receipts (
			receipt_id, round, harvest_timestamp, controller, strategy_indices, per_strategy,
			proceeds, fee, net, total_assets_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	if _, err := t.tx.ExecContext(ctx, query,
		receipt.ID, receipt.Round, receipt.Timestamp, receipt.Controller.Hex(),
		pq.Array(indices), perStrategyJSON,
		receipt.Proceeds.String(), receipt.Fee.String(), receipt.Net.String(), receipt.TotalAssetsAfter.String(),
	); err != nil {
		return fmt.Errorf("failed to save harvest receipt: %w", err)
	}

	updateQuery := `
		UPDATE harvest_counter
		SET current_round = GREATEST(current_round, $1),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`
	if _, err := t.tx.ExecContext(ctx, updateQuery, receipt.Round); err != nil {
		return fmt.Errorf("failed to advance harvest round: %w", err)
	}

	log.Debug().
		Str("receipt_id", receipt.ID).
		Int("round", receipt.Round).
		Str("proceeds", receipt.Proceeds.String()).
		Msg("Harvest receipt staged")
	return nil
}

// RecentHarvests returns up to limit receipts, newest first.
func (s *PostgresStore) RecentHarvests(ctx context.Context, limit int) ([]types.HarvestReceipt, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT receipt_id, round, harvest_timestamp, controller, strategy_indices, per_strategy,
		       proceeds::TEXT, fee::TEXT, net::TEXT, total_assets_after::TEXT
		FROM harvest_receipts
		ORDER BY harvest_timestamp DESC, round DESC
		LIMIT $1;
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent harvests: %w", err)
	}
	defer rows.Close()

	var receipts []types.HarvestReceipt
	for rows.Next() {
		var (
			r                          types.HarvestReceipt
			controller                 string
			indices                    []int64
			perStrategyJSON            []byte
			proceeds, fee, net, assets string
		)
		if err := rows.Scan(
			&r.ID, &r.Round, &r.Timestamp, &controller, pq.Array(&indices), &perStrategyJSON,
			&proceeds, &fee, &net, &assets,
		); err != nil {
			return nil, fmt.Errorf("failed to scan harvest receipt: %w", err)
		}
		r.Controller = common.HexToAddress(controller)
		for _, idx := range indices {
			r.StrategyIndices = append(r.StrategyIndices, int(idx))
		}
		if err := json.Unmarshal(perStrategyJSON, &r.PerStrategy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal per_strategy: %w", err)
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  *sdkmath.Int
		}{
			{"proceeds", proceeds, &r.Proceeds},
			{"fee", fee, &r.Fee},
			{"net", net, &r.Net},
			{"total_assets_after", assets, &r.TotalAssetsAfter},
		} {
			v, err := parseAmount(f.name, f.raw)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// HarvestTotals sums every stored receipt.
func (s *PostgresStore) HarvestTotals(ctx context.Context) (HarvestTotals, error) {
	if s == nil || s.db == nil {
		return HarvestTotals{}, ErrNotInitialized
	}

	var (
		totals         HarvestTotals
		proceeds, fees string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(round), 0), COALESCE(SUM(proceeds), 0)::TEXT, COALESCE(SUM(fee), 0)::TEXT
		FROM harvest_receipts;`).Scan(&totals.Count, &totals.LastRound, &proceeds, &fees)
	if err != nil {
		return HarvestTotals{}, fmt.Errorf("failed to aggregate harvests: %w", err)
	}
	if totals.Proceeds, err = parseAmount("proceeds", proceeds); err != nil {
		return HarvestTotals{}, err
	}
	if totals.Fees, err = parseAmount("fee", fees); err != nil {
		return HarvestTotals{}, err
	}
	return totals, nil
}

// CurrentHarvestRound retrieves the current round number from the database.
func (s *PostgresStore) CurrentHarvestRound(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	var round int
	if err := s.db.QueryRowContext(ctx, `SELECT current_round FROM harvest_counter WHERE id = 1;`).Scan(&round); err != nil {
		return 0, fmt.Errorf("failed to get current harvest round: %w", err)
	}
	return round, nil
}

// ResetHarvestRound resets the counter (for maintenance).
func (s *PostgresStore) ResetHarvestRound(ctx context.Context, round int) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if round < 0 {
		return fmt.Errorf("harvest round cannot be negative: %d", round)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE harvest_counter SET current_round = $1, updated_at = CURRENT_TIMESTAMP WHERE id = 1;`, round)
	if err != nil {
		return fmt.Errorf("failed to reset harvest round to %d: %w", round, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting harvest round")
	}

	log.Warn().Int("round", round).Msg("Reset harvest round counter")
	return nil
}
