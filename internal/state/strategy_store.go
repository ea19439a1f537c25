package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
)

// strategyRoutes is the JSONB layout of the strategies.routes column.
type strategyRoutes struct {
	Rewards  map[common.Address]types.Route `json:"rewards,omitempty"`
	Deposit  *types.Route                   `json:"deposit,omitempty"`
	Withdraw *types.Route                   `json:"withdraw,omitempty"`
}

func (t *pgTx) PutStrategy(ctx context.Context, rec StrategyRecord) error {
	routesJSON, err := json.Marshal(strategyRoutes{
		Rewards:  rec.RewardRoutes,
		Deposit:  rec.DepositRoute,
		Withdraw: rec.WithdrawRoute,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal strategy routes: %w", err)
	}

	rewardTokens := make([]string, len(rec.RewardTokens))
	for i, token := range rec.RewardTokens {
		rewardTokens[i] = token.Hex()
	}

	principal := "0"
	if !rec.Principal.IsNil() {
		principal = rec.Principal.String()
	}

	const query = `
		INSERT INTO strategies (
			address, name, status, principal, deposit_slippage_bps, withdraw_slippage_bps,
			reward_tokens, routes, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name, status = EXCLUDED.status, principal = EXCLUDED.principal,
			deposit_slippage_bps = EXCLUDED.deposit_slippage_bps,
			withdraw_slippage_bps = EXCLUDED.withdraw_slippage_bps,
			reward_tokens = EXCLUDED.reward_tokens, routes = EXCLUDED.routes,
			updated_at = CURRENT_TIMESTAMP;`

	if _, err := t.tx.ExecContext(ctx, query,
		rec.Address.Hex(), rec.Name, rec.Status.String(), principal,
		int64(rec.DepositSlippageBps), int64(rec.WithdrawSlippageBps),
		pq.Array(rewardTokens), routesJSON,
	); err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", rec.Name, err)
	}
	return nil
}

// Strategy returns ErrNotFound if the strategy never persisted state.
func (s *PostgresStore) Strategy(ctx context.Context, address common.Address) (StrategyRecord, error) {
	if s == nil || s.db == nil {
		return StrategyRecord{}, ErrNotInitialized
	}

	var (
		rec                     StrategyRecord
		status, principal       string
		depositBps, withdrawBps int64
		rewardTokens            []string
		routesJSON              []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, status, principal::TEXT, deposit_slippage_bps, withdraw_slippage_bps, reward_tokens, routes
		FROM strategies WHERE address = $1;`, address.Hex(),
	).Scan(&rec.Name, &status, &principal, &depositBps, &withdrawBps, pq.Array(&rewardTokens), &routesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return StrategyRecord{}, ErrNotFound
	}
	if err != nil {
		return StrategyRecord{}, fmt.Errorf("failed to query strategy: %w", err)
	}

	rec.Address = address
	if rec.Status, err = types.ParseStrategyStatus(status); err != nil {
		return StrategyRecord{}, err
	}
	if rec.Principal, err = parseAmount("principal", principal); err != nil {
		return StrategyRecord{}, err
	}
	rec.DepositSlippageBps = uint64(depositBps)
	rec.WithdrawSlippageBps = uint64(withdrawBps)
	for _, token := range rewardTokens {
		rec.RewardTokens = append(rec.RewardTokens, common.HexToAddress(token))
	}

	var routes strategyRoutes
	if err := json.Unmarshal(routesJSON, &routes); err != nil {
		return StrategyRecord{}, fmt.Errorf("failed to unmarshal strategy routes: %w", err)
	}
	rec.RewardRoutes = routes.Rewards
	rec.DepositRoute = routes.Deposit
	rec.WithdrawRoute = routes.Withdraw
	return rec, nil
}
