/*

Package ledger is the execution environment every vault component runs in.

It keeps the token balances of all participants and turns each external
operation into an atomic unit: component state changes register an undo entry
in the journal, durable writes are queued, and either the whole unit commits
(including one store transaction) or every change made inside it is rolled
back.

*/

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Write is a durable write flushed when the outermost unit commits.
type Write func(ctx context.Context, tx state.Tx) error

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type unitKey struct{}

// unit marks a context as executing inside an atomic unit of a ledger.
type unit struct {
	ledger   *Ledger
	readOnly bool
}

type snapshot struct {
	journal int
	writes  int
	touched int
}

// Ledger holds token balances and the undo journal of the running unit.
type Ledger struct {
	mu     sync.Mutex
	store  state.Store
	logger zerolog.Logger

	balances map[balanceKey]sdkmath.Int

	// state of the running outermost unit
	journal []func()
	writes  []Write
	touched []balanceKey
}

// New creates a ledger that flushes committed units to store.
func New(store state.Store) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger: store cannot be nil")
	}
	return &Ledger{
		store:    store,
		logger:   logger.GetForComponent("ledger"),
		balances: make(map[balanceKey]sdkmath.Int),
	}, nil
}

// Store returns the backing store.
func (l *Ledger) Store() state.Store {
	return l.store
}

// Restore loads every persisted balance. Call before any unit runs.
func (l *Ledger) Restore(ctx context.Context) error {
	records, err := l.store.Balances(ctx)
	if err != nil {
		return fmt.Errorf("ledger: failed to load balances: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		if rec.Amount.IsZero() {
			continue
		}
		l.balances[balanceKey{rec.Token, rec.Holder}] = rec.Amount
	}
	l.logger.Info().Int("balances", len(records)).Msg("Restored ledger balances")
	return nil
}

func (l *Ledger) unitOf(ctx context.Context) *unit {
	u, ok := ctx.Value(unitKey{}).(*unit)
	if !ok || u.ledger != l {
		return nil
	}
	return u
}

// InUnit reports whether ctx is executing inside an atomic unit or view of l.
func (l *Ledger) InUnit(ctx context.Context) bool {
	return l.unitOf(ctx) != nil
}

// Atomic runs fn as an atomic unit. The outermost unit serializes against
// every other unit and view; nested units (fn calling back into Atomic with
// the context it received) roll back only their own changes on error.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if u := l.unitOf(ctx); u != nil {
		if u.readOnly {
			return errors.New("ledger: atomic unit started inside a view")
		}
		snap := l.snapshot()
		if err := fn(ctx); err != nil {
			l.revertTo(snap)
			return err
		}
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			l.revertTo(snapshot{})
		}
	}()

	unitCtx := context.WithValue(ctx, unitKey{}, &unit{ledger: l})
	if err := fn(unitCtx); err != nil {
		return err
	}
	if err := l.flush(ctx); err != nil {
		l.logger.Error().Err(err).Msg("Failed to persist atomic unit, rolling back")
		return err
	}

	committed = true
	l.reset()
	return nil
}

// View runs fn with the ledger locked for reading. Inside a unit it runs
// directly.
func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.InUnit(ctx) {
		return fn(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(context.WithValue(ctx, unitKey{}, &unit{ledger: l, readOnly: true}))
}

// Record registers undo to run if the current unit fails. Component state
// must only be mutated inside a unit.
func (l *Ledger) Record(ctx context.Context, undo func()) {
	l.mustBeInUnit(ctx, "Record")
	l.journal = append(l.journal, undo)
}

// Persist queues w for the commit of the current unit.
func (l *Ledger) Persist(ctx context.Context, w Write) {
	l.mustBeInUnit(ctx, "Persist")
	l.writes = append(l.writes, w)
}

func (l *Ledger) mustBeInUnit(ctx context.Context, op string) {
	if u := l.unitOf(ctx); u == nil || u.readOnly {
		panic(fmt.Sprintf("ledger: %s called outside an atomic unit", op))
	}
}

func (l *Ledger) snapshot() snapshot {
	return snapshot{journal: len(l.journal), writes: len(l.writes), touched: len(l.touched)}
}

func (l *Ledger) revertTo(s snapshot) {
	for i := len(l.journal) - 1; i >= s.journal; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:s.journal]
	l.writes = l.writes[:s.writes]
	l.touched = l.touched[:s.touched]
}

func (l *Ledger) reset() {
	l.journal = l.journal[:0]
	l.writes = nil
	l.touched = l.touched[:0]
}

// flush writes touched balances and queued writes in one store transaction.
func (l *Ledger) flush(ctx context.Context) error {
	if len(l.writes) == 0 && len(l.touched) == 0 {
		return nil
	}

	seen := make(map[balanceKey]struct{}, len(l.touched))
	return l.store.Update(ctx, func(tx state.Tx) error {
		for _, key := range l.touched {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if err := tx.PutBalance(ctx, state.BalanceRecord{
				Token:  key.token,
				Holder: key.holder,
				Amount: l.balanceOf(key),
			}); err != nil {
				return err
			}
		}
		for _, w := range l.writes {
			if err := w(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) balanceOf(key balanceKey) sdkmath.Int {
	if amount, ok := l.balances[key]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

// setBalance journals the previous value of key.
func (l *Ledger) setBalance(ctx context.Context, key balanceKey, amount sdkmath.Int) {
	prev, existed := l.balances[key]
	if amount.IsZero() {
		delete(l.balances, key)
	} else {
		l.balances[key] = amount
	}
	l.touched = append(l.touched, key)
	l.Record(ctx, func() {
		if existed {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
}

// BalanceOf returns holder's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, holder common.Address) sdkmath.Int {
	var amount sdkmath.Int
	_ = l.View(ctx, func(context.Context) error {
		amount = l.balanceOf(balanceKey{token, holder})
		return nil
	})
	return amount
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount sdkmath.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.Atomic(ctx, func(ctx context.Context) error {
		fromKey := balanceKey{token, from}
		balance := l.balanceOf(fromKey)
		if balance.LT(amount) {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s",
				types.ErrInsufficientBalance, from.Hex(), balance, token.Hex(), amount)
		}
		if amount.IsZero() || from == to {
			return nil
		}
		toKey := balanceKey{token, to}
		l.setBalance(ctx, fromKey, balance.Sub(amount))
		l.setBalance(ctx, toKey, l.balanceOf(toKey).Add(amount))
		return nil
	})
}

// Mint credits amount of token to holder. Only simulated protocols and
// seeding code create tokens.
func (l *Ledger) Mint(ctx context.Context, token, to common.Address, amount sdkmath.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.Atomic(ctx, func(ctx context.Context) error {
		key := balanceKey{token, to}
		l.setBalance(ctx, key, l.balanceOf(key).Add(amount))
		return nil
	})
}

// Burn debits amount of token from holder.
func (l *Ledger) Burn(ctx context.Context, token, from common.Address, amount sdkmath.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.Atomic(ctx, func(ctx context.Context) error {
		key := balanceKey{token, from}
		balance := l.balanceOf(key)
		if balance.LT(amount) {
			return fmt.Errorf("%w: cannot burn %s from %s", types.ErrInsufficientBalance, amount, from.Hex())
		}
		l.setBalance(ctx, key, balance.Sub(amount))
		return nil
	})
}

func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errors.Join(types.ErrInvalidArgument, errors.New("amount must be non-negative"))
	}
	return nil
}
