package simulations

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yieldrouter/internal/ledger"
)

// setAmount writes m[k] = v and journals the previous value with l, so a
// failed unit restores the simulated protocol together with the balances.
func setAmount[K comparable](ctx context.Context, l *ledger.Ledger, m map[K]sdkmath.Int, k K, v sdkmath.Int) {
	prev, existed := m[k]
	m[k] = v
	l.Record(ctx, func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func amountOf[K comparable](m map[K]sdkmath.Int, k K) sdkmath.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}
