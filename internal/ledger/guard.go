package ledger

import "github.com/elys-network/yieldrouter/internal/types"

// Guard rejects re-entry into a component while one of its guarded entry
// points is running. Units are serialized by the ledger, so a set flag can
// only mean a call arriving from inside the running operation.
type Guard struct {
	entered bool
}

// Enter marks the guard; the returned release must be deferred.
func (g *Guard) Enter() (func(), error) {
	if g.entered {
		return nil, types.ErrReentrantCall
	}
	g.entered = true
	return func() { g.entered = false }, nil
}
