package router

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PathRegistry is an append-only list of swap paths with a key index.
// Once a path is assigned an index it keeps it for the router's lifetime.
type PathRegistry struct {
	paths []types.SwapPath
	byKey map[common.Hash]uint64
}

func newPathRegistry() *PathRegistry {
	return &PathRegistry{byKey: make(map[common.Hash]uint64)}
}

// pathKey hashes a venue tag and a route descriptor into a registry key.
func pathKey(venue types.Venue, parts ...[]byte) common.Hash {
	return crypto.Keccak256Hash(append([][]byte{[]byte(venue)}, parts...)...)
}

func addressBytes(addrs ...common.Address) []byte {
	out := make([]byte, 0, len(addrs)*common.AddressLength)
	for _, a := range addrs {
		out = append(out, a.Bytes()...)
	}
	return out
}

func hashBytes(hashes ...common.Hash) []byte {
	out := make([]byte, 0, len(hashes)*common.HashLength)
	for _, h := range hashes {
		out = append(out, h.Bytes()...)
	}
	return out
}

func intBytes(values ...int) []byte {
	out := make([]byte, 0, len(values)*common.HashLength)
	for _, v := range values {
		out = append(out, common.BigToHash(big.NewInt(int64(v))).Bytes()...)
	}
	return out
}

// add registers p unless its key is already present. It returns the index
// and whether a new entry was created.
func (r *PathRegistry) add(ctx context.Context, l *ledger.Ledger, p types.SwapPath) (uint64, bool) {
	if idx, ok := r.byKey[p.Key]; ok {
		return idx, false
	}
	idx := uint64(len(r.paths))
	p.Index = idx
	r.paths = append(r.paths, p)
	r.byKey[p.Key] = idx
	l.Record(ctx, func() {
		r.paths = r.paths[:idx]
		delete(r.byKey, p.Key)
	})
	return idx, true
}

func (r *PathRegistry) indexOf(key common.Hash) (uint64, error) {
	idx, ok := r.byKey[key]
	if !ok {
		return 0, fmt.Errorf("%w: key %s", types.ErrPathNotFound, key.Hex())
	}
	return idx, nil
}

func (r *PathRegistry) get(index uint64) (types.SwapPath, error) {
	if index >= uint64(len(r.paths)) {
		return types.SwapPath{}, fmt.Errorf("%w: %d (router holds %d paths)", types.ErrInvalidPathIndex, index, len(r.paths))
	}
	return r.paths[index], nil
}

func (r *PathRegistry) len() int {
	return len(r.paths)
}

func (r *PathRegistry) all() []types.SwapPath {
	return slices.Clone(r.paths)
}

// load replaces the registry with persisted paths, which must be dense.
func (r *PathRegistry) load(paths []types.SwapPath) error {
	r.paths = r.paths[:0]
	clear(r.byKey)
	for i, p := range paths {
		if p.Index != uint64(i) {
			return fmt.Errorf("persisted path index %d found at position %d", p.Index, i)
		}
		r.paths = append(r.paths, p)
		r.byKey[p.Key] = p.Index
	}
	return nil
}
