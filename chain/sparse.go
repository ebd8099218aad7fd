package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
)

// BuildSparseChain samples main-chain block ids back from the current tip to
// genesis at geometrically increasing strides (§4.2), so a peer can locate
// the fork point in O(log height) round trips instead of walking every
// block. The result always ends with the genesis hash.
func (m *Manager) BuildSparseChain() ([]cnbinary.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentHeight == 0 {
		return nil, fmt.Errorf("chain: no genesis block yet")
	}
	return m.buildSparseChainFromLocked(m.currentHeight - 1)
}

// BuildSparseChainFrom is BuildSparseChain anchored at an explicit height
// instead of the current tip, for callers answering on behalf of a
// specific historical view.
func (m *Manager) BuildSparseChainFrom(fromHeight uint64) ([]cnbinary.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if fromHeight >= m.currentHeight {
		return nil, fmt.Errorf("chain: height %d is beyond the current tip", fromHeight)
	}
	return m.buildSparseChainFromLocked(fromHeight)
}

func (m *Manager) buildSparseChainFromLocked(from uint64) ([]cnbinary.Hash, error) {
	heights := []uint64{from}
	// Each stride is subtracted from the original tip height, not from the
	// running value, so offsets are 0, 1, 2, 4, 8, … (§8 invariant 6):
	// from, from-1, from-2, from-4, from-8, ..., 0.
	for offset := uint64(1); heights[len(heights)-1] != 0; offset *= 2 {
		var h uint64
		if offset < from {
			h = from - offset
		}
		heights = append(heights, h)
	}

	ids := make([]cnbinary.Hash, 0, len(heights))
	for _, height := range heights {
		e, ok, err := m.getBlockEntryByHeight(height)
		if err != nil {
			return nil, fmt.Errorf("chain: load block at height %d: %w", height, err)
		}
		if !ok {
			return nil, fmt.Errorf("chain: missing block entry at height %d", height)
		}
		hash, err := e.Block.BlockHash()
		if err != nil {
			return nil, err
		}
		ids = append(ids, hash)
	}
	return ids, nil
}

// FindBlockchainSupplement scans a peer's sparse chain (ordered tip-first,
// terminated by genesis) and returns the first id this node also has on its
// main chain — the newest common point the two chains agree on. Since
// genesis is always known locally, this always succeeds for a well-formed
// remoteIds.
func (m *Manager) FindBlockchainSupplement(remoteIds []cnbinary.Hash) (cnbinary.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range remoteIds {
		if _, ok, err := m.getBlockEntryByHash(id); err == nil && ok {
			return id, true
		}
	}
	return cnbinary.Hash{}, false
}
