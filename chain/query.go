package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
)

// GetCurrentHeight is an alias for Height, named to match the query-surface
// vocabulary used by callers that ask "how tall is the chain" rather than
// "what is its height field" (§4.2).
func (m *Manager) GetCurrentHeight() uint64 {
	return m.Height()
}

// GetTailID returns the hash of the current tip block.
func (m *Manager) GetTailID() cnbinary.Hash {
	return m.BestHash()
}

// GetCheckpointHeights exposes the configured checkpoint collaborator's
// pinned heights (§6 "get_heights()"), for callers that want to display or
// cross-check them without reaching into the checkpoints package directly.
func (m *Manager) GetCheckpointHeights() []uint64 {
	return m.checkpoints.GetHeights()
}

// HaveBlock reports whether hash is known, on the main chain or as a
// tracked alternative block.
func (m *Manager) HaveBlock(hash cnbinary.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok, err := m.getBlockEntryByHash(hash); err == nil && ok {
		return true
	}
	return m.altChain.Has(hash)
}

// GetBlockByHash returns the main-chain block identified by hash.
func (m *Manager) GetBlockByHash(hash cnbinary.Hash) (*cnbinary.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok, err := m.getBlockEntryByHash(hash)
	if err != nil || !ok {
		return nil, false
	}
	return e.Block, true
}

// GetBlockByHeight returns the main-chain block at height.
func (m *Manager) GetBlockByHeight(height uint64) (*cnbinary.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok, err := m.getBlockEntryByHeight(height)
	if err != nil || !ok {
		return nil, false
	}
	return e.Block, true
}

// GetCoinsInCirculation returns the total amount minted so far on the main
// chain, mirroring already_generated_coins tracked on the tip entry.
func (m *Manager) GetCoinsInCirculation() cnbinary.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tipAlreadyGeneratedCoins
}

// GetMultisigOutputByGlobalIndex resolves a multisignature output the same
// way the validation kernel resolves one internally when checking a
// multisignature input, for wallets that need to display or select one.
func (m *Manager) GetMultisigOutputByGlobalIndex(amount cnbinary.Amount, globalIndex uint32) (*cnbinary.MultisignatureOutput, uint64, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupMultisigOutput(amount, globalIndex)
}

// GetBlockIds returns up to count main-chain block hashes starting at
// height start, oldest first.
func (m *Manager) GetBlockIds(start, count uint64) ([]cnbinary.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if start >= m.currentHeight {
		return nil, nil
	}
	if start+count > m.currentHeight {
		count = m.currentHeight - start
	}
	ids := make([]cnbinary.Hash, 0, count)
	for h := start; h < start+count; h++ {
		e, ok, err := m.getBlockEntryByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("chain: load block at height %d: %w", h, err)
		}
		if !ok {
			return nil, fmt.Errorf("chain: missing block entry at height %d", h)
		}
		hash, err := e.Block.BlockHash()
		if err != nil {
			return nil, err
		}
		ids = append(ids, hash)
	}
	return ids, nil
}
