package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

// ResetAndSetGenesis wipes any existing chain state and installs genesis as
// height 0. genesis must be a coinbase-only block (no non-coinbase
// transactions); its reward and difficulty are taken at face value rather
// than computed, matching the corpus's CreateGenesisBlock/loadFromStorage
// bootstrap path.
func (m *Manager) ResetAndSetGenesis(genesis *cnbinary.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, err := genesis.BlockHash()
	if err != nil {
		return fmt.Errorf("chain: hash genesis block: %w", err)
	}

	var coinbaseSum uint64
	for _, out := range genesis.BaseTransaction.Outputs {
		coinbaseSum += out.Amount
	}

	entry := &BlockEntry{
		Height:                0,
		Block:                 genesis,
		CumulativeDifficulty:  1,
		AlreadyGeneratedCoins: coinbaseSum,
		CumulativeSize:        0,
		TxHashes:              nil,
	}

	wb := kv.NewWriteBatch()
	data, err := encodeBlockEntry(entry)
	if err != nil {
		return fmt.Errorf("chain: encode genesis entry: %w", err)
	}
	wb.Put(kv.BucketBlocks, kv.HashKey(hash), data, false)
	wb.Put(kv.BucketHeightIndex, heightKey(0), hash[:], false)
	wb.Put(kv.BucketTimestamps, heightKey(0), be8(genesis.Timestamp), false)

	baseHash, err := genesis.BaseTransaction.Hash()
	if err != nil {
		return fmt.Errorf("chain: hash genesis coinbase: %w", err)
	}
	if err := m.pushCoinbaseOutputs(wb, &genesis.BaseTransaction, baseHash, 0); err != nil {
		return fmt.Errorf("chain: index genesis coinbase outputs: %w", err)
	}
	if err := pushTxIndex(wb, &genesis.BaseTransaction, baseHash, 0, 0); err != nil {
		return fmt.Errorf("chain: index genesis coinbase tx: %w", err)
	}
	if err := m.pushGeneratedTxCount(wb, 0, 1); err != nil {
		return fmt.Errorf("chain: index genesis transaction count: %w", err)
	}

	if err := m.store.Commit(wb); err != nil {
		return fmt.Errorf("chain: commit genesis: %w", err)
	}

	m.blockCache.Add(hash, entry)
	m.currentHeight = 1
	m.tipHash = hash
	m.tipCumulativeDifficulty = 1
	m.tipAlreadyGeneratedCoins = coinbaseSum
	m.currentBlockCumulSzLimit = m.currency.NextBlockGrantedSizeLimit(0)
	return nil
}

// HasGenesis reports whether the chain has been initialized.
func (m *Manager) HasGenesis() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentHeight > 0
}
