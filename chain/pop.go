package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/pool"
	"go.uber.org/zap"
)

// popTipLocked undoes the current tip block (§4.2.2): every transaction's
// inputs and outputs are unwound in reverse order, popped transactions are
// returned to the pool, and the block/height/timestamp records are deleted.
// Callers must hold m.mu for writing. Returns the popped block's full entry
// (callers needing only the block may read .Block off the result).
func (m *Manager) popTipLocked() (*BlockEntry, error) {
	if m.currentHeight == 0 {
		return nil, fmt.Errorf("chain: cannot pop an empty chain")
	}
	height := m.currentHeight - 1
	entry, ok, err := m.getBlockEntryByHash(m.tipHash)
	if err != nil {
		return nil, fmt.Errorf("chain: load tip entry: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("chain: tip block %s missing from store", m.tipHash)
	}
	block := entry.Block

	txs := make([]*cnbinary.Transaction, len(entry.TxHashes))
	for i, txHash := range entry.TxHashes {
		tx, ok := m.getTransactionLocked(txHash)
		if !ok {
			return nil, fmt.Errorf("chain: transaction body %s not retained; cannot undo", txHash)
		}
		txs[i] = tx
	}

	wb := kv.NewWriteBatch()

	// Step 1/2: undo each transaction's inputs and outputs in reverse order.
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		txHash := entry.TxHashes[i]
		if err := m.popInputs(wb, tx); err != nil {
			return nil, fmt.Errorf("chain: pop inputs for tx %s: %w", txHash, err)
		}
		if err := m.popTransactionOutputs(wb, tx, txHash); err != nil {
			return nil, fmt.Errorf("chain: pop outputs for tx %s: %w", txHash, err)
		}
		if err := m.popPaymentID(wb, tx, txHash); err != nil {
			return nil, fmt.Errorf("chain: pop payment id for tx %s: %w", txHash, err)
		}
		popTxIndex(wb, txHash)
	}

	// Step 3: undo the coinbase's outputs (coinbases carry no inputs).
	baseHash, err := block.BaseTransaction.Hash()
	if err != nil {
		return nil, fmt.Errorf("chain: hash coinbase: %w", err)
	}
	if err := m.popTransactionOutputs(wb, &block.BaseTransaction, baseHash); err != nil {
		return nil, fmt.Errorf("chain: pop coinbase outputs: %w", err)
	}
	if err := m.popPaymentID(wb, &block.BaseTransaction, baseHash); err != nil {
		return nil, fmt.Errorf("chain: pop coinbase payment id: %w", err)
	}
	popTxIndex(wb, baseHash)

	// Step 4: remove the block record itself and rewind the tip.
	wb.Delete(kv.BucketBlocks, kv.HashKey(m.tipHash), true)
	wb.Delete(kv.BucketHeightIndex, heightKey(height), true)
	wb.Delete(kv.BucketTimestamps, heightKey(height), true)
	popGeneratedTxCount(wb, height)

	if err := m.store.Commit(wb); err != nil {
		return nil, fmt.Errorf("chain: commit pop: %w", err)
	}
	m.blockCache.Remove(m.tipHash)

	for i, tx := range txs {
		txHash := entry.TxHashes[i]
		data, encErr := tx.Encode()
		if encErr != nil {
			data = nil
		}
		m.pool.AddTx(txHash, &pool.Entry{Tx: tx, Data: data, Fee: entry.Fees[i]}, true)
	}

	if height == 0 {
		m.currentHeight = 0
		m.tipHash = cnbinary.Hash{}
		m.tipCumulativeDifficulty = 0
		m.tipAlreadyGeneratedCoins = 0
		m.currentBlockCumulSzLimit = 0
		return entry, nil
	}
	prevEntry, ok, err := m.getBlockEntryByHeight(height - 1)
	if err != nil {
		return nil, fmt.Errorf("chain: load new tip entry: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("chain: missing block entry at height %d after pop", height-1)
	}
	prevHash, err := prevEntry.Block.BlockHash()
	if err != nil {
		return nil, err
	}
	m.currentHeight = height
	m.tipHash = prevHash
	m.tipCumulativeDifficulty = prevEntry.CumulativeDifficulty
	m.tipAlreadyGeneratedCoins = prevEntry.AlreadyGeneratedCoins
	m.currentBlockCumulSzLimit = m.computeSizeLimit(prevEntry.Block.MajorVersion, prevEntry.CumulativeSize)
	return entry, nil
}

// RollbackTo pops blocks off the main chain tip until height is reached,
// returning the popped blocks tip-first. Used directly by operators
// recovering from a detected consistency break (§7) and internally by the
// reorg coordinator (§4.3 reorg protocol step 1).
func (m *Manager) RollbackTo(height uint64) ([]*cnbinary.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.rollbackToLocked(height)
	blocks := make([]*cnbinary.Block, len(entries))
	for i, e := range entries {
		blocks[i] = e.Block
	}
	if m.logger != nil {
		if err != nil {
			m.logger.Error("rollback failed", zap.Uint64("targetHeight", height), zap.Int("popped", len(entries)), zap.Error(err))
		} else {
			m.logger.Info("rollback", zap.Uint64("targetHeight", height), zap.Int("popped", len(entries)))
		}
	}
	return blocks, err
}

func (m *Manager) rollbackToLocked(height uint64) ([]*BlockEntry, error) {
	var popped []*BlockEntry
	for m.currentHeight > height+1 {
		entry, err := m.popTipLocked()
		if err != nil {
			return popped, err
		}
		popped = append(popped, entry)
	}
	return popped, nil
}
