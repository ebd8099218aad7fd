package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

func pushTxIndex(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash, height uint64, pos int) error {
	data, err := tx.Encode()
	if err != nil {
		return fmt.Errorf("chain: encode tx %s: %w", txHash, err)
	}
	rec, err := encodeTxIndexRecord(&txIndexRecord{Height: height, Pos: pos, Data: data})
	if err != nil {
		return err
	}
	wb.Put(kv.BucketTxIndex, kv.HashKey(txHash), rec, true)
	return nil
}

func popTxIndex(wb *kv.WriteBatch, txHash cnbinary.Hash) {
	wb.Delete(kv.BucketTxIndex, kv.HashKey(txHash), true)
}

// HaveTransaction reports whether txHash has been accepted onto the main
// chain.
func (m *Manager) HaveTransaction(txHash cnbinary.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok, err := m.store.Get(kv.BucketTxIndex, kv.HashKey(txHash))
	return err == nil && ok
}

// FindTransaction resolves txHash to its containing block height and
// position within that block (0 is the coinbase).
func (m *Manager) FindTransaction(txHash cnbinary.Hash) (height uint64, pos int, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.getTxIndexRecordLocked(txHash)
	if !ok {
		return 0, 0, false
	}
	return rec.Height, rec.Pos, true
}

// GetTransaction resolves txHash to its full decoded transaction body, for
// callers (e.g. the pop algorithm, or a peer asking for block contents)
// that need more than the index position.
func (m *Manager) GetTransaction(txHash cnbinary.Hash) (*cnbinary.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(txHash)
}

func (m *Manager) getTxIndexRecordLocked(txHash cnbinary.Hash) (*txIndexRecord, bool) {
	data, ok, err := m.store.Get(kv.BucketTxIndex, kv.HashKey(txHash))
	if err != nil || !ok {
		return nil, false
	}
	rec, err := decodeTxIndexRecord(data)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (m *Manager) getTransactionLocked(txHash cnbinary.Hash) (*cnbinary.Transaction, bool) {
	rec, ok := m.getTxIndexRecordLocked(txHash)
	if !ok || rec.Data == nil {
		return nil, false
	}
	tx, _, err := cnbinary.DecodeTransaction(rec.Data)
	if err != nil {
		return nil, false
	}
	return tx, true
}
