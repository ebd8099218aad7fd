package chain

import "github.com/aivve/karbowanec/kv"

// cumulativeTxCountAt reads the running transaction count (coinbases
// included) through and including height, from the g/<height> index (§6).
func (m *Manager) cumulativeTxCountAt(height uint64) (uint64, error) {
	data, ok, err := m.store.Get(kv.BucketGeneratedTxs, heightKey(height))
	if err != nil || !ok {
		return 0, err
	}
	return decodeBE8(data)
}

// pushGeneratedTxCount records the cumulative transaction count through
// height, given txCountInBlock new transactions (coinbase plus any
// non-coinbase transactions) just appended at that height.
func (m *Manager) pushGeneratedTxCount(wb *kv.WriteBatch, height uint64, txCountInBlock int) error {
	var prev uint64
	if height > 0 {
		var err error
		prev, err = m.cumulativeTxCountAt(height - 1)
		if err != nil {
			return err
		}
	}
	wb.Put(kv.BucketGeneratedTxs, heightKey(height), be8(prev+uint64(txCountInBlock)), true)
	return nil
}

func popGeneratedTxCount(wb *kv.WriteBatch, height uint64) {
	wb.Delete(kv.BucketGeneratedTxs, heightKey(height), true)
}

// GetTransactionCount returns the total number of transactions, coinbases
// included, carried by the main chain through the current tip.
func (m *Manager) GetTransactionCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentHeight == 0 {
		return 0, nil
	}
	return m.cumulativeTxCountAt(m.currentHeight - 1)
}
