package chain

import (
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

// isKeyImageSpent implements validation.KeyImageSpentChecker against
// persisted state.
func (m *Manager) isKeyImageSpent(ki cnbinary.KeyImage) bool {
	_, ok, err := m.store.Get(kv.BucketKeyImages, kv.HashKey(ki))
	return err == nil && ok
}

// HaveKeyImageAsSpent is the public query-surface form of isKeyImageSpent.
func (m *Manager) HaveKeyImageAsSpent(ki cnbinary.KeyImage) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isKeyImageSpent(ki)
}

func markKeyImageSpent(wb *kv.WriteBatch, ki cnbinary.KeyImage, height uint64) {
	wb.Put(kv.BucketKeyImages, kv.HashKey(ki), be8(height), true)
}

func unmarkKeyImageSpent(wb *kv.WriteBatch, ki cnbinary.KeyImage) {
	wb.Delete(kv.BucketKeyImages, kv.HashKey(ki), true)
}
