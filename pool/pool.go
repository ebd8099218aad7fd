// Package pool is the Pool collaborator (§6): a minimal transaction
// memory pool trimmed to the take_tx/add_tx contract the chain manager
// needs. Fee-rate priority, eviction policy and expiry are Non-goals — see
// the corpus's mempool.go for the full policy this is trimmed from.
package pool

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/debug"
)

// Entry is a pooled transaction together with its serialized form and fee,
// computed once on admission so the chain manager never has to recompute it.
type Entry struct {
	Tx   *cnbinary.Transaction
	Data []byte
	Fee  uint64
}

// Pool stores unconfirmed transactions keyed by transaction hash.
type Pool struct {
	mu      debug.Mutex
	entries map[cnbinary.Hash]*Entry
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{mu: debug.NewMutex("pool.Pool"), entries: make(map[cnbinary.Hash]*Entry)}
}

// AddTx admits tx into the pool, keyed by hash. keepedByBlock is accepted
// for parity with the corpus's restore-on-pop-failure call sites; this pool
// does not distinguish the two origins since it carries no eviction policy
// that would treat them differently.
func (p *Pool) AddTx(hash cnbinary.Hash, e *Entry, keepedByBlock bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[hash] = e
}

// TakeTx removes and returns the pooled transaction for hash. It is
// idempotent after the first successful call: a second call for the same
// hash returns ok=false.
func (p *Pool) TakeTx(hash cnbinary.Hash) (tx *cnbinary.Transaction, size int, fee uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, exists := p.entries[hash]
	if !exists {
		return nil, 0, 0, false
	}
	delete(p.entries, hash)
	return e.Tx, len(e.Data), e.Fee, true
}

// Has reports whether hash is currently pooled.
func (p *Pool) Has(hash cnbinary.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.entries[hash]
	return exists
}

// Size returns the number of pooled transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Restore re-admits a transaction taken out by TakeTx, for use when a block
// append fails partway through and previously-taken transactions must go
// back into the pool (§4.2.1 step 14).
func (p *Pool) Restore(hash cnbinary.Hash, e *Entry) error {
	if e == nil || e.Tx == nil {
		return fmt.Errorf("pool: cannot restore nil entry for %s", hash)
	}
	p.AddTx(hash, e, true)
	return nil
}
