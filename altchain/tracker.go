// Package altchain is the alternative-chain tracker (§4.3): an in-memory
// map of blocks that fork off the main chain, plus the Poisson sanity gate
// consulted before a reorg is allowed to proceed. It holds no reference
// back to the chain manager — §9's "cyclic references" note resolves the
// tracker/parent-pointer cycle by keying everything off hashes rather than
// owning back-pointers, and the chain-manager/tracker cycle by keeping this
// package a pure data structure the manager drives, never the reverse.
package altchain

import (
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/debug"
)

// Entry is one block sitting on an alternative branch.
type Entry struct {
	Block                *cnbinary.Block
	Height               uint64
	CumulativeDifficulty uint64
}

// Tracker stores alt-chain entries keyed by block hash, with a
// parent-to-children index for walking subchains forward.
type Tracker struct {
	mu       debug.Mutex
	byHash   map[cnbinary.Hash]*Entry
	children map[cnbinary.Hash][]cnbinary.Hash
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		mu:       debug.NewMutex("altchain.Tracker"),
		byHash:   make(map[cnbinary.Hash]*Entry),
		children: make(map[cnbinary.Hash][]cnbinary.Hash),
	}
}

// Put records a new alt block. parentCumulativeDifficulty is the
// cumulative difficulty of the block's parent (whether that parent sits on
// the main chain or is itself an alt entry); difficulty is this block's own
// mining difficulty.
func (t *Tracker) Put(hash cnbinary.Hash, block *cnbinary.Block, height uint64, parentCumulativeDifficulty, difficulty uint64) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry{Block: block, Height: height, CumulativeDifficulty: parentCumulativeDifficulty + difficulty}
	t.byHash[hash] = e
	t.children[block.PreviousBlockHash] = append(t.children[block.PreviousBlockHash], hash)
	return e
}

// Get looks up an alt entry by hash.
func (t *Tracker) Get(hash cnbinary.Hash) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byHash[hash]
	return e, ok
}

// Has reports whether hash is tracked as an alt block.
func (t *Tracker) Has(hash cnbinary.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byHash[hash]
	return ok
}

// Children returns the hashes of alt blocks whose previous-block-hash is
// parent.
func (t *Tracker) Children(parent cnbinary.Hash) []cnbinary.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cnbinary.Hash(nil), t.children[parent]...)
}

// Remove deletes a single alt entry.
func (t *Tracker) Remove(hash cnbinary.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(hash)
}

func (t *Tracker) removeLocked(hash cnbinary.Hash) {
	e, ok := t.byHash[hash]
	if !ok {
		return
	}
	delete(t.byHash, hash)
	siblings := t.children[e.Block.PreviousBlockHash]
	for i, h := range siblings {
		if h == hash {
			t.children[e.Block.PreviousBlockHash] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	delete(t.children, hash)
}

// Prune removes every hash in hashes, used after a reorg consumes a branch
// (§4.3 reorg protocol step 4) or after a failed reorg discards one.
func (t *Tracker) Prune(hashes []cnbinary.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range hashes {
		t.removeLocked(h)
	}
}

// BuildSubchain walks previousBlockHash pointers from tip back through
// tracked alt entries until it reaches a hash no longer in the tracker —
// the common ancestor, assumed to be on the main chain. Returns the
// subchain in root-to-tip order (index 0 is the block directly above the
// common ancestor) along with the common ancestor hash.
func (t *Tracker) BuildSubchain(tip cnbinary.Hash) (subchain []cnbinary.Hash, commonAncestor cnbinary.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := tip
	for {
		e, ok := t.byHash[cur]
		if !ok {
			commonAncestor = cur
			break
		}
		subchain = append(subchain, cur)
		cur = e.Block.PreviousBlockHash
	}
	// subchain was collected tip-to-root; reverse to root-to-tip.
	for i, j := 0, len(subchain)-1; i < j; i, j = i+1, j-1 {
		subchain[i], subchain[j] = subchain[j], subchain[i]
	}
	return subchain, commonAncestor
}
