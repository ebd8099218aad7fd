package chain

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aivve/karbowanec/altchain"
	"github.com/aivve/karbowanec/checkpoints"
	"github.com/aivve/karbowanec/chainmsg"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
	"github.com/aivve/karbowanec/debug"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/pool"
	"github.com/aivve/karbowanec/validation"
)

const blockCacheSize = 4096

// Manager is the canonical chain manager (§4.2): single-writer/multi-reader
// owner of the persistent chain state, grounded on the corpus's Chain
// struct (sync.RWMutex over an in-memory tip plus a KV-backed store). mu
// uses debug.RWMutex rather than sync.RWMutex so contention on the single
// chain-wide lock can be traced without code changes at the callsites.
type Manager struct {
	mu debug.RWMutex

	store       *kv.Store
	pool        *pool.Pool
	kernel      *validation.Kernel
	currency    *currency.Config
	checkpoints *checkpoints.Set
	bus         *chainmsg.Bus
	logger      *zap.Logger
	altChain    *altchain.Tracker

	blockCache *lru.Cache[cnbinary.Hash, *BlockEntry]

	// In-memory tip state, rebuilt from the store on open.
	currentHeight            uint64 // number of blocks including genesis
	tipHash                  cnbinary.Hash
	tipCumulativeDifficulty  uint64
	tipAlreadyGeneratedCoins uint64
	currentBlockCumulSzLimit uint64
}

// New constructs a chain manager over an already-open store. It does not
// load any genesis block; callers must call ResetAndSetGenesis on a fresh
// store before the manager is otherwise usable.
func New(store *kv.Store, p *pool.Pool, kernel *validation.Kernel, cfg *currency.Config, cps *checkpoints.Set, bus *chainmsg.Bus, logger *zap.Logger) (*Manager, error) {
	cache, err := lru.New[cnbinary.Hash, *BlockEntry](blockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chain: create block cache: %w", err)
	}
	m := &Manager{
		mu:          debug.NewRWMutex("chain.Manager"),
		store:       store,
		pool:        p,
		kernel:      kernel,
		currency:    cfg,
		checkpoints: cps,
		bus:         bus,
		logger:      logger,
		altChain:    altchain.New(),
		blockCache:  cache,
	}
	if err := m.loadTip(); err != nil {
		return nil, err
	}
	return m, nil
}

// loadTip rebuilds the in-memory tip pointers from the persisted height
// index, scanning to the highest stored height.
func (m *Manager) loadTip() error {
	var maxHeight uint64
	found := false
	err := m.store.CursorReverse(kv.BucketHeightIndex, nil, nil, func(key, value []byte) bool {
		h, _, err := kv.DecodeVarintKey(key)
		if err != nil {
			return false
		}
		maxHeight = h
		found = true
		return false
	})
	if err != nil {
		return fmt.Errorf("chain: scan height index: %w", err)
	}
	if !found {
		return nil
	}
	entry, ok, err := m.getBlockEntryByHeight(maxHeight)
	if err != nil {
		return fmt.Errorf("chain: load tip entry: %w", err)
	}
	if !ok {
		return fmt.Errorf("chain: height index points at missing block entry for height %d", maxHeight)
	}
	hash, err := entry.Block.BlockHash()
	if err != nil {
		return fmt.Errorf("chain: hash tip block: %w", err)
	}
	m.currentHeight = maxHeight + 1
	m.tipHash = hash
	m.tipCumulativeDifficulty = entry.CumulativeDifficulty
	m.tipAlreadyGeneratedCoins = entry.AlreadyGeneratedCoins
	m.currentBlockCumulSzLimit = m.computeSizeLimit(entry.Block.MajorVersion, entry.CumulativeSize)
	return nil
}

func (m *Manager) computeSizeLimit(majorVersion uint8, lastMedianInput uint64) uint64 {
	return m.currency.NextBlockGrantedSizeLimit(lastMedianInput)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Height returns current_height: the number of blocks in the chain,
// including genesis. A freshly-initialized chain with only genesis has
// Height() == 1.
func (m *Manager) Height() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentHeight
}

// BestHash returns the hash of the tip block.
func (m *Manager) BestHash() cnbinary.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tipHash
}

// TipCumulativeDifficulty returns the main tip's cumulative difficulty.
func (m *Manager) TipCumulativeDifficulty() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tipCumulativeDifficulty
}

func (m *Manager) getBlockEntryByHeight(height uint64) (*BlockEntry, bool, error) {
	hashBytes, ok, err := m.store.Get(kv.BucketHeightIndex, heightKey(height))
	if err != nil || !ok {
		return nil, false, err
	}
	var hash cnbinary.Hash
	copy(hash[:], hashBytes)
	return m.getBlockEntryByHash(hash)
}

func (m *Manager) getBlockEntryByHash(hash cnbinary.Hash) (*BlockEntry, bool, error) {
	if e, ok := m.blockCache.Get(hash); ok {
		return e, true, nil
	}
	data, ok, err := m.store.Get(kv.BucketBlocks, kv.HashKey(hash))
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := decodeBlockEntry(data)
	if err != nil {
		return nil, false, fmt.Errorf("chain: decode block entry %s: %w", hash, err)
	}
	m.blockCache.Add(hash, e)
	return e, true, nil
}

// recentTimestampsAndDifficulties reads up to n blocks ending at height
// (inclusive), oldest first, for difficulty/timestamp-window calculations.
func (m *Manager) recentTimestampsAndDifficulties(height uint64, n uint64) ([]int64, []uint64, error) {
	if n == 0 || height+1 < n {
		n = height + 1
	}
	timestamps := make([]int64, n)
	cumDiffs := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		h := height - (n - 1) + i
		e, ok, err := m.getBlockEntryByHeight(h)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("chain: missing block entry at height %d", h)
		}
		timestamps[i] = int64(e.Block.Timestamp)
		cumDiffs[i] = e.CumulativeDifficulty
	}
	return timestamps, cumDiffs, nil
}

// lastBlockTimestampLocked returns the tip block's timestamp. Callers must
// already hold m.mu.
func (m *Manager) lastBlockTimestampLocked() int64 {
	if m.currentHeight == 0 {
		return 0
	}
	e, ok, err := m.getBlockEntryByHash(m.tipHash)
	if err != nil || !ok {
		return 0
	}
	return int64(e.Block.Timestamp)
}

// recentBlockSizes reads up to n blocks ending at height (inclusive).
func (m *Manager) recentBlockSizes(height uint64, n uint64) ([]uint64, error) {
	if n == 0 || height+1 < n {
		n = height + 1
	}
	sizes := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		h := height - (n - 1) + i
		e, ok, err := m.getBlockEntryByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("chain: missing block entry at height %d", h)
		}
		sizes[i] = e.CumulativeSize
	}
	return sizes, nil
}
