package chain

import (
	"fmt"
	"time"

	"github.com/aivve/karbowanec/chainmsg"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/metrics"
	"github.com/aivve/karbowanec/pool"
	"github.com/aivve/karbowanec/validation"
	"go.uber.org/zap"
)

// Result classifies where AddBlock placed an accepted block, mirroring the
// corpus's block_verification_context outcome flags (§4.2).
type Result int

const (
	ResultAdded Result = iota
	ResultAddedAsAlt
	ResultAlreadyExists
)

func (r Result) String() string {
	switch r {
	case ResultAdded:
		return "Added"
	case ResultAddedAsAlt:
		return "AddedAsAlt"
	case ResultAlreadyExists:
		return "AlreadyExists"
	default:
		return "Unknown"
	}
}

// AddBlock is the single entry point for a candidate block (§4.2): it
// classifies the block against current chain state and either extends the
// main chain, records it as an alternative block (triggering a reorg if it
// now dominates), or rejects it.
func (m *Manager) AddBlock(block *cnbinary.Block) (Result, error) {
	started := time.Now()
	res, err := m.addBlock(block)
	outcome := "rejected"
	if err == nil {
		outcome = map[Result]string{ResultAdded: "added", ResultAddedAsAlt: "added_as_alt", ResultAlreadyExists: "already_exists"}[res]
	} else if cerr, ok := err.(*validation.ChainError); ok {
		metrics.ObserveRejection(cerr.Kind.String())
	}
	metrics.ObserveAppend(outcome, started)
	if err == nil {
		metrics.SetHeight(m.Height())
		metrics.SetMempoolSize(m.pool.Size())
	}
	m.logAddBlockOutcome(res, err)
	return res, err
}

// logAddBlockOutcome applies §10.1's level policy to an AddBlock result:
// acceptance is Info, orphaned/checkpoint/verification rejections are Warn,
// and the two internal-invariant kinds are Error.
func (m *Manager) logAddBlockOutcome(res Result, err error) {
	if m.logger == nil {
		return
	}
	if err == nil {
		if res == ResultAddedAsAlt {
			m.logger.Info("accepted alternative block")
		}
		return
	}
	cerr, ok := err.(*validation.ChainError)
	if !ok {
		return
	}
	switch cerr.Kind {
	case validation.KindKvIoFailure, validation.KindConsistencyBroken:
		m.logger.Error("block append failed", zap.String("kind", cerr.Kind.String()), zap.Uint64("height", cerr.Height), zap.Error(cerr.Err))
	case validation.KindMarkedAsOrphaned, validation.KindVerificationFailed:
		m.logger.Warn("rejected block", zap.String("kind", cerr.Kind.String()), zap.Uint64("height", cerr.Height), zap.Error(cerr.Err))
	}
}

func (m *Manager) addBlock(block *cnbinary.Block) (Result, error) {
	hash, err := block.BlockHash()
	if err != nil {
		return ResultAlreadyExists, validation.Fail(validation.KindVerificationFailed, 0, cnbinary.Hash{}, fmt.Errorf("hash block: %w", err))
	}

	m.mu.Lock()

	if _, ok, err := m.getBlockEntryByHash(hash); err != nil {
		m.mu.Unlock()
		return ResultAlreadyExists, validation.Fail(validation.KindKvIoFailure, 0, hash, err)
	} else if ok {
		m.mu.Unlock()
		return ResultAlreadyExists, validation.Fail(validation.KindAlreadyExists, 0, hash, nil)
	}
	if m.altChain.Has(hash) {
		m.mu.Unlock()
		return ResultAlreadyExists, validation.Fail(validation.KindAlreadyExists, 0, hash, nil)
	}

	if m.currentHeight == 0 {
		m.mu.Unlock()
		return ResultAlreadyExists, validation.Fail(validation.KindConsistencyBroken, 0, hash, fmt.Errorf("chain has no genesis block; call ResetAndSetGenesis first"))
	}

	if block.PreviousBlockHash == m.tipHash {
		height := m.currentHeight
		if err := m.appendMainLocked(block, hash); err != nil {
			m.mu.Unlock()
			return ResultAlreadyExists, err
		}
		m.mu.Unlock()
		m.bus.PublishNewBlock(&chainmsg.NewBlock{Hash: hash, Height: height})
		return ResultAdded, nil
	}

	res, switched, err := m.admitAsAltLocked(block, hash)
	var altHeight uint64
	if e, ok := m.altChain.Get(hash); ok {
		altHeight = e.Height
	}
	m.mu.Unlock()
	switch {
	case switched != nil:
		m.bus.PublishChainSwitch(switched)
	case res == ResultAddedAsAlt && err == nil:
		m.bus.PublishNewAlternativeBlock(&chainmsg.NewAlternativeBlock{Hash: hash, Height: altHeight})
	}
	return res, err
}

// admitAsAltLocked handles a block whose parent is not the current main
// tip (§4.3): the parent must be known (on the main chain or already alt),
// the fork point must lie outside the checkpoint-protected zone, and if the
// resulting alt branch now has greater cumulative difficulty than the main
// chain a reorg is attempted. Callers must hold m.mu.
func (m *Manager) admitAsAltLocked(block *cnbinary.Block, hash cnbinary.Hash) (Result, *chainmsg.ChainSwitch, error) {
	parentHeight, parentCumDiff, _, ok := m.resolveParentLocked(block.PreviousBlockHash)
	if !ok {
		if m.logger != nil {
			m.logger.Warn("orphaned block", zap.Stringer("hash", hash), zap.Stringer("missingParent", block.PreviousBlockHash))
		}
		return ResultAlreadyExists, nil, validation.Fail(validation.KindMarkedAsOrphaned, 0, hash, fmt.Errorf("parent block %s is unknown", block.PreviousBlockHash))
	}
	height := parentHeight + 1

	if !m.checkpoints.IsAlternativeBlockAllowed(m.currentHeight-1, height) {
		if m.logger != nil {
			m.logger.Warn("alternative block rejected at checkpoint zone", zap.Stringer("hash", hash), zap.Uint64("height", height))
		}
		return ResultAlreadyExists, nil, validation.Fail(validation.KindVerificationFailed, height, hash, fmt.Errorf("alternative block at height %d forks below the checkpoint zone", height))
	}
	if err := m.kernel.CheckBlockVersion(block, height); err != nil {
		return ResultAlreadyExists, nil, validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}
	if err := m.kernel.CheckMergeMiningTag(block); err != nil {
		return ResultAlreadyExists, nil, validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	difficulty, err := m.altBranchDifficultyLocked(block, height)
	if err != nil {
		return ResultAlreadyExists, nil, validation.Fail(validation.KindConsistencyBroken, height, hash, err)
	}
	if err := m.kernel.CheckProofOfWork(block, height, hash, difficulty); err != nil {
		return ResultAlreadyExists, nil, validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	entry := m.altChain.Put(hash, block, height, parentCumDiff, difficulty)

	if entry.CumulativeDifficulty > m.tipCumulativeDifficulty {
		switched, err := m.reorgToLocked(hash)
		if err != nil {
			// Reorg failed verification partway through; reorgToLocked has
			// already pruned the failing block and everything ahead of it
			// (including hash itself) from the alt tracker.
			return ResultAddedAsAlt, nil, nil
		}
		return ResultAdded, switched, nil
	}
	return ResultAddedAsAlt, nil, nil
}

// resolveParentLocked reports the height and cumulative difficulty of a
// known block, whether main-chain or alt-tracked.
func (m *Manager) resolveParentLocked(hash cnbinary.Hash) (height, cumDiff uint64, isMain bool, ok bool) {
	if e, found, err := m.getBlockEntryByHash(hash); err == nil && found {
		return e.Height, e.CumulativeDifficulty, true, true
	}
	if e, found := m.altChain.Get(hash); found {
		return e.Height, e.CumulativeDifficulty, false, true
	}
	return 0, 0, false, false
}

// altBranchDifficultyLocked computes the difficulty target for a candidate
// alt block, walking the difficulty window back through the alt subchain and
// falling back onto main-chain history at the fork point.
func (m *Manager) altBranchDifficultyLocked(block *cnbinary.Block, height uint64) (uint64, error) {
	window := m.currency.DifficultyWindow
	var timestamps []int64
	var cumDiffs []uint64

	cur := block.PreviousBlockHash
	for uint64(len(timestamps)) < window {
		e, ok := m.altChain.Get(cur)
		if !ok {
			break
		}
		timestamps = append([]int64{int64(e.Block.Timestamp)}, timestamps...)
		cumDiffs = append([]uint64{e.CumulativeDifficulty}, cumDiffs...)
		cur = e.Block.PreviousBlockHash
	}
	if uint64(len(timestamps)) < window {
		e, ok, err := m.getBlockEntryByHash(cur)
		if err != nil {
			return 0, err
		}
		if ok {
			remaining := window - uint64(len(timestamps))
			mainTs, mainCum, err := m.recentTimestampsAndDifficulties(e.Height, remaining)
			if err != nil {
				return 0, err
			}
			timestamps = append(mainTs, timestamps...)
			cumDiffs = append(mainCum, cumDiffs...)
		}
	}
	return m.kernel.CheckNextDifficulty(timestamps, cumDiffs)
}

// appendMainLocked runs the full main-chain append algorithm (§4.2.1) for a
// block that directly extends the current tip, committing all resulting
// mutations atomically. Callers must hold m.mu for writing.
func (m *Manager) appendMainLocked(block *cnbinary.Block, hash cnbinary.Hash) error {
	height := m.currentHeight

	if err := m.kernel.CheckBlockVersion(block, height); err != nil {
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}
	if err := m.kernel.CheckMergeMiningTag(block); err != nil {
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	insideCheckpointZone := m.checkpoints.IsInCheckpointZone(height)
	if ok, isCheckpoint := m.checkpoints.CheckBlock(height, hash); !ok {
		return validation.Fail(validation.KindVerificationFailed, height, hash, fmt.Errorf("block at height %d does not match the pinned checkpoint hash", height))
	} else if isCheckpoint && m.logger != nil {
		m.logger.Info("block matches pinned checkpoint", zap.Uint64("height", height))
	}

	var difficulty uint64
	if height == 0 {
		difficulty = m.currency.MinDifficulty
	} else {
		window := m.currency.TimestampCheckWindowByVersion(block.MajorVersion)
		recentTs, _, err := m.recentTimestampsAndDifficulties(height-1, window)
		if err != nil {
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}
		if !insideCheckpointZone {
			if err := m.kernel.CheckTimestamp(block, block.MajorVersion, currency.AdjustedTime(), recentTs); err != nil {
				return validation.Fail(validation.KindVerificationFailed, height, hash, err)
			}
		}
		diffTs, diffCum, err := m.recentTimestampsAndDifficulties(height-1, m.currency.DifficultyWindow)
		if err != nil {
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}
		difficulty, err = m.kernel.CheckNextDifficulty(diffTs, diffCum)
		if err != nil {
			return validation.Fail(validation.KindVerificationFailed, height, hash, err)
		}
	}

	if err := m.kernel.CheckProofOfWork(block, height, hash, difficulty); err != nil {
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}
	if err := m.kernel.CheckCoinbase(&block.BaseTransaction, height); err != nil {
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	wb := kv.NewWriteBatch()
	type taken struct {
		hash  cnbinary.Hash
		entry *pool.Entry
	}
	var takenTxs []taken
	rollback := func() {
		for _, t := range takenTxs {
			_ = m.pool.Restore(t.hash, t.entry)
		}
	}

	var cumulativeSize uint64
	var feeSum uint64
	txHashes := make([]cnbinary.Hash, 0, len(block.TransactionHashes))
	fees := make([]uint64, 0, len(block.TransactionHashes))

	for _, txHash := range block.TransactionHashes {
		tx, size, fee, ok := m.pool.TakeTx(txHash)
		if !ok {
			rollback()
			return validation.Fail(validation.KindPoolFailure, height, hash, fmt.Errorf("transaction %s referenced by block is not in the pool", txHash))
		}
		data, encErr := tx.Encode()
		if encErr != nil {
			data = nil
		}
		takenTxs = append(takenTxs, taken{hash: txHash, entry: &pool.Entry{Tx: tx, Data: data, Fee: fee}})

		prefixHash, err := tx.PrefixHash()
		if err != nil {
			rollback()
			return validation.Fail(validation.KindVerificationFailed, height, hash, err)
		}
		computedFee, _, err := m.validateAndPushInputs(wb, tx, prefixHash, insideCheckpointZone)
		if err != nil {
			rollback()
			return validation.Fail(validation.KindVerificationFailed, height, hash, fmt.Errorf("tx %s: %w", txHash, err))
		}
		if computedFee != fee {
			rollback()
			return validation.Fail(validation.KindConsistencyBroken, height, hash, fmt.Errorf("tx %s: pool fee %d does not match computed fee %d", txHash, fee, computedFee))
		}
		if err := m.pushTransactionOutputs(wb, tx, txHash, height); err != nil {
			rollback()
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}
		if err := pushTxIndex(wb, tx, txHash, height, len(txHashes)+1); err != nil {
			rollback()
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}
		if err := m.pushPaymentID(wb, tx, txHash); err != nil {
			rollback()
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}

		next := cumulativeSize + uint64(size)
		if next < cumulativeSize {
			rollback()
			return validation.Fail(validation.KindConsistencyBroken, height, hash, fmt.Errorf("cumulative size overflow"))
		}
		cumulativeSize = next
		feeSum += fee
		txHashes = append(txHashes, txHash)
		fees = append(fees, fee)
	}

	baseHash, err := block.BaseTransaction.Hash()
	if err != nil {
		rollback()
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}
	if err := m.pushCoinbaseOutputs(wb, &block.BaseTransaction, baseHash, height); err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}
	if err := pushTxIndex(wb, &block.BaseTransaction, baseHash, height, 0); err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}
	if err := m.pushPaymentID(wb, &block.BaseTransaction, baseHash); err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}

	if err := m.kernel.CheckCumulativeBlockSize(height, cumulativeSize); err != nil {
		rollback()
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	var medianSizes []uint64
	if height > 0 {
		window := m.currency.RewardBlocksWindow
		medianSizes, err = m.recentBlockSizes(height-1, window)
		if err != nil {
			rollback()
			return validation.Fail(validation.KindKvIoFailure, height, hash, err)
		}
	}

	var coinbaseSum uint64
	for _, out := range block.BaseTransaction.Outputs {
		next := coinbaseSum + out.Amount
		if next < coinbaseSum {
			rollback()
			return validation.Fail(validation.KindConsistencyBroken, height, hash, fmt.Errorf("coinbase output sum overflows"))
		}
		coinbaseSum = next
	}
	_, emissionChange, err := m.kernel.CheckMinerReward(block.MajorVersion, currency.Median(medianSizes), cumulativeSize, m.tipAlreadyGeneratedCoins, feeSum, coinbaseSum)
	if err != nil {
		rollback()
		return validation.Fail(validation.KindVerificationFailed, height, hash, err)
	}

	newCumulativeDifficulty := m.tipCumulativeDifficulty + difficulty
	newAlreadyGeneratedCoins := m.tipAlreadyGeneratedCoins + emissionChange

	entry := &BlockEntry{
		Height:                height,
		Block:                 block,
		CumulativeDifficulty:  newCumulativeDifficulty,
		AlreadyGeneratedCoins: newAlreadyGeneratedCoins,
		CumulativeSize:        cumulativeSize,
		TxHashes:              txHashes,
		Fees:                  fees,
	}
	entryData, err := encodeBlockEntry(entry)
	if err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}
	wb.Put(kv.BucketBlocks, kv.HashKey(hash), entryData, true)
	wb.Put(kv.BucketHeightIndex, heightKey(height), hash[:], true)
	wb.Put(kv.BucketTimestamps, heightKey(height), be8(block.Timestamp), true)
	if err := m.pushGeneratedTxCount(wb, height, 1+len(txHashes)); err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}

	if err := m.store.Commit(wb); err != nil {
		rollback()
		return validation.Fail(validation.KindKvIoFailure, height, hash, err)
	}

	m.blockCache.Add(hash, entry)
	m.currentHeight = height + 1
	m.tipHash = hash
	m.tipCumulativeDifficulty = newCumulativeDifficulty
	m.tipAlreadyGeneratedCoins = newAlreadyGeneratedCoins
	m.currentBlockCumulSzLimit = m.computeSizeLimit(block.MajorVersion, cumulativeSize)
	m.altChain.Prune([]cnbinary.Hash{hash})

	if m.logger != nil {
		m.logger.Info("appended block", zap.Uint64("height", height), zap.Uint64("difficulty", difficulty), zap.Int("txs", len(txHashes)))
	}
	return nil
}
