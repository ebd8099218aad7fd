package chain

import (
	"fmt"
	"time"

	"github.com/aivve/karbowanec/altchain"
	"github.com/aivve/karbowanec/chainmsg"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/metrics"
	"go.uber.org/zap"
)

// reorgToLocked switches the main chain onto the alt branch ending at
// altTipHash (§4.3 reorg protocol): it runs the Poisson sanity gate once the
// alt subchain is long enough to warrant it, rolls the main chain back to
// the common ancestor, replays the alt subchain through the ordinary append
// path, and restores the original tip if replay fails partway through.
// Callers must hold m.mu for writing.
func (m *Manager) reorgToLocked(altTipHash cnbinary.Hash) (*chainmsg.ChainSwitch, error) {
	subchain, commonAncestor := m.altChain.BuildSubchain(altTipHash)
	if len(subchain) == 0 {
		return nil, fmt.Errorf("chain: alt subchain ending at %s is empty", altTipHash)
	}

	ancestorEntry, ok, err := m.getBlockEntryByHash(commonAncestor)
	if err != nil {
		return nil, fmt.Errorf("chain: load common ancestor: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("chain: common ancestor %s is not on the main chain", commonAncestor)
	}

	if altchain.ShouldRunPoissonGate(m.currency, len(subchain)) {
		altTipEntry, ok := m.altChain.Get(altTipHash)
		if !ok {
			return nil, fmt.Errorf("chain: alt tip %s vanished from tracker mid-reorg", altTipHash)
		}
		mainTimestamps, err := m.timestampsDescendingFromLocked(ancestorEntry.Height)
		if err != nil {
			return nil, fmt.Errorf("chain: collect main timestamps for poisson gate: %w", err)
		}
		if !altchain.PoissonSanityCheck(m.currency, mainTimestamps, int64(altTipEntry.Block.Timestamp), time.Now().Unix()) {
			if m.logger != nil {
				m.logger.Warn("reorg rejected by poisson sanity gate", zap.Stringer("altTip", altTipHash), zap.Int("subchainLen", len(subchain)))
			}
			return nil, fmt.Errorf("chain: poisson sanity check rejected reorg to %s", altTipHash)
		}
	}

	poppedEntries, err := m.rollbackToLocked(ancestorEntry.Height)
	if err != nil {
		return nil, fmt.Errorf("chain: roll back to common ancestor %s: %w", commonAncestor, err)
	}

	restoreOriginalTip := func() error {
		for i := len(poppedEntries) - 1; i >= 0; i-- {
			e := poppedEntries[i]
			hash, hErr := e.Block.BlockHash()
			if hErr != nil {
				return hErr
			}
			if aErr := m.appendMainLocked(e.Block, hash); aErr != nil {
				return fmt.Errorf("restoring original tip failed: %w", aErr)
			}
		}
		return nil
	}

	applied := 0
	var appliedEntries []*altchain.Entry
	// retrackApplied puts the alt blocks this attempt already replayed back
	// into the tracker (appendMainLocked drops each one as it joins the main
	// chain); they did not fail themselves and stay as losing alt entries.
	retrackApplied := func() {
		for i, e := range appliedEntries {
			m.altChain.Put(subchain[i], e.Block, e.Height, e.CumulativeDifficulty, 0)
		}
	}
	for _, h := range subchain {
		altEntry, ok := m.altChain.Get(h)
		if !ok {
			m.unwindAppliedAlt(applied)
			_ = restoreOriginalTip()
			retrackApplied()
			// The failing block and everything still ahead of it are no
			// longer reachable as a branch; drop them from the tracker
			// (§4.3 reorg protocol step 2, S5).
			m.altChain.Prune(subchain[applied:])
			return nil, fmt.Errorf("chain: alt block %s vanished from tracker mid-reorg", h)
		}
		if err := m.appendMainLocked(altEntry.Block, h); err != nil {
			m.unwindAppliedAlt(applied)
			rErr := restoreOriginalTip()
			retrackApplied()
			m.altChain.Prune(subchain[applied:])
			if rErr != nil {
				return nil, fmt.Errorf("chain: reorg aborted applying %s (%v) and failed to restore original tip: %w", h, err, rErr)
			}
			return nil, fmt.Errorf("chain: reorg aborted applying alt block %s: %w", h, err)
		}
		appliedEntries = append(appliedEntries, altEntry)
		applied++
	}

	m.altChain.Prune(subchain)
	// Re-add the blocks the reorg disconnected as alt entries (§4.3 reorg
	// protocol step 3, optional): poppedEntries is ordered tip-first, so
	// each entry's own difficulty is the delta to the entry below it, with
	// the lowest entry's parent being the common ancestor itself.
	for i, e := range poppedEntries {
		hash, err := e.Block.BlockHash()
		if err != nil {
			continue
		}
		parentCumDiff := ancestorEntry.CumulativeDifficulty
		if i+1 < len(poppedEntries) {
			parentCumDiff = poppedEntries[i+1].CumulativeDifficulty
		}
		m.altChain.Put(hash, e.Block, e.Height, parentCumDiff, e.CumulativeDifficulty-parentCumDiff)
	}

	metrics.ObserveReorg(len(poppedEntries))
	if m.logger != nil {
		m.logger.Info("chain switch", zap.Stringer("commonAncestor", commonAncestor), zap.Int("rolledBack", len(poppedEntries)), zap.Int("applied", applied))
	}
	return &chainmsg.ChainSwitch{CommonAncestor: commonAncestor, NewTipChain: subchain}, nil
}

// unwindAppliedAlt pops the n alt blocks this reorg attempt has already
// applied to the main chain, in preparation for restoring the pre-reorg
// tip.
func (m *Manager) unwindAppliedAlt(n int) {
	for i := 0; i < n; i++ {
		if _, err := m.popTipLocked(); err != nil {
			return
		}
	}
}

// timestampsDescendingFromLocked collects main-chain block timestamps
// starting at ancestorHeight and walking back toward genesis, for the
// Poisson sanity gate (§4.3), which wants the common ancestor's own
// timestamp first.
func (m *Manager) timestampsDescendingFromLocked(ancestorHeight uint64) ([]int64, error) {
	n := uint64(m.currency.PoissonCheckDepth)
	if n == 0 {
		return nil, nil
	}
	if n > ancestorHeight+1 {
		n = ancestorHeight + 1
	}
	out := make([]int64, n)
	for i := uint64(0); i < n; i++ {
		e, ok, err := m.getBlockEntryByHeight(ancestorHeight - i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("chain: missing block entry at height %d", ancestorHeight-i)
		}
		out[i] = int64(e.Block.Timestamp)
	}
	return out, nil
}
