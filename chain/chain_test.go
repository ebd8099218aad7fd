package chain

import (
	"testing"
	"time"

	"github.com/aivve/karbowanec/chainmsg"
	"github.com/aivve/karbowanec/checkpoints"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/pool"
	"github.com/aivve/karbowanec/validation"
)

// Exact height-1/height-2 rewards for a zero-generated-coins genesis under
// TestNetConfig's emission parameters (MoneySupply = (2^64-1)/2,
// EmissionSpeedFactor = 18), computed independently of this package:
// baseReward(h) = (MoneySupply - alreadyGeneratedCoins) >> 18.
const (
	rewardHeight1 = 35184372088831
	rewardHeight2 = 35184237871104
)

// rewardsByHeight extends the same computation out to height 10, for tests
// that need a longer main chain (e.g. exercising BuildSparseChain's strides).
var rewardsByHeight = []uint64{
	0, // height 0 is genesis, not a mined reward
	35184372088831,
	35184237871104,
	35184103653888,
	35183969437183,
	35183835220991,
	35183701005311,
	35183566790143,
	35183432575487,
	35183298361343,
	35183164147711,
}

func zeroHashPow(_ []byte) (cnbinary.Hash, error) { return cnbinary.Hash{}, nil }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := currency.TestNetConfig()
	kernel := validation.New(cfg, checkpoints.Empty(), nil, nil, nil, zeroHashPow)
	m, err := New(store, pool.New(), kernel, cfg, checkpoints.Empty(), chainmsg.New(), nil)
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return m
}

func pubKey(b byte) cnbinary.PublicKey {
	var k cnbinary.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func coinbaseBlock(prev cnbinary.Hash, height uint64, timestamp uint64, unlockWindow uint64, reward uint64, extra []byte) *cnbinary.Block {
	tx := cnbinary.Transaction{
		TransactionPrefix: cnbinary.TransactionPrefix{
			Version:    1,
			UnlockTime: height + unlockWindow,
			Inputs:     []cnbinary.TransactionInput{cnbinary.BaseInput{BlockIndex: uint32(height)}},
			Outputs: []cnbinary.TransactionOutput{
				{Amount: reward, Target: cnbinary.KeyOutput{Key: pubKey(byte(height + 1))}},
			},
			Extra: extra,
		},
	}
	return &cnbinary.Block{
		BlockHeader: cnbinary.BlockHeader{
			MajorVersion:      1,
			MinorVersion:      0,
			Timestamp:         timestamp,
			PreviousBlockHash: prev,
		},
		BaseTransaction: tx,
	}
}

func mustHash(t *testing.T, b *cnbinary.Block) cnbinary.Hash {
	t.Helper()
	h, err := b.BlockHash()
	if err != nil {
		t.Fatalf("BlockHash: %v", err)
	}
	return h
}

func paymentIDExtra(id [32]byte) []byte {
	extra := []byte{txExtraTagNonce, 33, nonceTagPaymentID}
	return append(extra, id[:]...)
}

func TestGenesisAndAppendTracksHeightAndSupply(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}
	if h := m.Height(); h != 1 {
		t.Fatalf("Height after genesis = %d, want 1", h)
	}
	if got := m.GetCoinsInCirculation(); got != 0 {
		t.Fatalf("GetCoinsInCirculation after genesis = %d, want 0", got)
	}

	var pid [32]byte
	pid[0] = 0xAB
	block1 := coinbaseBlock(m.BestHash(), 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, paymentIDExtra(pid))
	res, err := m.AddBlock(block1)
	if err != nil {
		t.Fatalf("AddBlock(block1): %v", err)
	}
	if res != ResultAdded {
		t.Fatalf("AddBlock(block1) result = %v, want ResultAdded", res)
	}
	if h := m.Height(); h != 2 {
		t.Fatalf("Height after block1 = %d, want 2", h)
	}
	if got := m.GetCoinsInCirculation(); got != rewardHeight1 {
		t.Fatalf("GetCoinsInCirculation after block1 = %d, want %d", got, rewardHeight1)
	}
	if got, err := m.GetTransactionCount(); err != nil || got != 2 {
		t.Fatalf("GetTransactionCount after genesis+block1 = (%d, %v), want (2, nil)", got, err)
	}

	baseHash, err := block1.BaseTransaction.Hash()
	if err != nil {
		t.Fatalf("hash coinbase: %v", err)
	}
	hashes, err := m.FindTransactionsByPaymentID(pid[:])
	if err != nil {
		t.Fatalf("FindTransactionsByPaymentID: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != baseHash {
		t.Fatalf("FindTransactionsByPaymentID = %v, want [%s]", hashes, baseHash)
	}

	// AddBlock is idempotent against a duplicate of an already-accepted block.
	if res, err := m.AddBlock(block1); err == nil || res != ResultAlreadyExists {
		t.Fatalf("AddBlock(duplicate block1) = (%v, %v), want (ResultAlreadyExists, non-nil error)", res, err)
	}
}

func TestRollbackUndoesSupplyAndPaymentIndex(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}

	var pid [32]byte
	pid[1] = 0xCD
	block1 := coinbaseBlock(m.BestHash(), 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, paymentIDExtra(pid))
	if _, err := m.AddBlock(block1); err != nil {
		t.Fatalf("AddBlock(block1): %v", err)
	}

	popped, err := m.RollbackTo(0)
	if err != nil {
		t.Fatalf("RollbackTo(0): %v", err)
	}
	if len(popped) != 1 {
		t.Fatalf("RollbackTo(0) popped %d blocks, want 1", len(popped))
	}
	if h := m.Height(); h != 1 {
		t.Fatalf("Height after rollback = %d, want 1", h)
	}
	if got := m.GetCoinsInCirculation(); got != 0 {
		t.Fatalf("GetCoinsInCirculation after rollback = %d, want 0", got)
	}
	hashes, err := m.FindTransactionsByPaymentID(pid[:])
	if err != nil {
		t.Fatalf("FindTransactionsByPaymentID: %v", err)
	}
	if len(hashes) != 0 {
		t.Fatalf("FindTransactionsByPaymentID after rollback = %v, want empty", hashes)
	}
	if got, err := m.GetTransactionCount(); err != nil || got != 1 {
		t.Fatalf("GetTransactionCount after rollback = (%d, %v), want (1, nil)", got, err)
	}
}

// TestAlternativeBranchTriggersReorg grows a two-block alternative branch
// off genesis until its cumulative difficulty overtakes a shorter main
// branch, and checks the main chain switches onto it (§4.3).
func TestAlternativeBranchTriggersReorg(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}
	genesisHash := m.BestHash()

	mainBlock1 := coinbaseBlock(genesisHash, 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	if res, err := m.AddBlock(mainBlock1); err != nil || res != ResultAdded {
		t.Fatalf("AddBlock(mainBlock1) = (%v, %v)", res, err)
	}
	if m.TipCumulativeDifficulty() != 2 {
		t.Fatalf("main cumulative difficulty = %d, want 2", m.TipCumulativeDifficulty())
	}

	altBlock1 := coinbaseBlock(genesisHash, 1, genesisTs+90, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	res, err := m.AddBlock(altBlock1)
	if err != nil {
		t.Fatalf("AddBlock(altBlock1): %v", err)
	}
	if res != ResultAddedAsAlt {
		t.Fatalf("AddBlock(altBlock1) result = %v, want ResultAddedAsAlt", res)
	}
	if m.Height() != 2 {
		t.Fatalf("Height after altBlock1 (not yet ahead) = %d, want 2", m.Height())
	}

	altHash1 := mustHash(t, altBlock1)
	altBlock2 := coinbaseBlock(altHash1, 2, genesisTs+180, m.currency.MinedMoneyUnlockWindow, rewardHeight2, nil)
	res, err = m.AddBlock(altBlock2)
	if err != nil {
		t.Fatalf("AddBlock(altBlock2): %v", err)
	}
	if res != ResultAdded {
		t.Fatalf("AddBlock(altBlock2) result = %v, want ResultAdded (reorg should have switched)", res)
	}
	if h := m.Height(); h != 3 {
		t.Fatalf("Height after reorg = %d, want 3", h)
	}
	altHash2 := mustHash(t, altBlock2)
	if m.BestHash() != altHash2 {
		t.Fatalf("BestHash after reorg = %s, want %s (alt branch tip)", m.BestHash(), altHash2)
	}
	if got := m.GetCoinsInCirculation(); got != rewardHeight1+rewardHeight2 {
		t.Fatalf("GetCoinsInCirculation after reorg = %d, want %d", got, rewardHeight1+rewardHeight2)
	}

	// The displaced main branch block is retained as a (losing) alt entry.
	mainHash1 := mustHash(t, mainBlock1)
	if !m.altChain.Has(mainHash1) {
		t.Fatalf("displaced main block %s should be re-tracked as an alt entry", mainHash1)
	}
}

// TestReorgFailureRestoresOriginalTip mirrors the corrupt-block-mid-replay
// scenario (§8 S5): an alt branch overtakes the main tip on cumulative
// difficulty, but its second block carries a coinbase reward that does not
// match the computed emission, so the admission-time checks in
// admitAsAltLocked (which never validate the miner reward) let it into the
// alt tracker while appendMainLocked's CheckMinerReward rejects it during
// replay. The reorg must unwind back to the pre-attempt main tip and report
// the block as AddedAsAlt rather than Added.
func TestReorgFailureRestoresOriginalTip(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}
	genesisHash := m.BestHash()

	mainBlock1 := coinbaseBlock(genesisHash, 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	if res, err := m.AddBlock(mainBlock1); err != nil || res != ResultAdded {
		t.Fatalf("AddBlock(mainBlock1) = (%v, %v)", res, err)
	}
	mainHash1 := mustHash(t, mainBlock1)

	altBlock1 := coinbaseBlock(genesisHash, 1, genesisTs+90, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	if res, err := m.AddBlock(altBlock1); err != nil || res != ResultAddedAsAlt {
		t.Fatalf("AddBlock(altBlock1) = (%v, %v), want (ResultAddedAsAlt, nil)", res, err)
	}
	altHash1 := mustHash(t, altBlock1)

	// altBlock2's coinbase reward is one too many: CheckMinerReward rejects
	// this during replay even though admission never checks it.
	altBlock2 := coinbaseBlock(altHash1, 2, genesisTs+180, m.currency.MinedMoneyUnlockWindow, rewardHeight2+1, nil)
	res, err := m.AddBlock(altBlock2)
	if err != nil {
		t.Fatalf("AddBlock(altBlock2): %v", err)
	}
	if res != ResultAddedAsAlt {
		t.Fatalf("AddBlock(altBlock2) result = %v, want ResultAddedAsAlt (reorg should have failed and rolled back)", res)
	}

	if h := m.Height(); h != 2 {
		t.Fatalf("Height after failed reorg = %d, want 2 (original main tip restored)", h)
	}
	if m.BestHash() != mainHash1 {
		t.Fatalf("BestHash after failed reorg = %s, want %s (original main tip)", m.BestHash(), mainHash1)
	}
	if got := m.GetCoinsInCirculation(); got != rewardHeight1 {
		t.Fatalf("GetCoinsInCirculation after failed reorg = %d, want %d", got, rewardHeight1)
	}
	if !m.HaveBlock(mainHash1) {
		t.Fatalf("original main block %s should still be present after failed reorg", mainHash1)
	}

	// altBlock1 never failed on its own merits, so it stays tracked as a
	// (losing) alt entry; altBlock2 is the block that failed replay and must
	// be pruned, along with anything ahead of it in the subchain.
	if !m.altChain.Has(altHash1) {
		t.Fatalf("altBlock1 %s should remain tracked after the reorg failed on altBlock2", altHash1)
	}
	altHash2 := mustHash(t, altBlock2)
	if m.altChain.Has(altHash2) {
		t.Fatalf("altBlock2 %s should have been pruned from the tracker after failing replay", altHash2)
	}
}

func TestSparseChainAndSupplementFindCommonAncestor(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}
	genesisHash := m.BestHash()

	block1 := coinbaseBlock(genesisHash, 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	if _, err := m.AddBlock(block1); err != nil {
		t.Fatalf("AddBlock(block1): %v", err)
	}
	block1Hash := mustHash(t, block1)
	block2 := coinbaseBlock(block1Hash, 2, genesisTs+240, m.currency.MinedMoneyUnlockWindow, rewardHeight2, nil)
	if _, err := m.AddBlock(block2); err != nil {
		t.Fatalf("AddBlock(block2): %v", err)
	}

	sparse, err := m.BuildSparseChain()
	if err != nil {
		t.Fatalf("BuildSparseChain: %v", err)
	}
	if len(sparse) == 0 || sparse[len(sparse)-1] != genesisHash {
		t.Fatalf("BuildSparseChain should end at genesis, got %v", sparse)
	}
	if sparse[0] != m.BestHash() {
		t.Fatalf("BuildSparseChain should start at the tip, got %v", sparse)
	}

	common, ok := m.FindBlockchainSupplement([]cnbinary.Hash{{0xFF}, block1Hash, genesisHash})
	if !ok || common != block1Hash {
		t.Fatalf("FindBlockchainSupplement = (%s, %v), want (%s, true)", common, ok, block1Hash)
	}
}

// TestBuildSparseChainGeometricStrides pins the exact offsets BuildSparseChain
// samples at: with a tip at height 10, the strides from the tip are
// 0, 1, 2, 4, 8 (§8 invariant 6), landing on heights 10, 9, 8, 6, 2, 0 — not
// the 2^k-1 offsets (0, 1, 3, 7) a cumulative running-height subtraction
// would produce.
func TestBuildSparseChainGeometricStrides(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}

	hashByHeight := make([]cnbinary.Hash, len(rewardsByHeight))
	hashByHeight[0] = m.BestHash()

	prev := hashByHeight[0]
	for h := uint64(1); h < uint64(len(rewardsByHeight)); h++ {
		b := coinbaseBlock(prev, h, genesisTs+120*h, m.currency.MinedMoneyUnlockWindow, rewardsByHeight[h], nil)
		if _, err := m.AddBlock(b); err != nil {
			t.Fatalf("AddBlock(height %d): %v", h, err)
		}
		prev = mustHash(t, b)
		hashByHeight[h] = prev
	}

	sparse, err := m.BuildSparseChain()
	if err != nil {
		t.Fatalf("BuildSparseChain: %v", err)
	}

	want := []cnbinary.Hash{
		hashByHeight[10],
		hashByHeight[9],
		hashByHeight[8],
		hashByHeight[6],
		hashByHeight[2],
		hashByHeight[0],
	}
	if len(sparse) != len(want) {
		t.Fatalf("BuildSparseChain returned %d hashes, want %d: %v", len(sparse), len(want), sparse)
	}
	for i := range want {
		if sparse[i] != want[i] {
			t.Fatalf("BuildSparseChain[%d] = %s, want %s (full: %v)", i, sparse[i], want[i], sparse)
		}
	}
}

func TestGetRandomOutsByAmountSamplesWithinBounds(t *testing.T) {
	m := newTestManager(t)
	genesisTs := uint64(time.Now().Unix())
	genesis := coinbaseBlock(cnbinary.Hash{}, 0, genesisTs, 0, 0, nil)
	if err := m.ResetAndSetGenesis(genesis); err != nil {
		t.Fatalf("ResetAndSetGenesis: %v", err)
	}
	genesisHash := m.BestHash()

	block1 := coinbaseBlock(genesisHash, 1, genesisTs+120, m.currency.MinedMoneyUnlockWindow, rewardHeight1, nil)
	if _, err := m.AddBlock(block1); err != nil {
		t.Fatalf("AddBlock(block1): %v", err)
	}
	block1Hash := mustHash(t, block1)
	block2 := coinbaseBlock(block1Hash, 2, genesisTs+240, m.currency.MinedMoneyUnlockWindow, rewardHeight2, nil)
	if _, err := m.AddBlock(block2); err != nil {
		t.Fatalf("AddBlock(block2): %v", err)
	}

	outs, err := m.GetRandomOutsByAmount([]cnbinary.Amount{rewardHeight1}, 5)
	if err != nil {
		t.Fatalf("GetRandomOutsByAmount: %v", err)
	}
	got := outs[rewardHeight1]
	if len(got) != 1 {
		t.Fatalf("GetRandomOutsByAmount(%d) = %d entries, want 1 (only block1's coinbase minted this amount)", rewardHeight1, len(got))
	}
	if got[0].GlobalIndex != 0 {
		t.Fatalf("GetRandomOutsByAmount(%d)[0].GlobalIndex = %d, want 0", rewardHeight1, got[0].GlobalIndex)
	}
}
