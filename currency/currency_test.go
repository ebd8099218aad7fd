package currency

import (
	"testing"

	"github.com/aivve/karbowanec/cnbinary"
)

func TestBlockMajorVersionSchedule(t *testing.T) {
	c := MainNetConfig()
	cases := []struct {
		height uint64
		want   uint8
	}{
		{0, 1},
		{99999, 1},
		{100000, 4},
		{150000, 4},
		{200000, 5},
		{500000, 5},
	}
	for _, tc := range cases {
		if got := c.BlockMajorVersion(tc.height); got != tc.want {
			t.Errorf("BlockMajorVersion(%d) = %d, want %d", tc.height, got, tc.want)
		}
	}
}

func TestNextDifficultyInsufficientData(t *testing.T) {
	c := MainNetConfig()
	d, err := c.NextDifficulty(nil, nil)
	if err != nil {
		t.Fatalf("NextDifficulty: %v", err)
	}
	if d != c.MinDifficulty {
		t.Fatalf("NextDifficulty(empty) = %d, want MinDifficulty %d", d, c.MinDifficulty)
	}

	d, err = c.NextDifficulty([]int64{100}, []uint64{c.MinDifficulty})
	if err != nil {
		t.Fatalf("NextDifficulty: %v", err)
	}
	if d != c.MinDifficulty {
		t.Fatalf("NextDifficulty(1 sample) = %d, want MinDifficulty", d)
	}
}

func TestNextDifficultyStableAtTarget(t *testing.T) {
	c := MainNetConfig()
	n := 20
	timestamps := make([]int64, n)
	cum := make([]uint64, n)
	diff := uint64(1000)
	ts := int64(0)
	for i := 0; i < n; i++ {
		timestamps[i] = ts
		if i == 0 {
			cum[i] = diff
		} else {
			cum[i] = cum[i-1] + diff
		}
		ts += int64(c.DifficultyTarget)
	}
	got, err := c.NextDifficulty(timestamps, cum)
	if err != nil {
		t.Fatalf("NextDifficulty: %v", err)
	}
	// Solve times exactly match target: next difficulty should be close to
	// the average difficulty of the window (within integer-division slop).
	if got < diff-diff/50 || got > diff+diff/50 {
		t.Fatalf("NextDifficulty at steady target = %d, want close to %d", got, diff)
	}
}

func TestNextDifficultyNeverZero(t *testing.T) {
	c := MainNetConfig()
	// Extremely long solvetimes should floor at MinDifficulty, never 0.
	n := 10
	timestamps := make([]int64, n)
	cum := make([]uint64, n)
	ts := int64(0)
	for i := 0; i < n; i++ {
		timestamps[i] = ts
		cum[i] = uint64(i + 1)
		ts += 1_000_000
	}
	got, err := c.NextDifficulty(timestamps, cum)
	if err != nil {
		t.Fatalf("NextDifficulty: %v", err)
	}
	if got == 0 {
		t.Fatalf("NextDifficulty must never return 0 (an error should be surfaced by the caller for a zero result)")
	}
}

func TestCheckProofOfWork(t *testing.T) {
	var easy cnbinary.Hash
	for i := range easy {
		easy[i] = 0
	}
	easy[0] = 1 // smallest nonzero hash, interpreted little-endian by CheckProofOfWork
	if !CheckProofOfWork(easy, 1000) {
		t.Fatalf("expected minimal hash to satisfy any difficulty target")
	}

	var hard cnbinary.Hash
	for i := range hard {
		hard[i] = 0xff
	}
	if CheckProofOfWork(hard, 1_000_000) {
		t.Fatalf("expected max hash to fail a nontrivial difficulty target")
	}

	if CheckProofOfWork(easy, 0) {
		t.Fatalf("difficulty 0 must never validate")
	}
}

func TestIsTransactionMatureHeightBased(t *testing.T) {
	c := MainNetConfig()
	if !c.IsTransactionMature(100, 100, 0) {
		t.Fatalf("unlockTime==currentHeight-1+delta should be mature")
	}
	if c.IsTransactionMature(1000, 100, 0) {
		t.Fatalf("unlockTime far in the future should not be mature")
	}
}

func TestIsTransactionMatureTimestampBased(t *testing.T) {
	c := MainNetConfig()
	unlock := cnbinary.MaxBlockHeight + 1000
	if !c.IsTransactionMature(unlock, 1, int64(unlock-c.LockedTxAllowedDeltaSeconds)) {
		t.Fatalf("timestamp-based unlock at the boundary should be mature")
	}
	if c.IsTransactionMature(unlock, 1, 0) {
		t.Fatalf("timestamp-based unlock far in the future should not be mature")
	}
}

func TestGetBlockRewardWithinFullZone(t *testing.T) {
	c := MainNetConfig()
	reward, change, err := c.GetBlockReward(1, 1000, 1000, 0, 500)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	if reward != change+500 {
		t.Fatalf("reward should equal emission change plus fee: reward=%d change=%d", reward, change)
	}
	if change == 0 {
		t.Fatalf("expected nonzero base reward for empty chain")
	}
}

func TestGetBlockRewardPenalizesOversizeBlocks(t *testing.T) {
	c := MainNetConfig()
	median := c.GrantedFullRewardZone
	fullReward, _, err := c.GetBlockReward(1, median, median, 0, 0)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	penalized, _, err := c.GetBlockReward(1, median, median+median/2, 0, 0)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	if penalized >= fullReward {
		t.Fatalf("oversize block reward %d should be less than full reward %d", penalized, fullReward)
	}

	if _, _, err := c.GetBlockReward(1, median, median*2+1, 0, 0); err == nil {
		t.Fatalf("expected error for block size exceeding 2x median")
	}
}

func TestMedianOddEven(t *testing.T) {
	if got := Median([]uint64{5, 1, 3}); got != 3 {
		t.Fatalf("Median(odd) = %d, want 3", got)
	}
	if got := Median([]uint64{1, 2, 3, 4}); got != 2 {
		t.Fatalf("Median(even) = %d, want 2", got)
	}
	if got := Median(nil); got != 0 {
		t.Fatalf("Median(nil) = %d, want 0", got)
	}
}

func TestHasMergeMiningTag(t *testing.T) {
	if HasMergeMiningTag(nil) {
		t.Fatalf("empty extra should not contain a merge-mining tag")
	}
	extra := []byte{0x01, 0x20}
	extra = append(extra, make([]byte, 0x20)...)
	extra = append(extra, 0x03)
	if !HasMergeMiningTag(extra) {
		t.Fatalf("expected merge-mining tag 0x03 to be found")
	}
}
