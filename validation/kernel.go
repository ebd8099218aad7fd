// Package validation is the validation kernel (§4.5, and the checker steps
// of §4.2.1): proof-of-work, difficulty, timestamp, coinbase, miner-reward,
// and per-input checks, structured the way the corpus's block.go/
// transaction.go build ValidateBlock/ValidateTransaction — a sequence of
// named checker functions run in a fixed order, each returning early on the
// first failure with a wrapped error identifying which check failed.
package validation

import (
	"fmt"
	"math"

	"github.com/aivve/karbowanec/checkpoints"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
)

// Kernel wires the currency config, checkpoint set, and crypto primitives
// needed to validate blocks and transaction inputs. Crypto functions are
// injected rather than imported directly from cryptoprim so this package
// can be tested without the native library present.
type Kernel struct {
	Currency    *currency.Config
	Checkpoints *checkpoints.Set

	VerifyRingSignature RingSignatureVerifier
	KeyImageTorsion     KeyImageTorsionChecker
	VerifySignature     SingleSignatureVerifier
	PowHash             PowHasher
}

// New returns a Kernel wired with the given collaborators.
func New(cfg *currency.Config, cps *checkpoints.Set, verifyRing RingSignatureVerifier, torsion KeyImageTorsionChecker, verifySig SingleSignatureVerifier, powHash PowHasher) *Kernel {
	return &Kernel{
		Currency:            cfg,
		Checkpoints:         cps,
		VerifyRingSignature: verifyRing,
		KeyImageTorsion:     torsion,
		VerifySignature:     verifySig,
		PowHash:             powHash,
	}
}

// CheckBlockVersion implements §4.2.1 step 3.
func (k *Kernel) CheckBlockVersion(block *cnbinary.Block, height uint64) error {
	want := k.Currency.BlockMajorVersion(height)
	if block.MajorVersion != want {
		return fmt.Errorf("block version %d does not match schedule for height %d (want %d)", block.MajorVersion, height, want)
	}
	return nil
}

// CheckMergeMiningTag implements §4.2.1 step 4.
func (k *Kernel) CheckMergeMiningTag(block *cnbinary.Block) error {
	if block.MajorVersion < k.Currency.MergeMiningRejectVersion {
		return nil
	}
	if currency.HasMergeMiningTag(block.BaseTransaction.Extra) {
		return fmt.Errorf("merge-mining tag not allowed at version %d", block.MajorVersion)
	}
	return nil
}

// CheckTimestamp implements §4.2.1 step 5. recentTimestamps must already be
// limited to timestamp_check_window(v) most recent blocks, oldest first.
func (k *Kernel) CheckTimestamp(block *cnbinary.Block, majorVersion uint8, adjustedTime int64, recentTimestamps []int64) error {
	limit := k.Currency.BlockFutureTimeLimitByVersion(majorVersion)
	if block.Timestamp > uint64(adjustedTime)+limit {
		return fmt.Errorf("block timestamp %d exceeds future limit (adjusted=%d, limit=%d)", block.Timestamp, adjustedTime, limit)
	}
	window := k.Currency.TimestampCheckWindowByVersion(majorVersion)
	if uint64(len(recentTimestamps)) >= window {
		median := medianInt64(recentTimestamps)
		if int64(block.Timestamp) < median {
			return fmt.Errorf("block timestamp %d below median %d of the last %d blocks", block.Timestamp, median, window)
		}
	}
	return nil
}

func medianInt64(v []int64) int64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]int64(nil), v...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// CheckProofOfWork implements §4.2.1 step 7: inside the checkpoint zone with
// a pinned checkpoint, the block hash must equal the pinned hash; otherwise
// the PoW hash must satisfy the difficulty target.
func (k *Kernel) CheckProofOfWork(block *cnbinary.Block, height uint64, blockHash cnbinary.Hash, difficulty uint64) error {
	if ok, isCheckpoint := k.Checkpoints.CheckBlock(height, blockHash); isCheckpoint {
		if !ok {
			return fmt.Errorf("block hash at height %d does not match the pinned checkpoint", height)
		}
		return nil
	}
	powBytes, err := block.SerializeForPoW()
	if err != nil {
		return fmt.Errorf("serialize for pow: %w", err)
	}
	powHash, err := k.PowHash(powBytes)
	if err != nil {
		return fmt.Errorf("pow hash: %w", err)
	}
	if !currency.CheckProofOfWork(powHash, difficulty) {
		return fmt.Errorf("proof of work does not satisfy difficulty %d", difficulty)
	}
	return nil
}

// CheckCoinbase implements §4.2.1 step 8.
func (k *Kernel) CheckCoinbase(tx *cnbinary.Transaction, height uint64) error {
	if len(tx.Inputs) != 1 {
		return fmt.Errorf("coinbase must have exactly one input, got %d", len(tx.Inputs))
	}
	base, ok := tx.Inputs[0].(cnbinary.BaseInput)
	if !ok {
		return fmt.Errorf("coinbase input must be a BaseInput")
	}
	if uint64(base.BlockIndex) != height {
		return fmt.Errorf("coinbase block index %d does not match height %d", base.BlockIndex, height)
	}
	if len(tx.Signatures) != 0 {
		return fmt.Errorf("coinbase must carry no signatures")
	}
	want := height + k.Currency.MinedMoneyUnlockWindow
	if tx.UnlockTime != want {
		return fmt.Errorf("coinbase unlock time %d does not equal height+unlock_window %d", tx.UnlockTime, want)
	}
	var sum uint64
	for _, out := range tx.Outputs {
		next := sum + out.Amount
		if next < sum {
			return fmt.Errorf("coinbase output sum overflows")
		}
		sum = next
	}
	return nil
}

// CheckCumulativeBlockSize implements §4.2.1 step 10.
func (k *Kernel) CheckCumulativeBlockSize(height uint64, cumulativeSize uint64) error {
	limit := k.Currency.MaxBlockCumulativeSizeAt(height)
	if cumulativeSize > limit {
		return fmt.Errorf("cumulative block size %d exceeds limit %d at height %d", cumulativeSize, limit, height)
	}
	return nil
}

// CheckMinerReward implements §4.2.1 step 11.
func (k *Kernel) CheckMinerReward(majorVersion uint8, medianSize, cumulativeSize, alreadyGeneratedCoins, fee uint64, coinbaseOutputSum uint64) (reward, emissionChange uint64, err error) {
	reward, emissionChange, err = k.Currency.GetBlockReward(majorVersion, medianSize, cumulativeSize, alreadyGeneratedCoins, fee)
	if err != nil {
		return 0, 0, err
	}
	if coinbaseOutputSum != reward {
		return 0, 0, fmt.Errorf("coinbase output sum %d does not equal computed reward %d", coinbaseOutputSum, reward)
	}
	return reward, emissionChange, nil
}

// CheckNextDifficulty implements §4.2.1 step 6.
func (k *Kernel) CheckNextDifficulty(timestamps []int64, cumulativeDifficulties []uint64) (uint64, error) {
	d, err := k.Currency.NextDifficulty(timestamps, cumulativeDifficulties)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("next difficulty computed as zero")
	}
	return d, nil
}

// PoissonLogProbabilityAtLeast1 computes log(1 - e^-lambda), the
// log-probability that a Poisson(lambda) process produces at least one
// event, used by the alt-chain reorg coordinator's sanity gate (§4.3).
// Exported for altchain's use since the check itself lives there, not here.
func PoissonLogProbabilityAtLeast1(lambda float64) float64 {
	if lambda <= 0 {
		return math.Inf(-1)
	}
	return math.Log1p(-math.Exp(-lambda))
}
