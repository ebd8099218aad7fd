package altchain

import (
	"github.com/aivve/karbowanec/currency"
	"github.com/aivve/karbowanec/validation"
)

// PoissonSanityCheck implements the §4.3 Poisson sanity gate: it checks
// that the main chain's recent block timestamps are plausible given the
// alt chain's high timestamp and the configured difficulty target, and
// that the alt high timestamp itself is not implausibly far in the future.
// mainTimestampsDescending must start at the common ancestor and walk back
// toward genesis (index 0 is the common ancestor's own timestamp).
func PoissonSanityCheck(cfg *currency.Config, mainTimestampsDescending []int64, altHighTimestamp int64, adjustedTime int64) bool {
	if altHighTimestamp > adjustedTime+int64(cfg.BlockFutureTimeLimit) {
		return false
	}

	depth := cfg.PoissonCheckDepth
	if depth > len(mainTimestampsDescending) {
		depth = len(mainTimestampsDescending)
	}
	if depth == 0 {
		return true
	}

	failures := 0
	for i := 0; i < depth; i++ {
		deltaT := altHighTimestamp - mainTimestampsDescending[i]
		if deltaT < 0 {
			deltaT = 0
		}
		lambda := float64(deltaT) / float64(cfg.DifficultyTarget)
		if validation.PoissonLogProbabilityAtLeast1(lambda) < cfg.PoissonLogThreshold {
			failures++
		}
	}
	return failures*2 <= depth
}

// ShouldRunPoissonGate reports whether the alt subchain is long enough to
// trigger the sanity gate (§4.3: "when the alt subchain's length >=
// POISSON_CHECK_TRIGGER").
func ShouldRunPoissonGate(cfg *currency.Config, altSubchainLen int) bool {
	return altSubchainLen >= cfg.PoissonCheckTrigger
}
