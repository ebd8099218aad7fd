package currency

// NextDifficulty computes the next difficulty from a window of consecutive
// block timestamps and cumulative difficulties, most-recent last (§4.4: "a
// bounded-variance WWHM variant"). The caller supplies the window (main-chain
// tail, or main-chain-tail-plus-alt-subchain per §4.3) so this same function
// serves both the canonical chain manager and the alt-chain tracker.
//
// Edge cases per §4.4: fewer than 2 timestamps means there is no solvetime
// to measure — return MinDifficulty. A computed difficulty of 0 is an error
// (callers must reject the block, never silently floor it to 0).
func (c *Config) NextDifficulty(timestamps []int64, cumulativeDifficulties []uint64) (uint64, error) {
	n := len(timestamps)
	if n != len(cumulativeDifficulties) {
		return 0, errMismatchedWindows
	}
	if n < 2 {
		return c.MinDifficulty, nil
	}

	window := n - 1 // number of solvetimes
	weightSum := int64(window * (window + 1) / 2)
	var weightedSolvetimeSum int64
	for i := 1; i <= window; i++ {
		solvetime := timestamps[i] - timestamps[i-1]
		if solvetime < 1 {
			solvetime = 1
		}
		maxSolve := int64(c.DifficultyTarget * 6)
		if solvetime > maxSolve {
			solvetime = maxSolve
		}
		weightedSolvetimeSum += solvetime * int64(i)
	}
	if weightedSolvetimeSum < 1 {
		weightedSolvetimeSum = 1
	}

	difficultySum := cumulativeDifficulties[n-1] - cumulativeDifficulties[0]
	avgDifficulty := difficultySum / uint64(window)
	expectedWeightedSum := int64(c.DifficultyTarget) * weightSum

	newDiff := avgDifficulty * uint64(expectedWeightedSum) / uint64(weightedSolvetimeSum)
	if newDiff < c.MinDifficulty {
		newDiff = c.MinDifficulty
	}
	return newDiff, nil
}

type difficultyError string

func (e difficultyError) Error() string { return string(e) }

const errMismatchedWindows = difficultyError("currency: timestamps and cumulative difficulties windows must be equal length")
