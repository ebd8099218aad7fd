package currency

import "fmt"

// GetBlockReward computes the miner reward and the change in
// already-generated-coins for a block, per §4.2.1 step 11:
// reward(blockMajorVersion, medianSize, currentBlockSize, alreadyGeneratedCoins, fee) -> (reward, emissionChange).
//
// The median is floored at the "granted full reward zone". Blocks no larger
// than that median get the full emission-curve reward; larger blocks pay a
// reward that shrinks linearly toward zero at 2x the median (penalizing
// bloat); blocks above 2x the median are rejected with an error.
func (c *Config) GetBlockReward(majorVersion uint8, medianSize, currentBlockSize uint64, alreadyGeneratedCoins uint64, fee uint64) (reward uint64, emissionChange uint64, err error) {
	baseReward := c.baseRewardAtSupply(alreadyGeneratedCoins)

	if medianSize < c.GrantedFullRewardZone {
		medianSize = c.GrantedFullRewardZone
	}

	if currentBlockSize > medianSize*2 {
		return 0, 0, fmt.Errorf("currency: block size %d exceeds 2x median %d", currentBlockSize, medianSize)
	}

	if currentBlockSize > medianSize {
		// Linearly shrink the reward as size grows from 1x to 2x median.
		multiplier := (2*medianSize - currentBlockSize) * medianSize
		penalizedBase := (baseReward * multiplier) / (medianSize * medianSize)
		baseReward = penalizedBase
	}

	reward = baseReward + fee
	emissionChange = baseReward
	return reward, emissionChange, nil
}

// baseRewardAtSupply implements the emission curve: base reward halves
// roughly every 2^EmissionSpeedFactor atomic units of remaining supply.
func (c *Config) baseRewardAtSupply(alreadyGeneratedCoins uint64) uint64 {
	if alreadyGeneratedCoins >= c.MoneySupply {
		return 0
	}
	remaining := c.MoneySupply - alreadyGeneratedCoins
	return remaining >> c.EmissionSpeedFactor
}
