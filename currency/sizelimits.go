package currency

// NextBlockGrantedSizeLimit computes the updated
// current_block_cumul_sz_limit per §4.2.1 step 13: 2 × max(median,
// granted_full_reward_zone(v)). The chain manager stores the result as
// currentBlockCumulSzLimit after every append, pop and load; the step 10
// check (CheckCumulativeBlockSize) uses MaxBlockCumulativeSizeAt, not this
// value.
func (c *Config) NextBlockGrantedSizeLimit(medianBlockSize uint64) uint64 {
	floor := c.GrantedFullRewardZone
	if medianBlockSize > floor {
		floor = medianBlockSize
	}
	return 2 * floor
}

// MaxBlockCumulativeSizeAt returns the hard ceiling on a block's cumulative
// size at height (§4.2.1 step 10). In this configuration the ceiling is a
// constant, but kept as a method so a height-dependent schedule could be
// introduced without touching call sites.
func (c *Config) MaxBlockCumulativeSizeAt(height uint64) uint64 {
	return c.MaxBlockCumulativeSize
}

// Median returns the median of a slice of sizes, following the original's
// convention of averaging the two middle elements for an even-length input.
// The input is sorted in place.
func Median(sizes []uint64) uint64 {
	n := len(sizes)
	if n == 0 {
		return 0
	}
	insertionSortUint64(sizes)
	if n%2 == 1 {
		return sizes[n/2]
	}
	return (sizes[n/2-1] + sizes[n/2]) / 2
}

// insertionSortUint64 mirrors the teacher's own bubble/insertion-sort style
// for small in-memory windows (block.go's MedianTimestamp) rather than
// reaching for sort.Slice on what is always a short window (a few dozen to
// a few hundred elements).
func insertionSortUint64(a []uint64) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
