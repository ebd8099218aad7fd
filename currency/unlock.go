package currency

import "github.com/aivve/karbowanec/cnbinary"

// IsTransactionMature implements §4.6's unlock-time semantics. unlockTime
// below cnbinary.MaxBlockHeight is a block height; at or above it, a Unix
// timestamp.
func (c *Config) IsTransactionMature(unlockTime uint64, currentHeight uint64, lastBlockTimestamp int64) bool {
	if unlockTime < cnbinary.MaxBlockHeight {
		return currentHeight-1+c.LockedTxAllowedDeltaBlocks >= unlockTime
	}
	return uint64(lastBlockTimestamp)+c.LockedTxAllowedDeltaSeconds >= unlockTime
}
