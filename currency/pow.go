package currency

import (
	"math/big"

	"github.com/aivve/karbowanec/cnbinary"
)

// maxTarget is 2^256, the numerator of the difficulty-to-target conversion
// (§4.2.1 step 7: "proof_of_work(version, block) ≤ floor(2²⁵⁶ / difficulty)").
var maxTarget = new(big.Int).Lsh(big.NewInt(1), 256)

// CheckProofOfWork reports whether powHash satisfies the target implied by
// difficulty. This is plain big-integer division and comparison — no
// third-party library in the pack implements arbitrary-precision integer
// division any more directly than math/big already does, so this single
// predicate is implemented on the standard library by necessity rather than
// by default (see DESIGN.md).
func CheckProofOfWork(powHash cnbinary.Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return false
	}
	target := new(big.Int).Div(maxTarget, new(big.Int).SetUint64(difficulty))

	// CryptoNote-family PoW hashes are compared as little-endian integers.
	reversed := make([]byte, 32)
	for i, b := range powHash {
		reversed[31-i] = b
	}
	hashInt := new(big.Int).SetBytes(reversed)
	return hashInt.Cmp(target) <= 0
}
