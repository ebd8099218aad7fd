package cryptoprim

import (
	"github.com/aivve/karbowanec/cnbinary"
	"golang.org/x/crypto/sha3"
)

// Keccak256 is the hashing primitive used for block/transaction identity
// and the merkle tree (§6: "hashing primitives"). Unlike ring-signature
// verification and the PoW hash, this one is a real Go library already in
// the pack (golang.org/x/crypto/sha3, as used directly by the teacher's own
// block.go) rather than an FFI call, so it is wired here instead of routed
// through the native library.
func Keccak256(data []byte) cnbinary.Hash {
	return sha3.Sum256(data)
}
