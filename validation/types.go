package validation

import (
	"github.com/aivve/karbowanec/cnbinary"
)

// KeyOutputLookup resolves a key-output reference to its owning transaction's
// public key and the height of the block that created it. ok is false if no
// such output exists.
type KeyOutputLookup func(amount cnbinary.Amount, globalIndex uint32) (pubKey cnbinary.PublicKey, blockHeight uint64, ok bool)

// MultisigOutputLookup resolves a multisignature-output reference.
type MultisigOutputLookup func(amount cnbinary.Amount, globalIndex uint32) (out *cnbinary.MultisignatureOutput, unlockTime uint64, used bool, ok bool)

// KeyImageSpentChecker reports whether a key image is already in the
// spent-key-image set.
type KeyImageSpentChecker func(ki cnbinary.KeyImage) bool

// RingSignatureVerifier verifies a ring signature binding keyImage to one of
// pubKeys over prefixHash. Satisfied by cryptoprim.VerifyRingSignature.
type RingSignatureVerifier func(prefixHash cnbinary.Hash, keyImage cnbinary.KeyImage, pubKeys []cnbinary.PublicKey, sigs []cnbinary.Signature) (bool, error)

// KeyImageTorsionChecker implements the extra torsion check (§4.5 step 5).
// Satisfied by cryptoprim.KeyImageTorsionCheck.
type KeyImageTorsionChecker func(ki cnbinary.KeyImage) bool

// SingleSignatureVerifier verifies one signature by one public key over a
// hash, used for the multisignature-input scan. Satisfied by
// cryptoprim.VerifySignature.
type SingleSignatureVerifier func(msgHash cnbinary.Hash, pubKey cnbinary.PublicKey, sig cnbinary.Signature) bool

// PowHasher computes the proof-of-work hash over serialized block bytes.
// Satisfied by cryptoprim.PowHash.
type PowHasher func(headerBytes []byte) (cnbinary.Hash, error)

// InputValidationContext bundles everything ValidateKeyInput/
// ValidateMultisignatureInput need to resolve and check an input against
// chain state, without the validation package importing the chain package
// that owns that state.
type InputValidationContext struct {
	TipHeight            uint64
	LastBlockTimestamp   int64
	InsideCheckpointZone bool
	PrefixHash           cnbinary.Hash

	IsKeyImageSpent KeyImageSpentChecker
	LookupKeyOutput KeyOutputLookup
	LookupMultisig  MultisigOutputLookup
}
