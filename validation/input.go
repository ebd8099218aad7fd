package validation

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
)

// ValidateKeyInput implements §4.5 "Key input". sigs are the per-input ring
// signatures carried on the transaction (not the input itself). Returns the
// maximum block height among the referenced outputs (pmaxUsedBlockHeight,
// step 6) on success, used by the pool for replay detection.
func (k *Kernel) ValidateKeyInput(ctx *InputValidationContext, in *cnbinary.KeyInput, sigs []cnbinary.Signature) (pmaxUsedBlockHeight uint64, err error) {
	if ctx.IsKeyImageSpent(in.KeyImage) {
		return 0, fmt.Errorf("key image already spent")
	}

	// A checkpoint vouches for the whole block, so the referenced-output
	// lookup/maturity walk and the ring signature check below it are both
	// skipped entirely (§4.2.1/§4.5, mirroring checkTransactionInputs
	// wrapping the per-input check in !isInCheckpointZone). pmaxUsedBlockHeight
	// is accepted as 0 in this case, same as the original.
	if ctx.InsideCheckpointZone {
		return 0, nil
	}

	absolute := resolveAbsoluteIndexes(in.OutputIndexes)

	pubKeys := make([]cnbinary.PublicKey, len(absolute))
	for i, idx := range absolute {
		pubKey, blockHeight, ok := ctx.LookupKeyOutput(in.Amount, idx)
		if !ok {
			return 0, fmt.Errorf("referenced output %d at amount %d does not exist", idx, in.Amount)
		}
		pubKeys[i] = pubKey
		if blockHeight > pmaxUsedBlockHeight {
			pmaxUsedBlockHeight = blockHeight
		}
	}

	if len(sigs) != len(pubKeys) {
		return 0, fmt.Errorf("signature count %d does not match ring size %d", len(sigs), len(pubKeys))
	}

	ok, err := k.VerifyRingSignature(ctx.PrefixHash, in.KeyImage, pubKeys, sigs)
	if err != nil {
		return 0, fmt.Errorf("ring signature verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("invalid ring signature")
	}

	if !k.KeyImageTorsion(in.KeyImage) {
		return 0, fmt.Errorf("key image fails torsion check")
	}

	return pmaxUsedBlockHeight, nil
}

// resolveAbsoluteIndexes converts the CryptoNote relative-index encoding
// (each entry after the first is a delta from the previous) into absolute
// global output indexes via a running prefix sum.
func resolveAbsoluteIndexes(relative []uint32) []uint32 {
	absolute := make([]uint32, len(relative))
	var running uint32
	for i, d := range relative {
		running += d
		absolute[i] = running
	}
	return absolute
}

// ValidateMultisignatureInput implements §4.5 "Multisignature input".
func (k *Kernel) ValidateMultisignatureInput(ctx *InputValidationContext, in *cnbinary.MultisignatureInput, prefixHash cnbinary.Hash, sigs []cnbinary.Signature) error {
	out, unlockTime, used, ok := ctx.LookupMultisig(in.Amount, in.OutputIndex)
	if !ok {
		return fmt.Errorf("multisignature output %d at amount %d does not exist", in.OutputIndex, in.Amount)
	}
	if used {
		return fmt.Errorf("multisignature output %d at amount %d already spent", in.OutputIndex, in.Amount)
	}
	_ = unlockTime // owning transaction maturity is confirmed by the caller before this lookup succeeds.

	if out.RequiredSignatureCount != in.SignatureCount {
		return fmt.Errorf("required signature count %d does not match input's %d", out.RequiredSignatureCount, in.SignatureCount)
	}

	keyIdx := 0
	for sigIdx, sig := range sigs {
		matched := false
		for ; keyIdx < len(out.Keys); keyIdx++ {
			if k.VerifySignature(prefixHash, out.Keys[keyIdx], sig) {
				matched = true
				keyIdx++
				break
			}
		}
		if !matched {
			return fmt.Errorf("signature %d has no matching output key before keys were exhausted", sigIdx)
		}
	}
	if len(sigs) != int(in.SignatureCount) {
		return fmt.Errorf("signature count %d does not match required count %d", len(sigs), in.SignatureCount)
	}
	return nil
}
