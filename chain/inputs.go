package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/validation"
)

// validateAndPushInputs validates every input of a non-coinbase transaction
// against current chain state (§4.5) and queues the resulting key-image and
// multisig-output-usage mutations into wb. Returns the transaction fee
// (inputs sum minus outputs sum) and the maximum referenced block height
// across all key inputs (for pool replay detection).
func (m *Manager) validateAndPushInputs(wb *kv.WriteBatch, tx *cnbinary.Transaction, prefixHash cnbinary.Hash, insideCheckpointZone bool) (fee uint64, pmaxUsedBlockHeight uint64, err error) {
	var inputSum uint64

	for i, in := range tx.Inputs {
		switch input := in.(type) {
		case cnbinary.KeyInput:
			ctx := &validation.InputValidationContext{
				TipHeight:            m.currentHeight,
				LastBlockTimestamp:   m.lastBlockTimestampLocked(),
				InsideCheckpointZone: insideCheckpointZone,
				PrefixHash:           prefixHash,
				IsKeyImageSpent:      m.isKeyImageSpent,
				LookupKeyOutput:      m.lookupKeyOutput,
			}
			var sigs []cnbinary.Signature
			if i < len(tx.Signatures) {
				sigs = tx.Signatures[i]
			}
			pmax, verr := m.kernel.ValidateKeyInput(ctx, &input, sigs)
			if verr != nil {
				return 0, 0, fmt.Errorf("input %d: %w", i, verr)
			}
			if pmax > pmaxUsedBlockHeight {
				pmaxUsedBlockHeight = pmax
			}
			next := inputSum + input.Amount
			if next < inputSum {
				return 0, 0, fmt.Errorf("input %d: input sum overflows", i)
			}
			inputSum = next
			markKeyImageSpent(wb, input.KeyImage, m.currentHeight)

		case cnbinary.MultisignatureInput:
			ctx := &validation.InputValidationContext{
				LookupMultisig: m.lookupMultisigOutput,
			}
			var sigs []cnbinary.Signature
			if i < len(tx.Signatures) {
				sigs = tx.Signatures[i]
			}
			if err := m.kernel.ValidateMultisignatureInput(ctx, &input, prefixHash, sigs); err != nil {
				return 0, 0, fmt.Errorf("input %d: %w", i, err)
			}
			next := inputSum + input.Amount
			if next < inputSum {
				return 0, 0, fmt.Errorf("input %d: input sum overflows", i)
			}
			inputSum = next
			if err := m.markMultisigOutputUsed(wb, input.Amount, input.OutputIndex, true); err != nil {
				return 0, 0, fmt.Errorf("input %d: %w", i, err)
			}

		default:
			return 0, 0, fmt.Errorf("input %d: unknown input type %T", i, input)
		}
	}

	var outputSum uint64
	for _, out := range tx.Outputs {
		next := outputSum + out.Amount
		if next < outputSum {
			return 0, 0, fmt.Errorf("output sum overflows")
		}
		outputSum = next
	}
	if inputSum < outputSum {
		return 0, 0, fmt.Errorf("outputs exceed inputs: in=%d out=%d", inputSum, outputSum)
	}
	return inputSum - outputSum, pmaxUsedBlockHeight, nil
}

// popInputs undoes validateAndPushInputs for a popped transaction (§4.2.2
// step 2): un-spends its key images and un-marks its multisig outputs.
func (m *Manager) popInputs(wb *kv.WriteBatch, tx *cnbinary.Transaction) error {
	for i, in := range tx.Inputs {
		switch input := in.(type) {
		case cnbinary.KeyInput:
			unmarkKeyImageSpent(wb, input.KeyImage)
		case cnbinary.MultisignatureInput:
			if err := m.markMultisigOutputUsed(wb, input.Amount, input.OutputIndex, false); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		default:
			return fmt.Errorf("input %d: unknown input type %T", i, input)
		}
	}
	return nil
}
