package chain

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

// nextOutputIndex returns the current count of key-outputs stored for
// amount, i.e. the global index the next key-output at that amount will
// receive.
func (m *Manager) nextOutputIndex(amount cnbinary.Amount) (uint64, error) {
	data, ok, err := m.store.Get(kv.BucketMeta, outputCountKey(amount))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeBE8(data)
}

func (m *Manager) nextMultisigOutputIndex(amount cnbinary.Amount) (uint64, error) {
	data, ok, err := m.store.Get(kv.BucketMeta, append([]byte("mc:"), kv.EncodeVarintKey(amount)...))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeBE8(data)
}

// pushTransactionOutputs indexes every output of tx (coinbase or not) into
// the outputs-by-amount / multisig-outputs-by-amount buckets, advancing
// their per-amount counters. unlockTime is tx.UnlockTime for coinbases and
// non-coinbase transactions alike, per §4.6.
func (m *Manager) pushTransactionOutputs(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash, blockHeight uint64) error {
	for outIdx, out := range tx.Outputs {
		switch target := out.Target.(type) {
		case cnbinary.KeyOutput:
			idx, err := m.nextOutputIndex(out.Amount)
			if err != nil {
				return err
			}
			rec := &outputRecord{
				TxHash:      txHash,
				OutputIndex: uint16(outIdx),
				PubKey:      target.Key,
				BlockHeight: blockHeight,
				UnlockTime:  tx.UnlockTime,
			}
			data, err := encodeOutputRecord(rec)
			if err != nil {
				return err
			}
			wb.Put(kv.BucketOutputs, outputKey(out.Amount, idx), data, true)
			wb.Put(kv.BucketMeta, outputCountKey(out.Amount), be8(idx+1), false)

		case cnbinary.MultisignatureOutput:
			idx, err := m.nextMultisigOutputIndex(out.Amount)
			if err != nil {
				return err
			}
			rec := &multisigOutputRecord{
				TxHash:                 txHash,
				Keys:                   target.Keys,
				RequiredSignatureCount: target.RequiredSignatureCount,
				Used:                   false,
				BlockHeight:            blockHeight,
				UnlockTime:             tx.UnlockTime,
			}
			data, err := encodeMultisigOutputRecord(rec)
			if err != nil {
				return err
			}
			wb.Put(kv.BucketMultisigOuts, outputKey(out.Amount, idx), data, true)
			wb.Put(kv.BucketMeta, append([]byte("mc:"), kv.EncodeVarintKey(out.Amount)...), be8(idx+1), false)

		default:
			return fmt.Errorf("chain: unknown output target type %T", target)
		}
	}
	return nil
}

func (m *Manager) pushCoinbaseOutputs(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash, blockHeight uint64) error {
	return m.pushTransactionOutputs(wb, tx, txHash, blockHeight)
}

// popTransactionOutputs removes the tail entries pushed by
// pushTransactionOutputs for tx, asserting the popped entry's TxHash
// matches (§4.2.2 step 2: "assert-equal that the popped entry matches").
func (m *Manager) popTransactionOutputs(wb *kv.WriteBatch, tx *cnbinary.Transaction, txHash cnbinary.Hash) error {
	// Outputs must be popped in reverse position order within the tx to
	// mirror push order exactly.
	for outIdx := len(tx.Outputs) - 1; outIdx >= 0; outIdx-- {
		out := tx.Outputs[outIdx]
		switch out.Target.(type) {
		case cnbinary.KeyOutput:
			idx, err := m.nextOutputIndex(out.Amount)
			if err != nil {
				return err
			}
			if idx == 0 {
				return fmt.Errorf("chain: pop key-output underflow at amount %d", out.Amount)
			}
			idx--
			data, ok, err := m.store.Get(kv.BucketOutputs, outputKey(out.Amount, idx))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("chain: missing key-output record at amount %d index %d", out.Amount, idx)
			}
			rec, err := decodeOutputRecord(data)
			if err != nil {
				return err
			}
			if rec.TxHash != txHash || int(rec.OutputIndex) != outIdx {
				return fmt.Errorf("chain: popped key-output at amount %d index %d does not match expected tx/position", out.Amount, idx)
			}
			wb.Delete(kv.BucketOutputs, outputKey(out.Amount, idx), true)
			wb.Put(kv.BucketMeta, outputCountKey(out.Amount), be8(idx), false)

		case cnbinary.MultisignatureOutput:
			idx, err := m.nextMultisigOutputIndex(out.Amount)
			if err != nil {
				return err
			}
			if idx == 0 {
				return fmt.Errorf("chain: pop multisig-output underflow at amount %d", out.Amount)
			}
			idx--
			data, ok, err := m.store.Get(kv.BucketMultisigOuts, outputKey(out.Amount, idx))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("chain: missing multisig-output record at amount %d index %d", out.Amount, idx)
			}
			rec, err := decodeMultisigOutputRecord(data)
			if err != nil {
				return err
			}
			if rec.TxHash != txHash {
				return fmt.Errorf("chain: popped multisig-output at amount %d index %d does not match expected tx", out.Amount, idx)
			}
			wb.Delete(kv.BucketMultisigOuts, outputKey(out.Amount, idx), true)
			wb.Put(kv.BucketMeta, append([]byte("mc:"), kv.EncodeVarintKey(out.Amount)...), be8(idx), false)
		}
	}
	return nil
}

// keyOutputRecordLocked reads a key-output record directly, distinguishing
// "does not exist" from "exists but immature" for callers (§4.7's
// find_end_of_allowed_index) that need the boundary itself rather than a
// single collapsed ok flag.
func (m *Manager) keyOutputRecordLocked(amount cnbinary.Amount, globalIndex uint64) (rec *outputRecord, exists bool, err error) {
	data, ok, err := m.store.Get(kv.BucketOutputs, outputKey(amount, globalIndex))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err = decodeOutputRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// findEndOfAllowedIndexLocked returns the greatest index K such that every
// key-output at [0, K) for amount is unlock-mature on the current tip
// (§4.7): outputs are pushed in non-decreasing block height, so maturity is
// monotonic and K can be found by binary search instead of a linear scan.
func (m *Manager) findEndOfAllowedIndexLocked(amount cnbinary.Amount) (uint64, error) {
	count, err := m.nextOutputIndex(amount)
	if err != nil {
		return 0, err
	}
	lo, hi := uint64(0), count
	for lo < hi {
		mid := lo + (hi-lo)/2
		rec, exists, err := m.keyOutputRecordLocked(amount, mid)
		if err != nil {
			return 0, err
		}
		if exists && m.currency.IsTransactionMature(rec.UnlockTime, m.currentHeight, m.lastBlockTimestampLocked()) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// lookupKeyOutput implements validation.KeyOutputLookup against persisted
// state.
func (m *Manager) lookupKeyOutput(amount cnbinary.Amount, globalIndex uint32) (cnbinary.PublicKey, uint64, bool) {
	data, ok, err := m.store.Get(kv.BucketOutputs, outputKey(amount, uint64(globalIndex)))
	if err != nil || !ok {
		return cnbinary.PublicKey{}, 0, false
	}
	rec, err := decodeOutputRecord(data)
	if err != nil {
		return cnbinary.PublicKey{}, 0, false
	}
	if !m.currency.IsTransactionMature(rec.UnlockTime, m.currentHeight, m.lastBlockTimestampLocked()) {
		return cnbinary.PublicKey{}, 0, false
	}
	return rec.PubKey, rec.BlockHeight, true
}

// lookupMultisigOutput implements validation.MultisigOutputLookup against
// persisted state.
func (m *Manager) lookupMultisigOutput(amount cnbinary.Amount, globalIndex uint32) (*cnbinary.MultisignatureOutput, uint64, bool, bool) {
	data, ok, err := m.store.Get(kv.BucketMultisigOuts, outputKey(amount, uint64(globalIndex)))
	if err != nil || !ok {
		return nil, 0, false, false
	}
	rec, err := decodeMultisigOutputRecord(data)
	if err != nil {
		return nil, 0, false, false
	}
	if !rec.Used && !m.currency.IsTransactionMature(rec.UnlockTime, m.currentHeight, m.lastBlockTimestampLocked()) {
		return nil, 0, false, false
	}
	out := &cnbinary.MultisignatureOutput{Keys: rec.Keys, RequiredSignatureCount: rec.RequiredSignatureCount}
	return out, rec.UnlockTime, rec.Used, true
}

func (m *Manager) markMultisigOutputUsed(wb *kv.WriteBatch, amount cnbinary.Amount, globalIndex uint32, used bool) error {
	data, ok, err := m.store.Get(kv.BucketMultisigOuts, outputKey(amount, uint64(globalIndex)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chain: multisig output %d at amount %d does not exist", globalIndex, amount)
	}
	rec, err := decodeMultisigOutputRecord(data)
	if err != nil {
		return err
	}
	rec.Used = used
	out, err := encodeMultisigOutputRecord(rec)
	if err != nil {
		return err
	}
	wb.Put(kv.BucketMultisigOuts, outputKey(amount, uint64(globalIndex)), out, false)
	return nil
}
