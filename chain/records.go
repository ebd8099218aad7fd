// Package chain is the canonical chain manager (§4.2): the single-writer,
// multi-reader owner of persistent chain state, grounded on the corpus's
// block.go Chain struct (sync.RWMutex-guarded in-memory tip plus a bbolt
// facade) and storage.go's atomic-commit contract.
package chain

import (
	"encoding/json"
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/kv"
)

// BlockEntry is the persisted record for one main-chain block (§3:
// "BlockEntry is created on append, never mutated, destroyed on rollback").
// Persisted as JSON, matching the corpus's own storage.go (SaveBlock calls
// json.Marshal(block) directly) rather than introducing a second codec for
// internal KV records alongside the wire-accurate cnbinary codec.
type BlockEntry struct {
	Height                uint64
	Block                 *cnbinary.Block
	CumulativeDifficulty  uint64
	AlreadyGeneratedCoins uint64
	CumulativeSize        uint64
	TxHashes              []cnbinary.Hash
	Fees                  []uint64
}

func encodeBlockEntry(e *BlockEntry) ([]byte, error) { return json.Marshal(e) }

func decodeBlockEntry(data []byte) (*BlockEntry, error) {
	var e BlockEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// outputRecord is the persisted record for one global output index within
// BucketOutputs, keyed by amount||globalIndex.
type outputRecord struct {
	TxHash      cnbinary.Hash
	OutputIndex uint16
	PubKey      cnbinary.PublicKey
	BlockHeight uint64
	UnlockTime  uint64
}

func encodeOutputRecord(r *outputRecord) ([]byte, error) { return json.Marshal(r) }

func decodeOutputRecord(data []byte) (*outputRecord, error) {
	var r outputRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// multisigOutputRecord is the persisted record for one global multisignature
// output index within BucketMultisigOuts.
type multisigOutputRecord struct {
	TxHash                 cnbinary.Hash
	Keys                   []cnbinary.PublicKey
	RequiredSignatureCount uint8
	Used                   bool
	BlockHeight            uint64
	UnlockTime             uint64
}

func encodeMultisigOutputRecord(r *multisigOutputRecord) ([]byte, error) { return json.Marshal(r) }

func decodeMultisigOutputRecord(data []byte) (*multisigOutputRecord, error) {
	var r multisigOutputRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// txIndexRecord resolves a transaction hash to its position within the
// chain and retains the transaction's encoded body, used by
// have_transaction / find-tx-by-hash queries and by the pop algorithm
// (§4.2.2), which needs the original inputs/outputs to undo them.
type txIndexRecord struct {
	Height uint64
	Pos    int // 0 is the coinbase
	Data   []byte
}

func encodeTxIndexRecord(r *txIndexRecord) ([]byte, error) { return json.Marshal(r) }

func decodeTxIndexRecord(data []byte) (*txIndexRecord, error) {
	var r txIndexRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// paymentIdEntry is the persisted record for BucketPaymentIDs: the list of
// transaction hashes whose extra field carries a given payment id (§3,
// "append-only while containing tx is accepted").
type paymentIdEntry struct {
	TxHashes []cnbinary.Hash
}

func encodePaymentIdEntry(r *paymentIdEntry) ([]byte, error) { return json.Marshal(r) }

func decodePaymentIdEntry(data []byte) (*paymentIdEntry, error) {
	var r paymentIdEntry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func outputKey(amount cnbinary.Amount, globalIndex uint64) []byte {
	return append(kv.EncodeVarintKey(amount), kv.EncodeVarintKey(globalIndex)...)
}

func outputCountKey(amount cnbinary.Amount) []byte {
	return append([]byte("oc:"), kv.EncodeVarintKey(amount)...)
}

func heightKey(height uint64) []byte {
	return kv.EncodeVarintKey(height)
}

func be8(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func decodeBE8(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("chain: expected 8-byte value, got %d", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}
