package cnbinary

import (
	"encoding/binary"
	"fmt"
)

// Bounds on decoded vector lengths. These exist purely to stop a malformed
// or adversarial blob from causing unbounded allocation while decoding;
// values are generous relative to anything the currency config would ever
// accept past validation.
const (
	maxDecodeInputs     = 4096
	maxDecodeOutputs    = 4096
	maxDecodeOutputIdx  = 4096
	maxDecodeExtra      = 1 << 20
	maxDecodeSignatures = 4096
	maxDecodeMsigKeys   = 256
	maxDecodeTxHashes   = 1 << 20
)

// Decode parses a canonical transaction encoding produced by Encode.
func DecodeTransaction(data []byte) (*Transaction, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("cnbinary: transaction data too short")
	}
	tx := &Transaction{}
	off := 0

	tx.Version = data[off]
	off++

	unlock, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("cnbinary: unlock time: %w", err)
	}
	tx.UnlockTime = unlock
	off = n

	inputCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("cnbinary: input count: %w", err)
	}
	off = n
	if inputCount > maxDecodeInputs {
		return nil, 0, fmt.Errorf("cnbinary: input count %d exceeds max %d", inputCount, maxDecodeInputs)
	}
	tx.Inputs = make([]TransactionInput, inputCount)
	for i := range tx.Inputs {
		in, n, err := decodeInput(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("cnbinary: input %d: %w", i, err)
		}
		tx.Inputs[i] = in
		off = n
	}

	outputCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("cnbinary: output count: %w", err)
	}
	off = n
	if outputCount > maxDecodeOutputs {
		return nil, 0, fmt.Errorf("cnbinary: output count %d exceeds max %d", outputCount, maxDecodeOutputs)
	}
	tx.Outputs = make([]TransactionOutput, outputCount)
	for i := range tx.Outputs {
		out, n, err := decodeOutput(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("cnbinary: output %d: %w", i, err)
		}
		tx.Outputs[i] = out
		off = n
	}

	extraLen, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("cnbinary: extra length: %w", err)
	}
	off = n
	if extraLen > maxDecodeExtra {
		return nil, 0, fmt.Errorf("cnbinary: extra length %d exceeds max %d", extraLen, maxDecodeExtra)
	}
	if off+int(extraLen) > len(data) {
		return nil, 0, fmt.Errorf("cnbinary: truncated extra")
	}
	tx.Extra = append([]byte(nil), data[off:off+int(extraLen)]...)
	off += int(extraLen)

	sigVecCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("cnbinary: signature vector count: %w", err)
	}
	off = n
	if sigVecCount > maxDecodeSignatures {
		return nil, 0, fmt.Errorf("cnbinary: signature vector count %d exceeds max %d", sigVecCount, maxDecodeSignatures)
	}
	tx.Signatures = make([][]Signature, sigVecCount)
	for i := range tx.Signatures {
		sigCount, n, err := ReadVarint(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("cnbinary: signature count for input %d: %w", i, err)
		}
		off = n
		if sigCount > maxDecodeSignatures {
			return nil, 0, fmt.Errorf("cnbinary: signature count %d exceeds max %d", sigCount, maxDecodeSignatures)
		}
		vec := make([]Signature, sigCount)
		for j := range vec {
			if off+64 > len(data) {
				return nil, 0, fmt.Errorf("cnbinary: truncated signature %d/%d", i, j)
			}
			copy(vec[j][:], data[off:off+64])
			off += 64
		}
		tx.Signatures[i] = vec
	}

	return tx, off, nil
}

func decodeInput(data []byte, off int) (TransactionInput, int, error) {
	if off >= len(data) {
		return nil, 0, fmt.Errorf("truncated input tag")
	}
	tag := data[off]
	off++
	switch tag {
	case TagBaseInput:
		if off+4 > len(data) {
			return nil, 0, fmt.Errorf("truncated base input")
		}
		bi := BaseInput{BlockIndex: binary.LittleEndian.Uint32(data[off:])}
		return bi, off + 4, nil
	case TagKeyInput:
		amount, n, err := ReadVarint(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("key input amount: %w", err)
		}
		off = n
		idxCount, n, err := ReadVarint(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("key input index count: %w", err)
		}
		off = n
		if idxCount > maxDecodeOutputIdx {
			return nil, 0, fmt.Errorf("key input index count %d exceeds max %d", idxCount, maxDecodeOutputIdx)
		}
		indexes := make([]uint32, idxCount)
		for i := range indexes {
			v, n, err := ReadVarint(data, off)
			if err != nil {
				return nil, 0, fmt.Errorf("key input index %d: %w", i, err)
			}
			indexes[i] = uint32(v)
			off = n
		}
		if off+32 > len(data) {
			return nil, 0, fmt.Errorf("truncated key image")
		}
		var ki KeyImage
		copy(ki[:], data[off:off+32])
		off += 32
		return KeyInput{Amount: amount, OutputIndexes: indexes, KeyImage: ki}, off, nil
	case TagMultisignatureInput:
		amount, n, err := ReadVarint(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("msig input amount: %w", err)
		}
		off = n
		if off >= len(data) {
			return nil, 0, fmt.Errorf("truncated msig signature count")
		}
		sigCount := data[off]
		off++
		outIdx, n, err := ReadVarint(data, off)
		if err != nil {
			return nil, 0, fmt.Errorf("msig output index: %w", err)
		}
		off = n
		return MultisignatureInput{Amount: amount, SignatureCount: sigCount, OutputIndex: uint32(outIdx)}, off, nil
	default:
		return nil, 0, fmt.Errorf("unknown input tag 0x%02x", tag)
	}
}

func decodeOutput(data []byte, off int) (TransactionOutput, int, error) {
	amount, n, err := ReadVarint(data, off)
	if err != nil {
		return TransactionOutput{}, 0, fmt.Errorf("output amount: %w", err)
	}
	off = n
	if off >= len(data) {
		return TransactionOutput{}, 0, fmt.Errorf("truncated output tag")
	}
	tag := data[off]
	off++
	switch tag {
	case TagKeyOutput:
		if off+32 > len(data) {
			return TransactionOutput{}, 0, fmt.Errorf("truncated key output")
		}
		var pk PublicKey
		copy(pk[:], data[off:off+32])
		off += 32
		return TransactionOutput{Amount: amount, Target: KeyOutput{Key: pk}}, off, nil
	case TagMultisignatureOutput:
		keyCount, n, err := ReadVarint(data, off)
		if err != nil {
			return TransactionOutput{}, 0, fmt.Errorf("msig output key count: %w", err)
		}
		off = n
		if keyCount > maxDecodeMsigKeys {
			return TransactionOutput{}, 0, fmt.Errorf("msig output key count %d exceeds max %d", keyCount, maxDecodeMsigKeys)
		}
		keys := make([]PublicKey, keyCount)
		for i := range keys {
			if off+32 > len(data) {
				return TransactionOutput{}, 0, fmt.Errorf("truncated msig key %d", i)
			}
			copy(keys[i][:], data[off:off+32])
			off += 32
		}
		if off >= len(data) {
			return TransactionOutput{}, 0, fmt.Errorf("truncated msig required sig count")
		}
		required := data[off]
		off++
		return TransactionOutput{Amount: amount, Target: MultisignatureOutput{Keys: keys, RequiredSignatureCount: required}}, off, nil
	default:
		return TransactionOutput{}, 0, fmt.Errorf("unknown output tag 0x%02x", tag)
	}
}

// DecodeBlock parses a canonical block encoding produced by (*Block).Encode.
func DecodeBlock(data []byte) (*Block, error) {
	if len(data) < 2+32+4 {
		return nil, fmt.Errorf("cnbinary: block data too short")
	}
	b := &Block{}
	off := 0
	b.MajorVersion = data[off]
	off++
	b.MinorVersion = data[off]
	off++

	ts, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, fmt.Errorf("cnbinary: timestamp: %w", err)
	}
	b.Timestamp = ts
	off = n

	if off+32 > len(data) {
		return nil, fmt.Errorf("cnbinary: truncated prev hash")
	}
	copy(b.PreviousBlockHash[:], data[off:off+32])
	off += 32

	if off+4 > len(data) {
		return nil, fmt.Errorf("cnbinary: truncated nonce")
	}
	b.Nonce = binary.LittleEndian.Uint32(data[off:])
	off += 4

	if UsesParentBlock(b.MajorVersion) {
		pb, n, err := decodeParentBlock(data, off)
		if err != nil {
			return nil, fmt.Errorf("cnbinary: parent block: %w", err)
		}
		b.ParentBlock = pb
		off = n
	}

	baseTx, n, err := DecodeTransaction(data[off:])
	if err != nil {
		return nil, fmt.Errorf("cnbinary: base transaction: %w", err)
	}
	b.BaseTransaction = *baseTx
	off += n

	hashCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, fmt.Errorf("cnbinary: tx hash count: %w", err)
	}
	off = n
	if hashCount > maxDecodeTxHashes {
		return nil, fmt.Errorf("cnbinary: tx hash count %d exceeds max %d", hashCount, maxDecodeTxHashes)
	}
	b.TransactionHashes = make([]Hash, hashCount)
	for i := range b.TransactionHashes {
		if off+32 > len(data) {
			return nil, fmt.Errorf("cnbinary: truncated tx hash %d", i)
		}
		copy(b.TransactionHashes[i][:], data[off:off+32])
		off += 32
	}

	return b, nil
}

func decodeParentBlock(data []byte, off int) (*ParentBlock, int, error) {
	pb := &ParentBlock{}
	if off+2+32+2 > len(data) {
		return nil, 0, fmt.Errorf("truncated parent block header")
	}
	pb.MajorVersion = data[off]
	off++
	pb.MinorVersion = data[off]
	off++
	copy(pb.PreviousBlockHash[:], data[off:off+32])
	off += 32
	pb.TransactionCount = binary.LittleEndian.Uint16(data[off:])
	off += 2

	branchCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("base tx branch count: %w", err)
	}
	off = n
	if branchCount > maxDecodeTxHashes {
		return nil, 0, fmt.Errorf("base tx branch count %d exceeds max %d", branchCount, maxDecodeTxHashes)
	}
	pb.BaseTransactionBranch = make([]Hash, branchCount)
	for i := range pb.BaseTransactionBranch {
		if off+32 > len(data) {
			return nil, 0, fmt.Errorf("truncated base tx branch hash %d", i)
		}
		copy(pb.BaseTransactionBranch[i][:], data[off:off+32])
		off += 32
	}

	baseTx, n, err := DecodeTransaction(data[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("parent base transaction: %w", err)
	}
	pb.BaseTransaction = *baseTx
	off += n

	bcBranchCount, n, err := ReadVarint(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("blockchain branch count: %w", err)
	}
	off = n
	if bcBranchCount > maxDecodeTxHashes {
		return nil, 0, fmt.Errorf("blockchain branch count %d exceeds max %d", bcBranchCount, maxDecodeTxHashes)
	}
	pb.BlockchainBranch = make([]Hash, bcBranchCount)
	for i := range pb.BlockchainBranch {
		if off+32 > len(data) {
			return nil, 0, fmt.Errorf("truncated blockchain branch hash %d", i)
		}
		copy(pb.BlockchainBranch[i][:], data[off:off+32])
		off += 32
	}

	return pb, off, nil
}
