package cnbinary

import (
	"encoding/binary"
	"fmt"
)

// Encode produces the canonical byte-exact transaction encoding required by
// §6: each uint64 as unsigned varint, each vector as varint(len) then
// elements, each variant input/output as a tag byte then payload, extra as a
// raw TLV byte stream carried verbatim.
func (tx *Transaction) Encode() ([]byte, error) {
	buf := make([]byte, 0, 128+len(tx.Extra)+64*len(tx.Inputs)+64*len(tx.Outputs))

	buf = append(buf, tx.Version)
	buf = WriteVarint(buf, tx.UnlockTime)

	buf = WriteVarint(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		var err error
		buf, err = encodeInput(buf, in)
		if err != nil {
			return nil, err
		}
	}

	buf = WriteVarint(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		var err error
		buf, err = encodeOutput(buf, out)
		if err != nil {
			return nil, err
		}
	}

	buf = WriteVarint(buf, uint64(len(tx.Extra)))
	buf = append(buf, tx.Extra...)

	buf = WriteVarint(buf, uint64(len(tx.Signatures)))
	for _, sigVec := range tx.Signatures {
		buf = WriteVarint(buf, uint64(len(sigVec)))
		for _, sig := range sigVec {
			buf = append(buf, sig[:]...)
		}
	}

	return buf, nil
}

// Encode encodes only the TransactionPrefix, used as the message input
// to the ring-signature primitive (the signing hash excludes Signatures).
func (p *TransactionPrefix) Encode() ([]byte, error) {
	buf := make([]byte, 0, 64+len(p.Extra))
	buf = append(buf, p.Version)
	buf = WriteVarint(buf, p.UnlockTime)

	buf = WriteVarint(buf, uint64(len(p.Inputs)))
	for _, in := range p.Inputs {
		var err error
		buf, err = encodeInput(buf, in)
		if err != nil {
			return nil, err
		}
	}

	buf = WriteVarint(buf, uint64(len(p.Outputs)))
	for _, out := range p.Outputs {
		var err error
		buf, err = encodeOutput(buf, out)
		if err != nil {
			return nil, err
		}
	}

	buf = WriteVarint(buf, uint64(len(p.Extra)))
	buf = append(buf, p.Extra...)
	return buf, nil
}

func encodeInput(buf []byte, in TransactionInput) ([]byte, error) {
	switch v := in.(type) {
	case BaseInput:
		buf = append(buf, TagBaseInput)
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v.BlockIndex)
		buf = append(buf, tmp[:]...)
	case KeyInput:
		buf = append(buf, TagKeyInput)
		buf = WriteVarint(buf, v.Amount)
		buf = WriteVarint(buf, uint64(len(v.OutputIndexes)))
		for _, oi := range v.OutputIndexes {
			buf = WriteVarint(buf, uint64(oi))
		}
		buf = append(buf, v.KeyImage[:]...)
	case MultisignatureInput:
		buf = append(buf, TagMultisignatureInput)
		buf = WriteVarint(buf, v.Amount)
		buf = append(buf, v.SignatureCount)
		buf = WriteVarint(buf, uint64(v.OutputIndex))
	default:
		return nil, fmt.Errorf("cnbinary: unknown input type %T", in)
	}
	return buf, nil
}

func encodeOutput(buf []byte, out TransactionOutput) ([]byte, error) {
	buf = WriteVarint(buf, out.Amount)
	switch v := out.Target.(type) {
	case KeyOutput:
		buf = append(buf, TagKeyOutput)
		buf = append(buf, v.Key[:]...)
	case MultisignatureOutput:
		buf = append(buf, TagMultisignatureOutput)
		buf = WriteVarint(buf, uint64(len(v.Keys)))
		for _, k := range v.Keys {
			buf = append(buf, k[:]...)
		}
		buf = append(buf, v.RequiredSignatureCount)
	default:
		return nil, fmt.Errorf("cnbinary: unknown output target type %T", out.Target)
	}
	return buf, nil
}

// Encode produces the canonical block encoding: header fields, the optional
// merge-mining parent block (versions 2/3 only), the base transaction, and
// the list of non-coinbase transaction hashes.
func (b *Block) Encode() ([]byte, error) {
	buf := make([]byte, 0, 256+32*len(b.TransactionHashes))
	buf = append(buf, b.MajorVersion, b.MinorVersion)
	buf = WriteVarint(buf, b.Timestamp)
	buf = append(buf, b.PreviousBlockHash[:]...)
	var nonceBuf [4]byte
	binary.LittleEndian.PutUint32(nonceBuf[:], b.Nonce)
	buf = append(buf, nonceBuf[:]...)

	if UsesParentBlock(b.MajorVersion) {
		if b.ParentBlock == nil {
			return nil, fmt.Errorf("cnbinary: major version %d requires a parent block", b.MajorVersion)
		}
		pbBytes, err := encodeParentBlock(b.ParentBlock)
		if err != nil {
			return nil, err
		}
		buf = append(buf, pbBytes...)
	}

	baseTxBytes, err := b.BaseTransaction.Encode()
	if err != nil {
		return nil, fmt.Errorf("cnbinary: encode base tx: %w", err)
	}
	buf = append(buf, baseTxBytes...)

	buf = WriteVarint(buf, uint64(len(b.TransactionHashes)))
	for _, h := range b.TransactionHashes {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

func encodeParentBlock(pb *ParentBlock) ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, pb.MajorVersion, pb.MinorVersion)
	buf = append(buf, pb.PreviousBlockHash[:]...)
	var cntBuf [2]byte
	binary.LittleEndian.PutUint16(cntBuf[:], pb.TransactionCount)
	buf = append(buf, cntBuf[:]...)

	buf = WriteVarint(buf, uint64(len(pb.BaseTransactionBranch)))
	for _, h := range pb.BaseTransactionBranch {
		buf = append(buf, h[:]...)
	}

	baseTxBytes, err := pb.BaseTransaction.Encode()
	if err != nil {
		return nil, fmt.Errorf("cnbinary: encode parent base tx: %w", err)
	}
	buf = append(buf, baseTxBytes...)

	buf = WriteVarint(buf, uint64(len(pb.BlockchainBranch)))
	for _, h := range pb.BlockchainBranch {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

// SerializeForPoW returns the byte string hashed by the proof-of-work
// function: for versions with a merge-mining header, this is the parent
// block's serialization (the PoW binds the parent header, which embeds this
// block's hash via the base-transaction-branch merkle proof); otherwise the
// block's own header bytes.
func (b *Block) SerializeForPoW() ([]byte, error) {
	if UsesParentBlock(b.MajorVersion) {
		if b.ParentBlock == nil {
			return nil, fmt.Errorf("cnbinary: major version %d requires a parent block", b.MajorVersion)
		}
		return encodeParentBlock(b.ParentBlock)
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, b.MajorVersion, b.MinorVersion)
	buf = WriteVarint(buf, b.Timestamp)
	buf = append(buf, b.PreviousBlockHash[:]...)
	var nonceBuf [4]byte
	binary.LittleEndian.PutUint32(nonceBuf[:], b.Nonce)
	buf = append(buf, nonceBuf[:]...)
	return buf, nil
}
