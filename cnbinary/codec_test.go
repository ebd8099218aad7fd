package cnbinary

import (
	"bytes"
	"testing"
)

func sampleTransaction() *Transaction {
	var ki KeyImage
	ki[0] = 0xaa
	var pk PublicKey
	pk[0] = 0xbb
	var sig Signature
	sig[0] = 0xcc

	return &Transaction{
		TransactionPrefix: TransactionPrefix{
			Version:    1,
			UnlockTime: 12345,
			Inputs: []TransactionInput{
				KeyInput{Amount: 1000, OutputIndexes: []uint32{1, 2, 3}, KeyImage: ki},
			},
			Outputs: []TransactionOutput{
				{Amount: 500, Target: KeyOutput{Key: pk}},
				{Amount: 500, Target: MultisignatureOutput{Keys: []PublicKey{pk, pk}, RequiredSignatureCount: 2}},
			},
			Extra: []byte{0x01, 0x02, 0x03},
		},
		Signatures: [][]Signature{{sig, sig, sig}},
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := sampleTransaction()
	encoded, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, n, err := DecodeTransaction(encoded)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("decoded %d of %d bytes", n, len(encoded))
	}

	reEncoded, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(encoded, reEncoded) {
		t.Fatalf("round trip mismatch:\n  got  %x\n  want %x", reEncoded, encoded)
	}
}

func TestCoinbaseTransactionRoundTrip(t *testing.T) {
	var pk PublicKey
	pk[0] = 0x01
	tx := &Transaction{
		TransactionPrefix: TransactionPrefix{
			Version:    1,
			UnlockTime: 100,
			Inputs:     []TransactionInput{BaseInput{BlockIndex: 42}},
			Outputs:    []TransactionOutput{{Amount: 7000000, Target: KeyOutput{Key: pk}}},
			Extra:      nil,
		},
		Signatures: [][]Signature{{}},
	}
	if !tx.IsCoinbase() {
		t.Fatalf("expected IsCoinbase() == true")
	}

	encoded, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, _, err := DecodeTransaction(encoded)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if !decoded.IsCoinbase() {
		t.Fatalf("decoded tx should be coinbase")
	}
	bi, ok := decoded.Inputs[0].(BaseInput)
	if !ok || bi.BlockIndex != 42 {
		t.Fatalf("unexpected decoded base input: %+v", decoded.Inputs[0])
	}
}

func TestBlockRoundTrip(t *testing.T) {
	cb := sampleTransaction()
	cb.Inputs = []TransactionInput{BaseInput{BlockIndex: 7}}
	cb.Signatures = [][]Signature{{}}

	blk := &Block{
		BlockHeader: BlockHeader{
			MajorVersion:      1,
			MinorVersion:      0,
			Nonce:             99,
			Timestamp:         1700000000,
			PreviousBlockHash: Hash{1, 2, 3},
		},
		BaseTransaction:   *cb,
		TransactionHashes: []Hash{{4, 5, 6}, {7, 8, 9}},
	}

	encoded, err := blk.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	reEncoded, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(encoded, reEncoded) {
		t.Fatalf("block round trip mismatch:\n  got  %x\n  want %x", reEncoded, encoded)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 255, 16384, 1 << 32, ^uint64(0)}
	for _, v := range cases {
		buf := WriteVarint(nil, v)
		got, n, err := ReadVarint(buf, 0)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if n != len(buf) {
			t.Fatalf("ReadVarint(%d) consumed %d of %d bytes", v, n, len(buf))
		}
		if got != v {
			t.Fatalf("ReadVarint(%d) = %d", v, got)
		}
	}
}

func TestHashLess(t *testing.T) {
	a := Hash{0, 0, 1}
	b := Hash{0, 0, 2}
	if !a.Less(b) {
		t.Fatalf("expected a < b")
	}
	if b.Less(a) {
		t.Fatalf("expected !(b < a)")
	}
	if a.Less(a) {
		t.Fatalf("expected !(a < a)")
	}
}

func TestMerkleRootSingleBaseTx(t *testing.T) {
	cb := sampleTransaction()
	cb.Inputs = []TransactionInput{BaseInput{BlockIndex: 1}}
	cb.Signatures = [][]Signature{{}}
	blk := &Block{BaseTransaction: *cb}

	root, err := blk.ComputeMerkleRoot()
	if err != nil {
		t.Fatalf("ComputeMerkleRoot: %v", err)
	}
	baseHash, err := cb.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if root != baseHash {
		t.Fatalf("single-leaf merkle root should equal the base tx hash")
	}
}
