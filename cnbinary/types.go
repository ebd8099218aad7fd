// Package cnbinary defines the wire data model for blocks and transactions and
// their canonical binary encoding.
package cnbinary

import "encoding/hex"

// Hash is a 32-byte opaque digest, total-ordered by lexicographic byte compare.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Less implements the total order required by §9 (global ordering of hashes).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

func (h Hash) IsZero() bool { return h == Hash{} }

// KeyImage is a deterministic group element unique per spend.
type KeyImage [32]byte

func (k KeyImage) String() string { return hex.EncodeToString(k[:]) }

// PublicKey is a 32-byte curve point.
type PublicKey [32]byte

// Signature is a 64-byte ring/EdDSA-style signature element.
type Signature [64]byte

// Amount is an unsigned atomic-unit quantity. Additive, never negative.
type Amount = uint64

// MaxBlockHeight is the sentinel below which an UnlockTime is interpreted as a
// block height rather than a Unix timestamp (§4.6).
const MaxBlockHeight uint64 = 500000000

// TransactionInput is one of BaseInput, KeyInput, MultisignatureInput.
type TransactionInput interface {
	isTransactionInput()
}

// Tag bytes for the transaction input variant, preserved by the codec (§9).
const (
	TagBaseInput           byte = 0xff
	TagKeyInput            byte = 0x02
	TagMultisignatureInput byte = 0x03
)

type BaseInput struct {
	BlockIndex uint32
}

func (BaseInput) isTransactionInput() {}

type KeyInput struct {
	Amount        uint64
	OutputIndexes []uint32
	KeyImage      KeyImage
}

func (KeyInput) isTransactionInput() {}

type MultisignatureInput struct {
	Amount         uint64
	SignatureCount uint8
	OutputIndex    uint32
}

func (MultisignatureInput) isTransactionInput() {}

// TransactionOutputTarget is one of KeyOutput, MultisignatureOutput.
type TransactionOutputTarget interface {
	isTransactionOutputTarget()
}

const (
	TagKeyOutput            byte = 0x02
	TagMultisignatureOutput byte = 0x03
)

type KeyOutput struct {
	Key PublicKey
}

func (KeyOutput) isTransactionOutputTarget() {}

type MultisignatureOutput struct {
	Keys                   []PublicKey
	RequiredSignatureCount uint8
}

func (MultisignatureOutput) isTransactionOutputTarget() {}

type TransactionOutput struct {
	Amount uint64
	Target TransactionOutputTarget
}

type TransactionPrefix struct {
	Version    uint8
	UnlockTime uint64
	Inputs     []TransactionInput
	Outputs    []TransactionOutput
	Extra      []byte
}

// Transaction is a TransactionPrefix plus one signature vector per input.
// Invariant: len(Signatures) == len(Inputs); for a KeyInput at position i,
// len(Signatures[i]) == len(Inputs[i].(KeyInput).OutputIndexes).
type Transaction struct {
	TransactionPrefix
	Signatures [][]Signature
}

// IsCoinbase reports whether tx has the base-transaction shape: exactly one
// input, and that input is a BaseInput. Signatures are not inspected.
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.Inputs) != 1 {
		return false
	}
	_, ok := tx.Inputs[0].(BaseInput)
	return ok
}

type BlockHeader struct {
	MajorVersion       uint8
	MinorVersion       uint8
	Nonce              uint32
	Timestamp          uint64
	PreviousBlockHash  Hash
}

// ParentBlock carries the merge-mining header for major versions 2 and 3.
// Nil for major version >= 4 (§12: ambient structure only, no merge-mining
// validation is performed against it).
type ParentBlock struct {
	MajorVersion         uint8
	MinorVersion         uint8
	PreviousBlockHash    Hash
	TransactionCount     uint16
	BaseTransactionBranch []Hash
	BaseTransaction      Transaction
	BlockchainBranch     []Hash
}

type Block struct {
	BlockHeader
	ParentBlock       *ParentBlock
	BaseTransaction   Transaction
	TransactionHashes []Hash
}

// UsesParentBlock reports whether this major version carries a merge-mining header.
func UsesParentBlock(majorVersion uint8) bool {
	return majorVersion == 2 || majorVersion == 3
}
