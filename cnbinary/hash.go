package cnbinary

import "golang.org/x/crypto/sha3"

// Hash returns the transaction id: sha3-256 of the canonical encoding.
func (tx *Transaction) Hash() (Hash, error) {
	data, err := tx.Encode()
	if err != nil {
		return Hash{}, err
	}
	return sha3.Sum256(data), nil
}

// PrefixHash returns the tx-prefix hash used as the message input to the
// ring-signature primitive (§4.5 step 4); it excludes per-input signatures.
func (p *TransactionPrefix) PrefixHash() (Hash, error) {
	data, err := p.Encode()
	if err != nil {
		return Hash{}, err
	}
	return sha3.Sum256(data), nil
}

// ComputeMerkleRoot hashes the base transaction together with the ordered
// non-coinbase transaction hashes, padding odd levels by duplicating the
// last element (the teacher's own pairwise-SHA3 merkle construction).
func (b *Block) ComputeMerkleRoot() (Hash, error) {
	baseHash, err := b.BaseTransaction.Hash()
	if err != nil {
		return Hash{}, err
	}
	leaves := make([]Hash, 0, 1+len(b.TransactionHashes))
	leaves = append(leaves, baseHash)
	leaves = append(leaves, b.TransactionHashes...)
	return merkleRoot(leaves), nil
}

func merkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		return Hash{}
	}
	if len(hashes) == 1 {
		return hashes[0]
	}
	if len(hashes)%2 == 1 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	next := make([]Hash, len(hashes)/2)
	var combined [64]byte
	for i := 0; i < len(hashes); i += 2 {
		copy(combined[0:32], hashes[i][:])
		copy(combined[32:64], hashes[i+1][:])
		next[i/2] = sha3.Sum256(combined[:])
	}
	return merkleRoot(next)
}

// IDHash returns the sha3-256 hash of the supplied bytes as a Hash.
func IDHash(data []byte) Hash {
	return sha3.Sum256(data)
}

// BlockHash returns the block's identity hash: the header fields plus the
// merkle root and transaction count, so the hash commits to every
// transaction without needing to list them all (the real CryptoNote
// "block_header" collapsing trick — a full Block serializes its tx hash
// list, but the hash binds only the merkle root over them).
func (b *Block) BlockHash() (Hash, error) {
	root, err := b.ComputeMerkleRoot()
	if err != nil {
		return Hash{}, err
	}
	buf := make([]byte, 0, 96)
	buf = append(buf, b.MajorVersion, b.MinorVersion)
	buf = WriteVarint(buf, b.Timestamp)
	buf = append(buf, b.PreviousBlockHash[:]...)
	var nonceBuf [4]byte
	nonceBuf[0] = byte(b.Nonce)
	nonceBuf[1] = byte(b.Nonce >> 8)
	nonceBuf[2] = byte(b.Nonce >> 16)
	nonceBuf[3] = byte(b.Nonce >> 24)
	buf = append(buf, nonceBuf[:]...)
	buf = append(buf, root[:]...)
	buf = WriteVarint(buf, uint64(len(b.TransactionHashes))+1)
	return sha3.Sum256(buf), nil
}
