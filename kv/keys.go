// Package kv is the indexed persistent key/value facade (§4.1, §6). It wraps
// a single bbolt database, one bucket per printable key prefix, and exposes
// get/put/del/cursor/commit primitives over it.
package kv

import "fmt"

// Bucket names mirror the printable-ASCII prefixes from §6 directly so the
// on-disk layout is self-describing.
var (
	BucketBlocks       = []byte("b")
	BucketHeightIndex  = []byte("c")
	BucketAltHeight    = []byte("i")
	BucketTimestamps   = []byte("t")
	BucketGeneratedTxs = []byte("g")
	BucketTxIndex      = []byte("x")
	BucketKeyImages    = []byte("k")
	BucketOutputs      = []byte("o")
	BucketMultisigOuts = []byte("m")
	BucketPaymentIDs   = []byte("p")
	BucketMeta         = []byte("meta")
)

var allBuckets = [][]byte{
	BucketBlocks, BucketHeightIndex, BucketAltHeight, BucketTimestamps,
	BucketGeneratedTxs, BucketTxIndex, BucketKeyImages, BucketOutputs,
	BucketMultisigOuts, BucketPaymentIDs, BucketMeta,
}

// SchemaVersionKey is the $version entry's key within BucketMeta.
var SchemaVersionKey = []byte("$version")

const CurrentSchemaVersion = "1"

// EncodeVarintKey encodes v using the SQLite4 variable-length integer
// scheme (big-endian, length-prefixed) — the scheme §6 mandates for the
// height/amount/timestamp suffixes of KV keys. This is distinct from the
// little-endian 7-bit-group "unsigned varint" cnbinary uses for the wire
// codec.
func EncodeVarintKey(v uint64) []byte {
	switch {
	case v <= 240:
		return []byte{byte(v)}
	case v <= 2287:
		v -= 240
		return []byte{byte(241 + v/256), byte(v % 256)}
	case v <= 67823:
		v -= 2288
		return []byte{249, byte(v / 256), byte(v % 256)}
	case v <= 1<<24-1:
		return append([]byte{250}, be(v, 3)...)
	case v <= 1<<32-1:
		return append([]byte{251}, be(v, 4)...)
	case v <= 1<<40-1:
		return append([]byte{252}, be(v, 5)...)
	case v <= 1<<48-1:
		return append([]byte{253}, be(v, 6)...)
	case v <= 1<<56-1:
		return append([]byte{254}, be(v, 7)...)
	default:
		return append([]byte{255}, be(v, 8)...)
	}
}

func be(v uint64, n int) []byte {
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// DecodeVarintKey decodes a value encoded by EncodeVarintKey, returning the
// value and the number of bytes consumed.
func DecodeVarintKey(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("kv: empty varint key")
	}
	a0 := b[0]
	switch {
	case a0 <= 240:
		return uint64(a0), 1, nil
	case a0 <= 248:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("kv: truncated varint key")
		}
		return 240 + 256*uint64(a0-241) + uint64(b[1]), 2, nil
	case a0 == 249:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("kv: truncated varint key")
		}
		return 2288 + 256*uint64(b[1]) + uint64(b[2]), 3, nil
	case a0 >= 250 && a0 <= 255:
		n := int(a0) - 250 + 3
		if len(b) < 1+n {
			return 0, 0, fmt.Errorf("kv: truncated varint key")
		}
		var v uint64
		for i := 0; i < n; i++ {
			v = v<<8 | uint64(b[1+i])
		}
		return v, 1 + n, nil
	default:
		return 0, 0, fmt.Errorf("kv: unreachable varint prefix 0x%02x", a0)
	}
}

// HashKey returns the fixed-width binary key for a 32-byte hash-shaped
// identifier (block hash, tx hash, key image, payment id).
func HashKey(h [32]byte) []byte {
	return append([]byte(nil), h[:]...)
}
