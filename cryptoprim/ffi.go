// Package cryptoprim is the Crypto collaborator (§6): ring-signature
// verification, the key-image torsion check, and the proof-of-work hash
// function. These are treated as trusted library calls the core never
// reimplements (§1); the actual group arithmetic lives in a native library
// bound through cgo, mirroring the FFI boundary the teacher repository
// itself uses for its own crypto primitives (crypto.go), narrowed to the
// primitive set a transparent-amount CryptoNote core needs (no
// Pedersen-commitment or stealth-address surface — see DESIGN.md).
package cryptoprim

/*
#cgo LDFLAGS: ${SRCDIR}/native/target/release/libkarbo_crypto.a -lm
#cgo linux LDFLAGS: -ldl -lpthread
#cgo darwin LDFLAGS: -ldl -lpthread -framework Security
#cgo windows LDFLAGS: -lws2_32 -luserenv -lbcrypt -lntdll
#include "native/karbo_crypto.h"
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/aivve/karbowanec/cnbinary"
)

// VerifyRingSignature calls into the native library to verify a ring
// signature over prefixHash binding keyImage to one of pubKeys (§4.5 step
// 4). sigs must have exactly len(pubKeys) elements.
func VerifyRingSignature(prefixHash cnbinary.Hash, keyImage cnbinary.KeyImage, pubKeys []cnbinary.PublicKey, sigs []cnbinary.Signature) (bool, error) {
	if len(pubKeys) == 0 {
		return false, fmt.Errorf("cryptoprim: ring must not be empty")
	}
	if len(sigs) != len(pubKeys) {
		return false, fmt.Errorf("cryptoprim: signature count %d does not match ring size %d", len(sigs), len(pubKeys))
	}

	keyBuf := make([]byte, 32*len(pubKeys))
	for i, k := range pubKeys {
		copy(keyBuf[i*32:], k[:])
	}
	sigBuf := make([]byte, 64*len(sigs))
	for i, s := range sigs {
		copy(sigBuf[i*64:], s[:])
	}

	result := C.karbo_verify_ring_signature(
		(*C.uint8_t)(unsafe.Pointer(&prefixHash[0])),
		(*C.uint8_t)(unsafe.Pointer(&keyImage[0])),
		(*C.uint8_t)(unsafe.Pointer(&keyBuf[0])),
		C.size_t(len(pubKeys)),
		(*C.uint8_t)(unsafe.Pointer(&sigBuf[0])),
	)
	return result == 1, nil
}

// KeyImageTorsionCheck implements §4.5 step 5: L * keyImage == identity on
// the group (i.e. keyImage is not a small-order/torsion point). A key image
// failing this check can violate the uniqueness guarantee the spent-set
// relies on.
func KeyImageTorsionCheck(keyImage cnbinary.KeyImage) bool {
	result := C.karbo_key_image_torsion_check((*C.uint8_t)(unsafe.Pointer(&keyImage[0])))
	return result == 1
}

// PowHash computes the proof-of-work hash function over the block bytes
// produced by (*cnbinary.Block).SerializeForPoW.
func PowHash(headerBytes []byte) (cnbinary.Hash, error) {
	if len(headerBytes) == 0 {
		return cnbinary.Hash{}, fmt.Errorf("cryptoprim: empty PoW input")
	}
	var out cnbinary.Hash
	result := C.karbo_pow_hash(
		(*C.uint8_t)(unsafe.Pointer(&headerBytes[0])),
		C.size_t(len(headerBytes)),
		(*C.uint8_t)(unsafe.Pointer(&out[0])),
	)
	if result != 0 {
		return cnbinary.Hash{}, fmt.Errorf("cryptoprim: pow hash failed (code %d)", result)
	}
	return out, nil
}

// VerifySignature verifies a single EdDSA-style signature over msgHash by
// pubKey, used by the multisignature-input scan in §4.5 ("Multisignature
// input" step 4: advance through output keys until a valid signature is
// found).
func VerifySignature(msgHash cnbinary.Hash, pubKey cnbinary.PublicKey, sig cnbinary.Signature) bool {
	result := C.karbo_verify_signature(
		(*C.uint8_t)(unsafe.Pointer(&msgHash[0])),
		(*C.uint8_t)(unsafe.Pointer(&pubKey[0])),
		(*C.uint8_t)(unsafe.Pointer(&sig[0])),
	)
	return result == 1
}
