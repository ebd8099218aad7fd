package cryptoprim

import (
	"testing"

	"github.com/aivve/karbowanec/cnbinary"
)

func TestKeccak256Deterministic(t *testing.T) {
	data := []byte("karbowanec")
	a := Keccak256(data)
	b := Keccak256(data)
	if a != b {
		t.Fatalf("Keccak256 is not deterministic: %x != %x", a, b)
	}
	if a == Keccak256([]byte("karbowanec2")) {
		t.Fatalf("different inputs hashed to the same digest")
	}
}

func TestVerifyRingSignatureRejectsEmptyRing(t *testing.T) {
	_, err := VerifyRingSignature(cnbinary.Hash{}, cnbinary.KeyImage{}, nil, nil)
	if err == nil {
		t.Fatal("expected empty ring to be rejected before reaching the native call")
	}
}

func TestVerifyRingSignatureRejectsMismatchedSignatureCount(t *testing.T) {
	pubKeys := []cnbinary.PublicKey{{}, {}}
	sigs := []cnbinary.Signature{{}}
	_, err := VerifyRingSignature(cnbinary.Hash{}, cnbinary.KeyImage{}, pubKeys, sigs)
	if err == nil {
		t.Fatal("expected mismatched signature/ring count to be rejected before reaching the native call")
	}
}
