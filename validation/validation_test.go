package validation

import (
	"testing"

	"github.com/aivve/karbowanec/checkpoints"
	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
)

func testKernel(verifyRing RingSignatureVerifier, torsion KeyImageTorsionChecker, verifySig SingleSignatureVerifier) *Kernel {
	return New(currency.MainNetConfig(), checkpoints.Empty(), verifyRing, torsion, verifySig, func(b []byte) (cnbinary.Hash, error) {
		return cnbinary.IDHash(b), nil
	})
}

func TestCheckBlockVersionMatchesSchedule(t *testing.T) {
	k := testKernel(nil, nil, nil)
	b := &cnbinary.Block{BlockHeader: cnbinary.BlockHeader{MajorVersion: 1}}
	if err := k.CheckBlockVersion(b, 0); err != nil {
		t.Fatalf("CheckBlockVersion: %v", err)
	}
	b.MajorVersion = 2
	if err := k.CheckBlockVersion(b, 0); err == nil {
		t.Fatal("expected version mismatch to be rejected")
	}
}

func TestCheckMergeMiningTagRejectedAtRejectVersion(t *testing.T) {
	k := testKernel(nil, nil, nil)
	extra := append([]byte{0x01, 0x20}, make([]byte, 0x20)...)
	extra = append(extra, 0x03)
	b := &cnbinary.Block{
		BlockHeader:     cnbinary.BlockHeader{MajorVersion: 5},
		BaseTransaction: cnbinary.Transaction{TransactionPrefix: cnbinary.TransactionPrefix{Extra: extra}},
	}
	if err := k.CheckMergeMiningTag(b); err == nil {
		t.Fatal("expected a merge-mining tag to be rejected at version >= MergeMiningRejectVersion")
	}
	b.MajorVersion = 4
	if err := k.CheckMergeMiningTag(b); err != nil {
		t.Fatalf("merge-mining tag should be allowed below the reject version: %v", err)
	}
}

func TestCheckCoinbaseValidatesShape(t *testing.T) {
	k := testKernel(nil, nil, nil)
	height := uint64(10)
	tx := &cnbinary.Transaction{
		TransactionPrefix: cnbinary.TransactionPrefix{
			UnlockTime: height + k.Currency.MinedMoneyUnlockWindow,
			Inputs:     []cnbinary.TransactionInput{cnbinary.BaseInput{BlockIndex: uint32(height)}},
			Outputs:    []cnbinary.TransactionOutput{{Amount: 100}},
		},
	}
	if err := k.CheckCoinbase(tx, height); err != nil {
		t.Fatalf("CheckCoinbase: %v", err)
	}

	bad := *tx
	bad.UnlockTime = 0
	if err := k.CheckCoinbase(&bad, height); err == nil {
		t.Fatal("expected wrong unlock time to be rejected")
	}
}

func TestValidateKeyInputRejectsSpentKeyImage(t *testing.T) {
	k := testKernel(nil, nil, nil)
	ctx := &InputValidationContext{
		IsKeyImageSpent: func(cnbinary.KeyImage) bool { return true },
	}
	in := &cnbinary.KeyInput{OutputIndexes: []uint32{0}}
	if _, err := k.ValidateKeyInput(ctx, in, nil); err == nil {
		t.Fatal("expected spent key image to be rejected")
	}
}

func TestValidateKeyInputSkipsLookupAndRingChecksInCheckpointZone(t *testing.T) {
	k := testKernel(nil, nil, nil)
	ctx := &InputValidationContext{
		IsKeyImageSpent:      func(cnbinary.KeyImage) bool { return false },
		InsideCheckpointZone: true,
		LookupKeyOutput: func(amount cnbinary.Amount, idx uint32) (cnbinary.PublicKey, uint64, bool) {
			t.Fatal("LookupKeyOutput must not be called inside the checkpoint zone")
			return cnbinary.PublicKey{}, 0, false
		},
	}
	// An output reference that would fail the lookup outside the checkpoint
	// zone must still be accepted inside it: the checkpoint vouches for the
	// whole block, so the lookup/maturity walk never runs.
	in := &cnbinary.KeyInput{OutputIndexes: []uint32{3}}
	pmax, err := k.ValidateKeyInput(ctx, in, nil)
	if err != nil {
		t.Fatalf("expected lookup and ring checks to be skipped inside the checkpoint zone: %v", err)
	}
	if pmax != 0 {
		t.Fatalf("pmaxUsedBlockHeight = %d, want 0 (accepted at face value inside the checkpoint zone)", pmax)
	}
}

func TestValidateKeyInputVerifiesRingSignature(t *testing.T) {
	calledTorsion := false
	k := testKernel(
		func(prefixHash cnbinary.Hash, ki cnbinary.KeyImage, pubKeys []cnbinary.PublicKey, sigs []cnbinary.Signature) (bool, error) {
			return len(pubKeys) == len(sigs), nil
		},
		func(cnbinary.KeyImage) bool { calledTorsion = true; return true },
		nil,
	)
	ctx := &InputValidationContext{
		IsKeyImageSpent: func(cnbinary.KeyImage) bool { return false },
		LookupKeyOutput: func(amount cnbinary.Amount, idx uint32) (cnbinary.PublicKey, uint64, bool) {
			return cnbinary.PublicKey{}, 1, true
		},
	}
	in := &cnbinary.KeyInput{OutputIndexes: []uint32{1, 1}}
	sigs := []cnbinary.Signature{{}, {}}
	if _, err := k.ValidateKeyInput(ctx, in, sigs); err != nil {
		t.Fatalf("ValidateKeyInput: %v", err)
	}
	if !calledTorsion {
		t.Fatal("expected the torsion check to be invoked")
	}
}

func TestResolveAbsoluteIndexesPrefixSum(t *testing.T) {
	got := resolveAbsoluteIndexes([]uint32{5, 2, 3})
	want := []uint32{5, 7, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resolveAbsoluteIndexes = %v, want %v", got, want)
		}
	}
}

func TestValidateMultisignatureInputScansKeysInOrder(t *testing.T) {
	keys := []cnbinary.PublicKey{{1}, {2}, {3}}
	k := testKernel(nil, nil, func(msgHash cnbinary.Hash, pubKey cnbinary.PublicKey, sig cnbinary.Signature) bool {
		return pubKey == keys[1] && sig == cnbinary.Signature{9}
	})
	ctx := &InputValidationContext{
		LookupMultisig: func(amount cnbinary.Amount, idx uint32) (*cnbinary.MultisignatureOutput, uint64, bool, bool) {
			return &cnbinary.MultisignatureOutput{Keys: keys, RequiredSignatureCount: 1}, 0, false, true
		},
	}
	in := &cnbinary.MultisignatureInput{SignatureCount: 1}
	sigs := []cnbinary.Signature{{9}}
	if err := k.ValidateMultisignatureInput(ctx, in, cnbinary.Hash{}, sigs); err != nil {
		t.Fatalf("ValidateMultisignatureInput: %v", err)
	}
}

func TestValidateMultisignatureInputRejectsAlreadyUsed(t *testing.T) {
	k := testKernel(nil, nil, nil)
	ctx := &InputValidationContext{
		LookupMultisig: func(amount cnbinary.Amount, idx uint32) (*cnbinary.MultisignatureOutput, uint64, bool, bool) {
			return &cnbinary.MultisignatureOutput{}, 0, true, true
		},
	}
	in := &cnbinary.MultisignatureInput{}
	if err := k.ValidateMultisignatureInput(ctx, in, cnbinary.Hash{}, nil); err == nil {
		t.Fatal("expected an already-used multisignature output to be rejected")
	}
}
