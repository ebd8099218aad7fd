package altchain

import (
	"testing"

	"github.com/aivve/karbowanec/cnbinary"
	"github.com/aivve/karbowanec/currency"
)

func hashOf(s string) cnbinary.Hash { return cnbinary.IDHash([]byte(s)) }

func TestPutAndBuildSubchain(t *testing.T) {
	tr := New()
	ancestor := hashOf("ancestor")

	a1 := &cnbinary.Block{BlockHeader: cnbinary.BlockHeader{PreviousBlockHash: ancestor}}
	h1 := hashOf("a1")
	tr.Put(h1, a1, 101, 1000, 10)

	a2 := &cnbinary.Block{BlockHeader: cnbinary.BlockHeader{PreviousBlockHash: h1}}
	h2 := hashOf("a2")
	e2 := tr.Put(h2, a2, 102, 1010, 12)
	if e2.CumulativeDifficulty != 1022 {
		t.Fatalf("CumulativeDifficulty = %d, want 1022", e2.CumulativeDifficulty)
	}

	subchain, common := tr.BuildSubchain(h2)
	if common != ancestor {
		t.Fatalf("common ancestor = %v, want %v", common, ancestor)
	}
	if len(subchain) != 2 || subchain[0] != h1 || subchain[1] != h2 {
		t.Fatalf("subchain = %v, want [h1, h2]", subchain)
	}
}

func TestPruneRemovesEntries(t *testing.T) {
	tr := New()
	ancestor := hashOf("ancestor")
	h1 := hashOf("a1")
	tr.Put(h1, &cnbinary.Block{BlockHeader: cnbinary.BlockHeader{PreviousBlockHash: ancestor}}, 1, 0, 1)

	if !tr.Has(h1) {
		t.Fatal("expected h1 to be tracked")
	}
	tr.Prune([]cnbinary.Hash{h1})
	if tr.Has(h1) {
		t.Fatal("expected h1 to be removed after Prune")
	}
	if len(tr.Children(ancestor)) != 0 {
		t.Fatal("expected the parent->children index to be cleaned up too")
	}
}

func TestPoissonSanityCheckRejectsFutureAltTimestamp(t *testing.T) {
	cfg := currency.MainNetConfig()
	if PoissonSanityCheck(cfg, []int64{0}, int64(cfg.BlockFutureTimeLimit)+10000, 0) {
		t.Fatal("expected an alt high timestamp far beyond the future limit to be rejected")
	}
}

func TestPoissonSanityCheckAcceptsPlausibleTimestamps(t *testing.T) {
	cfg := currency.MainNetConfig()
	main := make([]int64, cfg.PoissonCheckDepth)
	for i := range main {
		main[i] = int64(i) * int64(cfg.DifficultyTarget)
	}
	altHigh := int64(len(main)) * int64(cfg.DifficultyTarget)
	if !PoissonSanityCheck(cfg, main, altHigh, altHigh) {
		t.Fatal("expected timestamps consistent with the difficulty target to pass the gate")
	}
}

func TestShouldRunPoissonGate(t *testing.T) {
	cfg := currency.MainNetConfig()
	if ShouldRunPoissonGate(cfg, cfg.PoissonCheckTrigger-1) {
		t.Fatal("gate should not trigger below PoissonCheckTrigger")
	}
	if !ShouldRunPoissonGate(cfg, cfg.PoissonCheckTrigger) {
		t.Fatal("gate should trigger at PoissonCheckTrigger")
	}
}
