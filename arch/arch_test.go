package arch

import "testing"

func TestTLBConfigForSizeDescending(t *testing.T) {
	tbl := For(Wormhole)
	for _, size := range tbl.TLBSizesDescending {
		cfg, ok := tbl.TLBConfigForSize(size, 2)
		if !ok {
			t.Fatalf("size %d not found", size)
		}
		if cfg.TLBOffset != cfg.Base+2*cfg.Size {
			t.Fatalf("tlb offset = %#x, want %#x", cfg.TLBOffset, cfg.Base+2*cfg.Size)
		}
	}
}

func TestTLBConfigForSizeUnknown(t *testing.T) {
	tbl := For(Wormhole)
	if _, ok := tbl.TLBConfigForSize(3<<20, 0); ok {
		t.Fatal("expected unknown size to fail lookup")
	}
}

func TestMulticastWorkaroundSkipsColumnZero(t *testing.T) {
	tbl := For(Wormhole)
	x0, y0, x1, y1 := tbl.MulticastWorkaround(0, 0, 9, 7)
	if x0 != 1 {
		t.Fatalf("expected start column nudged to 1, got %d", x0)
	}
	if y0 != 0 || x1 != 9 || y1 != 7 {
		t.Fatalf("unexpected rectangle mutation: %d %d %d %d", x0, y0, x1, y1)
	}

	x0, _, _, _ = tbl.MulticastWorkaround(3, 0, 9, 7)
	if x0 != 3 {
		t.Fatalf("non-zero start column should be untouched, got %d", x0)
	}
}

func TestBlackholeDynamicVCOnly(t *testing.T) {
	if !For(Blackhole).DynamicVCOnly {
		t.Fatal("blackhole must require a fresh dynamic VC per TLB configuration")
	}
	if For(Wormhole).DynamicVCOnly {
		t.Fatal("wormhole has no such errata")
	}
}

func TestTranslatedAnchorsDiffer(t *testing.T) {
	if For(Wormhole).TranslatedAnchor == For(Blackhole).TranslatedAnchor {
		t.Fatal("expected architecture-specific translated anchors")
	}
}

func TestSoftResetRoundTripsForPrimitiveSelector(t *testing.T) {
	tbl := For(Wormhole)
	reg, err := tbl.SoftResetRegValue(RiscTRISC1)
	if err != nil {
		t.Fatal(err)
	}
	if got := tbl.SoftResetSelector(reg); got != RiscTRISC1 {
		t.Fatalf("got %#x, want %#x", got, RiscTRISC1)
	}
}

func TestSoftResetRoundTripsForMetaBitGroup(t *testing.T) {
	tbl := For(Blackhole)
	reg, err := tbl.SoftResetRegValue(RiscAllTriscs)
	if err != nil {
		t.Fatal(err)
	}
	got := tbl.SoftResetSelector(reg)
	if got&RiscAllTriscs == 0 {
		t.Fatalf("expected ALL_TRISCS meta-bit to be reconstructed, got %#x", got)
	}
	if got&RiscAllTensixTriscs != RiscAllTensixTriscs {
		t.Fatalf("expected every tensix trisc bit set, got %#x", got)
	}
}

func TestSoftResetRejectsNeoSelection(t *testing.T) {
	tbl := For(Wormhole)
	if _, err := tbl.SoftResetRegValue(RiscNeoOrDM); err == nil {
		t.Fatal("expected NEO/DM selection to be rejected")
	}
}

func TestSoftResetAllExpandsToEveryTensixBit(t *testing.T) {
	tbl := For(Wormhole)
	reg, err := tbl.SoftResetRegValue(RiscAll)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := tbl.SoftResetRegValue(RiscAllTensix)
	if reg != want {
		t.Fatalf("ALL reg value = %#b, want %#b", reg, want)
	}
}
