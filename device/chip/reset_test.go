package chip

import (
	"testing"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

func TestAssertThenDeassertRiscResetClearsOnlySelectedBits(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)
	core := Core{X: 1, Y: 1}

	if err := c.AssertRiscReset(core, arch.RiscTRISC0); err != nil {
		t.Fatal(err)
	}
	if err := c.AssertRiscReset(core, arch.RiscNCRISC); err != nil {
		t.Fatal(err)
	}
	reg, err := c.readSoftReset(core)
	if err != nil {
		t.Fatal(err)
	}
	trisc0Bits, _ := c.tbl.SoftResetRegValue(arch.RiscTRISC0)
	ncriscBits, _ := c.tbl.SoftResetRegValue(arch.RiscNCRISC)
	if reg&trisc0Bits == 0 || reg&ncriscBits == 0 {
		t.Fatal("expected both asserted cores' bits to be set")
	}

	if err := c.DeassertRiscReset(core, arch.RiscTRISC0, false); err != nil {
		t.Fatal(err)
	}
	reg, err = c.readSoftReset(core)
	if err != nil {
		t.Fatal(err)
	}
	if reg&trisc0Bits != 0 {
		t.Fatal("expected TRISC0's bit to be cleared")
	}
	if reg&ncriscBits == 0 {
		t.Fatal("expected NCRISC's bit to remain set")
	}
}

func TestSendTensixRiscResetPulsesResetThenClearsIt(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.BlackholeTable, proto)
	core := Core{X: 2, Y: 2}

	if err := c.SendTensixRiscReset(core, arch.RiscBRISC); err != nil {
		t.Fatal(err)
	}
	reg, err := c.readSoftReset(core)
	if err != nil {
		t.Fatal(err)
	}
	bits, _ := c.tbl.SoftResetRegValue(arch.RiscBRISC)
	if reg&bits != 0 {
		t.Fatal("expected reset to end deasserted after the pulse")
	}
}

func TestDeassertRiscResetStaggeredClearsEveryBit(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)
	core := Core{X: 3, Y: 3}

	selector := arch.RiscBRISC | arch.RiscTRISC0 | arch.RiscNCRISC
	if err := c.AssertRiscReset(core, selector); err != nil {
		t.Fatal(err)
	}
	if err := c.DeassertRiscReset(core, selector, true); err != nil {
		t.Fatal(err)
	}
	reg, err := c.readSoftReset(core)
	if err != nil {
		t.Fatal(err)
	}
	bits, _ := c.tbl.SoftResetRegValue(selector)
	if reg&bits != 0 {
		t.Fatal("expected every staggered bit to end cleared")
	}
}
