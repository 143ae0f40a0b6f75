package chip

import (
	"testing"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

func TestL1MembarWritesAndReadsBackSentinel(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)
	core := Core{X: 3, Y: 4}
	if err := c.L1Membar(core); err != nil {
		t.Fatal(err)
	}
	if proto.byteAt(core, c.tbl.L1BarrierAddr) != membarSentinel {
		t.Fatal("expected sentinel written at L1 barrier address")
	}
}

func TestDRAMMembarWritesAndReadsBackSentinel(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.BlackholeTable, proto)
	core := Core{X: 5, Y: 6}
	if err := c.DRAMMembar(core); err != nil {
		t.Fatal(err)
	}
	if proto.byteAt(core, c.tbl.DRAMBarrierAddr) != membarSentinel {
		t.Fatal("expected sentinel written at DRAM barrier address")
	}
}
