package chip

import (
	"testing"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

func TestNOCMulticastWriteAppliesColumnZeroWorkaround(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)

	if err := c.NOCMulticastWrite(0, 0, 2, 1, 100, []byte{0xAB}); err != nil {
		t.Fatal(err)
	}
	if proto.wrote(Core{X: 0, Y: 0}) {
		t.Fatal("column 0 must be excluded by the multicast workaround")
	}
	for x := 1; x <= 2; x++ {
		for y := 0; y <= 1; y++ {
			if !proto.wrote(Core{X: x, Y: y}) {
				t.Fatalf("expected core (%d,%d) to receive the multicast write", x, y)
			}
		}
	}
}

func TestNOCMulticastWriteSkipsBlackholeNonTensixColumns(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.BlackholeTable, proto)

	if err := c.NOCMulticastWrite(7, 0, 9, 0, 100, []byte{0xCD}); err != nil {
		t.Fatal(err)
	}
	if proto.wrote(Core{X: 8, Y: 0}) {
		t.Fatal("blackhole column 8 must be skipped as a non-tensix column")
	}
	if proto.wrote(Core{X: 9, Y: 0}) {
		t.Fatal("blackhole column 9 must be skipped as a non-tensix column")
	}
	if !proto.wrote(Core{X: 7, Y: 0}) {
		t.Fatal("expected column 7 to receive the multicast write")
	}
}
