package chip

import (
	"bytes"
	"testing"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

func TestDMAWriteThenReadRoundTripsThroughStagingBuffer(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)
	core := Core{X: 1, Y: 1}

	want := []byte{1, 2, 3, 4, 5}
	if err := c.DMAWriteToDevice(core, 0, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(want))
	if err := c.DMAReadFromDevice(core, 0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDMAWriteRejectsTransferLargerThanStagingBuffer(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)
	if err := c.DMAWriteToDevice(Core{}, 0, make([]byte, 1<<20)); err == nil {
		t.Fatal("expected oversized DMA transfer to be rejected")
	}
}
