package chip

import (
	"encoding/binary"
	"testing"

	"github.com/tenstorrent/tt-umd-sub002/arch"
	"github.com/tenstorrent/tt-umd-sub002/coord"
	"github.com/tenstorrent/tt-umd-sub002/device/tlb"
	"github.com/tenstorrent/tt-umd-sub002/device/tlbmgr"
)

// fakeTLBAllocator hands back a freshly backed window for every request,
// large enough to exercise IsMapped without real hardware.
type fakeTLBAllocator struct{ nextID uint32 }

func (f *fakeTLBAllocator) AllocateTLB(size uint64, mapping arch.MappingKind) (*tlb.Handle, arch.TLBConfig, []byte, error) {
	f.nextID++
	data := make([]byte, size)
	h := tlb.NewHandle(f.nextID, size, mapping, data, 0, func(uint32) error { return nil })
	cfg := arch.TLBConfig{Size: size, CfgAddr: uint64(f.nextID) * 16, OffsetEncoding: 8, RegisterBytes: 8}
	return h, cfg, make([]byte, 4096), nil
}

func TestTelemetrySnapshotReadsRawWordsThroughProtocol(t *testing.T) {
	proto := newFakeProtocol()
	c, _ := newTestChip(t, arch.WormholeTable, proto)

	core := coord.Coord{X: 0, Y: 0, Type: coord.CoreARC}
	var want [8]byte
	binary.LittleEndian.PutUint32(want[0:4], 0x11223344)
	binary.LittleEndian.PutUint32(want[4:8], 0xAABBCCDD)
	if err := proto.WriteToDevice(Core{X: core.X, Y: core.Y}, c.tbl.ARCScratchBase, want[:]); err != nil {
		t.Fatal(err)
	}

	got, err := c.TelemetrySnapshot(core, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x11223344 || got[1] != 0xAABBCCDD {
		t.Fatalf("got %#x, want [0x11223344 0xaabbccdd]", got)
	}
}

func TestIsMappedDelegatesToTLBManager(t *testing.T) {
	tbl := arch.For(arch.Wormhole)
	tbl.TLBSizesDescending = []uint64{4096}
	mgr := tlbmgr.New(tbl, &fakeTLBAllocator{}, false)

	proto := newFakeProtocol()
	c, _ := newTestChip(t, tbl, proto)
	c.tlbs = mgr

	core := Core{X: 2, Y: 2}
	if c.IsMapped(core, 0x100, 16) {
		t.Fatal("expected no window before any configuration")
	}
	if err := mgr.ConfigureTLB(core, 0, 0x100, tlb.Strict); err != nil {
		t.Fatal(err)
	}
	if !c.IsMapped(core, 0x100, 16) {
		t.Fatal("expected window to cover the configured address after ConfigureTLB")
	}
}
