package pci

import (
	"os"
	"testing"
)

func TestArchFromDeviceID(t *testing.T) {
	cases := []struct {
		id   uint16
		want string
		ok   bool
	}{
		{wormholeDeviceID, "wormhole", true},
		{blackholeDeviceID, "blackhole", true},
		{0xdead, "", false},
	}
	for _, c := range cases {
		a, err := archFromDeviceID(c.id)
		if c.ok && err != nil {
			t.Fatalf("id %#x: unexpected error %v", c.id, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("id %#x: expected error", c.id)
		}
		if c.ok && a.String() != c.want {
			t.Fatalf("id %#x: got %s, want %s", c.id, a, c.want)
		}
	}
}

func TestDMASizesDescendingOrder(t *testing.T) {
	for i := 1; i < len(dmaSizesDescending); i++ {
		if dmaSizesDescending[i] >= dmaSizesDescending[i-1] {
			t.Fatalf("dmaSizesDescending not strictly descending at %d: %v", i, dmaSizesDescending)
		}
	}
}

func TestCheckPageAlignedRejectsMisalignedVaddrOrSize(t *testing.T) {
	pageSize := uint64(os.Getpagesize())
	cases := []struct {
		name  string
		vaddr uint64
		size  uint64
		ok    bool
	}{
		{"aligned", pageSize, pageSize * 2, true},
		{"misaligned vaddr", pageSize + 1, pageSize, false},
		{"misaligned size", pageSize, pageSize + 1, false},
		{"both misaligned", pageSize + 1, pageSize + 1, false},
	}
	for _, c := range cases {
		err := checkPageAligned("test", c.vaddr, c.size)
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s: expected an alignment error", c.name)
		}
	}
}

func TestMapForDMARejectsMisalignedBufferBeforeTouchingTheHandle(t *testing.T) {
	// A Device with a nil kioctl.Handle would panic if MapForDMA reached
	// PinPages, so reaching the alignment error here proves the check
	// runs first.
	d := &Device{}
	buf := make([]byte, os.Getpagesize()+1)
	if _, err := d.MapForDMA(buf); err == nil {
		t.Fatal("expected an alignment error for a non-page-sized buffer")
	}
	if err := d.UnmapForDMA(buf); err == nil {
		t.Fatal("expected an alignment error for a non-page-sized buffer")
	}
}

func TestEnumerateIndicesMissingDirReturnsEmpty(t *testing.T) {
	// /dev/tenstorrent does not exist in a test sandbox; EnumerateIndices
	// must report an empty list rather than an error.
	idxs, err := EnumerateIndices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idxs) != 0 {
		t.Fatalf("expected no devices, got %v", idxs)
	}
}
