package sysmem

import (
	"fmt"
	"testing"
)

// fakeAllocator lets specific channel indices fail, so tests can exercise
// the reduced-channel-count path without real hugepages.
type fakeAllocator struct {
	failIndex map[int]bool
	size      uint64
	next      uint64
}

func newFakeAllocator(size uint64) *fakeAllocator {
	return &fakeAllocator{failIndex: map[int]bool{}, size: size}
}

func (f *fakeAllocator) AllocateChannel(index int, size uint64) ([]byte, uint64, error) {
	if f.failIndex[index] {
		return nil, 0, fmt.Errorf("fake: channel %d failed", index)
	}
	if size == 0 {
		size = f.size
	}
	f.next += size
	return make([]byte, size), f.next, nil
}

func TestInitHugepagesAssignsInsertionIndex(t *testing.T) {
	m := New(newFakeAllocator(4096))
	if err := m.InitHugepages(3); err != nil {
		t.Fatal(err)
	}
	if m.NumHostMemChannels() != 3 {
		t.Fatalf("got %d channels, want 3", m.NumHostMemChannels())
	}
	for i := 0; i < 3; i++ {
		ch, err := m.HugepageMapping(i)
		if err != nil {
			t.Fatal(err)
		}
		if ch.Index != i {
			t.Fatalf("channel %d has Index %d", i, ch.Index)
		}
	}
}

func TestInitHugepagesCapsAtMaxChannels(t *testing.T) {
	m := New(newFakeAllocator(4096))
	if err := m.InitHugepages(MaxChannels + 5); err != nil {
		t.Fatal(err)
	}
	if m.NumHostMemChannels() != MaxChannels {
		t.Fatalf("got %d channels, want %d", m.NumHostMemChannels(), MaxChannels)
	}
}

func TestInitHugepagesSkipsFailedChannelsAndContinues(t *testing.T) {
	alloc := newFakeAllocator(4096)
	alloc.failIndex[1] = true
	m := New(alloc)
	if err := m.InitHugepages(3); err != nil {
		t.Fatal(err)
	}
	if m.NumHostMemChannels() != 2 {
		t.Fatalf("got %d channels, want 2 (one skipped)", m.NumHostMemChannels())
	}
}

func TestInitHugepagesFailsWhenEveryChannelFails(t *testing.T) {
	alloc := newFakeAllocator(4096)
	alloc.failIndex[0] = true
	alloc.failIndex[1] = true
	m := New(alloc)
	if err := m.InitHugepages(2); err == nil {
		t.Fatal("expected error when every channel fails")
	}
}

func TestWriteReadRoundTrips(t *testing.T) {
	m := New(newFakeAllocator(4096))
	if err := m.InitHugepages(1); err != nil {
		t.Fatal(err)
	}
	want := []byte("hello sysmem")
	if err := m.WriteToSysmem(0, want, 128); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(want))
	if err := m.ReadFromSysmem(0, got, 128); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteOutOfBoundsRejected(t *testing.T) {
	m := New(newFakeAllocator(64))
	if err := m.InitHugepages(1); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteToSysmem(0, make([]byte, 32), 48); err == nil {
		t.Fatal("expected bounds error writing past channel end")
	}
}

func TestMappingUnknownChannelRejected(t *testing.T) {
	m := New(newFakeAllocator(4096))
	if err := m.InitHugepages(1); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HugepageMapping(5); err == nil {
		t.Fatal("expected error for out-of-range channel")
	}
}
