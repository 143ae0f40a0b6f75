package simulator

import (
	"bytes"
	"testing"
)

type fakeLibrary struct {
	mem         [256]byte
	started     bool
	resetCalls  []RiscSelector
	deassertArg bool
}

func (f *fakeLibrary) StartDevice() error { f.started = true; return nil }
func (f *fakeLibrary) CloseDevice() error { f.started = false; return nil }

func (f *fakeLibrary) WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error {
	copy(f.mem[l1Dest:], data)
	return nil
}

func (f *fakeLibrary) ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error) {
	out := make([]byte, size)
	copy(out, f.mem[l1Src:])
	return out, nil
}

func (f *fakeLibrary) SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	f.resetCalls = append(f.resetCalls, selector)
	return nil
}

func (f *fakeLibrary) AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	return nil
}

func (f *fakeLibrary) DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error {
	f.deassertArg = staggeredStart
	return nil
}

func TestTTSimHostDelegatesToLibrary(t *testing.T) {
	lib := &fakeLibrary{}
	host := NewTTSimHost(lib)

	if err := host.StartDevice(); err != nil {
		t.Fatal(err)
	}
	if !lib.started {
		t.Fatal("expected library to be started")
	}
	if err := host.WriteToDevice(0, 0, 16, []byte("abcd")); err != nil {
		t.Fatal(err)
	}
	got, err := host.ReadFromDevice(0, 0, 16, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("got %v, want abcd", got)
	}
	if err := host.SendTensixRiscReset(0, 0, RiscSelector(3)); err != nil {
		t.Fatal(err)
	}
	if len(lib.resetCalls) != 1 || lib.resetCalls[0] != 3 {
		t.Fatalf("reset calls = %v", lib.resetCalls)
	}
	if err := host.DeassertRiscReset(0, 0, RiscSelector(1), true); err != nil {
		t.Fatal(err)
	}
	if !lib.deassertArg {
		t.Fatal("expected staggered start to propagate")
	}
}

func TestBackendBindsCoreCoordinatesForWriteAndRead(t *testing.T) {
	lib := &fakeLibrary{}
	host := NewTTSimHost(lib)
	backend := NewBackend(host, 3, 4)

	if err := backend.WriteToDevice(32, []byte("xyz")); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 3)
	if err := backend.ReadFromDevice(32, dst); err != nil {
		t.Fatal(err)
	}
	if string(dst) != "xyz" {
		t.Fatalf("got %q, want xyz", dst)
	}
}
