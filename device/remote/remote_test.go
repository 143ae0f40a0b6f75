package remote

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// fakeQueueIO is an in-memory stand-in for a local ethernet core's L1
// memory, with a tiny bit of firmware behavior bolted on: it drains
// posted frames immediately and, for a read frame, drops a canned
// response into the response buffer before advancing the ack pointer.
type fakeQueueIO struct {
	mem          []byte
	layout       Layout
	readResponse []byte
	autoAck      bool
}

func newFakeQueueIO(layout Layout) *fakeQueueIO {
	return &fakeQueueIO{mem: make([]byte, 4096), layout: layout, autoAck: true}
}

func (f *fakeQueueIO) Write32(offset uint64, v uint32) error {
	binary.LittleEndian.PutUint32(f.mem[offset:], v)
	if f.autoAck && offset == f.layout.WritePtr {
		f.drain(v)
	}
	return nil
}

func (f *fakeQueueIO) Read32(offset uint64) (uint32, error) {
	return binary.LittleEndian.Uint32(f.mem[offset:]), nil
}

func (f *fakeQueueIO) WriteBlock(offset uint64, data []byte) error {
	copy(f.mem[offset:], data)
	return nil
}

func (f *fakeQueueIO) ReadBlock(offset uint64, dst []byte) error {
	copy(dst, f.mem[offset:offset+uint64(len(dst))])
	return nil
}

// drain emulates the firmware: for the frame just posted (the slot of
// sequence writePtr-1), if it was a read, drop the canned response into
// the response buffer, then set the ack pointer to writePtr.
func (f *fakeQueueIO) drain(writePtr uint32) {
	slot := f.layout.QueueBase + ((uint64(writePtr)-1)%f.layout.QueueDepth)*f.layout.FrameSize
	op := binary.LittleEndian.Uint32(f.mem[slot:])
	if op == uint32(opRead) && f.readResponse != nil {
		copy(f.mem[f.layout.ResponseBuf:], f.readResponse)
	}
	binary.LittleEndian.PutUint32(f.mem[f.layout.RemoteAck:], writePtr)
}

func testLayout() Layout {
	return Layout{
		QueueBase:   0,
		QueueDepth:  4,
		FrameSize:   64,
		WritePtr:    1024,
		RemoteAck:   1028,
		ResponseBuf: 2048,
	}
}

func TestSendWriteFramesAndAdvancesPointer(t *testing.T) {
	io := newFakeQueueIO(testLayout())
	tun := New(io, testLayout(), time.Millisecond, time.Second)

	if err := tun.SendWrite(Core{X: 2, Y: 3}, 0x1000, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	wp, _ := io.Read32(testLayout().WritePtr)
	if wp != 1 {
		t.Fatalf("write pointer = %d, want 1", wp)
	}
	slot := testLayout().QueueBase
	gotOp := binary.LittleEndian.Uint32(io.mem[slot:])
	if gotOp != uint32(opWrite) {
		t.Fatalf("frame opcode = %d, want opWrite", gotOp)
	}
	gotAddr := binary.LittleEndian.Uint64(io.mem[slot+8:])
	if gotAddr != 0x1000 {
		t.Fatalf("frame addr = %#x, want 0x1000", gotAddr)
	}
	gotData := io.mem[slot+frameHeaderSize : slot+frameHeaderSize+7]
	if string(gotData) != "payload" {
		t.Fatalf("frame payload = %q, want %q", gotData, "payload")
	}
}

func TestSendReadReturnsFirmwareResponse(t *testing.T) {
	io := newFakeQueueIO(testLayout())
	io.readResponse = []byte{0xde, 0xad, 0xbe, 0xef}
	tun := New(io, testLayout(), time.Millisecond, time.Second)

	dst := make([]byte, 4)
	if err := tun.SendRead(Core{X: 1, Y: 1}, 0x2000, dst); err != nil {
		t.Fatal(err)
	}
	if string(dst) != string(io.readResponse) {
		t.Fatalf("got %v, want %v", dst, io.readResponse)
	}
}

func TestSendReadTimesOutWithoutAck(t *testing.T) {
	io := newFakeQueueIO(testLayout())
	io.autoAck = false
	tun := New(io, testLayout(), time.Millisecond, 20*time.Millisecond)

	dst := make([]byte, 4)
	err := tun.SendRead(Core{}, 0, dst)
	if !ttumderr.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestWaitForFlushReturnsOnceAllFramesAcked(t *testing.T) {
	io := newFakeQueueIO(testLayout())
	tun := New(io, testLayout(), time.Millisecond, time.Second)

	if err := tun.SendWrite(Core{}, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := tun.SendWrite(Core{}, 8, []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := tun.WaitForFlush(); err != nil {
		t.Fatal(err)
	}
}

func TestPostRejectsOversizedFrame(t *testing.T) {
	io := newFakeQueueIO(testLayout())
	tun := New(io, testLayout(), time.Millisecond, time.Second)

	big := make([]byte, 128) // exceeds FrameSize - frameHeaderSize
	if err := tun.SendWrite(Core{}, 0, big); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}
