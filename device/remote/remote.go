// Package remote implements the command-frame tunnel that carries a
// non-local write/read to a chip reachable only over on-die Ethernet. A
// local chip reserves a ring of Ethernet worker cores' L1 memory as a
// command queue; this package frames transactions into it, advances the
// host-owned write pointer, and polls the firmware-owned acknowledgment
// pointer to learn when the target chip has applied them.
//
// Grounded on a frame/queue/ack description of the on-die ethernet
// tunnel (the original's RemoteCommunication::write_to_non_mmio/
// read_non_mmio internals were not present in the retrieved source
// tree). Wire framing follows gravwell
// ingest/entryWriter.go's idiom: a fixed-size binary header ahead of a
// variable payload, a mutex-guarded writer, and a "keep polling until the
// matching sequence number is acknowledged" reader loop in place of
// entryWriter's confirmation-buffer bookkeeping. Writes are posted
// without waiting, so several frames can be outstanding at once; the
// host keeps only the count of frames posted, and the firmware's ack
// pointer says how many of them it has completed.
package remote

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/tenstorrent/tt-umd-sub002/device/tlbmgr"
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

// Core is re-exported from tlbmgr so callers only need this package.
type Core = tlbmgr.Core

// opcode names a command-frame kind the worker-core firmware understands.
type opcode uint32

const (
	opWrite opcode = iota
	opRead
)

// frameHeaderSize is {opcode u32, core_x u8, core_y u8, pad u16, addr u64,
// length u32}, an {opcode, target=(core, addr), length, data} shape.
const frameHeaderSize = 4 + 1 + 1 + 2 + 8 + 4

// QueueIO is the local ethernet worker core's L1 memory access the
// tunnel needs: writing command frames into the queue ring and reading
// back the pointers/response region. Satisfied by a
// device/tlbmgr.StaticWriter or device/mmio.DeviceIO bound to the local
// chip's reserved ethernet core, keeping this package free of a direct
// dependency on either.
type QueueIO interface {
	Write32(offset uint64, v uint32) error
	Read32(offset uint64) (uint32, error)
	WriteBlock(offset uint64, data []byte) error
	ReadBlock(offset uint64, dst []byte) error
}

// Layout is the fixed L1 offsets this tunnel uses within its reserved
// ethernet core: a command queue of fixed-size frame slots, a
// host-owned write pointer, a
// firmware-owned "remote update" pointer the host polls for
// acknowledgment, and a response buffer a read's reply payload lands in.
type Layout struct {
	QueueBase   uint64
	QueueDepth  uint64
	FrameSize   uint64 // bytes per slot; must be >= frameHeaderSize + max payload
	WritePtr    uint64
	RemoteAck   uint64
	ResponseBuf uint64
}

// Tunnel is the ethernet command-frame tunnel for one target chip,
// reached through one local chip's reserved ethernet core.
type Tunnel struct {
	mu     sync.Mutex
	io     QueueIO
	layout Layout

	pollInterval time.Duration
	pollTimeout  time.Duration

	seq uint64 // next frame sequence number to post; also the count of frames posted so far
}

// New builds a tunnel over an already-configured ethernet core queue
// region. pollInterval/pollTimeout bound the spin-wait against the
// remote-update pointer, so a stuck target does not spin forever
// without a timeout/backoff escape.
func New(io QueueIO, layout Layout, pollInterval, pollTimeout time.Duration) *Tunnel {
	return &Tunnel{io: io, layout: layout, pollInterval: pollInterval, pollTimeout: pollTimeout}
}

// SendWrite frames a write transaction, posts it to the queue, and
// returns once the frame is written and the write pointer advanced,
// without waiting for the firmware's acknowledgment — WaitForFlush is
// what a caller needing the write applied calls next. Frames in the same
// queue execute in order, so returning before the remote ack is visible
// does not reorder this write relative to ones already queued.
func (t *Tunnel) SendWrite(core Core, addr uint64, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.post(opWrite, core, addr, uint32(len(data)), data)
}

// SendRead frames a read transaction, posts it, then polls until the
// firmware has acknowledged it and copies the response payload it left
// in the response buffer into dst.
func (t *Tunnel) SendRead(core Core, addr uint64, dst []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.post(opRead, core, addr, uint32(len(dst)), nil); err != nil {
		return err
	}
	if err := t.pollAckReached(t.seq); err != nil {
		return err
	}
	return t.io.ReadBlock(t.layout.ResponseBuf, dst)
}

// post writes one frame into the next ring slot, then advances the
// host-owned write pointer so the firmware knows to drain it.
func (t *Tunnel) post(op opcode, core Core, addr uint64, length uint32, data []byte) error {
	if frameHeaderSize+uint64(length) > t.layout.FrameSize {
		return ttumderr.New(ttumderr.KindInvalidArgument, "remote.post", "frame exceeds queue slot size")
	}

	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(op))
	hdr[4] = byte(core.X)
	hdr[5] = byte(core.Y)
	binary.LittleEndian.PutUint64(hdr[8:16], addr)
	binary.LittleEndian.PutUint32(hdr[16:20], length)

	slot := t.layout.QueueBase + (t.seq%t.layout.QueueDepth)*t.layout.FrameSize
	if err := t.io.WriteBlock(slot, hdr[:]); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := t.io.WriteBlock(slot+frameHeaderSize, data); err != nil {
			return err
		}
	}

	t.seq++
	return t.io.Write32(t.layout.WritePtr, uint32(t.seq))
}

// pollAckReached spin-waits until the firmware's remote-update pointer
// has reached at least target, the sequence count of the frame just
// posted.
func (t *Tunnel) pollAckReached(target uint64) error {
	deadline := time.Now().Add(t.pollTimeout)
	for {
		ack, err := t.io.Read32(t.layout.RemoteAck)
		if err != nil {
			return err
		}
		if uint64(ack) >= target {
			return nil
		}
		if time.Now().After(deadline) {
			return ttumderr.New(ttumderr.KindTimeout, "remote.pollAckReached", "ethernet command queue ack not received before deadline")
		}
		time.Sleep(t.pollInterval)
	}
}

// WaitForFlush spin-waits until every frame posted so far through
// this tunnel has been acknowledged by the remote firmware, required
// before any host read that must observe the effect of prior remote
// writes
func (t *Tunnel) WaitForFlush() error {
	t.mu.Lock()
	target := t.seq
	t.mu.Unlock()

	start := time.Now()
	err := t.pollAckReached(target)
	ttumdmetrics.RemoteFlushLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		ttumdlog.Default().Warnf("remote: flush timed out waiting for %d outstanding frames", target)
	}
	return err
}
