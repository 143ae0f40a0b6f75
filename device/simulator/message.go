// Package simulator implements hosting for the two
// simulator chip flavors a non-silicon run uses — an in-process shared
// library (TTSim) and a child-process RTL simulator reached over framed
// pipes — plus the unix-socket emulation of inter-chip Ethernet links
// that lets a multi-chip simulated cluster exchange remote traffic
// without real hardware.
//
// Grounded on original_source/device/simulation/child_process_tt_sim_chip.cpp
// (the message loop, poll-before-read discipline, and safe_read/safe_write
// partial-I/O helpers) and message_data.hpp (the Message header and
// per-command payload structs); io.ReadFull stands in for safe_read,
// matching the partial-read idiom gravwell's ingest/entryReader.go already
// uses for framed protocol headers.
package simulator

import (
	"encoding/binary"
	"io"
)

// messageType enumerates the command/response kinds exchanged over the
// parent/child pipe pair, matching message_data.hpp's MessageType.
type messageType uint32

const (
	msgStartDevice messageType = iota + 1
	msgCloseDevice
	msgWriteToDevice
	msgReadFromDevice
	msgSendTensixRiscReset
	msgAssertRiscReset
	msgDeassertRiscReset
	msgConnectEthLinks
	msgExit
	msgResponse
)

// messageHeaderSize is {type u32, size u32}, the Message struct's wire
// size.
const messageHeaderSize = 8

// writeMessage sends one framed message: an 8-byte header followed by
// payload bytes. The header and the payload are written one after the
// other, so a large write payload is not copied into a second framing
// buffer: its raw bytes follow the header directly on the wire.
func writeMessage(w io.Writer, typ messageType, payload []byte) error {
	var hdr [messageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// readMessage reads one framed message's header and payload, using
// io.ReadFull so a short read (common on a pipe under load) does not
// return a truncated message.
func readMessage(r io.Reader) (messageType, []byte, error) {
	var hdr [messageHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	typ := messageType(binary.LittleEndian.Uint32(hdr[0:4]))
	size := binary.LittleEndian.Uint32(hdr[4:8])
	if size == 0 {
		return typ, nil, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}

// encodeWriteRequest encodes a write-to-device request: {core_x u8, core_y u8,
// pad u16, l1_dest u64, size u32} followed by the data itself, mirroring
// WriteMessageData's fixed header plus "variable length data follows".
func encodeWriteRequest(coreX, coreY uint8, l1Dest uint64, data []byte) []byte {
	const hdr = 1 + 1 + 2 + 8 + 4
	buf := make([]byte, hdr+len(data))
	buf[0] = coreX
	buf[1] = coreY
	binary.LittleEndian.PutUint64(buf[4:12], l1Dest)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(data)))
	copy(buf[hdr:], data)
	return buf
}

func decodeWriteRequest(payload []byte) (coreX, coreY uint8, l1Dest uint64, data []byte, ok bool) {
	const hdr = 1 + 1 + 2 + 8 + 4
	if len(payload) < hdr {
		return 0, 0, 0, nil, false
	}
	coreX, coreY = payload[0], payload[1]
	l1Dest = binary.LittleEndian.Uint64(payload[4:12])
	size := binary.LittleEndian.Uint32(payload[12:16])
	if hdr+int(size) != len(payload) {
		return 0, 0, 0, nil, false
	}
	return coreX, coreY, l1Dest, payload[hdr:], true
}

// encodeReadRequest mirrors ReadMessageData: {core_x, core_y, pad,
// l1_src u64, size u32}.
func encodeReadRequest(coreX, coreY uint8, l1Src uint64, size uint32) []byte {
	const hdr = 1 + 1 + 2 + 8 + 4
	buf := make([]byte, hdr)
	buf[0] = coreX
	buf[1] = coreY
	binary.LittleEndian.PutUint64(buf[4:12], l1Src)
	binary.LittleEndian.PutUint32(buf[12:16], size)
	return buf
}

func decodeReadRequest(payload []byte) (coreX, coreY uint8, l1Src uint64, size uint32, ok bool) {
	const hdr = 1 + 1 + 2 + 8 + 4
	if len(payload) != hdr {
		return 0, 0, 0, 0, false
	}
	return payload[0], payload[1], binary.LittleEndian.Uint64(payload[4:12]), binary.LittleEndian.Uint32(payload[12:16]), true
}

// RiscSelector is the bitmask selecting which RISC cores within a tile a
// reset operation targets, matching TensixResetMessageData/
// AssertResetMessageData/DeassertResetMessageData's selector fields. This
// package only ships the bitmask value across the wire. It is a separate
// type from arch.RiscSelector, the named per-architecture bit layout
// (BRISC, TRISC0..2, NCRISC, ERISC0/1, ...), and nothing in this module
// converts one into the other.
type RiscSelector uint32

// encodeResetRequest mirrors TensixResetMessageData/AssertResetMessageData:
// {core_x, core_y, pad, selector u32}.
func encodeResetRequest(coreX, coreY uint8, selector RiscSelector) []byte {
	buf := make([]byte, 8)
	buf[0] = coreX
	buf[1] = coreY
	binary.LittleEndian.PutUint32(buf[4:8], uint32(selector))
	return buf
}

func decodeResetRequest(payload []byte) (coreX, coreY uint8, selector RiscSelector, ok bool) {
	if len(payload) != 8 {
		return 0, 0, 0, false
	}
	return payload[0], payload[1], RiscSelector(binary.LittleEndian.Uint32(payload[4:8])), true
}

// encodeDeassertRequest mirrors DeassertResetMessageData: the reset
// header plus a trailing staggered-start flag byte.
func encodeDeassertRequest(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) []byte {
	buf := encodeResetRequest(coreX, coreY, selector)
	flag := byte(0)
	if staggeredStart {
		flag = 1
	}
	return append(buf, flag)
}

func decodeDeassertRequest(payload []byte) (coreX, coreY uint8, selector RiscSelector, staggeredStart bool, ok bool) {
	if len(payload) != 9 {
		return 0, 0, 0, false, false
	}
	coreX, coreY, selector, ok = decodeResetRequest(payload[:8])
	if !ok {
		return 0, 0, 0, false, false
	}
	return coreX, coreY, selector, payload[8] != 0, true
}
