package protocol

import (
	"encoding/binary"

	"github.com/tenstorrent/tt-umd-sub002/device/tlb"
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// wordSize is the granule memcpyToDeviceWormhole/memcpyFromDeviceWormhole
// read and write the device side in: Wormhole's GDDR memory controller
// errata forbids adjacent 1-byte/2-byte writes, so every device-side
// access here is a full 32-bit word: a read-modify-write for a partial
// head or tail word, a plain word store or load for the words between.
const wordSize = 4

// memcpyToDeviceWormhole copies src into w's data window at offset,
// aligning the device-side pointer to a 4-byte granule with a
// read-modify-write head and tail around a word-at-a-time middle loop.
// Grounded on pcie_protocol.cpp's memcpy_to_device.
func memcpyToDeviceWormhole(w *tlb.Window, offset uint64, src []byte) error {
	numBytes := uint64(len(src))
	if numBytes == 0 {
		return nil
	}
	if offset+numBytes > w.Size() {
		return ttumderr.New(ttumderr.KindInvalidArgument, "protocol.memcpyToDeviceWormhole", "transfer exceeds window bounds")
	}
	base := w.Handle().Base()

	misalignment := offset % wordSize
	dp := offset - misalignment

	if misalignment != 0 {
		tmp, err := readWord(base, dp)
		if err != nil {
			return err
		}
		leadingLen := wordSize - misalignment
		if leadingLen > numBytes {
			leadingLen = numBytes
		}
		buf := wordToBytes(tmp)
		copy(buf[misalignment:misalignment+leadingLen], src[:leadingLen])
		if err := writeWord(base, dp, bytesToWord(buf)); err != nil {
			return err
		}
		numBytes -= leadingLen
		src = src[leadingLen:]
		dp += wordSize
	}

	numWords := numBytes / wordSize
	for i := uint64(0); i < numWords; i++ {
		if err := writeWord(base, dp, binary.LittleEndian.Uint32(src[:wordSize])); err != nil {
			return err
		}
		src = src[wordSize:]
		dp += wordSize
	}

	trailingLen := numBytes % wordSize
	if trailingLen != 0 {
		tmp, err := readWord(base, dp)
		if err != nil {
			return err
		}
		buf := wordToBytes(tmp)
		copy(buf[:trailingLen], src[:trailingLen])
		if err := writeWord(base, dp, bytesToWord(buf)); err != nil {
			return err
		}
	}
	return nil
}

// memcpyFromDeviceWormhole copies num_bytes from w's data window at
// offset into dst, aligning the device-side pointer the same way
// memcpyToDeviceWormhole does. Grounded on pcie_protocol.cpp's
// memcpy_from_device.
func memcpyFromDeviceWormhole(dst []byte, w *tlb.Window, offset uint64) error {
	numBytes := uint64(len(dst))
	if numBytes == 0 {
		return nil
	}
	if offset+numBytes > w.Size() {
		return ttumderr.New(ttumderr.KindInvalidArgument, "protocol.memcpyFromDeviceWormhole", "transfer exceeds window bounds")
	}
	base := w.Handle().Base()

	misalignment := offset % wordSize
	sp := offset - misalignment

	if misalignment != 0 {
		tmp, err := readWord(base, sp)
		if err != nil {
			return err
		}
		leadingLen := wordSize - misalignment
		if leadingLen > numBytes {
			leadingLen = numBytes
		}
		buf := wordToBytes(tmp)
		copy(dst[:leadingLen], buf[misalignment:misalignment+leadingLen])
		numBytes -= leadingLen
		dst = dst[leadingLen:]
		sp += wordSize
	}

	numWords := numBytes / wordSize
	for i := uint64(0); i < numWords; i++ {
		word, err := readWord(base, sp)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst[:wordSize], word)
		dst = dst[wordSize:]
		sp += wordSize
	}

	trailingLen := numBytes % wordSize
	if trailingLen != 0 {
		tmp, err := readWord(base, sp)
		if err != nil {
			return err
		}
		buf := wordToBytes(tmp)
		copy(dst[:trailingLen], buf[:trailingLen])
	}
	return nil
}

func readWord(base []byte, off uint64) (uint32, error) {
	if off+wordSize > uint64(len(base)) {
		return 0, ttumderr.New(ttumderr.KindInvalidArgument, "protocol.readWord", "word read past window end")
	}
	return binary.LittleEndian.Uint32(base[off : off+wordSize]), nil
}

func writeWord(base []byte, off uint64, v uint32) error {
	if off+wordSize > uint64(len(base)) {
		return ttumderr.New(ttumderr.KindInvalidArgument, "protocol.writeWord", "word write past window end")
	}
	binary.LittleEndian.PutUint32(base[off:off+wordSize], v)
	return nil
}

func wordToBytes(v uint32) [wordSize]byte {
	var b [wordSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

func bytesToWord(b [wordSize]byte) uint32 {
	return binary.LittleEndian.Uint32(b[:])
}
