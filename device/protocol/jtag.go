package protocol

import (
	"encoding/binary"
)

// JtagLink is the 32-bit NOC-addressed scan-chain primitive a connected
// J-Link probe exposes. Word alignment is not required at this layer —
// unlike PCIe's dynamic TLB, JTAG addresses a core's NOC space directly
// one 32-bit register at a time. The concrete implementation lives
// outside this package (a cgo or subprocess wrapper around the vendor
// J-Link library); this package only depends on the narrow capability it
// needs.
type JtagLink interface {
	WriteNOC32(nocX, nocY uint8, addr uint64, data uint32) error
	ReadNOC32(nocX, nocY uint8, addr uint64) (uint32, error)
}

// JTAG is the scan-chain protocol variant: every write or read, including
// a sub-word one, goes through a 32-bit register access, read-modify-write
// for any write narrower than 4 bytes. Grounded on
// original_source/device/jtag/jtag_device.cpp's write/read loops.
type JTAG struct {
	link       JtagLink
	nocX, nocY uint8
}

// NewJTAG binds the protocol to one core's NOC coordinates; a JtagDevice
// in the original selects the target core per call, which this package
// models as one JTAG value per core.
func NewJTAG(link JtagLink, nocX, nocY uint8) *JTAG {
	return &JTAG{link: link, nocX: nocX, nocY: nocY}
}

func (j *JTAG) IsRemote() bool             { return false }
func (j *JTAG) WaitForNonMMIOFlush() error { return nil }

func (j *JTAG) WriteToDevice(_ Core, addr uint64, data []byte) error {
	for len(data) > 0 {
		regAddr := addr &^ 3
		wordOffset := addr & 3
		n := uint64(4) - wordOffset
		if uint64(len(data)) < n {
			n = uint64(len(data))
		}
		if wordOffset == 0 && n == 4 {
			if err := j.link.WriteNOC32(j.nocX, j.nocY, regAddr, binary.LittleEndian.Uint32(data[:4])); err != nil {
				return err
			}
		} else {
			// Misaligned head or sub-word tail: read-modify-write so
			// neighboring bytes in the same register are not clobbered.
			existing, err := j.link.ReadNOC32(j.nocX, j.nocY, regAddr)
			if err != nil {
				return err
			}
			buf := wordToBytes(existing)
			copy(buf[wordOffset:wordOffset+n], data[:n])
			if err := j.link.WriteNOC32(j.nocX, j.nocY, regAddr, bytesToWord(buf)); err != nil {
				return err
			}
		}
		addr += n
		data = data[n:]
	}
	return nil
}

func (j *JTAG) ReadFromDevice(_ Core, addr uint64, dst []byte) error {
	for len(dst) > 0 {
		n := uint64(4)
		if uint64(len(dst)) < n {
			n = uint64(len(dst))
		}
		v, err := j.link.ReadNOC32(j.nocX, j.nocY, addr)
		if err != nil {
			return err
		}
		buf := wordToBytes(v)
		copy(dst[:n], buf[:n])
		addr += n
		dst = dst[n:]
	}
	return nil
}
