package chip

import (
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// DMAWriteToDevice stages data through this chip's pinned DMA buffer
// before moving it to core's address space. The original driver's DMA
// path programs a hardware DMA-trigger register sequence and waits on the
// completion page device/pci.Device.DMA.Completion is reserved for; that
// trigger sequence was not present in the retrieved source tree, so this
// façade models the "DMA" path as staging through the pinned buffer (to
// exercise the same host-memory bounce real DMA would use) followed by an
// ordinary protocol write, documented as a deliberate simplification
// rather than a hardware DMA engine kickoff.
func (c *Chip) DMAWriteToDevice(core Core, addr uint64, data []byte) error {
	if uint64(len(data)) > c.dma.Size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "chip.DMAWriteToDevice", "transfer exceeds DMA staging buffer size")
	}
	n := copy(c.dma.Buffer, data)
	return c.proto.WriteToDevice(core, addr, c.dma.Buffer[:n])
}

// DMAReadFromDevice reads len(dst) bytes from core's address space into
// this chip's pinned DMA buffer, then copies them out to dst. See
// DMAWriteToDevice for the staging simplification this models.
func (c *Chip) DMAReadFromDevice(core Core, addr uint64, dst []byte) error {
	if uint64(len(dst)) > c.dma.Size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "chip.DMAReadFromDevice", "transfer exceeds DMA staging buffer size")
	}
	staging := c.dma.Buffer[:len(dst)]
	if err := c.proto.ReadFromDevice(core, addr, staging); err != nil {
		return err
	}
	copy(dst, staging)
	return nil
}
