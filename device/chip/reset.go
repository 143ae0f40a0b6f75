package chip

import (
	"encoding/binary"
	"time"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

// staggeredStartDelay is the pause between clearing each selected RISC's
// reset bit during a staggered DeassertRiscReset, so every selected core
// does not begin fetching instructions in the same cycle.
const staggeredStartDelay = 100 * time.Microsecond

func (c *Chip) readSoftReset(core Core) (uint32, error) {
	var buf [4]byte
	if err := c.proto.ReadFromDevice(core, c.tbl.TensixSoftResetAddr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (c *Chip) writeSoftReset(core Core, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return c.proto.WriteToDevice(core, c.tbl.TensixSoftResetAddr, buf[:])
}

// AssertRiscReset ORs selector's bits into core's soft-reset register,
// holding the selected RISC cores in reset.
func (c *Chip) AssertRiscReset(core Core, selector arch.RiscSelector) error {
	bits, err := c.tbl.SoftResetRegValue(selector)
	if err != nil {
		return err
	}
	cur, err := c.readSoftReset(core)
	if err != nil {
		return err
	}
	return c.writeSoftReset(core, cur|bits)
}

// DeassertRiscReset clears selector's bits from core's soft-reset
// register, releasing the selected RISC cores from reset. When
// staggeredStart is set, each selected core's bit is cleared in its own
// read-modify-write with a short pause in between, rather than all at
// once.
func (c *Chip) DeassertRiscReset(core Core, selector arch.RiscSelector, staggeredStart bool) error {
	bits, err := c.tbl.SoftResetRegValue(selector)
	if err != nil {
		return err
	}
	if !staggeredStart {
		cur, err := c.readSoftReset(core)
		if err != nil {
			return err
		}
		return c.writeSoftReset(core, cur&^bits)
	}

	for bit := uint32(1); bits != 0; bit <<= 1 {
		if bits&bit == 0 {
			continue
		}
		cur, err := c.readSoftReset(core)
		if err != nil {
			return err
		}
		if err := c.writeSoftReset(core, cur&^bit); err != nil {
			return err
		}
		bits &^= bit
		if bits != 0 {
			time.Sleep(staggeredStartDelay)
		}
	}
	return nil
}

// SendTensixRiscReset pulses reset on the selected RISC cores: assert
// then immediately deassert, with no staggering.
func (c *Chip) SendTensixRiscReset(core Core, selector arch.RiscSelector) error {
	if err := c.AssertRiscReset(core, selector); err != nil {
		return err
	}
	return c.DeassertRiscReset(core, selector, false)
}
