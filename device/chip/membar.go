package chip

// membarSentinel is the byte written then read back to establish that
// every write issued to a core ahead of this one has actually landed
//, matching the original driver's
// fixed barrier value.
const membarSentinel = 187

// L1Membar writes then reads back the barrier sentinel at core's L1
// barrier address, fencing every prior write to core's L1 memory.
func (c *Chip) L1Membar(core Core) error {
	return c.membar(core, c.tbl.L1BarrierAddr)
}

// DRAMMembar writes then reads back the barrier sentinel at core's DRAM
// barrier address, fencing every prior write to core's DRAM.
func (c *Chip) DRAMMembar(core Core) error {
	return c.membar(core, c.tbl.DRAMBarrierAddr)
}

func (c *Chip) membar(core Core, addr uint64) error {
	if err := c.proto.WriteToDevice(core, addr, []byte{membarSentinel}); err != nil {
		return err
	}
	var back [1]byte
	return c.proto.ReadFromDevice(core, addr, back[:])
}
