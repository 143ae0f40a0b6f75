package chip

import (
	"encoding/binary"

	"github.com/tenstorrent/tt-umd-sub002/coord"
)

// TelemetrySnapshot reads numWords consecutive 32-bit words starting at
// this chip's ARC scratch register base, addressed through core (the ARC
// core's own coordinate) via the bound protocol, with no parsing of the
// payload at all — a raw stand-in for the original driver's dedicated ARC
// telemetry reader, which decodes a versioned table layout this driver
// does not model. Works the same over a remote (ethernet-tunneled) chip
// as over a local one, since it only calls ReadFromDevice.
func (c *Chip) TelemetrySnapshot(core coord.Coord, numWords int) ([]uint32, error) {
	buf := make([]byte, numWords*4)
	if err := c.proto.ReadFromDevice(Core{X: core.X, Y: core.Y}, c.tbl.ARCScratchBase, buf); err != nil {
		return nil, err
	}
	out := make([]uint32, numWords)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return out, nil
}

// IsMapped reports whether core already has a TLB window covering
// [address, address+sizeInBytes) — a thin passthrough to this chip's TLB
// manager for callers deciding whether a write will reconfigure a window
// or reuse one already in place.
func (c *Chip) IsMapped(core Core, address, sizeInBytes uint64) bool {
	return c.tlbs.IsMapped(core, address, sizeInBytes)
}
