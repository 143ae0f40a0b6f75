package chip

import "github.com/tenstorrent/tt-umd-sub002/arch"

// NOCMulticastWrite writes data to every core in the rectangle
// [xStart,xEnd] x [yStart,yEnd], applying the architecture's multicast
// workaround to the start column first. Real hardware multicast needs a
// TLB window configured with a multicast rectangle and NOC broadcast bit
// set, which device/tlbmgr's ConfigureTLB does not currently expose (it
// only ever builds a unicast tlb.Config); rather than grow that seam for
// one caller, this façade decomposes every multicast into a loop of plain
// unicast writes through the already-bound protocol, skipping Blackhole's
// non-tensix columns the same way a true multicast rectangle would.
func (c *Chip) NOCMulticastWrite(xStart, yStart, xEnd, yEnd int, addr uint64, data []byte) error {
	xStart, yStart, xEnd, yEnd = c.tbl.MulticastWorkaround(xStart, yStart, xEnd, yEnd)
	for y := yStart; y <= yEnd; y++ {
		for x := xStart; x <= xEnd; x++ {
			if c.tbl.Kind == arch.Blackhole && arch.BlackholeNonTensixColumns[x] {
				continue
			}
			if err := c.proto.WriteToDevice(Core{X: x, Y: y}, addr, data); err != nil {
				return err
			}
		}
	}
	return nil
}
