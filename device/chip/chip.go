// Package chip implements the per-chip façade that binds every lower
// layer (coordinate translation, the TLB manager, the sysmem manager,
// the device protocol, and the robust mutexes guarding shared
// registers) into the public operations a caller actually uses — plain
// reads and writes, sysmem and DMA transfers, multicast writes, memory
// barriers, RISC core resets, and ARC firmware messages.
//
// Grounded on original_source/device/api/umd/device/tt_device/tt_device.h's
// public surface and original_source/device/wormhole/wormhole_arc_messenger.cpp
// for arc_msg; every other operation composes the already-built lower
// packages rather than touching hardware directly.
package chip

import (
	"github.com/tenstorrent/tt-umd-sub002/arch"
	"github.com/tenstorrent/tt-umd-sub002/device/pci"
	"github.com/tenstorrent/tt-umd-sub002/device/protocol"
	"github.com/tenstorrent/tt-umd-sub002/device/rmutex"
	"github.com/tenstorrent/tt-umd-sub002/device/sysmem"
	"github.com/tenstorrent/tt-umd-sub002/device/tlbmgr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
)

// Core is re-exported from tlbmgr so callers only need this package.
type Core = tlbmgr.Core

// Registers is the flat BAR0 register access a chip's ARC messaging needs
// — unlike every other operation in this package, arc_msg addresses fixed
// host-BAR offsets directly rather than a core's NOC address space through
// a TLB window, so it cannot be expressed as a protocol.Protocol call.
type Registers interface {
	Read32(offset uint64) (uint32, error)
	Write32(offset uint64, v uint32) error
}

// Chip is one open chip: a bound protocol (local PCIe/JTAG, or an
// ethernet tunnel to a remote chip), the TLB and sysmem managers backing
// it, direct BAR0 register access for ARC messaging, and the two named
// robust mutexes a PCIe-attached chip needs (the protocol's own io lock
// for TLB/transfer serialization, and this package's arc lock for
// ARC_MSG.<pcie_index> serialization).
type Chip struct {
	tbl     arch.Table
	proto   protocol.Protocol
	tlbs    *tlbmgr.Manager
	sysmem  *sysmem.Manager
	regs    Registers
	dma     pci.DMABuffer
	arcLock *rmutex.Mutex
	log     *ttumdlog.Logger
}

// New binds a façade over its already-constructed layers. regs/dma may be
// the zero value for a chip with no local BAR0 (a pure remote/ethernet
// chip never issues arc_msg or DMA transfers itself). arcLock should be
// named "ARC_MSG.<pcie_index>" by the caller so every process opening the
// same physical chip contends for the same lock.
func New(tbl arch.Table, proto protocol.Protocol, tlbs *tlbmgr.Manager, sm *sysmem.Manager, regs Registers, dma pci.DMABuffer, arcLock *rmutex.Mutex) *Chip {
	log := ttumdlog.Default()
	if log == nil {
		log = ttumdlog.NewDiscard()
	}
	return &Chip{tbl: tbl, proto: proto, tlbs: tlbs, sysmem: sm, regs: regs, dma: dma, arcLock: arcLock, log: log}
}

// WriteToDevice writes data to core's address space through the bound
// protocol, whichever transport it happens to be.
func (c *Chip) WriteToDevice(core Core, addr uint64, data []byte) error {
	return c.proto.WriteToDevice(core, addr, data)
}

// ReadFromDevice reads len(dst) bytes from core's address space through
// the bound protocol.
func (c *Chip) ReadFromDevice(core Core, addr uint64, dst []byte) error {
	return c.proto.ReadFromDevice(core, addr, dst)
}

// WaitForNonMMIOFlush blocks until every write issued through this chip's
// protocol is guaranteed visible to its target; a no-op for local
// PCIe/JTAG.
func (c *Chip) WaitForNonMMIOFlush() error {
	return c.proto.WaitForNonMMIOFlush()
}

// IsRemote reports whether this chip is reached over an on-die ethernet
// tunnel rather than directly over PCIe/JTAG.
func (c *Chip) IsRemote() bool {
	return c.proto.IsRemote()
}

// WriteToSysmem copies src into one of this chip's pinned host-memory
// channels.
func (c *Chip) WriteToSysmem(channel int, src []byte, destOffset uint64) error {
	return c.sysmem.WriteToSysmem(channel, src, destOffset)
}

// ReadFromSysmem copies len(dst) bytes out of one of this chip's pinned
// host-memory channels.
func (c *Chip) ReadFromSysmem(channel int, dst []byte, srcOffset uint64) error {
	return c.sysmem.ReadFromSysmem(channel, dst, srcOffset)
}
