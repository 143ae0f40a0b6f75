// Package kioctl is a typed Go shim over the tenstorrent kernel driver's
// ioctl surface: /dev/tenstorrent/<N> character devices, queried and
// controlled through fixed-layout request structs passed to unix.Ioctl.
// Every other device/* package builds on this one instead of calling
// unix.Ioctl directly, the same way original_source/device/pcie/pci_device.cpp
// is the sole caller of the driver's ioctl(2) surface in the original.
//
// Grounded on original_source/device/pcie/pci_device.cpp (GET_DEVICE_INFO,
// GET_DRIVER_INFO, QUERY_MAPPINGS, PIN_PAGES, UNPIN_PAGES,
// ALLOCATE_DMA_BUF, RESET_DEVICE call sites) and gravwell's ipexist/mmap.go
// for the raw-syscall style (constants grouped by concern, small focused
// wrapper functions, explicit error values rather than panics).
package kioctl

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// Ioctl request numbers. These mirror the tenstorrent driver's UAPI
// header (ioctl.h in original_source); the magic and sequence numbers are
// fixed by the kernel ABI and must not be renumbered.
const (
	ioctlMagic = 0xFA

	cmdGetDeviceInfo   = iocCommand(0)
	cmdGetDriverInfo   = iocCommand(2)
	cmdQueryMappings   = iocCommand(4)
	cmdAllocateTLB     = iocCommand(5)
	cmdPinPages        = iocCommand(6)
	cmdAllocateDMABuf  = iocCommand(7)
	cmdResetDevice     = iocCommand(9)
	cmdUnpinPages      = iocCommand(11)
	cmdFreeTLB         = iocCommand(12)
)

type iocCommand uint8

// ioctlNR builds the ioctl request value for the driver's magic number
// and command sequence, matching the kernel's _IOWR-style encoding well
// enough for this driver's fixed-size struct payloads (the kernel decides
// semantics from the command number alone, not the encoded direction/size
// bits, so a plain shift suffices).
func ioctlNR(cmd iocCommand) uintptr {
	return uintptr(ioctlMagic)<<8 | uintptr(cmd)
}

// PinFlags controls ALLOCATE_DMA_BUF / PIN_PAGES behavior.
type PinFlags uint32

const (
	PinContiguous PinFlags = 1 << 0
	PinNOCVisible PinFlags = 1 << 1
)

// ResetFlags controls RESET_DEVICE behavior.
type ResetFlags uint32

const (
	ResetConfigWrite ResetFlags = 1 << 0
)

// MappingID names one of the driver's resource mappings (BAR or DMA
// region), returned by QUERY_MAPPINGS.
type MappingID uint32

const (
	MappingResource0UC MappingID = 1
	MappingResource0WC MappingID = 2
	MappingResource1UC MappingID = 3
	MappingResource1WC MappingID = 4
	MappingResource2UC MappingID = 5
	MappingResource2WC MappingID = 6
)

// Mapping is one entry from QUERY_MAPPINGS: a resource's BAR offset and
// size within the device file, used as the offset argument to mmap.
type Mapping struct {
	ID         MappingID
	BaseOffset uint64
	Size       uint64
}

// DeviceInfo is GET_DEVICE_INFO's result, identifying the silicon behind
// an open device file.
type DeviceInfo struct {
	VendorID          uint16
	DeviceID          uint16
	SubsystemVendorID uint16
	SubsystemID       uint16
	PCIDomain         uint16
	Bus, Device, Fn   uint16
}

// Version is a decoded kernel driver semantic version, packed by the
// driver as major<<16 | minor<<8 | patch (the same scheme the kernel's
// own KERNEL_VERSION macro uses), compared against the feature-gating
// minimums original_source's kmd_versions.hpp names.
type Version struct {
	Major, Minor, Patch uint32
}

func decodeVersion(raw uint32) Version {
	return Version{Major: raw >> 16, Minor: (raw >> 8) & 0xFF, Patch: raw & 0xFF}
}

// Less reports whether v is older than other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DriverInfo is GET_DRIVER_INFO's result.
type DriverInfo struct {
	Version Version
}

// rawDeviceInfo/rawDriverInfo/rawQueryMappings/rawMapping/rawPinPages/
// rawDMABuf/rawResetDevice mirror the kernel UAPI's packed in/out struct
// layout closely enough for unix.Ioctl's unsafe.Pointer argument; field
// order matters, padding does not since we only read the fields we use.
type rawDeviceInfo struct {
	outputSizeBytes  uint32
	_                uint32
	vendorID         uint16
	deviceID         uint16
	subsystemVendor  uint16
	subsystemID      uint16
	busDevFn         uint16
	maxDmaBufSize    uint32
	pciDomain        uint16
	_                uint16
}

type rawDriverInfo struct {
	outputSizeBytes uint32
	driverVersion   uint32
}

type rawMapping struct {
	MappingID  uint32
	_          uint32
	BaseOffset uint64
	Size       uint64
}

const maxQueryMappings = 8

type rawQueryMappings struct {
	outputMappingCount uint32
	_                  uint32
}

type rawPinPages struct {
	outputSizeBytes uint32
	flags           uint32
	virtualAddress  uint64
	size            uint64
	physicalAddress uint64
}

type rawUnpinPages struct {
	virtualAddress uint64
	size           uint64
}

type rawAllocateDMABuf struct {
	requestedSize  uint32
	bufIndex       uint32
	mappingOffset  uint64
	physicalAddress uint64
	_              uint64
}

type rawResetDevice struct {
	outputSizeBytes uint32
	flags           uint32
	result          uint32
	_               uint32
}

type rawAllocateTLB struct {
	size          uint64
	mappingKind   uint32
	id            uint32
	mappingOffset uint64
}

type rawFreeTLB struct {
	id uint32
}

// Handle wraps an open /dev/tenstorrent/<N> file descriptor with the
// typed ioctl calls this driver needs. It does not own the BAR/DMA mmaps
// built on top of it — those live in device/pci.
type Handle struct {
	f *os.File
}

// Open opens the device node for the given enumeration index.
func Open(index int) (*Handle, error) {
	path := fmt.Sprintf("/dev/tenstorrent/%d", index)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.Open", err)
	}
	return &Handle{f: f}, nil
}

// Close closes the underlying device file.
func (h *Handle) Close() error {
	return h.f.Close()
}

// Fd returns the raw file descriptor, for mmap use by device/pci.
func (h *Handle) Fd() uintptr {
	return h.f.Fd()
}

func (h *Handle) ioctl(cmd iocCommand, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), ioctlNR(cmd), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// GetDeviceInfo issues GET_DEVICE_INFO.
func (h *Handle) GetDeviceInfo() (DeviceInfo, error) {
	var raw rawDeviceInfo
	raw.outputSizeBytes = uint32(unsafe.Sizeof(raw))
	if err := h.ioctl(cmdGetDeviceInfo, unsafe.Pointer(&raw)); err != nil {
		return DeviceInfo{}, ttumderr.Wrap(ttumderr.KindTransport, "kioctl.GetDeviceInfo", err)
	}
	return DeviceInfo{
		VendorID:          raw.vendorID,
		DeviceID:          raw.deviceID,
		SubsystemVendorID: raw.subsystemVendor,
		SubsystemID:       raw.subsystemID,
		PCIDomain:         raw.pciDomain,
		Bus:               raw.busDevFn >> 8,
		Device:            (raw.busDevFn >> 3) & 0x1F,
		Fn:                raw.busDevFn & 0x07,
	}, nil
}

// GetDriverInfo issues GET_DRIVER_INFO.
func (h *Handle) GetDriverInfo() (DriverInfo, error) {
	var raw rawDriverInfo
	raw.outputSizeBytes = uint32(unsafe.Sizeof(raw))
	if err := h.ioctl(cmdGetDriverInfo, unsafe.Pointer(&raw)); err != nil {
		return DriverInfo{}, ttumderr.Wrap(ttumderr.KindTransport, "kioctl.GetDriverInfo", err)
	}
	return DriverInfo{Version: decodeVersion(raw.driverVersion)}, nil
}

// QueryMappings issues QUERY_MAPPINGS and returns every populated mapping
// entry, up to the driver's fixed maximum of 8.
func (h *Handle) QueryMappings() ([]Mapping, error) {
	var buf struct {
		hdr      rawQueryMappings
		mappings [maxQueryMappings]rawMapping
	}
	buf.hdr.outputMappingCount = maxQueryMappings
	if err := h.ioctl(cmdQueryMappings, unsafe.Pointer(&buf)); err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindTransport, "kioctl.QueryMappings", err)
	}
	out := make([]Mapping, 0, maxQueryMappings)
	for _, m := range buf.mappings {
		if m.MappingID == 0 {
			continue
		}
		out = append(out, Mapping{ID: MappingID(m.MappingID), BaseOffset: m.BaseOffset, Size: m.Size})
	}
	return out, nil
}

// PinPages pins a host virtual-memory range (typically a hugepage
// allocation) for device DMA, returning its physical/IOVA address.
func (h *Handle) PinPages(virtualAddr, size uint64, flags PinFlags) (uint64, error) {
	raw := rawPinPages{
		flags:          uint32(flags),
		virtualAddress: virtualAddr,
		size:           size,
	}
	raw.outputSizeBytes = uint32(unsafe.Sizeof(raw))
	if err := h.ioctl(cmdPinPages, unsafe.Pointer(&raw)); err != nil {
		return 0, ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.PinPages", err)
	}
	return raw.physicalAddress, nil
}

// UnpinPages releases a range pinned by PinPages.
func (h *Handle) UnpinPages(virtualAddr, size uint64) error {
	raw := rawUnpinPages{virtualAddress: virtualAddr, size: size}
	if err := h.ioctl(cmdUnpinPages, unsafe.Pointer(&raw)); err != nil {
		return ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.UnpinPages", err)
	}
	return nil
}

// AllocateDMABuf asks the driver to reserve and map a kernel-owned DMA
// buffer (the no-IOMMU path), returning the mmap offset to pass to
// unix.Mmap on this device's fd, and the buffer's physical address.
func (h *Handle) AllocateDMABuf(size uint64, bufIndex uint32) (mappingOffset, physicalAddr uint64, err error) {
	raw := rawAllocateDMABuf{requestedSize: uint32(size), bufIndex: bufIndex}
	if err := h.ioctl(cmdAllocateDMABuf, unsafe.Pointer(&raw)); err != nil {
		return 0, 0, ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.AllocateDMABuf", err)
	}
	return raw.mappingOffset, raw.physicalAddress, nil
}

// TLBCacheMode selects the BAR cache mode a newly allocated TLB's data
// window is mapped with.
type TLBCacheMode uint32

const (
	TLBUncached     TLBCacheMode = 0
	TLBWriteCombine TLBCacheMode = 1
)

// AllocateTLB asks the driver to reserve a kernel TLB of the given size
// and mapping cache mode, returning its id and the BAR mmap offset of its
// data window.
func (h *Handle) AllocateTLB(size uint64, mapping TLBCacheMode) (id uint32, mappingOffset uint64, err error) {
	raw := rawAllocateTLB{size: size, mappingKind: uint32(mapping)}
	if err := h.ioctl(cmdAllocateTLB, unsafe.Pointer(&raw)); err != nil {
		return 0, 0, ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.AllocateTLB", err)
	}
	return raw.id, raw.mappingOffset, nil
}

// FreeTLB returns a previously allocated TLB id to the kernel's pool.
func (h *Handle) FreeTLB(id uint32) error {
	raw := rawFreeTLB{id: id}
	if err := h.ioctl(cmdFreeTLB, unsafe.Pointer(&raw)); err != nil {
		return ttumderr.Wrap(ttumderr.KindResourceExhausted, "kioctl.FreeTLB", err)
	}
	return nil
}

// ResetDevice issues RESET_DEVICE on this handle.
func (h *Handle) ResetDevice(flags ResetFlags) error {
	raw := rawResetDevice{flags: uint32(flags)}
	raw.outputSizeBytes = uint32(unsafe.Sizeof(raw.result))
	if err := h.ioctl(cmdResetDevice, unsafe.Pointer(&raw)); err != nil {
		return ttumderr.Wrap(ttumderr.KindTransport, "kioctl.ResetDevice", err)
	}
	if raw.result != 0 {
		return ttumderr.New(ttumderr.KindTransport, "kioctl.ResetDevice", fmt.Sprintf("driver returned result=%d", raw.result))
	}
	return nil
}
