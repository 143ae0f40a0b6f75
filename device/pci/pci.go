// Package pci opens a tenstorrent PCI device node, maps its BAR windows
// and DMA staging buffer into this process's address space, and exposes
// the typed handle every other device/* package builds its I/O on.
//
// Grounded on original_source/device/pcie/pci_device.cpp: enumeration
// under /dev/tenstorrent, QUERY_MAPPINGS-driven BAR0/BAR2 mmap, IOMMU
// detection via sysfs, and the descending-size DMA buffer allocation
// retry loop (anonymous mmap + PIN_PAGES when the IOMMU is enabled,
// driver-allocated ALLOCATE_DMA_BUF when it is not; the IOMMU state picks
// one path and the other is never tried as a fallback).
package pci

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd-sub002/arch"
	"github.com/tenstorrent/tt-umd-sub002/device/kioctl"
	"github.com/tenstorrent/tt-umd-sub002/device/tlb"
	"github.com/tenstorrent/tt-umd-sub002/ttumdconfig"
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

const (
	devicesDir         = "/dev/tenstorrent"
	completionPage     = 0x1000
	wormholeDeviceID   = 0x401e
	blackholeDeviceID  = 0xb140
)

// Minimum kernel driver versions gating TLB allocation, IOMMU-backed
// pinning, and NOC-visible mapping, mirroring
// original_source/device/api/umd/device/utils/kmd_versions.hpp.
var (
	minDriverVersionTLBs      = kioctl.Version{Major: 1, Minor: 34, Patch: 0}
	minDriverVersionIOMMU     = kioctl.Version{Major: 1, Minor: 29, Patch: 0}
	minDriverVersionMapToNOC  = kioctl.Version{Major: 2, Minor: 0, Patch: 0}
)

// DMABuffer is the host-visible staging buffer used for large PCIe
// transfers, plus its matching device-visible (IOVA or physical) address.
type DMABuffer struct {
	Buffer     []byte
	Completion []byte
	BufferPA   uint64
	CompletionPA uint64
	Size       uint64
}

// Device is an open tenstorrent PCI device: its ioctl handle plus the BAR
// mappings and DMA buffer derived from it.
type Device struct {
	Index int
	Info  kioctl.DeviceInfo
	Arch  arch.Kind

	DriverVersion kioctl.Version

	handle *kioctl.Handle

	BAR0   []byte
	BAR2UC []byte

	IOMMUEnabled bool
	DMA          DMABuffer

	nextTLBIndexPerSize map[uint64]uint64
}

// EnumerateIndices lists the device indices visible under /dev/tenstorrent,
// filtered by TT_VISIBLE_DEVICES
func EnumerateIndices() ([]int, error) {
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ttumderr.Wrap(ttumderr.KindConfiguration, "pci.EnumerateIndices", err)
	}
	visible, err := ttumdconfig.LoadVisibleDevices()
	if err != nil {
		return nil, ttumderr.Wrap(ttumderr.KindConfiguration, "pci.EnumerateIndices", err)
	}
	var all []int
	for _, e := range entries {
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		all = append(all, idx)
	}
	sort.Ints(all)
	if visible.Empty() {
		return all, nil
	}
	var out []int
	for _, idx := range all {
		if visible.Allows(idx, ttumdconfig.BDF{}) {
			out = append(out, idx)
		}
	}
	return out, nil
}

// archFromDeviceID maps a PCI device ID to a supported architecture.
func archFromDeviceID(deviceID uint16) (arch.Kind, error) {
	switch deviceID {
	case wormholeDeviceID:
		return arch.Wormhole, nil
	case blackholeDeviceID:
		return arch.Blackhole, nil
	default:
		return 0, fmt.Errorf("pci: unrecognized device id %#x", deviceID)
	}
}

// Open opens, maps, and returns the device at the given enumeration index.
func Open(index int) (*Device, error) {
	h, err := kioctl.Open(index)
	if err != nil {
		return nil, err
	}
	d := &Device{Index: index, handle: h, nextTLBIndexPerSize: map[uint64]uint64{}}

	info, err := h.GetDeviceInfo()
	if err != nil {
		h.Close()
		return nil, err
	}
	d.Info = info

	a, err := archFromDeviceID(info.DeviceID)
	if err != nil {
		h.Close()
		return nil, ttumderr.Wrap(ttumderr.KindConfiguration, "pci.Open", err)
	}
	d.Arch = a

	d.IOMMUEnabled, err = detectIOMMU(index)
	if err != nil {
		ttumdlog.Default().Warnf("pci: could not determine IOMMU state for device %d: %v", index, err)
	}

	driverInfo, err := h.GetDriverInfo()
	if err != nil {
		h.Close()
		return nil, err
	}
	d.DriverVersion = driverInfo.Version

	if d.DriverVersion.Less(minDriverVersionTLBs) {
		h.Close()
		return nil, ttumderr.New(ttumderr.KindConfiguration, "pci.Open",
			fmt.Sprintf("driver version %s is older than the minimum required %s for TLB allocation", d.DriverVersion, minDriverVersionTLBs))
	}
	if d.IOMMUEnabled && d.DriverVersion.Less(minDriverVersionIOMMU) {
		h.Close()
		return nil, ttumderr.New(ttumderr.KindConfiguration, "pci.Open",
			fmt.Sprintf("driver version %s is older than the minimum required %s for IOMMU-backed pinning", d.DriverVersion, minDriverVersionIOMMU))
	}
	if d.IOMMUEnabled && d.DriverVersion.Less(minDriverVersionMapToNOC) {
		ttumdlog.Default().Warnf("pci: driver version %s is older than %s, NOC-visible mapping may be unavailable", d.DriverVersion, minDriverVersionMapToNOC)
	}

	mappings, err := h.QueryMappings()
	if err != nil {
		h.Close()
		return nil, err
	}

	bar0, err := mapResource(h.Fd(), mappings, kioctl.MappingResource0UC)
	if err != nil {
		h.Close()
		return nil, ttumderr.Wrap(ttumderr.KindResourceExhausted, "pci.Open.bar0", err)
	}
	d.BAR0 = bar0

	bar2, err := mapResource(h.Fd(), mappings, kioctl.MappingResource1UC)
	if err == nil {
		d.BAR2UC = bar2
	}

	return d, nil
}

func mapResource(fd uintptr, mappings []kioctl.Mapping, id kioctl.MappingID) ([]byte, error) {
	for _, m := range mappings {
		if m.ID != id {
			continue
		}
		if m.Size == 0 {
			return nil, fmt.Errorf("pci: mapping %d has zero size", id)
		}
		data, err := unix.Mmap(int(fd), int64(m.BaseOffset), int(m.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("pci: mapping %d not found", id)
}

func detectIOMMU(index int) (bool, error) {
	path := fmt.Sprintf("/sys/class/tenstorrent/%d/device/iommu_group/type", index)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	t := strings.TrimSpace(string(b))
	return strings.HasPrefix(t, "DMA"), nil
}

// dmaSizesDescending are the buffer sizes tried, largest first, when
// allocating the DMA staging buffer
var dmaSizesDescending = []uint64{4 << 20, 2 << 20, 1 << 20, 256 << 10}

// AllocateDMABuffer reserves and maps the DMA staging buffer, trying each
// legal size from largest to smallest until one succeeds, the same
// largest-to-smallest retry pattern shared with the TLB allocator.
func (d *Device) AllocateDMABuffer() error {
	var lastErr error
	for i, size := range dmaSizesDescending {
		if i > 0 {
			ttumdmetrics.DMABufAllocRetries.Inc()
		}
		var err error
		if d.IOMMUEnabled {
			err = d.allocateDMAIOMMU(size)
		} else {
			err = d.allocateDMANoIOMMU(size)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		ttumdlog.Default().Debugf("pci: DMA buffer alloc of size %d failed, trying smaller: %v", size, err)
	}
	return ttumderr.Wrap(ttumderr.KindResourceExhausted, "pci.AllocateDMABuffer", lastErr)
}

func (d *Device) allocateDMANoIOMMU(size uint64) error {
	allocSize := size + completionPage
	mappingOffset, physAddr, err := d.handle.AllocateDMABuf(allocSize, 0)
	if err != nil {
		return err
	}
	data, err := unix.Mmap(int(d.handle.Fd()), int64(mappingOffset), int(allocSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	d.DMA = DMABuffer{
		Buffer:       data[:size],
		Completion:   data[size:allocSize],
		BufferPA:     physAddr,
		CompletionPA: physAddr + size,
		Size:         size,
	}
	return nil
}

func (d *Device) allocateDMAIOMMU(size uint64) error {
	allocSize := size + completionPage
	data, err := unix.Mmap(-1, 0, int(allocSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return err
	}
	iova, err := d.handle.PinPages(addrOf(data), allocSize, 0)
	if err != nil {
		unix.Munmap(data)
		return err
	}
	d.DMA = DMABuffer{
		Buffer:       data[:size],
		Completion:   data[size:allocSize],
		BufferPA:     iova,
		CompletionPA: iova + size,
		Size:         size,
	}
	return nil
}

// Close unmaps BARs and the DMA buffer and closes the ioctl handle.
func (d *Device) Close() error {
	if d.BAR0 != nil {
		unix.Munmap(d.BAR0)
	}
	if d.BAR2UC != nil {
		unix.Munmap(d.BAR2UC)
	}
	if d.DMA.Buffer != nil {
		unix.Munmap(d.DMA.Buffer[:int(d.DMA.Size+completionPage)])
	}
	return d.handle.Close()
}

// Reset issues a RESET_DEVICE ioctl on this device.
func (d *Device) Reset() error {
	return d.handle.ResetDevice(0)
}

// AllocateTLB reserves a kernel TLB of the given size and cache mode and
// maps its data window into this process, returning a tlb.Handle ready to
// be wrapped in a tlb.Window by the caller (device/tlbmgr), the register
// layout for that allocation, and the configuration-register BAR (BAR0)
// the layout's CfgAddr is relative to — Window needs both the handle's
// own data window and the shared configuration-register region to
// operate.
func (d *Device) AllocateTLB(size uint64, mapping arch.MappingKind) (*tlb.Handle, arch.TLBConfig, []byte, error) {
	tbl := arch.For(d.Arch)
	tlbCfg, ok := tbl.TLBConfigForSize(size, d.nextTLBIndexPerSize[size])
	if !ok {
		return nil, arch.TLBConfig{}, nil, ttumderr.New(ttumderr.KindInvalidArgument, "pci.AllocateTLB",
			fmt.Sprintf("size %d is not a legal TLB size for %s", size, d.Arch))
	}

	cacheMode := kioctl.TLBUncached
	if mapping == arch.MappingWC {
		cacheMode = kioctl.TLBWriteCombine
	}
	id, mappingOffset, err := d.handle.AllocateTLB(size, cacheMode)
	if err != nil {
		return nil, arch.TLBConfig{}, nil, err
	}
	data, err := unix.Mmap(int(d.handle.Fd()), int64(mappingOffset), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, arch.TLBConfig{}, nil, ttumderr.Wrap(ttumderr.KindResourceExhausted, "pci.AllocateTLB", err)
	}
	d.nextTLBIndexPerSize[size]++

	h := tlb.NewHandle(id, size, mapping, data, 0, func(tlbID uint32) error {
		unix.Munmap(data)
		return d.handle.FreeTLB(tlbID)
	})
	return h, tlbCfg, d.BAR0, nil
}

// channelSizeNonIOMMU is the default per-channel huge page size used when
// the IOMMU is disabled
const channelSizeNonIOMMU = 1 << 30

// AllocateChannel reserves and pins one sysmem host-memory channel for
// device/sysmem.Manager: a huge page pinned {contiguous, NOC-visible}
// when the IOMMU is disabled, or ordinary pages pinned {NOC-visible}
// only, assembled into an IOVA mapping, when it is enabled.
func (d *Device) AllocateChannel(index int, size uint64) ([]byte, uint64, error) {
	if size == 0 {
		size = channelSizeNonIOMMU
	}
	if d.IOMMUEnabled {
		return d.allocateChannelIOMMU(size)
	}
	return d.allocateChannelHugepage(size)
}

func (d *Device) allocateChannelHugepage(size uint64) ([]byte, uint64, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_HUGETLB)
	if err != nil {
		return nil, 0, ttumderr.Wrap(ttumderr.KindResourceExhausted, "pci.allocateChannelHugepage", err)
	}
	phys, err := d.handle.PinPages(addrOf(data), size, kioctl.PinContiguous|kioctl.PinNOCVisible)
	if err != nil {
		unix.Munmap(data)
		return nil, 0, err
	}
	return data, phys, nil
}

func (d *Device) allocateChannelIOMMU(size uint64) ([]byte, uint64, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, 0, ttumderr.Wrap(ttumderr.KindResourceExhausted, "pci.allocateChannelIOMMU", err)
	}
	iova, err := d.handle.PinPages(addrOf(data), size, kioctl.PinNOCVisible)
	if err != nil {
		unix.Munmap(data)
		return nil, 0, err
	}
	return data, iova, nil
}

// MapForDMA pins an already-allocated host buffer for device DMA, returning
// its physical/IOVA address. buffer's address and length must both be
// multiples of the host page size, matching
// original_source/device/pcie/pci_device.cpp's map_for_dma.
func (d *Device) MapForDMA(buffer []byte) (uint64, error) {
	addr := addrOf(buffer)
	size := uint64(len(buffer))
	if err := checkPageAligned("pci.MapForDMA", addr, size); err != nil {
		return 0, err
	}
	flags := kioctl.PinFlags(0)
	if !d.IOMMUEnabled {
		flags = kioctl.PinContiguous
	}
	return d.handle.PinPages(addr, size, flags)
}

// UnmapForDMA releases a buffer pinned by MapForDMA. buffer's address and
// length must both be multiples of the host page size.
func (d *Device) UnmapForDMA(buffer []byte) error {
	addr := addrOf(buffer)
	size := uint64(len(buffer))
	if err := checkPageAligned("pci.UnmapForDMA", addr, size); err != nil {
		return err
	}
	return d.handle.UnpinPages(addr, size)
}

// checkPageAligned requires both vaddr and size to be multiples of the
// host page size, the alignment original_source's map_for_dma/unmap_for_dma
// enforce before calling PIN_PAGES/UNPIN_PAGES.
func checkPageAligned(op string, vaddr, size uint64) error {
	pageSize := uint64(os.Getpagesize())
	if vaddr%pageSize != 0 || size%pageSize != 0 {
		return ttumderr.New(ttumderr.KindInvalidArgument, op,
			fmt.Sprintf("buffer must be page-aligned with a size that is a multiple of the page size (vaddr=%#x size=%d pageSize=%d)", vaddr, size, pageSize))
	}
	return nil
}

// addrOf returns the virtual address of a slice's backing array, the one
// unsafe.Pointer conversion this package needs to hand a host buffer's
// address to the kernel driver's PIN_PAGES ioctl.
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
