// Package sysmem implements the per-chip sysmem manager. It
// owns up to four channels of host-visible memory, each pinned for
// device DMA either as a contiguous NOC-visible huge page (IOMMU
// disabled) or as an IOVA-mapped run of ordinary pages (IOMMU enabled),
// and exposes bounds-checked byte copies into and out of each channel.
//
// Grounded on original_source/device/api/umd/device/chip_helpers/sysmem_manager.h
// (write_to_sysmem/read_from_sysmem, init_hugepage, get_hugepage_mapping)
// and device/pci's own descending-size DMA buffer allocator for the
// "log and continue with a reduced channel count" retry discipline that
// applies to hugepage failures specifically (unlike TLB/DMA-buffer
// allocation, a failed channel is skipped rather than retried smaller).
package sysmem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

// MaxChannels is the largest number of host-memory channels a chip may
// request
const MaxChannels = 4

// defaultChannelSize is the huge page size requested per channel when
// the caller does not specify one; the allocator (device/pci.Device)
// substitutes its own IOMMU-appropriate size when given zero.
const defaultChannelSize = 0

// Channel is one allocated and pinned host-memory channel.
type Channel struct {
	Index          int
	Virtual        []byte
	PhysicalOrIOVA uint64
	Size           uint64
}

// Allocator reserves and pins one sysmem channel, the seam
// device/pci.Device satisfies. Passing size 0 lets the allocator choose
// its own default (a full huge page when the IOMMU is disabled).
type Allocator interface {
	AllocateChannel(index int, size uint64) (virt []byte, physOrIOVA uint64, err error)
}

// Manager is the per-chip sysmem manager.
type Manager struct {
	mu        sync.Mutex
	allocator Allocator
	channels  []Channel
}

// New builds a sysmem manager bound to allocator. Channels are not
// reserved until InitHugepages is called.
func New(allocator Allocator) *Manager {
	return &Manager{allocator: allocator}
}

// InitHugepages reserves up to numChannels host-memory channels,
// insertion-indexed in allocation order. A channel that fails to
// allocate is logged and skipped rather than retried, following a
// "log and continue with reduced channels" discipline — unlike
// TLB/DMA-buffer allocation, there is no smaller fallback size to step
// down to here.
// InitHugepages fails only if every requested channel failed.
func (m *Manager) InitHugepages(numChannels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if numChannels > MaxChannels {
		numChannels = MaxChannels
	}
	m.channels = m.channels[:0]
	for i := 0; i < numChannels; i++ {
		virt, physOrIOVA, err := m.allocator.AllocateChannel(i, defaultChannelSize)
		if err != nil {
			ttumdmetrics.HugepageChannelFailures.Inc()
			ttumdlog.Default().Warnf("sysmem: channel %d allocation failed, continuing with reduced channel count: %v", i, err)
			continue
		}
		m.channels = append(m.channels, Channel{
			Index:          i,
			Virtual:        virt,
			PhysicalOrIOVA: physOrIOVA,
			Size:           uint64(len(virt)),
		})
	}
	if len(m.channels) == 0 && numChannels > 0 {
		return ttumderr.New(ttumderr.KindResourceExhausted, "sysmem.InitHugepages", "every requested channel failed to allocate")
	}
	return nil
}

// NumHostMemChannels reports how many channels were successfully
// reserved.
func (m *Manager) NumHostMemChannels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// HugepageMapping returns the mapping for the given channel.
func (m *Manager) HugepageMapping(channel int) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel < 0 || channel >= len(m.channels) {
		return Channel{}, ttumderr.New(ttumderr.KindInvalidArgument, "sysmem.HugepageMapping",
			fmt.Sprintf("channel %d out of range (have %d)", channel, len(m.channels)))
	}
	return m.channels[channel], nil
}

// WriteToSysmem copies src into channel's host buffer at destOffset.
func (m *Manager) WriteToSysmem(channel int, src []byte, destOffset uint64) error {
	ch, err := m.HugepageMapping(channel)
	if err != nil {
		return err
	}
	if destOffset+uint64(len(src)) > ch.Size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "sysmem.WriteToSysmem",
			fmt.Sprintf("offset %d length %d exceeds channel %d size %d", destOffset, len(src), channel, ch.Size))
	}
	copy(ch.Virtual[destOffset:], src)
	return nil
}

// ReadFromSysmem copies len(dst) bytes from channel's host buffer at
// srcOffset into dst.
func (m *Manager) ReadFromSysmem(channel int, dst []byte, srcOffset uint64) error {
	ch, err := m.HugepageMapping(channel)
	if err != nil {
		return err
	}
	if srcOffset+uint64(len(dst)) > ch.Size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "sysmem.ReadFromSysmem",
			fmt.Sprintf("offset %d length %d exceeds channel %d size %d", srcOffset, len(dst), channel, ch.Size))
	}
	copy(dst, ch.Virtual[srcOffset:srcOffset+uint64(len(dst))])
	return nil
}

// Close unmaps every channel's host buffer. Channel lifetime matches
// chip lifetime; the kernel driver's own pin bookkeeping is
// released when the owning device file closes, not here.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lastErr error
	for _, ch := range m.channels {
		if ch.Virtual == nil {
			continue
		}
		if err := unix.Munmap(ch.Virtual); err != nil {
			lastErr = err
		}
	}
	m.channels = nil
	return lastErr
}
