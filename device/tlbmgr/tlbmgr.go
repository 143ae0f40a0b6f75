// Package tlbmgr implements the per-chip TLB manager. It holds the
// {core -> tlb_id}, {tlb_id -> window}, and {tlb_id -> configured_base}
// maps, enforces the "at most one window per core" invariant, and
// allocates windows by trying the architecture's legal TLB sizes
// largest to smallest.
//
// Grounded on original_source/device/chip_helpers/tlb_manager.cpp's
// configure_tlb/allocate_tlb_window/get_tlb_arch_sizes.
package tlbmgr

import (
	"fmt"
	"sync"

	"github.com/tenstorrent/tt-umd-sub002/arch"
	"github.com/tenstorrent/tt-umd-sub002/coord"
	"github.com/tenstorrent/tt-umd-sub002/device/tlb"
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
	"github.com/tenstorrent/tt-umd-sub002/ttumdlog"
	"github.com/tenstorrent/tt-umd-sub002/ttumdmetrics"
)

// Core is a unicast routing target: an (x, y) tensix core position. The
// manager is coordinate-system-agnostic — callers are expected to have
// already translated to whatever system (Physical/Virtual/Translated/
// NOC0/NOC1) the hardware actually routes on.
type Core struct {
	X, Y int
}

// Allocator allocates and maps a kernel TLB, the seam device/pci.Device
// satisfies. Abstracting it lets tlbmgr be tested without a real PCI
// device. The allocator owns the register-layout lookup (it is the only
// party that knows both the real architecture table and the sequential
// per-size index tied to the kernel-assigned TLB id), so it returns the
// arch.TLBConfig for the allocation alongside the handle.
type Allocator interface {
	AllocateTLB(size uint64, mapping arch.MappingKind) (handle *tlb.Handle, tlbCfg arch.TLBConfig, cfgRegion []byte, err error)
}

// Manager is the per-chip TLB manager.
type Manager struct {
	mu sync.Mutex

	tbl       arch.Table
	allocator Allocator
	useNOC1   bool

	coreToID   map[Core]uint32
	idToWindow map[uint32]*tlb.Window
	idToBase   map[uint32]uint64
}

// New builds a TLB manager for one chip. useNOC1 selects the process-wide
// NOC selector
func New(tbl arch.Table, allocator Allocator, useNOC1 bool) *Manager {
	return &Manager{
		tbl:        tbl,
		allocator:  allocator,
		useNOC1:    useNOC1,
		coreToID:   map[Core]uint32{},
		idToWindow: map[uint32]*tlb.Window{},
		idToBase:   map[uint32]uint64{},
	}
}

// ConfigureTLB allocates (if necessary) and configures a TLB window
// routing core to address, with the given ordering, using the largest
// legal size that fits unless size is given explicitly. Re-configuring a
// core that already has a window reuses it, matching the "at most one
// window per core" invariant.
func (m *Manager) ConfigureTLB(core Core, size uint64, address uint64, ordering tlb.Ordering) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := tlb.Config{
		LocalOffset: address,
		XEnd:        core.X,
		YEnd:        core.Y,
		NOCSelect:   nocSelector(m.useNOC1),
		Ordering:    ordering,
		StaticVC:    m.tbl.StaticVC,
	}

	if id, ok := m.coreToID[core]; ok {
		window := m.idToWindow[id]
		if err := window.Configure(cfg); err != nil {
			return err
		}
		m.idToBase[id] = (address / window.Size()) * window.Size()
		return nil
	}

	window, err := m.allocateWindow(cfg, size)
	if err != nil {
		return err
	}
	id := window.Handle().ID
	m.coreToID[core] = id
	m.idToWindow[id] = window
	m.idToBase[id] = (address / window.Size()) * window.Size()
	return nil
}

// ConfigureTLBForAddr reconfigures (or allocates, if core has no window
// yet) core's window to route addr with the given ordering, and returns
// the window plus the number of bytes remaining in it from addr onward —
// the shape the PCIe protocol needs to compute one transfer's size and
// loop over however many windows a large transfer spans.
func (m *Manager) ConfigureTLBForAddr(core Core, addr uint64, ordering tlb.Ordering) (*tlb.Window, uint64, error) {
	if err := m.ConfigureTLB(core, 0, addr, ordering); err != nil {
		return nil, 0, err
	}
	w, _ := m.GetWindow(core)
	remaining := w.Size() - (addr % w.Size())
	return w, remaining, nil
}

// allocateWindow tries the requested size, or every legal architecture
// size largest to smallest if size is zero.
func (m *Manager) allocateWindow(cfg tlb.Config, size uint64) (*tlb.Window, error) {
	sizes := m.tbl.TLBSizesDescending
	if size != 0 {
		sizes = []uint64{size}
	}

	var lastErr error
	for i, s := range sizes {
		if i > 0 {
			ttumdmetrics.TLBAllocRetries.Inc()
		}
		handle, tlbCfg, cfgRegion, err := m.allocator.AllocateTLB(s, arch.MappingWC)
		if err != nil {
			lastErr = err
			ttumdlog.Default().Debugf("tlbmgr: allocation of size %d failed, trying smaller: %v", s, err)
			continue
		}
		return tlb.NewWindow(handle, m.tbl, tlbCfg, cfgRegion, cfg), nil
	}
	return nil, ttumderr.Wrap(ttumderr.KindResourceExhausted, "tlbmgr.allocateWindow", lastErr)
}

func nocSelector(useNOC1 bool) uint8 {
	if useNOC1 {
		return 1
	}
	return 0
}

// GetWindow returns the window currently mapping core, if any.
func (m *Manager) GetWindow(core Core) (*tlb.Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.coreToID[core]
	if !ok {
		return nil, false
	}
	return m.idToWindow[id], true
}

// IsMapped reports whether core has a window, and whether that window
// currently covers [address, address+sizeInBytes). The comparison uses the
// manager's tracked idToBase, the TLB-size-aligned base ConfigureTLB last
// programmed, not window.BaseAddress (the unaligned offset the caller last
// requested), since a window covers its whole aligned size, not just the
// exact address it was configured with.
func (m *Manager) IsMapped(core Core, address uint64, sizeInBytes uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.coreToID[core]
	if !ok {
		return false
	}
	w := m.idToWindow[id]
	base := m.idToBase[id]
	return base <= address && address+sizeInBytes <= base+w.Size()
}

// StaticWriter returns a bound Read32/Write32 pair over the window
// pre-configured for core, for hot-path sequential access without paying
// for a reconfiguration on every call.
type StaticWriter struct {
	window *tlb.Window
}

func (s StaticWriter) Write32(offset uint64, v uint32) error { return s.window.Write32(offset, v) }
func (s StaticWriter) Read32(offset uint64) (uint32, error)  { return s.window.Read32(offset) }
func (s StaticWriter) WriteBlock(offset uint64, b []byte) error { return s.window.WriteBlock(offset, b) }
func (s StaticWriter) ReadBlock(offset uint64, b []byte) error  { return s.window.ReadBlock(offset, b) }

// GetStaticWriter returns a StaticWriter for core, which must already be
// TLB-mapped via ConfigureTLB.
func (m *Manager) GetStaticWriter(core Core) (StaticWriter, error) {
	w, ok := m.GetWindow(core)
	if !ok {
		return StaticWriter{}, ttumderr.New(ttumderr.KindInvalidArgument, "tlbmgr.GetStaticWriter",
			fmt.Sprintf("no TLB mapped for core (%d,%d)", core.X, core.Y))
	}
	return StaticWriter{window: w}, nil
}

// CoreFromLogical is a convenience conversion for callers that think in
// coord.Coord rather than the manager's plain Core type.
func CoreFromLogical(c coord.Coord) Core {
	return Core{X: c.X, Y: c.Y}
}

// Release frees every TLB this manager currently owns and clears its
// maps.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lastErr error
	for _, w := range m.idToWindow {
		if err := w.Handle().Release(); err != nil {
			lastErr = err
		}
	}
	m.coreToID = map[Core]uint32{}
	m.idToWindow = map[uint32]*tlb.Window{}
	m.idToBase = map[uint32]uint64{}
	return lastErr
}
