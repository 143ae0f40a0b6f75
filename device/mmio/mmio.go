// Package mmio implements the uniform device-I/O contract and the
// factory that selects a backend for it. Every chip in a process talks
// to its hardware (or its stand-in) through one DeviceIO value,
// regardless of whether that hardware is real silicon behind a TLB
// window, an in-process TTSim shared library, or an RTL simulator
// subprocess.
//
// Grounded on original_source/device/mmio/* (the device-I/O capability
// set and Silicon/TTSim/RTL split); factory selection logic follows
// original_source's `None → Silicon` default with explicit simulator
// overrides.
package mmio

import (
	"github.com/tenstorrent/tt-umd-sub002/device/tlb"
	"github.com/tenstorrent/tt-umd-sub002/ttumderr"
)

// DeviceIO is the capability set every backend implements: word and
// block access at a flat device offset, plus the window-shaped
// accessors (Size/BaseAddress/Configure) a caller needs to reconfigure
// routing before a block transfer. Register access is not modeled as a
// distinct address space at this layer — the same offset addresses both
// data and control registers, and a caller wanting a control register
// simply passes its BAR-relative offset, matching how tlb.Window already
// exposes its configuration register through the same data window.
type DeviceIO interface {
	Write32(offset uint64, v uint32) error
	Read32(offset uint64) (uint32, error)
	WriteBlock(offset uint64, data []byte) error
	ReadBlock(offset uint64, dst []byte) error
	Size() uint64
	BaseAddress() uint64
	Configure(cfg tlb.Config) error
}

// Silicon wraps a live TLB window: the real-hardware backend.
type Silicon struct {
	window *tlb.Window
}

// NewSilicon builds the silicon backend over an already-allocated window.
func NewSilicon(w *tlb.Window) *Silicon {
	return &Silicon{window: w}
}

func (s *Silicon) Write32(offset uint64, v uint32) error       { return s.window.Write32(offset, v) }
func (s *Silicon) Read32(offset uint64) (uint32, error)        { return s.window.Read32(offset) }
func (s *Silicon) WriteBlock(offset uint64, data []byte) error { return s.window.WriteBlock(offset, data) }
func (s *Silicon) ReadBlock(offset uint64, dst []byte) error   { return s.window.ReadBlock(offset, dst) }
func (s *Silicon) Size() uint64                                { return s.window.Size() }
func (s *Silicon) BaseAddress() uint64                         { return s.window.BaseAddress() }
func (s *Silicon) Configure(cfg tlb.Config) error              { return s.window.Configure(cfg) }

// Backend is the flat-address read/write capability a simulator chip
// host (device/simulator's TTSim or RTL host) exposes to this package.
// It deliberately omits everything process/IPC-specific (library
// loading, subprocess framing) — that machinery belongs to
// device/simulator, which this package only depends on through this
// narrow seam, keeping this package free of a dependency on
// device/simulator's own internals.
type Backend interface {
	WriteToDevice(addr uint64, data []byte) error
	ReadFromDevice(addr uint64, dst []byte) error
}

// simBackend adapts a Backend to DeviceIO: Write32/Read32 are 4-byte
// WriteBlock/ReadBlock calls, Configure is a no-op (a simulator backend
// has no TLB configuration register to reprogram — its flat address
// space already names tiles directly), and Size/BaseAddress report the
// fixed window this process was told to present.
type simBackend struct {
	backend Backend
	size    uint64
	base    uint64
}

func (b *simBackend) Write32(offset uint64, v uint32) error {
	var buf [4]byte
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
	return b.backend.WriteToDevice(b.base+offset, buf[:])
}

func (b *simBackend) Read32(offset uint64) (uint32, error) {
	var buf [4]byte
	if err := b.backend.ReadFromDevice(b.base+offset, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (b *simBackend) WriteBlock(offset uint64, data []byte) error {
	return b.backend.WriteToDevice(b.base+offset, data)
}

func (b *simBackend) ReadBlock(offset uint64, dst []byte) error {
	return b.backend.ReadFromDevice(b.base+offset, dst)
}

func (b *simBackend) Size() uint64        { return b.size }
func (b *simBackend) BaseAddress() uint64 { return b.base }
func (b *simBackend) Configure(tlb.Config) error { return nil }

// TTSim wraps an in-process simulator backend: a shared library
// forwarding block operations to tile read/write calls.
type TTSim struct {
	*simBackend
}

// NewTTSim builds the TTSim backend over a loaded simulator library.
func NewTTSim(backend Backend, size, base uint64) *TTSim {
	return &TTSim{simBackend: &simBackend{backend: backend, size: size, base: base}}
}

// RTL wraps a subprocess simulator backend reached over framed IPC
//
type RTL struct {
	*simBackend
}

// NewRTL builds the RTL backend over a connected simulator subprocess.
func NewRTL(backend Backend, size, base uint64) *RTL {
	return &RTL{simBackend: &simBackend{backend: backend, size: size, base: base}}
}

// Mockup is a no-op, in-memory backend with no subprocess or shared
// library behind it at all — the Go equivalent of
// original_source/device/mockup/tt_mockup_device.hpp, used to exercise
// the TLB, window, manager, and device-I/O layers' own tests without a
// TTSim/RTL binary present.
type Mockup struct {
	mem  []byte
	size uint64
	base uint64
	cfg  tlb.Config
}

// NewMockup builds a Mockup backend backed by an in-process byte slice
// of the given size.
func NewMockup(size, base uint64) *Mockup {
	return &Mockup{mem: make([]byte, size), size: size, base: base}
}

func (m *Mockup) Write32(offset uint64, v uint32) error {
	if offset+4 > m.size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "mmio.Mockup.Write32", "offset out of range")
	}
	m.mem[offset] = byte(v)
	m.mem[offset+1] = byte(v >> 8)
	m.mem[offset+2] = byte(v >> 16)
	m.mem[offset+3] = byte(v >> 24)
	return nil
}

func (m *Mockup) Read32(offset uint64) (uint32, error) {
	if offset+4 > m.size {
		return 0, ttumderr.New(ttumderr.KindInvalidArgument, "mmio.Mockup.Read32", "offset out of range")
	}
	b := m.mem[offset : offset+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *Mockup) WriteBlock(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > m.size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "mmio.Mockup.WriteBlock", "write out of range")
	}
	copy(m.mem[offset:], data)
	return nil
}

func (m *Mockup) ReadBlock(offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > m.size {
		return ttumderr.New(ttumderr.KindInvalidArgument, "mmio.Mockup.ReadBlock", "read out of range")
	}
	copy(dst, m.mem[offset:offset+uint64(len(dst))])
	return nil
}

func (m *Mockup) Size() uint64        { return m.size }
func (m *Mockup) BaseAddress() uint64 { return m.base }
func (m *Mockup) Configure(cfg tlb.Config) error {
	m.cfg = cfg
	return nil
}

// Variant names a device-I/O backend kind.
type Variant int

const (
	VariantSilicon Variant = iota
	VariantTTSim
	VariantRTL
	VariantMockup
)

func (v Variant) String() string {
	switch v {
	case VariantSilicon:
		return "silicon"
	case VariantTTSim:
		return "ttsim"
	case VariantRTL:
		return "rtl"
	case VariantMockup:
		return "mockup"
	default:
		return "unknown"
	}
}

// New builds the DeviceIO backend selected by variant. window is used
// only for VariantSilicon; backend/size/base are used only for
// VariantTTSim and VariantRTL; size/base alone are used for
// VariantMockup. The factory's default (no explicit variant requested)
// is VariantSilicon, matching the `{None → Silicon, TTSim, RTL}`
// selection original_source uses.
func New(variant Variant, window *tlb.Window, backend Backend, size, base uint64) (DeviceIO, error) {
	switch variant {
	case VariantSilicon:
		if window == nil {
			return nil, ttumderr.New(ttumderr.KindConfiguration, "mmio.New", "silicon backend requires a TLB window")
		}
		return NewSilicon(window), nil
	case VariantTTSim:
		if backend == nil {
			return nil, ttumderr.New(ttumderr.KindConfiguration, "mmio.New", "ttsim backend requires a simulator backend")
		}
		return NewTTSim(backend, size, base), nil
	case VariantRTL:
		if backend == nil {
			return nil, ttumderr.New(ttumderr.KindConfiguration, "mmio.New", "rtl backend requires a simulator backend")
		}
		return NewRTL(backend, size, base), nil
	case VariantMockup:
		return NewMockup(size, base), nil
	default:
		return nil, ttumderr.New(ttumderr.KindConfiguration, "mmio.New", "unknown device-I/O variant")
	}
}
