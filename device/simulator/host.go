package simulator

// Host is the capability set common to both simulator incarnations:
// TTSim (an in-process shared library) and RTL (an out-of-process
// simulator reached over framed pipes). The device-I/O factory wires
// either one into a mmio.Backend so the rest of the driver never needs
// to know which.
type Host interface {
	StartDevice() error
	CloseDevice() error
	WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error
	ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error)
	SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error
	AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error
	DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error
}

// Library is the set of named entry points a loaded TTSim shared object
// exposes: load shared library, call named entry points directly. This
// package depends only on this narrow interface rather than on a
// concrete dynamic-loading mechanism, so a test can supply an in-memory
// fake without a real .so file.
type Library interface {
	StartDevice() error
	CloseDevice() error
	WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error
	ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error)
	SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error
	AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error
	DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error
}

// TTSimHost is the in-process simulator host flavor: every call forwards
// straight to the loaded simulator library's entry points, with no
// framing or IPC in between.
type TTSimHost struct {
	lib Library
}

// NewTTSimHost wraps an already-loaded simulator library. Loading the
// library itself (Go's plugin package, the standard-library mechanism
// for resolving named entry points out of a .so at runtime — no
// dynamic-loading library appears anywhere in the retrieved example
// repos to ground a third-party choice instead) is the caller's
// responsibility; this type only needs the resulting Library value.
func NewTTSimHost(lib Library) *TTSimHost {
	return &TTSimHost{lib: lib}
}

func (h *TTSimHost) StartDevice() error { return h.lib.StartDevice() }
func (h *TTSimHost) CloseDevice() error { return h.lib.CloseDevice() }

func (h *TTSimHost) WriteToDevice(coreX, coreY uint8, l1Dest uint64, data []byte) error {
	return h.lib.WriteToDevice(coreX, coreY, l1Dest, data)
}

func (h *TTSimHost) ReadFromDevice(coreX, coreY uint8, l1Src uint64, size uint32) ([]byte, error) {
	return h.lib.ReadFromDevice(coreX, coreY, l1Src, size)
}

func (h *TTSimHost) SendTensixRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	return h.lib.SendTensixRiscReset(coreX, coreY, selector)
}

func (h *TTSimHost) AssertRiscReset(coreX, coreY uint8, selector RiscSelector) error {
	return h.lib.AssertRiscReset(coreX, coreY, selector)
}

func (h *TTSimHost) DeassertRiscReset(coreX, coreY uint8, selector RiscSelector, staggeredStart bool) error {
	return h.lib.DeassertRiscReset(coreX, coreY, selector, staggeredStart)
}

// Backend adapts a Host to device/mmio's Backend seam (flat-address
// write/read), the capability mmio.New's TTSim/RTL variants need. The
// host is bound to one simulated core at construction — a Go simulator
// chip is one Host per tile's worth of traffic, matching how
// device/mmio's simBackend is one DeviceIO per window/base.
type Backend struct {
	host  Host
	coreX uint8
	coreY uint8
}

// NewBackend binds a Host to the (coreX, coreY) every WriteToDevice/
// ReadFromDevice call on it addresses.
func NewBackend(host Host, coreX, coreY uint8) *Backend {
	return &Backend{host: host, coreX: coreX, coreY: coreY}
}

func (b *Backend) WriteToDevice(addr uint64, data []byte) error {
	return b.host.WriteToDevice(b.coreX, b.coreY, addr, data)
}

func (b *Backend) ReadFromDevice(addr uint64, dst []byte) error {
	data, err := b.host.ReadFromDevice(b.coreX, b.coreY, addr, uint32(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}
