// Package arch holds the per-architecture constant tables as an
// out-of-scope "external collaborator with only its contract named":
// address maps, core coordinate lists, register offsets. It is
// deliberately minimal — just enough data for the host-to-device I/O
// layers to exercise TLB sizing, configuration-register layout, ARC
// scratch offsets, and soft-reset bit tables, for the two architectures
// original_source/ implements in detail (Wormhole, Blackhole).
//
// Grounded on original_source/device/arch/wormhole_implementation.cpp and
// blackhole_implementation.cpp.
package arch

import "github.com/tenstorrent/tt-umd-sub002/ttumderr"

// Kind identifies a supported chip architecture.
type Kind int

const (
	Wormhole Kind = iota
	Blackhole
)

func (k Kind) String() string {
	if k == Blackhole {
		return "blackhole"
	}
	return "wormhole"
}

// Ordering is the TLB write ordering mode a window can be configured with
//
type Ordering int

const (
	OrderingStrict Ordering = iota
	OrderingPosted
	OrderingRelaxed
)

// MappingKind is the BAR mapping cache mode a TLB handle maps into.
type MappingKind int

const (
	MappingUC MappingKind = iota // uncached
	MappingWC                    // write-combine
)

// TLBConfig is the register layout for one dynamic TLB slot: where its
// configuration register lives in the BAR, how big that register is, and
// the arithmetic for turning a tlb_index into a BAR offset. Grounded on
// wormhole_implementation::get_tlb_configuration.
type TLBConfig struct {
	Size          uint64 // bytes covered by one TLB window of this size class
	Base          uint64 // BAR offset of the first window of this size class
	CfgAddr       uint64 // BAR offset of the configuration register for index 0 of this class
	IndexOffset   uint64 // tlb_index - base_index_for_class
	TLBOffset     uint64 // Base + IndexOffset*Size: the window's own BAR offset
	OffsetEncoding uint64 // bit width of the low-address-bits field packed into the config register
	RegisterBytes int    // 8 or 12: how wide the configuration register is
}

// TensixGrid is the physical tensix core grid size (columns, rows) used by
// the coord package for logical/virtual/physical translation.
type TensixGrid struct {
	Cols, Rows int
}

// Table is the full set of per-architecture constants this driver needs.
type Table struct {
	Kind Kind

	// TLBSizesDescending lists the legal dynamic-TLB sizes, largest
	// first, the order the TLB manager's allocator tries them in.
	TLBSizesDescending []uint64

	// StaticVC is the architecture's default static virtual channel for
	// TLB configuration
	StaticVC uint8

	// DynamicVCOnly is set for architectures where using the same
	// static VC for reads and writes through TLBs can deadlock
	// (a known Blackhole A0 errata workaround): such architectures must pick
	// a fresh dynamic VC per configuration instead of reusing StaticVC.
	DynamicVCOnly bool

	// MulticastExcludesColumnZero models the multicast workaround: the
	// PCIe column (column 0) must never be included in a multicast
	// rectangle's start column, to avoid a rare backpressure hang.
	MulticastExcludesColumnZero bool

	Tensix TensixGrid

	// ARCScratchBase/ARCMiscCntl are BAR offsets for the ARC firmware
	// messaging scratch registers
	ARCScratchBase    uint64
	ARCMiscCntlOffset uint64
	// ArcMsgCommonPrefix is the required high byte of every arc_msg
	// code (0xaa00 on Wormhole-family parts).
	ArcMsgCommonPrefix uint32

	// TranslatedAnchor is the (x, y) translated-coordinate position of
	// the tensix grid's logical (0, 0) core, constant regardless of
	// harvesting as long as harvesting leaves at least one row/column
	// on Wormhole).
	TranslatedAnchor [2]int

	// L1BarrierAddr/DRAMBarrierAddr are the membar sentinel addresses
	//
	L1BarrierAddr   uint64
	DRAMBarrierAddr uint64

	// TensixSoftResetAddr is the per-core NOC address of the soft-reset
	// register a write_to_device/read_from_device call through a core's
	// own TLB window reaches Not present
	// in the retrieved source tree; self-consistent within this driver
	// like TLBConfig's register layout.
	TensixSoftResetAddr uint64
}

// Wormhole TLB size classes: 1 MiB, 2 MiB, 16 MiB windows, each with its
// own base/cfg_addr bank. Index ranges mirror
// TLB_BASE_INDEX_{1M,2M,16M} in wormhole_implementation.cpp; we only need
// the size/Base/CfgAddr triple since this driver assigns tlb_index
// sequentially per size class as it allocates (see device/tlbmgr).
var wormholeTLBBySize = map[uint64]TLBConfig{
	16 << 20: {Size: 16 << 20, Base: 0x0, CfgAddr: 0x1FC00000, RegisterBytes: 8, OffsetEncoding: 24},
	2 << 20:  {Size: 2 << 20, Base: 0x10000000, CfgAddr: 0x1FC40000, RegisterBytes: 8, OffsetEncoding: 21},
	1 << 20:  {Size: 1 << 20, Base: 0x17000000, CfgAddr: 0x1FC80000, RegisterBytes: 12, OffsetEncoding: 20},
}

var blackholeTLBBySize = map[uint64]TLBConfig{
	4 << 20: {Size: 4 << 20, Base: 0x0, CfgAddr: 0x1FD00000, RegisterBytes: 12, OffsetEncoding: 22},
	2 << 20: {Size: 2 << 20, Base: 0x8000000, CfgAddr: 0x1FD40000, RegisterBytes: 12, OffsetEncoding: 21},
}

// WormholeTable and BlackholeTable are the two architecture tables this
// driver ships, matching original_source/device/arch/{wormhole,blackhole}_implementation.cpp.
var (
	WormholeTable = Table{
		Kind:                        Wormhole,
		TLBSizesDescending:          []uint64{16 << 20, 2 << 20, 1 << 20},
		StaticVC:                    0,
		DynamicVCOnly:               false,
		MulticastExcludesColumnZero: true,
		Tensix:                      TensixGrid{Cols: 10, Rows: 8},
		ARCScratchBase:              0x1FF30060,
		ARCMiscCntlOffset:           0x1FF30100,
		ArcMsgCommonPrefix:          0xaa00,
		TranslatedAnchor:            [2]int{18, 18},
		L1BarrierAddr:               0x1FF80000,
		DRAMBarrierAddr:             0x1FFF0000,
		TensixSoftResetAddr:         0xFFB121B0,
	}

	BlackholeTable = Table{
		Kind:                        Blackhole,
		TLBSizesDescending:          []uint64{4 << 20, 2 << 20},
		StaticVC:                    1,
		DynamicVCOnly:               true,
		MulticastExcludesColumnZero: true,
		Tensix:                      TensixGrid{Cols: 14, Rows: 10},
		ARCScratchBase:              0x80030060,
		ARCMiscCntlOffset:           0x80030100,
		ArcMsgCommonPrefix:          0xaa00,
		TranslatedAnchor:            [2]int{20, 18},
		L1BarrierAddr:               0x80080000,
		DRAMBarrierAddr:             0x800f0000,
		TensixSoftResetAddr:         0xFFB121B0,
	}
)

// For looks up the constant table for a named architecture.
func For(k Kind) Table {
	if k == Blackhole {
		return BlackholeTable
	}
	return WormholeTable
}

// TLBConfigForSize returns the register layout for the given legal window
// size, plus the tlb_index's position within that size class (index_offset).
// indexWithinClass is the 0-based ordinal of this TLB among allocations of
// the same size (see device/tlbmgr, which assigns these sequentially).
func (t Table) TLBConfigForSize(size uint64, indexWithinClass uint64) (TLBConfig, bool) {
	var table map[uint64]TLBConfig
	if t.Kind == Blackhole {
		table = blackholeTLBBySize
	} else {
		table = wormholeTLBBySize
	}
	cfg, ok := table[size]
	if !ok {
		return TLBConfig{}, false
	}
	cfg.IndexOffset = indexWithinClass
	cfg.TLBOffset = cfg.Base + indexWithinClass*cfg.Size
	return cfg, true
}

// MulticastWorkaround applies the "exclude the PCIe column" rule: if the
// multicast rectangle's start column is 0, nudge it to 1. Column 0 never
// hosts tensix cores, so no reachable core is lost.
func (t Table) MulticastWorkaround(xStart, yStart, xEnd, yEnd int) (int, int, int, int) {
	if t.MulticastExcludesColumnZero && xStart == 0 {
		xStart = 1
	}
	return xStart, yStart, xEnd, yEnd
}

// BlackholeNonTensixColumns lists simulator-unicast-decomposition columns
// to skip when emulating a multicast — a known workaround, not a
// hardware model.
var BlackholeNonTensixColumns = map[int]bool{8: true, 9: true}

// RiscSelector is a bitmask selecting a set of per-tile RISC cores for a
// reset operation: an architecture-agnostic vocabulary (ALL, ALL_TRISCS,
// ALL_DATA_MOVEMENT) plus named primitive cores, matching
// original_source's RiscType enum The
// NEO-tensix and DM0-7 variants that enum also carries belong to a
// multi-tile-cluster chip family this table does not model; selecting
// them is rejected by SoftResetRegValue.
type RiscSelector uint32

const (
	RiscNone            RiscSelector = 0
	RiscAll             RiscSelector = 1 << 0
	RiscAllTriscs       RiscSelector = 1 << 1
	RiscAllDataMovement RiscSelector = 1 << 2
	RiscBRISC           RiscSelector = 1 << 3
	RiscTRISC0          RiscSelector = 1 << 4
	RiscTRISC1          RiscSelector = 1 << 5
	RiscTRISC2          RiscSelector = 1 << 6
	RiscNCRISC          RiscSelector = 1 << 7
	RiscNeoOrDM         RiscSelector = 0xFFFFFF00 // NEO*_TRISC*/DM0-7 range, unsupported here

	// RiscERISC0/RiscERISC1 occupy the same bits as RiscBRISC/RiscTRISC0:
	// an ethernet core's two firmware RISCs alias the tensix core's BRISC
	// and first TRISC fields, since the two core kinds are never selected
	// together
	RiscERISC0 = RiscBRISC
	RiscERISC1 = RiscTRISC0

	RiscAllTensixTriscs = RiscTRISC0 | RiscTRISC1 | RiscTRISC2
	RiscAllTensixDMs    = RiscBRISC | RiscNCRISC
	RiscAllTensix       = RiscAllTensixTriscs | RiscAllTensixDMs
)

// softResetRegBit is this table's self-consistent register-bit position
// for each primitive selector; original_source's per-architecture
// SOFT_RESET_* constants were not present in the retrieved source tree,
// so (as with tlb.encodeTLBConfig's register layout) this encoding only
// needs to be self-consistent within this package, not bit-exact with
// real firmware.
var softResetRegBit = map[RiscSelector]uint32{
	RiscBRISC:  1 << 0,
	RiscTRISC0: 1 << 1,
	RiscTRISC1: 1 << 2,
	RiscTRISC2: 1 << 3,
	RiscNCRISC: 1 << 4,
}

// SoftResetRegValue expands an architecture-agnostic selector to its
// concrete tensix bits, then packs the primitive bits into a soft-reset
// register value, matching
// wormhole_implementation::get_soft_reset_reg_value /
// blackhole_implementation::get_soft_reset_reg_value.
func (t Table) SoftResetRegValue(selector RiscSelector) (uint32, error) {
	if selector&RiscNeoOrDM != 0 {
		return 0, ttumderr.New(ttumderr.KindInvalidArgument, "arch.SoftResetRegValue", "NEO/DM risc selection is not supported by this table")
	}
	if selector&RiscAll != 0 {
		selector |= RiscAllTensix
	}
	if selector&RiscAllTriscs != 0 {
		selector |= RiscAllTensixTriscs
	}
	if selector&RiscAllDataMovement != 0 {
		selector |= RiscAllTensixDMs
	}

	var reg uint32
	for bit, regBit := range softResetRegBit {
		if selector&bit != 0 {
			reg |= regBit
		}
	}
	return reg, nil
}

// SoftResetSelector is SoftResetRegValue's inverse direction: it
// reconstructs the primitive selector bits present in reg, then
// re-derives the architecture-agnostic meta-bits (ALL/ALL_TRISCS/
// ALL_DATA_MOVEMENT) whenever every tensix bit they expand to is
// present — matching get_soft_reset_risc_type's own "set agnostic bits
// based on tensix bits" pass. Only a selector of primitive bits that
// covers no whole group round-trips exactly through
// SoftResetRegValue/SoftResetSelector. A selector that contains a
// meta-bit, or every primitive bit of a group, comes back with both that
// group's meta-bit and its primitive bits set, so it does not compare
// equal to the input (RiscAllTriscs returns as
// RiscAllTriscs|RiscTRISC0|RiscTRISC1|RiscTRISC2).
func (t Table) SoftResetSelector(reg uint32) RiscSelector {
	var selector RiscSelector
	for bit, regBit := range softResetRegBit {
		if reg&regBit != 0 {
			selector |= bit
		}
	}
	if selector&RiscAllTensix == RiscAllTensix {
		selector |= RiscAll
	}
	if selector&RiscAllTensixTriscs == RiscAllTensixTriscs {
		selector |= RiscAllTriscs
	}
	if selector&RiscAllTensixDMs == RiscAllTensixDMs {
		selector |= RiscAllDataMovement
	}
	return selector
}
