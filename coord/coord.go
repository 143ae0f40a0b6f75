// Package coord implements coordinate-system translation as an external
// collaborator ("pure math over tables", harvesting mask aware), with
// tests for round-trip symmetry. It knows nothing about
// PCIe, TLBs, or any device I/O — it is a value-type library over an
// arch.Table's grid dimensions and a chip's harvesting mask.
//
// Grounded on original_source/tests/api/test_core_coord_translation_wh.cpp,
// whose assertions this package's translation functions are built to
// satisfy exactly (grid 10x8, virtual = logical+(1,1) always, translated
// anchor constant per architecture, physical skips harvested rows).
package coord

import (
	"fmt"
	"math/bits"

	"github.com/tenstorrent/tt-umd-sub002/arch"
)

// CoreType distinguishes the kind of functional block a Coord names.
type CoreType int

const (
	CoreTensix CoreType = iota
	CoreDRAM
	CoreEthernet
	CoreARC
	CorePCIe
	CoreRouter
)

func (c CoreType) String() string {
	switch c {
	case CoreTensix:
		return "tensix"
	case CoreDRAM:
		return "dram"
	case CoreEthernet:
		return "eth"
	case CoreARC:
		return "arc"
	case CorePCIe:
		return "pcie"
	case CoreRouter:
		return "router"
	default:
		return "unknown"
	}
}

// System names a coordinate space a Coord's X/Y are expressed in.
type System int

const (
	Logical System = iota
	Virtual
	Physical
	Translated
	NOC0
	NOC1
)

func (s System) String() string {
	switch s {
	case Logical:
		return "logical"
	case Virtual:
		return "virtual"
	case Physical:
		return "physical"
	case Translated:
		return "translated"
	case NOC0:
		return "noc0"
	case NOC1:
		return "noc1"
	default:
		return "unknown"
	}
}

// Coord is a position in one coordinate system, for one core type.
type Coord struct {
	X, Y int
	Type CoreType
	Sys  System
}

func (c Coord) String() string {
	return fmt.Sprintf("%s(%d,%d)/%s", c.Type, c.X, c.Y, c.Sys)
}

// HarvestingMask records which physical tensix rows/columns a chip's
// harvesting fuses have disabled. Bit i set means physical row (or
// column) i is harvested and absent from Logical/Virtual numbering.
type HarvestingMask struct {
	Rows uint32
	Cols uint32
}

// NumHarvestedRows/Cols report the popcount of the respective mask.
func (h HarvestingMask) NumHarvestedRows() int { return bits.OnesCount32(h.Rows) }
func (h HarvestingMask) NumHarvestedCols() int { return bits.OnesCount32(h.Cols) }

// Manager translates Coords for one chip's tensix grid, given its
// architecture table and harvesting mask. It is the only place
// harvesting-aware arithmetic lives; every translation is a table lookup
// or an affine shift, so round trips are exact by construction.
type Manager struct {
	grid arch.TensixGrid
	anchor [2]int
	mask HarvestingMask

	// physicalRows[i]/physicalCols[i] give the physical index of the
	// i-th non-harvested row/column, in ascending order.
	physicalRows []int
	physicalCols []int
	// logicalRowOf/logicalColOf invert the above for harvested-aware
	// Physical -> Logical translation.
	logicalRowOf map[int]int
	logicalColOf map[int]int
}

// NewManager builds a Manager for the given architecture table and
// harvesting mask.
func NewManager(tbl arch.Table, mask HarvestingMask) (*Manager, error) {
	if mask.NumHarvestedRows() >= tbl.Tensix.Rows {
		return nil, fmt.Errorf("coord: harvesting mask disables all %d rows", tbl.Tensix.Rows)
	}
	if mask.NumHarvestedCols() >= tbl.Tensix.Cols {
		return nil, fmt.Errorf("coord: harvesting mask disables all %d columns", tbl.Tensix.Cols)
	}
	m := &Manager{
		grid:         tbl.Tensix,
		anchor:       tbl.TranslatedAnchor,
		mask:         mask,
		logicalRowOf: map[int]int{},
		logicalColOf: map[int]int{},
	}
	for row := 0; row < tbl.Tensix.Rows; row++ {
		if mask.Rows&(1<<uint(row)) != 0 {
			continue
		}
		m.logicalRowOf[row] = len(m.physicalRows)
		m.physicalRows = append(m.physicalRows, row)
	}
	for col := 0; col < tbl.Tensix.Cols; col++ {
		if mask.Cols&(1<<uint(col)) != 0 {
			continue
		}
		m.logicalColOf[col] = len(m.physicalCols)
		m.physicalCols = append(m.physicalCols, col)
	}
	return m, nil
}

// LogicalGrid reports the visible (post-harvesting) tensix grid size.
func (m *Manager) LogicalGrid() (cols, rows int) {
	return len(m.physicalCols), len(m.physicalRows)
}

// ToVirtual converts a Logical tensix Coord to Virtual. Virtual is
// harvesting-invariant: it is always Logical shifted by (1, 1), since the
// virtual grid reserves row/column 0 for the harvesting-independent NOC
// overlay regardless of which physical rows are actually present.
func (m *Manager) ToVirtual(l Coord) (Coord, error) {
	if err := m.checkLogical(l); err != nil {
		return Coord{}, err
	}
	return Coord{X: l.X + 1, Y: l.Y + 1, Type: l.Type, Sys: Virtual}, nil
}

// FromVirtual is ToVirtual's inverse.
func (m *Manager) FromVirtual(v Coord) (Coord, error) {
	if v.Sys != Virtual {
		return Coord{}, fmt.Errorf("coord: FromVirtual given %s coord", v.Sys)
	}
	l := Coord{X: v.X - 1, Y: v.Y - 1, Type: v.Type, Sys: Logical}
	if err := m.checkLogical(l); err != nil {
		return Coord{}, err
	}
	return l, nil
}

// ToPhysical converts a Logical tensix Coord to Physical: each logical
// row/column is looked up in the ordered list of non-harvested physical
// rows/columns, then shifted by (1, 1) for the same NOC-overlay reason as
// Virtual.
func (m *Manager) ToPhysical(l Coord) (Coord, error) {
	if err := m.checkLogical(l); err != nil {
		return Coord{}, err
	}
	return Coord{
		X:    m.physicalCols[l.X] + 1,
		Y:    m.physicalRows[l.Y] + 1,
		Type: l.Type,
		Sys:  Physical,
	}, nil
}

// FromPhysical is ToPhysical's inverse. It errors if the given physical
// position names a harvested row or column.
func (m *Manager) FromPhysical(p Coord) (Coord, error) {
	if p.Sys != Physical {
		return Coord{}, fmt.Errorf("coord: FromPhysical given %s coord", p.Sys)
	}
	row, ok := m.logicalRowOf[p.Y-1]
	if !ok {
		return Coord{}, fmt.Errorf("coord: physical row %d is harvested or out of range", p.Y-1)
	}
	col, ok := m.logicalColOf[p.X-1]
	if !ok {
		return Coord{}, fmt.Errorf("coord: physical column %d is harvested or out of range", p.X-1)
	}
	l := Coord{X: col, Y: row, Type: p.Type, Sys: Logical}
	return l, m.checkLogical(l)
}

// ToTranslated converts a Logical tensix Coord to Translated: Logical
// shifted by the architecture's constant anchor. Unlike Physical,
// Translated coordinates do not depend on the harvesting mask at all —
// that is the entire point of the translated address space, letting a
// fixed NOC route reach logical (0,0) whether or not rows are harvested.
func (m *Manager) ToTranslated(l Coord) (Coord, error) {
	if err := m.checkLogical(l); err != nil {
		return Coord{}, err
	}
	return Coord{X: l.X + m.anchor[0], Y: l.Y + m.anchor[1], Type: l.Type, Sys: Translated}, nil
}

// FromTranslated is ToTranslated's inverse.
func (m *Manager) FromTranslated(tr Coord) (Coord, error) {
	if tr.Sys != Translated {
		return Coord{}, fmt.Errorf("coord: FromTranslated given %s coord", tr.Sys)
	}
	l := Coord{X: tr.X - m.anchor[0], Y: tr.Y - m.anchor[1], Type: tr.Type, Sys: Logical}
	return l, m.checkLogical(l)
}

// Translate converts a Coord from its own Sys to the requested target
// system. Only Logical is accepted as a source for Virtual/Physical/
// Translated, matching the original implementation's "logical is the
// canonical index space" convention; translating between two non-Logical
// systems goes through Logical first.
func (m *Manager) Translate(c Coord, to System) (Coord, error) {
	if c.Sys == to {
		return c, nil
	}
	var l Coord
	var err error
	switch c.Sys {
	case Logical:
		l = c
	case Virtual:
		l, err = m.FromVirtual(c)
	case Physical:
		l, err = m.FromPhysical(c)
	case Translated:
		l, err = m.FromTranslated(c)
	default:
		return Coord{}, fmt.Errorf("coord: translation from %s unsupported", c.Sys)
	}
	if err != nil {
		return Coord{}, err
	}
	switch to {
	case Logical:
		return l, nil
	case Virtual:
		return m.ToVirtual(l)
	case Physical:
		return m.ToPhysical(l)
	case Translated:
		return m.ToTranslated(l)
	default:
		return Coord{}, fmt.Errorf("coord: translation to %s unsupported", to)
	}
}

func (m *Manager) checkLogical(l Coord) error {
	if l.Sys != Logical {
		return fmt.Errorf("coord: expected logical coord, got %s", l.Sys)
	}
	cols, rows := m.LogicalGrid()
	if l.X < 0 || l.X >= cols || l.Y < 0 || l.Y >= rows {
		return fmt.Errorf("coord: logical (%d,%d) out of range for %dx%d grid", l.X, l.Y, cols, rows)
	}
	return nil
}
