// Package place maintains the discrete placement state: the block→site
// assignment, its inverse, and the rigid-group (macro) registry.
//
// The two assignment maps are kept mutually consistent at all times; Verify
// re-checks that plus site exclusivity and macro offsets from scratch and is
// the backstop against bugs in incremental maintenance. Cost models and the
// annealer live in subpackages and mutate the state only through Apply.
package place

import (
	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
)

// MacroID is a stable handle to a macro in the state's registry.
type MacroID int

// NoMacro marks blocks that do not belong to any rigid group.
const NoMacro MacroID = -1

// MacroMember is one block of a macro together with its fixed offset from
// the macro head (the first member).
type MacroMember struct {
	Block  netlist.BlockID
	Offset Offset
}

// Macro is an ordered list of blocks whose relative offsets never change.
// Moving any member moves all members by the same offset.
type Macro struct {
	Members []MacroMember
}

// Offset is a relative displacement between grid locations.
type Offset struct {
	X, Y, Layer, Sub int
}

// Sub returns b - a as an offset.
func Sub(b, a device.Loc) Offset {
	return Offset{X: b.X - a.X, Y: b.Y - a.Y, Layer: b.Layer - a.Layer, Sub: b.Sub - a.Sub}
}

// Add returns loc displaced by o.
func Add(loc device.Loc, o Offset) device.Loc {
	return device.Loc{X: loc.X + o.X, Y: loc.Y + o.Y, Layer: loc.Layer + o.Layer, Sub: loc.Sub + o.Sub}
}

// Target pairs a block with the site it is being moved to. A committed move
// is a set of targets applied atomically.
type Target struct {
	Block netlist.BlockID
	Site  device.SiteID
}

// State is the mutable placement: block→site, site→block, and macros.
//
// Not safe for concurrent mutation. At most one move proposal is in flight
// at a time; Apply is atomic with respect to both maps.
type State struct {
	nl   *netlist.Netlist
	grid *device.Grid

	blockSite  []device.SiteID
	siteBlock  []netlist.BlockID
	macros     []Macro
	blockMacro []MacroID
}

// New creates an empty (unplaced) state over a netlist and grid.
func New(nl *netlist.Netlist, grid *device.Grid) *State {
	s := &State{
		nl:         nl,
		grid:       grid,
		blockSite:  make([]device.SiteID, nl.NumBlocks()),
		siteBlock:  make([]netlist.BlockID, grid.NumSites()),
		blockMacro: make([]MacroID, nl.NumBlocks()),
	}
	for i := range s.blockSite {
		s.blockSite[i] = device.NoSite
		s.blockMacro[i] = NoMacro
	}
	for i := range s.siteBlock {
		s.siteBlock[i] = netlist.NoBlock
	}
	return s
}

// Netlist returns the netlist this state places.
func (s *State) Netlist() *netlist.Netlist { return s.nl }

// Grid returns the device grid this state places onto.
func (s *State) Grid() *device.Grid { return s.grid }

// AddMacro registers a rigid group. Offsets are recorded relative to the
// first member. Blocks may belong to at most one macro.
func (s *State) AddMacro(blocks []netlist.BlockID, offsets []Offset) (MacroID, error) {
	if len(blocks) == 0 || len(blocks) != len(offsets) {
		return NoMacro, errors.New(errors.ErrCodeInvalidInput, "macro needs matching block and offset lists")
	}
	m := Macro{Members: make([]MacroMember, len(blocks))}
	for i, b := range blocks {
		if s.blockMacro[b] != NoMacro {
			return NoMacro, errors.New(errors.ErrCodeInvalidInput, "block %d already in macro %d", b, s.blockMacro[b])
		}
		m.Members[i] = MacroMember{Block: b, Offset: offsets[i]}
	}
	id := MacroID(len(s.macros))
	s.macros = append(s.macros, m)
	for _, b := range blocks {
		s.blockMacro[b] = id
	}
	return id, nil
}

// MacroOf returns the macro handle for a block, or NoMacro.
func (s *State) MacroOf(b netlist.BlockID) MacroID { return s.blockMacro[b] }

// Macro returns the macro record for a handle.
func (s *State) Macro(id MacroID) Macro { return s.macros[id] }

// NumMacros returns the number of registered macros.
func (s *State) NumMacros() int { return len(s.macros) }

// Place assigns a block to a free, type-compatible site. Used to load the
// initial legal placement; the annealer mutates via Apply instead.
func (s *State) Place(b netlist.BlockID, site device.SiteID) error {
	if s.siteBlock[site] != netlist.NoBlock {
		return errors.New(errors.ErrCodeOccupancyViolation,
			"site %d already hosts block %d", site, s.siteBlock[site])
	}
	if !s.grid.Site(site).Accepts(s.nl.Block(b).Type) {
		return errors.New(errors.ErrCodeInvalidPlacement,
			"site %d does not accept type %q", site, s.nl.Block(b).Type)
	}
	if s.blockSite[b] != device.NoSite {
		return errors.New(errors.ErrCodeInvalidPlacement, "block %d already placed", b)
	}
	s.blockSite[b] = site
	s.siteBlock[site] = b
	return nil
}

// SiteOf returns the site currently hosting a block.
func (s *State) SiteOf(b netlist.BlockID) device.SiteID { return s.blockSite[b] }

// BlockAt returns the block currently on a site, or netlist.NoBlock.
func (s *State) BlockAt(site device.SiteID) netlist.BlockID { return s.siteBlock[site] }

// LocOf returns the grid location of a block's current site.
func (s *State) LocOf(b netlist.BlockID) device.Loc {
	return s.grid.Site(s.blockSite[b]).Loc
}

// Apply commits a set of targets atomically: all involved source sites are
// vacated first, then every block is written to its target. This ordering
// makes swaps and macro shifts (where one member vacates a site another
// member takes) leave no stale inverse entries.
//
// Legality (type compatibility, destination free or vacated by this move)
// must have been established by the move generator; Apply trusts it.
func (s *State) Apply(targets []Target) {
	for _, t := range targets {
		if old := s.blockSite[t.Block]; old != device.NoSite {
			s.siteBlock[old] = netlist.NoBlock
		}
	}
	for _, t := range targets {
		s.blockSite[t.Block] = t.Site
		s.siteBlock[t.Site] = t.Block
	}
}

// Clone returns a deep copy of the assignment maps. Macro registry is shared
// (it is immutable after setup).
func (s *State) Clone() *State {
	c := &State{
		nl:         s.nl,
		grid:       s.grid,
		blockSite:  append([]device.SiteID(nil), s.blockSite...),
		siteBlock:  append([]netlist.BlockID(nil), s.siteBlock...),
		macros:     s.macros,
		blockMacro: s.blockMacro,
	}
	return c
}

// CopyFrom restores the assignment maps from a clone taken with Clone.
func (s *State) CopyFrom(o *State) {
	copy(s.blockSite, o.blockSite)
	copy(s.siteBlock, o.siteBlock)
}

// Verify re-checks the placement invariants from scratch:
//
//   - every block sits on exactly one type-compatible site (I1)
//   - macro member offsets match their registered values (I2)
//   - the block→site and site→block maps agree with no stale or duplicate
//     entries (I3)
//
// Any violation is a fatal consistency error, never a retryable one.
func (s *State) Verify() error {
	seen := make(map[device.SiteID]netlist.BlockID)
	for b := range s.blockSite {
		site := s.blockSite[b]
		if site == device.NoSite {
			return errors.New(errors.ErrCodeInvalidPlacement, "block %d is unplaced", b)
		}
		if prev, dup := seen[site]; dup {
			return errors.New(errors.ErrCodeOccupancyViolation,
				"site %d hosts blocks %d and %d", site, prev, b)
		}
		seen[site] = netlist.BlockID(b)
		if !s.grid.Site(site).Accepts(s.nl.Block(netlist.BlockID(b)).Type) {
			return errors.New(errors.ErrCodeInvalidPlacement,
				"block %d of type %q on incompatible site %d", b, s.nl.Block(netlist.BlockID(b)).Type, site)
		}
		if s.siteBlock[site] != netlist.BlockID(b) {
			return errors.New(errors.ErrCodePlacementInconsistent,
				"inverse map disagrees at site %d: has %d, want %d", site, s.siteBlock[site], b)
		}
	}
	for site, b := range s.siteBlock {
		if b == netlist.NoBlock {
			continue
		}
		if s.blockSite[b] != device.SiteID(site) {
			return errors.New(errors.ErrCodePlacementInconsistent,
				"stale inverse entry: site %d claims block %d which sits on site %d", site, b, s.blockSite[b])
		}
	}
	for id, m := range s.macros {
		head := s.grid.Site(s.blockSite[m.Members[0].Block]).Loc
		for _, mem := range m.Members {
			want := Add(head, mem.Offset)
			got := s.grid.Site(s.blockSite[mem.Block]).Loc
			if got != want {
				return errors.New(errors.ErrCodeMacroViolation,
					"macro %d member %d at %+v, want %+v", id, mem.Block, got, want)
			}
		}
	}
	return nil
}
