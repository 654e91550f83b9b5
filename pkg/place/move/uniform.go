package move

import (
	"math/rand/v2"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// UniformInterLayerTag identifies the baseline strategy: pick a moveable
// block uniformly at random, then a destination uniformly within the range
// window in compressed coordinate space, possibly on a different device
// layer.
const UniformInterLayerTag = "uniform-inter-layer"

func init() {
	Register(UniformInterLayerTag, func(st *place.State) Generator {
		return NewUniformInterLayer(st)
	})
}

// UniformInterLayer is the baseline move strategy. Block selection is
// unweighted - no bias by size, criticality, or connectivity.
type UniformInterLayer struct {
	st       *place.State
	moveable []netlist.BlockID
}

// NewUniformInterLayer creates the strategy bound to a state.
func NewUniformInterLayer(st *place.State) *UniformInterLayer {
	return &UniformInterLayer{
		st:       st,
		moveable: st.Netlist().MoveableBlocks(),
	}
}

// Propose implements Generator.
func (g *UniformInterLayer) Propose(rng *rand.Rand, rangeLimit int) (*place.Proposal, error) {
	if len(g.moveable) == 0 {
		return nil, ErrNoValidMove
	}
	blk := g.moveable[rng.IntN(len(g.moveable))]
	typ := g.st.Netlist().Block(blk).Type

	comp := g.st.Grid().Compressed(typ)
	if comp == nil {
		return nil, ErrNoValidMove
	}
	from := g.st.LocOf(blk)
	to, ok := comp.Sample(rng, from, rangeLimit)
	if !ok || to == from {
		return nil, ErrNoValidMove
	}

	if macro := g.st.MacroOf(blk); macro != place.NoMacro {
		return g.proposeMacro(macro, place.Sub(to, from))
	}
	return g.proposeSingle(blk, to)
}

// proposeSingle builds a one-block move, or a swap when the destination is
// occupied by a compatible moveable non-macro block.
func (g *UniformInterLayer) proposeSingle(blk netlist.BlockID, to device.Loc) (*place.Proposal, error) {
	site, ok := g.st.Grid().SiteAt(to)
	if !ok {
		return nil, ErrNoValidMove
	}
	occupant := g.st.BlockAt(site)
	if occupant == netlist.NoBlock {
		return &place.Proposal{
			MoveType: UniformInterLayerTag,
			Targets:  []place.Target{{Block: blk, Site: site}},
		}, nil
	}

	// Occupied: only a plain swap with another moveable loose block of a
	// type the source site accepts is legal.
	occ := g.st.Netlist().Block(occupant)
	src := g.st.SiteOf(blk)
	if !occ.Moveable || g.st.MacroOf(occupant) != place.NoMacro || !g.st.Grid().Site(src).Accepts(occ.Type) {
		return nil, ErrNoValidMove
	}
	return &place.Proposal{
		MoveType: UniformInterLayerTag,
		Targets: []place.Target{
			{Block: blk, Site: site},
			{Block: occupant, Site: src},
		},
	}, nil
}

// proposeMacro shifts every member of a macro by the same offset. The move
// is legal only if every member's target site exists, accepts the member's
// type, and is free or vacated by another member of this same move.
func (g *UniformInterLayer) proposeMacro(id place.MacroID, offset place.Offset) (*place.Proposal, error) {
	m := g.st.Macro(id)
	vacated := make(map[device.SiteID]struct{}, len(m.Members))
	for _, mem := range m.Members {
		vacated[g.st.SiteOf(mem.Block)] = struct{}{}
	}

	targets := make([]place.Target, 0, len(m.Members))
	for _, mem := range m.Members {
		to := place.Add(g.st.LocOf(mem.Block), offset)
		site, ok := g.st.Grid().SiteAt(to)
		if !ok || !g.st.Grid().Site(site).Accepts(g.st.Netlist().Block(mem.Block).Type) {
			return nil, ErrNoValidMove
		}
		if occ := g.st.BlockAt(site); occ != netlist.NoBlock {
			if _, sameMove := vacated[site]; !sameMove {
				return nil, ErrNoValidMove
			}
		}
		targets = append(targets, place.Target{Block: mem.Block, Site: site})
	}
	return &place.Proposal{MoveType: UniformInterLayerTag, Targets: targets}, nil
}
