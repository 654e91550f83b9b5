// Package netcost computes and incrementally maintains the bounding-box
// wirelength cost of a placement.
//
// Each non-ignored net contributes crossing(fanout) * (W + H), where W and H
// are the net's bounding-box span in grid units and crossing is the
// fanout-dependent correction factor compensating for the bounding box
// underestimating wiring of high-fanout nets. Per-net boxes and costs are
// cached so that evaluating a move proposal costs O(fanout of the moved
// blocks), while ComputeFull in check mode recomputes everything without
// touching the caches.
package netcost

import (
	"gonum.org/v1/gonum/floats"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// crossings is the fanout correction table: crossings[fanout-1] for fanout
// up to 50. Entries for fanout below 4 are 1 (a small net's bounding box is
// exact).
var crossings = [...]float64{
	1.0, 1.0, 1.0, 1.0828, 1.1536, 1.2206, 1.2823, 1.3385, 1.3991, 1.4493,
	1.4974, 1.5455, 1.5937, 1.6418, 1.6899, 1.7304, 1.7709, 1.8114, 1.8519,
	1.8924, 1.9288, 1.9652, 2.0015, 2.0379, 2.0743, 2.1061, 2.1379, 2.1698,
	2.2016, 2.2334, 2.2646, 2.2958, 2.3271, 2.3583, 2.3895, 2.4187, 2.4479,
	2.4772, 2.5064, 2.5356, 2.5610, 2.5864, 2.6117, 2.6371, 2.6625, 2.6887,
	2.7148, 2.7410, 2.7671, 2.7933,
}

// crossingCount returns the wiring correction factor for a net of the given
// fanout, extrapolating linearly past the end of the table.
func crossingCount(fanout int) float64 {
	if fanout > len(crossings) {
		return 2.7933 + 0.02616*float64(fanout-len(crossings))
	}
	return crossings[fanout-1]
}

// bbox is a 2D net bounding box in grid coordinates, inclusive.
type bbox struct {
	xmin, xmax, ymin, ymax int
}

func (b bbox) cost(fanout int) float64 {
	return crossingCount(fanout) * float64((b.xmax-b.xmin)+(b.ymax-b.ymin))
}

// Model is the bounding-box cost model bound to one placement state.
type Model struct {
	st *place.State

	boxes    []bbox
	netCosts []float64
	total    float64
}

// New creates a cost model over the given state. Call ComputeFull(place.CostNormal)
// before the first ProposeDelta.
func New(st *place.State) *Model {
	n := st.Netlist().NumNets()
	return &Model{
		st:       st,
		boxes:    make([]bbox, n),
		netCosts: make([]float64, n),
	}
}

// Cost returns the incrementally maintained total bounding-box cost.
func (m *Model) Cost() float64 { return m.total }

// netBox computes a net's bounding box, reading block positions from the
// state except for blocks overridden by the proposal (nil for none).
func (m *Model) netBox(net netlist.NetID, p *place.Proposal) bbox {
	nl := m.st.Netlist()
	grid := m.st.Grid()
	var b bbox
	for i := 0; i < nl.Fanout(net); i++ {
		blk := nl.PinBlock(net, i)
		var loc device.Loc
		if p != nil {
			if site, moved := p.Moved(blk); moved {
				loc = grid.Site(site).Loc
			} else {
				loc = m.st.LocOf(blk)
			}
		} else {
			loc = m.st.LocOf(blk)
		}
		if i == 0 {
			b = bbox{xmin: loc.X, xmax: loc.X, ymin: loc.Y, ymax: loc.Y}
			continue
		}
		b.xmin = min(b.xmin, loc.X)
		b.xmax = max(b.xmax, loc.X)
		b.ymin = min(b.ymin, loc.Y)
		b.ymax = max(b.ymax, loc.Y)
	}
	return b
}

// ComputeFull computes the cost of the whole placement from scratch. In
// Normal mode the per-net caches and running total are (re)loaded; in Check
// mode nothing is mutated and the returned value is for comparison against
// the incrementally maintained total.
func (m *Model) ComputeFull(mode place.CostMode) float64 {
	nl := m.st.Netlist()
	costs := make([]float64, 0, nl.NumNets())
	for i := 0; i < nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if nl.Net(net).Ignored {
			continue
		}
		b := m.netBox(net, nil)
		c := b.cost(nl.Fanout(net))
		costs = append(costs, c)
		if mode == place.CostNormal {
			m.boxes[net] = b
			m.netCosts[net] = c
		}
	}
	total := floats.Sum(costs)
	if mode == place.CostNormal {
		m.total = total
	}
	return total
}

// ProposeDelta returns the change in total cost if the proposal were
// committed. No persistent state is mutated.
func (m *Model) ProposeDelta(p *place.Proposal) float64 {
	nl := m.st.Netlist()
	delta := 0.0
	for _, net := range p.AffectedNets(nl) {
		b := m.netBox(net, p)
		delta += b.cost(nl.Fanout(net)) - m.netCosts[net]
	}
	return delta
}

// Commit applies a previously proposed move to the caches. Moved blocks are
// read from the proposal's targets, so Commit gives the same result whether
// it runs before or after State.Apply.
func (m *Model) Commit(p *place.Proposal) {
	nl := m.st.Netlist()
	for _, net := range p.AffectedNets(nl) {
		b := m.netBox(net, p)
		c := b.cost(nl.Fanout(net))
		m.total += c - m.netCosts[net]
		m.boxes[net] = b
		m.netCosts[net] = c
	}
}
