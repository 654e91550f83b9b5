// Package noccost maintains the network-on-chip cost terms for placements
// whose netlist contains traffic endpoints (router-attached blocks).
//
// Traffic flows are routed over the device mesh with dimension-ordered (XY)
// routing between the endpoints' current sites. Three cost terms are
// tracked: aggregate bandwidth (demand x hop count, summed over flows),
// latency with a separate overrun term for flows exceeding their constraint,
// and link congestion (demand above capacity). The model offers the same
// propose/commit/compute-full contract as the bounding-box cost, plus a
// routing-cycle check that rejects traffic configurations whose channel
// dependency graph is cyclic - a fatal condition, not a move-time concern.
package noccost

import (
	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// Flow is one traffic stream between two router-attached blocks.
type Flow struct {
	Src netlist.BlockID `json:"src"`
	Dst netlist.BlockID `json:"dst"`

	// Bandwidth is the stream's demand in link-bandwidth units.
	Bandwidth float64 `json:"bandwidth"`

	// MaxLatency is the per-flow latency constraint; traffic above it
	// contributes to the overrun term.
	MaxLatency float64 `json:"max_latency"`
}

// Config describes the mesh links.
type Config struct {
	// LinkBandwidth is the capacity of one mesh link.
	LinkBandwidth float64 `json:"link_bandwidth" toml:"link_bandwidth"`

	// LinkLatency is the traversal latency of one link hop.
	LinkLatency float64 `json:"link_latency" toml:"link_latency"`

	// RouterLatency is the latency through one router.
	RouterLatency float64 `json:"router_latency" toml:"router_latency"`
}

// node is a router position on the mesh.
type node struct {
	x, y, layer int
}

// link is a directed mesh channel between adjacent routers.
type link struct {
	from, to node
}

// Model is the NoC cost model bound to one placement state.
type Model struct {
	st    *place.State
	cfg   Config
	flows []Flow

	blockFlows map[netlist.BlockID][]int

	flowBW      []float64
	flowLatency []float64
	flowOverrun []float64
	linkUsage   map[link]float64

	terms place.NocTerms
}

// New creates a NoC cost model for the given flows. Call
// ComputeFull(place.CostNormal) before the first ProposeDelta.
func New(st *place.State, cfg Config, flows []Flow) *Model {
	m := &Model{
		st:          st,
		cfg:         cfg,
		flows:       flows,
		blockFlows:  make(map[netlist.BlockID][]int),
		flowBW:      make([]float64, len(flows)),
		flowLatency: make([]float64, len(flows)),
		flowOverrun: make([]float64, len(flows)),
		linkUsage:   make(map[link]float64),
	}
	for i, f := range flows {
		m.blockFlows[f.Src] = append(m.blockFlows[f.Src], i)
		m.blockFlows[f.Dst] = append(m.blockFlows[f.Dst], i)
	}
	return m
}

// Terms returns the incrementally maintained cost terms.
func (m *Model) Terms() place.NocTerms { return m.terms }

// route returns the XY-ordered link sequence between two router nodes:
// layer first, then columns, then rows. Deterministic dimension ordering is
// what makes the channel dependency graph acyclic on a healthy mesh.
func route(from, to node) []link {
	var links []link
	cur := from
	step := func(next node) {
		links = append(links, link{from: cur, to: next})
		cur = next
	}
	for cur.layer != to.layer {
		d := 1
		if to.layer < cur.layer {
			d = -1
		}
		step(node{cur.x, cur.y, cur.layer + d})
	}
	for cur.x != to.x {
		d := 1
		if to.x < cur.x {
			d = -1
		}
		step(node{cur.x + d, cur.y, cur.layer})
	}
	for cur.y != to.y {
		d := 1
		if to.y < cur.y {
			d = -1
		}
		step(node{cur.x, cur.y + d, cur.layer})
	}
	return links
}

func (m *Model) flowRoute(i int, p *place.Proposal) []link {
	f := m.flows[i]
	return route(m.nodeOf(f.Src, p), m.nodeOf(f.Dst, p))
}

func (m *Model) nodeOf(b netlist.BlockID, p *place.Proposal) node {
	loc := m.locOf(b, p)
	return node{x: loc.X, y: loc.Y, layer: loc.Layer}
}

func (m *Model) locOf(b netlist.BlockID, p *place.Proposal) device.Loc {
	if p != nil {
		if site, moved := p.Moved(b); moved {
			return m.st.Grid().Site(site).Loc
		}
	}
	return m.st.LocOf(b)
}

// flowCosts returns the aggregate bandwidth, latency, and overrun of one
// flow given its route.
func (m *Model) flowCosts(i int, links []link) (bw, lat, overrun float64) {
	f := m.flows[i]
	hops := float64(len(links))
	bw = f.Bandwidth * hops
	lat = hops*m.cfg.LinkLatency + (hops+1)*m.cfg.RouterLatency
	if f.MaxLatency > 0 && lat > f.MaxLatency {
		overrun = lat - f.MaxLatency
	}
	return bw, lat, overrun
}

// linkCongestion is the over-capacity demand on one link, normalized by
// capacity.
func (m *Model) linkCongestion(usage float64) float64 {
	if m.cfg.LinkBandwidth <= 0 || usage <= m.cfg.LinkBandwidth {
		return 0
	}
	return (usage - m.cfg.LinkBandwidth) / m.cfg.LinkBandwidth
}

// ComputeFull routes every flow from scratch. CostNormal reloads the per-flow
// and per-link caches; CostCheck only returns the recomputed terms.
func (m *Model) ComputeFull(mode place.CostMode) place.NocTerms {
	usage := make(map[link]float64)
	var t place.NocTerms
	flowBW := make([]float64, len(m.flows))
	flowLat := make([]float64, len(m.flows))
	flowOver := make([]float64, len(m.flows))
	for i := range m.flows {
		links := m.flowRoute(i, nil)
		bw, lat, over := m.flowCosts(i, links)
		flowBW[i], flowLat[i], flowOver[i] = bw, lat, over
		t.AggregateBandwidth += bw
		t.Latency += lat
		t.LatencyOverrun += over
		for _, l := range links {
			usage[l] += m.flows[i].Bandwidth
		}
	}
	for _, u := range usage {
		t.Congestion += m.linkCongestion(u)
	}
	if mode == place.CostNormal {
		m.flowBW = flowBW
		m.flowLatency = flowLat
		m.flowOverrun = flowOver
		m.linkUsage = usage
		m.terms = t
	}
	return t
}

// affectedFlows returns the deduplicated flow indices touching any moved
// block.
func (m *Model) affectedFlows(p *place.Proposal) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, tgt := range p.Targets {
		for _, i := range m.blockFlows[tgt.Block] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	return out
}

// ProposeDelta returns the per-term cost changes if the proposal were
// committed. No persistent state is mutated.
func (m *Model) ProposeDelta(p *place.Proposal) place.NocTerms {
	delta, _ := m.evalAffected(p)
	return delta
}

// Commit applies a previously proposed move to the flow and link caches.
func (m *Model) Commit(p *place.Proposal) {
	delta, apply := m.evalAffected(p)
	apply()
	m.terms.AggregateBandwidth += delta.AggregateBandwidth
	m.terms.Latency += delta.Latency
	m.terms.LatencyOverrun += delta.LatencyOverrun
	m.terms.Congestion += delta.Congestion
}

// evalAffected computes the term deltas for a proposal and returns a closure
// that applies them to the caches.
func (m *Model) evalAffected(p *place.Proposal) (place.NocTerms, func()) {
	var delta place.NocTerms
	affected := m.affectedFlows(p)
	usageDelta := make(map[link]float64)
	newBW := make(map[int]float64, len(affected))
	newLat := make(map[int]float64, len(affected))
	newOver := make(map[int]float64, len(affected))

	for _, i := range affected {
		oldLinks := m.flowRoute(i, nil)
		newLinks := m.flowRoute(i, p)
		bw, lat, over := m.flowCosts(i, newLinks)
		newBW[i], newLat[i], newOver[i] = bw, lat, over
		delta.AggregateBandwidth += bw - m.flowBW[i]
		delta.Latency += lat - m.flowLatency[i]
		delta.LatencyOverrun += over - m.flowOverrun[i]
		for _, l := range oldLinks {
			usageDelta[l] -= m.flows[i].Bandwidth
		}
		for _, l := range newLinks {
			usageDelta[l] += m.flows[i].Bandwidth
		}
	}
	for l, d := range usageDelta {
		if d == 0 {
			continue
		}
		old := m.linkUsage[l]
		delta.Congestion += m.linkCongestion(old+d) - m.linkCongestion(old)
	}

	apply := func() {
		for i := range newBW {
			m.flowBW[i] = newBW[i]
			m.flowLatency[i] = newLat[i]
			m.flowOverrun[i] = newOver[i]
		}
		for l, d := range usageDelta {
			u := m.linkUsage[l] + d
			if u == 0 {
				delete(m.linkUsage, l)
			} else {
				m.linkUsage[l] = u
			}
		}
	}
	return delta, apply
}

// CheckRoutingCycle verifies that the channel dependency graph induced by
// the current flow routes is acyclic. A cycle means the traffic
// configuration can deadlock and the run must abort; this is checked at
// verification points, never per move.
func (m *Model) CheckRoutingCycle() error {
	// adjacency: link a depends on link b when some route traverses a then b.
	adj := make(map[link][]link)
	for i := range m.flows {
		links := m.flowRoute(i, nil)
		for j := 1; j < len(links); j++ {
			adj[links[j-1]] = append(adj[links[j-1]], links[j])
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[link]int)
	var visit func(l link) bool
	visit = func(l link) bool {
		color[l] = gray
		for _, next := range adj[l] {
			switch color[next] {
			case gray:
				return false
			case white:
				if !visit(next) {
					return false
				}
			}
		}
		color[l] = black
		return true
	}
	for l := range adj {
		if color[l] == white {
			if !visit(l) {
				return errors.New(errors.ErrCodeNocRoutingCycle,
					"traffic dependency graph contains a cycle")
			}
		}
	}
	return nil
}
