package place

import (
	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
)

// Proposal is a transient, not-yet-committed description of one candidate
// mutation: the blocks involved and their proposed target sites. A proposal
// lives for exactly one annealer iteration; it is evaluated against the
// current state by the cost models and then either applied via [State.Apply]
// or dropped.
type Proposal struct {
	// MoveType tags the generator strategy that produced the proposal.
	MoveType string

	Targets []Target
}

// Moved reports whether the proposal moves the given block, and if so to
// which site. Cost models use this to evaluate "what if" positions without
// mutating the state.
func (p *Proposal) Moved(b netlist.BlockID) (device.SiteID, bool) {
	for _, t := range p.Targets {
		if t.Block == b {
			return t.Site, true
		}
	}
	return device.NoSite, false
}

// AffectedNets returns the deduplicated non-ignored nets touching any moved
// block. The incremental cost of a proposal is a function of exactly these
// nets.
func (p *Proposal) AffectedNets(nl *netlist.Netlist) []netlist.NetID {
	seen := make(map[netlist.NetID]struct{})
	var out []netlist.NetID
	for _, t := range p.Targets {
		for _, n := range nl.BlockNets(t.Block) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
