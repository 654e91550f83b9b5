// Package timing defines the boundary to external timing analysis and
// maintains the timing cost of a placement.
//
// The timing analyzer itself is a collaborator: the engine hands it the
// current point-to-point delays and reads back per-connection criticalities
// and slacks. A connection is one (net, sink pin) pair; its cost is
// criticality^exponent * delay(driver, sink). The Model caches per-connection
// costs and criticalities so move evaluation is proportional to the fanout of
// the moved blocks, and refreshes criticalities only when the annealer asks.
package timing

import (
	"context"
	"math"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// DelayModel estimates the delay of a point-to-point connection from the
// endpoint locations.
type DelayModel interface {
	Delay(from, to device.Loc) float64
}

// DelayFunc reports the current delay of a connection; passed to the
// analyzer so it can traverse its timing graph with up-to-date edge delays.
type DelayFunc func(net netlist.NetID, pin int) float64

// Analyzer is the external timing analyzer black box. Update may be
// expensive (it can traverse a large timing graph) but is synchronous and
// deterministic.
type Analyzer interface {
	// Update re-runs timing analysis against the given connection delays.
	Update(ctx context.Context, delays DelayFunc) error

	// Criticality returns the timing-importance weight of a connection in
	// [0, 1]; pin indexes the net's pin list.
	Criticality(net netlist.NetID, pin int) float64

	// Slack returns the setup slack of a connection.
	Slack(net netlist.NetID, pin int) float64

	// CriticalPathDelay returns the current critical-path delay estimate.
	CriticalPathDelay() float64

	// TotalNegativeSlack returns the current setup total negative slack.
	TotalNegativeSlack() float64
}

// Model maintains the criticality-weighted timing cost with the same
// propose/commit/compute-full contract as the bounding-box model.
type Model struct {
	st       *place.State
	delay    DelayModel
	analyzer Analyzer

	// critExponent sharpens the criticality weighting as annealing
	// progresses; 1 means raw criticalities.
	critExponent float64

	crit     [][]float64 // cached criticality per net, per pin
	connCost [][]float64 // cached cost per net, per pin (0 for drivers)
	total    float64
}

// New creates a timing cost model. Call Refresh before the first
// ProposeDelta so criticalities and caches are loaded.
func New(st *place.State, delay DelayModel, analyzer Analyzer, critExponent float64) *Model {
	nl := st.Netlist()
	m := &Model{
		st:           st,
		delay:        delay,
		analyzer:     analyzer,
		critExponent: critExponent,
		crit:         make([][]float64, nl.NumNets()),
		connCost:     make([][]float64, nl.NumNets()),
	}
	for i := 0; i < nl.NumNets(); i++ {
		m.crit[i] = make([]float64, nl.Fanout(netlist.NetID(i)))
		m.connCost[i] = make([]float64, nl.Fanout(netlist.NetID(i)))
	}
	return m
}

// Cost returns the incrementally maintained total timing cost.
func (m *Model) Cost() float64 { return m.total }

// Analyzer returns the underlying analyzer, for QoR reporting.
func (m *Model) Analyzer() Analyzer { return m.analyzer }

// connDelay returns the delay of a connection under the current placement,
// with moved blocks overridden by the proposal (nil for none).
func (m *Model) connDelay(net netlist.NetID, pin int, p *place.Proposal) float64 {
	nl := m.st.Netlist()
	driver := nl.Driver(net)
	sink := nl.PinBlock(net, pin)
	return m.delay.Delay(m.locOf(driver, p), m.locOf(sink, p))
}

func (m *Model) locOf(b netlist.BlockID, p *place.Proposal) device.Loc {
	if p != nil {
		if site, moved := p.Moved(b); moved {
			return m.st.Grid().Site(site).Loc
		}
	}
	return m.st.LocOf(b)
}

// pow raises a criticality to the configured exponent. Exponent 1 is the
// common case and skips the math.Pow call in the hot loop.
func (m *Model) pow(crit float64) float64 {
	if m.critExponent == 1 {
		return crit
	}
	return math.Pow(crit, m.critExponent)
}

// Refresh re-runs the external analyzer against current delays, reloads the
// criticality cache, and recomputes the full timing cost. Called once at
// initialization and then periodically by the annealer.
func (m *Model) Refresh(ctx context.Context) error {
	err := m.analyzer.Update(ctx, func(net netlist.NetID, pin int) float64 {
		return m.connDelay(net, pin, nil)
	})
	if err != nil {
		return err
	}
	nl := m.st.Netlist()
	for i := 0; i < nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if nl.Net(net).Ignored {
			continue
		}
		for pin := 0; pin < nl.Fanout(net); pin++ {
			m.crit[i][pin] = m.analyzer.Criticality(net, pin)
		}
	}
	m.ComputeFull(place.CostNormal)
	return nil
}

// ComputeFull recomputes the timing cost of the whole placement from the
// cached criticalities. CostCheck leaves the caches untouched.
func (m *Model) ComputeFull(mode place.CostMode) float64 {
	nl := m.st.Netlist()
	total := 0.0
	for i := 0; i < nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if nl.Net(net).Ignored {
			continue
		}
		for pin := 0; pin < nl.Fanout(net); pin++ {
			if nl.Pin(nl.Net(net).Pins[pin]).Driver {
				continue
			}
			c := m.pow(m.crit[i][pin]) * m.connDelay(net, pin, nil)
			total += c
			if mode == place.CostNormal {
				m.connCost[i][pin] = c
			}
		}
	}
	if mode == place.CostNormal {
		m.total = total
	}
	return total
}

// ProposeDelta returns the timing cost change if the proposal were
// committed, using the cached (possibly slightly stale) criticalities.
func (m *Model) ProposeDelta(p *place.Proposal) float64 {
	return m.evalAffected(p, false)
}

// Commit applies a previously proposed move to the per-connection caches.
func (m *Model) Commit(p *place.Proposal) {
	m.total += m.evalAffected(p, true)
}

func (m *Model) evalAffected(p *place.Proposal, store bool) float64 {
	nl := m.st.Netlist()
	delta := 0.0
	for _, net := range p.AffectedNets(nl) {
		driver := nl.Driver(net)
		for pin := 0; pin < nl.Fanout(net); pin++ {
			if nl.Pin(nl.Net(net).Pins[pin]).Driver {
				continue
			}
			blk := nl.PinBlock(net, pin)
			// Only connections whose endpoints move can change.
			_, sinkMoved := p.Moved(blk)
			_, driverMoved := p.Moved(driver)
			if !sinkMoved && !driverMoved {
				continue
			}
			c := m.pow(m.crit[net][pin]) * m.connDelay(net, pin, p)
			delta += c - m.connCost[net][pin]
			if store {
				m.connCost[net][pin] = c
			}
		}
	}
	return delta
}
