package timing

import (
	"context"
	"math"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
)

// ManhattanDelay is a simple distance-proportional delay model: PerUnit per
// horizontal/vertical grid hop plus PerLayer per die-layer crossing. Good
// enough for tests and for flows whose real delay model is a collaborator.
type ManhattanDelay struct {
	PerUnit  float64
	PerLayer float64
}

// Delay implements DelayModel.
func (d ManhattanDelay) Delay(from, to device.Loc) float64 {
	dx := math.Abs(float64(to.X - from.X))
	dy := math.Abs(float64(to.Y - from.Y))
	dl := math.Abs(float64(to.Layer - from.Layer))
	return d.PerUnit*(dx+dy) + d.PerLayer*dl
}

// UnitAnalyzer is a trivial Analyzer that reports criticality 1 and slack 0
// for every connection. It turns the timing cost into a pure delay sum,
// which is what bounding-box-only flows and most tests want.
type UnitAnalyzer struct {
	nl *netlist.Netlist

	worstDelay float64
	delays     DelayFunc
}

// NewUnitAnalyzer creates a unit-criticality analyzer over a netlist.
func NewUnitAnalyzer(nl *netlist.Netlist) *UnitAnalyzer {
	return &UnitAnalyzer{nl: nl}
}

// Update records the delay function and scans for the worst single
// connection delay, which stands in for the critical-path estimate.
func (a *UnitAnalyzer) Update(_ context.Context, delays DelayFunc) error {
	a.delays = delays
	a.worstDelay = 0
	for i := 0; i < a.nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if a.nl.Net(net).Ignored {
			continue
		}
		for pin := 0; pin < a.nl.Fanout(net); pin++ {
			if a.nl.Pin(a.nl.Net(net).Pins[pin]).Driver {
				continue
			}
			a.worstDelay = math.Max(a.worstDelay, delays(net, pin))
		}
	}
	return nil
}

// Criticality implements Analyzer; every connection is fully critical.
func (a *UnitAnalyzer) Criticality(netlist.NetID, int) float64 { return 1 }

// Slack implements Analyzer; the unit analyzer has no clock constraint.
func (a *UnitAnalyzer) Slack(netlist.NetID, int) float64 { return 0 }

// CriticalPathDelay implements Analyzer.
func (a *UnitAnalyzer) CriticalPathDelay() float64 { return a.worstDelay }

// TotalNegativeSlack implements Analyzer.
func (a *UnitAnalyzer) TotalNegativeSlack() float64 { return 0 }
