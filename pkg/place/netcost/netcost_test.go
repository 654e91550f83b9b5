package netcost

import (
	"math"
	"testing"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// fixture places n blocks on one net along the diagonal of an 8x8 grid.
func fixture(t *testing.T, n int) (*place.State, []netlist.BlockID) {
	t.Helper()
	nl := netlist.New()
	var blocks []netlist.BlockID
	for i := 0; i < n; i++ {
		blocks = append(blocks, nl.AddBlock("b"+string(rune('0'+i)), "clb", true))
	}
	net := nl.AddNet("n0")
	for i, b := range blocks {
		if _, err := nl.AddPin(net, b, i == 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := nl.Finalize(); err != nil {
		t.Fatal(err)
	}

	grid := device.New(8, 8, 1)
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			if _, err := grid.AddSite(device.Loc{X: x, Y: y}, "clb"); err != nil {
				t.Fatal(err)
			}
		}
	}
	grid.Build()

	st := place.New(nl, grid)
	for i, b := range blocks {
		site, _ := grid.SiteAt(device.Loc{X: i, Y: i})
		if err := st.Place(b, site); err != nil {
			t.Fatal(err)
		}
	}
	return st, blocks
}

func TestCrossingCount(t *testing.T) {
	tests := []struct {
		fanout int
		want   float64
	}{
		{2, 1.0},
		{3, 1.0},
		{4, 1.0828},
		{5, 1.1536},
		{10, 1.4493},
		{50, 2.7933},
	}
	for _, tt := range tests {
		if got := crossingCount(tt.fanout); got != tt.want {
			t.Errorf("crossingCount(%d) = %g, want %g", tt.fanout, got, tt.want)
		}
	}

	// Past the table the factor extrapolates linearly and keeps growing.
	if got, want := crossingCount(51), 2.7933+0.02616; math.Abs(got-want) > 1e-12 {
		t.Errorf("crossingCount(51) = %g, want %g", got, want)
	}
	if crossingCount(200) <= crossingCount(100) {
		t.Error("crossing count must be monotonic in fanout")
	}
}

func TestComputeFullTwoPin(t *testing.T) {
	st, _ := fixture(t, 2)
	m := New(st)

	// Blocks at (0,0) and (1,1): span 1+1, crossing factor 1.
	if got := m.ComputeFull(place.CostNormal); got != 2 {
		t.Errorf("ComputeFull = %g, want 2", got)
	}
	if m.Cost() != 2 {
		t.Errorf("Cost() = %g, want 2", m.Cost())
	}
}

func TestComputeFullStarNet(t *testing.T) {
	st, _ := fixture(t, 4)
	m := New(st)

	// Diagonal spread over (0,0)..(3,3): span 3+3, fanout-4 crossing factor.
	want := 1.0828 * 6
	if got := m.ComputeFull(place.CostNormal); math.Abs(got-want) > 1e-12 {
		t.Errorf("ComputeFull = %g, want %g", got, want)
	}
}

func TestIgnoredNetCostsNothing(t *testing.T) {
	st, _ := fixture(t, 2)
	if err := st.Netlist().SetIgnored(netlist.NetID(0)); err != nil {
		t.Fatal(err)
	}
	m := New(st)
	if got := m.ComputeFull(place.CostNormal); got != 0 {
		t.Errorf("ignored net cost = %g, want 0", got)
	}
}

func TestProposeDeltaMatchesRecompute(t *testing.T) {
	st, blocks := fixture(t, 3)
	m := New(st)
	m.ComputeFull(place.CostNormal)

	dest, _ := st.Grid().SiteAt(device.Loc{X: 7, Y: 0})
	p := &place.Proposal{Targets: []place.Target{{Block: blocks[2], Site: dest}}}

	delta := m.ProposeDelta(p)
	before := m.Cost()

	m.Commit(p)
	st.Apply(p.Targets)

	if math.Abs(m.Cost()-(before+delta)) > 1e-9 {
		t.Errorf("Cost after commit = %g, want %g", m.Cost(), before+delta)
	}
	if check := m.ComputeFull(place.CostCheck); math.Abs(check-m.Cost()) > 1e-9 {
		t.Errorf("incremental cost %g drifted from recomputed %g", m.Cost(), check)
	}
}

func TestProposeDeltaDoesNotMutate(t *testing.T) {
	st, blocks := fixture(t, 3)
	m := New(st)
	m.ComputeFull(place.CostNormal)
	before := m.Cost()

	dest, _ := st.Grid().SiteAt(device.Loc{X: 7, Y: 7})
	p := &place.Proposal{Targets: []place.Target{{Block: blocks[0], Site: dest}}}
	m.ProposeDelta(p)

	if m.Cost() != before {
		t.Errorf("ProposeDelta mutated cost: %g -> %g", before, m.Cost())
	}
	if check := m.ComputeFull(place.CostCheck); check != before {
		t.Errorf("ProposeDelta mutated caches: recompute = %g, want %g", check, before)
	}
}

func TestCommitSwap(t *testing.T) {
	st, blocks := fixture(t, 3)
	m := New(st)
	m.ComputeFull(place.CostNormal)

	s0 := st.SiteOf(blocks[0])
	s2 := st.SiteOf(blocks[2])
	p := &place.Proposal{Targets: []place.Target{
		{Block: blocks[0], Site: s2},
		{Block: blocks[2], Site: s0},
	}}

	delta := m.ProposeDelta(p)
	// Swapping the two endpoints of a symmetric diagonal leaves the box as is.
	if math.Abs(delta) > 1e-12 {
		t.Errorf("symmetric swap delta = %g, want 0", delta)
	}

	m.Commit(p)
	st.Apply(p.Targets)
	if check := m.ComputeFull(place.CostCheck); math.Abs(check-m.Cost()) > 1e-9 {
		t.Errorf("incremental cost %g drifted from recomputed %g", m.Cost(), check)
	}
}
