package place

import (
	"testing"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
)

// testFixture is a 4x4 single-layer grid of clb sites with four connected
// blocks placed along the first row.
func testFixture(t *testing.T) (*State, []netlist.BlockID, []device.SiteID) {
	t.Helper()
	nl := netlist.New()
	blocks := []netlist.BlockID{
		nl.AddBlock("b0", "clb", true),
		nl.AddBlock("b1", "clb", true),
		nl.AddBlock("b2", "clb", true),
		nl.AddBlock("b3", "clb", true),
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

	grid := device.New(4, 4, 1)
	var sites []device.SiteID
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			id, err := grid.AddSite(device.Loc{X: x, Y: y}, "clb")
			if err != nil {
				t.Fatal(err)
			}
			sites = append(sites, id)
		}
	}
	grid.Build()

	st := New(nl, grid)
	for i, b := range blocks {
		site, _ := grid.SiteAt(device.Loc{X: i, Y: 0})
		if err := st.Place(b, site); err != nil {
			t.Fatalf("Place(%d): %v", b, err)
		}
	}
	return st, blocks, sites
}

func TestPlaceOccupied(t *testing.T) {
	st, blocks, _ := testFixture(t)

	occupied := st.SiteOf(blocks[1])
	err := st.Place(blocks[0], occupied)
	if errors.GetCode(err) != errors.ErrCodeOccupancyViolation {
		t.Errorf("Place on occupied site: code = %v, want OCCUPANCY_VIOLATION", errors.GetCode(err))
	}
}

func TestPlaceIncompatibleType(t *testing.T) {
	nl := netlist.New()
	b := nl.AddBlock("b", "dsp", true)
	if err := nl.Finalize(); err != nil {
		t.Fatal(err)
	}
	grid := device.New(1, 1, 1)
	site, _ := grid.AddSite(device.Loc{}, "clb")
	grid.Build()

	st := New(nl, grid)
	err := st.Place(b, site)
	if errors.GetCode(err) != errors.ErrCodeInvalidPlacement {
		t.Errorf("Place with wrong type: code = %v, want INVALID_PLACEMENT", errors.GetCode(err))
	}
}

func TestApplySwap(t *testing.T) {
	st, blocks, _ := testFixture(t)

	s0 := st.SiteOf(blocks[0])
	s1 := st.SiteOf(blocks[1])
	st.Apply([]Target{
		{Block: blocks[0], Site: s1},
		{Block: blocks[1], Site: s0},
	})

	if st.SiteOf(blocks[0]) != s1 || st.SiteOf(blocks[1]) != s0 {
		t.Error("swap did not exchange sites")
	}
	if st.BlockAt(s0) != blocks[1] || st.BlockAt(s1) != blocks[0] {
		t.Error("swap left stale inverse entries")
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify after swap: %v", err)
	}
}

func TestApplySingleMove(t *testing.T) {
	st, blocks, _ := testFixture(t)

	dest, _ := st.Grid().SiteAt(device.Loc{X: 3, Y: 3})
	old := st.SiteOf(blocks[2])
	st.Apply([]Target{{Block: blocks[2], Site: dest}})

	if st.BlockAt(old) != netlist.NoBlock {
		t.Error("vacated site still claims the moved block")
	}
	if st.SiteOf(blocks[2]) != dest || st.BlockAt(dest) != blocks[2] {
		t.Error("move did not land on destination")
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify after move: %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	st, blocks, _ := testFixture(t)
	snap := st.Clone()

	dest, _ := st.Grid().SiteAt(device.Loc{X: 2, Y: 3})
	st.Apply([]Target{{Block: blocks[0], Site: dest}})

	if snap.SiteOf(blocks[0]) == st.SiteOf(blocks[0]) {
		t.Error("mutating the original should not affect the clone")
	}

	st.CopyFrom(snap)
	if st.SiteOf(blocks[0]) != snap.SiteOf(blocks[0]) {
		t.Error("CopyFrom did not restore the snapshot")
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify after restore: %v", err)
	}
}

func TestMacroShift(t *testing.T) {
	st, blocks, _ := testFixture(t)

	// b0 at (0,0) heads a macro with b1 at (1,0).
	id, err := st.AddMacro(
		[]netlist.BlockID{blocks[0], blocks[1]},
		[]Offset{{}, {X: 1}},
	)
	if err != nil {
		t.Fatalf("AddMacro: %v", err)
	}
	if st.MacroOf(blocks[0]) != id || st.MacroOf(blocks[1]) != id {
		t.Error("MacroOf should report membership")
	}
	if err := st.Verify(); err != nil {
		t.Fatalf("Verify with consistent macro: %v", err)
	}

	// Shift the whole macro down one row.
	d0, _ := st.Grid().SiteAt(device.Loc{X: 0, Y: 1})
	d1, _ := st.Grid().SiteAt(device.Loc{X: 1, Y: 1})
	st.Apply([]Target{
		{Block: blocks[0], Site: d0},
		{Block: blocks[1], Site: d1},
	})
	if err := st.Verify(); err != nil {
		t.Errorf("Verify after macro shift: %v", err)
	}

	// Breaking the shape must be caught.
	d2, _ := st.Grid().SiteAt(device.Loc{X: 3, Y: 3})
	st.Apply([]Target{{Block: blocks[1], Site: d2}})
	err = st.Verify()
	if errors.GetCode(err) != errors.ErrCodeMacroViolation {
		t.Errorf("Verify with broken macro: code = %v, want MACRO_VIOLATION", errors.GetCode(err))
	}
}

func TestAddMacroRejectsDoubleMembership(t *testing.T) {
	st, blocks, _ := testFixture(t)

	if _, err := st.AddMacro([]netlist.BlockID{blocks[0]}, []Offset{{}}); err != nil {
		t.Fatal(err)
	}
	_, err := st.AddMacro([]netlist.BlockID{blocks[0], blocks[2]}, []Offset{{}, {X: 1}})
	if err == nil {
		t.Error("block in two macros should be rejected")
	}
}

func TestVerifyUnplacedBlock(t *testing.T) {
	st, _, _ := testFixture(t)

	fresh := New(st.Netlist(), st.Grid())
	if err := fresh.Verify(); err == nil {
		t.Error("Verify with unplaced blocks should fail")
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	a := device.Loc{X: 1, Y: 2, Layer: 0, Sub: 1}
	b := device.Loc{X: 4, Y: 1, Layer: 1, Sub: 0}
	if got := Add(a, Sub(b, a)); got != b {
		t.Errorf("Add(a, Sub(b, a)) = %+v, want %+v", got, b)
	}
}
