package cli

import (
	"fmt"
	"testing"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// seedFixture builds an empty placement state with n clb blocks over a w x w
// single-type grid.
func seedFixture(t *testing.T, n, w int) (*place.State, []netlist.BlockID) {
	t.Helper()
	nl := netlist.New()
	var blocks []netlist.BlockID
	for i := 0; i < n; i++ {
		blocks = append(blocks, nl.AddBlock(fmt.Sprintf("b%d", i), "clb", true))
	}
	if err := nl.Finalize(); err != nil {
		t.Fatal(err)
	}

	grid := device.New(w, w, 1)
	for x := 0; x < w; x++ {
		for y := 0; y < w; y++ {
			if _, err := grid.AddSite(device.Loc{X: x, Y: y}, "clb"); err != nil {
				t.Fatal(err)
			}
		}
	}
	grid.Build()
	return place.New(nl, grid), blocks
}

func TestSeedPlacement(t *testing.T) {
	st, blocks := seedFixture(t, 6, 4)

	if err := seedPlacement(st); err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	for _, b := range blocks {
		if st.SiteOf(b) == device.NoSite {
			t.Errorf("block %d left unplaced", b)
		}
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestSeedPlacementDeterministic(t *testing.T) {
	a, blocks := seedFixture(t, 6, 4)
	b, _ := seedFixture(t, 6, 4)

	if err := seedPlacement(a); err != nil {
		t.Fatal(err)
	}
	if err := seedPlacement(b); err != nil {
		t.Fatal(err)
	}
	for _, blk := range blocks {
		if a.SiteOf(blk) != b.SiteOf(blk) {
			t.Fatalf("seed placement must be deterministic, block %d differs", blk)
		}
	}
}

func TestSeedPlacementMacro(t *testing.T) {
	st, blocks := seedFixture(t, 4, 4)
	if _, err := st.AddMacro(
		[]netlist.BlockID{blocks[0], blocks[1]},
		[]place.Offset{{}, {X: 1}},
	); err != nil {
		t.Fatal(err)
	}

	if err := seedPlacement(st); err != nil {
		t.Fatalf("seedPlacement: %v", err)
	}
	head := st.LocOf(blocks[0])
	if got := st.LocOf(blocks[1]); got != (device.Loc{X: head.X + 1, Y: head.Y, Layer: head.Layer}) {
		t.Errorf("macro member at %+v, want head %+v shifted by one in x", got, head)
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestSeedPlacementOverfull(t *testing.T) {
	st, _ := seedFixture(t, 5, 2)

	err := seedPlacement(st)
	if errors.GetCode(err) != errors.ErrCodeInvalidPlacement {
		t.Errorf("code = %v, want INVALID_PLACEMENT (err: %v)", errors.GetCode(err), err)
	}
}

func TestDefaultFloat(t *testing.T) {
	if got := defaultFloat(0, 1.5); got != 1.5 {
		t.Errorf("defaultFloat(0, 1.5) = %g", got)
	}
	if got := defaultFloat(2, 1.5); got != 2 {
		t.Errorf("defaultFloat(2, 1.5) = %g", got)
	}
}
