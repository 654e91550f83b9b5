package device

import (
	"math/rand/v2"
	"testing"
)

// fullGrid builds a w x h x layers grid where every location hosts one site
// accepting typ.
func fullGrid(t *testing.T, w, h, layers int, typ string) *Grid {
	t.Helper()
	g := New(w, h, layers)
	for l := 0; l < layers; l++ {
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				if _, err := g.AddSite(Loc{X: x, Y: y, Layer: l}, typ); err != nil {
					t.Fatalf("AddSite(%d,%d,%d): %v", x, y, l, err)
				}
			}
		}
	}
	g.Build()
	return g
}

func TestAddSiteDuplicate(t *testing.T) {
	g := New(2, 2, 1)
	if _, err := g.AddSite(Loc{X: 0, Y: 0}, "clb"); err != nil {
		t.Fatalf("first AddSite: %v", err)
	}
	if _, err := g.AddSite(Loc{X: 0, Y: 0}, "clb"); err != ErrDuplicateSite {
		t.Errorf("duplicate AddSite error = %v, want ErrDuplicateSite", err)
	}
}

func TestSiteAt(t *testing.T) {
	g := fullGrid(t, 3, 3, 1, "clb")

	id, ok := g.SiteAt(Loc{X: 1, Y: 2})
	if !ok {
		t.Fatal("SiteAt(1,2) not found")
	}
	if got := g.Site(id).Loc; got.X != 1 || got.Y != 2 {
		t.Errorf("Site(%d).Loc = %+v", id, got)
	}

	if _, ok := g.SiteAt(Loc{X: 5, Y: 5}); ok {
		t.Error("SiteAt outside grid should not be found")
	}
}

func TestAccepts(t *testing.T) {
	s := Site{Types: []string{"clb", "dsp"}}
	if !s.Accepts("clb") || !s.Accepts("dsp") {
		t.Error("site should accept its listed types")
	}
	if s.Accepts("io") {
		t.Error("site should reject unlisted types")
	}
}

func TestCompressedTypeFilter(t *testing.T) {
	g := New(4, 1, 1)
	for x := 0; x < 4; x++ {
		typ := "clb"
		if x%2 == 1 {
			typ = "dsp"
		}
		if _, err := g.AddSite(Loc{X: x}, typ); err != nil {
			t.Fatal(err)
		}
	}
	g.Build()

	c := g.Compressed("dsp")
	if c == nil {
		t.Fatal("Compressed(dsp) = nil")
	}
	if got := c.NumSitesOnLayer(0); got != 2 {
		t.Errorf("NumSitesOnLayer(0) = %d, want 2", got)
	}
	if g.Compressed("bram") != nil {
		t.Error("Compressed for absent type should be nil")
	}
}

func TestSampleChebyshevContainment(t *testing.T) {
	g := fullGrid(t, 16, 16, 1, "clb")
	c := g.Compressed("clb")
	rng := rand.New(rand.NewPCG(1, 2))
	from := Loc{X: 8, Y: 8}

	// On a full grid the compressed index space equals grid coordinates, so
	// the window bound is directly observable.
	for _, rlim := range []int{1, 3, 7} {
		for i := 0; i < 500; i++ {
			loc, ok := c.Sample(rng, from, rlim)
			if !ok {
				t.Fatal("Sample failed on full grid")
			}
			dx := abs(loc.X - from.X)
			dy := abs(loc.Y - from.Y)
			if dx > rlim || dy > rlim {
				t.Fatalf("rlim %d: sampled %+v, distance (%d,%d)", rlim, loc, dx, dy)
			}
		}
	}
}

func TestSampleCrossesLayers(t *testing.T) {
	g := fullGrid(t, 4, 4, 2, "clb")
	c := g.Compressed("clb")
	rng := rand.New(rand.NewPCG(3, 4))

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		loc, ok := c.Sample(rng, Loc{X: 2, Y: 2}, 1)
		if !ok {
			t.Fatal("Sample failed")
		}
		seen[loc.Layer] = true
	}
	if !seen[0] || !seen[1] {
		t.Errorf("sampling should reach both layers, saw %v", seen)
	}
}

func TestSampleNoCompatibleSites(t *testing.T) {
	g := fullGrid(t, 2, 2, 1, "clb")
	if c := g.Compressed("dsp"); c != nil {
		t.Fatal("expected nil compressed index for absent type")
	}
}

func TestCompressedSiteAtMatchesSub(t *testing.T) {
	g := New(1, 1, 1)
	if _, err := g.AddSite(Loc{Sub: 0}, "clb"); err != nil {
		t.Fatal(err)
	}
	want, err := g.AddSite(Loc{Sub: 1}, "clb")
	if err != nil {
		t.Fatal(err)
	}
	g.Build()

	c := g.Compressed("clb")
	id, ok := c.SiteAt(Loc{Sub: 1})
	if !ok || id != want {
		t.Errorf("SiteAt(sub=1) = (%d, %v), want (%d, true)", id, ok, want)
	}
	if _, ok := c.SiteAt(Loc{Sub: 2}); ok {
		t.Error("SiteAt with absent sub slot should fail")
	}
}

func TestNearestIndex(t *testing.T) {
	vals := []int{2, 5, 9}
	tests := []struct {
		v    int
		want int
	}{
		{0, 0},
		{2, 0},
		{3, 0},
		{4, 1},
		{7, 1},
		{8, 2},
		{20, 2},
	}
	for _, tt := range tests {
		if got := nearestIndex(vals, tt.v); got != tt.want {
			t.Errorf("nearestIndex(%v, %d) = %d, want %d", vals, tt.v, got, tt.want)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
