package anneal

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/checkpoint"
	"github.com/matzehuels/placemat/pkg/place/netcost"
)

// starFixture scatters n blocks of one star net across the corners of a
// w x w grid, a placement the annealer should be able to improve by pulling
// the blocks together.
func starFixture(t *testing.T, n, w int) (*place.State, *netcost.Model, *place.Costs) {
	t.Helper()
	nl := netlist.New()
	var blocks []netlist.BlockID
	for i := 0; i < n; i++ {
		blocks = append(blocks, nl.AddBlock(fmt.Sprintf("b%d", i), "clb", true))
	}
	net := nl.AddNet("star")
	for i, b := range blocks {
		if _, err := nl.AddPin(net, b, i == 0); err != nil {
			t.Fatal(err)
		}
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

	st := place.New(nl, grid)
	corners := []device.Loc{
		{X: 0, Y: 0}, {X: w - 1, Y: 0}, {X: 0, Y: w - 1}, {X: w - 1, Y: w - 1},
		{X: w / 2, Y: 0}, {X: 0, Y: w / 2},
	}
	for i, b := range blocks {
		site, _ := grid.SiteAt(corners[i%len(corners)])
		if err := st.Place(b, site); err != nil {
			t.Fatal(err)
		}
	}

	bb := netcost.New(st)
	costs := &place.Costs{BB: bb.ComputeFull(place.CostNormal)}
	costs.SetNorms()
	costs.RecomputeTotal(place.Weights{})
	return st, bb, costs
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Warmup, "warmup"},
		{Annealing, "annealing"},
		{Quench, "quench"},
		{Done, "done"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestAcceptBoundary(t *testing.T) {
	a := &Annealer{rng: rand.New(rand.NewPCG(1, 2))}

	// Improvements and zero deltas are always accepted.
	for i := 0; i < 100; i++ {
		if !a.accept(-1, 0.5) || !a.accept(0, 0.5) {
			t.Fatal("non-positive delta must always be accepted")
		}
	}
	// At zero temperature positive deltas are always rejected.
	for i := 0; i < 100; i++ {
		if a.accept(0.001, 0) {
			t.Fatal("positive delta at zero temperature must be rejected")
		}
	}
}

func TestAcceptMetropolisFrequency(t *testing.T) {
	a := &Annealer{rng: rand.New(rand.NewPCG(42, 43))}

	const (
		delta  = 0.7
		temp   = 1.3
		trials = 100000
	)
	accepted := 0
	for i := 0; i < trials; i++ {
		if a.accept(delta, temp) {
			accepted++
		}
	}
	got := float64(accepted) / trials
	want := math.Exp(-delta / temp)
	if math.Abs(got-want) > 0.05*want {
		t.Errorf("acceptance rate = %.4f, want %.4f within 5%%", got, want)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults(100, 16)

	if cfg.TemperatureFloor != 0.005 {
		t.Errorf("TemperatureFloor = %g, want 0.005", cfg.TemperatureFloor)
	}
	want := int(10 * math.Pow(100, 4.0/3.0))
	if cfg.MovesPerTemperature != want {
		t.Errorf("MovesPerTemperature = %d, want %d", cfg.MovesPerTemperature, want)
	}
	if cfg.QuenchMoves != cfg.MoveBudget/10 {
		t.Errorf("QuenchMoves = %d, want MoveBudget/10", cfg.QuenchMoves)
	}
	if cfg.RangeLimit != 16 {
		t.Errorf("RangeLimit = %g, want 16", cfg.RangeLimit)
	}
	if cfg.Schedule == nil || cfg.Logger == nil {
		t.Error("defaults must install a schedule and logger")
	}

	// Tiny designs still get a workable inner loop.
	small := Config{}
	small.applyDefaults(1, 4)
	if small.MovesPerTemperature < 16 {
		t.Errorf("MovesPerTemperature = %d, want >= 16", small.MovesPerTemperature)
	}
}

func TestRunImprovesStarPlacement(t *testing.T) {
	st, bb, costs := starFixture(t, 4, 8)
	initialBB := costs.BB

	ckpt := checkpoint.New(st, bb, nil, nil, 0)
	cfg := Config{
		MoveBudget:          4000,
		MovesPerTemperature: 64,
		VerifyInterval:      10,
		Seed:                7,
	}
	a, err := New(cfg, st, costs, bb, nil, nil, ckpt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.CurrentState() != Done {
		t.Errorf("state after Run = %v, want Done", a.CurrentState())
	}

	// Corner-scattered star nets have enormous slack; annealing must close
	// most of it.
	if costs.BB >= initialBB {
		t.Errorf("final bb cost %g did not improve on initial %g", costs.BB, initialBB)
	}
	if err := st.Verify(); err != nil {
		t.Errorf("Verify after Run: %v", err)
	}
	if check := bb.ComputeFull(place.CostCheck); math.Abs(check-costs.BB) > 1e-6*check {
		t.Errorf("final incremental cost %g drifted from recomputed %g", costs.BB, check)
	}

	stats := a.Stats()
	if stats.Trials == 0 || stats.Committed == 0 {
		t.Errorf("run made no progress: %+v", stats)
	}
	if stats.Trials > cfg.MoveBudget {
		t.Errorf("Trials = %d exceeds budget %d", stats.Trials, cfg.MoveBudget)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	st, bb, costs := starFixture(t, 4, 8)
	ckpt := checkpoint.New(st, bb, nil, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := New(Config{MoveBudget: 100000, Seed: 1}, st, costs, bb, nil, nil, ckpt)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatalf("cancelled Run should still return nil, got %v", err)
	}
	if !a.Stats().Cancelled {
		t.Error("stats should record cancellation")
	}
	if err := st.Verify(); err != nil {
		t.Errorf("state must stay legal after cancellation: %v", err)
	}
}
