// Package checkpoint preserves the best placement seen so far and audits the
// incrementally maintained costs against from-scratch recomputation.
//
// The annealer calls Verify on a configured interval: within-tolerance drift
// is reported (and logged by the caller) but tolerated; drift beyond
// tolerance or any placement invariant violation is a fatal inconsistency
// that aborts the run - it means the incremental bookkeeping has a bug, and
// continuing would silently optimize a fiction. The best snapshot survives a
// fatal abort so partial progress remains reportable.
package checkpoint

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/observability"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/netcost"
	"github.com/matzehuels/placemat/pkg/place/noccost"
	"github.com/matzehuels/placemat/pkg/place/timing"
)

// DefaultTolerance is the relative discrepancy allowed between incremental
// and recomputed cost terms before verification fails.
const DefaultTolerance = 1e-6

// TermCheck is the verification result for one cost term.
type TermCheck struct {
	Name        string  `json:"name"`
	Incremental float64 `json:"incremental"`
	Recomputed  float64 `json:"recomputed"`
	Discrepancy float64 `json:"discrepancy"` // relative
	OK          bool    `json:"ok"`
}

// Report is the machine-readable outcome of one verification pass.
type Report struct {
	Passed bool        `json:"passed"`
	Terms  []TermCheck `json:"terms"`
}

// WorstDiscrepancy returns the largest relative discrepancy in the report.
func (r *Report) WorstDiscrepancy() float64 {
	worst := 0.0
	for _, t := range r.Terms {
		worst = math.Max(worst, t.Discrepancy)
	}
	return worst
}

// Checkpoint tracks the best-so-far placement and verifies consistency.
// The timing and NoC models are optional (nil when disabled).
type Checkpoint struct {
	st        *place.State
	bb        *netcost.Model
	td        *timing.Model
	noc       *noccost.Model
	tolerance float64

	bestID    string
	best      *place.State
	bestCosts place.Costs
	hasBest   bool
}

// New creates a checkpoint over the state and its active cost models.
// tolerance <= 0 selects DefaultTolerance.
func New(st *place.State, bb *netcost.Model, td *timing.Model, noc *noccost.Model, tolerance float64) *Checkpoint {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Checkpoint{st: st, bb: bb, td: td, noc: noc, tolerance: tolerance}
}

// Snapshot copies the current placement and cost record if it beats the best
// snapshot so far (or if none exists). Returns true when a snapshot was
// taken.
func (c *Checkpoint) Snapshot(ctx context.Context, costs place.Costs) bool {
	if c.hasBest && costs.Total >= c.bestCosts.Total {
		return false
	}
	c.bestID = uuid.NewString()
	c.best = c.st.Clone()
	c.bestCosts = costs
	c.hasBest = true
	observability.Checkpoint().OnSnapshot(ctx, c.bestID, costs.Total)
	return true
}

// HasSnapshot reports whether a best snapshot exists.
func (c *Checkpoint) HasSnapshot() bool { return c.hasBest }

// BestID returns the identifier of the current best snapshot.
func (c *Checkpoint) BestID() string { return c.bestID }

// BestCosts returns the cost record of the current best snapshot.
func (c *Checkpoint) BestCosts() place.Costs { return c.bestCosts }

// RestoreBest reinstates the best snapshot if it has strictly lower total
// cost than the given current record. The cost model caches are reloaded
// from scratch after a restore so incremental state matches the reinstated
// placement. Returns true when a restore happened.
func (c *Checkpoint) RestoreBest(costs *place.Costs) bool {
	if !c.hasBest || c.bestCosts.Total >= costs.Total {
		return false
	}
	c.st.CopyFrom(c.best)
	*costs = c.bestCosts
	c.bb.ComputeFull(place.CostNormal)
	if c.td != nil {
		c.td.ComputeFull(place.CostNormal)
	}
	if c.noc != nil {
		c.noc.ComputeFull(place.CostNormal)
	}
	return true
}

// relDiff returns |a-b| relative to |a|, falling back to absolute when a is
// tiny.
func relDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if math.Abs(a) > 1 {
		return d / math.Abs(a)
	}
	return d
}

// Verify audits the placement invariants and every active cost term against
// a from-scratch recomputation. The returned report always covers the terms
// that were checked, even when an error is also returned; any error is
// fatal.
func (c *Checkpoint) Verify(ctx context.Context, costs place.Costs) (*Report, error) {
	report := &Report{Passed: true}

	if err := c.st.Verify(); err != nil {
		report.Passed = false
		observability.Checkpoint().OnVerify(ctx, false, math.Inf(1))
		return report, err
	}

	check := func(name string, incremental, recomputed float64) bool {
		d := relDiff(recomputed, incremental)
		ok := d <= c.tolerance
		report.Terms = append(report.Terms, TermCheck{
			Name:        name,
			Incremental: incremental,
			Recomputed:  recomputed,
			Discrepancy: d,
			OK:          ok,
		})
		if !ok {
			report.Passed = false
		}
		return ok
	}

	failed := ""
	if !check("bb", costs.BB, c.bb.ComputeFull(place.CostCheck)) {
		failed = "bb"
	}
	if c.td != nil {
		if !check("timing", costs.Timing, c.td.ComputeFull(place.CostCheck)) {
			failed = "timing"
		}
	}
	if c.noc != nil {
		t := c.noc.ComputeFull(place.CostCheck)
		if !check("noc_aggregate_bandwidth", costs.Noc.AggregateBandwidth, t.AggregateBandwidth) {
			failed = "noc_aggregate_bandwidth"
		}
		if !check("noc_latency", costs.Noc.Latency, t.Latency) {
			failed = "noc_latency"
		}
		if !check("noc_latency_overrun", costs.Noc.LatencyOverrun, t.LatencyOverrun) {
			failed = "noc_latency_overrun"
		}
		if !check("noc_congestion", costs.Noc.Congestion, t.Congestion) {
			failed = "noc_congestion"
		}
		if err := c.noc.CheckRoutingCycle(); err != nil {
			report.Passed = false
			observability.Checkpoint().OnVerify(ctx, false, report.WorstDiscrepancy())
			return report, err
		}
	}

	observability.Checkpoint().OnVerify(ctx, report.Passed, report.WorstDiscrepancy())
	if failed != "" {
		return report, errors.New(errors.ErrCodePlacementInconsistent,
			"incremental %s cost drifted beyond tolerance %g (worst %g)",
			failed, c.tolerance, report.WorstDiscrepancy())
	}
	return report, nil
}
