package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/placemat/pkg/errors"
	placeio "github.com/matzehuels/placemat/pkg/io"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/anneal"
	"github.com/matzehuels/placemat/pkg/place/checkpoint"
	"github.com/matzehuels/placemat/pkg/place/netcost"
	"github.com/matzehuels/placemat/pkg/place/noccost"
	"github.com/matzehuels/placemat/pkg/place/timing"
	"github.com/matzehuels/placemat/pkg/solver"
)

// =============================================================================
// Runner - Pipeline Execution
// =============================================================================

// Runner executes the placement pipeline.
type Runner struct{}

// NewRunner creates a pipeline runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Execute runs the full pipeline over a seed placement state. The state is
// optimized in place; the returned Result reports the final costs and run
// statistics. The seed must already assign every block to a legal site.
func (r *Runner) Execute(ctx context.Context, st *place.State, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := opts.Logger.With("run", runID[:8])
	start := time.Now()
	logger.Info("starting placement",
		"algorithm", opts.Algorithm,
		"blocks", st.Netlist().NumBlocks(),
		"nets", st.Netlist().NumNets(),
		"seed", opts.Seed)

	if err := st.Verify(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPlacement, err, "seed placement")
	}
	if opts.WriteInitialPlacement != "" {
		if err := placeio.WritePlacementFile(st, opts.WriteInitialPlacement); err != nil {
			return nil, err
		}
		logger.Debug("wrote initial placement", "path", opts.WriteInitialPlacement)
	}

	if opts.EnableAnalytic {
		if err := r.runAnalytic(ctx, st, opts, logger); err != nil {
			return nil, err
		}
	}

	costs, bb, td, noc, err := r.initCosts(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	initial := *costs
	kv := []any{
		"bb", costs.BB,
		"timing", costs.Timing,
		"total", costs.Total,
		"macros", st.NumMacros(),
	}
	if td != nil {
		kv = append(kv,
			"cpd", td.Analyzer().CriticalPathDelay(),
			"tns", td.Analyzer().TotalNegativeSlack())
	}
	logger.Info("initial costs", kv...)

	tol := opts.Tolerance
	if tol <= 0 {
		tol = checkpoint.DefaultTolerance
	}
	ckpt := checkpoint.New(st, bb, td, noc, tol)

	ann, err := anneal.New(opts.Anneal, st, costs, bb, td, noc, ckpt)
	if err != nil {
		return nil, err
	}
	if err := ann.Run(ctx); err != nil {
		return nil, err
	}

	report, err := ckpt.Verify(ctx, *costs)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:   runID,
		Costs:   *costs,
		Initial: initial,
		Stats:   ann.Stats(),
		Report:  report,
	}
	if td != nil {
		result.QoR = QoR{
			CriticalPathDelay:  td.Analyzer().CriticalPathDelay(),
			TotalNegativeSlack: td.Analyzer().TotalNegativeSlack(),
		}
	}

	logger.Info("placement complete",
		"total", costs.Total,
		"trials", result.Stats.Trials,
		"committed", result.Stats.Committed,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// runAnalytic performs the analytic pre-placement loop: solve the quadratic
// system, hand the continuous positions to the legalizer, repeat with a
// growing anchor pull. The state stays legal after every legalization.
func (r *Runner) runAnalytic(ctx context.Context, st *place.State, opts Options, logger *log.Logger) error {
	sol := solver.New(st)
	if sol.NumMoveable() == 0 {
		return nil
	}
	p := sol.NewPlacement(st)
	for k := 0; k < opts.AnalyticIterations; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sol.Solve(ctx, k, p); err != nil {
			return err
		}
		if err := opts.Legalizer.Legalize(st, p); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPlacement, err, "legalize iteration %d", k)
		}
		if err := st.Verify(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPlacement, err, "after legalize iteration %d", k)
		}
		logger.Debug("analytic iteration complete", "iteration", k)
	}
	return nil
}

// initCosts builds the enabled cost models, computes the seed placement's
// term costs, derives normalization factors, and assembles the weighted
// total. Returned models are nil when their term is disabled.
func (r *Runner) initCosts(ctx context.Context, st *place.State, opts Options) (*place.Costs, *netcost.Model, *timing.Model, *noccost.Model, error) {
	costs := &place.Costs{}

	bb := netcost.New(st)
	costs.BB = bb.ComputeFull(place.CostNormal)

	var td *timing.Model
	if opts.IsTimingDriven() {
		analyzer := opts.Analyzer
		if analyzer == nil {
			analyzer = timing.NewUnitAnalyzer(st.Netlist())
		}
		td = timing.New(st, opts.Delay, analyzer, opts.CritExponent)
		if err := td.Refresh(ctx); err != nil {
			return nil, nil, nil, nil, errors.Wrap(errors.ErrCodeInternal, err, "initial timing analysis")
		}
		costs.Timing = td.Cost()
	}

	var noc *noccost.Model
	if opts.EnableNoc {
		noc = noccost.New(st, opts.Noc, opts.Flows)
		costs.Noc = noc.ComputeFull(place.CostNormal)
		if err := noc.CheckRoutingCycle(); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	costs.SetNorms()
	costs.RecomputeTotal(opts.Anneal.Weights)
	return costs, bb, td, noc, nil
}
