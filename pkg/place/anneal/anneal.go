// Package anneal drives simulated-annealing placement refinement.
//
// The annealer runs a Warmup → Annealing → Quench → Done state machine. Each
// iteration draws one proposal from the move generator, asks the active cost
// models for incremental deltas without mutating anything, applies the
// Metropolis criterion, and on acceptance commits the move atomically to the
// placement state and every cost model. Criticalities are refreshed and
// consistency is audited on configured intervals, and the best total-cost
// state seen is checkpointed and restored at the end if the run finishes
// somewhere worse.
//
// The engine is logically single-threaded over the shared placement state:
// at most one proposal is in flight, and cancellation is honored only at
// iteration boundaries so an interrupted run still satisfies the placement
// invariants.
package anneal

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"

	placeerrors "github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/observability"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/checkpoint"
	"github.com/matzehuels/placemat/pkg/place/move"
	"github.com/matzehuels/placemat/pkg/place/netcost"
	"github.com/matzehuels/placemat/pkg/place/noccost"
	"github.com/matzehuels/placemat/pkg/place/timing"
)

// State is the annealer state machine phase.
type State int

const (
	// Warmup estimates the initial temperature from a sample of accepted
	// moves when none is configured.
	Warmup State = iota
	// Annealing is the main Metropolis loop under the cooling schedule.
	Annealing
	// Quench is the final zero-temperature pass accepting only improvements.
	Quench
	// Done means the run has terminated and the best state is in place.
	Done
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Warmup:
		return "warmup"
	case Annealing:
		return "annealing"
	case Quench:
		return "quench"
	case Done:
		return "done"
	}
	return "unknown"
}

// Config holds the annealing schedule parameters.
type Config struct {
	// InitialTemperature seeds the schedule; 0 selects automatic estimation
	// during warmup (20x the stddev of sampled move deltas).
	InitialTemperature float64 `toml:"initial_temperature"`

	// TemperatureFloor terminates annealing once the temperature drops
	// below it.
	TemperatureFloor float64 `toml:"temperature_floor"`

	// MoveBudget caps the total number of trial moves across all phases.
	MoveBudget int `toml:"move_budget"`

	// MovesPerTemperature is the inner-loop length; 0 derives it from the
	// netlist size.
	MovesPerTemperature int `toml:"moves_per_temperature"`

	// QuenchMoves is the length of the final improving-only pass; 0 derives
	// MoveBudget/10.
	QuenchMoves int `toml:"quench_moves"`

	// RangeLimit is the initial sampling window half-width; 0 selects the
	// larger grid dimension.
	RangeLimit float64 `toml:"range_limit"`

	// TimingUpdateInterval re-runs timing analysis every N committed moves.
	TimingUpdateInterval int `toml:"timing_update_interval"`

	// VerifyInterval audits consistency every N outer iterations.
	VerifyInterval int `toml:"verify_interval"`

	// Seed makes runs reproducible.
	Seed uint64 `toml:"seed"`

	// Strategy selects the registered move generator.
	Strategy string `toml:"strategy"`

	Weights place.Weights `toml:"weights"`

	Schedule Schedule    `toml:"-"`
	Logger   *log.Logger `toml:"-"`
}

// applyDefaults fills derived and default values.
func (c *Config) applyDefaults(numBlocks, maxDim int) {
	if c.TemperatureFloor <= 0 {
		c.TemperatureFloor = 0.005
	}
	if c.MovesPerTemperature <= 0 {
		// Classic annealing inner-loop sizing: grows superlinearly with the
		// netlist so larger designs get proportionally more exploration.
		c.MovesPerTemperature = int(10 * math.Pow(float64(numBlocks), 4.0/3.0))
		if c.MovesPerTemperature < 16 {
			c.MovesPerTemperature = 16
		}
	}
	if c.MoveBudget <= 0 {
		c.MoveBudget = 200 * c.MovesPerTemperature
	}
	if c.QuenchMoves <= 0 {
		c.QuenchMoves = c.MoveBudget / 10
	}
	if c.RangeLimit <= 0 {
		c.RangeLimit = float64(maxDim)
	}
	if c.TimingUpdateInterval <= 0 {
		c.TimingUpdateInterval = 1024
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = 50
	}
	if c.Strategy == "" {
		c.Strategy = move.UniformInterLayerTag
	}
	if c.Schedule == nil {
		c.Schedule = AdaptiveSchedule{MaxRangeLimit: float64(maxDim)}
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Trials           int     `json:"trials"`
	Committed        int     `json:"committed"`
	NoValidMove      int     `json:"no_valid_move"`
	OuterIterations  int     `json:"outer_iterations"`
	FinalTemperature float64 `json:"final_temperature"`
	FinalRangeLimit  float64 `json:"final_range_limit"`
	RestoredBest     bool    `json:"restored_best"`
	Cancelled        bool    `json:"cancelled"`
}

// Annealer owns one placement refinement run.
type Annealer struct {
	cfg  Config
	st   *place.State
	bb   *netcost.Model
	td   *timing.Model  // nil for bounding-box-only runs
	noc  *noccost.Model // nil when NoC costing is disabled
	gen  move.Generator
	ckpt *checkpoint.Checkpoint
	rng  *rand.Rand

	costs *place.Costs
	temp  float64
	rlim  float64
	state State

	movesSinceTiming int
	stats            Stats
}

// New creates an annealer. costs must hold the initialized cost record
// (terms, normalization factors, total) for the seed placement.
func New(cfg Config, st *place.State, costs *place.Costs, bb *netcost.Model, td *timing.Model, noc *noccost.Model, ckpt *checkpoint.Checkpoint) (*Annealer, error) {
	cfg.applyDefaults(st.Netlist().NumBlocks(), st.Grid().MaxDim())
	gen, err := move.New(cfg.Strategy, st)
	if err != nil {
		return nil, placeerrors.Wrap(placeerrors.ErrCodeInvalidConfig, err, "move strategy")
	}
	return &Annealer{
		cfg:   cfg,
		st:    st,
		bb:    bb,
		td:    td,
		noc:   noc,
		gen:   gen,
		ckpt:  ckpt,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xdeadbeef)),
		costs: costs,
		rlim:  cfg.RangeLimit,
		state: Warmup,
	}, nil
}

// Stats returns the run summary. Valid after Run returns.
func (a *Annealer) Stats() Stats { return a.stats }

// CurrentState returns the state machine phase.
func (a *Annealer) CurrentState() State { return a.state }

// Run executes the full Warmup → Annealing → Quench → Done sequence.
// Returns nil on normal or cancelled termination; fatal consistency errors
// abort immediately (the best checkpoint, if any, remains available).
func (a *Annealer) Run(ctx context.Context) error {
	logger := a.cfg.Logger

	a.temp = a.cfg.InitialTemperature
	if a.temp <= 0 {
		a.temp = a.estimateInitialTemperature(ctx)
		logger.Debugf("estimated initial temperature %.4g", a.temp)
	}
	a.ckpt.Snapshot(ctx, *a.costs)
	a.transition(ctx, Annealing)

	outer := 0
	for a.temp > a.cfg.TemperatureFloor && a.stats.Trials < a.cfg.MoveBudget {
		if ctx.Err() != nil {
			a.stats.Cancelled = true
			break
		}
		success, err := a.sweep(ctx, a.cfg.MovesPerTemperature, a.temp)
		if err != nil {
			return err
		}
		a.temp, a.rlim = a.cfg.Schedule.Next(a.temp, a.rlim, success)
		observability.Placer().OnTemperatureUpdate(ctx, a.temp, a.rlim, success)

		outer++
		a.stats.OuterIterations = outer
		a.ckpt.Snapshot(ctx, *a.costs)
		if outer%a.cfg.VerifyInterval == 0 {
			if err := a.audit(ctx); err != nil {
				return err
			}
		}
		logger.Debugf("iter %d T=%.4g rlim=%.1f success=%.2f cost=%.6g",
			outer, a.temp, a.rlim, success, a.costs.Total)
	}

	a.transition(ctx, Quench)
	if !a.stats.Cancelled {
		if _, err := a.sweep(ctx, a.cfg.QuenchMoves, 0); err != nil {
			return err
		}
		a.ckpt.Snapshot(ctx, *a.costs)
	}

	a.stats.RestoredBest = a.ckpt.RestoreBest(a.costs)
	if a.stats.RestoredBest && a.td != nil {
		// The snapshot's timing cost was taken under the criticalities in
		// effect at snapshot time; the analyzer may have been refreshed since.
		// RestoreBest reloaded the timing caches over the restored placement,
		// so rebase the record on them.
		a.costs.Timing = a.td.Cost()
		a.costs.RecomputeTotal(a.cfg.Weights)
	}
	a.stats.FinalTemperature = a.temp
	a.stats.FinalRangeLimit = a.rlim
	a.transition(ctx, Done)

	if err := a.audit(ctx); err != nil {
		return err
	}
	if a.stats.Cancelled {
		logger.Warn("annealing cancelled; best checkpoint restored where better")
	}
	return nil
}

func (a *Annealer) transition(ctx context.Context, to State) {
	observability.Placer().OnStateTransition(ctx, a.state.String(), to.String())
	a.state = to
}

// estimateInitialTemperature samples moves accepting everything and sets the
// starting temperature to 20x the standard deviation of the observed total
// cost deltas, the classic auto-temperature rule.
func (a *Annealer) estimateInitialTemperature(ctx context.Context) float64 {
	n := min(a.cfg.MoveBudget/100, 500)
	if n < 32 {
		n = 32
	}
	deltas := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		p, err := a.gen.Propose(a.rng, int(a.rlim))
		if err != nil {
			a.stats.Trials++
			a.stats.NoValidMove++
			continue
		}
		wd := a.evaluate(p)
		deltas = append(deltas, wd)
		a.commit(ctx, p, wd)
		a.stats.Trials++
	}
	if len(deltas) < 2 {
		return 1
	}
	sd := stat.StdDev(deltas, nil)
	if sd <= 0 || math.IsNaN(sd) {
		return 1
	}
	return 20 * sd
}

// sweep runs n trial moves at the given temperature and returns the success
// (acceptance) rate. temperature 0 accepts improving moves only.
func (a *Annealer) sweep(ctx context.Context, n int, temperature float64) (float64, error) {
	accepted := 0
	trials := 0
	for i := 0; i < n && a.stats.Trials < a.cfg.MoveBudget; i++ {
		if ctx.Err() != nil {
			a.stats.Cancelled = true
			break
		}
		a.stats.Trials++
		trials++

		p, err := a.gen.Propose(a.rng, int(a.rlim))
		if err != nil {
			if errors.Is(err, move.ErrNoValidMove) {
				a.stats.NoValidMove++
				observability.Placer().OnMoveRejected(ctx, "")
				continue
			}
			return 0, err
		}

		wd := a.evaluate(p)
		if a.accept(wd, temperature) {
			a.commit(ctx, p, wd)
			accepted++
		} else {
			observability.Placer().OnMoveRejected(ctx, p.MoveType)
		}

		if a.td != nil && a.movesSinceTiming >= a.cfg.TimingUpdateInterval {
			if err := a.refreshTiming(ctx); err != nil {
				return 0, err
			}
		}
	}
	if trials == 0 {
		return 0, nil
	}
	return float64(accepted) / float64(trials), nil
}

// evaluate computes the weighted total cost delta of a proposal without
// mutating any state.
func (a *Annealer) evaluate(p *place.Proposal) float64 {
	bbDelta := a.bb.ProposeDelta(p)
	tdDelta := 0.0
	if a.td != nil {
		tdDelta = a.td.ProposeDelta(p)
	}
	var nocDelta place.NocTerms
	if a.noc != nil {
		nocDelta = a.noc.ProposeDelta(p)
	}
	return a.costs.WeightedDelta(a.cfg.Weights, bbDelta, tdDelta, nocDelta)
}

// accept applies the Metropolis criterion.
func (a *Annealer) accept(delta, temperature float64) bool {
	if delta <= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return a.rng.Float64() < math.Exp(-delta/temperature)
}

// commit applies an accepted proposal atomically: every cost model first
// (the NoC model reads pre-move routes from the state), then the placement
// maps, then the running cost record.
func (a *Annealer) commit(ctx context.Context, p *place.Proposal, weightedDelta float64) {
	a.bb.Commit(p)
	if a.td != nil {
		a.td.Commit(p)
	}
	if a.noc != nil {
		a.noc.Commit(p)
	}
	a.st.Apply(p.Targets)

	a.costs.BB = a.bb.Cost()
	if a.td != nil {
		a.costs.Timing = a.td.Cost()
	}
	if a.noc != nil {
		a.costs.Noc = mergeNorms(a.noc.Terms(), a.costs.Noc)
	}
	a.costs.Total += weightedDelta

	a.stats.Committed++
	a.movesSinceTiming++
	observability.Placer().OnMoveCommitted(ctx, p.MoveType, weightedDelta)
}

// mergeNorms carries the normalization factors (set once at init) over the
// updated term values.
func mergeNorms(terms, prev place.NocTerms) place.NocTerms {
	terms.AggregateBandwidthNorm = prev.AggregateBandwidthNorm
	terms.LatencyNorm = prev.LatencyNorm
	terms.LatencyOverrunNorm = prev.LatencyOverrunNorm
	terms.CongestionNorm = prev.CongestionNorm
	return terms
}

// refreshTiming re-runs the external analyzer, folds the updated timing cost
// into the record, and rebases the weighted total (criticality changes shift
// the landscape under the incremental total).
func (a *Annealer) refreshTiming(ctx context.Context) error {
	if err := a.td.Refresh(ctx); err != nil {
		return placeerrors.Wrap(placeerrors.ErrCodeInternal, err, "timing refresh")
	}
	a.costs.Timing = a.td.Cost()
	a.costs.RecomputeTotal(a.cfg.Weights)
	a.movesSinceTiming = 0
	return nil
}

// audit verifies consistency; drift within tolerance is logged as a warning,
// anything worse is fatal.
func (a *Annealer) audit(ctx context.Context) error {
	report, err := a.ckpt.Verify(ctx, *a.costs)
	if err != nil {
		return err
	}
	if d := report.WorstDiscrepancy(); d > 0 {
		a.cfg.Logger.Warnf("cost drift within tolerance: worst relative discrepancy %.3g", d)
	}
	return nil
}
