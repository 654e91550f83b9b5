// Package pipeline provides the end-to-end placement pipeline.
//
// This package wires the placement engine's stages behind one entry point so
// the CLI and library embedders get identical behavior:
//
//  1. Validate: check the seed placement satisfies every invariant
//  2. Analytic (optional): refine continuous positions with the quadratic
//     solver, legalizing between iterations through the caller's legalizer
//  3. Cost init: load bounding-box / timing / NoC models and normalization
//  4. Anneal: run the Metropolis refinement loop
//  5. Verify: audit final consistency and assemble the QoR report
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner()
//	opts := pipeline.Options{
//	    Algorithm: pipeline.AlgorithmTimingDriven,
//	    Seed:      42,
//	}
//	result, err := runner.Execute(ctx, state, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Costs.Total)
package pipeline

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/anneal"
	"github.com/matzehuels/placemat/pkg/place/checkpoint"
	"github.com/matzehuels/placemat/pkg/place/noccost"
	"github.com/matzehuels/placemat/pkg/place/timing"
	"github.com/matzehuels/placemat/pkg/solver"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Embedders
// =============================================================================

const (
	// DefaultSeed is the default random seed for reproducibility.
	DefaultSeed = uint64(42)

	// DefaultCritExponent is the default criticality sharpening exponent.
	DefaultCritExponent = 1.0

	// DefaultTimingWeight is the timing share of the total cost for
	// timing-driven placement.
	DefaultTimingWeight = 0.5

	// DefaultAnalyticIterations bounds the analytic solve/legalize loop.
	DefaultAnalyticIterations = 10
)

// Algorithm constants for placement algorithm selection.
const (
	AlgorithmBoundingBox  = "bounding-box"
	AlgorithmTimingDriven = "timing-driven"
)

// ValidAlgorithms is the set of supported placement algorithms.
var ValidAlgorithms = map[string]bool{
	AlgorithmBoundingBox:  true,
	AlgorithmTimingDriven: true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Legalizer maps continuous solver coordinates onto discrete legal sites
// between analytic iterations. Legalization is an external collaborator:
// the pipeline calls it, the engine never implements it.
type Legalizer interface {
	Legalize(st *place.State, p *solver.Placement) error
}

// Options contains all configuration for the placement pipeline.
// The TOML tags allow loading an options file from the CLI.
type Options struct {
	// Algorithm selects bounding-box-only or timing-driven placement.
	Algorithm string `toml:"algorithm"`

	// Seed makes runs reproducible.
	Seed uint64 `toml:"seed"`

	// Annealing schedule parameters.
	Anneal anneal.Config `toml:"anneal"`

	// CritExponent sharpens criticality weighting in the timing cost.
	CritExponent float64 `toml:"crit_exponent"`

	// Tolerance is the relative drift allowed at verification.
	Tolerance float64 `toml:"tolerance"`

	// EnableAnalytic runs the analytical pre-placement phase. Requires a
	// Legalizer.
	EnableAnalytic bool `toml:"enable_analytic"`

	// AnalyticIterations bounds the solve/legalize loop.
	AnalyticIterations int `toml:"analytic_iterations"`

	// EnableNoc activates network-on-chip costing over Flows.
	EnableNoc bool           `toml:"enable_noc"`
	Noc       noccost.Config `toml:"noc"`

	// WriteInitialPlacement optionally exports the seed placement before
	// optimization.
	WriteInitialPlacement string `toml:"write_initial_placement"`

	// Runtime options (not serialized)
	Flows     []noccost.Flow    `toml:"-"`
	Delay     timing.DelayModel `toml:"-"`
	Analyzer  timing.Analyzer   `toml:"-"`
	Legalizer Legalizer         `toml:"-"`
	Logger    *log.Logger       `toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `toml:"-"`
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect
// as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmBoundingBox
	}
	if !ValidAlgorithms[o.Algorithm] {
		return errors.New(errors.ErrCodeInvalidConfig,
			"invalid algorithm: %q (must be one of: bounding-box, timing-driven)", o.Algorithm)
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.CritExponent == 0 {
		o.CritExponent = DefaultCritExponent
	}
	if o.AnalyticIterations == 0 {
		o.AnalyticIterations = DefaultAnalyticIterations
	}
	if o.IsTimingDriven() {
		if o.Anneal.Weights.Timing == 0 {
			o.Anneal.Weights.Timing = DefaultTimingWeight
		}
		if o.Delay == nil {
			return errors.New(errors.ErrCodeInvalidConfig, "timing-driven placement requires a delay model")
		}
	} else {
		o.Anneal.Weights.Timing = 0
	}
	if o.EnableAnalytic && o.Legalizer == nil {
		return errors.New(errors.ErrCodeInvalidConfig, "analytic pre-placement requires a legalizer")
	}
	if o.EnableNoc {
		if len(o.Flows) == 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "NoC costing enabled with no traffic flows")
		}
		if o.Anneal.Weights.Noc == 0 {
			o.Anneal.Weights.Noc = 1
		}
		if o.Anneal.Weights.NocBandwidth == 0 && o.Anneal.Weights.NocLatency == 0 && o.Anneal.Weights.NocCongestion == 0 {
			o.Anneal.Weights.NocBandwidth = 1
			o.Anneal.Weights.NocLatency = 1
			o.Anneal.Weights.NocCongestion = 1
		}
		o.Anneal.Weights.NormalizeNocFactors()
	} else {
		o.Anneal.Weights.Noc = 0
	}
	if o.Anneal.Seed == 0 {
		o.Anneal.Seed = o.Seed
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o.Anneal.Logger == nil {
		o.Anneal.Logger = o.Logger
	}
	o.validated = true
	return nil
}

// IsTimingDriven returns true for timing-driven placement.
func (o *Options) IsTimingDriven() bool {
	return o.Algorithm == AlgorithmTimingDriven
}

// =============================================================================
// Result
// =============================================================================

// QoR holds the summary quality-of-result metrics.
type QoR struct {
	CriticalPathDelay  float64 `json:"critical_path_delay"`
	TotalNegativeSlack float64 `json:"total_negative_slack"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID uniquely identifies this pipeline execution in logs and reports.
	RunID string

	// Costs is the final cost record of the committed placement.
	Costs place.Costs

	// Initial is the cost record of the seed placement, for improvement
	// reporting.
	Initial place.Costs

	// Stats summarizes the annealing run.
	Stats anneal.Stats

	// Report is the final consistency-check outcome.
	Report *checkpoint.Report

	// QoR carries the timing summary metrics (timing-driven runs only).
	QoR QoR
}
