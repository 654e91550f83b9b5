package cli

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	placeio "github.com/matzehuels/placemat/pkg/io"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/pipeline"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/timing"
)

// placeOpts holds the command-line flags for the place command.
type placeOpts struct {
	design    string // design JSON path
	device    string // device JSON path
	placement string // seed placement JSON path (greedy seed if empty)
	config    string // TOML options file
	output    string // output placement path
	algorithm string // overrides the config algorithm when set
	seed      uint64 // overrides the config seed when set
	noc       bool   // enable NoC costing over the design's flows
}

// placeConfig is the TOML options file layout: the pipeline options plus the
// delay model parameters, which are data here but an interface in the
// pipeline.
type placeConfig struct {
	pipeline.Options
	Delay struct {
		PerUnit  float64 `toml:"per_unit"`
		PerLayer float64 `toml:"per_layer"`
	} `toml:"delay"`
}

// newPlaceCmd creates the place command.
//
// The command loads a design and device, seeds a placement (from a file or a
// greedy first-fit pass), runs the pipeline, and writes the optimized
// placement.
func newPlaceCmd() *cobra.Command {
	var opts placeOpts

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Run placement over a design and device",
		Long: `Run analytic and annealing placement over a design/device pair.

Examples:
  placemat place -d design.json -g device.json -o placed.json
  placemat place -d design.json -g device.json -c options.toml --noc
  placemat place -d design.json -g device.json -p seed.json --algorithm timing-driven`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runPlace(c.Context(), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.design, "design", "d", "", "design JSON file (required)")
	cmd.Flags().StringVarP(&opts.device, "device", "g", "", "device JSON file (required)")
	cmd.Flags().StringVarP(&opts.placement, "placement", "p", "", "seed placement JSON (greedy seed if empty)")
	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "TOML options file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "placed.json", "output placement file")
	cmd.Flags().StringVar(&opts.algorithm, "algorithm", "", "placement algorithm (bounding-box, timing-driven)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed")
	cmd.Flags().BoolVar(&opts.noc, "noc", false, "enable NoC costing over the design's traffic flows")
	_ = cmd.MarkFlagRequired("design")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func runPlace(ctx context.Context, opts *placeOpts) error {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	design, err := placeio.ReadDesignFile(opts.design)
	if err != nil {
		return err
	}
	grid, err := placeio.ReadDeviceFile(opts.device)
	if err != nil {
		return err
	}
	printInfo("Loaded %s", opts.design)
	printDetail("%d blocks · %d nets · %d flows",
		design.Netlist.NumBlocks(), design.Netlist.NumNets(), len(design.Flows))

	var st *place.State
	if opts.placement != "" {
		st, err = placeio.ReadPlacementFile(design.Netlist, grid, opts.placement)
		if err != nil {
			return err
		}
	} else {
		st, err = design.NewState(grid)
		if err != nil {
			return err
		}
		if err := seedPlacement(st); err != nil {
			return err
		}
		logger.Debug("seeded placement greedily")
	}

	cfg := placeConfig{}
	if opts.config != "" {
		if _, err := toml.DecodeFile(opts.config, &cfg); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", opts.config)
		}
	}
	if opts.algorithm != "" {
		cfg.Algorithm = opts.algorithm
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}
	if opts.noc {
		cfg.EnableNoc = true
	}
	cfg.Flows = design.Flows
	cfg.Logger = logger
	if cfg.Algorithm == pipeline.AlgorithmTimingDriven {
		cfg.Options.Delay = timing.ManhattanDelay{
			PerUnit:  defaultFloat(cfg.Delay.PerUnit, 1),
			PerLayer: cfg.Delay.PerLayer,
		}
	}

	result, err := pipeline.NewRunner().Execute(ctx, st, cfg.Options)
	if err != nil {
		printError("Placement failed: %v", err)
		return err
	}

	if err := placeio.WritePlacementFile(st, opts.output); err != nil {
		return err
	}

	prog.done(fmt.Sprintf("Placed %d blocks", design.Netlist.NumBlocks()))
	printPlaceSummary(result, cfg.Options)
	printFile(opts.output)
	return nil
}

// printPlaceSummary renders the run outcome.
func printPlaceSummary(result *pipeline.Result, opts pipeline.Options) {
	printKeyValue("bb cost", fmt.Sprintf("%.4g (from %.4g)", result.Costs.BB, result.Initial.BB))
	if opts.IsTimingDriven() {
		printKeyValue("timing cost", fmt.Sprintf("%.4g (from %.4g)", result.Costs.Timing, result.Initial.Timing))
		printKeyValue("critical path", fmt.Sprintf("%.4g", result.QoR.CriticalPathDelay))
	}
	if opts.EnableNoc {
		printKeyValue("noc bandwidth", fmt.Sprintf("%.4g", result.Costs.Noc.AggregateBandwidth))
		printKeyValue("noc latency", fmt.Sprintf("%.4g", result.Costs.Noc.Latency))
		printKeyValue("noc congestion", fmt.Sprintf("%.4g", result.Costs.Noc.Congestion))
	}
	printKeyValue("total", fmt.Sprintf("%.6g", result.Costs.Total))
	printKeyValue("moves", fmt.Sprintf("%d committed / %d tried", result.Stats.Committed, result.Stats.Trials))
	if result.Stats.RestoredBest {
		printDetail("restored best checkpoint")
	}
	if result.Stats.Cancelled {
		printWarning("run cancelled; result is the best state seen so far")
	}
}

// defaultFloat returns v, or fallback when v is zero.
func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// seedPlacement fills an empty state with a deterministic first-fit
// placement: macros first (every member site must exist, accept its block,
// and be free), then single blocks onto the first free compatible site.
func seedPlacement(st *place.State) error {
	grid := st.Grid()
	nl := st.Netlist()

	for m := 0; m < st.NumMacros(); m++ {
		if err := seedMacro(st, place.MacroID(m)); err != nil {
			return err
		}
	}

	for i := 0; i < nl.NumBlocks(); i++ {
		b := netlist.BlockID(i)
		if st.SiteOf(b) != device.NoSite {
			continue
		}
		typ := nl.Block(b).Type
		placed := false
		for s := 0; s < grid.NumSites(); s++ {
			site := device.SiteID(s)
			if st.BlockAt(site) != netlist.NoBlock || !grid.Site(site).Accepts(typ) {
				continue
			}
			if err := st.Place(b, site); err != nil {
				return err
			}
			placed = true
			break
		}
		if !placed {
			return errors.New(errors.ErrCodeInvalidPlacement,
				"no free site accepts block %q (type %q)", nl.Block(b).Name, typ)
		}
	}
	return st.Verify()
}

// seedMacro places one macro at the first head site where the whole shape
// fits.
func seedMacro(st *place.State, id place.MacroID) error {
	grid := st.Grid()
	nl := st.Netlist()
	macro := st.Macro(id)

	for s := 0; s < grid.NumSites(); s++ {
		head := grid.Site(device.SiteID(s)).Loc
		fits := true
		sites := make([]device.SiteID, len(macro.Members))
		for i, mem := range macro.Members {
			site, ok := grid.SiteAt(place.Add(head, mem.Offset))
			if !ok || st.BlockAt(site) != netlist.NoBlock ||
				!grid.Site(site).Accepts(nl.Block(mem.Block).Type) {
				fits = false
				break
			}
			sites[i] = site
		}
		if !fits {
			continue
		}
		for i, mem := range macro.Members {
			if err := st.Place(mem.Block, sites[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.New(errors.ErrCodeMacroViolation, "no placement fits macro %d (%d members)", id, len(macro.Members))
}
