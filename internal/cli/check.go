package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	placeio "github.com/matzehuels/placemat/pkg/io"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/netcost"
	"github.com/matzehuels/placemat/pkg/place/noccost"
)

// checkOpts holds the command-line flags for the check command.
type checkOpts struct {
	design    string
	device    string
	placement string
	noc       bool
}

// newCheckCmd creates the check command, which validates a placement file
// against the engine invariants and reports its costs.
func newCheckCmd() *cobra.Command {
	var opts checkOpts

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a placement against its design and device",
		Long: `Verify that a placement file satisfies the placement invariants
(exclusive compatible occupancy, macro shape preservation, map consistency)
and report its costs.

Examples:
  placemat check -d design.json -g device.json -p placed.json
  placemat check -d design.json -g device.json -p placed.json --noc`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runCheck(c.Context(), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.design, "design", "d", "", "design JSON file (required)")
	cmd.Flags().StringVarP(&opts.device, "device", "g", "", "device JSON file (required)")
	cmd.Flags().StringVarP(&opts.placement, "placement", "p", "", "placement JSON file (required)")
	cmd.Flags().BoolVar(&opts.noc, "noc", false, "also check NoC routing and report NoC terms")
	_ = cmd.MarkFlagRequired("design")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("placement")

	return cmd
}

func runCheck(ctx context.Context, opts *checkOpts) error {
	design, err := placeio.ReadDesignFile(opts.design)
	if err != nil {
		return err
	}
	grid, err := placeio.ReadDeviceFile(opts.device)
	if err != nil {
		return err
	}
	st, err := placeio.ReadPlacementFile(design.Netlist, grid, opts.placement)
	if err != nil {
		printError("Placement invalid: %v", err)
		return err
	}

	if err := st.Verify(); err != nil {
		printError("Invariant violation: %v", err)
		return err
	}

	bb := netcost.New(st)
	cost := bb.ComputeFull(place.CostNormal)

	printSuccess("Placement is valid")
	printKeyValue("blocks", fmt.Sprintf("%d", design.Netlist.NumBlocks()))
	printKeyValue("nets", fmt.Sprintf("%d", design.Netlist.NumNets()))
	printKeyValue("bb cost", fmt.Sprintf("%.4g", cost))

	if opts.noc && len(design.Flows) > 0 {
		noc := noccost.New(st, noccost.Config{LinkBandwidth: 1, LinkLatency: 1, RouterLatency: 1}, design.Flows)
		terms := noc.ComputeFull(place.CostNormal)
		if err := noc.CheckRoutingCycle(); err != nil {
			printError("NoC routing cycle: %v", err)
			return err
		}
		printKeyValue("noc bandwidth", fmt.Sprintf("%.4g", terms.AggregateBandwidth))
		printKeyValue("noc latency", fmt.Sprintf("%.4g", terms.Latency))
		printKeyValue("noc congestion", fmt.Sprintf("%.4g", terms.Congestion))
	}
	return nil
}
