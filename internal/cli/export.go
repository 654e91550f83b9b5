package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	placeio "github.com/matzehuels/placemat/pkg/io"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/netcost"
	"github.com/matzehuels/placemat/pkg/place/noccost"
)

// exportOpts holds the command-line flags for the export command.
type exportOpts struct {
	design    string
	device    string
	placement string
	output    string
	noc       bool
}

// exportReport is the machine-readable cost report written by export.
type exportReport struct {
	Design    string      `json:"design"`
	Device    string      `json:"device"`
	Placement string      `json:"placement"`
	Blocks    int         `json:"blocks"`
	Nets      int         `json:"nets"`
	Macros    int         `json:"macros"`
	Costs     place.Costs `json:"costs"`
}

// newExportCmd creates the export command, which computes the cost terms of
// an existing placement and writes them as a JSON report for downstream
// tooling.
func newExportCmd() *cobra.Command {
	var opts exportOpts

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a placement's cost report as JSON",
		Long: `Compute the cost terms of an existing placement and write a
machine-readable JSON report.

Examples:
  placemat export -d design.json -g device.json -p placed.json -o report.json
  placemat export -d design.json -g device.json -p placed.json --noc`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runExport(c.Context(), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.design, "design", "d", "", "design JSON file (required)")
	cmd.Flags().StringVarP(&opts.device, "device", "g", "", "device JSON file (required)")
	cmd.Flags().StringVarP(&opts.placement, "placement", "p", "", "placement JSON file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "report.json", "output report file")
	cmd.Flags().BoolVar(&opts.noc, "noc", false, "include NoC terms over the design's traffic flows")
	_ = cmd.MarkFlagRequired("design")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("placement")

	return cmd
}

func runExport(ctx context.Context, opts *exportOpts) error {
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
		return err
	}
	if err := st.Verify(); err != nil {
		printError("Invariant violation: %v", err)
		return err
	}

	report := exportReport{
		Design:    opts.design,
		Device:    opts.device,
		Placement: opts.placement,
		Blocks:    design.Netlist.NumBlocks(),
		Nets:      design.Netlist.NumNets(),
		Macros:    st.NumMacros(),
	}

	bb := netcost.New(st)
	report.Costs.BB = bb.ComputeFull(place.CostNormal)

	if opts.noc && len(design.Flows) > 0 {
		noc := noccost.New(st, noccost.Config{LinkBandwidth: 1, LinkLatency: 1, RouterLatency: 1}, design.Flows)
		report.Costs.Noc = noc.ComputeFull(place.CostNormal)
		if err := noc.CheckRoutingCycle(); err != nil {
			printError("NoC routing cycle: %v", err)
			return err
		}
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.output, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	printSuccess("Exported cost report")
	printFile(opts.output)
	return nil
}
