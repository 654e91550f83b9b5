package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
	"github.com/matzehuels/placemat/pkg/place/noccost"
)

// =============================================================================
// Design Serialization API
// =============================================================================

// DesignBlock is one block declaration in the design document.
type DesignBlock struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Fixed blocks keep their seed location through the whole pipeline.
	Fixed bool `json:"fixed,omitempty"`
}

// DesignPin is one net connection point.
type DesignPin struct {
	Block  string `json:"block"`
	Driver bool   `json:"driver,omitempty"`
}

// DesignNet is one net declaration: a name and its pins.
type DesignNet struct {
	Name string      `json:"name"`
	Pins []DesignPin `json:"pins"`
	// Ignored nets carry no placement cost (clocks, resets).
	Ignored bool `json:"ignored,omitempty"`
}

// DesignMacroMember binds a block into a macro at a fixed offset from the
// macro head.
type DesignMacroMember struct {
	Block  string     `json:"block"`
	Offset device.Loc `json:"offset"`
}

// DesignMacro is one rigid block group. The first member is the head and
// must carry a zero offset.
type DesignMacro struct {
	Members []DesignMacroMember `json:"members"`
}

// DesignFlow is one NoC traffic stream between logical router blocks.
type DesignFlow struct {
	Src        string  `json:"src"`
	Dst        string  `json:"dst"`
	Bandwidth  float64 `json:"bandwidth"`
	MaxLatency float64 `json:"max_latency,omitempty"`
}

// DesignDoc is the serialized design: blocks, nets, and optional macros and
// NoC traffic flows.
type DesignDoc struct {
	Blocks []DesignBlock `json:"blocks"`
	Nets   []DesignNet   `json:"nets"`
	Macros []DesignMacro `json:"macros,omitempty"`
	Flows  []DesignFlow  `json:"flows,omitempty"`
}

// Design is a loaded and validated design ready for placement.
type Design struct {
	Netlist *netlist.Netlist
	Flows   []noccost.Flow

	macros []DesignMacro
	byName map[string]netlist.BlockID
}

// BlockByName looks up a block handle by its design name.
func (d *Design) BlockByName(name string) (netlist.BlockID, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// NewState creates a placement state over the design's netlist and the given
// grid, registering the design's macros. Blocks are not yet placed.
func (d *Design) NewState(grid *device.Grid) (*place.State, error) {
	st := place.New(d.Netlist, grid)
	for _, m := range d.macros {
		blocks := make([]netlist.BlockID, len(m.Members))
		offsets := make([]place.Offset, len(m.Members))
		for i, mem := range m.Members {
			id, ok := d.byName[mem.Block]
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidNetlist, "macro member references unknown block %q", mem.Block)
			}
			blocks[i] = id
			offsets[i] = place.Offset{
				X:     mem.Offset.X,
				Y:     mem.Offset.Y,
				Layer: mem.Offset.Layer,
				Sub:   mem.Offset.Sub,
			}
		}
		if _, err := st.AddMacro(blocks, offsets); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// ReadDesignFile reads and validates a JSON design file.
func ReadDesignFile(path string) (*Design, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadDesign(f)
}

// ReadDesign decodes a JSON design document and lowers it into a finalized
// netlist plus macro and flow definitions.
func ReadDesign(r io.Reader) (*Design, error) {
	var doc DesignDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(doc.Blocks) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidNetlist, "design has no blocks")
	}

	nl := netlist.New()
	byName := make(map[string]netlist.BlockID, len(doc.Blocks))
	for _, b := range doc.Blocks {
		if b.Name == "" {
			return nil, errors.New(errors.ErrCodeInvalidNetlist, "block with empty name")
		}
		if _, dup := byName[b.Name]; dup {
			return nil, errors.New(errors.ErrCodeInvalidNetlist, "duplicate block %q", b.Name)
		}
		byName[b.Name] = nl.AddBlock(b.Name, b.Type, !b.Fixed)
	}

	for _, n := range doc.Nets {
		net := nl.AddNet(n.Name)
		for _, p := range n.Pins {
			blk, ok := byName[p.Block]
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidNetlist, "net %q references unknown block %q", n.Name, p.Block)
			}
			if _, err := nl.AddPin(net, blk, p.Driver); err != nil {
				return nil, err
			}
		}
		if n.Ignored {
			if err := nl.SetIgnored(net); err != nil {
				return nil, err
			}
		}
	}
	if err := nl.Finalize(); err != nil {
		return nil, err
	}

	flows := make([]noccost.Flow, 0, len(doc.Flows))
	for _, f := range doc.Flows {
		src, ok := byName[f.Src]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidNetlist, "flow references unknown block %q", f.Src)
		}
		dst, ok := byName[f.Dst]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidNetlist, "flow references unknown block %q", f.Dst)
		}
		flows = append(flows, noccost.Flow{
			Src:        src,
			Dst:        dst,
			Bandwidth:  f.Bandwidth,
			MaxLatency: f.MaxLatency,
		})
	}

	return &Design{
		Netlist: nl,
		Flows:   flows,
		macros:  doc.Macros,
		byName:  byName,
	}, nil
}

// =============================================================================
// Device Serialization API
// =============================================================================

// DeviceSite is one site declaration: a location and the block types it
// accepts.
type DeviceSite struct {
	Loc   device.Loc `json:"loc"`
	Types []string   `json:"types"`
}

// DeviceDoc is the serialized device grid.
type DeviceDoc struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Layers int          `json:"layers"`
	Sites  []DeviceSite `json:"sites"`
}

// ReadDeviceFile reads a JSON device file and builds the grid.
func ReadDeviceFile(path string) (*device.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadDevice(f)
}

// ReadDevice decodes a JSON device document into a built grid.
func ReadDevice(r io.Reader) (*device.Grid, error) {
	var doc DeviceDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.Width <= 0 || doc.Height <= 0 || doc.Layers <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidGrid,
			"device dimensions must be positive (got %dx%dx%d)", doc.Width, doc.Height, doc.Layers)
	}
	grid := device.New(doc.Width, doc.Height, doc.Layers)
	for _, s := range doc.Sites {
		if _, err := grid.AddSite(s.Loc, s.Types...); err != nil {
			return nil, err
		}
	}
	grid.Build()
	return grid, nil
}
