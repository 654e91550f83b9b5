// Package io reads and writes placement artifacts.
//
// The on-disk format is a JSON block-to-site mapping, deterministic (blocks
// sorted by name) so placements diff cleanly between runs. Reading validates
// the mapping against the netlist and grid and produces a legal placement
// state or a validation error.
package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/matzehuels/placemat/pkg/device"
	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/place"
)

// =============================================================================
// Placement Serialization API
// =============================================================================

// Entry is one block-to-site assignment in the serialized form.
type Entry struct {
	Block string     `json:"block"`
	Loc   device.Loc `json:"loc"`
}

// Placement is the serialized placement document.
type Placement struct {
	Entries []Entry `json:"placement"`
}

// MarshalPlacement converts a placement state to JSON bytes.
// Entries are sorted by block name for deterministic output.
func MarshalPlacement(st *place.State) ([]byte, error) {
	var buf bytes.Buffer
	if err := writePlacementTo(st, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePlacementFile writes a placement state to a JSON file.
// The file is created with 0644 permissions.
func WritePlacementFile(st *place.State, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return writePlacementTo(st, f)
}

// WritePlacement writes a placement state as JSON to an io.Writer.
func WritePlacement(st *place.State, w io.Writer) error {
	return writePlacementTo(st, w)
}

// ReadPlacementFile reads a JSON placement file and loads it into a fresh
// state over the given netlist and grid.
func ReadPlacementFile(nl *netlist.Netlist, grid *device.Grid, path string) (*place.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadPlacement(nl, grid, f)
}

// ReadPlacement decodes a JSON placement and loads it into a fresh state,
// validating legality (known blocks, existing compatible sites, exclusive
// occupancy) as it goes.
func ReadPlacement(nl *netlist.Netlist, grid *device.Grid, r io.Reader) (*place.State, error) {
	var doc Placement
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	byName := make(map[string]netlist.BlockID, nl.NumBlocks())
	for i := 0; i < nl.NumBlocks(); i++ {
		byName[nl.Block(netlist.BlockID(i)).Name] = netlist.BlockID(i)
	}

	st := place.New(nl, grid)
	for _, e := range doc.Entries {
		blk, ok := byName[e.Block]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidPlacement, "unknown block %q", e.Block)
		}
		site, ok := grid.SiteAt(e.Loc)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidPlacement,
				"block %q placed on missing site %+v", e.Block, e.Loc)
		}
		if err := st.Place(blk, site); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// =============================================================================
// Internal Implementation
// =============================================================================

func writePlacementTo(st *place.State, w io.Writer) error {
	nl := st.Netlist()
	doc := Placement{Entries: make([]Entry, 0, nl.NumBlocks())}
	for i := 0; i < nl.NumBlocks(); i++ {
		b := netlist.BlockID(i)
		if st.SiteOf(b) == device.NoSite {
			continue
		}
		doc.Entries = append(doc.Entries, Entry{
			Block: nl.Block(b).Name,
			Loc:   st.LocOf(b),
		})
	}
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].Block < doc.Entries[j].Block })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
