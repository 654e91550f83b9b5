// Package device provides the device-grid view consumed by the placement
// engine: enumerable sites with type compatibility, plus a per-type
// compressed coordinate index for windowed destination sampling.
//
// The grid is built once from the architecture description (an external
// collaborator) and is immutable during placement. Like the netlist, sites
// live in an arena slice and are referenced by SiteID handles.
package device

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sort"
)

var (
	// ErrDuplicateSite is returned by [Grid.AddSite] when a site already
	// exists at the given location.
	ErrDuplicateSite = errors.New("duplicate site location")

	// ErrNotBuilt is returned by methods that require [Grid.Build] to have
	// been called first.
	ErrNotBuilt = errors.New("grid index not built")
)

// SiteID is a stable handle to a site in the grid arena.
type SiteID int

// NoSite is the null site handle.
const NoSite SiteID = -1

// Loc is a device-grid coordinate: column, row, die layer, and sub-tile slot
// within the physical tile.
type Loc struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Layer int `json:"layer"`
	Sub   int `json:"sub"`
}

// Site is one placeable location. A site accepts exactly the block types
// listed in Types; occupancy (at most one block per site) is tracked by
// pkg/place, not here.
type Site struct {
	Loc   Loc
	Types []string
}

// Accepts reports whether the site can host a block of the given type.
func (s Site) Accepts(typ string) bool {
	return slices.Contains(s.Types, typ)
}

// Grid is the device view: the site arena plus lookup indexes.
//
// The zero value is not usable - use New, add sites, then call Build before
// handing the grid to the engine.
type Grid struct {
	width  int
	height int
	layers int

	sites []Site
	byLoc map[Loc]SiteID

	compressed map[string]*Compressed
	built      bool
}

// New creates an empty grid with the given dimensions.
func New(width, height, layers int) *Grid {
	return &Grid{
		width:  width,
		height: height,
		layers: layers,
		byLoc:  make(map[Loc]SiteID),
	}
}

// AddSite appends a site to the arena and returns its handle.
func (g *Grid) AddSite(loc Loc, types ...string) (SiteID, error) {
	if _, ok := g.byLoc[loc]; ok {
		return NoSite, ErrDuplicateSite
	}
	g.sites = append(g.sites, Site{Loc: loc, Types: types})
	id := SiteID(len(g.sites) - 1)
	g.byLoc[loc] = id
	g.built = false
	return id, nil
}

// Build constructs the per-type compressed coordinate indexes. Must be called
// after the last AddSite and before any sampling.
func (g *Grid) Build() {
	g.compressed = make(map[string]*Compressed)
	for id, s := range g.sites {
		for _, typ := range s.Types {
			c, ok := g.compressed[typ]
			if !ok {
				c = newCompressed(g.layers)
				g.compressed[typ] = c
			}
			c.add(SiteID(id), s.Loc)
		}
	}
	for _, c := range g.compressed {
		c.build()
	}
	g.built = true
}

// Dims returns the grid width, height, and layer count.
func (g *Grid) Dims() (width, height, layers int) {
	return g.width, g.height, g.layers
}

// MaxDim returns the larger of the grid width and height. Used to initialize
// and clamp the annealer range limit.
func (g *Grid) MaxDim() int {
	return max(g.width, g.height)
}

// NumSites returns the number of sites in the arena.
func (g *Grid) NumSites() int { return len(g.sites) }

// Site returns the site record for a handle.
func (g *Grid) Site(id SiteID) Site { return g.sites[id] }

// SiteAt returns the site at loc, or NoSite if the location is empty.
func (g *Grid) SiteAt(loc Loc) (SiteID, bool) {
	id, ok := g.byLoc[loc]
	if !ok {
		return NoSite, false
	}
	return id, true
}

// Compressed returns the compressed index for a block type, or nil if no
// site accepts that type.
func (g *Grid) Compressed(typ string) *Compressed {
	if !g.built {
		return nil
	}
	return g.compressed[typ]
}

// =============================================================================
// Compressed per-type index
// =============================================================================

// Compressed is the type-filtered coordinate space for one block type: per
// layer, the sorted columns that contain at least one compatible site, and
// per column the sorted rows. Windowed sampling operates on column/row
// indices in this space, so a range limit of r means "within r compatible
// columns/rows", skipping grid positions the type cannot use.
type Compressed struct {
	layers []compressedLayer
}

type siteRef struct {
	id  SiteID
	sub int
}

type compressedLayer struct {
	cols []int
	rows map[int][]int        // x -> sorted distinct y
	subs map[[2]int][]siteRef // (x, y) -> compatible sites with their sub slots
}

func newCompressed(layers int) *Compressed {
	c := &Compressed{layers: make([]compressedLayer, layers)}
	for i := range c.layers {
		c.layers[i].rows = make(map[int][]int)
		c.layers[i].subs = make(map[[2]int][]siteRef)
	}
	return c
}

func (c *Compressed) add(id SiteID, loc Loc) {
	l := &c.layers[loc.Layer]
	key := [2]int{loc.X, loc.Y}
	if len(l.subs[key]) == 0 {
		l.rows[loc.X] = append(l.rows[loc.X], loc.Y)
	}
	l.subs[key] = append(l.subs[key], siteRef{id: id, sub: loc.Sub})
}

func (c *Compressed) build() {
	for i := range c.layers {
		l := &c.layers[i]
		l.cols = l.cols[:0]
		for x := range l.rows {
			l.cols = append(l.cols, x)
			sort.Ints(l.rows[x])
		}
		sort.Ints(l.cols)
	}
}

// NumSitesOnLayer returns the number of compatible (x, y) positions on a layer.
func (c *Compressed) NumSitesOnLayer(layer int) int {
	n := 0
	for _, rows := range c.layers[layer].rows {
		n += len(rows)
	}
	return n
}

// nearestIndex returns the index in sorted vals whose value is closest to v.
func nearestIndex(vals []int, v int) int {
	i := sort.SearchInts(vals, v)
	if i == len(vals) {
		return len(vals) - 1
	}
	if i > 0 && v-vals[i-1] <= vals[i]-v {
		return i - 1
	}
	return i
}

// Sample picks a destination uniformly at random within a window of
// half-width rlim (in compressed column/row indices) centered on from. The
// destination layer is chosen uniformly among layers that contain compatible
// sites, so the window is cubic across device layers. Returns false when no
// compatible site exists anywhere.
//
// The Chebyshev distance between source and destination in compressed
// coordinate space never exceeds rlim.
func (c *Compressed) Sample(rng *rand.Rand, from Loc, rlim int) (Loc, bool) {
	if rlim < 1 {
		rlim = 1
	}

	var candidates []int
	for i := range c.layers {
		if len(c.layers[i].cols) > 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return Loc{}, false
	}
	layer := candidates[rng.IntN(len(candidates))]
	l := &c.layers[layer]

	ci := nearestIndex(l.cols, from.X)
	clo := max(0, ci-rlim)
	chi := min(len(l.cols)-1, ci+rlim)
	x := l.cols[clo+rng.IntN(chi-clo+1)]

	rows := l.rows[x]
	ri := nearestIndex(rows, from.Y)
	rlo := max(0, ri-rlim)
	rhi := min(len(rows)-1, ri+rlim)
	y := rows[rlo+rng.IntN(rhi-rlo+1)]

	subs := l.subs[[2]int{x, y}]
	ref := subs[rng.IntN(len(subs))]
	return Loc{X: x, Y: y, Layer: layer, Sub: ref.sub}, true
}

// SiteAt returns the compatible site at the given location, if any.
func (c *Compressed) SiteAt(loc Loc) (SiteID, bool) {
	l := &c.layers[loc.Layer]
	for _, ref := range l.subs[[2]int{loc.X, loc.Y}] {
		if ref.sub == loc.Sub {
			return ref.id, true
		}
	}
	return NoSite, false
}
