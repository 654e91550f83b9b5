// Package solver implements the analytical (global) placement solver.
//
// The netlist's connectivity is lowered once into a sparse symmetric
// positive semi-definite system: nets with two or three pins become cliques
// with weight 1/(P-1); larger nets get a synthetic star node with weight
// P/(P-1), the FastPlace hybrid formulation. Fixed blocks contribute to the
// right-hand side instead of the matrix. Each iteration after the first adds
// an exponentially growing pseudo-anchor pulling every moveable block toward
// its previous (externally legalized) position, trading global optimality
// for convergence to a legal-ish layout. The x and y systems are solved
// independently with Jacobi-preconditioned conjugate gradient.
//
// The solver works purely on continuous coordinates; it never consults
// discrete sites. Legalization between iterations is the caller's concern.
package solver

import (
	"context"
	"math"
	"time"

	"github.com/matzehuels/placemat/pkg/errors"
	"github.com/matzehuels/placemat/pkg/netlist"
	"github.com/matzehuels/placemat/pkg/observability"
	"github.com/matzehuels/placemat/pkg/place"
)

const (
	defaultTolerance = 1e-10
	anchorBase       = 0.01
	anchorRate       = 5.0
)

// AnchorWeight returns the pseudo-anchor diagonal weight for iteration k:
// 0.01 * exp(k/5). Strictly increasing in k, so later iterations bind ever
// tighter to the previous solution.
func AnchorWeight(k int) float64 {
	return anchorBase * math.Exp(float64(k)/anchorRate)
}

// Placement is the continuous per-moveable-block position worked on by the
// analytical phase, independent of the discrete placement state. Indexing
// follows the solver's dense moveable order.
type Placement struct {
	X []float64
	Y []float64
}

// Solver builds the linear system once and reuses it across iterations.
type Solver struct {
	nl *netlist.Netlist

	nodeOf      []int             // block -> dense moveable index, -1 for fixed
	blocks      []netlist.BlockID // dense moveable index -> block
	fixedX      []float64         // block -> fixed x (fixed blocks only)
	fixedY      []float64
	numMoveable int
	numStar     int

	base *csr
	bx   []float64
	by   []float64

	tolerance float64
	maxIter   int
}

// New creates a solver over the netlist, reading fixed-block anchor
// positions from the given discrete state. Fixed blocks never move, so their
// coordinates are captured once.
func New(st *place.State) *Solver {
	nl := st.Netlist()
	s := &Solver{
		nl:        nl,
		nodeOf:    make([]int, nl.NumBlocks()),
		fixedX:    make([]float64, nl.NumBlocks()),
		fixedY:    make([]float64, nl.NumBlocks()),
		tolerance: defaultTolerance,
	}
	for i := 0; i < nl.NumBlocks(); i++ {
		b := netlist.BlockID(i)
		if nl.Block(b).Moveable {
			s.nodeOf[i] = len(s.blocks)
			s.blocks = append(s.blocks, b)
		} else {
			s.nodeOf[i] = -1
			loc := st.LocOf(b)
			s.fixedX[i] = float64(loc.X)
			s.fixedY[i] = float64(loc.Y)
		}
	}
	s.numMoveable = len(s.blocks)
	return s
}

// NumMoveable returns the dense moveable block count.
func (s *Solver) NumMoveable() int { return s.numMoveable }

// Blocks returns the dense-index → block mapping.
func (s *Solver) Blocks() []netlist.BlockID { return s.blocks }

// NewPlacement seeds a continuous placement from the current discrete sites.
func (s *Solver) NewPlacement(st *place.State) *Placement {
	p := &Placement{
		X: make([]float64, s.numMoveable),
		Y: make([]float64, s.numMoveable),
	}
	for i, b := range s.blocks {
		loc := st.LocOf(b)
		p.X[i] = float64(loc.X)
		p.Y[i] = float64(loc.Y)
	}
	return p
}

// build assembles the base system: one row per moveable block plus one per
// star net. Star nodes are always moveable and occupy the trailing rows.
func (s *Solver) build(ctx context.Context) {
	start := time.Now()
	nl := s.nl

	numStar := 0
	for i := 0; i < nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if nl.Net(net).Ignored {
			continue
		}
		if nl.Fanout(net) > 3 {
			numStar++
		}
	}
	s.numStar = numStar

	n := s.numMoveable + numStar
	s.bx = make([]float64, n)
	s.by = make([]float64, n)
	var trips []triplet

	starOffset := 0
	for i := 0; i < nl.NumNets(); i++ {
		net := netlist.NetID(i)
		if nl.Net(net).Ignored {
			continue
		}
		pins := nl.Fanout(net)
		if pins > 3 {
			w := float64(pins) / float64(pins-1)
			star := s.numMoveable + starOffset
			starOffset++
			for pin := 0; pin < pins; pin++ {
				blk := nl.PinBlock(net, pin)
				if node := s.nodeOf[blk]; node >= 0 {
					trips = append(trips,
						triplet{star, star, w},
						triplet{node, node, w},
						triplet{star, node, -w},
						triplet{node, star, -w},
					)
				} else {
					trips = append(trips, triplet{star, star, w})
					s.bx[star] += w * s.fixedX[blk]
					s.by[star] += w * s.fixedY[blk]
				}
			}
			continue
		}

		w := 1.0 / float64(pins-1)
		for ip := 0; ip < pins; ip++ {
			for jp := ip + 1; jp < pins; jp++ {
				firstBlk := nl.PinBlock(net, ip)
				secondBlk := nl.PinBlock(net, jp)
				first, second := s.nodeOf[firstBlk], s.nodeOf[secondBlk]
				// Keep the moveable endpoint first; fixed-fixed pairs
				// contribute nothing.
				if first < 0 {
					if second < 0 {
						continue
					}
					first, second = second, first
					firstBlk, secondBlk = secondBlk, firstBlk
				}
				if second >= 0 {
					trips = append(trips,
						triplet{first, first, w},
						triplet{second, second, w},
						triplet{first, second, -w},
						triplet{second, first, -w},
					)
				} else {
					trips = append(trips, triplet{first, first, w})
					s.bx[first] += w * s.fixedX[secondBlk]
					s.by[first] += w * s.fixedY[secondBlk]
				}
			}
		}
	}

	s.base = newCSR(n, trips)
	if s.maxIter == 0 {
		s.maxIter = max(1000, 10*n)
	}
	observability.Solver().OnSystemBuilt(ctx, n, s.base.nonzeros(), time.Since(start))
}

// Solve runs one analytical iteration. Iteration 0 solves the bare
// connectivity system; every later iteration adds the pseudo-anchor pull
// toward the positions currently in p. Solved coordinates are written back
// to p for the moveable rows only; star-node rows are solver-internal.
func (s *Solver) Solve(ctx context.Context, iteration int, p *Placement) error {
	if s.base == nil {
		s.build(ctx)
	}
	start := time.Now()

	m := s.base.clone()
	bx := append([]float64(nil), s.bx...)
	by := append([]float64(nil), s.by...)

	if iteration > 0 {
		w := AnchorWeight(iteration)
		for i := 0; i < s.numMoveable; i++ {
			m.addDiag(i, w)
			bx[i] += w * p.X[i]
			by[i] += w * p.Y[i]
		}
	}
	for i := range bx {
		if math.IsNaN(bx[i]) || math.IsInf(bx[i], 0) || math.IsNaN(by[i]) || math.IsInf(by[i], 0) {
			err := errors.New(errors.ErrCodeSolverDivergence,
				"non-finite right-hand side at row %d (iteration %d)", i, iteration)
			observability.Solver().OnSolveComplete(ctx, iteration, 0, time.Since(start), err)
			return err
		}
	}

	x := make([]float64, m.n)
	y := make([]float64, m.n)
	copy(x, p.X)
	copy(y, p.Y)

	resX := conjugateGradient(m, bx, x, s.tolerance, s.maxIter)
	if !resX.converged {
		err := errors.New(errors.ErrCodeSolverDivergence,
			"conjugate gradient did not converge on x system (iteration %d, %d iterations)",
			iteration, resX.iterations)
		observability.Solver().OnSolveComplete(ctx, iteration, resX.iterations, time.Since(start), err)
		return err
	}
	resY := conjugateGradient(m, by, y, s.tolerance, s.maxIter)
	if !resY.converged {
		err := errors.New(errors.ErrCodeSolverDivergence,
			"conjugate gradient did not converge on y system (iteration %d, %d iterations)",
			iteration, resY.iterations)
		observability.Solver().OnSolveComplete(ctx, iteration, resY.iterations, time.Since(start), err)
		return err
	}

	copy(p.X, x[:s.numMoveable])
	copy(p.Y, y[:s.numMoveable])
	observability.Solver().OnSolveComplete(ctx, iteration, resX.iterations+resY.iterations, time.Since(start), nil)
	return nil
}
