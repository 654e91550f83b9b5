package solver

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// triplet is one (row, col, value) contribution to the system matrix.
// Duplicate coordinates accumulate, matching the usual sparse-assembly
// convention.
type triplet struct {
	row, col int
	val      float64
}

// csr is a compressed sparse row matrix with a fast diagonal index, used for
// the symmetric positive semi-definite placement systems.
type csr struct {
	n      int
	rowPtr []int
	colIdx []int
	vals   []float64
	diag   []int // index into vals of each row's diagonal entry
}

// newCSR assembles a CSR matrix of dimension n from triplets, accumulating
// duplicates and guaranteeing a (possibly zero) diagonal entry per row so
// pseudo-anchor increments are O(1).
func newCSR(n int, trips []triplet) *csr {
	type entry struct {
		col int
		val float64
	}
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = map[int]float64{i: 0}
	}
	for _, t := range trips {
		rows[t.row][t.col] += t.val
	}

	m := &csr{
		n:      n,
		rowPtr: make([]int, n+1),
		diag:   make([]int, n),
	}
	for i, r := range rows {
		cols := make([]entry, 0, len(r))
		for c, v := range r {
			cols = append(cols, entry{col: c, val: v})
		}
		sort.Slice(cols, func(a, b int) bool { return cols[a].col < cols[b].col })
		for _, e := range cols {
			if e.col == i {
				m.diag[i] = len(m.vals)
			}
			m.colIdx = append(m.colIdx, e.col)
			m.vals = append(m.vals, e.val)
		}
		m.rowPtr[i+1] = len(m.vals)
	}
	return m
}

// clone deep-copies the matrix so per-iteration anchor increments never
// alias the immutable base system.
func (m *csr) clone() *csr {
	return &csr{
		n:      m.n,
		rowPtr: m.rowPtr, // structure is shared; only vals mutate
		colIdx: m.colIdx,
		vals:   append([]float64(nil), m.vals...),
		diag:   m.diag,
	}
}

// addDiag adds v to the diagonal entry of row i.
func (m *csr) addDiag(i int, v float64) {
	m.vals[m.diag[i]] += v
}

// mulVec computes dst = M * x.
func (m *csr) mulVec(dst, x []float64) {
	for i := 0; i < m.n; i++ {
		sum := 0.0
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			sum += m.vals[k] * x[m.colIdx[k]]
		}
		dst[i] = sum
	}
}

// nonzeros returns the stored entry count.
func (m *csr) nonzeros() int { return len(m.vals) }

// cgResult reports the outcome of one conjugate-gradient solve.
type cgResult struct {
	iterations int
	converged  bool
}

// conjugateGradient solves M x = b for symmetric positive semi-definite M
// with Jacobi preconditioning, writing the solution into x (which also
// provides the starting guess). Convergence is declared when the residual
// norm falls below tol relative to the right-hand side norm.
func conjugateGradient(m *csr, b, x []float64, tol float64, maxIter int) cgResult {
	n := m.n
	inv := make([]float64, n)
	for i := 0; i < n; i++ {
		d := m.vals[m.diag[i]]
		if d > 0 {
			inv[i] = 1 / d
		} else {
			inv[i] = 1
		}
	}

	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	m.mulVec(r, x)
	floats.Scale(-1, r)
	floats.Add(r, b)

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		bnorm = 1
	}
	target := tol * bnorm

	floats.MulTo(z, inv, r)
	copy(p, z)
	rz := floats.Dot(r, z)

	for iter := 0; iter < maxIter; iter++ {
		if floats.Norm(r, 2) <= target {
			return cgResult{iterations: iter, converged: true}
		}
		m.mulVec(ap, p)
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			// Search direction fell into the matrix null space; the current
			// iterate is as good as this system gets.
			return cgResult{iterations: iter, converged: floats.Norm(r, 2) <= target}
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		floats.MulTo(z, inv, r)
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return cgResult{iterations: maxIter, converged: floats.Norm(r, 2) <= target}
}
