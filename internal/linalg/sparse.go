// Package linalg holds the sparse storage and linear solvers used by the
// reference strategies.
package linalg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplet accumulates (i, j, x) entries. Repeated entries are summed when
// converted to CSR.
type Triplet struct {
	n    int
	i, j []int
	x    []float64
}

func NewTriplet(n, capacity int) *Triplet {
	return &Triplet{
		n: n,
		i: make([]int, 0, capacity),
		j: make([]int, 0, capacity),
		x: make([]float64, 0, capacity),
	}
}

func (t *Triplet) Size() int { return t.n }
func (t *Triplet) Len() int  { return len(t.x) }

// Put adds x to entry (i, j).
func (t *Triplet) Put(i, j int, x float64) {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		panic(fmt.Sprintf("linalg: entry (%d,%d) outside %dx%d matrix", i, j, t.n, t.n))
	}
	t.i = append(t.i, i)
	t.j = append(t.j, j)
	t.x = append(t.x, x)
}

// Reset drops all entries and keeps the capacity.
func (t *Triplet) Reset() {
	t.i, t.j, t.x = t.i[:0], t.j[:0], t.x[:0]
}

// CSR is a square matrix in compressed sparse row form.
type CSR struct {
	N      int
	RowPtr []int
	ColIdx []int
	Val    []float64
}

// ToCSR compresses the triplet, summing duplicates.
func (t *Triplet) ToCSR() *CSR {
	rows := make([]map[int]float64, t.n)
	for k := range t.x {
		r := rows[t.i[k]]
		if r == nil {
			r = make(map[int]float64)
			rows[t.i[k]] = r
		}
		r[t.j[k]] += t.x[k]
	}

	m := &CSR{N: t.n, RowPtr: make([]int, t.n+1)}
	for i, r := range rows {
		cols := make([]int, 0, len(r))
		for j := range r {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		for _, j := range cols {
			m.ColIdx = append(m.ColIdx, j)
			m.Val = append(m.Val, r[j])
		}
		m.RowPtr[i+1] = len(m.ColIdx)
	}
	return m
}

// MulVec computes y = A x.
func (m *CSR) MulVec(y, x []float64) {
	for i := 0; i < m.N; i++ {
		var s float64
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			s += m.Val[k] * x[m.ColIdx[k]]
		}
		y[i] = s
	}
}

// At returns entry (i, j).
func (m *CSR) At(i, j int) float64 {
	for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
		if m.ColIdx[k] == j {
			return m.Val[k]
		}
	}
	return 0
}

func (m *CSR) Diagonal() []float64 {
	d := make([]float64, m.N)
	for i := range d {
		d[i] = m.At(i, i)
	}
	return d
}

func (m *CSR) NNZ() int { return len(m.Val) }

// Dense expands the matrix for direct factorization.
func (m *CSR) Dense() *mat.Dense {
	if m.N == 0 {
		return nil
	}
	d := mat.NewDense(m.N, m.N, nil)
	for i := 0; i < m.N; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			d.Set(i, m.ColIdx[k], m.Val[k])
		}
	}
	return d
}
