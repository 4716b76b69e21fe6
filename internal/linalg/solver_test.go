package linalg

import (
	"errors"
	"math"
	"testing"
)

// poisson1D assembles the tridiagonal [-1 2 -1] matrix.
func poisson1D(n int) *CSR {
	t := NewTriplet(n, 3*n)
	for i := 0; i < n; i++ {
		t.Put(i, i, 1)
		t.Put(i, i, 1)
		if i > 0 {
			t.Put(i, i-1, -1)
		}
		if i < n-1 {
			t.Put(i, i+1, -1)
		}
	}
	return t.ToCSR()
}

func TestTripletSumsDuplicates(t *testing.T) {
	a := poisson1D(4)
	if got := a.At(2, 2); got != 2 {
		t.Errorf("A[2,2] = %v, want 2", got)
	}
	if got := a.NNZ(); got != 10 {
		t.Errorf("nnz = %d, want 10", got)
	}
}

func TestSolversAgree(t *testing.T) {
	const n = 20
	a := poisson1D(n)
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}

	solvers := []struct {
		name string
		s    LinSol
	}{
		{"cg", NewCG(1e-10, 200, NoPreconditioner)},
		{"cg_diagonal", NewCG(1e-10, 200, Diagonal)},
		{"bicgstab", NewBiCGSTAB(1e-10, 200, Diagonal)},
		{"lu", NewLU()},
	}

	for _, tt := range solvers {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Init(a); err != nil {
				t.Fatal(err)
			}
			if err := tt.s.Fact(); err != nil {
				t.Fatal(err)
			}
			x := make([]float64, n)
			if err := tt.s.Solve(x, b); err != nil {
				t.Fatal(err)
			}

			// exact solution of the discrete problem: x_i = (i+1)(n-i)/2
			for i := range x {
				want := float64((i+1)*(n-i)) / 2
				if math.Abs(x[i]-want) > 1e-6*want {
					t.Fatalf("x[%d] = %v, want %v", i, x[i], want)
				}
			}
		})
	}
}

func TestSolveBeforeFact(t *testing.T) {
	s := NewCG(1e-8, 10, Diagonal)
	if err := s.Solve(make([]float64, 1), make([]float64, 1)); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestLUSingular(t *testing.T) {
	tr := NewTriplet(2, 4)
	tr.Put(0, 0, 1)
	tr.Put(0, 1, 1)
	tr.Put(1, 0, 1)
	tr.Put(1, 1, 1)

	lu := NewLU()
	lu.Init(tr.ToCSR())
	if err := lu.Fact(); !errors.Is(err, ErrSingular) {
		t.Errorf("err = %v, want ErrSingular", err)
	}
}

func TestCGIterationLimit(t *testing.T) {
	a := poisson1D(50)
	b := make([]float64, 50)
	b[0] = 1

	s := NewCG(1e-14, 2, NoPreconditioner)
	s.Init(a)
	s.Fact()
	err := s.Solve(make([]float64, 50), b)
	if !errors.Is(err, ErrNoConvergence) {
		t.Errorf("err = %v, want ErrNoConvergence", err)
	}
}
