package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotInitialized = errors.New("linalg: solver not initialized")
	ErrSingular       = errors.New("linalg: matrix is singular")
	ErrNoConvergence  = errors.New("linalg: iterative solver did not converge")
	ErrDimension      = errors.New("linalg: dimension mismatch")
)

// LinSol solves A x = b. Init binds the matrix, Fact prepares it and Solve
// may then be called for any number of right-hand sides.
type LinSol interface {
	Init(a *CSR) error
	Fact() error
	Solve(x, b []float64) error
	Clean()
}

// Stats reports the last iterative solve.
type Stats struct {
	Iterations int
	Residual   float64
}

// Preconditioner selects the iterative preconditioner.
type Preconditioner string

const (
	NoPreconditioner Preconditioner = "none"
	Diagonal         Preconditioner = "diagonal"
)

// Krylov is an iterative solver configuration.
type Krylov struct {
	Method         string
	Tolerance      float64
	MaxIterations  int
	Preconditioner Preconditioner

	a     *CSR
	dinv  []float64
	stats Stats
}

func NewCG(tol float64, maxIter int, pc Preconditioner) *Krylov {
	return &Krylov{Method: "cg", Tolerance: tol, MaxIterations: maxIter, Preconditioner: pc}
}

func NewBiCGSTAB(tol float64, maxIter int, pc Preconditioner) *Krylov {
	return &Krylov{Method: "bicgstab", Tolerance: tol, MaxIterations: maxIter, Preconditioner: pc}
}

func (k *Krylov) Init(a *CSR) error {
	if a == nil {
		return ErrNotInitialized
	}
	k.a = a
	k.dinv = nil
	return nil
}

func (k *Krylov) Fact() error {
	if k.a == nil {
		return ErrNotInitialized
	}
	k.dinv = make([]float64, k.a.N)
	for i, d := range k.a.Diagonal() {
		if k.Preconditioner == Diagonal && d != 0 {
			k.dinv[i] = 1 / d
		} else {
			k.dinv[i] = 1
		}
	}
	return nil
}

func (k *Krylov) Clean() {
	k.a = nil
	k.dinv = nil
}

func (k *Krylov) Stats() Stats { return k.stats }

func (k *Krylov) Solve(x, b []float64) error {
	if k.a == nil || k.dinv == nil {
		return ErrNotInitialized
	}
	if len(x) != k.a.N || len(b) != k.a.N {
		return fmt.Errorf("%w: n=%d len(x)=%d len(b)=%d", ErrDimension, k.a.N, len(x), len(b))
	}
	switch k.Method {
	case "cg":
		return k.cg(x, b)
	case "bicgstab":
		return k.bicgstab(x, b)
	default:
		return fmt.Errorf("linalg: unknown krylov method %q", k.Method)
	}
}

func (k *Krylov) precondition(z, r []float64) {
	for i := range r {
		z[i] = k.dinv[i] * r[i]
	}
}

func (k *Krylov) cg(x, b []float64) error {
	n := k.a.N
	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		k.stats = Stats{}
		return nil
	}

	k.a.MulVec(ap, x)
	floats.SubTo(r, b, ap)
	if res := floats.Norm(r, 2) / bnorm; res <= k.Tolerance {
		k.stats = Stats{Residual: res}
		return nil
	}
	k.precondition(z, r)
	copy(p, z)
	rz := floats.Dot(r, z)

	for it := 1; it <= k.MaxIterations; it++ {
		k.a.MulVec(ap, p)
		pap := floats.Dot(p, ap)
		if pap == 0 {
			return ErrSingular
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		res := floats.Norm(r, 2) / bnorm
		k.stats = Stats{Iterations: it, Residual: res}
		if res <= k.Tolerance {
			return nil
		}

		k.precondition(z, r)
		rzNew := floats.Dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return fmt.Errorf("%w: cg residual %.3e after %d iterations", ErrNoConvergence, k.stats.Residual, k.MaxIterations)
}

func (k *Krylov) bicgstab(x, b []float64) error {
	n := k.a.N
	r := make([]float64, n)
	rhat := make([]float64, n)
	p := make([]float64, n)
	v := make([]float64, n)
	s := make([]float64, n)
	t := make([]float64, n)
	phat := make([]float64, n)
	shat := make([]float64, n)

	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		for i := range x {
			x[i] = 0
		}
		k.stats = Stats{}
		return nil
	}

	k.a.MulVec(v, x)
	floats.SubTo(r, b, v)
	if res := floats.Norm(r, 2) / bnorm; res <= k.Tolerance {
		k.stats = Stats{Residual: res}
		return nil
	}
	copy(rhat, r)
	for i := range v {
		v[i] = 0
	}

	rho, alpha, omega := 1.0, 1.0, 1.0
	for it := 1; it <= k.MaxIterations; it++ {
		rhoNew := floats.Dot(rhat, r)
		if rhoNew == 0 {
			return fmt.Errorf("%w: bicgstab breakdown", ErrNoConvergence)
		}
		if it == 1 {
			copy(p, r)
		} else {
			beta := (rhoNew / rho) * (alpha / omega)
			for i := range p {
				p[i] = r[i] + beta*(p[i]-omega*v[i])
			}
		}
		rho = rhoNew

		k.precondition(phat, p)
		k.a.MulVec(v, phat)
		den := floats.Dot(rhat, v)
		if den == 0 {
			return fmt.Errorf("%w: bicgstab breakdown", ErrNoConvergence)
		}
		alpha = rho / den
		floats.AddScaledTo(s, r, -alpha, v)

		if res := floats.Norm(s, 2) / bnorm; res <= k.Tolerance {
			floats.AddScaled(x, alpha, phat)
			k.stats = Stats{Iterations: it, Residual: res}
			return nil
		}

		k.precondition(shat, s)
		k.a.MulVec(t, shat)
		tt := floats.Dot(t, t)
		if tt == 0 {
			return fmt.Errorf("%w: bicgstab breakdown", ErrNoConvergence)
		}
		omega = floats.Dot(t, s) / tt
		floats.AddScaled(x, alpha, phat)
		floats.AddScaled(x, omega, shat)
		floats.AddScaledTo(r, s, -omega, t)

		res := floats.Norm(r, 2) / bnorm
		k.stats = Stats{Iterations: it, Residual: res}
		if res <= k.Tolerance {
			return nil
		}
		if omega == 0 {
			return fmt.Errorf("%w: bicgstab stagnated", ErrNoConvergence)
		}
	}
	return fmt.Errorf("%w: bicgstab residual %.3e after %d iterations", ErrNoConvergence, k.stats.Residual, k.MaxIterations)
}

// LU is a direct solver on the dense expansion of the matrix.
type LU struct {
	a  *CSR
	lu *mat.LU
}

func NewLU() *LU { return &LU{} }

func (o *LU) Init(a *CSR) error {
	if a == nil {
		return ErrNotInitialized
	}
	o.a = a
	o.lu = nil
	return nil
}

func (o *LU) Fact() error {
	if o.a == nil {
		return ErrNotInitialized
	}
	if o.a.N == 0 {
		o.lu = &mat.LU{}
		return nil
	}
	var lu mat.LU
	lu.Factorize(o.a.Dense())
	if c := lu.Cond(); math.IsInf(c, 1) || c > 1e15 {
		return fmt.Errorf("%w: condition number %g", ErrSingular, c)
	}
	o.lu = &lu
	return nil
}

func (o *LU) Solve(x, b []float64) error {
	if o.a == nil || o.lu == nil {
		return ErrNotInitialized
	}
	if len(x) != o.a.N || len(b) != o.a.N {
		return fmt.Errorf("%w: n=%d len(x)=%d len(b)=%d", ErrDimension, o.a.N, len(x), len(b))
	}
	if o.a.N == 0 {
		return nil
	}
	dst := mat.NewVecDense(o.a.N, x)
	rhs := mat.NewVecDense(o.a.N, append([]float64(nil), b...))
	if err := o.lu.SolveVecTo(dst, false, rhs); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return nil
}

func (o *LU) Clean() {
	o.a = nil
	o.lu = nil
}
