package assembly

import (
	"fmt"

	"github.com/san-kum/femstage/internal/linalg"
)

// System is a square operator with prescribed values on some equations.
// Full is the unconstrained operator, A the operator with fixed rows and
// columns replaced by the identity.
type System struct {
	Full  *linalg.CSR
	A     *linalg.CSR
	Fixed []bool
}

func Constrain(t *linalg.Triplet, fixed []bool) (*System, error) {
	full := t.ToCSR()
	if len(fixed) != full.N {
		return nil, fmt.Errorf("assembly: %d constraints for %d equations", len(fixed), full.N)
	}
	c := linalg.NewTriplet(full.N, full.NNZ())
	for i := 0; i < full.N; i++ {
		if fixed[i] {
			c.Put(i, i, 1)
			continue
		}
		for k := full.RowPtr[i]; k < full.RowPtr[i+1]; k++ {
			j := full.ColIdx[k]
			if fixed[j] {
				continue
			}
			c.Put(i, j, full.Val[k])
		}
	}
	return &System{Full: full, A: c.ToCSR(), Fixed: fixed}, nil
}

// Bind initializes and factorizes ls with the constrained operator.
func (s *System) Bind(ls linalg.LinSol) error {
	if err := ls.Init(s.A); err != nil {
		return err
	}
	return ls.Fact()
}

// Solve solves Full x = b on the free equations with x fixed to the values
// of prescribed on the fixed ones. ls must be bound to s.
func (s *System) Solve(ls linalg.LinSol, b, prescribed []float64) ([]float64, error) {
	n := s.Full.N
	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		if s.Fixed[i] {
			rhs[i] = prescribed[i]
			continue
		}
		r := b[i]
		for k := s.Full.RowPtr[i]; k < s.Full.RowPtr[i+1]; k++ {
			if j := s.Full.ColIdx[k]; s.Fixed[j] {
				r -= s.Full.Val[k] * prescribed[j]
			}
		}
		rhs[i] = r
	}

	x := make([]float64, n)
	copy(x, prescribed)
	if err := ls.Solve(x, rhs); err != nil {
		return nil, err
	}
	return x, nil
}

// Residual returns Full x - b, the reactions on fixed equations.
func (s *System) Residual(x, b []float64) []float64 {
	r := make([]float64, s.Full.N)
	s.Full.MulVec(r, x)
	for i := range r {
		r[i] -= b[i]
	}
	return r
}
