package responses

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers/structural"
)

var EigenfrequencySchema = params.MustSchema(`{
	"response_type": "eigenfrequency",
	"traced_eigenfrequencies": [1],
	"weighting_method": "none",
	"weighting_factors": [1.0]
}`).Extend(PrimalSchema)

// NewEigenfrequency returns the weighted sum of the traced eigenvalues of
// the generalized problem K φ = λ M φ over the free degrees of freedom,
// with the lumped mass of the elements.
func NewEigenfrequency(settings *params.Parameters, args Args) (*Primal, error) {
	s, err := params.Resolve(settings, EigenfrequencySchema)
	if err != nil {
		return nil, err
	}
	traced := s.Floats("traced_eigenfrequencies")
	if len(traced) == 0 {
		return nil, &params.ConfigError{Path: "traced_eigenfrequencies", Reason: "no eigenfrequency traced"}
	}
	idx := make([]int, len(traced))
	for i, t := range traced {
		if t < 1 || t != math.Trunc(t) {
			return nil, &params.ConfigError{Path: "traced_eigenfrequencies", Reason: fmt.Sprintf("%g is not a positive eigenvalue number", t)}
		}
		idx[i] = int(t) - 1
	}

	var weights []float64
	switch w := s.String("weighting_method"); w {
	case "none":
		if len(idx) > 1 {
			return nil, &params.ConfigError{Path: "weighting_method", Reason: "several traced eigenfrequencies need linear_scaling"}
		}
		weights = []float64{1}
	case "linear_scaling":
		weights = s.Floats("weighting_factors")
		if len(weights) != len(idx) {
			return nil, &params.ConfigError{Path: "weighting_factors", Reason: fmt.Sprintf("%d factors for %d traced eigenfrequencies", len(weights), len(idx))}
		}
	default:
		return nil, &params.ConfigError{Path: "weighting_method", Reason: fmt.Sprintf("unsupported weighting method %q", w)}
	}

	var p *Primal
	p, err = newPrimal(s, args, func(mp *kernel.ModelPart) (float64, error) {
		values, err := Eigenvalues(mp, p.dim)
		if err != nil {
			return 0, err
		}
		var sum float64
		for i, j := range idx {
			if j >= len(values) {
				return 0, kernel.Fail("CalculateValue", fmt.Errorf("eigenvalue %d traced, model has %d", j+1, len(values)))
			}
			sum += weights[i] * values[j]
		}
		return sum, nil
	})
	if err != nil {
		return nil, err
	}
	p.solve = false
	return p, nil
}

// Eigenvalues returns the eigenvalues of the free degrees of freedom of the
// two-node elements of mp in ascending order. The problem is reduced to the
// symmetric M^-½ K M^-½.
func Eigenvalues(mp *kernel.ModelPart, dim int) ([]float64, error) {
	bars, err := structural.Bars(mp)
	if err != nil {
		return nil, err
	}
	num := structural.Number(mp, dim)
	k := structural.Stiffness(bars, num).ToCSR()
	m := structural.LumpedMass(bars, num)

	var free []int
	for _, id := range num.IDs {
		node, _ := mp.Node(id)
		for p := 0; p < dim; p++ {
			if !node.IsFixed(kernel.Displacement[p]) {
				free = append(free, num.Index[id]+p)
			}
		}
	}
	if len(free) == 0 {
		return nil, kernel.Fail("Eigenvalues", errors.New("no free degrees of freedom"))
	}

	a := mat.NewSymDense(len(free), nil)
	for i, r := range free {
		if m[r] <= 0 {
			return nil, kernel.Fail("Eigenvalues", fmt.Errorf("equation %d has no mass", r))
		}
		for j := i; j < len(free); j++ {
			c := free[j]
			a.SetSym(i, j, k.At(r, c)/math.Sqrt(m[r]*m[c]))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(a, false) {
		return nil, kernel.Fail("Eigenvalues", errors.New("eigen decomposition did not converge"))
	}
	return es.Values(nil), nil
}
