// Package responses provides the response functions evaluated by the shape
// optimization driver: strain energy, mass, eigenfrequency and the axial
// stress measures.
//
// A response owns one model part of the analysis model. The driver deletes
// that model part before constructing the response of the next iteration.
package responses

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
)

// Response is a scalar function of the nodal coordinates.
type Response interface {
	ID() string
	// ModelPartName is the root model part the response created and
	// releases on teardown.
	ModelPartName() string

	SetCoordinatesUpdate(x, y, z []float64) error
	Initialize() error
	InitializeSolutionStep() error
	CalculateValue() error
	Value() float64
	CalculateGradient() error
	ShapeGradient() map[int][3]float64
	FinalizeSolutionStep() error
	Finalize() error
}

// Args are the construction arguments shared by every response kind.
type Args struct {
	ID        string
	Model     *kernel.Model
	Solvers   *solvers.Registry
	Processes *analysis.Registry
	Logger    *zap.Logger
	BaseDir   string
}

type Registry = factory.Registry[Response, Args]

func NewRegistry() *Registry {
	return factory.NewRegistry[Response, Args]("response", "response_type")
}

const (
	StrainEnergy       factory.Kind = "strain_energy"
	Mass               factory.Kind = "mass"
	Eigenfrequency     factory.Kind = "eigenfrequency"
	AdjointLocalStress factory.Kind = "adjoint_local_stress"
	AdjointMaxStress   factory.Kind = "adjoint_max_stress"
)

// BaseSchema holds the gradient settings every response understands.
var BaseSchema = params.MustSchema(`{
	"response_type": "",
	"gradient_mode": "finite_differencing",
	"step_size": 1e-6
}`)

// Register adds the response kinds to r.
func Register(r *Registry) {
	r.Register(StrainEnergy, PrimalSchema, func(s *params.Parameters, args Args) (Response, error) {
		return NewStrainEnergy(s, args)
	})
	r.Register(Mass, MassSchema, func(s *params.Parameters, args Args) (Response, error) {
		return NewMass(s, args)
	})
	r.Register(Eigenfrequency, EigenfrequencySchema, func(s *params.Parameters, args Args) (Response, error) {
		return NewEigenfrequency(s, args)
	})
	r.Register(AdjointLocalStress, LocalStressSchema, func(s *params.Parameters, args Args) (Response, error) {
		return NewLocalStress(s, args)
	})
	r.Register(AdjointMaxStress, PrimalSchema, func(s *params.Parameters, args Args) (Response, error) {
		return NewMaxStress(s, args)
	})
}

// shape holds what every response shares: the identity, the pending
// coordinate update and the finite difference gradient.
type shape struct {
	id    string
	step  float64
	dim   int
	log   *zap.Logger
	value float64
	grad  map[int][3]float64

	pending [][3]float64
}

func newShape(s *params.Parameters, args Args) (shape, error) {
	if args.ID == "" {
		return shape{}, &params.ConfigError{Path: "identifier", Reason: "response needs an identifier"}
	}
	if args.Model == nil {
		return shape{}, kernel.Fail("CreateResponse", errors.New("no model"))
	}
	switch m := s.String("gradient_mode"); m {
	case "finite_differencing", "semi_analytic":
	default:
		return shape{}, &params.ConfigError{Path: "gradient_mode", Reason: fmt.Sprintf("unsupported gradient mode %q", m)}
	}
	if s.Float("step_size") <= 0 {
		return shape{}, &params.ConfigError{Path: "step_size", Reason: "step size must be positive"}
	}
	log := args.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return shape{
		id:   args.ID,
		step: s.Float("step_size"),
		dim:  3,
		log:  log.Named("Response").With(zap.String("identifier", args.ID)),
	}, nil
}

func (s *shape) ID() string                        { return s.id }
func (s *shape) Value() float64                    { return s.value }
func (s *shape) ShapeGradient() map[int][3]float64 { return s.grad }

// SetCoordinatesUpdate stores the coordinates to apply once the model part
// exists. x, y and z follow the node order of the model file.
func (s *shape) SetCoordinatesUpdate(x, y, z []float64) error {
	if len(x) != len(y) || len(x) != len(z) {
		return fmt.Errorf("coordinate update of %s: lengths %d, %d, %d differ", s.id, len(x), len(y), len(z))
	}
	s.pending = make([][3]float64, len(x))
	for i := range x {
		s.pending[i] = [3]float64{x[i], y[i], z[i]}
	}
	return nil
}

// applyCoordinates moves the nodes of mp, current and initial position, to
// the pending update.
func (s *shape) applyCoordinates(mp *kernel.ModelPart) error {
	if s.pending == nil {
		return nil
	}
	nodes := mp.Nodes()
	if len(nodes) != len(s.pending) {
		return fmt.Errorf("coordinate update of %s: %d coordinates for %d nodes", s.id, len(s.pending), len(nodes))
	}
	for i, n := range nodes {
		c := s.pending[i]
		n.SetCoordinates(c)
		n.X0, n.Y0, n.Z0 = c[0], c[1], c[2]
	}
	s.pending = nil
	return nil
}

// finiteDifferences computes the central difference gradient of eval with
// respect to the first dim coordinates of every node of mp. Coordinates
// are restored after each perturbation.
func (s *shape) finiteDifferences(mp *kernel.ModelPart, eval func() (float64, error)) (map[int][3]float64, error) {
	grad := make(map[int][3]float64, mp.NumberOfNodes())
	for _, n := range mp.Nodes() {
		var g [3]float64
		orig := n.Coordinates()
		for a := 0; a < s.dim; a++ {
			c := orig
			c[a] = orig[a] + s.step
			n.SetCoordinates(c)
			fp, err := eval()
			if err != nil {
				n.SetCoordinates(orig)
				return nil, err
			}
			c[a] = orig[a] - s.step
			n.SetCoordinates(c)
			fm, err := eval()
			n.SetCoordinates(orig)
			if err != nil {
				return nil, err
			}
			g[a] = (fp - fm) / (2 * s.step)
		}
		grad[n.ID] = g
	}
	return grad, nil
}
