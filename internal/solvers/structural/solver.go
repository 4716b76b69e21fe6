// Package structural provides the static and dynamic solvers for pin-jointed
// truss models.
package structural

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/assembly"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linalg"
	"github.com/san-kum/femstage/internal/linsolvers"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
)

const (
	Static  factory.Kind = "static"
	Dynamic factory.Kind = "dynamic"
)

var StaticSchema = params.MustSchema(`{
	"solver_type": "static",
	"analysis_type": "linear",
	"compute_reactions": true,
	"linear_solver_settings": {
		"solver_type": "skyline_lu_factorization"
	}
}`).Extend(solvers.BaseSchema)

var DynamicSchema = params.MustSchema(`{
	"solver_type": "dynamic",
	"scheme_type": "backward_euler",
	"buffer_size": 2
}`).Extend(StaticSchema)

// Register adds the structural kinds to r.
func Register(r *solvers.Registry) {
	r.Register(Static, StaticSchema, func(s *params.Parameters, args solvers.Args) (solvers.Solver, error) {
		return New(s, args, false)
	})
	r.Register(Dynamic, DynamicSchema, func(s *params.Parameters, args solvers.Args) (solvers.Solver, error) {
		return New(s, args, true)
	})
	r.Alias("Static", Static)
	r.Alias("Dynamic", Dynamic)
}

// Solver is a truss solver. It adds nothing to the base operations; the
// kind only selects the strategy.
type Solver struct {
	*solvers.Base
	dynamic bool
}

func New(settings *params.Parameters, args solvers.Args, dynamic bool) (*Solver, error) {
	schema, name, minBuffer := StaticSchema, "StaticSolver", 1
	if dynamic {
		schema, name, minBuffer = DynamicSchema, "DynamicSolver", 2
	}

	vars := []kernel.Variable{}
	dofs := []kernel.Dof{}
	for i := range kernel.Displacement {
		vars = append(vars, kernel.Displacement[i], kernel.Reaction[i], kernel.PointLoad[i], kernel.Velocity[i])
		dofs = append(dofs, kernel.Dof{Variable: kernel.Displacement[i], Reaction: kernel.Reaction[i]})
	}

	s := &Solver{dynamic: dynamic}
	caps := solvers.Capabilities{
		Variables:     vars,
		Dofs:          dofs,
		MinBufferSize: minBuffer,
		Strategy:      solvers.StrategyBuilderFunc(s.buildStrategy),
	}
	base, err := solvers.NewBase(name, settings, schema, args, caps)
	if err != nil {
		return nil, err
	}
	if t := base.Settings().String("analysis_type"); t != "linear" {
		return nil, &params.ConfigError{Path: "analysis_type", Reason: fmt.Sprintf("unsupported analysis type %q", t)}
	}
	if dynamic {
		if t := base.Settings().String("scheme_type"); t != "backward_euler" {
			return nil, &params.ConfigError{Path: "scheme_type", Reason: fmt.Sprintf("unsupported scheme %q", t)}
		}
	}
	s.Base = base
	return s, nil
}

func (s *Solver) buildStrategy(mp *kernel.ModelPart, settings *params.Parameters) (kernel.Strategy, error) {
	ls, err := linsolvers.Create(settings.Sub("linear_solver_settings"))
	if err != nil {
		return nil, err
	}
	return &TrussStrategy{
		mp:        mp,
		dim:       s.DomainSize(),
		ls:        ls,
		dynamic:   s.dynamic,
		reactions: settings.Bool("compute_reactions"),
		log:       s.Logger(),
	}, nil
}

// TrussStrategy solves K u = f, or with backward Euler
// (K + M/dt²) u = f + M/dt² (u_n + dt v_n), on the two-node elements of a
// model part.
type TrussStrategy struct {
	mp        *kernel.ModelPart
	dim       int
	ls        linalg.LinSol
	dynamic   bool
	reactions bool
	echo      int
	log       *zap.Logger

	num  *Numbering
	bars []Bar
}

func (t *TrussStrategy) Initialize() error { return t.rebuild() }

// InitializeSolutionStep renumbers the model, whose geometry may have been
// updated since the previous step.
func (t *TrussStrategy) InitializeSolutionStep() error { return t.rebuild() }

func (t *TrussStrategy) rebuild() error {
	bars, err := Bars(t.mp)
	if err != nil {
		return err
	}
	t.bars = bars
	t.num = Number(t.mp, t.dim)
	return nil
}

func (t *TrussStrategy) Predict() error { return nil }

func (t *TrussStrategy) Solve() (bool, error) {
	if t.num == nil {
		return false, errors.New("truss strategy not initialized")
	}
	n := t.num.Size()
	k := Stiffness(t.bars, t.num)
	f := make([]float64, n)
	fixed := make([]bool, n)
	prescribed := make([]float64, n)

	for _, id := range t.num.IDs {
		node, _ := t.mp.Node(id)
		eq := t.num.Index[id]
		for p := 0; p < t.dim; p++ {
			f[eq+p] = node.Value(kernel.PointLoad[p])
			if node.IsFixed(kernel.Displacement[p]) {
				fixed[eq+p] = true
				prescribed[eq+p] = node.Value(kernel.Displacement[p])
			}
		}
	}

	dt := t.mp.ProcessInfo().DeltaTime()
	if t.dynamic {
		if dt <= 0 {
			return false, fmt.Errorf("dynamic step needs a positive time step, got %g", dt)
		}
		m := LumpedMass(t.bars, t.num)
		for _, id := range t.num.IDs {
			node, _ := t.mp.Node(id)
			eq := t.num.Index[id]
			for p := 0; p < t.dim; p++ {
				c := m[eq+p] / (dt * dt)
				k.Put(eq+p, eq+p, c)
				u0 := node.PreviousValue(kernel.Displacement[p], 1)
				v0 := node.PreviousValue(kernel.Velocity[p], 1)
				f[eq+p] += c * (u0 + dt*v0)
			}
		}
	}

	sys, err := assembly.Constrain(k, fixed)
	if err != nil {
		return false, err
	}
	if err := sys.Bind(t.ls); err != nil {
		return false, err
	}
	x, err := sys.Solve(t.ls, f, prescribed)
	if err != nil {
		return false, err
	}

	var r []float64
	if t.reactions {
		r = sys.Residual(x, f)
	}
	for _, id := range t.num.IDs {
		node, _ := t.mp.Node(id)
		eq := t.num.Index[id]
		for p := 0; p < t.dim; p++ {
			node.SetValue(kernel.Displacement[p], x[eq+p])
			if t.dynamic {
				node.SetValue(kernel.Velocity[p], (x[eq+p]-node.PreviousValue(kernel.Displacement[p], 1))/dt)
			}
			if r != nil && fixed[eq+p] {
				node.SetValue(kernel.Reaction[p], r[eq+p])
			}
		}
	}
	if t.echo > 1 {
		t.log.Debug("truss solved", zap.Int("equations", n), zap.Int("elements", len(t.bars)))
	}
	return true, nil
}

func (t *TrussStrategy) FinalizeSolutionStep() error { return nil }
func (t *TrussStrategy) SetEchoLevel(level int)      { t.echo = level }

func (t *TrussStrategy) Finalize() error {
	t.Clear()
	return nil
}

func (t *TrussStrategy) Clear() {
	t.ls.Clean()
	t.num = nil
	t.bars = nil
}
