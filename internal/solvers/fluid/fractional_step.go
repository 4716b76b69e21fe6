// Package fluid provides the fractional step solver for incompressible flow
// and its distributed variant.
package fluid

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/assembly"
	"github.com/san-kum/femstage/internal/comm"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/linsolvers"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
	"github.com/san-kum/femstage/internal/timedisc"
)

const (
	Kind            factory.Kind = "FractionalStep"
	DistributedKind factory.Kind = "trilinos_fractional_step"
)

const (
	ElementName   = "FractionalStep"
	ConditionName = "WallCondition"
)

// Schema is the default settings tree of the fractional step solver.
var Schema = params.MustSchema(`{
	"solver_type": "FractionalStep",
	"parallel_type": "OpenMP",
	"model_import_settings": {
		"input_type": "mdpa",
		"input_filename": "unknown_name"
	},
	"predictor_corrector": false,
	"maximum_velocity_iterations": 3,
	"maximum_pressure_iterations": 3,
	"velocity_tolerance": 1e-3,
	"pressure_tolerance": 1e-2,
	"dynamic_tau": 0.01,
	"oss_switch": 0,
	"echo_level": 0,
	"consider_periodic_conditions": false,
	"time_order": 2,
	"compute_reactions": false,
	"reform_dofs_at_each_step": false,
	"pressure_linear_solver_settings": {
		"solver_type": "amgcl"
	},
	"velocity_linear_solver_settings": {
		"solver_type": "amgcl"
	},
	"volume_model_part_name": "volume_model_part",
	"skin_parts": [""],
	"no_skin_parts": [""],
	"time_stepping": {
		"automatic_time_step": false,
		"CFL_number": 1.0,
		"minimum_delta_time": 1e-4,
		"maximum_delta_time": 0.01,
		"time_step": 0.01
	},
	"move_mesh_flag": false,
	"use_slip_conditions": true
}`).Extend(solvers.BaseSchema)

// Register adds the fractional step kinds to r. FractionalStep selects the
// distributed variant for parallel_type MPI or when launched on more than
// one rank.
func Register(r *solvers.Registry) {
	r.Register(Kind, Schema, func(s *params.Parameters, args solvers.Args) (solvers.Solver, error) {
		parallel, _ := s.Get("parallel_type")
		if parallel == "MPI" || comm.AutoSelect().Size() > 1 {
			return NewDistributed(s, args, nil)
		}
		return New(s, args)
	})
	r.Register(DistributedKind, Schema, func(s *params.Parameters, args solvers.Args) (solvers.Solver, error) {
		return NewDistributed(s, args, nil)
	})
}

// FractionalStep is the serial fractional step solver.
type FractionalStep struct {
	*solvers.Base
	bdf *timedisc.BDF
}

func New(settings *params.Parameters, args solvers.Args) (*FractionalStep, error) {
	return newFractionalStep("FractionalStepSolver", settings, args)
}

func newFractionalStep(name string, settings *params.Parameters, args solvers.Args) (*FractionalStep, error) {
	resolved, err := params.Resolve(settings, Schema)
	if err != nil {
		return nil, err
	}
	bdf, err := timedisc.New(resolved.Int("time_order"))
	if err != nil {
		return nil, &params.ConfigError{Path: "time_order", Reason: err.Error()}
	}
	if resolved.String("computing_model_part_name") == "" {
		resolved.SetString("computing_model_part_name", resolved.String("volume_model_part_name"))
	}

	var dofs []kernel.Dof
	for a := 0; a < resolved.Int("domain_size") && a < 3; a++ {
		dofs = append(dofs, kernel.Dof{Variable: kernel.Velocity[a], Reaction: kernel.Reaction[a]})
	}
	dofs = append(dofs, kernel.Dof{Variable: kernel.Pressure, Reaction: kernel.ReactionWater})

	fs := &FractionalStep{bdf: bdf}
	caps := solvers.Capabilities{
		Variables:     variables(),
		Dofs:          dofs,
		MinBufferSize: 3,
		Strategy: solvers.StrategyBuilderFunc(func(mp *kernel.ModelPart, s *params.Parameters) (kernel.Strategy, error) {
			strategy, err := fs.buildStrategy(mp, s, nil)
			if err != nil {
				return nil, err
			}
			return strategy, nil
		}),
	}
	fs.Base, err = solvers.NewBase(name, resolved, Schema, args, caps)
	if err != nil {
		return nil, err
	}
	fs.Capabilities().DeltaTime = fs.estimateDeltaTime
	return fs, nil
}

func variables() []kernel.Variable {
	vars := []kernel.Variable{
		kernel.Pressure, kernel.ReactionWater, kernel.Density, kernel.Viscosity, kernel.NodalArea,
	}
	for a := 0; a < 3; a++ {
		vars = append(vars,
			kernel.Velocity[a], kernel.FractionalVel[a], kernel.Reaction[a],
			kernel.BodyForce[a], kernel.MeshVelocity[a])
	}
	return vars
}

// buildStrategy creates the linear solvers and chooses between the periodic
// and the plain strategy once, from consider_periodic_conditions.
func (fs *FractionalStep) buildStrategy(mp *kernel.ModelPart, s *params.Parameters, c comm.Communicator) (*FSStrategy, error) {
	velocity, err := linsolvers.Create(s.Sub("velocity_linear_solver_settings"))
	if err != nil {
		return nil, err
	}
	pressure, err := linsolvers.Create(s.Sub("pressure_linear_solver_settings"))
	if err != nil {
		return nil, err
	}
	cfg := StrategyConfig{
		PredictorCorrector: s.Bool("predictor_corrector"),
		VelocityIterations: s.Int("maximum_velocity_iterations"),
		PressureIterations: s.Int("maximum_pressure_iterations"),
		VelocityTolerance:  s.Float("velocity_tolerance"),
		PressureTolerance:  s.Float("pressure_tolerance"),
		ComputeReactions:   s.Bool("compute_reactions"),
		ReformDofs:         s.Bool("reform_dofs_at_each_step"),
	}

	var periodic map[int]int
	if s.Bool("consider_periodic_conditions") {
		periodic = PeriodicPairs(fs.MainModelPart())
		fs.Logger().Info("periodic strategy selected", zap.Int("pairs", len(periodic)))
	}
	return NewFSStrategy(mp, fs.DomainSize(), velocity, pressure, fs.bdf, cfg, c, periodic, fs.Logger()), nil
}

// PrepareModelPart replaces the element and condition formulations, copies
// the material properties onto the nodes and sets the stabilization info.
func (fs *FractionalStep) PrepareModelPart() error {
	if err := fs.Base.PrepareModelPart(); err != nil {
		return err
	}
	s := fs.Settings()
	main := fs.MainModelPart()
	for _, key := range []string{"skin_parts", "no_skin_parts"} {
		for _, name := range s.Strings(key) {
			if name != "" && !main.HasSubModelPart(name) {
				return &params.ConfigError{Path: key, Reason: fmt.Sprintf("model part %q not found in %s", name, main.Name())}
			}
		}
	}

	dim := fs.DomainSize()
	computing := fs.ComputingModelPart()
	for _, e := range computing.Elements() {
		e.Name = fmt.Sprintf("%s%dD%dN", ElementName, dim, len(e.NodeIDs))
		props := main.Properties(e.PropertiesID)
		for _, id := range e.NodeIDs {
			node, ok := main.Node(id)
			if !ok {
				continue
			}
			for _, v := range []kernel.Variable{kernel.Density, kernel.Viscosity} {
				if props.Has(string(v)) {
					node.SetValue(v, props.Value(string(v)))
				}
			}
		}
	}
	for _, c := range main.Conditions() {
		if len(c.NodeIDs) == dim && !strings.HasPrefix(c.Name, "PeriodicCondition") {
			c.Name = fmt.Sprintf("%s%dD%dN", ConditionName, dim, len(c.NodeIDs))
		}
	}

	g := assembly.NewGraph(computing, dim)
	for i, id := range g.IDs {
		if node, ok := main.Node(id); ok {
			node.SetValue(kernel.NodalArea, g.Area[i])
		}
	}

	info := main.ProcessInfo()
	info.SetValue(kernel.OSSSwitch, float64(s.Int("oss_switch")))
	info.SetValue(kernel.DynamicTau, s.Float("dynamic_tau"))
	return nil
}

// TimeBufferIsInitialized reports whether enough steps exist for the time
// integration formula.
func (fs *FractionalStep) TimeBufferIsInitialized() bool {
	return fs.MainModelPart().ProcessInfo().Step()+1 >= fs.MinBufferSize()
}

func (fs *FractionalStep) InitializeSolutionStep() error {
	if !fs.TimeBufferIsInitialized() {
		return nil
	}
	return fs.Base.InitializeSolutionStep()
}

// SolveSolutionStep skips the solve while the time buffer fills.
func (fs *FractionalStep) SolveSolutionStep() (bool, error) {
	if !fs.TimeBufferIsInitialized() {
		return true, nil
	}
	return fs.Base.SolveSolutionStep()
}

func (fs *FractionalStep) FinalizeSolutionStep() error {
	if !fs.TimeBufferIsInitialized() {
		return nil
	}
	return fs.Base.FinalizeSolutionStep()
}

// estimateDeltaTime returns the fixed time step, or with automatic time
// stepping the largest step that keeps the nodal CFL number below the
// configured one.
func (fs *FractionalStep) estimateDeltaTime() float64 {
	ts := fs.Settings().Sub("time_stepping")
	if !ts.Bool("automatic_time_step") {
		return ts.Float("time_step")
	}
	minDt, maxDt := ts.Float("minimum_delta_time"), ts.Float("maximum_delta_time")
	cfl := ts.Float("CFL_number")

	mp := fs.ComputingModelPart()
	g := assembly.NewGraph(mp, fs.DomainSize())
	dt := maxDt
	for i, edges := range g.Edges {
		node, _ := mp.Node(g.IDs[i])
		var speed float64
		for a := 0; a < fs.DomainSize(); a++ {
			v := node.Value(kernel.Velocity[a])
			speed += v * v
		}
		speed = math.Sqrt(speed)
		if speed == 0 {
			continue
		}
		for _, e := range edges {
			dt = math.Min(dt, cfl/(math.Sqrt(e.W)*speed))
		}
	}
	return math.Max(dt, minDt)
}
