// Package meshmoving provides the Laplacian mesh motion solver, which
// extends the prescribed boundary displacements harmonically into the mesh.
package meshmoving

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
	"github.com/san-kum/femstage/internal/timedisc"
)

const Kind factory.Kind = "mesh_solver_laplacian"

const (
	MeshPartName = "LaplacianMMElements"
	ElementName  = "LaplacianMeshMovingElement"
)

var Schema = params.MustSchema(`{
	"solver_type": "mesh_solver_laplacian",
	"buffer_size": 2,
	"time_order": 2,
	"reform_dofs_each_step": false,
	"compute_reactions": false,
	"calculate_mesh_velocities": true,
	"mesh_motion_linear_solver_settings": {
		"solver_type": "amgcl",
		"krylov_type": "cg"
	}
}`).Extend(solvers.BaseSchema)

func Register(r *solvers.Registry) {
	r.Register(Kind, Schema, func(s *params.Parameters, args solvers.Args) (solvers.Solver, error) {
		return New(s, args)
	})
	r.Alias("laplacian", Kind)
}

// Laplacian moves the mesh of a copy of the source elements.
type Laplacian struct {
	*solvers.Base
	source string
	bdf    *timedisc.BDF
}

func New(settings *params.Parameters, args solvers.Args) (*Laplacian, error) {
	s, err := params.Resolve(settings, Schema)
	if err != nil {
		return nil, err
	}
	if b := s.Int("buffer_size"); b < 2 {
		return nil, fmt.Errorf("%w: %w", solvers.ErrBufferSize,
			&params.ConfigError{Path: "buffer_size", Reason: fmt.Sprintf("mesh motion needs at least 2 steps, got %d", b)})
	}
	bdf, err := timedisc.New(s.Int("time_order"))
	if err != nil {
		return nil, &params.ConfigError{Path: "time_order", Reason: err.Error()}
	}

	source := s.String("computing_model_part_name")
	s.SetString("computing_model_part_name", MeshPartName)

	var vars []kernel.Variable
	var dofs []kernel.Dof
	for a := 0; a < 3; a++ {
		vars = append(vars, kernel.MeshDisp[a], kernel.MeshVelocity[a], kernel.MeshReaction[a])
		dofs = append(dofs, kernel.Dof{Variable: kernel.MeshDisp[a], Reaction: kernel.MeshReaction[a]})
	}

	l := &Laplacian{source: source, bdf: bdf}
	minBuffer := 2
	if s.Bool("calculate_mesh_velocities") {
		minBuffer = max(minBuffer, bdf.MinBufferSize())
	}
	caps := solvers.Capabilities{
		Variables:     vars,
		Dofs:          dofs,
		MinBufferSize: minBuffer,
		Strategy:      solvers.StrategyBuilderFunc(l.buildStrategy),
	}
	l.Base, err = solvers.NewBase("MeshSolverLaplacian", s, Schema, args, caps)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ImportModelPart imports the model and copies the source elements into the
// mesh motion sub model part.
func (l *Laplacian) ImportModelPart() error {
	if err := l.Base.ImportModelPart(); err != nil {
		return err
	}
	return l.createMeshPart()
}

func (l *Laplacian) createMeshPart() error {
	main := l.MainModelPart()
	if main.HasSubModelPart(MeshPartName) {
		return nil
	}
	src := main
	if l.source != "" {
		sub, ok := main.SubModelPart(l.source)
		if !ok {
			return &params.ConfigError{Path: "computing_model_part_name", Reason: fmt.Sprintf("model part %q not found", l.source)}
		}
		src = sub
	}
	elements := src.Elements()
	nodes := src.Nodes()

	mesh, err := main.CreateSubModelPart(MeshPartName)
	if err != nil {
		return err
	}
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	if err := mesh.AddNodes(ids); err != nil {
		return err
	}

	next := main.MaxElementID() + 1
	dim := l.DomainSize()
	for _, e := range elements {
		name := fmt.Sprintf("%s%dD%dN", ElementName, dim, len(e.NodeIDs))
		if _, err := mesh.CreateElement(next, name, e.PropertiesID, e.NodeIDs); err != nil {
			return err
		}
		next++
	}
	l.Logger().Info("mesh motion elements created",
		zap.String("model_part", mesh.FullName()),
		zap.Int("elements", mesh.NumberOfElements()))
	return nil
}

func (l *Laplacian) buildStrategy(mp *kernel.ModelPart, s *params.Parameters) (kernel.Strategy, error) {
	ls, err := linsolvers.Create(s.Sub("mesh_motion_linear_solver_settings"))
	if err != nil {
		return nil, err
	}
	return NewStrategy(mp, l.DomainSize(), ls, l.bdf, StrategyConfig{
		ReformDofsEachStep:      s.Bool("reform_dofs_each_step"),
		ComputeReactions:        s.Bool("compute_reactions"),
		CalculateMeshVelocities: s.Bool("calculate_mesh_velocities"),
	}, l.Logger()), nil
}

// MoveMesh places every node of the mesh part at its initial position plus
// its mesh displacement.
func (l *Laplacian) MoveMesh() error {
	mp := l.ComputingModelPart()
	if mp.Name() != MeshPartName {
		return kernel.Fail("MoveMesh", errors.New("mesh motion model part not created"))
	}
	moveMesh(mp, l.DomainSize())
	return nil
}

func moveMesh(mp *kernel.ModelPart, dim int) {
	for _, n := range mp.Nodes() {
		c := n.InitialCoordinates()
		for a := 0; a < dim; a++ {
			c[a] += n.Value(kernel.MeshDisp[a])
		}
		n.SetCoordinates(c)
	}
}

// StrategyConfig are the arguments of the Laplacian strategy.
type StrategyConfig struct {
	ReformDofsEachStep      bool
	ComputeReactions        bool
	CalculateMeshVelocities bool
}

// Strategy solves one graph Laplace problem per displacement component
// with the fixed mesh displacements as Dirichlet data.
type Strategy struct {
	mp   *kernel.ModelPart
	dim  int
	ls   linalg.LinSol
	bdf  *timedisc.BDF
	cfg  StrategyConfig
	log  *zap.Logger
	echo int

	graph *assembly.Graph
	dtOld float64
}

func NewStrategy(mp *kernel.ModelPart, dim int, ls linalg.LinSol, bdf *timedisc.BDF, cfg StrategyConfig, log *zap.Logger) *Strategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Strategy{mp: mp, dim: dim, ls: ls, bdf: bdf, cfg: cfg, log: log}
}

func (s *Strategy) Initialize() error {
	s.graph = assembly.NewGraph(s.mp, s.dim)
	return nil
}

func (s *Strategy) InitializeSolutionStep() error {
	if s.graph == nil || s.cfg.ReformDofsEachStep {
		s.graph = assembly.NewGraph(s.mp, s.dim)
	}
	if !s.cfg.CalculateMeshVelocities {
		return nil
	}
	info := s.mp.ProcessInfo()
	dtOld := s.dtOld
	if dtOld == 0 {
		dtOld = info.DeltaTime()
	}
	return s.bdf.Apply(info, dtOld)
}

func (s *Strategy) Predict() error { return nil }

func (s *Strategy) Solve() (bool, error) {
	if s.graph == nil {
		return false, errors.New("mesh motion strategy not initialized")
	}
	g := s.graph
	n, d := g.Size(), s.dim
	lap := g.Laplacian(1, nil).ToCSR()

	t := linalg.NewTriplet(n*d, lap.NNZ()*d)
	fixed := make([]bool, n*d)
	prescribed := make([]float64, n*d)
	nodes := make([]*kernel.Node, n)
	for i, id := range g.IDs {
		nodes[i], _ = s.mp.Node(id)
		for a := 0; a < d; a++ {
			for k := lap.RowPtr[i]; k < lap.RowPtr[i+1]; k++ {
				t.Put(i*d+a, lap.ColIdx[k]*d+a, lap.Val[k])
			}
			if nodes[i].IsFixed(kernel.MeshDisp[a]) {
				fixed[i*d+a] = true
				prescribed[i*d+a] = nodes[i].Value(kernel.MeshDisp[a])
			}
		}
	}

	sys, err := assembly.Constrain(t, fixed)
	if err != nil {
		return false, err
	}
	if err := sys.Bind(s.ls); err != nil {
		return false, err
	}
	rhs := make([]float64, n*d)
	x, err := sys.Solve(s.ls, rhs, prescribed)
	if err != nil {
		return false, err
	}

	var r []float64
	if s.cfg.ComputeReactions {
		r = sys.Residual(x, rhs)
	}
	for i, node := range nodes {
		for a := 0; a < d; a++ {
			node.SetValue(kernel.MeshDisp[a], x[i*d+a])
			if r != nil && fixed[i*d+a] {
				node.SetValue(kernel.MeshReaction[a], r[i*d+a])
			}
		}
	}
	if s.cfg.CalculateMeshVelocities {
		for _, node := range nodes {
			for a := 0; a < d; a++ {
				node.SetValue(kernel.MeshVelocity[a], s.bdf.Derivative(node, kernel.MeshDisp[a]))
			}
		}
	}
	moveMesh(s.mp, d)

	if s.echo > 1 {
		s.log.Debug("mesh moved", zap.Int("nodes", n))
	}
	return true, nil
}

func (s *Strategy) FinalizeSolutionStep() error {
	s.dtOld = s.mp.ProcessInfo().DeltaTime()
	return nil
}

func (s *Strategy) Finalize() error {
	s.Clear()
	return nil
}

func (s *Strategy) Clear() {
	s.ls.Clean()
	s.graph = nil
}

func (s *Strategy) SetEchoLevel(level int) { s.echo = level }
