// Package solvers defines the fixed operation set shared by all solver
// components and the Base that implements it from capabilities.
//
// A variant composes a Base (or another variant) and overrides a subset of
// the operations; every operation it does not override runs the composed
// component unchanged:
//
//	type Distributed struct {
//		*FractionalStep
//		comm comm.Communicator
//	}
//
//	func (d *Distributed) Finalize() error {
//		d.Strategy().Clear()
//		return nil
//	}
package solvers

import (
	"errors"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

// ErrBufferSize is matched when buffer_size is below the solver minimum.
var ErrBufferSize = errors.New("buffer size too small")

// Solver is the operation set driven by the analysis stage.
type Solver interface {
	AddVariables() error
	ImportModelPart() error
	PrepareModelPart() error
	AddDofs() error
	Initialize() error
	AdvanceInTime(currentTime float64) (float64, error)
	InitializeSolutionStep() error
	Predict() error
	SolveSolutionStep() (bool, error)
	FinalizeSolutionStep() error
	Finalize() error
	Check() error

	ComputingModelPart() *kernel.ModelPart
	MainModelPart() *kernel.ModelPart
	Settings() *params.Parameters
	MinBufferSize() int
	ComputeDeltaTime() float64
}

// Args are the construction arguments shared by every solver kind.
type Args struct {
	Model   *kernel.Model
	Logger  *zap.Logger
	BaseDir string
}

// Registry is the registry type filled by the solver packages.
type Registry = factory.Registry[Solver, Args]

func NewRegistry() *Registry {
	return factory.NewRegistry[Solver, Args]("solver", "solver_type")
}

// StrategyBuilder constructs the solution strategy of a solver.
type StrategyBuilder interface {
	Build(mp *kernel.ModelPart, settings *params.Parameters) (kernel.Strategy, error)
}

type StrategyBuilderFunc func(mp *kernel.ModelPart, settings *params.Parameters) (kernel.Strategy, error)

func (f StrategyBuilderFunc) Build(mp *kernel.ModelPart, settings *params.Parameters) (kernel.Strategy, error) {
	return f(mp, settings)
}
