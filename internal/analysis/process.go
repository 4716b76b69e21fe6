package analysis

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

// Process hooks into the phases of a Stage.
type Process interface {
	ExecuteInitialize() error
	ExecuteBeforeSolutionLoop() error
	ExecuteInitializeSolutionStep() error
	ExecuteFinalizeSolutionStep() error
	ExecuteFinalize() error
}

// OutputProcess is a process that writes results on output steps.
type OutputProcess interface {
	Process
	IsOutputStep() bool
	PrintOutput() error
}

// BaseProcess implements every hook as a no-op.
type BaseProcess struct{}

func (BaseProcess) ExecuteInitialize() error             { return nil }
func (BaseProcess) ExecuteBeforeSolutionLoop() error     { return nil }
func (BaseProcess) ExecuteInitializeSolutionStep() error { return nil }
func (BaseProcess) ExecuteFinalizeSolutionStep() error   { return nil }
func (BaseProcess) ExecuteFinalize() error               { return nil }

// ProcessArgs are the construction arguments shared by every process kind.
type ProcessArgs struct {
	Model      *kernel.Model
	Logger     *zap.Logger
	BaseDir    string
	Project    string
	SolverType string
}

type Registry = factory.Registry[Process, ProcessArgs]

func NewRegistry() *Registry {
	return factory.NewRegistry[Process, ProcessArgs]("process", "type")
}

// RegisterProcesses adds the built-in process kinds to r.
func RegisterProcesses(r *Registry) {
	r.Register("assign_scalar_variable_process", AssignSchema, func(s *params.Parameters, args ProcessArgs) (Process, error) {
		return NewAssign(s, args)
	})
	r.Register("json_output", JSONOutputSchema, func(s *params.Parameters, args ProcessArgs) (Process, error) {
		return NewJSONOutput(s, args)
	})
	r.Register("check_results", CheckSchema, func(s *params.Parameters, args ProcessArgs) (Process, error) {
		return NewCheckResults(s, args)
	})
	r.Register("result_store", ResultStoreSchema, func(s *params.Parameters, args ProcessArgs) (Process, error) {
		return NewResultStore(s, args)
	})
	r.Alias("from_json_check_result_process", "check_results")
	r.Alias("json_output_process", "json_output")
}

// modelPart resolves a dotted model part name once the model is imported.
func modelPart(m *kernel.Model, name string) (*kernel.ModelPart, error) {
	mp, err := m.GetModelPart(name)
	if err != nil {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: err.Error()}
	}
	return mp, nil
}

// variables maps variable names to nodal variables. A vector name such as
// DISPLACEMENT expands to its components.
func variables(names []string) ([]kernel.Variable, error) {
	var out []kernel.Variable
	for _, name := range names {
		if vec, ok := kernel.VectorByName(name); ok {
			out = append(out, vec[:]...)
			continue
		}
		v, ok := kernel.VariableByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", kernel.ErrUnknownVariable, name)
		}
		out = append(out, v)
	}
	return out, nil
}
