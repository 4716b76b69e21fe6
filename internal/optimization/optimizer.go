package optimization

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/responses"
	"github.com/san-kum/femstage/internal/solvers"
	"github.com/san-kum/femstage/internal/storage"
)

// Optimizer runs an optimization to completion.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// IterationObserver is notified after each recorded iteration.
type IterationObserver interface {
	OnIteration(it storage.Iteration)
}

type IterationObserverFunc func(it storage.Iteration)

func (f IterationObserverFunc) OnIteration(it storage.Iteration) { f(it) }

// Args are the construction arguments of every optimizer kind.
type Args struct {
	Model     *kernel.Model
	Responses *responses.Registry
	Solvers   *solvers.Registry
	Processes *analysis.Registry
	Logger    *zap.Logger
	BaseDir   string
	Observer  IterationObserver
}

type Registry = factory.Registry[Optimizer, Args]

func NewRegistry() *Registry {
	return factory.NewRegistry[Optimizer, Args]("optimizer", "optimizer_type")
}

const SteepestDescentKind factory.Kind = "steepest_descent"

// Schema is the layout of optimization_settings shared by the optimizers.
var Schema = params.MustSchema(`{
	"model_settings": {},
	"objectives": [],
	"constraints": [],
	"optimization_algorithm": {
		"optimizer_type": ""
	},
	"output": {
		"output_directory": "Optimization_Results",
		"response_log_filename": "response_combination",
		"history_database": "optimization_history.db",
		"result_file": "",
		"result_folder_suffix": "_results",
		"cleanup": []
	}
}`, "optimization_algorithm.optimizer_type")

var responseEntrySchema = params.MustSchema(`{
	"identifier": "",
	"type": "minimization",
	"response_settings": {}
}`)

func Register(r *Registry) {
	r.Register(SteepestDescentKind, SteepestDescentSchema, func(s *params.Parameters, args Args) (Optimizer, error) {
		return NewSteepestDescent(s, args)
	})
}

// CreateOptimizer builds the optimizer named by
// optimization_algorithm.optimizer_type.
func CreateOptimizer(settings *params.Parameters, r *Registry, args Args) (Optimizer, error) {
	s, err := params.Resolve(settings, Schema)
	if err != nil {
		return nil, err
	}
	kind := s.Sub("optimization_algorithm").String("optimizer_type")
	if kind == "" {
		return nil, &params.ConfigError{Path: "optimization_algorithm.optimizer_type", Reason: "optimizer kind is not specified"}
	}
	return r.CreateKind(factory.Kind(kind), s, args)
}

// entry is a resolved objective or constraint.
type entry struct {
	spec ResponseSpec
	kind string
}

func entries(s *params.Parameters, key string) ([]entry, error) {
	var out []entry
	for i, raw := range s.Array(key) {
		e, err := params.Resolve(raw, responseEntrySchema)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		id := e.String("identifier")
		if id == "" {
			return nil, &params.ConfigError{Path: fmt.Sprintf("%s[%d].identifier", key, i), Reason: "required key is empty"}
		}
		out = append(out, entry{
			spec: ResponseSpec{ID: id, Settings: e.Sub("response_settings")},
			kind: e.String("type"),
		})
	}
	return out, nil
}
