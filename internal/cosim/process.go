package cosim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

var ExchangeSchema = params.MustSchema(`{
	"type": "cosim_exchange",
	"solver_name": "",
	"model_part_name": "",
	"io_settings": {
		"type": "empty_io"
	},
	"import_data": [],
	"export_data": []
}`, "model_part_name")

var exchangeDataSchema = params.MustSchema(`{
	"identifier": "",
	"variable_name": ""
}`)

// Exchange is a process that couples a stage to a partner solver: data is
// imported before each step is solved and exported after it.
type Exchange struct {
	analysis.BaseProcess

	io    IO
	in    []Data
	out   []Data
	log   *zap.Logger
	steps int
}

// RegisterProcesses adds the coupling process kinds to r.
func RegisterProcesses(r *analysis.Registry, ios *Registry) {
	r.Register("cosim_exchange", ExchangeSchema, func(s *params.Parameters, args analysis.ProcessArgs) (analysis.Process, error) {
		return NewExchange(s, args, ios)
	})
}

func NewExchange(settings *params.Parameters, args analysis.ProcessArgs, ios *Registry) (*Exchange, error) {
	s, err := params.Resolve(settings, ExchangeSchema)
	if err != nil {
		return nil, err
	}
	mpName := s.String("model_part_name")
	if mpName == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	in, err := exchangeData(s, "import_data", mpName)
	if err != nil {
		return nil, err
	}
	out, err := exchangeData(s, "export_data", mpName)
	if err != nil {
		return nil, err
	}

	name := s.String("solver_name")
	if name == "" {
		name = args.Project
	}
	if ios == nil {
		ios = registry
	}
	io, err := ios.Create(s.Sub("io_settings"), Args{
		Model:   args.Model,
		Name:    name,
		Logger:  args.Logger,
		BaseDir: args.BaseDir,
	})
	if err != nil {
		return nil, fmt.Errorf("io_settings: %w", err)
	}
	return &Exchange{io: io, in: in, out: out, log: componentLogger(Args{Logger: args.Logger, Name: name}, "Exchange", 0)}, nil
}

func exchangeData(s *params.Parameters, key, mpName string) ([]Data, error) {
	var out []Data
	for i, raw := range s.Array(key) {
		e, err := params.Resolve(raw, exchangeDataSchema)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		if e.String("identifier") == "" {
			return nil, &params.ConfigError{Path: fmt.Sprintf("%s[%d].identifier", key, i), Reason: "required key is empty"}
		}
		v, ok := kernel.VariableByName(e.String("variable_name"))
		if !ok {
			return nil, &params.ConfigError{
				Path:   fmt.Sprintf("%s[%d].variable_name", key, i),
				Reason: fmt.Sprintf("%s: %s", kernel.ErrUnknownVariable, e.String("variable_name")),
			}
		}
		out = append(out, Data{Identifier: e.String("identifier"), ModelPartName: mpName, Variable: v})
	}
	return out, nil
}

// IO is the exchanging IO.
func (e *Exchange) IO() IO { return e.io }

func (e *Exchange) ExecuteInitialize() error { return e.io.Connect() }

func (e *Exchange) ExecuteInitializeSolutionStep() error {
	for _, d := range e.in {
		if err := e.io.ImportData(d); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exchange) ExecuteFinalizeSolutionStep() error {
	for _, d := range e.out {
		if err := e.io.ExportData(d); err != nil {
			return err
		}
	}
	e.steps++
	return nil
}

func (e *Exchange) ExecuteFinalize() error {
	e.log.Info("coupling finished", zap.Int("steps", e.steps))
	return e.io.Disconnect()
}
