// Package cosim provides the IOs that exchange interface data between
// coupled solvers.
package cosim

import (
	"errors"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/logging"
	"github.com/san-kum/femstage/internal/params"
)

// ErrNotConnected is returned by data exchange before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("io not connected")

// Data names the nodal values of one variable on a model part.
type Data struct {
	Identifier    string
	ModelPartName string
	Variable      kernel.Variable
}

// IO exchanges interface data with a partner solver.
type IO interface {
	Name() string
	Connect() error
	Disconnect() error
	ImportData(d Data) error
	ExportData(d Data) error
}

type Args struct {
	Model   *kernel.Model
	Name    string
	Logger  *zap.Logger
	BaseDir string
}

type Registry = factory.Registry[IO, Args]

func NewRegistry() *Registry {
	return factory.NewRegistry[IO, Args]("io", "type")
}

const (
	EmptyIO factory.Kind = "empty_io"
	JSONIO  factory.Kind = "json_io"
)

var BaseSchema = params.MustSchema(`{
	"type": "",
	"echo_level": 0
}`)

func Register(r *Registry) {
	r.Register(EmptyIO, BaseSchema, func(s *params.Parameters, args Args) (IO, error) {
		return NewEmpty(s, args)
	})
	r.Register(JSONIO, JSONSchema, func(s *params.Parameters, args Args) (IO, error) {
		return NewJSON(s, args)
	})
}

var registry = func() *Registry {
	r := NewRegistry()
	Register(r)
	return r
}()

// CreateIO builds the IO named by the type key of settings for the solver
// called name.
func CreateIO(settings *params.Parameters, model *kernel.Model, name string) (IO, error) {
	return registry.Create(settings, Args{Model: model, Name: name})
}

func componentLogger(args Args, kind string, echo int) *zap.Logger {
	return logging.Component(args.Logger, kind, echo).With(zap.String("solver", args.Name))
}

// Empty exchanges nothing. It stands in for solvers that need no data.
type Empty struct {
	name string
	log  *zap.Logger
}

func NewEmpty(settings *params.Parameters, args Args) (*Empty, error) {
	s, err := params.Resolve(settings, BaseSchema)
	if err != nil {
		return nil, err
	}
	return &Empty{name: args.Name, log: componentLogger(args, "EmptyIO", s.Int("echo_level"))}, nil
}

func (e *Empty) Name() string      { return e.name }
func (e *Empty) Connect() error    { return nil }
func (e *Empty) Disconnect() error { return nil }

func (e *Empty) ImportData(d Data) error {
	e.log.Debug("import skipped", zap.String("identifier", d.Identifier))
	return nil
}

func (e *Empty) ExportData(d Data) error {
	e.log.Debug("export skipped", zap.String("identifier", d.Identifier))
	return nil
}
