package solvers

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/logging"
	"github.com/san-kum/femstage/internal/mdpa"
	"github.com/san-kum/femstage/internal/params"
)

// BaseSchema holds the settings every solver understands.
var BaseSchema = params.MustSchema(`{
	"solver_type": "",
	"model_part_name": "",
	"domain_size": -1,
	"echo_level": 0,
	"buffer_size": 1,
	"computing_model_part_name": "",
	"model_import_settings": {
		"input_type": "mdpa",
		"input_filename": "unknown_name"
	},
	"time_stepping": {
		"time_step": 1.0
	}
}`)

// Capabilities are the parts a Base delegates to. They are held by
// reference and may be shared between components.
type Capabilities struct {
	Variables     []kernel.Variable
	Dofs          []kernel.Dof
	Importer      kernel.Importer
	Strategy      StrategyBuilder
	MinBufferSize int

	// DeltaTime overrides the fixed time_stepping.time_step.
	DeltaTime func() float64
}

// Base implements Solver from its settings and capabilities.
type Base struct {
	name     string
	settings *params.Parameters
	model    *kernel.Model
	main     *kernel.ModelPart
	caps     Capabilities
	strategy kernel.Strategy
	log      *zap.Logger
	baseDir  string
}

// NewBase resolves settings against schema, which must extend BaseSchema,
// and creates or reuses the main model part.
func NewBase(name string, settings *params.Parameters, schema params.Schema, args Args, caps Capabilities) (*Base, error) {
	s, err := params.Resolve(settings, schema)
	if err != nil {
		return nil, err
	}
	if s.String("model_part_name") == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "please specify the model part that contains the geometry"}
	}
	if d := s.Int("domain_size"); d != 2 && d != 3 {
		return nil, &params.ConfigError{Path: "domain_size", Reason: fmt.Sprintf("expected 2 or 3, got %d", d)}
	}
	if args.Model == nil {
		return nil, kernel.Fail("NewBase", errors.New("no model"))
	}

	b := &Base{
		name:     name,
		settings: s,
		model:    args.Model,
		caps:     caps,
		log:      logging.Component(args.Logger, name, s.Int("echo_level")),
		baseDir:  args.BaseDir,
	}

	mpName := s.String("model_part_name")
	if b.model.HasModelPart(mpName) {
		b.main, _ = b.model.GetModelPart(mpName)
	} else {
		b.main, err = b.model.CreateModelPart(mpName, b.bufferSize())
		if err != nil {
			return nil, err
		}
	}
	b.main.ProcessInfo().SetValue(kernel.DomainSize, float64(s.Int("domain_size")))
	return b, nil
}

func (b *Base) Name() string         { return b.name }
func (b *Base) Logger() *zap.Logger  { return b.log }
func (b *Base) Model() *kernel.Model { return b.model }

// Capabilities returns the delegated parts.
func (b *Base) Capabilities() *Capabilities { return &b.caps }

func (b *Base) bufferSize() int {
	return max(b.settings.Int("buffer_size"), b.MinBufferSize())
}

func (b *Base) MinBufferSize() int {
	if b.caps.MinBufferSize < 1 {
		return 1
	}
	return b.caps.MinBufferSize
}

func (b *Base) Settings() *params.Parameters     { return b.settings }
func (b *Base) MainModelPart() *kernel.ModelPart { return b.main }
func (b *Base) Strategy() kernel.Strategy        { return b.strategy }
func (b *Base) DomainSize() int                  { return b.settings.Int("domain_size") }
func (b *Base) EchoLevel() int                   { return b.settings.Int("echo_level") }

// ComputeDeltaTime returns the step of the DeltaTime capability or the
// fixed time_stepping.time_step.
func (b *Base) ComputeDeltaTime() float64 {
	if b.caps.DeltaTime != nil {
		return b.caps.DeltaTime()
	}
	return b.settings.Sub("time_stepping").Float("time_step")
}

// ComputingModelPart is the sub model part named by
// computing_model_part_name, or the main model part.
func (b *Base) ComputingModelPart() *kernel.ModelPart {
	name := b.settings.String("computing_model_part_name")
	if name == "" {
		return b.main
	}
	if sub, ok := b.main.SubModelPart(name); ok {
		return sub
	}
	return b.main
}

func (b *Base) AddVariables() error {
	for _, v := range b.caps.Variables {
		b.main.AddNodalSolutionStepVariable(v)
	}
	b.log.Debug("variables added", zap.Int("count", len(b.caps.Variables)))
	return nil
}

// ImportModelPart reads the model with the importer capability, or from
// the mdpa file named in model_import_settings.
func (b *Base) ImportModelPart() error {
	importer := b.caps.Importer
	if importer == nil {
		importer = b.DefaultImporter()
	}
	if importer == nil {
		b.log.Info("model part import skipped", zap.String("input_type", "use_input_model_part"))
		return nil
	}
	if err := importer.Import(b.main); err != nil {
		return kernel.Fail("ImportModelPart", err)
	}
	b.log.Info("model reading finished",
		zap.String("model_part", b.main.Name()),
		zap.Int("nodes", b.main.NumberOfNodes()),
		zap.Int("elements", b.main.NumberOfElements()))
	return nil
}

// DefaultImporter returns the mdpa importer configured by
// model_import_settings, or nil when the model part is provided by the
// caller.
func (b *Base) DefaultImporter() kernel.Importer {
	imp := b.settings.Sub("model_import_settings")
	if imp.String("input_type") == "use_input_model_part" {
		return nil
	}
	return kernel.ImporterFunc(func(mp *kernel.ModelPart) error {
		if t := imp.String("input_type"); t != "mdpa" {
			return &params.ConfigError{Path: "model_import_settings.input_type", Reason: fmt.Sprintf("unsupported input type %q", t)}
		}
		doc, err := mdpa.ReadFile(b.InputPath())
		if err != nil {
			return err
		}
		return doc.Populate(mp)
	})
}

// InputPath is the model file named in model_import_settings, relative to
// the project directory.
func (b *Base) InputPath() string {
	name := b.settings.Sub("model_import_settings").String("input_filename")
	if filepath.IsAbs(name) || b.baseDir == "" {
		return name
	}
	return filepath.Join(b.baseDir, name)
}

// PrepareModelPart enforces the minimum buffer size and the domain size.
func (b *Base) PrepareModelPart() error {
	if b.main.BufferSize() < b.bufferSize() {
		b.main.SetBufferSize(b.bufferSize())
	}
	b.main.ProcessInfo().SetValue(kernel.DomainSize, float64(b.DomainSize()))
	return nil
}

func (b *Base) AddDofs() error {
	for _, d := range b.caps.Dofs {
		if err := b.main.AddDof(d.Variable, d.Reaction); err != nil {
			return err
		}
	}
	b.log.Debug("dofs added", zap.Int("count", len(b.caps.Dofs)))
	return nil
}

// Initialize builds the strategy with the strategy capability.
func (b *Base) Initialize() error {
	return b.InitializeWith(b.caps.Strategy)
}

// InitializeWith builds the strategy with builder instead of the strategy
// capability.
func (b *Base) InitializeWith(builder StrategyBuilder) error {
	if builder == nil {
		return kernel.Fail("Initialize", errors.New("no strategy builder"))
	}
	strategy, err := builder.Build(b.ComputingModelPart(), b.settings)
	if err != nil {
		return err
	}
	strategy.SetEchoLevel(b.EchoLevel())
	if err := strategy.Initialize(); err != nil {
		return kernel.Fail("Initialize", err)
	}
	b.strategy = strategy
	b.log.Info("solver initialization finished")
	return nil
}

// AdvanceInTime moves the clock one step forward and returns the new time.
func (b *Base) AdvanceInTime(currentTime float64) (float64, error) {
	dt := b.ComputeDeltaTime()
	if dt <= 0 {
		return currentTime, kernel.Fail("AdvanceInTime", fmt.Errorf("non-positive time step %g", dt))
	}
	newTime := currentTime + dt
	info := b.main.ProcessInfo()
	b.main.CloneTimeStep(newTime)
	info.SetStep(info.Step() + 1)
	return newTime, nil
}

func (b *Base) requireStrategy(op string) error {
	if b.strategy == nil {
		return kernel.Fail(op, errors.New("solver not initialized"))
	}
	return nil
}

func (b *Base) InitializeSolutionStep() error {
	if err := b.requireStrategy("InitializeSolutionStep"); err != nil {
		return err
	}
	return kernel.Fail("InitializeSolutionStep", b.strategy.InitializeSolutionStep())
}

func (b *Base) Predict() error {
	if err := b.requireStrategy("Predict"); err != nil {
		return err
	}
	return kernel.Fail("Predict", b.strategy.Predict())
}

func (b *Base) SolveSolutionStep() (bool, error) {
	if err := b.requireStrategy("SolveSolutionStep"); err != nil {
		return false, err
	}
	converged, err := b.strategy.Solve()
	if err != nil {
		return false, kernel.Fail("SolveSolutionStep", err)
	}
	if !converged {
		b.log.Warn("solution step did not converge",
			zap.Int("step", b.main.ProcessInfo().Step()),
			zap.Float64("time", b.main.ProcessInfo().Time()))
	}
	return converged, nil
}

func (b *Base) FinalizeSolutionStep() error {
	if err := b.requireStrategy("FinalizeSolutionStep"); err != nil {
		return err
	}
	return kernel.Fail("FinalizeSolutionStep", b.strategy.FinalizeSolutionStep())
}

func (b *Base) Finalize() error {
	if b.strategy == nil {
		return nil
	}
	return kernel.Fail("Finalize", b.strategy.Finalize())
}

// Check verifies that every dof variable was added to the model part.
func (b *Base) Check() error {
	for _, d := range b.caps.Dofs {
		if !b.main.HasNodalSolutionStepVariable(d.Variable) {
			return kernel.Fail("Check", fmt.Errorf("%w: %s", kernel.ErrUnknownVariable, d.Variable))
		}
	}
	return nil
}
