package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/logging"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
)

// Phase is the lifecycle position of a Stage.
type Phase int

const (
	Unconstructed Phase = iota
	ModelImported
	VariablesAdded
	DofsAdded
	Initialized
	SolutionLoop
	Finalized
)

var phaseNames = [...]string{
	"Unconstructed", "ModelImported", "VariablesAdded", "DofsAdded",
	"Initialized", "SolutionLoop", "Finalized",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Observer is notified after every output step of the solution loop.
type Observer interface {
	OnStep(step int, time float64)
}

type ObserverFunc func(step int, time float64)

func (f ObserverFunc) OnStep(step int, time float64) { f(step, time) }

// ProjectSchema holds the top level keys of a project parameters file.
var ProjectSchema = params.MustSchema(`{
	"problem_data": {
		"problem_name": "",
		"parallel_type": "OpenMP",
		"echo_level": 0,
		"start_time": 0.0,
		"end_time": 1.0
	},
	"solver_settings": {},
	"processes": [],
	"output_processes": []
}`, "solver_settings.solver_type")

// Args are the collaborators of a Stage.
type Args struct {
	Solvers   *solvers.Registry
	Processes *Registry
	Model     *kernel.Model
	Logger    *zap.Logger
	BaseDir   string
}

// Stage runs one solver over its lifecycle.
type Stage struct {
	settings  *params.Parameters
	model     *kernel.Model
	solver    solvers.Solver
	processes []Process
	outputs   []OutputProcess
	observers []Observer
	log       *zap.Logger

	phase   Phase
	time    float64
	endTime float64
	timings map[Phase]time.Duration
}

// New resolves the project parameters and constructs the solver and the
// processes. Nothing is imported yet.
func New(project *params.Parameters, args Args) (*Stage, error) {
	s, err := params.Resolve(project, ProjectSchema)
	if err != nil {
		return nil, err
	}
	if args.Solvers == nil {
		return nil, errors.New("analysis: no solver registry")
	}
	if args.Model == nil {
		args.Model = kernel.NewModel()
	}
	pd := s.Sub("problem_data")
	if pd.Float("end_time") < pd.Float("start_time") {
		return nil, &params.ConfigError{Path: "problem_data.end_time", Reason: "end_time is before start_time"}
	}

	name := pd.String("problem_name")
	if name == "" {
		name = "AnalysisStage"
	}
	log := logging.Component(args.Logger, name, pd.Int("echo_level"))

	solver, err := args.Solvers.Create(s.Sub("solver_settings"), solvers.Args{
		Model:   args.Model,
		Logger:  args.Logger,
		BaseDir: args.BaseDir,
	})
	if err != nil {
		return nil, fmt.Errorf("solver_settings: %w", err)
	}

	st := &Stage{
		settings: s,
		model:    args.Model,
		solver:   solver,
		log:      log,
		time:     pd.Float("start_time"),
		endTime:  pd.Float("end_time"),
		timings:  make(map[Phase]time.Duration),
	}

	if args.Processes != nil {
		pargs := ProcessArgs{
			Model:      args.Model,
			Logger:     log,
			BaseDir:    args.BaseDir,
			Project:    name,
			SolverType: s.Sub("solver_settings").String("solver_type"),
		}
		for _, key := range []string{"processes", "output_processes"} {
			for i, ps := range s.Array(key) {
				p, err := args.Processes.Create(ps, pargs)
				if err != nil {
					return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				st.processes = append(st.processes, p)
				if out, ok := p.(OutputProcess); ok {
					st.outputs = append(st.outputs, out)
				}
			}
		}
	} else if len(s.Array("processes"))+len(s.Array("output_processes")) > 0 {
		return nil, errors.New("analysis: processes listed but no process registry")
	}
	return st, nil
}

func (s *Stage) Solver() solvers.Solver       { return s.solver }
func (s *Stage) Model() *kernel.Model         { return s.model }
func (s *Stage) Settings() *params.Parameters { return s.settings }
func (s *Stage) Phase() Phase                 { return s.phase }
func (s *Stage) Time() float64                { return s.time }
func (s *Stage) EndTime() float64             { return s.endTime }
func (s *Stage) Processes() []Process         { return s.processes }
func (s *Stage) AddObserver(o Observer)       { s.observers = append(s.observers, o) }
func (s *Stage) Timing(p Phase) time.Duration { return s.timings[p] }

func (s *Stage) processInfo() *kernel.ProcessInfo {
	return s.solver.MainModelPart().ProcessInfo()
}

func (s *Stage) enter(p Phase, started time.Time) {
	s.phase = p
	d := time.Since(started)
	s.timings[p] += d
	s.log.Debug("phase finished", zap.Stringer("phase", p), zap.Duration("elapsed", d))
}

// Run initializes the stage, runs the solution loop and finalizes.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.Initialize(); err != nil {
		return err
	}
	if err := s.RunSolutionLoop(ctx); err != nil {
		return err
	}
	return s.Finalize()
}

// Initialize imports the model, adds the dofs and initializes the solver
// and the processes.
func (s *Stage) Initialize() error {
	if s.phase != Unconstructed {
		return fmt.Errorf("analysis: initialize in phase %s", s.phase)
	}
	started := time.Now()
	if err := s.solver.AddVariables(); err != nil {
		return err
	}
	if err := s.solver.ImportModelPart(); err != nil {
		return err
	}
	if err := s.solver.PrepareModelPart(); err != nil {
		return err
	}
	s.enter(ModelImported, started)
	s.enter(VariablesAdded, time.Now())

	started = time.Now()
	if err := s.solver.AddDofs(); err != nil {
		return err
	}
	s.enter(DofsAdded, started)

	started = time.Now()
	for _, p := range s.processes {
		if err := p.ExecuteInitialize(); err != nil {
			return err
		}
	}
	if err := s.solver.Initialize(); err != nil {
		return err
	}
	if err := s.solver.Check(); err != nil {
		return err
	}
	info := s.processInfo()
	info.SetTime(s.time)
	for _, p := range s.processes {
		if err := p.ExecuteBeforeSolutionLoop(); err != nil {
			return err
		}
	}
	s.enter(Initialized, started)

	s.log.Info("analysis stage initialized",
		zap.String("model_part", s.solver.MainModelPart().Name()),
		zap.Float64("start_time", s.time),
		zap.Float64("end_time", s.endTime))
	return nil
}

// KeepAdvancingSolutionLoop reports whether the end time has not been
// reached. Times within a relative 1e-10 of the end count as reached.
func (s *Stage) KeepAdvancingSolutionLoop() bool {
	return s.endTime-s.time > 1e-10*math.Max(1, math.Abs(s.endTime))
}

// RunSolutionLoop solves steps until the end time. The context is checked
// before every step.
func (s *Stage) RunSolutionLoop(ctx context.Context) error {
	if s.phase < Initialized {
		return fmt.Errorf("analysis: solution loop in phase %s", s.phase)
	}
	s.phase = SolutionLoop
	started := time.Now()
	defer func() { s.timings[SolutionLoop] += time.Since(started) }()

	for s.KeepAdvancingSolutionLoop() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step advances the clock and solves one solution step.
func (s *Stage) Step() error {
	if err := s.AdvanceInTime(); err != nil {
		return err
	}
	if err := s.InitializeSolutionStep(); err != nil {
		return err
	}
	if _, err := s.SolveSolutionStep(); err != nil {
		return err
	}
	if err := s.FinalizeSolutionStep(); err != nil {
		return err
	}
	return s.OutputSolutionStep()
}

// AdvanceInTime moves the clock from the time stored in the process info,
// so a probe that rewinds the clock is honoured.
func (s *Stage) AdvanceInTime() error {
	t, err := s.solver.AdvanceInTime(s.processInfo().Time())
	if err != nil {
		return err
	}
	s.time = t
	return nil
}

func (s *Stage) InitializeSolutionStep() error {
	for _, p := range s.processes {
		if err := p.ExecuteInitializeSolutionStep(); err != nil {
			return err
		}
	}
	return s.solver.InitializeSolutionStep()
}

// SolveSolutionStep predicts and solves the current step.
func (s *Stage) SolveSolutionStep() (bool, error) {
	if err := s.solver.Predict(); err != nil {
		return false, err
	}
	return s.solver.SolveSolutionStep()
}

func (s *Stage) FinalizeSolutionStep() error {
	if err := s.solver.FinalizeSolutionStep(); err != nil {
		return err
	}
	for _, p := range s.processes {
		if err := p.ExecuteFinalizeSolutionStep(); err != nil {
			return err
		}
	}
	return nil
}

// OutputSolutionStep prints the output processes due at this step and
// notifies the observers.
func (s *Stage) OutputSolutionStep() error {
	for _, out := range s.outputs {
		if !out.IsOutputStep() {
			continue
		}
		if err := out.PrintOutput(); err != nil {
			return err
		}
	}
	info := s.processInfo()
	for _, o := range s.observers {
		o.OnStep(info.Step(), info.Time())
	}
	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("step finished", zap.Int("step", info.Step()), zap.Float64("time", info.Time()))
	}
	return nil
}

// Finalize finalizes the processes and the solver.
func (s *Stage) Finalize() error {
	started := time.Now()
	var errs []error
	for _, p := range s.processes {
		if err := p.ExecuteFinalize(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.solver.Finalize(); err != nil {
		errs = append(errs, err)
	}
	s.enter(Finalized, started)

	var total time.Duration
	for _, d := range s.timings {
		total += d
	}
	s.log.Info("analysis stage finished",
		zap.Int("steps", s.processInfo().Step()),
		zap.Float64("time", s.time),
		zap.Duration("solution_loop", s.timings[SolutionLoop]),
		zap.Duration("total", total))
	return errors.Join(errs...)
}
