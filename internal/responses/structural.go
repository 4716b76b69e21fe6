package responses

import (
	"fmt"
	"math"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers/structural"
)

// PrimalSchema is the schema of responses evaluated on a primal analysis.
// primal_settings names the project file of that analysis.
var PrimalSchema = params.MustSchema(`{
	"response_type": "",
	"primal_settings": ""
}`).Extend(BaseSchema)

var LocalStressSchema = params.MustSchema(`{
	"response_type": "adjoint_local_stress",
	"traced_element_id": 0
}`).Extend(PrimalSchema)

// evaluator computes a response value from the solved computing model part.
type evaluator func(mp *kernel.ModelPart) (float64, error)

// Primal runs a full analysis stage over the model part a response owns.
// The stage clock is advanced by the response lifecycle, one step per
// evaluation.
type Primal struct {
	shape
	stage *analysis.Stage
	eval  evaluator
	solve bool
}

func newPrimal(s *params.Parameters, args Args, eval evaluator) (*Primal, error) {
	sh, err := newShape(s, args)
	if err != nil {
		return nil, err
	}
	path := s.String("primal_settings")
	if path == "" {
		return nil, &params.ConfigError{Path: "primal_settings", Reason: "required key is empty"}
	}
	if !filepath.IsAbs(path) && args.BaseDir != "" {
		path = filepath.Join(args.BaseDir, path)
	}
	project, err := params.Load(path)
	if err != nil {
		return nil, err
	}
	stage, err := analysis.New(project, analysis.Args{
		Solvers:   args.Solvers,
		Processes: args.Processes,
		Model:     args.Model,
		Logger:    sh.log,
		BaseDir:   filepath.Dir(path),
	})
	if err != nil {
		return nil, fmt.Errorf("primal analysis of %s: %w", args.ID, err)
	}
	sh.dim = stage.Solver().Settings().Int("domain_size")
	return &Primal{shape: sh, stage: stage, eval: eval, solve: true}, nil
}

func (p *Primal) ModelPartName() string { return p.stage.Solver().MainModelPart().Name() }

// Stage is the primal analysis.
func (p *Primal) Stage() *analysis.Stage { return p.stage }

func (p *Primal) Initialize() error {
	if err := p.stage.Initialize(); err != nil {
		return err
	}
	return p.applyCoordinates(p.stage.Solver().MainModelPart())
}

func (p *Primal) InitializeSolutionStep() error {
	if err := p.stage.AdvanceInTime(); err != nil {
		return err
	}
	return p.stage.InitializeSolutionStep()
}

func (p *Primal) CalculateValue() error {
	if p.solve {
		if _, err := p.stage.SolveSolutionStep(); err != nil {
			return err
		}
	}
	v, err := p.eval(p.stage.Solver().ComputingModelPart())
	if err != nil {
		return err
	}
	p.value = v
	p.log.Debug("value calculated", zap.Float64("value", v))
	return nil
}

// CalculateGradient perturbs each coordinate, re-solves the primal problem
// and evaluates the response again. The primal solution is restored at the
// unperturbed geometry afterwards.
func (p *Primal) CalculateGradient() error {
	solver := p.stage.Solver()
	mp := solver.ComputingModelPart()
	resolve := func() error {
		if !p.solve {
			return nil
		}
		if err := solver.InitializeSolutionStep(); err != nil {
			return err
		}
		_, err := solver.SolveSolutionStep()
		return err
	}
	grad, err := p.finiteDifferences(mp, func() (float64, error) {
		if err := resolve(); err != nil {
			return 0, err
		}
		return p.eval(mp)
	})
	if err != nil {
		return err
	}
	if err := resolve(); err != nil {
		return err
	}
	p.grad = grad
	return nil
}

func (p *Primal) FinalizeSolutionStep() error {
	if err := p.stage.FinalizeSolutionStep(); err != nil {
		return err
	}
	return p.stage.OutputSolutionStep()
}

func (p *Primal) Finalize() error { return p.stage.Finalize() }

// NewStrainEnergy returns the strain energy ½ uᵀKu of the primal solution.
func NewStrainEnergy(settings *params.Parameters, args Args) (*Primal, error) {
	s, err := params.Resolve(settings, PrimalSchema)
	if err != nil {
		return nil, err
	}
	return newPrimal(s, args, func(mp *kernel.ModelPart) (float64, error) {
		bars, err := structural.Bars(mp)
		if err != nil {
			return 0, err
		}
		return structural.StrainEnergy(bars), nil
	})
}

// NewLocalStress returns the axial stress of the traced element.
func NewLocalStress(settings *params.Parameters, args Args) (*Primal, error) {
	s, err := params.Resolve(settings, LocalStressSchema)
	if err != nil {
		return nil, err
	}
	traced := s.Int("traced_element_id")
	if traced <= 0 {
		return nil, &params.ConfigError{Path: "traced_element_id", Reason: "required key must be a positive element id"}
	}
	return newPrimal(s, args, func(mp *kernel.ModelPart) (float64, error) {
		bars, err := structural.Bars(mp)
		if err != nil {
			return 0, err
		}
		for _, b := range bars {
			if b.Element.ID == traced {
				return structural.AxialStress(b), nil
			}
		}
		return 0, kernel.Fail("CalculateValue", fmt.Errorf("traced element %d not in %s", traced, mp.FullName()))
	})
}

// NewMaxStress returns the largest axial stress magnitude over all elements.
func NewMaxStress(settings *params.Parameters, args Args) (*Primal, error) {
	s, err := params.Resolve(settings, PrimalSchema)
	if err != nil {
		return nil, err
	}
	return newPrimal(s, args, func(mp *kernel.ModelPart) (float64, error) {
		bars, err := structural.Bars(mp)
		if err != nil {
			return 0, err
		}
		var m float64
		for _, b := range bars {
			m = math.Max(m, math.Abs(structural.AxialStress(b)))
		}
		return m, nil
	})
}
