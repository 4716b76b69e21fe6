package optimization

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/responses"
)

// ResponseSpec names a response and the settings it is built from.
type ResponseSpec struct {
	ID       string
	Settings *params.Parameters
}

// Analyzer evaluates the design for the optimizer.
type Analyzer interface {
	InitializeBeforeOptimizationLoop() error
	AnalyzeDesignAndReportToCommunicator(design *kernel.ModelPart, iteration int, c *Communicator) error
	FinalizeAfterOptimizationLoop() error
}

// InternalAnalyzer builds the responses in-process. The responses are
// rebuilt for every design: the previous ones are torn down, their model
// parts deleted from the model, before the new ones are constructed.
type InternalAnalyzer struct {
	specs    []ResponseSpec
	ids      []string
	registry *responses.Registry
	args     responses.Args
	active   *factory.Active[responses.Response]
	log      *zap.Logger
}

// NewInternalAnalyzer fails with factory.ErrDuplicateIdentifier when two
// specs share an identifier.
func NewInternalAnalyzer(specs []ResponseSpec, registry *responses.Registry, args responses.Args) (*InternalAnalyzer, error) {
	if args.Model == nil {
		return nil, kernel.Fail("CreateAnalyzer", errors.New("no model"))
	}
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	active := factory.NewActive[responses.Response]()
	if err := active.Check(ids); err != nil {
		return nil, err
	}
	log := args.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &InternalAnalyzer{
		specs:    specs,
		ids:      ids,
		registry: registry,
		args:     args,
		active:   active,
		log:      log.Named("InternalAnalyzer"),
	}, nil
}

// Responses returns the responses of the last analyzed design.
func (a *InternalAnalyzer) Responses() *factory.Active[responses.Response] { return a.active }

func (a *InternalAnalyzer) InitializeBeforeOptimizationLoop() error {
	a.log.Debug("responses are built per design", zap.Strings("responses", a.ids))
	return nil
}

func (a *InternalAnalyzer) rebuild() error {
	model := a.args.Model
	err := a.active.Teardown(func(id string, r responses.Response) error {
		name := r.ModelPartName()
		if !model.HasModelPart(name) {
			return nil
		}
		a.log.Debug("model part deleted", zap.String("response", id), zap.String("model_part", name))
		return model.DeleteModelPart(name)
	})
	if err != nil {
		return err
	}
	if err := a.active.Check(a.ids); err != nil {
		return err
	}
	for _, spec := range a.specs {
		args := a.args
		args.ID = spec.ID
		r, err := a.registry.Create(spec.Settings, args)
		if err != nil {
			return fmt.Errorf("response %q: %w", spec.ID, err)
		}
		if err := a.active.Add(spec.ID, r); err != nil {
			return err
		}
	}
	return nil
}

// AnalyzeDesignAndReportToCommunicator rebuilds the responses, hands them
// the design coordinates and reports what c requests. Each response is
// evaluated with the design clock rewound by one step and restored after.
func (a *InternalAnalyzer) AnalyzeDesignAndReportToCommunicator(design *kernel.ModelPart, iteration int, c *Communicator) error {
	x, y, z := coordinates(design)
	if err := a.rebuild(); err != nil {
		return err
	}

	info := design.ProcessInfo()
	before := info.Clock()
	probe := kernel.Clock{Step: before.Step - 1, Time: before.Time - 1}
	return a.active.Each(func(id string, r responses.Response) error {
		started := time.Now()
		err := info.Probe(probe, func() error {
			return a.evaluate(id, r, x, y, z, c)
		})
		if err != nil {
			return fmt.Errorf("iteration %d, response %q: %w", iteration, id, err)
		}
		a.log.Info("response evaluated",
			zap.Int("iteration", iteration),
			zap.String("response", id),
			zap.Duration("elapsed", time.Since(started)))
		return nil
	})
}

func (a *InternalAnalyzer) evaluate(id string, r responses.Response, x, y, z []float64, c *Communicator) error {
	if err := r.SetCoordinatesUpdate(x, y, z); err != nil {
		return err
	}
	if err := r.Initialize(); err != nil {
		return err
	}
	if err := r.InitializeSolutionStep(); err != nil {
		return err
	}
	if c.IsRequestingValueOf(id) {
		if err := r.CalculateValue(); err != nil {
			return err
		}
		if err := c.ReportValue(id, r.Value()); err != nil {
			return err
		}
	}
	if c.IsRequestingGradientOf(id) {
		if err := r.CalculateGradient(); err != nil {
			return err
		}
		if err := c.ReportGradient(id, r.ShapeGradient()); err != nil {
			return err
		}
	}
	return r.FinalizeSolutionStep()
}

// FinalizeAfterOptimizationLoop finalizes every response of the last
// design.
func (a *InternalAnalyzer) FinalizeAfterOptimizationLoop() error {
	var errs []error
	err := a.active.Each(func(id string, r responses.Response) error {
		if err := r.Finalize(); err != nil {
			errs = append(errs, fmt.Errorf("finalize %q: %w", id, err))
		}
		return nil
	})
	return errors.Join(append(errs, err)...)
}

func coordinates(mp *kernel.ModelPart) (x, y, z []float64) {
	nodes := mp.Nodes()
	x = make([]float64, len(nodes))
	y = make([]float64, len(nodes))
	z = make([]float64, len(nodes))
	for i, n := range nodes {
		x[i], y[i], z[i] = n.X, n.Y, n.Z
	}
	return x, y, z
}
