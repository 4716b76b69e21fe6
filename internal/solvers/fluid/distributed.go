package fluid

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/comm"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
)

// Distributed runs the fractional step on a partition of the model. It
// holds a FractionalStep and overrides the operations that touch the
// partitioning; all others are the serial ones.
type Distributed struct {
	*FractionalStep

	newComm  func() comm.Communicator
	comm     comm.Communicator
	importer *solvers.DistributedImporter
}

// NewDistributed creates the distributed solver. newComm is called at most
// once, when the communicator is first needed; nil selects it from the
// launcher environment.
func NewDistributed(settings *params.Parameters, args solvers.Args, newComm func() comm.Communicator) (*Distributed, error) {
	fs, err := newFractionalStep("TrilinosFractionalStepSolver", settings, args)
	if err != nil {
		return nil, err
	}
	if newComm == nil {
		newComm = comm.AutoSelect
	}
	d := &Distributed{FractionalStep: fs, newComm: newComm}
	d.Logger().Info("construction of distributed fractional step solver finished")
	return d, nil
}

// Communicator returns the cached communicator, creating it on first use.
func (d *Distributed) Communicator() comm.Communicator {
	if d.comm == nil {
		d.comm = d.newComm()
	}
	return d.comm
}

func (d *Distributed) AddVariables() error {
	if err := d.FractionalStep.AddVariables(); err != nil {
		return err
	}
	d.MainModelPart().AddNodalSolutionStepVariable(kernel.PartitionIndex)
	d.Logger().Info("variables for the distributed fractional step solver added correctly")
	return nil
}

// ImportModelPart reads the local partition of the model file.
func (d *Distributed) ImportModelPart() error {
	imp := d.Settings().Sub("model_import_settings")
	if t := imp.String("input_type"); t != "mdpa" {
		return &params.ConfigError{Path: "model_import_settings.input_type", Reason: fmt.Sprintf("distributed import requires mdpa, got %q", t)}
	}
	d.importer = solvers.NewDistributedImporter(d.InputPath(), d.Communicator(), d.Logger())
	if err := d.importer.Import(d.MainModelPart()); err != nil {
		return kernel.Fail("ImportModelPart", err)
	}
	return nil
}

// PrepareModelPart runs the serial preparation and then creates the
// communicators of the partition.
func (d *Distributed) PrepareModelPart() error {
	if d.importer == nil {
		return kernel.Fail("PrepareModelPart", errors.New("model part was not imported"))
	}
	if err := d.FractionalStep.PrepareModelPart(); err != nil {
		return err
	}
	return d.importer.CreateCommunicators()
}

func (d *Distributed) AddDofs() error {
	if err := d.FractionalStep.AddDofs(); err != nil {
		return err
	}
	d.Logger().Info("dofs for the distributed fractional step solver added correctly")
	return nil
}

// Initialize builds the strategy over the communicator.
func (d *Distributed) Initialize() error {
	builder := solvers.StrategyBuilderFunc(func(mp *kernel.ModelPart, s *params.Parameters) (kernel.Strategy, error) {
		strategy, err := d.buildStrategy(mp, s, d.Communicator())
		if err != nil {
			return nil, err
		}
		return strategy, nil
	})
	if err := d.InitializeWith(builder); err != nil {
		return err
	}
	d.Logger().Info("solver initialization finished",
		zap.Int("rank", d.Communicator().Rank()),
		zap.Int("size", d.Communicator().Size()))
	return nil
}

// Finalize clears the strategy.
func (d *Distributed) Finalize() error {
	if s := d.Strategy(); s != nil {
		s.Clear()
	}
	return nil
}

// Importer returns the partitioning importer after ImportModelPart.
func (d *Distributed) Importer() *solvers.DistributedImporter { return d.importer }
