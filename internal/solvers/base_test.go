package solvers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/comm"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

type testStrategy struct {
	calls     []string
	converged bool
	echo      int
	failOn    string
}

func (s *testStrategy) record(name string) error {
	s.calls = append(s.calls, name)
	if s.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (s *testStrategy) Initialize() error             { return s.record("Initialize") }
func (s *testStrategy) InitializeSolutionStep() error { return s.record("InitializeSolutionStep") }
func (s *testStrategy) Predict() error                { return s.record("Predict") }
func (s *testStrategy) FinalizeSolutionStep() error   { return s.record("FinalizeSolutionStep") }
func (s *testStrategy) Finalize() error               { return s.record("Finalize") }
func (s *testStrategy) Clear()                        { s.record("Clear") }
func (s *testStrategy) SetEchoLevel(level int)        { s.echo = level }

func (s *testStrategy) Solve() (bool, error) {
	return s.converged, s.record("Solve")
}

func newTestBase(t *testing.T, settings string, strategy *testStrategy) *Base {
	t.Helper()
	caps := Capabilities{
		Variables: []kernel.Variable{kernel.Pressure, kernel.PartitionIndex},
		Dofs:      []kernel.Dof{{Variable: kernel.Pressure, Reaction: kernel.ReactionWater}},
		Strategy: StrategyBuilderFunc(func(*kernel.ModelPart, *params.Parameters) (kernel.Strategy, error) {
			return strategy, nil
		}),
		MinBufferSize: 2,
	}
	args := Args{Model: kernel.NewModel(), Logger: zap.NewNop(), BaseDir: "testdata"}
	b, err := NewBase("TestSolver", params.MustParse(settings), BaseSchema, args, caps)
	require.NoError(t, err)
	return b
}

const channelSettings = `{
	"solver_type": "test",
	"model_part_name": "FluidModelPart",
	"domain_size": 2,
	"echo_level": 1,
	"model_import_settings": {"input_type": "mdpa", "input_filename": "channel"},
	"time_stepping": {"time_step": 0.25}
}`

func TestNewBaseValidation(t *testing.T) {
	args := Args{Model: kernel.NewModel()}
	tests := map[string]string{
		"model_part_name": `{"domain_size": 2}`,
		"domain_size":     `{"model_part_name": "Fluid"}`,
	}
	for path, settings := range tests {
		_, err := NewBase("x", params.MustParse(settings), BaseSchema, args, Capabilities{})
		var ce *params.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, path, ce.Path)
	}
}

func TestBaseLifecycle(t *testing.T) {
	strategy := &testStrategy{converged: true}
	b := newTestBase(t, channelSettings, strategy)

	require.NoError(t, b.AddVariables())
	require.NoError(t, b.ImportModelPart())
	require.NoError(t, b.PrepareModelPart())
	require.NoError(t, b.AddDofs())
	require.NoError(t, b.Check())
	require.NoError(t, b.Initialize())

	assert.Equal(t, 8, b.MainModelPart().NumberOfNodes())
	assert.Equal(t, 2, b.MainModelPart().BufferSize())
	assert.Equal(t, 1, strategy.echo)
	assert.Equal(t, 2.0, b.MainModelPart().ProcessInfo().Value(kernel.DomainSize))

	time, err := b.AdvanceInTime(0)
	require.NoError(t, err)
	assert.Equal(t, 0.25, time)
	assert.Equal(t, 1, b.MainModelPart().ProcessInfo().Step())

	require.NoError(t, b.InitializeSolutionStep())
	require.NoError(t, b.Predict())
	converged, err := b.SolveSolutionStep()
	require.NoError(t, err)
	assert.True(t, converged)
	require.NoError(t, b.FinalizeSolutionStep())
	require.NoError(t, b.Finalize())

	assert.Equal(t, []string{
		"Initialize", "InitializeSolutionStep", "Predict", "Solve", "FinalizeSolutionStep", "Finalize",
	}, strategy.calls)
}

func TestBaseStrategyErrorsAreEngineErrors(t *testing.T) {
	strategy := &testStrategy{failOn: "Predict"}
	b := newTestBase(t, channelSettings, strategy)
	require.NoError(t, b.Initialize())

	err := b.Predict()
	assert.True(t, errors.Is(err, kernel.ErrEngine))
}

func TestBaseRequiresInitialize(t *testing.T) {
	b := newTestBase(t, channelSettings, &testStrategy{})
	_, err := b.SolveSolutionStep()
	assert.True(t, errors.Is(err, kernel.ErrEngine))
	assert.NoError(t, b.Finalize())
}

func TestBaseReusesExistingModelPart(t *testing.T) {
	model := kernel.NewModel()
	existing, err := model.CreateModelPart("FluidModelPart", 1)
	require.NoError(t, err)

	b, err := NewBase("x", params.MustParse(channelSettings), BaseSchema, Args{Model: model}, Capabilities{})
	require.NoError(t, err)
	assert.Same(t, existing, b.MainModelPart())
}

func TestComputingModelPart(t *testing.T) {
	b := newTestBase(t, `{
		"model_part_name": "FluidModelPart",
		"domain_size": 2,
		"computing_model_part_name": "Parts_Fluid",
		"model_import_settings": {"input_filename": "channel"}
	}`, &testStrategy{})
	require.NoError(t, b.AddVariables())
	require.NoError(t, b.ImportModelPart())

	assert.Equal(t, "FluidModelPart.Parts_Fluid", b.ComputingModelPart().FullName())
}

func TestDistributedImporter(t *testing.T) {
	tests := []struct {
		name        string
		rank, size  int
		wantNodes   int
		wantGhosts  bool
		wantElement int
	}{
		{"serial", 0, 1, 8, false, 6},
		{"rank 0 of 2", 0, 2, 6, true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp, _ := kernel.NewModel().CreateModelPart("FluidModelPart", 3)
			mp.AddNodalSolutionStepVariable(kernel.PartitionIndex)

			imp := NewDistributedImporter("testdata/channel", comm.NewLocal(tt.rank, tt.size), nil)
			require.Error(t, imp.CreateCommunicators())
			require.NoError(t, imp.Import(mp))
			require.NoError(t, imp.CreateCommunicators())

			assert.Equal(t, tt.wantNodes, mp.NumberOfNodes())
			assert.Equal(t, tt.wantGhosts, imp.GhostNodes() > 0)
			assert.Equal(t, tt.wantElement, mp.NumberOfElements())
			for _, n := range mp.Nodes() {
				owner, ok := imp.Owner(n.ID)
				require.True(t, ok)
				assert.Equal(t, float64(owner), n.Value(kernel.PartitionIndex))
			}
		})
	}
}

func TestDistributedImporterNeedsPartitionIndex(t *testing.T) {
	mp, _ := kernel.NewModel().CreateModelPart("FluidModelPart", 3)
	err := NewDistributedImporter("testdata/channel", comm.NewLocal(0, 1), nil).Import(mp)
	assert.ErrorIs(t, err, kernel.ErrUnknownVariable)
}
