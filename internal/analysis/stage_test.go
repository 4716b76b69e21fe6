package analysis

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
	"github.com/san-kum/femstage/internal/solvers/structural"
	"github.com/san-kum/femstage/internal/storage"
)

var tipUY = -0.01 - 0.02*math.Sqrt2

func project(t *testing.T) *params.Parameters {
	t.Helper()
	p, err := params.Load(filepath.Join("testdata", "ProjectParameters.json"))
	require.NoError(t, err)
	return p
}

func testArgs() Args {
	sr := solvers.NewRegistry()
	structural.Register(sr)
	pr := NewRegistry()
	RegisterProcesses(pr)
	return Args{Solvers: sr, Processes: pr, Logger: zap.NewNop(), BaseDir: "testdata"}
}

func withProcesses(t *testing.T, p *params.Parameters, key, list string) *params.Parameters {
	t.Helper()
	wrapped, err := params.Parse(`{"list": ` + list + `}`)
	require.NoError(t, err)
	v, _ := wrapped.Get("list")
	require.NoError(t, p.Set(key, v))
	return p
}

func TestRunStaticTruss(t *testing.T) {
	out := filepath.Join(t.TempDir(), "truss.json")
	p := withProcesses(t, project(t), "output_processes", `[{
		"type": "json_output",
		"model_part_name": "Structure",
		"output_file_name": "`+out+`",
		"output_variables": ["DISPLACEMENT"]
	}]`)

	st, err := New(p, testArgs())
	require.NoError(t, err)
	assert.Equal(t, Unconstructed, st.Phase())

	require.NoError(t, st.Run(context.Background()))
	assert.Equal(t, Finalized, st.Phase())
	assert.Equal(t, 1, st.Solver().MainModelPart().ProcessInfo().Step())

	res, err := ReadResults(out)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0}, res.Time)
	require.Contains(t, res.Nodes, "NODE_2")
	assert.InDelta(t, tipUY, res.Nodes["NODE_2"]["DISPLACEMENT_Y"][0], 1e-12)
	assert.Len(t, res.Nodes["NODE_2"]["DISPLACEMENT_Z"], 1)
}

func TestPhasesAdvanceInOrder(t *testing.T) {
	st, err := New(project(t), testArgs())
	require.NoError(t, err)

	require.NoError(t, st.Initialize())
	assert.Equal(t, Initialized, st.Phase())
	assert.Error(t, st.Initialize())

	var steps []int
	st.AddObserver(ObserverFunc(func(step int, time float64) {
		steps = append(steps, step)
		assert.Equal(t, SolutionLoop, st.Phase())
	}))
	require.NoError(t, st.RunSolutionLoop(context.Background()))
	require.NoError(t, st.Finalize())
	assert.Equal(t, []int{1}, steps)
	assert.Equal(t, "DofsAdded", DofsAdded.String())
}

func TestSolutionLoopReachesEndTime(t *testing.T) {
	p := project(t)
	require.NoError(t, p.Sub("solver_settings").Sub("time_stepping").Set("time_step", 0.1))

	st, err := New(p, testArgs())
	require.NoError(t, err)
	count := 0
	st.AddObserver(ObserverFunc(func(int, float64) { count++ }))
	require.NoError(t, st.Run(context.Background()))

	assert.Equal(t, 10, count)
	assert.InDelta(t, 1.0, st.Time(), 1e-12)
}

func TestCancelStopsBetweenSteps(t *testing.T) {
	p := project(t)
	require.NoError(t, p.Sub("solver_settings").Sub("time_stepping").Set("time_step", 0.1))

	st, err := New(p, testArgs())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.AddObserver(ObserverFunc(func(step int, _ float64) {
		if step == 3 {
			cancel()
		}
	}))

	err = st.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, st.Solver().MainModelPart().ProcessInfo().Step())
	assert.Equal(t, SolutionLoop, st.Phase())
}

func TestUnknownSolverType(t *testing.T) {
	p := project(t)
	require.NoError(t, p.Sub("solver_settings").Set("solver_type", "explicit"))

	st, err := New(p, testArgs())
	assert.Nil(t, st)
	assert.ErrorIs(t, err, factory.ErrUnknownKind)

	var ke *factory.KindError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, factory.Kind("explicit"), ke.Kind)
}

func TestMissingSolverType(t *testing.T) {
	_, err := New(params.MustParse(`{"solver_settings": {}}`), testArgs())
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestEndBeforeStart(t *testing.T) {
	p := project(t)
	require.NoError(t, p.Sub("problem_data").Set("end_time", -1.0))
	_, err := New(p, testArgs())
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestCheckResults(t *testing.T) {
	p := withProcesses(t, project(t), "processes", `[{
		"type": "from_json_check_result_process",
		"model_part_name": "Structure",
		"check_variables": ["DISPLACEMENT_X", "DISPLACEMENT_Y"],
		"input_file_name": "truss_reference.json",
		"tolerance": 1e-9
	}]`)

	st, err := New(p, testArgs())
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background()))

	check := st.Processes()[0].(*CheckResults)
	assert.Equal(t, 1, check.Checked())
}

func TestCheckResultsMismatch(t *testing.T) {
	p := withProcesses(t, project(t), "processes", `[{
		"type": "check_results",
		"model_part_name": "Structure",
		"check_variables": ["DISPLACEMENT"],
		"input_file_name": "truss_wrong.json"
	}]`)

	st, err := New(p, testArgs())
	require.NoError(t, err)
	err = st.Run(context.Background())
	require.ErrorIs(t, err, ErrResultMismatch)

	var ce *CheckError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Mismatches, 1)
	assert.Equal(t, 2, ce.Mismatches[0].Node)
	assert.Equal(t, kernel.DisplacementY, ce.Mismatches[0].Variable)
}

func TestAssignScalarVariable(t *testing.T) {
	p := withProcesses(t, project(t), "processes", `[{
		"type": "assign_scalar_variable_process",
		"model_part_name": "Structure.Tip",
		"variable_name": "POINT_LOAD_Y",
		"value": -20.0,
		"constrained": false
	}]`)

	st, err := New(p, testArgs())
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background()))

	tip, _ := st.Solver().MainModelPart().Node(2)
	assert.InDelta(t, 2*tipUY, tip.Value(kernel.DisplacementY), 1e-9)
	assert.False(t, tip.IsFixed(kernel.PointLoadY))
}

func TestAssignUnknownVariable(t *testing.T) {
	p := withProcesses(t, project(t), "processes", `[{
		"type": "assign_scalar_variable_process",
		"model_part_name": "Structure",
		"variable_name": "TEMPERATURE"
	}]`)
	_, err := New(p, testArgs())
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestResultStore(t *testing.T) {
	dir := t.TempDir()
	p := withProcesses(t, project(t), "output_processes", `[{
		"type": "result_store",
		"model_part_name": "Structure",
		"output_variables": ["DISPLACEMENT_Y", "REACTION_X"],
		"store_dir": "`+dir+`"
	}]`)

	st, err := New(p, testArgs())
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background()))

	rs := st.Processes()[0].(*ResultStore)
	runs, err := storage.New(dir).List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rs.RunID(), runs[0].ID)
	assert.Equal(t, "truss", runs[0].Project)
	assert.Equal(t, "static", runs[0].SolverType)
	assert.InDelta(t, -tipUY, runs[0].Values["max_DISPLACEMENT_Y"], 1e-12)
	assert.InDelta(t, 10.0, runs[0].Values["max_REACTION_X"], 1e-9)
}

func TestUnknownProcessType(t *testing.T) {
	p := withProcesses(t, project(t), "output_processes", `[{"type": "vtk_output"}]`)
	_, err := New(p, testArgs())
	assert.ErrorIs(t, err, factory.ErrUnknownKind)
}

func TestBookkeepingIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "__pycache__")
	require.NoError(t, os.Mkdir(cache, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_ITR.post.bin"), nil, 0644))

	moved := RelocateResults(zap.NewNop(), filepath.Join(dir, "*_ITR.post.bin"), storage.SuffixFolder(".post.bin", "_results"))
	assert.Equal(t, []string{filepath.Join(dir, "1_ITR_results", "1_ITR.post.bin")}, moved)

	Cleanup(zap.NewNop(), cache, filepath.Join(dir, "response_combination.csv"))
	_, err := os.Stat(cache)
	assert.True(t, os.IsNotExist(err))

	assert.Empty(t, RelocateResults(zap.NewNop(), "[", storage.SuffixFolder(".post.bin", "_results")))
}
