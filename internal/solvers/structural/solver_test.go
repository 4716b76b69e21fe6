package structural

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
)

func newTruss(t *testing.T, kind string, extra string) *Solver {
	t.Helper()
	settings := params.MustParse(`{
		"solver_type": "` + kind + `",
		"model_part_name": "Structure",
		"domain_size": 2,
		"model_import_settings": {"input_filename": "truss"}
		` + extra + `
	}`)
	r := solvers.NewRegistry()
	Register(r)
	s, err := r.Create(settings, solvers.Args{Model: kernel.NewModel(), Logger: zap.NewNop(), BaseDir: "testdata"})
	require.NoError(t, err)

	require.NoError(t, s.AddVariables())
	require.NoError(t, s.ImportModelPart())
	require.NoError(t, s.PrepareModelPart())
	require.NoError(t, s.AddDofs())
	require.NoError(t, s.Initialize())
	return s.(*Solver)
}

func step(t *testing.T, s *Solver, time float64) float64 {
	t.Helper()
	next, err := s.AdvanceInTime(time)
	require.NoError(t, err)
	require.NoError(t, s.InitializeSolutionStep())
	require.NoError(t, s.Predict())
	converged, err := s.SolveSolutionStep()
	require.NoError(t, err)
	require.True(t, converged)
	require.NoError(t, s.FinalizeSolutionStep())
	return next
}

func TestStaticTruss(t *testing.T) {
	s := newTruss(t, "static", "")
	step(t, s, 0)

	mp := s.MainModelPart()
	tip, _ := mp.Node(2)
	assert.InDelta(t, -0.01, tip.Value(kernel.DisplacementX), 1e-9)
	assert.InDelta(t, -0.01-0.02*math.Sqrt2, tip.Value(kernel.DisplacementY), 1e-9)

	n1, _ := mp.Node(1)
	n3, _ := mp.Node(3)
	assert.InDelta(t, 10, n1.Value(kernel.ReactionX), 1e-9)
	assert.InDelta(t, 0, n1.Value(kernel.ReactionY), 1e-9)
	assert.InDelta(t, -10, n3.Value(kernel.ReactionX), 1e-9)
	assert.InDelta(t, 10, n3.Value(kernel.ReactionY), 1e-9)

	bars, err := Bars(mp)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, -10, AxialStress(bars[0]), 1e-9)
	assert.InDelta(t, 10*math.Sqrt2, AxialStress(bars[1]), 1e-9)

	require.NoError(t, s.Finalize())
}

func TestStaticTrussIterativeSolver(t *testing.T) {
	s := newTruss(t, "Static", `, "linear_solver_settings": {"solver_type": "cg", "tolerance": 1e-12}`)
	step(t, s, 0)

	tip, _ := s.MainModelPart().Node(2)
	assert.InDelta(t, -0.01-0.02*math.Sqrt2, tip.Value(kernel.DisplacementY), 1e-8)
}

func TestTrussMass(t *testing.T) {
	s := newTruss(t, "static", "")
	m, err := Mass(s.MainModelPart())
	require.NoError(t, err)
	assert.InDelta(t, 2*(1+math.Sqrt2), m, 1e-12)
}

func TestDynamicTrussApproachesStatic(t *testing.T) {
	s := newTruss(t, "dynamic", `, "time_stepping": {"time_step": 100.0}`)
	assert.Equal(t, 2, s.MainModelPart().BufferSize())
	step(t, s, 0)

	tip, _ := s.MainModelPart().Node(2)
	assert.InDelta(t, -0.01-0.02*math.Sqrt2, tip.Value(kernel.DisplacementY), 1e-5)
	assert.InDelta(t, tip.Value(kernel.DisplacementY)/100, tip.Value(kernel.VelocityY), 1e-12)
}

func TestDynamicTrussIsDamped(t *testing.T) {
	s := newTruss(t, "dynamic", `, "time_stepping": {"time_step": 0.01}`)
	step(t, s, 0)

	tip, _ := s.MainModelPart().Node(2)
	static := -0.01 - 0.02*math.Sqrt2
	assert.Less(t, tip.Value(kernel.DisplacementY), 0.0)
	assert.Greater(t, tip.Value(kernel.DisplacementY), static)
}

func TestTrussSettingsValidation(t *testing.T) {
	r := solvers.NewRegistry()
	Register(r)
	args := solvers.Args{Model: kernel.NewModel()}

	_, err := r.Create(params.MustParse(`{
		"solver_type": "static", "model_part_name": "S", "domain_size": 2,
		"analysis_type": "non_linear"
	}`), args)
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = r.Create(params.MustParse(`{
		"solver_type": "dynamic", "model_part_name": "D", "domain_size": 2,
		"scheme_type": "newmark"
	}`), args)
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestBarsNeedMaterial(t *testing.T) {
	mp, _ := kernel.NewModel().CreateModelPart("S", 1)
	_, _ = mp.CreateNode(1, 0, 0, 0)
	_, _ = mp.CreateNode(2, 1, 0, 0)
	_, err := mp.CreateElement(1, "TrussElement2D2N", 7, []int{1, 2})
	require.NoError(t, err)

	_, err = Bars(mp)
	assert.ErrorIs(t, err, kernel.ErrEngine)
}
