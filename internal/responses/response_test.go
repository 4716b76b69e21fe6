package responses

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers"
	"github.com/san-kum/femstage/internal/solvers/structural"
)

func testArgs(id string) Args {
	sr := solvers.NewRegistry()
	structural.Register(sr)
	pr := analysis.NewRegistry()
	analysis.RegisterProcesses(pr)
	return Args{
		ID:        id,
		Model:     kernel.NewModel(),
		Solvers:   sr,
		Processes: pr,
		Logger:    zap.NewNop(),
		BaseDir:   "testdata",
	}
}

func create(t *testing.T, settings string, args Args) Response {
	t.Helper()
	r := NewRegistry()
	Register(r)
	resp, err := r.Create(params.MustParse(settings), args)
	require.NoError(t, err)
	return resp
}

// evaluate runs one value and gradient evaluation through the lifecycle
// the optimization driver uses.
func evaluate(t *testing.T, r Response, gradient bool) {
	t.Helper()
	require.NoError(t, r.Initialize())
	require.NoError(t, r.InitializeSolutionStep())
	require.NoError(t, r.CalculateValue())
	if gradient {
		require.NoError(t, r.CalculateGradient())
	}
	require.NoError(t, r.FinalizeSolutionStep())
	require.NoError(t, r.Finalize())
}

const massSettings = `{
	"response_type": "mass",
	"model_part_name": "MassPart",
	"model_import_settings": {"input_filename": "truss"}
}`

func TestMass(t *testing.T) {
	args := testArgs("mass")
	r := create(t, massSettings, args)
	assert.Equal(t, "MassPart", r.ModelPartName())
	assert.True(t, args.Model.HasModelPart("MassPart"))

	evaluate(t, r, true)
	assert.InDelta(t, 2*(1+math.Sqrt2), r.Value(), 1e-12)

	g := r.ShapeGradient()
	require.Len(t, g, 3)
	assert.InDelta(t, 2*(1+1/math.Sqrt2), g[2][0], 1e-6)
	assert.InDelta(t, -math.Sqrt2, g[2][1], 1e-6)
	assert.InDelta(t, -2.0, g[1][0], 1e-6)
	assert.Zero(t, g[2][2])
}

func TestCoordinatesUpdateAppliesAfterImport(t *testing.T) {
	r := create(t, massSettings, testArgs("mass"))
	require.NoError(t, r.SetCoordinatesUpdate(
		[]float64{0, 2, 0},
		[]float64{0, 0, 1},
		[]float64{0, 0, 0},
	))
	evaluate(t, r, false)
	assert.InDelta(t, 2*(2+math.Sqrt(5)), r.Value(), 1e-12)
}

func TestCoordinatesUpdateMismatch(t *testing.T) {
	r := create(t, massSettings, testArgs("mass"))
	assert.Error(t, r.SetCoordinatesUpdate([]float64{0}, []float64{0, 1}, []float64{0}))

	require.NoError(t, r.SetCoordinatesUpdate([]float64{0}, []float64{0}, []float64{0}))
	assert.Error(t, r.Initialize())
}

func TestStrainEnergy(t *testing.T) {
	args := testArgs("compliance")
	r := create(t, `{
		"response_type": "strain_energy",
		"primal_settings": "ProjectParameters.json"
	}`, args)
	assert.Equal(t, "Structure", r.ModelPartName())

	evaluate(t, r, true)
	assert.InDelta(t, 0.05+0.1*math.Sqrt2, r.Value(), 1e-9)

	g := r.ShapeGradient()
	require.Len(t, g, 3)
	assert.NotZero(t, g[2][0])

	mp, err := args.Model.GetModelPart("Structure")
	require.NoError(t, err)
	tip, _ := mp.Node(2)
	assert.Equal(t, [3]float64{1, 0, 0}, tip.Coordinates())
	assert.InDelta(t, -0.01-0.02*math.Sqrt2, tip.Value(kernel.DisplacementY), 1e-9)
	assert.Equal(t, analysis.Finalized, r.(*Primal).Stage().Phase())
}

func TestLocalStress(t *testing.T) {
	r := create(t, `{
		"response_type": "adjoint_local_stress",
		"primal_settings": "ProjectParameters.json",
		"traced_element_id": 2
	}`, testArgs("stress"))
	evaluate(t, r, false)
	assert.InDelta(t, 10*math.Sqrt2, r.Value(), 1e-9)
}

func TestLocalStressNeedsElement(t *testing.T) {
	r := NewRegistry()
	Register(r)
	_, err := r.Create(params.MustParse(`{
		"response_type": "adjoint_local_stress",
		"primal_settings": "ProjectParameters.json"
	}`), testArgs("stress"))
	assert.ErrorIs(t, err, params.ErrConfiguration)
}

func TestMaxStress(t *testing.T) {
	r := create(t, `{
		"response_type": "adjoint_max_stress",
		"primal_settings": "ProjectParameters.json"
	}`, testArgs("max_stress"))
	evaluate(t, r, false)
	assert.InDelta(t, 10*math.Sqrt2, r.Value(), 1e-9)
}

func TestEigenfrequency(t *testing.T) {
	s2 := 250 * math.Sqrt2
	trace := 1000 + 2*s2
	det := (1000+s2)*s2 - s2*s2
	m := 1 + math.Sqrt2
	disc := math.Sqrt(trace*trace - 4*det)
	low := (trace - disc) / (2 * m)
	high := (trace + disc) / (2 * m)

	r := create(t, `{
		"response_type": "eigenfrequency",
		"primal_settings": "ProjectParameters.json"
	}`, testArgs("eigen"))
	evaluate(t, r, true)
	assert.InDelta(t, low, r.Value(), 1e-8)
	assert.Len(t, r.ShapeGradient(), 3)

	r = create(t, `{
		"response_type": "eigenfrequency",
		"primal_settings": "ProjectParameters.json",
		"traced_eigenfrequencies": [1, 2],
		"weighting_method": "linear_scaling",
		"weighting_factors": [0.5, 0.5]
	}`, testArgs("eigen"))
	evaluate(t, r, false)
	assert.InDelta(t, (low+high)/2, r.Value(), 1e-8)
}

func TestEigenfrequencyWeights(t *testing.T) {
	reg := NewRegistry()
	Register(reg)
	for name, settings := range map[string]string{
		"several without scaling": `{"response_type": "eigenfrequency", "primal_settings": "ProjectParameters.json", "traced_eigenfrequencies": [1, 2]}`,
		"factor count":            `{"response_type": "eigenfrequency", "primal_settings": "ProjectParameters.json", "traced_eigenfrequencies": [1, 2], "weighting_method": "linear_scaling"}`,
		"zero index":              `{"response_type": "eigenfrequency", "primal_settings": "ProjectParameters.json", "traced_eigenfrequencies": [0]}`,
		"unknown method":          `{"response_type": "eigenfrequency", "primal_settings": "ProjectParameters.json", "weighting_method": "quadratic"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Create(params.MustParse(settings), testArgs("eigen"))
			assert.ErrorIs(t, err, params.ErrConfiguration)
		})
	}
}

func TestResponseSettings(t *testing.T) {
	reg := NewRegistry()
	Register(reg)

	_, err := reg.Create(params.MustParse(`{"response_type": "lift"}`), testArgs("x"))
	assert.ErrorIs(t, err, factory.ErrUnknownKind)

	_, err = reg.Create(params.MustParse(massSettings), testArgs(""))
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = reg.Create(params.MustParse(`{
		"response_type": "strain_energy",
		"primal_settings": "ProjectParameters.json",
		"gradient_mode": "adjoint"
	}`), testArgs("x"))
	assert.ErrorIs(t, err, params.ErrConfiguration)

	_, err = reg.Create(params.MustParse(`{"response_type": "strain_energy"}`), testArgs("x"))
	assert.ErrorIs(t, err, params.ErrConfiguration)
}
