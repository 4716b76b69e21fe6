package apps

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/config"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/optimization"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/storage"
)

func project(t *testing.T, template string) *Project {
	t.Helper()
	dir := t.TempDir()
	tmpl := config.GetTemplate(template)
	require.NotNil(t, tmpl)
	_, err := tmpl.WriteTo(dir, false)
	require.NoError(t, err)
	p, err := LoadProject(filepath.Join(dir, tmpl.Entry))
	require.NoError(t, err)
	return p
}

func TestRegistriesKinds(t *testing.T) {
	r := NewRegistries()
	assert.Equal(t, []string{"io", "optimizer", "process", "response", "solver"}, r.Categories())

	kinds := make(map[string]bool)
	for _, k := range r.Kinds() {
		kinds[k.Category+"/"+string(k.Kind)] = true
	}
	for _, want := range []string{
		"solver/static", "solver/dynamic",
		"process/json_output", "process/cosim_exchange",
		"response/mass", "response/eigenfrequency",
		"optimizer/steepest_descent",
		"io/empty_io", "io/json_io",
	} {
		assert.True(t, kinds[want], want)
	}
}

func TestDefaults(t *testing.T) {
	r := NewRegistries()

	d, err := r.Defaults("solver", "Static")
	require.NoError(t, err)
	assert.Equal(t, "static", d.String("solver_type"))

	d, err = r.Defaults("io", "json_io")
	require.NoError(t, err)
	assert.Equal(t, "cosim_exchange", d.String("exchange_directory"))

	_, err = r.Defaults("solver", "explicit")
	assert.ErrorIs(t, err, factory.ErrUnknownKind)
	_, err = r.Defaults("mesher", "static")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRunStaticTemplate(t *testing.T) {
	p := project(t, "truss_static")
	assert.False(t, p.IsOptimization())
	assert.Equal(t, "truss", p.Name())

	app := New(zap.NewNop())
	st, err := app.NewStage(p, nil)
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background()))

	tip, ok := st.Solver().MainModelPart().Node(2)
	require.True(t, ok)
	assert.InDelta(t, -0.01-0.02*math.Sqrt2, tip.Value(kernel.DisplacementY), 1e-9)

	runs, err := storage.New(filepath.Join(p.Dir, ".femstage", "runs")).List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.FileExists(t, filepath.Join(p.Dir, "Structure.json"))
}

func TestValidate(t *testing.T) {
	app := New(nil)
	for _, name := range config.ListTemplates() {
		assert.NoError(t, app.Validate(project(t, name)), name)
	}

	p := project(t, "truss_static")
	require.NoError(t, p.Settings.Sub("solver_settings").Set("solver_type", "explicit"))
	assert.ErrorIs(t, app.Validate(p), factory.ErrUnknownKind)

	p = project(t, "truss_optimization")
	responses := p.Settings.Sub("optimization_settings").Array("constraints")
	require.Len(t, responses, 1)
	require.NoError(t, responses[0].Sub("response_settings").Set("response_type", "volume"))
	assert.ErrorIs(t, app.Validate(p), factory.ErrUnknownKind)

	_, err := app.NewStage(p, nil)
	assert.Error(t, err)
	_, err = app.NewOptimizer(project(t, "truss_static"), nil, nil)
	assert.Error(t, err)
}

func TestOptimizeTemplate(t *testing.T) {
	p := project(t, "truss_optimization")
	assert.True(t, p.IsOptimization())
	algo := p.Settings.Sub("optimization_settings").Sub("optimization_algorithm")
	require.NoError(t, algo.Set("max_iterations", 2))

	var seen []storage.Iteration
	app := New(zap.NewNop())
	opt, err := app.NewOptimizer(p, nil, optimization.IterationObserverFunc(func(it storage.Iteration) {
		seen = append(seen, it)
	}))
	require.NoError(t, err)
	require.NoError(t, opt.Optimize(context.Background()))

	require.NotEmpty(t, seen)
	assert.LessOrEqual(t, len(seen), 2)
	assert.Greater(t, seen[0].Objective, 0.0)
	assert.Contains(t, seen[0].Values, "mass")

	info, err := os.Stat(filepath.Join(p.Dir, "Optimization_Results"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadProject(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"solver_settings": [}`), 0644))
	_, err = LoadProject(path)
	assert.Error(t, err)

	p := &Project{Path: "/tmp/opt.json", Settings: params.New()}
	assert.Equal(t, "opt.json", p.Name())
}

func TestArtifacts(t *testing.T) {
	p := project(t, "truss_static")
	got, err := p.Artifacts()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(p.Dir, "Structure.json")}, got)

	p = project(t, "truss_optimization")
	require.NoError(t, p.Settings.Sub("optimization_settings").Sub("output").Set("cleanup", []string{"response_combination.csv"}))
	got, err = p.Artifacts()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(p.Dir, "Optimization_Results"),
		filepath.Join(p.Dir, "response_combination.csv"),
	}, got)
}
