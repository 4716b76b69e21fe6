// Package apps composes the component registries of all solver
// applications and builds runnable stages and optimizers from project
// files.
package apps

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/cosim"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/optimization"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/responses"
	"github.com/san-kum/femstage/internal/solvers"
	"github.com/san-kum/femstage/internal/solvers/fluid"
	"github.com/san-kum/femstage/internal/solvers/meshmoving"
	"github.com/san-kum/femstage/internal/solvers/structural"
)

// ErrUnknownCategory is returned for a component category that no
// registry serves.
var ErrUnknownCategory = errors.New("unknown component category")

// Registries holds one registry per component category.
type Registries struct {
	Solvers    *solvers.Registry
	Processes  *analysis.Registry
	Responses  *responses.Registry
	Optimizers *optimization.Registry
	IO         *cosim.Registry
}

// NewRegistries returns registries filled with every built-in kind.
func NewRegistries() *Registries {
	r := &Registries{
		Solvers:    solvers.NewRegistry(),
		Processes:  analysis.NewRegistry(),
		Responses:  responses.NewRegistry(),
		Optimizers: optimization.NewRegistry(),
		IO:         cosim.NewRegistry(),
	}
	structural.Register(r.Solvers)
	fluid.Register(r.Solvers)
	meshmoving.Register(r.Solvers)
	analysis.RegisterProcesses(r.Processes)
	cosim.Register(r.IO)
	cosim.RegisterProcesses(r.Processes, r.IO)
	responses.Register(r.Responses)
	optimization.Register(r.Optimizers)
	return r
}

// Kind is one registered kind and the key that selects it.
type Kind struct {
	Category      string
	Discriminator string
	Kind          factory.Kind
}

// Categories lists the component categories in sorted order.
func (r *Registries) Categories() []string {
	cats := []string{
		r.Solvers.Category(),
		r.Processes.Category(),
		r.Responses.Category(),
		r.Optimizers.Category(),
		r.IO.Category(),
	}
	sort.Strings(cats)
	return cats
}

// Kinds lists every registered kind by category.
func (r *Registries) Kinds() []Kind {
	var out []Kind
	add := func(category, disc string, kinds []factory.Kind) {
		for _, k := range kinds {
			out = append(out, Kind{Category: category, Discriminator: disc, Kind: k})
		}
	}
	add(r.IO.Category(), r.IO.Discriminator(), r.IO.Kinds())
	add(r.Optimizers.Category(), r.Optimizers.Discriminator(), r.Optimizers.Kinds())
	add(r.Processes.Category(), r.Processes.Discriminator(), r.Processes.Kinds())
	add(r.Responses.Category(), r.Responses.Discriminator(), r.Responses.Kinds())
	add(r.Solvers.Category(), r.Solvers.Discriminator(), r.Solvers.Kinds())
	return out
}

// Defaults returns the default settings of a kind. Aliases are accepted.
func (r *Registries) Defaults(category string, kind factory.Kind) (*params.Parameters, error) {
	var (
		schema params.Schema
		err    error
	)
	switch category {
	case r.Solvers.Category():
		schema, err = r.Solvers.Defaults(kind)
	case r.Processes.Category():
		schema, err = r.Processes.Defaults(kind)
	case r.Responses.Category():
		schema, err = r.Responses.Defaults(kind)
	case r.Optimizers.Category():
		schema, err = r.Optimizers.Defaults(kind)
	case r.IO.Category():
		schema, err = r.IO.Defaults(kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if err != nil {
		return nil, err
	}
	return schema.Defaults.Clone(), nil
}

// Project is a loaded project parameter file.
type Project struct {
	Path     string
	Dir      string
	Settings *params.Parameters
}

func LoadProject(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p, err := params.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &Project{Path: abs, Dir: filepath.Dir(abs), Settings: p}, nil
}

// IsOptimization reports whether the project drives an optimization
// rather than a single analysis.
func (p *Project) IsOptimization() bool { return p.Settings.Has("optimization_settings") }

// Name is the problem name, or the file name for optimizations.
func (p *Project) Name() string {
	if name := p.Settings.Sub("problem_data").String("problem_name"); name != "" {
		return name
	}
	return filepath.Base(p.Path)
}

// App builds stages and optimizers over a shared set of registries.
type App struct {
	reg *Registries
	log *zap.Logger
}

func New(log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{reg: NewRegistries(), log: log}
}

func (a *App) Registries() *Registries { return a.reg }

// NewStage constructs the analysis stage of p over model. A nil model
// gets a fresh one.
func (a *App) NewStage(p *Project, model *kernel.Model) (*analysis.Stage, error) {
	if p.IsOptimization() {
		return nil, fmt.Errorf("%s is an optimization project", p.Path)
	}
	return analysis.New(p.Settings, analysis.Args{
		Solvers:   a.reg.Solvers,
		Processes: a.reg.Processes,
		Model:     model,
		Logger:    a.log,
		BaseDir:   p.Dir,
	})
}

// NewOptimizer constructs the optimizer of p over model.
func (a *App) NewOptimizer(p *Project, model *kernel.Model, observer optimization.IterationObserver) (optimization.Optimizer, error) {
	if !p.IsOptimization() {
		return nil, fmt.Errorf("%s has no optimization_settings", p.Path)
	}
	if model == nil {
		model = kernel.NewModel()
	}
	return optimization.CreateOptimizer(p.Settings.Sub("optimization_settings"), a.reg.Optimizers, optimization.Args{
		Model:     model,
		Responses: a.reg.Responses,
		Solvers:   a.reg.Solvers,
		Processes: a.reg.Processes,
		Logger:    a.log,
		BaseDir:   p.Dir,
		Observer:  observer,
	})
}

// Validate constructs every component of p on a scratch model without
// importing or solving anything.
func (a *App) Validate(p *Project) error {
	if !p.IsOptimization() {
		_, err := a.NewStage(p, kernel.NewModel())
		return err
	}
	if _, err := a.NewOptimizer(p, kernel.NewModel(), nil); err != nil {
		return err
	}
	opt := p.Settings.Sub("optimization_settings")
	var errs []error
	for _, key := range []string{"objectives", "constraints"} {
		for i, entry := range opt.Array(key) {
			_, err := a.reg.Responses.Create(entry.Sub("response_settings"), responses.Args{
				ID:        entry.String("identifier"),
				Model:     kernel.NewModel(),
				Solvers:   a.reg.Solvers,
				Processes: a.reg.Processes,
				Logger:    a.log,
				BaseDir:   p.Dir,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", key, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Artifacts lists the result files and folders a run of p writes next to
// the project file: the optimization output directory, its cleanup entries
// and the files of json_output processes.
func (p *Project) Artifacts() ([]string, error) {
	var out []string
	add := func(name string) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(p.Dir, name)
		}
		out = append(out, name)
	}

	if p.IsOptimization() {
		s, err := params.Resolve(p.Settings.Sub("optimization_settings"), optimization.Schema)
		if err != nil {
			return nil, err
		}
		output := s.Sub("output")
		add(output.String("output_directory"))
		for _, c := range output.Strings("cleanup") {
			add(c)
		}
		return out, nil
	}

	for _, proc := range p.Settings.Array("output_processes") {
		switch proc.String("type") {
		case "json_output", "json_output_process":
		default:
			continue
		}
		s, err := params.Resolve(proc, analysis.JSONOutputSchema)
		if err != nil {
			return nil, err
		}
		name := s.String("output_file_name")
		if name == "" {
			name = s.String("model_part_name") + ".json"
		}
		add(name)
	}
	return out, nil
}
