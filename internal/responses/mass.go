package responses

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/mdpa"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/solvers/structural"
)

var MassSchema = params.MustSchema(`{
	"response_type": "mass",
	"model_part_name": "",
	"domain_size": 2,
	"model_import_settings": {
		"input_type": "mdpa",
		"input_filename": ""
	}
}`).Extend(BaseSchema)

// MassResponse is the total mass of the two-node elements of a model part
// it imports itself.
type MassResponse struct {
	shape
	name string
	path string
	mp   *kernel.ModelPart
}

func NewMass(settings *params.Parameters, args Args) (*MassResponse, error) {
	s, err := params.Resolve(settings, MassSchema)
	if err != nil {
		return nil, err
	}
	sh, err := newShape(s, args)
	if err != nil {
		return nil, err
	}
	if d := s.Int("domain_size"); d != 2 && d != 3 {
		return nil, &params.ConfigError{Path: "domain_size", Reason: fmt.Sprintf("expected 2 or 3, got %d", d)}
	}
	sh.dim = s.Int("domain_size")

	name := s.String("model_part_name")
	if name == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	imp := s.Sub("model_import_settings")
	if t := imp.String("input_type"); t != "mdpa" {
		return nil, &params.ConfigError{Path: "model_import_settings.input_type", Reason: fmt.Sprintf("unsupported input type %q", t)}
	}
	path := imp.String("input_filename")
	if path == "" {
		return nil, &params.ConfigError{Path: "model_import_settings.input_filename", Reason: "required key is empty"}
	}
	if !filepath.IsAbs(path) && args.BaseDir != "" {
		path = filepath.Join(args.BaseDir, path)
	}

	mp, err := args.Model.CreateModelPart(name, 1)
	if err != nil {
		return nil, err
	}
	return &MassResponse{shape: sh, name: name, path: path, mp: mp}, nil
}

func (m *MassResponse) ModelPartName() string { return m.name }

// Initialize reads the model file and applies the coordinate update.
func (m *MassResponse) Initialize() error {
	doc, err := mdpa.ReadFile(m.path)
	if err != nil {
		return kernel.Fail("Initialize", err)
	}
	for v := range doc.NodalData {
		m.mp.AddNodalSolutionStepVariable(v)
	}
	if err := doc.Populate(m.mp); err != nil {
		return err
	}
	m.log.Debug("model read", zap.String("model_part", m.name), zap.Int("elements", m.mp.NumberOfElements()))
	return m.applyCoordinates(m.mp)
}

func (m *MassResponse) InitializeSolutionStep() error { return nil }
func (m *MassResponse) FinalizeSolutionStep() error   { return nil }
func (m *MassResponse) Finalize() error               { return nil }

func (m *MassResponse) CalculateValue() error {
	v, err := structural.Mass(m.mp)
	if err != nil {
		return err
	}
	m.value = v
	return nil
}

func (m *MassResponse) CalculateGradient() error {
	grad, err := m.finiteDifferences(m.mp, func() (float64, error) { return structural.Mass(m.mp) })
	if err != nil {
		return err
	}
	m.grad = grad
	return nil
}
