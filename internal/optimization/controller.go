package optimization

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/mdpa"
	"github.com/san-kum/femstage/internal/params"
)

var ModelSettingsSchema = params.MustSchema(`{
	"model_part_name": "",
	"domain_size": 2,
	"model_import_settings": {
		"input_type": "mdpa",
		"input_filename": ""
	},
	"design_surface_sub_model_part_name": "",
	"fixed_sub_model_part_name": ""
}`, "model_part_name", "model_import_settings.input_filename")

// ModelPartController owns the optimization model part: the design the
// optimizer moves and whose coordinates are handed to the responses.
type ModelPartController struct {
	model   *kernel.Model
	name    string
	path    string
	dim     int
	surface string
	fixed   string
	log     *zap.Logger

	mp *kernel.ModelPart
}

func NewModelPartController(settings *params.Parameters, model *kernel.Model, baseDir string, log *zap.Logger) (*ModelPartController, error) {
	s, err := params.Resolve(settings, ModelSettingsSchema)
	if err != nil {
		return nil, err
	}
	if s.String("model_part_name") == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	if d := s.Int("domain_size"); d != 2 && d != 3 {
		return nil, &params.ConfigError{Path: "domain_size", Reason: fmt.Sprintf("expected 2 or 3, got %d", d)}
	}
	imp := s.Sub("model_import_settings")
	if t := imp.String("input_type"); t != "mdpa" {
		return nil, &params.ConfigError{Path: "model_import_settings.input_type", Reason: fmt.Sprintf("unsupported input type %q", t)}
	}
	path := imp.String("input_filename")
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelPartController{
		model:   model,
		name:    s.String("model_part_name"),
		path:    path,
		dim:     s.Int("domain_size"),
		surface: s.String("design_surface_sub_model_part_name"),
		fixed:   s.String("fixed_sub_model_part_name"),
		log:     log.Named("ModelPartController"),
	}, nil
}

// Initialize creates and reads the optimization model part.
func (c *ModelPartController) Initialize() error {
	mp, err := c.model.CreateModelPart(c.name, 1)
	if err != nil {
		return err
	}
	doc, err := mdpa.ReadFile(c.path)
	if err != nil {
		return kernel.Fail("ImportModelPart", err)
	}
	for v := range doc.NodalData {
		mp.AddNodalSolutionStepVariable(v)
	}
	if err := doc.Populate(mp); err != nil {
		return err
	}
	for _, name := range []string{c.surface, c.fixed} {
		if name != "" && !mp.HasSubModelPart(name) {
			return &params.ConfigError{Path: "model_settings", Reason: fmt.Sprintf("%s has no sub model part %q", c.name, name)}
		}
	}
	c.mp = mp
	c.log.Info("optimization model part read", zap.String("model_part", c.name), zap.Int("nodes", mp.NumberOfNodes()))
	return nil
}

func (c *ModelPartController) OptimizationModelPart() *kernel.ModelPart { return c.mp }

// Coordinates returns the current coordinates in node order.
func (c *ModelPartController) Coordinates() (x, y, z []float64) { return coordinates(c.mp) }

// DesignGradient restricts g to the nodes of the design surface that are
// not fixed and to the first domain size components.
func (c *ModelPartController) DesignGradient(g map[int][3]float64) map[int][3]float64 {
	design := c.mp
	if c.surface != "" {
		design, _ = c.mp.SubModelPart(c.surface)
	}
	var fixed *kernel.ModelPart
	if c.fixed != "" {
		fixed, _ = c.mp.SubModelPart(c.fixed)
	}
	out := make(map[int][3]float64, design.NumberOfNodes())
	for _, n := range design.Nodes() {
		if fixed != nil {
			if _, ok := fixed.Node(n.ID); ok {
				continue
			}
		}
		v, ok := g[n.ID]
		if !ok {
			continue
		}
		var r [3]float64
		copy(r[:c.dim], v[:c.dim])
		out[n.ID] = r
	}
	return out
}

// UpdateMesh moves the nodes by update, current and initial position.
func (c *ModelPartController) UpdateMesh(update map[int][3]float64) {
	for id, d := range update {
		n, ok := c.mp.Node(id)
		if !ok {
			continue
		}
		x := [3]float64{n.X + d[0], n.Y + d[1], n.Z + d[2]}
		n.SetCoordinates(x)
		n.X0, n.Y0, n.Z0 = x[0], x[1], x[2]
	}
}
