package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

var JSONOutputSchema = params.MustSchema(`{
	"type": "json_output",
	"model_part_name": "",
	"output_file_name": "",
	"output_variables": [],
	"time_frequency": 0.0
}`)

// Results are nodal histories keyed "NODE_<id>" and then by variable name,
// next to the shared "TIME" column.
type Results struct {
	Time  []float64
	Nodes map[string]map[string][]float64
}

func nodeKey(id int) string { return "NODE_" + strconv.Itoa(id) }

func (r *Results) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Nodes)+1)
	out["TIME"] = r.Time
	for k, v := range r.Nodes {
		out[k] = v
	}
	return json.Marshal(out)
}

func (r *Results) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Nodes = make(map[string]map[string][]float64)
	for k, v := range raw {
		if k == "TIME" {
			if err := json.Unmarshal(v, &r.Time); err != nil {
				return fmt.Errorf("TIME: %w", err)
			}
			continue
		}
		var series map[string][]float64
		if err := json.Unmarshal(v, &series); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		r.Nodes[k] = series
	}
	return nil
}

// ReadResults reads a results file written by json_output.
func ReadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

// JSONOutput records nodal values on output steps and writes them when
// the stage finalizes.
type JSONOutput struct {
	BaseProcess

	model     *kernel.Model
	mpName    string
	path      string
	frequency float64
	log       *zap.Logger

	mp      *kernel.ModelPart
	vars    []kernel.Variable
	next    float64
	results Results
}

func NewJSONOutput(settings *params.Parameters, args ProcessArgs) (*JSONOutput, error) {
	s, err := params.Resolve(settings, JSONOutputSchema)
	if err != nil {
		return nil, err
	}
	mpName := s.String("model_part_name")
	if mpName == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	vars, err := variables(s.Strings("output_variables"))
	if err != nil {
		return nil, &params.ConfigError{Path: "output_variables", Reason: err.Error()}
	}
	name := s.String("output_file_name")
	if name == "" {
		name = mpName + ".json"
	}
	if !filepath.IsAbs(name) && args.BaseDir != "" {
		name = filepath.Join(args.BaseDir, name)
	}
	return &JSONOutput{
		model:     args.Model,
		mpName:    mpName,
		path:      name,
		frequency: s.Float("time_frequency"),
		vars:      vars,
		log:       args.Logger,
		results:   Results{Nodes: make(map[string]map[string][]float64)},
	}, nil
}

func (o *JSONOutput) ExecuteInitialize() error {
	mp, err := modelPart(o.model, o.mpName)
	if err != nil {
		return err
	}
	o.mp = mp
	return nil
}

func (o *JSONOutput) ExecuteBeforeSolutionLoop() error {
	o.next = o.mp.ProcessInfo().Time()
	return nil
}

func (o *JSONOutput) IsOutputStep() bool {
	return o.mp.ProcessInfo().Time() >= o.next-1e-12
}

func (o *JSONOutput) PrintOutput() error {
	t := o.mp.ProcessInfo().Time()
	o.results.Time = append(o.results.Time, t)
	for _, n := range o.mp.Nodes() {
		key := nodeKey(n.ID)
		series, ok := o.results.Nodes[key]
		if !ok {
			series = make(map[string][]float64, len(o.vars))
			o.results.Nodes[key] = series
		}
		for _, v := range o.vars {
			series[string(v)] = append(series[string(v)], n.Value(v))
		}
	}
	o.next = t + o.frequency
	return nil
}

// Results returns the recorded histories.
func (o *JSONOutput) Results() *Results { return &o.results }

// Path is the file written on finalize.
func (o *JSONOutput) Path() string { return o.path }

func (o *JSONOutput) ExecuteFinalize() error {
	data, err := json.MarshalIndent(&o.results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.path, data, 0644); err != nil {
		return err
	}
	if o.log != nil {
		o.log.Info("results written", zap.String("file", o.path), zap.Int("steps", len(o.results.Time)))
	}
	return nil
}
