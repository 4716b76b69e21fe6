package cosim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

var JSONSchema = params.MustSchema(`{
	"type": "json_io",
	"exchange_directory": "cosim_exchange"
}`).Extend(BaseSchema)

// payload is one exported data set. Nodes are keyed by id.
type payload struct {
	ModelPart string             `json:"model_part"`
	Variable  string             `json:"variable"`
	Time      float64            `json:"time"`
	Nodes     map[string]float64 `json:"nodes"`
}

// JSON exchanges data through one JSON file per identifier in a shared
// directory.
type JSON struct {
	name      string
	model     *kernel.Model
	dir       string
	log       *zap.Logger
	connected bool
}

func NewJSON(settings *params.Parameters, args Args) (*JSON, error) {
	s, err := params.Resolve(settings, JSONSchema)
	if err != nil {
		return nil, err
	}
	if args.Model == nil {
		return nil, kernel.Fail("CreateIO", errors.New("no model"))
	}
	dir := s.String("exchange_directory")
	if dir == "" {
		return nil, &params.ConfigError{Path: "exchange_directory", Reason: "required key is empty"}
	}
	if !filepath.IsAbs(dir) && args.BaseDir != "" {
		dir = filepath.Join(args.BaseDir, dir)
	}
	return &JSON{
		name:  args.Name,
		model: args.Model,
		dir:   dir,
		log:   componentLogger(args, "JsonIO", s.Int("echo_level")),
	}, nil
}

func (j *JSON) Name() string { return j.name }

// Dir is the exchange directory.
func (j *JSON) Dir() string { return j.dir }

func (j *JSON) Connect() error {
	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return err
	}
	j.connected = true
	j.log.Info("connected", zap.String("dir", j.dir))
	return nil
}

func (j *JSON) Disconnect() error {
	j.connected = false
	j.log.Info("disconnected")
	return nil
}

func (j *JSON) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

func (j *JSON) target(op string, d Data) (*kernel.ModelPart, error) {
	if !j.connected {
		return nil, fmt.Errorf("%s %q: %w", op, d.Identifier, ErrNotConnected)
	}
	if d.Identifier == "" || filepath.Base(d.Identifier) != d.Identifier {
		return nil, fmt.Errorf("%s: invalid identifier %q", op, d.Identifier)
	}
	return j.model.GetModelPart(d.ModelPartName)
}

// ExportData writes the values of d.Variable on every node of the model
// part.
func (j *JSON) ExportData(d Data) error {
	mp, err := j.target("export", d)
	if err != nil {
		return err
	}
	p := payload{
		ModelPart: d.ModelPartName,
		Variable:  string(d.Variable),
		Time:      mp.ProcessInfo().Time(),
		Nodes:     make(map[string]float64, mp.NumberOfNodes()),
	}
	for _, n := range mp.Nodes() {
		p.Nodes[strconv.Itoa(n.ID)] = n.Value(d.Variable)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp := j.path(d.Identifier) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, j.path(d.Identifier)); err != nil {
		return err
	}
	j.log.Debug("data exported", zap.String("identifier", d.Identifier), zap.Int("nodes", len(p.Nodes)))
	return nil
}

// ImportData sets d.Variable on the nodes of the model part from the file
// exported under d.Identifier. Every node of the model part must be
// present in the file.
func (j *JSON) ImportData(d Data) error {
	mp, err := j.target("import", d)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(j.path(d.Identifier))
	if err != nil {
		return err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("import %q: %w", d.Identifier, err)
	}
	var missing []int
	for _, n := range mp.Nodes() {
		v, ok := p.Nodes[strconv.Itoa(n.ID)]
		if !ok {
			missing = append(missing, n.ID)
			continue
		}
		n.SetValue(d.Variable, v)
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return fmt.Errorf("import %q: no values for nodes %v", d.Identifier, missing)
	}
	j.log.Debug("data imported", zap.String("identifier", d.Identifier), zap.Int("nodes", len(p.Nodes)))
	return nil
}
