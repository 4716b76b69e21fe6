package analysis

import (
	"math"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

var AssignSchema = params.MustSchema(`{
	"type": "assign_scalar_variable_process",
	"model_part_name": "",
	"variable_name": "",
	"value": 0.0,
	"constrained": true,
	"interval": [0.0, "End"]
}`)

// Assign sets a nodal value on every node of a model part at the start of
// each step inside its interval, fixing it when constrained.
type Assign struct {
	BaseProcess

	model       *kernel.Model
	mpName      string
	variable    kernel.Variable
	value       float64
	constrained bool
	from, to    float64

	mp *kernel.ModelPart
}

func NewAssign(settings *params.Parameters, args ProcessArgs) (*Assign, error) {
	s, err := params.Resolve(settings, AssignSchema)
	if err != nil {
		return nil, err
	}
	if s.String("model_part_name") == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	v, ok := kernel.VariableByName(s.String("variable_name"))
	if !ok {
		return nil, &params.ConfigError{Path: "variable_name", Reason: "unknown scalar variable " + s.String("variable_name")}
	}

	// A string end such as "End" leaves the interval open.
	interval := s.Floats("interval")
	from, to := 0.0, math.Inf(1)
	if len(interval) > 0 {
		from = interval[0]
	}
	if len(interval) > 1 {
		to = interval[1]
	}
	return &Assign{
		model:       args.Model,
		mpName:      s.String("model_part_name"),
		variable:    v,
		value:       s.Float("value"),
		constrained: s.Bool("constrained"),
		from:        from,
		to:          to,
	}, nil
}

func (a *Assign) ExecuteInitialize() error {
	mp, err := modelPart(a.model, a.mpName)
	if err != nil {
		return err
	}
	a.mp = mp
	return nil
}

func (a *Assign) ExecuteInitializeSolutionStep() error {
	t := a.mp.ProcessInfo().Time()
	active := t >= a.from && t <= a.to
	for _, n := range a.mp.Nodes() {
		if !active {
			if a.constrained {
				n.Free(a.variable)
			}
			continue
		}
		n.SetValue(a.variable, a.value)
		if a.constrained {
			n.Fix(a.variable)
		}
	}
	return nil
}
