package analysis

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
)

// ErrResultMismatch is matched when a checked value differs from its
// reference.
var ErrResultMismatch = errors.New("result mismatch")

var CheckSchema = params.MustSchema(`{
	"type": "check_results",
	"model_part_name": "",
	"check_variables": [],
	"input_file_name": "",
	"tolerance": 1e-3,
	"relative_tolerance": 1e-6,
	"time_frequency": 0.0
}`)

// Mismatch is one value outside tolerance.
type Mismatch struct {
	Node      int
	Variable  kernel.Variable
	Time      float64
	Value     float64
	Reference float64
}

// CheckError lists the mismatches of one step.
type CheckError struct {
	Mismatches []Mismatch
}

func (e *CheckError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d values differ from the reference", len(e.Mismatches))
	for i, m := range e.Mismatches {
		if i == 5 {
			b.WriteString("; ...")
			break
		}
		fmt.Fprintf(&b, "; node %d %s at t=%g: %g != %g", m.Node, m.Variable, m.Time, m.Value, m.Reference)
	}
	return b.String()
}

func (e *CheckError) Is(target error) bool { return target == ErrResultMismatch }

// CheckResults compares nodal values against a file written by
// json_output. Reference values between recorded times are interpolated
// linearly; steps outside the recorded times are not checked.
type CheckResults struct {
	BaseProcess

	model     *kernel.Model
	mpName    string
	path      string
	vars      []kernel.Variable
	absTol    float64
	relTol    float64
	frequency float64
	log       *zap.Logger

	mp      *kernel.ModelPart
	ref     *Results
	next    float64
	checked int
}

func NewCheckResults(settings *params.Parameters, args ProcessArgs) (*CheckResults, error) {
	s, err := params.Resolve(settings, CheckSchema)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"model_part_name", "input_file_name"} {
		if s.String(key) == "" {
			return nil, &params.ConfigError{Path: key, Reason: "required key is empty"}
		}
	}
	vars, err := variables(s.Strings("check_variables"))
	if err != nil {
		return nil, &params.ConfigError{Path: "check_variables", Reason: err.Error()}
	}
	path := s.String("input_file_name")
	if !filepath.IsAbs(path) && args.BaseDir != "" {
		path = filepath.Join(args.BaseDir, path)
	}
	return &CheckResults{
		model:     args.Model,
		mpName:    s.String("model_part_name"),
		path:      path,
		vars:      vars,
		absTol:    s.Float("tolerance"),
		relTol:    s.Float("relative_tolerance"),
		frequency: s.Float("time_frequency"),
		log:       args.Logger,
	}, nil
}

func (c *CheckResults) ExecuteInitialize() error {
	mp, err := modelPart(c.model, c.mpName)
	if err != nil {
		return err
	}
	ref, err := ReadResults(c.path)
	if err != nil {
		return err
	}
	if !sort.Float64sAreSorted(ref.Time) {
		return fmt.Errorf("%s: TIME is not ascending", c.path)
	}
	c.mp, c.ref = mp, ref
	return nil
}

func (c *CheckResults) ExecuteBeforeSolutionLoop() error {
	c.next = c.mp.ProcessInfo().Time()
	return nil
}

// Checked is the number of steps compared so far.
func (c *CheckResults) Checked() int { return c.checked }

func (c *CheckResults) ExecuteFinalizeSolutionStep() error {
	t := c.mp.ProcessInfo().Time()
	if t < c.next-1e-12 {
		return nil
	}
	c.next = t + c.frequency

	var mismatches []Mismatch
	compared := false
	for _, n := range c.mp.Nodes() {
		series := c.ref.Nodes[nodeKey(n.ID)]
		for _, v := range c.vars {
			ref, ok := interpolate(c.ref.Time, series[string(v)], t)
			if !ok {
				continue
			}
			compared = true
			if val := n.Value(v); !withinTolerance(val, ref, c.absTol, c.relTol) {
				mismatches = append(mismatches, Mismatch{Node: n.ID, Variable: v, Time: t, Value: val, Reference: ref})
			}
		}
	}
	if compared {
		c.checked++
	}
	if len(mismatches) > 0 {
		return &CheckError{Mismatches: mismatches}
	}
	return nil
}

func (c *CheckResults) ExecuteFinalize() error {
	if c.log != nil {
		c.log.Info("results checked", zap.String("reference", c.path), zap.Int("steps", c.checked))
	}
	return nil
}

// withinTolerance accepts |value-ref| up to the larger of the absolute
// tolerance and the relative tolerance of the larger magnitude.
func withinTolerance(value, ref, absTol, relTol float64) bool {
	return math.Abs(value-ref) <= math.Max(relTol*math.Max(math.Abs(value), math.Abs(ref)), absTol)
}

func interpolate(times, values []float64, t float64) (float64, bool) {
	if len(times) == 0 || len(values) != len(times) {
		return 0, false
	}
	eps := 1e-10 * math.Max(1, math.Abs(t))
	if t < times[0]-eps || t > times[len(times)-1]+eps {
		return 0, false
	}
	i := sort.SearchFloat64s(times, t)
	if i < len(times) && math.Abs(times[i]-t) <= eps {
		return values[i], true
	}
	if i > 0 && math.Abs(times[i-1]-t) <= eps {
		return values[i-1], true
	}
	if i == 0 || i == len(times) {
		return values[min(i, len(times)-1)], true
	}
	w := (t - times[i-1]) / (times[i] - times[i-1])
	return values[i-1] + w*(values[i]-values[i-1]), true
}
