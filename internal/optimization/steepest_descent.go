package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/responses"
	"github.com/san-kum/femstage/internal/storage"
)

var SteepestDescentSchema = params.MustSchema(`{
	"optimization_algorithm": {
		"optimizer_type": "steepest_descent",
		"max_iterations": 10,
		"relative_tolerance": 1e-3,
		"line_search": {
			"step_size": 0.1,
			"normalize_search_direction": true
		}
	}
}`).Extend(Schema)

// SteepestDescent moves the design against the objective gradient with a
// fixed step until the relative change of the objective falls below the
// tolerance or the iteration limit is reached. Constraints are evaluated
// and logged but do not steer the design.
type SteepestDescent struct {
	controller *ModelPartController
	analyzer   Analyzer
	comm       *Communicator

	objective   string
	sign        float64
	constraints []string

	maxIter   int
	relTol    float64
	step      float64
	normalize bool

	outDir     string
	logPath    string
	history    *storage.History
	resultFile string
	suffix     string
	cleanup    []string

	observer IterationObserver
	log      *zap.Logger
}

func NewSteepestDescent(settings *params.Parameters, args Args) (*SteepestDescent, error) {
	s, err := params.Resolve(settings, SteepestDescentSchema)
	if err != nil {
		return nil, err
	}
	log := args.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("SteepestDescent")

	objectives, err := entries(s, "objectives")
	if err != nil {
		return nil, err
	}
	if len(objectives) != 1 {
		return nil, &params.ConfigError{Path: "objectives", Reason: fmt.Sprintf("steepest descent needs exactly one objective, got %d", len(objectives))}
	}
	obj := objectives[0]
	sign := 1.0
	switch obj.kind {
	case "minimization":
	case "maximization":
		sign = -1
	default:
		return nil, &params.ConfigError{Path: "objectives[0].type", Reason: fmt.Sprintf("unsupported objective type %q", obj.kind)}
	}
	constraints, err := entries(s, "constraints")
	if err != nil {
		return nil, err
	}

	algo := s.Sub("optimization_algorithm")
	ls := algo.Sub("line_search")
	if algo.Int("max_iterations") < 1 {
		return nil, &params.ConfigError{Path: "optimization_algorithm.max_iterations", Reason: "at least one iteration is needed"}
	}
	if ls.Float("step_size") <= 0 {
		return nil, &params.ConfigError{Path: "optimization_algorithm.line_search.step_size", Reason: "step size must be positive"}
	}

	controller, err := NewModelPartController(s.Sub("model_settings"), args.Model, args.BaseDir, log)
	if err != nil {
		return nil, fmt.Errorf("model_settings: %w", err)
	}

	specs := []ResponseSpec{obj.spec}
	var constraintIDs []string
	for _, c := range constraints {
		specs = append(specs, c.spec)
		constraintIDs = append(constraintIDs, c.spec.ID)
	}
	analyzer, err := NewInternalAnalyzer(specs, args.Responses, responses.Args{
		Model:     args.Model,
		Solvers:   args.Solvers,
		Processes: args.Processes,
		Logger:    log,
		BaseDir:   args.BaseDir,
	})
	if err != nil {
		return nil, err
	}

	out := s.Sub("output")
	outDir := resolvePath(args.BaseDir, out.String("output_directory"))
	resultFile := out.String("result_file")
	if resultFile != "" {
		resultFile = resolvePath(args.BaseDir, resultFile)
	}
	var cleanup []string
	for _, p := range out.Strings("cleanup") {
		cleanup = append(cleanup, resolvePath(args.BaseDir, p))
	}

	return &SteepestDescent{
		controller:  controller,
		analyzer:    analyzer,
		comm:        NewCommunicator(),
		objective:   obj.spec.ID,
		sign:        sign,
		constraints: constraintIDs,
		maxIter:     algo.Int("max_iterations"),
		relTol:      algo.Float("relative_tolerance"),
		step:        ls.Float("step_size"),
		normalize:   ls.Bool("normalize_search_direction"),
		outDir:      outDir,
		logPath:     filepath.Join(outDir, out.String("response_log_filename")+".csv"),
		history:     storage.NewHistory(resolvePath(outDir, out.String("history_database"))),
		resultFile:  resultFile,
		suffix:      out.String("result_folder_suffix"),
		cleanup:     cleanup,
		observer:    args.Observer,
		log:         log,
	}, nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

func (o *SteepestDescent) Controller() *ModelPartController { return o.controller }
func (o *SteepestDescent) Analyzer() Analyzer                { return o.analyzer }
func (o *SteepestDescent) History() *storage.History         { return o.history }
func (o *SteepestDescent) ResponseLogPath() string           { return o.logPath }

// Optimize runs the optimization loop. Cancellation is checked between
// iterations; the responses are finalized on every exit path.
func (o *SteepestDescent) Optimize(ctx context.Context) error {
	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		return err
	}
	if err := o.controller.Initialize(); err != nil {
		return err
	}
	if err := o.history.Init(ctx); err != nil {
		return fmt.Errorf("history database: %w", err)
	}
	defer o.history.Close()

	rlog, err := newResponseLog(o.logPath, o.objective, o.constraints)
	if err != nil {
		return err
	}
	defer rlog.Close()

	if err := o.analyzer.InitializeBeforeOptimizationLoop(); err != nil {
		return err
	}
	err = o.loop(ctx, rlog)
	if ferr := o.analyzer.FinalizeAfterOptimizationLoop(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	analysis.Cleanup(o.log, o.cleanup...)
	return err
}

func (o *SteepestDescent) loop(ctx context.Context, rlog *responseLog) error {
	design := o.controller.OptimizationModelPart()
	var initial, previous float64

	for itr := 1; itr <= o.maxIter; itr++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		design.CloneTimeStep(float64(itr))
		design.ProcessInfo().SetStep(itr)

		o.comm.Clear()
		o.comm.RequestValue(o.objective)
		o.comm.RequestGradient(o.objective)
		for _, id := range o.constraints {
			o.comm.RequestValue(id)
		}
		if err := o.analyzer.AnalyzeDesignAndReportToCommunicator(design, itr, o.comm); err != nil {
			return err
		}

		f, ok := o.comm.Value(o.objective)
		if !ok {
			return fmt.Errorf("iteration %d: objective %q reported no value", itr, o.objective)
		}
		it := storage.Iteration{
			Number:    itr,
			Objective: f,
			StepSize:  o.step,
			Values:    map[string]float64{o.objective: f},
		}
		for _, id := range o.constraints {
			if v, ok := o.comm.Value(id); ok {
				it.Values[id] = v
			}
		}
		if itr == 1 {
			initial = f
		} else {
			it.AbsoluteChange = f - previous
			if initial != 0 {
				it.RelativeChange = it.AbsoluteChange / math.Abs(initial)
			}
		}
		previous = f

		if err := o.record(ctx, rlog, it, time.Since(started)); err != nil {
			return err
		}
		o.relocate(itr)

		if itr > 1 && math.Abs(it.RelativeChange) < o.relTol {
			o.log.Info("optimization converged", zap.Int("iteration", itr), zap.Float64("objective", f))
			return nil
		}
		if itr == o.maxIter {
			o.log.Info("maximum number of iterations reached", zap.Int("iteration", itr), zap.Float64("objective", f))
			return nil
		}

		g, ok := o.comm.Gradient(o.objective)
		if !ok {
			return fmt.Errorf("iteration %d: objective %q reported no gradient", itr, o.objective)
		}
		o.controller.UpdateMesh(o.update(g))
	}
	return nil
}

func (o *SteepestDescent) record(ctx context.Context, rlog *responseLog, it storage.Iteration, elapsed time.Duration) error {
	if err := rlog.Write(it, elapsed.Seconds()); err != nil {
		return fmt.Errorf("response log: %w", err)
	}
	if err := o.history.Record(ctx, it); err != nil {
		return err
	}
	o.log.Info("iteration finished",
		zap.Int("iteration", it.Number),
		zap.Float64(o.objective, it.Objective),
		zap.Float64("rel_change", it.RelativeChange))
	if o.observer != nil {
		o.observer.OnIteration(it)
	}
	return nil
}

// update is the step along the negative design gradient, scaled so the
// largest nodal move equals the step size when normalization is on.
func (o *SteepestDescent) update(g map[int][3]float64) map[int][3]float64 {
	d := o.controller.DesignGradient(g)
	scale := o.step
	if o.normalize {
		var maxNorm float64
		for _, v := range d {
			maxNorm = math.Max(maxNorm, math.Sqrt(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]))
		}
		if maxNorm == 0 {
			return nil
		}
		scale /= maxNorm
	}
	out := make(map[int][3]float64, len(d))
	for id, v := range d {
		c := -o.sign * scale
		out[id] = [3]float64{c * v[0], c * v[1], c * v[2]}
	}
	return out
}

// relocate copies the result file to an iteration named file in the
// output directory and moves it into its own folder.
func (o *SteepestDescent) relocate(itr int) {
	if o.resultFile == "" {
		return
	}
	base := filepath.Base(o.resultFile)
	ext := ""
	if i := strings.Index(base, "."); i >= 0 {
		ext = base[i:]
	}
	dst := filepath.Join(o.outDir, storage.IterationName(itr, ext))
	if err := storage.CopyFile(o.resultFile, dst); err != nil {
		o.log.Warn("copying result file failed", zap.String("file", o.resultFile), zap.Error(err))
		return
	}
	analysis.RelocateResults(o.log, filepath.Join(o.outDir, "*_ITR"+ext), storage.SuffixFolder(ext, o.suffix))
}
