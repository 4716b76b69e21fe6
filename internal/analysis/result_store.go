package analysis

import (
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/storage"
)

var ResultStoreSchema = params.MustSchema(`{
	"type": "result_store",
	"model_part_name": "",
	"output_variables": [],
	"store_dir": "runs"
}`)

// ResultStore keeps the largest magnitude of each output variable per step
// and saves the history as a run in the store when the stage finalizes.
type ResultStore struct {
	BaseProcess

	model   *kernel.Model
	mpName  string
	store   *storage.Store
	project string
	solver  string
	log     *zap.Logger

	mp      *kernel.ModelPart
	vars    []kernel.Variable
	series  storage.Series
	started time.Time
	runID   string
}

func NewResultStore(settings *params.Parameters, args ProcessArgs) (*ResultStore, error) {
	s, err := params.Resolve(settings, ResultStoreSchema)
	if err != nil {
		return nil, err
	}
	if s.String("model_part_name") == "" {
		return nil, &params.ConfigError{Path: "model_part_name", Reason: "required key is empty"}
	}
	vars, err := variables(s.Strings("output_variables"))
	if err != nil {
		return nil, &params.ConfigError{Path: "output_variables", Reason: err.Error()}
	}
	dir := s.String("store_dir")
	if !filepath.IsAbs(dir) && args.BaseDir != "" {
		dir = filepath.Join(args.BaseDir, dir)
	}
	r := &ResultStore{
		model:   args.Model,
		mpName:  s.String("model_part_name"),
		store:   storage.New(dir),
		project: args.Project,
		solver:  args.SolverType,
		log:     args.Logger,
		vars:    vars,
	}
	for _, v := range vars {
		r.series.Columns = append(r.series.Columns, string(v))
	}
	return r, nil
}

func (r *ResultStore) ExecuteInitialize() error {
	mp, err := modelPart(r.model, r.mpName)
	if err != nil {
		return err
	}
	r.mp = mp
	r.started = time.Now()
	return r.store.Init()
}

func (r *ResultStore) IsOutputStep() bool { return true }

func (r *ResultStore) PrintOutput() error {
	row := make([]float64, len(r.vars))
	for _, n := range r.mp.Nodes() {
		for j, v := range r.vars {
			row[j] = math.Max(row[j], math.Abs(n.Value(v)))
		}
	}
	r.series.Append(r.mp.ProcessInfo().Time(), row)
	return nil
}

func (r *ResultStore) ExecuteFinalize() error {
	info := r.mp.ProcessInfo()
	values := make(map[string]float64, len(r.vars))
	if n := r.series.Len(); n > 0 {
		for j, c := range r.series.Columns {
			values["max_"+c] = r.series.Rows[n-1][j]
		}
	}
	id, err := r.store.Save(storage.RunMetadata{
		Project:    r.project,
		SolverType: r.solver,
		Steps:      info.Step(),
		EndTime:    info.Time(),
		Elapsed:    time.Since(r.started).Seconds(),
		Values:     values,
	}, &r.series)
	if err != nil {
		return err
	}
	r.runID = id
	if r.log != nil {
		r.log.Info("run stored", zap.String("run_id", id), zap.String("dir", r.store.Dir()))
	}
	return nil
}

// RunID is the stored run after finalize.
func (r *ResultStore) RunID() string { return r.runID }

// Series returns the recorded history.
func (r *ResultStore) Series() *storage.Series { return &r.series }
