// Package storage keeps run directories and performs the file bookkeeping
// around a run: moving result artifacts into iteration folders and removing
// cache files.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// RunMetadata describes one stored run.
type RunMetadata struct {
	ID         string             `json:"id"`
	Project    string             `json:"project"`
	SolverType string             `json:"solver_type"`
	Timestamp  time.Time          `json:"timestamp"`
	Steps      int                `json:"steps"`
	EndTime    float64            `json:"end_time"`
	Elapsed    float64            `json:"elapsed_seconds"`
	Values     map[string]float64 `json:"values"`
}

// Series is a table of per-step values sharing a time column.
type Series struct {
	Columns []string
	Times   []float64
	Rows    [][]float64
}

// Append adds one row.
func (s *Series) Append(t float64, row []float64) {
	s.Times = append(s.Times, t)
	s.Rows = append(s.Rows, append([]float64(nil), row...))
}

func (s *Series) Len() int { return len(s.Times) }

// Column returns the values of the named column.
func (s *Series) Column(name string) ([]float64, bool) {
	for j, c := range s.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(s.Rows))
		for i, row := range s.Rows {
			if j < len(row) {
				out[i] = row[j]
			}
		}
		return out, true
	}
	return nil, false
}

// NewRunID returns a fresh run id prefixed with the solver type.
func NewRunID(solverType string) string {
	if solverType == "" {
		solverType = "run"
	}
	return fmt.Sprintf("%s_%s", solverType, uuid.NewString()[:8])
}

// Save writes the metadata and the series of a run into its own directory
// and returns the run id. An empty meta.ID is filled in.
func (s *Store) Save(meta RunMetadata, series *Series) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID(meta.SolverType)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if series == nil {
		return meta.ID, nil
	}
	if err := writeSeries(filepath.Join(runDir, "history.csv"), series); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeSeries(path string, series *Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time"}, series.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, t := range series.Times {
		row := []string{strconv.FormatFloat(t, 'g', -1, 64)}
		for j := range series.Columns {
			v := 0.0
			if j < len(series.Rows[i]) {
				v = series.Rows[i][j]
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSeries reads the history of a run.
func (s *Store) LoadSeries(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "history.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("history has no header")
	}

	series := &Series{Columns: records[0][1:]}
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("history time %q: %w", record[0], err)
		}
		row := make([]float64, 0, len(record)-1)
		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("history value %q: %w", field, err)
			}
			row = append(row, v)
		}
		series.Append(t, row)
	}
	return series, nil
}

// Remove deletes a stored run.
func (s *Store) Remove(runID string) error {
	if runID == "" || filepath.Base(runID) != runID {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}
