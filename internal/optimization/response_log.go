package optimization

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/san-kum/femstage/internal/storage"
)

// responseLog writes one CSV row per iteration: the objective, its changes,
// the step size and the value of every other response.
type responseLog struct {
	f     *os.File
	w     *csv.Writer
	extra []string
}

func newResponseLog(path, objective string, extra []string) (*responseLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	header := []string{"itr", objective, "abs_change", "rel_change", "step_size", "t_itr_s"}
	header = append(header, extra...)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &responseLog{f: f, w: w, extra: extra}, nil
}

func (l *responseLog) Write(it storage.Iteration, elapsed float64) error {
	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	row := []string{
		strconv.Itoa(it.Number),
		ff(it.Objective),
		ff(it.AbsoluteChange),
		ff(it.RelativeChange),
		ff(it.StepSize),
		strconv.FormatFloat(elapsed, 'f', 3, 64),
	}
	for _, id := range l.extra {
		row = append(row, ff(it.Values[id]))
	}
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *responseLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
