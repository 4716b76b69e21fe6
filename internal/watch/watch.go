// Package watch re-runs a project whenever one of its input files changes.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/params"
)

// RunFunc is one run of the watched project.
type RunFunc func(ctx context.Context) error

type Watcher struct {
	files    map[string]bool
	debounce time.Duration
	log      *zap.Logger

	// Ran, when set, receives the error of every run.
	Ran func(err error)
}

func New(files []string, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("watch: no files")
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{files: make(map[string]bool, len(files)), debounce: debounce, log: log}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		w.files[abs] = true
	}
	return w, nil
}

// Files are the watched files, sorted.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Run calls fn once and then again each time the watched files settle after
// a change, until ctx is done. A failing run is logged and watching goes on.
func (w *Watcher) Run(ctx context.Context, fn RunFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Directories are watched so that files replaced by rename are seen.
	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			return err
		}
	}

	w.run(ctx, fn)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("change", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-timer.C:
			pending = false
			w.run(ctx, fn)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	return err == nil && w.files[abs]
}

func (w *Watcher) run(ctx context.Context, fn RunFunc) {
	start := time.Now()
	err := fn(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.Error("run failed", zap.Error(err))
	} else if err == nil {
		w.log.Info("run finished", zap.Duration("elapsed", time.Since(start)))
	}
	if w.Ran != nil {
		w.Ran(err)
	}
}

// ProjectFiles lists the files a project reads: the parameter file, the
// model files it imports and the parameter files of primal responses.
func ProjectFiles(path string) ([]string, error) {
	seen := make(map[string]bool)
	if err := collect(path, seen); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func collect(path string, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	p, err := params.Load(abs)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	addModel := func(s *params.Parameters) {
		if name := s.Sub("model_import_settings").String("input_filename"); name != "" {
			seen[resolve(dir, name+".mdpa")] = true
		}
	}

	if p.Has("solver_settings") {
		addModel(p.Sub("solver_settings"))
	}
	if !p.Has("optimization_settings") {
		return nil
	}
	opt := p.Sub("optimization_settings")
	addModel(opt.Sub("model_settings"))
	for _, key := range []string{"objectives", "constraints"} {
		for _, entry := range opt.Array(key) {
			rs := entry.Sub("response_settings")
			addModel(rs)
			if primal := rs.String("primal_settings"); primal != "" {
				if err := collect(resolve(dir, primal), seen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
