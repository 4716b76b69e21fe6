package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/analysis"
	"github.com/san-kum/femstage/internal/apps"
	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/logging"
	"github.com/san-kum/femstage/internal/optimization"
	"github.com/san-kum/femstage/internal/params"
	"github.com/san-kum/femstage/internal/storage"
	"github.com/san-kum/femstage/internal/tui"
	"github.com/san-kum/femstage/internal/watch"
)

func runProject(cmd *cobra.Command, args []string) error {
	p, err := apps.LoadProject(args[0])
	if err != nil {
		return err
	}
	if p.IsOptimization() {
		return fmt.Errorf("%s is an optimization project, use femstage optimize", args[0])
	}
	if live {
		return runLive(cmd.Context(), p)
	}

	st, err := apps.New(logger).NewStage(p, nil)
	if err != nil {
		return err
	}
	if err := st.Run(cmd.Context()); err != nil {
		return err
	}
	printTimings(st)
	return nil
}

// liveLogger sends engine logs to a file in the data dir while the live
// view owns the terminal.
func liveLogger() (*zap.Logger, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "femstage.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	lvl := logger.Level()
	return logging.ToWriter(f, lvl), func() { f.Close() }, nil
}

func liveOptions(title string) tui.Options {
	return tui.Options{
		Title:      title,
		PlotWidth:  cfg.Live.PlotWidth,
		PlotHeight: cfg.Live.PlotHeight,
	}
}

func runLive(ctx context.Context, p *apps.Project) error {
	log, closeLog, err := liveLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := apps.New(log).NewStage(p, nil)
	if err != nil {
		return err
	}
	pd := st.Settings().Sub("problem_data")
	opts := liveOptions(p.Name())
	opts.StartTime = pd.Float("start_time")
	opts.EndTime = pd.Float("end_time")

	return tui.Run(ctx, tui.NewLive(opts), func(ctx context.Context, send tui.Send) error {
		feed := tui.NewFeed(st.Solver(), kernel.Vector{}, send, cfg.FrameInterval())
		st.AddObserver(feed)
		err := st.Run(ctx)
		feed.Flush()
		return err
	}, tea.WithAltScreen())
}

func printTimings(st *analysis.Stage) {
	fmt.Printf("finished at t=%g\n\n", st.Time())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tELAPSED")
	for _, ph := range []analysis.Phase{analysis.ModelImported, analysis.DofsAdded, analysis.Initialized, analysis.SolutionLoop, analysis.Finalized} {
		fmt.Fprintf(w, "%s\t%s\n", ph, st.Timing(ph))
	}
	w.Flush()
}

func optimizeProject(cmd *cobra.Command, args []string) error {
	p, err := apps.LoadProject(args[0])
	if err != nil {
		return err
	}
	if !p.IsOptimization() {
		return fmt.Errorf("%s has no optimization_settings, use femstage run", args[0])
	}

	if live {
		log, closeLog, err := liveLogger()
		if err != nil {
			return err
		}
		defer closeLog()

		opts := liveOptions(p.Name())
		opts.Iterations = maxIterations(p)
		err = tui.Run(cmd.Context(), tui.NewLive(opts), func(ctx context.Context, send tui.Send) error {
			opt, err := apps.New(log).NewOptimizer(p, nil, tui.NewIterationFeed(send))
			if err != nil {
				return err
			}
			return opt.Optimize(ctx)
		}, tea.WithAltScreen())
		if err != nil {
			return err
		}
	} else {
		opt, err := apps.New(logger).NewOptimizer(p, nil, nil)
		if err != nil {
			return err
		}
		if err := opt.Optimize(cmd.Context()); err != nil {
			return err
		}
	}
	return plotHistory(cmd.Context(), p)
}

func maxIterations(p *apps.Project) int {
	s, err := params.Resolve(p.Settings.Sub("optimization_settings"), optimization.SteepestDescentSchema)
	if err != nil {
		return 0
	}
	return s.Sub("optimization_algorithm").Int("max_iterations")
}

// plotHistory plots the objective of every recorded iteration.
func plotHistory(ctx context.Context, p *apps.Project) error {
	s, err := params.Resolve(p.Settings.Sub("optimization_settings"), optimization.Schema)
	if err != nil {
		return err
	}
	out := s.Sub("output")
	dir := out.String("output_directory")
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Dir, dir)
	}
	h := storage.NewHistory(filepath.Join(dir, out.String("history_database")))
	if err := h.Init(ctx); err != nil {
		return err
	}
	defer h.Close()

	its, err := h.Iterations(ctx)
	if err != nil {
		return err
	}
	if len(its) == 0 {
		fmt.Println("no iterations recorded")
		return nil
	}

	data := make([]float64, len(its))
	for i, it := range its {
		data[i] = it.Objective
	}
	last := its[len(its)-1]
	fmt.Printf("iterations: %d\n", len(its))
	fmt.Printf("objective: %g -> %g\n\n", its[0].Objective, last.Objective)
	if len(data) > 1 {
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(cfg.Live.PlotWidth),
			asciigraph.Caption("objective"),
		))
	}
	return nil
}

func watchProject(cmd *cobra.Command, args []string) error {
	files, err := watch.ProjectFiles(args[0])
	if err != nil {
		return err
	}
	w, err := watch.New(files, cfg.Watch.Debounce, logger)
	if err != nil {
		return err
	}
	for _, f := range w.Files() {
		logger.Info("watching", zap.String("file", f))
	}

	return w.Run(cmd.Context(), func(ctx context.Context) error {
		p, err := apps.LoadProject(args[0])
		if err != nil {
			return err
		}
		app := apps.New(logger)
		if p.IsOptimization() {
			opt, err := app.NewOptimizer(p, nil, nil)
			if err != nil {
				return err
			}
			return opt.Optimize(ctx)
		}
		st, err := app.NewStage(p, nil)
		if err != nil {
			return err
		}
		return st.Run(ctx)
	})
}
