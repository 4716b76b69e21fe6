package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/apps"
	"github.com/san-kum/femstage/internal/config"
	"github.com/san-kum/femstage/internal/factory"
	"github.com/san-kum/femstage/internal/storage"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

func validateProject(cmd *cobra.Command, args []string) error {
	p, err := apps.LoadProject(args[0])
	if err != nil {
		return err
	}
	if err := apps.New(logger).Validate(p); err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", args[0])
	return nil
}

func printDefaults(cmd *cobra.Command, args []string) error {
	d, err := apps.NewRegistries().Defaults(args[0], factory.Kind(args[1]))
	if err != nil {
		return err
	}
	fmt.Println(d.PrettyJSON())
	return nil
}

func listKinds(cmd *cobra.Command, args []string) error {
	kinds := apps.NewRegistries().Kinds()

	fmt.Println(headerStyle.Render("registered kinds"))
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tKEY\tKIND")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%s\t%s\n", k.Category, k.Discriminator, k.Kind)
	}
	return w.Flush()
}

func initProject(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println(headerStyle.Render("templates"))
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, name := range config.ListTemplates() {
			fmt.Fprintf(w, "%s\t%s\n", name, config.GetTemplate(name).Description)
		}
		return w.Flush()
	}

	tmpl := config.GetTemplate(args[0])
	if tmpl == nil {
		return fmt.Errorf("unknown template %q", args[0])
	}
	dir := "."
	if len(args) == 2 {
		dir = args[1]
	}
	written, err := tmpl.WriteTo(dir, force)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Println("wrote", path)
	}
	return nil
}

func cleanProject(cmd *cobra.Command, args []string) error {
	p, err := apps.LoadProject(args[0])
	if err != nil {
		return err
	}
	paths, err := p.Artifacts()
	if err != nil {
		return err
	}
	for _, path := range paths {
		logger.Debug("removing", zap.String("path", path))
	}
	return storage.DeleteIfExists(paths...)
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(cfg.RunsDir()).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tSOLVER\tTIME\tSTEPS\tEND\tELAPSED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%g\t%.2fs\n",
			run.ID,
			run.Project,
			run.SolverType,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.EndTime,
			run.Elapsed,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(cfg.RunsDir())
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}

	if series.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("project: %s\n", meta.Project)
	fmt.Printf("steps: %d\n\n", series.Len())

	const maxPlots = 6
	for i, name := range series.Columns {
		if i == maxPlots {
			fmt.Printf("%d more columns not shown\n", len(series.Columns)-maxPlots)
			break
		}
		data, _ := series.Column(name)
		if len(data) < 2 {
			fmt.Printf("%s: %g\n\n", name, data[0])
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(cfg.Live.PlotWidth),
			asciigraph.Caption(name+" vs step"),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func removeRun(cmd *cobra.Command, args []string) error {
	if err := storage.New(cfg.RunsDir()).Remove(args[0]); err != nil {
		return err
	}
	fmt.Println("removed", args[0])
	return nil
}
