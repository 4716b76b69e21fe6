package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/femstage/internal/config"
	"github.com/san-kum/femstage/internal/logging"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string
	live       bool
	force      bool
	fps        int

	cfg    *config.Config
	logger *zap.Logger
)

// main registers the commands and executes the root command. It exits with
// status 1 on error and 130 when interrupted.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "femstage",
		Short:             "settings driven finite element analysis and shape optimization",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "femstage.yaml", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format, json or console (overrides config)")

	runCmd := &cobra.Command{
		Use:   "run [project.json]",
		Short: "run an analysis stage",
		Args:  cobra.ExactArgs(1),
		RunE:  runProject,
	}
	runCmd.Flags().BoolVar(&live, "live", false, "show the live view")
	runCmd.Flags().IntVar(&fps, "fps", 0, "live view frame rate (overrides config)")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [optimization_parameters.json]",
		Short: "run a shape optimization",
		Args:  cobra.ExactArgs(1),
		RunE:  optimizeProject,
	}
	optimizeCmd.Flags().BoolVar(&live, "live", false, "show the live view")

	watchCmd := &cobra.Command{
		Use:   "watch [project]",
		Short: "re-run a project whenever its input files change",
		Args:  cobra.ExactArgs(1),
		RunE:  watchProject,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [project]",
		Short: "construct every component of a project without solving",
		Args:  cobra.ExactArgs(1),
		RunE:  validateProject,
	}

	defaultsCmd := &cobra.Command{
		Use:   "defaults [category] [kind]",
		Short: "print the default settings of a component kind",
		Args:  cobra.ExactArgs(2),
		RunE:  printDefaults,
	}

	kindsCmd := &cobra.Command{
		Use:   "kinds",
		Short: "list the registered component kinds",
		Args:  cobra.NoArgs,
		RunE:  listKinds,
	}

	initCmd := &cobra.Command{
		Use:   "init [template] [dir]",
		Short: "write a project template, or list templates",
		Args:  cobra.RangeArgs(0, 2),
		RunE:  initProject,
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	cleanCmd := &cobra.Command{
		Use:   "clean [project]",
		Short: "remove the result files of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  cleanProject,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	runsCmd.AddCommand(&cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the history of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}, &cobra.Command{
		Use:   "rm [run_id]",
		Short: "remove a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  removeRun,
	})

	rootCmd.AddCommand(runCmd, optimizeCmd, watchCmd, validateCmd, defaultsCmd,
		kindsCmd, initCmd, cleanCmd, runsCmd)
	return rootCmd
}

// setup loads the config and builds the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadOrDefault(configFile)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if fps > 0 {
		cfg.Live.FPS = fps
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	return err
}
