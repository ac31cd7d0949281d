// Package cmd provides the root command and CLI setup for storyteller.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/storyteller/internal/adapter"
	"github.com/mouse-blink/storyteller/internal/config"
	"github.com/mouse-blink/storyteller/internal/controller"
	"github.com/mouse-blink/storyteller/internal/domain"
	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

var sourceFS adapter.SourceFSAdapter
var reportStore adapter.ReportStore

// Per-invocation state built by setup before any subcommand runs.
var cfg *config.Config
var logger *slog.Logger
var workspace *domain.Workspace
var ui controller.UI

// newUI builds the presentation sink; tests replace it.
var newUI = func(cmd *cobra.Command) controller.UI {
	return controller.NewUI(cmd, controller.IsTTY(cmd.OutOrStdout()))
}

var openArchive = adapter.OpenSessionArchive

var configFlag string
var logLevelFlag string

func init() {
	sourceFS = adapter.NewLocalSourceFSAdapter()
	reportStore = adapter.NewReportStore()
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storyteller",
		Short: "Explain how code runs",
		Long: `Storyteller explains program behavior: static call graphs, variable
histories, likely side effects and sandboxed what-if runs of JavaScript.

Attach it to a Debug Adapter Protocol session to record live call stacks,
variable values and effects, or open the visualization server to stream
everything to a browser.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default .storyteller.yaml in the working directory or $HOME)")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn or error")

	return cmd
}

// setup loads configuration and wires the workspace and UI for one invocation.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	if logLevelFlag != "" {
		loaded.Logging.Level = logLevelFlag

		if err := loaded.Validate(); err != nil {
			return err
		}
	}

	cfg = loaded
	logger = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	workspace = domain.NewWorkspace(cfg, logger)
	ui = newUI(cmd)

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func readDocument(path string) (m.Document, error) {
	doc, err := sourceFS.ReadDocument(m.Path(path))
	if err != nil {
		return m.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	return doc, nil
}

// startUI runs fn between ui.Start and ui.Close.
func startUI(title string, fn func() error) error {
	if err := ui.Start(controller.WithTitle(title)); err != nil {
		return err
	}
	defer ui.Close()

	return fn()
}
