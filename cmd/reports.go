package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	m "github.com/mouse-blink/storyteller/internal/model"
)

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List saved what-if reports",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reports, err := reportStore.LoadReports(m.Path(cfg.Reports.Dir))
			if err != nil {
				return err
			}

			return startUI("reports", func() error {
				return ui.DisplayReports(reports)
			})
		},
	}
	cmd.AddCommand(newReportsShowCmd(), newReportsCleanCmd())

	return cmd
}

func newReportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one saved what-if report",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			report, err := reportStore.LoadReport(m.Path(cfg.Reports.Dir), args[0])
			if err != nil {
				return err
			}

			return startUI("report "+report.ID, func() error {
				return ui.UpdateWhatIfAnalysis(report.Result)
			})
		},
	}
}

func newReportsCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [SOURCE...]",
		Short: "Delete saved reports, all of them or only those of the given sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sources []m.Path

			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}

				sources = append(sources, m.Path(abs))
			}

			if err := reportStore.CleanReports(m.Path(cfg.Reports.Dir), sources); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "reports cleaned")

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newReportsCmd())
}
