package cmd

import (
	"errors"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var effectsParallelFlag int

func newEffectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "effects PATTERN...",
		Short: "Scan sources for likely side effects",
		Long: `Effects scans every matching source file for calls that usually touch
the outside world (console, filesystem, network, database, process) and
summarizes them by kind and impact.

Patterns may be files, directories ("src/..." recurses) or doublestar globs
such as "src/**/*.ts".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := sourceFS.Resolve(args)
			if err != nil {
				return err
			}

			if len(paths) == 0 {
				return errors.New("no source files matched")
			}

			limit := effectsParallelFlag
			if limit <= 0 {
				limit = runtime.NumCPU()
			}

			group, _ := errgroup.WithContext(cmd.Context())
			group.SetLimit(limit)

			for _, path := range paths {
				group.Go(func() error {
					doc, err := readDocument(string(path))
					if err != nil {
						return err
					}

					found := workspace.SideEffects.AnalyzeSource(doc)
					logger.Debug("scanned source", "path", path, "effects", len(found))

					return nil
				})
			}

			if err := group.Wait(); err != nil {
				return err
			}

			return startUI("side effects", func() error {
				return ui.UpdateSideEffects(workspace.SideEffects.Summary())
			})
		},
	}
	cmd.Flags().IntVarP(&effectsParallelFlag, "parallel", "p", runtime.NumCPU(), "number of files scanned concurrently")

	return cmd
}

func init() {
	rootCmd.AddCommand(newEffectsCmd())
}
