package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace FILE VARIABLE",
		Short: "Show every occurrence of a variable in a source file",
		Long: `Trace records one history entry per whole-word occurrence of VARIABLE
in FILE. Values are not known statically and are shown as "unknown"; attach a
debug session to record real values.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			name := args[1]
			if err := workspace.Variables.StartTracking(name, doc); err != nil {
				return err
			}

			history, ok := workspace.Variables.History(name)
			if !ok {
				return fmt.Errorf("variable %s is not tracked", name)
			}

			return startUI("trace "+name, func() error {
				return ui.UpdateVariableHistory(history)
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(newTraceCmd())
}
