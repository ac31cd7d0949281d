package cmd

import (
	"github.com/spf13/cobra"
)

func newCallGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph FILE",
		Short: "Build the static call graph of a source file",
		Long: `Callgraph extracts function declarations and calls from FILE and links
them into a forest. Functions are keyed by name, so same-named functions in
different scopes share one node.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			graph, err := workspace.CallGraph.BuildStatic(cmd.Context(), doc)
			if err != nil {
				return err
			}

			return startUI("call graph", func() error {
				return ui.UpdateCallGraph(graph)
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(newCallGraphCmd())
}
