package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/storyteller/internal/adapter"
	m "github.com/mouse-blink/storyteller/internal/model"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List archived debug sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var records []m.SessionRecord

			err := withArchive(func(archive adapter.SessionArchive) error {
				var err error
				records, err = archive.List(cmd.Context())

				return err
			})
			if err != nil {
				return err
			}

			return startUI("sessions", func() error {
				return ui.DisplaySessions(records)
			})
		},
	}
	cmd.AddCommand(newSessionsShowCmd())

	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the call graph, effects and variables of an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot m.SessionSnapshot

			err := withArchive(func(archive adapter.SessionArchive) error {
				var err error
				snapshot, err = archive.Load(cmd.Context(), args[0])

				return err
			})
			if err != nil {
				return err
			}

			return startUI("session "+snapshot.Session.Name, func() error {
				return showSnapshot(snapshot)
			})
		},
	}
}

func showSnapshot(snapshot m.SessionSnapshot) error {
	ui.DebugSessionStarted(snapshot.Session)

	if err := ui.UpdateCallGraph(snapshot.CallGraph); err != nil {
		return err
	}

	if err := ui.UpdateSideEffects(snapshot.SideEffects); err != nil {
		return err
	}

	names := make([]string, 0, len(snapshot.Variables))
	for name := range snapshot.Variables {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := ui.UpdateVariableHistory(snapshot.Variables[name]); err != nil {
			return err
		}
	}

	ui.DebugSessionEnded(snapshot.Session)

	return nil
}

// withArchive opens the configured session archive for the duration of fn.
func withArchive(fn func(adapter.SessionArchive) error) error {
	archive, err := openArchive(cfg.Archive.Path, logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = archive.Close()
	}()

	return fn(archive)
}

func init() {
	rootCmd.AddCommand(newSessionsCmd())
}
