package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/storyteller/internal/adapter"
	m "github.com/mouse-blink/storyteller/internal/model"
)

var errSelfTestFailed = errors.New("self-test failed")

func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check that every subsystem is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses := workspace.SelfTest()

			archiveStatus := m.SubsystemStatus{Name: "archive", Ready: true, Detail: cfg.Archive.Path}
			err := withArchive(func(archive adapter.SessionArchive) error {
				_, err := archive.List(cmd.Context())

				return err
			})
			if err != nil {
				archiveStatus.Ready = false
				archiveStatus.Detail = err.Error()
			}

			statuses = append(statuses, archiveStatus)

			err = startUI("self-test", func() error {
				return ui.DisplaySelfTest(statuses)
			})
			if err != nil {
				return err
			}

			for _, status := range statuses {
				if !status.Ready {
					return errSelfTestFailed
				}
			}

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newSelfTestCmd())
}
