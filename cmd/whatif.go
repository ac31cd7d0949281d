package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mouse-blink/storyteller/internal/controller"
	"github.com/mouse-blink/storyteller/internal/domain"
	m "github.com/mouse-blink/storyteller/internal/model"
)

var whatifInputsFlag string
var whatifBaselineFlag string
var whatifNoSaveFlag bool

// promptInputs asks for mock inputs interactively; tests replace it.
var promptInputs = func(cmd *cobra.Command) (string, error) {
	if !controller.IsTTY(cmd.OutOrStdout()) || !controller.IsTTY(cmd.InOrStdin()) {
		return "", errors.New("--inputs is required when not running in a terminal")
	}

	var raw string

	err := huh.NewInput().
		Title("Mock inputs").
		Description("A JSON object; each key becomes a global in the sandbox").
		Placeholder(`{"x": 1}`).
		Value(&raw).
		Validate(func(s string) error {
			_, err := domain.ParseMockInputs(s)

			return err
		}).
		Run()
	if err != nil {
		return "", fmt.Errorf("prompt for inputs: %w", err)
	}

	return raw, nil
}

func newWhatIfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whatif FILE",
		Short: "Run a JavaScript file in a sandbox against mock inputs",
		Long: `Whatif instruments FILE, runs it in an isolated interpreter where every
key of --inputs is a global, and reports the function returns, intercepted
console and fs calls, and timing. The result is saved as a report unless
--no-save is given; pass a report id to --baseline to compare against it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := whatifInputsFlag
			if raw == "" {
				prompted, err := promptInputs(cmd)
				if err != nil {
					return err
				}

				raw = prompted
			}

			inputs, err := domain.ParseMockInputs(raw)
			if err != nil {
				return err
			}

			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}

			result, err := workspace.Scenarios.Run(cmd.Context(), doc, inputs)
			if err != nil {
				return err
			}

			if whatifBaselineFlag != "" {
				baseline, err := reportStore.LoadReport(m.Path(cfg.Reports.Dir), whatifBaselineFlag)
				if err != nil {
					return fmt.Errorf("load baseline: %w", err)
				}

				workspace.Scenarios.LoadBaseline(whatifBaselineFlag, baseline.Result)

				result, err = workspace.Scenarios.CompareWithBaseline(result, whatifBaselineFlag)
				if err != nil {
					return err
				}
			}

			return startUI("what-if", func() error {
				if err := ui.UpdateWhatIfAnalysis(result); err != nil {
					return err
				}

				if whatifNoSaveFlag {
					return nil
				}

				id, err := saveReport(doc, result)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nsaved report %s\n", id)

				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&whatifInputsFlag, "inputs", "i", "", "mock inputs as a JSON object (prompted for when omitted on a terminal)")
	cmd.Flags().StringVarP(&whatifBaselineFlag, "baseline", "b", "", "id of a saved report to compare against")
	cmd.Flags().BoolVar(&whatifNoSaveFlag, "no-save", false, "do not store the result as a report")

	return cmd
}

func saveReport(doc m.Document, result m.WhatIfResult) (string, error) {
	hash, err := sourceFS.HashFile(doc.Path)
	if err != nil {
		return "", err
	}

	dir := m.Path(cfg.Reports.Dir)

	ids, err := reportStore.SaveReports(dir, []m.Report{{
		Source:     doc.Path,
		SourceHash: hash,
		SavedAt:    time.Now(),
		Result:     result,
	}})
	if err != nil {
		return "", err
	}

	if err := reportStore.RegenerateIndex(dir); err != nil {
		logger.Warn("failed to regenerate report index", "dir", dir, "error", err)
	}

	return ids[0], nil
}

func init() {
	rootCmd.AddCommand(newWhatIfCmd())
}
