package controller

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// SimpleUI implements UI using plain tables on the command's output.
type SimpleUI struct {
	cmd *cobra.Command
	mu  sync.Mutex
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(_ ...StartOption) error {
	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close() {

}

// UpdateCallGraph prints the node table followed by the call tree.
func (s *SimpleUI) UpdateCallGraph(graph m.CallGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renderTable(callGraphTable(graph))

	if tree := callTree(graph); len(tree) > 0 {
		s.printf("\nCall tree:\n")

		for _, line := range tree {
			s.printf("  %s\n", line)
		}
	}

	return nil
}

// UpdateWhatIfAnalysis prints the paths, effects and baseline delta of a run.
func (s *SimpleUI) UpdateWhatIfAnalysis(result m.WhatIfResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.printf("Scenario %s: %s\n", result.Scenario.ID, result.Scenario.Description)
	s.printf("Inputs: %s\n", formatValue(result.Scenario.MockInputs))
	s.renderTable(executionPathTable(result))

	if len(result.SideEffects) > 0 {
		s.renderTable(sandboxEffectTable(result.SideEffects))
	}

	if lines := baselineLines(result.ComparisonWithBaseline); len(lines) > 0 {
		s.printf("\nCompared with baseline:\n")

		for _, line := range lines {
			s.printf("  %s\n", line)
		}
	}

	return nil
}

// UpdateSideEffects prints counts by type and the notable effects.
func (s *SimpleUI) UpdateSideEffects(summary m.SideEffectSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renderTable(effectsByTypeTable(summary))

	if len(summary.HighImpactEffects) > 0 {
		s.renderTable(highImpactTable(summary))
	}

	if len(summary.StateChanges) > 0 {
		s.renderTable(stateChangeTable(summary))
	}

	return nil
}

// UpdateVariableHistory prints every recorded state of one variable.
func (s *SimpleUI) UpdateVariableHistory(history m.VariableHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(history.States) == 0 {
		s.printf("No states recorded for %s\n", history.Variable)

		return nil
	}

	s.renderTable(variableHistoryTable(history))

	return nil
}

// DebugSessionStarted announces a new session.
func (s *SimpleUI) DebugSessionStarted(info m.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.printf("debug session started: %s (%s)\n", info.Name, info.ID)
}

// DebugSessionEnded announces the end of a session.
func (s *SimpleUI) DebugSessionEnded(info m.SessionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.printf("debug session ended: %s (%s)\n", info.Name, info.ID)
}

func (s *SimpleUI) DisplaySelfTest(statuses []m.SubsystemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renderTable(selfTestTable(statuses))

	return nil
}

func (s *SimpleUI) DisplayReports(reports []m.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(reports) == 0 {
		s.printf("No reports found\n")

		return nil
	}

	s.renderTable(reportTable(reports))

	return nil
}

func (s *SimpleUI) DisplaySessions(records []m.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		s.printf("No archived sessions\n")

		return nil
	}

	s.renderTable(sessionTable(records))

	return nil
}

func (s *SimpleUI) renderTable(data tableData) {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader(data.header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	alignment := make([]int, len(data.header))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_LEFT
	}

	table.SetColumnAlignment(alignment)
	table.AppendBulk(data.rows)

	if len(data.footer) == len(data.header) {
		table.SetFooter(data.footer)
	}

	table.Render()
	s.printf("\n%s\n%s", data.title, tableBuffer.String())
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
