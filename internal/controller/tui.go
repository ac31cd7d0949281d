package controller

import (
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "github.com/mouse-blink/storyteller/internal/model"
)

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
	tuiSectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true).
			MarginTop(1)
	tuiHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Bold(true)
	tuiCellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	tuiAccentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	tuiMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tuiOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	tuiFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	tuiBoxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)
)

// browseThreshold is the row count above which an interactive TUI opens the
// list browser instead of printing.
const browseThreshold = 20

// TUI implements UI with styled terminal output. When interactive, long
// listings open a Bubble Tea browser.
type TUI struct {
	output      io.Writer
	input       io.Reader
	interactive bool
	mu          sync.Mutex
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// NewInteractiveTUI creates a TUI that may take over the terminal to browse
// long listings.
func NewInteractiveTUI(input io.Reader, output io.Writer) *TUI {
	return &TUI{output: output, input: input, interactive: true}
}

// Start prints the title.
func (t *TUI) Start(options ...StartOption) error {
	cfg := buildStartConfig(options)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(tuiTitleStyle.Render("📜 " + cfg.title))

	return nil
}

// Close finalizes the UI.
func (t *TUI) Close() {

}

func (t *TUI) UpdateCallGraph(graph m.CallGraph) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	table := callGraphTable(graph)
	if t.shouldBrowse(table) {
		return t.browse(table)
	}

	t.renderTable(table)

	tree := callTree(graph)
	if len(tree) == 0 {
		return nil
	}

	lines := make([]string, 0, len(tree))
	for _, line := range tree {
		if strings.HasSuffix(line, "(recursive)") {
			lines = append(lines, tuiMutedStyle.Render(line))

			continue
		}

		lines = append(lines, tuiCellStyle.Render(line))
	}

	t.println(tuiSectionStyle.Render("Call Tree"))
	t.println(tuiBoxStyle.Render(strings.Join(lines, "\n")))

	return nil
}

func (t *TUI) UpdateWhatIfAnalysis(result m.WhatIfResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(tuiSectionStyle.Render(fmt.Sprintf("Scenario %s", result.Scenario.ID)))

	if result.Scenario.Description != "" {
		t.println(tuiCellStyle.Render(result.Scenario.Description))
	}

	t.println(fmt.Sprintf("Inputs %s", tuiAccentStyle.Render(formatValue(result.Scenario.MockInputs))))
	t.renderTable(executionPathTable(result))

	if len(result.SideEffects) > 0 {
		t.renderTable(sandboxEffectTable(result.SideEffects))
	}

	if lines := baselineLines(result.ComparisonWithBaseline); len(lines) > 0 {
		t.println(tuiSectionStyle.Render("Compared With Baseline"))
		t.println(tuiBoxStyle.Render(strings.Join(lines, "\n")))
	}

	return nil
}

func (t *TUI) UpdateSideEffects(summary m.SideEffectSummary) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.renderTable(effectsByTypeTable(summary))

	if len(summary.HighImpactEffects) > 0 {
		t.renderTable(highImpactTable(summary))
	}

	if len(summary.StateChanges) > 0 {
		t.renderTable(stateChangeTable(summary))
	}

	return nil
}

func (t *TUI) UpdateVariableHistory(history m.VariableHistory) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(history.States) == 0 {
		t.println(tuiMutedStyle.Render("No states recorded for " + history.Variable))

		return nil
	}

	table := variableHistoryTable(history)
	if t.shouldBrowse(table) {
		return t.browse(table)
	}

	t.renderTable(table)

	return nil
}

func (t *TUI) DebugSessionStarted(info m.SessionInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(fmt.Sprintf("%s %s %s", tuiOKStyle.Render("▶"), info.Name, tuiMutedStyle.Render(info.ID)))
}

func (t *TUI) DebugSessionEnded(info m.SessionInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(fmt.Sprintf("%s %s %s", tuiMutedStyle.Render("■"), info.Name, tuiMutedStyle.Render(info.ID)))
}

func (t *TUI) DisplaySelfTest(statuses []m.SubsystemStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(tuiSectionStyle.Render("Self Test"))

	for _, status := range statuses {
		mark := tuiOKStyle.Render("✓")
		if !status.Ready {
			mark = tuiFailStyle.Render("✗")
		}

		line := fmt.Sprintf("%s %s", mark, status.Name)
		if status.Detail != "" {
			line += " " + tuiMutedStyle.Render(status.Detail)
		}

		t.println(line)
	}

	return nil
}

func (t *TUI) DisplayReports(reports []m.Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(reports) == 0 {
		t.println(tuiMutedStyle.Render("No reports found"))

		return nil
	}

	table := reportTable(reports)
	if t.shouldBrowse(table) {
		return t.browse(table)
	}

	t.renderTable(table)

	return nil
}

func (t *TUI) DisplaySessions(records []m.SessionRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(records) == 0 {
		t.println(tuiMutedStyle.Render("No archived sessions"))

		return nil
	}

	table := sessionTable(records)
	if t.shouldBrowse(table) {
		return t.browse(table)
	}

	t.renderTable(table)

	return nil
}

func (t *TUI) shouldBrowse(table tableData) bool {
	return t.interactive && len(table.rows) > browseThreshold
}

func (t *TUI) browse(table tableData) error {
	options := []tea.ProgramOption{tea.WithOutput(t.output), tea.WithAltScreen()}
	if t.input != nil {
		options = append(options, tea.WithInput(t.input))
	}

	if _, err := tea.NewProgram(newBrowserModel(table), options...).Run(); err != nil {
		return fmt.Errorf("browse %s: %w", strings.ToLower(table.title), err)
	}

	return nil
}

// renderTable lays out the table in padded columns inside a rounded box.
func (t *TUI) renderTable(table tableData) {
	widths := columnWidths(table)

	lines := make([]string, 0, len(table.rows)+2)
	lines = append(lines, tuiHeaderStyle.Render(joinCells(table.header, widths)))

	for _, row := range table.rows {
		lines = append(lines, tuiCellStyle.Render(joinCells(row, widths)))
	}

	if len(table.footer) == len(table.header) {
		lines = append(lines, tuiAccentStyle.Render(joinCells(table.footer, widths)))
	}

	t.println(tuiSectionStyle.Render(table.title))
	t.println(tuiBoxStyle.Render(strings.Join(lines, "\n")))
}

func columnWidths(table tableData) []int {
	widths := make([]int, len(table.header))

	measure := func(cells []string) {
		for i, cell := range cells {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	measure(table.header)

	for _, row := range table.rows {
		measure(row)
	}

	if len(table.footer) == len(table.header) {
		measure(table.footer)
	}

	return widths
}

func joinCells(cells []string, widths []int) string {
	padded := make([]string, 0, len(cells))
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}

		padded = append(padded, lipgloss.NewStyle().Width(widths[i]).Render(cell))
	}

	return strings.TrimRight(strings.Join(padded, "  "), " ")
}

func (t *TUI) println(line string) {
	_, _ = fmt.Fprintln(t.output, line)
}
