package controller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	m "github.com/mouse-blink/storyteller/internal/model"
)

const maxCellWidth = 60

// tableData is a renderer-neutral table. SimpleUI writes it with tablewriter,
// TUI with lipgloss.
type tableData struct {
	title  string
	header []string
	rows   [][]string
	footer []string
}

func callGraphTable(graph m.CallGraph) tableData {
	table := tableData{
		title:  "Call Graph",
		header: []string{"Function", "Location", "Calls", "Children"},
	}

	for _, node := range graph.Nodes {
		table.rows = append(table.rows, []string{
			node.Name,
			node.Location.String(),
			fmt.Sprintf("%d", node.Metadata.TotalCalls),
			strings.Join(node.ChildNames(), ", "),
		})
	}

	table.footer = []string{
		fmt.Sprintf("Total Functions %d", graph.Metadata.TotalFunctions),
		"",
		fmt.Sprintf("%d", graph.Metadata.TotalCalls),
		fmt.Sprintf("Depth %d", graph.Metadata.MaxDepth),
	}

	return table
}

// callTree renders the forest under graph.RootNodes, one node per line.
// Nodes already on the current path are marked and not expanded again.
func callTree(graph m.CallGraph) []string {
	var lines []string

	var walk func(node *m.CallGraphNode, depth int, path map[*m.CallGraphNode]bool)

	walk = func(node *m.CallGraphNode, depth int, path map[*m.CallGraphNode]bool) {
		indent := strings.Repeat("  ", depth)
		if path[node] {
			lines = append(lines, fmt.Sprintf("%s%s (recursive)", indent, node.Name))

			return
		}

		lines = append(lines, fmt.Sprintf("%s%s", indent, node.Name))

		path[node] = true
		for _, child := range node.Children {
			walk(child, depth+1, path)
		}

		delete(path, node)
	}

	for _, root := range graph.RootNodes {
		walk(root, 0, map[*m.CallGraphNode]bool{})
	}

	return lines
}

func executionPathTable(result m.WhatIfResult) tableData {
	table := tableData{
		title:  "Execution Paths",
		header: []string{"Function", "Parameters", "Return", "Branch", "Time"},
	}

	for _, path := range result.ExecutionPaths {
		table.rows = append(table.rows, []string{
			path.FunctionName,
			formatValue(path.Parameters),
			formatValue(path.ReturnValue),
			path.BranchTaken,
			formatDuration(path.ExecutionTime),
		})
	}

	table.footer = []string{
		fmt.Sprintf("Calls %d", result.PerformanceMetrics.FunctionCallCount),
		"",
		"",
		fmt.Sprintf("Coverage %.1f%%", result.CodeCoverage.CoveragePercentage),
		formatDuration(result.PerformanceMetrics.TotalExecutionTime),
	}

	return table
}

func sandboxEffectTable(effects []m.SandboxEffect) tableData {
	table := tableData{
		title:  "Intercepted Effects",
		header: []string{"Type", "Description"},
	}

	for _, effect := range effects {
		table.rows = append(table.rows, []string{string(effect.Type), truncateCell(effect.Description)})
	}

	return table
}

func baselineLines(cmp *m.BaselineComparison) []string {
	if cmp == nil {
		return nil
	}

	lines := []string{fmt.Sprintf("Performance delta: %s", formatDuration(cmp.PerformanceDelta))}
	for _, diff := range cmp.OutputDifferences {
		lines = append(lines, fmt.Sprintf("%s: %s", diff.Type, diff.Description))
	}

	for _, path := range cmp.NewPathsDiscovered {
		lines = append(lines, "new path: "+path)
	}

	return lines
}

func effectsByTypeTable(summary m.SideEffectSummary) tableData {
	table := tableData{
		title:  "Side Effects",
		header: []string{"Type", "Count"},
	}

	kinds := make([]string, 0, len(summary.EffectsByType))
	for kind := range summary.EffectsByType {
		kinds = append(kinds, string(kind))
	}

	sort.Strings(kinds)

	for _, kind := range kinds {
		table.rows = append(table.rows, []string{kind, fmt.Sprintf("%d", summary.EffectsByType[m.SideEffectKind(kind)])})
	}

	table.footer = []string{"Total", fmt.Sprintf("%d", summary.TotalEffects)}

	return table
}

func highImpactTable(summary m.SideEffectSummary) tableData {
	table := tableData{
		title:  "High Impact",
		header: []string{"ID", "Type", "Impact", "Location", "Description"},
	}

	for _, effect := range summary.HighImpactEffects {
		location := ""
		if effect.Location != nil {
			location = effect.Location.String()
		}

		table.rows = append(table.rows, []string{
			effect.ID,
			string(effect.Type),
			string(effect.Metadata.Impact),
			location,
			truncateCell(effect.Description),
		})
	}

	return table
}

func stateChangeTable(summary m.SideEffectSummary) tableData {
	table := tableData{
		title:  "State Changes",
		header: []string{"Variable", "Old", "New", "Location", "Cause"},
	}

	for _, change := range summary.StateChanges {
		table.rows = append(table.rows, []string{
			change.Variable,
			formatValue(change.OldValue),
			formatValue(change.NewValue),
			change.Location.String(),
			change.Cause,
		})
	}

	return table
}

func variableHistoryTable(history m.VariableHistory) tableData {
	table := tableData{
		title:  "Variable " + history.Variable,
		header: []string{"#", "Value", "Type", "Location", "Scope"},
	}

	for i, state := range history.States {
		table.rows = append(table.rows, []string{
			fmt.Sprintf("%d", i+1),
			formatValue(state.Value),
			state.Type,
			state.Location.String(),
			state.Scope,
		})
	}

	table.footer = []string{"", fmt.Sprintf("Updates %d", history.Metadata.UpdateCount), "", "", ""}

	return table
}

func selfTestTable(statuses []m.SubsystemStatus) tableData {
	table := tableData{
		title:  "Self Test",
		header: []string{"Subsystem", "Status", "Detail"},
	}

	ready := 0

	for _, status := range statuses {
		state := "FAILED"
		if status.Ready {
			state = "ready"
			ready++
		}

		table.rows = append(table.rows, []string{status.Name, state, status.Detail})
	}

	table.footer = []string{"Ready", fmt.Sprintf("%d/%d", ready, len(statuses)), ""}

	return table
}

func reportTable(reports []m.Report) tableData {
	table := tableData{
		title:  "Reports",
		header: []string{"ID", "Source", "Scenario", "Saved", "Paths", "Effects"},
	}

	for _, report := range reports {
		table.rows = append(table.rows, []string{
			report.ID,
			string(report.Source),
			report.Result.Scenario.ID,
			report.SavedAt.Format(time.RFC3339),
			fmt.Sprintf("%d", len(report.Result.ExecutionPaths)),
			fmt.Sprintf("%d", len(report.Result.SideEffects)),
		})
	}

	table.footer = []string{"Total", fmt.Sprintf("%d", len(reports)), "", "", "", ""}

	return table
}

func sessionTable(records []m.SessionRecord) tableData {
	table := tableData{
		title:  "Debug Sessions",
		header: []string{"ID", "Name", "Started", "Duration", "Calls", "Effects"},
	}

	for _, record := range records {
		table.rows = append(table.rows, []string{
			record.ID,
			record.Name,
			record.StartedAt.Format(time.RFC3339),
			formatDuration(record.EndedAt.Sub(record.StartedAt)),
			fmt.Sprintf("%d", record.TotalCalls),
			fmt.Sprintf("%d", record.TotalEffects),
		})
	}

	table.footer = []string{"Total", fmt.Sprintf("%d", len(records)), "", "", "", ""}

	return table
}

// formatValue renders a tracked value in a single table cell.
func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return truncateCell(value)
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return truncateCell(fmt.Sprintf("%v", v))
	}

	return truncateCell(string(encoded))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}

func truncateCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")

	return clipCells(s, maxCellWidth)
}
