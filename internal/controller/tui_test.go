package controller

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	m "github.com/mouse-blink/storyteller/internal/model"
)

func TestTUI_StartPrintsTitle(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)

	if err := tui.Start(WithTitle("effects")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !strings.Contains(buf.String(), "effects") {
		t.Fatalf("Start() output = %q, want title", buf.String())
	}

	buf.Reset()

	if err := tui.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !strings.Contains(buf.String(), "storyteller") {
		t.Fatalf("Start() default title missing: %q", buf.String())
	}
}

func TestTUI_UpdateCallGraph(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)

	if err := tui.UpdateCallGraph(testCallGraph()); err != nil {
		t.Fatalf("UpdateCallGraph() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "Call Graph", "Function", "helper", "5:10", "Call Tree", "helper (recursive)", "Total Functions 2")
}

func TestTUI_UpdateWhatIfAnalysis(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)
	result := m.WhatIfResult{
		Scenario:       m.WhatIfScenario{ID: "scenario_2", MockInputs: map[string]any{"user": "bob"}},
		ExecutionPaths: []m.ExecutionPath{{FunctionName: "greet", ReturnValue: "hi bob", BranchTaken: "main"}},
		ComparisonWithBaseline: &m.BaselineComparison{
			NewPathsDiscovered: []string{"greet:main"},
		},
	}

	if err := tui.UpdateWhatIfAnalysis(result); err != nil {
		t.Fatalf("UpdateWhatIfAnalysis() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "Scenario scenario_2", `{"user":"bob"}`, "greet", "hi bob", "Compared With Baseline", "new path: greet:main")
}

func TestTUI_UpdateSideEffectsAndHistory(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)

	summary := m.SideEffectSummary{
		TotalEffects:  1,
		EffectsByType: map[m.SideEffectKind]int{m.EffectFile: 1},
		StateChanges:  []m.StateChange{{Variable: "x", OldValue: nil, NewValue: 3, Cause: "assignment"}},
	}

	if err := tui.UpdateSideEffects(summary); err != nil {
		t.Fatalf("UpdateSideEffects() error = %v", err)
	}

	if err := tui.UpdateVariableHistory(m.VariableHistory{Variable: "x"}); err != nil {
		t.Fatalf("UpdateVariableHistory() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "Side Effects", "file", "State Changes", "null", "No states recorded for x")
}

func TestTUI_SessionsAndSelfTest(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)
	info := m.SessionInfo{ID: "id-1", Name: "python"}

	tui.DebugSessionStarted(info)
	tui.DebugSessionEnded(info)

	err := tui.DisplaySelfTest([]m.SubsystemStatus{
		{Name: "archive", Ready: true},
		{Name: "syntax", Detail: "parser unavailable"},
	})
	if err != nil {
		t.Fatalf("DisplaySelfTest() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "python", "id-1", "✓ archive", "✗ syntax", "parser unavailable")
}

func TestTUI_DisplayReportsAndSessions(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)

	if err := tui.DisplayReports(nil); err != nil {
		t.Fatalf("DisplayReports() error = %v", err)
	}

	if err := tui.DisplaySessions(nil); err != nil {
		t.Fatalf("DisplaySessions() error = %v", err)
	}

	if err := tui.DisplayReports([]m.Report{{ID: "feedface", Source: "a.ts", SavedAt: time.Unix(0, 0).UTC()}}); err != nil {
		t.Fatalf("DisplayReports() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "No reports found", "No archived sessions", "feedface", "a.ts")
}

func TestTUI_NonInteractiveNeverBrowses(t *testing.T) {
	var buf bytes.Buffer

	tui := NewTUI(&buf)

	records := make([]m.SessionRecord, browseThreshold+5)
	for i := range records {
		records[i] = m.SessionRecord{ID: fmt.Sprintf("s-%d", i), Name: "node"}
	}

	if err := tui.DisplaySessions(records); err != nil {
		t.Fatalf("DisplaySessions() error = %v", err)
	}

	assertContainsAll(t, buf.String(), "s-0", fmt.Sprintf("s-%d", browseThreshold+4))
}

func TestTUI_InteractiveBrowsesLongListings(t *testing.T) {
	var out bytes.Buffer

	tui := NewInteractiveTUI(strings.NewReader("q"), &out)

	records := make([]m.SessionRecord, browseThreshold+1)
	for i := range records {
		records[i] = m.SessionRecord{ID: fmt.Sprintf("s-%d", i), Name: "node"}
	}

	done := make(chan error, 1)
	go func() { done <- tui.DisplaySessions(records) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DisplaySessions() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("browser did not quit on q")
	}

	if !tui.shouldBrowse(sessionTable(records)) {
		t.Fatalf("shouldBrowse() = false for %d rows", len(records))
	}

	if tui.shouldBrowse(sessionTable(records[:3])) {
		t.Fatalf("shouldBrowse() = true for 3 rows")
	}
}

func TestColumnWidthsAndJoinCells(t *testing.T) {
	table := tableData{
		header: []string{"A", "Long"},
		rows:   [][]string{{"abcd", "x"}},
		footer: []string{"T", "1"},
	}

	widths := columnWidths(table)
	if widths[0] != 4 || widths[1] != 4 {
		t.Fatalf("columnWidths() = %v, want [4 4]", widths)
	}

	if got := joinCells([]string{"a", "b"}, widths); got != "a     b" {
		t.Fatalf("joinCells() = %q", got)
	}
}
