package adapter

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	m "github.com/mouse-blink/storyteller/internal/model"
)

func testReport(source, sourceHash, scenarioID string, savedAt time.Time) m.Report {
	return m.Report{
		Source:     m.Path(source),
		SourceHash: sourceHash,
		SavedAt:    savedAt,
		Result: m.WhatIfResult{
			Scenario: m.WhatIfScenario{
				ID:          scenarioID,
				Description: "What-if analysis for " + source,
				MockInputs:  map[string]any{"x": 2},
				Timestamp:   savedAt,
			},
			ExecutionPaths: []m.ExecutionPath{
				{ID: "path_1", FunctionName: "double", Parameters: []any{}, ReturnValue: 4, ExecutionTime: 3 * time.Millisecond, BranchTaken: "main"},
			},
			SideEffects: []m.SandboxEffect{
				{Type: m.EffectConsole, Description: "console.log: 4", Timestamp: savedAt},
			},
			PerformanceMetrics: m.PerformanceMetrics{TotalExecutionTime: 5 * time.Millisecond, FunctionCallCount: 1},
		},
	}
}

func TestLocalReportStore_SaveReports_WritesHashedYAMLPerReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}

	savedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("/abs/app.js", "abc123", "scenario_1", savedAt)

	expectedHash := rs.computeReportHash(report)
	if expectedHash == "" {
		t.Fatalf("expected non-empty report hash")
	}

	ids, err := rs.SaveReports(m.Path(dir), []m.Report{report})
	if err != nil {
		t.Fatalf("SaveReports returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != expectedHash {
		t.Fatalf("unexpected ids: %v", ids)
	}

	expectedFile := filepath.Join(dir, expectedHash+".yaml")
	info, err := os.Stat(expectedFile)
	if err != nil {
		t.Fatalf("expected report file %s to exist: %v", expectedFile, err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("expected %s to be a regular file", expectedFile)
	}

	matched, err := regexp.MatchString(`^[0-9a-f]{16}\.yaml$`, filepath.Base(expectedFile))
	if err != nil {
		t.Fatalf("regex error: %v", err)
	}
	if !matched {
		t.Fatalf("unexpected filename: %s", filepath.Base(expectedFile))
	}

	loaded, err := rs.LoadReport(m.Path(dir), expectedHash)
	if err != nil {
		t.Fatalf("LoadReport returned error: %v", err)
	}
	if loaded.ID != expectedHash {
		t.Fatalf("expected id %s, got %s", expectedHash, loaded.ID)
	}
	if loaded.SourceHash != "abc123" {
		t.Fatalf("unexpected source hash: %s", loaded.SourceHash)
	}
	if loaded.Result.Scenario.ID != "scenario_1" {
		t.Fatalf("unexpected scenario id: %s", loaded.Result.Scenario.ID)
	}
	if !loaded.SavedAt.Equal(savedAt) {
		t.Fatalf("unexpected saved_at: %v", loaded.SavedAt)
	}
	if len(loaded.Result.ExecutionPaths) != 1 || loaded.Result.ExecutionPaths[0].ExecutionTime != 3*time.Millisecond {
		t.Fatalf("execution paths did not round-trip: %+v", loaded.Result.ExecutionPaths)
	}
	if loaded.Result.PerformanceMetrics.TotalExecutionTime != 5*time.Millisecond {
		t.Fatalf("unexpected total execution time: %v", loaded.Result.PerformanceMetrics.TotalExecutionTime)
	}
}

func TestLocalReportStore_ComputeReportHash_DependsOnSourceAndInputs(t *testing.T) {
	t.Parallel()

	rs := &LocalReportStore{}
	now := time.Now()

	base := testReport("/abs/app.js", "abc123", "scenario_1", now)
	later := testReport("/abs/app.js", "abc123", "scenario_1", now.Add(time.Hour))
	if rs.computeReportHash(base) != rs.computeReportHash(later) {
		t.Fatalf("expected hash to ignore saved_at")
	}

	changed := testReport("/abs/app.js", "def456", "scenario_1", now)
	if rs.computeReportHash(base) == rs.computeReportHash(changed) {
		t.Fatalf("expected hash to change with the source fingerprint")
	}

	inputs := testReport("/abs/app.js", "abc123", "scenario_1", now)
	inputs.Result.Scenario.MockInputs = map[string]any{"x": 3}
	if rs.computeReportHash(base) == rs.computeReportHash(inputs) {
		t.Fatalf("expected hash to change with the mock inputs")
	}
}

func TestLocalReportStore_SaveReports_EmptyDir_ReturnsError(t *testing.T) {
	t.Parallel()

	rs := &LocalReportStore{}
	if _, err := rs.SaveReports("", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLocalReportStore_LoadReports_OrdersBySavedAt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := testReport("/abs/b.js", "b", "scenario_2", t0.Add(time.Minute))
	older := testReport("/abs/a.js", "a", "scenario_1", t0)

	if _, err := rs.SaveReports(m.Path(dir), []m.Report{newer, older}); err != nil {
		t.Fatalf("SaveReports returned error: %v", err)
	}

	reports, err := rs.LoadReports(m.Path(dir))
	if err != nil {
		t.Fatalf("LoadReports returned error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Result.Scenario.ID != "scenario_1" || reports[1].Result.Scenario.ID != "scenario_2" {
		t.Fatalf("unexpected order: %s, %s", reports[0].Result.Scenario.ID, reports[1].Result.Scenario.ID)
	}
}

func TestLocalReportStore_LoadReports_NoReportsDir_ReturnsEmpty(t *testing.T) {
	t.Parallel()

	rs := &LocalReportStore{}

	reports, err := rs.LoadReports(m.Path(filepath.Join(t.TempDir(), "does-not-exist")))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports, got %d", len(reports))
	}
}

func TestLocalReportStore_LoadReports_CorruptFile_ReturnsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}
	writeTestFile(t, filepath.Join(dir, "0123456789abcdef.yaml"), "result: [unterminated\n")

	if _, err := rs.LoadReports(m.Path(dir)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLocalReportStore_RegenerateIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}
	now := time.Now()

	reportA1 := testReport("/abs/a.js", "sourceA", "scenario_1", now)
	reportA2 := testReport("/abs/a.js", "sourceA", "scenario_2", now)
	reportB := testReport("/abs/b.js", "sourceB", "scenario_3", now)

	if _, err := rs.SaveReports(m.Path(dir), []m.Report{reportA1, reportA2, reportB}); err != nil {
		t.Fatalf("SaveReports returned error: %v", err)
	}

	indexPath := filepath.Join(dir, indexFileName)
	if _, err := os.Stat(indexPath); err == nil {
		t.Fatalf("expected %s to not exist until RegenerateIndex is called", indexFileName)
	}

	if err := rs.RegenerateIndex(m.Path(dir)); err != nil {
		t.Fatalf("RegenerateIndex returned error: %v", err)
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", indexFileName, err)
	}

	var idx indexEntry
	if err := yaml.Unmarshal(data, &idx); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}

	if idx.TotalReports != 3 {
		t.Fatalf("expected total_reports=3, got %d", idx.TotalReports)
	}
	if idx.TotalPaths != 3 || idx.TotalEffects != 3 {
		t.Fatalf("unexpected totals: paths=%d effects=%d", idx.TotalPaths, idx.TotalEffects)
	}
	if len(idx.Result) != 2 {
		t.Fatalf("expected 2 source entries, got %d", len(idx.Result))
	}
	if idx.Result[0].Source != "/abs/a.js" || len(idx.Result[0].Reports) != 2 {
		t.Fatalf("unexpected first entry: %+v", idx.Result[0])
	}
	if idx.Result[1].SourceHash != "sourceB" || idx.Result[1].Reports[0] != rs.computeReportHash(reportB)+".yaml" {
		t.Fatalf("unexpected second entry: %+v", idx.Result[1])
	}

	reports, err := rs.LoadReports(m.Path(dir))
	if err != nil {
		t.Fatalf("LoadReports returned error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected index file to be excluded from reports, got %d", len(reports))
	}
}

func TestLocalReportStore_CleanReports_DeletesOnlySelectedAndRegeneratesIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}
	now := time.Now()

	reportA := testReport("/abs/a.js", "sourceA", "scenario_1", now)
	reportB := testReport("/abs/b.js", "sourceB", "scenario_2", now)

	if _, err := rs.SaveReports(m.Path(dir), []m.Report{reportA, reportB}); err != nil {
		t.Fatalf("SaveReports returned error: %v", err)
	}
	if err := rs.RegenerateIndex(m.Path(dir)); err != nil {
		t.Fatalf("RegenerateIndex returned error: %v", err)
	}

	fileA := filepath.Join(dir, rs.computeReportHash(reportA)+".yaml")
	fileB := filepath.Join(dir, rs.computeReportHash(reportB)+".yaml")

	if err := rs.CleanReports(m.Path(dir), []m.Path{"/abs/a.js"}); err != nil {
		t.Fatalf("CleanReports returned error: %v", err)
	}

	if _, err := os.Stat(fileA); err == nil {
		t.Fatalf("expected report A file to be deleted")
	}
	if _, err := os.Stat(fileB); err != nil {
		t.Fatalf("expected report B file to remain: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	var idx indexEntry
	if err := yaml.Unmarshal(data, &idx); err != nil {
		t.Fatalf("unmarshal index: %v", err)
	}
	if len(idx.Result) != 1 || idx.Result[0].SourceHash != "sourceB" {
		t.Fatalf("expected only sourceB to remain, got %+v", idx.Result)
	}
}

func TestLocalReportStore_CleanReports_DeleteAll_RemovesIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rs := &LocalReportStore{}

	report := testReport("/abs/a.js", "sourceA", "scenario_1", time.Now())
	if _, err := rs.SaveReports(m.Path(dir), []m.Report{report}); err != nil {
		t.Fatalf("SaveReports returned error: %v", err)
	}
	if err := rs.RegenerateIndex(m.Path(dir)); err != nil {
		t.Fatalf("RegenerateIndex returned error: %v", err)
	}

	if err := rs.CleanReports(m.Path(dir), nil); err != nil {
		t.Fatalf("CleanReports returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, rs.computeReportHash(report)+".yaml")); err == nil {
		t.Fatalf("expected report file to be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, indexFileName)); err == nil {
		t.Fatalf("expected %s to be deleted", indexFileName)
	}
}

func TestLocalReportStore_CleanReports_NoReportsDir_NoError(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "does-not-exist")
	rs := &LocalReportStore{}

	if err := rs.CleanReports(m.Path(dir), nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestLocalReportStore_CleanReports_EmptyPath_ReturnsError(t *testing.T) {
	t.Parallel()

	rs := &LocalReportStore{}
	if err := rs.CleanReports("", nil); err == nil {
		t.Fatalf("expected error")
	}
}
