package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	m "github.com/mouse-blink/storyteller/internal/model"
)

const indexFileName = "_index.yaml"

// ReportStore persists what-if results as one YAML file per report.
type ReportStore interface {
	SaveReports(dir m.Path, reports []m.Report) ([]string, error)
	LoadReports(dir m.Path) ([]m.Report, error)
	LoadReport(dir m.Path, id string) (m.Report, error)
	RegenerateIndex(dir m.Path) error
	CleanReports(dir m.Path, sources []m.Path) error
}

// LocalReportStore stores reports under a directory on disk.
type LocalReportStore struct{}

// NewReportStore constructs a ReportStore implementation.
func NewReportStore() ReportStore {
	return &LocalReportStore{}
}

type indexEntry struct {
	TotalReports int           `yaml:"total_reports"`
	TotalPaths   int           `yaml:"total_paths"`
	TotalEffects int           `yaml:"total_effects"`
	Result       []sourceEntry `yaml:"result"`
}

type sourceEntry struct {
	Source     string   `yaml:"source"`
	SourceHash string   `yaml:"source_hash"`
	Reports    []string `yaml:"reports"`
}

// SaveReports writes each report to <hash>.yaml and returns the report ids.
func (rs *LocalReportStore) SaveReports(dir m.Path, reports []m.Report) ([]string, error) {
	if dir == "" {
		return nil, errors.New("reports directory is empty")
	}

	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	ids := make([]string, 0, len(reports))

	for _, report := range reports {
		id := rs.computeReportHash(report)
		if id == "" {
			return nil, fmt.Errorf("hash report %s", report.Result.Scenario.ID)
		}

		report.ID = id

		data, err := yaml.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("encode report %s: %w", id, err)
		}

		path := filepath.Join(string(dir), id+".yaml")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("write report %s: %w", id, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// LoadReports reads every report in dir, oldest first. A missing directory holds no reports.
func (rs *LocalReportStore) LoadReports(dir m.Path) ([]m.Report, error) {
	files, err := rs.reportFiles(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]m.Report, 0, len(files))

	for _, file := range files {
		report, err := readReport(file)
		if err != nil {
			return nil, err
		}

		reports = append(reports, report)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].SavedAt.Before(reports[j].SavedAt)
	})

	return reports, nil
}

// LoadReport reads the report with the given id.
func (rs *LocalReportStore) LoadReport(dir m.Path, id string) (m.Report, error) {
	if dir == "" {
		return m.Report{}, errors.New("reports directory is empty")
	}

	return readReport(filepath.Join(string(dir), id+".yaml"))
}

// RegenerateIndex rewrites _index.yaml from the reports present in dir.
func (rs *LocalReportStore) RegenerateIndex(dir m.Path) error {
	files, err := rs.reportFiles(dir)
	if err != nil {
		return err
	}

	indexPath := filepath.Join(string(dir), indexFileName)

	if len(files) == 0 {
		if err := os.Remove(indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove index: %w", err)
		}

		return nil
	}

	idx := indexEntry{}
	bySource := map[string]*sourceEntry{}

	var order []string

	for _, file := range files {
		report, err := readReport(file)
		if err != nil {
			return err
		}

		idx.TotalReports++
		idx.TotalPaths += len(report.Result.ExecutionPaths)
		idx.TotalEffects += len(report.Result.SideEffects)

		key := string(report.Source)

		entry, ok := bySource[key]
		if !ok {
			entry = &sourceEntry{Source: key, SourceHash: report.SourceHash}
			bySource[key] = entry
			order = append(order, key)
		}

		entry.Reports = append(entry.Reports, filepath.Base(file))
	}

	sort.Strings(order)

	for _, key := range order {
		idx.Result = append(idx.Result, *bySource[key])
	}

	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.WriteFile(indexPath, data, 0o600); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}

// CleanReports deletes the reports of the given sources, or all reports when
// sources is nil, and regenerates the index.
func (rs *LocalReportStore) CleanReports(dir m.Path, sources []m.Path) error {
	if dir == "" {
		return errors.New("reports directory is empty")
	}

	files, err := rs.reportFiles(dir)
	if err != nil {
		return err
	}

	selected := make(map[m.Path]struct{}, len(sources))
	for _, source := range sources {
		selected[source] = struct{}{}
	}

	for _, file := range files {
		if sources != nil {
			report, err := readReport(file)
			if err != nil {
				return err
			}

			if _, ok := selected[report.Source]; !ok {
				continue
			}
		}

		if err := os.Remove(file); err != nil {
			return fmt.Errorf("remove report: %w", err)
		}
	}

	return rs.RegenerateIndex(dir)
}

// computeReportHash derives a stable 16-hex-digit id from the source
// fingerprint and the scenario inputs.
func (rs *LocalReportStore) computeReportHash(report m.Report) string {
	inputs, err := json.Marshal(report.Result.Scenario.MockInputs)
	if err != nil {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(report.Source))
	h.Write([]byte{0})
	h.Write([]byte(report.SourceHash))
	h.Write([]byte{0})
	h.Write([]byte(report.Result.Scenario.ID))
	h.Write([]byte{0})
	h.Write(inputs)

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (rs *LocalReportStore) reportFiles(dir m.Path) ([]string, error) {
	if dir == "" {
		return nil, errors.New("reports directory is empty")
	}

	entries, err := os.ReadDir(string(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read reports directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == indexFileName || !strings.HasSuffix(name, ".yaml") {
			continue
		}

		files = append(files, filepath.Join(string(dir), name))
	}

	return files, nil
}

func readReport(path string) (m.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return m.Report{}, fmt.Errorf("read report: %w", err)
	}

	var report m.Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return m.Report{}, fmt.Errorf("decode report %s: %w", filepath.Base(path), err)
	}

	return report, nil
}
