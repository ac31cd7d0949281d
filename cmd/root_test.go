package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/storyteller/internal/controller"
)

// useTempWorkspace runs the test inside an empty directory so reports and
// the archive land there and no user config is picked up.
func useTempWorkspace(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	return dir
}

func writeSource(t *testing.T, dir, name, text string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	return path
}

func executeCommand(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	root.AddCommand(sub)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestRootCmd_InvalidLogLevel(t *testing.T) {
	useTempWorkspace(t)

	_, err := executeCommand(t, newCallGraphCmd(), "--log-level", "loud", "callgraph", "app.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	useTempWorkspace(t)

	_, err := executeCommand(t, newCallGraphCmd(), "--config", "missing.yaml", "callgraph", "app.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestRootCmd_ConfigFromEnvironment(t *testing.T) {
	dir := useTempWorkspace(t)
	t.Setenv("STORYTELLER_REPORTS_DIR", filepath.Join(dir, "elsewhere"))

	_, err := executeCommand(t, newReportsCmd(), "reports")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "elsewhere"), cfg.Reports.Dir)
}

func TestRootCmd_NewUIOverride(t *testing.T) {
	dir := useTempWorkspace(t)
	path := writeSource(t, dir, "app.js", "function main() {}\n")

	original := newUI
	defer func() { newUI = original }()

	var calls int
	newUI = func(cmd *cobra.Command) controller.UI {
		calls++

		return controller.NewSimpleUI(cmd)
	}

	_, err := executeCommand(t, newCallGraphCmd(), "callgraph", path)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

var savedReportPattern = regexp.MustCompile(`saved report (\S+)`)

func savedReportID(t *testing.T, output string) string {
	t.Helper()

	match := savedReportPattern.FindStringSubmatch(output)
	require.Len(t, match, 2, output)

	return match[1]
}
