package cmd

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordedSession = `{"seq":1,"type":"event","event":"output","body":{"category":"stdout","output":"ready\n"}}
{"seq":2,"type":"response","command":"stackTrace","request_seq":1000000,"success":true,"arguments":{"threadId":1},"body":{"stackFrames":[{"id":1,"name":"handler","line":4,"column":3},{"id":2,"name":"main","line":10,"column":1}],"totalFrames":2}}
{"seq":3,"type":"response","command":"variables","request_seq":1000001,"success":true,"body":{"variables":[{"name":"total","value":"42","type":"number","variablesReference":0}]}}
{"seq":4,"type":"event","event":"exited","body":{"exitCode":0}}
`

var archivedSessionPattern = regexp.MustCompile(`archived session (\S+)`)

func TestDebugCmd_ReplayArchivesSession(t *testing.T) {
	dir := useTempWorkspace(t)
	log := writeSource(t, dir, "session.jsonl", recordedSession)

	out, err := executeCommand(t, newDebugCmd(), "debug", "--replay", log, "--name", "checkout", "--track", "total")
	require.NoError(t, err)

	assert.Contains(t, out, "debug session started: checkout")
	assert.Contains(t, out, "debug session ended: checkout")
	assert.Contains(t, out, "handler")
	assert.Contains(t, out, "Variable total")
	assert.Contains(t, out, "42")

	match := archivedSessionPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	id := match[1]

	out, err = executeCommand(t, newSessionsCmd(), "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "Debug Sessions")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "checkout")

	out, err = executeCommand(t, newSessionsCmd(), "sessions", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Call Graph")
	assert.Contains(t, out, "Variable total")
}

func TestDebugCmd_NoArchive(t *testing.T) {
	dir := useTempWorkspace(t)
	log := writeSource(t, dir, "session.jsonl", recordedSession)

	out, err := executeCommand(t, newDebugCmd(), "debug", "--replay", log, "--no-archive")
	require.NoError(t, err)
	assert.NotContains(t, out, "archived session")

	out, err = executeCommand(t, newSessionsCmd(), "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived sessions")
}

func TestDebugCmd_MalformedReplay(t *testing.T) {
	dir := useTempWorkspace(t)
	log := writeSource(t, dir, "session.jsonl", "{not json\n")

	_, err := executeCommand(t, newDebugCmd(), "debug", "--replay", log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay line 1")
}

func TestDebugCmd_RequiresAdapter(t *testing.T) {
	useTempWorkspace(t)

	_, err := executeCommand(t, newDebugCmd(), "debug")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one of --adapter, --adapter-cmd or --replay is required")
}

func TestDebugCmd_ExclusiveSources(t *testing.T) {
	useTempWorkspace(t)

	_, err := executeCommand(t, newDebugCmd(), "debug", "--replay", "a.jsonl", "--adapter", "127.0.0.1:1")
	require.Error(t, err)
}

func TestSessionsShowCmd_UnknownID(t *testing.T) {
	useTempWorkspace(t)

	_, err := executeCommand(t, newSessionsCmd(), "sessions", "show", "missing")
	require.Error(t, err)
}

func TestSelfTestCmd(t *testing.T) {
	useTempWorkspace(t)

	out, err := executeCommand(t, newSelfTestCmd(), "selftest")
	require.NoError(t, err)

	assert.Contains(t, out, "Self Test")
	assert.Contains(t, out, "archive")
	assert.Contains(t, out, "sandbox")
}
