package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/storyteller/internal/config"
	"github.com/mouse-blink/storyteller/internal/domain"
	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

const replayLog = `{"seq":1,"type":"event","event":"output","body":{"category":"stdout","output":"ready\n"}}

{"seq":2,"type":"response","command":"stackTrace","request_seq":1000000,"success":true,"arguments":{"threadId":1},"body":{"stackFrames":[{"id":1,"name":"handler","line":4,"column":3},{"id":2,"name":"main","line":10,"column":1}],"totalFrames":2}}
{"seq":3,"type":"response","command":"variables","request_seq":1000001,"success":true,"body":{"variables":[{"name":"total","value":"42","type":"number","variablesReference":0}]}}
{"seq":4,"type":"event","event":"exited","body":{"exitCode":0}}
`

func TestReplaySession_DispatchesEveryMessage(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	replay := NewReplaySession("log", strings.NewReader(replayLog), dispatcher, logging.Discard())

	count, err := replay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	messages := dispatcher.snapshot()
	require.Len(t, messages, 4)
	assert.True(t, messages[0].IsEvent("output"))
	assert.True(t, messages[1].IsResponse("stackTrace"))
	assert.JSONEq(t, `{"threadId":1}`, string(messages[1].Arguments))
	assert.True(t, messages[3].IsEvent("exited"))

	id := replay.Info().ID
	assert.Equal(t, []string{id}, dispatcher.attached)
	assert.Equal(t, []string{id}, dispatcher.detached)
}

func TestReplaySession_FeedsTrackers(t *testing.T) {
	ws := domain.NewWorkspace(config.DefaultConfig(), logging.Discard())
	require.NoError(t, ws.Variables.StartTracking("total", m.Document{Path: "app.js", Language: m.LanguageJavaScript}))

	_, err := NewReplaySession("log", strings.NewReader(replayLog), ws.Dispatcher, logging.Discard()).Run(context.Background())
	require.NoError(t, err)

	graph := ws.CallGraph.Current()
	require.Len(t, graph.AllCalls, 2)

	handler, ok := graph.Node("handler")
	require.True(t, ok)
	assert.Equal(t, m.NewPosition(3, 2), handler.Location)

	hist, ok := ws.Variables.History("total")
	require.True(t, ok)
	require.Len(t, hist.States, 1)
	assert.Equal(t, "42", hist.States[0].Value)

	summary := ws.SideEffects.Summary()
	assert.Equal(t, 2, summary.TotalEffects)
	assert.Equal(t, 1, summary.EffectsByType[m.EffectConsole])
	assert.Equal(t, 1, summary.EffectsByType[m.EffectProcess])
}

func TestReplaySession_MalformedLine(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	log := `{"seq":1,"type":"event","event":"output","body":{}}` + "\n{not json\n"

	count, err := NewReplaySession("log", strings.NewReader(log), dispatcher, logging.Discard()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay line 2")
	assert.Equal(t, 1, count)
	assert.Len(t, dispatcher.detached, 1)
}

func TestReplaySession_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count, err := NewReplaySession("log", strings.NewReader(replayLog), &recordingDispatcher{}, logging.Discard()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count)
}

func TestReplaySession_RequestUnsupported(t *testing.T) {
	replay := NewReplaySession("log", strings.NewReader(""), &recordingDispatcher{}, logging.Discard())

	_, err := replay.Request(context.Background(), "stackTrace", nil)
	require.ErrorIs(t, err, domain.ErrRequestUnsupported)
}
