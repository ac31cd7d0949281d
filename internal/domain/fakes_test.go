package domain

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

func discardLogger() *slog.Logger {
	return logging.Discard()
}

type fakeSession struct {
	info      m.SessionInfo
	responses map[string]any
	err       error

	mu       sync.Mutex
	commands []string
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		info:      m.SessionInfo{ID: id, Name: "session " + id},
		responses: map[string]any{},
	}
}

func (f *fakeSession) Info() m.SessionInfo {
	return f.info
}

func (f *fakeSession) Request(_ context.Context, command string, _ any) (json.RawMessage, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	body, ok := f.responses[command]
	if !ok {
		return nil, nil
	}

	return json.Marshal(body)
}

func (f *fakeSession) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.commands...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func eventMessage(t *testing.T, event string, body any) m.DebugMessage {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	return m.DebugMessage{Type: m.MessageEvent, Event: event, Body: raw}
}

func responseMessage(t *testing.T, command string, args, body any) m.DebugMessage {
	t.Helper()

	msg := m.DebugMessage{Type: m.MessageResponse, Command: command, Success: true}

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	msg.Body = raw

	if args != nil {
		rawArgs, err := json.Marshal(args)
		require.NoError(t, err)
		msg.Arguments = rawArgs
	}

	return msg
}
