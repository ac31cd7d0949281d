package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/storyteller/internal/model"
)

type recordingTracker struct {
	name string
	fail bool

	mu       sync.Mutex
	messages []m.DebugMessage
	attached []string
}

func (r *recordingTracker) Name() string { return r.name }

func (r *recordingTracker) AttachSession(session DebugSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attached = append(r.attached, session.Info().ID)
}

func (r *recordingTracker) DetachSession(session DebugSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, id := range r.attached {
		if id == session.Info().ID {
			r.attached = append(r.attached[:i], r.attached[i+1:]...)

			break
		}
	}
}

func (r *recordingTracker) HandleDebugMessage(msg m.DebugMessage) {
	if r.fail {
		panic("tracker exploded")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
}

type recordingObserver struct {
	started []string
	ended   []string
}

func (o *recordingObserver) DebugSessionStarted(info m.SessionInfo) { o.started = append(o.started, info.ID) }
func (o *recordingObserver) DebugSessionEnded(info m.SessionInfo)   { o.ended = append(o.ended, info.ID) }

func TestDispatcher_PanickingTrackerDoesNotStopOthers(t *testing.T) {
	first := &recordingTracker{name: "first"}
	broken := &recordingTracker{name: "broken", fail: true}
	last := &recordingTracker{name: "last"}

	dispatcher := NewDispatcher(discardLogger(), first, broken, last)
	msg := m.DebugMessage{Type: m.MessageEvent, Event: "output"}

	require.NotPanics(t, func() { dispatcher.Dispatch(msg) })

	require.Equal(t, []m.DebugMessage{msg}, first.messages)
	require.Equal(t, []m.DebugMessage{msg}, last.messages)
}

func TestDispatcher_AttachAndDetach(t *testing.T) {
	tracker := &recordingTracker{name: "tracker"}
	observer := &recordingObserver{}
	session := newFakeSession("s1")

	dispatcher := NewDispatcher(discardLogger(), tracker)
	dispatcher.Observe(observer)

	dispatcher.Attach(session)
	require.Equal(t, []string{"s1"}, tracker.attached)
	require.Equal(t, []string{"s1"}, observer.started)

	dispatcher.Detach(session)
	require.Empty(t, tracker.attached)
	require.Equal(t, []string{"s1"}, observer.ended)
}

type messageObserver struct {
	recordingObserver
	messages []m.DebugMessage
}

func (o *messageObserver) DebugMessageReceived(msg m.DebugMessage) {
	o.messages = append(o.messages, msg)
}

func TestDispatcher_MessageObserversSeeEveryMessage(t *testing.T) {
	plain := &recordingObserver{}
	watcher := &messageObserver{}

	dispatcher := NewDispatcher(discardLogger(), &recordingTracker{name: "broken", fail: true})
	dispatcher.Observe(plain)
	dispatcher.Observe(watcher)

	first := m.DebugMessage{Type: m.MessageEvent, Event: "stopped"}
	second := m.DebugMessage{Type: m.MessageResponse, Command: "threads"}

	dispatcher.Dispatch(first)
	dispatcher.Dispatch(second)

	require.Equal(t, []m.DebugMessage{first, second}, watcher.messages)
}

func TestSessionSet(t *testing.T) {
	set := newSessionSet()
	one, two := newFakeSession("1"), newFakeSession("2")

	set.add(one)
	set.add(two)
	set.add(one)
	require.Equal(t, 2, set.len())

	set.remove(one)
	require.Equal(t, []DebugSession{two}, set.list())
}
