package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// requestTimeout bounds each request issued by a background refresh.
const requestTimeout = 5 * time.Second

// DebugSession is an attached debug adapter. Request sends a command and
// returns the response body; the response is also delivered to every tracker
// through the dispatcher like any other message.
type DebugSession interface {
	Info() m.SessionInfo
	Request(ctx context.Context, command string, args any) (json.RawMessage, error)
}

// DebugTracker consumes debug adapter messages.
type DebugTracker interface {
	Name() string
	AttachSession(session DebugSession)
	DetachSession(session DebugSession)
	HandleDebugMessage(msg m.DebugMessage)
}

// SessionObserver is notified when debug sessions start and end.
type SessionObserver interface {
	DebugSessionStarted(info m.SessionInfo)
	DebugSessionEnded(info m.SessionInfo)
}

// MessageObserver is a SessionObserver that also sees every dispatched
// message, after the trackers have handled it.
type MessageObserver interface {
	SessionObserver
	DebugMessageReceived(msg m.DebugMessage)
}

// Dispatcher fans debug messages and session lifecycle out to trackers.
type Dispatcher interface {
	Attach(session DebugSession)
	Detach(session DebugSession)
	Dispatch(msg m.DebugMessage)
	Observe(observer SessionObserver)
}

type dispatcher struct {
	trackers []DebugTracker
	logger   *slog.Logger

	mu        sync.Mutex
	observers []SessionObserver
}

// NewDispatcher builds a Dispatcher delivering to trackers in order.
func NewDispatcher(logger *slog.Logger, trackers ...DebugTracker) Dispatcher {
	return &dispatcher{
		trackers: trackers,
		logger:   logger,
	}
}

func (d *dispatcher) Observe(observer SessionObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
}

func (d *dispatcher) Attach(session DebugSession) {
	for _, tracker := range d.trackers {
		tracker.AttachSession(session)
	}

	info := session.Info()
	d.logger.Info("debug session attached", "session", info.ID, "name", info.Name)

	for _, observer := range d.snapshotObservers() {
		observer.DebugSessionStarted(info)
	}
}

func (d *dispatcher) Detach(session DebugSession) {
	for _, tracker := range d.trackers {
		tracker.DetachSession(session)
	}

	info := session.Info()
	d.logger.Info("debug session detached", "session", info.ID, "name", info.Name)

	for _, observer := range d.snapshotObservers() {
		observer.DebugSessionEnded(info)
	}
}

// Dispatch delivers msg to every tracker. A tracker that panics is logged and
// skipped; the remaining trackers still see the message.
func (d *dispatcher) Dispatch(msg m.DebugMessage) {
	for _, tracker := range d.trackers {
		if err := d.deliver(tracker, msg); err != nil {
			debugMessagesTotal.WithLabelValues(tracker.Name(), "panic").Inc()
			d.logger.Error("debug tracker failed", "tracker", tracker.Name(), "type", msg.Type,
				"event", msg.Event, "command", msg.Command, "error", err)

			continue
		}

		debugMessagesTotal.WithLabelValues(tracker.Name(), "ok").Inc()
	}

	for _, observer := range d.snapshotObservers() {
		if mo, ok := observer.(MessageObserver); ok {
			mo.DebugMessageReceived(msg)
		}
	}
}

func (d *dispatcher) deliver(tracker DebugTracker, msg m.DebugMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", tracker.Name(), r)
		}
	}()

	tracker.HandleDebugMessage(msg)

	return nil
}

func (d *dispatcher) snapshotObservers() []SessionObserver {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]SessionObserver(nil), d.observers...)
}

// sessionSet is the set of sessions a tracker is attached to.
type sessionSet struct {
	mu       sync.Mutex
	sessions map[string]DebugSession
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[string]DebugSession)}
}

func (s *sessionSet) add(session DebugSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Info().ID] = session
}

func (s *sessionSet) remove(session DebugSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, session.Info().ID)
}

func (s *sessionSet) list() []DebugSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DebugSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}

	return out
}

func (s *sessionSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// request issues command on session and decodes the response body into T.
func request[T any](ctx context.Context, session DebugSession, command string, args any) (T, error) {
	var body T

	raw, err := session.Request(ctx, command, args)
	if err != nil {
		return body, fmt.Errorf("%s request failed: %w", command, err)
	}

	if len(raw) == 0 {
		return body, nil
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("failed to decode %s response: %w", command, err)
	}

	return body, nil
}

// decodeBody decodes a message body, treating an absent body as empty.
func decodeBody(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, v)
}
