package domain

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/mouse-blink/storyteller/internal/history"
	m "github.com/mouse-blink/storyteller/internal/model"
)

// VariableHistoryModel keeps a bounded history per tracked variable name.
type VariableHistoryModel interface {
	DebugTracker
	// StartTracking creates the history if needed and appends one
	// static-analysis state per whole-word occurrence of name in doc.
	StartTracking(name string, doc m.Document) error
	// StopTracking discards the history of name.
	StopTracking(name string)
	History(name string) (m.VariableHistory, bool)
	// All returns copies of every tracked history.
	All() map[string]m.VariableHistory
	ClearAll()
}

type trackedVariable struct {
	states   *history.Ring[m.VariableState]
	metadata m.HistoryMetadata
}

type variableHistoryModel struct {
	maxHistory int
	sessions   *sessionSet
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	tracked map[string]*trackedVariable
}

// NewVariableHistoryModel constructs a VariableHistoryModel keeping at most
// maxHistory states per variable.
func NewVariableHistoryModel(maxHistory int, opts ...Option) VariableHistoryModel {
	o := buildOptions(opts)

	if maxHistory <= 0 {
		maxHistory = history.DefaultCapacity
	}

	return &variableHistoryModel{
		maxHistory: maxHistory,
		sessions:   newSessionSet(),
		logger:     o.logger,
		now:        o.now,
		tracked:    make(map[string]*trackedVariable),
	}
}

func (vh *variableHistoryModel) Name() string {
	return "variables"
}

func (vh *variableHistoryModel) StartTracking(name string, doc m.Document) error {
	if name == "" {
		return errors.New("variable name is empty")
	}

	vh.mu.Lock()
	defer vh.mu.Unlock()

	if _, ok := vh.tracked[name]; !ok {
		now := vh.now()
		vh.tracked[name] = &trackedVariable{
			states:   history.NewRing[m.VariableState](vh.maxHistory),
			metadata: m.HistoryMetadata{FirstSeen: now, LastUpdated: now},
		}
	}

	occurrence := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)

	for i, line := range doc.Lines() {
		for _, loc := range occurrence.FindAllStringIndex(line, -1) {
			vh.appendLocked(name, m.VariableState{
				Name:     name,
				Value:    m.UnknownValue,
				Type:     m.UnknownValue,
				Location: m.NewPosition(i, loc[0]),
				Scope:    m.ScopeStaticAnalysis,
			})
		}
	}

	vh.logger.Debug("tracking variable", "variable", name, "states", vh.tracked[name].states.Len())

	return nil
}

func (vh *variableHistoryModel) StopTracking(name string) {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	delete(vh.tracked, name)
	vh.logger.Debug("stopped tracking variable", "variable", name)
}

func (vh *variableHistoryModel) History(name string) (m.VariableHistory, bool) {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	tracked, ok := vh.tracked[name]
	if !ok {
		return m.VariableHistory{}, false
	}

	return snapshotHistory(name, tracked), true
}

func (vh *variableHistoryModel) All() map[string]m.VariableHistory {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	out := make(map[string]m.VariableHistory, len(vh.tracked))
	for name, tracked := range vh.tracked {
		out[name] = snapshotHistory(name, tracked)
	}

	return out
}

func snapshotHistory(name string, tracked *trackedVariable) m.VariableHistory {
	return m.VariableHistory{
		Variable: name,
		States:   tracked.states.Slice(),
		Metadata: tracked.metadata,
	}
}

func (vh *variableHistoryModel) ClearAll() {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	vh.tracked = make(map[string]*trackedVariable)
}

// appendLocked stamps state and pushes it, evicting the oldest entry at capacity.
func (vh *variableHistoryModel) appendLocked(name string, state m.VariableState) {
	tracked, ok := vh.tracked[name]
	if !ok {
		return
	}

	state.Timestamp = vh.now()
	tracked.states.Push(state)
	tracked.metadata.LastUpdated = state.Timestamp
	tracked.metadata.UpdateCount++
}

func (vh *variableHistoryModel) AttachSession(session DebugSession) {
	vh.sessions.add(session)
	vh.logger.Debug("variable tracker attached", "session", session.Info().Name)
}

func (vh *variableHistoryModel) DetachSession(session DebugSession) {
	vh.sessions.remove(session)
	vh.logger.Debug("variable tracker detached", "session", session.Info().Name)
}

func (vh *variableHistoryModel) HandleDebugMessage(msg m.DebugMessage) {
	switch {
	case msg.IsResponse("variables"):
		var body dap.VariablesResponseBody
		if err := decodeBody(msg.Body, &body); err != nil {
			vh.logger.Warn("malformed variables response", "error", err)

			return
		}

		vh.processVariables(body.Variables)
	case msg.IsEvent("stopped"):
		var body dap.StoppedEventBody
		if err := decodeBody(msg.Body, &body); err != nil {
			vh.logger.Warn("malformed stopped event", "error", err)

			return
		}

		threadID := body.ThreadId
		if threadID == 0 {
			threadID = 1
		}

		for _, session := range vh.sessions.list() {
			go vh.refresh(session, threadID)
		}
	}
}

func (vh *variableHistoryModel) processVariables(variables []dap.Variable) {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	for _, v := range variables {
		if _, ok := vh.tracked[v.Name]; !ok {
			continue
		}

		typ := v.Type
		if typ == "" {
			typ = m.UnknownValue
		}

		vh.appendLocked(v.Name, m.VariableState{
			Name:  v.Name,
			Value: v.Value,
			Type:  typ,
			Scope: m.ScopeDebugSession,
		})
	}
}

// refresh pulls the variables of the top frame. The values arrive as
// variables responses through the dispatcher; failures are logged only.
func (vh *variableHistoryModel) refresh(session DebugSession, threadID int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	trace, err := request[dap.StackTraceResponseBody](ctx, session, "stackTrace",
		dap.StackTraceArguments{ThreadId: threadID})
	if err != nil {
		vh.logger.Warn("variable refresh failed", "session", session.Info().Name, "error", err)

		return
	}

	if len(trace.StackFrames) == 0 {
		return
	}

	scopes, err := request[dap.ScopesResponseBody](ctx, session, "scopes",
		dap.ScopesArguments{FrameId: trace.StackFrames[0].Id})
	if err != nil {
		vh.logger.Warn("variable refresh failed", "session", session.Info().Name, "error", err)

		return
	}

	for _, scope := range scopes.Scopes {
		args := dap.VariablesArguments{VariablesReference: scope.VariablesReference}
		if _, err := session.Request(ctx, "variables", args); err != nil {
			vh.logger.Warn("variable refresh failed", "session", session.Info().Name,
				"scope", scope.Name, "error", err)

			return
		}
	}
}
