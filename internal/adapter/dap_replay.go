package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mouse-blink/storyteller/internal/domain"
	m "github.com/mouse-blink/storyteller/internal/model"
)

const maxReplayLine = 16 * 1024 * 1024

// ReplaySession feeds a recorded message log through the dispatcher as if a
// live adapter had sent it. Each line of the log is one DebugMessage in JSON.
type ReplaySession struct {
	info       m.SessionInfo
	source     io.Reader
	dispatcher domain.Dispatcher
	logger     *slog.Logger
}

// NewReplaySession builds a session reading messages from source.
func NewReplaySession(name string, source io.Reader, dispatcher domain.Dispatcher, logger *slog.Logger) *ReplaySession {
	return &ReplaySession{
		info: m.SessionInfo{
			ID:        uuid.NewString(),
			Name:      name,
			StartedAt: time.Now(),
		},
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (r *ReplaySession) Info() m.SessionInfo {
	return r.info
}

// Request always fails: a recording cannot answer new questions.
func (r *ReplaySession) Request(_ context.Context, command string, _ any) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: %s during replay", domain.ErrRequestUnsupported, command)
}

// Run dispatches every message in the log and returns the number replayed.
// Blank lines are skipped; a malformed line stops the replay.
func (r *ReplaySession) Run(ctx context.Context) (int, error) {
	r.dispatcher.Attach(r)
	defer r.dispatcher.Detach(r)

	scanner := bufio.NewScanner(r.source)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

	count := 0
	line := 0

	for scanner.Scan() {
		line++

		if err := ctx.Err(); err != nil {
			return count, err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var msg m.DebugMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return count, fmt.Errorf("replay line %d: %w", line, err)
		}

		r.dispatcher.Dispatch(msg)
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read replay log: %w", err)
	}

	r.logger.Debug("replay finished", "session", r.info.ID, "messages", count)

	return count, nil
}
