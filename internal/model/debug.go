package model

import (
	"encoding/json"
	"time"
)

// Debug Adapter Protocol message types.
const (
	MessageEvent    = "event"
	MessageResponse = "response"
	MessageRequest  = "request"
)

// DebugMessage is the envelope of one Debug Adapter Protocol message. Body is
// kept raw and decoded by whichever tracker recognizes the message. On
// responses, Arguments echoes the arguments of the originating request when
// the transport knows them.
type DebugMessage struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Event      string          `json:"event,omitempty"`
	Command    string          `json:"command,omitempty"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// IsEvent reports whether the message is the named event.
func (m DebugMessage) IsEvent(name string) bool {
	return m.Type == MessageEvent && m.Event == name
}

// IsResponse reports whether the message is a response to the named command.
func (m DebugMessage) IsResponse(command string) bool {
	return m.Type == MessageResponse && m.Command == command
}

// SessionInfo identifies a debug session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"startedAt"`
}

// SessionSnapshot is the archived state of all trackers at the end of a session.
type SessionSnapshot struct {
	Session     SessionInfo                `json:"session"`
	EndedAt     time.Time                  `json:"endedAt"`
	CallGraph   CallGraph                  `json:"callGraph"`
	SideEffects SideEffectSummary          `json:"sideEffects"`
	Variables   map[string]VariableHistory `json:"variables"`
}

// SessionRecord is one row of the session archive.
type SessionRecord struct {
	ID           string
	Name         string
	StartedAt    time.Time
	EndedAt      time.Time
	TotalCalls   int
	TotalEffects int
}

// SubsystemStatus is one line of the self-test report.
type SubsystemStatus struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}
