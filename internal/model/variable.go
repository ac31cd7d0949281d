package model

import "time"

// Scope tags attached to variable states.
const (
	ScopeStaticAnalysis = "static-analysis"
	ScopeDebugSession   = "debug-session"
)

// UnknownValue is the placeholder for values and types that static scanning cannot know.
const UnknownValue = "unknown"

// VariableState is one observation of a tracked variable.
type VariableState struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Location  Position  `json:"location"`
	Scope     string    `json:"scope"`
}

// HistoryMetadata describes the lifetime of a VariableHistory.
type HistoryMetadata struct {
	FirstSeen   time.Time `json:"firstSeen"`
	LastUpdated time.Time `json:"lastUpdated"`
	UpdateCount int       `json:"updateCount"`
}

// VariableHistory is the ordered, bounded list of states for one variable.
type VariableHistory struct {
	Variable string          `json:"variable"`
	States   []VariableState `json:"states"`
	Metadata HistoryMetadata `json:"metadata"`
}
