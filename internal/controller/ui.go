// Package controller provides the presentation sinks that display tracker output.
package controller

import (
	m "github.com/mouse-blink/storyteller/internal/model"
)

// Commands of the visualization protocol. Every update is sent to the web
// sink as {"command": <name>, "data": <payload>}.
const (
	CommandUpdateCallGraph       = "updateCallGraph"
	CommandUpdateWhatIfAnalysis  = "updateWhatIfAnalysis"
	CommandUpdateSideEffects     = "updateSideEffects"
	CommandUpdateVariableHistory = "updateVariableHistory"
	CommandDebugSessionStart     = "debugSessionStart"
	CommandDebugSessionEnd       = "debugSessionEnd"
	CommandSelfTest              = "selfTest"
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	title string
}

// WithTitle sets the heading shown when the UI starts.
func WithTitle(title string) StartOption {
	return func(c *StartConfig) {
		c.title = title
	}
}

func buildStartConfig(options []StartOption) StartConfig {
	cfg := StartConfig{title: "storyteller"}
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// UI displays tracker output. Implementations can use different output
// methods (tables, styled terminal output, websocket).
type UI interface {
	Start(options ...StartOption) error
	Close()
	UpdateCallGraph(graph m.CallGraph) error
	UpdateWhatIfAnalysis(result m.WhatIfResult) error
	UpdateSideEffects(summary m.SideEffectSummary) error
	UpdateVariableHistory(history m.VariableHistory) error
	DebugSessionStarted(info m.SessionInfo)
	DebugSessionEnded(info m.SessionInfo)
	DisplaySelfTest(statuses []m.SubsystemStatus) error
	DisplayReports(reports []m.Report) error
	DisplaySessions(records []m.SessionRecord) error
}
