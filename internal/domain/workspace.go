package domain

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mouse-blink/storyteller/internal/config"
	m "github.com/mouse-blink/storyteller/internal/model"
)

// Workspace owns every tracker for one storyteller invocation.
type Workspace struct {
	Config      *config.Config
	Logger      *slog.Logger
	Extractor   Extractor
	CallGraph   CallGraphModel
	Variables   VariableHistoryModel
	SideEffects SideEffectModel
	Scenarios   ScenarioRunner
	Dispatcher  Dispatcher
}

// NewWorkspace wires the trackers described by cfg. Extra options apply to
// every tracker after the logger.
func NewWorkspace(cfg *config.Config, logger *slog.Logger, opts ...Option) *Workspace {
	opts = append([]Option{WithLogger(logger)}, opts...)

	var extractor Extractor
	if cfg.Extractor == "syntax" {
		extractor = NewSyntaxExtractor(logger)
	} else {
		extractor = NewLexicalExtractor()
	}

	ws := &Workspace{
		Config:      cfg,
		Logger:      logger,
		Extractor:   extractor,
		CallGraph:   NewCallGraphModel(extractor, opts...),
		Variables:   NewVariableHistoryModel(cfg.Variables.MaxHistory, opts...),
		SideEffects: NewSideEffectModel(cfg.SideEffects.MaxRetained, opts...),
		Scenarios:   NewScenarioRunner(cfg.Sandbox.Timeout, opts...),
	}
	ws.Dispatcher = NewDispatcher(logger, ws.CallGraph, ws.Variables, ws.SideEffects)

	return ws
}

// ClearAll resets every tracker and the scenario runner.
func (ws *Workspace) ClearAll() {
	ws.CallGraph.ClearAll()
	ws.Variables.ClearAll()
	ws.SideEffects.ClearAll()
	ws.Scenarios.ClearAll()
}

// Snapshot captures the live trackers for archiving at the end of a session.
func (ws *Workspace) Snapshot(info m.SessionInfo, endedAt time.Time) m.SessionSnapshot {
	return m.SessionSnapshot{
		Session:     info,
		EndedAt:     endedAt,
		CallGraph:   ws.CallGraph.Current(),
		SideEffects: ws.SideEffects.Summary(),
		Variables:   ws.Variables.All(),
	}
}

// SelfTest reports which subsystems are usable.
func (ws *Workspace) SelfTest() []m.SubsystemStatus {
	sample := m.Document{Path: "selftest.js", Language: m.LanguageJavaScript, Text: "function sample() { sample(); }"}

	extractorStatus := m.SubsystemStatus{Name: "extractor", Detail: ws.Config.Extractor}
	if len(ws.Extractor.Functions(sample)) == 1 && len(ws.Extractor.Calls(sample)) == 1 {
		extractorStatus.Ready = true
	}

	sandboxStatus := m.SubsystemStatus{Name: "sandbox", Ready: true, Detail: "goja, timeout " + ws.Config.Sandbox.Timeout.String()}
	if err := sandboxReady(); err != nil {
		sandboxStatus.Ready = false
		sandboxStatus.Detail = err.Error()
	}

	monitoring := "paused"
	if ws.SideEffects.Monitoring() {
		monitoring = "monitoring"
	}

	return []m.SubsystemStatus{
		extractorStatus,
		{Name: "callgraph", Ready: ws.CallGraph != nil, Detail: fmt.Sprintf("%d live calls", len(ws.CallGraph.Current().AllCalls))},
		{Name: "variables", Ready: ws.Variables != nil, Detail: fmt.Sprintf("%d tracked", len(ws.Variables.All()))},
		{Name: "sideeffects", Ready: ws.SideEffects != nil, Detail: monitoring},
		sandboxStatus,
		{Name: "dispatcher", Ready: ws.Dispatcher != nil},
	}
}
