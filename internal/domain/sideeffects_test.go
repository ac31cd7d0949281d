package domain

import (
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/storyteller/internal/model"
)

func TestSideEffectModel_RecordSideEffect(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(5_000))
	model := NewSideEffectModel(0, WithClock(clock.Now))

	first := model.RecordSideEffect(m.EffectNetwork, "GET /", nil, m.SideEffectMetadata{})
	second := model.RecordSideEffect(m.EffectFile, "write", nil, m.SideEffectMetadata{Impact: m.ImpactCritical})

	require.Equal(t, "effect_0", first.ID)
	require.Equal(t, "effect_1", second.ID)
	require.Equal(t, m.ImpactMedium, first.Metadata.Impact)
	require.True(t, first.Timestamp.Equal(time.UnixMilli(5_000)))

	require.Len(t, model.All(), 2)
	require.Equal(t, []m.SideEffect{second}, model.HighImpact())
	require.Equal(t, []m.SideEffect{first}, model.ByType(m.EffectNetwork))
	require.Equal(t, []m.SideEffect{second}, model.ByImpact(m.ImpactCritical))
}

func TestSideEffectModel_ClearAllResetsCounters(t *testing.T) {
	model := NewSideEffectModel(0)

	model.RecordSideEffect(m.EffectConsole, "one", nil, m.SideEffectMetadata{})
	model.RecordStateChange("x", 1, 2, m.NewPosition(0, 0), "assignment")
	model.ClearAll()

	require.Empty(t, model.All())
	require.Empty(t, model.StateChanges())
	require.Equal(t, "effect_0", model.RecordSideEffect(m.EffectConsole, "two", nil, m.SideEffectMetadata{}).ID)
	require.Equal(t, "change_0", model.RecordStateChange("x", 2, 3, m.NewPosition(1, 0), "assignment").ID)
}

func TestSideEffectModel_SummaryTimeline(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(1_000))
	model := NewSideEffectModel(0, WithClock(clock.Now))

	model.RecordSideEffect(m.EffectConsole, "a", nil, m.SideEffectMetadata{Impact: m.ImpactLow})
	clock.Set(time.UnixMilli(2_000))
	model.RecordSideEffect(m.EffectFile, "c", nil, m.SideEffectMetadata{Impact: m.ImpactHigh})
	clock.Set(time.UnixMilli(1_999))
	model.RecordSideEffect(m.EffectConsole, "b", nil, m.SideEffectMetadata{Impact: m.ImpactLow})
	model.RecordStateChange("x", nil, 1, m.NewPosition(0, 0), "init")

	summary := model.Summary()

	require.Equal(t, 3, summary.TotalEffects)
	require.Equal(t, map[m.SideEffectKind]int{m.EffectConsole: 2, m.EffectFile: 1}, summary.EffectsByType)
	require.Len(t, summary.HighImpactEffects, 1)
	require.Len(t, summary.StateChanges, 1)

	require.Len(t, summary.Timeline, 2)
	require.Equal(t, int64(1_000), summary.Timeline[0].Timestamp)
	require.Len(t, summary.Timeline[0].Effects, 2)
	require.Equal(t, int64(2_000), summary.Timeline[1].Timestamp)
	require.Len(t, summary.Timeline[1].Effects, 1)
	require.Equal(t, "c", summary.Timeline[1].Effects[0].Description)
}

func TestSideEffectModel_InTimeRangeIsInclusive(t *testing.T) {
	clock := newFakeClock(time.UnixMilli(1_000))
	model := NewSideEffectModel(0, WithClock(clock.Now))

	for _, ms := range []int64{1_000, 1_500, 2_000, 2_500} {
		clock.Set(time.UnixMilli(ms))
		model.RecordSideEffect(m.EffectIO, "tick", nil, m.SideEffectMetadata{})
	}

	got := model.InTimeRange(time.UnixMilli(1_500), time.UnixMilli(2_000))
	require.Len(t, got, 2)
	require.Equal(t, "effect_1", got[0].ID)
	require.Equal(t, "effect_2", got[1].ID)
}

func TestSideEffectModel_Retention(t *testing.T) {
	model := NewSideEffectModel(2)

	for i := 0; i < 3; i++ {
		model.RecordSideEffect(m.EffectIO, "io", nil, m.SideEffectMetadata{})
	}

	all := model.All()
	require.Len(t, all, 2)
	require.Equal(t, "effect_1", all[0].ID)
	require.Equal(t, "effect_2", all[1].ID)
}

func TestSideEffectModel_AnalyzeSource(t *testing.T) {
	model := NewSideEffectModel(0)
	doc := jsDoc(`function save(){ fs.writeFile(path); console.log("x"); }`)

	found := model.AnalyzeSource(doc)

	require.Len(t, found, 2)

	require.Equal(t, m.EffectConsole, found[0].Type)
	require.Equal(t, "Potential console side effect: console.log(", found[0].Description)
	require.Equal(t, m.ImpactLow, found[0].Metadata.Impact)
	require.Equal(t, "save", found[0].Metadata.FunctionName)

	require.Equal(t, m.EffectFile, found[1].Type)
	require.Equal(t, "Potential file side effect: writeFile(", found[1].Description)
	require.Equal(t, m.ImpactHigh, found[1].Metadata.Impact)
	require.Equal(t, &m.Position{Line: 0, Column: 20}, found[1].Location)

	require.Equal(t, found, model.All())
}

func TestSideEffectModel_AnalyzeSourceImpactTable(t *testing.T) {
	tests := []struct {
		line   string
		kind   m.SideEffectKind
		impact m.ImpactLevel
	}{
		{line: `db.query("select 1")`, kind: m.EffectDatabase, impact: m.ImpactHigh},
		{line: `fetch(url)`, kind: m.EffectNetwork, impact: m.ImpactMedium},
		{line: `spawn(cmd)`, kind: m.EffectProcess, impact: m.ImpactMedium},
		{line: `readFile(p)`, kind: m.EffectFile, impact: m.ImpactHigh},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			found := NewSideEffectModel(0).AnalyzeSource(jsDoc(tt.line))

			require.Len(t, found, 1)
			require.Equal(t, tt.kind, found[0].Type)
			require.Equal(t, tt.impact, found[0].Metadata.Impact)
		})
	}
}

func TestSideEffectModel_DebugRules(t *testing.T) {
	tests := []struct {
		name        string
		msg         func(t *testing.T) m.DebugMessage
		kind        m.SideEffectKind
		impact      m.ImpactLevel
		description string
	}{
		{
			name: "stdout output",
			msg: func(t *testing.T) m.DebugMessage {
				return eventMessage(t, "output", dap.OutputEventBody{Category: "stdout", Output: "hello\n"})
			},
			kind:        m.EffectConsole,
			impact:      m.ImpactLow,
			description: "Console output: hello",
		},
		{
			name: "stderr output",
			msg: func(t *testing.T) m.DebugMessage {
				return eventMessage(t, "output", dap.OutputEventBody{Category: "stderr", Output: "boom"})
			},
			kind:        m.EffectConsole,
			impact:      m.ImpactHigh,
			description: "Console output: boom",
		},
		{
			name: "breakpoint",
			msg: func(t *testing.T) m.DebugMessage {
				return eventMessage(t, "breakpoint", dap.BreakpointEventBody{
					Reason:     "changed",
					Breakpoint: dap.Breakpoint{Line: 12, Source: &dap.Source{Path: "/src/app.js", Name: "app.js"}},
				})
			},
			kind:        m.EffectProcess,
			impact:      m.ImpactLow,
			description: "Breakpoint hit at /src/app.js:12",
		},
		{
			name: "clean exit",
			msg: func(t *testing.T) m.DebugMessage {
				return eventMessage(t, "exited", dap.ExitedEventBody{ExitCode: 0})
			},
			kind:        m.EffectProcess,
			impact:      m.ImpactLow,
			description: "Process exited with code: 0",
		},
		{
			name: "failed exit",
			msg: func(t *testing.T) m.DebugMessage {
				return eventMessage(t, "exited", dap.ExitedEventBody{ExitCode: 2})
			},
			kind:        m.EffectProcess,
			impact:      m.ImpactHigh,
			description: "Process exited with code: 2",
		},
		{
			name: "setVariable",
			msg: func(t *testing.T) m.DebugMessage {
				return responseMessage(t, "setVariable",
					dap.SetVariableArguments{VariablesReference: 1, Name: "x", Value: "5"},
					dap.SetVariableResponseBody{Value: "5", Type: "int"})
			},
			kind:        m.EffectMemory,
			impact:      m.ImpactMedium,
			description: "Variable modified: x = 5",
		},
		{
			name: "evaluate",
			msg: func(t *testing.T) m.DebugMessage {
				return responseMessage(t, "evaluate",
					dap.EvaluateArguments{Expression: "a + b"},
					dap.EvaluateResponseBody{Result: "3"})
			},
			kind:        m.EffectMemory,
			impact:      m.ImpactLow,
			description: "Expression evaluated: a + b = 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewSideEffectModel(0)

			model.HandleDebugMessage(tt.msg(t))

			all := model.All()
			require.Len(t, all, 1)
			require.Equal(t, tt.kind, all[0].Type)
			require.Equal(t, tt.impact, all[0].Metadata.Impact)
			require.Equal(t, tt.description, all[0].Description)
		})
	}
}

func TestSideEffectModel_BreakpointLocation(t *testing.T) {
	model := NewSideEffectModel(0)

	model.HandleDebugMessage(eventMessage(t, "breakpoint", dap.BreakpointEventBody{
		Breakpoint: dap.Breakpoint{Line: 3, Column: 4},
	}))

	effect := model.All()[0]
	require.Equal(t, "Breakpoint hit at unknown:3", effect.Description)
	require.Equal(t, &m.Position{Line: 2, Column: 4}, effect.Location)
}

func TestSideEffectModel_MonitoringToggle(t *testing.T) {
	model := NewSideEffectModel(0)
	output := eventMessage(t, "output", dap.OutputEventBody{Output: "hi"})

	model.StopMonitoring()
	require.False(t, model.Monitoring())
	model.HandleDebugMessage(output)
	require.Empty(t, model.All())

	model.StartMonitoring()
	model.HandleDebugMessage(output)
	require.Len(t, model.All(), 1)
}

func TestSideEffectModel_IgnoresEmptyPayloads(t *testing.T) {
	model := NewSideEffectModel(0)

	model.HandleDebugMessage(eventMessage(t, "output", dap.OutputEventBody{Category: "stdout"}))
	model.HandleDebugMessage(responseMessage(t, "evaluate", nil, dap.EvaluateResponseBody{}))
	model.HandleDebugMessage(eventMessage(t, "stopped", dap.StoppedEventBody{}))

	require.Empty(t, model.All())
}
