package domain

import (
	"cmp"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// SideEffectModel classifies observed and inferred side effects.
type SideEffectModel interface {
	DebugTracker

	StartMonitoring()
	StopMonitoring()
	Monitoring() bool

	// RecordSideEffect stamps an id and the current time and stores the
	// effect. An empty impact defaults to medium.
	RecordSideEffect(kind m.SideEffectKind, description string, location *m.Position, metadata m.SideEffectMetadata) m.SideEffect
	RecordStateChange(variable string, oldValue, newValue any, location m.Position, cause string) m.StateChange
	// AnalyzeSource records one speculative effect per pattern match in doc,
	// except where a storyteller:ignore comment suppresses it.
	AnalyzeSource(doc m.Document) []m.SideEffect

	All() []m.SideEffect
	ByType(kind m.SideEffectKind) []m.SideEffect
	HighImpact() []m.SideEffect
	ByImpact(level m.ImpactLevel) []m.SideEffect
	// InTimeRange returns effects with start <= timestamp <= end.
	InTimeRange(start, end time.Time) []m.SideEffect
	StateChanges() []m.StateChange
	Summary() m.SideEffectSummary
	ClearAll()
}

type effectPattern struct {
	kind    m.SideEffectKind
	pattern *regexp.Regexp
}

var effectPatterns = []effectPattern{
	{m.EffectConsole, regexp.MustCompile(`console\.(log|error|warn|info)\s*\(`)},
	{m.EffectFile, regexp.MustCompile(`(fs\.|readFile|writeFile|appendFile)\s*\(`)},
	{m.EffectNetwork, regexp.MustCompile(`(fetch|axios|request|http\.|https\.)\s*\(`)},
	{m.EffectDatabase, regexp.MustCompile(`(query|execute|insert|update|delete|select)\s*\(`)},
	{m.EffectProcess, regexp.MustCompile(`(process\.|exit|spawn|exec)\s*\(`)},
}

var enclosingFunctionPattern = regexp.MustCompile(`function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)|([a-zA-Z_$][a-zA-Z0-9_$]*)\s*=`)

// impactOf is the fixed impact table for speculative effects.
func impactOf(kind m.SideEffectKind) m.ImpactLevel {
	switch kind {
	case m.EffectDatabase, m.EffectFile:
		return m.ImpactHigh
	case m.EffectNetwork, m.EffectProcess:
		return m.ImpactMedium
	case m.EffectConsole, m.EffectMemory:
		return m.ImpactLow
	default:
		return m.ImpactMedium
	}
}

type sideEffectModel struct {
	maxRetained int
	sessions    *sessionSet
	logger      *slog.Logger
	now         func() time.Time

	mu            sync.Mutex
	monitoring    bool
	effects       []m.SideEffect
	changes       []m.StateChange
	effectCounter int
	changeCounter int
}

// NewSideEffectModel constructs a SideEffectModel. maxRetained bounds the
// number of stored effects, oldest evicted first; zero keeps everything.
func NewSideEffectModel(maxRetained int, opts ...Option) SideEffectModel {
	o := buildOptions(opts)

	return &sideEffectModel{
		maxRetained: maxRetained,
		sessions:    newSessionSet(),
		logger:      o.logger,
		now:         o.now,
		monitoring:  true,
	}
}

func (se *sideEffectModel) Name() string {
	return "sideeffects"
}

func (se *sideEffectModel) StartMonitoring() {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.monitoring = true
}

func (se *sideEffectModel) StopMonitoring() {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.monitoring = false
}

func (se *sideEffectModel) Monitoring() bool {
	se.mu.Lock()
	defer se.mu.Unlock()

	return se.monitoring
}

func (se *sideEffectModel) RecordSideEffect(kind m.SideEffectKind, description string, location *m.Position,
	metadata m.SideEffectMetadata,
) m.SideEffect {
	se.mu.Lock()
	defer se.mu.Unlock()

	return se.recordLocked(kind, description, location, metadata)
}

func (se *sideEffectModel) recordLocked(kind m.SideEffectKind, description string, location *m.Position,
	metadata m.SideEffectMetadata,
) m.SideEffect {
	if metadata.Impact == "" {
		metadata.Impact = m.ImpactMedium
	}

	effect := m.SideEffect{
		ID:          "effect_" + strconv.Itoa(se.effectCounter),
		Type:        kind,
		Description: description,
		Timestamp:   se.now(),
		Location:    location,
		Metadata:    metadata,
	}
	se.effectCounter++

	se.effects = append(se.effects, effect)
	if se.maxRetained > 0 && len(se.effects) > se.maxRetained {
		se.effects = slices.Clone(se.effects[len(se.effects)-se.maxRetained:])
	}

	sideEffectsTotal.WithLabelValues(string(kind)).Inc()
	se.logger.Debug("side effect recorded", "id", effect.ID, "type", kind, "impact", metadata.Impact)

	return effect
}

func (se *sideEffectModel) RecordStateChange(variable string, oldValue, newValue any, location m.Position,
	cause string,
) m.StateChange {
	se.mu.Lock()
	defer se.mu.Unlock()

	change := m.StateChange{
		ID:        "change_" + strconv.Itoa(se.changeCounter),
		Variable:  variable,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: se.now(),
		Location:  location,
		Cause:     cause,
	}
	se.changeCounter++
	se.changes = append(se.changes, change)

	se.logger.Debug("state change recorded", "variable", variable, "cause", cause)

	return change
}

func (se *sideEffectModel) AnalyzeSource(doc m.Document) []m.SideEffect {
	se.mu.Lock()
	defer se.mu.Unlock()

	var found []m.SideEffect

	ignored := buildIgnoreIndex(doc)

	for i, line := range doc.Lines() {
		for _, family := range effectPatterns {
			if ignored.ignores(i, family.kind) {
				continue
			}

			for _, loc := range family.pattern.FindAllStringIndex(line, -1) {
				pos := m.NewPosition(i, loc[0])
				effect := se.recordLocked(family.kind,
					fmt.Sprintf("Potential %s side effect: %s", family.kind, line[loc[0]:loc[1]]),
					&pos,
					m.SideEffectMetadata{
						Impact:       impactOf(family.kind),
						FunctionName: enclosingFunction(line[:loc[0]]),
					})
				found = append(found, effect)
			}
		}
	}

	return found
}

// enclosingFunction guesses the function a match belongs to from the text
// preceding it on the same line.
func enclosingFunction(before string) string {
	match := enclosingFunctionPattern.FindStringSubmatch(before)
	if match == nil {
		return ""
	}

	if match[1] != "" {
		return match[1]
	}

	return match[2]
}

func (se *sideEffectModel) All() []m.SideEffect {
	return se.filter(func(m.SideEffect) bool { return true })
}

func (se *sideEffectModel) ByType(kind m.SideEffectKind) []m.SideEffect {
	return se.filter(func(e m.SideEffect) bool { return e.Type == kind })
}

func (se *sideEffectModel) HighImpact() []m.SideEffect {
	return se.filter(func(e m.SideEffect) bool { return e.Metadata.Impact.IsHigh() })
}

func (se *sideEffectModel) ByImpact(level m.ImpactLevel) []m.SideEffect {
	return se.filter(func(e m.SideEffect) bool { return e.Metadata.Impact == level })
}

func (se *sideEffectModel) InTimeRange(start, end time.Time) []m.SideEffect {
	return se.filter(func(e m.SideEffect) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(end)
	})
}

func (se *sideEffectModel) filter(keep func(m.SideEffect) bool) []m.SideEffect {
	se.mu.Lock()
	defer se.mu.Unlock()

	out := []m.SideEffect{}

	for _, effect := range se.effects {
		if keep(effect) {
			out = append(out, effect)
		}
	}

	return out
}

func (se *sideEffectModel) StateChanges() []m.StateChange {
	se.mu.Lock()
	defer se.mu.Unlock()

	return append([]m.StateChange{}, se.changes...)
}

// Summary groups effects by type and into one-second timeline buckets keyed
// by floor(unix ms / 1000) * 1000, ascending.
func (se *sideEffectModel) Summary() m.SideEffectSummary {
	effects := se.All()

	byType := make(map[m.SideEffectKind]int)
	buckets := make(map[int64][]m.SideEffect)

	for _, effect := range effects {
		byType[effect.Type]++

		slot := floorDiv(effect.Timestamp.UnixMilli(), 1000) * 1000
		buckets[slot] = append(buckets[slot], effect)
	}

	timeline := make([]m.TimelineBucket, 0, len(buckets))
	for slot, grouped := range buckets {
		timeline = append(timeline, m.TimelineBucket{Timestamp: slot, Effects: grouped})
	}

	slices.SortFunc(timeline, func(a, b m.TimelineBucket) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	return m.SideEffectSummary{
		TotalEffects:      len(effects),
		EffectsByType:     byType,
		HighImpactEffects: se.HighImpact(),
		Timeline:          timeline,
		StateChanges:      se.StateChanges(),
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}

	return q
}

func (se *sideEffectModel) ClearAll() {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.effects = nil
	se.changes = nil
	se.effectCounter = 0
	se.changeCounter = 0
}

func (se *sideEffectModel) AttachSession(session DebugSession) {
	se.sessions.add(session)
	se.logger.Debug("side effect tracker attached", "session", session.Info().Name)
}

func (se *sideEffectModel) DetachSession(session DebugSession) {
	se.sessions.remove(session)
	se.logger.Debug("side effect tracker detached", "session", session.Info().Name)
}

func (se *sideEffectModel) HandleDebugMessage(msg m.DebugMessage) {
	if !se.Monitoring() {
		return
	}

	var err error

	switch {
	case msg.IsEvent("output"):
		err = se.onOutput(msg)
	case msg.IsEvent("breakpoint"):
		err = se.onBreakpoint(msg)
	case msg.IsEvent("exited"):
		err = se.onExited(msg)
	case msg.IsResponse("setVariable"):
		err = se.onSetVariable(msg)
	case msg.IsResponse("evaluate"):
		err = se.onEvaluate(msg)
	}

	if err != nil {
		se.logger.Warn("malformed debug message", "event", msg.Event, "command", msg.Command, "error", err)
	}
}

func (se *sideEffectModel) onOutput(msg m.DebugMessage) error {
	var body dap.OutputEventBody
	if err := decodeBody(msg.Body, &body); err != nil {
		return err
	}

	if body.Output == "" {
		return nil
	}

	impact := m.ImpactLow
	if body.Category == "stderr" {
		impact = m.ImpactHigh
	}

	se.RecordSideEffect(m.EffectConsole, "Console output: "+strings.TrimSpace(body.Output), nil,
		m.SideEffectMetadata{Impact: impact, Parameters: []any{body.Output}})

	return nil
}

func (se *sideEffectModel) onBreakpoint(msg m.DebugMessage) error {
	var body dap.BreakpointEventBody
	if err := decodeBody(msg.Body, &body); err != nil {
		return err
	}

	bp := body.Breakpoint
	path, source := "unknown", ""

	if bp.Source != nil {
		source = bp.Source.Name
		if bp.Source.Path != "" {
			path = bp.Source.Path
		}
	}

	pos := m.NewPosition(max(bp.Line-1, 0), max(bp.Column, 0))
	se.RecordSideEffect(m.EffectProcess, fmt.Sprintf("Breakpoint hit at %s:%d", path, bp.Line), &pos,
		m.SideEffectMetadata{Impact: m.ImpactLow, FunctionName: source})

	return nil
}

func (se *sideEffectModel) onExited(msg m.DebugMessage) error {
	var body dap.ExitedEventBody
	if err := decodeBody(msg.Body, &body); err != nil {
		return err
	}

	impact := m.ImpactLow
	if body.ExitCode != 0 {
		impact = m.ImpactHigh
	}

	se.RecordSideEffect(m.EffectProcess, fmt.Sprintf("Process exited with code: %d", body.ExitCode), nil,
		m.SideEffectMetadata{Impact: impact, Parameters: []any{body.ExitCode}})

	return nil
}

func (se *sideEffectModel) onSetVariable(msg m.DebugMessage) error {
	var body dap.SetVariableResponseBody
	if err := decodeBody(msg.Body, &body); err != nil {
		return err
	}

	var args dap.SetVariableArguments
	if err := decodeBody(msg.Arguments, &args); err != nil {
		return err
	}

	name := args.Name
	if name == "" {
		name = m.UnknownValue
	}

	se.RecordSideEffect(m.EffectMemory, fmt.Sprintf("Variable modified: %s = %s", name, body.Value), nil,
		m.SideEffectMetadata{Impact: m.ImpactMedium, AfterState: body.Value})

	return nil
}

func (se *sideEffectModel) onEvaluate(msg m.DebugMessage) error {
	var body dap.EvaluateResponseBody
	if err := decodeBody(msg.Body, &body); err != nil {
		return err
	}

	if body.Result == "" {
		return nil
	}

	var args dap.EvaluateArguments
	if err := decodeBody(msg.Arguments, &args); err != nil {
		return err
	}

	expression := args.Expression
	if expression == "" {
		expression = m.UnknownValue
	}

	se.RecordSideEffect(m.EffectMemory, fmt.Sprintf("Expression evaluated: %s = %s", expression, body.Result), nil,
		m.SideEffectMetadata{Impact: m.ImpactLow, Parameters: []any{expression, body.Result}})

	return nil
}
