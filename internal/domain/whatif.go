package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// DefaultSandboxTimeout bounds a scenario run when no timeout is configured.
const DefaultSandboxTimeout = 10 * time.Second

// ScenarioRunner executes documents in a sandbox against mock inputs.
type ScenarioRunner interface {
	// Run stores a new scenario for inputs and executes doc against it. Any
	// failure inside the sandbox is reported as ErrExecutionFailed.
	Run(ctx context.Context, doc m.Document, inputs map[string]any) (m.WhatIfResult, error)
	// SetBaseline designates the result of scenario resultID as baseline baselineID.
	SetBaseline(resultID, baselineID string) error
	// LoadBaseline registers a result produced elsewhere, such as a stored
	// report, as baseline baselineID.
	LoadBaseline(baselineID string, result m.WhatIfResult)
	// CompareWithBaseline returns result with its comparison against baselineID filled in.
	CompareWithBaseline(result m.WhatIfResult, baselineID string) (m.WhatIfResult, error)
	Baseline(baselineID string) (m.WhatIfResult, bool)
	Scenarios() []m.WhatIfScenario
	Results() []m.WhatIfResult
	Result(scenarioID string) (m.WhatIfResult, bool)
	ClearAll()
}

// ParseMockInputs decodes raw as a JSON object of mock inputs.
func ParseMockInputs(raw string) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMockInput, err)
	}

	inputs, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidMockInput, decoded)
	}

	return inputs, nil
}

type scenarioRunner struct {
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	order     []string
	scenarios map[string]m.WhatIfScenario
	results   map[string]m.WhatIfResult
	baselines map[string]m.WhatIfResult
	counter   int
}

// NewScenarioRunner constructs a ScenarioRunner. Each run is interrupted after
// timeout; a non-positive timeout uses DefaultSandboxTimeout.
func NewScenarioRunner(timeout time.Duration, opts ...Option) ScenarioRunner {
	o := buildOptions(opts)

	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}

	return &scenarioRunner{
		timeout:   timeout,
		logger:    o.logger,
		now:       o.now,
		scenarios: make(map[string]m.WhatIfScenario),
		results:   make(map[string]m.WhatIfResult),
		baselines: make(map[string]m.WhatIfResult),
	}
}

func (sr *scenarioRunner) Run(ctx context.Context, doc m.Document, inputs map[string]any) (m.WhatIfResult, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}

	scenario := sr.newScenario(inputs)
	sr.logger.Debug("running what-if scenario", "scenario", scenario.ID, "path", doc.Path)

	start := time.Now()
	box, err := sr.execute(ctx, doc, inputs)
	elapsed := time.Since(start)

	scenarioDuration.Observe(elapsed.Seconds())

	if err != nil {
		outcome := "failure"
		if errors.Is(err, ErrSandboxTimeout) {
			outcome = "timeout"
		}

		scenarioRunsTotal.WithLabelValues(outcome).Inc()

		return m.WhatIfResult{}, fmt.Errorf("%w: scenario %s: %w", ErrExecutionFailed, scenario.ID, err)
	}

	scenarioRunsTotal.WithLabelValues("success").Inc()

	result := m.WhatIfResult{
		Scenario:       scenario,
		ExecutionPaths: box.paths,
		SideEffects:    box.effects,
		PerformanceMetrics: m.PerformanceMetrics{
			TotalExecutionTime: elapsed,
			FunctionCallCount:  len(box.paths),
		},
		CodeCoverage: codeCoverage(box.paths, doc),
	}

	sr.mu.Lock()
	sr.results[scenario.ID] = result
	sr.mu.Unlock()

	return result, nil
}

func (sr *scenarioRunner) newScenario(inputs map[string]any) m.WhatIfScenario {
	encoded, err := json.Marshal(inputs)
	if err != nil {
		encoded = []byte(fmt.Sprint(inputs))
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	scenario := m.WhatIfScenario{
		ID:          "scenario_" + strconv.Itoa(sr.counter),
		Description: "What-if analysis with inputs: " + string(encoded),
		MockInputs:  inputs,
		Timestamp:   sr.now(),
	}
	sr.counter++

	sr.scenarios[scenario.ID] = scenario
	sr.order = append(sr.order, scenario.ID)

	return scenario
}

func (sr *scenarioRunner) execute(ctx context.Context, doc m.Document, inputs map[string]any) (*sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	box, err := newSandbox(inputs, sr.now)
	if err != nil {
		return nil, err
	}

	timer := time.AfterFunc(sr.timeout, func() { box.vm.Interrupt(ErrSandboxTimeout) })
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() { box.vm.Interrupt(ctx.Err()) })
	defer stop()

	source := InstrumenterFor(doc.Language).Instrument(doc.Text)

	if _, err := box.vm.RunString(source); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}

		return nil, err
	}

	return box, nil
}

// codeCoverage counts the distinct lines referenced by recorded conditions.
func codeCoverage(paths []m.ExecutionPath, doc m.Document) m.CodeCoverage {
	lines := map[int]bool{}
	cov := m.CodeCoverage{LinesExecuted: []int{}, BranchesTaken: []string{}}

	for _, path := range paths {
		for _, cond := range path.ConditionsEvaluated {
			if !lines[cond.Location.Line] {
				lines[cond.Location.Line] = true
				cov.LinesExecuted = append(cov.LinesExecuted, cond.Location.Line)
			}

			cov.BranchesTaken = append(cov.BranchesTaken, fmt.Sprintf("%s:%t", cond.Condition, cond.Result))
		}
	}

	slices.Sort(cov.LinesExecuted)

	if total := doc.LineCount(); total > 0 {
		cov.CoveragePercentage = float64(len(cov.LinesExecuted)) / float64(total) * 100
	}

	return cov
}

func (sr *scenarioRunner) SetBaseline(resultID, baselineID string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	result, ok := sr.results[resultID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResultNotFound, resultID)
	}

	sr.baselines[baselineID] = result
	sr.logger.Debug("baseline set", "baseline", baselineID, "scenario", resultID)

	return nil
}

func (sr *scenarioRunner) LoadBaseline(baselineID string, result m.WhatIfResult) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.baselines[baselineID] = result
}

func (sr *scenarioRunner) Baseline(baselineID string) (m.WhatIfResult, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	baseline, ok := sr.baselines[baselineID]

	return baseline, ok
}

func (sr *scenarioRunner) CompareWithBaseline(result m.WhatIfResult, baselineID string) (m.WhatIfResult, error) {
	baseline, ok := sr.Baseline(baselineID)
	if !ok {
		return result, fmt.Errorf("%w: baseline %s", ErrResultNotFound, baselineID)
	}

	result.ComparisonWithBaseline = compareResults(result, baseline)

	return result, nil
}

// compareResults diffs current against baseline: the execution time delta, side
// effect descriptions missing from the baseline, and new path signatures.
func compareResults(current, baseline m.WhatIfResult) *m.BaselineComparison {
	known := make(map[string]bool, len(baseline.SideEffects))
	for _, effect := range baseline.SideEffects {
		known[effect.Description] = true
	}

	differences := []m.OutputDifference{}

	for _, effect := range current.SideEffects {
		if !known[effect.Description] {
			differences = append(differences, m.OutputDifference{Type: "new_side_effect", Description: effect.Description})
		}
	}

	basePaths := make(map[string]bool, len(baseline.ExecutionPaths))
	for _, path := range baseline.ExecutionPaths {
		basePaths[path.Signature()] = true
	}

	newPaths := []string{}

	for _, path := range current.ExecutionPaths {
		sig := path.Signature()
		if !basePaths[sig] {
			basePaths[sig] = true
			newPaths = append(newPaths, sig)
		}
	}

	return &m.BaselineComparison{
		PerformanceDelta:   current.PerformanceMetrics.TotalExecutionTime - baseline.PerformanceMetrics.TotalExecutionTime,
		OutputDifferences:  differences,
		NewPathsDiscovered: newPaths,
	}
}

func (sr *scenarioRunner) Scenarios() []m.WhatIfScenario {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	out := make([]m.WhatIfScenario, 0, len(sr.order))
	for _, id := range sr.order {
		out = append(out, sr.scenarios[id])
	}

	return out
}

func (sr *scenarioRunner) Results() []m.WhatIfResult {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	out := make([]m.WhatIfResult, 0, len(sr.results))

	for _, id := range sr.order {
		if result, ok := sr.results[id]; ok {
			out = append(out, result)
		}
	}

	return out
}

func (sr *scenarioRunner) Result(scenarioID string) (m.WhatIfResult, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	result, ok := sr.results[scenarioID]

	return result, ok
}

func (sr *scenarioRunner) ClearAll() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.order = nil
	sr.scenarios = make(map[string]m.WhatIfScenario)
	sr.results = make(map[string]m.WhatIfResult)
	sr.baselines = make(map[string]m.WhatIfResult)
	sr.counter = 0
}

// sandbox is one goja runtime with mocked I/O. Captured paths and effects
// live on the Go side.
type sandbox struct {
	vm      *goja.Runtime
	now     func() time.Time
	paths   []m.ExecutionPath
	effects []m.SandboxEffect
}

func newSandbox(inputs map[string]any, now func() time.Time) (*sandbox, error) {
	box := &sandbox{vm: goja.New(), now: now}

	for name, value := range inputs {
		if err := box.vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to bind input %q: %w", name, err)
		}
	}

	console := box.vm.NewObject()
	for _, method := range []string{"log", "error", "warn", "info"} {
		if err := console.Set(method, box.consoleMethod(method)); err != nil {
			return nil, fmt.Errorf("failed to mock console.%s: %w", method, err)
		}
	}

	fs := box.vm.NewObject()
	if err := fs.Set("readFileSync", box.readFile); err != nil {
		return nil, fmt.Errorf("failed to mock fs: %w", err)
	}

	if err := fs.Set("writeFileSync", box.writeFile); err != nil {
		return nil, fmt.Errorf("failed to mock fs: %w", err)
	}

	globals := map[string]any{
		"console":         console,
		"fs":              fs,
		"require":         box.require(fs),
		"__trackFunction": box.track,
	}

	for name, value := range globals {
		if err := box.vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to install %s: %w", name, err)
		}
	}

	return box, nil
}

func (s *sandbox) record(kind m.SideEffectKind, description string) {
	s.effects = append(s.effects, m.SandboxEffect{Type: kind, Description: description, Timestamp: s.now()})
}

func (s *sandbox) consoleMethod(method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}

		s.record(m.EffectConsole, "console."+method+": "+strings.Join(parts, " "))

		return goja.Undefined()
	}
}

func (s *sandbox) readFile(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	s.record(m.EffectFile, "File read: "+path)

	return s.vm.ToValue("mocked content for " + path)
}

func (s *sandbox) writeFile(call goja.FunctionCall) goja.Value {
	s.record(m.EffectFile, "File write: "+call.Argument(0).String())

	return goja.Undefined()
}

func (s *sandbox) require(fs *goja.Object) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if name == "fs" {
			return fs
		}

		panic(s.vm.NewGoError(fmt.Errorf("module %q is not available in the sandbox", name)))
	}
}

func (s *sandbox) track(call goja.FunctionCall) goja.Value {
	params, _ := exportValue(call.Argument(1)).([]any)
	if params == nil {
		params = []any{}
	}

	s.paths = append(s.paths, m.ExecutionPath{
		ID:                  "path_" + strconv.Itoa(len(s.paths)),
		FunctionName:        call.Argument(0).String(),
		Parameters:          params,
		ReturnValue:         exportValue(call.Argument(2)),
		ExecutionTime:       time.Duration(call.Argument(3).ToInteger()) * time.Millisecond,
		BranchTaken:         "main",
		ConditionsEvaluated: []m.ConditionEvaluation{},
	})

	return goja.Undefined()
}

// exportValue converts a sandbox value to plain Go data. Functions, at any
// depth inside arrays and plain objects, are kept as their source text and
// cycles become "[Circular]".
func exportValue(v goja.Value) any {
	return exportNested(v, make(map[*goja.Object]struct{}))
}

func exportNested(v goja.Value, seen map[*goja.Object]struct{}) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	if _, ok := goja.AssertFunction(v); ok {
		return v.String()
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}

	class := obj.ClassName()
	if class != "Array" && class != "Object" {
		return v.Export()
	}

	if _, cyclic := seen[obj]; cyclic {
		return "[Circular]"
	}

	seen[obj] = struct{}{}
	defer delete(seen, obj)

	if class == "Array" {
		length := int(obj.Get("length").ToInteger())
		items := make([]any, 0, length)

		for i := 0; i < length; i++ {
			items = append(items, exportNested(obj.Get(strconv.Itoa(i)), seen))
		}

		return items
	}

	fields := make(map[string]any)
	for _, key := range obj.Keys() {
		fields[key] = exportNested(obj.Get(key), seen)
	}

	return fields
}

// sandboxReady runs a trivial script in a throwaway runtime.
func sandboxReady() error {
	_, err := goja.New().RunString("1 + 1")

	return err
}
