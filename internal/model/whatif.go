package model

import "time"

// WhatIfScenario is an immutable bundle of mock inputs for one sandboxed run.
type WhatIfScenario struct {
	ID              string         `json:"id" yaml:"id"`
	Description     string         `json:"description" yaml:"description"`
	MockInputs      map[string]any `json:"mockInputs" yaml:"mockInputs"`
	ExpectedOutputs map[string]any `json:"expectedOutputs,omitempty" yaml:"expectedOutputs,omitempty"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
}

// ConditionEvaluation is one branch condition observed during a run.
type ConditionEvaluation struct {
	Condition string   `json:"condition" yaml:"condition"`
	Result    bool     `json:"result" yaml:"result"`
	Location  Position `json:"location" yaml:"location"`
}

// ExecutionPath is one tracked function return inside the sandbox.
type ExecutionPath struct {
	ID                  string                `json:"id" yaml:"id"`
	FunctionName        string                `json:"functionName" yaml:"functionName"`
	Parameters          []any                 `json:"parameters" yaml:"parameters"`
	ReturnValue         any                   `json:"returnValue" yaml:"returnValue"`
	ExecutionTime       time.Duration         `json:"executionTime" yaml:"executionTime"`
	BranchTaken         string                `json:"branchTaken" yaml:"branchTaken"`
	ConditionsEvaluated []ConditionEvaluation `json:"conditionsEvaluated" yaml:"conditionsEvaluated"`
}

// Signature identifies the path for baseline comparison.
func (p ExecutionPath) Signature() string {
	return p.FunctionName + ":" + p.BranchTaken
}

// SandboxEffect is an I/O call intercepted by the sandbox mocks.
type SandboxEffect struct {
	Type        SideEffectKind `json:"type" yaml:"type"`
	Description string         `json:"description" yaml:"description"`
	Timestamp   time.Time      `json:"timestamp" yaml:"timestamp"`
}

// PerformanceMetrics describes the cost of one run. MemoryUsage is not measured.
type PerformanceMetrics struct {
	TotalExecutionTime time.Duration `json:"totalExecutionTime" yaml:"totalExecutionTime"`
	MemoryUsage        int64         `json:"memoryUsage" yaml:"memoryUsage"`
	FunctionCallCount  int           `json:"functionCallCount" yaml:"functionCallCount"`
}

// CodeCoverage is derived from recorded branch conditions.
type CodeCoverage struct {
	LinesExecuted      []int    `json:"linesExecuted" yaml:"linesExecuted"`
	BranchesTaken      []string `json:"branchesTaken" yaml:"branchesTaken"`
	CoveragePercentage float64  `json:"coveragePercentage" yaml:"coveragePercentage"`
}

// OutputDifference is one observable difference from a baseline run.
type OutputDifference struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// BaselineComparison is the delta between a result and a designated baseline.
type BaselineComparison struct {
	PerformanceDelta   time.Duration      `json:"performanceDelta" yaml:"performanceDelta"`
	OutputDifferences  []OutputDifference `json:"outputDifferences" yaml:"outputDifferences"`
	NewPathsDiscovered []string           `json:"newPathsDiscovered" yaml:"newPathsDiscovered"`
}

// WhatIfResult binds a scenario to everything captured while running it.
type WhatIfResult struct {
	Scenario               WhatIfScenario      `json:"scenario" yaml:"scenario"`
	ExecutionPaths         []ExecutionPath     `json:"executionPaths" yaml:"executionPaths"`
	SideEffects            []SandboxEffect     `json:"sideEffects" yaml:"sideEffects"`
	PerformanceMetrics     PerformanceMetrics  `json:"performanceMetrics" yaml:"performanceMetrics"`
	CodeCoverage           CodeCoverage        `json:"codeCoverage" yaml:"codeCoverage"`
	ComparisonWithBaseline *BaselineComparison `json:"comparisonWithBaseline,omitempty" yaml:"comparisonWithBaseline,omitempty"`
}
