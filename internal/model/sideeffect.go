package model

import "time"

// SideEffectKind is the category of a side effect.
type SideEffectKind string

const (
	EffectIO       SideEffectKind = "io"
	EffectNetwork  SideEffectKind = "network"
	EffectDatabase SideEffectKind = "database"
	EffectFile     SideEffectKind = "file"
	EffectConsole  SideEffectKind = "console"
	EffectMemory   SideEffectKind = "memory"
	EffectProcess  SideEffectKind = "process"
)

// ImpactLevel is a coarse severity tag.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// IsHigh reports whether the level is high or critical.
func (l ImpactLevel) IsHigh() bool {
	return l == ImpactHigh || l == ImpactCritical
}

// SideEffectMetadata carries optional context for a SideEffect.
type SideEffectMetadata struct {
	FunctionName string      `json:"functionName,omitempty"`
	Parameters   []any       `json:"parameters,omitempty"`
	BeforeState  any         `json:"beforeState,omitempty"`
	AfterState   any         `json:"afterState,omitempty"`
	Impact       ImpactLevel `json:"impact"`
}

// SideEffect is an observed or inferred operation with an effect outside pure computation.
type SideEffect struct {
	ID          string             `json:"id"`
	Type        SideEffectKind     `json:"type"`
	Description string             `json:"description"`
	Timestamp   time.Time          `json:"timestamp"`
	Location    *Position          `json:"location,omitempty"`
	Metadata    SideEffectMetadata `json:"metadata"`
}

// StateChange records a variable mutation.
type StateChange struct {
	ID        string    `json:"id"`
	Variable  string    `json:"variable"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
	Location  Position  `json:"location"`
	Cause     string    `json:"cause"`
}

// TimelineBucket groups effects recorded in the same second. Timestamp is
// the bucket start in unix milliseconds.
type TimelineBucket struct {
	Timestamp int64        `json:"timestamp"`
	Effects   []SideEffect `json:"effects"`
}

// SideEffectSummary aggregates everything a SideEffectModel has recorded.
type SideEffectSummary struct {
	TotalEffects      int                    `json:"totalEffects"`
	EffectsByType     map[SideEffectKind]int `json:"effectsByType"`
	HighImpactEffects []SideEffect           `json:"highImpactEffects"`
	Timeline          []TimelineBucket       `json:"timeline"`
	StateChanges      []StateChange          `json:"stateChanges"`
}
