package event

import "time"

// Severity is the ordered importance of a captured failure.
type Severity string

const (
	SevInfo     Severity = "info"
	SevLow      Severity = "low"
	SevMedium   Severity = "medium"
	SevHigh     Severity = "high"
	SevCritical Severity = "critical"
)

// SevRank orders severities for monotonic escalation.
var SevRank = map[Severity]int{
	SevInfo:     0,
	SevLow:      1,
	SevMedium:   2,
	SevHigh:     3,
	SevCritical: 4,
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if SevRank[b] > SevRank[a] {
		return b
	}
	return a
}

// Category classifies where a failure originated. Closed enumeration.
type Category string

const (
	CatUIComponent     Category = "ui_component"
	CatAPI             Category = "api"
	CatAuthentication  Category = "authentication"
	CatSecurity        Category = "security"
	CatPerformance     Category = "performance"
	CatVisualization   Category = "data_visualization"
	CatMapRendering    Category = "map_rendering"
	CatStrategist      Category = "strategist"
	CatSSEStreaming    Category = "sse_streaming"
	CatCache           Category = "cache"
	CatElectoralData   Category = "electoral_data"
	CatRouting         Category = "routing"
	CatStateManagement Category = "state_management"
	CatMemoryLeak      Category = "memory_leak"
	CatAccessibility   Category = "accessibility"
	CatUnknown         Category = "unknown"
)

// Event is one classified, enriched failure occurrence.
// Immutable after enrichment, except for anonymization redaction.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Category  Category       `json:"category"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Metric is a single performance measurement emitted by an observer.
type Metric struct {
	Name      string         `json:"name"`
	Value     float64        `json:"value"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// CacheOp records one instrumented cache operation.
type CacheOp struct {
	Operation string        `json:"operation"` // "get" or "set"
	Key       string        `json:"key"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Correlation links a performance anomaly to temporally-nearby errors.
// Purely observational; never mutated after creation.
type Correlation struct {
	ID        string    `json:"correlation_id"`
	Metric    Metric    `json:"metric"`
	ErrorIDs  []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern aggregates repeated failures sharing category, component, and
// message prefix. Count never decreases; Severity never decreases.
type Pattern struct {
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Severity  Severity  `json:"severity"`
}
