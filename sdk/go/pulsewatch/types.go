package pulsewatch

import (
	"context"
	"time"

	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/observe"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Severity levels accepted in Report. Empty means "infer from text".
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert types delivered to OnAlert subscribers.
const (
	AlertCritical = tracker.AlertCritical
	AlertHighRate = tracker.AlertHighRate
	AlertRepeated = tracker.AlertRepeated
)

// Report is one failure handed to Track. Severity and Category may be
// left empty to be inferred from the message, stack, and error text.
type Report struct {
	Severity  string
	Category  string
	Component string
	Message   string
	Stack     string
	Err       error
	Context   map[string]any
}

// Alert is raised synchronously when an alert condition is met.
type Alert struct {
	Type      string
	Severity  string
	Category  string
	Component string
	Message   string
	Count     int
	EventID   string
	Timestamp time.Time
}

// Cache is the host application's cache. When injected, every operation
// is timed and instrumented, and degraded cache behavior triggers
// corrective optimization.
type Cache interface {
	Get(ctx context.Context, key string) (value any, ok bool, err error)
	Set(ctx context.Context, key string, value any) error
	Optimize(ctx context.Context) error
	ClearByPattern(ctx context.Context, pattern string) (removed int, err error)
}

// Violation is one accessibility finding.
type Violation struct {
	ID          string
	Impact      string // "critical", "serious", "moderate", "minor"
	Description string
	Nodes       int
	Help        string
	HelpURL     string
}

// Validator checks the host UI for accessibility violations.
type Validator interface {
	Scan(ctx context.Context) ([]Violation, error)
}

func toInternalReport(r Report) tracker.Report {
	return tracker.Report{
		Severity:  event.Severity(r.Severity),
		Category:  event.Category(r.Category),
		Component: r.Component,
		Message:   r.Message,
		Stack:     r.Stack,
		Err:       r.Err,
		Context:   r.Context,
	}
}

func fromInternalAlert(a tracker.Alert) Alert {
	return Alert{
		Type:      a.Type,
		Severity:  string(a.Severity),
		Category:  string(a.Category),
		Component: a.Component,
		Message:   a.Message,
		Count:     a.Count,
		EventID:   a.EventID,
		Timestamp: a.Timestamp,
	}
}

// validatorAdapter bridges the public Validator to the internal watcher.
type validatorAdapter struct {
	v Validator
}

func (a validatorAdapter) Scan(ctx context.Context) ([]observe.Violation, error) {
	violations, err := a.v.Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]observe.Violation, len(violations))
	for n, v := range violations {
		out[n] = observe.Violation{
			ID:          v.ID,
			Impact:      v.Impact,
			Description: v.Description,
			Nodes:       v.Nodes,
			Help:        v.Help,
			HelpURL:     v.HelpURL,
		}
	}
	return out, nil
}
