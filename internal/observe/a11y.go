package observe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/classify"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Violation is one finding from the accessibility validator.
type Violation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"` // "critical", "serious", "moderate", "minor"
	Description string `json:"description"`
	Nodes       int    `json:"nodes"`
	Help        string `json:"help"`
	HelpURL     string `json:"helpUrl"`
}

// Validator is the injected accessibility checker.
type Validator interface {
	Scan(ctx context.Context) ([]Violation, error)
}

// AccessibilityConfig holds the scan cadence.
type AccessibilityConfig struct {
	Interval time.Duration // fixed re-scan interval
	Debounce time.Duration // delay after Notify before re-scanning
}

// Accessibility runs the validator on a fixed interval and, debounced,
// after content mutations signalled via Notify.
type Accessibility struct {
	cfg       AccessibilityConfig
	validator Validator
	sink      Sink
	log       *zap.Logger

	mu       sync.Mutex
	debounce *time.Timer
	onReport func(count int) // optional: session counters
}

// NewAccessibility creates the watcher. Validator must be non-nil.
func NewAccessibility(cfg AccessibilityConfig, validator Validator, sink Sink, log *zap.Logger) *Accessibility {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessibility{cfg: cfg, validator: validator, sink: sink, log: log}
}

// SetReportHook installs a callback receiving the violation count of
// each completed scan.
func (a *Accessibility) SetReportHook(fn func(count int)) {
	a.mu.Lock()
	a.onReport = fn
	a.mu.Unlock()
}

// Run scans on the configured interval until ctx is cancelled.
func (a *Accessibility) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			if a.debounce != nil {
				a.debounce.Stop()
			}
			a.mu.Unlock()
			return nil
		case <-ticker.C:
			a.ScanNow(ctx)
		}
	}
}

// Notify signals a content mutation. The re-scan is debounced so bursts
// of mutations produce one scan.
func (a *Accessibility) Notify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.debounce != nil {
		a.debounce.Stop()
	}
	a.debounce = time.AfterFunc(a.cfg.Debounce, func() {
		a.ScanNow(context.Background())
	})
}

// ScanNow runs one scan and reports every violation. Validator failures
// are logged, never propagated.
func (a *Accessibility) ScanNow(ctx context.Context) {
	violations, err := a.validator.Scan(ctx)
	if err != nil {
		a.log.Warn("accessibility scan failed", zap.Error(err))
		return
	}

	for _, v := range violations {
		sev, cat := classify.Impact(v.Impact)
		a.sink.Track(tracker.Report{
			Severity:  sev,
			Category:  cat,
			Component: "a11y-checker",
			Message:   v.Description,
			Context: map[string]any{
				"rule":     v.ID,
				"impact":   v.Impact,
				"nodes":    v.Nodes,
				"help":     v.Help,
				"help_url": v.HelpURL,
			},
		})
	}

	a.mu.Lock()
	hook := a.onReport
	a.mu.Unlock()
	if hook != nil {
		hook(len(violations))
	}
}
