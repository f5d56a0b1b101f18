package observe

import (
	"fmt"
	"sync"

	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Web-vital and task metric names recognized by the Vitals watcher.
const (
	MetricLCP         = "largest-contentful-paint"
	MetricFID         = "first-input-delay"
	MetricCLS         = "cumulative-layout-shift"
	MetricLongTask    = "long-task"
	MetricLayoutShift = "layout-shift"
)

// VitalsConfig holds the thresholds above which a measurement becomes a
// synthetic error event.
type VitalsConfig struct {
	LCPMs            float64
	FIDMs            float64
	CLS              float64
	LongTaskMs       float64
	LayoutShiftScore float64
}

// Vitals watches web-vital measurements, long tasks, and layout shifts.
type Vitals struct {
	cfg  VitalsConfig
	sink Sink

	mu         sync.Mutex
	shiftScore float64 // cumulative since last report
}

// NewVitals creates the watcher.
func NewVitals(cfg VitalsConfig, sink Sink) *Vitals {
	return &Vitals{cfg: cfg, sink: sink}
}

// Observe inspects one measurement and emits a synthetic event when it
// crosses its threshold. Unknown metric names are ignored.
func (v *Vitals) Observe(m event.Metric) {
	switch m.Name {
	case MetricLCP:
		v.vital(m, v.cfg.LCPMs, "ms")
	case MetricFID:
		v.vital(m, v.cfg.FIDMs, "ms")
	case MetricCLS:
		v.vital(m, v.cfg.CLS, "")
	case MetricLongTask:
		if v.cfg.LongTaskMs > 0 && m.Value > v.cfg.LongTaskMs {
			v.sink.Track(tracker.Report{
				Severity:  event.SevMedium,
				Category:  event.CatPerformance,
				Component: "long-task-observer",
				Message:   fmt.Sprintf("long task: %.0fms", m.Value),
				Context:   m.Context,
			})
		}
	case MetricLayoutShift:
		v.layoutShift(m)
	}
}

// vital reports a web-vital measurement exceeding its threshold.
func (v *Vitals) vital(m event.Metric, threshold float64, unit string) {
	if threshold <= 0 || m.Value <= threshold {
		return
	}
	ctx := map[string]any{"value": m.Value, "threshold": threshold}
	for k, val := range m.Context {
		ctx[k] = val
	}
	v.sink.Track(tracker.Report{
		Severity:  event.SevMedium,
		Category:  event.CatPerformance,
		Component: "web-vitals",
		Message:   fmt.Sprintf("%s %.2f%s over threshold %.2f%s", m.Name, m.Value, unit, threshold, unit),
		Context:   ctx,
	})
}

// layoutShift accumulates shift scores and reports once the cumulative
// score crosses the threshold, then starts a new accumulation window.
func (v *Vitals) layoutShift(m event.Metric) {
	if v.cfg.LayoutShiftScore <= 0 {
		return
	}
	v.mu.Lock()
	v.shiftScore += m.Value
	score := v.shiftScore
	crossed := score > v.cfg.LayoutShiftScore
	if crossed {
		v.shiftScore = 0
	}
	v.mu.Unlock()

	if crossed {
		v.sink.Track(tracker.Report{
			Severity:  event.SevLow,
			Category:  event.CatUIComponent,
			Component: "layout-observer",
			Message:   fmt.Sprintf("cumulative layout shift %.3f over %.3f", score, v.cfg.LayoutShiftScore),
		})
	}
}
