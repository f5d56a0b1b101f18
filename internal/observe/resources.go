package observe

import (
	"fmt"
	"time"

	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// ResourceEntry describes one completed resource load.
type ResourceEntry struct {
	Name     string
	Type     string // "script", "img", "fetch", ...
	Duration time.Duration
}

// Resources surfaces slow resource loads as synthetic events.
type Resources struct {
	slow time.Duration
	sink Sink
}

// NewResources creates the watcher. Loads at or under slow pass silently.
func NewResources(slow time.Duration, sink Sink) *Resources {
	return &Resources{slow: slow, sink: sink}
}

// Observe reports a resource load exceeding the slow threshold.
func (r *Resources) Observe(entry ResourceEntry) {
	if r.slow <= 0 || entry.Duration <= r.slow {
		return
	}
	r.sink.Track(tracker.Report{
		Severity:  event.SevMedium,
		Category:  event.CatPerformance,
		Component: "resource-observer",
		Message:   fmt.Sprintf("slow resource load: %s (%dms)", entry.Name, entry.Duration.Milliseconds()),
		Context: map[string]any{
			"resource": entry.Name,
			"type":     entry.Type,
			"duration": entry.Duration.Milliseconds(),
		},
	})
}
