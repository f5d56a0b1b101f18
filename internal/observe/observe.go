// Package observe holds the passive watchers that convert performance,
// memory, and accessibility signals into synthetic error events.
// Watchers never propagate failures into the host: anything they cannot
// handle is logged and dropped.
package observe

import (
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Sink receives the synthetic events watchers produce. Implemented by
// tracker.Tracker.
type Sink interface {
	Track(r tracker.Report) string
}
