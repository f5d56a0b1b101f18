// Package pattern maintains per-signature aggregates used for
// repeated-failure detection.
package pattern

import (
	"fmt"
	"sync"

	"github.com/ppiankov/pulsewatch/internal/event"
)

// keyPrefixLen bounds the message portion of a pattern key so that
// messages with variable suffixes (IDs, timestamps) still aggregate.
const keyPrefixLen = 50

// Key derives the pattern signature for a failure.
func Key(category event.Category, component, message string) string {
	if len(message) > keyPrefixLen {
		message = message[:keyPrefixLen]
	}
	return fmt.Sprintf("%s:%s:%s", category, component, message)
}

// Tracker accumulates failure patterns. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	patterns map[string]*event.Pattern
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{patterns: make(map[string]*event.Pattern)}
}

// Update records one occurrence for the event's signature and returns the
// updated aggregate. Count only ever increments; severity only ever
// escalates under the severity order.
func (t *Tracker) Update(ev *event.Event) event.Pattern {
	key := Key(ev.Category, ev.Component, ev.Message)

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.patterns[key]
	if !ok {
		p = &event.Pattern{
			Count:     0,
			FirstSeen: ev.Timestamp,
			Severity:  ev.Severity,
		}
		t.patterns[key] = p
	}
	p.Count++
	p.LastSeen = ev.Timestamp
	p.Severity = event.MaxSeverity(p.Severity, ev.Severity)
	return *p
}

// Count returns the current count for a pattern key, zero if unseen.
func (t *Tracker) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.patterns[key]; ok {
		return p.Count
	}
	return 0
}

// Snapshot returns a copy of all patterns keyed by signature.
func (t *Tracker) Snapshot() map[string]event.Pattern {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]event.Pattern, len(t.patterns))
	for k, p := range t.patterns {
		out[k] = *p
	}
	return out
}

// Keys returns all pattern signatures seen so far.
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.patterns))
	for k := range t.patterns {
		keys = append(keys, k)
	}
	return keys
}
