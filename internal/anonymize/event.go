package anonymize

import "github.com/ppiankov/pulsewatch/internal/event"

// Event redacts the free-text fields of an error event in place.
// Severity, category, id, and timestamps are never touched: redaction
// must not change how an event is classified or aggregated.
func (a *Anonymizer) Event(ev *event.Event) {
	if !a.Enabled() || ev == nil {
		return
	}
	ev.Message = a.Message(ev.Message)
	ev.Stack = a.Message(ev.Stack)
	ev.Context = a.Context(ev.Context)
}
