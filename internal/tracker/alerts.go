package tracker

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/event"
)

// Alert types raised by the tracker.
const (
	AlertCritical = "critical_error"
	AlertHighRate = "high_error_rate"
	AlertRepeated = "repeated_error"
)

// Alert is raised synchronously to subscribers when an alert condition
// is met. Decoupled from delivery: UI code may surface banners without
// waiting for the backend.
type Alert struct {
	Type      string
	Severity  event.Severity
	Category  event.Category
	Component string
	Message   string
	Count     int
	EventID   string
	Timestamp time.Time
}

// OnAlert registers a subscriber and returns its unsubscribe function.
// Subscribers are called synchronously in capture order; a panicking
// subscriber is logged and skipped.
func (t *Tracker) OnAlert(fn func(Alert)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.alertSubs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.alertSubs, id)
		t.mu.Unlock()
	}
}

// evaluateAlertsLocked checks the three alert conditions for a freshly
// buffered event. Caller holds t.mu.
func (t *Tracker) evaluateAlertsLocked(ev event.Event, pat event.Pattern, now time.Time) []Alert {
	var alerts []Alert

	if ev.Severity == event.SevCritical {
		alerts = append(alerts, Alert{
			Type:      AlertCritical,
			Severity:  ev.Severity,
			Category:  ev.Category,
			Component: ev.Component,
			Message:   ev.Message,
			Count:     1,
			EventID:   ev.ID,
			Timestamp: now,
		})
	}

	// High error rate: buffered events within the trailing window.
	cutoff := now.Add(-t.cfg.RateWindow)
	recent := 0
	for _, buffered := range t.buffer {
		if buffered.Timestamp.After(cutoff) {
			recent++
		}
	}
	if recent >= t.cfg.RatePerMinute {
		alerts = append(alerts, Alert{
			Type:      AlertHighRate,
			Severity:  ev.Severity,
			Category:  ev.Category,
			Component: ev.Component,
			Message:   fmt.Sprintf("%d errors in the last %s", recent, t.cfg.RateWindow),
			Count:     recent,
			EventID:   ev.ID,
			Timestamp: now,
		})
	}

	if pat.Count == t.cfg.RepeatCount {
		alerts = append(alerts, Alert{
			Type:      AlertRepeated,
			Severity:  pat.Severity,
			Category:  ev.Category,
			Component: ev.Component,
			Message:   ev.Message,
			Count:     pat.Count,
			EventID:   ev.ID,
			Timestamp: now,
		})
	}

	return alerts
}

// dispatchAlert calls every subscriber outside the tracker mutex.
func (t *Tracker) dispatchAlert(a Alert) {
	t.mu.Lock()
	subs := make([]func(Alert), 0, len(t.alertSubs))
	for _, fn := range t.alertSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					t.log.Warn("alert subscriber panicked", zap.Any("panic", rec))
				}
			}()
			fn(a)
		}()
	}
}
