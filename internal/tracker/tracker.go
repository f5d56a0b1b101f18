// Package tracker is the capturing facade of the observability pipeline:
// it normalizes failures into events, classifies them, tracks repetition
// patterns, buffers them, and hands batches to the delivery layer.
package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/classify"
	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/pattern"
)

// Sender delivers a batch of events. Implemented by deliver.Reporter.
type Sender interface {
	Send(ctx context.Context, events []event.Event, sessionID string) error
}

// Report is one failure handed to the tracker. Severity and Category are
// optional: when empty they are inferred from the message, stack, and
// wrapped error text.
type Report struct {
	Severity  event.Severity
	Category  event.Category
	Component string
	Message   string
	Stack     string
	Err       error
	Context   map[string]any
}

// Config holds tracker thresholds. Zero values take documented defaults.
type Config struct {
	BatchSize     int           // forced flush at this many buffered events (default 10)
	FlushInterval time.Duration // periodic flush (default 30s)
	RetryCap      int           // most-recent events re-queued after delivery failure (default 50)
	RateWindow    time.Duration // trailing window for the rate alert (default 60s)
	RatePerMinute int           // buffered events within RateWindow that raise an alert (default 5)
	RepeatCount   int           // pattern count that raises a repeated-error alert (default 10)
	SampleRate    float64       // fraction of non-critical events kept (default 1.0)
	LogEvents     bool          // mirror captured events to the local log sink
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 50
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 60 * time.Second
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 5
	}
	if c.RepeatCount <= 0 {
		c.RepeatCount = 10
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1.0
	}
	return c
}

// Tracker captures failures. Safe for concurrent use; capture completes
// classification, pattern update, and buffering synchronously so a flush
// triggered by the same call observes a consistent buffer.
type Tracker struct {
	cfg       Config
	sessionID string
	sender    Sender
	patterns  *pattern.Tracker
	log       *zap.Logger

	mu        sync.Mutex
	buffer    []event.Event
	started   bool
	enrich    func(*event.Event)
	onEvent   func(event.Event)
	alertSubs map[int]func(Alert)
	nextSub   int
	unsubs    []func()

	now    func() time.Time
	sample func() float64
}

// Option configures a Tracker at creation time.
type Option func(*Tracker)

// WithLogger sets the local log sink.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(t *Tracker) { t.sessionID = id }
}

// New creates a Tracker. Call Start before tracking.
func New(cfg Config, sender Sender, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg.withDefaults(),
		sessionID: event.NewSessionID(),
		sender:    sender,
		patterns:  pattern.New(),
		log:       zap.NewNop(),
		alertSubs: make(map[int]func(Alert)),
		now:       func() time.Time { return time.Now().UTC() },
		sample:    rand.Float64,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetEnricher installs the enrichment hook run on every event before it
// is buffered. Must be called before Start.
func (t *Tracker) SetEnricher(fn func(*event.Event)) {
	t.mu.Lock()
	t.enrich = fn
	t.mu.Unlock()
}

// SetObserver installs a hook receiving a copy of every buffered event.
// The telemetry integration uses it for correlation. Must be called
// before Start.
func (t *Tracker) SetObserver(fn func(event.Event)) {
	t.mu.Lock()
	t.onEvent = fn
	t.mu.Unlock()
}

// SessionID returns the stable session identifier.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Patterns exposes the pattern tracker for reporting and optimization
// triggers.
func (t *Tracker) Patterns() *pattern.Tracker {
	return t.patterns
}

// BufferLen returns the number of not-yet-delivered events.
func (t *Tracker) BufferLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Start marks the tracker initialized and records its own startup event.
// Idempotent.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	t.Track(Report{
		Severity:  event.SevInfo,
		Category:  event.CatUnknown,
		Component: "pulsewatch",
		Message:   "error tracking initialized",
		Context:   map[string]any{"session_id": t.sessionID},
	})
}

// Track captures one failure. Returns the event ID, or "" when the
// tracker has not been started or the event was sampled out.
func (t *Tracker) Track(r Report) string {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ""
	}

	now := t.now()
	sev, cat := r.Severity, r.Category
	if sev == "" || cat == "" {
		text := r.Message + " " + r.Stack
		if r.Err != nil {
			text += " " + r.Err.Error()
		}
		isev, icat := classify.Infer(text)
		if sev == "" {
			sev = isev
		}
		if cat == "" {
			cat = icat
		}
	}

	// Sampling never drops criticals: the immediate-flush guarantee
	// must hold regardless of sample rate.
	if t.cfg.SampleRate < 1 && sev != event.SevCritical && t.sample() >= t.cfg.SampleRate {
		t.mu.Unlock()
		return ""
	}

	msg := r.Message
	if msg == "" && r.Err != nil {
		msg = r.Err.Error()
	}

	// The event owns its context from here on; enrichment must not write
	// into the caller's map.
	var ctxCopy map[string]any
	if r.Context != nil {
		ctxCopy = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			ctxCopy[k] = v
		}
	}

	ev := event.Event{
		ID:        event.NewEventID(r.Component, msg, now),
		SessionID: t.sessionID,
		Timestamp: now,
		Severity:  sev,
		Category:  cat,
		Component: r.Component,
		Message:   msg,
		Stack:     r.Stack,
		Context:   ctxCopy,
	}

	if t.enrich != nil {
		func() {
			// An enricher failure must never lose the event.
			defer func() {
				if rec := recover(); rec != nil {
					t.log.Warn("enricher panicked", zap.Any("panic", rec))
				}
			}()
			t.enrich(&ev)
		}()
	}

	pat := t.patterns.Update(&ev)
	t.buffer = append(t.buffer, ev)
	bufLen := len(t.buffer)

	alerts := t.evaluateAlertsLocked(ev, pat, now)
	observer := t.onEvent
	t.mu.Unlock()

	if t.cfg.LogEvents {
		t.log.Info("error tracked",
			zap.String("id", ev.ID),
			zap.String("severity", string(ev.Severity)),
			zap.String("category", string(ev.Category)),
			zap.String("component", ev.Component),
			zap.String("message", ev.Message))
	}

	if observer != nil {
		observer(ev)
	}
	for _, a := range alerts {
		t.dispatchAlert(a)
	}

	if ev.Severity == event.SevCritical || bufLen >= t.cfg.BatchSize {
		t.flushAsync()
	}
	return ev.ID
}

// TrackComponent records a UI component failure.
func (t *Tracker) TrackComponent(component, message string, err error) string {
	return t.Track(Report{
		Category:  event.CatUIComponent,
		Severity:  event.SevHigh,
		Component: component,
		Message:   message,
		Err:       err,
	})
}

// TrackAPI records a failed API call. Severity follows the HTTP status.
func (t *Tracker) TrackAPI(endpoint, method string, status int, message string) string {
	sev, cat := classify.HTTPStatus(status)
	return t.Track(Report{
		Severity:  sev,
		Category:  cat,
		Component: "api-client",
		Message:   message,
		Context: map[string]any{
			"endpoint": endpoint,
			"method":   method,
			"status":   status,
		},
	})
}

// TrackSSE records a streaming-connection failure.
func (t *Tracker) TrackSSE(endpoint, message string) string {
	return t.Track(Report{
		Severity:  event.SevHigh,
		Category:  event.CatSSEStreaming,
		Component: "sse-client",
		Message:   message,
		Context:   map[string]any{"endpoint": endpoint},
	})
}

// TrackStrategist records a failure in the AI strategist flow.
func (t *Tracker) TrackStrategist(operation, ward, message string) string {
	return t.Track(Report{
		Severity:  event.SevHigh,
		Category:  event.CatStrategist,
		Component: "strategist",
		Message:   message,
		Context: map[string]any{
			"operation": operation,
			"ward":      ward,
		},
	})
}

// Flush drains the buffer to the sender. On failure the most recent
// RetryCap events are re-queued at the head of the buffer; the rest are
// dropped (bounded retry, never an unbounded backlog).
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if len(t.buffer) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	err := t.sender.Send(ctx, batch, t.sessionID)
	if err == nil {
		return nil
	}

	requeue := batch
	if len(requeue) > t.cfg.RetryCap {
		requeue = requeue[len(requeue)-t.cfg.RetryCap:]
	}
	t.mu.Lock()
	t.buffer = append(append([]event.Event{}, requeue...), t.buffer...)
	t.mu.Unlock()

	return fmt.Errorf("flush: %w", err)
}

// Hide is the page-hide analog: hosts call it when the session is being
// backgrounded so buffered events are not lost.
func (t *Tracker) Hide() {
	t.flushAsync()
}

// flushAsync fires a flush without blocking capture. Errors are already
// handled inside Flush (re-queue) and logged here.
func (t *Tracker) flushAsync() {
	go func() {
		if err := t.Flush(context.Background()); err != nil {
			t.log.Warn("background flush failed", zap.Error(err))
		}
	}()
}

// Run flushes on the configured interval until ctx is cancelled, then
// performs a final flush.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.Flush(flushCtx); err != nil {
				t.log.Warn("final flush failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := t.Flush(ctx); err != nil {
				t.log.Warn("periodic flush failed", zap.Error(err))
			}
		}
	}
}

// Close detaches failure sources and flushes whatever remains.
func (t *Tracker) Close() error {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()
	for _, u := range unsubs {
		u()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.Flush(ctx)
}
