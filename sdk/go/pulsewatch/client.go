package pulsewatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/alert"
	"github.com/ppiankov/pulsewatch/internal/config"
	"github.com/ppiankov/pulsewatch/internal/deliver"
	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/observe"
	"github.com/ppiankov/pulsewatch/internal/telemetry"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Client is the public embedding surface: one session-scoped pipeline
// wiring capture, enrichment, observation, and delivery. Safe for
// concurrent use.
type Client struct {
	cfg        *config.Config
	log        *zap.Logger
	trk        *tracker.Tracker
	integ      *telemetry.Integration
	reporter   *deliver.Reporter
	unsubAlert func()
}

// New creates and starts a Client with the given options.
func New(opts ...Option) (*Client, error) {
	var cc clientConfig
	for _, o := range opts {
		o(&cc)
	}

	cfg, err := config.Load(cc.configPath)
	if err != nil {
		return nil, fmt.Errorf("pulsewatch: failed to load config: %w", err)
	}
	if cc.environment != "" {
		cfg.Environment = cc.environment
	}
	if cc.version != "" {
		cfg.Version = cc.version
	}

	log := cc.logger
	if log == nil {
		log = zap.NewNop()
	}

	reporter := deliver.New(deliver.Config{
		ErrorsURL:      joinURL(cc.baseURL, cfg.Endpoints.Errors),
		AnalyticsURL:   joinURL(cc.baseURL, cfg.Endpoints.Analytics),
		PerformanceURL: joinURL(cc.baseURL, cfg.Endpoints.Performance),
		Environment:    cfg.Environment,
		Version:        cfg.Version,
		MaxRetries:     cfg.MaxRetries,
	}, log)

	topts := []tracker.Option{tracker.WithLogger(log)}
	if cc.sessionID != "" {
		topts = append(topts, tracker.WithSessionID(cc.sessionID))
	}
	trk := tracker.New(tracker.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		RetryCap:      cfg.RetryCap,
		RatePerMinute: cfg.Alerts.RatePerMinute,
		RepeatCount:   cfg.Alerts.RepeatCount,
		SampleRate:    cfg.SampleRate,
		LogEvents:     cfg.Privacy.LogToConsole,
	}, reporter, topts...)

	iopts := []telemetry.Option{
		telemetry.WithLogger(log),
		telemetry.WithMetricSender(reporter),
	}
	if cc.cache != nil {
		iopts = append(iopts, telemetry.WithCache(cc.cache))
	}
	if cc.validator != nil {
		iopts = append(iopts, telemetry.WithValidator(validatorAdapter{cc.validator}))
	}
	integ := telemetry.New(cfg, trk, iopts...)

	c := &Client{
		cfg:      cfg,
		log:      log,
		trk:      trk,
		integ:    integ,
		reporter: reporter,
	}
	if d := alert.NewDispatcher(cfg.Alerts.Webhooks); d != nil {
		c.unsubAlert = trk.OnAlert(func(a tracker.Alert) {
			d.Dispatch(alert.Event{
				Timestamp: a.Timestamp.Format(time.RFC3339),
				SessionID: trk.SessionID(),
				Type:      a.Type,
				Severity:  string(a.Severity),
				Category:  string(a.Category),
				Component: a.Component,
				Message:   a.Message,
				Count:     a.Count,
			})
		})
	}

	trk.Start()
	return c, nil
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + path
}

// SessionID returns the stable identifier attached to every delivery.
func (c *Client) SessionID() string {
	return c.trk.SessionID()
}

// Track captures one failure and returns its event ID, or "" when the
// event was sampled out.
func (c *Client) Track(r Report) string {
	return c.trk.Track(toInternalReport(r))
}

// TrackComponent records a UI component failure.
func (c *Client) TrackComponent(component, message string, err error) string {
	return c.trk.TrackComponent(component, message, err)
}

// TrackAPI records a failed API call. Severity follows the HTTP status.
func (c *Client) TrackAPI(endpoint, method string, status int, message string) string {
	return c.trk.TrackAPI(endpoint, method, status, message)
}

// TrackSSE records a streaming-connection failure.
func (c *Client) TrackSSE(endpoint, message string) string {
	return c.trk.TrackSSE(endpoint, message)
}

// TrackStrategist records a failure in the AI strategist flow.
func (c *Client) TrackStrategist(operation, ward, message string) string {
	return c.trk.TrackStrategist(operation, ward, message)
}

// Recover is a deferred panic hook: it converts a panic into a critical
// event instead of crashing the host.
//
//	defer pw.Recover("ingest-worker")
func (c *Client) Recover(component string) {
	c.trk.Recover(component)
}

// ObserveMetric records one performance measurement. Measurements
// crossing their configured thresholds become synthetic events; slow
// measurements are correlated with recent errors.
func (c *Client) ObserveMetric(name string, value float64) {
	c.integ.ObserveMetric(event.Metric{Name: name, Value: value})
}

// ObserveResource records one completed resource load.
func (c *Client) ObserveResource(name, resourceType string, duration time.Duration) {
	c.integ.ObserveResource(observe.ResourceEntry{
		Name:     name,
		Type:     resourceType,
		Duration: duration,
	})
}

// PageView records a navigation for the session aggregate.
func (c *Client) PageView(name string) {
	c.integ.PageView(name)
}

// NotifyContentChange triggers a debounced accessibility re-scan. No-op
// without a validator.
func (c *Client) NotifyContentChange() {
	c.integ.NotifyContentChange()
}

// OnAlert registers a subscriber for alert conditions and returns its
// unsubscribe function.
func (c *Client) OnAlert(fn func(Alert)) (unsubscribe func()) {
	return c.trk.OnAlert(func(a tracker.Alert) { fn(fromInternalAlert(a)) })
}

// HealthScore computes the current session health, 0 to 100.
func (c *Client) HealthScore() int {
	return c.integ.HealthScore()
}

// Recommendations derives actionable advice from the session aggregate.
func (c *Client) Recommendations() []string {
	return c.integ.Recommendations()
}

// Flush delivers buffered events now. On failure the most recent events
// are re-queued up to the configured retry cap.
func (c *Client) Flush(ctx context.Context) error {
	return c.trk.Flush(ctx)
}

// Hide flushes in the background; hosts call it when the session is
// being backgrounded so buffered events are not lost.
func (c *Client) Hide() {
	c.trk.Hide()
}

// Run starts the periodic loops (flush, memory poll, accessibility
// scans, optimization sweep, telemetry delivery) and blocks until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	return c.integ.Run(ctx)
}

// Close detaches subscriptions and flushes whatever remains.
func (c *Client) Close() error {
	if c.unsubAlert != nil {
		c.unsubAlert()
	}
	return c.integ.Close()
}
