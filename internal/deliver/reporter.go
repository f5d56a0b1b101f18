// Package deliver posts batched telemetry to the reporting backend.
// Delivery is best-effort: failures are retried with exponential backoff
// and then returned to the caller, which owns re-buffering.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/event"
)

// Config holds the reporter endpoints and retry policy.
type Config struct {
	ErrorsURL      string
	AnalyticsURL   string
	PerformanceURL string
	Environment    string
	Version        string
	MaxRetries     int
	Timeout        time.Duration
	RetryInterval  time.Duration // initial backoff interval, doubles per attempt
}

// Reporter sends telemetry batches over HTTP. Safe for concurrent use.
type Reporter struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// New creates a Reporter. A nil logger is replaced with a no-op one.
func New(cfg Config, log *zap.Logger) *Reporter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// errorBatch is the wire shape for the errors endpoint.
type errorBatch struct {
	Errors      []event.Event `json:"errors"`
	SessionID   string        `json:"session_id"`
	Timestamp   string        `json:"timestamp"`
	Environment string        `json:"environment"`
	Version     string        `json:"version"`
}

// metricBatch is the wire shape for the performance endpoint.
type metricBatch struct {
	Metrics     []event.Metric `json:"metrics"`
	SessionID   string         `json:"session_id"`
	Timestamp   string         `json:"timestamp"`
	Environment string         `json:"environment"`
	Version     string         `json:"version"`
}

// analyticsBatch is the wire shape for the raw analytics endpoint.
type analyticsBatch struct {
	Events      []map[string]any `json:"events"`
	SessionID   string           `json:"session_id"`
	Timestamp   string           `json:"timestamp"`
	Environment string           `json:"environment"`
	Version     string           `json:"version"`
}

// Send posts a batch of error events. Retries with exponential backoff up
// to MaxRetries attempts; non-2xx responses count as failures. Returns the
// last error after exhausting retries so the caller can re-buffer.
func (r *Reporter) Send(ctx context.Context, events []event.Event, sessionID string) error {
	if len(events) == 0 {
		return nil
	}
	body, err := json.Marshal(errorBatch{
		Errors:      events,
		SessionID:   sessionID,
		Timestamp:   event.UTCNowISO(),
		Environment: r.cfg.Environment,
		Version:     r.cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal error batch: %w", err)
	}
	return r.post(ctx, r.cfg.ErrorsURL, "errors", sessionID, body)
}

// SendMetrics posts a batch of performance metrics.
func (r *Reporter) SendMetrics(ctx context.Context, metrics []event.Metric, sessionID string) error {
	if len(metrics) == 0 {
		return nil
	}
	body, err := json.Marshal(metricBatch{
		Metrics:     metrics,
		SessionID:   sessionID,
		Timestamp:   event.UTCNowISO(),
		Environment: r.cfg.Environment,
		Version:     r.cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal metric batch: %w", err)
	}
	return r.post(ctx, r.cfg.PerformanceURL, "performance", sessionID, body)
}

// SendAnalytics posts raw analytics records.
func (r *Reporter) SendAnalytics(ctx context.Context, records []map[string]any, sessionID string) error {
	if len(records) == 0 {
		return nil
	}
	body, err := json.Marshal(analyticsBatch{
		Events:      records,
		SessionID:   sessionID,
		Timestamp:   event.UTCNowISO(),
		Environment: r.cfg.Environment,
		Version:     r.cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal analytics batch: %w", err)
	}
	return r.post(ctx, r.cfg.AnalyticsURL, "analytics", sessionID, body)
}

// post delivers one payload with retry. Backoff starts at 2s and doubles
// per attempt.
func (r *Reporter) post(ctx context.Context, url, telemetryType, sessionID string, body []byte) error {
	if url == "" {
		return fmt.Errorf("no %s endpoint configured", telemetryType)
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := r.postOnce(ctx, url, telemetryType, sessionID, body)
		if err != nil {
			r.log.Warn("telemetry delivery failed",
				zap.String("type", telemetryType),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.RetryInterval
	bo.Multiplier = 2

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries)))
	if err != nil {
		return fmt.Errorf("%s delivery failed after %d attempts: %w", telemetryType, attempt, err)
	}
	return nil
}

func (r *Reporter) postOnce(ctx context.Context, url, telemetryType, sessionID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telemetry-Type", telemetryType)
	req.Header.Set("X-Session-ID", sessionID)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from %s endpoint", resp.StatusCode, telemetryType)
	}
	return nil
}
