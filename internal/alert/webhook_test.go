package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"critical_error"}},
	})

	d.Dispatch(Event{Type: "critical_error", Severity: "critical", Component: "WardMap"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"critical_error"}},
	})

	d.Dispatch(Event{Type: "high_error_rate", Severity: "medium", Component: "TrendChart"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchMatchesSeverity(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"high"}},
	})

	d.Dispatch(Event{Type: "repeated_error", Severity: "high", Component: "StrategistPanel"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call for severity match, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	d := NewDispatcher([]WebhookConfig{
		{URL: srv1.URL, Format: "generic", Events: []string{"critical_error"}},
		{URL: srv2.URL, Format: "generic", Events: []string{"critical_error", "repeated_error"}},
	})

	d.Dispatch(Event{Type: "critical_error", Severity: "critical", Component: "WardMap"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(WebhookConfig{URL: srv.URL, Format: "generic"}, Event{Type: "critical_error"})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Send(WebhookConfig{URL: srv.URL, Format: "generic"}, Event{Type: "critical_error"})
	if err == nil {
		t.Error("expected error for 4xx response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	cases := []struct {
		severity string
		want     string
	}{
		{"critical", "critical"},
		{"high", "error"},
		{"medium", "warning"},
		{"low", "info"},
	}

	for _, tc := range cases {
		body, err := FormatPayload("pagerduty", Event{Type: "repeated_error", Severity: tc.severity})
		if err != nil {
			t.Fatalf("format: %v", err)
		}
		var payload struct {
			Payload struct {
				Severity string `json:"severity"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if payload.Payload.Severity != tc.want {
			t.Errorf("severity %s mapped to %s, want %s", tc.severity, payload.Payload.Severity, tc.want)
		}
	}
}

func TestFormatGenericRoundTrip(t *testing.T) {
	ev := Event{
		Timestamp: "2026-08-25T10:00:00.000Z",
		SessionID: "sess-1",
		Type:      "high_error_rate",
		Severity:  "medium",
		Category:  "api",
		Component: "WardMap",
		Message:   "6 errors in the last minute",
		Count:     6,
	}
	body, err := FormatPayload("generic", ev)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != ev {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
