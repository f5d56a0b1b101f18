package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/pulsewatch/internal/config"
	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/observe"
	"github.com/ppiankov/pulsewatch/internal/pattern"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureSender records delivered error events and always succeeds.
type captureSender struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSender) Send(_ context.Context, evs []event.Event, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evs...)
	return nil
}

func (s *captureSender) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

type fixedSampler struct{ used, limit uint64 }

func (s fixedSampler) Sample() (uint64, uint64, error) { return s.used, s.limit, nil }

type fakeCache struct {
	mu        sync.Mutex
	data      map[string]any
	getErr    error
	getDelay  time.Duration
	optimized int
	cleared   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]any)}
}

func (c *fakeCache) Get(_ context.Context, key string) (any, bool, error) {
	if c.getDelay > 0 {
		time.Sleep(c.getDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Optimize(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.optimized++
	return nil
}

func (c *fakeCache) ClearByPattern(context.Context, string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	n := len(c.data)
	c.data = make(map[string]any)
	return n, nil
}

func (c *fakeCache) setErrOnGet(err error) {
	c.mu.Lock()
	c.getErr = err
	c.mu.Unlock()
}

func (c *fakeCache) optimizeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optimized
}

func (c *fakeCache) clearCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

// newTestIntegration builds a started integration on a manual clock.
// The clock is advanced so the tracker's own startup event has aged out
// of every correlation window.
func newTestIntegration(t *testing.T, opts ...Option) (*Integration, *captureSender, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
	sender := &captureSender{}
	trk := tracker.New(tracker.Config{BatchSize: 100}, sender, tracker.WithClock(clock.Now))

	all := append([]Option{
		WithClock(clock.Now),
		WithMemorySampler(fixedSampler{used: 10 * mb, limit: 100 * mb}),
	}, opts...)
	integ := New(config.Default(), trk, all...)

	trk.Start()
	clock.Advance(10 * time.Minute)
	return integ, sender, clock
}

func TestSlowMetricCorrelatesRecentErrors(t *testing.T) {
	integ, _, _ := newTestIntegration(t)

	id := integ.Tracker().Track(tracker.Report{
		Severity:  event.SevHigh,
		Category:  event.CatAPI,
		Component: "api-client",
		Message:   "request failed",
	})
	require.NotEmpty(t, id)

	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 2500})

	corrs := integ.Correlations()
	require.Len(t, corrs, 1)
	assert.Equal(t, []string{id}, corrs[0].ErrorIDs)
	assert.Equal(t, MetricAPIResponse, corrs[0].Metric.Name)
	assert.NotEmpty(t, corrs[0].ID)
}

func TestSlowMetricWithoutErrorsNoCorrelation(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 2500})
	assert.Empty(t, integ.Correlations())
}

func TestFastMetricNoCorrelation(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	integ.Tracker().Track(tracker.Report{
		Severity:  event.SevHigh,
		Category:  event.CatAPI,
		Component: "api-client",
		Message:   "request failed",
	})
	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 1500})
	assert.Empty(t, integ.Correlations())
}

func TestPerformanceErrorDerivesDegradationEvent(t *testing.T) {
	integ, _, _ := newTestIntegration(t)

	for range 3 {
		integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 4000})
	}
	integ.Tracker().Track(tracker.Report{
		Severity:  event.SevMedium,
		Category:  event.CatPerformance,
		Component: "chart-renderer",
		Message:   "slow render",
	})

	key := pattern.Key(event.CatPerformance, "telemetry", "performance degradation detected")
	assert.Equal(t, 1, integ.Tracker().Patterns().Count(key))
}

func TestPerformanceErrorWithHealthyMetricsNoDegradation(t *testing.T) {
	integ, _, _ := newTestIntegration(t)

	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 400})
	integ.Tracker().Track(tracker.Report{
		Severity:  event.SevMedium,
		Category:  event.CatPerformance,
		Component: "chart-renderer",
		Message:   "slow render",
	})

	key := pattern.Key(event.CatPerformance, "telemetry", "performance degradation detected")
	assert.Equal(t, 0, integ.Tracker().Patterns().Count(key))
}

func TestCacheFailuresDeriveDegradationEvent(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))
	cache := integ.Cache()
	ctx := context.Background()

	fc.data["k"] = "v"
	for range 4 {
		_, _, err := cache.Get(ctx, "k")
		require.NoError(t, err)
	}

	fc.setErrOnGet(errors.New("cache backend gone"))
	cache.Get(ctx, "k")
	cache.Get(ctx, "k")

	key := pattern.Key(event.CatCache, "telemetry", "cache degradation detected")
	assert.Equal(t, 1, integ.Tracker().Patterns().Count(key))
}

func TestCacheFailureEmitsEvent(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))

	fc.setErrOnGet(errors.New("cache backend gone"))
	integ.Cache().Get(context.Background(), "bad-key")

	key := pattern.Key(event.CatCache, "cache", "cache get failed: bad-key")
	assert.Equal(t, 1, integ.Tracker().Patterns().Count(key))
}

func TestSlowCacheOpEmitsLowSeverityEvent(t *testing.T) {
	// Real clock: the slow-op threshold compares measured wall time.
	fc := newFakeCache()
	fc.getDelay = 150 * time.Millisecond
	sender := &captureSender{}
	trk := tracker.New(tracker.Config{BatchSize: 100}, sender)
	integ := New(config.Default(), trk,
		WithCache(fc),
		WithMemorySampler(fixedSampler{used: 10 * mb, limit: 100 * mb}))
	trk.Start()

	integ.Cache().Get(context.Background(), "anything")
	require.NoError(t, trk.Flush(context.Background()))

	var found bool
	for _, ev := range sender.all() {
		if ev.Category == event.CatCache {
			found = true
			assert.Equal(t, event.SevLow, ev.Severity)
			assert.Contains(t, ev.Message, "slow cache get")
		}
	}
	assert.True(t, found, "expected a slow cache op event")
}

func TestEnrichmentAndAnonymization(t *testing.T) {
	integ, sender, _ := newTestIntegration(t)

	integ.Tracker().Track(tracker.Report{
		Severity:  event.SevHigh,
		Category:  event.CatAPI,
		Component: "api-client",
		Message:   "lookup for voter@example.com failed",
		Context:   map[string]any{"user_id": "42", "endpoint": "/api/wards"},
	})
	require.NoError(t, integ.Tracker().Flush(context.Background()))

	var ev event.Event
	var found bool
	for _, e := range sender.all() {
		if e.Component == "api-client" {
			ev, found = e, true
		}
	}
	require.True(t, found)

	assert.Equal(t, event.SevHigh, ev.Severity)
	assert.Equal(t, event.CatAPI, ev.Category)
	assert.Equal(t, "lookup for [email] failed", ev.Message)
	assert.NotContains(t, ev.Context, "user_id")
	assert.Contains(t, ev.Context, "environment")
	assert.Contains(t, ev.Context, "session")
	assert.Contains(t, ev.Context, "memory")
	assert.Contains(t, ev.Context, "host")
}

func TestSweepOptimizesOnRecurringPerformancePattern(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))

	trackStall := func() {
		integ.Tracker().Track(tracker.Report{
			Severity:  event.SevMedium,
			Category:  event.CatPerformance,
			Component: "chart-renderer",
			Message:   "render stall",
		})
	}
	for range 6 {
		trackStall()
	}

	integ.SweepOnce(context.Background())
	assert.Equal(t, 1, fc.optimizeCalls())
	require.Len(t, integ.Actions(), 1)
	assert.Equal(t, "cache_optimize", integ.Actions()[0].Type)

	// The pattern aggregate is untouched by the corrective action.
	key := pattern.Key(event.CatPerformance, "chart-renderer", "render stall")
	assert.Equal(t, 6, integ.Tracker().Patterns().Count(key))

	// Already-corrected occurrences do not re-trigger the next sweep.
	integ.SweepOnce(context.Background())
	assert.Equal(t, 1, fc.optimizeCalls())

	// A fresh burst of the same pattern triggers again.
	for range 6 {
		trackStall()
	}
	integ.SweepOnce(context.Background())
	assert.Equal(t, 2, fc.optimizeCalls())
}

func TestSweepIgnoresScatteredOneOffErrors(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))

	// Six distinct signatures: no single pattern recurs, so the
	// optimization trigger must stay quiet.
	for n := range 6 {
		integ.Tracker().Track(tracker.Report{
			Severity:  event.SevMedium,
			Category:  event.CatPerformance,
			Component: "chart-renderer",
			Message:   fmt.Sprintf("render stall %d", n),
		})
	}

	integ.SweepOnce(context.Background())
	assert.Equal(t, 0, fc.optimizeCalls())
	assert.Empty(t, integ.Actions())
}

func TestSweepClearsOnRecurringCachePattern(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))

	for range 4 {
		integ.Tracker().Track(tracker.Report{
			Severity:  event.SevMedium,
			Category:  event.CatCache,
			Component: "cache-client",
			Message:   "lookup failed",
		})
	}

	integ.SweepOnce(context.Background())
	assert.Equal(t, 1, fc.clearCalls())
	require.Len(t, integ.Actions(), 1)
	assert.Equal(t, "cache_clear", integ.Actions()[0].Type)

	key := pattern.Key(event.CatCache, "cache-client", "lookup failed")
	assert.Equal(t, 4, integ.Tracker().Patterns().Count(key))
}

type captureMetricSender struct {
	mu        sync.Mutex
	metrics   [][]event.Metric
	analytics [][]map[string]any
}

func (s *captureMetricSender) SendMetrics(_ context.Context, m []event.Metric, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *captureMetricSender) SendAnalytics(_ context.Context, r []map[string]any, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = append(s.analytics, r)
	return nil
}

func TestFlushTelemetryDeliversAndDrains(t *testing.T) {
	ms := &captureMetricSender{}
	integ, _, _ := newTestIntegration(t, WithMetricSender(ms))

	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 300})
	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 400})
	integ.PageView("dashboard")

	integ.FlushTelemetry(context.Background())
	require.Len(t, ms.metrics, 1)
	assert.Len(t, ms.metrics[0], 2)
	require.Len(t, ms.analytics, 1)
	assert.Equal(t, "page_view", ms.analytics[0][0]["type"])

	// Drained: a second flush sends nothing.
	integ.FlushTelemetry(context.Background())
	assert.Len(t, ms.metrics, 1)
	assert.Len(t, ms.analytics, 1)
}

func TestSummaryCounters(t *testing.T) {
	fc := newFakeCache()
	integ, _, _ := newTestIntegration(t, WithCache(fc))
	ctx := context.Background()

	integ.PageView("dashboard")
	integ.PageView("map")
	require.NoError(t, integ.Cache().Set(ctx, "k1", "v1"))
	integ.Cache().Get(ctx, "k1")      // hit
	integ.Cache().Get(ctx, "missing") // miss
	integ.ObserveMetric(event.Metric{Name: MetricAPIResponse, Value: 600})

	s := integ.Summary()
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, 2, s.PageViews)
	assert.Equal(t, 1, s.CacheHits)
	assert.Equal(t, 1, s.CacheMisses)
	assert.InDelta(t, 0.5, s.CacheHitRate, 1e-9)
	assert.InDelta(t, 600, s.AvgResponseMs, 1e-9)
	assert.EqualValues(t, 10*mb, s.PeakMemoryBytes)
	assert.GreaterOrEqual(t, s.HealthScore, 0)
	assert.LessOrEqual(t, s.HealthScore, 100)
}

func TestNotifyContentChangeWithoutValidator(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	integ.NotifyContentChange() // no validator installed, must be a no-op
}

type failingValidator struct{}

func (failingValidator) Scan(context.Context) ([]observe.Violation, error) {
	return nil, errors.New("scanner unavailable")
}

func TestValidatorOptionOrderIndependent(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	// WithValidator before WithLogger: the watcher must still use the
	// installed logger, not the default no-op one.
	integ, _, _ := newTestIntegration(t,
		WithValidator(failingValidator{}),
		WithLogger(zap.New(core)),
	)
	require.NotNil(t, integ.a11y)

	integ.a11y.ScanNow(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("accessibility scan failed").Len())
}
