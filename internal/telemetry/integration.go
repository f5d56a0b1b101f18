// Package telemetry is the orchestration layer: it enriches tracked
// events with runtime state, instruments the host cache, correlates
// performance anomalies with errors, triggers corrective cache actions,
// and aggregates session health.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulsewatch/internal/anonymize"
	"github.com/ppiankov/pulsewatch/internal/config"
	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/observe"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// MetricSender delivers metric and analytics batches. Implemented by
// deliver.Reporter.
type MetricSender interface {
	SendMetrics(ctx context.Context, metrics []event.Metric, sessionID string) error
	SendAnalytics(ctx context.Context, records []map[string]any, sessionID string) error
}

// MetricAPIResponse is the metric name contributing to the average
// response time in the session summary.
const MetricAPIResponse = "api-response-time"

// Action records one corrective step taken by the optimization sweep.
type Action struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

type errRef struct {
	id string
	ts time.Time
}

// Integration wires the tracker, observers, cache, and delivery into one
// session-scoped pipeline.
type Integration struct {
	cfg  *config.Config
	trk  *tracker.Tracker
	log  *zap.Logger
	anon *anonymize.Anonymizer

	vitals    *observe.Vitals
	resources *observe.Resources
	memory    *observe.Memory
	a11y      *observe.Accessibility

	sampler   observe.MemorySampler
	sender    MetricSender
	cache     *InstrumentedCache
	validator observe.Validator

	host map[string]any
	now  func() time.Time

	mu           sync.Mutex
	metrics      []event.Metric // recent, correlation window
	outMetrics   []event.Metric // pending delivery
	outAnalytics []map[string]any
	errs         []errRef
	cacheOps     []event.CacheOp
	correlations []event.Correlation
	actions      []Action
	cleanups     []func()

	// Pattern counts at the last corrective action, per signature. The
	// sweep evaluates recurrence as the delta against this baseline so
	// the pattern tracker itself stays monotonic.
	sweepBaseline map[string]int

	startTime    time.Time
	pageViews    int
	errorCount   int
	cacheHits    int
	cacheMisses  int
	a11yTotal    int
	a11yCritical int
	a11ySerious  int
	respTotalMs  float64
	respCount    int
	peakMemory   uint64
}

// Option configures an Integration at creation time.
type Option func(*Integration)

// WithCache installs the host cache to instrument and optimize.
func WithCache(c Cache) Option {
	return func(i *Integration) {
		if c != nil {
			i.cache = &InstrumentedCache{inner: c, integ: i}
		}
	}
}

// WithValidator installs the accessibility checker.
func WithValidator(v observe.Validator) Option {
	return func(i *Integration) { i.validator = v }
}

// WithMemorySampler overrides the heap usage source (tests).
func WithMemorySampler(s observe.MemorySampler) Option {
	return func(i *Integration) { i.sampler = s }
}

// WithMetricSender installs the delivery endpoint for metrics and
// analytics batches.
func WithMetricSender(s MetricSender) Option {
	return func(i *Integration) { i.sender = s }
}

// WithLogger sets the local log sink.
func WithLogger(log *zap.Logger) Option {
	return func(i *Integration) { i.log = log }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(i *Integration) { i.now = now }
}

// New wires an Integration onto an existing tracker. The tracker must
// not be started yet: enrichment and observation hooks are installed
// here.
func New(cfg *config.Config, trk *tracker.Tracker, opts ...Option) *Integration {
	i := &Integration{
		cfg:     cfg,
		trk:     trk,
		log:     zap.NewNop(),
		sampler: observe.RuntimeSampler{},
		now:     func() time.Time { return time.Now().UTC() },
		host: map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
			"cpus": runtime.NumCPU(),
		},
		sweepBaseline: make(map[string]int),
	}
	for _, o := range opts {
		o(i)
	}
	i.startTime = i.now()

	// DO_NOT_TRACK=1 upgrades to anonymized capture when the config says
	// to respect it.
	enabled := cfg.Privacy.Anonymize
	if cfg.Privacy.RespectDoNotTrack && os.Getenv("DO_NOT_TRACK") == "1" {
		enabled = true
	}
	i.anon = anonymize.New(enabled)

	i.vitals = observe.NewVitals(observe.VitalsConfig{
		LCPMs:            cfg.Vitals.LCPMs,
		FIDMs:            cfg.Vitals.FIDMs,
		CLS:              cfg.Vitals.CLS,
		LongTaskMs:       cfg.Observers.LongTaskMs,
		LayoutShiftScore: cfg.Observers.LayoutShiftScore,
	}, trk)
	i.resources = observe.NewResources(
		time.Duration(cfg.Observers.SlowResourceMs)*time.Millisecond, trk)
	i.memory = observe.NewMemory(observe.MemoryConfig{
		Percent:  cfg.Observers.MemoryPercent,
		Interval: cfg.Observers.MemoryInterval,
	}, i.sampler, trk, i.log)
	// Watcher construction waits until after the options ran so it picks
	// up the installed logger and sampler regardless of option order.
	if i.validator != nil {
		i.a11y = observe.NewAccessibility(observe.AccessibilityConfig{
			Interval: cfg.Observers.A11yInterval,
			Debounce: cfg.Observers.A11yDebounce,
		}, i.validator, trk, i.log)
	}
	if i.a11y != nil {
		i.a11y.SetReportHook(func(n int) {
			i.mu.Lock()
			i.a11yTotal += n
			i.mu.Unlock()
		})
	}

	trk.SetEnricher(i.enrich)
	trk.SetObserver(i.onEvent)
	return i
}

// Tracker returns the wired tracker.
func (i *Integration) Tracker() *tracker.Tracker { return i.trk }

// Cache returns the instrumented cache, or nil when none was injected.
func (i *Integration) Cache() Cache {
	if i.cache == nil {
		return nil
	}
	return i.cache
}

// AddCleanup registers a teardown step run by Close, in reverse order.
func (i *Integration) AddCleanup(fn func()) {
	i.mu.Lock()
	i.cleanups = append(i.cleanups, fn)
	i.mu.Unlock()
}

// PageView records a navigation for the session aggregate.
func (i *Integration) PageView(name string) {
	i.mu.Lock()
	i.pageViews++
	i.outAnalytics = append(i.outAnalytics, map[string]any{
		"type":      "page_view",
		"name":      name,
		"timestamp": i.now(),
	})
	i.mu.Unlock()
}

// NotifyContentChange signals a content mutation to the accessibility
// watcher. No-op without a validator.
func (i *Integration) NotifyContentChange() {
	if i.a11y != nil {
		i.a11y.Notify()
	}
}

// ObserveResource feeds one resource timing into the resource watcher.
func (i *Integration) ObserveResource(entry observe.ResourceEntry) {
	i.resources.Observe(entry)
}

// ObserveMetric records one performance measurement: it is checked
// against the vitals thresholds, buffered for delivery, and correlated
// with recent errors when slow.
func (i *Integration) ObserveMetric(m event.Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = i.now()
	}
	i.vitals.Observe(m)

	now := i.now()
	i.mu.Lock()
	i.metrics = append(i.metrics, m)
	i.outMetrics = append(i.outMetrics, m)
	if m.Name == MetricAPIResponse {
		i.respTotalMs += m.Value
		i.respCount++
	}
	i.trimLocked(now)

	if m.Value > i.cfg.Correlation.SlowMetricMs {
		cutoff := now.Add(-i.cfg.Correlation.ErrorWindow)
		var ids []string
		for _, e := range i.errs {
			if e.ts.After(cutoff) {
				ids = append(ids, e.id)
			}
		}
		if len(ids) > 0 {
			c := event.Correlation{
				ID:        event.NewCorrelationID(now),
				Metric:    m,
				ErrorIDs:  ids,
				Timestamp: now,
			}
			i.correlations = append(i.correlations, c)
			i.outAnalytics = append(i.outAnalytics, map[string]any{
				"type":           "correlation",
				"correlation_id": c.ID,
				"metric":         m.Name,
				"value":          m.Value,
				"errors":         ids,
				"timestamp":      now,
			})
		}
	}
	i.mu.Unlock()
}

// Correlations returns the correlation records collected so far.
func (i *Integration) Correlations() []event.Correlation {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]event.Correlation, len(i.correlations))
	copy(out, i.correlations)
	return out
}

// Actions returns the corrective actions taken so far.
func (i *Integration) Actions() []Action {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Action, len(i.actions))
	copy(out, i.actions)
	return out
}

// recordCacheOp stores an instrumented cache operation and updates the
// hit counters.
func (i *Integration) recordCacheOp(op event.CacheOp, hit bool) {
	i.mu.Lock()
	i.cacheOps = append(i.cacheOps, op)
	if op.Operation == "get" && op.Success {
		if hit {
			i.cacheHits++
		} else {
			i.cacheMisses++
		}
	}
	i.trimLocked(i.now())
	i.mu.Unlock()
}

// onEvent is the tracker observer: it maintains the error window and,
// for performance- and cache-shaped errors, checks whether the
// surrounding telemetry indicates a wider degradation.
func (i *Integration) onEvent(ev event.Event) {
	// Events derived here must not feed back into correlation.
	if ev.Component == "telemetry" {
		return
	}

	now := i.now()
	var derived *tracker.Report

	i.mu.Lock()
	i.errorCount++
	i.errs = append(i.errs, errRef{id: ev.ID, ts: ev.Timestamp})
	if ev.Category == event.CatAccessibility {
		switch ev.Severity {
		case event.SevHigh:
			i.a11yCritical++
		case event.SevMedium:
			i.a11ySerious++
		}
	}
	i.trimLocked(now)

	switch ev.Category {
	case event.CatPerformance, event.CatMemoryLeak:
		if avg, n := i.avgMetricLocked(now.Add(-i.cfg.Correlation.ErrorWindow)); n > 0 && avg > i.cfg.Correlation.DegradedAvgMs {
			derived = &tracker.Report{
				Severity:  event.SevMedium,
				Category:  event.CatPerformance,
				Component: "telemetry",
				Message:   "performance degradation detected",
				Context: map[string]any{
					"avg_ms":    avg,
					"samples":   n,
					"window_ms": i.cfg.Correlation.ErrorWindow.Milliseconds(),
				},
			}
		}
	case event.CatCache, event.CatAPI:
		if rate, n := i.cacheFailureRateLocked(now.Add(-i.cfg.Correlation.CacheWindow)); n >= 5 && rate > i.cfg.Correlation.CacheFailureRate {
			derived = &tracker.Report{
				Severity:  event.SevMedium,
				Category:  event.CatCache,
				Component: "telemetry",
				Message:   "cache degradation detected",
				Context: map[string]any{
					"failure_rate": rate,
					"operations":   n,
					"window_ms":    i.cfg.Correlation.CacheWindow.Milliseconds(),
				},
			}
		}
	}
	i.mu.Unlock()

	if derived != nil {
		i.trk.Track(*derived)
	}
}

// avgMetricLocked averages ms-valued metrics after the cutoff. Score
// metrics (layout shift) are excluded so they do not dilute the average.
func (i *Integration) avgMetricLocked(cutoff time.Time) (float64, int) {
	var total float64
	var n int
	for _, m := range i.metrics {
		if m.Name == observe.MetricCLS || m.Name == observe.MetricLayoutShift {
			continue
		}
		if m.Timestamp.After(cutoff) {
			total += m.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return total / float64(n), n
}

// cacheFailureRateLocked returns the failure ratio of cache operations
// after the cutoff, and how many operations were considered.
func (i *Integration) cacheFailureRateLocked(cutoff time.Time) (float64, int) {
	var failed, n int
	for _, op := range i.cacheOps {
		if op.Timestamp.After(cutoff) {
			n++
			if !op.Success {
				failed++
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	return float64(failed) / float64(n), n
}

// trimLocked drops window entries older than the widest configured
// window so the rings stay bounded.
func (i *Integration) trimLocked(now time.Time) {
	keep := i.cfg.Correlation.ErrorWindow
	if i.cfg.Correlation.CacheWindow > keep {
		keep = i.cfg.Correlation.CacheWindow
	}
	cutoff := now.Add(-keep)

	trimMetrics := 0
	for trimMetrics < len(i.metrics) && !i.metrics[trimMetrics].Timestamp.After(cutoff) {
		trimMetrics++
	}
	i.metrics = i.metrics[trimMetrics:]

	trimErrs := 0
	for trimErrs < len(i.errs) && !i.errs[trimErrs].ts.After(cutoff) {
		trimErrs++
	}
	i.errs = i.errs[trimErrs:]

	trimOps := 0
	for trimOps < len(i.cacheOps) && !i.cacheOps[trimOps].Timestamp.After(cutoff) {
		trimOps++
	}
	i.cacheOps = i.cacheOps[trimOps:]
}

// enrich is the tracker enrichment hook: it attaches runtime, cache, and
// session state to the event and applies anonymization last.
func (i *Integration) enrich(ev *event.Event) {
	used, limit, serr := i.sampler.Sample()

	i.mu.Lock()
	if serr == nil && used > i.peakMemory {
		i.peakMemory = used
	}
	hits, misses := i.cacheHits, i.cacheMisses
	failRate, recentOps := i.cacheFailureRateLocked(i.now().Add(-i.cfg.Correlation.CacheWindow))
	pv, errCount := i.pageViews, i.errorCount
	start := i.startTime
	i.mu.Unlock()

	if ev.Context == nil {
		ev.Context = make(map[string]any)
	}
	ev.Context["environment"] = i.cfg.Environment
	ev.Context["version"] = i.cfg.Version
	ev.Context["host"] = i.host
	if serr == nil {
		ev.Context["memory"] = map[string]any{
			"used_bytes":  used,
			"limit_bytes": limit,
		}
	}
	if hits+misses > 0 || recentOps > 0 {
		hitRate := 0.0
		if hits+misses > 0 {
			hitRate = float64(hits) / float64(hits+misses)
		}
		ev.Context["cache"] = map[string]any{
			"hit_rate":     hitRate,
			"failure_rate": failRate,
		}
	}
	ev.Context["session"] = map[string]any{
		"page_views": pv,
		"errors":     errCount,
		"uptime_ms":  i.now().Sub(start).Milliseconds(),
	}

	if i.anon.Enabled() {
		i.anon.Event(ev)
	}
}

// Summary builds the current session aggregate.
func (i *Integration) Summary() Summary {
	now := i.now()
	i.mu.Lock()
	s := Summary{
		SessionID:       i.trk.SessionID(),
		StartTime:       i.startTime,
		Duration:        now.Sub(i.startTime),
		PageViews:       i.pageViews,
		Errors:          i.errorCount,
		CacheHits:       i.cacheHits,
		CacheMisses:     i.cacheMisses,
		PeakMemoryBytes: i.peakMemory,
		A11yViolations:  i.a11yTotal,
		A11yCritical:    i.a11yCritical,
		A11ySerious:     i.a11ySerious,
	}
	if i.respCount > 0 {
		s.AvgResponseMs = i.respTotalMs / float64(i.respCount)
	}
	i.mu.Unlock()

	if s.CacheHits+s.CacheMisses > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(s.CacheHits+s.CacheMisses)
	}
	s.HealthScore = healthScore(s)
	return s
}

// HealthScore computes the current session health, 0 to 100.
func (i *Integration) HealthScore() int {
	return i.Summary().HealthScore
}

// Recommendations derives advice from the current session aggregate.
func (i *Integration) Recommendations() []string {
	return recommendations(i.Summary())
}

// SweepOnce evaluates the optimization triggers and takes corrective
// cache actions. The trigger fires when a single pattern of the category
// has recurred past its threshold since the last corrective action;
// pattern counters themselves stay monotonic, the sweep only advances
// its own baselines.
func (i *Integration) SweepOnce(ctx context.Context) {
	snap := i.trk.Patterns().Snapshot()

	if key, recurred := i.exceededLocked(snap, event.CatPerformance, i.cfg.Optimize.PerformancePatterns); key != "" {
		if i.cache != nil {
			if err := i.cache.Optimize(ctx); err != nil {
				i.log.Warn("cache optimize failed", zap.Error(err))
			}
		}
		i.rebaseline(snap, event.CatPerformance)
		i.recordAction("cache_optimize", fmt.Sprintf("pattern %s recurred %d times", key, recurred))
	}

	if key, recurred := i.exceededLocked(snap, event.CatCache, i.cfg.Optimize.CachePatterns); key != "" {
		if i.cache != nil {
			if removed, err := i.cache.ClearByPattern(ctx, "*"); err != nil {
				i.log.Warn("cache clear failed", zap.Error(err))
			} else {
				i.log.Info("cache cleared", zap.Int("removed", removed))
			}
		}
		i.rebaseline(snap, event.CatCache)
		i.recordAction("cache_clear", fmt.Sprintf("pattern %s recurred %d times", key, recurred))
	}
}

// exceededLocked returns a pattern of the category whose occurrences
// since the last corrective action exceed the threshold, if any.
func (i *Integration) exceededLocked(snap map[string]event.Pattern, cat event.Category, threshold int) (string, int) {
	prefix := string(cat) + ":"
	i.mu.Lock()
	defer i.mu.Unlock()
	for key, p := range snap {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if recurred := p.Count - i.sweepBaseline[key]; recurred > threshold {
			return key, recurred
		}
	}
	return "", 0
}

// rebaseline records the category's current counts so the occurrences
// already corrected do not re-trigger the next sweep.
func (i *Integration) rebaseline(snap map[string]event.Pattern, cat event.Category) {
	prefix := string(cat) + ":"
	i.mu.Lock()
	defer i.mu.Unlock()
	for key, p := range snap {
		if strings.HasPrefix(key, prefix) {
			i.sweepBaseline[key] = p.Count
		}
	}
}

func (i *Integration) recordAction(kind, detail string) {
	i.mu.Lock()
	i.actions = append(i.actions, Action{Type: kind, Detail: detail, Timestamp: i.now()})
	i.mu.Unlock()
}

// FlushTelemetry delivers buffered metrics and analytics records.
// Delivery failures are logged and the batch dropped; unlike error
// events, telemetry is not re-queued.
func (i *Integration) FlushTelemetry(ctx context.Context) {
	if i.sender == nil {
		return
	}
	i.mu.Lock()
	metrics := i.outMetrics
	records := i.outAnalytics
	i.outMetrics = nil
	i.outAnalytics = nil
	i.mu.Unlock()

	sid := i.trk.SessionID()
	if len(metrics) > 0 {
		if err := i.sender.SendMetrics(ctx, metrics, sid); err != nil {
			i.log.Warn("metrics delivery failed", zap.Error(err))
		}
	}
	if len(records) > 0 {
		if err := i.sender.SendAnalytics(ctx, records, sid); err != nil {
			i.log.Warn("analytics delivery failed", zap.Error(err))
		}
	}
}

// Run starts the long-running loops: tracker flush, memory poll,
// accessibility scans, the optimization sweep, and telemetry delivery.
// Blocks until ctx is cancelled.
func (i *Integration) Run(ctx context.Context) error {
	i.trk.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return i.trk.Run(ctx) })
	g.Go(func() error { return i.memory.Run(ctx) })
	if i.a11y != nil {
		g.Go(func() error { return i.a11y.Run(ctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(i.cfg.Optimize.Sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				i.SweepOnce(ctx)
			}
		}
	})
	if i.sender != nil {
		g.Go(func() error {
			ticker := time.NewTicker(i.cfg.FlushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					i.FlushTelemetry(flushCtx)
					cancel()
					return nil
				case <-ticker.C:
					i.FlushTelemetry(ctx)
				}
			}
		})
	}
	return g.Wait()
}

// Close runs registered cleanups in reverse order, flushes pending
// telemetry, and closes the tracker.
func (i *Integration) Close() error {
	i.mu.Lock()
	cleanups := i.cleanups
	i.cleanups = nil
	i.mu.Unlock()
	for n := len(cleanups) - 1; n >= 0; n-- {
		cleanups[n]()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	i.FlushTelemetry(ctx)
	return i.trk.Close()
}
