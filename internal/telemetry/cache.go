package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// Cache is the host application's cache, injected so its behavior can be
// instrumented and corrected.
type Cache interface {
	Get(ctx context.Context, key string) (value any, ok bool, err error)
	Set(ctx context.Context, key string, value any) error
	Optimize(ctx context.Context) error
	ClearByPattern(ctx context.Context, pattern string) (removed int, err error)
}

// InstrumentedCache times every operation, feeds the result into the
// telemetry integration, and raises events for failures and slow ops.
type InstrumentedCache struct {
	inner Cache
	integ *Integration
}

// Get reads through to the wrapped cache.
func (c *InstrumentedCache) Get(ctx context.Context, key string) (any, bool, error) {
	start := c.integ.now()
	value, ok, err := c.inner.Get(ctx, key)
	c.record("get", key, err, c.integ.now().Sub(start), ok)
	return value, ok, err
}

// Set writes through to the wrapped cache.
func (c *InstrumentedCache) Set(ctx context.Context, key string, value any) error {
	start := c.integ.now()
	err := c.inner.Set(ctx, key, value)
	c.record("set", key, err, c.integ.now().Sub(start), err == nil)
	return err
}

// Optimize passes through. Corrective actions are not themselves timed.
func (c *InstrumentedCache) Optimize(ctx context.Context) error {
	return c.inner.Optimize(ctx)
}

// ClearByPattern passes through.
func (c *InstrumentedCache) ClearByPattern(ctx context.Context, pattern string) (int, error) {
	return c.inner.ClearByPattern(ctx, pattern)
}

func (c *InstrumentedCache) record(operation, key string, err error, d time.Duration, hit bool) {
	op := event.CacheOp{
		Operation: operation,
		Key:       key,
		Success:   err == nil,
		Duration:  d,
		Timestamp: c.integ.now(),
	}
	if err != nil {
		op.Error = err.Error()
	}
	c.integ.recordCacheOp(op, hit)

	slow := c.integ.cfg.SlowCacheOpMs
	switch {
	case err != nil:
		c.integ.trk.Track(tracker.Report{
			Severity:  event.SevMedium,
			Category:  event.CatCache,
			Component: "cache",
			Message:   fmt.Sprintf("cache %s failed: %s", operation, key),
			Err:       err,
			Context:   map[string]any{"operation": operation, "key": key},
		})
	case slow > 0 && float64(d.Milliseconds()) > slow:
		c.integ.trk.Track(tracker.Report{
			Severity:  event.SevLow,
			Category:  event.CatCache,
			Component: "cache",
			Message:   fmt.Sprintf("slow cache %s: %s (%dms)", operation, key, d.Milliseconds()),
			Context:   map[string]any{"operation": operation, "key": key, "duration_ms": d.Milliseconds()},
		})
	}
}
