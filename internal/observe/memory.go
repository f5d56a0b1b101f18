package observe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/event"
	"github.com/ppiankov/pulsewatch/internal/tracker"
)

// MemorySampler reads current heap usage. Abstracted so tests (and
// non-runtime hosts) can supply fake readings.
type MemorySampler interface {
	Sample() (used, limit uint64, err error)
}

// RuntimeSampler samples the Go heap. Limit is the total memory obtained
// from the OS, so the percentage reflects pressure on what the process
// already holds.
type RuntimeSampler struct{}

// Sample reads runtime memory statistics.
func (RuntimeSampler) Sample() (uint64, uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc, ms.Sys, nil
}

// MemoryConfig holds the poll interval and alarm threshold.
type MemoryConfig struct {
	Percent  float64       // usage percentage that raises an event
	Interval time.Duration // poll interval
}

// Memory polls heap usage and raises high-severity memory_leak events
// when usage stays above the threshold.
type Memory struct {
	cfg     MemoryConfig
	sampler MemorySampler
	sink    Sink
	log     *zap.Logger
}

// NewMemory creates the watcher. A nil sampler uses the Go runtime.
func NewMemory(cfg MemoryConfig, sampler MemorySampler, sink Sink, log *zap.Logger) *Memory {
	if sampler == nil {
		sampler = RuntimeSampler{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Memory{cfg: cfg, sampler: sampler, sink: sink, log: log}
}

// Run polls until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check samples once and reports if usage is over the threshold.
func (m *Memory) Check() {
	used, limit, err := m.sampler.Sample()
	if err != nil {
		m.log.Warn("memory sample failed", zap.Error(err))
		return
	}
	if limit == 0 || m.cfg.Percent <= 0 {
		return
	}
	percent := float64(used) / float64(limit) * 100
	if percent <= m.cfg.Percent {
		return
	}
	m.sink.Track(tracker.Report{
		Severity:  event.SevHigh,
		Category:  event.CatMemoryLeak,
		Component: "memory-observer",
		Message:   fmt.Sprintf("heap usage %.1f%% over %.1f%% threshold", percent, m.cfg.Percent),
		Context: map[string]any{
			"used_bytes":  used,
			"limit_bytes": limit,
			"percent":     percent,
		},
	})
}
