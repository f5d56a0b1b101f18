// Package config holds the pipeline configuration. Every empirically
// chosen threshold (correlation windows, retry cap, alert rates) is a
// field here rather than a constant in the components.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/pulsewatch/internal/alert"
)

// Endpoints are the backend reporting URLs.
type Endpoints struct {
	Errors      string `yaml:"errors"`
	Analytics   string `yaml:"analytics"`
	Performance string `yaml:"performance"`
}

// Vitals holds the web-vitals thresholds. Measured values above a
// threshold raise a synthetic medium-severity event.
type Vitals struct {
	LCPMs float64 `yaml:"lcp_ms"`
	FIDMs float64 `yaml:"fid_ms"`
	CLS   float64 `yaml:"cls"`
}

// Observers holds the passive-watcher thresholds.
type Observers struct {
	LongTaskMs       float64       `yaml:"long_task_ms"`
	LayoutShiftScore float64       `yaml:"layout_shift_score"`
	SlowResourceMs   float64       `yaml:"slow_resource_ms"`
	MemoryPercent    float64       `yaml:"memory_percent"`
	MemoryInterval   time.Duration `yaml:"memory_interval"`
	A11yInterval     time.Duration `yaml:"a11y_interval"`
	A11yDebounce     time.Duration `yaml:"a11y_debounce"`
}

// Alerts holds the alert evaluation thresholds and webhook destinations.
type Alerts struct {
	RatePerMinute int                   `yaml:"rate_per_minute"`
	RepeatCount   int                   `yaml:"repeat_count"`
	Webhooks      []alert.WebhookConfig `yaml:"webhooks"`
}

// Correlation holds the telemetry correlation windows and thresholds.
type Correlation struct {
	SlowMetricMs     float64       `yaml:"slow_metric_ms"`     // metric value that triggers error correlation
	DegradedAvgMs    float64       `yaml:"degraded_avg_ms"`    // average response time considered degraded
	CacheFailureRate float64       `yaml:"cache_failure_rate"` // cache failure ratio considered degraded
	ErrorWindow      time.Duration `yaml:"error_window"`
	CacheWindow      time.Duration `yaml:"cache_window"`
}

// Optimize holds the corrective-action trigger counts.
type Optimize struct {
	PerformancePatterns int           `yaml:"performance_patterns"`
	CachePatterns       int           `yaml:"cache_patterns"`
	Sweep               time.Duration `yaml:"sweep"`
}

// Privacy holds the anonymization flags.
type Privacy struct {
	Anonymize         bool `yaml:"anonymize"`
	RespectDoNotTrack bool `yaml:"respect_do_not_track"`
	LogToConsole      bool `yaml:"log_to_console"`
}

// Config is the full pipeline configuration.
type Config struct {
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	Endpoints Endpoints `yaml:"endpoints"`

	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryCap      int           `yaml:"retry_cap"`
	SampleRate    float64       `yaml:"sample_rate"`
	SlowCacheOpMs float64       `yaml:"slow_cache_op_ms"`

	Vitals      Vitals      `yaml:"vitals"`
	Observers   Observers   `yaml:"observers"`
	Alerts      Alerts      `yaml:"alerts"`
	Correlation Correlation `yaml:"correlation"`
	Optimize    Optimize    `yaml:"optimize"`
	Privacy     Privacy     `yaml:"privacy"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Version:     "dev",
		Endpoints: Endpoints{
			Errors:      "/api/v1/telemetry/errors",
			Analytics:   "/api/v1/telemetry/events",
			Performance: "/api/v1/telemetry/performance",
		},
		BatchSize:     10,
		FlushInterval: 30 * time.Second,
		MaxRetries:    3,
		RetryCap:      50,
		SampleRate:    1.0,
		SlowCacheOpMs: 100,
		Vitals: Vitals{
			LCPMs: 2500,
			FIDMs: 100,
			CLS:   0.1,
		},
		Observers: Observers{
			LongTaskMs:       50,
			LayoutShiftScore: 0.1,
			SlowResourceMs:   100,
			MemoryPercent:    85,
			MemoryInterval:   60 * time.Second,
			A11yInterval:     60 * time.Second,
			A11yDebounce:     2 * time.Second,
		},
		Alerts: Alerts{
			RatePerMinute: 5,
			RepeatCount:   10,
		},
		Correlation: Correlation{
			SlowMetricMs:     2000,
			DegradedAvgMs:    3000,
			CacheFailureRate: 0.2,
			ErrorWindow:      60 * time.Second,
			CacheWindow:      5 * time.Minute,
		},
		Optimize: Optimize{
			PerformancePatterns: 5,
			CachePatterns:       3,
			Sweep:               60 * time.Second,
		},
		Privacy: Privacy{
			Anonymize:         true,
			RespectDoNotTrack: true,
			LogToConsole:      false,
		},
	}
}

// Load reads configuration from a YAML file. Missing file returns
// defaults. Invalid YAML returns an error. YAML overwrites only the
// fields it specifies.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.RetryCap < 0 {
		return fmt.Errorf("retry_cap must be non-negative, got %d", c.RetryCap)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be in [0,1], got %g", c.SampleRate)
	}
	if c.Correlation.CacheFailureRate < 0 || c.Correlation.CacheFailureRate > 1 {
		return fmt.Errorf("cache_failure_rate must be in [0,1], got %g", c.Correlation.CacheFailureRate)
	}
	return nil
}
