package telemetry

import "time"

// Summary is a point-in-time aggregate of the session, the input to the
// health score and recommendations.
type Summary struct {
	SessionID       string        `json:"session_id"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	PageViews       int           `json:"page_views"`
	Errors          int           `json:"errors"`
	CacheHits       int           `json:"cache_hits"`
	CacheMisses     int           `json:"cache_misses"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	AvgResponseMs   float64       `json:"avg_response_ms"`
	PeakMemoryBytes uint64        `json:"peak_memory_bytes"`
	A11yViolations  int           `json:"a11y_violations"`
	A11yCritical    int           `json:"a11y_critical"`
	A11ySerious     int           `json:"a11y_serious"`
	HealthScore     int           `json:"health_score"`
}

const mb = 1 << 20

// healthScore starts at 100 and subtracts weighted penalties for slow
// responses, poor cache hit rate, memory pressure, accessibility
// violations, and error volume. Clamped to [0,100].
func healthScore(s Summary) int {
	score := 100

	switch {
	case s.AvgResponseMs > 5000:
		score -= 30
	case s.AvgResponseMs > 3000:
		score -= 15
	case s.AvgResponseMs > 2000:
		score -= 5
	}

	if s.CacheHits+s.CacheMisses > 0 {
		switch {
		case s.CacheHitRate < 0.5:
			score -= 20
		case s.CacheHitRate < 0.7:
			score -= 10
		}
	}

	switch {
	case s.PeakMemoryBytes > 300*mb:
		score -= 25
	case s.PeakMemoryBytes > 200*mb:
		score -= 15
	case s.PeakMemoryBytes > 150*mb:
		score -= 5
	}

	score -= 10 * s.A11yCritical
	score -= 5 * s.A11ySerious

	switch {
	case s.Errors > 50:
		score -= 30
	case s.Errors > 20:
		score -= 15
	case s.Errors > 10:
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// recommendations derives actionable advice from the same summary the
// health score is computed from.
func recommendations(s Summary) []string {
	var recs []string
	if s.AvgResponseMs > 3000 {
		recs = append(recs, "API responses are slow; review backend latency and payload sizes")
	}
	if s.CacheHits+s.CacheMisses > 0 && s.CacheHitRate < 0.7 {
		recs = append(recs, "cache hit rate is low; review cache key strategy and TTLs")
	}
	if s.PeakMemoryBytes > 200*mb {
		recs = append(recs, "memory usage is high; check for retained references and unbounded buffers")
	}
	if s.A11yCritical > 0 || s.A11ySerious > 0 {
		recs = append(recs, "accessibility violations detected; fix critical and serious issues first")
	}
	if s.Errors > 20 {
		recs = append(recs, "error volume is high; inspect the most frequent error patterns")
	}
	return recs
}
