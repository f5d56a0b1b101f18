// Package classify maps raw failure signals onto (severity, category)
// pairs. Classification is a best-effort heuristic over the stringified
// failure, not a guarantee: callers needing precise classification should
// pass an explicit severity/category instead of relying on inference.
package classify

import (
	"strings"

	"github.com/ppiankov/pulsewatch/internal/event"
)

// rule is one classification entry. Rules are evaluated in order; the
// first match wins.
type rule struct {
	name     string
	match    func(text string) bool
	severity event.Severity
	category event.Category
}

// containsAny returns a predicate matching any of the given substrings
// (case-insensitive; inputs must already be lowercase).
func containsAny(keywords ...string) func(string) bool {
	return func(text string) bool {
		for _, k := range keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
}

// rules is the ordered classification table. Security outranks network
// so that "permission denied fetching X" classifies as security.
var rules = []rule{
	{"security", containsAny("permission", "security", "unauthorized", "forbidden"), event.SevCritical, event.CatSecurity},
	{"memory", containsAny("out of memory", "heap", "memory", "stack overflow"), event.SevHigh, event.CatMemoryLeak},
	{"network", containsAny("network", "fetch", "timeout", "econnrefused"), event.SevHigh, event.CatAPI},
	{"sse", containsAny("sse", "eventsource", "event stream"), event.SevHigh, event.CatSSEStreaming},
	{"strategist", containsAny("strategist"), event.SevMedium, event.CatStrategist},
	{"map", containsAny("leaflet", "map marker", "tile", "geojson"), event.SevMedium, event.CatMapRendering},
	{"chart", containsAny("chart", "canvas", "dataset"), event.SevMedium, event.CatVisualization},
	{"electoral", containsAny("ward", "electoral", "voter"), event.SevMedium, event.CatElectoralData},
	// "route" alone would false-match "goroutine" in Go stack traces.
	{"routing", containsAny("router", "navigation", "route change"), event.SevMedium, event.CatRouting},
	{"state", containsAny("reducer", "store", "state update"), event.SevMedium, event.CatStateManagement},
	{"cache", containsAny("cache"), event.SevMedium, event.CatCache},
}

// Infer classifies a raw failure text. Pure and deterministic: the same
// text always yields the same pair. Unmatched text falls back to
// (medium, ui_component).
func Infer(text string) (event.Severity, event.Category) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.match(lower) {
			return r.severity, r.category
		}
	}
	return event.SevMedium, event.CatUIComponent
}

// HTTPStatus classifies an HTTP response status. Server errors and auth
// failures are high; other client errors medium; everything else low.
func HTTPStatus(status int) (event.Severity, event.Category) {
	switch {
	case status == 401 || status == 403:
		return event.SevHigh, event.CatAuthentication
	case status >= 500:
		return event.SevHigh, event.CatAPI
	case status >= 400:
		return event.SevMedium, event.CatAPI
	default:
		return event.SevLow, event.CatAPI
	}
}

// Impact maps an accessibility violation impact level onto a severity.
// Unknown impact levels degrade to info rather than guessing upward.
func Impact(impact string) (event.Severity, event.Category) {
	var sev event.Severity
	switch strings.ToLower(impact) {
	case "critical":
		sev = event.SevHigh
	case "serious":
		sev = event.SevMedium
	case "moderate":
		sev = event.SevLow
	default:
		sev = event.SevInfo
	}
	return sev, event.CatAccessibility
}
