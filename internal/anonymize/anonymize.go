// Package anonymize redacts user-identifying data from error events
// before delivery. Redaction is one-way: unlike a tokenizing redactor
// there is no reverse map, because reports never come back.
package anonymize

import (
	"net/url"
	"regexp"
	"strings"
)

// Compiled patterns for sensitive data detection.
var (
	// Email addresses.
	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

	// Numeric runs of 4+ digits: voter IDs, phone fragments, booth numbers.
	digitRunRe = regexp.MustCompile(`\d{4,}`)

	// Any digits, for ward-like fields where even short numbers identify.
	digitsRe = regexp.MustCompile(`\d+`)
)

// identifierKeys are context keys stripped outright.
var identifierKeys = map[string]bool{
	"user_id":    true,
	"userid":     true,
	"username":   true,
	"session_id": true,
	"sessionid":  true,
	"email":      true,
	"phone":      true,
	"voter_id":   true,
	"token":      true,
}

// Anonymizer applies privacy redaction. The zero value is disabled.
type Anonymizer struct {
	enabled bool
}

// New creates an Anonymizer. When enabled is false every method returns
// its input unchanged.
func New(enabled bool) *Anonymizer {
	return &Anonymizer{enabled: enabled}
}

// Enabled reports whether redaction is active.
func (a *Anonymizer) Enabled() bool {
	return a != nil && a.enabled
}

// Message redacts email-shaped substrings and 4+ digit numeric runs from
// free text.
func (a *Anonymizer) Message(s string) string {
	if !a.Enabled() || s == "" {
		return s
	}
	s = emailRe.ReplaceAllString(s, "[email]")
	s = digitRunRe.ReplaceAllString(s, "[number]")
	return s
}

// URL reduces a URL to scheme, host, and path, dropping query strings,
// fragments, and userinfo. Unparseable input is redacted entirely rather
// than passed through.
func (a *Anonymizer) URL(raw string) string {
	if !a.Enabled() || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[url]"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// Context strips identifier keys and redacts ward-like and URL-like
// values. Non-string values for surviving keys are kept as-is (counters
// and flags carry no identity).
func (a *Anonymizer) Context(ctx map[string]any) map[string]any {
	if !a.Enabled() || ctx == nil {
		return ctx
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		lower := strings.ToLower(k)
		if identifierKeys[lower] {
			continue
		}
		s, isString := v.(string)
		switch {
		case isString && strings.Contains(lower, "ward"):
			out[k] = digitsRe.ReplaceAllString(s, "[ward]")
		case isString && (strings.Contains(lower, "url") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")):
			out[k] = a.URL(s)
		case isString:
			out[k] = a.Message(s)
		default:
			out[k] = v
		}
	}
	return out
}
