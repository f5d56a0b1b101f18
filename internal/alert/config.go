package alert

// WebhookConfig defines a webhook alert destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // alert types and/or severities
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints when the tracker raises
// an alert.
type Event struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // "critical_error", "high_error_rate", "repeated_error"
	Severity  string `json:"severity"`
	Category  string `json:"category"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Count     int    `json:"count,omitempty"`
}
