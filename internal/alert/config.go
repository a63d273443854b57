// Package alert posts policy denials to webhook endpoints.
package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // decisions or types: ["Deny", "blocked"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string `json:"timestamp"`
	AgentID    string `json:"agent_id,omitempty"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
	RuleID     string `json:"rule_id,omitempty"`
	PolicyHash string `json:"policy_hash"`
	Type       string `json:"type,omitempty"`
}
