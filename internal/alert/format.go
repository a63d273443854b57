package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event AlertEvent) ([]byte, error) {
	agent := event.AgentID
	if agent == "" {
		agent = "unregistered"
	}
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("callwatch: %s %s", event.Decision, event.Method),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*URL:* %s", event.URL)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Agent:* %s", agent)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", event.RuleID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "warning"
	if event.Type == "blocked" {
		severity = "error"
	}
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("callwatch %s: %s %s", event.Decision, event.Method, event.URL),
			"severity": severity,
			"source":   "callwatch",
			"custom_details": map[string]any{
				"agent_id":    event.AgentID,
				"rule_id":     event.RuleID,
				"reason":      event.Reason,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}
