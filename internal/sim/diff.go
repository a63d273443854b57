package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry is one recorded call whose decision would change.
type DiffEntry struct {
	Timestamp   string `json:"ts"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	OldRuleID   string `json:"old_rule_id,omitempty"`
	NewRuleID   string `json:"new_rule_id,omitempty"`
	NewReason   string `json:"new_reason,omitempty"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	RulesPath    string      `json:"rules_path"`
	TotalCalls   int         `json:"total_calls"`
	ChangedCalls int         `json:"changed_calls"`
	NewlyBlocked int         `json:"newly_blocked"`
	NewlyAllowed int         `json:"newly_allowed"`
	Skipped      int         `json:"skipped,omitempty"`
	Changes      []DiffEntry `json:"changes"`
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulating %s against %d recorded calls...\n", r.RulesPath, r.TotalCalls)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		url := d.URL
		if len(url) > 48 {
			url = url[:45] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  %-6s %-48s %s -> %s", d.Method, url, d.OldDecision, d.NewDecision)
		if d.NewRuleID != "" {
			fmt.Fprintf(&b, " (%s)", d.NewRuleID)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%d of %d calls change: %d newly blocked, %d newly allowed\n",
		r.ChangedCalls, r.TotalCalls, r.NewlyBlocked, r.NewlyAllowed)
	return b.String()
}

// FormatJSON renders the simulation result as indented JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
