// Package policy evaluates outbound calls against allow/deny rules, either
// remotely (Evaluator) or from a local YAML rule file (RuleSet, Engine).
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decision is a policy outcome.
type Decision string

const (
	Allow Decision = "Allow"
	Deny  Decision = "Deny"
)

// ParseDecision accepts any casing of allow/deny.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	default:
		return "", fmt.Errorf("unknown policy decision %q", s)
	}
}

// UnmarshalYAML lets rule files write allow/deny in lower case.
func (d *Decision) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Result is a decision plus the reasons behind it.
type Result struct {
	Decision Decision `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
	RuleID   string   `json:"rule_id,omitempty"`
}

// Allowed reports whether the result permits the call.
func (r Result) Allowed() bool {
	return r.Decision != Deny
}

// FirstReason returns the first reason, or a generic one when none was given.
func (r Result) FirstReason() string {
	if len(r.Reasons) > 0 && r.Reasons[0] != "" {
		return r.Reasons[0]
	}
	return "denied by policy"
}

// UnmarshalJSON validates the decision string.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Decision string   `json:"decision"`
		Reasons  []string `json:"reasons"`
		RuleID   string   `json:"rule_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := ParseDecision(raw.Decision)
	if err != nil {
		return err
	}
	*r = Result{Decision: d, Reasons: raw.Reasons, RuleID: raw.RuleID}
	return nil
}
