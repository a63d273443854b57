package policy

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRules = `
default: allow
rules:
  - id: no-payments
    url: "^https://api\\.stripe\\.com/"
    methods: [POST]
    decision: deny
    reason: payments are not allowed
  - url: "internal\\.corp"
    decision: deny
  - id: stripe-read
    url: "stripe\\.com"
    decision: allow
alerts:
  - url: https://hooks.example.com/x
    format: slack
    events: [deny]
`

func TestParseRules(t *testing.T) {
	rs, err := ParseRules([]byte(sampleRules))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rs.Rules) != 3 {
		t.Fatalf("rules = %d, want 3", len(rs.Rules))
	}
	if rs.Rules[1].ID != "rule-2" {
		t.Errorf("default id = %q, want rule-2", rs.Rules[1].ID)
	}
	if len(rs.Alerts) != 1 || rs.Alerts[0].Format != "slack" {
		t.Errorf("alerts = %+v", rs.Alerts)
	}
	if rs.Hash() == "" {
		t.Error("hash is empty")
	}
}

func TestRuleSetEvaluate(t *testing.T) {
	rs, err := ParseRules([]byte(sampleRules))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method, url string
		want        Decision
		rule        string
	}{
		{"POST", "https://api.stripe.com/v1/charges", Deny, "no-payments"},
		{"post", "https://api.stripe.com/v1/charges", Deny, "no-payments"},
		{"GET", "https://api.stripe.com/v1/charges", Allow, "stripe-read"},
		{"GET", "http://wiki.internal.corp/page", Deny, "rule-2"},
		{"GET", "https://example.com", Allow, ""},
	}
	for _, tt := range tests {
		res := rs.Evaluate(tt.method, tt.url)
		if res.Decision != tt.want || res.RuleID != tt.rule {
			t.Errorf("Evaluate(%s %s) = %+v, want %s via %q", tt.method, tt.url, res, tt.want, tt.rule)
		}
	}

	if res := rs.Evaluate("GET", "http://wiki.internal.corp"); res.FirstReason() != "matched rule rule-2" {
		t.Errorf("generated reason = %q", res.FirstReason())
	}
	if res := rs.Evaluate("GET", "https://example.com"); len(res.Reasons) != 0 {
		t.Errorf("default allow should carry no reasons, got %v", res.Reasons)
	}
}

func TestDefaultDeny(t *testing.T) {
	rs, err := ParseRules([]byte("default: deny\n"))
	if err != nil {
		t.Fatal(err)
	}
	res := rs.Evaluate("GET", "https://example.com")
	if res.Decision != Deny || len(res.Reasons) == 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestParseRulesErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing decision", "rules:\n  - url: x\n"},
		{"bad decision", "rules:\n  - url: x\n    decision: maybe\n"},
		{"bad regex", "rules:\n  - url: \"(\"\n    decision: deny\n"},
		{"bad yaml", "rules: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	rs, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rs.Evaluate("DELETE", "https://anything").Decision != Allow {
		t.Error("missing file should allow everything")
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o600); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 3 {
		t.Errorf("rules = %d", len(rs.Rules))
	}
}

func TestDefaultRulesYAMLParses(t *testing.T) {
	rs, err := ParseRules([]byte(DefaultRulesYAML()))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if rs.Evaluate("POST", "https://api.stripe.com/v1/charges").Decision != Deny {
		t.Error("starter rules should deny payments")
	}
	if rs.Evaluate("GET", "https://example.com").Decision != Allow {
		t.Error("starter rules should allow by default")
	}
}
