package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callwatch/internal/alert"
	"github.com/ppiankov/callwatch/internal/ratelimit"
)

// Rule matches calls by URL regex and method.
// An empty URL or method list matches everything. An allow rule with a
// RateLimit denies calls beyond the limit (enforced by Engine).
type Rule struct {
	ID        string           `yaml:"id"`
	URL       string           `yaml:"url"`
	Methods   []string         `yaml:"methods"`
	Decision  Decision         `yaml:"decision"`
	Reason    string           `yaml:"reason"`
	RateLimit *ratelimit.Limit `yaml:"rate_limit"`

	re *regexp.Regexp
}

// RuleSet is an ordered list of rules; the first match decides.
type RuleSet struct {
	Default Decision            `yaml:"default"`
	Rules   []Rule              `yaml:"rules"`
	Alerts  []alert.AlertConfig `yaml:"alerts"`

	hash string
}

// DefaultRules allows everything.
func DefaultRules() *RuleSet {
	rs, _ := ParseRules(nil)
	return rs
}

// ParseRules parses and compiles a YAML rule file.
func ParseRules(data []byte) (*RuleSet, error) {
	rs := &RuleSet{Default: Allow}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("failed to parse policy rules: %w", err)
	}
	if rs.Default == "" {
		rs.Default = Allow
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if r.Decision == "" {
			return nil, fmt.Errorf("rule %s: decision is required", r.ID)
		}
		if r.URL != "" {
			re, err := regexp.Compile(r.URL)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid url pattern: %w", r.ID, err)
			}
			r.re = re
		}
	}
	h := sha256.Sum256(data)
	rs.hash = "sha256:" + hex.EncodeToString(h[:])
	return rs, nil
}

// LoadRules reads a rule file. An empty path or a missing file yields
// DefaultRules.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("failed to read policy rules: %w", err)
	}
	return ParseRules(data)
}

// Hash is the SHA-256 of the source bytes.
func (rs *RuleSet) Hash() string { return rs.hash }

// Match returns the first rule matching method and url.
func (rs *RuleSet) Match(method, url string) (*Rule, bool) {
	for i := range rs.Rules {
		if rs.Rules[i].matches(method, url) {
			return &rs.Rules[i], true
		}
	}
	return nil, false
}

// Evaluate returns the decision of the first rule matching method and url.
// Rate limits are not applied here.
func (rs *RuleSet) Evaluate(method, url string) Result {
	if r, ok := rs.Match(method, url); ok {
		return r.result()
	}
	if rs.Default == Deny {
		return Result{Decision: Deny, Reasons: []string{"no rule matched; default is deny"}}
	}
	return Result{Decision: Allow}
}

func (r *Rule) result() Result {
	reason := r.Reason
	if reason == "" {
		reason = "matched rule " + r.ID
	}
	return Result{Decision: r.Decision, Reasons: []string{reason}, RuleID: r.ID}
}

func (r *Rule) matches(method, url string) bool {
	if r.re != nil && !r.re.MatchString(url) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// DefaultRulesYAML is a commented starter rule file.
func DefaultRulesYAML() string {
	return `# callwatch policy rules.
# Rules are checked in order; the first rule whose url regex and method
# list both match decides. Calls matching no rule get the default.
default: allow

rules:
  - id: no-payments
    url: "^https://api\\.stripe\\.com/"
    methods: [POST, DELETE]
    decision: deny
    reason: payment calls require human approval

  - id: no-metadata-endpoint
    url: "^http://169\\.254\\.169\\.254/"
    decision: deny
    reason: cloud metadata access is not allowed

# Webhooks notified when a call is denied.
# alerts:
#   - url: https://hooks.slack.com/services/XXX
#     format: slack
#     events: [deny]
`
}
