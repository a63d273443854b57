// Package policydiff compares two rule files.
package policydiff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/callwatch/internal/policy"
)

// Change is a scalar field change.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// RuleChange is a rule addition, removal, modification or reordering.
type RuleChange struct {
	Type   string   `json:"type"` // "added", "removed", "changed", "moved"
	Rule   string   `json:"rule"`
	Fields []string `json:"fields,omitempty"`
}

// DiffResult holds the comparison of two rule sets.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two rule sets. Rules are paired by ID.
func Diff(old, new *policy.RuleSet) *DiffResult {
	r := &DiffResult{}

	if old.Default != new.Default {
		r.Changes = append(r.Changes, Change{Field: "default", Old: string(old.Default), New: string(new.Default)})
	}
	if len(old.Alerts) != len(new.Alerts) {
		r.Changes = append(r.Changes, Change{
			Field: "alerts",
			Old:   fmt.Sprintf("%d webhooks", len(old.Alerts)),
			New:   fmt.Sprintf("%d webhooks", len(new.Alerts)),
		})
	}

	diffRules(r, old.Rules, new.Rules)

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func diffRules(r *DiffResult, old, new []policy.Rule) {
	oldByID := make(map[string]policy.Rule, len(old))
	for _, rule := range old {
		oldByID[rule.ID] = rule
	}
	newIDs := make(map[string]bool, len(new))
	for _, rule := range new {
		newIDs[rule.ID] = true
	}

	for _, rule := range old {
		if !newIDs[rule.ID] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Rule: describe(rule)})
		}
	}
	for _, rule := range new {
		prev, ok := oldByID[rule.ID]
		if !ok {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Rule: describe(rule)})
			continue
		}
		if fields := changedFields(prev, rule); len(fields) > 0 {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "changed", Rule: describe(rule), Fields: fields})
		}
	}

	// First match wins, so the relative order of surviving rules matters.
	var oldOrder, newOrder []string
	for _, rule := range old {
		if newIDs[rule.ID] {
			oldOrder = append(oldOrder, rule.ID)
		}
	}
	for _, rule := range new {
		if _, ok := oldByID[rule.ID]; ok {
			newOrder = append(newOrder, rule.ID)
		}
	}
	if !slices.Equal(oldOrder, newOrder) {
		r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "moved", Rule: strings.Join(newOrder, ", ")})
	}
}

func changedFields(a, b policy.Rule) []string {
	var fields []string
	if a.URL != b.URL {
		fields = append(fields, "url")
	}
	if !slices.Equal(a.Methods, b.Methods) {
		fields = append(fields, "methods")
	}
	if a.Decision != b.Decision {
		fields = append(fields, "decision")
	}
	if a.Reason != b.Reason {
		fields = append(fields, "reason")
	}
	if limitString(a) != limitString(b) {
		fields = append(fields, "rate_limit")
	}
	return fields
}

func limitString(r policy.Rule) string {
	if !r.RateLimit.Enabled() {
		return ""
	}
	return fmt.Sprintf("%d/%s", r.RateLimit.MaxRequests, r.RateLimit.Window)
}

// describe renders a rule as "id: decision METHODS url".
func describe(r policy.Rule) string {
	methods := "*"
	if len(r.Methods) > 0 {
		methods = strings.Join(r.Methods, ",")
	}
	url := r.URL
	if url == "" {
		url = "*"
	}
	s := fmt.Sprintf("%s: %s %s %s", r.ID, r.Decision, methods, url)
	if l := limitString(r); l != "" {
		s += " limit " + l
	}
	return s
}
