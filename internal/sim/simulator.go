// Package sim replays recorded policy decisions against a candidate rule
// set and reports which calls would be decided differently.
package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/callwatch/internal/audit"
	"github.com/ppiankov/callwatch/internal/policy"
)

// Simulate reads the decision log at logPath and evaluates each recorded
// call against rules. Rate limits are not replayed; only rule matching is.
// Unparseable lines are skipped.
func Simulate(logPath string, rules *policy.RuleSet) (*SimResult, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &SimResult{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var entry audit.Entry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			result.Skipped++
			continue
		}
		result.TotalCalls++

		res := rules.Evaluate(entry.Call.Method, entry.Call.URL)
		if string(res.Decision) == entry.Decision {
			continue
		}

		result.Changes = append(result.Changes, DiffEntry{
			Timestamp:   entry.Timestamp,
			Method:      entry.Call.Method,
			URL:         entry.Call.URL,
			OldDecision: entry.Decision,
			NewDecision: string(res.Decision),
			OldRuleID:   entry.RuleID,
			NewRuleID:   res.RuleID,
			NewReason:   res.FirstReason(),
		})
		switch res.Decision {
		case policy.Deny:
			result.NewlyBlocked++
		case policy.Allow:
			result.NewlyAllowed++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	result.ChangedCalls = len(result.Changes)
	return result, nil
}
