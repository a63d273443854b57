// Package audit writes policy decisions to a hash-chained JSONL log.
package audit

// Call is the evaluated call recorded in each entry.
type Call struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Entry is one line in the audit log. Fields are structs rather than maps
// so json.Marshal output, and therefore each line's hash, is deterministic.
type Entry struct {
	Timestamp  string `json:"ts"`
	RequestID  string `json:"request_id,omitempty"`
	Call       Call   `json:"call"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}
