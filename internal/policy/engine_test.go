package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func writeRules(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestEngineReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "default: allow\n")

	e, err := NewEngine(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if e.Evaluate("GET", "https://example.com").Decision != Allow {
		t.Fatal("expected allow before reload")
	}
	before := e.Rules().Hash()

	writeRules(t, path, "default: deny\n")
	if err := e.Reload(); err != nil {
		t.Fatal(err)
	}
	if e.Evaluate("GET", "https://example.com").Decision != Deny {
		t.Error("expected deny after reload")
	}
	if e.Rules().Hash() == before {
		t.Error("hash did not change on reload")
	}
}

func TestEvaluateWithUsesHeldRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "default: allow\n")

	e, err := NewEngine(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	held := e.Rules()

	writeRules(t, path, "default: deny\n")
	if err := e.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := e.EvaluateWith(held, "GET", "https://example.com").Decision; got != Allow {
		t.Errorf("decision with held rules = %s, want Allow", got)
	}
	if got := e.Evaluate("GET", "https://example.com").Decision; got != Deny {
		t.Errorf("decision with current rules = %s, want Deny", got)
	}
	if held.Hash() == e.Rules().Hash() {
		t.Error("held and reloaded rules share a hash")
	}
}

func TestEngineReloadKeepsRulesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "default: deny\n")

	e, err := NewEngine(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	writeRules(t, path, "rules: [\n")
	if err := e.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if e.Evaluate("GET", "https://example.com").Decision != Deny {
		t.Error("previous rules should stay active")
	}
}

func TestNewReloaderRequiresFile(t *testing.T) {
	if _, err := NewReloader(NewEngineFromRules(DefaultRules())); err == nil {
		t.Error("expected error without a rule file")
	}
}

func TestReloaderPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "default: allow\n")

	e, err := NewEngine(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReloader(e)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	writeRules(t, path, "default: deny\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.Evaluate("GET", "https://example.com").Decision == Deny {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("rules were not reloaded")
}

func TestEngineRateLimit(t *testing.T) {
	rs, err := ParseRules([]byte(`
rules:
  - id: openai-budget
    url: "api\\.openai\\.com"
    decision: allow
    reason: within budget
    rate_limit:
      max_requests: 2
      window: 1m
`))
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngineFromRules(rs)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	url := "https://api.openai.com/v1/chat/completions"
	for i := 0; i < 2; i++ {
		if res := e.Evaluate("POST", url); res.Decision != Allow {
			t.Fatalf("call %d = %+v, want allow", i+1, res)
		}
	}
	res := e.Evaluate("POST", url)
	if res.Decision != Deny || res.RuleID != "openai-budget" {
		t.Fatalf("third call = %+v, want rate-limited deny", res)
	}
	if !strings.Contains(res.FirstReason(), "rate limit exceeded") {
		t.Errorf("reason = %q", res.FirstReason())
	}

	now = now.Add(time.Minute)
	if res := e.Evaluate("POST", url); res.Decision != Allow {
		t.Errorf("after window = %+v, want allow", res)
	}

	if res := e.Evaluate("GET", "https://example.com"); res.Decision != Allow || res.RuleID != "" {
		t.Errorf("unmatched = %+v", res)
	}
}
