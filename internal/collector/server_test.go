package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/callwatch/internal/audit"
	"github.com/ppiankov/callwatch/internal/dispatch"
	"github.com/ppiankov/callwatch/internal/event"
	"github.com/ppiankov/callwatch/internal/policy"
	"github.com/ppiankov/callwatch/internal/store"
)

const testKey = "cw_collector_test"

func newTestCollector(t *testing.T, cfg Config, rules string) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rs, err := policy.ParseRules([]byte(rules))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	srv := NewServer(cfg, st, policy.NewEngineFromRules(rs), zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func post(t *testing.T, url, key string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	ts, _ := newTestCollector(t, Config{}, "")
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	ts, _ := newTestCollector(t, Config{APIKey: testKey}, "")
	body := map[string]any{"name": "bot"}

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong prefix", "sk_live_123", http.StatusUnauthorized},
		{"prefix only", "cw_", http.StatusUnauthorized},
		{"other key", "cw_other", http.StatusUnauthorized},
		{"configured key", testKey, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/api/v1/agents/register", tt.key, body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRegisterAndBatchWithClient(t *testing.T) {
	ts, st := newTestCollector(t, Config{}, "")

	c, err := dispatch.New(dispatch.Config{
		APIKey:        testKey,
		BaseURL:       ts.URL,
		FlushInterval: time.Hour,
		BatchSize:     4,
	}, dispatch.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	agentID, err := c.RegisterAgent(ctx, "support-bot", "custom")
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	agent, err := st.GetAgent(ctx, agentID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if agent.Name != "support-bot" || agent.Metadata["runtime"] != "go" {
		t.Errorf("agent = %+v", agent)
	}

	for i := 0; i < 10; i++ {
		if err := c.Track(event.Must(event.ToolCall, fmt.Sprintf("step.%d", i), nil, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if c.QueueSize() != 0 {
		t.Fatalf("queue not drained: %d", c.QueueSize())
	}

	n, err := st.CountEvents(ctx)
	if err != nil || n != 10 {
		t.Fatalf("stored events = %d, %v", n, err)
	}
	recs, err := st.ListEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range recs {
		if r.Name != fmt.Sprintf("step.%d", i) {
			t.Errorf("recs[%d] = %s, out of order", i, r.Name)
		}
		if r.AgentID != agentID {
			t.Errorf("recs[%d] agent = %q", i, r.AgentID)
		}
	}
}

func TestBatchRejectsInvalidEvents(t *testing.T) {
	ts, _ := newTestCollector(t, Config{}, "")
	resp := post(t, ts.URL+"/api/v1/events/batch", testKey, map[string]any{
		"events": []map[string]any{{"id": "1", "type": "bogus", "name": "x", "timestamp": "2026-01-01T00:00:00.000Z"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListEvents(t *testing.T) {
	ts, st := newTestCollector(t, Config{}, "")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		st.InsertEvents(ctx, []event.Event{event.Must(event.Decision, "d", nil, nil)})
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/events?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Total  int            `json:"total"`
		Events []store.Record `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 || len(body.Events) != 2 {
		t.Errorf("total = %d, events = %d", body.Total, len(body.Events))
	}
}

func TestPolicyEvaluateAndAlert(t *testing.T) {
	var alerts atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	rules := fmt.Sprintf(`
rules:
  - id: no-payments
    url: "stripe\\.com"
    decision: deny
    reason: payments are not allowed
alerts:
  - url: %s
    events: [deny]
`, hook.URL)
	ts, _ := newTestCollector(t, Config{}, rules)

	ev := policy.NewEvaluator(ts.URL+"/api/v1/policy/evaluate", nil, testKey)
	ctx := context.Background()

	res, err := ev.Evaluate(ctx, map[string]string{"method": "POST", "url": "https://api.stripe.com/v1/charges"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.Deny || res.FirstReason() != "payments are not allowed" {
		t.Errorf("result = %+v", res)
	}

	res, err = ev.Evaluate(ctx, map[string]string{"url": "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != policy.Allow {
		t.Errorf("result = %+v", res)
	}

	deadline := time.Now().Add(2 * time.Second)
	for alerts.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if alerts.Load() != 1 {
		t.Errorf("alerts = %d, want 1", alerts.Load())
	}
}

func TestEvaluateWritesAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	log, err := audit.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	rules := `
rules:
  - id: no-metadata
    url: "169\\.254\\.169\\.254"
    decision: deny
    reason: metadata endpoint
`
	ts, _ := newTestCollector(t, Config{AuditLog: log}, rules)
	ev := policy.NewEvaluator(ts.URL+"/api/v1/policy/evaluate", nil, testKey)
	for _, u := range []string{"http://169.254.169.254/latest", "https://example.com"} {
		if _, err := ev.Evaluate(context.Background(), map[string]string{"url": u}); err != nil {
			t.Fatal(err)
		}
	}

	result := audit.Verify(path)
	if !result.Valid || result.Lines != 2 {
		t.Fatalf("verify = %+v", result)
	}
	data, _ := os.ReadFile(path)
	first := strings.SplitN(string(data), "\n", 2)[0]
	var entry audit.Entry
	if err := json.Unmarshal([]byte(first), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Decision != "Deny" || entry.RuleID != "no-metadata" || entry.Call.Method != http.MethodGet {
		t.Errorf("entry = %+v", entry)
	}
	if entry.PrevHash != audit.GenesisHash || entry.RequestID == "" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestEvaluateRequiresURL(t *testing.T) {
	ts, _ := newTestCollector(t, Config{}, "")
	resp := post(t, ts.URL+"/api/v1/policy/evaluate", testKey, map[string]string{"method": "GET"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(Config{}, st, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
