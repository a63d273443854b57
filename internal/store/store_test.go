package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ppiankov/callwatch/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "callwatch.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAgent(ctx, "billing-bot", "langchain", map[string]any{"runtime": "go"})
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	if a.ID == "" {
		t.Fatal("agent id is empty")
	}

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Name != "billing-bot" || got.Framework != "langchain" {
		t.Errorf("agent = %+v", got)
	}
	if got.Metadata["runtime"] != "go" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	if _, err := s.GetAgent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAgent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsertAndListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var batch []event.Event
	for i := 0; i < 5; i++ {
		ev := event.Must(event.ToolCall, "step", map[string]any{"seq": i}, map[string]any{"agent_id": "agent-7"})
		batch = append(batch, ev)
	}

	n, err := s.InsertEvents(ctx, batch)
	if err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}
	if n != 5 {
		t.Errorf("inserted = %d, want 5", n)
	}

	count, err := s.CountEvents(ctx)
	if err != nil || count != 5 {
		t.Fatalf("CountEvents() = %d, %v", count, err)
	}

	recs, err := s.ListEvents(ctx, 3)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	for i, r := range recs {
		if r.ID != batch[i+2].ID() {
			t.Errorf("recs[%d] = %s, want %s", i, r.ID, batch[i+2].ID())
		}
		if r.AgentID != "agent-7" || r.Type != "tool_call" {
			t.Errorf("record = %+v", r)
		}
	}
	if recs[0].Payload["seq"] != float64(2) {
		t.Errorf("payload = %v", recs[0].Payload)
	}
}

func TestInsertEventsIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := event.Must(event.APICall, "http.request.started", nil, nil)
	if _, err := s.InsertEvents(ctx, []event.Event{ev}); err != nil {
		t.Fatal(err)
	}
	n, err := s.InsertEvents(ctx, []event.Event{ev, event.Must(event.APICall, "http.request.completed", nil, nil)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
	if count, _ := s.CountEvents(ctx); count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callwatch.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEvents(context.Background(), []event.Event{event.Must(event.Decision, "d", nil, nil)}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if count, _ := s.CountEvents(context.Background()); count != 1 {
		t.Errorf("count after reopen = %d", count)
	}
}
