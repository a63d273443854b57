package event

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNewAssignsIDAndTimestamp(t *testing.T) {
	a := Must(APICall, "http.request.started", nil, nil)
	b := Must(APICall, "http.request.started", nil, nil)

	if a.ID() == "" || b.ID() == "" {
		t.Fatal("expected non-empty IDs")
	}
	if a.ID() == b.ID() {
		t.Errorf("expected unique IDs, both were %s", a.ID())
	}
	if _, err := a.Time(); err != nil {
		t.Errorf("timestamp %q not parseable: %v", a.Timestamp(), err)
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		evName  string
		wantErr error
	}{
		{"unknown type", Type("telemetry"), "x", ErrInvalidType},
		{"empty type", Type(""), "x", ErrInvalidType},
		{"empty name", ToolCall, "", ErrEmptyName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.typ, tt.evName, nil, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAllTypesValid(t *testing.T) {
	for _, typ := range Types {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
}

func TestPayloadDeepCopiedAtConstruction(t *testing.T) {
	nested := map[string]any{"k": "v"}
	payload := map[string]any{"a": 1, "nested": nested}
	ev := Must(ToolCall, "tool.run", payload, nil)

	payload["a"] = 2
	nested["k"] = "changed"

	got := ev.Payload()
	if got["a"] != 1 {
		t.Errorf("expected a=1, got %v", got["a"])
	}
	if got["nested"].(map[string]any)["k"] != "v" {
		t.Errorf("nested payload mutated through caller reference")
	}
}

func TestPayloadAccessorReturnsCopy(t *testing.T) {
	ev := Must(ToolCall, "tool.run", map[string]any{"a": 1}, nil)
	p := ev.Payload()
	p["a"] = 99
	if ev.Payload()["a"] != 1 {
		t.Error("mutating the accessor result changed the event")
	}
}

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	orig := Must(Decision, "policy.check", nil, map[string]any{"b": 2})
	enriched := orig.WithMetadata(map[string]any{"agent_id": "ag-1"})

	if _, ok := orig.Metadata()["agent_id"]; ok {
		t.Error("original metadata gained agent_id")
	}
	m := enriched.Metadata()
	if m["agent_id"] != "ag-1" || m["b"] != 2 {
		t.Errorf("unexpected enriched metadata: %v", m)
	}
	if enriched.ID() != orig.ID() || enriched.Timestamp() != orig.Timestamp() {
		t.Error("enrichment should keep identity fields")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ev := Must(DataAccess, "db.query", map[string]any{"a": 1}, map[string]any{"b": 2})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, k := range []string{"id", "type", "name", "payload", "metadata", "timestamp"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("missing field %q in %s", k, data)
		}
	}

	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID() != ev.ID() || back.Type() != ev.Type() || back.Name() != ev.Name() {
		t.Errorf("identity fields differ: %+v vs %+v", back, ev)
	}
	// JSON numbers decode as float64.
	if !reflect.DeepEqual(back.Payload(), map[string]any{"a": float64(1)}) {
		t.Errorf("payload mismatch: %v", back.Payload())
	}
	if !reflect.DeepEqual(back.Metadata(), map[string]any{"b": float64(2)}) {
		t.Errorf("metadata mismatch: %v", back.Metadata())
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"id":"x","type":"nope","name":"n"}`), &ev)
	if !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}
