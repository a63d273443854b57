package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// TimestampFormat is the capture-time layout used on the wire.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Type classifies what an event observed.
type Type string

const (
	ToolCall   Type = "tool_call"
	LLMInvoke  Type = "llm_invoke"
	DataAccess Type = "data_access"
	APICall    Type = "api_call"
	FileWrite  Type = "file_write"
	Decision   Type = "decision"
)

// Types lists every valid event type.
var Types = []Type{ToolCall, LLMInvoke, DataAccess, APICall, FileWrite, Decision}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

var (
	ErrInvalidType = errors.New("event: invalid type")
	ErrEmptyName   = errors.New("event: name must not be empty")
)

// Event is an immutable record of one observed action.
// Payload and metadata are deep-copied on the way in and on the way out,
// so neither the constructor's caller nor a reader can change a stored event.
type Event struct {
	id        string
	typ       Type
	name      string
	payload   map[string]any
	metadata  map[string]any
	timestamp string
}

// New builds an Event stamped with a fresh ID and the current UTC time.
func New(typ Type, name string, payload, metadata map[string]any) (Event, error) {
	if !typ.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if name == "" {
		return Event{}, ErrEmptyName
	}
	p, err := copyMap(payload)
	if err != nil {
		return Event{}, fmt.Errorf("event: copy payload: %w", err)
	}
	m, err := copyMap(metadata)
	if err != nil {
		return Event{}, fmt.Errorf("event: copy metadata: %w", err)
	}
	return Event{
		id:        uuid.NewString(),
		typ:       typ,
		name:      name,
		payload:   p,
		metadata:  m,
		timestamp: time.Now().UTC().Format(TimestampFormat),
	}, nil
}

// Must is New that panics on error. Intended for literals.
func Must(typ Type, name string, payload, metadata map[string]any) Event {
	ev, err := New(typ, name, payload, metadata)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e Event) ID() string        { return e.id }
func (e Event) Type() Type        { return e.typ }
func (e Event) Name() string      { return e.name }
func (e Event) Timestamp() string { return e.timestamp }

// Time parses the event timestamp.
func (e Event) Time() (time.Time, error) {
	return time.Parse(TimestampFormat, e.timestamp)
}

// Payload returns a copy of the event payload.
func (e Event) Payload() map[string]any {
	p, _ := copyMap(e.payload)
	return p
}

// Metadata returns a copy of the event metadata.
func (e Event) Metadata() map[string]any {
	m, _ := copyMap(e.metadata)
	return m
}

// WithMetadata returns a new Event whose metadata is the receiver's merged
// with extra. Keys in extra win. The receiver is left untouched.
func (e Event) WithMetadata(extra map[string]any) Event {
	m, err := copyMap(e.metadata)
	if err != nil {
		m = make(map[string]any, len(e.metadata)+len(extra))
		for k, v := range e.metadata {
			m[k] = v
		}
	}
	add, err := copyMap(extra)
	if err != nil {
		add = extra
	}
	for k, v := range add {
		m[k] = v
	}
	out := e
	out.metadata = m
	return out
}

type wireEvent struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp string         `json:"timestamp"`
}

// MarshalJSON serializes all fields verbatim.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        e.id,
		Type:      e.typ,
		Name:      e.name,
		Payload:   e.payload,
		Metadata:  e.metadata,
		Timestamp: e.timestamp,
	})
}

// UnmarshalJSON restores an Event from its wire form, keeping the
// original ID and timestamp.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, w.Type)
	}
	if w.Name == "" {
		return ErrEmptyName
	}
	if w.Payload == nil {
		w.Payload = map[string]any{}
	}
	if w.Metadata == nil {
		w.Metadata = map[string]any{}
	}
	*e = Event{
		id:        w.ID,
		typ:       w.Type,
		name:      w.Name,
		payload:   w.Payload,
		metadata:  w.Metadata,
		timestamp: w.Timestamp,
	}
	return nil
}

func copyMap(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	c, err := copystructure.Copy(m)
	if err != nil {
		return nil, err
	}
	return c.(map[string]any), nil
}
