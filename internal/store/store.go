// Package store persists collector data in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/callwatch/internal/event"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Agent is a registered SDK instance.
type Agent struct {
	ID        string         `json:"agent_id"`
	Name      string         `json:"name"`
	Framework string         `json:"framework,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Record is an event as stored by the collector.
type Record struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id,omitempty"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  string         `json:"timestamp"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Store is a SQLite-backed agent and event store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			framework TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			agent_id TEXT,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			payload TEXT NOT NULL,
			metadata TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name ON events(name)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAgent registers a new agent with a generated id.
func (s *Store) CreateAgent(ctx context.Context, name, framework string, metadata map[string]any) (Agent, error) {
	a := Agent{
		ID:        uuid.NewString(),
		Name:      name,
		Framework: framework,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, framework, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Framework, string(meta), a.CreatedAt,
	)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to insert agent: %w", err)
	}
	return a, nil
}

// GetAgent looks up an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (Agent, error) {
	var a Agent
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, framework, metadata, created_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Framework, &meta, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("failed to query agent: %w", err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
			return Agent{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return a, nil
}

// InsertEvents stores a batch in one transaction and returns how many rows
// were new. Re-sent events with a known id are ignored, so a retried batch
// is stored once.
func (s *Store) InsertEvents(ctx context.Context, events []event.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO events
		(id, agent_id, type, name, payload, metadata, timestamp, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, ev := range events {
		meta := ev.Metadata()
		payload, err := json.Marshal(ev.Payload())
		if err != nil {
			return 0, fmt.Errorf("event %s: failed to marshal payload: %w", ev.ID(), err)
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return 0, fmt.Errorf("event %s: failed to marshal metadata: %w", ev.ID(), err)
		}
		agentID, _ := meta["agent_id"].(string)

		res, err := stmt.ExecContext(ctx,
			ev.ID(), agentID, string(ev.Type()), ev.Name(), string(payload), string(metaJSON), ev.Timestamp(), now,
		)
		if err != nil {
			return 0, fmt.Errorf("event %s: failed to insert: %w", ev.ID(), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return inserted, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ListEvents returns the most recent limit events in arrival order.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent_id, type, name, payload, metadata, timestamp, received_at
		FROM events ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var agentID sql.NullString
		var payload, meta string
		if err := rows.Scan(&r.ID, &agentID, &r.Type, &r.Name, &payload, &meta, &r.Timestamp, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.AgentID = agentID.String
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("event %s: failed to unmarshal payload: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("event %s: failed to unmarshal metadata: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
