package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterAgentSuccess(t *testing.T) {
	var got registerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != registerPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+testKey {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Registration{AgentID: "ag-42", Name: got.Name, CreatedAt: "2026-01-01T00:00:00Z"})
	}))
	defer srv.Close()

	c := newTestClient(t, Config{BaseURL: srv.URL})
	id, err := c.RegisterAgent(context.Background(), "research-bot", "langchain")
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if id != "ag-42" || c.AgentID() != "ag-42" {
		t.Errorf("expected agent id ag-42, got %q / %q", id, c.AgentID())
	}
	if got.Name != "research-bot" || got.Framework != "langchain" {
		t.Errorf("unexpected registration body %+v", got)
	}
	if got.Metadata.Runtime != "go" || got.Metadata.SDKVersion != Version || got.Metadata.RuntimeVersion == "" {
		t.Errorf("unexpected registration metadata %+v", got.Metadata)
	}
}

func TestRegisterAgentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{BaseURL: srv.URL})
	_, err := c.RegisterAgent(context.Background(), "bot", "custom")

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistrationError, got %v", err)
	}
	if regErr.StatusCode != http.StatusUnauthorized || regErr.Body != "invalid api key" {
		t.Errorf("unexpected error fields %+v", regErr)
	}
	if c.AgentID() != "" {
		t.Errorf("agent id should stay empty, got %q", c.AgentID())
	}
}
