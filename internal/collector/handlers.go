package collector

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/alert"
	"github.com/ppiankov/callwatch/internal/audit"
	"github.com/ppiankov/callwatch/internal/event"
	"github.com/ppiankov/callwatch/internal/policy"
)

type registerRequest struct {
	Name      string         `json:"name"`
	Framework string         `json:"framework"`
	Metadata  map[string]any `json:"metadata"`
}

type registerResponse struct {
	AgentID   string `json:"agent_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type evaluateRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"go_version": runtime.Version(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	agent, err := s.store.CreateAgent(r.Context(), req.Name, req.Framework, req.Metadata)
	if err != nil {
		s.logger.Error("agent registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register agent")
		return
	}
	s.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name),
		zap.String("framework", agent.Framework),
	)
	writeJSON(w, http.StatusCreated, registerResponse{
		AgentID:   agent.ID,
		Name:      agent.Name,
		CreatedAt: agent.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []event.Event `json:"events"`
	}
	if !decode(w, r, &req) {
		return
	}

	stored, err := s.store.InsertEvents(r.Context(), req.Events)
	if err != nil {
		s.logger.Error("event batch insert failed", zap.Int("events", len(req.Events)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}
	s.logger.Debug("event batch stored",
		zap.Int("events", len(req.Events)),
		zap.Int("new", stored),
	)
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Events)})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	total, err := s.store.CountEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count events")
		return
	}
	records, err := s.store.ListEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "events": records})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	rules := s.engine.Rules()
	res := s.engine.EvaluateWith(rules, req.Method, req.URL)
	s.logger.Info("policy evaluated",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.String("decision", string(res.Decision)),
		zap.String("rule_id", res.RuleID),
	)

	if s.cfg.AuditLog != nil {
		err := s.cfg.AuditLog.Record(audit.Entry{
			RequestID:  middleware.GetReqID(r.Context()),
			Call:       audit.Call{Method: req.Method, URL: req.URL},
			Decision:   string(res.Decision),
			Reason:     res.FirstReason(),
			RuleID:     res.RuleID,
			PolicyHash: rules.Hash(),
		})
		if err != nil {
			s.logger.Error("audit record failed", zap.Error(err))
		}
	}

	if res.Decision == policy.Deny {
		alert.NewDispatcher(rules.Alerts, s.logger).Dispatch(alert.AlertEvent{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Method:     req.Method,
			URL:        req.URL,
			Decision:   string(res.Decision),
			Reason:     res.FirstReason(),
			RuleID:     res.RuleID,
			PolicyHash: rules.Hash(),
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
