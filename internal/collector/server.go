// Package collector is a development collector: it accepts agent
// registrations and event batches from the SDK, stores them in SQLite and
// answers policy evaluations from a local rule file.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/audit"
	"github.com/ppiankov/callwatch/internal/logging"
	"github.com/ppiankov/callwatch/internal/policy"
	"github.com/ppiankov/callwatch/internal/store"
)

const (
	maxBodyBytes    = 10 << 20
	shutdownTimeout = 5 * time.Second
)

// Config holds collector settings.
type Config struct {
	Addr   string // listen address, e.g. ":8080"
	APIKey string // when set, only this exact key is accepted

	// AuditLog, when set, receives every policy decision. The caller owns it.
	AuditLog *audit.Log
}

// Server serves the collector API.
type Server struct {
	cfg    Config
	store  *store.Store
	engine *policy.Engine
	logger *zap.Logger
	router chi.Router
	srv    *http.Server
}

// NewServer wires the routes. The caller owns st and engine.
func NewServer(cfg Config, st *store.Store, engine *policy.Engine, logger *zap.Logger) *Server {
	if engine == nil {
		engine = policy.NewEngineFromRules(policy.DefaultRules())
	}
	s := &Server{
		cfg:    cfg,
		store:  st,
		engine: engine,
		logger: logging.OrNop(logger).Named("collector"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(cfg.APIKey))
		r.Post("/agents/register", s.handleRegister)
		r.Post("/events/batch", s.handleBatch)
		r.Get("/events", s.handleListEvents)
		r.Post("/policy/evaluate", s.handleEvaluate)
	})
	s.router = r

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("collector listening", zap.String("addr", ln.Addr().String()))
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
