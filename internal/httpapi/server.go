// Package httpapi exposes the orchestrator, session store, provider
// factory, and metrics collector over the HTTP surface: session
// management, the orchestration endpoint, provider/health introspection,
// and OpenMetrics rendering.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/orchestrator"
	"github.com/relaycore/agentgate/internal/providerfactory"
	"github.com/relaycore/agentgate/internal/session"
)

// Server owns the HTTP listener and the handlers wired to the core
// components.
type Server struct {
	factory      *providerfactory.Factory
	store        *session.Store
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Collector
	logger       *slog.Logger

	corsOrigins map[string]bool

	httpServer *http.Server
	listener   net.Listener
}

// Config supplies the dependencies and listen address for New.
type Config struct {
	Host         string
	Port         int
	CORSOrigins  []string
	Factory      *providerfactory.Factory
	Store        *session.Store
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// New builds a Server and registers every route; it does not start
// listening.
func New(cfg Config) *Server {
	s := &Server{
		factory:      cfg.Factory,
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		corsOrigins:  map[string]bool{},
	}
	for _, o := range cfg.CORSOrigins {
		s.corsOrigins[o] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.withCORS(s.handleCreateSession))
	mux.HandleFunc("POST /api/orchestrate", s.withCORS(s.handleOrchestrate))
	mux.HandleFunc("GET /api/sessions/{id}", s.withCORS(s.handleGetSession))
	mux.HandleFunc("GET /api/sessions/{id}/history", s.withCORS(s.handleGetHistory))
	mux.HandleFunc("GET /api/sessions/{id}/metrics", s.withCORS(s.handleSessionMetrics))
	mux.HandleFunc("GET /api/providers", s.withCORS(s.handleListProviders))
	mux.HandleFunc("GET /api/providers/{tag}/health", s.withCORS(s.handleProviderHealth))
	mux.HandleFunc("GET /api/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("GET /api/metrics", s.withCORS(s.handleMetrics))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("http server error", "error", err)
			}
		}
	}()
	if s.logger != nil {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	}
	return nil
}

// Handler returns the registered routes as a plain http.Handler, for tests
// that want to drive requests without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil && s.logger != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.corsOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAgentError(w http.ResponseWriter, err error) {
	ae := models.AsAgentError(err)
	writeJSON(w, ae.HTTPStatus, map[string]any{
		"error_code": ae.Code,
		"message":    sanitizedMessage(ae),
	})
}

// sanitizedMessage strips any cause chain from the wire response; raw
// vendor bodies and keys never leave the process.
func sanitizedMessage(ae *models.AgentError) string {
	return ae.Message
}

func pathID(r *http.Request, name string) string {
	return r.PathValue(name)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
