package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fedplan/internal/orchestrator"
	"github.com/roach88/fedplan/internal/plan"
)

const requestIDHeader = "X-Request-Id"

// ErrorResponse is the body of a failed gateway call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes a transport over HTTP.
type Server struct {
	transport orchestrator.Transport
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Default: slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a gateway for t.
func NewServer(t orchestrator.Transport, opts ...ServerOption) *Server {
	s := &Server{transport: t, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the gateway on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.health)
	r.Post(QueryPath, s.query)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns a router with the gateway routes and recovery middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req plan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = r.Header.Get(requestIDHeader)
	}
	if req.Engine == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "request has no engine"})
		return
	}
	if req.Kind != plan.KindQuery && req.Kind != plan.KindIntrospect {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown request kind " + req.Kind})
		return
	}

	log := s.logger.With("request_id", req.ID, "engine", req.Engine, "kind", req.Kind)
	resp, err := s.transport.Send(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoRoute) {
			status = http.StatusNotFound
		}
		log.Error("gateway request failed", "error", err)
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	log.Debug("gateway request served", "rows", len(resp.Rows))
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
