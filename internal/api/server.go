// Package api exposes the agentd HTTP surface: agent and task CRUD,
// system status and health, Prometheus metrics, and real-time event
// delivery over SSE and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentd/internal/eventbus"
	"agentd/internal/metrics"
	"agentd/internal/orchestrator"
	"agentd/internal/provider"
)

// Server is the HTTP API server. It holds no provider state of its own;
// every request resolves the active provider through the orchestrator
// service.
type Server struct {
	service *orchestrator.Service
	bus     *eventbus.Bus
	hub     *Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	started time.Time
	version string
}

// NewServer creates the API server and starts its WebSocket hub.
func NewServer(service *orchestrator.Service, bus *eventbus.Bus, m *metrics.Metrics, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: service,
		bus:     bus,
		metrics: m,
		logger:  logger.With("component", "api"),
		started: time.Now(),
		version: version,
	}
	s.hub = NewHub(bus, s.logger)
	go s.hub.Run()
	return s
}

// SetupRoutes configures HTTP routes and middleware.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// System
	mux.HandleFunc("/api/v1/system/status", s.handleSystemStatus)
	mux.HandleFunc("/api/v1/system/initialize", s.handleInitialize)
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	// Agents
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agents/", s.handleAgent)

	// Tasks
	mux.HandleFunc("/api/v1/tasks", s.handleTasks)
	mux.HandleFunc("/api/v1/tasks/", s.handleTask)

	// Events
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/events/stream", s.handleEventStream)
	mux.HandleFunc("/api/v1/events/ws", s.handleEventSocket)

	// Prometheus
	mux.Handle("/metrics", promhttp.Handler())

	handler := s.loggingMiddleware(mux)
	handler = s.corsMiddleware(handler)
	return handler
}

// Shutdown stops the WebSocket hub.
func (s *Server) Shutdown() {
	s.hub.Stop()
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades need the raw ResponseWriter for hijacking.
		if r.URL.Path == "/api/v1/events/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, routePattern(r.URL.Path), strconv.Itoa(rec.status), elapsed.Seconds())
		}
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routePattern collapses id-bearing paths so metric labels stay bounded.
func routePattern(path string) string {
	for _, prefix := range []string{"/api/v1/agents/", "/api/v1/tasks/"} {
		if strings.HasPrefix(path, prefix) {
			if strings.HasSuffix(path, "/cancel") {
				return prefix + ":id/cancel"
			}
			return prefix + ":id"
		}
	}
	return path
}

// Helper functions

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"detail": message})
}

// respondProviderError maps provider errors onto HTTP status codes.
func (s *Server) respondProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrAgentNotFound), errors.Is(err, provider.ErrTaskNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrNotInitialized), errors.Is(err, provider.ErrNotInitialized),
		errors.Is(err, provider.ErrGatewayUnreachable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// extractID pulls the id segment out of /api/v1/<collection>/<id>[/...].
func (s *Server) extractID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.Trim(id, "/")
	if i := strings.Index(id, "/"); i >= 0 {
		return id[:i]
	}
	return id
}

// activeProvider resolves the provider or writes a 503.
func (s *Server) activeProvider(w http.ResponseWriter) (provider.Provider, bool) {
	p, err := s.service.Provider()
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return p, true
}
