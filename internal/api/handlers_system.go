package api

import (
	"errors"
	"net/http"
	"time"

	"agentd/internal/provider"
	"agentd/pkg/types"
)

// handleSystemStatus reports aggregate provider metrics.
//
//	GET /api/v1/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	p, ok := s.activeProvider(w)
	if !ok {
		return
	}

	m, err := p.SystemMetrics(r.Context())
	if err != nil {
		s.respondProviderError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, m)
}

// handleHealth reports provider health. Always 200; the body carries the
// health verdict so load balancers and dashboards read one shape.
//
//	GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	p, err := s.service.Provider()
	if err != nil {
		s.respondJSON(w, http.StatusOK, &types.Health{
			Status:        types.HealthStatusUnhealthy,
			Error:         err.Error(),
			UptimeSeconds: time.Since(s.started).Seconds(),
		})
		return
	}

	health := p.HealthCheck(r.Context())
	health.UptimeSeconds = time.Since(s.started).Seconds()
	s.respondJSON(w, http.StatusOK, health)
}

type initializeRequest struct {
	ProviderType string                 `json:"provider_type"`
	Config       map[string]interface{} `json:"config"`
}

// handleInitialize swaps the active provider.
//
//	POST /api/v1/system/initialize
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req initializeRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProviderType == "" {
		s.respondError(w, http.StatusBadRequest, "provider_type is required")
		return
	}

	if err := s.service.Initialize(r.Context(), req.ProviderType, req.Config); err != nil {
		// Unknown types are the caller's mistake; everything else, gateway
		// connectivity included, follows the provider error mapping.
		if errors.Is(err, provider.ErrUnknownProviderType) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondProviderError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":   "initialized",
		"provider": req.ProviderType,
	})
}
