package api

import (
	"net/http"

	"agentd/pkg/types"
)

// handleAgents handles the agent collection.
//
//	GET  /api/v1/agents  - list all agents
//	POST /api/v1/agents  - create an agent
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	p, ok := s.activeProvider(w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		agents, err := p.ListAgents(r.Context())
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, agents)

	case http.MethodPost:
		var cfg types.AgentConfig
		if err := s.parseJSON(r, &cfg); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if cfg.AgentID == "" || cfg.Name == "" {
			s.respondError(w, http.StatusBadRequest, "agent_id and name are required")
			return
		}

		agent, err := p.CreateAgent(r.Context(), &cfg)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, agent)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAgent handles a single agent.
//
//	GET    /api/v1/agents/{id}  - agent status
//	DELETE /api/v1/agents/{id}  - remove the agent
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agentID := s.extractID(r.URL.Path, "/api/v1/agents")
	if agentID == "" {
		s.respondError(w, http.StatusBadRequest, "agent id is required")
		return
	}

	p, ok := s.activeProvider(w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		agent, err := p.GetAgentStatus(r.Context(), agentID)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, agent)

	case http.MethodDelete:
		removed, err := p.DeleteAgent(r.Context(), agentID)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		if !removed {
			s.respondError(w, http.StatusNotFound, "agent not found: "+agentID)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "agent_id": agentID})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
