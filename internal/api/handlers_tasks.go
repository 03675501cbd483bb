package api

import (
	"net/http"
	"strconv"
	"strings"

	"agentd/internal/provider"
	"agentd/pkg/types"
)

// handleTasks handles the task collection.
//
//	GET  /api/v1/tasks  - list tasks, newest first
//	POST /api/v1/tasks  - submit a task
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	p, ok := s.activeProvider(w)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter := provider.TaskFilter{
			AgentID: r.URL.Query().Get("agent_id"),
			Status:  types.TaskState(r.URL.Query().Get("status")),
			Limit:   provider.DefaultTaskLimit,
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit <= 0 {
				s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			filter.Limit = limit
		}

		tasks, err := p.ListTasks(r.Context(), filter)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, tasks)

	case http.MethodPost:
		var req types.TaskRequest
		if err := s.parseJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Description == "" {
			s.respondError(w, http.StatusBadRequest, "description is required")
			return
		}

		task, err := p.SubmitTask(r.Context(), &req)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, task)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTask handles a single task.
//
//	GET  /api/v1/tasks/{id}         - task status
//	POST /api/v1/tasks/{id}/cancel  - cancel the task
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := s.extractID(r.URL.Path, "/api/v1/tasks")
	if taskID == "" {
		s.respondError(w, http.StatusBadRequest, "task id is required")
		return
	}

	p, ok := s.activeProvider(w)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel") {
		cancelled, err := p.CancelTask(r.Context(), taskID)
		if err != nil {
			s.respondProviderError(w, err)
			return
		}
		if !cancelled {
			s.respondError(w, http.StatusBadRequest, "task cannot be cancelled: "+taskID)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "task_id": taskID})
		return
	}

	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	task, err := p.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		s.respondProviderError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}
