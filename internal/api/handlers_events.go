package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agentd/internal/eventbus"
)

// handleEvents returns recent events, newest first.
//
//	GET /api/v1/events?type=task.completed&limit=50
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events := s.bus.Recent(limit, eventbus.EventType(r.URL.Query().Get("type")))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleEventStream streams events over SSE.
//
//	GET /api/v1/events/stream?type=task.completed&agent_id=agent-planning
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventType := r.URL.Query().Get("type")
	agentID := r.URL.Query().Get("agent_id")
	filter := func(event *eventbus.Event) bool {
		if eventType != "" && string(event.Type) != eventType {
			return false
		}
		if agentID != "" {
			if event.Data == nil || event.Data["agent_id"] != agentID {
				return false
			}
		}
		return true
	}

	subscriberID := fmt.Sprintf("sse-%d", time.Now().UnixNano())
	subscriber := s.bus.Subscribe(subscriberID, filter)
	defer s.bus.Unsubscribe(subscriberID)

	fmt.Fprintf(w, "event: connected\n")
	fmt.Fprintf(w, "data: {\"message\": \"connected to event stream\"}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-subscriber.Channel:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleEventSocket upgrades to WebSocket and attaches the client to the
// broadcast hub.
//
//	GET /api/v1/events/ws
func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}
