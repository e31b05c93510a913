// ABOUTME: Agent endpoints: list, detail, and shutdown requests.

package httpapi

import (
	"net/http"

	"github.com/threadworks/heddle/internal/registry"
)

// ShutdownRequest is the JSON body for POST /api/agents/{guid}/shutdown.
type ShutdownRequest struct {
	Graceful bool   `json:"graceful"`
	Reason   string `json:"reason,omitempty"`
}

// handleListAgents handles GET /api/agents with optional capability,
// status, and projectId query filters.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agents, err := s.registry.List(r.Context(), registry.Filter{
		Capability: q.Get("capability"),
		Status:     q.Get("status"),
		ProjectID:  q.Get("projectId"),
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

// handleGetAgent handles GET /api/agents/{guid}.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.Context(), r.PathValue("guid"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

// handleShutdownAgent handles POST /api/agents/{guid}/shutdown. The
// request lands in the agent's mailbox; actually stopping is the agent's
// job.
func (s *Server) handleShutdownAgent(w http.ResponseWriter, r *http.Request) {
	guid := r.PathValue("guid")

	var req ShutdownRequest
	if r.ContentLength > 0 {
		if err := s.decodeBody(r, &req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
	}

	if _, err := s.registry.Get(r.Context(), guid); err != nil {
		s.sendError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "operator-request"
	}
	if err := s.mailboxes.SignalShutdown(r.Context(), guid, req.Graceful, reason); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
