// ABOUTME: Work endpoints: submission, listing, and per-item detail.

package httpapi

import (
	"net/http"

	"github.com/threadworks/heddle/internal/work"
)

// SubmitWorkRequest is the JSON body for POST /api/work.
type SubmitWorkRequest struct {
	Description string         `json:"description" validate:"required"`
	Capability  string         `json:"capability" validate:"required"`
	Boundary    string         `json:"boundary" validate:"required"`
	Priority    int            `json:"priority,omitempty"`
	ContextData map[string]any `json:"contextData,omitempty"`
	TaskID      string         `json:"taskId,omitempty"`
	OfferedBy   string         `json:"offeredBy,omitempty"`
}

// handleSubmitWork handles POST /api/work.
func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	var req SubmitWorkRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	item, err := s.router.Submit(r.Context(), work.Item{
		Description: req.Description,
		Capability:  req.Capability,
		Boundary:    req.Boundary,
		Priority:    req.Priority,
		ContextData: req.ContextData,
		TaskID:      req.TaskID,
		OfferedBy:   req.OfferedBy,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.WorkSubmittedTotal.Inc()
	}
	s.writeJSON(w, http.StatusCreated, item)
}

// handleListWork handles GET /api/work with optional status and capability
// query filters.
func (s *Server) handleListWork(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.router.List(r.Context(), work.Filter{
		Status:     q.Get("status"),
		Capability: q.Get("capability"),
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"workItems": items})
}

// handleGetWork handles GET /api/work/{id}.
func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	item, err := s.router.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}
