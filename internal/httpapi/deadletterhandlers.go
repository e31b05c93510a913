// ABOUTME: Dead-letter endpoints: listing, retry, and discard.

package httpapi

import (
	"net/http"
)

// RetryRequest is the JSON body for POST /api/deadletter/{id}/retry. An
// empty body means keep the original attempt count.
type RetryRequest struct {
	ResetAttempts bool `json:"resetAttempts"`
}

// handleListDeadLetters handles GET /api/deadletter with an optional
// capability query filter.
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deadLetters.List(r.Context(), r.URL.Query().Get("capability"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"deadLetters": entries,
		"count":       len(entries),
	})
}

// handleRetryDeadLetter handles POST /api/deadletter/{id}/retry.
func (s *Server) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if r.ContentLength > 0 {
		if err := s.decodeBody(r, &req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
	}

	item, err := s.deadLetters.Retry(r.Context(), r.PathValue("id"), req.ResetAttempts)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"workItem": item,
	})
}

// handleDiscardDeadLetter handles DELETE /api/deadletter/{id}.
func (s *Server) handleDiscardDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := s.deadLetters.Discard(r.Context(), r.PathValue("id")); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
