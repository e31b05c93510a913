// ABOUTME: Capacity target endpoints: CRUD plus enable, disable, test, spin-up.

package httpapi

import (
	"net/http"

	"github.com/threadworks/heddle/internal/capacity"
)

// CreateTargetRequest is the JSON body for POST /api/targets.
type CreateTargetRequest struct {
	Name         string            `json:"name" validate:"required"`
	AgentType    string            `json:"agentType,omitempty"`
	Capabilities []string          `json:"capabilities" validate:"required,min=1"`
	Boundaries   []string          `json:"boundaries,omitempty"`
	Mechanism    string            `json:"mechanism" validate:"required"`
	Config       map[string]string `json:"config,omitempty"`
}

// UpdateTargetRequest is the JSON body for PUT /api/targets/{id}. Zero
// fields are left unchanged.
type UpdateTargetRequest struct {
	Name         string            `json:"name,omitempty"`
	AgentType    string            `json:"agentType,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Boundaries   []string          `json:"boundaries,omitempty"`
	Mechanism    string            `json:"mechanism,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
}

// handleCreateTarget handles POST /api/targets.
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	target, err := s.capacity.CreateTarget(r.Context(), capacity.Target{
		Name:         req.Name,
		AgentType:    req.AgentType,
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
		Mechanism:    req.Mechanism,
		Config:       req.Config,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, target)
}

// handleListTargets handles GET /api/targets with an optional capability
// query filter.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.capacity.ListTargets(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}

	if capFilter := r.URL.Query().Get("capability"); capFilter != "" {
		filtered := targets[:0]
		for _, t := range targets {
			if t.HasCapability(capFilter) {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"targets": targets,
		"count":   len(targets),
	})
}

// handleGetTarget handles GET /api/targets/{id}.
func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := s.capacity.GetTarget(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, target)
}

// handleUpdateTarget handles PUT /api/targets/{id}.
func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req UpdateTargetRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	target, err := s.capacity.UpdateTarget(r.Context(), r.PathValue("id"), capacity.Target{
		Name:         req.Name,
		AgentType:    req.AgentType,
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
		Mechanism:    req.Mechanism,
		Config:       req.Config,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, target)
}

// handleDeleteTarget handles DELETE /api/targets/{id}.
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if _, err := s.capacity.GetTarget(r.Context(), r.PathValue("id")); err != nil {
		s.sendError(w, err)
		return
	}
	if err := s.capacity.DeleteTarget(r.Context(), r.PathValue("id")); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleEnableTarget handles POST /api/targets/{id}/enable.
func (s *Server) handleEnableTarget(w http.ResponseWriter, r *http.Request) {
	s.setTargetStatus(w, r, capacity.TargetAvailable)
}

// handleDisableTarget handles POST /api/targets/{id}/disable.
func (s *Server) handleDisableTarget(w http.ResponseWriter, r *http.Request) {
	s.setTargetStatus(w, r, capacity.TargetDisabled)
}

func (s *Server) setTargetStatus(w http.ResponseWriter, r *http.Request, status string) {
	target, err := s.capacity.SetStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  target.Status,
	})
}

// handleTestTarget handles POST /api/targets/{id}/test. Probe failures
// are a healthy=false body, not an HTTP error.
func (s *Server) handleTestTarget(w http.ResponseWriter, r *http.Request) {
	res, err := s.capacity.TestTarget(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleSpinUpTarget handles POST /api/targets/{id}/spin-up. Duplicate
// triggers come back 200 with triggered=false.
func (s *Server) handleSpinUpTarget(w http.ResponseWriter, r *http.Request) {
	res, err := s.capacity.TriggerSpinUp(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	if s.metrics != nil && res.Triggered {
		s.metrics.SpinUpsTotal.Inc()
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}
