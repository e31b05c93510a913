// ABOUTME: HTTP surface of the coordinator: agents, work, dead letters, targets, stats.
// ABOUTME: Plain net/http with JSON bodies; errors carry a machine-readable code.

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threadworks/heddle/internal/capacity"
	"github.com/threadworks/heddle/internal/deadletter"
	"github.com/threadworks/heddle/internal/mailbox"
	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/stats"
	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/work"
)

// Error codes carried in error response bodies.
const (
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeConflict    = "conflict"
	codeUnavailable = "unavailable"
	codeInternal    = "internal_error"
)

// Server owns the HTTP handlers and their dependencies.
type Server struct {
	registry    *registry.Registry
	mailboxes   *mailbox.Service
	router      *work.Router
	deadLetters *deadletter.Manager
	capacity    *capacity.Controller
	stats       *stats.Aggregator
	metrics     *Metrics
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewServer wires the handlers. metrics may be nil to disable /metrics.
func NewServer(
	reg *registry.Registry,
	mb *mailbox.Service,
	router *work.Router,
	dl *deadletter.Manager,
	ctrl *capacity.Controller,
	agg *stats.Aggregator,
	metrics *Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		registry:    reg,
		mailboxes:   mb,
		router:      router,
		deadLetters: dl,
		capacity:    ctrl,
		stats:       agg,
		metrics:     metrics,
		validate:    validator.New(),
		logger:      logger.With("component", "httpapi"),
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/agents", s.track(s.handleListAgents))
	mux.HandleFunc("GET /api/agents/{guid}", s.track(s.handleGetAgent))
	mux.HandleFunc("POST /api/agents/{guid}/shutdown", s.track(s.handleShutdownAgent))

	mux.HandleFunc("POST /api/work", s.track(s.handleSubmitWork))
	mux.HandleFunc("GET /api/work", s.track(s.handleListWork))
	mux.HandleFunc("GET /api/work/{id}", s.track(s.handleGetWork))

	mux.HandleFunc("GET /api/deadletter", s.track(s.handleListDeadLetters))
	mux.HandleFunc("POST /api/deadletter/{id}/retry", s.track(s.handleRetryDeadLetter))
	mux.HandleFunc("DELETE /api/deadletter/{id}", s.track(s.handleDiscardDeadLetter))

	mux.HandleFunc("POST /api/targets", s.track(s.handleCreateTarget))
	mux.HandleFunc("GET /api/targets", s.track(s.handleListTargets))
	mux.HandleFunc("GET /api/targets/{id}", s.track(s.handleGetTarget))
	mux.HandleFunc("PUT /api/targets/{id}", s.track(s.handleUpdateTarget))
	mux.HandleFunc("DELETE /api/targets/{id}", s.track(s.handleDeleteTarget))
	mux.HandleFunc("POST /api/targets/{id}/enable", s.track(s.handleEnableTarget))
	mux.HandleFunc("POST /api/targets/{id}/disable", s.track(s.handleDisableTarget))
	mux.HandleFunc("POST /api/targets/{id}/test", s.track(s.handleTestTarget))
	mux.HandleFunc("POST /api/targets/{id}/spin-up", s.track(s.handleSpinUpTarget))

	mux.HandleFunc("GET /api/stats", s.track(s.handleStats))

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

// track counts the request if metrics are enabled.
func (s *Server) track(h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RequestsTotal.WithLabelValues(r.Method, r.Pattern).Inc()
		h(w, r)
	}
}

// handleHealth returns liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes an error body with a machine-readable code.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// sendError maps a component error onto the HTTP taxonomy.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, capacity.ErrNameTaken),
		errors.Is(err, capacity.ErrTargetDisabled):
		s.sendJSONError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		s.sendJSONError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
	case errors.Is(err, registry.ErrNoCapabilities),
		errors.Is(err, registry.ErrTaskCountExceedsMax),
		errors.Is(err, work.ErrNoCapability),
		errors.Is(err, work.ErrNoBoundary),
		errors.Is(err, capacity.ErrUnknownMechanism):
		s.sendJSONError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.sendJSONError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

// decodeBody parses a JSON body and runs struct validation.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
